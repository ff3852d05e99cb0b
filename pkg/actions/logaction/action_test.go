package logaction

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookflow/hookflow/pkg/models"
)

func TestExecute_ReturnsMessage(t *testing.T) {
	action := NewAction()

	executionCtx := models.ExecutionContext{WorkflowID: "wf-1", ExecutionID: "exec-1"}

	for _, level := range []string{"", "debug", "info", "warn", "error"} {
		out, err := action.Execute(context.Background(), executionCtx,
			map[string]any{"message": "step done", "level": level}, slog.Default())
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"message": "step done"}, out)
	}
}

func TestValidateConfig_AcceptsAnything(t *testing.T) {
	action := NewAction()

	assert.NoError(t, action.ValidateConfig(nil))
	assert.NoError(t, action.ValidateConfig(map[string]any{"level": "info"}))
}
