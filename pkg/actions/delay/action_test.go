package delay

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookflow/hookflow/pkg/models"
)

func TestValidateConfig(t *testing.T) {
	action := NewAction()

	tests := []struct {
		name    string
		config  map[string]any
		wantErr bool
	}{
		{"duration string", map[string]any{"duration": "150ms"}, false},
		{"milliseconds number", map[string]any{"duration": float64(50)}, false},
		{"milliseconds int", map[string]any{"duration": 50}, false},
		{"missing", map[string]any{}, true},
		{"zero", map[string]any{"duration": float64(0)}, true},
		{"negative string", map[string]any{"duration": "-1s"}, true},
		{"garbage string", map[string]any{"duration": "soon"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := action.ValidateConfig(tt.config)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDurationRequired)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExecute_Sleeps(t *testing.T) {
	action := NewAction()

	start := time.Now()
	out, err := action.Execute(context.Background(), models.ExecutionContext{},
		map[string]any{"duration": "30ms"}, slog.Default())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, map[string]any{"delayed_ms": int64(30)}, out)
}

func TestExecute_CancelledContextWakesEarly(t *testing.T) {
	action := NewAction()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := action.Execute(ctx, models.ExecutionContext{},
		map[string]any{"duration": "10s"}, slog.Default())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
