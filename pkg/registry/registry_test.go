package registry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookflow/hookflow/pkg/models"
	"github.com/hookflow/hookflow/pkg/testutil"
)

type fakeTriggerHandler struct {
	triggerType  models.TriggerType
	validateErr  error
	registered   []string
	unregistered []string
	closed       bool
}

func (f *fakeTriggerHandler) Type() models.TriggerType { return f.triggerType }

func (f *fakeTriggerHandler) Validate(_ map[string]any) error { return f.validateErr }

func (f *fakeTriggerHandler) Register(_ context.Context, workflow *models.Workflow) error {
	f.registered = append(f.registered, workflow.ID)
	return nil
}

func (f *fakeTriggerHandler) Unregister(_ context.Context, workflowID string) error {
	f.unregistered = append(f.unregistered, workflowID)
	return nil
}

func (f *fakeTriggerHandler) Close(_ context.Context) error {
	f.closed = true
	return nil
}

func TestRegistry_TriggerHandlerLookup(t *testing.T) {
	reg := NewRegistry(slog.Default())
	handler := &fakeTriggerHandler{triggerType: models.TriggerTypeWebhook}
	reg.RegisterTrigger(handler)

	found, err := reg.TriggerHandler(models.TriggerTypeWebhook)
	require.NoError(t, err)
	assert.Equal(t, handler, found)

	_, err = reg.TriggerHandler(models.TriggerTypeSchedule)
	assert.ErrorIs(t, err, ErrUnknownTriggerType)
}

func TestRegistry_ActionHandlerUnknown(t *testing.T) {
	reg := NewRegistry(slog.Default())

	_, err := reg.ActionHandler("nope")
	assert.ErrorIs(t, err, ErrUnknownActionType)
}

func TestRegisterWorkflowTrigger_HappyPath(t *testing.T) {
	reg := NewRegistry(slog.Default())
	handler := &fakeTriggerHandler{triggerType: models.TriggerTypeWebhook}
	reg.RegisterTrigger(handler)

	workflow := testutil.CreateTestWorkflow(testutil.WithTrigger(models.TriggerTypeWebhook, map[string]any{
		"path": "/hooks/orders",
	}))

	require.NoError(t, reg.RegisterWorkflowTrigger(context.Background(), workflow))
	assert.Equal(t, []string{workflow.ID}, handler.registered)
}

func TestRegisterWorkflowTrigger_SchemaRejectsBadConfig(t *testing.T) {
	reg := NewRegistry(slog.Default())
	reg.RegisterTrigger(&fakeTriggerHandler{triggerType: models.TriggerTypeWebhook})

	workflow := testutil.CreateTestWorkflow(testutil.WithTrigger(models.TriggerTypeWebhook, map[string]any{}))

	err := reg.RegisterWorkflowTrigger(context.Background(), workflow)
	assert.ErrorIs(t, err, ErrInvalidTriggerConfig)
}

func TestRegisterWorkflowTrigger_RejectsInvalidWorkflow(t *testing.T) {
	reg := NewRegistry(slog.Default())
	reg.RegisterTrigger(&fakeTriggerHandler{triggerType: models.TriggerTypeManual})

	workflow := testutil.CreateTestWorkflow()
	workflow.Name = "x" // violates min=3

	err := reg.RegisterWorkflowTrigger(context.Background(), workflow)
	require.Error(t, err)
}

func TestUnregisterWorkflow_AllHandlers(t *testing.T) {
	reg := NewRegistry(slog.Default())
	webhookHandler := &fakeTriggerHandler{triggerType: models.TriggerTypeWebhook}
	scheduleHandler := &fakeTriggerHandler{triggerType: models.TriggerTypeSchedule}
	reg.RegisterTrigger(webhookHandler)
	reg.RegisterTrigger(scheduleHandler)

	reg.UnregisterWorkflow(context.Background(), "wf-1")

	assert.Equal(t, []string{"wf-1"}, webhookHandler.unregistered)
	assert.Equal(t, []string{"wf-1"}, scheduleHandler.unregistered)
}

func TestClose_ClosesClosers(t *testing.T) {
	reg := NewRegistry(slog.Default())
	handler := &fakeTriggerHandler{triggerType: models.TriggerTypeSchedule}
	reg.RegisterTrigger(handler)

	reg.Close(context.Background())
	assert.True(t, handler.closed)
}

func TestValidateTriggerConfig(t *testing.T) {
	tests := []struct {
		name        string
		triggerType models.TriggerType
		config      map[string]any
		wantErr     bool
	}{
		{"manual empty", models.TriggerTypeManual, nil, false},
		{"webhook with path", models.TriggerTypeWebhook, map[string]any{"path": "/x"}, false},
		{"webhook missing path", models.TriggerTypeWebhook, map[string]any{}, true},
		{"webhook empty path", models.TriggerTypeWebhook, map[string]any{"path": ""}, true},
		{"schedule cron", models.TriggerTypeSchedule, map[string]any{"cron": "* * * * *"}, false},
		{"schedule numeric interval", models.TriggerTypeSchedule, map[string]any{"interval": float64(60)}, false},
		{"schedule string interval", models.TriggerTypeSchedule, map[string]any{"interval": "1h"}, false},
		{"schedule zero interval", models.TriggerTypeSchedule, map[string]any{"interval": float64(0)}, true},
		{"push mail with user", models.TriggerTypePushMail, map[string]any{"userId": "u1"}, false},
		{"push mail missing user", models.TriggerTypePushMail, map[string]any{}, true},
		{"push chat empty user", models.TriggerTypePushChat, map[string]any{"userId": ""}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTriggerConfig(tt.triggerType, tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
