package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hookflow/hookflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidTriggerConfig = errors.New("invalid trigger configuration")

// triggerSchemas holds the JSON Schema per trigger type. Structural checks
// live here; semantic checks (cron syntax, credential resolution) live in
// each handler's Validate.
var triggerSchemas = map[models.TriggerType]map[string]any{
	models.TriggerTypeManual: {
		"type": "object",
	},
	models.TriggerTypeWebhook: {
		"type": "object",
		"properties": map[string]any{
			"path":      map[string]any{"type": "string", "minLength": 1},
			"secret":    map[string]any{"type": "string"},
			"webhookId": map[string]any{"type": "string"},
		},
		"required": []any{"path"},
	},
	models.TriggerTypeSchedule: {
		"type": "object",
		"properties": map[string]any{
			"cron": map[string]any{"type": "string"},
			"interval": map[string]any{"oneOf": []any{
				map[string]any{"type": "number", "exclusiveMinimum": 0},
				map[string]any{"type": "string", "minLength": 1},
			}},
			"runImmediately": map[string]any{"type": "boolean"},
			"nextRun":        map[string]any{"type": "string"},
		},
		"not": map[string]any{"required": []any{"cron", "interval"}},
	},
	models.TriggerTypePushMail: pushSchema(),
	models.TriggerTypePushChat: pushSchema(),
}

func pushSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"userId":          map[string]any{"type": "string", "minLength": 1},
			"topic":           map[string]any{"type": "string"},
			"historyId":       map[string]any{"type": "string"},
			"watchExpiration": map[string]any{"type": "string"},
		},
		"required": []any{"userId"},
	}
}

// ValidateTriggerConfig checks the config map against the trigger type's
// JSON Schema.
func ValidateTriggerConfig(triggerType models.TriggerType, config map[string]any) error {
	schema, ok := triggerSchemas[triggerType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTriggerType, triggerType)
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("failed to validate %s trigger config: %w", triggerType, err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, resultError := range result.Errors() {
		details = append(details, resultError.String())
	}

	return fmt.Errorf("%w for %s: %s", ErrInvalidTriggerConfig, triggerType, strings.Join(details, "; "))
}
