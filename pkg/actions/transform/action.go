// Package transform provides the transform action: its templated config is
// the output, so workflows can reshape trigger and step data between steps.
package transform

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hookflow/hookflow/pkg/models"
)

var ErrTemplateRequired = errors.New("transform requires a template")

type Action struct{}

func NewAction() *Action { return &Action{} }

func (a *Action) ValidateConfig(config map[string]any) error {
	if _, ok := config["template"]; !ok {
		return ErrTemplateRequired
	}

	return nil
}

// Execute returns the already substituted template value. Placeholder
// resolution happened before dispatch, so a string, map or list template all
// arrive here fully rendered.
func (a *Action) Execute(_ context.Context, _ models.ExecutionContext, config map[string]any, _ *slog.Logger) (any, error) {
	template, ok := config["template"]
	if !ok {
		return nil, ErrTemplateRequired
	}

	return template, nil
}
