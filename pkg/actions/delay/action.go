// Package delay provides the delay action.
package delay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hookflow/hookflow/pkg/models"
)

var ErrDurationRequired = errors.New("delay requires a positive duration")

type Action struct{}

func NewAction() *Action { return &Action{} }

func (a *Action) ValidateConfig(config map[string]any) error {
	_, err := parseDuration(config)
	return err
}

// Execute sleeps for the configured duration, waking early if the execution
// is cancelled.
func (a *Action) Execute(ctx context.Context, _ models.ExecutionContext, config map[string]any, logger *slog.Logger) (any, error) {
	duration, err := parseDuration(config)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Delaying", "duration", duration.String())

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	return map[string]any{"delayed_ms": duration.Milliseconds()}, nil
}

// parseDuration accepts either a Go duration string ("1m30s") or a plain
// number of milliseconds.
func parseDuration(config map[string]any) (time.Duration, error) {
	switch v := config["duration"].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("%w: %q", ErrDurationRequired, v)
		}

		return d, nil
	case float64:
		if v <= 0 {
			return 0, ErrDurationRequired
		}

		return time.Duration(v) * time.Millisecond, nil
	case int:
		if v <= 0 {
			return 0, ErrDurationRequired
		}

		return time.Duration(v) * time.Millisecond, nil
	default:
		return 0, ErrDurationRequired
	}
}
