// Package template provides {{path}} substitution against an execution
// context for action configuration and conditional expressions.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hookflow/hookflow/pkg/models"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// ContextData builds the template root from an execution context. Paths:
// trigger.*, step.<order>.*, vars.*, execution.id, execution.workflow_id.
func ContextData(executionCtx *models.ExecutionContext) map[string]any {
	steps := make(map[string]any, len(executionCtx.StepResults))
	for order, result := range executionCtx.StepResults {
		steps[strconv.Itoa(order)] = result
	}

	return map[string]any{
		"trigger": executionCtx.TriggerData,
		"step":    steps,
		"vars":    executionCtx.Variables,
		"execution": map[string]any{
			"id":          executionCtx.ExecutionID,
			"workflow_id": executionCtx.WorkflowID,
		},
	}
}

// Render substitutes every {{path}} placeholder in the input. An unresolved
// path leaves the literal placeholder in place: templating degrades
// gracefully instead of failing the action.
func Render(input string, data map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])

		value, ok := Lookup(data, path)
		if !ok {
			return match
		}

		return stringify(value)
	})
}

// RenderWithContext renders against the standard execution context roots.
func RenderWithContext(input string, executionCtx *models.ExecutionContext) string {
	return Render(input, ContextData(executionCtx))
}

// RenderConfig returns a copy of the config with every string value
// rendered, recursing through nested maps and slices.
func RenderConfig(config map[string]any, executionCtx *models.ExecutionContext) map[string]any {
	data := ContextData(executionCtx)

	rendered := make(map[string]any, len(config))
	for key, value := range config {
		rendered[key] = renderValue(value, data)
	}

	return rendered
}

func renderValue(value any, data map[string]any) any {
	switch v := value.(type) {
	case string:
		return Render(v, data)
	case map[string]any:
		nested := make(map[string]any, len(v))
		for key, item := range v {
			nested[key] = renderValue(item, data)
		}

		return nested
	case []any:
		nested := make([]any, len(v))
		for i, item := range v {
			nested[i] = renderValue(item, data)
		}

		return nested
	default:
		return value
	}
}

// Lookup resolves a dotted path against nested maps and slices.
func Lookup(data any, path string) (any, bool) {
	current := data

	for part := range strings.SplitSeq(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[part]
			if !ok {
				return nil, false
			}

			current = value
		case []any:
			index, err := strconv.Atoi(part)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}

			current = node[index]
		default:
			return nil, false
		}
	}

	return current, true
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
