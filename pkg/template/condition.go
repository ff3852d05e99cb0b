package template

import (
	"strconv"
	"strings"
)

// EvaluateCondition renders the expression against the data and evaluates the
// result. Supported forms, checked in order: binary comparison (==, !=, >=,
// <=, >, <) with numeric coercion when both sides parse as numbers, otherwise
// bare truthiness ("true"/"false"/non-empty). An expression left with
// unresolved placeholders compares as the literal text.
func EvaluateCondition(expression string, data map[string]any) bool {
	rendered := strings.TrimSpace(Render(expression, data))
	if rendered == "" {
		return true
	}

	for _, op := range []string{"==", "!=", ">=", "<=", ">", "<"} {
		left, right, found := strings.Cut(rendered, op)
		if !found {
			continue
		}

		return compare(strings.TrimSpace(left), strings.TrimSpace(right), op)
	}

	return truthy(rendered)
}

func compare(left, right, op string) bool {
	leftNum, leftErr := strconv.ParseFloat(left, 64)
	rightNum, rightErr := strconv.ParseFloat(right, 64)

	if leftErr == nil && rightErr == nil {
		switch op {
		case "==":
			return leftNum == rightNum
		case "!=":
			return leftNum != rightNum
		case ">=":
			return leftNum >= rightNum
		case "<=":
			return leftNum <= rightNum
		case ">":
			return leftNum > rightNum
		case "<":
			return leftNum < rightNum
		}
	}

	left = strings.Trim(left, `"'`)
	right = strings.Trim(right, `"'`)

	switch op {
	case "==":
		return left == right
	case "!=":
		return left != right
	default:
		return false
	}
}

func truthy(value string) bool {
	if parsed, err := strconv.ParseBool(value); err == nil {
		return parsed
	}

	if num, err := strconv.ParseFloat(value, 64); err == nil {
		return num != 0
	}

	return value != ""
}
