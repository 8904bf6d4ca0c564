package rules

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/dukex/operion-automation/pkg/models"
)

// evaluateConditions is the conjunction of every condition. No conditions always match.
func evaluateConditions(conditions []models.Condition, event models.AutomationEvent, logger *slog.Logger) bool {
	for _, condition := range conditions {
		if !evaluateCondition(condition, event, logger) {
			return false
		}
	}

	return true
}

func evaluateCondition(condition models.Condition, event models.AutomationEvent, logger *slog.Logger) bool {
	switch condition.Type {
	case models.ConditionTaskProperty:
		value, found := lookupField(event, condition.Field)

		return compareProperty(condition.Operator, value, found, condition.Value, logger)
	case models.ConditionTimeCondition:
		return compareTime(condition, event.Timestamp, logger)
	default:
		// Unknown condition types pass so that rules authored for newer condition types
		// keep firing.
		logger.Warn("Unknown condition type evaluated as true", "condition_type", condition.Type)

		return true
	}
}

// lookupField resolves a dotted path in the event data. "task_id" falls back to the
// event's task.
func lookupField(event models.AutomationEvent, field string) (any, bool) {
	var current any = event.Data

	for _, part := range strings.Split(field, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			current = nil

			break
		}

		current, ok = m[part]
		if !ok {
			current = nil

			break
		}
	}

	if current == nil {
		if field == "task_id" && event.TaskID != "" {
			return event.TaskID, true
		}

		return nil, false
	}

	return current, true
}

func compareProperty(operator string, actual any, found bool, expected any, logger *slog.Logger) bool {
	switch operator {
	case models.OperatorEquals:
		return found && valuesEqual(actual, expected)
	case models.OperatorNotEquals:
		return !found || !valuesEqual(actual, expected)
	case models.OperatorContains:
		return found && contains(actual, expected)
	case models.OperatorGreaterThan:
		a, okA := toFloat(actual)
		b, okB := toFloat(expected)

		return found && okA && okB && a > b
	case models.OperatorLessThan:
		a, okA := toFloat(actual)
		b, okB := toFloat(expected)

		return found && okA && okB && a < b
	case models.OperatorExists:
		if want, ok := expected.(bool); ok && !want {
			return !found
		}

		return found
	default:
		logger.Warn("Unknown task_property operator", "operator", operator)

		return false
	}
}

func compareTime(condition models.Condition, timestamp time.Time, logger *slog.Logger) bool {
	if condition.Field == "hour" {
		expected, ok := toFloat(condition.Value)
		if !ok {
			logger.Warn("time_condition hour value is not a number", "value", condition.Value)

			return false
		}

		hour := float64(timestamp.UTC().Hour())

		switch condition.Operator {
		case models.OperatorGreaterThan:
			return hour > expected
		case models.OperatorLessThan:
			return hour < expected
		case models.OperatorEquals:
			return hour == expected
		}

		return false
	}

	reference, err := parseTime(condition.Value)
	if err != nil {
		logger.Warn("time_condition value is not a timestamp", "value", condition.Value, "error", err)

		return false
	}

	switch condition.Operator {
	case models.OperatorGreaterThan:
		return timestamp.After(reference)
	case models.OperatorLessThan:
		return timestamp.Before(reference)
	default:
		logger.Warn("Unknown time_condition operator", "operator", condition.Operator)

		return false
	}
}

func parseTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		return time.Parse(time.RFC3339, v)
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", value)
	}
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}

	return reflect.DeepEqual(a, b)
}

func contains(actual, expected any) bool {
	switch v := actual.(type) {
	case string:
		s, ok := expected.(string)

		return ok && strings.Contains(v, s)
	case []any:
		for _, item := range v {
			if valuesEqual(item, expected) {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if item == expected {
				return true
			}
		}
	}

	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
