package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrRuleNotFound indicates no rule is registered under the given id.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrInvalidRule indicates a rule is missing its id or trigger type.
	ErrInvalidRule = errors.New("invalid rule")
)

// RuleError wraps rule-related errors with the operation and rule id.
type RuleError struct {
	Op     string
	RuleID string
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%s operation failed for rule %s: %v", e.Op, e.RuleID, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

func (e *RuleError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newRuleError(op, ruleID string, err error) *RuleError {
	return &RuleError{Op: op, RuleID: ruleID, Err: err}
}

// IsRuleNotFound checks if an error indicates a rule was not found.
func IsRuleNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound)
}
