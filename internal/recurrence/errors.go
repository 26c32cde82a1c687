package recurrence

import (
	"errors"
	"fmt"
)

// RuleError reports why a recurrence rule was rejected.
type RuleError struct {
	Rule   string
	Reason string
	Err    error
}

func (e *RuleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid recurrence rule %q: %s: %v", e.Rule, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid recurrence rule %q: %s", e.Rule, e.Reason)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// IsRuleError reports whether err is or wraps a *RuleError.
func IsRuleError(err error) bool {
	var re *RuleError
	return errors.As(err, &re)
}
