package legal

import (
	"errors"
	"fmt"
	"strings"
)

// Rule names the business rule a ValidationError reports.
type Rule string

const (
	RuleInvalidInput         Rule = "invalid_input"
	RuleDuplicateRole        Rule = "duplicate_role"
	RuleSelfReference        Rule = "self_reference"
	RuleCycle                Rule = "cycle"
	RuleCrossCase            Rule = "cross_case"
	RuleGroupTooSmall        Rule = "group_too_small"
	RuleDuplicateRepresentee Rule = "duplicate_representee"
	RuleInvalidRepresentee   Rule = "invalid_representee"
	RuleRepresentsOwnContact Rule = "represents_own_contact"
	RuleNotAttorney          Rule = "not_attorney"
	RuleNotPrimary           Rule = "not_primary"
	RuleGroupMember          Rule = "group_member"
	RuleRepresentedByGroup   Rule = "represented_by_group"
)

// NotFoundError reports a case, contact, role or group id that does not exist.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ValidationError reports the specific rule a write would break. No data
// has been written when it is returned.
type ValidationError struct {
	Rule    Rule
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

// Invalid builds a ValidationError with a formatted message.
func Invalid(rule Rule, format string, args ...any) error {
	return &ValidationError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// IntegrityRepairNeeded carries audit findings. It is only produced by the
// diagnostic path and never blocks a write.
type IntegrityRepairNeeded struct {
	CaseID     int64
	Violations []Violation
}

func (e *IntegrityRepairNeeded) Error() string {
	checks := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		checks = append(checks, v.Check)
	}
	return fmt.Sprintf("case %d needs repair: %d violation(s) [%s]", e.CaseID, len(e.Violations), strings.Join(checks, ", "))
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RuleOf returns the rule of a wrapped ValidationError, or "".
func RuleOf(err error) Rule {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Rule
	}
	return ""
}
