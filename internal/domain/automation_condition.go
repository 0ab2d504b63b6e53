package domain

import "fmt"

// ConditionOperator names one of the comparisons an automation step's
// condition set can perform. Unlike the segment TreeNode's operator
// vocabulary (evaluated as SQL against the contacts/contact_lists/
// contact_timeline tables), these are evaluated in memory against a
// single contact via pkg/renderer's Value/LookupPath.
type ConditionOperator string

const (
	ConditionEquals       ConditionOperator = "equals"
	ConditionNotEquals    ConditionOperator = "not_equals"
	ConditionContains     ConditionOperator = "contains"
	ConditionNotContains  ConditionOperator = "not_contains"
	ConditionGreaterThan  ConditionOperator = "greater_than"
	ConditionLessThan     ConditionOperator = "less_than"
	ConditionIsSet        ConditionOperator = "is_set"
	ConditionIsNotSet     ConditionOperator = "is_not_set"
	ConditionInList       ConditionOperator = "in_list"
	ConditionHasTag       ConditionOperator = "has_tag"
	ConditionOpenedEmail  ConditionOperator = "opened_email"
	ConditionClickedEmail ConditionOperator = "clicked_email"
)

// IsValid reports whether the operator is one of the twelve named above.
func (o ConditionOperator) IsValid() bool {
	switch o {
	case ConditionEquals, ConditionNotEquals, ConditionContains, ConditionNotContains,
		ConditionGreaterThan, ConditionLessThan, ConditionIsSet, ConditionIsNotSet,
		ConditionInList, ConditionHasTag, ConditionOpenedEmail, ConditionClickedEmail:
		return true
	default:
		return false
	}
}

// needsValue reports whether the operator requires Value/Values to be
// populated. is_set/is_not_set check presence alone; has_tag/opened_email/
// clicked_email take their argument from Value but tolerate an empty one
// (opened_email/clicked_email with no Value means "ever").
func (o ConditionOperator) needsValue() bool {
	switch o {
	case ConditionIsSet, ConditionIsNotSet, ConditionOpenedEmail, ConditionClickedEmail:
		return false
	default:
		return true
	}
}

// AutomationCondition is a single field/operator/value check in a branch
// path or filter node's AND-joined condition set. Field is a dotted path
// looked up on the contact via pkg/renderer's LookupPath (e.g.
// "custom_string_1" or "external_id").
type AutomationCondition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    interface{}       `json:"value,omitempty"`
	Values   []interface{}     `json:"values,omitempty"` // used by in_list
}

// Validate checks the condition is well-formed: a non-empty field, one of
// the twelve known operators, and a value/values payload appropriate to
// that operator.
func (c *AutomationCondition) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("condition field is required")
	}
	if !c.Operator.IsValid() {
		return fmt.Errorf("invalid condition operator: %s", c.Operator)
	}
	if c.Operator == ConditionInList && len(c.Values) == 0 {
		return fmt.Errorf("in_list condition requires 'values'")
	}
	if c.Operator.needsValue() && c.Operator != ConditionInList && c.Value == nil {
		return fmt.Errorf("%s condition requires 'value'", c.Operator)
	}
	return nil
}
