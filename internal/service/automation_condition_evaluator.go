package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mailrelay/pulsewire/internal/domain"
	"github.com/mailrelay/pulsewire/pkg/renderer"
)

// ConditionEvaluator evaluates an automation step's AND-joined condition set
// against a contact in memory, via pkg/renderer's Value/LookupPath — the
// same dotted-path walker the template renderer uses, so a branch path's
// "custom_string_1" and a template's {{ contact.custom_string_1 }} resolve
// the same field the same way.
type ConditionEvaluator struct {
	messageRepo domain.MessageHistoryRepository
}

// NewConditionEvaluator builds a ConditionEvaluator. messageRepo backs the
// opened_email/clicked_email operators; it may be nil if those operators are
// never exercised by the caller.
func NewConditionEvaluator(messageRepo domain.MessageHistoryRepository) *ConditionEvaluator {
	return &ConditionEvaluator{messageRepo: messageRepo}
}

// Evaluate reports whether contact satisfies every condition (AND). An empty
// condition set is vacuously true.
func (e *ConditionEvaluator) Evaluate(ctx context.Context, workspaceID string, contact *domain.Contact, conditions []*domain.AutomationCondition) (bool, error) {
	if len(conditions) == 0 {
		return true, nil
	}
	if contact == nil {
		return false, nil
	}

	contactMap, err := contact.ToMapOfAny()
	if err != nil {
		return false, fmt.Errorf("failed to flatten contact: %w", err)
	}
	root := renderer.FromAny(map[string]interface{}(contactMap))

	for _, cond := range conditions {
		ok, err := e.evaluateOne(ctx, workspaceID, contact, root, cond)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *ConditionEvaluator) evaluateOne(ctx context.Context, workspaceID string, contact *domain.Contact, root renderer.Value, cond *domain.AutomationCondition) (bool, error) {
	switch cond.Operator {
	case domain.ConditionHasTag:
		return contact.HasTag(fmt.Sprintf("%v", cond.Value)), nil
	case domain.ConditionOpenedEmail:
		return e.checkMessageEvent(ctx, workspaceID, contact.Email, cond.Value, messageOpened)
	case domain.ConditionClickedEmail:
		return e.checkMessageEvent(ctx, workspaceID, contact.Email, cond.Value, messageClicked)
	}

	fv, _ := renderer.LookupPath(root, cond.Field)
	return compareOperator(cond.Operator, fv, cond.Value, cond.Values)
}

type messageEventKind int

const (
	messageOpened messageEventKind = iota
	messageClicked
)

// checkMessageEvent reports whether the contact has any message history
// entry with the relevant event timestamp set, optionally restricted to a
// specific template when value names one.
func (e *ConditionEvaluator) checkMessageEvent(ctx context.Context, workspaceID, email string, value interface{}, kind messageEventKind) (bool, error) {
	if e.messageRepo == nil {
		return false, fmt.Errorf("opened_email/clicked_email condition requires a message history repository")
	}

	templateID, _ := value.(string)

	const pageSize = 100
	offset := 0
	for {
		messages, total, err := e.messageRepo.GetByContact(ctx, workspaceID, email, pageSize, offset)
		if err != nil {
			return false, fmt.Errorf("failed to load message history: %w", err)
		}
		for _, m := range messages {
			if templateID != "" && m.TemplateID != templateID {
				continue
			}
			switch kind {
			case messageOpened:
				if m.OpenedAt != nil {
					return true, nil
				}
			case messageClicked:
				if m.ClickedAt != nil {
					return true, nil
				}
			}
		}
		offset += len(messages)
		if offset >= total || len(messages) == 0 {
			return false, nil
		}
	}
}

// compareOperator applies the scalar operators (everything except has_tag/
// opened_email/clicked_email, which need more than the field value) to fv.
func compareOperator(op domain.ConditionOperator, fv renderer.Value, value interface{}, values []interface{}) (bool, error) {
	switch op {
	case domain.ConditionIsSet:
		return fv.IsSet(), nil
	case domain.ConditionIsNotSet:
		return !fv.IsSet(), nil
	case domain.ConditionEquals:
		return fv.String() == fmt.Sprintf("%v", value), nil
	case domain.ConditionNotEquals:
		return fv.String() != fmt.Sprintf("%v", value), nil
	case domain.ConditionContains:
		return strings.Contains(fv.String(), fmt.Sprintf("%v", value)), nil
	case domain.ConditionNotContains:
		return !strings.Contains(fv.String(), fmt.Sprintf("%v", value)), nil
	case domain.ConditionGreaterThan:
		return compareNumericOrLexical(fv.String(), fmt.Sprintf("%v", value), func(a, b float64) bool { return a > b }, func(a, b string) bool { return a > b }), nil
	case domain.ConditionLessThan:
		return compareNumericOrLexical(fv.String(), fmt.Sprintf("%v", value), func(a, b float64) bool { return a < b }, func(a, b string) bool { return a < b }), nil
	case domain.ConditionInList:
		target := fv.String()
		for _, v := range values {
			if fmt.Sprintf("%v", v) == target {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported condition operator: %s", op)
	}
}

// compareNumericOrLexical compares a and b as floats when both parse as
// numbers, falling back to lexical string comparison otherwise — which
// covers ISO-8601 timestamps ("2026-01-02" sorts correctly as a string too.
func compareNumericOrLexical(a, b string, numCmp func(a, b float64) bool, strCmp func(a, b string) bool) bool {
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	if aerr == nil && berr == nil {
		return numCmp(af, bf)
	}
	return strCmp(a, b)
}
