package access

import (
	"fmt"
	"strings"
)

// Operator compares a context field against a condition value.
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "not_equals"
	OpContains  Operator = "contains"
	OpIn        Operator = "in"
	OpNotIn     Operator = "not_in"
)

// SelfValue is the synthetic condition value meaning "the acting user".
// A condition on field "patientId" with value "self" resolves to the
// requesting user's id rather than a literal.
const SelfValue = "self"

// Condition is a typed predicate over the access context: a dot-addressable
// field path, an operator, and a comparison value.
type Condition struct {
	Field    string      `json:"field"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`
}

// Validate checks the condition is structurally sound.
func (c Condition) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("condition field cannot be empty")
	}
	switch c.Operator {
	case OpEquals, OpNotEquals, OpContains, OpIn, OpNotIn:
	default:
		return fmt.Errorf("invalid operator: %s", c.Operator)
	}
	return nil
}

// Evaluate resolves the condition's field against the context and applies
// the operator. The patientId/self alias is resolved explicitly here: the
// context value becomes the acting user id and the comparison value becomes
// the user id too, so "patientId equals self" holds for the owner.
func (c Condition) Evaluate(ctx Context) bool {
	fieldValue, compareValue := c.resolve(ctx)

	switch c.Operator {
	case OpEquals:
		return fieldValue == compareValue
	case OpNotEquals:
		return fieldValue != compareValue
	case OpContains:
		fs, ok1 := fieldValue.(string)
		vs, ok2 := compareValue.(string)
		return ok1 && ok2 && strings.Contains(fs, vs)
	case OpIn:
		return valueInList(compareValue, fieldValue)
	case OpNotIn:
		return !valueInList(compareValue, fieldValue)
	default:
		return false
	}
}

// resolve returns the context-side and condition-side values for comparison.
func (c Condition) resolve(ctx Context) (fieldValue, compareValue interface{}) {
	compareValue = c.Value

	if c.Value == SelfValue && (c.Field == "patientId" || strings.HasSuffix(c.Field, ".reference")) {
		compareValue = ctx.UserID
		raw := ctx.Lookup(c.Field)
		if c.Field == "patientId" && raw == nil {
			// The owner alias: treat a missing patientId as the acting user.
			return ctx.UserID, compareValue
		}
		// FHIR-style references arrive as "Patient/<id>"; strip the prefix.
		if s, ok := raw.(string); ok {
			if idx := strings.LastIndex(s, "/"); idx >= 0 {
				return s[idx+1:], compareValue
			}
			return s, compareValue
		}
		return raw, compareValue
	}

	return ctx.Lookup(c.Field), compareValue
}

func valueInList(list, v interface{}) bool {
	switch items := list.(type) {
	case []interface{}:
		for _, item := range items {
			if item == v {
				return true
			}
		}
	case []string:
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, item := range items {
			if item == s {
				return true
			}
		}
	}
	return false
}
