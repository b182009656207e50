// Package policyengine implements the Policy Engine hook :
// Evaluate(action, context) against a configured rule set, returning
// allow/deny plus a violation record on denial.
package policyengine

import (
	"fmt"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/policy"
)

// Effect is a rule's outcome when it matches.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Operator is a condition's comparison against a context field.
type Operator string

const (
	OpEquals      Operator = "eq"
	OpNotEquals   Operator = "ne"
	OpGreaterThan Operator = "gt"
	OpGreaterOrEq Operator = "gte"
	OpLessThan    Operator = "lt"
	OpLessOrEq    Operator = "lte"
	OpContains    Operator = "contains"
	OpExists      Operator = "exists"
)

// Condition tests one field of the evaluation context.
type Condition struct {
	Field    string      `yaml:"field" json:"field"`
	Operator Operator    `yaml:"operator" json:"operator"`
	Value    interface{} `yaml:"value" json:"value"`
}

// Rule is one named action's guard: all Conditions must match for the rule
// to apply, at which point its Effect and Reason decide the outcome.
type Rule struct {
	Name       string      `yaml:"name" json:"name"`
	Action     policy.Action `yaml:"action" json:"action"`
	Conditions []Condition `yaml:"conditions" json:"conditions"`
	Effect     Effect      `yaml:"effect" json:"effect"`
	Reason     string      `yaml:"reason" json:"reason"`
}

// Matches reports whether every condition in the rule holds against ctx.
// An empty Conditions list always matches (an unconditional rule for the
// action).
func (r Rule) Matches(ctx map[string]interface{}) bool {
	for _, c := range r.Conditions {
		if !c.matches(ctx) {
			return false
		}
	}
	return true
}

func (c Condition) matches(ctx map[string]interface{}) bool {
	val, ok := ctx[c.Field]
	if c.Operator == OpExists {
		return ok
	}
	if !ok {
		return false
	}
	switch c.Operator {
	case OpEquals:
		return fmt.Sprint(val) == fmt.Sprint(c.Value)
	case OpNotEquals:
		return fmt.Sprint(val) != fmt.Sprint(c.Value)
	case OpGreaterThan, OpGreaterOrEq, OpLessThan, OpLessOrEq:
		a, aok := asFloat(val)
		b, bok := asFloat(c.Value)
		if !aok || !bok {
			return false
		}
		switch c.Operator {
		case OpGreaterThan:
			return a > b
		case OpGreaterOrEq:
			return a >= b
		case OpLessThan:
			return a < b
		default:
			return a <= b
		}
	case OpContains:
		s, ok := val.(string)
		if !ok {
			return false
		}
		sub := fmt.Sprint(c.Value)
		return len(s) >= len(sub) && indexOf(s, sub) >= 0
	default:
		return false
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
