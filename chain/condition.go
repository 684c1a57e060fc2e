package chain

import (
	"strings"

	"github.com/richinex/llmchain/model"
)

// Operator is the comparison a Condition performs.
type Operator string

const (
	OpEquals   Operator = "="
	OpContains Operator = "contains"
)

// Condition gates a step on the value of an earlier variable.
type Condition struct {
	Name   string
	Op     Operator
	Value  string
	Negate bool
}

// ParseCondition parses "[!]name=value" or "[!]name contains value".
// Surrounding quotes on the value are stripped.
func ParseCondition(s string) (Condition, error) {
	expr := strings.TrimSpace(s)
	if expr == "" {
		return Condition{}, model.Errorf(model.KindConfiguration, "empty condition")
	}

	var c Condition
	if strings.HasPrefix(expr, "!") {
		c.Negate = true
		expr = strings.TrimSpace(expr[1:])
	}

	if name, value, ok := strings.Cut(expr, "="); ok && !strings.ContainsAny(strings.TrimSpace(name), " \t") {
		c.Name, c.Op, c.Value = strings.TrimSpace(name), OpEquals, unquote(strings.TrimSpace(value))
	} else if name, value, ok := cutWord(expr, string(OpContains)); ok {
		c.Name, c.Op, c.Value = name, OpContains, unquote(value)
	} else {
		return Condition{}, model.Errorf(model.KindConfiguration, "condition %q: expected name=value or name contains value", s)
	}

	if c.Name == "" || strings.ContainsAny(c.Name, " \t") {
		return Condition{}, model.Errorf(model.KindConfiguration, "condition %q: invalid variable name", s)
	}
	return c, nil
}

// Evaluate tests the condition. The variable must be bound or be a system
// variable; an unbound name is an error, never false.
func (c Condition) Evaluate(ctx *ExecutionContext, sys SystemVars) (bool, error) {
	actual, err := lookup(c.Name, ctx, sys)
	if err != nil {
		return false, err
	}

	var result bool
	switch c.Op {
	case OpContains:
		result = strings.Contains(actual, c.Value)
	default:
		result = actual == c.Value
	}
	if c.Negate {
		result = !result
	}
	return result, nil
}

func (c Condition) String() string {
	neg := ""
	if c.Negate {
		neg = "!"
	}
	if c.Op == OpContains {
		return neg + c.Name + " contains " + c.Value
	}
	return neg + c.Name + "=" + c.Value
}

// cutWord splits s around the first occurrence of a whitespace-delimited
// keyword that has text on both sides.
func cutWord(s, word string) (before, after string, found bool) {
	sep := " " + word + " "
	idx := strings.Index(s, sep)
	if idx < 0 {
		return "", "", false
	}
	before = strings.TrimSpace(s[:idx])
	after = strings.TrimSpace(s[idx+len(sep):])
	if before == "" || after == "" {
		return "", "", false
	}
	return before, after, true
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
