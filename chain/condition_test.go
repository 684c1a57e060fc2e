package chain

import (
	"testing"

	"github.com/richinex/llmchain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		in   string
		want Condition
	}{
		{"A=none", Condition{Name: "A", Op: OpEquals, Value: "none"}},
		{"!A=none", Condition{Name: "A", Op: OpEquals, Value: "none", Negate: true}},
		{" ! A = none ", Condition{Name: "A", Op: OpEquals, Value: "none", Negate: true}},
		{`A="two words"`, Condition{Name: "A", Op: OpEquals, Value: "two words"}},
		{"A=", Condition{Name: "A", Op: OpEquals, Value: ""}},
		{"A contains graph", Condition{Name: "A", Op: OpContains, Value: "graph"}},
		{"!A contains 'x=y'", Condition{Name: "A", Op: OpContains, Value: "x=y", Negate: true}},
		{"sys.os=linux", Condition{Name: "sys.os", Op: OpEquals, Value: "linux"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCondition(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseConditionRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "!", "A", "=x", "a b=c", "A contains", "contains x"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseCondition(in)
			require.Error(t, err)
			assert.True(t, model.IsKind(err, model.KindConfiguration))
		})
	}
}

func TestConditionEvaluate(t *testing.T) {
	ctx := bound(t, "A", "none", "B", "a graph of things")

	tests := []struct {
		cond string
		want bool
	}{
		{"A=none", true},
		{"A=None", false},
		{"!A=none", false},
		{"B contains graph", true},
		{"B contains Graph", false},
		{"!B contains tree", true},
	}
	for _, tt := range tests {
		t.Run(tt.cond, func(t *testing.T) {
			c, err := ParseCondition(tt.cond)
			require.NoError(t, err)
			got, err := c.Evaluate(ctx, fixedSys())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditionOnUnboundNameIsAnError(t *testing.T) {
	c, err := ParseCondition("!missing=x")
	require.NoError(t, err)

	got, err := c.Evaluate(bound(t), fixedSys())
	require.Error(t, err)
	assert.False(t, got)
	assert.True(t, model.IsKind(err, model.KindUnresolvedVariable))
}

func TestConditionString(t *testing.T) {
	c, err := ParseCondition("!A contains b")
	require.NoError(t, err)
	assert.Equal(t, "!A contains b", c.String())
}
