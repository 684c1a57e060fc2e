package chain

import (
	"context"
	"testing"

	"github.com/richinex/llmchain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformApply(t *testing.T) {
	got, err := TransformTrim.Apply("  padded \n")
	require.NoError(t, err)
	assert.Equal(t, "padded", got)

	got, err = TransformJSON.Apply("Sure:\n```json\n{\"tags\": [\"a\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, `{"tags": ["a"]}`, got)

	got, err = TransformThink.Apply("<think>\n  weigh options \n\n pick B\n</think>\nAnswer: B")
	require.NoError(t, err)
	assert.Equal(t, "weigh options\npick B", got)

	got, err = TransformThink.Apply("no reasoning")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = TransformJSON.Apply("no data here")
	assert.True(t, model.IsKind(err, model.KindTranslation))
}

func TestValidateRejectsUnknownTransform(t *testing.T) {
	c := &Chain{Name: "x", Steps: []Step{{ID: "A", Template: "{{input}}", Transform: "upper"}}}
	err := c.Validate()
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindConfiguration))
}

func TestTransformAppliedBeforeBinding(t *testing.T) {
	d := newScripted()
	d.replies["A"] = "Result: {\"n\": 1} thanks"
	d.replies["B"] = "no json at all"
	c := &Chain{Name: "tx", Steps: []Step{
		{ID: "A", Template: "{{input}}", Transform: TransformJSON},
		{ID: "B", Template: "use {{A}}", Transform: TransformJSON},
	}}

	run, err := NewEngine(d).Execute(context.Background(), c, "go")
	require.Error(t, err)
	assert.Equal(t, StateFailed, run.State())

	a, ok := run.Context().Lookup("A")
	require.True(t, ok)
	assert.Equal(t, `{"n": 1}`, a)

	e, ok := model.AsError(err)
	require.True(t, ok)
	assert.Equal(t, model.KindTranslation, e.Kind)
	assert.Equal(t, "B", e.StepID)
}
