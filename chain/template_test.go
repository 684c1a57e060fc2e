package chain

import (
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/richinex/llmchain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

func fixedSys() SystemVars {
	return SystemVars{Now: func() time.Time { return fixedTime }}
}

func bound(t *testing.T, kv ...string) *ExecutionContext {
	t.Helper()
	ctx := NewExecutionContext()
	for i := 0; i+1 < len(kv); i += 2 {
		require.NoError(t, ctx.Bind(kv[i], kv[i+1]))
	}
	return ctx
}

func TestResolveSubstitutesBoundNames(t *testing.T) {
	ctx := bound(t, "input", "graphs", "A", "nodes")

	out, err := Resolve("topic={{input}} then {{ A }}.", ctx, fixedSys())
	require.NoError(t, err)
	assert.Equal(t, "topic=graphs then nodes.", out)
}

func TestResolveDoesNotReexpandValues(t *testing.T) {
	ctx := bound(t, "A", "{{B}}", "B", "never")

	out, err := Resolve("x {{A}} y", ctx, fixedSys())
	require.NoError(t, err)
	assert.Equal(t, "x {{B}} y", out)
}

func TestResolveUnboundNameFails(t *testing.T) {
	_, err := Resolve("hello {{missing}}", bound(t), fixedSys())
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindUnresolvedVariable))
	assert.Contains(t, err.Error(), "missing")
}

func TestResolveUnterminatedPlaceholderIsLiteral(t *testing.T) {
	ctx := bound(t, "a", "1")

	out, err := Resolve("{{a}} and {{b", ctx, fixedSys())
	require.NoError(t, err)
	assert.Equal(t, "1 and {{b", out)

	out, err = Resolve("no open }} here", ctx, fixedSys())
	require.NoError(t, err)
	assert.Equal(t, "no open }} here", out)
}

func TestResolveSystemVariables(t *testing.T) {
	out, err := Resolve("{{sys.date}} {{sys.time}} {{sys.os}}", nil, fixedSys())
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05 14:07:09 "+runtime.GOOS, out)

	out, err = Resolve("{{sys.timestamp}}", nil, fixedSys())
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(fixedTime.Unix(), 10), out)

	out, err = Resolve("{{sys.datetime}}|{{sys.arch}}", nil, fixedSys())
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05 14:07:09|"+runtime.GOARCH, out)
}

func TestResolveUnknownSystemVariable(t *testing.T) {
	_, err := Resolve("{{sys.nope}}", nil, fixedSys())
	assert.True(t, model.IsKind(err, model.KindUnresolvedVariable))
}

func TestSystemVarsAlwaysAnswer(t *testing.T) {
	sys := SystemVars{}
	for _, name := range SystemNames() {
		v, ok := sys.Lookup(name)
		assert.True(t, ok, name)
		assert.NotEmpty(t, v, name)
	}
}

func TestReferences(t *testing.T) {
	refs := References("{{a}} {{ b }} {{a}} {{sys.date}} {{open")
	assert.Equal(t, []string{"a", "b", "sys.date"}, refs)
	assert.Empty(t, References("plain"))
}

func TestExecutionContextIsWriteOnce(t *testing.T) {
	ctx := NewExecutionContext()
	require.NoError(t, ctx.Bind("A", "1"))
	err := ctx.Bind("A", "2")
	require.Error(t, err)

	v, ok := ctx.Lookup("A")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, []string{"A"}, ctx.Names())
	assert.Equal(t, 1, ctx.Len())
}
