package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSubstitutesKnownVars(t *testing.T) {
	t.Parallel()

	vars := MapSource{"email": "a@b.c", "password": "hunter2"}
	assert.Equal(t, "login a@b.c with hunter2", Resolve("login {{email}} with {{ password }}", vars))
}

func TestResolveUnknownVarsBecomeEmpty(t *testing.T) {
	t.Parallel()

	vars := MapSource{}
	got := Resolve("x={{missing}};y={{also.gone}}", vars)
	assert.Equal(t, "x=;y=", got)
}

func TestResolveSinglePassNoDoubleExpansion(t *testing.T) {
	t.Parallel()

	// A variable whose value itself looks like a template must not be
	// expanded again, and re-resolving the output is a no-op.
	vars := MapSource{"a": "{{b}}", "b": "inner"}
	got := Resolve("{{a}}", vars)
	assert.Equal(t, "{{b}}", got)
	assert.Equal(t, got, Resolve(got, MapSource{}))
}

func TestResolveValueRecursesStructurally(t *testing.T) {
	t.Parallel()

	vars := MapSource{"k": "key", "v": "val"}
	in := map[string]any{
		"{{k}}": []any{"{{v}}", 7, nil},
		"plain": true,
	}
	out, ok := ResolveValue(in, vars).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"val", 7, nil}, out["key"])
	assert.Equal(t, true, out["plain"])
}

func TestResolveValueNilInNilOut(t *testing.T) {
	t.Parallel()
	assert.Nil(t, ResolveValue(nil, MapSource{}))
}

func TestCompileTargetsExtracts(t *testing.T) {
	t.Parallel()

	p := CompileTargets("{{a}};{{b}}")
	require.NotNil(t, p)
	got, ok := p.Match("foo;bar")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"a": "foo", "b": "bar"}, got)
}

func TestCompileTargetsNoMatchIsNotAnError(t *testing.T) {
	t.Parallel()

	p := CompileTargets("{{a}};{{b}}")
	require.NotNil(t, p)
	_, ok := p.Match("foo-bar")
	assert.False(t, ok)
}

func TestCompileTargetsWhitespaceRunsAreRelaxed(t *testing.T) {
	t.Parallel()

	p := CompileTargets("{{user}} / {{pass}}")
	require.NotNil(t, p)
	got, ok := p.Match("alice/secret")
	require.True(t, ok)
	assert.Equal(t, "alice", got["user"])
	assert.Equal(t, "secret", got["pass"])
}

func TestCompileTargetsNormalizesPrefixedNames(t *testing.T) {
	t.Parallel()

	p := CompileTargets("{{acct:email}};{{acct:token}}")
	require.NotNil(t, p)
	got, ok := p.Match("a@b.c;tok-1")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"email": "a@b.c", "token": "tok-1"}, got)
}

func TestCompileTargetsWithoutPlaceholders(t *testing.T) {
	t.Parallel()
	assert.Nil(t, CompileTargets("no placeholders here"))
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "email", NormalizeName("email"))
	assert.Equal(t, "email", NormalizeName("acct:email"))
	assert.Equal(t, "", NormalizeName(""))
}
