package mortar

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvLookupWalksParents(t *testing.T) {
	root := NewEnv()
	root.Define("x", IntVal(1))
	child := root.Child()
	child.Define("y", IntVal(2))

	v, ok := child.Lookup("x")
	require.True(t, ok)
	assert.True(t, ValuesEqual(v, IntVal(1)))

	_, ok = root.Lookup("y")
	assert.False(t, ok)
	assert.Same(t, root, child.Parent())
}

func TestEnvShadowing(t *testing.T) {
	root := NewEnv()
	root.Define("x", IntVal(1))
	child := root.Child()
	child.Define("x", IntVal(2))

	v, _ := child.Lookup("x")
	assert.True(t, ValuesEqual(v, IntVal(2)))
	v, _ = root.Lookup("x")
	assert.True(t, ValuesEqual(v, IntVal(1)))
}

// A falsy binding is still a binding.
func TestEnvFalsyValuesAreBound(t *testing.T) {
	env := NewEnv()
	env.Define("f", BoolVal(false))
	env.Define("nothing", AbsentVal())

	v, ok := env.Lookup("f")
	assert.True(t, ok)
	assert.False(t, v.Truthy())

	v, err := env.Resolve("nothing")
	require.NoError(t, err)
	assert.Equal(t, ValAbsent, v.Kind)
}

func TestEnvResolveUnbound(t *testing.T) {
	_, err := NewEnv().Resolve("ghost")
	require.ErrorIs(t, err, ErrUnresolvedSymbol)
	var use *UnresolvedSymbolError
	require.True(t, errors.As(err, &use))
	assert.Equal(t, "ghost", use.Name)
}

func constHandler(v Value) Handler {
	return func(env *Env, node *Inner, args ...Node) (Value, error) {
		return v, nil
	}
}

func TestDispatchFirstMatchWins(t *testing.T) {
	env := NewEnv()
	env.Register(Exact("E + E"), constHandler(IntVal(1)))
	env.Register(MustRegex(`^E . E$`), constHandler(IntVal(2)))

	for sig, want := range map[string]int64{"E + E": 1, "E * E": 2} {
		h, err := env.Dispatch(sig)
		require.NoError(t, err)
		v, err := h(env, nil)
		require.NoError(t, err)
		assert.True(t, ValuesEqual(v, IntVal(want)), "dispatch %q", sig)
	}
}

func TestDispatchUnmatched(t *testing.T) {
	env := NewEnv()
	_, err := env.Dispatch("_ ? E")
	require.ErrorIs(t, err, ErrUnmatchedSignature)

	// A later registration is visible to the same signature.
	env.Register(Exact("_ ? E"), constHandler(IntVal(3)))
	h, err := env.Dispatch("_ ? E")
	require.NoError(t, err)
	v, err := h(env, nil)
	require.NoError(t, err)
	assert.True(t, ValuesEqual(v, IntVal(3)))
}

func TestMacrosAreSharedByChildren(t *testing.T) {
	root := NewEnv()
	child := root.Child().Child()
	child.Register(Exact("E ! E"), constHandler(IntVal(4)))

	_, err := root.Dispatch("E ! E")
	assert.NoError(t, err)
	assert.Same(t, root.Macros(), child.Macros())
	assert.Len(t, root.Macros().Macros(), 1)

	// Separate roots do not share.
	_, err = NewEnv().Dispatch("E ! E")
	assert.ErrorIs(t, err, ErrUnmatchedSignature)
}

func TestRegexGuard(t *testing.T) {
	_, err := NewRegex("(")
	assert.Error(t, err)

	g, err := NewRegex(`^_ \( E \) _$`)
	require.NoError(t, err)
	assert.True(t, g.Match("_ ( E ) _"))
	assert.False(t, g.Match("E ( E ) _"))
	assert.Equal(t, `/^_ \( E \) _$/`, g.String())
	assert.Equal(t, "E + E", Exact("E + E").String())
}

// User macros extend the language at runtime: new bracket forms through the
// registry, new operators through plain bindings.
func TestExtendInterpreter(t *testing.T) {
	interp := NewInterpreter(testParser)
	interp.Base.Register(Exact("_ { E } _"), func(env *Env, node *Inner, args ...Node) (Value, error) {
		return IntVal(int64(len(listify(args[0])))), nil
	})
	interp.Base.Define("<>", NativeVal("<>", func(args []Value) (Value, error) {
		return BoolVal(!ValuesEqual(args[0], args[1])), nil
	}))

	v, err := interp.Evaluate("{a, b, c}")
	require.NoError(t, err)
	assert.True(t, ValuesEqual(v, IntVal(3)))

	v, err = interp.Evaluate("1 <> 2")
	require.NoError(t, err)
	assert.True(t, ValuesEqual(v, BoolVal(true)))

	// Other interpreters are unaffected.
	_, err = Evaluate("{a}", testParser)
	assert.ErrorIs(t, err, ErrUnmatchedSignature)
	_, err = Evaluate("1 <> 2", testParser)
	assert.ErrorIs(t, err, ErrUnresolvedSymbol)
}
