package mortar

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeKinds(t *testing.T) {
	tokens, err := testParser.Tokenize(`let s = "a \"b\"" # note
  in f(s, 42) end`)
	require.NoError(t, err)

	want := []Token{
		{Text: "$", Kind: KindBoundary},
		{Text: "let", Kind: KindIdentifier},
		{Text: "s", Kind: KindIdentifier},
		{Text: "=", Kind: KindOperator},
		{Text: `"a \"b\""`, Kind: KindString},
		{Text: "\n", Kind: KindOperator},
		{Text: "in", Kind: KindIdentifier},
		{Text: "f", Kind: KindIdentifier},
		{Text: "(", Kind: KindOperator},
		{Text: "s", Kind: KindIdentifier},
		{Text: ",", Kind: KindOperator},
		{Text: "42", Kind: KindNumber},
		{Text: ")", Kind: KindOperator},
		{Text: "end", Kind: KindIdentifier},
		{Text: "$", Kind: KindBoundary},
	}
	if diff := cmp.Diff(want, tokens, cmpopts.IgnoreFields(Token{}, "Pos")); diff != "" {
		t.Fatalf("tokens (-want +got):\n%s", diff)
	}
}

func TestTokenizePositions(t *testing.T) {
	tokens, err := testParser.Tokenize("a +\n  bc")
	require.NoError(t, err)
	require.Len(t, tokens, 6)
	assert.Equal(t, Pos{Offset: 0, Line: 1, Col: 1}, tokens[1].Pos)
	assert.Equal(t, Pos{Offset: 2, Line: 1, Col: 3}, tokens[2].Pos)
	assert.Equal(t, Pos{Offset: 3, Line: 1, Col: 4}, tokens[3].Pos) // the newline
	assert.Equal(t, Pos{Offset: 6, Line: 2, Col: 3}, tokens[4].Pos)
	assert.Equal(t, Pos{Offset: 8, Line: 2, Col: 5}, tokens[5].Pos)
	assert.Equal(t, "2:3", tokens[4].Pos.String())
}

func TestTokenizePrefix(t *testing.T) {
	for _, tc := range []struct {
		input  string
		prefix []bool // one per operator token, in order
	}{
		{"a - b", []bool{false}},
		{"a - -b", []bool{false, true}},
		{"-a", []bool{false}},
		{"(a) - b", []bool{false, false, false}},
		{"f(-a)", []bool{false, true, false}},
		{"[a] -b", []bool{false, false, false}},
	} {
		tokens, err := testParser.Tokenize(tc.input)
		require.NoError(t, err)
		var got []bool
		for _, tok := range tokens {
			if tok.Kind == KindOperator {
				got = append(got, tok.Prefix)
			}
		}
		assert.Equal(t, tc.prefix, got, "tokenize %q", tc.input)
	}
}

func TestTokenizeOtherCharacters(t *testing.T) {
	tokens, err := testParser.Tokenize("a ` b")
	require.NoError(t, err)
	require.Len(t, tokens, 5)
	assert.Equal(t, KindOther, tokens[2].Kind)
	assert.Equal(t, "`", tokens[2].Text)
}

func TestTokenizeEmpty(t *testing.T) {
	tokens, err := testParser.Tokenize("")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, KindBoundary, tokens[0].Kind)
	assert.Equal(t, KindBoundary, tokens[1].Kind)
}

// Capture groups inside a pattern must not shift the kind of later patterns.
func TestTokenizeNestedGroups(t *testing.T) {
	g := &Grammar{
		Patterns: []Pattern{
			{Kind: KindOperator, Expr: `(\+)|(-)`},
			{Kind: KindNumber, Expr: `([0-9])+`},
			{Kind: KindIdentifier, Expr: `[a-z]+`},
		},
		Priorities: map[string][2]int{"type:num": {nullaryLeft, nullaryRight}, "type:id": {nullaryLeft, nullaryRight}},
		Tower:      []Level{{AssocLeft, "+ -"}},
	}
	p, err := NewParser(g)
	require.NoError(t, err)
	tokens, err := p.Tokenize("12 + ab - 3")
	require.NoError(t, err)
	var kinds []Kind
	for _, tok := range tokens[1 : len(tokens)-1] {
		kinds = append(kinds, tok.Kind)
	}
	assert.Equal(t, []Kind{KindNumber, KindOperator, KindIdentifier, KindOperator, KindNumber}, kinds)
}

func TestTokenizeUnmatchedText(t *testing.T) {
	g := DefaultGrammar()
	var kept []Pattern
	for _, pat := range g.Patterns {
		if pat.Kind != KindOther {
			kept = append(kept, pat)
		}
	}
	g.Patterns = kept
	p, err := NewParser(g)
	require.NoError(t, err)

	tokens, err := p.Tokenize("1 ` 2 '")
	require.NoError(t, err)
	require.Len(t, tokens, 6)
	assert.Equal(t, Token{Text: "`", Kind: KindOther, Pos: Pos{Offset: 2, Line: 1, Col: 3}}, tokens[2])
	assert.Equal(t, Token{Text: "'", Kind: KindOther, Pos: Pos{Offset: 6, Line: 1, Col: 7}}, tokens[4])

	_, err = p.ParseTree("1 ` 2")
	assert.ErrorIs(t, err, ErrUnknownOperator)
	_, err = Evaluate("a `b", p)
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestKindText(t *testing.T) {
	for kind, name := range kindNames {
		text, err := kind.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, name, string(text))

		var back Kind
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, kind, back)
	}
	var k Kind
	assert.Error(t, k.UnmarshalText([]byte("bogus")))
}
