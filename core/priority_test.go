package mortar

import (
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func op(text string) Token {
	return Token{Text: text, Kind: KindOperator}
}

func TestPriorityTower(t *testing.T) {
	table := testParser.Table()
	for _, tc := range []struct {
		tok  Token
		want Priority
	}{
		{op(","), Priority{Left: 5, Right: 5}},
		{op("\n"), Priority{Left: 5, Right: 5}},
		{op("="), Priority{Left: 10, Right: 9}},
		{op("->"), Priority{Left: 10, Right: 9}},
		{op("or"), Priority{Left: 15, Right: 16}},
		{op("+"), Priority{Left: 40, Right: 41}},
		{op("*"), Priority{Left: 45, Right: 46}},
		{op("^"), Priority{Left: 50, Right: 49}},
		{op("<>"), Priority{Left: 55, Right: 56}}, // any other operator
		{Token{Text: "x", Kind: KindIdentifier}, Priority{Left: nullaryLeft, Right: nullaryRight}},
		{Token{Text: "$", Kind: KindBoundary}, Priority{Left: -1, Right: -1}},
	} {
		got, err := table.Lookup(tc.tok)
		require.NoError(t, err, "lookup %q", tc.tok.Text)
		assert.Equal(t, tc.want, got, "lookup %q", tc.tok.Text)
	}
}

func TestPriorityBlocks(t *testing.T) {
	table := testParser.Table()
	for text, want := range map[string]Priority{
		"(":    {Left: maxPower, Right: 0},
		")":    {Left: 0, Right: maxPower + 1, Suffix: true},
		"then": {},
		"end":  {Left: 0, Right: maxPower + 1, Suffix: true},
	} {
		got, err := table.Lookup(Token{Text: text, Kind: KindIdentifier})
		require.NoError(t, err)
		assert.Equal(t, want, got, "lookup %q", text)
	}
}

func TestPriorityPrefixEntries(t *testing.T) {
	table := testParser.Table()

	minus := op("-")
	got, err := table.Lookup(minus)
	require.NoError(t, err)
	assert.Equal(t, Priority{Left: 40, Right: 41}, got)

	minus.Prefix = true
	got, err = table.Lookup(minus)
	require.NoError(t, err)
	assert.Equal(t, Priority{Left: maxPower, Right: 46}, got)

	// "not" has no infix form, so the prefix entry covers it either way.
	got, err = table.Lookup(Token{Text: "not", Kind: KindIdentifier})
	require.NoError(t, err)
	assert.Equal(t, Priority{Left: maxPower, Right: 26}, got)
}

func TestPriorityKindSpecificEntryWins(t *testing.T) {
	g := DefaultGrammar()
	g.Priorities["op:+"] = [2]int{70, 71}
	p, err := NewParser(g)
	require.NoError(t, err)
	got, err := p.Table().Lookup(op("+"))
	require.NoError(t, err)
	assert.Equal(t, Priority{Left: 70, Right: 71}, got)
}

func TestPriorityUnknownToken(t *testing.T) {
	_, err := testParser.Table().Lookup(Token{Text: "`", Kind: KindOther})
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestOrder(t *testing.T) {
	table := testParser.Table()
	for _, tc := range []struct {
		a, b Token
		want Order
	}{
		{op("+"), op("*"), OrderOpen},
		{op("*"), op("+"), OrderClose},
		{op("+"), op("+"), OrderClose},
		{op("^"), op("^"), OrderOpen},
		{op(","), op(","), OrderMerge},
		{op("("), op(")"), OrderMerge},
		{boundary(Pos{}), boundary(Pos{}), OrderDone},
	} {
		got, err := table.Order(tc.a, tc.b)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "order(%q, %q)", tc.a.Text, tc.b.Text)
	}
}

func TestPriorityConflictsAreCollected(t *testing.T) {
	g := &Grammar{
		Patterns: DefaultGrammar().Patterns,
		Blocks:   []string{"( )", ") ("},
		Tower:    []Level{{AssocLeft, "+"}, {AssocRight, "+"}},
	}
	_, err := NewPriorityTable(g)
	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	// ")" and "(" swap roles, and "+" sits on two levels.
	assert.Len(t, merr.Errors, 3)
}
