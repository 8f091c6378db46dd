package mortar

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

type Kind int

const (
	KindOperator Kind = iota
	KindIdentifier
	KindNumber
	KindString
	KindComment
	KindBoundary
	KindOther
)

// kindNames are the short names used in priority keys ("type:id", "boundary:$")
// and in grammar files.
var kindNames = map[Kind]string{
	KindOperator:   "op",
	KindIdentifier: "id",
	KindNumber:     "num",
	KindString:     "str",
	KindComment:    "comment",
	KindBoundary:   "boundary",
	KindOther:      "other",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown token kind %q", text)
}

// Pos locates a token in the source. Line and Col are 1-based.
type Pos struct {
	Offset int
	Line   int
	Col    int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// boundaryText is the spelling of the synthetic start/end tokens.
const boundaryText = "$"

type Token struct {
	Text   string
	Kind   Kind
	Prefix bool // operator directly after a non-suffix operator
	Pos    Pos
}

func (Token) node() {}

func (t Token) String() string {
	return t.Text
}

func boundary(pos Pos) Token {
	return Token{Text: boundaryText, Kind: KindBoundary, Pos: pos}
}

// scanner is the single combined regexp built from a grammar's patterns. groups
// maps the index of each top-level capture group to the kind it classifies.
type scanner struct {
	re     *regexp.Regexp
	groups []scanGroup
}

type scanGroup struct {
	index int
	kind  Kind
}

func newScanner(patterns []Pattern) (*scanner, error) {
	parts := make([]string, len(patterns))
	groups := make([]scanGroup, len(patterns))
	next := 1
	for i, p := range patterns {
		sub, err := regexp.Compile(p.Expr)
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", p.Kind, err)
		}
		parts[i] = "(" + p.Expr + ")"
		groups[i] = scanGroup{index: next, kind: p.Kind}
		next += 1 + sub.NumSubexp()
	}
	re, err := regexp.Compile(strings.Join(parts, "|"))
	if err != nil {
		return nil, fmt.Errorf("combined pattern: %w", err)
	}
	return &scanner{re: re, groups: groups}, nil
}

// Tokenize scans src into tokens framed by boundary tokens. Comments are
// dropped. Text between matches is whitespace or becomes one KindOther token
// per character, which has no priority and fails at lookup.
func (p *Parser) Tokenize(src string) ([]Token, error) {
	lines := newLineIndex(src)
	tokens := []Token{boundary(lines.pos(0))}
	last := tokens[0]
	emit := func(tok Token) error {
		if tok.Kind == KindOperator && last.Kind == KindOperator {
			prio, err := p.table.Lookup(last)
			if err != nil {
				return err
			}
			tok.Prefix = !prio.Suffix
		}
		tokens = append(tokens, tok)
		last = tok
		return nil
	}
	gap := func(from, to int) error {
		for i, r := range src[from:to] {
			if unicode.IsSpace(r) {
				continue
			}
			if err := emit(Token{Text: string(r), Kind: KindOther, Pos: lines.pos(from + i)}); err != nil {
				return err
			}
		}
		return nil
	}

	end := 0
	for _, m := range p.scan.re.FindAllStringSubmatchIndex(src, -1) {
		if m[0] == m[1] {
			continue
		}
		if err := gap(end, m[0]); err != nil {
			return nil, err
		}
		end = m[1]
		kind := KindOther
		for _, g := range p.scan.groups {
			if m[2*g.index] >= 0 {
				kind = g.kind
				break
			}
		}
		if kind == KindComment {
			continue
		}
		if err := emit(Token{Text: src[m[0]:m[1]], Kind: kind, Pos: lines.pos(m[0])}); err != nil {
			return nil, err
		}
	}
	if err := gap(end, len(src)); err != nil {
		return nil, err
	}
	tokens = append(tokens, boundary(lines.pos(len(src))))
	return tokens, nil
}

// lineIndex converts byte offsets into line/column positions.
type lineIndex struct {
	starts []int
}

func newLineIndex(src string) lineIndex {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return lineIndex{starts: starts}
}

func (li lineIndex) pos(offset int) Pos {
	lo, hi := 0, len(li.starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if li.starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return Pos{Offset: offset, Line: lo + 1, Col: offset - li.starts[lo] + 1}
}

// tokenStream hands out tokens one at a time and refuses to read past the
// trailing boundary.
type tokenStream struct {
	tokens []Token
	i      int
}

func (s *tokenStream) next() (Token, error) {
	if s.i >= len(s.tokens) {
		last := s.tokens[len(s.tokens)-1]
		return Token{}, &UnbalancedConstructError{Token: last, Reason: "unexpected end of input"}
	}
	t := s.tokens[s.i]
	s.i++
	return t, nil
}
