package mortar

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Grammar is the configuration a Parser is built from. It is plain data and can
// be loaded from YAML or TOML.
type Grammar struct {
	// Patterns are tried left to right at each position; the first one that
	// matches decides the token kind.
	Patterns []Pattern `yaml:"patterns" toml:"patterns"`

	// Priorities holds explicit [left, right] entries keyed like the priority
	// table ("type:id", "op:+", "=>").
	Priorities map[string][2]int `yaml:"priorities" toml:"priorities"`

	// Blocks are space-separated keyword sequences: opener, middles, closer.
	Blocks []string `yaml:"blocks" toml:"blocks"`

	// Tower lists precedence groups from lowest to highest.
	Tower []Level `yaml:"tower" toml:"tower"`
}

type Pattern struct {
	Kind Kind   `yaml:"kind" toml:"kind"`
	Expr string `yaml:"expr" toml:"expr"`
}

type Level struct {
	Assoc Assoc  `yaml:"assoc" toml:"assoc"`
	Ops   string `yaml:"ops" toml:"ops"`
}

// Assoc is the associativity offset of a tower group.
type Assoc int

const (
	AssocLeft  Assoc = -1
	AssocList  Assoc = 0
	AssocRight Assoc = 1
)

func (a Assoc) String() string {
	switch a {
	case AssocLeft:
		return "left"
	case AssocRight:
		return "right"
	case AssocList:
		return "list"
	default:
		return fmt.Sprintf("assoc(%d)", int(a))
	}
}

func (a Assoc) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Assoc) UnmarshalText(text []byte) error {
	switch string(text) {
	case "left", "-1":
		*a = AssocLeft
	case "right", "1", "+1":
		*a = AssocRight
	case "list", "0":
		*a = AssocList
	default:
		return fmt.Errorf("unknown associativity %q", text)
	}
	return nil
}

// spellings splits a space-separated list. Only the space character separates,
// so "\n" can itself be a spelling.
func spellings(s string) []string {
	var out []string
	for _, part := range strings.Split(s, " ") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// DefaultGrammar returns the reference expression grammar.
func DefaultGrammar() *Grammar {
	return &Grammar{
		Patterns: []Pattern{
			{Kind: KindOperator, Expr: `[\(\)\[\]\{\},;\n]|[!@$%^&*|/?.:~+=<>-]+`},
			{Kind: KindIdentifier, Expr: `[A-Za-z_][A-Za-z_0-9]*`},
			{Kind: KindNumber, Expr: `[0-9]+`},
			{Kind: KindString, Expr: `"(?:[^"\\]|\\.)*"`},
			{Kind: KindComment, Expr: `#[^\n]*`},
			{Kind: KindOther, Expr: `\S`},
		},
		Priorities: map[string][2]int{
			"type:id":  {nullaryLeft, nullaryRight},
			"type:num": {nullaryLeft, nullaryRight},
			"type:str": {nullaryLeft, nullaryRight},
		},
		Blocks: []string{
			"( )", "[ ]", "{ }", "begin end",
			"if then elif else end", "let in end",
		},
		Tower: []Level{
			{AssocList, ", ; \n"},
			{AssocRight, "= each ->"},
			{AssocLeft, "or"},
			{AssocLeft, "and"},
			{AssocLeft, "P:not"},
			{AssocLeft, "== != < <= >= >"},
			{AssocLeft, ".."},
			{AssocLeft, "+ -"},
			{AssocLeft, "P:- * /"},
			{AssocRight, "^"},
			{AssocLeft, "type:op"},
		},
	}
}

// LoadGrammar reads a grammar file. The format is chosen by extension:
// .yaml/.yml or .toml.
func LoadGrammar(path string) (*Grammar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grammar: %w", err)
	}
	g := &Grammar{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, g); err != nil {
			return nil, fmt.Errorf("parse grammar %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), g); err != nil {
			return nil, fmt.Errorf("parse grammar %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("grammar %s: unsupported format %q", path, ext)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("grammar %s: %w", path, err)
	}
	return g, nil
}

// Validate reports every structural problem in the grammar at once. Role
// conflicts between spellings are checked when the priority table is built.
func (g *Grammar) Validate() error {
	var result *multierror.Error
	if len(g.Patterns) == 0 {
		result = multierror.Append(result, fmt.Errorf("no token patterns"))
	}
	seen := map[Kind]bool{}
	for i, p := range g.Patterns {
		if _, ok := kindNames[p.Kind]; !ok || p.Kind == KindBoundary {
			result = multierror.Append(result, fmt.Errorf("pattern %d: invalid kind %s", i, p.Kind))
		}
		if seen[p.Kind] {
			result = multierror.Append(result, fmt.Errorf("pattern %d: duplicate kind %s", i, p.Kind))
		}
		seen[p.Kind] = true
		if p.Expr == "" {
			result = multierror.Append(result, fmt.Errorf("pattern %d (%s): empty expression", i, p.Kind))
		} else if _, err := regexp.Compile(p.Expr); err != nil {
			result = multierror.Append(result, fmt.Errorf("pattern %d (%s): %w", i, p.Kind, err))
		}
	}
	for i, b := range g.Blocks {
		if len(spellings(b)) < 2 {
			result = multierror.Append(result, fmt.Errorf("block %d %q: need an opener and a closer", i, b))
		}
	}
	for i, lvl := range g.Tower {
		if lvl.Assoc < AssocLeft || lvl.Assoc > AssocRight {
			result = multierror.Append(result, fmt.Errorf("tower level %d: invalid associativity %d", i, lvl.Assoc))
		}
		if len(spellings(lvl.Ops)) == 0 {
			result = multierror.Append(result, fmt.Errorf("tower level %d: no operators", i))
		}
	}
	return result.ErrorOrNil()
}
