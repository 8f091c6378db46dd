package mortar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// Run evaluates a node in e. Leaves resolve or convert directly; inner nodes
// go to the macro matching their signature, with raw children.
func (e *Env) Run(n Node) (Value, error) {
	switch n := n.(type) {
	case nil:
		return AbsentVal(), nil
	case Token:
		return e.runLeaf(n)
	case *Inner:
		h, err := e.Dispatch(n.Signature)
		if err != nil {
			return Value{}, err
		}
		return h(e, n, n.Args...)
	default:
		return Value{}, fmt.Errorf("unknown node type %T", n)
	}
}

func (e *Env) runLeaf(t Token) (Value, error) {
	switch t.Kind {
	case KindOperator, KindIdentifier:
		return e.Resolve(t.Text)
	case KindNumber:
		return parseNumber(t)
	case KindString:
		return StringVal(unquote(t.Text)), nil
	default:
		return Value{}, fmt.Errorf("%s: cannot evaluate %s token %q", t.Pos, t.Kind, t.Text)
	}
}

// parseNumber reads a base-10 integer. Literals beyond the int64 range
// saturate. A grammar whose number pattern admits decimals gets floats.
func parseNumber(t Token) (Value, error) {
	n, err := strconv.ParseInt(t.Text, 10, 64)
	if err == nil || errors.Is(err, strconv.ErrRange) {
		return IntVal(n), nil
	}
	f, ferr := strconv.ParseFloat(t.Text, 64)
	if ferr != nil {
		return Value{}, fmt.Errorf("%s: invalid number %q", t.Pos, t.Text)
	}
	return FloatVal(f), nil
}

// unquote strips the delimiters and unescapes every \".
func unquote(s string) string {
	if len(s) >= 2 {
		s = s[1 : len(s)-1]
	}
	return strings.ReplaceAll(s, `\"`, `"`)
}

// Call evaluates fnNode in e and applies the result to argNodes. Lazy callees
// get one thunk per argument; eager ones get the arguments evaluated left to
// right.
func (e *Env) Call(fnNode Node, argNodes []Node) (Value, error) {
	fnVal, err := e.Run(fnNode)
	if err != nil {
		return Value{}, err
	}
	if fnVal.Kind != ValFn {
		if t, ok := fnNode.(Token); ok {
			return Value{}, fmt.Errorf("%s: cannot call %s: not a function", t.Pos, t.Text)
		}
		return Value{}, fmt.Errorf("cannot call %s value", fnVal.KindName())
	}
	args := make([]Value, len(argNodes))
	for i, a := range argNodes {
		if fnVal.Fn.Mode == Lazy {
			a := a
			args[i] = ThunkVal(func() (Value, error) { return e.Run(a) })
			continue
		}
		if args[i], err = e.Run(a); err != nil {
			return Value{}, err
		}
	}
	return Apply(fnVal.Fn, args)
}

// Apply invokes a callable with argument values. A closure runs its body in a
// new child of its captured environment; missing arguments bind to absent
// unless the environment tree uses strict arity.
func Apply(fn *Callable, args []Value) (Value, error) {
	if fn.Native != nil {
		return fn.Native(args)
	}
	if fn.Env.shared.strictArity && len(args) != len(fn.Params) {
		return Value{}, &ArityMismatchError{Name: fn.Name, Want: len(fn.Params), Got: len(args)}
	}
	scope := fn.Env.Child()
	for i, p := range fn.Params {
		if i < len(args) {
			scope.Define(p, args[i])
		} else {
			scope.Define(p, AbsentVal())
		}
	}
	return scope.Run(fn.Body)
}

// Interpreter pairs a parser with a base environment holding the bindings and
// macros of the language.
type Interpreter struct {
	Parser *Parser
	Base   *Env

	// Recorder, when set, keeps the most recent traces in memory.
	Recorder *Recorder
	// OnTrace, when set, is called after every evaluation.
	OnTrace func(Trace)

	trees *lru.Cache // source -> Node
}

func NewInterpreter(p *Parser) *Interpreter {
	return &Interpreter{Parser: p, Base: NewBaseEnv()}
}

// Evaluate runs src in a fresh child of the base environment.
func (in *Interpreter) Evaluate(src string) (Value, error) {
	return in.EvaluateIn(in.Base.Child(), src)
}

// EvaluateIn runs src in env, which must descend from a root carrying the
// language's macros.
func (in *Interpreter) EvaluateIn(env *Env, src string) (Value, error) {
	start := time.Now()
	val, err := in.evaluate(env, src)
	if in.Recorder != nil || in.OnTrace != nil {
		t := Trace{Source: src, Result: val, Start: start.UTC(), Duration: time.Since(start)}
		if err != nil {
			t.Error = err.Error()
		}
		if in.Recorder != nil {
			in.Recorder.Append(t)
		}
		if in.OnTrace != nil {
			in.OnTrace(t)
		}
	}
	return val, err
}

func (in *Interpreter) evaluate(env *Env, src string) (Value, error) {
	tree, err := in.Parse(src)
	if err != nil {
		return Value{}, err
	}
	return env.Run(tree)
}

// EnableParseCache keeps up to size parsed trees keyed by source text. Trees
// are immutable, so a cached tree can be run any number of times.
func (in *Interpreter) EnableParseCache(size int) error {
	cache, err := lru.New(size)
	if err != nil {
		return fmt.Errorf("parse cache: %w", err)
	}
	in.trees = cache
	return nil
}

// Parse returns the tree for src, from the parse cache when enabled.
func (in *Interpreter) Parse(src string) (Node, error) {
	if in.trees != nil {
		if cached, ok := in.trees.Get(src); ok {
			tree, _ := cached.(Node) // empty input caches a nil tree
			return tree, nil
		}
	}
	tree, err := in.Parser.ParseTree(src)
	if err != nil {
		return nil, err
	}
	if in.trees != nil {
		in.trees.Add(src, tree)
	}
	return tree, nil
}

var (
	baseOnce sync.Once
	baseEnv  *Env
)

// BaseEnv returns the process-wide base environment used by Evaluate. Treat
// it as read-only: evaluate in children of it.
func BaseEnv() *Env {
	baseOnce.Do(func() { baseEnv = NewBaseEnv() })
	return baseEnv
}

// Evaluate tokenizes and parses src with p, then runs the tree in a fresh
// child of the global base environment.
func Evaluate(src string, p *Parser) (Value, error) {
	tree, err := p.ParseTree(src)
	if err != nil {
		return Value{}, err
	}
	return BaseEnv().Child().Run(tree)
}
