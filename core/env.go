package mortar

import (
	"regexp"
	"sort"

	lru "github.com/hashicorp/golang-lru"
)

// Handler evaluates an inner node. It receives the node's children raw and
// decides what to evaluate, in which environment and when.
type Handler func(env *Env, node *Inner, args ...Node) (Value, error)

// Guard decides whether a macro applies to a signature.
type Guard interface {
	Match(signature string) bool
	String() string
}

// Exact matches one signature literally.
type Exact string

func (g Exact) Match(signature string) bool { return string(g) == signature }
func (g Exact) String() string               { return string(g) }

// Regex matches signatures against a compiled regular expression.
type Regex struct {
	re *regexp.Regexp
}

func NewRegex(expr string) (Regex, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Regex{}, err
	}
	return Regex{re: re}, nil
}

func MustRegex(expr string) Regex {
	return Regex{re: regexp.MustCompile(expr)}
}

func (g Regex) Match(signature string) bool { return g.re.MatchString(signature) }
func (g Regex) String() string               { return "/" + g.re.String() + "/" }

type Macro struct {
	Guard   Guard
	Handler Handler
}

// dispatchCacheSize bounds the memo of signature -> macro index.
const dispatchCacheSize = 512

// MacroRegistry is the ordered macro list shared by every environment derived
// from one root. Dispatch is first match wins, so specific guards must be
// registered before general ones.
type MacroRegistry struct {
	macros []Macro
	memo   *lru.Cache
}

func NewMacroRegistry() *MacroRegistry {
	memo, err := lru.New(dispatchCacheSize)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	return &MacroRegistry{memo: memo}
}

func (r *MacroRegistry) Register(guard Guard, h Handler) {
	r.macros = append(r.macros, Macro{Guard: guard, Handler: h})
	r.memo.Purge()
}

// Lookup returns the handler of the first macro whose guard matches.
func (r *MacroRegistry) Lookup(signature string) (Handler, error) {
	if i, ok := r.memo.Get(signature); ok {
		return r.macros[i.(int)].Handler, nil
	}
	for i, m := range r.macros {
		if m.Guard.Match(signature) {
			r.memo.Add(signature, i)
			return m.Handler, nil
		}
	}
	return nil, &UnmatchedSignatureError{Signature: signature}
}

func (r *MacroRegistry) Macros() []Macro {
	return r.macros
}

// shared is owned by a root environment and borrowed by all its descendants.
type shared struct {
	macros      *MacroRegistry
	strictArity bool
}

// Env is one lexical scope. Bindings are looked up here first, then in each
// ancestor in turn.
type Env struct {
	parent   *Env
	bindings map[string]Value
	shared   *shared
}

// NewEnv returns a root environment with an empty macro registry.
func NewEnv() *Env {
	return &Env{
		bindings: map[string]Value{},
		shared:   &shared{macros: NewMacroRegistry()},
	}
}

// Child returns a new scope whose parent is e. It shares e's macros.
func (e *Env) Child() *Env {
	return &Env{parent: e, bindings: map[string]Value{}, shared: e.shared}
}

func (e *Env) Parent() *Env {
	return e.parent
}

// Define binds name in this scope, shadowing any outer binding.
func (e *Env) Define(name string, v Value) {
	e.bindings[name] = v
}

// Lookup walks the scope chain. The bool reports whether name is bound at all.
func (e *Env) Lookup(name string) (Value, bool) {
	for s := e; s != nil; s = s.parent {
		if v, ok := s.bindings[name]; ok {
			return v, true
		}
	}
	return Value{}, false
}

// eachName calls fn for every name bound in this scope, in sorted order.
func (e *Env) eachName(fn func(string)) {
	names := make([]string, 0, len(e.bindings))
	for name := range e.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fn(name)
	}
}

func (e *Env) Resolve(name string) (Value, error) {
	if v, ok := e.Lookup(name); ok {
		return v, nil
	}
	return Value{}, &UnresolvedSymbolError{Name: name}
}

// Register appends a macro to the registry shared by the whole tree.
func (e *Env) Register(guard Guard, h Handler) {
	e.shared.macros.Register(guard, h)
}

func (e *Env) Dispatch(signature string) (Handler, error) {
	return e.shared.macros.Lookup(signature)
}

func (e *Env) Macros() *MacroRegistry {
	return e.shared.macros
}

// SetStrictArity makes closure calls in this environment tree fail with
// ArityMismatchError when the argument count differs from the parameters.
func (e *Env) SetStrictArity(strict bool) {
	e.shared.strictArity = strict
}
