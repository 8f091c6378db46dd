package mortar

import (
	"fmt"
)

var (
	sequenceShape = MustRegex(`^[E_]( [;,\n] [E_])+$`)
	callShape     = MustRegex(`^E \( [E_] \) _$`)
	binaryShape   = MustRegex(`^[E_] [^ ]+ [E_]$`)
	ifShape       = MustRegex(`^_ if E then E( elif E then E)*( else E)? end _$`)
	operatorShape = MustRegex(`^[E_] [^ ()\[\]\{\}]+ [E_]$`)
)

// RegisterMacros installs the built-in macros on env's registry. Order
// matters: the operator fallback must come last.
func RegisterMacros(env *Env) {
	env.Register(sequenceShape, macroSequence)
	env.Register(Exact("_ ( E ) _"), macroGroup)
	env.Register(Exact("_ ( _ ) _"), macroUnit)
	env.Register(Exact("_ begin E end _"), macroGroup)
	env.Register(callShape, macroCall)
	env.Register(Exact("_ [ E ] _"), macroList)
	env.Register(Exact("_ [ _ ] _"), macroEmptyList)
	env.Register(Exact("E [ E ] _"), macroIndex)
	env.Register(ifShape, macroIf)
	env.Register(Exact("_ let E in E end _"), macroLet)
	env.Register(Exact("E -> E"), macroLambda)
	env.Register(Exact("E each E"), macroEach)
	env.Register(operatorShape, macroCall)
}

// macroSequence evaluates each element left to right and returns the last.
func macroSequence(env *Env, node *Inner, args ...Node) (Value, error) {
	result := AbsentVal()
	for _, a := range args {
		v, err := env.Run(a)
		if err != nil {
			return Value{}, err
		}
		result = v
	}
	return result, nil
}

func macroGroup(env *Env, node *Inner, args ...Node) (Value, error) {
	return env.Run(args[0])
}

func macroUnit(env *Env, node *Inner, args ...Node) (Value, error) {
	return AbsentVal(), nil
}

// macroCall handles both f(a, b) and operator applications such as a + b or
// -a, where the operator token names the function.
func macroCall(env *Env, node *Inner, args ...Node) (Value, error) {
	fn, fargs, ok := normalizeCall(node)
	if !ok {
		return Value{}, &UnmatchedSignatureError{Signature: node.Signature}
	}
	return env.Call(fn, fargs)
}

func macroList(env *Env, node *Inner, args ...Node) (Value, error) {
	elems := listify(args[0])
	out := make([]Value, len(elems))
	for i, e := range elems {
		v, err := env.Run(e)
		if err != nil {
			return Value{}, err
		}
		out[i] = v
	}
	return ListVal(out), nil
}

func macroEmptyList(env *Env, node *Inner, args ...Node) (Value, error) {
	return ListVal(nil), nil
}

func macroIndex(env *Env, node *Inner, args ...Node) (Value, error) {
	coll, err := env.Run(args[0])
	if err != nil {
		return Value{}, err
	}
	i, err := env.Run(args[1])
	if err != nil {
		return Value{}, err
	}
	return index(coll, i)
}

// macroIf receives cond, branch pairs, then the else branch if there is one.
// Without an else and with no true condition the result is absent.
func macroIf(env *Env, node *Inner, args ...Node) (Value, error) {
	i := 0
	for ; i+1 < len(args); i += 2 {
		cond, err := env.Run(args[i])
		if err != nil {
			return Value{}, err
		}
		if cond.Truthy() {
			return env.Run(args[i+1])
		}
	}
	if i < len(args) {
		return env.Run(args[i])
	}
	return AbsentVal(), nil
}

// macroLet opens one scope for all definitions. Functions close over that
// scope, so definitions in the same let can call each other; plain values are
// evaluated in order.
func macroLet(env *Env, node *Inner, args ...Node) (Value, error) {
	scope := env.Child()
	for _, d := range listify(args[0]) {
		def, err := normalizeAssignment(d)
		if err != nil {
			return Value{}, err
		}
		if def.isFn {
			scope.Define(def.name, FnVal(&Callable{Name: def.name, Params: def.params, Body: def.body, Env: scope}))
			continue
		}
		v, err := scope.Run(def.body)
		if err != nil {
			return Value{}, err
		}
		scope.Define(def.name, v)
	}
	return scope.Run(args[1])
}

// macroLambda accepts x -> body, (x, y) -> body and () -> body.
func macroLambda(env *Env, node *Inner, args ...Node) (Value, error) {
	head := args[0]
	if in, ok := head.(*Inner); ok {
		switch in.Signature {
		case "_ ( E ) _":
			head = in.Args[0]
		case "_ ( _ ) _":
			head = nil
		}
	}
	params, err := paramNames("->", listify(head))
	if err != nil {
		return Value{}, err
	}
	return FnVal(&Callable{Params: params, Body: args[1], Env: env}), nil
}

// macroEach maps a function over a list.
func macroEach(env *Env, node *Inner, args ...Node) (Value, error) {
	lst, err := env.Run(args[0])
	if err != nil {
		return Value{}, err
	}
	if lst.Kind != ValList {
		return Value{}, fmt.Errorf("each: expected List, got %s", lst.KindName())
	}
	fn, err := env.Run(args[1])
	if err != nil {
		return Value{}, err
	}
	if fn.Kind != ValFn {
		return Value{}, fmt.Errorf("each: expected Fn, got %s", fn.KindName())
	}
	out := make([]Value, len(lst.List))
	for i, elem := range lst.List {
		if out[i], err = Apply(fn.Fn, []Value{elem}); err != nil {
			return Value{}, err
		}
	}
	return ListVal(out), nil
}

// listify flattens a separator sequence into its elements. Any other node is
// a one-element list and nil is empty.
func listify(n Node) []Node {
	if in, ok := n.(*Inner); ok && sequenceShape.Match(in.Signature) {
		return in.Args
	}
	if n == nil {
		return nil
	}
	return []Node{n}
}

// normalizeCall reduces a + b to (+, [a, b]) and f(a, b) to (f, [a, b]).
func normalizeCall(n Node) (Node, []Node, bool) {
	in, ok := n.(*Inner)
	if !ok {
		return nil, nil, false
	}
	switch {
	case binaryShape.Match(in.Signature):
		return in.Tokens[0], in.Args, true
	case callShape.Match(in.Signature):
		return in.Children[0], listify(in.Children[1]), true
	}
	return nil, nil, false
}

type definition struct {
	name   string
	isFn   bool
	params []string
	body   Node
}

// normalizeAssignment reads name = body or f(a, b) = body.
func normalizeAssignment(n Node) (definition, error) {
	in, ok := n.(*Inner)
	if !ok || in.Signature != "E = E" {
		return definition{}, fmt.Errorf("let: expected a definition, got %s", describe(n))
	}
	lhs, body := in.Args[0], in.Args[1]
	if fn, fargs, ok := normalizeCall(lhs); ok {
		name, err := nameOf("let", fn)
		if err != nil {
			return definition{}, err
		}
		params, err := paramNames("let", fargs)
		if err != nil {
			return definition{}, err
		}
		return definition{name: name, isFn: true, params: params, body: body}, nil
	}
	name, err := nameOf("let", lhs)
	if err != nil {
		return definition{}, err
	}
	return definition{name: name, body: body}, nil
}

func paramNames(form string, nodes []Node) ([]string, error) {
	params := make([]string, len(nodes))
	for i, p := range nodes {
		name, err := nameOf(form, p)
		if err != nil {
			return nil, err
		}
		params[i] = name
	}
	return params, nil
}

func nameOf(form string, n Node) (string, error) {
	if t, ok := n.(Token); ok && t.Kind == KindIdentifier {
		return t.Text, nil
	}
	return "", fmt.Errorf("%s: expected a name, got %s", form, describe(n))
}

func describe(n Node) string {
	switch n := n.(type) {
	case Token:
		return fmt.Sprintf("%s %q", n.Kind, n.Text)
	case *Inner:
		return fmt.Sprintf("%q", n.Signature)
	default:
		return "nothing"
	}
}
