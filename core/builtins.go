package mortar

import (
	"fmt"
	"math"
)

// NewBaseEnv returns a root environment holding the base bindings and the
// built-in macros.
func NewBaseEnv() *Env {
	env := NewEnv()
	for name, v := range BaseBindings() {
		env.Define(name, v)
	}
	RegisterMacros(env)
	return env
}

// BaseBindings returns the global values of the language. Operators are
// bound under their spelling and reached through the operator fallback.
func BaseBindings() map[string]Value {
	return map[string]Value{
		// Arithmetic
		"+": NativeVal("+", builtinAdd),
		"-": NativeVal("-", builtinSub),
		"*": NativeVal("*", builtinMul),
		"/": NativeVal("/", builtinDiv),
		"^": NativeVal("^", builtinPow),
		// Comparison
		"==": NativeVal("==", builtinEq),
		"!=": NativeVal("!=", builtinNe),
		"<":  NativeVal("<", compareWith("<", func(c int) bool { return c < 0 })),
		"<=": NativeVal("<=", compareWith("<=", func(c int) bool { return c <= 0 })),
		">":  NativeVal(">", compareWith(">", func(c int) bool { return c > 0 })),
		">=": NativeVal(">=", compareWith(">=", func(c int) bool { return c >= 0 })),
		// Range
		"..": NativeVal("..", builtinRange),
		// Logic
		"and": LazyVal("and", builtinAnd),
		"or":  LazyVal("or", builtinOr),
		"not": NativeVal("not", builtinNot),
		// Math
		"log":  NativeVal("log", floatFunc("log", math.Log)),
		"sin":  NativeVal("sin", floatFunc("sin", math.Sin)),
		"cos":  NativeVal("cos", floatFunc("cos", math.Cos)),
		"tan":  NativeVal("tan", floatFunc("tan", math.Tan)),
		"sqrt": NativeVal("sqrt", floatFunc("sqrt", math.Sqrt)),
		"exp":  NativeVal("exp", floatFunc("exp", math.Exp)),
		// Data
		"len": NativeVal("len", builtinLen),
		// Literals
		"true":  BoolVal(true),
		"false": BoolVal(false),
	}
}

// --- Arithmetic ---

// numericArgs extracts two numeric args, promoting to float if mixed.
func numericArgs(name string, args []Value) (int64, int64, float64, float64, bool, error) {
	if len(args) != 2 {
		return 0, 0, 0, 0, false, fmt.Errorf("%s: expected 2 args, got %d", name, len(args))
	}
	a, b := args[0], args[1]
	if a.Kind == ValInt && b.Kind == ValInt {
		return a.Int, b.Int, 0, 0, false, nil
	}
	if !isNumber(a) {
		return 0, 0, 0, 0, false, fmt.Errorf("%s: expected number, got %s", name, a.KindName())
	}
	if !isNumber(b) {
		return 0, 0, 0, 0, false, fmt.Errorf("%s: expected number, got %s", name, b.KindName())
	}
	return 0, 0, toFloat(a), toFloat(b), true, nil
}

// builtinAdd adds numbers and concatenates strings or lists.
func builtinAdd(args []Value) (Value, error) {
	if len(args) == 2 && args[0].Kind == args[1].Kind {
		switch args[0].Kind {
		case ValString:
			return StringVal(args[0].Str + args[1].Str), nil
		case ValList:
			out := make([]Value, 0, len(args[0].List)+len(args[1].List))
			out = append(out, args[0].List...)
			return ListVal(append(out, args[1].List...)), nil
		}
	}
	ai, bi, af, bf, isFloat, err := numericArgs("+", args)
	if err != nil {
		return Value{}, err
	}
	if isFloat {
		return FloatVal(af + bf), nil
	}
	return IntVal(ai + bi), nil
}

// builtinSub subtracts, or negates when given one operand.
func builtinSub(args []Value) (Value, error) {
	if len(args) == 1 {
		switch args[0].Kind {
		case ValInt:
			return IntVal(-args[0].Int), nil
		case ValFloat:
			return FloatVal(-args[0].Float), nil
		default:
			return Value{}, fmt.Errorf("-: expected number, got %s", args[0].KindName())
		}
	}
	ai, bi, af, bf, isFloat, err := numericArgs("-", args)
	if err != nil {
		return Value{}, err
	}
	if isFloat {
		return FloatVal(af - bf), nil
	}
	return IntVal(ai - bi), nil
}

func builtinMul(args []Value) (Value, error) {
	ai, bi, af, bf, isFloat, err := numericArgs("*", args)
	if err != nil {
		return Value{}, err
	}
	if isFloat {
		return FloatVal(af * bf), nil
	}
	return IntVal(ai * bi), nil
}

// builtinDiv keeps integer results exact and falls back to float division
// when the quotient is not whole.
func builtinDiv(args []Value) (Value, error) {
	ai, bi, af, bf, isFloat, err := numericArgs("/", args)
	if err != nil {
		return Value{}, err
	}
	if isFloat {
		if bf == 0 {
			return Value{}, fmt.Errorf("/: division by zero")
		}
		return FloatVal(af / bf), nil
	}
	if bi == 0 {
		return Value{}, fmt.Errorf("/: division by zero")
	}
	if ai%bi == 0 {
		return IntVal(ai / bi), nil
	}
	return FloatVal(float64(ai) / float64(bi)), nil
}

func builtinPow(args []Value) (Value, error) {
	ai, bi, af, bf, isFloat, err := numericArgs("^", args)
	if err != nil {
		return Value{}, err
	}
	if isFloat || bi < 0 {
		if !isFloat {
			af, bf = float64(ai), float64(bi)
		}
		return FloatVal(math.Pow(af, bf)), nil
	}
	result := int64(1)
	for base := ai; bi > 0; bi >>= 1 {
		if bi&1 == 1 {
			result *= base
		}
		base *= base
	}
	return IntVal(result), nil
}

// --- Comparison ---

func builtinEq(args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, fmt.Errorf("==: expected 2 args, got %d", len(args))
	}
	return BoolVal(ValuesEqual(args[0], args[1])), nil
}

func builtinNe(args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, fmt.Errorf("!=: expected 2 args, got %d", len(args))
	}
	return BoolVal(!ValuesEqual(args[0], args[1])), nil
}

func compareWith(name string, test func(int) bool) Builtin {
	return func(args []Value) (Value, error) {
		if len(args) != 2 {
			return Value{}, fmt.Errorf("%s: expected 2 args, got %d", name, len(args))
		}
		cmp, err := compareTwo(name, args[0], args[1])
		if err != nil {
			return Value{}, err
		}
		return BoolVal(test(cmp)), nil
	}
}

// compareTwo orders numbers (int and float cross-compare), strings and lists
// of comparable elements.
func compareTwo(name string, a, b Value) (int, error) {
	if isNumber(a) && isNumber(b) {
		if a.Kind == ValInt && b.Kind == ValInt {
			return cmpOrdered(a.Int, b.Int), nil
		}
		return cmpOrdered(toFloat(a), toFloat(b)), nil
	}
	if a.Kind != b.Kind {
		return 0, fmt.Errorf("%s: cannot compare %s and %s", name, a.KindName(), b.KindName())
	}
	switch a.Kind {
	case ValString:
		return cmpOrdered(a.Str, b.Str), nil
	case ValList:
		for i := 0; i < len(a.List) && i < len(b.List); i++ {
			cmp, err := compareTwo(name, a.List[i], b.List[i])
			if err != nil {
				return 0, err
			}
			if cmp != 0 {
				return cmp, nil
			}
		}
		return cmpOrdered(len(a.List), len(b.List)), nil
	default:
		return 0, fmt.Errorf("%s: cannot compare %s values", name, a.KindName())
	}
}

func cmpOrdered[T int | int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// maxRangeLen bounds the list a range may build.
const maxRangeLen = 1 << 20

// builtinRange returns the integers from start up to, not including, end.
func builtinRange(args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, fmt.Errorf("..: expected 2 args, got %d", len(args))
	}
	if args[0].Kind != ValInt || args[1].Kind != ValInt {
		return Value{}, fmt.Errorf("..: expected Int args, got %s and %s", args[0].KindName(), args[1].KindName())
	}
	start, end := args[0].Int, args[1].Int
	if end <= start {
		return ListVal(nil), nil
	}
	span := end - start
	if span <= 0 || span > maxRangeLen {
		// span <= 0 here means end - start overflowed
		return Value{}, fmt.Errorf("..: range too large: %d .. %d", start, end)
	}
	out := make([]Value, 0, span)
	for i := start; i < end; i++ {
		out = append(out, IntVal(i))
	}
	return ListVal(out), nil
}

// --- Logic ---

// builtinAnd receives thunks and forces the second only when the first is
// truthy.
func builtinAnd(args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, fmt.Errorf("and: expected 2 args, got %d", len(args))
	}
	x, err := args[0].Force()
	if err != nil || !x.Truthy() {
		return x, err
	}
	return args[1].Force()
}

func builtinOr(args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, fmt.Errorf("or: expected 2 args, got %d", len(args))
	}
	x, err := args[0].Force()
	if err != nil || x.Truthy() {
		return x, err
	}
	return args[1].Force()
}

func builtinNot(args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, fmt.Errorf("not: expected 1 arg, got %d", len(args))
	}
	return BoolVal(!args[0].Truthy()), nil
}

// --- Math ---

func floatFunc(name string, f func(float64) float64) Builtin {
	return func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Value{}, fmt.Errorf("%s: expected 1 arg, got %d", name, len(args))
		}
		if !isNumber(args[0]) {
			return Value{}, fmt.Errorf("%s: expected number, got %s", name, args[0].KindName())
		}
		return FloatVal(f(toFloat(args[0]))), nil
	}
}

// --- Data ---

func builtinLen(args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, fmt.Errorf("len: expected 1 arg, got %d", len(args))
	}
	switch args[0].Kind {
	case ValList:
		return IntVal(int64(len(args[0].List))), nil
	case ValString:
		return IntVal(int64(len(args[0].Str))), nil
	default:
		return Value{}, fmt.Errorf("len: expected List or String, got %s", args[0].KindName())
	}
}

// index returns the i-th element of a list or the i-th byte of a string as a
// one-character string. Negative indices count from the end.
func index(coll, i Value) (Value, error) {
	if i.Kind != ValInt {
		return Value{}, fmt.Errorf("index: expected Int index, got %s", i.KindName())
	}
	var n int
	switch coll.Kind {
	case ValList:
		n = len(coll.List)
	case ValString:
		n = len(coll.Str)
	default:
		return Value{}, fmt.Errorf("index: expected List or String, got %s", coll.KindName())
	}
	idx := i.Int
	if idx < 0 {
		idx += int64(n)
	}
	if idx < 0 || idx >= int64(n) {
		return Value{}, fmt.Errorf("index: %d out of range for length %d", i.Int, n)
	}
	if coll.Kind == ValString {
		return StringVal(coll.Str[idx : idx+1]), nil
	}
	return coll.List[idx], nil
}
