package mortar

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

type ValueKind int

const (
	ValAbsent ValueKind = iota
	ValInt
	ValFloat
	ValBool
	ValString
	ValList
	ValFn
	ValThunk
)

// CallMode says how a callable wants its arguments.
type CallMode int

const (
	// Eager callables receive evaluated arguments, left to right.
	Eager CallMode = iota
	// Lazy callables receive one Thunk per argument and force what they need.
	Lazy
)

// Builtin is a function implemented in Go.
type Builtin func(args []Value) (Value, error)

// Callable is a closure (Env, Params, Body) or a native Builtin.
type Callable struct {
	Name   string
	Mode   CallMode
	Params []string
	Body   Node
	Env    *Env
	Native Builtin
}

type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Bool  bool
	Str   string
	List  []Value
	Fn    *Callable
	Thunk func() (Value, error)
}

func AbsentVal() Value          { return Value{Kind: ValAbsent} }
func IntVal(n int64) Value      { return Value{Kind: ValInt, Int: n} }
func FloatVal(f float64) Value  { return Value{Kind: ValFloat, Float: f} }
func BoolVal(b bool) Value      { return Value{Kind: ValBool, Bool: b} }
func StringVal(s string) Value  { return Value{Kind: ValString, Str: s} }
func FnVal(fn *Callable) Value  { return Value{Kind: ValFn, Fn: fn} }

func ThunkVal(f func() (Value, error)) Value {
	return Value{Kind: ValThunk, Thunk: f}
}

func ListVal(elems []Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{Kind: ValList, List: elems}
}

// NativeVal wraps a Go function as an eager callable.
func NativeVal(name string, fn Builtin) Value {
	return FnVal(&Callable{Name: name, Native: fn})
}

// LazyVal wraps a Go function as a lazy callable.
func LazyVal(name string, fn Builtin) Value {
	return FnVal(&Callable{Name: name, Mode: Lazy, Native: fn})
}

// Force evaluates a thunk; any other value is returned as is.
func (v Value) Force() (Value, error) {
	if v.Kind == ValThunk {
		return v.Thunk()
	}
	return v, nil
}

// Truthy: absent and false are falsy, everything else is truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case ValAbsent:
		return false
	case ValBool:
		return v.Bool
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.Kind {
	case ValAbsent:
		return "absent"
	case ValInt:
		return strconv.FormatInt(v.Int, 10)
	case ValFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case ValBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case ValString:
		return v.Str
	case ValList:
		parts := make([]string, len(v.List))
		for i, e := range v.List {
			if e.Kind == ValString {
				parts[i] = strconv.Quote(e.Str)
			} else {
				parts[i] = e.String()
			}
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ValFn:
		if v.Fn.Native != nil {
			return fmt.Sprintf("<builtin %s>", v.Fn.Name)
		}
		return fmt.Sprintf("<fn(%s)>", strings.Join(v.Fn.Params, ", "))
	case ValThunk:
		return "<thunk>"
	default:
		return fmt.Sprintf("<unknown:%d>", v.Kind)
	}
}

func (v Value) KindName() string {
	switch v.Kind {
	case ValAbsent:
		return "Absent"
	case ValInt:
		return "Int"
	case ValFloat:
		return "Float"
	case ValBool:
		return "Bool"
	case ValString:
		return "String"
	case ValList:
		return "List"
	case ValFn:
		return "Fn"
	case ValThunk:
		return "Thunk"
	default:
		return "Unknown"
	}
}

// ValuesEqual compares two Values for deep equality. Ints and floats compare
// numerically; callables compare by identity.
func ValuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		if isNumber(a) && isNumber(b) {
			return toFloat(a) == toFloat(b)
		}
		return false
	}
	switch a.Kind {
	case ValAbsent:
		return true
	case ValInt:
		return a.Int == b.Int
	case ValFloat:
		return a.Float == b.Float
	case ValBool:
		return a.Bool == b.Bool
	case ValString:
		return a.Str == b.Str
	case ValList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !ValuesEqual(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case ValFn:
		return a.Fn == b.Fn
	}
	return false
}

// ValueToGo converts a Value to a native Go value for JSON serialization.
func ValueToGo(v Value) (any, error) {
	switch v.Kind {
	case ValAbsent:
		return nil, nil
	case ValInt:
		return v.Int, nil
	case ValFloat:
		return v.Float, nil
	case ValBool:
		return v.Bool, nil
	case ValString:
		return v.Str, nil
	case ValList:
		arr := make([]any, len(v.List))
		for i, e := range v.List {
			j, err := ValueToGo(e)
			if err != nil {
				return nil, err
			}
			arr[i] = j
		}
		return arr, nil
	case ValFn:
		return v.String(), nil
	case ValThunk:
		return nil, fmt.Errorf("cannot serialize Thunk to JSON")
	default:
		return nil, fmt.Errorf("unknown value kind")
	}
}

// GoToValue converts decoded JSON into a Value. Whole numbers become Int and
// objects become lists of [key, value] pairs sorted by key.
func GoToValue(v any) Value {
	switch v := v.(type) {
	case nil:
		return AbsentVal()
	case bool:
		return BoolVal(v)
	case int:
		return IntVal(int64(v))
	case int64:
		return IntVal(v)
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
			return IntVal(int64(v))
		}
		return FloatVal(v)
	case string:
		return StringVal(v)
	case []any:
		out := make([]Value, len(v))
		for i, e := range v {
			out[i] = GoToValue(e)
		}
		return ListVal(out)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]Value, len(keys))
		for i, k := range keys {
			out[i] = ListVal([]Value{StringVal(k), GoToValue(v[k])})
		}
		return ListVal(out)
	default:
		return StringVal(fmt.Sprint(v))
	}
}

func isNumber(v Value) bool {
	return v.Kind == ValInt || v.Kind == ValFloat
}

func toFloat(v Value) float64 {
	if v.Kind == ValInt {
		return float64(v.Int)
	}
	return v.Float
}
