package vm

import (
	"fmt"
	"math"
)

// primitiveFunc is one entry of the fixed primitive table. Primitives
// never create frames; they run to completion synchronously and either
// produce one result or a runtime error.
type primitiveFunc struct {
	name string
	variadic bool
	arity int // ignored when variadic
	call func(th *Thread, args []Value) (Value, error)
}

// primitives is the fixed index->primitive table consulted by
// CALLP/CALLTP. Indices are part of the wire contract and never change.
var primitives = map[int]primitiveFunc{
	5: {name: "print", variadic: true, call: primPrint},
	10: {name: "abs", arity: 1, call: primAbs},
	20: {name: "min", variadic: true, call: primMin},
	21: {name: "max", variadic: true, call: primMax},
	22: {name: "pow", arity: 2, call: primPow},
	23: {name: "sqrt", arity: 1, call: primSqrt},
	24: {name: "floor", arity: 1, call: primFloor},
	25: {name: "ceil", arity: 1, call: primCeil},
	26: {name: "round", arity: 1, call: primRound},
}

func lookupPrimitive(index int) (primitiveFunc, error) {
	p, ok := primitives[index]
	if !ok {
		return primitiveFunc{}, newError(UnknownPrimitive, "unknown primitive index %d", index)
	}
	return p, nil
}

var primitiveIndexByName = func() map[string]int {
	m := make(map[string]int, len(primitives))
	for idx, p := range primitives {
		m[p.name] = idx
	}
	return m
}()

// PrimitiveIndex resolves name to its fixed primitive table index. It
// satisfies resolver.PrimitiveIndex, keeping the resolver independent of
// this package: callers wire vm.PrimitiveIndex in wherever they need to
// resolve global names against the runtime's builtin table.
func PrimitiveIndex(name string) (index int, ok bool) {
	i, ok := primitiveIndexByName[name]
	return i, ok
}

func checkArity(p primitiveFunc, n int) error {
	if !p.variadic && n != p.arity {
		return newError(ArityMismatch, "%s expects %d argument(s), got %d", p.name, p.arity, n)
	}
	return nil
}

func numberArg(name string, v Value) (float64, error) {
	f, _, ok := asNumber(v)
	if !ok {
		return 0, newError(UnsupportedOperandType, "%s expects a number, got %s", name, v.Type())
	}
	return f, nil
}

func primPrint(th *Thread, args []Value) (Value, error) {
	parts := make([]interface{}, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	fmt.Fprintln(&th.stdout, parts...)
	return Undefined, nil
}

func primAbs(_ *Thread, args []Value) (Value, error) {
	switch n := args[0].(type) {
	case Int:
		if n < 0 {
			return -n, nil
		}
		return n, nil
	case Float:
		return Float(math.Abs(float64(n))), nil
	default:
		return nil, newError(UnsupportedOperandType, "abs expects a number, got %s", n.Type())
	}
}

func primMin(_ *Thread, args []Value) (Value, error) {
	return minMax(args, false)
}

func primMax(_ *Thread, args []Value) (Value, error) {
	return minMax(args, true)
}

func minMax(args []Value, wantMax bool) (Value, error) {
	if len(args) == 0 {
		return nil, newError(ArityMismatch, "min/max require at least one argument")
	}
	best := args[0]
	bestF, err := numberArg("min/max", best)
	if err != nil {
		return nil, err
	}
	for _, a := range args[1:] {
		f, err := numberArg("min/max", a)
		if err != nil {
			return nil, err
		}
		if (wantMax && f > bestF) || (!wantMax && f < bestF) {
			best, bestF = a, f
		}
	}
	return best, nil
}

func primPow(_ *Thread, args []Value) (Value, error) {
	x, err := numberArg("pow", args[0])
	if err != nil {
		return nil, err
	}
	y, err := numberArg("pow", args[1])
	if err != nil {
		return nil, err
	}
	r := math.Pow(x, y)
	if _, xInt := args[0].(Int); xInt {
		if _, yInt := args[1].(Int); yInt && y >= 0 {
			return Int(int64(r)), nil
		}
	}
	return Float(r), nil
}

func primSqrt(_ *Thread, args []Value) (Value, error) {
	x, err := numberArg("sqrt", args[0])
	if err != nil {
		return nil, err
	}
	return Float(math.Sqrt(x)), nil
}

func primFloor(_ *Thread, args []Value) (Value, error) {
	x, err := numberArg("floor", args[0])
	if err != nil {
		return nil, err
	}
	return Int(int64(math.Floor(x))), nil
}

func primCeil(_ *Thread, args []Value) (Value, error) {
	x, err := numberArg("ceil", args[0])
	if err != nil {
		return nil, err
	}
	return Int(int64(math.Ceil(x))), nil
}

func primRound(_ *Thread, args []Value) (Value, error) {
	x, err := numberArg("round", args[0])
	if err != nil {
		return nil, err
	}
	return Int(int64(math.Round(x))), nil
}
