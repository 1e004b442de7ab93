package vm

import "github.com/svmlang/svmc/lang/compiler"

// binary implements the arithmetic/logic binary opcodes (ADDG, SUBG,
// MULG, DIVG, MODG, LTG, GTG, LEG, GEG, EQG, NEQG): pop 2, push 1. Plain
// free functions over a closed type set; there is no per-type dispatch
// interface because the operand types are fixed by the opcode table.
func binary(op compiler.Opcode, x, y Value) (Value, error) {
	switch op {
	case compiler.ADDG, compiler.SUBG, compiler.MULG, compiler.DIVG, compiler.MODG:
		return arith(op, x, y)
	case compiler.LTG, compiler.GTG, compiler.LEG, compiler.GEG:
		return compareOrdered(op, x, y)
	case compiler.EQG:
		return Bool(valuesEqual(x, y)), nil
	case compiler.NEQG:
		return Bool(!valuesEqual(x, y)), nil
	}
	return nil, newError(UnsupportedOperandType, "unimplemented binary opcode %s", op)
}

func asNumber(v Value) (f float64, isInt bool, ok bool) {
	switch n := v.(type) {
	case Int:
		return float64(n), true, true
	case Float:
		return float64(n), false, true
	default:
		return 0, false, false
	}
}

func arith(op compiler.Opcode, x, y Value) (Value, error) {
	xf, xInt, xOK := asNumber(x)
	yf, yInt, yOK := asNumber(y)
	if !xOK || !yOK {
		return nil, newError(UnsupportedOperandType,
			"unsupported operand types for %s: %s and %s", op, x.Type(), y.Type())
	}

	bothInt := xInt && yInt
	switch op {
	case compiler.ADDG:
		if bothInt {
			return Int(int64(xf) + int64(yf)), nil
		}
		return Float(xf + yf), nil
	case compiler.SUBG:
		if bothInt {
			return Int(int64(xf) - int64(yf)), nil
		}
		return Float(xf - yf), nil
	case compiler.MULG:
		if bothInt {
			return Int(int64(xf) * int64(yf)), nil
		}
		return Float(xf * yf), nil
	case compiler.DIVG:
		if yf == 0 {
			return nil, newError(DivisionByZero, "division by zero")
		}
		return Float(xf / yf), nil
	case compiler.MODG:
		if yf == 0 {
			return nil, newError(ModuloByZero, "modulo by zero")
		}
		if bothInt {
			xi, yi := int64(xf), int64(yf)
			m := xi % yi
			if m != 0 && (m < 0) != (yi < 0) {
				m += yi
			}
			return Int(m), nil
		}
		m := xf - yf*float64(int64(xf/yf))
		return Float(m), nil
	}
	return nil, newError(UnsupportedOperandType, "unimplemented arithmetic opcode %s", op)
}

func compareOrdered(op compiler.Opcode, x, y Value) (Value, error) {
	xf, _, xOK := asNumber(x)
	yf, _, yOK := asNumber(y)
	if !xOK || !yOK {
		return nil, newError(UnsupportedOperandType,
			"unsupported operand types for %s: %s and %s", op, x.Type(), y.Type())
	}
	var result bool
	switch op {
	case compiler.LTG:
		result = xf < yf
	case compiler.GTG:
		result = xf > yf
	case compiler.LEG:
		result = xf <= yf
	case compiler.GEG:
		result = xf >= yf
	}
	return Bool(result), nil
}

// valuesEqual implements EQG/NEQG: strings and numbers compare by value
// (an Int equals a Float of the same value); closures and arrays compare by
// identity. memoKey is stricter: it keeps Int and Float arguments apart.
func valuesEqual(x, y Value) bool {
	if xf, _, xOK := asNumber(x); xOK {
		if yf, _, yOK := asNumber(y); yOK {
			return xf == yf
		}
		return false
	}
	switch xv := x.(type) {
	case Bool:
		yv, ok := y.(Bool)
		return ok && xv == yv
	case String:
		yv, ok := y.(String)
		return ok && xv == yv
	case *Closure:
		yv, ok := y.(*Closure)
		return ok && xv == yv
	case *Array:
		yv, ok := y.(*Array)
		return ok && xv == yv
	default:
		// Undefined and Null: equal iff both are the same singleton type.
		return x.Type() == y.Type() && x.Type() != "int" && x.Type() != "float"
	}
}

// unary implements NOTG/NEGG: pop 1, push 1.
func unary(op compiler.Opcode, x Value) (Value, error) {
	switch op {
	case compiler.NOTG:
		return Bool(!x.Truth()), nil
	case compiler.NEGG:
		switch n := x.(type) {
		case Int:
			return -n, nil
		case Float:
			return -n, nil
		default:
			return nil, newError(UnsupportedOperandType, "unsupported operand type for negation: %s", x.Type())
		}
	}
	return nil, newError(UnsupportedOperandType, "unimplemented unary opcode %s", op)
}
