package vm

import (
	"bytes"

	"github.com/svmlang/svmc/lang/compiler"
)

// Limits are the interpreter's configurable runtime caps; exceeding any of
// them is a fatal runtime error naming the cap and its value. A zero value
// for any field means "no limit".
type Limits struct {
	MaxCallDepth int // non-tail call depth; 0 = unlimited
	MaxOperandStack int // per-frame operand stack slots; 0 = unlimited
	MaxInstructions int64 // total instructions executed; 0 = unlimited
}

// Thread is the single-threaded execution context for one program run.
type Thread struct {
	stdout bytes.Buffer
	steps int64
	depth int
	limits Limits
	prog *compiler.SVMProgram
}

// Run executes prog to completion, returning the program's result value
// and everything written by the print/display primitive. Instrumentation
// rides along on each compiler.SVMFunction rather than being threaded as a
// separate argument, since the compiler already attaches it there.
func Run(prog *compiler.SVMProgram, limits Limits) (Value, string, error) {
	th := &Thread{limits: limits, prog: prog}
	entryFn := prog.Functions[prog.EntryIndex]
	entryClosure := &Closure{FuncIndex: prog.EntryIndex, Name: "<entry>"}
	fr, err := newFrame(entryClosure, entryFn, newEnv(entryFn.EnvSize, nil), nil, limits.MaxOperandStack)
	if err != nil {
		return nil, th.stdout.String(), err
	}
	v, err := th.exec(fr)
	return v, th.stdout.String(), err
}

// exec drives step until the call chain it started from unwinds fully,
// returning the program's result. This is the outer half of the
// fetch-execute loop; step is the inner half that actually dispatches
// instructions for a single frame at a time.
func (th *Thread) exec(fr *Frame) (Value, error) {
	for {
		v, next, err := th.step(fr)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return v, nil
		}
		fr = next
	}
}

// step runs fr's instruction stream until control moves to a different
// frame: a new non-tail call (push, returns the new frame), a return
// unwinding to fr.caller (returns that frame), or a return from the
// outermost frame (returns the final value with a nil frame). A CALLT to a
// closure (cache hits aside) never leaves step: it mutates fr in place and
// keeps looping, which is what bounds tail-recursive call depth to O(1).
// CALLTP calls the primitive and then returns its result like a RET*.
func (th *Thread) step(fr *Frame) (Value, *Frame, error) {
	for {
		th.steps++
		if th.limits.MaxInstructions > 0 && th.steps > th.limits.MaxInstructions {
			return nil, nil, th.posError(fr, newError(InstructionLimitExceeded, "exceeded instruction limit %d", th.limits.MaxInstructions))
		}

		code := fr.fn.Code
		ins := code[fr.pc]
		fr.pc++

		switch ins.Op {
		case compiler.LGCI:
			fr.push(Int(ins.Arg1))
		case compiler.LGCF64:
			fr.push(Float(ins.Float))
		case compiler.LGCB0:
			fr.push(Bool(false))
		case compiler.LGCB1:
			fr.push(Bool(true))
		case compiler.LGCU:
			fr.push(Undefined)
		case compiler.LGCN:
			fr.push(Null)
		case compiler.LGCS:
			fr.push(String(th.prog.Strings[ins.Arg1]))

		case compiler.LDLG:
			v := fr.env.Slots[ins.Arg1]
			if v == nil {
				return nil, nil, th.posError(fr, newError(UndefinedLocal, "local slot %d read before assignment", ins.Arg1))
			}
			fr.push(v)
		case compiler.STLG:
			fr.env.Slots[ins.Arg1] = fr.pop()
		case compiler.LDPG:
			v := fr.env.at(int(ins.Arg2)).Slots[ins.Arg1]
			if v == nil {
				return nil, nil, th.posError(fr, newError(UndefinedLocal, "parent slot %d read before assignment", ins.Arg1))
			}
			fr.push(v)
		case compiler.STPG:
			fr.env.at(int(ins.Arg2)).Slots[ins.Arg1] = fr.pop()

		case compiler.ADDG, compiler.SUBG, compiler.MULG, compiler.DIVG, compiler.MODG,
			compiler.LTG, compiler.GTG, compiler.LEG, compiler.GEG, compiler.EQG, compiler.NEQG:
			y := fr.pop()
			x := fr.pop()
			z, err := binary(ins.Op, x, y)
			if err != nil {
				return nil, nil, th.posError(fr, err)
			}
			fr.push(z)

		case compiler.NOTG, compiler.NEGG:
			x := fr.pop()
			z, err := unary(ins.Op, x)
			if err != nil {
				return nil, nil, th.posError(fr, err)
			}
			fr.push(z)

		case compiler.POPG:
			fr.pop()
		case compiler.DUP:
			fr.push(fr.stack[fr.sp-1])

		case compiler.BR:
			fr.pc += int(ins.Arg1) - 1
		case compiler.BRT:
			if fr.pop().Truth() {
				fr.pc += int(ins.Arg1) - 1
			}
		case compiler.BRF:
			if !fr.pop().Truth() {
				fr.pc += int(ins.Arg1) - 1
			}

		case compiler.NEWC:
			fi := int(ins.Arg1)
			fr.push(&Closure{
				FuncIndex: fi,
				Name: th.prog.Functions[fi].Name,
				Parent: fr.env,
				Memoized: th.prog.Functions[fi].NeedsMemoization,
			})

		case compiler.CALL, compiler.CALLT:
			closure, fn, args, key, cached, hit, err := th.prepareCall(fr, int(ins.Arg1))
			if err != nil {
				return nil, nil, th.posError(fr, err)
			}
			tail := compiler.IsTail(ins.Op)
			if hit {
				if tail {
					return th.finishReturn(fr, cached)
				}
				fr.push(cached)
				continue
			}

			env := newEnv(fn.EnvSize, closure.Parent)
			copy(env.Slots[:len(args)], args)

			if tail {
				// CALLT: reuse the current frame instead of
				// pushing one, so tail-recursive depth stays O(1).
				if th.limits.MaxOperandStack > 0 && fn.MaxStack > th.limits.MaxOperandStack {
					return nil, nil, th.posError(fr, newError(OperandStackOverflow, "function %s requires operand stack depth %d, exceeds limit %d", closure.Name, fn.MaxStack, th.limits.MaxOperandStack))
				}
				fr.closure = closure
				fr.fn = fn
				fr.env = env
				fr.pc = 0
				fr.sp = 0
				if cap(fr.stack) < fn.MaxStack {
					fr.stack = make([]Value, fn.MaxStack)
				} else {
					fr.stack = fr.stack[:fn.MaxStack]
				}
				fr.closureArgs = args
				fr.memoKey = key
				continue
			}

			if th.limits.MaxCallDepth > 0 && th.depth+1 > th.limits.MaxCallDepth {
				return nil, nil, th.posError(fr, newError(StackOverflow, "exceeded max call depth %d", th.limits.MaxCallDepth))
			}
			th.depth++
			newFr, ferr := newFrame(closure, fn, env, fr, th.limits.MaxOperandStack)
			if ferr != nil {
				return nil, nil, th.posError(fr, ferr)
			}
			newFr.closureArgs = args
			newFr.memoKey = key
			return nil, newFr, nil

		case compiler.CALLP, compiler.CALLTP:
			result, err := th.callPrimitive(fr, int(ins.Arg1), int(ins.Arg2))
			if err != nil {
				return nil, nil, th.posError(fr, err)
			}
			if compiler.IsTail(ins.Op) {
				return th.finishReturn(fr, result)
			}
			fr.push(result)

		case compiler.RETG:
			return th.finishReturn(fr, fr.pop())
		case compiler.RETU:
			return th.finishReturn(fr, Undefined)
		case compiler.RETN:
			return th.finishReturn(fr, Null)

		case compiler.NEWA:
			sizeV := fr.pop()
			n, ok := sizeV.(Int)
			if !ok {
				return nil, nil, th.posError(fr, newError(UnsupportedOperandType, "array size must be an int, got %s", sizeV.Type()))
			}
			if n < 0 {
				return nil, nil, th.posError(fr, newError(ArrayOutOfBounds, "negative array size %d", n))
			}
			fr.push(&Array{Elems: make([]Value, n)})
		case compiler.LDAG:
			idxV := fr.pop()
			arrV := fr.pop()
			idx, arr, err := asArrayIndex(idxV, arrV)
			if err != nil {
				return nil, nil, th.posError(fr, err)
			}
			if idx < 0 || idx >= len(arr.Elems) {
				return nil, nil, th.posError(fr, newError(ArrayOutOfBounds, "index %d out of bounds for array of length %d", idx, len(arr.Elems)))
			}
			fr.push(arr.Elems[idx])
		case compiler.STAG:
			val := fr.pop()
			idxV := fr.pop()
			arrV := fr.pop()
			idx, arr, err := asArrayIndex(idxV, arrV)
			if err != nil {
				return nil, nil, th.posError(fr, err)
			}
			if idx < 0 || idx >= len(arr.Elems) {
				return nil, nil, th.posError(fr, newError(ArrayOutOfBounds, "index %d out of bounds for array of length %d", idx, len(arr.Elems)))
			}
			arr.Elems[idx] = val

		default:
			return nil, nil, th.posError(fr, newError(UnsupportedOperandType, "unimplemented opcode %s", ins.Op))
		}
	}
}

// asArrayIndex validates the operand types popped for LDAG/STAG, returning a
// RuntimeError instead of panicking on a type mismatch.
func asArrayIndex(idxV, arrV Value) (int, *Array, error) {
	idx, ok := idxV.(Int)
	if !ok {
		return 0, nil, newError(UnsupportedOperandType, "array index must be an int, got %s", idxV.Type())
	}
	arr, ok := arrV.(*Array)
	if !ok {
		return 0, nil, newError(UnsupportedOperandType, "attempt to index a non-array value (%s)", arrV.Type())
	}
	return int(idx), arr, nil
}

// prepareCall implements the shared first half of CALL/CALLT: pop n args
// then the callee closure, validate arity, and consult the memo cache. The
// caller decides what "hit" means for its opcode (push and continue for
// CALL, fold into a return for CALLT).
func (th *Thread) prepareCall(fr *Frame, nArgs int) (closure *Closure, fn *compiler.SVMFunction, args []Value, key string, cached Value, hit bool, err error) {
	args = fr.popN(nArgs)
	calleeV := fr.pop()
	c, ok := calleeV.(*Closure)
	if !ok {
		err = newError(CallOnNonClosure, "attempt to call a non-closure value (%s)", calleeV.Type())
		return
	}
	closure = c
	fn = th.prog.Functions[c.FuncIndex]
	if len(args) != fn.NumArgs {
		err = newError(ArityMismatch, "%s expects %d argument(s), got %d", closure.Name, fn.NumArgs, len(args))
		return
	}
	if closure.Memoized {
		key = memoKey(args)
		if closure.memo != nil {
			if v, found := closure.memo.get(key); found {
				cached, hit = v, true
			}
		}
	}
	return
}

func (th *Thread) callPrimitive(fr *Frame, primIndex, nArgs int) (Value, error) {
	p, err := lookupPrimitive(primIndex)
	if err != nil {
		return nil, err
	}
	args := fr.popN(nArgs)
	if err := checkArity(p, len(args)); err != nil {
		return nil, err
	}
	return p.call(th, args)
}

// finishReturn implements RETG/RETU/RETN (and CALLTP's folded return): record
// the memo entry if this frame's closure was flagged for memoization, then
// restore the caller frame and hand it the result (or, for the outermost
// frame, surface it as the program's result).
func (th *Thread) finishReturn(fr *Frame, result Value) (Value, *Frame, error) {
	if fr.closure.Memoized && fr.closureArgs != nil {
		if fr.closure.memo == nil {
			fr.closure.memo = newMemoCache()
		}
		fr.closure.memo.put(fr.memoKey, result)
	}
	if fr.caller == nil {
		return result, nil, nil
	}
	th.depth--
	fr.caller.push(result)
	return nil, fr.caller, nil
}

func (th *Thread) posError(fr *Frame, err error) error {
	rerr, ok := err.(*Error)
	if !ok {
		return err
	}
	if fr.pc > 0 && fr.pc-1 < len(fr.fn.Code) {
		line, col := fr.fn.Code[fr.pc-1].Pos.LineCol()
		rerr.Line, rerr.Col = line, col
	}
	return rerr
}
