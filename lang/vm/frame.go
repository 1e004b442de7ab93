package vm

import "github.com/svmlang/svmc/lang/compiler"

// Frame is one function activation: the running closure, its program
// counter, environment, operand stack, and a link to the caller. Each
// frame owns its own operand stack; CALLT/CALLTP mutate a frame's fields
// in place instead of pushing a new one, which is what bounds
// tail-recursive call depth to O(1).
type Frame struct {
	closure *Closure
	fn *compiler.SVMFunction
	pc int
	env *Env
	stack []Value
	sp int
	caller *Frame

	// closureArgs holds the call's arguments; memoKey is set only when this
	// frame's closure is flagged for memoization, so finishReturn can record
	// the result without recomputing the key.
	closureArgs []Value
	memoKey string
}

func newFrame(closure *Closure, fn *compiler.SVMFunction, env *Env, caller *Frame, maxOperandStack int) (*Frame, error) {
	if maxOperandStack > 0 && fn.MaxStack > maxOperandStack {
		return nil, newError(OperandStackOverflow, "function %s requires operand stack depth %d, exceeds limit %d", closure.Name, fn.MaxStack, maxOperandStack)
	}
	return &Frame{
		closure: closure,
		fn: fn,
		env: env,
		stack: make([]Value, fn.MaxStack),
		caller: caller,
	}, nil
}

func (fr *Frame) push(v Value) { fr.stack[fr.sp] = v; fr.sp++ }

func (fr *Frame) pop() Value {
	fr.sp--
	v := fr.stack[fr.sp]
	fr.stack[fr.sp] = nil
	return v
}

// popN returns the top n values in call order (oldest first): the argument
// pushed first (leftmost in source) ends up at index 0.
func (fr *Frame) popN(n int) []Value {
	out := make([]Value, n)
	copy(out, fr.stack[fr.sp-n:fr.sp])
	for i := fr.sp - n; i < fr.sp; i++ {
		fr.stack[i] = nil
	}
	fr.sp -= n
	return out
}
