package vm

import (
	"fmt"
	"strings"
)

// StackFrame is one call frame's contribution to a runtime error's
// trace: the source line active in that frame, and the name of the
// function or method running there.
type StackFrame struct {
	Line int
	Name string // "script" for the top-level frame, "name()" otherwise
}

// RuntimeError is a fault raised while executing bytecode: a failed
// type check, an undefined variable or property, a stack overflow, or
// an arity mismatch. It carries the call stack active at the moment
// of the fault, innermost frame first.
type RuntimeError struct {
	Message string
	Frames  []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	b.WriteByte('\n')
	for _, f := range e.Frames {
		fmt.Fprintf(&b, "[ line %d ] in %s\n", f.Line, f.Name)
	}
	return b.String()
}

func newRuntimeError(message string, frames []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, Frames: frames}
}
