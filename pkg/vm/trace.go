package vm

import (
	"fmt"

	"github.com/kristofer/nvmbr/pkg/bytecode"
	"github.com/kristofer/nvmbr/pkg/value"
)

// traceInstruction prints the current value stack followed by the
// disassembly of the instruction about to execute, the DEBUG_TRACE_EXEC
// output the run loop produces when WithTrace is set.
func (v *VM) traceInstruction(chunk *bytecode.Chunk, ip int) {
	fmt.Fprint(v.trace, "          ")
	for i := 0; i < v.stackTop; i++ {
		fmt.Fprintf(v.trace, "[ %s ]", value.String(v.stack[i]))
	}
	fmt.Fprintln(v.trace)
	bytecode.DisassembleInstruction(v.trace, chunk, ip)
}
