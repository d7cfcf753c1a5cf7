package bytecode

import (
	"fmt"
	"io"

	"github.com/kristofer/nvmbr/pkg/value"
)

// Disassemble writes a human-readable listing of chunk to w. It is a
// pure developer aid — it has no effect on chunk or on execution
// semantics, matching the original's DEBUG_PRINT_CODE-gated disassembler.
func Disassemble(w io.Writer, chunk *Chunk, name string) {
	fmt.Fprintf(w, "[ %s ]\n", name)
	for offset := 0; offset < len(chunk.Code); {
		offset = DisassembleInstruction(w, chunk, offset)
	}
}

// DisassembleInstruction prints the instruction at offset and returns
// the offset of the next instruction.
func DisassembleInstruction(w io.Writer, chunk *Chunk, offset int) int {
	fmt.Fprintf(w, "%04d ", offset)

	if line, ok := chunk.LineAt(offset); ok {
		fmt.Fprintf(w, "%4d ", line)
	} else {
		fmt.Fprint(w, "   | ")
	}

	op := Op(chunk.Code[offset])
	switch op {
	case OpConstant:
		return constantInstruction(w, op.String(), chunk, offset)
	case OpNil, OpTrue, OpFalse, OpPop, OpEqual, OpGreater, OpLess, OpLarrow,
		OpAdd, OpSub, OpMul, OpDiv, OpNot, OpNegate, OpPrint, OpCloseUpval, OpReturn, OpInherit:
		return simpleInstruction(w, op.String(), offset)
	case OpGetLocal, OpSetLocal, OpGetUpval, OpSetUpval, OpCall:
		return byteInstruction(w, op.String(), chunk, offset)
	case OpGetGlobal, OpDefGlobal, OpSetGlobal, OpGetProp, OpSetProp, OpGetSuper, OpClass, OpMethod:
		return constantInstruction(w, op.String(), chunk, offset)
	case OpJump, OpJumpIfFalse:
		return jumpInstruction(w, op.String(), 1, chunk, offset)
	case OpLoop:
		return jumpInstruction(w, op.String(), -1, chunk, offset)
	case OpInvoke, OpInvokeSuper:
		return invokeInstruction(w, op.String(), chunk, offset)
	case OpClosure:
		return closureInstruction(w, chunk, offset)
	default:
		fmt.Fprintf(w, "Unknown or invalid opcode `%d`.\n", op)
		return offset + 1
	}
}

func simpleInstruction(w io.Writer, name string, offset int) int {
	fmt.Fprintf(w, "%s\n", name)
	return offset + 1
}

func byteInstruction(w io.Writer, name string, chunk *Chunk, offset int) int {
	slot := chunk.Code[offset+1]
	fmt.Fprintf(w, "%-16s %4d\n", name, slot)
	return offset + 2
}

func constantInstruction(w io.Writer, name string, chunk *Chunk, offset int) int {
	constant := chunk.Code[offset+1]
	fmt.Fprintf(w, "%-16s %4d '%s'\n", name, constant, value.String(chunk.Constants[constant]))
	return offset + 2
}

func invokeInstruction(w io.Writer, name string, chunk *Chunk, offset int) int {
	constant := chunk.Code[offset+1]
	argCount := chunk.Code[offset+2]
	fmt.Fprintf(w, "%-16s (%d args) %4d `%s`\n", name, argCount, constant, value.String(chunk.Constants[constant]))
	return offset + 3
}

func jumpInstruction(w io.Writer, name string, sign int, chunk *Chunk, offset int) int {
	jump := int(chunk.Code[offset+1])<<8 | int(chunk.Code[offset+2])
	fmt.Fprintf(w, "%-16s %4d -> %d\n", name, offset, offset+3+sign*jump)
	return offset + 3
}

func closureInstruction(w io.Writer, chunk *Chunk, offset int) int {
	offset++
	constant := chunk.Code[offset]
	offset++
	fmt.Fprintf(w, "%-16s %4d %s\n", "CLOSURE", constant, value.String(chunk.Constants[constant]))

	fn := value.AsFunction(value.AsObj(chunk.Constants[constant]))
	for i := 0; i < fn.UpvalCount; i++ {
		isLocal := chunk.Code[offset]
		offset++
		index := chunk.Code[offset]
		offset++
		kind := "upval"
		if isLocal != 0 {
			kind = "local"
		}
		fmt.Fprintf(w, "%04d    |           %s %d\n", offset-2, kind, index)
	}
	return offset
}
