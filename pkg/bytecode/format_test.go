package bytecode

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kristofer/nvmbr/pkg/value"
)

func TestDisassembleSimpleInstruction(t *testing.T) {
	var c Chunk
	c.Write(byte(OpReturn), 1)

	var buf bytes.Buffer
	Disassemble(&buf, &c, "test")

	out := buf.String()
	if !strings.Contains(out, "RETURN") {
		t.Fatalf("disassembly %q does not mention RETURN", out)
	}
}

func TestDisassembleConstantInstructionShowsValue(t *testing.T) {
	var c Chunk
	idx, _ := c.AddConstant(value.Number(42))
	c.Write(byte(OpConstant), 1)
	c.Write(byte(idx), 1)

	var buf bytes.Buffer
	Disassemble(&buf, &c, "test")

	out := buf.String()
	if !strings.Contains(out, "CONSTANT") || !strings.Contains(out, "42") {
		t.Fatalf("disassembly %q does not show the constant's value", out)
	}
}

func TestDisassembleJumpShowsForwardTarget(t *testing.T) {
	var c Chunk
	c.Write(byte(OpJumpIfFalse), 1)
	c.Write(0, 1)
	c.Write(5, 1)
	c.Write(byte(OpPop), 1)

	var buf bytes.Buffer
	offset := DisassembleInstruction(&buf, &c, 0)
	if offset != 3 {
		t.Fatalf("DisassembleInstruction returned next offset %d, want 3", offset)
	}
	if !strings.Contains(buf.String(), "-> 8") {
		t.Fatalf("JUMP_IF_FALSE disassembly %q does not show forward target 8", buf.String())
	}
}

func TestDisassembleLoopShowsBackwardTarget(t *testing.T) {
	var c Chunk
	// Five bytes of padding so a backward jump has somewhere to land.
	for i := 0; i < 5; i++ {
		c.Write(byte(OpNil), 1)
	}
	c.Write(byte(OpLoop), 1)
	c.Write(0, 1)
	c.Write(8, 1) // jump back 8 from offset 5+3=8 -> target 0

	var buf bytes.Buffer
	offset := DisassembleInstruction(&buf, &c, 5)
	if offset != 8 {
		t.Fatalf("DisassembleInstruction returned next offset %d, want 8", offset)
	}
	if !strings.Contains(buf.String(), "-> 0") {
		t.Fatalf("LOOP disassembly %q does not show backward target 0", buf.String())
	}
}

func TestDisassembleByteInstructionShowsSlot(t *testing.T) {
	var c Chunk
	c.Write(byte(OpGetLocal), 1)
	c.Write(3, 1)

	var buf bytes.Buffer
	DisassembleInstruction(&buf, &c, 0)
	if !strings.Contains(buf.String(), "GET_LOCAL") || !strings.Contains(buf.String(), "3") {
		t.Fatalf("byte instruction disassembly %q missing opcode/slot", buf.String())
	}
}

func TestDisassembleUnknownOpcode(t *testing.T) {
	var c Chunk
	c.Write(255, 1)

	var buf bytes.Buffer
	DisassembleInstruction(&buf, &c, 0)
	if !strings.Contains(buf.String(), "Unknown or invalid opcode") {
		t.Fatalf("unknown-opcode disassembly %q missing the expected message", buf.String())
	}
}
