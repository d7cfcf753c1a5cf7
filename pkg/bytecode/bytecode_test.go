package bytecode

import (
	"testing"

	"github.com/kristofer/nvmbr/pkg/value"
)

func TestWriteRecordsLineOnlyOnChange(t *testing.T) {
	var c Chunk
	c.Write(byte(OpNil), 1)
	c.Write(byte(OpTrue), 1)
	c.Write(byte(OpFalse), 2)

	if len(c.LineRuns()) != 2 {
		t.Fatalf("got %d line runs, want 2 (one per distinct line)", len(c.LineRuns()))
	}
}

func TestGetLineBinarySearch(t *testing.T) {
	var c Chunk
	c.Write(byte(OpNil), 1)
	c.Write(byte(OpTrue), 1)
	c.Write(byte(OpFalse), 5)
	c.Write(byte(OpPop), 5)
	c.Write(byte(OpReturn), 9)

	cases := []struct {
		offset, want int
	}{
		{0, 1}, {1, 1}, {2, 5}, {3, 5}, {4, 9},
	}
	for _, c2 := range cases {
		if got := c.GetLine(c2.offset); got != c2.want {
			t.Fatalf("GetLine(%d) = %d, want %d", c2.offset, got, c2.want)
		}
	}
}

func TestAddConstantIndexing(t *testing.T) {
	var c Chunk
	i1, ok1 := c.AddConstant(value.Number(1))
	i2, ok2 := c.AddConstant(value.Number(2))
	if !ok1 || !ok2 {
		t.Fatal("AddConstant failed under the 255 limit")
	}
	if i1 != 0 || i2 != 1 {
		t.Fatalf("got indices %d, %d, want 0, 1", i1, i2)
	}
}

func TestAddConstantRefusesPast255(t *testing.T) {
	var c Chunk
	for i := 0; i < 255; i++ {
		if _, ok := c.AddConstant(value.Number(float64(i))); !ok {
			t.Fatalf("AddConstant failed early at entry %d", i)
		}
	}
	if _, ok := c.AddConstant(value.Number(999)); ok {
		t.Fatal("AddConstant succeeded past the 255-entry limit")
	}
}

func TestLineRunsRoundTripThroughSetLineRuns(t *testing.T) {
	var c Chunk
	c.Write(byte(OpNil), 1)
	c.Write(byte(OpPop), 3)

	var c2 Chunk
	c2.SetLineRuns(c.LineRuns())
	if c2.GetLine(0) != 1 || c2.GetLine(1) != 3 {
		t.Fatal("SetLineRuns did not restore the original line table")
	}
}

func TestOpStringKnownOpcodes(t *testing.T) {
	if OpConstant.String() != "CONSTANT" {
		t.Fatalf("OpConstant.String() = %q", OpConstant.String())
	}
	if OpLoop.String() != "LOOP" {
		t.Fatalf("OpLoop.String() = %q", OpLoop.String())
	}
	if OpReturn.String() != "RETURN" {
		t.Fatalf("OpReturn.String() = %q", OpReturn.String())
	}
}

func TestOpStringUnknownOpcode(t *testing.T) {
	bogus := Op(255)
	if bogus.String() != "UNKNOWN" {
		t.Fatalf("Op(255).String() = %q, want UNKNOWN", bogus.String())
	}
}
