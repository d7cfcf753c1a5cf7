package vm

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, source string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	v := New(WithStdout(&out))
	err := v.Interpret(source)
	return out.String(), err
}

func TestInterpretArithmeticPrecedence(t *testing.T) {
	out, err := run(t, `puts 1 + 2 * 3.`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "7\n" {
		t.Fatalf("got %q, want %q", out, "7\n")
	}
}

func TestInterpretStringConcatenation(t *testing.T) {
	out, err := run(t, `set a <- "hi ". set b <- "there". puts a + b.`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hi there\n" {
		t.Fatalf("got %q, want %q", out, "hi there\n")
	}
}

func TestInterpretClosureUpvalueCapture(t *testing.T) {
	out, err := run(t, `func make(n) -> func inner() -> return n. end return inner. end set c <- make(42)(). puts c.`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "42\n" {
		t.Fatalf("got %q, want %q", out, "42\n")
	}
}

func TestInterpretInheritanceAndSuper(t *testing.T) {
	out, err := run(t, `class A [ greet() -> puts "A". end ] class B < A [ greet() -> super:greet(). puts "B". end ] B():greet().`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "A\nB\n" {
		t.Fatalf("got %q, want %q", out, "A\nB\n")
	}
}

func TestInterpretInitializerReturnsThis(t *testing.T) {
	out, err := run(t, `class P [ init(x) -> this:x <- x. end ] set p <- P(7). puts p:x.`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "7\n" {
		t.Fatalf("got %q, want %q", out, "7\n")
	}
}

func TestInterpretIfElse(t *testing.T) {
	out, err := run(t, `if (false) puts "no". else puts "yes".`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "yes\n" {
		t.Fatalf("got %q, want %q", out, "yes\n")
	}
}

// TestInterpretWhileLoop exercises the backward OpLoop jump directly: a
// forward-only OpJump here would either skip the body entirely or run
// past the chunk, so this is the regression test for that fix.
func TestInterpretWhileLoop(t *testing.T) {
	out, err := run(t, `set i <- 0. while (i < 5) do puts i. i <- i + 1. end`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "0\n1\n2\n3\n4\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestInterpretForLoop(t *testing.T) {
	out, err := run(t, `for (set i <- 0. i < 3. i <- i + 1) puts i.`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "0\n1\n2\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestInterpretSelfInheritanceIsCompileError(t *testing.T) {
	_, err := run(t, `class X < X [ ]`)
	if err == nil {
		t.Fatal("expected a compile error, got none")
	}
	if !strings.Contains(err.Error(), "Classes cannot inherit from themself.") {
		t.Fatalf("error %q does not mention self-inheritance", err.Error())
	}
}

func TestInterpretUndefinedVariableIsRuntimeError(t *testing.T) {
	_, err := run(t, `puts nope.`)
	if err == nil {
		t.Fatal("expected a runtime error, got none")
	}
	if _, ok := err.(*RuntimeError); !ok {
		t.Fatalf("error %T is not *RuntimeError", err)
	}
}

func TestInterpretStackAndFramesResetAfterRun(t *testing.T) {
	v := New(WithStdout(&bytes.Buffer{}))
	if err := v.Interpret(`puts 1 + 1.`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.stackTop != 0 {
		t.Fatalf("stackTop = %d after a completed run, want 0", v.stackTop)
	}
	if v.frameCount != 0 {
		t.Fatalf("frameCount = %d after a completed run, want 0", v.frameCount)
	}
}

func TestInterpretStackResetsAfterRuntimeError(t *testing.T) {
	v := New(WithStdout(&bytes.Buffer{}))
	if err := v.Interpret(`puts nope.`); err == nil {
		t.Fatal("expected a runtime error")
	}
	if v.stackTop != 0 {
		t.Fatalf("stackTop = %d after a runtime error, want 0", v.stackTop)
	}
	if v.frameCount != 0 {
		t.Fatalf("frameCount = %d after a runtime error, want 0", v.frameCount)
	}
	if v.openUpvals != nil {
		t.Fatal("openUpvals not cleared after a runtime error")
	}
}

func TestInterpretStringInterningGivesPointerEquality(t *testing.T) {
	out, err := run(t, `set a <- "same". set b <- "same". puts a == b.`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "true\n" {
		t.Fatalf("got %q, want %q", out, "true\n")
	}
}

func TestInterpretRuntimeErrorIncludesStackTrace(t *testing.T) {
	_, err := run(t, `func boom() -> puts nope. end boom().`)
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	rtErr, ok := err.(*RuntimeError)
	if !ok {
		t.Fatalf("error %T is not *RuntimeError", err)
	}
	if len(rtErr.Frames) != 2 {
		t.Fatalf("got %d frames, want 2 (boom() and script)", len(rtErr.Frames))
	}
	if rtErr.Frames[0].Name != "boom()" {
		t.Fatalf("innermost frame name = %q, want %q", rtErr.Frames[0].Name, "boom()")
	}
	if rtErr.Frames[1].Name != "script" {
		t.Fatalf("outermost frame name = %q, want %q", rtErr.Frames[1].Name, "script")
	}
}

func TestGarbageCollectionUnderStress(t *testing.T) {
	var out bytes.Buffer
	v := New(WithStdout(&out), WithStressGC())
	source := `
func make(n) ->
  func inner() -> return n. end
  return inner.
end
set total <- 0.
set i <- 0.
while (i < 50) do
  set c <- make(i).
  total <- total + c().
  i <- i + 1.
end
puts total.
`
	if err := v.Interpret(source); err != nil {
		t.Fatalf("unexpected error under stress GC: %v", err)
	}
	if out.String() != "1225\n" {
		t.Fatalf("got %q, want %q", out.String(), "1225\n")
	}
}

// TestGarbageCollectionByteAccountingInvariant checks the two
// invariants a sweep is supposed to leave standing: allocedBytes equals
// the sum of every surviving object's tracked size, and nextGC sits at
// exactly twice allocedBytes. A forgotten decrement in sweep would let
// allocedBytes (and therefore nextGC) climb forever regardless of how
// much of the heap a collection actually reclaimed.
func TestGarbageCollectionByteAccountingInvariant(t *testing.T) {
	v := New(WithStdout(io.Discard), WithStressGC())
	source := `
func make(n) ->
  func inner() -> return n. end
  return inner.
end
set total <- 0.
set i <- 0.
while (i < 30) do
  set c <- make(i).
  total <- total + c().
  i <- i + 1.
end
`
	require.NoError(t, v.Interpret(source))

	v.collectGarbage()

	var live int
	for o := v.objects; o != nil; o = o.Next {
		live += o.Size
	}
	assert.Equal(t, live, v.allocedBytes, "allocedBytes must equal the sum of live object sizes after a sweep")
	assert.Equal(t, v.allocedBytes*2, v.nextGC, "nextGC must be twice allocedBytes after a sweep")
}
