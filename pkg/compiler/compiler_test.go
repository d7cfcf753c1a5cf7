package compiler

import (
	"strings"
	"testing"

	"github.com/kristofer/nvmbr/pkg/bytecode"
)

func mustCompile(t *testing.T, source string) *bytecode.Chunk {
	t.Helper()
	fn, errs := Compile(source)
	if fn == nil {
		t.Fatalf("unexpected compile error for %q: %v", source, errs)
	}
	return fn.Chunk.(*bytecode.Chunk)
}

func lastOp(chunk *bytecode.Chunk) bytecode.Op {
	return bytecode.Op(chunk.Code[len(chunk.Code)-2])
}

func TestCompileSimpleExpressionStatement(t *testing.T) {
	chunk := mustCompile(t, `1 + 2.`)
	if len(chunk.Code) == 0 {
		t.Fatal("empty chunk for a valid expression statement")
	}
	// script body always ends with an implicit NIL; RETURN.
	if chunk.Code[len(chunk.Code)-1] != byte(bytecode.OpReturn) {
		t.Fatal("script chunk does not end with OpReturn")
	}
}

func TestCompileScriptEndsWithImplicitNilReturn(t *testing.T) {
	chunk := mustCompile(t, `set x <- 1.`)
	n := len(chunk.Code)
	if chunk.Code[n-2] != byte(bytecode.OpNil) || chunk.Code[n-1] != byte(bytecode.OpReturn) {
		t.Fatalf("script did not end with implicit NIL; RETURN")
	}
}

func TestCompileWhileEmitsBackwardLoop(t *testing.T) {
	chunk := mustCompile(t, `set i <- 0. while (i < 3) do i <- i + 1. end`)
	found := false
	for _, b := range chunk.Code {
		if bytecode.Op(b) == bytecode.OpLoop {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("while loop did not emit OP_LOOP")
	}
}

func TestCompileForEmitsBackwardLoop(t *testing.T) {
	chunk := mustCompile(t, `for (set i <- 0. i < 3. i <- i + 1) puts i.`)
	found := false
	for _, b := range chunk.Code {
		if bytecode.Op(b) == bytecode.OpLoop {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("for loop did not emit OP_LOOP")
	}
}

func TestCompileGetPropCompilesOpGetProp(t *testing.T) {
	chunk := mustCompile(t, `class C [ ] set c <- C(). puts c:field.`)
	found := false
	for _, b := range chunk.Code {
		if bytecode.Op(b) == bytecode.OpGetProp {
			found = true
		}
	}
	if !found {
		t.Fatal("property read did not emit OP_GET_PROP")
	}
}

func TestCompileSetPropCompilesOpSetProp(t *testing.T) {
	chunk := mustCompile(t, `class C [ ] set c <- C(). c:field <- 1.`)
	found := false
	for _, b := range chunk.Code {
		if bytecode.Op(b) == bytecode.OpSetProp {
			found = true
		}
	}
	if !found {
		t.Fatal("property assignment did not emit OP_SET_PROP")
	}
}

func TestCompileInvokeFusesCallWithPropertyLookup(t *testing.T) {
	chunk := mustCompile(t, `class C [ m() -> return 1. end ] C():m().`)
	found := false
	for _, b := range chunk.Code {
		if bytecode.Op(b) == bytecode.OpInvoke {
			found = true
		}
	}
	if !found {
		t.Fatal("method call did not emit OP_INVOKE")
	}
}

func TestCompileSelfInheritanceIsAnError(t *testing.T) {
	_, errs := Compile(`class X < X [ ]`)
	if len(errs) == 0 {
		t.Fatal("expected a compile error for self-inheritance")
	}
	if !strings.Contains(errs[0].Message, "Classes cannot inherit from themself.") {
		t.Fatalf("error message %q does not match", errs[0].Message)
	}
}

func TestCompileUsingLocalInItsOwnInitializerIsAnError(t *testing.T) {
	_, errs := Compile(`func f() -> set x <- x. end`)
	if len(errs) == 0 {
		t.Fatal("expected a compile error")
	}
}

func TestCompileUnterminatedStringIsAnError(t *testing.T) {
	_, errs := Compile(`puts "unterminated.`)
	if len(errs) == 0 {
		t.Fatal("expected a compile error for an unterminated string")
	}
}

func TestCompileReturnFromTopLevelIsAnError(t *testing.T) {
	_, errs := Compile(`return 1.`)
	if len(errs) == 0 {
		t.Fatal("expected a compile error for a top-level return")
	}
}

func TestCompileAccumulatesMultipleErrorsViaPanicModeRecovery(t *testing.T) {
	_, errs := Compile(`return 1. return 2. return 3.`)
	if len(errs) < 2 {
		t.Fatalf("expected panic-mode recovery to surface multiple errors, got %d", len(errs))
	}
}

func TestCompileErrorsJoinsMessages(t *testing.T) {
	errs := CompileErrors{
		&CompileError{Line: 1, Message: "first"},
		&CompileError{Line: 2, Message: "second"},
	}
	joined := errs.Error()
	if !strings.Contains(joined, "first") || !strings.Contains(joined, "second") {
		t.Fatalf("joined error %q missing a sub-message", joined)
	}
	if !strings.Contains(joined, "\n") {
		t.Fatal("joined error does not separate messages by newline")
	}
}

func TestCompileErrorFormatsLineAndLocation(t *testing.T) {
	e := &CompileError{Line: 3, Where: "`x`", Message: "broken"}
	got := e.Error()
	want := "[ line 3 ] Err at `x`: broken"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCompileErrorFormatsWithoutLocation(t *testing.T) {
	e := &CompileError{Line: 5, Message: "broken"}
	got := e.Error()
	want := "[ line 5 ] Err: broken"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNewREPLCompilesIndependentLines(t *testing.T) {
	repl := NewREPL()
	fn1, errs1, complete1 := repl.CompileLine(`set x <- 1.`)
	if !complete1 {
		t.Fatal("single-line statement ending in `.` should be complete")
	}
	if fn1 == nil {
		t.Fatalf("unexpected error compiling first line: %v", errs1)
	}
	fn2, errs2, complete2 := repl.CompileLine(`puts x.`)
	if !complete2 {
		t.Fatal("single-line statement ending in `.` should be complete")
	}
	if fn2 == nil {
		t.Fatalf("unexpected error compiling second line: %v", errs2)
	}
}

func TestNewREPLBuffersMultiLineStatementUntilBlockCloses(t *testing.T) {
	repl := NewREPL()
	fn, _, complete := repl.CompileLine(`func f() ->`)
	if complete {
		t.Fatal("statement with no trailing `.` should still be buffering")
	}
	if fn != nil {
		t.Fatal("an incomplete statement must not produce a function")
	}
	if !repl.Buffering() {
		t.Fatal("REPL should report it is buffering after an incomplete line")
	}

	fn, _, complete = repl.CompileLine(`return 1.`)
	if complete {
		t.Fatal("statement body still open (no `end`) should still be buffering")
	}

	fn, errs, complete := repl.CompileLine(`end`)
	if !complete {
		t.Fatal("statement closed by `end` with a trailing `.` from the prior line should be complete")
	}
	if fn == nil {
		t.Fatalf("unexpected error compiling buffered multi-line statement: %v", errs)
	}
	if repl.Buffering() {
		t.Fatal("REPL should clear its buffer once a statement completes")
	}
}
