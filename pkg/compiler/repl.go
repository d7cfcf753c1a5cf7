package compiler

import (
	"strings"
	"unicode"

	"github.com/kristofer/nvmbr/pkg/value"
)

// REPL compiles buffered lines of input one statement at a time. Unlike
// a source file, a REPL session has no single top-level scope spanning
// every line: each complete statement compiles as its own script, the
// same way the interpreter this was ported from re-invokes its
// single-shot `interp` entry point once per statement read from stdin.
// Variables declared with `set` at the top level still persist from one
// statement to the next, because `set` at scope depth zero compiles to
// OP_DEF_GLOBAL, and globals live in the VM, not in any per-line
// compiler state.
//
// A statement can span more than one line of input — a `do...end`
// block, a `func...end` body, or a `class [ ... ]` body typed
// interactively doesn't carry its own trailing `.` until its closing
// keyword or bracket. CompileLine buffers raw lines and only treats the
// statement as complete once every `do`/`end` pair and `[`/`]` bracket
// is balanced and the buffered text ends in one of NVMbr's three
// statement-closing tokens (`.`, `end`, `]`). This generalizes the
// plain trailing-period check the interpreter this was ported from
// uses in its own REPL loop, since that language has no block
// constructs that close on anything other than a period.
type REPL struct {
	buf strings.Builder
}

// NewREPL returns a REPL ready to compile lines against whatever VM
// the caller runs the results on.
func NewREPL() *REPL { return &REPL{} }

// Buffering reports whether a statement is still incomplete, so a
// caller can switch to a continuation prompt instead of its normal one.
func (r *REPL) Buffering() bool { return r.buf.Len() > 0 }

// CompileLine feeds one line of raw input into the buffer. complete is
// false while the buffered statement is still open; the caller should
// keep reading lines and feeding them in rather than treat a nil fn as
// a compile error. Once complete, fn and errs are the result of
// compiling the whole buffered statement as a top-level script, and the
// buffer is cleared for the next one.
func (r *REPL) CompileLine(line string) (fn *value.ObjFunction, errs []*CompileError, complete bool) {
	r.buf.WriteString(line)
	r.buf.WriteByte('\n')

	input := r.buf.String()
	if !statementComplete(input) {
		return nil, nil, false
	}

	r.buf.Reset()
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, nil, true
	}
	fn, errs = Compile(trimmed)
	return fn, errs, true
}

// statementComplete reports whether s, taken as buffered REPL input,
// ends a top-level statement: every block opener (`do`, or the `->`
// that introduces a func/method body) has a matching `end`, every
// `[`/`]` bracket is balanced, and the buffered text's trimmed form
// ends in `.`, `end`, or `]` — the three tokens that close a top-level
// statement in NVMbr's grammar. Text inside string literals is ignored
// so a field name or literal containing those words or brackets can't
// confuse the balance count.
func statementComplete(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return true
	}

	runes := []rune(s)
	depth := 0
	inString := false
	var word strings.Builder
	flushWord := func() {
		switch word.String() {
		case "do":
			depth++
		case "end":
			depth--
		}
		word.Reset()
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if inString {
			if r == '"' {
				inString = false
			}
			continue
		}
		switch {
		case r == '"':
			flushWord()
			inString = true
		case r == '[':
			flushWord()
			depth++
		case r == ']':
			flushWord()
			depth--
		case r == '-' && i+1 < len(runes) && runes[i+1] == '>':
			flushWord()
			depth++
			i++
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			word.WriteRune(r)
		default:
			flushWord()
		}
	}
	flushWord()

	if depth > 0 {
		return false
	}
	return strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "end") || strings.HasSuffix(trimmed, "]")
}
