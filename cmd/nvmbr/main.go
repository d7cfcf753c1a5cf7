// Command nvmbr is the NVMbr language's CLI: an interactive REPL, a
// source/bytecode runner, and a compile/disassemble pair for
// inspecting `.nvb` bytecode images.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kristofer/nvmbr/pkg/bytecode"
	"github.com/kristofer/nvmbr/pkg/compiler"
	"github.com/kristofer/nvmbr/pkg/vm"
)

const version = "0.0.2"

func main() {
	if len(os.Args) < 2 {
		runREPL()
		return
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		fmt.Printf("nvmbr version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "repl":
		runREPL()
	case "run":
		if len(os.Args) < 3 {
			usageErr("no file specified")
		}
		runFile(os.Args[2])
	case "build":
		if len(os.Args) < 3 {
			usageErr("build needs an input file\n\nUsage: nvmbr build <input.nvm> [output.nvb]")
		}
		in := os.Args[2]
		out := ""
		if len(os.Args) >= 4 {
			out = os.Args[3]
		}
		buildFile(in, out)
	case "disasm", "disassemble":
		if len(os.Args) < 3 {
			usageErr("disasm needs a file\n\nUsage: nvmbr disasm <file.nvb>")
		}
		disasmFile(os.Args[2])
	default:
		runFile(os.Args[1])
	}
}

// usageErr prints message to stderr and exits 64, the Usage error code
// this was ported from (`Usage: nvmbrc [path2file]` exits 64 on bad
// argc; the subcommand-specific messages above are this CLI's own
// addition, the exit code is not).
func usageErr(message string) {
	fmt.Fprintln(os.Stderr, message)
	os.Exit(64)
}

func printUsage() {
	fmt.Println("nvmbr - a small class-based scripting language")
	fmt.Println("\nUsage:")
	fmt.Println("  nvmbr                        Start the REPL")
	fmt.Println("  nvmbr [file]                 Run a .nvm source file")
	fmt.Println("  nvmbr run <file>              Run a .nvm source file")
	fmt.Println("  nvmbr build <in> [out]        Compile .nvm to a .nvb bytecode image")
	fmt.Println("  nvmbr disasm <file.nvb>       Disassemble a bytecode image")
	fmt.Println("  nvmbr repl                    Start the REPL")
	fmt.Println("  nvmbr version                 Show version")
	fmt.Println("  nvmbr help                    Show this help")
}

// runFile runs path, compiling from source unless it carries the .nvb
// bytecode-image extension.
func runFile(path string) {
	if filepath.Ext(path) == ".nvb" {
		runBytecodeFile(path)
		return
	}
	runSourceFile(path)
}

func runSourceFile(path string) {
	src := readFileOrDie(path)

	v := vm.New()
	if err := v.Interpret(string(src)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func runBytecodeFile(path string) {
	file, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open `%s`.\n", path)
		os.Exit(74)
	}
	defer file.Close()

	chunk, name, err := bytecode.Decode(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not read `%s`: %v\n", path, err)
		os.Exit(74)
	}

	v := vm.New()
	if err := v.InterpretChunk(chunk, name); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an Interpret error to the exit-code contract this
// was ported from: 65 for a compile-time failure, 70 for anything that
// faulted at runtime.
func exitCodeFor(err error) int {
	if _, ok := err.(*vm.RuntimeError); ok {
		return 70
	}
	return 65
}

func buildFile(inputFile, outputFile string) {
	if outputFile == "" {
		if filepath.Ext(inputFile) == ".nvm" {
			outputFile = strings.TrimSuffix(inputFile, ".nvm") + ".nvb"
		} else {
			outputFile = inputFile + ".nvb"
		}
	}

	src := readFileOrDie(inputFile)

	fn, errs := compiler.Compile(string(src))
	if fn == nil {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e)
		}
		os.Exit(65)
	}

	out, err := os.Create(outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not create `%s`.\n", outputFile)
		os.Exit(74)
	}
	defer out.Close()

	chunk := fn.Chunk.(*bytecode.Chunk)
	if err := bytecode.Encode(out, chunk, filepath.Base(inputFile)); err != nil {
		fmt.Fprintf(os.Stderr, "Could not write `%s`: %v\n", outputFile, err)
		os.Exit(74)
	}

	fmt.Printf("Built %s -> %s\n", inputFile, outputFile)
}

func disasmFile(path string) {
	file, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open `%s`.\n", path)
		os.Exit(74)
	}
	defer file.Close()

	chunk, name, err := bytecode.Decode(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not read `%s`: %v\n", path, err)
		os.Exit(74)
	}

	bytecode.Disassemble(os.Stdout, chunk, name)
}

func readFileOrDie(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open `%s`.\n", path)
		os.Exit(74)
	}
	return data
}

// runREPL starts an interactive session. Each complete statement
// compiles to its own top-level function, but every statement runs
// against the same VM, so a `set` declaration or class defined earlier
// stays visible later. A statement can span several lines — the REPL
// buffers input until a do/end, func/end, or class `[...]` body closes
// — so the prompt switches to a continuation prompt while a statement
// is still open.
func runREPL() {
	fmt.Printf("Welcome to the NVMbr REPL\n")
	fmt.Printf("Version %s\n\n", version)

	v := vm.New()
	repl := compiler.NewREPL()
	in := bufio.NewScanner(os.Stdin)

	for {
		if repl.Buffering() {
			fmt.Print("....> ")
		} else {
			fmt.Print("[ repl ] -> ")
		}

		if !in.Scan() {
			fmt.Println()
			break
		}
		line := in.Text()

		if !repl.Buffering() {
			switch strings.TrimSpace(line) {
			case ":quit", ":exit":
				fmt.Println("Goodbye!")
				return
			case ":help":
				printREPLHelp()
				continue
			case "":
				continue
			}
		}

		fn, errs, complete := repl.CompileLine(line)
		if !complete {
			continue
		}
		if fn == nil {
			for _, e := range errs {
				fmt.Fprintln(os.Stderr, e)
			}
			continue
		}

		if err := v.InterpretFunction(fn); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}

	if err := in.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
	}
}

// printREPLHelp prints the REPL's command and syntax reference.
func printREPLHelp() {
	fmt.Println("NVMbr REPL Help")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  :help     Show this help message")
	fmt.Println("  :quit     Exit the REPL")
	fmt.Println("  :exit     Exit the REPL")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  - Enter NVMbr statements and press Enter")
	fmt.Println("  - Statements end with a period (.)")
	fmt.Println("  - `do...end`, `func...end`, and `class [...]` bodies may span")
	fmt.Println("    several lines; the prompt changes to `....>` until they close")
	fmt.Println("  - Variables declared with `set` persist across statements")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  [ repl ] -> set x <- 1.")
	fmt.Println("  [ repl ] -> puts x + 1.")
	fmt.Println("  [ repl ] -> func square(n) ->")
	fmt.Println("  ....> return n * n.")
	fmt.Println("  ....> end")
}
