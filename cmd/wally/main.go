package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"

	"github.com/wally-lang/wally/pkg/bytecode"
	"github.com/wally-lang/wally/pkg/emitter"
	"github.com/wally-lang/wally/pkg/parser"
	"github.com/wally-lang/wally/pkg/vm"
)

const version = "0.1.0"

// Exit codes follow the BSD sysexits convention the interpreter uses
// throughout: 64 usage, 65 compile error, 70 runtime error, 74 I/O error.
const (
	exitUsage = 64
	exitIO    = 74
)

func main() {
	switch {
	case len(os.Args) == 1:
		runREPL()

	case os.Args[1] == "version" || os.Args[1] == "-v" || os.Args[1] == "--version":
		fmt.Printf("wally version %s\n", version)

	case os.Args[1] == "help" || os.Args[1] == "-h" || os.Args[1] == "--help":
		printUsage()

	case os.Args[1] == "repl":
		runREPL()

	case os.Args[1] == "ast":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			os.Exit(exitUsage)
		}
		dumpAST(os.Args[2])

	case os.Args[1] == "disasm" || os.Args[1] == "disassemble":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			os.Exit(exitUsage)
		}
		disassembleFile(os.Args[2])

	case os.Args[1] == "trace":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			os.Exit(exitUsage)
		}
		runFile(os.Args[2], true)

	case len(os.Args) == 2:
		runFile(os.Args[1], false)

	default:
		fmt.Fprintln(os.Stderr, "Usage: wally [path]")
		os.Exit(exitUsage)
	}
}

func printUsage() {
	fmt.Println("wally - a small dynamically-typed language")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  wally                 Start interactive REPL")
	fmt.Println("  wally [file]          Run a wally source file")
	fmt.Println("  wally trace [file]    Run a file with execution tracing")
	fmt.Println("  wally ast [file]      Parse a file and dump its AST")
	fmt.Println("  wally disasm [file]   Compile a file and disassemble the bytecode")
	fmt.Println("  wally repl            Start interactive REPL")
	fmt.Println("  wally version         Show version")
	fmt.Println("  wally help            Show this help")
}

func readSource(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open file \"%s\".\n", path)
		os.Exit(exitIO)
	}
	return string(data)
}

// runFile interprets a source file and exits with the interpreter status.
func runFile(path string, trace bool) {
	source := readSource(path)

	machine := vm.New(os.Stdin, os.Stdout, os.Stderr)
	machine.Trace = trace
	os.Exit(machine.Interpret(source))
}

// runREPL interprets lines one at a time against a persistent VM, so
// definitions survive between inputs.
func runREPL() {
	fmt.Printf("wally %s\n", version)

	machine := vm.New(os.Stdin, os.Stdout, os.Stderr)
	input := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !input.Scan() {
			fmt.Println()
			return
		}

		line := input.Text()
		if line == "" {
			continue
		}

		machine.Interpret(line)
	}
}

// dumpAST parses a file and dumps the tree, one statement at a time.
func dumpAST(path string) {
	source := readSource(path)

	p := parser.New(source)
	statements, err := p.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(vm.StatusCompileError)
	}

	dumper := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true}
	for _, stmt := range statements {
		dumper.Fdump(os.Stdout, stmt)
	}
}

// disassembleFile compiles a file and lists the script chunk followed by
// every function chunk reachable through constant pools.
func disassembleFile(path string) {
	source := readSource(path)

	p := parser.New(source)
	statements, err := p.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(vm.StatusCompileError)
	}

	heap := bytecode.NewHeap()
	function, err := emitter.New(heap).Emit(statements)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(vm.StatusCompileError)
	}

	disassembleFunction(function)
}

func disassembleFunction(function *bytecode.ObjFunction) {
	name := "<script>"
	if function.Name != nil {
		name = function.Name.Chars
	}

	bytecode.DisassembleChunk(os.Stdout, &function.Chunk, name)
	fmt.Println()

	for _, constant := range function.Chunk.Constants {
		if constant.IsFunction() {
			disassembleFunction(constant.AsFunction())
		}
	}
}
