// Package emitter lowers the AST into bytecode chunks.
//
// The emitter walks statements and expressions, appending opcodes to the
// chunk of the function currently being built. Nested function and method
// declarations open a nested compiler record; the chain of records links
// every in-flight function, and doubles as a garbage collector root so a
// collection triggered mid-emission cannot sweep a half-built function.
//
// Forward control flow uses jump instructions patched after their target
// is known; `break` and `continue` collect their jump offsets in per-loop
// lists patched when the loop closes.
package emitter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wally-lang/wally/pkg/ast"
	"github.com/wally-lang/wally/pkg/bytecode"
	"github.com/wally-lang/wally/pkg/scanner"
)

// compiler tracks one function being built, linked to the compiler of the
// enclosing function.
type compiler struct {
	enclosing *compiler
	function  *bytecode.ObjFunction

	// Loop bookkeeping for break/continue, per function so a loop cannot
	// be jumped out of across a function boundary.
	loopDepth int
	breaks    [][]int
	continues [][]int

	// scopeDepth counts open block scopes; the for-initializer scope is not
	// counted, since break and continue never jump out of it. loopScopes
	// holds the depth at each enclosing loop so break/continue can emit the
	// scope_end instructions their jump would otherwise skip.
	scopeDepth int
	loopScopes []int
}

// classContext tracks the class whose methods are being compiled, so the
// emitter can reject `base` outside a child-class method.
type classContext struct {
	enclosing *classContext
	hasParent bool
}

// Emitter lowers ASTs into functions. One emitter can compile any number
// of programs against the same heap; its in-flight functions are
// registered as collector roots for the heap's lifetime.
type Emitter struct {
	heap         *bytecode.Heap
	current      *compiler
	currentClass *classContext

	hadError bool
	errors   []string
}

// New creates an emitter allocating onto heap.
func New(heap *bytecode.Heap) *Emitter {
	e := &Emitter{heap: heap}

	// Functions under construction are reachable only through the
	// compiler chain; expose it to the collector.
	heap.AddRoots(func(h *bytecode.Heap) {
		for c := e.current; c != nil; c = c.enclosing {
			h.MarkObject(c.function)
		}
	})

	return e
}

// Emit compiles a program into its top-level script function. On any
// compile error nil is returned along with every accumulated message.
func (e *Emitter) Emit(statements []ast.Stmt) (*bytecode.ObjFunction, error) {
	e.hadError = false
	e.errors = nil

	e.beginCompiler(nil, 0, bytecode.FuncTypeScript)

	lastLine := 0
	for _, stmt := range statements {
		e.compileStatement(stmt)
		lastLine = stmt.Line()
	}

	function := e.endCompiler(true, lastLine)

	if e.hadError {
		return nil, errors.New(strings.Join(e.errors, "\n"))
	}
	return function, nil
}

// ------------ ERRORS ------------

func (e *Emitter) error(line int, message string) {
	e.hadError = true
	e.errors = append(e.errors, fmt.Sprintf("[line %d] Emitter Error : %s", line, message))
}

// ------------ EMITTING BYTES ------------

func (e *Emitter) currentChunk() *bytecode.Chunk {
	return &e.current.function.Chunk
}

func (e *Emitter) emitByte(b byte, line int) {
	e.currentChunk().Write(b, line)
}

func (e *Emitter) emitOp(op bytecode.OpCode, line int) {
	e.emitByte(byte(op), line)
}

func (e *Emitter) emitOps(op bytecode.OpCode, operand byte, line int) {
	e.emitByte(byte(op), line)
	e.emitByte(operand, line)
}

func (e *Emitter) makeConstant(value bytecode.Value, line int) byte {
	// Reuse an existing slot for an equal constant; names and repeated
	// literals would exhaust the one-byte index space otherwise.
	for i, existing := range e.currentChunk().Constants {
		if bytecode.ValuesEqual(existing, value) {
			return byte(i)
		}
	}

	constant := e.currentChunk().AddConstant(value)
	if constant > 255 {
		e.error(line, "Too many constants in one chunk.")
		return 0
	}
	return byte(constant)
}

func (e *Emitter) stringConstant(s string, line int) byte {
	return e.makeConstant(bytecode.ObjVal(e.heap.CopyString(s)), line)
}

func (e *Emitter) emitConstant(value bytecode.Value, line int) {
	e.emitOps(bytecode.OpConstant, e.makeConstant(value, line), line)
}

// emitJump emits a jump with a placeholder operand and returns the operand
// offset for patchJump.
func (e *Emitter) emitJump(op bytecode.OpCode, line int) int {
	e.emitOp(op, line)
	e.emitByte(0xff, line)
	e.emitByte(0xff, line)
	return len(e.currentChunk().Code) - 2
}

// patchJump points a previously emitted jump at the current position.
func (e *Emitter) patchJump(offset, line int) {
	// -2 adjusts for the operand bytes of the jump itself.
	jump := len(e.currentChunk().Code) - offset - 2

	if jump > 0xffff {
		e.error(line, "Too much code to jump over.")
	}

	e.currentChunk().Code[offset] = byte(jump >> 8)
	e.currentChunk().Code[offset+1] = byte(jump)
}

// emitLoop emits a backward jump to loopStart.
func (e *Emitter) emitLoop(loopStart, line int) {
	e.emitOp(bytecode.OpLoop, line)

	offset := len(e.currentChunk().Code) - loopStart + 2
	if offset > 0xffff {
		e.error(line, "Loop body too large.")
	}

	e.emitByte(byte(offset>>8), line)
	e.emitByte(byte(offset), line)
}

// ------------ LOOP BOOKKEEPING ------------

func (e *Emitter) beginLoop() {
	e.current.loopDepth++
	e.current.breaks = append(e.current.breaks, nil)
	e.current.continues = append(e.current.continues, nil)
	e.current.loopScopes = append(e.current.loopScopes, e.current.scopeDepth)
}

func (e *Emitter) endLoop() {
	e.current.loopDepth--
	e.current.breaks = e.current.breaks[:len(e.current.breaks)-1]
	e.current.continues = e.current.continues[:len(e.current.continues)-1]
	e.current.loopScopes = e.current.loopScopes[:len(e.current.loopScopes)-1]
}

// closeScopesToLoop emits the scope_end instructions a break or continue
// jump would skip when leaving blocks opened inside the loop body.
func (e *Emitter) closeScopesToLoop(line int) {
	loopScope := e.current.loopScopes[len(e.current.loopScopes)-1]
	for depth := e.current.scopeDepth; depth > loopScope; depth-- {
		e.emitOp(bytecode.OpScopeEnd, line)
	}
}

func (e *Emitter) patchContinues(line int) {
	jumps := &e.current.continues[len(e.current.continues)-1]
	for _, offset := range *jumps {
		e.patchJump(offset, line)
	}
	*jumps = nil
}

func (e *Emitter) patchBreaks(line int) {
	jumps := &e.current.breaks[len(e.current.breaks)-1]
	for _, offset := range *jumps {
		e.patchJump(offset, line)
	}
	*jumps = nil
}

// ------------ EXPRESSIONS ------------

func (e *Emitter) compileExpression(expr ast.Expr) {
	if expr == nil {
		return
	}

	switch expr := expr.(type) {
	case *ast.NumberLiteral:
		e.emitConstant(bytecode.NumberVal(expr.Value), expr.Ln)

	case *ast.StringLiteral:
		e.emitConstant(bytecode.ObjVal(e.heap.CopyString(expr.Value)), expr.Ln)

	case *ast.BoolLiteral:
		if expr.Value {
			e.emitOp(bytecode.OpTrue, expr.Ln)
		} else {
			e.emitOp(bytecode.OpFalse, expr.Ln)
		}

	case *ast.NullLiteral:
		e.emitOp(bytecode.OpNull, expr.Ln)

	case *ast.Binary:
		e.compileExpression(expr.Left)
		e.compileExpression(expr.Right)

		switch expr.Op {
		case scanner.TokenPlus:
			e.emitOp(bytecode.OpAdd, expr.Ln)
		case scanner.TokenMinus, scanner.TokenMinusEq:
			e.emitOp(bytecode.OpSubtract, expr.Ln)
		case scanner.TokenStar:
			e.emitOp(bytecode.OpMultiply, expr.Ln)
		case scanner.TokenSlash:
			e.emitOp(bytecode.OpDivide, expr.Ln)
		case scanner.TokenEqualEqual:
			e.emitOp(bytecode.OpEqual, expr.Ln)
		case scanner.TokenBangEqual:
			e.emitOp(bytecode.OpNotEqual, expr.Ln)
		case scanner.TokenGreater:
			e.emitOp(bytecode.OpGreater, expr.Ln)
		case scanner.TokenGreaterEqual:
			e.emitOp(bytecode.OpGreaterEqual, expr.Ln)
		case scanner.TokenLess:
			e.emitOp(bytecode.OpLess, expr.Ln)
		case scanner.TokenLessEqual:
			e.emitOp(bytecode.OpLessEqual, expr.Ln)
		default:
			e.error(expr.Ln, "Unknown operator in binary expression.")
		}

	case *ast.Unary:
		e.compileExpression(expr.Target)

		switch expr.Op {
		case scanner.TokenMinus:
			e.emitOp(bytecode.OpNegate, expr.Ln)
		case scanner.TokenBang:
			e.emitOp(bytecode.OpNot, expr.Ln)
		default:
			e.error(expr.Ln, "Unrecognized operand in unary expression.")
		}

	case *ast.Logical:
		e.compileLogical(expr)

	case *ast.Ternary:
		e.compileExpression(expr.Condition)
		e.compileExpression(expr.ThenBranch)
		e.compileExpression(expr.ElseBranch)
		e.emitOp(bytecode.OpTernary, expr.Ln)

	case *ast.VarRef:
		e.emitOps(bytecode.OpGetVariable, e.stringConstant(expr.Name, expr.Ln), expr.Ln)

	case *ast.Assign:
		e.compileExpression(expr.Value)
		e.emitOps(bytecode.OpSetVariable, e.stringConstant(expr.Name, expr.Ln), expr.Ln)

	case *ast.Call:
		e.compileExpression(expr.Callee)
		for _, arg := range expr.Args {
			e.compileExpression(arg)
		}
		e.emitOps(bytecode.OpCall, byte(len(expr.Args)), expr.Ln)

	case *ast.Dot:
		e.compileDot(expr)

	case *ast.Base:
		if e.currentClass == nil {
			e.error(expr.Ln, "Can't use 'base' outside of a class.")
		} else if !e.currentClass.hasParent {
			e.error(expr.Ln, "Can't use 'base' in a class with no parent.")
		}
		e.emitOps(bytecode.OpGetBase, e.stringConstant(expr.Method, expr.Ln), expr.Ln)

	case *ast.ListLiteral:
		for _, item := range expr.Items {
			e.compileExpression(item)
		}
		count := e.makeConstant(bytecode.NumberVal(float64(len(expr.Items))), expr.Ln)
		e.emitOps(bytecode.OpBuildList, count, expr.Ln)

	case *ast.Subscript:
		e.compileExpression(expr.Target)
		e.compileExpression(expr.Index)

		if expr.Value == nil {
			e.emitOp(bytecode.OpListGet, expr.Ln)
		} else {
			e.compileExpression(expr.Value)
			e.emitOp(bytecode.OpListStore, expr.Ln)
		}

	default:
		e.error(expr.Line(), "Unknown expression.")
	}
}

func (e *Emitter) compileLogical(expr *ast.Logical) {
	switch expr.Op {
	case scanner.TokenAnd:
		e.compileExpression(expr.Left)
		endJump := e.emitJump(bytecode.OpJumpIfFalse, expr.Ln)

		e.emitOp(bytecode.OpPop, expr.Ln)
		e.compileExpression(expr.Right)

		e.patchJump(endJump, expr.Ln)

	case scanner.TokenOr:
		e.compileExpression(expr.Left)
		endJump := e.emitJump(bytecode.OpJumpIfTrue, expr.Ln)

		e.emitOp(bytecode.OpPop, expr.Ln)
		e.compileExpression(expr.Right)

		e.patchJump(endJump, expr.Ln)

	default:
		e.error(expr.Ln, "Unknown operator in logical expression.")
	}
}

func (e *Emitter) compileDot(expr *ast.Dot) {
	e.compileExpression(expr.Instance)
	name := e.stringConstant(expr.Field, expr.Ln)

	switch {
	case expr.IsCall:
		for _, arg := range expr.Args {
			e.compileExpression(arg)
		}
		e.emitOps(bytecode.OpInvoke, name, expr.Ln)
		e.emitByte(byte(len(expr.Args)), expr.Ln)

	case expr.Value != nil:
		e.compileExpression(expr.Value)
		e.emitOps(bytecode.OpSetProperty, name, expr.Ln)

	default:
		e.emitOps(bytecode.OpGetProperty, name, expr.Ln)
	}
}

// ------------ STATEMENTS ------------

func (e *Emitter) compileStatement(stmt ast.Stmt) {
	if stmt == nil {
		return
	}

	switch stmt := stmt.(type) {
	case *ast.ExpressionStmt:
		e.compileExpression(stmt.Expr)
		e.emitOp(bytecode.OpPop, stmt.Ln)

	case *ast.Block:
		e.emitOp(bytecode.OpScopeStart, stmt.Ln)
		e.current.scopeDepth++
		for _, inner := range stmt.Statements {
			e.compileStatement(inner)
		}
		e.current.scopeDepth--
		e.emitOp(bytecode.OpScopeEnd, stmt.Ln)

	case *ast.If:
		e.compileExpression(stmt.Condition)

		thenJump := e.emitJump(bytecode.OpJumpIfFalse, stmt.Ln)
		e.emitOp(bytecode.OpPop, stmt.Ln)

		e.compileStatement(stmt.ThenBranch)

		elseJump := e.emitJump(bytecode.OpJump, stmt.Ln)
		e.patchJump(thenJump, stmt.Ln)
		e.emitOp(bytecode.OpPop, stmt.Ln)

		e.compileStatement(stmt.ElseBranch)

		e.patchJump(elseJump, stmt.Ln)

	case *ast.VarDecl:
		if stmt.Initializer == nil {
			e.emitOp(bytecode.OpNull, stmt.Ln)
		} else {
			e.compileExpression(stmt.Initializer)
		}
		e.emitOps(bytecode.OpDefineVariable, e.stringConstant(stmt.Name, stmt.Ln), stmt.Ln)

	case *ast.While:
		e.compileWhile(stmt)

	case *ast.For:
		e.compileFor(stmt)

	case *ast.Switch:
		e.compileSwitch(stmt)

	case *ast.FunctionDecl:
		e.compileFunction(stmt, false)

	case *ast.ClassDecl:
		e.compileClass(stmt)

	case *ast.Return:
		if e.current.function.Kind == bytecode.FuncTypeScript {
			e.error(stmt.Ln, "Can't return from top-level code.")
		}
		if e.current.function.Kind == bytecode.FuncTypeInitializer && stmt.Value != nil {
			e.error(stmt.Ln, "Can't return custom values from initializer. It always returns the instance of your class.")
		}

		if stmt.Value == nil {
			e.emitOp(bytecode.OpNull, stmt.Ln)
		} else {
			e.compileExpression(stmt.Value)
		}
		e.emitOp(bytecode.OpReturn, stmt.Ln)

	case *ast.Break:
		if e.current.loopDepth == 0 {
			e.error(stmt.Ln, "Can't break from top-level code.")
			return
		}
		e.closeScopesToLoop(stmt.Ln)
		last := len(e.current.breaks) - 1
		e.current.breaks[last] = append(e.current.breaks[last], e.emitJump(bytecode.OpJump, stmt.Ln))

	case *ast.Continue:
		if e.current.loopDepth == 0 {
			e.error(stmt.Ln, "Can't 'continue' from top-level code.")
			return
		}
		e.closeScopesToLoop(stmt.Ln)
		last := len(e.current.continues) - 1
		e.current.continues[last] = append(e.current.continues[last], e.emitJump(bytecode.OpJump, stmt.Ln))

	default:
		e.error(stmt.Line(), "Unknown statement.")
	}
}

func (e *Emitter) compileWhile(stmt *ast.While) {
	e.beginLoop()
	loopStart := len(e.currentChunk().Code)

	e.compileExpression(stmt.Condition)
	exitJump := e.emitJump(bytecode.OpJumpIfFalse, stmt.Ln)
	e.emitOp(bytecode.OpPop, stmt.Ln)

	e.compileStatement(stmt.Body)

	// continue re-tests the condition.
	e.patchContinues(stmt.Ln)
	e.emitLoop(loopStart, stmt.Ln)

	e.patchJump(exitJump, stmt.Ln)
	e.emitOp(bytecode.OpPop, stmt.Ln)

	// break lands after the condition pop; the break path never has the
	// condition on the stack.
	e.patchBreaks(stmt.Ln)
	e.endLoop()
}

func (e *Emitter) compileFor(stmt *ast.For) {
	// The initializer's declaration lives in its own scope.
	e.emitOp(bytecode.OpScopeStart, stmt.Ln)
	e.compileStatement(stmt.Init)

	e.beginLoop()
	loopStart := len(e.currentChunk().Code)

	e.compileExpression(stmt.Condition)
	exitJump := e.emitJump(bytecode.OpJumpIfFalse, stmt.Ln)
	e.emitOp(bytecode.OpPop, stmt.Ln)

	e.compileStatement(stmt.Body)

	// continue runs the increment before looping.
	e.patchContinues(stmt.Ln)
	if stmt.Increment != nil {
		e.compileExpression(stmt.Increment)
		e.emitOp(bytecode.OpPop, stmt.Ln)
	}

	e.emitLoop(loopStart, stmt.Ln)

	e.patchJump(exitJump, stmt.Ln)
	e.emitOp(bytecode.OpPop, stmt.Ln)

	e.patchBreaks(stmt.Ln)
	e.endLoop()

	e.emitOp(bytecode.OpScopeEnd, stmt.Ln)
}

// compileSwitch lowers switch without fall-through: the scrutinee is
// evaluated once, each case compares against it in order, the first match
// runs its body and jumps past the rest, and default runs only when no
// case matched.
func (e *Emitter) compileSwitch(stmt *ast.Switch) {
	e.compileExpression(stmt.Value)

	var endJumps []int
	for i, cond := range stmt.CaseConds {
		e.compileExpression(cond)
		e.emitOp(bytecode.OpSwitchEqual, stmt.Ln)

		nextCase := e.emitJump(bytecode.OpJumpIfFalse, stmt.Ln)
		e.emitOp(bytecode.OpPop, stmt.Ln) // comparison result
		e.emitOp(bytecode.OpPop, stmt.Ln) // scrutinee

		e.compileStatement(stmt.CaseBodies[i])
		endJumps = append(endJumps, e.emitJump(bytecode.OpJump, stmt.Ln))

		e.patchJump(nextCase, stmt.Ln)
		e.emitOp(bytecode.OpPop, stmt.Ln) // comparison result
	}

	// No case matched: discard the scrutinee and run default if present.
	e.emitOp(bytecode.OpPop, stmt.Ln)
	e.compileStatement(stmt.Default)

	for _, jump := range endJumps {
		e.patchJump(jump, stmt.Ln)
	}
}

func (e *Emitter) compileFunction(stmt *ast.FunctionDecl, isMethod bool) {
	line := stmt.Ln

	kind := bytecode.FuncTypeFunction
	if isMethod {
		kind = bytecode.FuncTypeMethod
		if stmt.Name == "init" {
			kind = bytecode.FuncTypeInitializer
		}
	}

	// Pin the name until the function object, which the compiler chain
	// roots, holds it.
	name := e.heap.CopyString(stmt.Name)
	e.heap.Protect(name)
	e.beginCompiler(name, byte(len(stmt.Params)), kind)
	e.heap.Unprotect(1)

	// Arguments are popped off the stack back to front, so the binding
	// opcodes are emitted in reverse parameter order.
	for i := len(stmt.Params) - 1; i >= 0; i-- {
		e.emitOps(bytecode.OpDefineArgument, e.stringConstant(stmt.Params[i], line), line)
	}

	for _, inner := range stmt.Body {
		e.compileStatement(inner)
	}

	// An implicit return is only needed when the body didn't end in one.
	implicitReturn := true
	if len(stmt.Body) > 0 {
		if _, ok := stmt.Body[len(stmt.Body)-1].(*ast.Return); ok {
			implicitReturn = false
		}
	}

	function := e.endCompiler(implicitReturn, line)

	e.emitConstant(bytecode.ObjVal(function), line)
	if isMethod {
		e.emitOp(bytecode.OpDefineMethod, line)
	} else {
		e.emitOp(bytecode.OpDefineFunction, line)
	}
}

func (e *Emitter) compileClass(stmt *ast.ClassDecl) {
	line := stmt.Ln

	className := e.heap.CopyString(stmt.Name)
	e.heap.Protect(className)
	class := e.heap.NewClass(className)
	e.heap.Unprotect(1)
	e.emitConstant(bytecode.ObjVal(class), line)

	e.currentClass = &classContext{enclosing: e.currentClass, hasParent: stmt.Parent != ""}

	for _, method := range stmt.Methods {
		e.compileFunction(method, true)
	}

	e.emitOp(bytecode.OpDefineClass, line)

	if stmt.Parent != "" {
		e.emitOps(bytecode.OpGetVariable, e.stringConstant(stmt.Parent, line), line)
		e.emitOp(bytecode.OpInherit, line)
	}

	e.currentClass = e.currentClass.enclosing
	e.emitOp(bytecode.OpPop, line)
}

// ------------ COMPILER CHAIN ------------

func (e *Emitter) beginCompiler(name *bytecode.ObjString, arity byte, kind bytecode.FunctionType) {
	e.current = &compiler{
		enclosing: e.current,
		function:  e.heap.NewFunction(name, arity, kind),
	}
}

func (e *Emitter) endCompiler(implicitReturn bool, line int) *bytecode.ObjFunction {
	if implicitReturn {
		e.emitOp(bytecode.OpNull, line)
		e.emitOp(bytecode.OpReturn, line)
	}

	function := e.current.function
	e.current = e.current.enclosing
	return function
}
