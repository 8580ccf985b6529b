package emitter

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wally-lang/wally/pkg/bytecode"
	"github.com/wally-lang/wally/pkg/parser"
)

func compile(t *testing.T, source string) *bytecode.ObjFunction {
	t.Helper()

	statements, err := parser.New(source).Parse()
	require.NoError(t, err)

	function, err := New(bytecode.NewHeap()).Emit(statements)
	require.NoError(t, err)
	return function
}

func compileError(t *testing.T, source string) error {
	t.Helper()

	statements, err := parser.New(source).Parse()
	require.NoError(t, err)

	_, err = New(bytecode.NewHeap()).Emit(statements)
	require.Error(t, err)
	return err
}

// ops decodes a chunk back into its opcode sequence, skipping operands.
func ops(chunk *bytecode.Chunk) []bytecode.OpCode {
	var result []bytecode.OpCode

	for offset := 0; offset < len(chunk.Code); {
		op := bytecode.OpCode(chunk.Code[offset])
		result = append(result, op)
		offset += 1 + operandBytes(op)
	}

	return result
}

func operandBytes(op bytecode.OpCode) int {
	switch op {
	case bytecode.OpConstant, bytecode.OpDefineVariable, bytecode.OpGetVariable,
		bytecode.OpSetVariable, bytecode.OpDefineArgument, bytecode.OpGetProperty,
		bytecode.OpSetProperty, bytecode.OpGetBase, bytecode.OpBuildList,
		bytecode.OpCall, bytecode.OpPopN:
		return 1
	case bytecode.OpJump, bytecode.OpJumpIfFalse, bytecode.OpJumpIfTrue, bytecode.OpLoop:
		return 2
	case bytecode.OpInvoke:
		return 2
	default:
		return 0
	}
}

func TestEmitsArithmetic(t *testing.T) {
	fn := compile(t, "1 + 2 * 3;")

	assert.Equal(t, []bytecode.OpCode{
		bytecode.OpConstant, bytecode.OpConstant, bytecode.OpConstant,
		bytecode.OpMultiply, bytecode.OpAdd,
		bytecode.OpPop,
		bytecode.OpNull, bytecode.OpReturn,
	}, ops(&fn.Chunk))
}

func TestEmitsLiterals(t *testing.T) {
	fn := compile(t, "true; false; null;")

	assert.Equal(t, []bytecode.OpCode{
		bytecode.OpTrue, bytecode.OpPop,
		bytecode.OpFalse, bytecode.OpPop,
		bytecode.OpNull, bytecode.OpPop,
		bytecode.OpNull, bytecode.OpReturn,
	}, ops(&fn.Chunk))
}

func TestEmitsVariableDeclaration(t *testing.T) {
	fn := compile(t, "var x = 1; x;")

	assert.Equal(t, []bytecode.OpCode{
		bytecode.OpConstant, bytecode.OpDefineVariable,
		bytecode.OpGetVariable, bytecode.OpPop,
		bytecode.OpNull, bytecode.OpReturn,
	}, ops(&fn.Chunk))
}

func TestVarWithoutInitializerDefaultsToNull(t *testing.T) {
	fn := compile(t, "var x;")

	assert.Equal(t, []bytecode.OpCode{
		bytecode.OpNull, bytecode.OpDefineVariable,
		bytecode.OpNull, bytecode.OpReturn,
	}, ops(&fn.Chunk))
}

func TestEmitsBlockScopes(t *testing.T) {
	fn := compile(t, "{ var x = 1; }")

	assert.Equal(t, []bytecode.OpCode{
		bytecode.OpScopeStart,
		bytecode.OpConstant, bytecode.OpDefineVariable,
		bytecode.OpScopeEnd,
		bytecode.OpNull, bytecode.OpReturn,
	}, ops(&fn.Chunk))
}

func TestEmitsShortCircuitAnd(t *testing.T) {
	fn := compile(t, "true && false;")

	assert.Equal(t, []bytecode.OpCode{
		bytecode.OpTrue, bytecode.OpJumpIfFalse, bytecode.OpPop, bytecode.OpFalse,
		bytecode.OpPop,
		bytecode.OpNull, bytecode.OpReturn,
	}, ops(&fn.Chunk))
}

func TestEmitsShortCircuitOr(t *testing.T) {
	fn := compile(t, "true || false;")

	assert.Equal(t, []bytecode.OpCode{
		bytecode.OpTrue, bytecode.OpJumpIfTrue, bytecode.OpPop, bytecode.OpFalse,
		bytecode.OpPop,
		bytecode.OpNull, bytecode.OpReturn,
	}, ops(&fn.Chunk))
}

func TestEmitsTernary(t *testing.T) {
	fn := compile(t, "true ? 1 : 2;")

	assert.Equal(t, []bytecode.OpCode{
		bytecode.OpTrue, bytecode.OpConstant, bytecode.OpConstant,
		bytecode.OpTernary,
		bytecode.OpPop,
		bytecode.OpNull, bytecode.OpReturn,
	}, ops(&fn.Chunk))
}

func TestEmitsListLiteralAndSubscript(t *testing.T) {
	fn := compile(t, "var xs = [1, 2]; xs[0]; xs[1] = 5;")

	assert.Equal(t, []bytecode.OpCode{
		bytecode.OpConstant, bytecode.OpConstant, bytecode.OpBuildList,
		bytecode.OpDefineVariable,
		bytecode.OpGetVariable, bytecode.OpConstant, bytecode.OpListGet, bytecode.OpPop,
		bytecode.OpGetVariable, bytecode.OpConstant, bytecode.OpConstant, bytecode.OpListStore, bytecode.OpPop,
		bytecode.OpNull, bytecode.OpReturn,
	}, ops(&fn.Chunk))
}

func TestEmitsFunctionDeclaration(t *testing.T) {
	fn := compile(t, "function f(a, b) { return a; }")

	assert.Equal(t, []bytecode.OpCode{
		bytecode.OpConstant, bytecode.OpDefineFunction,
		bytecode.OpNull, bytecode.OpReturn,
	}, ops(&fn.Chunk))

	// The nested function's chunk binds arguments back to front and
	// keeps the explicit return without adding an implicit one.
	var inner *bytecode.ObjFunction
	for _, constant := range fn.Chunk.Constants {
		if constant.IsFunction() {
			inner = constant.AsFunction()
		}
	}
	require.NotNil(t, inner)
	assert.Equal(t, byte(2), inner.Arity)

	assert.Equal(t, []bytecode.OpCode{
		bytecode.OpDefineArgument, bytecode.OpDefineArgument,
		bytecode.OpGetVariable, bytecode.OpReturn,
	}, ops(&inner.Chunk))

	// Arguments are popped last-first, so `b` is bound before `a`.
	firstBound := inner.Chunk.Constants[inner.Chunk.Code[1]]
	assert.Equal(t, "b", firstBound.AsString().Chars)
}

func TestFunctionWithoutReturnGetsImplicitNull(t *testing.T) {
	fn := compile(t, "function f() { 1; }")

	inner := fn.Chunk.Constants[findFunctionConstant(t, fn)].AsFunction()
	opcodes := ops(&inner.Chunk)
	assert.Equal(t, []bytecode.OpCode{
		bytecode.OpConstant, bytecode.OpPop,
		bytecode.OpNull, bytecode.OpReturn,
	}, opcodes)
}

func TestEmitsClassDeclaration(t *testing.T) {
	fn := compile(t, "class A { m() {} } ")

	assert.Equal(t, []bytecode.OpCode{
		bytecode.OpConstant, // the class object
		bytecode.OpConstant, // the method function
		bytecode.OpDefineMethod,
		bytecode.OpDefineClass,
		bytecode.OpPop,
		bytecode.OpNull, bytecode.OpReturn,
	}, ops(&fn.Chunk))
}

func TestEmitsInheritance(t *testing.T) {
	fn := compile(t, "class A {} class B : A {}")

	assert.Equal(t, []bytecode.OpCode{
		bytecode.OpConstant, bytecode.OpDefineClass, bytecode.OpPop,
		bytecode.OpConstant, bytecode.OpDefineClass,
		bytecode.OpGetVariable, bytecode.OpInherit,
		bytecode.OpPop,
		bytecode.OpNull, bytecode.OpReturn,
	}, ops(&fn.Chunk))
}

func TestEmitsInvokeForMethodCalls(t *testing.T) {
	fn := compile(t, "a.m(1);")

	assert.Equal(t, []bytecode.OpCode{
		bytecode.OpGetVariable, bytecode.OpConstant, bytecode.OpInvoke,
		bytecode.OpPop,
		bytecode.OpNull, bytecode.OpReturn,
	}, ops(&fn.Chunk))
}

// Every forward jump must be patched to land inside the chunk, on an
// instruction boundary.
func TestJumpsArePatchedToInstructionBoundaries(t *testing.T) {
	sources := []string{
		"if (true) 1; else 2;",
		"while (true) { break; }",
		"for (var i = 0; i < 3; i = i + 1) { if (i == 1) continue; }",
		"switch (1) { case 1: 1; case 2: 2; default: 3; }",
		"true && false || true;",
	}

	for _, source := range sources {
		t.Run(source, func(t *testing.T) {
			fn := compile(t, source)
			chunk := &fn.Chunk

			boundaries := map[int]bool{len(chunk.Code): true}
			for offset := 0; offset < len(chunk.Code); {
				boundaries[offset] = true
				offset += 1 + operandBytes(bytecode.OpCode(chunk.Code[offset]))
			}

			for offset := 0; offset < len(chunk.Code); {
				op := bytecode.OpCode(chunk.Code[offset])

				switch op {
				case bytecode.OpJump, bytecode.OpJumpIfFalse, bytecode.OpJumpIfTrue:
					operand := int(chunk.Code[offset+1])<<8 | int(chunk.Code[offset+2])
					assert.NotEqual(t, 0xffff, operand, "unpatched jump at %d", offset)
					assert.True(t, boundaries[offset+3+operand], "jump at %d lands at %d", offset, offset+3+operand)
				case bytecode.OpLoop:
					operand := int(chunk.Code[offset+1])<<8 | int(chunk.Code[offset+2])
					assert.True(t, boundaries[offset+3-operand], "loop at %d lands at %d", offset, offset+3-operand)
				}

				offset += 1 + operandBytes(op)
			}
		})
	}
}

func TestLineNumbersFollowSource(t *testing.T) {
	fn := compile(t, "1;\n2;\n")
	chunk := &fn.Chunk

	require.Equal(t, len(chunk.Code), len(chunk.Lines))
	assert.Equal(t, 1, chunk.Lines[0])
	// The second constant sits on line 2.
	assert.Equal(t, 2, chunk.Lines[3])
}

func TestConstantsAreReused(t *testing.T) {
	fn := compile(t, "1; 1; 1;")
	assert.Len(t, fn.Chunk.Constants, 1)
}

func TestTooManyConstants(t *testing.T) {
	// 300 distinct number literals exceed the one-byte constant index.
	var b strings.Builder
	for i := 0; i < 300; i++ {
		b.WriteString(strconv.Itoa(i))
		b.WriteString(";")
	}

	err := compileError(t, b.String())
	assert.Contains(t, err.Error(), "Too many constants in one chunk.")
}

func TestBreakOutsideLoop(t *testing.T) {
	err := compileError(t, "break;")
	assert.Contains(t, err.Error(), "Can't break from top-level code.")
}

func TestContinueOutsideLoop(t *testing.T) {
	err := compileError(t, "continue;")
	assert.Contains(t, err.Error(), "Can't 'continue' from top-level code.")
}

func TestBreakInsideFunctionInsideLoopIsRejected(t *testing.T) {
	err := compileError(t, "while (true) { function f() { break; } }")
	assert.Contains(t, err.Error(), "Can't break from top-level code.")
}

func TestReturnAtScriptScope(t *testing.T) {
	err := compileError(t, "return 1;")
	assert.Contains(t, err.Error(), "Can't return from top-level code.")
}

func TestValueReturnFromInitializer(t *testing.T) {
	err := compileError(t, "class A { init() { return 1; } }")
	assert.Contains(t, err.Error(), "Can't return custom values from initializer.")
}

func TestBareReturnFromInitializerIsAllowed(t *testing.T) {
	compile(t, "class A { init() { return; } }")
}

func TestBaseOutsideClass(t *testing.T) {
	err := compileError(t, "base.m();")
	assert.Contains(t, err.Error(), "Can't use 'base' outside of a class.")
}

func TestBaseInClassWithoutParent(t *testing.T) {
	err := compileError(t, "class A { m() { return base.m(); } }")
	assert.Contains(t, err.Error(), "Can't use 'base' in a class with no parent.")
}

func TestBaseInChildClassCompiles(t *testing.T) {
	compile(t, "class A { m() {} } class B : A { m() { return base.m(); } }")
}

func TestDisassemblerListsEveryInstruction(t *testing.T) {
	fn := compile(t, "var x = 1; if (x) { print(x); }")

	var out bytes.Buffer
	bytecode.DisassembleChunk(&out, &fn.Chunk, "<script>")

	listing := out.String()
	assert.Contains(t, listing, "== <script> ==")
	assert.Contains(t, listing, "OP_DEFINE_VARIABLE")
	assert.Contains(t, listing, "OP_JUMP_IF_FALSE")
	assert.Contains(t, listing, "OP_CALL")

	// One header line plus one line per decoded instruction.
	assert.Equal(t, len(ops(&fn.Chunk))+1, strings.Count(listing, "\n"))
}

func findFunctionConstant(t *testing.T, fn *bytecode.ObjFunction) int {
	t.Helper()
	for i, constant := range fn.Chunk.Constants {
		if constant.IsFunction() {
			return i
		}
	}
	t.Fatal("no function constant found")
	return -1
}
