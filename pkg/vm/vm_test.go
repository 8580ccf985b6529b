package vm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// interpret runs a program on a fresh VM and returns its output, its
// diagnostics, and the interpreter status.
func interpret(source string) (string, string, int) {
	var out, errOut strings.Builder
	machine := New(strings.NewReader(""), &out, &errOut)
	status := machine.Interpret(source)
	return out.String(), errOut.String(), status
}

// expectOutput asserts a program runs cleanly and prints exactly want.
func expectOutput(t *testing.T, source, want string) {
	t.Helper()

	out, errOut, status := interpret(source)
	require.Equal(t, StatusOK, status, "diagnostics: %s", errOut)
	assert.Equal(t, want, out)
}

// expectRuntimeError asserts a program fails at runtime mentioning want.
func expectRuntimeError(t *testing.T, source, want string) {
	t.Helper()

	_, errOut, status := interpret(source)
	assert.Equal(t, StatusRuntimeError, status)
	assert.Contains(t, errOut, want)
}

func TestArithmetic(t *testing.T) {
	expectOutput(t, "print(1 + 2 * 3);", "7\n")
	expectOutput(t, "print((1 + 2) * 3);", "9\n")
	expectOutput(t, "print(10 / 4);", "2.5\n")
	expectOutput(t, "print(-(3 - 5));", "2\n")
}

func TestDivisionByZeroFollowsIEEE(t *testing.T) {
	expectOutput(t, "print(1 / 0);", "+Inf\n")
	expectOutput(t, "print(-1 / 0);", "-Inf\n")
}

func TestComparisonAndEquality(t *testing.T) {
	expectOutput(t, "print(1 < 2);", "true\n")
	expectOutput(t, "print(2 <= 1);", "false\n")
	expectOutput(t, "print(1 == 1);", "true\n")
	expectOutput(t, "print(1 != 1);", "false\n")
	expectOutput(t, `print("a" == "a");`, "true\n")
	expectOutput(t, `print("a" == "b");`, "false\n")
	expectOutput(t, `print(1 == "1");`, "false\n")
	expectOutput(t, "print(null == null);", "true\n")
	expectOutput(t, "print(null == false);", "false\n")
}

func TestUnaryOperators(t *testing.T) {
	expectOutput(t, "print(!true);", "false\n")
	expectOutput(t, "print(!null);", "true\n")
	expectOutput(t, "print(!0);", "false\n")
	expectRuntimeError(t, "print(-true);", "Operand must be a number.")
}

func TestTypeErrorsInArithmetic(t *testing.T) {
	expectRuntimeError(t, "1 * true;", "Both operands must be numbers.")
	expectRuntimeError(t, "null + 1;", "Operands must be either two numbers or two strings.")
}

func TestStringConcatenation(t *testing.T) {
	expectOutput(t, `print("foo" + "bar");`, "foobar\n")
	expectOutput(t, `print("n = " + 3);`, "n = 3\n")
	expectOutput(t, `print(1.5 + "!");`, "1.5!\n")
	expectOutput(t, `print("" + true);`, "true\n")
	expectOutput(t, `print("" + null);`, "null\n")
}

func TestStringEscapes(t *testing.T) {
	expectOutput(t, `print("a\tb");`, "a\tb\n")
	expectOutput(t, `print("line1\nline2");`, "line1\nline2\n")
	expectOutput(t, `print("quote: \"x\"");`, "quote: \"x\"\n")
}

func TestVariables(t *testing.T) {
	expectOutput(t, "var x = 1; print(x);", "1\n")
	expectOutput(t, "var x; print(x);", "null\n")
	expectOutput(t, "var x = 1; x = 2; print(x);", "2\n")
	expectOutput(t, "var x = 1; x += 2; print(x);", "3\n")
	expectOutput(t, "var x = 6; x /= 2; print(x);", "3\n")
	expectOutput(t, "var i = 0; i++; i++; i--; print(i);", "1\n")
}

func TestVariableErrors(t *testing.T) {
	expectRuntimeError(t, "print(missing);", "Tried to get value of 'missing', but it doesn't exist.")
	expectRuntimeError(t, "missing = 1;", "Tried to set value of 'missing', but it doesn't exist.")
	expectRuntimeError(t, "var x = 1; var x = 2;", "Tried to declare symbol 'x', but it already exists.")
}

func TestFunctionBindingsAreImmutable(t *testing.T) {
	expectRuntimeError(t, "function f() {} f = 1;", "Changing value of functions is illegal.")
	expectRuntimeError(t, "print = 1;", "Changing value of functions is illegal.")
}

func TestBlockScoping(t *testing.T) {
	expectOutput(t, `
		var x = "outer";
		{
			var x = "inner";
			print(x);
		}
		print(x);`,
		"inner\nouter\n")

	// A block-scoped variable dies with its scope.
	expectRuntimeError(t, "{ var x = 1; } print(x);", "Tried to get value of 'x', but it doesn't exist.")
}

func TestIfElse(t *testing.T) {
	expectOutput(t, `if (1 < 2) print("yes"); else print("no");`, "yes\n")
	expectOutput(t, `if (1 > 2) print("yes"); else print("no");`, "no\n")
	expectOutput(t, `if (false) print("skipped");`, "")
	expectOutput(t, `if (null) print("skipped"); else print("null is falsey");`, "null is falsey\n")
}

func TestLogicalOperators(t *testing.T) {
	expectOutput(t, "print(true && false);", "false\n")
	expectOutput(t, "print(true and true);", "true\n")
	expectOutput(t, "print(false || true);", "true\n")
	expectOutput(t, "print(null or 3);", "3\n")
	expectOutput(t, "print(1 && 2);", "2\n")

	// The right side must not run when short-circuited.
	expectOutput(t, "false && boom(); print(\"ok\");", "ok\n")
	expectOutput(t, "true || boom(); print(\"ok\");", "ok\n")
}

func TestTernary(t *testing.T) {
	expectOutput(t, `print(1 < 2 ? "a" : "b");`, "a\n")
	expectOutput(t, `print(1 > 2 ? "a" : "b");`, "b\n")
	expectOutput(t, `print(true ? false ? 1 : 2 : 3);`, "2\n")
}

func TestWhileLoop(t *testing.T) {
	expectOutput(t, `
		var i = 0;
		var total = 0;
		while (i < 5) {
			i = i + 1;
			total = total + i;
		}
		print(total);`,
		"15\n")
}

func TestForLoop(t *testing.T) {
	expectOutput(t, `
		var s = "";
		for (var i = 0; i < 3; i = i + 1) s = s + i;
		print(s);`,
		"012\n")
}

func TestBreakAndContinue(t *testing.T) {
	expectOutput(t, `
		var s = "";
		for (var i = 0; i < 10; i = i + 1) {
			if (i == 2) continue;
			if (i == 5) break;
			s = s + i;
		}
		print(s);`,
		"0134\n")

	expectOutput(t, `
		var n = 0;
		while (true) {
			n = n + 1;
			if (n == 3) break;
		}
		print(n);`,
		"3\n")

	// An immediate break runs the body exactly once.
	expectOutput(t, `var n = 0; for (;;) { n = n + 1; break; } print(n);`, "1\n")
}

func TestNestedLoopsBreakInnermost(t *testing.T) {
	expectOutput(t, `
		var s = "";
		for (var i = 0; i < 3; i = i + 1) {
			for (var j = 0; j < 3; j = j + 1) {
				if (j == 1) break;
				s = s + i + j;
			}
		}
		print(s);`,
		"001020\n")
}

func TestSwitch(t *testing.T) {
	program := func(x string) string {
		return `
			switch (` + x + `) {
				case 1: print("one");
				case 2: print("two");
				default: print("other");
			}`
	}

	expectOutput(t, program("1"), "one\n")
	expectOutput(t, program("2"), "two\n")
	expectOutput(t, program("99"), "other\n")
}

func TestSwitchWithoutMatchOrDefaultIsNoOp(t *testing.T) {
	expectOutput(t, `switch (9) { case 1: print("one"); } print("after");`, "after\n")
}

func TestSwitchDoesNotFallThrough(t *testing.T) {
	expectOutput(t, `
		switch (1) {
			case 1: print("one");
			case 1: print("again");
			default: print("default");
		}`,
		"one\n")
}

func TestSwitchOnStrings(t *testing.T) {
	expectOutput(t, `
		switch ("b") {
			case "a": print(1);
			case "b": print(2);
		}`,
		"2\n")
}

func TestFunctions(t *testing.T) {
	expectOutput(t, `
		function add(a, b) { return a + b; }
		print(add(1, 2));`,
		"3\n")

	expectOutput(t, `
		function greet() { print("hi"); }
		greet();`,
		"hi\n")

	// A function without an explicit return yields null.
	expectOutput(t, `function f() {} print(f());`, "null\n")
}

func TestRecursion(t *testing.T) {
	expectOutput(t, `
		function fib(n) {
			if (n < 2) return n;
			return fib(n - 1) + fib(n - 2);
		}
		print(fib(10));`,
		"55\n")
}

func TestFunctionsAreValues(t *testing.T) {
	expectOutput(t, `
		function twice(f, x) { return f(f(x)); }
		function addOne(n) { return n + 1; }
		print(twice(addOne, 5));`,
		"7\n")
}

func TestCallErrors(t *testing.T) {
	expectRuntimeError(t, "function f(a) {} f();", "Expected 1 arguments but got 0.")
	expectRuntimeError(t, "function f() {} f(1);", "Expected 0 arguments but got 1.")
	expectRuntimeError(t, "var x = 1; x();", "Can only call functions and classes.")
	expectRuntimeError(t, `"not callable"();`, "Can only call functions and classes.")
}

func TestDeepRecursionOverflows(t *testing.T) {
	expectRuntimeError(t, `
		function down(n) { return down(n + 1); }
		down(0);`,
		"Stack overflow.")
}

func TestClasses(t *testing.T) {
	expectOutput(t, `
		class A {
			init(x) { this.x = x; }
			get() { return this.x; }
		}
		var a = A(3);
		print(a.get());`,
		"3\n")

	expectOutput(t, `
		class Counter {
			init() { this.n = 0; }
			bump() { this.n = this.n + 1; return this.n; }
		}
		var c = Counter();
		c.bump();
		c.bump();
		print(c.bump());`,
		"3\n")
}

func TestClassWithoutInit(t *testing.T) {
	expectOutput(t, `
		class Bag {}
		var b = Bag();
		b.item = 42;
		print(b.item);`,
		"42\n")

	expectRuntimeError(t, "class Bag {} Bag(1);", "Expected 0 arguments but got 1.")
}

func TestFieldsShadowMethods(t *testing.T) {
	expectOutput(t, `
		class A {
			m() { return "method"; }
		}
		function fallback() { return "field"; }
		var a = A();
		print(a.m());
		a.m = fallback;
		print(a.m());`,
		"method\nfield\n")
}

func TestBoundMethodsCaptureThis(t *testing.T) {
	expectOutput(t, `
		class A {
			init() { this.x = 9; }
			get() { return this.x; }
		}
		var m = A().get;
		print(m());`,
		"9\n")
}

func TestPropertyErrors(t *testing.T) {
	expectRuntimeError(t, "var x = 1; x.field;", "Only instances have properties.")
	expectRuntimeError(t, "var x = 1; x.field = 2;", "Only instances have fields.")
	expectRuntimeError(t, "var x = 1; x.m();", "Only instances have methods.")
	expectRuntimeError(t, "class A {} A().nothing;", "Undefined property 'nothing'.")
	expectRuntimeError(t, "class A {} A().nothing();", "Undefined property 'nothing'.")
}

func TestInheritance(t *testing.T) {
	expectOutput(t, `
		class A { greet() { return "A"; } }
		class B : A { greet() { return base.greet() + "B"; } }
		print(B().greet());`,
		"AB\n")

	// Methods are inherited through the parent chain.
	expectOutput(t, `
		class A { hello() { return "hi"; } }
		class B : A {}
		class C : B {}
		print(C().hello());`,
		"hi\n")

	// init is inherited too.
	expectOutput(t, `
		class A { init(x) { this.x = x; } }
		class B : A {}
		print(B(7).x);`,
		"7\n")
}

func TestInheritFromNonClass(t *testing.T) {
	expectRuntimeError(t, "var NotAClass = 1; class B : NotAClass {}", "Parent must be a class.")
}

func TestLists(t *testing.T) {
	expectOutput(t, "var xs = [1, 2, 3]; print(xs);", "{ 1, 2, 3 }\n")
	expectOutput(t, "var xs = [1, 2, 3]; print(xs[1]);", "2\n")
	expectOutput(t, "var xs = [1, 2, 3]; xs[1] = 9; print(xs[0] + xs[1] + xs[2]);", "13\n")
	expectOutput(t, "print([]);", "{  }\n")
	expectOutput(t, `print(["a", true, null]);`, "{ a, true, null }\n")
}

func TestListErrors(t *testing.T) {
	expectRuntimeError(t, "var xs = [1]; xs[2];", "Index '2' is out of bounds.")
	expectRuntimeError(t, "var xs = [1]; xs[0 - 1];", "Index '-1' is out of bounds.")
	expectRuntimeError(t, "var xs = [1]; xs[true];", "Subscript index must be a number.")
	expectRuntimeError(t, "var x = 1; x[0];", "Only lists and strings can be subscripted.")
	expectRuntimeError(t, `"abc"[0] = "x";`, "Only lists support subscript assignment.")
}

func TestStringSubscript(t *testing.T) {
	expectOutput(t, `var s = "wally"; print(s[0] + s[4]);`, "wy\n")
	expectRuntimeError(t, `"abc"[5];`, "Index '5' is out of bounds.")
}

func TestListsShareReferences(t *testing.T) {
	expectOutput(t, `
		var a = [1];
		var b = a;
		b[0] = 2;
		print(a[0]);`,
		"2\n")
}

func TestCompileErrorStatus(t *testing.T) {
	_, errOut, status := interpret("var = 1;")
	assert.Equal(t, StatusCompileError, status)
	assert.Contains(t, errOut, "Parse Error")

	_, errOut, status = interpret("break;")
	assert.Equal(t, StatusCompileError, status)
	assert.Contains(t, errOut, "Emitter Error")
}

func TestEmptyProgram(t *testing.T) {
	out, _, status := interpret("")
	assert.Equal(t, StatusOK, status)
	assert.Empty(t, out)

	out, _, status = interpret("// just a comment\n/* and another */")
	assert.Equal(t, StatusOK, status)
	assert.Empty(t, out)
}

func TestReplStatePersistsAcrossInterprets(t *testing.T) {
	var out, errOut strings.Builder
	machine := New(strings.NewReader(""), &out, &errOut)

	require.Equal(t, StatusOK, machine.Interpret("var x = 1;"))
	require.Equal(t, StatusOK, machine.Interpret("function double(n) { return n * 2; }"))
	require.Equal(t, StatusOK, machine.Interpret("print(double(x + 1));"), "diagnostics: %s", errOut.String())

	assert.Equal(t, "4\n", out.String())
}

func TestRuntimeErrorResetsForNextInterpret(t *testing.T) {
	var out, errOut strings.Builder
	machine := New(strings.NewReader(""), &out, &errOut)

	require.Equal(t, StatusRuntimeError, machine.Interpret("missing();"))
	require.Equal(t, StatusOK, machine.Interpret("print(1);"))
	assert.Equal(t, "1\n", out.String())
}

func TestPrintRepresentations(t *testing.T) {
	expectOutput(t, "class A {} print(A);", "A class\n")
	expectOutput(t, "class A {} print(A());", "A instance\n")
	expectOutput(t, "function f() {} print(f);", "<fn f>\n")
	expectOutput(t, "print(print);", "<native fn>\n")
}

// Running with a collection on every allocation shakes out any object the
// VM forgot to root.
func TestExecutionSurvivesStressGC(t *testing.T) {
	var out, errOut strings.Builder
	machine := New(strings.NewReader(""), &out, &errOut)
	machine.Heap().StressGC = true

	status := machine.Interpret(`
		class Node {
			init(value) {
				this.value = value;
				this.next = null;
			}
		}

		function push(head, value) {
			var node = Node(value);
			node.next = head;
			return node;
		}

		var head = null;
		for (var i = 0; i < 20; i = i + 1) {
			head = push(head, "item" + i);
		}

		var count = 0;
		var sink = "";
		while (head != null) {
			count = count + 1;
			sink = sink + head.value[4];
			head = head.next;
		}
		print(count);`)

	require.Equal(t, StatusOK, status, "diagnostics: %s", errOut.String())
	assert.Equal(t, "20\n", out.String())
}

func TestGarbageIsCollectedAcrossInterprets(t *testing.T) {
	var out, errOut strings.Builder
	machine := New(strings.NewReader(""), &out, &errOut)

	require.Equal(t, StatusOK, machine.Interpret(`
		var keep = "kept string";
		for (var i = 0; i < 100; i = i + 1) {
			{
				var transient = [i, i + 1, "t" + i];
			}
		}`))

	before := machine.Heap().ObjectCount()
	machine.Heap().Collect()
	after := machine.Heap().ObjectCount()

	assert.Less(t, after, before, "transient lists must be collectable")
	require.Equal(t, StatusOK, machine.Interpret(`print(keep);`))
	assert.Equal(t, "kept string\n", out.String())
}
