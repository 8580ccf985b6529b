// Package vm implements the bytecode virtual machine for wally.
//
// The VM is a stack machine: a single value stack holds temporaries and
// call arguments, and a parallel frame stack records one entry per active
// function call (the function, its instruction pointer, and where its
// slots begin on the value stack). Lexical name binding runs through a
// chain of environments: `scope_start` pushes a fresh one, calls switch to
// a chain rooted at the callee's definition environment, and lookups walk
// outward until the outermost native environment, which holds `print` and
// the other bootstrapped functions.
//
// Execution is strictly single-threaded and synchronous; the only
// non-local control transfers are call/return and runtime errors, which
// unwind every frame and surface to the embedder with a stack trace.
//
// Values are allocated on a Heap whose mark-sweep collector can trigger at
// any allocation, so opcode handlers keep freshly made objects reachable —
// usually by leaving their inputs on the stack until the result is pushed.
package vm

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/wally-lang/wally/pkg/bytecode"
	"github.com/wally-lang/wally/pkg/emitter"
	"github.com/wally-lang/wally/pkg/parser"
)

const (
	// FramesMax bounds call depth; StackMax bounds the value stack.
	FramesMax = 64
	StackMax  = FramesMax * 256
)

// Interpreter status codes, also used as process exit codes.
const (
	StatusOK           = 0
	StatusCompileError = 65
	StatusRuntimeError = 70
)

// callFrame is one active function call.
type callFrame struct {
	function *bytecode.ObjFunction
	ip       int
	slots    int // index of the callee's stack slot

	// savedEnv is the caller's environment, restored on return.
	savedEnv *bytecode.Environment

	// instance is the receiver for method and initializer calls.
	instance *bytecode.ObjInstance
}

// VM holds all interpreter state. One VM runs one program at a time, but
// persists across Interpret calls: the REPL reuses the global environment.
type VM struct {
	heap    *bytecode.Heap
	emitter *emitter.Emitter

	stack    [StackMax]bytecode.Value
	stackTop int

	frames     [FramesMax]callFrame
	frameCount int

	// nativeEnv is the outermost environment holding the bootstrapped
	// natives; globalEnv, its child, holds user globals; env is the
	// current innermost scope.
	nativeEnv *bytecode.Environment
	globalEnv *bytecode.Environment
	env       *bytecode.Environment

	initString *bytecode.ObjString
	thisString *bytecode.ObjString

	in     io.Reader
	reader *bufio.Reader
	out    io.Writer
	errOut io.Writer

	// exit terminates the process; tests swap it out.
	exit func(code int)

	// Trace makes the VM disassemble each instruction and dump the stack
	// as it executes.
	Trace bool

	// line of the instruction currently being dispatched, for natives.
	line int

	rng       *rand.Rand
	startTime time.Time
}

// New creates a VM reading from in and writing program output to out and
// diagnostics to errOut.
func New(in io.Reader, out, errOut io.Writer) *VM {
	vm := &VM{
		heap:      bytecode.NewHeap(),
		in:        in,
		out:       out,
		errOut:    errOut,
		rng:       rand.New(rand.NewSource(1)),
		startTime: time.Now(),
		exit:      os.Exit,
	}

	vm.heap.AddRoots(vm.markRoots)
	vm.emitter = emitter.New(vm.heap)

	vm.nativeEnv = bytecode.NewEnvironment(nil)
	vm.globalEnv = bytecode.NewEnvironment(vm.nativeEnv)
	vm.env = vm.globalEnv

	vm.initString = vm.heap.CopyString("init")
	vm.thisString = vm.heap.CopyString("this")

	vm.defineCore()

	return vm
}

// Heap exposes the VM's heap, mainly so embedders and tests can inspect
// collector behavior.
func (vm *VM) Heap() *bytecode.Heap { return vm.heap }

// markRoots marks everything the VM can reach: the value stack, the
// current environment chain, every frame's function, receiver, and saved
// environment, and the two bootstrapped name constants.
func (vm *VM) markRoots(h *bytecode.Heap) {
	for i := 0; i < vm.stackTop; i++ {
		h.MarkValue(vm.stack[i])
	}

	h.MarkEnvironment(vm.env)
	h.MarkEnvironment(vm.globalEnv)

	for i := 0; i < vm.frameCount; i++ {
		frame := &vm.frames[i]
		h.MarkObject(frame.function)
		if frame.instance != nil {
			h.MarkObject(frame.instance)
		}
		h.MarkEnvironment(frame.savedEnv)
	}

	if vm.initString != nil {
		h.MarkObject(vm.initString)
	}
	if vm.thisString != nil {
		h.MarkObject(vm.thisString)
	}
}

// Interpret parses, compiles, and runs one source text. It returns
// StatusOK, StatusCompileError, or StatusRuntimeError; a number returned
// by the top-level script becomes the status instead.
func (vm *VM) Interpret(source string) int {
	p := parser.New(source)
	statements, err := p.Parse()
	if err != nil {
		fmt.Fprintln(vm.errOut, err)
		return StatusCompileError
	}

	function, err := vm.emitter.Emit(statements)
	if err != nil {
		fmt.Fprintln(vm.errOut, err)
		return StatusCompileError
	}

	vm.resetStack()
	vm.push(bytecode.ObjVal(function))
	if err := vm.callFunction(function, 0, nil); err != nil {
		fmt.Fprintln(vm.errOut, err)
		return StatusRuntimeError
	}

	status, runErr := vm.run()
	if runErr != nil {
		fmt.Fprintln(vm.errOut, runErr)
		vm.resetStack()
		vm.env = vm.globalEnv
		return StatusRuntimeError
	}

	return status
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
}

// Push exposes the value stack to embedders registering natives: a fresh
// object pushed here is rooted across later allocations.
func (vm *VM) Push(value bytecode.Value) {
	vm.push(value)
}

// Pop removes and returns the top of the value stack.
func (vm *VM) Pop() bytecode.Value {
	return vm.pop()
}

// DefineNative binds a host function in the outermost environment,
// alongside print and the other bootstrapped natives.
func (vm *VM) DefineNative(name string, fn bytecode.NativeFn) {
	vm.defineNative(vm.nativeEnv, name, fn)
}

// ------------ STACK ------------

func (vm *VM) push(value bytecode.Value) {
	vm.stack[vm.stackTop] = value
	vm.stackTop++
}

func (vm *VM) pop() bytecode.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) bytecode.Value {
	return vm.stack[vm.stackTop-1-distance]
}

// ------------ CALLS ------------

// callFunction pushes a frame for fn and switches to its environment.
// instance is non-nil for method and initializer calls and becomes `this`.
func (vm *VM) callFunction(fn *bytecode.ObjFunction, argCount int, instance *bytecode.ObjInstance) error {
	if argCount != int(fn.Arity) {
		return vm.runtimeError("Expected %d arguments but got %d.", fn.Arity, argCount)
	}
	if vm.frameCount == FramesMax {
		return vm.runtimeError("Stack overflow.")
	}

	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.function = fn
	frame.ip = 0
	frame.slots = vm.stackTop - argCount - 1
	frame.savedEnv = vm.env
	frame.instance = instance

	if fn.Kind == bytecode.FuncTypeScript {
		vm.env = vm.globalEnv
	} else {
		vm.env = bytecode.NewEnvironment(fn.Env)
	}

	if instance != nil {
		if err := vm.env.Define(vm.thisString, bytecode.ObjVal(instance)); err != nil {
			return vm.runtimeError("%s", err)
		}
	}

	return nil
}

// callValue dispatches a call on whatever value sits below the arguments.
func (vm *VM) callValue(callee bytecode.Value, argCount int) error {
	if callee.IsObj() {
		switch callee.AsObj().Type() {
		case bytecode.ObjTypeFunction:
			return vm.callFunction(callee.AsFunction(), argCount, nil)

		case bytecode.ObjTypeBoundMethod:
			bound := callee.AsBoundMethod()
			return vm.callFunction(bound.Method, argCount, bound.Instance)

		case bytecode.ObjTypeNative:
			return vm.callNative(callee.AsNative(), argCount)

		case bytecode.ObjTypeClass:
			return vm.callClass(callee.AsClass(), argCount)
		}
	}

	return vm.runtimeError("Can only call functions and classes.")
}

// callNative invokes a host function in place: the callee and arguments
// are replaced by the returned value, the frame stack is untouched.
func (vm *VM) callNative(native *bytecode.ObjNative, argCount int) error {
	args := vm.stack[vm.stackTop-argCount : vm.stackTop]

	result, err := native.Function(byte(argCount), uint16(vm.line), args)
	if err != nil {
		return vm.runtimeError("[line %d] Native Function Error : %s", vm.line, err)
	}

	vm.stackTop -= argCount + 1
	vm.push(result)
	return nil
}

// callClass constructs an instance, runs `init` when the class (or a
// parent) has one, and leaves the instance in the callee's slot.
func (vm *VM) callClass(class *bytecode.ObjClass, argCount int) error {
	instance := vm.heap.NewInstance(class)
	vm.stack[vm.stackTop-argCount-1] = bytecode.ObjVal(instance)

	if init, ok := class.FindMethod(vm.initString); ok {
		if !init.IsFunction() {
			return vm.runtimeError("Class initializer must be a function.")
		}
		return vm.callFunction(init.AsFunction(), argCount, instance)
	}

	if argCount != 0 {
		return vm.runtimeError("Expected 0 arguments but got %d.", argCount)
	}
	return nil
}

// ------------ EXECUTION ------------

func (vm *VM) run() (int, error) {
	frame := &vm.frames[vm.frameCount-1]

	readByte := func() byte {
		b := frame.function.Chunk.Code[frame.ip]
		frame.ip++
		return b
	}

	readShort := func() int {
		hi := int(frame.function.Chunk.Code[frame.ip])
		lo := int(frame.function.Chunk.Code[frame.ip+1])
		frame.ip += 2
		return hi<<8 | lo
	}

	readConstant := func() bytecode.Value {
		return frame.function.Chunk.Constants[readByte()]
	}

	readString := func() *bytecode.ObjString {
		return readConstant().AsString()
	}

	for {
		if vm.Trace {
			fmt.Fprint(vm.errOut, "          ")
			for i := 0; i < vm.stackTop; i++ {
				fmt.Fprintf(vm.errOut, "[ %s ]", vm.stack[i])
			}
			fmt.Fprintln(vm.errOut)
			bytecode.DisassembleInstruction(vm.errOut, &frame.function.Chunk, frame.ip)
		}

		// No single instruction grows the stack by more than two slots.
		if vm.stackTop >= StackMax-2 {
			return 0, vm.runtimeError("Stack overflow.")
		}

		vm.line = frame.function.Chunk.Lines[frame.ip]
		instruction := bytecode.OpCode(readByte())

		switch instruction {

		case bytecode.OpConstant:
			vm.push(readConstant())

		case bytecode.OpNull:
			vm.push(bytecode.Null)
		case bytecode.OpTrue:
			vm.push(bytecode.BoolVal(true))
		case bytecode.OpFalse:
			vm.push(bytecode.BoolVal(false))

		case bytecode.OpPop:
			vm.pop()

		case bytecode.OpPopN:
			count := int(readByte())
			vm.stackTop -= count

		case bytecode.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(bytecode.BoolVal(bytecode.ValuesEqual(a, b)))

		case bytecode.OpNotEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(bytecode.BoolVal(!bytecode.ValuesEqual(a, b)))

		case bytecode.OpSwitchEqual:
			// Equality that keeps the left operand for the next case.
			b := vm.pop()
			a := vm.pop()
			vm.push(a)
			vm.push(bytecode.BoolVal(bytecode.ValuesEqual(a, b)))

		case bytecode.OpGreater, bytecode.OpGreaterEqual, bytecode.OpLess,
			bytecode.OpLessEqual, bytecode.OpSubtract, bytecode.OpMultiply,
			bytecode.OpDivide:
			if err := vm.binaryNumberOp(instruction); err != nil {
				return 0, err
			}

		case bytecode.OpAdd:
			if vm.peek(0).IsString() || vm.peek(1).IsString() {
				vm.concatenate()
			} else if vm.peek(0).IsNumber() && vm.peek(1).IsNumber() {
				b := vm.pop().AsNumber()
				a := vm.pop().AsNumber()
				vm.push(bytecode.NumberVal(a + b))
			} else {
				return 0, vm.runtimeError("Operands must be either two numbers or two strings.")
			}

		case bytecode.OpNegate:
			if !vm.peek(0).IsNumber() {
				return 0, vm.runtimeError("Operand must be a number.")
			}
			vm.push(bytecode.NumberVal(-vm.pop().AsNumber()))

		case bytecode.OpNot:
			vm.push(bytecode.BoolVal(vm.pop().IsFalsey()))

		case bytecode.OpTernary:
			elseBranch := vm.pop()
			thenBranch := vm.pop()
			condition := vm.pop()

			if condition.IsFalsey() {
				vm.push(elseBranch)
			} else {
				vm.push(thenBranch)
			}

		case bytecode.OpJump:
			frame.ip += readShort()

		case bytecode.OpJumpIfFalse:
			offset := readShort()
			if vm.peek(0).IsFalsey() {
				frame.ip += offset
			}

		case bytecode.OpJumpIfTrue:
			offset := readShort()
			if !vm.peek(0).IsFalsey() {
				frame.ip += offset
			}

		case bytecode.OpLoop:
			frame.ip -= readShort()

		case bytecode.OpScopeStart:
			vm.env = bytecode.NewEnvironment(vm.env)

		case bytecode.OpScopeEnd:
			vm.env = vm.env.Enclosing

		case bytecode.OpDefineVariable:
			name := readString()
			if err := vm.env.Define(name, vm.peek(0)); err != nil {
				return 0, vm.runtimeError("%s", err)
			}
			vm.pop()

		case bytecode.OpDefineArgument:
			name := readString()
			value := vm.pop()
			if err := vm.env.Define(name, value); err != nil {
				return 0, vm.runtimeError("%s", err)
			}

		case bytecode.OpGetVariable:
			name := readString()
			value, ok := vm.env.Get(name)
			if !ok {
				return 0, vm.runtimeError("Tried to get value of '%s', but it doesn't exist.", name.Chars)
			}
			vm.push(value)

		case bytecode.OpSetVariable:
			name := readString()
			if err := vm.env.Set(name, vm.peek(0)); err != nil {
				return 0, vm.runtimeError("%s", err)
			}

		case bytecode.OpCall:
			argCount := int(readByte())
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return 0, err
			}
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpReturn:
			result := vm.pop()
			returning := frame
			vm.frameCount--

			// Initializers always hand back the instance.
			if returning.function.Kind == bytecode.FuncTypeInitializer {
				result = bytecode.ObjVal(returning.instance)
			}

			if vm.frameCount == 0 {
				vm.pop() // the script function itself
				vm.env = vm.globalEnv

				if result.IsNumber() {
					return int(result.AsNumber()), nil
				}
				return StatusOK, nil
			}

			vm.stackTop = returning.slots
			vm.push(result)
			vm.env = returning.savedEnv
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpDefineFunction:
			fn := vm.peek(0).AsFunction()
			fn.Env = vm.env
			if err := vm.env.Define(fn.Name, vm.peek(0)); err != nil {
				return 0, vm.runtimeError("%s", err)
			}
			vm.pop()

		case bytecode.OpDefineMethod:
			fn := vm.peek(0).AsFunction()
			class := vm.peek(1).AsClass()
			fn.Env = vm.env
			fn.Owner = class
			if !class.Methods.Define(fn.Name, vm.peek(0)) {
				return 0, vm.runtimeError("Class '%s' already has a method named '%s'.",
					class.Name.Chars, fn.Name.Chars)
			}
			vm.pop()

		case bytecode.OpDefineClass:
			class := vm.peek(0).AsClass()
			if err := vm.env.Define(class.Name, vm.peek(0)); err != nil {
				return 0, vm.runtimeError("%s", err)
			}

		case bytecode.OpInherit:
			parent := vm.peek(0)
			if !parent.IsClass() {
				return 0, vm.runtimeError("Parent must be a class.")
			}
			vm.peek(1).AsClass().Parent = parent.AsClass()
			vm.pop()

		case bytecode.OpGetProperty:
			name := readString()
			if err := vm.getProperty(name); err != nil {
				return 0, err
			}

		case bytecode.OpSetProperty:
			name := readString()
			if !vm.peek(1).IsInstance() {
				return 0, vm.runtimeError("Only instances have fields.")
			}

			instance := vm.peek(1).AsInstance()
			value := vm.peek(0)
			instance.Fields.Set(name, value)

			vm.pop()
			vm.pop()
			vm.push(value)

		case bytecode.OpInvoke:
			name := readString()
			argCount := int(readByte())
			if err := vm.invoke(name, argCount); err != nil {
				return 0, err
			}
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpGetBase:
			name := readString()
			if err := vm.getBase(frame, name); err != nil {
				return 0, err
			}

		case bytecode.OpBuildList:
			count := int(readConstant().AsNumber())
			items := make([]bytecode.Value, count)
			copy(items, vm.stack[vm.stackTop-count:vm.stackTop])

			// The items stay on the stack through the allocation, so a
			// collection here cannot sweep them.
			list := vm.heap.NewList(items)
			vm.stackTop -= count
			vm.push(bytecode.ObjVal(list))

		case bytecode.OpListGet:
			if err := vm.listGet(); err != nil {
				return 0, err
			}

		case bytecode.OpListStore:
			if err := vm.listStore(); err != nil {
				return 0, err
			}

		default:
			return 0, vm.runtimeError("Unknown opcode %d.", instruction)
		}
	}
}

func (vm *VM) binaryNumberOp(op bytecode.OpCode) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Both operands must be numbers.")
	}

	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()

	switch op {
	case bytecode.OpSubtract:
		vm.push(bytecode.NumberVal(a - b))
	case bytecode.OpMultiply:
		vm.push(bytecode.NumberVal(a * b))
	case bytecode.OpDivide:
		// Division by zero yields the IEEE-754 result, not an error.
		vm.push(bytecode.NumberVal(a / b))
	case bytecode.OpGreater:
		vm.push(bytecode.BoolVal(a > b))
	case bytecode.OpGreaterEqual:
		vm.push(bytecode.BoolVal(a >= b))
	case bytecode.OpLess:
		vm.push(bytecode.BoolVal(a < b))
	case bytecode.OpLessEqual:
		vm.push(bytecode.BoolVal(a <= b))
	}

	return nil
}

// concatenate joins the two topmost values as strings. The operands stay
// on the stack until the result exists so the collector can see them.
func (vm *VM) concatenate() {
	chars := vm.peek(1).Stringify() + vm.peek(0).Stringify()
	result := vm.heap.CopyString(chars)

	vm.pop()
	vm.pop()
	vm.push(bytecode.ObjVal(result))
}

// getProperty resolves instance.name with fields taking priority over
// methods; a method hit binds `this` into a fresh bound method.
func (vm *VM) getProperty(name *bytecode.ObjString) error {
	if !vm.peek(0).IsInstance() {
		return vm.runtimeError("Only instances have properties.")
	}
	instance := vm.peek(0).AsInstance()

	if value, ok := instance.Fields.Get(name); ok {
		vm.pop()
		vm.push(value)
		return nil
	}

	if method, ok := instance.Class.FindMethod(name); ok {
		if method.IsFunction() {
			bound := vm.heap.NewBoundMethod(instance, method.AsFunction())
			vm.pop()
			vm.push(bytecode.ObjVal(bound))
		} else {
			// Native module methods need no receiver.
			vm.pop()
			vm.push(method)
		}
		return nil
	}

	return vm.runtimeError("Undefined property '%s'.", name.Chars)
}

// invoke is the fused property-access-and-call path; it skips the bound
// method allocation a getProperty/call pair would make.
func (vm *VM) invoke(name *bytecode.ObjString, argCount int) error {
	receiver := vm.peek(argCount)
	if !receiver.IsInstance() {
		return vm.runtimeError("Only instances have methods.")
	}
	instance := receiver.AsInstance()

	// A field holding a callable shadows methods.
	if field, ok := instance.Fields.Get(name); ok {
		vm.stack[vm.stackTop-argCount-1] = field
		return vm.callValue(field, argCount)
	}

	method, ok := instance.Class.FindMethod(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}

	if method.IsFunction() {
		return vm.callFunction(method.AsFunction(), argCount, instance)
	}
	if method.IsNative() {
		return vm.callNative(method.AsNative(), argCount)
	}
	return vm.callValue(method, argCount)
}

// getBase pushes a parent-class method bound to the current `this`.
func (vm *VM) getBase(frame *callFrame, name *bytecode.ObjString) error {
	owner := frame.function.Owner
	if owner == nil || owner.Parent == nil || frame.instance == nil {
		return vm.runtimeError("'base' can only be used in methods of a class with a parent.")
	}

	method, ok := owner.Parent.FindMethod(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}

	if method.IsFunction() {
		bound := vm.heap.NewBoundMethod(frame.instance, method.AsFunction())
		vm.push(bytecode.ObjVal(bound))
	} else {
		vm.push(method)
	}
	return nil
}

func (vm *VM) listGet() error {
	index := vm.peek(0)
	target := vm.peek(1)

	if !index.IsNumber() {
		return vm.runtimeError("Subscript index must be a number.")
	}
	i := int(index.AsNumber())

	var result bytecode.Value
	switch {
	case target.IsList():
		list := target.AsList()
		if !list.ValidIndex(i) {
			return vm.runtimeError("Index '%d' is out of bounds.", i)
		}
		result = list.Items[i]

	case target.IsString():
		str := target.AsString()
		if i < 0 || i >= str.Length() {
			return vm.runtimeError("Index '%d' is out of bounds.", i)
		}
		result = bytecode.ObjVal(vm.heap.CopyString(str.Chars[i : i+1]))

	default:
		return vm.runtimeError("Only lists and strings can be subscripted.")
	}

	vm.pop()
	vm.pop()
	vm.push(result)
	return nil
}

func (vm *VM) listStore() error {
	value := vm.peek(0)
	index := vm.peek(1)
	target := vm.peek(2)

	if !target.IsList() {
		return vm.runtimeError("Only lists support subscript assignment.")
	}
	if !index.IsNumber() {
		return vm.runtimeError("Subscript index must be a number.")
	}

	list := target.AsList()
	i := int(index.AsNumber())
	if !list.ValidIndex(i) {
		return vm.runtimeError("Index '%d' is out of bounds.", i)
	}

	list.Items[i] = value

	vm.pop()
	vm.pop()
	vm.pop()
	vm.push(value)
	return nil
}
