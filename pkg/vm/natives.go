package vm

import (
	"fmt"
	"time"

	"github.com/wally-lang/wally/pkg/bytecode"
)

// defineCore installs the bootstrapped natives into the outermost
// environment: print, type, include, and clock. Everything else arrives
// through include(module).
func (vm *VM) defineCore() {
	vm.defineNative(vm.nativeEnv, "print", vm.printNative)
	vm.defineNative(vm.nativeEnv, "type", vm.typeNative)
	vm.defineNative(vm.nativeEnv, "include", vm.includeNative)
	vm.defineNative(vm.nativeEnv, "clock", vm.clockNative)
}

// defineNative binds a host function by name in env. The name and wrapper
// are pinned until the binding, which is a root, holds them.
func (vm *VM) defineNative(env *bytecode.Environment, name string, fn bytecode.NativeFn) {
	str := vm.heap.CopyString(name)
	vm.heap.Protect(str)
	native := vm.heap.NewNative(fn)
	vm.heap.Protect(native)

	env.Values.Set(str, bytecode.ObjVal(native))
	vm.heap.Unprotect(2)
}

// defineModule binds a module instance by name in the native environment.
// Including a module twice is a no-op.
func (vm *VM) defineModule(name *bytecode.ObjString, instance *bytecode.ObjInstance) {
	if _, ok := vm.nativeEnv.Values.Get(name); ok {
		return
	}
	vm.nativeEnv.Values.Set(name, bytecode.ObjVal(instance))
}

// newModuleClass builds a class holding native methods and returns an
// instance of it. The class stays protected while its table is filled;
// the caller unprotects after binding the instance.
func (vm *VM) newModuleClass(name string, methods map[string]bytecode.NativeFn) (*bytecode.ObjString, *bytecode.ObjInstance) {
	className := vm.heap.CopyString(name)
	vm.heap.Protect(className)

	class := vm.heap.NewClass(className)
	vm.heap.Protect(class)

	for methodName, fn := range methods {
		str := vm.heap.CopyString(methodName)
		vm.heap.Protect(str)
		native := vm.heap.NewNative(fn)
		class.Methods.Set(str, bytecode.ObjVal(native))
		vm.heap.Unprotect(1)
	}

	instance := vm.heap.NewInstance(class)
	vm.heap.Protect(instance)

	return className, instance
}

// checkArgCount validates a native's arity.
func checkArgCount(name string, expected, got byte) error {
	if expected == got {
		return nil
	}
	return fmt.Errorf("'%s' expected '%d' arguments but got '%d'.", name, expected, got)
}

// argNumber fetches a numeric argument or complains.
func argNumber(name string, args []bytecode.Value, i int) (float64, error) {
	if !args[i].IsNumber() {
		return 0, fmt.Errorf("'%s' expected argument %d to be a number.", name, i+1)
	}
	return args[i].AsNumber(), nil
}

// argString fetches a string argument or complains.
func argString(name string, args []bytecode.Value, i int) (string, error) {
	if !args[i].IsString() {
		return "", fmt.Errorf("'%s' expected argument %d to be a string.", name, i+1)
	}
	return args[i].AsString().Chars, nil
}

// argList fetches a list argument or complains.
func argList(name string, args []bytecode.Value, i int) (*bytecode.ObjList, error) {
	if !args[i].IsList() {
		return nil, fmt.Errorf("'%s' expected argument %d to be a list.", name, i+1)
	}
	return args[i].AsList(), nil
}

// printNative writes a value and a newline to the program's output.
func (vm *VM) printNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("print", 1, argc); err != nil {
		return bytecode.Null, err
	}

	fmt.Fprintln(vm.out, args[0])
	return bytecode.Null, nil
}

// typeNative names a value's runtime type.
func (vm *VM) typeNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("type", 1, argc); err != nil {
		return bytecode.Null, err
	}

	value := args[0]
	name := ""
	switch {
	case value.IsBool():
		name = "bool"
	case value.IsNull():
		name = "null"
	case value.IsNumber():
		name = "number"
	case value.IsString():
		name = "string"
	case value.IsInstance():
		name = "instance"
	case value.IsClass():
		name = "class"
	case value.IsList():
		name = "list"
	default:
		// Functions, natives, and bound methods all call themselves
		// functions.
		name = "function"
	}

	return bytecode.ObjVal(vm.heap.CopyString(name)), nil
}

// includeNative loads one of the host modules into the native environment.
func (vm *VM) includeNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("include", 1, argc); err != nil {
		return bytecode.Null, err
	}

	name, err := argString("include", args, 0)
	if err != nil {
		return bytecode.Null, err
	}

	switch name {
	case "math":
		vm.defineMath()
	case "os":
		vm.defineOS()
	case "random":
		vm.defineRandom()
	case "list":
		vm.defineList()
	default:
		return bytecode.Null, fmt.Errorf("Unknown module '%s'.", name)
	}

	return bytecode.Null, nil
}

// clockNative reports elapsed seconds since the VM started.
func (vm *VM) clockNative(argc byte, _ uint16, _ []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("clock", 0, argc); err != nil {
		return bytecode.Null, err
	}

	return bytecode.NumberVal(time.Since(vm.startTime).Seconds()), nil
}
