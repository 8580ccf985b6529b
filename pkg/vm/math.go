package vm

import (
	"math"

	"github.com/wally-lang/wally/pkg/bytecode"
)

// defineMath installs the math module: an instance whose class carries the
// numeric natives as methods, bound under the name "math".
func (vm *VM) defineMath() {
	name, instance := vm.newModuleClass("math", map[string]bytecode.NativeFn{
		"abs":              mathUnary("abs", math.Abs),
		"round":            mathUnary("round", math.Round),
		"sqrt":             mathUnary("sqrt", math.Sqrt),
		"sin":              mathUnary("sin", math.Sin),
		"cos":              mathUnary("cos", math.Cos),
		"tan":              mathUnary("tan", math.Tan),
		"asin":             mathUnary("asin", math.Asin),
		"acos":             mathUnary("acos", math.Acos),
		"atan":             mathUnary("atan", math.Atan),
		"exp":              mathUnary("exp", math.Exp),
		"floor":            mathUnary("floor", math.Floor),
		"ceil":             mathUnary("ceil", math.Ceil),
		"degreesToRadians": mathUnary("degreesToRadians", func(x float64) float64 { return x / 180 * math.Pi }),
		"radiansToDegrees": mathUnary("radiansToDegrees", func(x float64) float64 { return x * (180 / math.Pi) }),
		"atan2":            mathBinary("atan2", math.Atan2),
		"mod":              mathBinary("mod", math.Mod),
		"pow":              mathBinary("pow", math.Pow),
		"min":              mathBinary("min", math.Min),
		"max":              mathBinary("max", math.Max),
	})

	vm.defineModule(name, instance)
	vm.heap.Unprotect(3)
}

// mathUnary adapts a one-argument float function to the native ABI.
func mathUnary(name string, fn func(float64) float64) bytecode.NativeFn {
	return func(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
		if err := checkArgCount(name, 1, argc); err != nil {
			return bytecode.Null, err
		}

		x, err := argNumber(name, args, 0)
		if err != nil {
			return bytecode.Null, err
		}

		return bytecode.NumberVal(fn(x)), nil
	}
}

// mathBinary adapts a two-argument float function to the native ABI.
func mathBinary(name string, fn func(float64, float64) float64) bytecode.NativeFn {
	return func(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
		if err := checkArgCount(name, 2, argc); err != nil {
			return bytecode.Null, err
		}

		a, err := argNumber(name, args, 0)
		if err != nil {
			return bytecode.Null, err
		}
		b, err := argNumber(name, args, 1)
		if err != nil {
			return bytecode.Null, err
		}

		return bytecode.NumberVal(fn(a, b)), nil
	}
}
