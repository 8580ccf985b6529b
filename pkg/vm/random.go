package vm

import (
	"fmt"
	"time"

	"github.com/wally-lang/wally/pkg/bytecode"
)

// defineRandom installs the random module. The generator starts from a
// fixed seed; call random.init() to seed it from the clock.
func (vm *VM) defineRandom() {
	name, instance := vm.newModuleClass("random", map[string]bytecode.NativeFn{
		"init":           vm.randomInitNative,
		"bool":           vm.randomBoolNative,
		"integer":        vm.randomIntegerNative,
		"integerBetween": vm.randomIntegerBetweenNative,
		"between":        vm.randomBetweenNative,
	})

	vm.defineModule(name, instance)
	vm.heap.Unprotect(3)
}

func (vm *VM) randomInitNative(argc byte, _ uint16, _ []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("init", 0, argc); err != nil {
		return bytecode.Null, err
	}

	vm.rng.Seed(time.Now().UnixNano())
	return bytecode.Null, nil
}

func (vm *VM) randomBoolNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("bool", 1, argc); err != nil {
		return bytecode.Null, err
	}
	chance, err := argNumber("bool", args, 0)
	if err != nil {
		return bytecode.Null, err
	}

	if chance > 1.0 || chance < 0.0 {
		return bytecode.Null, fmt.Errorf(
			"Chance equals '%g' and is outside of the 0-1 range. For 0%% chance provide '0' and for 100%% '1'.", chance)
	}

	return bytecode.BoolVal(vm.rng.Float64() < chance), nil
}

func (vm *VM) randomIntegerNative(argc byte, _ uint16, _ []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("integer", 0, argc); err != nil {
		return bytecode.Null, err
	}

	return bytecode.NumberVal(float64(vm.rng.Int31())), nil
}

func (vm *VM) randomIntegerBetweenNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("integerBetween", 2, argc); err != nil {
		return bytecode.Null, err
	}
	min, err := argNumber("integerBetween", args, 0)
	if err != nil {
		return bytecode.Null, err
	}
	max, err := argNumber("integerBetween", args, 1)
	if err != nil {
		return bytecode.Null, err
	}

	lo, hi := int(min), int(max)
	if hi < lo {
		return bytecode.Null, fmt.Errorf("'integerBetween' expects min <= max, got %d and %d.", lo, hi)
	}

	return bytecode.NumberVal(float64(lo + vm.rng.Intn(hi-lo+1))), nil
}

func (vm *VM) randomBetweenNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("between", 2, argc); err != nil {
		return bytecode.Null, err
	}
	min, err := argNumber("between", args, 0)
	if err != nil {
		return bytecode.Null, err
	}
	max, err := argNumber("between", args, 1)
	if err != nil {
		return bytecode.Null, err
	}

	return bytecode.NumberVal(min + vm.rng.Float64()*(max-min)), nil
}
