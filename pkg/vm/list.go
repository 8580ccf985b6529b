package vm

import (
	"fmt"

	"github.com/wally-lang/wally/pkg/bytecode"
)

// defineList installs the list module: join, append, remove, and count,
// operating on list values passed as the first argument.
func (vm *VM) defineList() {
	name, instance := vm.newModuleClass("list", map[string]bytecode.NativeFn{
		"join":   vm.listJoinNative,
		"append": vm.listAppendNative,
		"remove": vm.listRemoveNative,
		"count":  vm.listCountNative,
	})

	vm.defineModule(name, instance)
	vm.heap.Unprotect(3)
}

// listJoinNative concatenates two strings or appends the second list's
// items onto the first, returning the joined value.
func (vm *VM) listJoinNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("join", 2, argc); err != nil {
		return bytecode.Null, err
	}

	if args[0].IsString() && args[1].IsString() {
		joined := args[0].AsString().Chars + args[1].AsString().Chars
		return bytecode.ObjVal(vm.heap.CopyString(joined)), nil
	}

	first, err := argList("join", args, 0)
	if err != nil {
		return bytecode.Null, err
	}
	second, err := argList("join", args, 1)
	if err != nil {
		return bytecode.Null, err
	}

	first.Items = append(first.Items, second.Items...)
	return args[0], nil
}

func (vm *VM) listAppendNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("append", 2, argc); err != nil {
		return bytecode.Null, err
	}

	list, err := argList("append", args, 0)
	if err != nil {
		return bytecode.Null, err
	}

	list.Append(args[1])
	return bytecode.Null, nil
}

func (vm *VM) listRemoveNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("remove", 2, argc); err != nil {
		return bytecode.Null, err
	}

	list, err := argList("remove", args, 0)
	if err != nil {
		return bytecode.Null, err
	}
	index, err := argNumber("remove", args, 1)
	if err != nil {
		return bytecode.Null, err
	}

	i := int(index)
	if !list.ValidIndex(i) {
		return bytecode.Null, fmt.Errorf("Index '%d' is out of bounds.", i)
	}

	list.Remove(i)
	return bytecode.Null, nil
}

func (vm *VM) listCountNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("count", 1, argc); err != nil {
		return bytecode.Null, err
	}

	list, err := argList("count", args, 0)
	if err != nil {
		return bytecode.Null, err
	}

	return bytecode.NumberVal(float64(list.Count())), nil
}
