package vm

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wally-lang/wally/pkg/bytecode"
)

// defineOS installs the os module: file and directory helpers, console
// input, the date, and process exit. The instance also carries a
// pathSeparator field.
func (vm *VM) defineOS() {
	name, instance := vm.newModuleClass("os", map[string]bytecode.NativeFn{
		"fileRead":        vm.fileReadNative,
		"fileWrite":       vm.fileWriteNative,
		"fileCreate":      vm.fileCreateNative,
		"fileRemove":      vm.fileRemoveNative,
		"fileExists":      vm.fileExistsNative,
		"directoryCreate": vm.directoryCreateNative,
		"directoryRemove": vm.directoryRemoveNative,
		"directoryExists": vm.directoryExistsNative,
		"inputString":     vm.inputStringNative,
		"inputYesNo":      vm.inputYesNoNative,
		"getDate":         vm.getDateNative,
		"exit":            vm.exitNative,
	})

	separator := vm.heap.CopyString("pathSeparator")
	vm.heap.Protect(separator)
	instance.Fields.Set(separator, bytecode.ObjVal(vm.heap.CopyString(string(os.PathSeparator))))
	vm.heap.Unprotect(1)

	vm.defineModule(name, instance)
	vm.heap.Unprotect(3)
}

func (vm *VM) fileReadNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("fileRead", 1, argc); err != nil {
		return bytecode.Null, err
	}
	path, err := argString("fileRead", args, 0)
	if err != nil {
		return bytecode.Null, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return bytecode.Null, fmt.Errorf("File '%s' does not exist.", path)
	}

	return bytecode.ObjVal(vm.heap.CopyString(string(data))), nil
}

func (vm *VM) fileWriteNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("fileWrite", 2, argc); err != nil {
		return bytecode.Null, err
	}
	path, err := argString("fileWrite", args, 0)
	if err != nil {
		return bytecode.Null, err
	}
	contents, err := argString("fileWrite", args, 1)
	if err != nil {
		return bytecode.Null, err
	}

	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return bytecode.Null, fmt.Errorf("Failed to write file at '%s'.", path)
	}
	return bytecode.Null, nil
}

func (vm *VM) fileCreateNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("fileCreate", 1, argc); err != nil {
		return bytecode.Null, err
	}
	path, err := argString("fileCreate", args, 0)
	if err != nil {
		return bytecode.Null, err
	}

	file, err := os.Create(path)
	if err != nil {
		return bytecode.Null, fmt.Errorf("Failed to create file at '%s'.", path)
	}
	file.Close()
	return bytecode.Null, nil
}

func (vm *VM) fileRemoveNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("fileRemove", 1, argc); err != nil {
		return bytecode.Null, err
	}
	path, err := argString("fileRemove", args, 0)
	if err != nil {
		return bytecode.Null, err
	}

	if err := os.Remove(path); err != nil {
		return bytecode.Null, fmt.Errorf("Failed to remove file at '%s'.", path)
	}
	return bytecode.Null, nil
}

func (vm *VM) fileExistsNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("fileExists", 1, argc); err != nil {
		return bytecode.Null, err
	}
	path, err := argString("fileExists", args, 0)
	if err != nil {
		return bytecode.Null, err
	}

	info, err := os.Stat(path)
	return bytecode.BoolVal(err == nil && info.Mode().IsRegular()), nil
}

func (vm *VM) directoryCreateNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("directoryCreate", 1, argc); err != nil {
		return bytecode.Null, err
	}
	path, err := argString("directoryCreate", args, 0)
	if err != nil {
		return bytecode.Null, err
	}

	if err := os.Mkdir(path, 0o777); err != nil {
		return bytecode.Null, fmt.Errorf("Failed to create directory at '%s'.", path)
	}
	return bytecode.Null, nil
}

func (vm *VM) directoryRemoveNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("directoryRemove", 1, argc); err != nil {
		return bytecode.Null, err
	}
	path, err := argString("directoryRemove", args, 0)
	if err != nil {
		return bytecode.Null, err
	}

	if err := os.Remove(path); err != nil {
		return bytecode.Null, fmt.Errorf("Failed to remove directory at '%s'.", path)
	}
	return bytecode.Null, nil
}

func (vm *VM) directoryExistsNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("directoryExists", 1, argc); err != nil {
		return bytecode.Null, err
	}
	path, err := argString("directoryExists", args, 0)
	if err != nil {
		return bytecode.Null, err
	}

	info, err := os.Stat(path)
	return bytecode.BoolVal(err == nil && info.IsDir()), nil
}

func (vm *VM) inputStringNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("inputString", 1, argc); err != nil {
		return bytecode.Null, err
	}
	// The buffer length argument exists for compatibility; reads are
	// line-sized regardless.
	if _, err := argNumber("inputString", args, 0); err != nil {
		return bytecode.Null, err
	}

	line, err := vm.readLine()
	if err != nil {
		return bytecode.Null, nil
	}
	return bytecode.ObjVal(vm.heap.CopyString(line)), nil
}

func (vm *VM) inputYesNoNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("inputYesNo", 0, argc); err != nil {
		return bytecode.Null, err
	}

	line, err := vm.readLine()
	if err != nil {
		return bytecode.Null, nil
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "yes", "y":
		return bytecode.BoolVal(true), nil
	case "no", "n":
		return bytecode.BoolVal(false), nil
	default:
		return bytecode.Null, nil
	}
}

func (vm *VM) readLine() (string, error) {
	if vm.reader == nil {
		vm.reader = bufio.NewReader(vm.in)
	}

	line, err := vm.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (vm *VM) getDateNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("getDate", 0, argc); err != nil {
		return bytecode.Null, err
	}

	date := time.Now().Format("Mon Jan  2 15:04:05 2006")
	return bytecode.ObjVal(vm.heap.CopyString(date)), nil
}

func (vm *VM) exitNative(argc byte, _ uint16, args []bytecode.Value) (bytecode.Value, error) {
	if err := checkArgCount("exit", 1, argc); err != nil {
		return bytecode.Null, err
	}
	code, err := argNumber("exit", args, 0)
	if err != nil {
		return bytecode.Null, err
	}

	vm.exit(int(code))
	return bytecode.Null, nil
}
