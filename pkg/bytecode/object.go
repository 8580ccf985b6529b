package bytecode

import "fmt"

// ObjType discriminates the heap object variants.
type ObjType byte

const (
	ObjTypeString ObjType = iota
	ObjTypeFunction
	ObjTypeNative
	ObjTypeClass
	ObjTypeInstance
	ObjTypeBoundMethod
	ObjTypeList
)

// String returns a readable name for the object type.
func (t ObjType) String() string {
	switch t {
	case ObjTypeString:
		return "string"
	case ObjTypeFunction:
		return "function"
	case ObjTypeNative:
		return "native"
	case ObjTypeClass:
		return "class"
	case ObjTypeInstance:
		return "instance"
	case ObjTypeBoundMethod:
		return "bound method"
	case ObjTypeList:
		return "list"
	default:
		return "unknown"
	}
}

// Obj is the interface shared by every heap object. The unexported header
// method keeps the set of variants closed: only the types in this package
// can live on the wally heap.
type Obj interface {
	Type() ObjType
	String() string
	header() *ObjHeader
}

// ObjHeader is embedded at the start of every heap object. It carries the
// garbage collector's mark bit and the intrusive link that chains all live
// objects into a single list owned by the Heap.
type ObjHeader struct {
	marked bool
	size   int
	next   Obj
}

func (h *ObjHeader) header() *ObjHeader { return h }

// ObjString is an interned, immutable string with its precomputed FNV-1a
// hash. At most one ObjString exists per distinct byte sequence, so strings
// compare equal exactly when they are the same object.
type ObjString struct {
	ObjHeader
	Chars string
	Hash  uint32
}

func (*ObjString) Type() ObjType { return ObjTypeString }

func (s *ObjString) String() string { return s.Chars }

// Length returns the string length in bytes.
func (s *ObjString) Length() int { return len(s.Chars) }

// FunctionType classifies what kind of body a function object holds.
type FunctionType byte

const (
	FuncTypeScript FunctionType = iota
	FuncTypeFunction
	FuncTypeMethod
	FuncTypeInitializer
)

// ObjFunction is a compiled function: its bytecode chunk plus call
// metadata. The top-level script compiles to a function with a nil name.
type ObjFunction struct {
	ObjHeader
	Name  *ObjString
	Arity byte
	Kind  FunctionType
	Chunk Chunk

	// Env is the environment the function was defined in; calls chain a
	// fresh environment off it. Set by the VM when the definition runs.
	Env *Environment

	// Owner is the class a method was defined on, used to resolve `base`.
	Owner *ObjClass
}

func (*ObjFunction) Type() ObjType { return ObjTypeFunction }

func (f *ObjFunction) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}

// NativeFn is the calling convention for host functions: the argument
// count, the source line of the call site (for error messages), and the
// argument slice. The returned value is pushed by the VM.
type NativeFn func(argc byte, line uint16, args []Value) (Value, error)

// ObjNative wraps a host function so it can live in an environment or a
// method table.
type ObjNative struct {
	ObjHeader
	Function NativeFn
}

func (*ObjNative) Type() ObjType { return ObjTypeNative }

func (*ObjNative) String() string { return "<native fn>" }

// ObjClass is a class: a name, a method table, and an optional parent.
// Method lookup walks the parent chain.
type ObjClass struct {
	ObjHeader
	Name    *ObjString
	Methods *Table
	Parent  *ObjClass
}

func (*ObjClass) Type() ObjType { return ObjTypeClass }

func (c *ObjClass) String() string { return c.Name.Chars + " class" }

// FindMethod looks a method up on the class or any of its parents.
func (c *ObjClass) FindMethod(name *ObjString) (Value, bool) {
	for class := c; class != nil; class = class.Parent {
		if method, ok := class.Methods.Get(name); ok {
			return method, true
		}
	}
	return Null, false
}

// ObjInstance is an instance of a class with its own field table.
type ObjInstance struct {
	ObjHeader
	Class  *ObjClass
	Fields *Table
}

func (*ObjInstance) Type() ObjType { return ObjTypeInstance }

func (i *ObjInstance) String() string { return i.Class.Name.Chars + " instance" }

// ObjBoundMethod pairs an instance with a method, capturing `this` at the
// moment the method is looked up as a value.
type ObjBoundMethod struct {
	ObjHeader
	Instance *ObjInstance
	Method   *ObjFunction
}

func (*ObjBoundMethod) Type() ObjType { return ObjTypeBoundMethod }

func (b *ObjBoundMethod) String() string { return b.Method.String() }

// ObjList is a dynamic array of values.
type ObjList struct {
	ObjHeader
	Items []Value
}

func (*ObjList) Type() ObjType { return ObjTypeList }

func (l *ObjList) String() string {
	return "{ " + FormatValues(l.Items) + " }"
}

// Count returns the number of items in the list.
func (l *ObjList) Count() int { return len(l.Items) }

// ValidIndex reports whether i is inside the list bounds.
func (l *ObjList) ValidIndex(i int) bool {
	return i >= 0 && i < len(l.Items)
}

// Append adds a value at the end of the list.
func (l *ObjList) Append(v Value) {
	l.Items = append(l.Items, v)
}

// Remove deletes the item at index i, shifting the tail down.
func (l *ObjList) Remove(i int) {
	copy(l.Items[i:], l.Items[i+1:])
	l.Items[len(l.Items)-1] = Null
	l.Items = l.Items[:len(l.Items)-1]
}
