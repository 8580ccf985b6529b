// Package bytecode defines the runtime value model, heap objects, and the
// bytecode format for wally.
//
// It is the lowest layer of the interpreter: the emitter produces Chunks
// referencing Values, and the VM executes them. Heap objects are allocated
// through a Heap, which also runs the mark-sweep garbage collector.
package bytecode

import (
	"fmt"
	"strings"
)

// ValueType discriminates the variants of Value.
type ValueType byte

const (
	ValBool ValueType = iota
	ValNull
	ValNumber
	ValObj
)

// Value is a tagged variant over booleans, null, double-precision numbers,
// and heap-object references. Values are copied by value; heap objects are
// shared by reference.
type Value struct {
	Type    ValueType
	boolean bool
	number  float64
	obj     Obj
}

// Null is the null value.
var Null = Value{Type: ValNull}

// BoolVal wraps a Go bool.
func BoolVal(b bool) Value {
	return Value{Type: ValBool, boolean: b}
}

// NumberVal wraps a Go float64.
func NumberVal(n float64) Value {
	return Value{Type: ValNumber, number: n}
}

// ObjVal wraps a heap object reference.
func ObjVal(o Obj) Value {
	return Value{Type: ValObj, obj: o}
}

func (v Value) IsBool() bool   { return v.Type == ValBool }
func (v Value) IsNull() bool   { return v.Type == ValNull }
func (v Value) IsNumber() bool { return v.Type == ValNumber }
func (v Value) IsObj() bool    { return v.Type == ValObj }

// AsBool returns the boolean payload. Only valid when IsBool reports true.
func (v Value) AsBool() bool { return v.boolean }

// AsNumber returns the numeric payload. Only valid when IsNumber reports true.
func (v Value) AsNumber() float64 { return v.number }

// AsObj returns the object payload. Only valid when IsObj reports true.
func (v Value) AsObj() Obj { return v.obj }

func (v Value) isObjType(t ObjType) bool {
	return v.Type == ValObj && v.obj.Type() == t
}

func (v Value) IsString() bool      { return v.isObjType(ObjTypeString) }
func (v Value) IsFunction() bool    { return v.isObjType(ObjTypeFunction) }
func (v Value) IsNative() bool      { return v.isObjType(ObjTypeNative) }
func (v Value) IsClass() bool       { return v.isObjType(ObjTypeClass) }
func (v Value) IsInstance() bool    { return v.isObjType(ObjTypeInstance) }
func (v Value) IsBoundMethod() bool { return v.isObjType(ObjTypeBoundMethod) }
func (v Value) IsList() bool        { return v.isObjType(ObjTypeList) }

func (v Value) AsString() *ObjString           { return v.obj.(*ObjString) }
func (v Value) AsFunction() *ObjFunction       { return v.obj.(*ObjFunction) }
func (v Value) AsNative() *ObjNative           { return v.obj.(*ObjNative) }
func (v Value) AsClass() *ObjClass             { return v.obj.(*ObjClass) }
func (v Value) AsInstance() *ObjInstance       { return v.obj.(*ObjInstance) }
func (v Value) AsBoundMethod() *ObjBoundMethod { return v.obj.(*ObjBoundMethod) }
func (v Value) AsList() *ObjList               { return v.obj.(*ObjList) }

// IsFalsey reports whether a value is false in a boolean context: null and
// false are falsey, everything else is truthy.
func (v Value) IsFalsey() bool {
	return v.IsNull() || (v.IsBool() && !v.AsBool())
}

// ValuesEqual compares two values. Values of different tags are never
// equal. Strings compare by identity, which interning makes equivalent to
// comparing contents; other heap objects compare by identity.
func ValuesEqual(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}

	switch a.Type {
	case ValBool:
		return a.AsBool() == b.AsBool()
	case ValNull:
		return true
	case ValNumber:
		return a.AsNumber() == b.AsNumber()
	case ValObj:
		return a.obj == b.obj
	default:
		return false // Unreachable.
	}
}

// String renders the value the way `print` shows it.
func (v Value) String() string {
	switch v.Type {
	case ValBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case ValNull:
		return "null"
	case ValNumber:
		return fmt.Sprintf("%g", v.AsNumber())
	case ValObj:
		return v.obj.String()
	default:
		return "unknown"
	}
}

// Stringify renders a value for string concatenation. Numbers use fixed
// five-digit precision with trailing zeros removed, so `"" + 1.5` yields
// "1.5" and `"" + 2` yields "2".
func (v Value) Stringify() string {
	if v.IsNumber() {
		return trimTrailingZeros(fmt.Sprintf("%.5f", v.AsNumber()))
	}
	if v.IsString() {
		return v.AsString().Chars
	}
	return v.String()
}

// trimTrailingZeros turns "1.100000" into "1.1" and "3.00000" into "3".
func trimTrailingZeros(s string) string {
	i := len(s)
	for i > 1 {
		c := s[i-1]
		if c != '0' && c != '.' {
			break
		}
		i--
		if c == '.' {
			break
		}
	}
	return s[:i]
}

// FormatValues renders a slice of values for diagnostics.
func FormatValues(values []Value) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(v.String())
	}
	return b.String()
}
