package bytecode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueTags(t *testing.T) {
	assert.True(t, BoolVal(true).IsBool())
	assert.True(t, Null.IsNull())
	assert.True(t, NumberVal(1).IsNumber())

	heap := NewHeap()
	str := heap.CopyString("s")
	assert.True(t, ObjVal(str).IsObj())
	assert.True(t, ObjVal(str).IsString())
}

func TestFalseyness(t *testing.T) {
	assert.True(t, Null.IsFalsey())
	assert.True(t, BoolVal(false).IsFalsey())

	assert.False(t, BoolVal(true).IsFalsey())
	assert.False(t, NumberVal(0).IsFalsey())

	heap := NewHeap()
	assert.False(t, ObjVal(heap.CopyString("")).IsFalsey())
}

func TestValuesEqualSameTag(t *testing.T) {
	assert.True(t, ValuesEqual(BoolVal(true), BoolVal(true)))
	assert.False(t, ValuesEqual(BoolVal(true), BoolVal(false)))
	assert.True(t, ValuesEqual(Null, Null))
	assert.True(t, ValuesEqual(NumberVal(1.5), NumberVal(1.5)))
	assert.False(t, ValuesEqual(NumberVal(1), NumberVal(2)))
}

func TestValuesOfDifferentTagsAreNeverEqual(t *testing.T) {
	heap := NewHeap()

	values := []Value{
		BoolVal(false),
		Null,
		NumberVal(0),
		ObjVal(heap.CopyString("0")),
	}

	for i, a := range values {
		for j, b := range values {
			if i != j {
				assert.False(t, ValuesEqual(a, b), "%s == %s", a, b)
			}
		}
	}
}

func TestNaNIsNotEqualToItself(t *testing.T) {
	nan := NumberVal(math.NaN())
	assert.False(t, ValuesEqual(nan, nan))
}

func TestInternedStringsCompareByIdentity(t *testing.T) {
	heap := NewHeap()

	a := heap.CopyString("hello")
	b := heap.CopyString("hello")
	c := heap.CopyString("other")

	assert.True(t, ValuesEqual(ObjVal(a), ObjVal(b)))
	assert.False(t, ValuesEqual(ObjVal(a), ObjVal(c)))
}

func TestStringRendering(t *testing.T) {
	heap := NewHeap()

	tests := []struct {
		value    Value
		expected string
	}{
		{BoolVal(true), "true"},
		{BoolVal(false), "false"},
		{Null, "null"},
		{NumberVal(7), "7"},
		{NumberVal(1.5), "1.5"},
		{NumberVal(-0.25), "-0.25"},
		{ObjVal(heap.CopyString("hi")), "hi"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.value.String())
	}
}

func TestObjectRendering(t *testing.T) {
	heap := NewHeap()

	name := heap.CopyString("Point")
	class := heap.NewClass(name)
	instance := heap.NewInstance(class)
	fn := heap.NewFunction(heap.CopyString("fib"), 1, FuncTypeFunction)
	script := heap.NewFunction(nil, 0, FuncTypeScript)
	native := heap.NewNative(nil)
	list := heap.NewList([]Value{NumberVal(1), NumberVal(2)})

	assert.Equal(t, "Point class", ObjVal(class).String())
	assert.Equal(t, "Point instance", ObjVal(instance).String())
	assert.Equal(t, "<fn fib>", ObjVal(fn).String())
	assert.Equal(t, "<script>", ObjVal(script).String())
	assert.Equal(t, "<native fn>", ObjVal(native).String())
	assert.Equal(t, "{ 1, 2 }", ObjVal(list).String())
}

// Stringify drives string concatenation: five-digit fixed precision with
// trailing zeros trimmed, so whole numbers carry no fractional part.
func TestStringify(t *testing.T) {
	tests := []struct {
		value    Value
		expected string
	}{
		{NumberVal(0), "0"},
		{NumberVal(1), "1"},
		{NumberVal(100), "100"},
		{NumberVal(1.5), "1.5"},
		{NumberVal(1.25), "1.25"},
		{NumberVal(-3), "-3"},
		{BoolVal(true), "true"},
		{Null, "null"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.value.Stringify())
	}
}
