package bytecode

// Heap owns every wally heap object. Allocation goes through the New*
// constructors, which account bytes and may trigger a collection before
// the new object is linked into the global object list.
//
// The collector is a precise, stop-the-world, tri-color mark-sweep:
//
//   - Every object starts white (mark bit clear).
//   - Marking turns reachable objects gray by setting the bit and pushing
//     them on the gray stack.
//   - Tracing pops gray objects and blackens them by marking whatever
//     they reference.
//   - Sweeping unlinks every object still white and clears the bit on the
//     survivors for the next cycle.
//
// Roots are supplied by the heap's clients: the VM registers its value
// stack, frames, and environment chain, and the emitter registers the
// chain of functions it is in the middle of building. The interning table
// is deliberately not a root; entries whose string stayed white are
// dropped before the sweep, which is what makes interning weak.
//
// "Freeing" an object unlinks it from the object list and severs its
// outgoing references; the host runtime reclaims the memory once nothing
// reaches it. The observable lifecycle — the object list, interning, and
// collection points — matches the accounting the language defines.
type Heap struct {
	objects Obj
	strings *Table

	gray []Obj

	bytesAllocated int
	nextGC         int

	rootMarkers []func(*Heap)

	// protected pins objects that are mid-construction and not yet
	// reachable from any client root.
	protected []Obj

	// StressGC makes every allocation collect, shaking out missing-root
	// bugs in tests.
	StressGC bool

	collections int
}

const (
	initialGCThreshold = 1 << 20 // 1 MiB
	gcHeapGrowFactor   = 2
)

// NewHeap returns an empty heap with no roots registered.
func NewHeap() *Heap {
	return &Heap{
		strings: NewTable(),
		nextGC:  initialGCThreshold,
	}
}

// AddRoots registers a callback that marks a client's roots at the start
// of every collection.
func (h *Heap) AddRoots(marker func(*Heap)) {
	h.rootMarkers = append(h.rootMarkers, marker)
}

// register accounts a freshly constructed object and links it into the
// object list. The collection, if one triggers, runs before the object is
// linked, so a half-built object is never swept.
func (h *Heap) register(o Obj, size int) {
	h.bytesAllocated += size

	if h.StressGC || h.bytesAllocated > h.nextGC {
		h.Collect()
	}

	hdr := o.header()
	hdr.size = size
	hdr.next = h.objects
	h.objects = o
}

// hashString is 32-bit FNV-1a.
func hashString(s string) uint32 {
	hash := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}

// CopyString interns a string: at most one ObjString exists per distinct
// byte sequence, so identity comparison of interned strings is sound.
func (h *Heap) CopyString(chars string) *ObjString {
	hash := hashString(chars)

	if interned := h.strings.FindString(chars, hash); interned != nil {
		return interned
	}

	str := &ObjString{Chars: chars, Hash: hash}
	h.register(str, sizeOfString+len(chars))
	h.strings.Set(str, Null)
	return str
}

// NewFunction allocates a function object with an empty chunk. name is nil
// for the top-level script.
func (h *Heap) NewFunction(name *ObjString, arity byte, kind FunctionType) *ObjFunction {
	fn := &ObjFunction{Name: name, Arity: arity, Kind: kind}
	h.register(fn, sizeOfFunction)
	return fn
}

// NewNative wraps a host function.
func (h *Heap) NewNative(fn NativeFn) *ObjNative {
	native := &ObjNative{Function: fn}
	h.register(native, sizeOfNative)
	return native
}

// NewClass allocates a class with an empty method table.
func (h *Heap) NewClass(name *ObjString) *ObjClass {
	class := &ObjClass{Name: name, Methods: NewTable()}
	h.register(class, sizeOfClass)
	return class
}

// NewInstance allocates an instance with an empty field table.
func (h *Heap) NewInstance(class *ObjClass) *ObjInstance {
	instance := &ObjInstance{Class: class, Fields: NewTable()}
	h.register(instance, sizeOfInstance)
	return instance
}

// NewBoundMethod captures `this` for a method accessed as a value.
func (h *Heap) NewBoundMethod(instance *ObjInstance, method *ObjFunction) *ObjBoundMethod {
	bound := &ObjBoundMethod{Instance: instance, Method: method}
	h.register(bound, sizeOfBoundMethod)
	return bound
}

// NewList allocates a list taking ownership of items.
func (h *Heap) NewList(items []Value) *ObjList {
	list := &ObjList{Items: items}
	h.register(list, sizeOfList+len(items)*sizeOfValue)
	return list
}

// Nominal object sizes for the collection trigger. They only need to be
// proportional to real memory use, not exact.
const (
	sizeOfValue       = 32
	sizeOfString      = 48
	sizeOfFunction    = 144
	sizeOfNative      = 40
	sizeOfClass       = 64
	sizeOfInstance    = 64
	sizeOfBoundMethod = 48
	sizeOfList        = 48
)

// BytesAllocated reports the accounted size of all live objects.
func (h *Heap) BytesAllocated() int { return h.bytesAllocated }

// ObjectCount walks the object list and counts live objects.
func (h *Heap) ObjectCount() int {
	n := 0
	for o := h.objects; o != nil; o = o.header().next {
		n++
	}
	return n
}

// Collections reports how many collection cycles have run.
func (h *Heap) Collections() int { return h.collections }

// InternedStrings reports the number of live interned strings.
func (h *Heap) InternedStrings() int { return h.strings.Len() }

// FindInterned returns the canonical object for a byte sequence, or nil if
// the string was never interned (or has been collected).
func (h *Heap) FindInterned(chars string) *ObjString {
	return h.strings.FindString(chars, hashString(chars))
}

// MarkValue marks the object a value references, if any.
func (h *Heap) MarkValue(v Value) {
	if v.IsObj() {
		h.MarkObject(v.AsObj())
	}
}

// MarkObject grays an unmarked object. Safe to call during the mark phase
// only; clients call it from their registered root markers.
func (h *Heap) MarkObject(o Obj) {
	if o == nil {
		return
	}

	hdr := o.header()
	if hdr.marked {
		return
	}
	hdr.marked = true

	h.gray = append(h.gray, o)
}

// MarkTable marks every key and value of a table.
func (h *Heap) MarkTable(t *Table) {
	if t == nil {
		return
	}
	for i := range t.entries {
		entry := &t.entries[i]
		if entry.Key != nil {
			h.MarkObject(entry.Key)
		}
		h.MarkValue(entry.Value)
	}
}

// MarkEnvironment marks an environment chain's bindings.
func (h *Heap) MarkEnvironment(env *Environment) {
	for e := env; e != nil; e = e.Enclosing {
		h.MarkTable(e.Values)
	}
}

// Collect runs a full mark-sweep cycle and rearms the growth threshold.
func (h *Heap) Collect() {
	h.markRoots()
	h.traceReferences()

	// Interned strings are weak: drop the ones nothing marked, then sweep.
	h.strings.removeWhite()
	h.sweep()

	h.nextGC = h.bytesAllocated * gcHeapGrowFactor
	if h.nextGC < initialGCThreshold {
		h.nextGC = initialGCThreshold
	}
	h.collections++
}

// Protect pins an object across allocations that happen before anything
// reachable references it. Balance every Protect with Unprotect.
func (h *Heap) Protect(o Obj) {
	h.protected = append(h.protected, o)
}

// Unprotect releases the n most recently protected objects.
func (h *Heap) Unprotect(n int) {
	h.protected = h.protected[:len(h.protected)-n]
}

func (h *Heap) markRoots() {
	for _, o := range h.protected {
		h.MarkObject(o)
	}
	for _, marker := range h.rootMarkers {
		marker(h)
	}
}

func (h *Heap) traceReferences() {
	for len(h.gray) > 0 {
		o := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		h.blackenObject(o)
	}
}

// blackenObject marks everything a gray object references.
func (h *Heap) blackenObject(o Obj) {
	switch obj := o.(type) {
	case *ObjString, *ObjNative:
		// No outgoing references.

	case *ObjFunction:
		if obj.Name != nil {
			h.MarkObject(obj.Name)
		}
		for _, constant := range obj.Chunk.Constants {
			h.MarkValue(constant)
		}
		h.MarkEnvironment(obj.Env)
		if obj.Owner != nil {
			h.MarkObject(obj.Owner)
		}

	case *ObjClass:
		h.MarkObject(obj.Name)
		h.MarkTable(obj.Methods)
		if obj.Parent != nil {
			h.MarkObject(obj.Parent)
		}

	case *ObjInstance:
		h.MarkObject(obj.Class)
		h.MarkTable(obj.Fields)

	case *ObjBoundMethod:
		h.MarkObject(obj.Instance)
		h.MarkObject(obj.Method)

	case *ObjList:
		for _, item := range obj.Items {
			h.MarkValue(item)
		}
	}
}

// sweep unlinks every white object and clears the mark on survivors.
func (h *Heap) sweep() {
	var previous Obj
	object := h.objects

	for object != nil {
		hdr := object.header()
		if hdr.marked {
			hdr.marked = false
			previous = object
			object = hdr.next
			continue
		}

		unreached := object
		object = hdr.next

		if previous != nil {
			previous.header().next = object
		} else {
			h.objects = object
		}

		h.freeObject(unreached)
	}
}

// freeObject severs an object's links so the host runtime can reclaim it.
func (h *Heap) freeObject(o Obj) {
	hdr := o.header()
	h.bytesAllocated -= hdr.size
	hdr.next = nil

	switch obj := o.(type) {
	case *ObjFunction:
		obj.Chunk = Chunk{}
		obj.Env = nil
		obj.Owner = nil
	case *ObjClass:
		obj.Methods = nil
		obj.Parent = nil
	case *ObjInstance:
		obj.Class = nil
		obj.Fields = nil
	case *ObjBoundMethod:
		obj.Instance = nil
		obj.Method = nil
	case *ObjList:
		obj.Items = nil
	}
}
