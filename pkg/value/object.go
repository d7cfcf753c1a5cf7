package value

import (
	"fmt"
	"unsafe"
)

// ObjType tags the concrete type behind an *Obj.
type ObjType byte

const (
	ObjTypeBoundMethod ObjType = iota
	ObjTypeClass
	ObjTypeClosure
	ObjTypeFunction
	ObjTypeInstance
	ObjTypeNative
	ObjTypeString
	ObjTypeUpvalue
)

func (t ObjType) String() string {
	switch t {
	case ObjTypeBoundMethod:
		return "bound method"
	case ObjTypeClass:
		return "class"
	case ObjTypeClosure:
		return "closure"
	case ObjTypeFunction:
		return "function"
	case ObjTypeInstance:
		return "instance"
	case ObjTypeNative:
		return "native"
	case ObjTypeString:
		return "string"
	case ObjTypeUpvalue:
		return "upvalue"
	default:
		return "unknown"
	}
}

// Obj is the common header every heap object embeds as its first
// field. Because Go guarantees a struct's address equals its first
// field's address, a *ObjString (for example) can be safely converted
// to *Obj and back via unsafe.Pointer — the same layout trick the
// NaN-boxed Value payload relies on, mirroring the plain C upcast the
// struct this was ported from uses.
//
// Next threads every live object into one intrusive list rooted at the
// VM, which is what keeps these objects reachable to Go's own garbage
// collector even though a NaN-boxed Value hides the pointer inside a
// uint64 (see pkg/value's doc comment and DESIGN.md).
type Obj struct {
	Type     ObjType
	IsMarked bool
	Next     *Obj
	Size     int // bytes charged against the VM's allocedBytes at track time; subtracted back in sweep
}

// ObjString is an interned, immutable string.
type ObjString struct {
	Obj
	Chars string
	Hash  uint32
}

// HashString computes the FNV-1a hash NVMbr uses for string interning.
// Reimplemented directly (rather than via hash/fnv) to keep the exact
// algorithm — seed, prime, and per-byte XOR-then-multiply order — in
// one visible place, matching the single call site it has in the
// original.
func HashString(s string) uint32 {
	hash := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}

// NewString builds an un-interned ObjString. Interning is the heap's
// job (it owns the string table), not this constructor's.
func NewString(s string) *ObjString {
	return &ObjString{Obj: Obj{Type: ObjTypeString}, Chars: s, Hash: HashString(s)}
}

// ObjUpvalue is a reference to a variable captured by a closure. While
// open it points at a live VM stack slot; once closed it owns its value.
type ObjUpvalue struct {
	Obj
	Location *Value // points into the VM stack while open, or at Closed once closed
	Closed   Value
	NextOpen *ObjUpvalue // next entry in the VM's open-upvalue list
}

func NewUpvalue(slot *Value) *ObjUpvalue {
	return &ObjUpvalue{Obj: Obj{Type: ObjTypeUpvalue}, Location: slot, Closed: Nil}
}

// ObjFunction is a compiled function body: its bytecode chunk, arity,
// and the number of upvalues its closures need to allocate.
//
// Chunk is declared as `interface{}` here to avoid an import cycle
// (pkg/bytecode depends on pkg/value for the constant pool) and is
// always a *bytecode.Chunk in practice; every package that reads it
// imports bytecode directly. NewFunction leaves it nil.
type ObjFunction struct {
	Obj
	Arity      int
	UpvalCount int
	Chunk      interface{}
	Name       *ObjString // nil for the top-level script
}

func NewFunction() *ObjFunction {
	return &ObjFunction{Obj: Obj{Type: ObjTypeFunction}}
}

// NativeFn is a Go function exposed to NVMbr code as a callable value.
type NativeFn func(args []Value) (Value, error)

type ObjNative struct {
	Obj
	Name     string
	Function NativeFn
}

func NewNative(name string, fn NativeFn) *ObjNative {
	return &ObjNative{Obj: Obj{Type: ObjTypeNative}, Name: name, Function: fn}
}

// ObjClosure pairs a function with the upvalues it captured at
// creation time.
type ObjClosure struct {
	Obj
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func NewClosure(fn *ObjFunction) *ObjClosure {
	return &ObjClosure{Obj: Obj{Type: ObjTypeClosure}, Function: fn, Upvalues: make([]*ObjUpvalue, fn.UpvalCount)}
}

// ObjClass is a class: a name and its own method table. Single
// inheritance is implemented by copying the superclass's method table
// into the subclass's at OP_INHERIT time, not by a parent pointer.
type ObjClass struct {
	Obj
	Name    *ObjString
	Methods map[*ObjString]Value
}

func NewClass(name *ObjString) *ObjClass {
	return &ObjClass{Obj: Obj{Type: ObjTypeClass}, Name: name, Methods: make(map[*ObjString]Value)}
}

// ObjInstance is a live instance of a class: its class pointer plus a
// bag of fields set by `:name <- value` assignments.
type ObjInstance struct {
	Obj
	Class  *ObjClass
	Fields map[*ObjString]Value
}

func NewInstance(class *ObjClass) *ObjInstance {
	return &ObjInstance{Obj: Obj{Type: ObjTypeInstance}, Class: class, Fields: make(map[*ObjString]Value)}
}

// ObjBoundMethod pairs a receiver with a method closure, produced when
// a method is read off an instance without being called immediately
// (`:name` with no trailing `(...)`).
type ObjBoundMethod struct {
	Obj
	Receiver Value
	Method   *ObjClosure
}

func NewBoundMethod(receiver Value, method *ObjClosure) *ObjBoundMethod {
	return &ObjBoundMethod{Obj: Obj{Type: ObjTypeBoundMethod}, Receiver: receiver, Method: method}
}

// Down-casts. The caller is responsible for having checked the type
// via Obj.Type (or IsObjType) first — these panic on mismatch rather
// than returning ok, matching how the C macros this was ported from
// trust their callers to have checked OBJ_TYPE already.

func AsString(o *Obj) *ObjString           { return (*ObjString)(downcast(o, ObjTypeString)) }
func AsUpvalue(o *Obj) *ObjUpvalue         { return (*ObjUpvalue)(downcast(o, ObjTypeUpvalue)) }
func AsFunction(o *Obj) *ObjFunction       { return (*ObjFunction)(downcast(o, ObjTypeFunction)) }
func AsNative(o *Obj) *ObjNative           { return (*ObjNative)(downcast(o, ObjTypeNative)) }
func AsClosure(o *Obj) *ObjClosure         { return (*ObjClosure)(downcast(o, ObjTypeClosure)) }
func AsClass(o *Obj) *ObjClass             { return (*ObjClass)(downcast(o, ObjTypeClass)) }
func AsInstance(o *Obj) *ObjInstance       { return (*ObjInstance)(downcast(o, ObjTypeInstance)) }
func AsBoundMethod(o *Obj) *ObjBoundMethod { return (*ObjBoundMethod)(downcast(o, ObjTypeBoundMethod)) }

// IsObjType reports whether v is a heap object of exactly type t.
func IsObjType(v Value, t ObjType) bool {
	return IsObj(v) && AsObj(v).Type == t
}

func downcast(o *Obj, want ObjType) unsafe.Pointer {
	if o.Type != want {
		panic(fmt.Sprintf("value: object type mismatch: have %v, want %v", o.Type, want))
	}
	return unsafe.Pointer(o)
}

// ObjString header-field naming deliberately mirrors the object kind
// accessors above. DescribeObj renders an object the way `puts` and
// the REPL print it.
func DescribeObj(o *Obj) string {
	switch o.Type {
	case ObjTypeString:
		return AsString(o).Chars
	case ObjTypeFunction:
		return describeFunction(AsFunction(o))
	case ObjTypeClosure:
		return describeFunction(AsClosure(o).Function)
	case ObjTypeNative:
		return "<native fn>"
	case ObjTypeClass:
		return AsClass(o).Name.Chars
	case ObjTypeInstance:
		return AsInstance(o).Class.Name.Chars + " instance"
	case ObjTypeBoundMethod:
		return describeFunction(AsBoundMethod(o).Method.Function)
	case ObjTypeUpvalue:
		return "upvalue"
	default:
		return "<object>"
	}
}

func describeFunction(f *ObjFunction) string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}
