// Package vm implements NVMbr's bytecode virtual machine: a stack-based
// interpreter with call frames, closures, single inheritance, and a
// mark-and-sweep collector over its own object heap.
package vm

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/kristofer/nvmbr/pkg/bytecode"
	"github.com/kristofer/nvmbr/pkg/compiler"
	"github.com/kristofer/nvmbr/pkg/table"
	"github.com/kristofer/nvmbr/pkg/value"
)

const (
	framesMax = 64
	uint8Max  = 256
	stackMax  = framesMax * uint8Max
)

// frame is one call's activation record: the closure it's running,
// its instruction pointer, and the window of vm.stack it addresses as
// local slots.
type frame struct {
	closure *value.ObjClosure
	ip      int
	slots   int // index into vm.stack where this frame's locals begin
}

// VM is a single interpreter instance. Construct with New, run a
// program with Interpret. A VM is not safe for concurrent use — NVMbr
// programs are single-threaded and synchronous.
type VM struct {
	frames     []frame
	frameCount int

	stack    []value.Value
	stackTop int

	globals     *table.Table
	strings     *table.Table
	initString *value.ObjString
	openUpvals *value.ObjUpvalue

	objects      *value.Obj
	allocedBytes int
	nextGC       int

	stressGC bool
	trace    io.Writer
	gcLog    io.Writer
	out      io.Writer
}

func (v *VM) stdout() io.Writer {
	if v.out == nil {
		return os.Stdout
	}
	return v.out
}

// New constructs a VM with its globals/intern tables initialized and
// the `clock` native already defined.
func New(opts ...Option) *VM {
	v := &VM{
		frames:  make([]frame, framesMax),
		stack:   make([]value.Value, stackMax),
		globals: &table.Table{},
		strings: &table.Table{},
		nextGC:  1024 * 1024,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.initString = v.internString("init")
	v.defineNative("clock", clockNative)
	return v
}

// Interpret compiles and runs source to completion. It returns a
// *compiler.CompileError-bearing error if compilation failed, or a
// *RuntimeError if the program faulted while running.
func (v *VM) Interpret(source string) error {
	fn, errs := compiler.Compile(source)
	if fn == nil {
		return compileErrors(errs)
	}
	return v.InterpretFunction(fn)
}

// InterpretFunction runs an already-compiled top-level function
// (typically one returned by compiler.Compile or a REPL line) against
// this VM, adopting its constants into the VM's heap and intern table
// first. Exported so a REPL can compile each line independently while
// still running every line against the same long-lived VM, and globals
// defined on one line stay visible to the next.
func (v *VM) InterpretFunction(fn *value.ObjFunction) error {
	closure := v.adopt(fn)
	v.push(value.FromObj(&closure.Obj))
	if err := v.call(closure, 0); err != nil {
		return err
	}
	return v.run()
}

// InterpretChunk runs a chunk decoded from a persisted bytecode image
// (pkg/bytecode.Decode), wrapping it back into a top-level ObjFunction
// first. name is not used: the chunk runs as the unnamed top-level
// script and appears as "script" in stack traces.
func (v *VM) InterpretChunk(chunk *bytecode.Chunk, name string) error {
	fn := value.NewFunction()
	fn.Chunk = chunk
	return v.InterpretFunction(fn)
}

func compileErrors(errs []*compiler.CompileError) error {
	return compiler.CompileErrors(errs)
}

// --- stack ---------------------------------------------------------------

func (v *VM) push(val value.Value) {
	v.stack[v.stackTop] = val
	v.stackTop++
}

func (v *VM) pop() value.Value {
	v.stackTop--
	return v.stack[v.stackTop]
}

func (v *VM) peek(distance int) value.Value {
	return v.stack[v.stackTop-1-distance]
}

func (v *VM) resetStack() {
	v.stackTop = 0
	v.frameCount = 0
	v.openUpvals = nil
}

// --- heap allocation & string interning -----------------------------------

// track links a freshly created object onto the VM's heap list, the
// root every mark-sweep pass walks from.
func (v *VM) track(o *value.Obj, size int) {
	o.Next = v.objects
	o.Size = size
	v.objects = o
	v.allocedBytes += size
	if v.stressGC || v.allocedBytes > v.nextGC {
		v.collectGarbage()
	}
}

// internString returns the canonical interned ObjString for s,
// allocating and tracking a new one only on a miss.
func (v *VM) internString(s string) *value.ObjString {
	hash := value.HashString(s)
	if interned := v.strings.FindString(s, hash); interned != nil {
		return interned
	}
	str := value.NewString(s)
	v.push(value.FromObj(&str.Obj))
	v.track(&str.Obj, len(s))
	v.strings.Set(str, value.True)
	v.pop()
	return str
}

// adopt walks a freshly compiled function tree (the compiler has no
// VM to register allocations with, unlike the single global `vm` this
// was ported from) and brings every constant into this VM's heap:
// nested functions are tracked, and string constants are re-pointed at
// their canonical interned instance so that string equality (identity
// after interning) holds between compile-time literals and any
// identical string built at runtime. Returns the closure wrapping fn.
func (v *VM) adopt(fn *value.ObjFunction) *value.ObjClosure {
	// fn is not yet reachable from any root; keep it on the stack so a
	// collection triggered while adopting cannot free its constants.
	v.push(value.FromObj(&fn.Obj))
	v.adoptFunction(fn)
	closure := v.newClosure(fn)
	v.pop()
	return closure
}

func (v *VM) adoptFunction(fn *value.ObjFunction) {
	v.track(&fn.Obj, int(unsafe.Sizeof(*fn)))
	if fn.Name != nil {
		fn.Name = v.internString(fn.Name.Chars)
	}

	chunk := fn.Chunk.(*bytecode.Chunk)
	for i, c := range chunk.Constants {
		switch {
		case value.IsObjType(c, value.ObjTypeString):
			interned := v.internString(value.AsString(value.AsObj(c)).Chars)
			chunk.Constants[i] = value.FromObj(&interned.Obj)
		case value.IsObjType(c, value.ObjTypeFunction):
			v.adoptFunction(value.AsFunction(value.AsObj(c)))
		}
	}
}

func (v *VM) newClosure(fn *value.ObjFunction) *value.ObjClosure {
	closure := value.NewClosure(fn)
	upvalPtrSize := int(unsafe.Sizeof((*value.ObjUpvalue)(nil)))
	v.track(&closure.Obj, int(unsafe.Sizeof(*closure))+len(closure.Upvalues)*upvalPtrSize)
	return closure
}

func (v *VM) defineNative(name string, fn value.NativeFn) {
	nameStr := v.internString(name)
	native := value.NewNative(name, fn)
	v.push(value.FromObj(&nameStr.Obj))
	v.push(value.FromObj(&native.Obj))
	v.track(&native.Obj, int(unsafe.Sizeof(*native)))
	v.globals.Set(nameStr, v.stack[v.stackTop-1])
	v.pop()
	v.pop()
}

// --- calling ---------------------------------------------------------------

// call pushes a new frame for closure. A nil return means the call was
// entered successfully; otherwise the returned error is the one run()
// should propagate.
func (v *VM) call(closure *value.ObjClosure, argCount int) error {
	if argCount != closure.Function.Arity {
		return v.runtimeError("Expected %d arguments, but got %d instead.", closure.Function.Arity, argCount)
	}
	if v.frameCount == framesMax {
		return v.runtimeError("Stack overflow.")
	}

	v.frames[v.frameCount] = frame{closure: closure, ip: 0, slots: v.stackTop - argCount - 1}
	v.frameCount++
	return nil
}

func (v *VM) callValue(callee value.Value, argCount int) error {
	if value.IsObj(callee) {
		switch value.AsObj(callee).Type {
		case value.ObjTypeBoundMethod:
			bound := value.AsBoundMethod(value.AsObj(callee))
			v.stack[v.stackTop-argCount-1] = bound.Receiver
			return v.call(bound.Method, argCount)
		case value.ObjTypeClass:
			class := value.AsClass(value.AsObj(callee))
			inst := value.NewInstance(class)
			v.track(&inst.Obj, int(unsafe.Sizeof(*inst)))
			v.stack[v.stackTop-argCount-1] = value.FromObj(&inst.Obj)

			if init, ok := class.Methods[v.initString]; ok {
				return v.call(value.AsClosure(value.AsObj(init)), argCount)
			}
			if argCount != 0 {
				return v.runtimeError("Expected no arguments but got %d instead.", argCount)
			}
			return nil
		case value.ObjTypeClosure:
			return v.call(value.AsClosure(value.AsObj(callee)), argCount)
		case value.ObjTypeNative:
			native := value.AsNative(value.AsObj(callee))
			args := v.stack[v.stackTop-argCount : v.stackTop]
			result, err := native.Function(args)
			if err != nil {
				return v.runtimeError("%s", err.Error())
			}
			v.stackTop -= argCount + 1
			v.push(result)
			return nil
		}
	}
	return v.runtimeError("Can only call functions and classes.")
}

func (v *VM) invokeFromClass(class *value.ObjClass, name *value.ObjString, argCount int) error {
	method, ok := class.Methods[name]
	if !ok {
		return v.runtimeError("Undefined property `%s`.", name.Chars)
	}
	return v.call(value.AsClosure(value.AsObj(method)), argCount)
}

func (v *VM) invoke(name *value.ObjString, argCount int) error {
	receiver := v.peek(argCount)
	if !value.IsObjType(receiver, value.ObjTypeInstance) {
		return v.runtimeError("Only instances can have methods.")
	}

	inst := value.AsInstance(value.AsObj(receiver))
	if field, ok := inst.Fields[name]; ok {
		v.stack[v.stackTop-argCount-1] = field
		return v.callValue(field, argCount)
	}

	return v.invokeFromClass(inst.Class, name, argCount)
}

func (v *VM) bindMethod(class *value.ObjClass, name *value.ObjString) error {
	method, ok := class.Methods[name]
	if !ok {
		return v.runtimeError("Undefined property `%s`.", name.Chars)
	}

	bound := value.NewBoundMethod(v.peek(0), value.AsClosure(value.AsObj(method)))
	v.track(&bound.Obj, int(unsafe.Sizeof(*bound)))
	v.pop()
	v.push(value.FromObj(&bound.Obj))
	return nil
}

// --- upvalues --------------------------------------------------------------

// captureUpvalue walks the open-upvalue list (sorted by descending
// stack address) and either reuses an existing upvalue for slot or
// inserts a new one preserving that order.
func (v *VM) captureUpvalue(slot int) *value.ObjUpvalue {
	var prev *value.ObjUpvalue
	cur := v.openUpvals
	for cur != nil && stackIndex(v, cur.Location) > slot {
		prev = cur
		cur = cur.NextOpen
	}
	if cur != nil && stackIndex(v, cur.Location) == slot {
		return cur
	}

	created := value.NewUpvalue(&v.stack[slot])
	v.track(&created.Obj, int(unsafe.Sizeof(*created)))
	created.NextOpen = cur
	if prev == nil {
		v.openUpvals = created
	} else {
		prev.NextOpen = created
	}
	return created
}

// stackIndex recovers the stack slot a still-open upvalue points at.
// Go has no pointer arithmetic, so open upvalues store *Value directly
// into v.stack's backing array and this walks the slice to find it;
// comparisons between the two locations use the slice index instead of
// the raw address difference the C original computes.
func stackIndex(v *VM, loc *value.Value) int {
	for i := range v.stack {
		if &v.stack[i] == loc {
			return i
		}
	}
	return -1
}

func (v *VM) closeUpvalues(fromSlot int) {
	for v.openUpvals != nil && stackIndex(v, v.openUpvals.Location) >= fromSlot {
		up := v.openUpvals
		up.Closed = *up.Location
		up.Location = &up.Closed
		v.openUpvals = up.NextOpen
	}
}

func (v *VM) defineMethod(name *value.ObjString) {
	method := v.peek(0)
	class := value.AsClass(value.AsObj(v.peek(1)))
	class.Methods[name] = method
	v.pop()
}

// --- misc helpers ------------------------------------------------------

func (v *VM) concatenate() {
	b := value.AsString(value.AsObj(v.peek(0)))
	a := value.AsString(value.AsObj(v.peek(1)))

	result := v.internString(a.Chars + b.Chars)
	v.pop()
	v.pop()
	v.push(value.FromObj(&result.Obj))
}

// runtimeError builds a *RuntimeError carrying the current call stack
// and resets the VM's stack so it's ready for the next Interpret call.
// Callers that detect a fault call this to get the error, then return
// it out of run() on the same line: `return v.runtimeError(...)`. It
// always returns non-nil.
func (v *VM) runtimeError(format string, args ...interface{}) error {
	message := fmt.Sprintf(format, args...)

	frames := make([]StackFrame, 0, v.frameCount)
	for i := v.frameCount - 1; i >= 0; i-- {
		fr := &v.frames[i]
		function := fr.closure.Function
		chunk := function.Chunk.(*bytecode.Chunk)
		line := chunk.GetLine(fr.ip - 1)

		name := "script"
		if function.Name != nil {
			name = function.Name.Chars + "()"
		}
		frames = append(frames, StackFrame{Line: line, Name: name})
	}

	v.resetStack()
	return newRuntimeError(message, frames)
}
