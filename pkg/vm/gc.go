package vm

import (
	"fmt"

	"github.com/kristofer/nvmbr/pkg/bytecode"
	"github.com/kristofer/nvmbr/pkg/value"
)

// collectGarbage runs one mark-and-sweep pass: mark every object
// reachable from a root, trace through the grey worklist until nothing
// new is found, drop string-table entries for strings nothing marked,
// then unlink every unmarked object from the heap list.
//
// Go's own collector still owns the underlying memory — once an *Obj is
// unlinked from vm.objects and nothing else references it, it becomes
// ordinary garbage to the Go runtime. This pass's job is purely to
// break the NVMbr-level reachability graph (the intrusive Next list and
// the weak intern table) that would otherwise keep every object alive
// forever, not to free bytes itself.
func (v *VM) collectGarbage() {
	before := v.allocedBytes
	var grey []*value.Obj

	grey = v.markRoots(grey)
	grey = v.traceReferences(grey)
	v.strings.RemoveWhiteUnmarked()
	v.sweep()

	v.nextGC = v.allocedBytes * 2
	if v.gcLog != nil {
		fmt.Fprintf(v.gcLog, "gc: %d -> %d bytes, next at %d\n", before, v.allocedBytes, v.nextGC)
	}
}

func (v *VM) markRoots(grey []*value.Obj) []*value.Obj {
	for i := 0; i < v.stackTop; i++ {
		grey = markValue(grey, v.stack[i])
	}
	for i := 0; i < v.frameCount; i++ {
		grey = markObject(grey, &v.frames[i].closure.Obj)
	}
	for up := v.openUpvals; up != nil; up = up.NextOpen {
		grey = markObject(grey, &up.Obj)
	}
	v.globals.Each(func(key *value.ObjString, val value.Value) {
		grey = markObject(grey, &key.Obj)
		grey = markValue(grey, val)
	})
	if v.initString != nil {
		grey = markObject(grey, &v.initString.Obj)
	}
	return grey
}

func markValue(grey []*value.Obj, val value.Value) []*value.Obj {
	if value.IsObj(val) {
		return markObject(grey, value.AsObj(val))
	}
	return grey
}

func markObject(grey []*value.Obj, o *value.Obj) []*value.Obj {
	if o == nil || o.IsMarked {
		return grey
	}
	o.IsMarked = true
	return append(grey, o)
}

// traceReferences drains the grey worklist, blackening each object by
// marking whatever it points to (and growing the worklist with any
// newly-greyed object) until nothing is left.
func (v *VM) traceReferences(grey []*value.Obj) []*value.Obj {
	for len(grey) > 0 {
		o := grey[len(grey)-1]
		grey = grey[:len(grey)-1]
		grey = blacken(grey, o)
	}
	return grey
}

func blacken(grey []*value.Obj, o *value.Obj) []*value.Obj {
	switch o.Type {
	case value.ObjTypeBoundMethod:
		bm := value.AsBoundMethod(o)
		grey = markValue(grey, bm.Receiver)
		grey = markObject(grey, &bm.Method.Obj)
	case value.ObjTypeClass:
		class := value.AsClass(o)
		grey = markObject(grey, &class.Name.Obj)
		for name, method := range class.Methods {
			grey = markObject(grey, &name.Obj)
			grey = markValue(grey, method)
		}
	case value.ObjTypeClosure:
		closure := value.AsClosure(o)
		grey = markObject(grey, &closure.Function.Obj)
		for _, up := range closure.Upvalues {
			if up != nil {
				grey = markObject(grey, &up.Obj)
			}
		}
	case value.ObjTypeFunction:
		fn := value.AsFunction(o)
		if fn.Name != nil {
			grey = markObject(grey, &fn.Name.Obj)
		}
		chunk := fn.Chunk.(*bytecode.Chunk)
		for _, c := range chunk.Constants {
			grey = markValue(grey, c)
		}
	case value.ObjTypeInstance:
		inst := value.AsInstance(o)
		grey = markObject(grey, &inst.Class.Obj)
		for name, field := range inst.Fields {
			grey = markObject(grey, &name.Obj)
			grey = markValue(grey, field)
		}
	case value.ObjTypeUpvalue:
		grey = markValue(grey, value.AsUpvalue(o).Closed)
	case value.ObjTypeNative, value.ObjTypeString:
		// leaves: nothing further to mark
	}
	return grey
}

// sweep unlinks every unmarked object from the heap list, clears the
// mark bit on everything that survives, and shrinks allocedBytes by
// each collected object's tracked Size so next_gc is set from the
// live heap's real footprint rather than climbing forever. The
// underlying memory itself is left for Go's own collector; see
// collectGarbage's doc comment.
func (v *VM) sweep() {
	var prev *value.Obj
	o := v.objects
	for o != nil {
		if o.IsMarked {
			o.IsMarked = false
			prev = o
			o = o.Next
			continue
		}
		unreached := o
		o = o.Next
		if prev == nil {
			v.objects = o
		} else {
			prev.Next = o
		}
		v.allocedBytes -= unreached.Size
	}
}
