package vm

import (
	"fmt"
	"unsafe"

	"github.com/kristofer/nvmbr/pkg/bytecode"
	"github.com/kristofer/nvmbr/pkg/value"
)

// run is the interpreter's fetch-decode-execute loop. It drains frames
// until the top-level script returns, or returns the first runtime
// fault it hits.
func (v *VM) run() error {
	fr := &v.frames[v.frameCount-1]
	chunk := fr.closure.Function.Chunk.(*bytecode.Chunk)

	readByte := func() byte {
		b := chunk.Code[fr.ip]
		fr.ip++
		return b
	}
	readShort := func() int {
		hi, lo := chunk.Code[fr.ip], chunk.Code[fr.ip+1]
		fr.ip += 2
		return int(hi)<<8 | int(lo)
	}
	readConstant := func() value.Value { return chunk.Constants[readByte()] }
	readString := func() *value.ObjString {
		return value.AsString(value.AsObj(readConstant()))
	}

	for {
		if v.trace != nil {
			v.traceInstruction(chunk, fr.ip)
		}

		op := bytecode.Op(readByte())
		switch op {
		case bytecode.OpConstant:
			v.push(readConstant())

		case bytecode.OpNil:
			v.push(value.Nil)
		case bytecode.OpTrue:
			v.push(value.True)
		case bytecode.OpFalse:
			v.push(value.False)
		case bytecode.OpPop:
			v.pop()

		case bytecode.OpGetLocal:
			slot := fr.slots + int(readByte())
			v.push(v.stack[slot])
		case bytecode.OpSetLocal:
			slot := fr.slots + int(readByte())
			v.stack[slot] = v.peek(0)

		case bytecode.OpGetGlobal:
			name := readString()
			val, ok := v.globals.Get(name)
			if !ok {
				return v.runtimeError("Undefined variable `%s`.", name.Chars)
			}
			v.push(val)
		case bytecode.OpDefGlobal:
			name := readString()
			v.globals.Set(name, v.peek(0))
			v.pop()
		case bytecode.OpSetGlobal:
			name := readString()
			if v.globals.Set(name, v.peek(0)) {
				v.globals.Delete(name)
				return v.runtimeError("Undefined variable `%s`.", name.Chars)
			}

		case bytecode.OpGetUpval:
			slot := readByte()
			v.push(*fr.closure.Upvalues[slot].Location)
		case bytecode.OpSetUpval:
			slot := readByte()
			*fr.closure.Upvalues[slot].Location = v.peek(0)

		case bytecode.OpGetProp:
			if !value.IsObjType(v.peek(0), value.ObjTypeInstance) {
				return v.runtimeError("Only instances can have properties.")
			}
			inst := value.AsInstance(value.AsObj(v.peek(0)))
			name := readString()
			if val, ok := inst.Fields[name]; ok {
				v.pop()
				v.push(val)
				break
			}
			if err := v.bindMethod(inst.Class, name); err != nil {
				return err
			}
		case bytecode.OpSetProp:
			if !value.IsObjType(v.peek(1), value.ObjTypeInstance) {
				return v.runtimeError("Only instances can have fields.")
			}
			inst := value.AsInstance(value.AsObj(v.peek(1)))
			inst.Fields[readString()] = v.peek(0)
			val := v.pop()
			v.pop()
			v.push(val)
		case bytecode.OpGetSuper:
			name := readString()
			super := value.AsClass(value.AsObj(v.pop()))
			if err := v.bindMethod(super, name); err != nil {
				return err
			}

		case bytecode.OpEqual:
			b, a := v.pop(), v.pop()
			v.push(value.Bool(value.Equal(a, b)))
		case bytecode.OpGreater:
			if err := v.binaryNumberOp(func(a, b float64) value.Value { return value.Bool(a > b) }); err != nil {
				return err
			}
		case bytecode.OpLess:
			if err := v.binaryNumberOp(func(a, b float64) value.Value { return value.Bool(a < b) }); err != nil {
				return err
			}

		case bytecode.OpAdd:
			switch {
			case value.IsObjType(v.peek(0), value.ObjTypeString) && value.IsObjType(v.peek(1), value.ObjTypeString):
				v.concatenate()
			case value.IsNumber(v.peek(0)) && value.IsNumber(v.peek(1)):
				b, a := value.AsNumber(v.pop()), value.AsNumber(v.pop())
				v.push(value.Number(a + b))
			default:
				return v.runtimeError("Operands must be two numbers or two strings.")
			}
		case bytecode.OpSub:
			if err := v.binaryNumberOp(func(a, b float64) value.Value { return value.Number(a - b) }); err != nil {
				return err
			}
		case bytecode.OpMul:
			if err := v.binaryNumberOp(func(a, b float64) value.Value { return value.Number(a * b) }); err != nil {
				return err
			}
		case bytecode.OpDiv:
			if err := v.binaryNumberOp(func(a, b float64) value.Value { return value.Number(a / b) }); err != nil {
				return err
			}

		case bytecode.OpNot:
			v.push(value.Bool(value.IsFalsey(v.pop())))
		case bytecode.OpNegate:
			if !value.IsNumber(v.peek(0)) {
				return v.runtimeError("Operand must be a number.")
			}
			v.push(value.Number(-value.AsNumber(v.pop())))

		case bytecode.OpPrint:
			fmt.Fprintln(v.stdout(), value.String(v.pop()))

		case bytecode.OpJump:
			offset := readShort()
			fr.ip += offset
		case bytecode.OpJumpIfFalse:
			offset := readShort()
			if value.IsFalsey(v.peek(0)) {
				fr.ip += offset
			}
		case bytecode.OpLoop:
			offset := readShort()
			fr.ip -= offset

		case bytecode.OpCall:
			argCount := int(readByte())
			if err := v.callValue(v.peek(argCount), argCount); err != nil {
				return err
			}
			fr = &v.frames[v.frameCount-1]
			chunk = fr.closure.Function.Chunk.(*bytecode.Chunk)

		case bytecode.OpInvoke:
			method := readString()
			argCount := int(readByte())
			if err := v.invoke(method, argCount); err != nil {
				return err
			}
			fr = &v.frames[v.frameCount-1]
			chunk = fr.closure.Function.Chunk.(*bytecode.Chunk)
		case bytecode.OpInvokeSuper:
			method := readString()
			argCount := int(readByte())
			super := value.AsClass(value.AsObj(v.pop()))
			if err := v.invokeFromClass(super, method, argCount); err != nil {
				return err
			}
			fr = &v.frames[v.frameCount-1]
			chunk = fr.closure.Function.Chunk.(*bytecode.Chunk)

		case bytecode.OpClosure:
			fn := value.AsFunction(value.AsObj(readConstant()))
			closure := v.newClosure(fn)
			for i := 0; i < fn.UpvalCount; i++ {
				isLocal := readByte()
				index := readByte()
				if isLocal != 0 {
					closure.Upvalues[i] = v.captureUpvalue(fr.slots + int(index))
				} else {
					closure.Upvalues[i] = fr.closure.Upvalues[index]
				}
			}
			v.push(value.FromObj(&closure.Obj))
		case bytecode.OpCloseUpval:
			v.closeUpvalues(v.stackTop - 1)
			v.pop()

		case bytecode.OpReturn:
			result := v.pop()
			v.closeUpvalues(fr.slots)
			v.frameCount--
			if v.frameCount == 0 {
				v.pop()
				return nil
			}
			v.stackTop = fr.slots
			v.push(result)
			fr = &v.frames[v.frameCount-1]
			chunk = fr.closure.Function.Chunk.(*bytecode.Chunk)

		case bytecode.OpClass:
			v.push(value.FromObj(&newTrackedClass(v, readString()).Obj))
		case bytecode.OpInherit:
			if !value.IsObjType(v.peek(1), value.ObjTypeClass) {
				return v.runtimeError("Superclass must be a class.")
			}
			super := value.AsClass(value.AsObj(v.peek(1)))
			sub := value.AsClass(value.AsObj(v.peek(0)))
			for name, method := range super.Methods {
				sub.Methods[name] = method
			}
			v.pop()
		case bytecode.OpMethod:
			v.defineMethod(readString())

		case bytecode.OpLarrow:
			// Never emitted; see bytecode.OpLarrow's doc comment.
			return v.runtimeError("Internal error: stray LARROW opcode.")

		default:
			return v.runtimeError("Unknown opcode %d.", op)
		}
	}
}

func (v *VM) binaryNumberOp(op func(a, b float64) value.Value) error {
	if !value.IsNumber(v.peek(0)) || !value.IsNumber(v.peek(1)) {
		return v.runtimeError("Operands must be numbers.")
	}
	b, a := value.AsNumber(v.pop()), value.AsNumber(v.pop())
	v.push(op(a, b))
	return nil
}

func newTrackedClass(v *VM, name *value.ObjString) *value.ObjClass {
	class := value.NewClass(name)
	v.track(&class.Obj, int(unsafe.Sizeof(*class)))
	return class
}
