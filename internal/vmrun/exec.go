package vmrun

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/margarine-lang/marginc/internal/bytecode"
	"github.com/margarine-lang/marginc/internal/diag"
)

func (f *frame) readU8() uint8 {
	v := f.code[f.ip]
	f.ip++
	return v
}

func (f *frame) readU32() uint32 {
	v := binary.LittleEndian.Uint32(f.code[f.ip : f.ip+4])
	f.ip += 4
	return v
}

func (f *frame) readI32() int32 { return int32(f.readU32()) }

func (f *frame) readI64() int64 {
	v := binary.LittleEndian.Uint64(f.code[f.ip : f.ip+8])
	f.ip += 8
	return int64(v)
}

func (f *frame) readF64() float64 {
	v := binary.LittleEndian.Uint64(f.code[f.ip : f.ip+8])
	f.ip += 8
	return math.Float64frombits(v)
}

// exec is the dispatch loop: one opcode per iteration against the
// innermost frame, until the outermost frame returns or an instruction
// faults.
func (vm *VM) exec() (Reg, *diag.Fault) {
	for {
		f := &vm.frames[len(vm.frames)-1]
		op := bytecode.Op(f.code[f.ip])
		f.ip++
		vm.stats.Instructions++

		switch op {
		case bytecode.OpRet:
			f.readU8() // local count; the frame's bottom already bounds it
			if result, done := vm.ret(); done {
				return result, nil
			}

		case bytecode.OpUnit:
			vm.push(UnitReg())
		case bytecode.OpConstBool:
			vm.push(BoolReg(f.readU8() != 0))
		case bytecode.OpConstInt:
			vm.push(IntReg(f.readI64()))
		case bytecode.OpConstFloat:
			vm.push(FloatReg(f.readF64()))
		case bytecode.OpConstStr:
			idx := f.readU32()
			if int(idx) >= len(vm.img.Strings) {
				return UnitReg(), diag.NewFault(diag.FaultOutOfBounds, fmt.Sprintf("string constant %d", idx))
			}
			vm.push(vm.NewString(vm.img.Strings[idx]))

		case bytecode.OpPushLocalSpace:
			n := int(f.readU8())
			for i := 0; i < n; i++ {
				vm.push(UnitReg())
			}
		case bytecode.OpPopLocalSpace:
			n := int(f.readU8())
			vm.stack = vm.stack[:len(vm.stack)-n]

		case bytecode.OpPop:
			vm.pop()
		case bytecode.OpCopy:
			vm.push(*vm.top())
		case bytecode.OpSwap:
			n := len(vm.stack)
			vm.stack[n-1], vm.stack[n-2] = vm.stack[n-2], vm.stack[n-1]

		case bytecode.OpLoad:
			vm.push(vm.stack[vm.bottom+int(f.readU8())])
		case bytecode.OpStore:
			slot := int(f.readU8())
			vm.stack[vm.bottom+slot] = vm.pop()

		case bytecode.OpCall:
			fid := f.readU32()
			argc := int(f.readU8())
			if fault := vm.call(fid, argc); fault != nil {
				return UnitReg(), fault
			}

		case bytecode.OpCallFuncRef:
			argc := int(f.readU8())
			ref := vm.pop()
			if !ref.IsObj() || vm.obj(ref).Kind != ObjFuncRef {
				return UnitReg(), diag.NewFault(diag.FaultHostReported, "call through a non-function value")
			}
			o := vm.obj(ref)
			captures := o.Captures
			target := o.Func
			for _, c := range captures {
				vm.push(c)
			}
			if fault := vm.call(target, argc+len(captures)); fault != nil {
				return UnitReg(), fault
			}

		case bytecode.OpCreateFuncRef:
			n := int(f.readU8())
			captures := make([]Reg, n)
			for i := n - 1; i >= 0; i-- {
				captures[i] = vm.pop()
			}
			fid := vm.pop().AsInt()
			vm.push(vm.alloc(Object{Kind: ObjFuncRef, Func: uint32(fid), Captures: captures}))

		case bytecode.OpCreateStruct:
			n := int(f.readU8())
			fields := make([]Reg, n)
			for i := n - 1; i >= 0; i-- {
				fields[i] = vm.pop()
			}
			vm.push(vm.alloc(Object{Kind: ObjStruct, Fields: fields}))

		case bytecode.OpCreateList:
			n := int(f.readU32())
			elems := make([]Reg, n)
			for i := n - 1; i >= 0; i-- {
				elems[i] = vm.pop()
			}
			vm.push(vm.alloc(Object{Kind: ObjList, Fields: elems}))

		case bytecode.OpLoadField:
			idx := int(f.readU8())
			o := vm.obj(vm.pop())
			if idx >= len(o.Fields) {
				return UnitReg(), diag.NewFault(diag.FaultOutOfBounds, fmt.Sprintf("field %d", idx))
			}
			vm.push(o.Fields[idx])

		case bytecode.OpStoreField:
			idx := int(f.readU8())
			val := vm.pop()
			o := vm.obj(vm.pop())
			if idx >= len(o.Fields) {
				return UnitReg(), diag.NewFault(diag.FaultOutOfBounds, fmt.Sprintf("field %d", idx))
			}
			o.Fields[idx] = val

		case bytecode.OpIndexList:
			idx := vm.pop().AsInt()
			o := vm.obj(vm.pop())
			if idx < 0 || int(idx) >= len(o.Fields) {
				return UnitReg(), diag.NewFault(diag.FaultOutOfBounds, fmt.Sprintf("index %d of %d", idx, len(o.Fields)))
			}
			vm.push(o.Fields[idx])

		case bytecode.OpStoreList:
			val := vm.pop()
			idx := vm.pop().AsInt()
			o := vm.obj(vm.pop())
			if idx < 0 || int(idx) >= len(o.Fields) {
				return UnitReg(), diag.NewFault(diag.FaultOutOfBounds, fmt.Sprintf("index %d of %d", idx, len(o.Fields)))
			}
			o.Fields[idx] = val

		case bytecode.OpLoadEnumField:
			variant := int64(f.readU32())
			o := vm.obj(vm.pop())
			if len(o.Fields) == 2 && o.Fields[0].AsInt() == variant {
				vm.push(vm.NewSome(o.Fields[1]))
			} else {
				vm.push(vm.NewNone())
			}

		case bytecode.OpUnwrap:
			o := vm.obj(vm.pop())
			if len(o.Fields) != 2 || o.Fields[0].AsInt() != 0 {
				return UnitReg(), diag.NewFault(diag.FaultUnwrapFailure, "")
			}
			vm.push(o.Fields[1])

		case bytecode.OpUnwrapStore:
			o := vm.obj(*vm.top())
			if len(o.Fields) != 2 || o.Fields[0].AsInt() != 0 {
				return UnitReg(), diag.NewFault(diag.FaultUnwrapFailure, "")
			}
			vm.push(o.Fields[1])

		case bytecode.OpUnwrapFail:
			o := vm.obj(vm.pop())
			if len(o.Fields) != 2 || o.Fields[0].AsInt() != 0 {
				return UnitReg(), diag.NewFault(diag.FaultUnwrapFailure, "")
			}

		case bytecode.OpErr:
			section := f.readU8()
			file := f.readU32()
			index := f.readU32()
			return UnitReg(), diag.NewFault(diag.FaultHostReported, vm.errMessage(section, file, index))

		case bytecode.OpCastIntToFloat:
			vm.push(FloatReg(float64(vm.pop().AsInt())))
		case bytecode.OpCastFloatToInt:
			vm.push(IntReg(int64(vm.pop().AsFloat())))
		case bytecode.OpCastBoolToInt:
			if vm.pop().AsBool() {
				vm.push(IntReg(1))
			} else {
				vm.push(IntReg(0))
			}

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
			if fault := vm.arith(op); fault != nil {
				return UnitReg(), fault
			}

		case bytecode.OpEq:
			b := vm.pop()
			a := vm.pop()
			vm.push(BoolReg(vm.regsEqual(a, b)))

		case bytecode.OpNe:
			b := vm.pop()
			a := vm.pop()
			vm.push(BoolReg(!vm.regsEqual(a, b)))

		case bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
			vm.compare(op)

		case bytecode.OpAnd:
			b := vm.pop().AsBool()
			a := vm.pop().AsBool()
			vm.push(BoolReg(a && b))
		case bytecode.OpOr:
			b := vm.pop().AsBool()
			a := vm.pop().AsBool()
			vm.push(BoolReg(a || b))
		case bytecode.OpNot:
			vm.push(BoolReg(!vm.pop().AsBool()))
		case bytecode.OpNeg:
			v := vm.pop()
			if v.Kind == RegFloat {
				vm.push(FloatReg(-v.AsFloat()))
			} else {
				vm.push(IntReg(-v.AsInt()))
			}

		case bytecode.OpJump:
			off := f.readI32()
			f.ip += int(off)

		case bytecode.OpSwitchOn:
			trueOff := f.readI32()
			falseOff := f.readI32()
			if vm.pop().AsBool() {
				f.ip += int(trueOff)
			} else {
				f.ip += int(falseOff)
			}

		case bytecode.OpSwitch:
			size := int(f.readU32())
			tableStart := f.ip
			f.ip += size
			tag := vm.pop().AsInt()
			if tag < 0 || int(tag) >= size/4 {
				return UnitReg(), diag.NewFault(diag.FaultOutOfBounds, fmt.Sprintf("switch tag %d", tag))
			}
			off := int32(binary.LittleEndian.Uint32(f.code[tableStart+int(tag)*4 : tableStart+int(tag)*4+4]))
			f.ip += int(off)

		default:
			return UnitReg(), diag.NewFault(diag.FaultHostReported, fmt.Sprintf("unknown opcode 0x%02x", byte(op)))
		}
	}
}

// arith applies one of the five arithmetic opcodes to the top two cells,
// dispatching on the operand tag: both int, both float, or (for add)
// both strings.
func (vm *VM) arith(op bytecode.Op) *diag.Fault {
	b := vm.pop()
	a := vm.pop()

	if a.Kind == RegObj && op == bytecode.OpAdd {
		as, _ := vm.StringValue(a)
		bs, _ := vm.StringValue(b)
		vm.push(vm.NewString(as + bs))
		return nil
	}

	if a.Kind == RegFloat {
		x, y := a.AsFloat(), b.AsFloat()
		switch op {
		case bytecode.OpAdd:
			vm.push(FloatReg(x + y))
		case bytecode.OpSub:
			vm.push(FloatReg(x - y))
		case bytecode.OpMul:
			vm.push(FloatReg(x * y))
		case bytecode.OpDiv:
			if y == 0 {
				return diag.NewFault(diag.FaultDivideByZero, "")
			}
			vm.push(FloatReg(x / y))
		case bytecode.OpMod:
			if y == 0 {
				return diag.NewFault(diag.FaultDivideByZero, "")
			}
			vm.push(FloatReg(math.Mod(x, y)))
		}
		return nil
	}

	x, y := a.AsInt(), b.AsInt()
	switch op {
	case bytecode.OpAdd:
		vm.push(IntReg(x + y))
	case bytecode.OpSub:
		vm.push(IntReg(x - y))
	case bytecode.OpMul:
		vm.push(IntReg(x * y))
	case bytecode.OpDiv:
		if y == 0 {
			return diag.NewFault(diag.FaultDivideByZero, "")
		}
		vm.push(IntReg(x / y))
	case bytecode.OpMod:
		if y == 0 {
			return diag.NewFault(diag.FaultDivideByZero, "")
		}
		vm.push(IntReg(x % y))
	}
	return nil
}

func (vm *VM) compare(op bytecode.Op) {
	b := vm.pop()
	a := vm.pop()
	var lt, eq bool
	if a.Kind == RegFloat {
		lt = a.AsFloat() < b.AsFloat()
		eq = a.AsFloat() == b.AsFloat()
	} else {
		lt = a.AsInt() < b.AsInt()
		eq = a.AsInt() == b.AsInt()
	}
	switch op {
	case bytecode.OpLt:
		vm.push(BoolReg(lt))
	case bytecode.OpLe:
		vm.push(BoolReg(lt || eq))
	case bytecode.OpGt:
		vm.push(BoolReg(!lt && !eq))
	default:
		vm.push(BoolReg(!lt))
	}
}
