// Package vmrun executes a bytecode image: a register/stack machine with
// a call-frame discipline, an indexed object arena, a per-function result
// cache, and host-function call-out. One VM owns its stack, its arena and
// its caches outright; two VMs never share state.
package vmrun

import (
	"fmt"
	"math"
)

// RegKind tags what an 8-byte register cell currently holds.
type RegKind uint8

const (
	RegUnit RegKind = iota
	RegBool
	RegInt
	RegFloat
	RegObj
)

// Reg is one tagged value cell: the unit value, a bool, an i64, an f64,
// or an index into the VM's object arena. The As* accessors panic on a
// tag mismatch — the bytecode was type-checked at the source level, so a
// mismatch is a compiler bug, not a user error.
type Reg struct {
	Kind RegKind
	Data uint64
}

func UnitReg() Reg {
	return Reg{Kind: RegUnit}
}

func BoolReg(b bool) Reg {
	var d uint64
	if b {
		d = 1
	}
	return Reg{Kind: RegBool, Data: d}
}

func IntReg(v int64) Reg {
	return Reg{Kind: RegInt, Data: uint64(v)}
}

func FloatReg(v float64) Reg {
	return Reg{Kind: RegFloat, Data: math.Float64bits(v)}
}

func ObjReg(idx ObjectIndex) Reg {
	return Reg{Kind: RegObj, Data: uint64(idx)}
}

func (r Reg) AsInt() int64 {
	if r.Kind != RegInt {
		panic(fmt.Sprintf("vmrun: register holds %v, not int", r.Kind))
	}
	return int64(r.Data)
}

func (r Reg) AsFloat() float64 {
	if r.Kind != RegFloat {
		panic(fmt.Sprintf("vmrun: register holds %v, not float", r.Kind))
	}
	return math.Float64frombits(r.Data)
}

func (r Reg) AsBool() bool {
	if r.Kind != RegBool {
		panic(fmt.Sprintf("vmrun: register holds %v, not bool", r.Kind))
	}
	return r.Data == 1
}

func (r Reg) AsObj() ObjectIndex {
	if r.Kind != RegObj {
		panic(fmt.Sprintf("vmrun: register holds %v, not object", r.Kind))
	}
	return ObjectIndex(r.Data)
}

func (r Reg) IsObj() bool { return r.Kind == RegObj }

func (k RegKind) String() string {
	switch k {
	case RegUnit:
		return "unit"
	case RegBool:
		return "bool"
	case RegInt:
		return "int"
	case RegFloat:
		return "float"
	case RegObj:
		return "object"
	default:
		return "invalid"
	}
}
