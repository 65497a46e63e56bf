package vmrun

// ObjectIndex is a dense index into a VM's object arena. The arena is
// never collected mid-run; everything is reclaimed when the VM is
// dropped.
type ObjectIndex uint32

// ObjectKind discriminates the heap object shapes.
type ObjectKind uint8

const (
	// ObjStruct backs structs, tuples, ranges and enum values (an enum
	// value is a two-field struct of tag then payload).
	ObjStruct ObjectKind = iota
	ObjList
	ObjFuncRef
	ObjString
)

// Object is one arena entry. Exactly the fields for its Kind are set.
type Object struct {
	Kind ObjectKind

	Fields []Reg // ObjStruct, ObjList

	Func     uint32 // ObjFuncRef: function directory index
	Captures []Reg  // ObjFuncRef

	Bytes []byte // ObjString
}

func (vm *VM) alloc(o Object) Reg {
	idx := ObjectIndex(len(vm.objects))
	vm.objects = append(vm.objects, o)
	vm.stats.Allocations++
	return ObjReg(idx)
}

func (vm *VM) obj(r Reg) *Object {
	return &vm.objects[r.AsObj()]
}

// NewStruct allocates a struct object over the given field values. It is
// part of the host-function API: hosts build return values with it.
func (vm *VM) NewStruct(fields ...Reg) Reg {
	return vm.alloc(Object{Kind: ObjStruct, Fields: fields})
}

// NewList allocates a list object.
func (vm *VM) NewList(elems []Reg) Reg {
	return vm.alloc(Object{Kind: ObjList, Fields: elems})
}

// NewString allocates a string object.
func (vm *VM) NewString(s string) Reg {
	return vm.alloc(Object{Kind: ObjString, Bytes: []byte(s)})
}

// NewSome wraps a value in the success variant of the two-field option
// layout; NewNone is its empty counterpart.
func (vm *VM) NewSome(v Reg) Reg {
	return vm.NewStruct(IntReg(0), v)
}

func (vm *VM) NewNone() Reg {
	return vm.NewStruct(IntReg(1), UnitReg())
}

// StringValue reads a string object back out; ok is false when r is not
// a string.
func (vm *VM) StringValue(r Reg) (string, bool) {
	if !r.IsObj() {
		return "", false
	}
	o := vm.obj(r)
	if o.Kind != ObjString {
		return "", false
	}
	return string(o.Bytes), true
}

// StructFields exposes a struct object's fields to host functions.
func (vm *VM) StructFields(r Reg) ([]Reg, bool) {
	if !r.IsObj() {
		return nil, false
	}
	o := vm.obj(r)
	if o.Kind != ObjStruct && o.Kind != ObjList {
		return nil, false
	}
	return o.Fields, true
}

// regsEqual compares two registers structurally, following object
// references: strings by bytes, structs and lists field-wise, function
// references by target and captures.
func (vm *VM) regsEqual(a, b Reg) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind != RegObj {
		return a.Data == b.Data
	}
	oa, ob := vm.obj(a), vm.obj(b)
	if oa.Kind != ob.Kind {
		return false
	}
	switch oa.Kind {
	case ObjString:
		return string(oa.Bytes) == string(ob.Bytes)
	case ObjFuncRef:
		if oa.Func != ob.Func || len(oa.Captures) != len(ob.Captures) {
			return false
		}
		for i := range oa.Captures {
			if !vm.regsEqual(oa.Captures[i], ob.Captures[i]) {
				return false
			}
		}
		return true
	default:
		if len(oa.Fields) != len(ob.Fields) {
			return false
		}
		for i := range oa.Fields {
			if !vm.regsEqual(oa.Fields[i], ob.Fields[i]) {
				return false
			}
		}
		return true
	}
}
