package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders one function's code region as human-readable
// instructions: a byte offset, the opcode mnemonic, and its decoded
// operands, one instruction per line.
func Disassemble(name string, code []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	c := NewCursor(code)
	for !c.Done() {
		off := c.Pos
		op := c.ReadOp()
		fmt.Fprintf(&b, "%04d %-18s", off, op)
		switch op {
		case OpRet, OpPushLocalSpace, OpPopLocalSpace, OpLoad, OpStore, OpCallFuncRef,
			OpCreateFuncRef, OpCreateStruct, OpLoadField, OpStoreField:
			fmt.Fprintf(&b, "%d", c.ReadU8())
		case OpConstBool:
			fmt.Fprintf(&b, "%v", c.ReadU8() != 0)
		case OpConstInt:
			fmt.Fprintf(&b, "%d", c.ReadI64())
		case OpConstFloat:
			fmt.Fprintf(&b, "%g", c.ReadF64())
		case OpConstStr:
			fmt.Fprintf(&b, "#%d", c.ReadU32())
		case OpCall:
			fid := c.ReadU32()
			argc := c.ReadU8()
			fmt.Fprintf(&b, "func#%d argc=%d", fid, argc)
		case OpCreateList:
			fmt.Fprintf(&b, "%d", c.ReadU32())
		case OpLoadEnumField:
			fmt.Fprintf(&b, "variant#%d", c.ReadU32())
		case OpErr:
			kind := c.ReadU8()
			file := c.ReadU32()
			idx := c.ReadU32()
			fmt.Fprintf(&b, "kind=%d file=%d idx=%d", kind, file, idx)
		case OpJump:
			fmt.Fprintf(&b, "%+d", c.ReadI32())
		case OpSwitchOn:
			t := c.ReadI32()
			f := c.ReadI32()
			fmt.Fprintf(&b, "true=%+d false=%+d", t, f)
		case OpSwitch:
			n := c.ReadU32()
			count := int(n) / 4
			offs := make([]int32, count)
			for i := range offs {
				offs[i] = c.ReadI32()
			}
			fmt.Fprintf(&b, "%v", offs)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
