package vmrun

import (
	"fmt"
	"strings"
)

// FormatValue renders a register for human consumption (CLI output and
// test failure messages), following object references.
func (vm *VM) FormatValue(r Reg) string {
	switch r.Kind {
	case RegUnit:
		return "()"
	case RegBool:
		return fmt.Sprintf("%v", r.AsBool())
	case RegInt:
		return fmt.Sprintf("%d", r.AsInt())
	case RegFloat:
		return fmt.Sprintf("%g", r.AsFloat())
	}
	o := vm.obj(r)
	switch o.Kind {
	case ObjString:
		return fmt.Sprintf("%q", string(o.Bytes))
	case ObjFuncRef:
		return fmt.Sprintf("<fn #%d>", o.Func)
	case ObjList:
		parts := make([]string, len(o.Fields))
		for i, f := range o.Fields {
			parts[i] = vm.FormatValue(f)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		parts := make([]string, len(o.Fields))
		for i, f := range o.Fields {
			parts[i] = vm.FormatValue(f)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
}
