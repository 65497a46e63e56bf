package hostlib

import (
	"github.com/google/uuid"

	"github.com/margarine-lang/marginc/internal/vmrun"
)

// uuidModule exposes identifier generation:
//
//	extern fn new(): str        = "uuid::new"
//	extern fn parse(s: str): bool = "uuid::parse"
func uuidModule() map[string]vmrun.HostFunc {
	return map[string]vmrun.HostFunc{
		"new": func(vm *vmrun.VM, out *vmrun.Reg, status *vmrun.Status) {
			*out = vm.NewString(uuid.NewString())
		},
		"parse": func(vm *vmrun.VM, out *vmrun.Reg, status *vmrun.Status) {
			s, ok := argString(vm, 0, status)
			if !ok {
				return
			}
			_, err := uuid.Parse(s)
			*out = vmrun.BoolReg(err == nil)
		},
	}
}
