// Package hostlib is the standard library of host functions a VM can
// expose to bytecode through extern declarations: identifier generation,
// a persistent key/value store, and a generic RPC call-out. Each module
// is registered under its own name, so an extern path like "uuid::new"
// resolves to the function registered here.
package hostlib

import (
	"github.com/margarine-lang/marginc/internal/diag"
	"github.com/margarine-lang/marginc/internal/vmrun"
)

// Config selects which optional modules are wired and how.
type Config struct {
	// StorePath backs the store module with a database file; empty skips
	// the module entirely.
	StorePath string

	// RPCTarget is the address the rpc module dials when the call site
	// passes an empty address.
	RPCTarget string
}

// Register installs every configured host module into vm. The returned
// closer releases whatever the modules opened (today: the store's
// database handle); it is safe to call on a nil-module setup.
func Register(vm *vmrun.VM, cfg Config) (func() error, error) {
	vm.RegisterHostModule("uuid", uuidModule())
	vm.RegisterHostModule("rpc", rpcModule(cfg.RPCTarget))

	if cfg.StorePath == "" {
		return func() error { return nil }, nil
	}
	st, err := openStore(cfg.StorePath)
	if err != nil {
		return nil, err
	}
	vm.RegisterHostModule("store", st.module())
	return st.Close, nil
}

// argString reads host argument i as a string, reporting a fault through
// status when the cell holds anything else.
func argString(vm *vmrun.VM, i int, status *vmrun.Status) (string, bool) {
	s, ok := vm.StringValue(vm.Arg(i))
	if !ok {
		status.Fault = diag.NewFault(diag.FaultHostReported, "host argument is not a string")
		return "", false
	}
	return s, true
}
