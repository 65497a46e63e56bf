package hostlib

import (
	"path/filepath"
	"testing"

	"github.com/margarine-lang/marginc/internal/bytecode"
	"github.com/margarine-lang/marginc/internal/vmrun"
)

// callHostImage builds a main that calls one extern function with the
// given string arguments and returns its value.
func callHostImage(path string, args ...string) *bytecode.Image {
	var code bytecode.Buffer
	strs := make([]string, len(args))
	for i, a := range args {
		strs[i] = a
		code.WriteOp(bytecode.OpConstStr)
		code.WriteU32(uint32(i))
	}
	code.WriteOp(bytecode.OpCall)
	code.WriteU32(1)
	code.WriteU8(uint8(len(args)))
	code.WriteOp(bytecode.OpRet)
	code.WriteU8(0)
	return &bytecode.Image{
		FormatVersion: bytecode.FormatVersion,
		Funcs: []bytecode.FuncEntry{
			{Name: "main", Realization: bytecode.RealizeCode, CodeLen: uint32(code.Len())},
			{Name: "host", Argc: uint8(len(args)), Realization: bytecode.RealizeExtern, ExternPath: path},
		},
		Strings: strs,
		Code:    code.Bytes(),
	}
}

func TestUUIDModule(t *testing.T) {
	img := callHostImage("uuid::new")
	vm := vmrun.New(img)
	closer, err := Register(vm, Config{})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	defer closer()

	result, err := vm.Run("main", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	id, ok := vm.StringValue(result)
	if !ok || len(id) != 36 {
		t.Fatalf("uuid::new returned %q, want a canonical uuid", id)
	}
}

func TestStoreModuleRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "kv.db")

	set := callHostImage("store::set", "greeting", "hello")
	vm := vmrun.New(set)
	closer, err := Register(vm, Config{StorePath: dbPath})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := vm.Run("main", nil); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	closer()

	get := callHostImage("store::get", "greeting")
	vm2 := vmrun.New(get)
	closer2, err := Register(vm2, Config{StorePath: dbPath})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	defer closer2()
	result, err := vm2.Run("main", nil)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	fields, ok := vm2.StructFields(result)
	if !ok || len(fields) != 2 || fields[0].AsInt() != 0 {
		t.Fatalf("store::get returned %s, want a present option", vm2.FormatValue(result))
	}
	if got, _ := vm2.StringValue(fields[1]); got != "hello" {
		t.Fatalf("store::get returned %q, want hello", got)
	}
}

func TestStoreGetMissingIsNone(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "kv.db")
	img := callHostImage("store::get", "absent")
	vm := vmrun.New(img)
	closer, err := Register(vm, Config{StorePath: dbPath})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	defer closer()
	result, err := vm.Run("main", nil)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	fields, ok := vm.StructFields(result)
	if !ok || len(fields) != 2 || fields[0].AsInt() != 1 {
		t.Fatalf("store::get of a missing key returned %s, want the empty option", vm.FormatValue(result))
	}
}

func TestRPCRejectsMissingTarget(t *testing.T) {
	img := callHostImage("rpc::call", "", "/svc/Method", "{}")
	vm := vmrun.New(img)
	closer, err := Register(vm, Config{})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	defer closer()
	if _, err := vm.Run("main", nil); err == nil {
		t.Fatal("rpc::call with no target succeeded")
	}
}
