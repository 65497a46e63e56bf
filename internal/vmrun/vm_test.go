package vmrun

import (
	"strings"
	"testing"

	"github.com/margarine-lang/marginc/internal/bytecode"
)

// asm assembles one function body and returns its code bytes.
func asm(build func(b *bytecode.Buffer)) []byte {
	var b bytecode.Buffer
	build(&b)
	return b.Bytes()
}

// makeImage lays out the given bodies back to back into one image.
// Extern entries carry empty code.
func makeImage(funcs []bytecode.FuncEntry, bodies [][]byte) *bytecode.Image {
	var code bytecode.Buffer
	for i := range funcs {
		if funcs[i].Realization != bytecode.RealizeCode {
			continue
		}
		funcs[i].CodeOffset = uint32(code.Len())
		funcs[i].CodeLen = uint32(len(bodies[i]))
		code.WriteBytes(bodies[i])
	}
	return &bytecode.Image{
		FormatVersion: bytecode.FormatVersion,
		Funcs:         funcs,
		Code:          code.Bytes(),
	}
}

func ret(b *bytecode.Buffer, locals uint8) {
	b.WriteOp(bytecode.OpRet)
	b.WriteU8(locals)
}

func TestCallRetStackDiscipline(t *testing.T) {
	// add2(a, b) = a + b; main = 100 + add2(1, 2).
	add2 := asm(func(b *bytecode.Buffer) {
		b.WriteOp(bytecode.OpPushLocalSpace)
		b.WriteU8(0)
		b.WriteOp(bytecode.OpLoad)
		b.WriteU8(0)
		b.WriteOp(bytecode.OpLoad)
		b.WriteU8(1)
		b.WriteOp(bytecode.OpAdd)
		ret(b, 2)
	})
	main := asm(func(b *bytecode.Buffer) {
		b.WriteOp(bytecode.OpPushLocalSpace)
		b.WriteU8(0)
		b.WriteOp(bytecode.OpConstInt)
		b.WriteI64(100)
		b.WriteOp(bytecode.OpConstInt)
		b.WriteI64(1)
		b.WriteOp(bytecode.OpConstInt)
		b.WriteI64(2)
		b.WriteOp(bytecode.OpCall)
		b.WriteU32(1)
		b.WriteU8(2)
		b.WriteOp(bytecode.OpAdd)
		ret(b, 0)
	})
	img := makeImage([]bytecode.FuncEntry{
		{Name: "main", Realization: bytecode.RealizeCode},
		{Name: "add2", Argc: 2, Realization: bytecode.RealizeCode},
	}, [][]byte{main, add2})

	vm := New(img)
	result, err := vm.Run("main", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	// 103 requires the callee to consume exactly its two arguments and
	// leave exactly one value for the caller's pending add.
	if got := result.AsInt(); got != 103 {
		t.Fatalf("100 + add2(1, 2) = %d, want 103", got)
	}
}

func TestDivideByZeroFaults(t *testing.T) {
	main := asm(func(b *bytecode.Buffer) {
		b.WriteOp(bytecode.OpConstInt)
		b.WriteI64(1)
		b.WriteOp(bytecode.OpConstInt)
		b.WriteI64(0)
		b.WriteOp(bytecode.OpDiv)
		ret(b, 0)
	})
	img := makeImage([]bytecode.FuncEntry{{Name: "main", Realization: bytecode.RealizeCode}}, [][]byte{main})
	if _, err := New(img).Run("main", nil); err == nil || !strings.Contains(err.Error(), "division") {
		t.Fatalf("1/0 returned %v, want a division fault", err)
	}
}

func TestListBoundsFault(t *testing.T) {
	main := asm(func(b *bytecode.Buffer) {
		b.WriteOp(bytecode.OpConstInt)
		b.WriteI64(1)
		b.WriteOp(bytecode.OpCreateList)
		b.WriteU32(1)
		b.WriteOp(bytecode.OpConstInt)
		b.WriteI64(5)
		b.WriteOp(bytecode.OpIndexList)
		ret(b, 0)
	})
	img := makeImage([]bytecode.FuncEntry{{Name: "main", Realization: bytecode.RealizeCode}}, [][]byte{main})
	if _, err := New(img).Run("main", nil); err == nil || !strings.Contains(err.Error(), "out of bounds") {
		t.Fatalf("list[5] of one element returned %v, want a bounds fault", err)
	}
}

func TestUnwrapFault(t *testing.T) {
	main := asm(func(b *bytecode.Buffer) {
		b.WriteOp(bytecode.OpConstInt)
		b.WriteI64(1) // the failure tag
		b.WriteOp(bytecode.OpUnit)
		b.WriteOp(bytecode.OpCreateStruct)
		b.WriteU8(2)
		b.WriteOp(bytecode.OpUnwrap)
		ret(b, 0)
	})
	img := makeImage([]bytecode.FuncEntry{{Name: "main", Realization: bytecode.RealizeCode}}, [][]byte{main})
	if _, err := New(img).Run("main", nil); err == nil || !strings.Contains(err.Error(), "unwrap") {
		t.Fatalf("unwrap of the failure variant returned %v, want an unwrap fault", err)
	}
}

func TestEntryNotFound(t *testing.T) {
	img := makeImage(nil, nil)
	if _, err := New(img).Run("missing", nil); err == nil || !strings.Contains(err.Error(), "entry") {
		t.Fatalf("running a missing entry returned %v, want entry-not-found", err)
	}
}

func TestErrOpcodeReportsTableMessage(t *testing.T) {
	main := asm(func(b *bytecode.Buffer) {
		b.WriteOp(bytecode.OpErr)
		b.WriteU8(2) // sema section
		b.WriteU32(0)
		b.WriteU32(1)
	})
	img := makeImage([]bytecode.FuncEntry{{Name: "main", Realization: bytecode.RealizeCode}}, [][]byte{main})
	img.Errors.Sema = [][]string{{"first message", "second message"}}
	if _, err := New(img).Run("main", nil); err == nil || !strings.Contains(err.Error(), "second message") {
		t.Fatalf("err opcode returned %v, want the table's second message", err)
	}
}

func TestResultCacheShortCircuits(t *testing.T) {
	// work(x) ticks a host counter and returns x; work is cached, so two
	// identical calls tick once.
	work := asm(func(b *bytecode.Buffer) {
		b.WriteOp(bytecode.OpPushLocalSpace)
		b.WriteU8(0)
		b.WriteOp(bytecode.OpCall)
		b.WriteU32(2)
		b.WriteU8(0)
		b.WriteOp(bytecode.OpPop)
		b.WriteOp(bytecode.OpLoad)
		b.WriteU8(0)
		ret(b, 1)
	})
	main := asm(func(b *bytecode.Buffer) {
		b.WriteOp(bytecode.OpConstInt)
		b.WriteI64(5)
		b.WriteOp(bytecode.OpCall)
		b.WriteU32(1)
		b.WriteU8(1)
		b.WriteOp(bytecode.OpPop)
		b.WriteOp(bytecode.OpConstInt)
		b.WriteI64(5)
		b.WriteOp(bytecode.OpCall)
		b.WriteU32(1)
		b.WriteU8(1)
		ret(b, 0)
	})
	img := makeImage([]bytecode.FuncEntry{
		{Name: "main", Realization: bytecode.RealizeCode},
		{Name: "work", Argc: 1, Cached: true, Realization: bytecode.RealizeCode},
		{Name: "tick", Realization: bytecode.RealizeExtern, ExternPath: "test::tick"},
	}, [][]byte{main, work, nil})

	ticks := 0
	vm := New(img)
	vm.RegisterHostModule("test", map[string]HostFunc{
		"tick": func(vm *VM, out *Reg, status *Status) {
			ticks++
			*out = UnitReg()
		},
	})
	result, err := vm.Run("main", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := result.AsInt(); got != 5 {
		t.Fatalf("work(5) = %d, want 5", got)
	}
	if ticks != 1 {
		t.Fatalf("cached work evaluated %d times for identical arguments, want 1", ticks)
	}
	if vm.Stats().CacheHits != 1 {
		t.Fatalf("recorded %d cache hits, want 1", vm.Stats().CacheHits)
	}
}

func TestDisableCache(t *testing.T) {
	work := asm(func(b *bytecode.Buffer) {
		b.WriteOp(bytecode.OpLoad)
		b.WriteU8(0)
		ret(b, 1)
	})
	main := asm(func(b *bytecode.Buffer) {
		b.WriteOp(bytecode.OpConstInt)
		b.WriteI64(9)
		b.WriteOp(bytecode.OpCall)
		b.WriteU32(1)
		b.WriteU8(1)
		b.WriteOp(bytecode.OpPop)
		b.WriteOp(bytecode.OpConstInt)
		b.WriteI64(9)
		b.WriteOp(bytecode.OpCall)
		b.WriteU32(1)
		b.WriteU8(1)
		ret(b, 0)
	})
	img := makeImage([]bytecode.FuncEntry{
		{Name: "main", Realization: bytecode.RealizeCode},
		{Name: "work", Argc: 1, Cached: true, Realization: bytecode.RealizeCode},
	}, [][]byte{main, work})

	vm := NewWith(img, Config{DisableCache: true})
	if _, err := vm.Run("main", nil); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if vm.Stats().CacheHits != 0 {
		t.Fatal("cache hits recorded with the cache disabled")
	}
}

func TestSwitchOnAndJump(t *testing.T) {
	// if false { 1 } else { 2 }, spelled directly in branches.
	main := asm(func(b *bytecode.Buffer) {
		b.WriteOp(bytecode.OpConstBool)
		b.WriteU8(0)
		b.WriteOp(bytecode.OpSwitchOn)
		b.WriteI32(0)  // true: fall through to the 1-branch
		b.WriteI32(14) // false: skip the 1-branch and its jump
		b.WriteOp(bytecode.OpConstInt)
		b.WriteI64(1)
		b.WriteOp(bytecode.OpJump)
		b.WriteI32(9) // over the 2-branch
		b.WriteOp(bytecode.OpConstInt)
		b.WriteI64(2)
		ret(b, 0)
	})
	img := makeImage([]bytecode.FuncEntry{{Name: "main", Realization: bytecode.RealizeCode}}, [][]byte{main})
	result, err := New(img).Run("main", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := result.AsInt(); got != 2 {
		t.Fatalf("false branch selected %d, want 2", got)
	}
}

func TestFieldMutationIsShared(t *testing.T) {
	// A struct stored in two locals is one object: writing through one
	// local is visible through the other.
	main := asm(func(b *bytecode.Buffer) {
		b.WriteOp(bytecode.OpPushLocalSpace)
		b.WriteU8(2)
		b.WriteOp(bytecode.OpConstInt)
		b.WriteI64(1)
		b.WriteOp(bytecode.OpCreateStruct)
		b.WriteU8(1)
		b.WriteOp(bytecode.OpCopy)
		b.WriteOp(bytecode.OpStore)
		b.WriteU8(0)
		b.WriteOp(bytecode.OpStore)
		b.WriteU8(1)
		b.WriteOp(bytecode.OpLoad)
		b.WriteU8(0)
		b.WriteOp(bytecode.OpConstInt)
		b.WriteI64(42)
		b.WriteOp(bytecode.OpStoreField)
		b.WriteU8(0)
		b.WriteOp(bytecode.OpLoad)
		b.WriteU8(1)
		b.WriteOp(bytecode.OpLoadField)
		b.WriteU8(0)
		ret(b, 2)
	})
	img := makeImage([]bytecode.FuncEntry{{Name: "main", Realization: bytecode.RealizeCode}}, [][]byte{main})
	result, err := New(img).Run("main", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := result.AsInt(); got != 42 {
		t.Fatalf("aliased field read %d, want 42", got)
	}
}

func TestRegAccessorsPanicOnMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("AsInt on a bool register did not panic")
		}
	}()
	_ = BoolReg(true).AsInt()
}
