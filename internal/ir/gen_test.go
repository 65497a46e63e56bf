package ir_test

import (
	"bytes"
	"testing"

	"github.com/margarine-lang/marginc/internal/ast"
	"github.com/margarine-lang/marginc/internal/astbuild"
	"github.com/margarine-lang/marginc/internal/bytecode"
	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/ir"
	"github.com/margarine-lang/marginc/internal/sema"
)

// buildFixture assembles a program exercising branches, loops, calls and
// generics, for structural assertions on the produced image.
func buildFixture(b *astbuild.Builder) {
	declareFib(b, b.Cached())
	b.Fn("id", []ast.FieldDef{b.Param("x", b.Ty("T"))}, b.Ty("T"),
		b.Wrap(b.Ident("x")), b.Generics("T"))
	b.Fn("main", nil, b.Ty("i64"),
		b.Wrap(b.Bin(ast.OpAdd,
			b.CallNamed("fib", b.Int(7)),
			b.CallNamed("id", b.Int(3)))))
}

func TestCodegenDeterminism(t *testing.T) {
	gen := func() []byte {
		in := intern.New()
		b := astbuild.New(in)
		buildFixture(b)
		ctx := sema.Analyze(b.Program(), in)
		if ctx.Diagnostics.HasErrors() {
			t.Fatalf("analysis failed: %v", ctx.Diagnostics.List())
		}
		img, err := ir.Generate(ctx)
		if err != nil {
			t.Fatalf("codegen failed: %v", err)
		}
		return bytecode.Encode(img)
	}
	first := gen()
	second := gen()
	if !bytes.Equal(first, second) {
		t.Fatal("two codegen runs over the same input produced different images")
	}
}

// TestJumpsResolveWithinFunction walks every function's serialized code
// and checks each branch operand lands inside that function's own code
// region.
func TestJumpsResolveWithinFunction(t *testing.T) {
	in := intern.New()
	b := astbuild.New(in)
	buildFixture(b)
	ctx := sema.Analyze(b.Program(), in)
	img, err := ir.Generate(ctx)
	if err != nil {
		t.Fatalf("codegen failed: %v", err)
	}

	for _, f := range img.Funcs {
		if f.Realization != bytecode.RealizeCode {
			continue
		}
		code := img.Code[f.CodeOffset : f.CodeOffset+f.CodeLen]
		c := bytecode.NewCursor(code)
		sawRet := false
		check := func(end int, off int32) {
			target := end + int(off)
			if target < 0 || target >= len(code) {
				t.Fatalf("%s: branch to %d escapes code region of %d bytes", f.Name, target, len(code))
			}
		}
		for !c.Done() {
			op := c.ReadOp()
			switch op {
			case bytecode.OpRet:
				c.ReadU8()
				sawRet = true
			case bytecode.OpPushLocalSpace, bytecode.OpPopLocalSpace, bytecode.OpLoad,
				bytecode.OpStore, bytecode.OpCallFuncRef, bytecode.OpCreateFuncRef,
				bytecode.OpCreateStruct, bytecode.OpLoadField, bytecode.OpStoreField,
				bytecode.OpConstBool:
				c.ReadU8()
			case bytecode.OpConstInt:
				c.ReadI64()
			case bytecode.OpConstFloat:
				c.ReadF64()
			case bytecode.OpConstStr, bytecode.OpCreateList, bytecode.OpLoadEnumField:
				c.ReadU32()
			case bytecode.OpCall:
				c.ReadU32()
				c.ReadU8()
			case bytecode.OpErr:
				c.ReadU8()
				c.ReadU32()
				c.ReadU32()
			case bytecode.OpJump:
				off := c.ReadI32()
				check(c.Pos, off)
			case bytecode.OpSwitchOn:
				tOff := c.ReadI32()
				fOff := c.ReadI32()
				check(c.Pos, tOff)
				check(c.Pos, fOff)
			case bytecode.OpSwitch:
				size := int(c.ReadU32())
				var offs []int32
				for i := 0; i < size/4; i++ {
					offs = append(offs, c.ReadI32())
				}
				for _, off := range offs {
					check(c.Pos, off)
				}
			}
		}
		if !sawRet && f.CodeLen > 0 {
			hasErr := bytes.Contains(code, []byte{byte(bytecode.OpErr)})
			if !hasErr {
				t.Fatalf("%s: code region has neither a return nor a fault terminator", f.Name)
			}
		}
	}
}

func TestEntryAndMonomorphNaming(t *testing.T) {
	in := intern.New()
	b := astbuild.New(in)
	buildFixture(b)
	ctx := sema.Analyze(b.Program(), in)
	img, err := ir.Generate(ctx)
	if err != nil {
		t.Fatalf("codegen failed: %v", err)
	}

	if _, ok := img.FindFunc("main"); !ok {
		t.Fatal("non-generic entry function lost its plain name")
	}
	fib, ok := img.FindFunc("fib")
	if !ok {
		t.Fatal("fib missing from directory")
	}
	if !fib.Cached {
		t.Fatal("fib's cache attribute did not reach its directory entry")
	}
	if fib.Argc != 1 {
		t.Fatalf("fib has argc %d, want 1", fib.Argc)
	}
}
