package sema

import (
	"testing"

	"github.com/margarine-lang/marginc/internal/ast"
	"github.com/margarine-lang/marginc/internal/astbuild"
	"github.com/margarine-lang/marginc/internal/diag"
	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/pipeline"
	"github.com/margarine-lang/marginc/internal/symtab"
)

func analyze(t *testing.T, build func(b *astbuild.Builder)) *pipeline.PipelineContext {
	t.Helper()
	in := intern.New()
	b := astbuild.New(in)
	build(b)
	return Analyze(b.Program(), in)
}

func wantKind(t *testing.T, ctx *pipeline.PipelineContext, kind diag.Kind) {
	t.Helper()
	for _, d := range ctx.Diagnostics.List() {
		if d.Kind == kind {
			return
		}
	}
	t.Fatalf("expected diagnostic %q, got %v", kind, ctx.Diagnostics.List())
}

func wantClean(t *testing.T, ctx *pipeline.PipelineContext) {
	t.Helper()
	if ctx.Diagnostics.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", ctx.Diagnostics.List())
	}
}

func TestLiteralAndArithmeticTypes(t *testing.T) {
	var body ast.ExprId
	ctx := analyze(t, func(b *astbuild.Builder) {
		body = b.Bin(ast.OpAdd, b.Int(2), b.Bin(ast.OpMul, b.Int(3), b.Int(4)))
		b.Fn("main", nil, b.Ty("i64"), b.Wrap(body))
	})
	wantClean(t, ctx)
	ty := ctx.Symbols.InstantiateShallow(ctx.TyInfo.ExprTypes[body])
	if ty.IsVar() || ty.Sym != symtab.SymI64 {
		t.Fatalf("2 + 3*4 typed %s, want i64", ctx.Symbols.Display(ty))
	}
}

func TestBodyReturnMismatch(t *testing.T) {
	ctx := analyze(t, func(b *astbuild.Builder) {
		b.Fn("main", nil, b.Ty("i64"), b.Wrap(b.Bool(true)))
	})
	wantKind(t, ctx, diag.KindReturnMismatch)
}

func TestIfMissingElse(t *testing.T) {
	ctx := analyze(t, func(b *astbuild.Builder) {
		cond := b.Bool(true)
		b.Fn("main", nil, b.Ty("i64"), b.Wrap(b.IfNoElse(cond, b.Wrap(b.Int(1)))))
	})
	wantKind(t, ctx, diag.KindMissingElse)
}

func TestBranchTypeMismatch(t *testing.T) {
	ctx := analyze(t, func(b *astbuild.Builder) {
		e := b.If(b.Bool(true), b.Wrap(b.Int(1)), b.Wrap(b.Str("no")))
		b.Fn("main", nil, b.Ty("i64"), b.Wrap(e))
	})
	wantKind(t, ctx, diag.KindBranchTypeMismatch)
}

func TestCallArityMismatch(t *testing.T) {
	ctx := analyze(t, func(b *astbuild.Builder) {
		b.Fn("f", []ast.FieldDef{b.Param("x", b.Ty("i64"))}, b.Ty("i64"), b.Wrap(b.Ident("x")))
		b.Fn("main", nil, b.Ty("i64"), b.Wrap(b.CallNamed("f", b.Int(1), b.Int(2))))
	})
	wantKind(t, ctx, diag.KindArityMismatch)
}

func TestUnknownVariable(t *testing.T) {
	ctx := analyze(t, func(b *astbuild.Builder) {
		b.Fn("main", nil, b.Ty("i64"), b.Wrap(b.Ident("nope")))
	})
	wantKind(t, ctx, diag.KindVariableNotFound)
}

func TestDuplicateTopLevelName(t *testing.T) {
	ctx := analyze(t, func(b *astbuild.Builder) {
		b.Fn("f", nil, nil, b.Wrap(b.Int(0)))
		b.Fn("f", nil, nil, b.Wrap(b.Int(0)))
	})
	wantKind(t, ctx, diag.KindNameAlreadyDefined)
}

func TestGenericCallInference(t *testing.T) {
	var call ast.ExprId
	ctx := analyze(t, func(b *astbuild.Builder) {
		b.Fn("id", []ast.FieldDef{b.Param("x", b.Ty("T"))}, b.Ty("T"),
			b.Wrap(b.Ident("x")), b.Generics("T"))
		call = b.CallNamed("id", b.Int(7))
		b.Fn("main", nil, b.Ty("i64"), b.Wrap(call))
	})
	wantClean(t, ctx)

	target, ok := ctx.TyInfo.CallTargets[call]
	if !ok {
		t.Fatal("call to id was not resolved")
	}
	gens := ctx.Symbols.GetGens(target.Gens)
	if len(gens) != 1 {
		t.Fatalf("id resolved with %d generic arguments, want 1", len(gens))
	}
	inst := ctx.Symbols.InstantiateShallow(gens[0].Type)
	if inst.IsVar() || inst.Sym != symtab.SymI64 {
		t.Fatalf("T inferred as %s, want i64", ctx.Symbols.Display(inst))
	}
}

func TestMatchExhaustiveness(t *testing.T) {
	ctx := analyze(t, func(b *astbuild.Builder) {
		b.Enum("Shape",
			b.Variant("Circle", b.Ty("f64")),
			b.Variant("Square", b.Ty("f64")))
		scr := b.CallPath([]string{"Shape"}, "Circle", b.Float(1.0))
		m := b.Match(scr, b.ArmBind("Circle", "r", b.Ident("r")))
		b.Fn("main", nil, b.Ty("f64"), b.Wrap(m))
	})
	wantKind(t, ctx, diag.KindNonExhaustiveMatch)
}

func TestMatchDuplicateArm(t *testing.T) {
	ctx := analyze(t, func(b *astbuild.Builder) {
		b.Enum("Shape",
			b.Variant("Circle", b.Ty("f64")),
			b.Variant("Square", b.Ty("f64")))
		scr := b.CallPath([]string{"Shape"}, "Circle", b.Float(1.0))
		m := b.Match(scr,
			b.ArmBind("Circle", "r", b.Ident("r")),
			b.ArmBind("Circle", "r", b.Ident("r")),
			b.ArmBind("Square", "s", b.Ident("s")))
		b.Fn("main", nil, b.Ty("f64"), b.Wrap(m))
	})
	wantKind(t, ctx, diag.KindDuplicateMatchArm)
}

func TestUnwrapRequiresOptionOrResult(t *testing.T) {
	ctx := analyze(t, func(b *astbuild.Builder) {
		b.Fn("main", nil, b.Ty("i64"), b.Wrap(b.Unwrap(b.Int(1))))
	})
	wantKind(t, ctx, diag.KindUnwrapOnWrongType)
}

func TestOrReturnNeedsMatchingFamily(t *testing.T) {
	ctx := analyze(t, func(b *astbuild.Builder) {
		// x? on an Option inside a function returning plain i64.
		b.Fn("f", []ast.FieldDef{b.Param("x", b.Ty("Option", b.Ty("i64")))},
			b.Ty("i64"), b.Wrap(b.OrReturn(b.Ident("x"))))
	})
	wantKind(t, ctx, diag.KindFunctionDoesNotReturnOption)
}

func TestBreakOutsideLoop(t *testing.T) {
	ctx := analyze(t, func(b *astbuild.Builder) {
		b.Fn("main", nil, nil, b.Wrap(b.BreakBare()))
	})
	wantKind(t, ctx, diag.KindBreakOutsideLoop)
}

func TestStructFieldChecking(t *testing.T) {
	ctx := analyze(t, func(b *astbuild.Builder) {
		b.Struct("Point", b.Param("x", b.Ty("f64")), b.Param("y", b.Ty("f64")))
		v := b.StructVal(b.Ty("Point"), b.FieldInit("x", b.Float(1)))
		b.Fn("main", nil, b.Ty("Point"), b.Wrap(v))
	})
	wantKind(t, ctx, diag.KindMissingFields)
}

func TestUnknownField(t *testing.T) {
	ctx := analyze(t, func(b *astbuild.Builder) {
		b.Struct("Point", b.Param("x", b.Ty("f64")), b.Param("y", b.Ty("f64")))
		v := b.StructVal(b.Ty("Point"),
			b.FieldInit("x", b.Float(1)),
			b.FieldInit("y", b.Float(2)),
			b.FieldInit("z", b.Float(3)))
		b.Fn("main", nil, b.Ty("Point"), b.Wrap(v))
	})
	wantKind(t, ctx, diag.KindUnknownField)
}

func TestIteratorProtocolRequired(t *testing.T) {
	ctx := analyze(t, func(b *astbuild.Builder) {
		body := b.For("x", b.Int(3), b.BlockUnit())
		b.Fn("main", nil, nil, b.BlockUnit(body))
	})
	wantKind(t, ctx, diag.KindValueNotIterator)
}

func TestClosureCaptureRecording(t *testing.T) {
	var clos ast.ExprId
	ctx := analyze(t, func(b *astbuild.Builder) {
		decl := b.VarDecl("base", nil, b.Int(10))
		clos = b.Closure([]ast.FieldDef{b.Param("x", b.Ty("i64"))}, b.Ty("i64"),
			b.Wrap(b.Bin(ast.OpAdd, b.Ident("x"), b.Ident("base"))))
		use := b.Call(clos, b.Int(1))
		b.Fn("main", nil, b.Ty("i64"), b.Block([]ast.StmtId{decl}, use))
	})
	wantClean(t, ctx)

	closSym, ok := ctx.TyInfo.ClosureSyms[clos]
	if !ok {
		t.Fatal("closure symbol was not recorded")
	}
	caps := ctx.Symbols.Sym(closSym).Function.Captures
	if len(caps) != 1 {
		t.Fatalf("closure captured %d variables, want 1", len(caps))
	}
	if got := ctx.Interner.String(caps[0].Name); got != "base" {
		t.Fatalf("closure captured %q, want base", got)
	}
}

func TestMethodCallOnImpl(t *testing.T) {
	ctx := analyze(t, func(b *astbuild.Builder) {
		b.Struct("Counter", b.Param("n", b.Ty("i64")))
		b.Impl(b.Ty("Counter"),
			b.MethodDecl("get", []ast.FieldDef{b.SelfParam()}, b.Ty("i64"),
				b.Wrap(b.Field(b.Ident("self"), "n"))))
		c := b.VarDecl("c", nil, b.StructVal(b.Ty("Counter"), b.FieldInit("n", b.Int(5))))
		call := b.Method(b.Ident("c"), "get")
		b.Fn("main", nil, b.Ty("i64"), b.Block([]ast.StmtId{c}, call))
	})
	wantClean(t, ctx)
}
