package ir_test

import (
	"strings"
	"testing"

	"github.com/margarine-lang/marginc/internal/ast"
	"github.com/margarine-lang/marginc/internal/astbuild"
	"github.com/margarine-lang/marginc/internal/bytecode"
	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/ir"
	"github.com/margarine-lang/marginc/internal/sema"
	"github.com/margarine-lang/marginc/internal/vmrun"
)

// compile builds a program, runs the analyzer and codegen, and fails the
// test on any diagnostic.
func compile(t *testing.T, build func(b *astbuild.Builder)) *bytecode.Image {
	t.Helper()
	in := intern.New()
	b := astbuild.New(in)
	build(b)
	ctx := sema.Analyze(b.Program(), in)
	if ctx.Diagnostics.HasErrors() {
		t.Fatalf("analysis failed: %v", ctx.Diagnostics.List())
	}
	img, err := ir.Generate(ctx)
	if err != nil {
		t.Fatalf("codegen failed: %v", err)
	}
	return img
}

func runMain(t *testing.T, img *bytecode.Image) (*vmrun.VM, vmrun.Reg) {
	t.Helper()
	vm := vmrun.New(img)
	result, err := vm.Run("main", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return vm, result
}

func TestArithmetic(t *testing.T) {
	img := compile(t, func(b *astbuild.Builder) {
		b.Fn("main", nil, b.Ty("i64"),
			b.Wrap(b.Bin(ast.OpAdd, b.Int(2), b.Bin(ast.OpMul, b.Int(3), b.Int(4)))))
	})
	_, result := runMain(t, img)
	if got := result.AsInt(); got != 14 {
		t.Fatalf("2 + 3 * 4 = %d, want 14", got)
	}
}

// declareUnwrapInc declares f(x: Option<i64>): i64 { x! + 1 }.
func declareUnwrapInc(b *astbuild.Builder) {
	b.Fn("f", []ast.FieldDef{b.Param("x", b.Ty("Option", b.Ty("i64")))}, b.Ty("i64"),
		b.Wrap(b.Bin(ast.OpAdd, b.Unwrap(b.Ident("x")), b.Int(1))))
}

func TestOptionUnwrapSome(t *testing.T) {
	img := compile(t, func(b *astbuild.Builder) {
		declareUnwrapInc(b)
		b.Fn("main", nil, b.Ty("i64"),
			b.Wrap(b.CallNamed("f", b.CallNamed("some", b.Int(41)))))
	})
	_, result := runMain(t, img)
	if got := result.AsInt(); got != 42 {
		t.Fatalf("f(some(41)) = %d, want 42", got)
	}
}

func TestOptionUnwrapNoneFaults(t *testing.T) {
	img := compile(t, func(b *astbuild.Builder) {
		declareUnwrapInc(b)
		b.Fn("main", nil, b.Ty("i64"),
			b.Wrap(b.CallNamed("f", b.CallNamed("none"))))
	})
	vm := vmrun.New(img)
	_, err := vm.Run("main", nil)
	if err == nil {
		t.Fatal("f(none()) succeeded, want an unwrap fault")
	}
	if !strings.Contains(err.Error(), "unwrap") {
		t.Fatalf("fault %q does not name unwrap", err)
	}
}

// declareDouble declares g(x: Result<i64, str>): Result<i64, str> that
// propagates the error case and doubles the value case.
func declareDouble(b *astbuild.Builder) {
	resultTy := func() *ast.TypeExpr { return b.Ty("Result", b.Ty("i64"), b.Ty("str")) }
	b.Fn("g", []ast.FieldDef{b.Param("x", resultTy())}, resultTy(),
		b.Wrap(b.CallNamed("ok", b.Bin(ast.OpMul, b.OrReturn(b.Ident("x")), b.Int(2)))))
}

func TestResultPropagationOk(t *testing.T) {
	img := compile(t, func(b *astbuild.Builder) {
		declareDouble(b)
		b.Fn("main", nil, b.Ty("Result", b.Ty("i64"), b.Ty("str")),
			b.Wrap(b.CallNamed("g", b.CallNamed("ok", b.Int(10)))))
	})
	vm, result := runMain(t, img)
	fields, ok := vm.StructFields(result)
	if !ok || len(fields) != 2 {
		t.Fatalf("g(ok(10)) returned %s, want a result value", vm.FormatValue(result))
	}
	if fields[0].AsInt() != 0 || fields[1].AsInt() != 20 {
		t.Fatalf("g(ok(10)) = %s, want ok(20)", vm.FormatValue(result))
	}
}

func TestResultPropagationErr(t *testing.T) {
	img := compile(t, func(b *astbuild.Builder) {
		declareDouble(b)
		b.Fn("main", nil, b.Ty("Result", b.Ty("i64"), b.Ty("str")),
			b.Wrap(b.CallNamed("g", b.CallNamed("err", b.Str("nope")))))
	})
	vm, result := runMain(t, img)
	fields, ok := vm.StructFields(result)
	if !ok || len(fields) != 2 {
		t.Fatalf("g(err) returned %s, want a result value", vm.FormatValue(result))
	}
	if fields[0].AsInt() != 1 {
		t.Fatalf("g(err) = %s, want the error variant", vm.FormatValue(result))
	}
	if msg, _ := vm.StringValue(fields[1]); msg != "nope" {
		t.Fatalf("propagated error %q, want nope", msg)
	}
}

// declareFib declares the doubly recursive fib, optionally cached.
func declareFib(b *astbuild.Builder, opts ...astbuild.FnOption) {
	n := func() ast.ExprId { return b.Ident("n") }
	body := b.If(
		b.Bin(ast.OpLt, n(), b.Int(2)),
		b.Wrap(n()),
		b.Wrap(b.Bin(ast.OpAdd,
			b.CallNamed("fib", b.Bin(ast.OpSub, n(), b.Int(1))),
			b.CallNamed("fib", b.Bin(ast.OpSub, n(), b.Int(2))))))
	b.Fn("fib", []ast.FieldDef{b.Param("n", b.Ty("i64"))}, b.Ty("i64"), b.Wrap(body), opts...)
}

func TestRecursiveFib(t *testing.T) {
	img := compile(t, func(b *astbuild.Builder) {
		declareFib(b)
		b.Fn("main", nil, b.Ty("i64"), b.Wrap(b.CallNamed("fib", b.Int(10))))
	})
	_, result := runMain(t, img)
	if got := result.AsInt(); got != 55 {
		t.Fatalf("fib(10) = %d, want 55", got)
	}
}

func TestFibResultCache(t *testing.T) {
	build := func(cached bool) *bytecode.Image {
		return compile(t, func(b *astbuild.Builder) {
			if cached {
				declareFib(b, b.Cached())
			} else {
				declareFib(b)
			}
			b.Fn("main", nil, b.Ty("i64"), b.Wrap(b.CallNamed("fib", b.Int(20))))
		})
	}

	hot := vmrun.New(build(true))
	result, err := hot.Run("main", nil)
	if err != nil {
		t.Fatalf("cached run failed: %v", err)
	}
	if got := result.AsInt(); got != 6765 {
		t.Fatalf("fib(20) = %d, want 6765", got)
	}

	cold := vmrun.New(build(false))
	if _, err := cold.Run("main", nil); err != nil {
		t.Fatalf("uncached run failed: %v", err)
	}

	if hot.Stats().CacheHits == 0 {
		t.Fatal("cached fib recorded no cache hits")
	}
	// Memoization collapses the exponential call tree to a linear one.
	if hot.Stats().Calls*10 > cold.Stats().Calls {
		t.Fatalf("cached fib made %d calls vs %d uncached; caching is not short-circuiting",
			hot.Stats().Calls, cold.Stats().Calls)
	}
}

func TestEnumPatternMatch(t *testing.T) {
	img := compile(t, func(b *astbuild.Builder) {
		b.Enum("Shape",
			b.Variant("Circle", b.Ty("f64")),
			b.Variant("Square", b.Ty("f64")))
		scr := b.CallPath([]string{"Shape"}, "Circle", b.Float(2.0))
		m := b.Match(scr,
			b.ArmBind("Circle", "r",
				b.Bin(ast.OpMul, b.Bin(ast.OpMul, b.Ident("r"), b.Ident("r")), b.Float(3.14))),
			b.ArmBind("Square", "s", b.Bin(ast.OpMul, b.Ident("s"), b.Ident("s"))))
		b.Fn("main", nil, b.Ty("f64"), b.Wrap(m))
	})
	_, result := runMain(t, img)
	if got := result.AsFloat(); got != 12.56 {
		t.Fatalf("match on Circle(2.0) = %g, want 12.56", got)
	}
}

func TestIteratorForLoop(t *testing.T) {
	img := compile(t, func(b *astbuild.Builder) {
		b.Struct("Counter", b.Param("n", b.Ty("i64")))
		selfN := func() ast.ExprId { return b.Field(b.Ident("self"), "n") }
		nextBody := b.If(
			b.Bin(ast.OpLt, selfN(), b.Int(3)),
			b.Block(
				[]ast.StmtId{b.AssignField(b.Ident("self"), "n", b.Bin(ast.OpAdd, selfN(), b.Int(1)))},
				b.CallNamed("some", selfN())),
			b.Wrap(b.CallNamed("none")))
		b.Impl(b.Ty("Counter"),
			b.MethodDecl("next", []ast.FieldDef{b.SelfParam()}, b.Ty("Option", b.Ty("i64")),
				b.Wrap(nextBody)))

		decl := b.VarDecl("c", nil, b.StructVal(b.Ty("Counter"), b.FieldInit("n", b.Int(0))))
		sum := b.VarDecl("sum", nil, b.Int(0))
		loop := b.For("x", b.Ident("c"),
			b.BlockUnit(b.AssignVar("sum", b.Bin(ast.OpAdd, b.Ident("sum"), b.Ident("x")))))
		b.Fn("main", nil, b.Ty("i64"), b.Block([]ast.StmtId{decl, sum, loop}, b.Ident("sum")))
	})
	_, result := runMain(t, img)
	if got := result.AsInt(); got != 6 {
		t.Fatalf("for-loop sum over 1,2,3 = %d, want 6", got)
	}
}

func TestClosureCallWithCapture(t *testing.T) {
	img := compile(t, func(b *astbuild.Builder) {
		base := b.VarDecl("base", nil, b.Int(10))
		clos := b.VarDecl("add", nil,
			b.Closure([]ast.FieldDef{b.Param("x", b.Ty("i64"))}, b.Ty("i64"),
				b.Wrap(b.Bin(ast.OpAdd, b.Ident("x"), b.Ident("base")))))
		b.Fn("main", nil, b.Ty("i64"),
			b.Block([]ast.StmtId{base, clos}, b.CallNamed("add", b.Int(32))))
	})
	_, result := runMain(t, img)
	if got := result.AsInt(); got != 42 {
		t.Fatalf("captured add(32) = %d, want 42", got)
	}
}

func TestGenericMonomorphization(t *testing.T) {
	img := compile(t, func(b *astbuild.Builder) {
		b.Fn("id", []ast.FieldDef{b.Param("x", b.Ty("T"))}, b.Ty("T"),
			b.Wrap(b.Ident("x")), b.Generics("T"))
		call1 := b.CallNamed("id", b.Int(5))
		call2 := b.CallNamed("id", b.Int(6))
		b.Fn("main", nil, b.Ty("i64"),
			b.Wrap(b.Bin(ast.OpAdd, call1, call2)))
	})
	_, result := runMain(t, img)
	if got := result.AsInt(); got != 11 {
		t.Fatalf("id(5) + id(6) = %d, want 11", got)
	}

	// Two call sites at the same concrete type share one monomorph.
	monos := 0
	for _, f := range img.Funcs {
		if strings.HasPrefix(f.Name, "id$") {
			monos++
		}
	}
	if monos != 1 {
		t.Fatalf("id instantiated %d times for one concrete type, want 1", monos)
	}
}

func TestTupleDestructure(t *testing.T) {
	img := compile(t, func(b *astbuild.Builder) {
		pair := b.VarDecl("pair", nil, b.Tuple(b.Int(40), b.Int(2)))
		dest := b.Destructure([]string{"a", "c"}, b.Ident("pair"))
		b.Fn("main", nil, b.Ty("i64"),
			b.Block([]ast.StmtId{pair, dest}, b.Bin(ast.OpAdd, b.Ident("a"), b.Ident("c"))))
	})
	_, result := runMain(t, img)
	if got := result.AsInt(); got != 42 {
		t.Fatalf("destructured sum = %d, want 42", got)
	}
}

func TestLoopBreakValue(t *testing.T) {
	img := compile(t, func(b *astbuild.Builder) {
		i := b.VarDecl("i", nil, b.Int(0))
		body := b.BlockUnit(
			b.AssignVar("i", b.Bin(ast.OpAdd, b.Ident("i"), b.Int(1))),
			b.ExprStmt(b.IfNoElse(
				b.Bin(ast.OpGe, b.Ident("i"), b.Int(5)),
				b.BlockUnit(b.ExprStmt(b.Break(b.Ident("i")))))))
		b.Fn("main", nil, b.Ty("i64"),
			b.Block([]ast.StmtId{i}, b.Loop(body)))
	})
	_, result := runMain(t, img)
	if got := result.AsInt(); got != 5 {
		t.Fatalf("loop broke with %d, want 5", got)
	}
}

func TestHostCallOut(t *testing.T) {
	img := compile(t, func(b *astbuild.Builder) {
		b.ExternFn("greet", []ast.FieldDef{b.Param("name", b.Ty("str"))}, b.Ty("str"), "demo::greet")
		b.Fn("main", nil, b.Ty("str"), b.Wrap(b.CallNamed("greet", b.Str("margarine"))))
	})

	vm := vmrun.New(img)
	vm.RegisterHostModule("demo", map[string]vmrun.HostFunc{
		"greet": func(vm *vmrun.VM, out *vmrun.Reg, status *vmrun.Status) {
			name, _ := vm.StringValue(vm.Arg(0))
			*out = vm.NewString("hello " + name)
		},
	})
	result, err := vm.Run("main", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got, _ := vm.StringValue(result); got != "hello margarine" {
		t.Fatalf("greet returned %q, want %q", got, "hello margarine")
	}
}
