// Package astbuild constructs programs programmatically: the same arena
// shapes the parser produces, built through a fluent API. The analyzer
// and codegen tests drive whole pipelines through it, and embedders that
// generate Margarine code on the fly can use it instead of printing and
// re-parsing source text.
package astbuild

import (
	"strconv"

	"github.com/margarine-lang/marginc/internal/ast"
	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/srcrange"
)

// Builder accumulates declarations into one Program. Every node gets a
// distinct synthetic source range so diagnostics (which dedupe by range)
// stay one-per-node.
type Builder struct {
	In    *intern.Interner
	Arena *ast.Arena
	decls []ast.DeclId
	file  uint32
	pos   uint32
}

func New(interner *intern.Interner) *Builder {
	return &Builder{In: interner, Arena: ast.NewArena(0)}
}

func (b *Builder) rng() srcrange.Range {
	b.pos += 2
	return srcrange.Range{File: b.file, Start: b.pos, End: b.pos + 1}
}

// Name interns s with a fresh range.
func (b *Builder) Name(s string) ast.Name {
	return ast.Name{Id: b.In.Intern(s), Rng: b.rng()}
}

// Ty builds a named type expression, optionally applied to arguments.
func (b *Builder) Ty(name string, args ...*ast.TypeExpr) *ast.TypeExpr {
	return &ast.TypeExpr{Rng: b.rng(), Name: b.Name(name), Args: args}
}

// TupleTy builds a tuple type expression.
func (b *Builder) TupleTy(elems ...*ast.TypeExpr) *ast.TypeExpr {
	return &ast.TypeExpr{Rng: b.rng(), IsTuple: true, Elements: elems}
}

func (b *Builder) Int(v int64) ast.ExprId {
	return b.Arena.AddExpr(&ast.LiteralExpr{Rng: b.rng(), Kind: ast.LitInt, IntVal: v})
}

func (b *Builder) Float(v float64) ast.ExprId {
	return b.Arena.AddExpr(&ast.LiteralExpr{Rng: b.rng(), Kind: ast.LitFloat, FloatVal: v})
}

func (b *Builder) Bool(v bool) ast.ExprId {
	return b.Arena.AddExpr(&ast.LiteralExpr{Rng: b.rng(), Kind: ast.LitBool, BoolVal: v})
}

func (b *Builder) Str(v string) ast.ExprId {
	return b.Arena.AddExpr(&ast.LiteralExpr{Rng: b.rng(), Kind: ast.LitStr, StrVal: v})
}

func (b *Builder) Ident(name string) ast.ExprId {
	return b.Arena.AddExpr(&ast.IdentExpr{Rng: b.rng(), Name: b.Name(name)})
}

func (b *Builder) Bin(op ast.BinOp, left, right ast.ExprId) ast.ExprId {
	return b.Arena.AddExpr(&ast.BinOpExpr{Rng: b.rng(), Op: op, Left: left, Right: right})
}

func (b *Builder) Un(op ast.UnOp, operand ast.ExprId) ast.ExprId {
	return b.Arena.AddExpr(&ast.UnOpExpr{Rng: b.rng(), Op: op, Operand: operand})
}

// If builds a two-armed conditional; IfNoElse the statement-shaped one.
func (b *Builder) If(cond, then, els ast.ExprId) ast.ExprId {
	return b.Arena.AddExpr(&ast.IfExpr{Rng: b.rng(), Cond: cond, Then: then, Else: &els})
}

func (b *Builder) IfNoElse(cond, then ast.ExprId) ast.ExprId {
	return b.Arena.AddExpr(&ast.IfExpr{Rng: b.rng(), Cond: cond, Then: then})
}

// Block builds a block from statements and a tail expression; use
// BlockUnit for a unit-valued block.
func (b *Builder) Block(stmts []ast.StmtId, tail ast.ExprId) ast.ExprId {
	return b.Arena.AddExpr(&ast.BlockExpr{Rng: b.rng(), Stmts: stmts, Tail: &tail})
}

func (b *Builder) BlockUnit(stmts ...ast.StmtId) ast.ExprId {
	return b.Arena.AddExpr(&ast.BlockExpr{Rng: b.rng(), Stmts: stmts})
}

// Wrap builds a block holding just a tail expression.
func (b *Builder) Wrap(tail ast.ExprId) ast.ExprId {
	return b.Block(nil, tail)
}

func (b *Builder) Call(callee ast.ExprId, args ...ast.ExprId) ast.ExprId {
	return b.Arena.AddExpr(&ast.CallExpr{Rng: b.rng(), Callee: callee, Args: args})
}

// CallNamed calls a function by bare name.
func (b *Builder) CallNamed(name string, args ...ast.ExprId) ast.ExprId {
	return b.Call(b.Ident(name), args...)
}

// CallPath calls a namespace-qualified function: CallPath(["Shape"],
// "Circle", arg).
func (b *Builder) CallPath(path []string, name string, args ...ast.ExprId) ast.ExprId {
	segs := make([]ast.Name, len(path))
	for i, p := range path {
		segs[i] = b.Name(p)
	}
	callee := b.Arena.AddExpr(&ast.WithinNamespaceExpr{Rng: b.rng(), Path: segs, Name: b.Name(name)})
	return b.Call(callee, args...)
}

func (b *Builder) Field(target ast.ExprId, name string) ast.ExprId {
	return b.Arena.AddExpr(&ast.FieldAccessExpr{Rng: b.rng(), Target: target, Field: b.Name(name)})
}

// Method calls target.name(args...).
func (b *Builder) Method(target ast.ExprId, name string, args ...ast.ExprId) ast.ExprId {
	return b.Call(b.Field(target, name), args...)
}

// StructVal builds a struct literal of the named type.
func (b *Builder) StructVal(ty *ast.TypeExpr, fields ...ast.FieldInit) ast.ExprId {
	return b.Arena.AddExpr(&ast.CreateStructExpr{Rng: b.rng(), Type: ty, Fields: fields})
}

func (b *Builder) FieldInit(name string, value ast.ExprId) ast.FieldInit {
	return ast.FieldInit{Name: b.Name(name), Value: value}
}

// Match builds a match expression from arms made with Arm/ArmBind/
// ArmWild.
func (b *Builder) Match(scrutinee ast.ExprId, arms ...ast.MatchArm) ast.ExprId {
	return b.Arena.AddExpr(&ast.MatchExpr{Rng: b.rng(), Scrutinee: scrutinee, Arms: arms})
}

func (b *Builder) Arm(variant string, body ast.ExprId) ast.MatchArm {
	return ast.MatchArm{Pattern: ast.VariantPattern{VariantName: b.Name(variant)}, Body: body}
}

func (b *Builder) ArmBind(variant, binding string, body ast.ExprId) ast.MatchArm {
	n := b.Name(binding)
	return ast.MatchArm{Pattern: ast.VariantPattern{VariantName: b.Name(variant), Binding: &n}, Body: body}
}

func (b *Builder) ArmWild(body ast.ExprId) ast.MatchArm {
	return ast.MatchArm{Pattern: ast.WildcardPattern{}, Body: body}
}

// Closure builds a closure literal; a nil ret infers the return type.
func (b *Builder) Closure(params []ast.FieldDef, ret *ast.TypeExpr, body ast.ExprId) ast.ExprId {
	return b.Arena.AddExpr(&ast.ClosureExpr{Rng: b.rng(), Params: params, Return: ret, Body: body})
}

func (b *Builder) Param(name string, ty *ast.TypeExpr) ast.FieldDef {
	return ast.FieldDef{Name: b.Name(name), Type: ty}
}

func (b *Builder) Unwrap(value ast.ExprId) ast.ExprId {
	return b.Arena.AddExpr(&ast.UnwrapExpr{Rng: b.rng(), Value: value})
}

func (b *Builder) OrReturn(value ast.ExprId) ast.ExprId {
	return b.Arena.AddExpr(&ast.OrReturnExpr{Rng: b.rng(), Value: value})
}

func (b *Builder) Loop(body ast.ExprId) ast.ExprId {
	return b.Arena.AddExpr(&ast.LoopExpr{Rng: b.rng(), Body: body})
}

func (b *Builder) Break(value ast.ExprId) ast.ExprId {
	return b.Arena.AddExpr(&ast.BreakExpr{Rng: b.rng(), Value: &value})
}

func (b *Builder) BreakBare() ast.ExprId {
	return b.Arena.AddExpr(&ast.BreakExpr{Rng: b.rng()})
}

func (b *Builder) Continue() ast.ExprId {
	return b.Arena.AddExpr(&ast.ContinueExpr{Rng: b.rng()})
}

func (b *Builder) Return(value ast.ExprId) ast.ExprId {
	return b.Arena.AddExpr(&ast.ReturnExpr{Rng: b.rng(), Value: &value})
}

func (b *Builder) Tuple(elems ...ast.ExprId) ast.ExprId {
	return b.Arena.AddExpr(&ast.TupleExpr{Rng: b.rng(), Elements: elems})
}

func (b *Builder) Index(target, index ast.ExprId) ast.ExprId {
	return b.Arena.AddExpr(&ast.IndexExpr{Rng: b.rng(), Target: target, Index: index})
}

func (b *Builder) Cast(value ast.ExprId, ty *ast.TypeExpr) ast.ExprId {
	return b.Arena.AddExpr(&ast.AsCastExpr{Rng: b.rng(), Value: value, Type: ty})
}

// VarDecl declares name = value, optionally annotated.
func (b *Builder) VarDecl(name string, ty *ast.TypeExpr, value ast.ExprId) ast.StmtId {
	return b.Arena.AddStmt(&ast.VarDeclStmt{Rng: b.rng(), Name: b.Name(name), TypeAnnotation: ty, Value: value})
}

// AssignVar assigns to a plain variable; AssignField to target.field.
func (b *Builder) AssignVar(name string, value ast.ExprId) ast.StmtId {
	target := &ast.IdentExpr{Rng: b.rng(), Name: b.Name(name)}
	return b.Arena.AddStmt(&ast.AssignStmt{Rng: b.rng(), Target: target, Value: value})
}

func (b *Builder) AssignField(target ast.ExprId, field string, value ast.ExprId) ast.StmtId {
	fa := &ast.FieldAccessExpr{Rng: b.rng(), Target: target, Field: b.Name(field)}
	return b.Arena.AddStmt(&ast.AssignStmt{Rng: b.rng(), Target: fa, Value: value})
}

func (b *Builder) Destructure(names []string, value ast.ExprId) ast.StmtId {
	ns := make([]ast.Name, len(names))
	for i, n := range names {
		ns[i] = b.Name(n)
	}
	return b.Arena.AddStmt(&ast.TupleDestructureStmt{Rng: b.rng(), Names: ns, Value: value})
}

func (b *Builder) For(varName string, iterable, body ast.ExprId) ast.StmtId {
	return b.Arena.AddStmt(&ast.ForStmt{Rng: b.rng(), Var: b.Name(varName), Iterable: iterable, Body: body})
}

// ExprStmt has no dedicated statement node; expression statements are
// modeled as a variable declaration binding a throwaway name.
func (b *Builder) ExprStmt(value ast.ExprId) ast.StmtId {
	return b.VarDecl("_"+strconv.Itoa(int(b.pos)), nil, value)
}

// FnOption tweaks a function declaration under construction.
type FnOption func(*ast.FunctionDecl)

// Cached tags the function for the per-function result cache.
func (b *Builder) Cached() FnOption {
	return func(d *ast.FunctionDecl) {
		d.Attributes = append(d.Attributes, ast.Attribute{Name: b.Name("cache")})
	}
}

// Generics declares the function's generic parameter names.
func (b *Builder) Generics(names ...string) FnOption {
	return func(d *ast.FunctionDecl) {
		for _, n := range names {
			d.Generics = append(d.Generics, b.Name(n))
		}
	}
}

// Fn declares a top-level function and returns its id.
func (b *Builder) Fn(name string, params []ast.FieldDef, ret *ast.TypeExpr, body ast.ExprId, opts ...FnOption) ast.DeclId {
	d := &ast.FunctionDecl{Rng: b.rng(), Name: b.Name(name), Params: params, Return: ret, Body: body}
	for _, opt := range opts {
		opt(d)
	}
	id := b.Arena.AddDecl(d)
	b.decls = append(b.decls, id)
	return id
}

// ExternFn declares a host-realized function: no body, only the extern
// path the VM's registry resolves at call time.
func (b *Builder) ExternFn(name string, params []ast.FieldDef, ret *ast.TypeExpr, path string) ast.DeclId {
	d := &ast.FunctionDecl{
		Rng:        b.rng(),
		Name:       b.Name(name),
		Params:     params,
		Return:     ret,
		IsExtern:   true,
		ExternPath: path,
	}
	id := b.Arena.AddDecl(d)
	b.decls = append(b.decls, id)
	return id
}

// Struct declares a named-field struct.
func (b *Builder) Struct(name string, fields ...ast.FieldDef) ast.DeclId {
	d := &ast.StructDecl{Rng: b.rng(), Name: b.Name(name), Fields: fields}
	id := b.Arena.AddDecl(d)
	b.decls = append(b.decls, id)
	return id
}

// Enum declares a sum type from Variant values.
func (b *Builder) Enum(name string, variants ...ast.EnumVariant) ast.DeclId {
	d := &ast.EnumDecl{Rng: b.rng(), Name: b.Name(name), Variants: variants}
	id := b.Arena.AddDecl(d)
	b.decls = append(b.decls, id)
	return id
}

func (b *Builder) Variant(name string, payload *ast.TypeExpr) ast.EnumVariant {
	return ast.EnumVariant{Name: b.Name(name), Payload: payload}
}

// Impl attaches methods to a type. Each method is built with Method-style
// FunctionDecl fields passed through MethodDecl.
func (b *Builder) Impl(target *ast.TypeExpr, methods ...ast.DeclId) ast.DeclId {
	d := &ast.ImplDecl{Rng: b.rng(), Target: target, Items: methods}
	id := b.Arena.AddDecl(d)
	b.decls = append(b.decls, id)
	return id
}

// MethodDecl declares a function without adding it to the top level, for
// use inside Impl.
func (b *Builder) MethodDecl(name string, params []ast.FieldDef, ret *ast.TypeExpr, body ast.ExprId, opts ...FnOption) ast.DeclId {
	d := &ast.FunctionDecl{Rng: b.rng(), Name: b.Name(name), Params: params, Return: ret, Body: body}
	for _, opt := range opts {
		opt(d)
	}
	return b.Arena.AddDecl(d)
}

// SelfParam is the untyped receiver parameter of an impl method.
func (b *Builder) SelfParam() ast.FieldDef {
	return ast.FieldDef{Name: ast.Name{Id: intern.Self, Rng: b.rng()}}
}

// Program finalizes the build.
func (b *Builder) Program() *ast.Program {
	return &ast.Program{File: "<built>", Arena: b.Arena, Decls: b.decls}
}
