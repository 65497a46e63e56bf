package sema

import (
	"github.com/margarine-lang/marginc/internal/ast"
	"github.com/margarine-lang/marginc/internal/diag"
	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/nsmap"
	"github.com/margarine-lang/marginc/internal/pipeline"
	"github.com/margarine-lang/marginc/internal/scope"
	"github.com/margarine-lang/marginc/internal/srcrange"
	"github.com/margarine-lang/marginc/internal/symtab"
)

// CheckBodies is pass 5: walk every function body's AST, recording
// a Ty for every expression in ctx.TyInfo.ExprTypes, a resolved
// (function, instantiation) pair for every call in ctx.TyInfo.CallTargets,
// and diagnostics at the triggering node for everything else. It is the
// only pass that uses a scope.Stack — the first four passes only ever
// touch the namespace tree.
func CheckBodies(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	c := &checker{ctx: ctx}
	c.walkDecls(ctx.RootNamespace, ctx.Program.Decls)
	return ctx
}

type checker struct {
	ctx *pipeline.PipelineContext

	// loopResults tracks the result type of each enclosing loop
	// expression, innermost last; break-with-value unifies against the
	// top entry.
	loopResults []symtab.Ty
}

// closureCtx accumulates one enclosing closure's captures while its body
// is walked: the scope id the closure was opened at (anything bound
// before it is a capture) and the capture list under construction.
type closureCtx struct {
	boundary scope.Id
	captures *[]symtab.ClosureCapture
	captured map[intern.StrId]bool
}

// frame is the per-walk state threaded through one expression tree: the
// current scope tip, the enclosing function's generic-parameter
// environment (for resolving type annotations written inside the body),
// and the stack of enclosing closures, innermost last.
type frame struct {
	scopeId  scope.Id
	hasScope bool
	genEnv   map[intern.StrId]symtab.Ty
	closures []*closureCtx
}

func (f frame) withScope(id scope.Id) frame {
	f.scopeId, f.hasScope = id, true
	return f
}

func (c *checker) walkDecls(ns nsmap.NamespaceId, decls []ast.DeclId) {
	for _, declId := range decls {
		d := c.ctx.Program.Arena.Decl(declId)
		switch decl := d.(type) {
		case *ast.FunctionDecl:
			if !decl.IsExtern {
				c.checkFunctionBody(ns, declId, decl)
			}
		case *ast.ModuleDecl:
			c.walkDecls(c.ctx.DeclNamespace[declId], decl.Items)
		case *ast.ImplDecl:
			implNs, ok := c.ctx.DeclNamespace[declId]
			if !ok {
				continue
			}
			for _, itemId := range decl.Items {
				fd := c.ctx.Program.Arena.Decl(itemId).(*ast.FunctionDecl)
				if !fd.IsExtern {
					c.checkFunctionBody(implNs, itemId, fd)
				}
			}
		}
	}
}

func freshGenEnv(ctx *pipeline.PipelineContext, names []intern.StrId, rng srcrange.Range) map[intern.StrId]symtab.Ty {
	env := make(map[intern.StrId]symtab.Ty, len(names))
	for _, n := range names {
		env[n] = ctx.Symbols.NewVar(rng)
	}
	return env
}

func (c *checker) checkFunctionBody(ns nsmap.NamespaceId, declId ast.DeclId, decl *ast.FunctionDecl) {
	ctx := c.ctx
	sym := ctx.DeclSymbols[declId]
	fn := ctx.Symbols.Sym(sym).Function
	if fn == nil {
		return
	}
	env := freshGenEnv(ctx, ctx.Symbols.Sym(sym).Generics, decl.Rng)
	if len(env) > 0 {
		genVars := make(map[intern.StrId]symtab.VarId, len(env))
		for name, ty := range env {
			genVars[name] = ty.Var
		}
		ctx.FnGenVars[declId] = genVars
	}
	retTy := ctx.Symbols.Subst(fn.Return, env)

	var id scope.Id
	has := false
	id = ctx.Scopes.PushImplicitNamespace(id, has, ns)
	has = true
	id = ctx.Scopes.PushGenerics(id, has, ctx.Symbols.Sym(sym).Generics)
	id = ctx.Scopes.PushFunction(id, has, retTy, "declared return type")
	for _, a := range fn.Args {
		pty := ctx.Symbols.Subst(a.Type, env)
		id = ctx.Scopes.PushVariable(id, has, a.Name, pty)
	}

	fr := frame{scopeId: id, hasScope: true, genEnv: env}
	bodyTy := c.checkExpr(fr, decl.Body)
	if ok, _ := ctx.Symbols.Eq(bodyTy, retTy); !ok {
		ctx.Fail(decl.Body.Node(), diag.KindReturnMismatch,
			ctx.Symbols.Display(bodyTy)+" vs "+ctx.Symbols.Display(retTy))
	}
}

// poison returns the Error Ty used whenever a node can't be given a real
// type; it still gets recorded so codegen sees a total ExprTypes map.
func (c *checker) poison() symtab.Ty {
	return symtab.TyCon(symtab.SymError, symtab.EmptyGenList)
}

func (c *checker) record(id ast.ExprId, ty symtab.Ty) symtab.Ty {
	c.ctx.TyInfo.ExprTypes[id] = ty
	return ty
}

// lookupValue resolves a bare name to either a local variable's Ty or a
// namespace symbol, trying (in order) the variable chain, imported
// (`use`) symbols bound directly into the scope chain, the chain of
// implicit namespaces from innermost to outermost, then the root
// namespace.
func (c *checker) lookupValue(fr frame, name intern.StrId) (ty symtab.Ty, isVar bool, sym symtab.SymbolId, ok bool) {
	if t, matchId, found := c.ctx.Scopes.FindVarAt(fr.scopeId, fr.hasScope, name); found {
		c.noteCapture(fr, name, matchId, t)
		return t, true, 0, true
	}
	if s, found := c.ctx.Scopes.FindSym(fr.scopeId, fr.hasScope, name); found {
		return symtab.Ty{}, false, s, true
	}
	for _, ns := range c.ctx.Scopes.ImplicitNamespaces(fr.scopeId, fr.hasScope) {
		if s, found, err := c.ctx.Namespaces.FindSym(ns, name); found && err == nil {
			return symtab.Ty{}, false, s, true
		}
	}
	if s, found, err := c.ctx.Namespaces.FindSym(c.ctx.RootNamespace, name); found && err == nil {
		return symtab.Ty{}, false, s, true
	}
	return symtab.Ty{}, false, 0, false
}

// noteCapture records name as a free variable of every enclosing closure
// whose boundary the binding (found at matchId) lies outside of — a
// variable reaching through two nested closures is a capture of both, so
// each one's lowered function can thread it inward as a trailing
// argument. Captures are materialized here, after the binding resolves,
// because they only become known while the body is walked.
func (c *checker) noteCapture(fr frame, name intern.StrId, matchId scope.Id, ty symtab.Ty) {
	for _, cl := range fr.closures {
		if matchId >= cl.boundary || cl.captured[name] {
			continue
		}
		cl.captured[name] = true
		*cl.captures = append(*cl.captures, symtab.ClosureCapture{Name: name, Type: ty})
	}
}

// instantiateEnvFor builds the paramName->Ty substitution environment for
// a concrete Ty's own declared generics, used to instantiate a field or
// method signature that was declared in terms of the container's
// generics (e.g. List<T>'s "push(self, v: T)" when called on a
// List<i64> receiver).
func instantiateEnvFor(ctx *pipeline.PipelineContext, ty symtab.Ty) map[intern.StrId]symtab.Ty {
	env := map[intern.StrId]symtab.Ty{}
	if ty.IsVar() {
		return env
	}
	names := ctx.Symbols.Sym(ty.Sym).Generics
	actual := ctx.Symbols.GetGens(ty.Gens)
	for i, n := range names {
		if i < len(actual) {
			env[n] = actual[i].Type
		}
	}
	return env
}

func (c *checker) lookupTypeSym(fr frame, name intern.StrId) (symtab.SymbolId, bool) {
	for _, ns := range c.ctx.Scopes.ImplicitNamespaces(fr.scopeId, fr.hasScope) {
		if s, found, err := c.ctx.Namespaces.FindSym(ns, name); found && err == nil {
			return s, true
		}
	}
	if s, found, err := c.ctx.Namespaces.FindSym(c.ctx.RootNamespace, name); found && err == nil {
		return s, true
	}
	return 0, false
}
