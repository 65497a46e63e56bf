package sema

import (
	"github.com/margarine-lang/marginc/internal/ast"
	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/nsmap"
	"github.com/margarine-lang/marginc/internal/pipeline"
	"github.com/margarine-lang/marginc/internal/srcrange"
	"github.com/margarine-lang/marginc/internal/symtab"
)

// resolveTypeExpr turns the syntactic TypeExpr t into a declaration-time
// Generic: a reference to one of the declaring symbol's own params (when
// t's bare name is in params), or a concrete head resolved by name lookup
// in ns applied to recursively-resolved arguments. Tuples resolve to the
// fixed-arity SymTuple head. ok is false when a name could not be
// resolved at all (an UnknownType diagnostic is the caller's job, since
// only the caller knows which node to blame).
func resolveTypeExpr(ctx *pipeline.PipelineContext, ns nsmap.NamespaceId, params map[intern.StrId]bool, t *ast.TypeExpr) (symtab.Generic, bool) {
	if t == nil {
		return symtab.Concrete(symtab.SymUnit, nil, srcrange.Zero), true
	}
	if t.IsTuple {
		args := make([]symtab.Generic, len(t.Elements))
		ok := true
		for i, e := range t.Elements {
			g, k := resolveTypeExpr(ctx, ns, params, e)
			args[i] = g
			ok = ok && k
		}
		return symtab.Concrete(symtab.SymTuple, args, t.Rng), ok
	}
	if params[t.Name.Id] {
		return symtab.Param(t.Name.Id, t.Rng), true
	}
	sym, ok, err := lookupTypeName(ctx, ns, t.Name.Id)
	if err != nil || !ok {
		return symtab.Generic{}, false
	}
	args := make([]symtab.Generic, len(t.Args))
	good := true
	for i, a := range t.Args {
		g, k := resolveTypeExpr(ctx, ns, params, a)
		args[i] = g
		good = good && k
	}
	if len(sym2generics(ctx, sym)) != len(args) {
		good = false
	}
	return symtab.Concrete(sym, args, t.Rng), good
}

func sym2generics(ctx *pipeline.PipelineContext, sym symtab.SymbolId) []intern.StrId {
	return ctx.Symbols.Sym(sym).Generics
}

// lookupTypeName resolves a bare type name, first against ns directly
// (covers nested-module and impl-body declarations) and falling back to
// the root namespace (covers the common case of referring to a
// top-level type from anywhere, mirroring find_sym's scope-walk for
// types that compute_types runs without a live scope.Stack).
func lookupTypeName(ctx *pipeline.PipelineContext, ns nsmap.NamespaceId, name intern.StrId) (symtab.SymbolId, bool, error) {
	if sym, ok, err := ctx.Namespaces.FindSym(ns, name); ok {
		return sym, true, err
	}
	if ns != ctx.RootNamespace {
		if sym, ok, err := ctx.Namespaces.FindSym(ctx.RootNamespace, name); ok {
			return sym, true, err
		}
	}
	return 0, false, nil
}

func paramSet(names []ast.Name) map[intern.StrId]bool {
	m := make(map[intern.StrId]bool, len(names))
	for _, n := range names {
		m[n.Id] = true
	}
	return m
}
