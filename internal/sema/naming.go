package sema

import (
	"github.com/margarine-lang/marginc/internal/ast"
	"github.com/margarine-lang/marginc/internal/diag"
	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/nsmap"
	"github.com/margarine-lang/marginc/internal/pipeline"
	"github.com/margarine-lang/marginc/internal/symtab"
)

// CollectNames is pass 1: register every declared type/function/
// module name in its local namespace with a pending SymbolId. Duplicates
// become sticky conflicts; nothing here resolves a type yet.
func CollectNames(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	collectNamesInto(ctx, ctx.RootNamespace, ctx.Program.Decls)
	return ctx
}

func genericNames(interner *intern.Interner, gens []ast.Name) []intern.StrId {
	out := make([]intern.StrId, len(gens))
	for i, g := range gens {
		out[i] = g.Id
	}
	return out
}

// declareName registers name in ns with a freshly pending symbol (or
// records a sticky conflict), and remembers the mapping on ctx.DeclSymbols.
func declareName(ctx *pipeline.PipelineContext, ns nsmap.NamespaceId, decl ast.DeclId, name ast.Name, gens []ast.Name, node ast.NodeId) symtab.SymbolId {
	id := ctx.Symbols.Pending(name.Id, genericNames(ctx.Interner, gens))
	if err := ctx.Namespaces.AddSym(ns, name.Id, id); err != nil {
		ctx.Fail(node, diag.KindNameAlreadyDefined, ctx.Interner.String(name.Id))
	}
	ctx.DeclSymbols[decl] = id
	return id
}

func collectNamesInto(ctx *pipeline.PipelineContext, ns nsmap.NamespaceId, decls []ast.DeclId) {
	for _, declId := range decls {
		d := ctx.Program.Arena.Decl(declId)
		switch decl := d.(type) {
		case *ast.StructDecl:
			declareName(ctx, ns, declId, decl.Name, decl.Generics, declId.Node())

		case *ast.EnumDecl:
			sym := declareName(ctx, ns, declId, decl.Name, decl.Generics, declId.Node())
			enumNs := ctx.Namespaces.NewChild(ns, decl.Name.Id)
			ctx.DeclNamespace[declId] = enumNs
			ctx.TypeMethodNs[sym] = enumNs
			for _, v := range decl.Variants {
				vid := ctx.Symbols.Pending(v.Name.Id, nil)
				if err := ctx.Namespaces.AddSym(enumNs, v.Name.Id, vid); err != nil {
					ctx.Fail(declId.Node(), diag.KindNameAlreadyDefined, ctx.Interner.String(v.Name.Id))
				}
			}

		case *ast.FunctionDecl:
			// The iterator-protocol name is reserved for functions;
			// struct/enum/module declarations never collide with it since
			// they register under their own identifiers.
			declareName(ctx, ns, declId, decl.Name, decl.Generics, declId.Node())

		case *ast.ModuleDecl:
			modNs := ctx.Namespaces.NewChild(ns, decl.Name.Id)
			ctx.DeclNamespace[declId] = modNs
			collectNamesInto(ctx, modNs, decl.Items)

		case *ast.ImplDecl, *ast.UseDecl:
			// Handled by CollectImpls / CollectUses respectively, once
			// every ordinary name has a pending id.

		default:
			_ = decl
		}
	}
}

// CollectImpls is pass 2: resolve each impl's target to its head
// symbol and fold the impl body's declared names into that symbol's own
// namespace, so `impl List<T> { fn push(...) }` adds `push` to `List`'s
// namespace rather than the enclosing scope's.
func CollectImpls(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	collectImplsInto(ctx, ctx.RootNamespace, ctx.Program.Decls)
	return ctx
}

func collectImplsInto(ctx *pipeline.PipelineContext, ns nsmap.NamespaceId, decls []ast.DeclId) {
	for _, declId := range decls {
		d := ctx.Program.Arena.Decl(declId)
		switch decl := d.(type) {
		case *ast.ModuleDecl:
			modNs := ctx.DeclNamespace[declId]
			collectImplsInto(ctx, modNs, decl.Items)

		case *ast.ImplDecl:
			targetSym, ok := resolveTypeHead(ctx, ns, decl.Target)
			if !ok {
				ctx.Fail(declId.Node(), diag.KindUnknownType, "")
				continue
			}
			if ctx.Symbols.Sym(targetSym).Tag != symtab.TagContainer {
				ctx.Fail(declId.Node(), diag.KindImplOnGeneric, "")
				continue
			}
			implNs := ctx.Namespaces.NewChild(ns, ctx.Symbols.Sym(targetSym).Path)
			ctx.DeclNamespace[declId] = implNs
			ctx.TypeMethodNs[targetSym] = implNs
			for _, itemId := range decl.Items {
				fd := ctx.Program.Arena.Decl(itemId).(*ast.FunctionDecl)
				declareName(ctx, implNs, itemId, fd.Name, fd.Generics, itemId.Node())
			}
		}
	}
}

// resolveTypeHead resolves a bare type name to its head SymbolId by
// walking ns then its ancestor chain is not needed here: impl targets are
// always written against names visible in ns directly (the enclosing
// module's own namespace), matching collect_names's registration scope.
func resolveTypeHead(ctx *pipeline.PipelineContext, ns nsmap.NamespaceId, t *ast.TypeExpr) (symtab.SymbolId, bool) {
	if t == nil || t.IsTuple {
		return 0, false
	}
	sym, ok, err := ctx.Namespaces.FindSym(ns, t.Name.Id)
	if err != nil || !ok {
		return 0, false
	}
	return sym, true
}

// CollectUses is pass 3: resolve `use` items in their declaring
// namespace. Three forms: a single name, a list a::(b, c, ...), or a glob
// a::*. A use naming an already-erroneous binding poisons the importing
// slot so the diagnostic keeps surfacing wherever the import is used.
func CollectUses(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	collectUsesInto(ctx, ctx.RootNamespace, ctx.Program.Decls)
	return ctx
}

func collectUsesInto(ctx *pipeline.PipelineContext, ns nsmap.NamespaceId, decls []ast.DeclId) {
	for _, declId := range decls {
		d := ctx.Program.Arena.Decl(declId)
		switch decl := d.(type) {
		case *ast.ModuleDecl:
			collectUsesInto(ctx, ctx.DeclNamespace[declId], decl.Items)

		case *ast.UseDecl:
			applyUse(ctx, ns, declId, decl)
		}
	}
}

// resolveQualifier walks segs as a chain of child-namespace lookups
// starting from the root namespace (use paths are always written against
// globally-visible module names).
func resolveQualifier(ctx *pipeline.PipelineContext, declId ast.DeclId, segs []ast.Name) (nsmap.NamespaceId, bool) {
	cur := ctx.RootNamespace
	for _, seg := range segs {
		child, ok := ctx.Namespaces.FindChild(cur, seg.Id)
		if !ok {
			ctx.Fail(declId.Node(), diag.KindNamespaceNotFound, ctx.Interner.String(seg.Id))
			return 0, false
		}
		cur = child
	}
	return cur, true
}

func applyUse(ctx *pipeline.PipelineContext, ns nsmap.NamespaceId, declId ast.DeclId, decl *ast.UseDecl) {
	switch decl.Kind {
	case ast.UseSingle:
		if len(decl.Path) == 0 {
			return
		}
		qualifier, name := decl.Path[:len(decl.Path)-1], decl.Path[len(decl.Path)-1]
		srcNs, ok := resolveQualifier(ctx, declId, qualifier)
		if !ok {
			return
		}
		if err := ctx.Namespaces.CopySymbol(ns, srcNs, name.Id); err != nil {
			if _, isConflict := err.(*nsmap.ConflictError); !isConflict {
				ctx.Fail(declId.Node(), diag.KindNamespaceNotFound, ctx.Interner.String(name.Id))
			}
		}

	case ast.UseList:
		srcNs, ok := resolveQualifier(ctx, declId, decl.Path)
		if !ok {
			return
		}
		for _, item := range decl.Items {
			if err := ctx.Namespaces.CopySymbol(ns, srcNs, item.Id); err != nil {
				if _, isConflict := err.(*nsmap.ConflictError); !isConflict {
					ctx.Fail(declId.Node(), diag.KindNamespaceNotFound, ctx.Interner.String(item.Id))
				}
			}
		}

	case ast.UseGlob:
		srcNs, ok := resolveQualifier(ctx, declId, decl.Path)
		if !ok {
			return
		}
		ctx.Namespaces.CopyAll(ns, srcNs)
	}
}
