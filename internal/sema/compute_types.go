package sema

import (
	"github.com/margarine-lang/marginc/internal/ast"
	"github.com/margarine-lang/marginc/internal/diag"
	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/nsmap"
	"github.com/margarine-lang/marginc/internal/pipeline"
	"github.com/margarine-lang/marginc/internal/srcrange"
	"github.com/margarine-lang/marginc/internal/symtab"
)

// ComputeTypes is pass 4: every name now has a symbol id, so field
// types, function signatures and enum variant payloads can finally be
// resolved. Enum variants additionally get a constructor Function symbol
// bound here (Kind = FuncEnum).
func ComputeTypes(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	computeTypesOver(ctx, ctx.RootNamespace, ctx.Program.Decls)
	return ctx
}

func computeTypesOver(ctx *pipeline.PipelineContext, ns nsmap.NamespaceId, decls []ast.DeclId) {
	for _, declId := range decls {
		d := ctx.Program.Arena.Decl(declId)
		switch decl := d.(type) {
		case *ast.StructDecl:
			computeStruct(ctx, ns, declId, decl)
		case *ast.EnumDecl:
			computeEnum(ctx, ns, declId, decl)
		case *ast.FunctionDecl:
			computeFunction(ctx, ns, declId, decl)
		case *ast.ModuleDecl:
			computeTypesOver(ctx, ctx.DeclNamespace[declId], decl.Items)
		case *ast.ImplDecl:
			computeImpl(ctx, declId, decl)
		}
	}
}

func computeStruct(ctx *pipeline.PipelineContext, ns nsmap.NamespaceId, declId ast.DeclId, decl *ast.StructDecl) {
	sym := ctx.DeclSymbols[declId]
	params := paramSet(decl.Generics)
	fields := make([]symtab.ContainerField, len(decl.Fields))
	for i, f := range decl.Fields {
		g, ok := resolveTypeExpr(ctx, ns, params, f.Type)
		if !ok {
			ctx.Fail(declId.Node(), diag.KindUnknownType, ctx.Interner.String(f.Name.Id))
		}
		fields[i] = symtab.ContainerField{Name: f.Name.Id, Type: g}
	}
	subKind := symtab.ContainerStruct
	if decl.SubKind == ast.SubKindTuple {
		subKind = symtab.ContainerTuple
	}
	ctx.Symbols.Bind(sym, symtab.Symbol{
		Path:      decl.Name.Id,
		Generics:  genericNames(ctx.Interner, decl.Generics),
		Tag:       symtab.TagContainer,
		Container: &symtab.ContainerData{SubKind: subKind, Fields: fields},
		DeclRef:   declId,
		HasDeclRf: true,
	})
}

func computeEnum(ctx *pipeline.PipelineContext, ns nsmap.NamespaceId, declId ast.DeclId, decl *ast.EnumDecl) {
	enumSym := ctx.DeclSymbols[declId]
	enumNs := ctx.DeclNamespace[declId]
	params := paramSet(decl.Generics)

	fields := make([]symtab.ContainerField, len(decl.Variants))
	for i, v := range decl.Variants {
		var payload symtab.Generic
		if v.Payload != nil {
			g, ok := resolveTypeExpr(ctx, ns, params, v.Payload)
			if !ok {
				ctx.Fail(declId.Node(), diag.KindUnknownType, ctx.Interner.String(v.Name.Id))
			}
			payload = g
		} else {
			payload = symtab.Concrete(symtab.SymUnit, nil, srcrange.Zero)
		}
		fields[i] = symtab.ContainerField{Name: v.Name.Id, Type: payload}
	}

	ctx.Symbols.Bind(enumSym, symtab.Symbol{
		Path:      decl.Name.Id,
		Generics:  genericNames(ctx.Interner, decl.Generics),
		Tag:       symtab.TagContainer,
		Container: &symtab.ContainerData{SubKind: symtab.ContainerEnum, Fields: fields},
		DeclRef:   declId,
		HasDeclRf: true,
	})

	genericArgs := make([]symtab.Generic, len(decl.Generics))
	for i, gname := range decl.Generics {
		genericArgs[i] = symtab.Param(gname.Id, gname.Rng)
	}
	returnTy := symtab.Concrete(enumSym, genericArgs, decl.Rng)

	for i, v := range decl.Variants {
		variantSym, ok, _ := ctx.Namespaces.FindSym(enumNs, v.Name.Id)
		if !ok {
			continue
		}
		var args []symtab.FuncArg
		if v.Payload != nil {
			args = []symtab.FuncArg{{Name: v.Name.Id, Type: fields[i].Type}}
		}
		ctx.Symbols.Bind(variantSym, symtab.Symbol{
			Path:     v.Name.Id,
			Generics: genericNames(ctx.Interner, decl.Generics),
			Tag:      symtab.TagFunction,
			Function: &symtab.FunctionData{
				Args:             args,
				Return:           returnTy,
				Kind:             symtab.FuncEnum,
				EnumParent:       enumSym,
				EnumVariantIndex: i,
			},
		})
	}
}

func computeFunction(ctx *pipeline.PipelineContext, ns nsmap.NamespaceId, declId ast.DeclId, decl *ast.FunctionDecl) {
	sym := ctx.DeclSymbols[declId]
	params := paramSet(decl.Generics)

	args := make([]symtab.FuncArg, len(decl.Params))
	for i, p := range decl.Params {
		g, ok := resolveTypeExpr(ctx, ns, params, p.Type)
		if !ok {
			ctx.Fail(declId.Node(), diag.KindUnknownType, ctx.Interner.String(p.Name.Id))
		}
		args[i] = symtab.FuncArg{Name: p.Name.Id, Type: g}
	}
	var ret symtab.Generic
	if decl.Return != nil {
		g, ok := resolveTypeExpr(ctx, ns, params, decl.Return)
		if !ok {
			ctx.Fail(declId.Node(), diag.KindUnknownType, "")
		}
		ret = g
	} else {
		ret = symtab.Concrete(symtab.SymUnit, nil, decl.Rng)
	}

	kind := symtab.FuncUserDefined
	if decl.IsExtern {
		kind = symtab.FuncExtern
	}
	ctx.Symbols.Bind(sym, symtab.Symbol{
		Path:     decl.Name.Id,
		Generics: genericNames(ctx.Interner, decl.Generics),
		Tag:      symtab.TagFunction,
		Function: &symtab.FunctionData{
			Args:       args,
			Return:     ret,
			Kind:       kind,
			ExternPath: decl.ExternPath,
			Cached:     decl.HasAttribute(cacheAttrName(ctx)),
		},
		DeclRef:   declId,
		HasDeclRf: true,
	})
}

// cacheAttrName returns the interned "cache" attribute name functions are
// tagged with to opt into the per-function result cache.
func cacheAttrName(ctx *pipeline.PipelineContext) ast.Name {
	return ast.Name{Id: ctx.Interner.Intern("cache")}
}

// startupAttrName returns the interned "startup" attribute name. Nothing
// consults it: codegen seeds monomorphization from every non-generic
// function, whether or not it carries the attribute.
func startupAttrName(ctx *pipeline.PipelineContext) ast.Name {
	return ast.Name{Id: ctx.Interner.Intern("startup")}
}

func computeImpl(ctx *pipeline.PipelineContext, declId ast.DeclId, decl *ast.ImplDecl) {
	implNs, ok := ctx.DeclNamespace[declId]
	if !ok {
		return
	}
	params := paramSet(decl.Generics)
	targetGen, ok2 := resolveTypeExpr(ctx, ctx.RootNamespace, params, decl.Target)
	if !ok2 {
		return
	}
	for _, itemId := range decl.Items {
		fd := ctx.Program.Arena.Decl(itemId).(*ast.FunctionDecl)
		computeMethod(ctx, implNs, itemId, fd, decl.Generics, targetGen)
	}
}

// computeMethod resolves one impl method's signature with both the
// impl's own generics and the method's own generics in scope for param
// lookup, mirroring collect_impls folding methods into the target's
// namespace, with the impl's own generic list in scope alongside the
// method's.
func computeMethod(ctx *pipeline.PipelineContext, implNs nsmap.NamespaceId, declId ast.DeclId, decl *ast.FunctionDecl, implGenerics []ast.Name, targetGen symtab.Generic) {
	sym := ctx.DeclSymbols[declId]
	params := paramSet(implGenerics)
	for k := range paramSet(decl.Generics) {
		params[k] = true
	}

	args := make([]symtab.FuncArg, len(decl.Params))
	for i, p := range decl.Params {
		if p.Name.Id == intern.Self && p.Type == nil {
			args[i] = symtab.FuncArg{Name: p.Name.Id, Type: targetGen}
			continue
		}
		g, ok := resolveTypeExpr(ctx, implNs, params, p.Type)
		if !ok {
			ctx.Fail(declId.Node(), diag.KindUnknownType, ctx.Interner.String(p.Name.Id))
		}
		args[i] = symtab.FuncArg{Name: p.Name.Id, Type: g}
	}
	var ret symtab.Generic
	if decl.Return != nil {
		g, ok := resolveTypeExpr(ctx, implNs, params, decl.Return)
		if !ok {
			ctx.Fail(declId.Node(), diag.KindUnknownType, "")
		}
		ret = g
	} else {
		ret = symtab.Concrete(symtab.SymUnit, nil, decl.Rng)
	}
	allGenerics := append(append([]ast.Name{}, implGenerics...), decl.Generics...)
	ctx.Symbols.Bind(sym, symtab.Symbol{
		Path:     decl.Name.Id,
		Generics: genericNames(ctx.Interner, allGenerics),
		Tag:      symtab.TagFunction,
		Function: &symtab.FunctionData{
			Args:   args,
			Return: ret,
			Kind:   symtab.FuncUserDefined,
			Cached: decl.HasAttribute(cacheAttrName(ctx)),
		},
		DeclRef:   declId,
		HasDeclRf: true,
	})
}
