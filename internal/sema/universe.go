package sema

import (
	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/nsmap"
	"github.com/margarine-lang/marginc/internal/pipeline"
	"github.com/margarine-lang/marginc/internal/srcrange"
	"github.com/margarine-lang/marginc/internal/symtab"
)

// seedUniverse registers what every program can see without declaring it:
// the primitive type names, and the four builtin enum constructors
// some/none/ok/err. It runs once per analysis, before pass 1, so user
// declarations that collide with a builtin surface as ordinary
// name-already-defined conflicts.
func seedUniverse(ctx *pipeline.PipelineContext) {
	in := ctx.Interner
	for name, sym := range symtab.NamedPrimitives() {
		// AddSym only errors on redefinition, impossible on a fresh root.
		_ = ctx.Namespaces.AddSym(nsmap.Root, in.Intern(name), sym)
	}

	t := in.Intern("T")
	e := in.Intern("E")
	optionTy := symtab.Concrete(symtab.SymOption,
		[]symtab.Generic{symtab.Param(t, srcrange.Zero)}, srcrange.Zero)
	resultTy := symtab.Concrete(symtab.SymResult,
		[]symtab.Generic{symtab.Param(t, srcrange.Zero), symtab.Param(e, srcrange.Zero)}, srcrange.Zero)

	ctor := func(name intern.StrId, gens []intern.StrId, args []symtab.FuncArg, ret symtab.Generic, parent symtab.SymbolId, variant int) {
		id := ctx.Symbols.Pending(name, gens)
		ctx.Symbols.Bind(id, symtab.Symbol{
			Path:     name,
			Generics: gens,
			Tag:      symtab.TagFunction,
			Function: &symtab.FunctionData{
				Args:             args,
				Return:           ret,
				Kind:             symtab.FuncEnum,
				EnumParent:       parent,
				EnumVariantIndex: variant,
			},
		})
		_ = ctx.Namespaces.AddSym(nsmap.Root, name, id)
	}

	ctor(intern.Some, []intern.StrId{t},
		[]symtab.FuncArg{{Name: t, Type: symtab.Param(t, srcrange.Zero)}},
		optionTy, symtab.SymOption, symtab.VariantSome)
	ctor(intern.None, []intern.StrId{t}, nil,
		optionTy, symtab.SymOption, symtab.VariantNone)
	ctor(intern.Ok, []intern.StrId{t, e},
		[]symtab.FuncArg{{Name: t, Type: symtab.Param(t, srcrange.Zero)}},
		resultTy, symtab.SymResult, symtab.VariantOk)
	ctor(intern.Err, []intern.StrId{t, e},
		[]symtab.FuncArg{{Name: e, Type: symtab.Param(e, srcrange.Zero)}},
		resultTy, symtab.SymResult, symtab.VariantErr)
}
