package ir

import (
	"fmt"
	"hash/fnv"

	"github.com/margarine-lang/marginc/internal/ast"
	"github.com/margarine-lang/marginc/internal/bytecode"
	"github.com/margarine-lang/marginc/internal/diag"
	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/pipeline"
	"github.com/margarine-lang/marginc/internal/srcrange"
	"github.com/margarine-lang/marginc/internal/symtab"
)

// monoKey identifies one compiled body: the function symbol plus the
// structural hash of its concrete generic arguments (zero for
// non-generic functions; the enclosing monomorph's hash for closures).
type monoKey struct {
	sym  symtab.SymbolId
	hash uint64
}

type errKey struct {
	rng  srcrange.Range
	kind diag.Kind
}

type errRef struct {
	file  uint32
	index uint32
}

// Generator drives monomorphization: a work-list-free recursive fetch
// that inserts each new monomorph into the index before lowering its
// body, so recursive calls resolve to the in-progress function.
type Generator struct {
	ctx *pipeline.PipelineContext

	funcs     []*Function
	monoIndex map[monoKey]uint32

	closureExprs map[symtab.SymbolId]*ast.ClosureExpr

	strings   []string
	stringIdx map[string]uint32

	semaFiles [][]string
	errIndex  map[errKey]errRef
}

// Generate compiles every non-generic declared function (generic ones
// follow on demand as call sites reach them) and assembles the final
// image: function directory, error table, string table and code blob.
func Generate(ctx *pipeline.PipelineContext) (*bytecode.Image, error) {
	g := &Generator{
		ctx:          ctx,
		monoIndex:    make(map[monoKey]uint32),
		closureExprs: make(map[symtab.SymbolId]*ast.ClosureExpr),
		stringIdx:    make(map[string]uint32),
		errIndex:     make(map[errKey]errRef),
	}
	for exprId, sym := range ctx.TyInfo.ClosureSyms {
		g.closureExprs[sym] = ctx.Program.Arena.Expr(exprId).(*ast.ClosureExpr)
	}
	g.buildErrorTable()
	g.seed(ctx.Program.Decls)

	var code bytecode.Buffer
	entries := make([]bytecode.FuncEntry, len(g.funcs))
	for i, f := range g.funcs {
		e := bytecode.FuncEntry{
			Name:       f.Name,
			Argc:       uint8(f.Argc),
			RetTypeId:  f.RetTypeId,
			Cached:     f.Cached,
			ArgTypeIds: f.ArgTypeIds,
		}
		if f.Extern {
			e.Realization = bytecode.RealizeExtern
			e.ExternPath = f.ExternPath
		} else {
			body := f.serialize()
			e.Realization = bytecode.RealizeCode
			e.CodeOffset = uint32(code.Len())
			e.CodeLen = uint32(len(body))
			code.WriteBytes(body)
		}
		entries[i] = e
	}

	img := &bytecode.Image{
		FormatVersion: bytecode.FormatVersion,
		Funcs:         entries,
		Errors:        bytecode.ErrorTable{Sema: g.semaFiles},
		Strings:       g.strings,
		Code:          code.Bytes(),
	}
	return img, nil
}

// buildErrorTable lays recorded diagnostics out as the image's sema
// section, per file in source order, and remembers each one's (file,
// index) so Err terminators can reference it.
func (g *Generator) buildErrorTable() {
	diags := g.ctx.Diagnostics.List()
	maxFile := uint32(0)
	for _, d := range diags {
		if d.Rng.File > maxFile {
			maxFile = d.Rng.File
		}
	}
	if len(diags) == 0 {
		return
	}
	g.semaFiles = make([][]string, maxFile+1)
	for _, d := range diags {
		file := d.Rng.File
		ref := errRef{file: file, index: uint32(len(g.semaFiles[file]))}
		g.semaFiles[file] = append(g.semaFiles[file], d.Error())
		key := errKey{rng: d.Rng, kind: d.Kind}
		if _, seen := g.errIndex[key]; !seen {
			g.errIndex[key] = ref
		}
	}
}

func (g *Generator) seed(decls []ast.DeclId) {
	for _, declId := range decls {
		switch decl := g.ctx.Program.Arena.Decl(declId).(type) {
		case *ast.FunctionDecl:
			g.seedFunction(declId)
		case *ast.ModuleDecl:
			g.seed(decl.Items)
		case *ast.ImplDecl:
			for _, item := range decl.Items {
				g.seedFunction(item)
			}
		}
	}
}

func (g *Generator) seedFunction(declId ast.DeclId) {
	sym, ok := g.ctx.DeclSymbols[declId]
	if !ok {
		return
	}
	s := g.ctx.Symbols.Sym(sym)
	if s.Tag != symtab.TagFunction || s.Function == nil || len(s.Generics) > 0 || s.Poisoned {
		return
	}
	g.fetch(sym, nil)
}

// internString returns the constant-table index for s, appending it on
// first use.
func (g *Generator) internString(s string) uint32 {
	if idx, ok := g.stringIdx[s]; ok {
		return idx
	}
	idx := uint32(len(g.strings))
	g.strings = append(g.strings, s)
	g.stringIdx[s] = idx
	return idx
}

// resolveTy turns an inference-time type into the concrete type of the
// current monomorphization: the body's own generic variables map through
// subst, any other substitution chain is followed, and a variable left
// unbound after inference (nothing ever constrained it) defaults to Unit.
func (g *Generator) resolveTy(t symtab.Ty, subst map[symtab.VarId]symtab.Ty) symtab.Ty {
	m := g.ctx.Symbols
	for t.IsVar() {
		if mapped, ok := subst[t.Var]; ok {
			t = mapped
			continue
		}
		s := m.VarSubstitution(t.Var)
		if s == nil {
			return symtab.TyCon(symtab.SymUnit, symtab.EmptyGenList)
		}
		t = *s
	}
	gens := m.GetGens(t.Gens)
	if len(gens) == 0 {
		return t
	}
	entries := make([]symtab.GenEntry, len(gens))
	for i, e := range gens {
		entries[i] = symtab.GenEntry{Name: e.Name, Type: g.resolveTy(e.Type, subst)}
	}
	return symtab.TyCon(t.Sym, m.AddGens(entries))
}

func (g *Generator) typeId(t symtab.Ty, subst map[symtab.VarId]symtab.Ty) uint32 {
	h, err := g.ctx.Symbols.HashEx(g.resolveTy(t, subst))
	if err != nil {
		return 0
	}
	return uint32(h)
}

// gensHash keys a monomorphization by the structural hash of its
// concrete generic arguments. Entries must already be resolved.
func (g *Generator) gensHash(resolved []symtab.GenEntry) uint64 {
	if len(resolved) == 0 {
		return 0
	}
	h := fnv.New64a()
	for _, e := range resolved {
		th, err := g.ctx.Symbols.HashEx(e.Type)
		if err != nil {
			th = 0
		}
		fmt.Fprintf(h, "%016x;", th)
	}
	return h.Sum64()
}

// resolveGens maps one recorded call instantiation through the caller's
// substitution, producing the concrete generic arguments the callee is
// fetched with.
func (g *Generator) resolveGens(gens symtab.GenListId, subst map[symtab.VarId]symtab.Ty) []symtab.GenEntry {
	src := g.ctx.Symbols.GetGens(gens)
	if len(src) == 0 {
		return nil
	}
	out := make([]symtab.GenEntry, len(src))
	for i, e := range src {
		out[i] = symtab.GenEntry{Name: e.Name, Type: g.resolveTy(e.Type, subst)}
	}
	return out
}

// fetch returns the directory index of sym monomorphized at the given
// concrete generic arguments, compiling the body first if this
// instantiation has not been seen. The index is registered before the
// body is lowered so recursion terminates.
func (g *Generator) fetch(sym symtab.SymbolId, resolved []symtab.GenEntry) uint32 {
	hash := g.gensHash(resolved)
	key := monoKey{sym: sym, hash: hash}
	if idx, ok := g.monoIndex[key]; ok {
		return idx
	}

	s := g.ctx.Symbols.Sym(sym)
	fn := s.Function
	name := g.ctx.Interner.String(s.Path)
	if len(resolved) > 0 {
		name = fmt.Sprintf("%s$%08x", name, uint32(hash))
	}

	var subst map[symtab.VarId]symtab.Ty
	if len(resolved) > 0 && s.HasDeclRf {
		if genVars, ok := g.ctx.FnGenVars[s.DeclRef]; ok {
			subst = make(map[symtab.VarId]symtab.Ty, len(resolved))
			for _, e := range resolved {
				if v, has := genVars[e.Name]; has {
					subst[v] = e.Type
				}
			}
		}
	}

	env := make(map[intern.StrId]symtab.Ty, len(resolved))
	for _, e := range resolved {
		env[e.Name] = e.Type
	}

	f := &Function{
		Name:   name,
		Sym:    sym,
		Argc:   len(fn.Args),
		Cached: fn.Cached,
	}
	f.TotalLocals = f.Argc
	f.RetTypeId = g.typeId(g.ctx.Symbols.Subst(fn.Return, env), subst)
	f.ArgTypeIds = make([]uint32, len(fn.Args))
	for i, a := range fn.Args {
		f.ArgTypeIds[i] = g.typeId(g.ctx.Symbols.Subst(a.Type, env), subst)
	}

	idx := uint32(len(g.funcs))
	g.funcs = append(g.funcs, f)
	g.monoIndex[key] = idx

	switch fn.Kind {
	case symtab.FuncExtern:
		f.Extern = true
		f.ExternPath = fn.ExternPath

	case symtab.FuncEnum:
		g.lowerEnumCtor(f, fn)

	default:
		if !s.HasDeclRf {
			g.lowerPoisonBody(f)
			break
		}
		decl, ok := g.ctx.Program.Arena.Decl(s.DeclRef).(*ast.FunctionDecl)
		if !ok {
			g.lowerPoisonBody(f)
			break
		}
		params := make([]intern.StrId, len(fn.Args))
		for i, a := range fn.Args {
			params[i] = a.Name
		}
		g.lowerFunction(f, decl.Body, params, subst, hash)
	}
	return idx
}

// fetchClosure compiles a closure's lowered top-level function: declared
// parameters first, captured variables as trailing parameters. Closures
// are keyed by their enclosing monomorph's hash, since their body types
// resolve through the enclosing function's substitution.
func (g *Generator) fetchClosure(sym symtab.SymbolId, subst map[symtab.VarId]symtab.Ty, parentHash uint64) uint32 {
	key := monoKey{sym: sym, hash: parentHash}
	if idx, ok := g.monoIndex[key]; ok {
		return idx
	}

	s := g.ctx.Symbols.Sym(sym)
	fn := s.Function
	name := g.ctx.Interner.String(s.Path)
	if parentHash != 0 {
		name = fmt.Sprintf("%s$%08x", name, uint32(parentHash))
	}

	f := &Function{
		Name: name,
		Sym:  sym,
		Argc: len(fn.Args) + len(fn.Captures),
	}
	f.TotalLocals = f.Argc
	f.ArgTypeIds = make([]uint32, f.Argc)
	for i, cpt := range fn.Captures {
		f.ArgTypeIds[len(fn.Args)+i] = g.typeId(cpt.Type, subst)
	}

	idx := uint32(len(g.funcs))
	g.funcs = append(g.funcs, f)
	g.monoIndex[key] = idx

	clo := g.closureExprs[sym]
	params := make([]intern.StrId, 0, f.Argc)
	for _, a := range fn.Args {
		params = append(params, a.Name)
	}
	for _, cpt := range fn.Captures {
		params = append(params, cpt.Name)
	}
	g.lowerFunction(f, clo.Body, params, subst, parentHash)
	return idx
}

// lowerEnumCtor synthesizes a variant constructor body: an enum value is
// a two-field struct of tag then payload (Unit for payload-less
// variants).
func (g *Generator) lowerEnumCtor(f *Function, fn *symtab.FunctionData) {
	entry := f.newBlock()
	b := f.Blocks[entry]
	b.Code.WriteOp(bytecode.OpPushLocalSpace)
	b.Code.WriteU8(0)
	b.Code.WriteOp(bytecode.OpConstInt)
	b.Code.WriteI64(int64(fn.EnumVariantIndex))
	if len(fn.Args) == 1 {
		b.Code.WriteOp(bytecode.OpLoad)
		b.Code.WriteU8(0)
	} else {
		b.Code.WriteOp(bytecode.OpUnit)
	}
	b.Code.WriteOp(bytecode.OpCreateStruct)
	b.Code.WriteU8(2)
	b.Term = Terminator{Kind: TermRet}
}

// lowerPoisonBody emits a body that faults immediately; it stands in for
// declarations analysis poisoned badly enough that no body can be built.
func (g *Generator) lowerPoisonBody(f *Function) {
	entry := f.newBlock()
	f.Blocks[entry].Term = Terminator{Kind: TermErr, ErrSection: uint8(diag.SectionSema)}
}
