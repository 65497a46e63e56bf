package pipeline

import (
	"github.com/margarine-lang/marginc/internal/ast"
	"github.com/margarine-lang/marginc/internal/diag"
	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/nsmap"
	"github.com/margarine-lang/marginc/internal/scope"
	"github.com/margarine-lang/marginc/internal/srcrange"
	"github.com/margarine-lang/marginc/internal/symtab"
)

// Processor is one stage of a Pipeline. It receives the running context,
// does its work against the mutable state hanging off it, and returns the
// (usually identical) context for the next stage.
type Processor interface {
	Process(ctx *PipelineContext) *PipelineContext
}

// ProcessorFunc adapts a plain function to Processor.
type ProcessorFunc func(ctx *PipelineContext) *PipelineContext

func (f ProcessorFunc) Process(ctx *PipelineContext) *PipelineContext { return f(ctx) }

// PipelineContext is the single mutable record threaded through every
// analyzer pass, so the symbol map, namespaces, and errors travel as one
// record instead of as separate parameters on every function.
type PipelineContext struct {
	Program *ast.Program

	Interner    *intern.Interner
	Symbols     *symtab.SymbolMap
	Namespaces  *nsmap.Map
	Scopes      *scope.Stack
	Diagnostics *diag.Bag

	TyInfo *TyInfo

	// RootNamespace is the namespace collect_names registers this
	// program's top-level declarations into.
	RootNamespace nsmap.NamespaceId

	// DeclSymbols records which SymbolId collect_names reserved for each
	// declaration, so later passes (collect_impls, compute_types) can
	// look up a decl's own symbol without re-walking the namespace tree.
	DeclSymbols map[ast.DeclId]symtab.SymbolId

	// DeclNamespace records which namespace a FunctionDecl/StructDecl/
	// EnumDecl/ModuleDecl/ImplDecl's own body resolves names against —
	// for a module or impl this is the child namespace collect_names (or
	// collect_impls) opened for it.
	DeclNamespace map[ast.DeclId]nsmap.NamespaceId

	// TypeMethodNs maps a struct/enum symbol to the namespace its own
	// methods and (for enums) variant constructors live in — the
	// namespace collect_names opens for an enum, or the one collect_impls
	// opens (or reopens) the first time an `impl` targets that symbol.
	TypeMethodNs map[symtab.SymbolId]nsmap.NamespaceId

	// FnGenVars records, for each function declaration, the unification
	// variable allocated for each of its generic parameters while its
	// body was checked. Codegen substitutes these per monomorphization:
	// fetching fib<i64> maps fib's own T-variable to i64 before lowering,
	// so types consulted inside the body come out concrete.
	FnGenVars map[ast.DeclId]map[intern.StrId]symtab.VarId

	// ErrNodes marks every AST node a pass recorded a diagnostic against.
	// Codegen reads this directly to decide where to emit Err terminators
	// instead of re-deriving it from Diagnostics.
	ErrNodes map[ast.NodeId]diag.Kind
}

// FailRange records a diagnostic against a bare source range, for
// failures with no single AST node to blame (a type written inline in a
// body, say). No Err terminator is derived from these.
func (c *PipelineContext) FailRange(rng srcrange.Range, kind diag.Kind, detail string, notes ...diag.Note) {
	c.Diagnostics.Add(diag.New(kind, rng, detail, notes...))
}

// Fail records a diagnostic against node and marks node as erroneous so
// codegen can later translate it into a runtime Err terminator. Analysis
// never stops because of this — the caller is expected to keep walking
// and substitute a poisoned Ty (symtab.SymError) as the node's type.
func (c *PipelineContext) Fail(node ast.NodeId, kind diag.Kind, detail string, notes ...diag.Note) {
	rng := c.Program.Arena.Range(node)
	c.Diagnostics.Add(diag.New(kind, rng, detail, notes...))
	c.ErrNodes[node] = kind
}

// TyInfo is the analyzer's output: a node -> type map and a call-node ->
// resolved-callee map, alongside the symbol map it was computed against.
type TyInfo struct {
	ExprTypes map[ast.ExprId]symtab.Ty

	// CallTargets resolves each CallExpr to the symbol actually invoked
	// and the generic list it was instantiated with (monomorphization
	// reads this directly rather than re-resolving the callee). Ident
	// expressions that name a function used as a value (a function
	// reference) are recorded here too, keyed by the ident's own id.
	CallTargets map[ast.ExprId]CallTarget

	// ClosureSyms maps each ClosureExpr to the Closure function symbol
	// the checker allocated for it; the symbol's FunctionData carries the
	// captures codegen appends as trailing arguments.
	ClosureSyms map[ast.ExprId]symtab.SymbolId

	// ForNext maps each for-statement to the resolved next() method of
	// its iterable, so lowering can call it without redoing lookup.
	ForNext map[ast.StmtId]CallTarget
}

// CallTarget is the resolved callee of one CallExpr.
type CallTarget struct {
	Sym  symtab.SymbolId
	Gens symtab.GenListId
}

// NewContext builds a fresh PipelineContext over program, allocating a
// root namespace and an empty TyInfo.
func NewContext(program *ast.Program, interner *intern.Interner, symbols *symtab.SymbolMap, namespaces *nsmap.Map) *PipelineContext {
	return &PipelineContext{
		Program:     program,
		Interner:    interner,
		Symbols:     symbols,
		Namespaces:  namespaces,
		Scopes:      scope.New(),
		Diagnostics: diag.NewBag(),
		TyInfo: &TyInfo{
			ExprTypes:   make(map[ast.ExprId]symtab.Ty),
			CallTargets: make(map[ast.ExprId]CallTarget),
			ClosureSyms: make(map[ast.ExprId]symtab.SymbolId),
			ForNext:     make(map[ast.StmtId]CallTarget),
		},
		RootNamespace: nsmap.Root,
		DeclSymbols:   make(map[ast.DeclId]symtab.SymbolId),
		FnGenVars:     make(map[ast.DeclId]map[intern.StrId]symtab.VarId),
		DeclNamespace: make(map[ast.DeclId]nsmap.NamespaceId),
		TypeMethodNs:  make(map[symtab.SymbolId]nsmap.NamespaceId),
		ErrNodes:      make(map[ast.NodeId]diag.Kind),
	}
}
