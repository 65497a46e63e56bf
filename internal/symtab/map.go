package symtab

import (
	"strings"

	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/srcrange"
)

// uvar holds one unification variable's union-find state.
type uvar struct {
	Substitution *Ty
	Rng          srcrange.Range
}

// SymbolMap owns every Symbol, every generic-list table entry, and every
// unification variable issued during one compilation. It is the single
// mutable record the analyzer threads through its passes.
type SymbolMap struct {
	interner *intern.Interner

	symbols []Symbol
	pending []bool // parallel to symbols: true until Bind is called

	genLists []genListEntryList
	genIndex map[string]GenListId

	vars []uvar
}

type genListEntryList []GenEntry

// New creates a SymbolMap with every primitive symbol pre-bound.
func New(interner *intern.Interner) *SymbolMap {
	m := &SymbolMap{
		interner: interner,
		genIndex: make(map[string]GenListId),
	}
	// Reserve GenListId 0 as EMPTY.
	m.genLists = append(m.genLists, nil)

	for id := SymbolId(0); id < firstUserSymbol; id++ {
		name := primitiveNames[id]
		strId := interner.Intern(name)
		sym := Symbol{Path: strId}
		switch id {
		case SymList:
			sym.Generics = []intern.StrId{interner.Intern("T")}
			sym.Tag = TagContainer
			sym.Container = &ContainerData{SubKind: ContainerStruct}
		case SymOption:
			// Option<T> is an ordinary two-variant enum: some carries T,
			// none carries Unit. Tag 0 is the success variant, which is
			// what the unwrap/try opcodes test for at runtime.
			t := interner.Intern("T")
			sym.Generics = []intern.StrId{t}
			sym.Tag = TagContainer
			sym.Container = &ContainerData{SubKind: ContainerEnum, Fields: []ContainerField{
				{Name: intern.Some, Type: Param(t, srcrange.Zero)},
				{Name: intern.None, Type: Concrete(SymUnit, nil, srcrange.Zero)},
			}}
		case SymResult:
			t := interner.Intern("T")
			e := interner.Intern("E")
			sym.Generics = []intern.StrId{t, e}
			sym.Tag = TagContainer
			sym.Container = &ContainerData{SubKind: ContainerEnum, Fields: []ContainerField{
				{Name: intern.Ok, Type: Param(t, srcrange.Zero)},
				{Name: intern.Err, Type: Param(e, srcrange.Zero)},
			}}
		case SymRange:
			start := interner.Intern("start")
			end := interner.Intern("end")
			sym.Tag = TagContainer
			sym.Container = &ContainerData{SubKind: ContainerStruct, Fields: []ContainerField{
				{Name: start, Type: Concrete(SymI64, nil, srcrange.Zero)},
				{Name: end, Type: Concrete(SymI64, nil, srcrange.Zero)},
			}}
		case SymUnit:
			sym.Tag = TagContainer
			sym.Container = &ContainerData{SubKind: ContainerTuple}
		case SymTuple, SymFunc:
			sym.Tag = TagOpaque
		default:
			sym.Tag = TagOpaque
		}
		m.symbols = append(m.symbols, sym)
		m.pending = append(m.pending, false)
	}
	return m
}

// Interner returns the SymbolMap's backing interner, so other packages
// (sema, ir) can intern and look up names against the same table.
func (m *SymbolMap) Interner() *intern.Interner { return m.interner }

// Pending reserves a fresh SymbolId for a name that is known to exist but
// whose shape hasn't been computed yet (cyclic/forward references). The
// id is valid to reference from anywhere immediately; Bind must be called
// before the symbol is read by a pass that needs its shape.
func (m *SymbolMap) Pending(path intern.StrId, genericNames []intern.StrId) SymbolId {
	id := SymbolId(len(m.symbols))
	m.symbols = append(m.symbols, Symbol{Path: path, Generics: genericNames})
	m.pending = append(m.pending, true)
	return id
}

// Bind finalizes a pending symbol's shape.
func (m *SymbolMap) Bind(id SymbolId, sym Symbol) {
	if sym.Generics == nil {
		sym.Generics = m.symbols[id].Generics
	}
	m.symbols[id] = sym
	m.pending[id] = false
}

// BindPoison finalizes a pending symbol as poisoned: downstream passes see
// a total Container-Struct symbol with zero fields and never need a nil
// check, but it is tagged Poisoned so unify() treats it as absorbing.
func (m *SymbolMap) BindPoison(id SymbolId) {
	path := m.symbols[id].Path
	gens := m.symbols[id].Generics
	m.Bind(id, Symbol{
		Path:      path,
		Generics:  gens,
		Tag:       TagContainer,
		Container: &ContainerData{SubKind: ContainerStruct},
		Poisoned:  true,
	})
}

// Sym returns the Symbol for id. It is valid to call even on a pending id
// (returns whatever shape has been set so far, zero value before Bind).
func (m *SymbolMap) Sym(id SymbolId) *Symbol {
	return &m.symbols[id]
}

// IsPending reports whether id has been reserved but not yet Bind-ed.
func (m *SymbolMap) IsPending(id SymbolId) bool {
	return m.pending[id]
}

// AddGens deduplicates a generic-argument list, returning the existing
// GenListId for structurally identical content when one exists.
func (m *SymbolMap) AddGens(entries []GenEntry) GenListId {
	if len(entries) == 0 {
		return EmptyGenList
	}
	key := m.genKey(entries)
	if id, ok := m.genIndex[key]; ok {
		return id
	}
	id := GenListId(len(m.genLists))
	cp := make(genListEntryList, len(entries))
	copy(cp, entries)
	m.genLists = append(m.genLists, cp)
	m.genIndex[key] = id
	return id
}

func (m *SymbolMap) genKey(entries []GenEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(m.interner.String(e.Name))
		b.WriteByte(':')
		b.WriteString(m.Display(e.Type))
		b.WriteByte(';')
	}
	return b.String()
}

// GetGens returns the resolved (paramName, Ty) pairs behind a GenListId.
func (m *SymbolMap) GetGens(id GenListId) []GenEntry {
	return m.genLists[id]
}

// NewVar allocates a fresh unification variable.
func (m *SymbolMap) NewVar(rng srcrange.Range) Ty {
	id := VarId(len(m.vars))
	m.vars = append(m.vars, uvar{Rng: rng})
	return TyVar(id)
}

// VarSubstitution returns v's current binding, or nil while v is still
// unbound. Codegen walks substitution chains manually (rather than via
// InstantiateShallow) when it needs to intercept a function body's own
// generic variables and replace them with one monomorphization's concrete
// types.
func (m *SymbolMap) VarSubstitution(v VarId) *Ty {
	return m.vars[v].Substitution
}

// GetTy is the constructor contract named in the design: build a concrete
// type from a known head symbol and a resolved generic list.
func (m *SymbolMap) GetTy(sym SymbolId, gens GenListId) Ty {
	return TyCon(sym, gens)
}
