package symtab

import (
	"fmt"
	"strings"

	"github.com/margarine-lang/marginc/internal/intern"
)

// Ty is the type-system's sum type: a known head constructor applied to a
// generic-argument list, or an unresolved unification variable.
type Ty struct {
	isVar bool
	Sym   SymbolId  // valid when !IsVar()
	Gens  GenListId // valid when !IsVar()
	Var   VarId     // valid when IsVar()
}

func TyCon(sym SymbolId, gens GenListId) Ty {
	return Ty{Sym: sym, Gens: gens}
}

func TyVar(v VarId) Ty {
	return Ty{isVar: true, Var: v}
}

func (t Ty) IsVar() bool { return t.isVar }

// WellFormed checks Ty(s, g)'s invariant: len(gens(g)) == len(generics(s)).
func (m *SymbolMap) WellFormed(t Ty) bool {
	if t.IsVar() {
		return true
	}
	if t.Sym == SymTuple || t.Sym == SymFunc {
		return true // variable arity, see ids.go
	}
	sym := m.Sym(t.Sym)
	return len(m.GetGens(t.Gens)) == sym.NumGenerics()
}

// Display renders a type for diagnostics: tuples as "(a, b, c)",
// functions as "(a, b) -> r", every other constructor as "Name<...>"
// recursing through its instantiated generics (bare "Name" when it has
// none).
func (m *SymbolMap) Display(t Ty) string {
	t = m.InstantiateShallow(t)
	if t.IsVar() {
		if sub := m.vars[t.Var].Substitution; sub != nil {
			return m.Display(*sub)
		}
		return fmt.Sprintf("t%d", t.Var)
	}
	gens := m.GetGens(t.Gens)

	if t.Sym == SymTuple {
		parts := make([]string, len(gens))
		for i, g := range gens {
			parts[i] = m.Display(g.Type)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	if t.Sym == SymFunc {
		if len(gens) == 0 {
			return "() -> Unit"
		}
		parts := make([]string, len(gens)-1)
		for i := 0; i < len(gens)-1; i++ {
			parts[i] = m.Display(gens[i].Type)
		}
		return fmt.Sprintf("(%s) -> %s", strings.Join(parts, ", "), m.Display(gens[len(gens)-1].Type))
	}

	sym := m.Sym(t.Sym)
	name := m.interner.String(sym.Path)
	if len(gens) == 0 {
		return name
	}
	parts := make([]string, len(gens))
	for i, g := range gens {
		parts[i] = m.Display(g.Type)
	}
	return fmt.Sprintf("%s<%s>", name, strings.Join(parts, ", "))
}

// GenEntry is one resolved (paramName, Ty) pair inside a GenListId.
type GenEntry struct {
	Name intern.StrId
	Type Ty
}

// Subst resolves a declaration-time Generic into a concrete Ty given a
// binding environment from the declaring symbol's own parameter names to
// the Ty they're instantiated with at this call/use site. A Generic that
// names a parameter not present in env (the zero-generics EMPTY
// instantiation of a non-generic declaration) surfaces a fresh
// unification variable instead of panicking, since compute_types resolves
// signatures before any call site's instantiation is known.
func (m *SymbolMap) Subst(g Generic, env map[intern.StrId]Ty) Ty {
	if g.IsParam {
		if t, ok := env[g.ParamName]; ok {
			return t
		}
		return m.NewVar(g.Rng)
	}
	if len(g.Args) == 0 {
		return TyCon(g.Sym, EmptyGenList)
	}
	entries := make([]GenEntry, len(g.Args))
	paramNames := m.Sym(g.Sym).Generics
	for i, a := range g.Args {
		var name intern.StrId
		if i < len(paramNames) {
			name = paramNames[i]
		}
		entries[i] = GenEntry{Name: name, Type: m.Subst(a, env)}
	}
	return TyCon(g.Sym, m.AddGens(entries))
}
