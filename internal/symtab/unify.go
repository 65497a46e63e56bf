package symtab

import "fmt"

// InstantiateShallow follows a Var's substitution chain to its current end,
// compressing the chain in place so later lookups are O(1). Concrete types
// are returned unchanged.
func (m *SymbolMap) InstantiateShallow(t Ty) Ty {
	if !t.IsVar() {
		return t
	}
	var chain []VarId
	cur := t
	for cur.IsVar() {
		sub := m.vars[cur.Var].Substitution
		if sub == nil {
			break
		}
		chain = append(chain, cur.Var)
		cur = *sub
	}
	for _, v := range chain {
		final := cur
		m.vars[v].Substitution = &final
	}
	return cur
}

// Instantiate fully resolves t: every Var reachable through substitutions,
// including inside generic argument lists, is replaced by its current
// binding. Used before hashing a type for monomorphization, where no
// unresolved variable may survive.
func (m *SymbolMap) Instantiate(t Ty) Ty {
	t = m.InstantiateShallow(t)
	if t.IsVar() {
		return t
	}
	gens := m.GetGens(t.Gens)
	if len(gens) == 0 {
		return t
	}
	resolved := make([]GenEntry, len(gens))
	changed := false
	for i, g := range gens {
		rt := m.Instantiate(g.Type)
		resolved[i] = GenEntry{Name: g.Name, Type: rt}
		if rt != g.Type {
			changed = true
		}
	}
	if !changed {
		return t
	}
	return TyCon(t.Sym, m.AddGens(resolved))
}

func isPoisonTy(t Ty) bool {
	return !t.IsVar() && t.Sym.IsPoison()
}

// Eq is unification: it mutates unification variables in place (union-find
// with path compression) and reports whether a and b can be made equal.
// Rules, in order: poison absorbs anything; two concrete heads require the
// same SymbolId and pairwise-unifying generics (Tuple and Func heads carry
// their arity in the generic list itself, so the length check falls out of
// the ordinary comparison); Var(a) against Var(a) is trivially equal;
// Var(a) against a concrete or other-var T binds a, unifying with any
// existing substitution first, except that a non-poison T is allowed to
// overwrite an existing poison substitution.
func (m *SymbolMap) Eq(a, b Ty) (bool, error) {
	a = m.InstantiateShallow(a)
	b = m.InstantiateShallow(b)

	if !a.IsVar() && (a.Sym.IsPoison() || m.symbols[a.Sym].Poisoned) {
		return true, nil
	}
	if !b.IsVar() && (b.Sym.IsPoison() || m.symbols[b.Sym].Poisoned) {
		return true, nil
	}

	if a.IsVar() && b.IsVar() {
		if a.Var == b.Var {
			return true, nil
		}
		return m.bindVar(a.Var, b)
	}
	if a.IsVar() {
		return m.bindVar(a.Var, b)
	}
	if b.IsVar() {
		return m.bindVar(b.Var, a)
	}

	if a.Sym != b.Sym {
		return false, fmt.Errorf("type mismatch: %s vs %s", m.Display(a), m.Display(b))
	}

	agens := m.GetGens(a.Gens)
	bgens := m.GetGens(b.Gens)
	if len(agens) != len(bgens) {
		return false, fmt.Errorf("arity mismatch for %s: %d vs %d generics", m.Display(a), len(agens), len(bgens))
	}
	for i := range agens {
		ok, err := m.Eq(agens[i].Type, bgens[i].Type)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (m *SymbolMap) bindVar(v VarId, t Ty) (bool, error) {
	if existing := m.vars[v].Substitution; existing != nil {
		es := *existing
		if isPoisonTy(es) && !(t.IsVar() && t.Var == v) && !isPoisonTy(t) {
			if err := m.occursCheck(v, t); err != nil {
				return false, err
			}
			cp := t
			m.vars[v].Substitution = &cp
			return true, nil
		}
		return m.Eq(es, t)
	}
	if t.IsVar() && t.Var == v {
		return true, nil
	}
	if err := m.occursCheck(v, t); err != nil {
		return false, err
	}
	cp := t
	m.vars[v].Substitution = &cp
	return true, nil
}

// occursCheck rejects binding v to a type that transitively contains v,
// which would otherwise build an infinite type.
func (m *SymbolMap) occursCheck(v VarId, t Ty) error {
	t = m.InstantiateShallow(t)
	if t.IsVar() {
		if t.Var == v {
			return fmt.Errorf("infinite type: t%d occurs in its own substitution", v)
		}
		return nil
	}
	for _, g := range m.GetGens(t.Gens) {
		if err := m.occursCheck(v, g.Type); err != nil {
			return err
		}
	}
	return nil
}
