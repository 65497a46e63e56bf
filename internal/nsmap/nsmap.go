// Package nsmap is the namespace map: a tree of named scopes, each holding
// a flat table of symbol bindings and a table of child namespaces. It
// backs the analyzer's name-collection passes:
// every declared type, function, and module gets registered here before
// compute_types ever runs.
package nsmap

import (
	"fmt"

	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/symtab"
)

// NamespaceId is a dense index into a Map's namespace arena.
type NamespaceId uint32

// Binding is a namespace's entry for one name: either a resolved symbol or
// a sticky conflict. Once IsError is true the entry never reverts — every
// later add attempt on the same name re-reports the conflict instead of
// silently overwriting a real binding with an error, or an error with a
// later-arriving real binding.
type Binding struct {
	Sym     symtab.SymbolId
	IsError bool
}

// ConflictError is returned by AddSym (and by lookups of an already-sticky
// name) whenever a name collides with one already recorded in the same
// namespace.
type ConflictError struct {
	Name    string
	NsPath  string
}

func (e *ConflictError) Error() string {
	if e.NsPath == "" {
		return fmt.Sprintf("name %q already defined in this namespace", e.Name)
	}
	return fmt.Sprintf("name %q already defined in namespace %q", e.Name, e.NsPath)
}

// Namespace is one node of the tree: a path segment, its own symbol
// bindings, and references to nested namespaces (nested modules, or impl
// blocks folded into their target type's namespace).
type Namespace struct {
	Path     intern.StrId
	Symbols  map[intern.StrId]Binding
	Children map[intern.StrId]NamespaceId
}

// Map owns every Namespace allocated during one compilation. Namespace 0
// is always the root, created by New.
type Map struct {
	interner   *intern.Interner
	namespaces []Namespace
}

// New creates a Map with a single root namespace already allocated.
func New(interner *intern.Interner) *Map {
	m := &Map{interner: interner}
	m.newNamespace(interner.Intern(""))
	return m
}

// Root is the NamespaceId of the top-level namespace.
const Root NamespaceId = 0

func (m *Map) newNamespace(path intern.StrId) NamespaceId {
	id := NamespaceId(len(m.namespaces))
	m.namespaces = append(m.namespaces, Namespace{
		Path:     path,
		Symbols:  make(map[intern.StrId]Binding),
		Children: make(map[intern.StrId]NamespaceId),
	})
	return id
}

// NewChild allocates a fresh namespace and immediately parents it under
// parent via name. If name already names a child, the existing child is
// returned instead (reopening a module/impl namespace across declarations
// is ordinary and not a conflict).
func (m *Map) NewChild(parent NamespaceId, name intern.StrId) NamespaceId {
	p := m.Ns(parent)
	if existing, ok := p.Children[name]; ok {
		return existing
	}
	id := m.newNamespace(name)
	p.Children[name] = id
	return id
}

// Ns returns the namespace record for id.
func (m *Map) Ns(id NamespaceId) *Namespace {
	return &m.namespaces[id]
}

// GetDouble returns mutable handles to two namespaces at once. In the
// source language this exists because the borrow checker won't hand out
// two mutable references into the same arena; Go has no such restriction,
// so this is a thin convenience kept for symmetry with the use-clause
// copying code that names both a source and destination namespace
// together (see DESIGN.md).
func (m *Map) GetDouble(a, b NamespaceId) (*Namespace, *Namespace) {
	return &m.namespaces[a], &m.namespaces[b]
}

// AddSym binds name to sym in ns. A name collision sets the binding
// sticky-erroneous and returns a ConflictError; sym is not recorded, and
// every later FindSym of name reports the conflict.
func (m *Map) AddSym(id NamespaceId, name intern.StrId, sym symtab.SymbolId) error {
	ns := m.Ns(id)
	if _, exists := ns.Symbols[name]; exists {
		ns.Symbols[name] = Binding{IsError: true}
		return &ConflictError{Name: m.interner.String(name), NsPath: m.interner.String(ns.Path)}
	}
	ns.Symbols[name] = Binding{Sym: sym}
	return nil
}

// FindSym looks up name directly in ns (no parent walk — that's scope's
// job). ok reports whether any binding, error or not, was recorded.
func (m *Map) FindSym(id NamespaceId, name intern.StrId) (sym symtab.SymbolId, ok bool, err error) {
	ns := m.Ns(id)
	b, exists := ns.Symbols[name]
	if !exists {
		return 0, false, nil
	}
	if b.IsError {
		return 0, true, &ConflictError{Name: m.interner.String(name), NsPath: m.interner.String(ns.Path)}
	}
	return b.Sym, true, nil
}

// FindChild looks up a nested namespace by name directly in ns.
func (m *Map) FindChild(id NamespaceId, name intern.StrId) (NamespaceId, bool) {
	ns := m.Ns(id)
	child, ok := ns.Children[name]
	return child, ok
}

// CopySymbol implements a single import (`a::b`) or one entry of a
// list-import (`a::(b, c, ...)`): it copies src's binding for name into dst under
// the same name. If src's binding is itself sticky-erroneous, the
// importing slot is poisoned too rather than silently dropped, so the
// diagnostic about the original conflict still surfaces wherever the
// import is used.
func (m *Map) CopySymbol(dst, src NamespaceId, name intern.StrId) error {
	dstNs, srcNs := m.GetDouble(dst, src)
	b, ok := srcNs.Symbols[name]
	if !ok {
		return fmt.Errorf("namespace %q has no symbol %q", m.interner.String(srcNs.Path), m.interner.String(name))
	}
	if b.IsError {
		dstNs.Symbols[name] = Binding{IsError: true}
		return &ConflictError{Name: m.interner.String(name), NsPath: m.interner.String(srcNs.Path)}
	}
	dstNs.Symbols[name] = b
	return nil
}

// CopyAll implements a glob-import (`a::*`): every symbol binding and
// every child namespace reference in src is copied into dst. Sticky
// errors are poisoned through exactly like CopySymbol.
func (m *Map) CopyAll(dst, src NamespaceId) []error {
	dstNs, srcNs := m.GetDouble(dst, src)
	var errs []error
	for name, b := range srcNs.Symbols {
		if b.IsError {
			dstNs.Symbols[name] = Binding{IsError: true}
			errs = append(errs, &ConflictError{Name: m.interner.String(name), NsPath: m.interner.String(srcNs.Path)})
			continue
		}
		dstNs.Symbols[name] = b
	}
	for name, child := range srcNs.Children {
		dstNs.Children[name] = child
	}
	return errs
}
