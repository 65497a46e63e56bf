// Package scope is the lexical scope stack: a linked chain of immutable
// records threaded by parent id. Creating a scope is O(1) — it
// never copies the parent chain — and shadowing falls out automatically
// because lookups walk from the tip and stop at the first match.
package scope

import (
	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/nsmap"
	"github.com/margarine-lang/marginc/internal/symtab"
)

// Id indexes a Scope in a Stack's arena. The first scope pushed gets id
// 0, so whether an Id is present is carried by a separate hasParent/hasId
// flag rather than by a reserved zero value.
type Id uint32

// Kind discriminates what a Scope records. Exactly one of the payload
// fields below is meaningful per Kind.
type Kind uint8

const (
	KindVariable Kind = iota
	KindGenerics
	KindFunction
	KindLoop
	KindClosure
	KindImplicitNamespace
	KindExplicitNamespace
	KindImportSymbol
	KindImportFunction
)

// Scope is an immutable record: once pushed it is never mutated, only
// shadowed by a child pushed on top of it.
type Scope struct {
	Parent   Id
	HasParent bool
	Kind     Kind

	// KindVariable
	VarName intern.StrId
	VarTy   symtab.Ty

	// KindGenerics
	GenericNames []intern.StrId

	// KindFunction
	ReturnTy     symtab.Ty
	ReturnSource string // diagnostic hint: where the return type came from

	// KindClosure
	ClosureSym symtab.SymbolId

	// KindImplicitNamespace / KindExplicitNamespace
	Namespace   nsmap.NamespaceId
	NsName      intern.StrId // valid for ExplicitNamespace only

	// KindImportSymbol
	ImportName intern.StrId
	ImportSym  symtab.SymbolId
}

// Stack owns every Scope pushed during one function/body's analysis.
// Scopes are never popped from the arena; a caller "pops" simply by
// going back to holding an earlier Id, which is why creation is O(1) and
// scopes can be shared across backtracking branches of the analyzer.
type Stack struct {
	scopes []Scope
}

// New creates an empty Stack.
func New() *Stack {
	return &Stack{}
}

func (s *Stack) push(sc Scope) Id {
	id := Id(len(s.scopes))
	s.scopes = append(s.scopes, sc)
	return id
}

// PushVariable introduces name: ty as a new innermost scope under parent.
func (s *Stack) PushVariable(parent Id, hasParent bool, name intern.StrId, ty symtab.Ty) Id {
	return s.push(Scope{Parent: parent, HasParent: hasParent, Kind: KindVariable, VarName: name, VarTy: ty})
}

// PushGenerics introduces a function or impl's own generic parameter names.
func (s *Stack) PushGenerics(parent Id, hasParent bool, names []intern.StrId) Id {
	return s.push(Scope{Parent: parent, HasParent: hasParent, Kind: KindGenerics, GenericNames: names})
}

// PushFunction marks the return-type target for a function body.
func (s *Stack) PushFunction(parent Id, hasParent bool, retTy symtab.Ty, retSource string) Id {
	return s.push(Scope{Parent: parent, HasParent: hasParent, Kind: KindFunction, ReturnTy: retTy, ReturnSource: retSource})
}

// PushLoop marks a loop body, the target for continue/break.
func (s *Stack) PushLoop(parent Id, hasParent bool) Id {
	return s.push(Scope{Parent: parent, HasParent: hasParent, Kind: KindLoop})
}

// PushClosure marks a closure body. FindCurrFunc skips past these scopes,
// so a bare return inside a closure resolves against the nearest
// enclosing Function, not the closure itself; ReturnTy is still recorded
// here for the pre-unification the analyzer does against an expected
// function type at the closure's creation site.
func (s *Stack) PushClosure(parent Id, hasParent bool, closureSym symtab.SymbolId, retTy symtab.Ty) Id {
	return s.push(Scope{Parent: parent, HasParent: hasParent, Kind: KindClosure, ClosureSym: closureSym, ReturnTy: retTy})
}

// PushImplicitNamespace enters ns without requiring the name to be
// consumed — used for the namespace a declaration's own module body runs
// in, where names resolve unqualified.
func (s *Stack) PushImplicitNamespace(parent Id, hasParent bool, ns nsmap.NamespaceId) Id {
	return s.push(Scope{Parent: parent, HasParent: hasParent, Kind: KindImplicitNamespace, Namespace: ns})
}

// PushExplicitNamespace enters ns under name; unlike an implicit
// namespace, a variable of the same name outside it is only shadowed once
// the caller actually writes name:: to select it.
func (s *Stack) PushExplicitNamespace(parent Id, hasParent bool, name intern.StrId, ns nsmap.NamespaceId) Id {
	return s.push(Scope{Parent: parent, HasParent: hasParent, Kind: KindExplicitNamespace, NsName: name, Namespace: ns})
}

// PushImportSymbol binds one name imported via `use` directly as a scope
// entry, so it resolves exactly like a locally declared symbol.
func (s *Stack) PushImportSymbol(parent Id, hasParent bool, name intern.StrId, sym symtab.SymbolId) Id {
	return s.push(Scope{Parent: parent, HasParent: hasParent, Kind: KindImportSymbol, ImportName: name, ImportSym: sym})
}

// Get returns the Scope record for id.
func (s *Stack) Get(id Id) *Scope {
	return &s.scopes[id]
}

// FindVar walks from id towards the root looking for a variable binding
// named name, stopping at the first match (shadowing).
func (s *Stack) FindVar(id Id, hasId bool, name intern.StrId) (symtab.Ty, bool) {
	for hasId {
		sc := s.Get(id)
		if sc.Kind == KindVariable && sc.VarName == name {
			return sc.VarTy, true
		}
		id, hasId = sc.Parent, sc.HasParent
	}
	return symtab.Ty{}, false
}

// FindVarAt behaves like FindVar but additionally reports the Id of the
// scope the binding was found at, letting a caller tell a capture
// (binding found at or below some closure boundary id) apart from a
// purely local reference.
func (s *Stack) FindVarAt(id Id, hasId bool, name intern.StrId) (symtab.Ty, Id, bool) {
	for hasId {
		sc := s.Get(id)
		if sc.Kind == KindVariable && sc.VarName == name {
			return sc.VarTy, id, true
		}
		id, hasId = sc.Parent, sc.HasParent
	}
	return symtab.Ty{}, 0, false
}

// FindSym walks from id towards the root looking for an imported symbol
// named name (KindImportSymbol scopes bind `use`d names directly).
func (s *Stack) FindSym(id Id, hasId bool, name intern.StrId) (symtab.SymbolId, bool) {
	for hasId {
		sc := s.Get(id)
		if sc.Kind == KindImportSymbol && sc.ImportName == name {
			return sc.ImportSym, true
		}
		id, hasId = sc.Parent, sc.HasParent
	}
	return 0, false
}

// FindNs walks from id towards the root looking for a namespace scope
// entered under name — implicit namespaces never match here since they
// carry no name to be consumed; only an ExplicitNamespace(name, ns)
// answers a qualified name:: lookup.
func (s *Stack) FindNs(id Id, hasId bool, name intern.StrId) (nsmap.NamespaceId, bool) {
	for hasId {
		sc := s.Get(id)
		if sc.Kind == KindExplicitNamespace && sc.NsName == name {
			return sc.Namespace, true
		}
		id, hasId = sc.Parent, sc.HasParent
	}
	return 0, false
}

// ImplicitNamespaces returns every namespace entered implicitly from id up
// to the root, nearest first. Unqualified name resolution tries the
// current implicit namespace chain before falling through to the global
// namespace.
func (s *Stack) ImplicitNamespaces(id Id, hasId bool) []nsmap.NamespaceId {
	var out []nsmap.NamespaceId
	for hasId {
		sc := s.Get(id)
		if sc.Kind == KindImplicitNamespace {
			out = append(out, sc.Namespace)
		}
		id, hasId = sc.Parent, sc.HasParent
	}
	return out
}

// FindCurrFunc walks from id towards the root looking for the return
// target of a bare `return`. It skips past any Closure scopes in between
// and resolves to the nearest enclosing Function scope: a return written
// inside a closure body still targets the nearest real function, matching
// the source's behavior rather than the more intuitive "closures own
// their own return target" (see DESIGN.md).
func (s *Stack) FindCurrFunc(id Id, hasId bool) (retTy symtab.Ty, retSource string, ok bool) {
	for hasId {
		sc := s.Get(id)
		if sc.Kind == KindFunction {
			return sc.ReturnTy, sc.ReturnSource, true
		}
		id, hasId = sc.Parent, sc.HasParent
	}
	return symtab.Ty{}, "", false
}

// InLoop reports whether id is nested (directly or through any number of
// enclosing scopes, stopping at a function/closure boundary) inside a
// Loop scope — used to validate continue/break.
func (s *Stack) InLoop(id Id, hasId bool) bool {
	for hasId {
		sc := s.Get(id)
		if sc.Kind == KindLoop {
			return true
		}
		if sc.Kind == KindFunction || sc.Kind == KindClosure {
			return false
		}
		id, hasId = sc.Parent, sc.HasParent
	}
	return false
}
