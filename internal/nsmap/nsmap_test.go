package nsmap

import (
	"testing"

	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/symtab"
)

func TestAddSymFirstBindingSucceeds(t *testing.T) {
	in := intern.New()
	m := New(in)
	name := in.Intern("Widget")

	if err := m.AddSym(Root, name, symtab.SymbolId(100)); err != nil {
		t.Fatalf("unexpected error on first bind: %v", err)
	}
	sym, ok, err := m.FindSym(Root, name)
	if err != nil || !ok || sym != 100 {
		t.Fatalf("expected resolved binding, got sym=%v ok=%v err=%v", sym, ok, err)
	}
}

func TestAddSymDuplicateIsSticky(t *testing.T) {
	in := intern.New()
	m := New(in)
	name := in.Intern("Widget")

	if err := m.AddSym(Root, name, symtab.SymbolId(1)); err != nil {
		t.Fatalf("unexpected error on first bind: %v", err)
	}
	if err := m.AddSym(Root, name, symtab.SymbolId(2)); err == nil {
		t.Fatalf("expected conflict error on duplicate bind")
	}

	// The binding is now permanently erroneous: later lookups and later
	// add attempts both keep reporting the conflict.
	_, _, err := m.FindSym(Root, name)
	if err == nil {
		t.Fatalf("expected sticky error to surface on lookup")
	}
	if err2 := m.AddSym(Root, name, symtab.SymbolId(3)); err2 == nil {
		t.Fatalf("expected a third bind attempt to still report the conflict")
	}
}

func TestFindSymMissingReportsNoBinding(t *testing.T) {
	in := intern.New()
	m := New(in)
	_, ok, err := m.FindSym(Root, in.Intern("Nonexistent"))
	if ok || err != nil {
		t.Fatalf("expected no binding and no error for missing name, got ok=%v err=%v", ok, err)
	}
}

func TestNewChildReopensExistingNamespace(t *testing.T) {
	in := intern.New()
	m := New(in)
	name := in.Intern("collections")

	a := m.NewChild(Root, name)
	b := m.NewChild(Root, name)
	if a != b {
		t.Fatalf("expected reopening the same child name to return the same NamespaceId, got %d vs %d", a, b)
	}
}

func TestCopySymbolPoisonsOnStickyError(t *testing.T) {
	in := intern.New()
	m := New(in)
	name := in.Intern("push")

	src := m.NewChild(Root, in.Intern("List"))
	dst := m.NewChild(Root, in.Intern("MyModule"))

	_ = m.AddSym(src, name, symtab.SymbolId(1))
	_ = m.AddSym(src, name, symtab.SymbolId(2)) // now sticky-erroneous in src

	if err := m.CopySymbol(dst, src, name); err == nil {
		t.Fatalf("expected copying a sticky-erroneous symbol to report an error")
	}
	_, _, err := m.FindSym(dst, name)
	if err == nil {
		t.Fatalf("expected the poisoned slot to surface an error in dst too")
	}
}

func TestCopyAllCopiesSymbolsAndChildren(t *testing.T) {
	in := intern.New()
	m := New(in)

	src := m.NewChild(Root, in.Intern("List"))
	_ = m.AddSym(src, in.Intern("push"), symtab.SymbolId(1))
	_ = m.AddSym(src, in.Intern("pop"), symtab.SymbolId(2))
	m.NewChild(src, in.Intern("Iter"))

	dst := m.NewChild(Root, in.Intern("MyModule"))
	if errs := m.CopyAll(dst, src); len(errs) != 0 {
		t.Fatalf("expected no errors copying clean namespace, got %v", errs)
	}

	if sym, ok, err := m.FindSym(dst, in.Intern("push")); err != nil || !ok || sym != 1 {
		t.Fatalf("expected push to be copied, got sym=%v ok=%v err=%v", sym, ok, err)
	}
	if _, ok := m.FindChild(dst, in.Intern("Iter")); !ok {
		t.Fatalf("expected child namespace Iter to be copied")
	}
}
