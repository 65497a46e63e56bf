package scope

import (
	"testing"

	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/symtab"
)

func TestFindVarShadowing(t *testing.T) {
	in := intern.New()
	s := New()
	x := in.Intern("x")

	outer := s.PushVariable(0, false, x, symtab.TyCon(symtab.SymI32, symtab.EmptyGenList))
	inner := s.PushVariable(outer, true, x, symtab.TyCon(symtab.SymStr, symtab.EmptyGenList))

	ty, ok := s.FindVar(inner, true, x)
	if !ok || ty.Sym != symtab.SymStr {
		t.Fatalf("expected inner shadowing binding for x, got ty=%v ok=%v", ty, ok)
	}
	ty, ok = s.FindVar(outer, true, x)
	if !ok || ty.Sym != symtab.SymI32 {
		t.Fatalf("expected outer binding for x, got ty=%v ok=%v", ty, ok)
	}
}

func TestFindVarMissing(t *testing.T) {
	in := intern.New()
	s := New()
	root := s.PushLoop(0, false)
	_, ok := s.FindVar(root, true, in.Intern("nope"))
	if ok {
		t.Fatalf("expected no binding for undeclared variable")
	}
}

func TestFindCurrFuncSkipsClosureTargetsEnclosingFunction(t *testing.T) {
	s := New()
	outerRetTy := symtab.TyCon(symtab.SymI32, symtab.EmptyGenList)
	fn := s.PushFunction(0, false, outerRetTy, "fn return type")

	closureRetTy := symtab.TyCon(symtab.SymBool, symtab.EmptyGenList)
	closure := s.PushClosure(fn, true, symtab.SymbolId(7), closureRetTy)

	// A return written inside the closure body still targets the
	// enclosing real function, not the closure's own (pre-unified)
	// return type.
	retTy, _, ok := s.FindCurrFunc(closure, true)
	if !ok || retTy.Sym != symtab.SymI32 {
		t.Fatalf("expected return inside closure to skip past it to the enclosing function, got ty=%v ok=%v", retTy, ok)
	}

	retTy, _, ok = s.FindCurrFunc(fn, true)
	if !ok || retTy.Sym != symtab.SymI32 {
		t.Fatalf("expected return at function scope to target the function, got ty=%v ok=%v", retTy, ok)
	}
}

func TestInLoopStopsAtFunctionBoundary(t *testing.T) {
	s := New()
	loop := s.PushLoop(0, false)
	fn := s.PushFunction(loop, true, symtab.TyCon(symtab.SymUnit, symtab.EmptyGenList), "")

	if !s.InLoop(loop, true) {
		t.Fatalf("expected scope directly under the loop to report InLoop")
	}
	if s.InLoop(fn, true) {
		t.Fatalf("expected a function scope nested under a loop to NOT count as in-loop")
	}
}

func TestFindNsOnlyMatchesExplicitNamespace(t *testing.T) {
	in := intern.New()
	s := New()
	listName := in.Intern("List")

	implicit := s.PushImplicitNamespace(0, false, 3)
	explicit := s.PushExplicitNamespace(implicit, true, listName, 9)

	ns, ok := s.FindNs(explicit, true, listName)
	if !ok || ns != 9 {
		t.Fatalf("expected explicit namespace lookup to resolve, got ns=%v ok=%v", ns, ok)
	}

	_, ok = s.FindNs(implicit, true, listName)
	if ok {
		t.Fatalf("expected implicit namespace alone to not satisfy a qualified lookup")
	}
}

func TestImplicitNamespacesNearestFirst(t *testing.T) {
	s := New()
	a := s.PushImplicitNamespace(0, false, 1)
	b := s.PushImplicitNamespace(a, true, 2)

	nss := s.ImplicitNamespaces(b, true)
	if len(nss) != 2 || nss[0] != 2 || nss[1] != 1 {
		t.Fatalf("expected nearest-first implicit namespace chain [2,1], got %v", nss)
	}
}
