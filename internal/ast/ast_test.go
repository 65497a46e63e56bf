package ast

import (
	"testing"

	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/srcrange"
)

func TestArenaAssignsStableIds(t *testing.T) {
	in := intern.New()
	arena := NewArena(0)

	litId := arena.AddExpr(&LiteralExpr{Kind: LitInt, IntVal: 2})
	nameId := in.Intern("x")
	identId := arena.AddExpr(&IdentExpr{Name: Name{Id: nameId}})

	if litId != 0 {
		t.Fatalf("expected first expr id 0, got %d", litId)
	}
	if identId != 1 {
		t.Fatalf("expected second expr id 1, got %d", identId)
	}

	if lit, ok := arena.Expr(litId).(*LiteralExpr); !ok || lit.IntVal != 2 {
		t.Fatalf("expected round-trip literal, got %#v", arena.Expr(litId))
	}
}

func TestArenaRangeDispatchesByKind(t *testing.T) {
	arena := NewArena(3)
	rng := srcrange.Range{File: 3, Start: 10, End: 20}
	id := arena.AddExpr(&LiteralExpr{Rng: rng, Kind: LitBool, BoolVal: true})

	got := arena.Range(id.Node())
	if got != rng {
		t.Fatalf("expected range %+v, got %+v", rng, got)
	}
}

func TestErrNodeIsTotal(t *testing.T) {
	arena := NewArena(0)
	rng := srcrange.Range{Start: 5, End: 6}
	id := arena.AddErr(rng)
	if arena.Err(id).Range() != rng {
		t.Fatalf("expected err node to carry its range")
	}
}
