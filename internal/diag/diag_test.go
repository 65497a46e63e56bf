package diag

import (
	"strings"
	"testing"

	"github.com/margarine-lang/marginc/internal/srcrange"
)

func TestBagDedupesSameRangeAndKind(t *testing.T) {
	b := NewBag()
	rng := srcrange.Range{File: 0, Start: 10, End: 15}

	b.Add(New(KindUnknownField, rng, "field foo"))
	b.Add(New(KindUnknownField, rng, "field foo"))

	if len(b.List()) != 1 {
		t.Fatalf("expected duplicate (range,kind) diagnostics to dedupe, got %d", len(b.List()))
	}
}

func TestBagKeepsDistinctKindsAtSameRange(t *testing.T) {
	b := NewBag()
	rng := srcrange.Range{File: 0, Start: 10, End: 15}

	b.Add(New(KindUnknownField, rng, ""))
	b.Add(New(KindUnknownType, rng, ""))

	if len(b.List()) != 2 {
		t.Fatalf("expected two distinct kinds at the same range to both be recorded, got %d", len(b.List()))
	}
}

func TestListSortsByFileThenOffset(t *testing.T) {
	b := NewBag()
	b.Add(New(KindUnknownType, srcrange.Range{File: 0, Start: 50, End: 55}, "late"))
	b.Add(New(KindUnknownType, srcrange.Range{File: 0, Start: 5, End: 8}, "early"))

	list := b.List()
	if len(list) != 2 || list[0].Detail != "early" || list[1].Detail != "late" {
		t.Fatalf("expected sorted-by-offset order, got %+v", list)
	}
}

func TestHasErrorsReflectsState(t *testing.T) {
	b := NewBag()
	if b.HasErrors() {
		t.Fatalf("expected empty bag to report no errors")
	}
	b.Add(New(KindVariableNotFound, srcrange.Zero, "x"))
	if !b.HasErrors() {
		t.Fatalf("expected non-empty bag to report errors")
	}
}

func TestFaultMessageIncludesDetail(t *testing.T) {
	f := NewFault(FaultDivideByZero, "main.mar:12")
	if !strings.Contains(f.Error(), "main.mar:12") {
		t.Fatalf("expected fault message to include the detail, got %q", f.Error())
	}
}
