package intern

import "testing"

func TestInternDeduplicates(t *testing.T) {
	in := New()
	a := in.Intern("foo")
	b := in.Intern("foo")
	if a != b {
		t.Fatalf("expected same id for repeated intern, got %d and %d", a, b)
	}
	if in.String(a) != "foo" {
		t.Fatalf("expected round-trip string, got %q", in.String(a))
	}
}

func TestWellKnownIdsStable(t *testing.T) {
	in := New()
	if in.String(Self) != "self" {
		t.Fatalf("expected Self to be 'self', got %q", in.String(Self))
	}
	if in.String(Option) != "Option" {
		t.Fatalf("expected Option to be 'Option', got %q", in.String(Option))
	}
	// Re-interning a well-known name must return the reserved id, not a
	// fresh one.
	if got := in.Intern("self"); got != Self {
		t.Fatalf("expected re-intern of 'self' to reuse reserved id %d, got %d", Self, got)
	}
}

func TestLookupMissing(t *testing.T) {
	in := New()
	if _, ok := in.Lookup("never-interned"); ok {
		t.Fatalf("expected Lookup to report false for a name never interned")
	}
}
