// Package intern deduplicates identifier strings into dense indices.
//
// Everything that flows through the analyzer and codegen refers to names by
// StrId rather than by string, so equality is a single integer comparison
// and the interner is the only place that ever allocates a new string.
package intern

// StrId is an opaque dense index into the interner's table. The low ids
// belong to the well-known names New registers first, so the zero value
// is a valid id (Self, "self"); user strings are numbered after them.
type StrId uint32

// Interner deduplicates strings into dense ids. It is arena-owned: once a
// string is interned it lives for the lifetime of the Interner and is never
// removed, and the table is append-only after analysis completes.
type Interner struct {
	strings []string
	ids     map[string]StrId
}

// New creates an Interner pre-populated with the well-known reserved names
// every pass of the toolchain needs a stable id for.
func New() *Interner {
	in := &Interner{
		strings: make([]string, 0, 256),
		ids:     make(map[string]StrId, 256),
	}
	for _, name := range wellKnownNames {
		in.Intern(name)
	}
	return in
}

// Intern returns the dense id for s, allocating a new one if s has not been
// seen before.
func (in *Interner) Intern(s string) StrId {
	if id, ok := in.ids[s]; ok {
		return id
	}
	id := StrId(len(in.strings))
	in.strings = append(in.strings, s)
	in.ids[s] = id
	return id
}

// Lookup returns the id for s without interning it, and false if s was
// never interned.
func (in *Interner) Lookup(s string) (StrId, bool) {
	id, ok := in.ids[s]
	return id, ok
}

// String returns the string an id was interned from. Panics if id is out of
// range, which indicates a bug upstream (ids are never fabricated).
func (in *Interner) String(id StrId) string {
	return in.strings[id]
}

// Len reports how many distinct strings have been interned so far.
func (in *Interner) Len() int {
	return len(in.strings)
}

// Well-known ids, reserved in registration order so every caller can refer
// to them by name instead of re-interning a literal each time.
const (
	Self StrId = iota
	TypeParamT
	IterNext
	True
	False
	Some
	None
	Ok
	Err
	Option
	Result
	Str
	Range
	List
	Init
)

var wellKnownNames = []string{
	Self:       "self",
	TypeParamT: "T",
	IterNext:   "next",
	True:       "true",
	False:      "false",
	Some:       "some",
	None:       "none",
	Ok:         "ok",
	Err:        "err",
	Option:     "Option",
	Result:     "Result",
	Str:        "str",
	Range:      "range",
	List:       "list",
	Init:       "init",
}
