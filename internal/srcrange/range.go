// Package srcrange carries byte-offset source locations through every
// stage of the toolchain so diagnostics can always cite where they came
// from, without needing back-references to the parser.
package srcrange

// Range is a half-open byte-offset span within a single file. It is
// carried on every AST node and every diagnostic.
type Range struct {
	File  uint32
	Start uint32
	End   uint32
}

// Zero is the empty range used for synthesized nodes that have no source
// text of their own (e.g. compiler-generated constructor functions for enum
// variants).
var Zero = Range{}

// Join returns the smallest range covering both a and b. Both must belong
// to the same file; Join panics otherwise since joining ranges across files
// is always a caller bug.
func Join(a, b Range) Range {
	if a == Zero {
		return b
	}
	if b == Zero {
		return a
	}
	if a.File != b.File {
		panic("srcrange: Join across different files")
	}
	start := a.Start
	if b.Start < start {
		start = b.Start
	}
	end := a.End
	if b.End > end {
		end = b.End
	}
	return Range{File: a.File, Start: start, End: end}
}

// Len reports the byte length of the range.
func (r Range) Len() uint32 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}
