// Package diag is the diagnostics layer: typed error kinds keyed by
// source range, rendered lazily from a collected Bag once analysis
// finishes. Analysis itself never aborts on the first error — every
// failure is recorded here against a node and the caller substitutes a
// poisoned type and keeps going (see symtab.SymError/SymNever).
package diag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/margarine-lang/marginc/internal/srcrange"
)

// Kind enumerates every semantic diagnostic the analyzer can record.
type Kind uint8

const (
	KindNameAlreadyDefined Kind = iota
	KindUnknownType
	KindReturnMismatch
	KindInvalidType
	KindDuplicateField
	KindDuplicateArg
	KindDuplicateMatchArm
	KindVariableValueHintMismatch
	KindVariableNotTuple
	KindVariableNotFound
	KindInvalidBinaryOp
	KindInvalidUnaryOp
	KindMissingElse
	KindBranchTypeMismatch
	KindMatchOnNonEnum
	KindNonExhaustiveMatch
	KindInvalidMatchArm
	KindValueNotIterator
	KindStructCreateOnNonStruct
	KindFieldAccessOnNonAggregate
	KindUnknownField
	KindMissingFields
	KindFunctionNotFound
	KindCallOnNonFunction
	KindArityMismatch
	KindNamespaceNotFound
	KindValueUpdateTypeMismatch
	KindContinueOutsideLoop
	KindBreakOutsideLoop
	KindReturnOutsideFunction
	KindUnwrapOnWrongType
	KindTryOnWrongType
	KindFunctionDoesNotReturnOption
	KindFunctionDoesNotReturnResult
	KindReturnTypeMismatch
	KindNotAnLvalue
	KindUnableToInfer
	KindInvalidRangeBound
	KindImplOnGeneric
	KindGenericLengthMismatch
	KindReservedName
	KindInvalidCast
	KindInvalidSystem
	KindIndexOnNonList
	KindUnknownAttribute
	KindInvalidAttributeValue
)

var kindMessages = map[Kind]string{
	KindNameAlreadyDefined:         "name already defined",
	KindUnknownType:                "unknown type",
	KindReturnMismatch:             "function body does not match its declared return type",
	KindInvalidType:                "invalid type",
	KindDuplicateField:             "duplicate field",
	KindDuplicateArg:               "duplicate argument",
	KindDuplicateMatchArm:          "duplicate match arm",
	KindVariableValueHintMismatch:  "variable's declared type does not match its value",
	KindVariableNotTuple:           "variable is not a tuple",
	KindVariableNotFound:           "variable not found",
	KindInvalidBinaryOp:            "invalid binary operator for operand types",
	KindInvalidUnaryOp:             "invalid unary operator for operand type",
	KindMissingElse:                "if-expression used as a value is missing an else branch",
	KindBranchTypeMismatch:         "branches do not agree on a type",
	KindMatchOnNonEnum:             "match scrutinee is not an enum",
	KindNonExhaustiveMatch:         "match is not exhaustive",
	KindInvalidMatchArm:            "invalid match arm",
	KindValueNotIterator:           "value does not implement the iterator protocol",
	KindStructCreateOnNonStruct:    "struct-create expression used on a non-struct type",
	KindFieldAccessOnNonAggregate:  "field access on a non-aggregate type",
	KindUnknownField:               "unknown field",
	KindMissingFields:              "missing fields",
	KindFunctionNotFound:           "function not found",
	KindCallOnNonFunction:          "call on a non-function value",
	KindArityMismatch:              "argument count does not match the callee's arity",
	KindNamespaceNotFound:          "namespace not found",
	KindValueUpdateTypeMismatch:    "assigned value's type does not match the target's type",
	KindContinueOutsideLoop:        "continue used outside a loop",
	KindBreakOutsideLoop:           "break used outside a loop",
	KindReturnOutsideFunction:      "return used outside a function",
	KindUnwrapOnWrongType:          "unwrap (!) used on a value that is not Option or Result",
	KindTryOnWrongType:             "try (?) used on a value that is not Option or Result",
	KindFunctionDoesNotReturnOption: "function does not return Option, so try has nowhere to propagate to",
	KindFunctionDoesNotReturnResult: "function does not return Result, so try has nowhere to propagate to",
	KindReturnTypeMismatch:         "returned value does not match the function's return type",
	KindNotAnLvalue:                "expression is not assignable",
	KindUnableToInfer:              "unable to infer a type for this expression",
	KindInvalidRangeBound:          "invalid range bound",
	KindImplOnGeneric:              "impl target must be a concrete head symbol, not a generic parameter",
	KindGenericLengthMismatch:      "generic argument count does not match the declared parameter count",
	KindReservedName:               "name is reserved",
	KindInvalidCast:                "invalid cast",
	KindInvalidSystem:              "invalid system",
	KindIndexOnNonList:             "index expression used on a value that is not a list",
	KindUnknownAttribute:           "unknown attribute",
	KindInvalidAttributeValue:      "invalid attribute value",
}

func (k Kind) String() string {
	if s, ok := kindMessages[k]; ok {
		return s
	}
	return "unknown diagnostic kind"
}

// Note is one supplementary source-range citation attached to a
// Diagnostic.
type Note struct {
	Rng     srcrange.Range
	Message string
}

// Diagnostic is one recorded semantic error: a Kind, the primary source
// range it's attached to, free-form detail (the interpolated part of the
// message — names, expected/actual type displays), and any notes.
type Diagnostic struct {
	Kind   Kind
	Rng    srcrange.Range
	Detail string
	Notes  []Note
}

// New constructs a Diagnostic. detail may be empty when the kind's
// canonical message needs no further context.
func New(kind Kind, rng srcrange.Range, detail string, notes ...Note) Diagnostic {
	return Diagnostic{Kind: kind, Rng: rng, Detail: detail, Notes: notes}
}

func (d Diagnostic) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", d.Kind)
	if d.Detail != "" {
		fmt.Fprintf(&b, ": %s", d.Detail)
	}
	fmt.Fprintf(&b, " (%d:%d-%d)", d.Rng.File, d.Rng.Start, d.Rng.End)
	for _, n := range d.Notes {
		fmt.Fprintf(&b, "\n  note: %s (%d:%d-%d)", n.Message, n.Rng.File, n.Rng.Start, n.Rng.End)
	}
	return b.String()
}

// Bag collects diagnostics across an entire analysis run. It dedupes by
// (range, kind): re-visiting the same malformed node in a later pass must
// not multiply the same complaint.
type Bag struct {
	diags []Diagnostic
	seen  map[string]bool
}

// NewBag creates an empty Bag.
func NewBag() *Bag {
	return &Bag{seen: make(map[string]bool)}
}

// Add records d unless an equivalent (range, kind) diagnostic was already
// recorded.
func (b *Bag) Add(d Diagnostic) {
	key := fmt.Sprintf("%d:%d:%d:%d", d.Rng.File, d.Rng.Start, d.Rng.End, d.Kind)
	if b.seen[key] {
		return
	}
	b.seen[key] = true
	b.diags = append(b.diags, d)
}

// HasErrors reports whether anything was recorded.
func (b *Bag) HasErrors() bool {
	return len(b.diags) > 0
}

// List returns every recorded diagnostic in a stable file-then-offset
// ordering rather than pass-discovery order.
func (b *Bag) List() []Diagnostic {
	out := make([]Diagnostic, len(b.diags))
	copy(out, b.diags)
	sort.Slice(out, func(i, j int) bool {
		a, c := out[i].Rng, out[j].Rng
		if a.File != c.File {
			return a.File < c.File
		}
		return a.Start < c.Start
	})
	return out
}
