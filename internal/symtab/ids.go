// Package symtab is the symbol map and type system: the single owner of
// every SymbolId, every unification variable, and every generic-list
// table in a compilation. Name resolution produces SymbolIds here, and
// inference unifies Ty values that reference them.
package symtab

// SymbolId is a dense index into the SymbolMap. The primitive types get
// fixed low ids reserved below so every pass can refer to "Bool" or
// "Never" without a lookup.
type SymbolId uint32

const (
	SymUnit SymbolId = iota
	SymI8
	SymI16
	SymI32
	SymI64
	SymU8
	SymU16
	SymU32
	SymU64
	SymF32
	SymF64
	SymBool
	SymStr
	SymRange
	SymList
	SymOption
	SymResult
	SymError
	SymNever
	// SymTuple and SymFunc are variable-arity head constructors: their
	// generic list holds the element types (Tuple) or the parameter types
	// followed by the return type (Func), so their arity is read off
	// len(gens) rather than Symbol.NumGenerics. WellFormed and Display
	// special case both; Eq compares their generic lists like any other
	// head's.
	SymTuple
	SymFunc
	firstUserSymbol
)

var primitiveNames = map[SymbolId]string{
	SymUnit:   "Unit",
	SymI8:     "i8",
	SymI16:    "i16",
	SymI32:    "i32",
	SymI64:    "i64",
	SymU8:     "u8",
	SymU16:    "u16",
	SymU32:    "u32",
	SymU64:    "u64",
	SymF32:    "f32",
	SymF64:    "f64",
	SymBool:   "bool",
	SymStr:    "str",
	SymRange:  "range",
	SymList:   "List",
	SymOption: "Option",
	SymResult: "Result",
	SymError:  "Error",
	SymNever:  "Never",
	SymTuple:  "Tuple",
	SymFunc:   "Func",
}

// NamedPrimitives returns the primitive symbols user source can spell
// directly, keyed by their source-level name. Tuple/Func (structural
// heads with no surface syntax of their own) and the poison symbols are
// excluded.
func NamedPrimitives() map[string]SymbolId {
	out := make(map[string]SymbolId, len(primitiveNames))
	for id, name := range primitiveNames {
		switch id {
		case SymTuple, SymFunc, SymError, SymNever:
			continue
		}
		out[name] = id
	}
	return out
}

// IsPoison reports whether s is one of the two poison symbols that unify
// with anything to stop diagnostic cascades (Error and Never).
func (s SymbolId) IsPoison() bool {
	return s == SymError || s == SymNever
}

// Variant ordering for the builtin two-variant enums. The success case is
// always tag 0; the unwrap/try opcodes test field 0 against zero at
// runtime and fail/propagate on anything else.
const (
	VariantSome = 0
	VariantNone = 1
	VariantOk   = 0
	VariantErr  = 1
)

// GenListId is a deduplicated handle to a slice of (paramName, Ty) pairs
// stored in the SymbolMap. EmptyGenList is the distinguished value for "no
// generic arguments".
type GenListId uint32

const EmptyGenList GenListId = 0

// VarId indexes a unification variable's substitution slot.
type VarId uint32
