package symtab

import (
	"github.com/margarine-lang/marginc/internal/ast"
	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/srcrange"
)

// Generic is a type as written in a declaration's signature: either an
// unresolved reference to one of the declaring symbol's own generic
// parameters, or a fully concrete constructor applied to further Generics.
// It is distinct from Ty: a Generic lives on a Symbol's shape and gets
// turned into a concrete Ty only once a particular instantiation (a
// GenListId) is known.
type Generic struct {
	IsParam   bool
	ParamName intern.StrId // valid when IsParam
	Sym       SymbolId     // valid when !IsParam
	Args      []Generic    // valid when !IsParam
	Rng       srcrange.Range
}

// Param constructs an unresolved generic-parameter reference.
func Param(name intern.StrId, rng srcrange.Range) Generic {
	return Generic{IsParam: true, ParamName: name, Rng: rng}
}

// Concrete constructs a resolved generic referring to a known symbol.
func Concrete(sym SymbolId, args []Generic, rng srcrange.Range) Generic {
	return Generic{Sym: sym, Args: args, Rng: rng}
}

// SymbolTag discriminates the three Symbol shapes.
type SymbolTag uint8

const (
	TagContainer SymbolTag = iota
	TagFunction
	TagOpaque
)

// ContainerKind distinguishes the container shapes a Symbol can take.
// No symbol is created with ContainerGenericParam: generic parameters
// are Param generics in signatures and unification variables in bodies.
type ContainerKind uint8

const (
	ContainerStruct ContainerKind = iota
	ContainerTuple
	ContainerEnum
	ContainerGenericParam
)

// ContainerField is one field of a struct/tuple, or one variant of an
// enum represented as a single-field "payload" container.
type ContainerField struct {
	Name intern.StrId
	Type Generic
}

// ContainerData is the Symbol payload for TagContainer.
type ContainerData struct {
	SubKind ContainerKind
	Fields  []ContainerField
}

// FuncKind distinguishes how a Function symbol is actually realized.
type FuncKind uint8

const (
	FuncUserDefined FuncKind = iota
	FuncExtern
	FuncTypeId
	FuncEnum
	FuncClosure
)

// FuncArg is one parameter of a function signature.
type FuncArg struct {
	Name intern.StrId
	Type Generic
}

// ClosureCapture is one free variable a closure symbol captures from its
// defining environment. Captures are appended as trailing parameters at
// the bytecode level (ir package). Type is an inference-time Ty rather
// than a declaration-time Generic because captures are only discovered
// while the closure's body is being checked, after instantiation.
type ClosureCapture struct {
	Name intern.StrId
	Type Ty
}

// FunctionData is the Symbol payload for TagFunction.
type FunctionData struct {
	Args   []FuncArg
	Return Generic
	Kind   FuncKind

	ExternPath string // valid when Kind == FuncExtern

	EnumParent       SymbolId // valid when Kind == FuncEnum
	EnumVariantIndex int      // valid when Kind == FuncEnum

	Captures []ClosureCapture // valid when Kind == FuncClosure

	Cached bool // opts into the VM's per-function result cache
}

// Symbol is the full record a SymbolId resolves to: a qualified path, the
// names of its own declared generic parameters, and a kind-specific
// payload.
type Symbol struct {
	Path     intern.StrId
	Generics []intern.StrId

	Tag       SymbolTag
	Container *ContainerData // valid when Tag == TagContainer
	Function  *FunctionData  // valid when Tag == TagFunction

	DeclRef   ast.DeclId
	HasDeclRf bool

	// Poisoned marks a symbol bound to stand in for a name that could not
	// be resolved (duplicate definition, failed lookup, ...). Downstream
	// passes still see a total Symbol, just one that carries no useful
	// shape.
	Poisoned bool
}

// NumGenerics reports how many generic parameters this symbol declares.
func (s *Symbol) NumGenerics() int {
	return len(s.Generics)
}
