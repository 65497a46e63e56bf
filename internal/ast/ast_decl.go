package ast

import "github.com/margarine-lang/marginc/internal/srcrange"

func (*StructDecl) declNode()    {}
func (*EnumDecl) declNode()      {}
func (*FunctionDecl) declNode()  {}
func (*ImplDecl) declNode()      {}
func (*ModuleDecl) declNode()    {}
func (*UseDecl) declNode()       {}

// ContainerSubKind distinguishes the two container shapes a StructDecl
// can take: a named-field struct or a positional tuple struct.
type ContainerSubKind uint8

const (
	SubKindStruct ContainerSubKind = iota
	SubKindTuple
)

// FieldDef is one named field of a struct, or one parameter of a function.
type FieldDef struct {
	Name Name
	Type *TypeExpr
}

// StructDecl declares a struct or tuple-struct type.
//
//	struct Point { x: f64, y: f64 }
//	struct Wrapper(i64)
type StructDecl struct {
	Rng      srcrange.Range
	Name     Name
	Generics []Name
	SubKind  ContainerSubKind
	Fields   []FieldDef // for SubKindTuple, Name is a synthesized "0", "1", ...
}

func (d *StructDecl) Range() srcrange.Range { return d.Rng }

// EnumVariant is one arm of an EnumDecl. Payload is nil for a unit variant.
type EnumVariant struct {
	Name    Name
	Payload *TypeExpr
}

// EnumDecl declares a sum type. Each variant implicitly becomes a
// constructor function in the enum's namespace (sema pass 4).
type EnumDecl struct {
	Rng      srcrange.Range
	Name     Name
	Generics []Name
	Variants []EnumVariant
}

func (d *EnumDecl) Range() srcrange.Range { return d.Rng }

// Attribute is an in-language attribute attached to a declaration, such as
// @startup or @cache.
type Attribute struct {
	Name Name
	Args []Expr
}

// FunctionDecl declares a function, method (inside an ImplDecl), closure
// top-level lowering target, or extern binding.
type FunctionDecl struct {
	Rng        srcrange.Range
	Name       Name
	Generics   []Name
	Params     []FieldDef
	Return     *TypeExpr // nil means Unit
	Body       ExprId    // a BlockExpr; unused when IsExtern
	IsExtern   bool
	ExternPath string
	Attributes []Attribute
}

func (d *FunctionDecl) Range() srcrange.Range { return d.Rng }

// HasAttribute reports whether the function carries an attribute with the
// given interned name.
func (d *FunctionDecl) HasAttribute(name Name) bool {
	for _, a := range d.Attributes {
		if a.Name.Id == name.Id {
			return true
		}
	}
	return false
}

// ImplDecl adds a batch of methods to an existing type's namespace:
// impl List<T> { fn push(self, v: T) { ... } }
type ImplDecl struct {
	Rng      srcrange.Range
	Target   *TypeExpr
	Generics []Name
	Items    []DeclId // FunctionDecl ids
}

func (d *ImplDecl) Range() srcrange.Range { return d.Rng }

// ModuleDecl declares a nested named module containing further
// declarations.
type ModuleDecl struct {
	Rng   srcrange.Range
	Name  Name
	Items []DeclId
}

func (d *ModuleDecl) Range() srcrange.Range { return d.Rng }

// UseKind distinguishes the three import forms the grammar allows.
type UseKind uint8

const (
	UseSingle UseKind = iota // use a
	UseList                  // use a::(b, c)
	UseGlob                  // use a::*
)

// UseDecl imports one or more names from another namespace into scope.
type UseDecl struct {
	Rng   srcrange.Range
	Path  []Name
	Kind  UseKind
	Items []Name // only set for UseList
}

func (d *UseDecl) Range() srcrange.Range { return d.Rng }
