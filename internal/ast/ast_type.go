package ast

import "github.com/margarine-lang/marginc/internal/srcrange"

// TypeExpr is the syntactic form of a type as written in source: a bare
// name optionally applied to generic arguments (e.g. "List<T>", "i64",
// "Result<T, Error>"), or a tuple "(A, B, C)". compute_types (sema pass 4)
// resolves each TypeExpr into a symtab.Generic once every name has a
// symbol id.
//
// IsTuple distinguishes the tuple form, in which case Elements holds the
// member types and Name/Args are unused.
type TypeExpr struct {
	Rng      srcrange.Range
	Name     Name
	Args     []*TypeExpr
	IsTuple  bool
	Elements []*TypeExpr // only set when IsTuple
}

func (t *TypeExpr) Range() srcrange.Range { return t.Rng }
