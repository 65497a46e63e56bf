package ast

import "github.com/margarine-lang/marginc/internal/srcrange"

func (*VarDeclStmt) stmtNode()          {}
func (*TupleDestructureStmt) stmtNode() {}
func (*AssignStmt) stmtNode()           {}
func (*ForStmt) stmtNode()              {}

// VarDeclStmt binds a single name to the value of an expression:
// let x: i64 = 1
type VarDeclStmt struct {
	Rng            srcrange.Range
	Name           Name
	TypeAnnotation *TypeExpr // nil if the type is to be inferred
	Value          ExprId
}

func (s *VarDeclStmt) Range() srcrange.Range { return s.Rng }

// TupleDestructureStmt binds several names at once from a tuple value:
// let (a, b) = pair
type TupleDestructureStmt struct {
	Rng   srcrange.Range
	Names []Name
	Value ExprId
}

func (s *TupleDestructureStmt) Range() srcrange.Range { return s.Rng }

// AssignStmt mutates an existing lvalue: a variable, a field, or a list
// index. a.b.c = x lowers to a chain of loads ending in a field store.
type AssignStmt struct {
	Rng    srcrange.Range
	Target Expr // IdentExpr, FieldAccessExpr or IndexExpr
	Value  ExprId
}

func (s *AssignStmt) Range() srcrange.Range { return s.Rng }

// ForStmt iterates a value by repeatedly calling its next() method:
// for x in xs { ... }
type ForStmt struct {
	Rng      srcrange.Range
	Var      Name
	Iterable ExprId
	Body     ExprId // BlockExpr
}

func (s *ForStmt) Range() srcrange.Range { return s.Rng }
