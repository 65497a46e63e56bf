// Package ast defines the arena-allocated AST the lexer and parser produce.
// The lexer/parser themselves are external collaborators (out of scope for
// this module, per the toolchain's design) — this package specifies only
// the shape they hand to the analyzer: an immutable, arena-backed tree with
// stable node identifiers and source ranges.
package ast

import (
	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/srcrange"
)

// NodeKind tags which arena a NodeId indexes into.
type NodeKind uint8

const (
	KindDecl NodeKind = iota
	KindStmt
	KindExpr
	KindErr
)

// NodeId is the tagged union "AST identifier": a kind plus a dense index
// into the matching arena. It is the general-purpose handle used by
// range(id) and similar lookups; passes that only ever touch one kind of
// node (e.g. sema's ExprId -> Ty map) use the narrower typed ids below.
type NodeId struct {
	Kind  NodeKind
	Index uint32
}

// DeclId, StmtId, ExprId and ErrId are dense indices into their respective
// arenas. They exist as distinct types so a StmtId can never be passed
// where an ExprId is expected.
type (
	DeclId uint32
	StmtId uint32
	ExprId uint32
	ErrId  uint32
)

func (id DeclId) Node() NodeId { return NodeId{Kind: KindDecl, Index: uint32(id)} }
func (id StmtId) Node() NodeId { return NodeId{Kind: KindStmt, Index: uint32(id)} }
func (id ExprId) Node() NodeId { return NodeId{Kind: KindExpr, Index: uint32(id)} }
func (id ErrId) Node() NodeId  { return NodeId{Kind: KindErr, Index: uint32(id)} }

// Decl, Stmt and Expr are marker interfaces implemented by every concrete
// declaration, statement and expression node. Every node can report its own
// source range for diagnostics.
type Decl interface {
	Range() srcrange.Range
	declNode()
}

type Stmt interface {
	Range() srcrange.Range
	stmtNode()
}

type Expr interface {
	Range() srcrange.Range
	exprNode()
}

// ErrNode stands in for a subtree the parser could not make sense of. It
// carries the range the broken text occupied so later passes can still
// point at something, and lets every keyed vector in the arena stay total:
// a bad parse yields an ErrId, never a hole.
type ErrNode struct {
	Rng srcrange.Range
}

func (e ErrNode) Range() srcrange.Range { return e.Rng }

// Arena owns every node produced for one file. It is immutable after
// parsing: nothing after Parse ever mutates the slices, only reads from
// them by id.
type Arena struct {
	File  uint32
	decls []Decl
	stmts []Stmt
	exprs []Expr
	errs  []ErrNode
}

// NewArena creates an empty arena for the given file id (matching
// srcrange.Range.File).
func NewArena(file uint32) *Arena {
	return &Arena{File: file}
}

func (a *Arena) AddDecl(d Decl) DeclId {
	a.decls = append(a.decls, d)
	return DeclId(len(a.decls) - 1)
}

func (a *Arena) AddStmt(s Stmt) StmtId {
	a.stmts = append(a.stmts, s)
	return StmtId(len(a.stmts) - 1)
}

func (a *Arena) AddExpr(e Expr) ExprId {
	a.exprs = append(a.exprs, e)
	return ExprId(len(a.exprs) - 1)
}

func (a *Arena) AddErr(rng srcrange.Range) ErrId {
	a.errs = append(a.errs, ErrNode{Rng: rng})
	return ErrId(len(a.errs) - 1)
}

func (a *Arena) Decl(id DeclId) Decl { return a.decls[id] }
func (a *Arena) Stmt(id StmtId) Stmt { return a.stmts[id] }
func (a *Arena) Expr(id ExprId) Expr { return a.exprs[id] }
func (a *Arena) Err(id ErrId) ErrNode { return a.errs[id] }

func (a *Arena) NumDecls() int { return len(a.decls) }
func (a *Arena) NumStmts() int { return len(a.stmts) }
func (a *Arena) NumExprs() int { return len(a.exprs) }

// Range resolves the source range for any node id, regardless of kind.
func (a *Arena) Range(id NodeId) srcrange.Range {
	switch id.Kind {
	case KindDecl:
		return a.decls[id.Index].Range()
	case KindStmt:
		return a.stmts[id.Index].Range()
	case KindExpr:
		return a.exprs[id.Index].Range()
	case KindErr:
		return a.errs[id.Index].Range()
	default:
		return srcrange.Zero
	}
}

// Name is an interned identifier together with the range it occupied in
// source, used anywhere the grammar requires a bare name (field names,
// parameter names, variant names, module path segments).
type Name struct {
	Id  intern.StrId
	Rng srcrange.Range
}
