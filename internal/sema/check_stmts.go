package sema

import (
	"github.com/margarine-lang/marginc/internal/ast"
	"github.com/margarine-lang/marginc/internal/diag"
	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/pipeline"
	"github.com/margarine-lang/marginc/internal/symtab"
)

// checkStmt types one statement and returns the frame subsequent
// statements in the same block continue from — variable declarations
// extend the scope chain, everything else leaves it unchanged.
func (c *checker) checkStmt(fr frame, id ast.StmtId) frame {
	switch s := c.ctx.Program.Arena.Stmt(id).(type) {
	case *ast.VarDeclStmt:
		return c.checkVarDecl(fr, id, s)
	case *ast.TupleDestructureStmt:
		return c.checkTupleDestructure(fr, id, s)
	case *ast.AssignStmt:
		c.checkAssign(fr, id, s)
		return fr
	case *ast.ForStmt:
		c.checkFor(fr, id, s)
		return fr
	default:
		return fr
	}
}

func (c *checker) checkVarDecl(fr frame, id ast.StmtId, s *ast.VarDeclStmt) frame {
	var want *symtab.Ty
	if s.TypeAnnotation != nil {
		t, ok := c.resolveTy(fr, s.TypeAnnotation)
		if ok {
			want = &t
		}
	}
	got := c.checkExprWith(fr, s.Value, want)
	ty := got
	if want != nil {
		if c.unify(s.Value.Node(), diag.KindVariableValueHintMismatch, got, *want) {
			ty = *want
		} else {
			ty = c.poison()
		}
	}
	return fr.withScope(c.ctx.Scopes.PushVariable(fr.scopeId, fr.hasScope, s.Name.Id, ty))
}

func (c *checker) checkTupleDestructure(fr frame, id ast.StmtId, s *ast.TupleDestructureStmt) frame {
	valTy := c.ctx.Symbols.InstantiateShallow(c.checkExpr(fr, s.Value))

	if valTy.IsVar() {
		// Drive inference: bind the value to a tuple of fresh variables
		// matching the pattern's arity.
		elems := make([]symtab.Ty, len(s.Names))
		for i := range elems {
			elems[i] = c.ctx.Symbols.NewVar(s.Rng)
		}
		c.unify(s.Value.Node(), diag.KindVariableNotTuple, valTy, c.tupleTy(elems))
		for i, n := range s.Names {
			fr = fr.withScope(c.ctx.Scopes.PushVariable(fr.scopeId, fr.hasScope, n.Id, elems[i]))
		}
		return fr
	}
	if valTy.Sym.IsPoison() {
		for _, n := range s.Names {
			fr = fr.withScope(c.ctx.Scopes.PushVariable(fr.scopeId, fr.hasScope, n.Id, c.poison()))
		}
		return fr
	}
	if valTy.Sym != symtab.SymTuple {
		c.ctx.Fail(id.Node(), diag.KindVariableNotTuple, c.ctx.Symbols.Display(valTy))
		for _, n := range s.Names {
			fr = fr.withScope(c.ctx.Scopes.PushVariable(fr.scopeId, fr.hasScope, n.Id, c.poison()))
		}
		return fr
	}
	gens := c.ctx.Symbols.GetGens(valTy.Gens)
	if len(gens) != len(s.Names) {
		c.ctx.Fail(id.Node(), diag.KindVariableNotTuple, c.ctx.Symbols.Display(valTy))
	}
	for i, n := range s.Names {
		ty := c.poison()
		if i < len(gens) {
			ty = gens[i].Type
		}
		fr = fr.withScope(c.ctx.Scopes.PushVariable(fr.scopeId, fr.hasScope, n.Id, ty))
	}
	return fr
}

func (c *checker) checkAssign(fr frame, id ast.StmtId, s *ast.AssignStmt) {
	var targetTy symtab.Ty
	switch target := s.Target.(type) {
	case *ast.IdentExpr:
		ty, matchId, found := c.ctx.Scopes.FindVarAt(fr.scopeId, fr.hasScope, target.Name.Id)
		if !found {
			c.ctx.Fail(id.Node(), diag.KindVariableNotFound, c.ctx.Interner.String(target.Name.Id))
			c.checkExpr(fr, s.Value)
			return
		}
		c.noteCapture(fr, target.Name.Id, matchId, ty)
		targetTy = ty

	case *ast.FieldAccessExpr:
		recvTy := c.ctx.Symbols.InstantiateShallow(c.checkExpr(fr, target.Target))
		if !recvTy.IsVar() && !recvTy.Sym.IsPoison() {
			sym := c.ctx.Symbols.Sym(recvTy.Sym)
			if sym.Tag == symtab.TagContainer && sym.Container.SubKind == symtab.ContainerEnum {
				// Enum payload probes read as Option; they are not places.
				c.ctx.Fail(id.Node(), diag.KindNotAnLvalue, c.ctx.Symbols.Display(recvTy))
				c.checkExpr(fr, s.Value)
				return
			}
		}
		targetTy = c.fieldTy(target.Target, recvTy, target.Field)

	case *ast.IndexExpr:
		recvTy := c.ctx.Symbols.InstantiateShallow(c.checkExpr(fr, target.Target))
		idxTy := c.checkExpr(fr, target.Index)
		c.unify(target.Index.Node(), diag.KindInvalidType, idxTy, symtab.TyCon(symtab.SymI64, symtab.EmptyGenList))
		if recvTy.IsVar() || recvTy.Sym != symtab.SymList {
			if !recvTy.IsVar() && recvTy.Sym.IsPoison() {
				targetTy = c.poison()
				break
			}
			c.ctx.Fail(id.Node(), diag.KindIndexOnNonList, c.ctx.Symbols.Display(recvTy))
			c.checkExpr(fr, s.Value)
			return
		}
		gens := c.ctx.Symbols.GetGens(recvTy.Gens)
		if len(gens) == 1 {
			targetTy = gens[0].Type
		} else {
			targetTy = c.poison()
		}

	default:
		c.ctx.Fail(id.Node(), diag.KindNotAnLvalue, "")
		c.checkExpr(fr, s.Value)
		return
	}

	got := c.checkExprWith(fr, s.Value, &targetTy)
	c.unify(id.Node(), diag.KindValueUpdateTypeMismatch, got, targetTy)
}

// checkFor types `for x in e { ... }`: the iterable's type must expose a
// single-argument next() method returning Option<T>; x binds to T inside
// the loop body.
func (c *checker) checkFor(fr frame, id ast.StmtId, s *ast.ForStmt) {
	iterTy := c.ctx.Symbols.InstantiateShallow(c.checkExpr(fr, s.Iterable))
	if iterTy.IsVar() {
		c.ctx.Fail(s.Iterable.Node(), diag.KindUnableToInfer, "")
		c.checkForBody(fr, s, c.poison())
		return
	}
	if iterTy.Sym.IsPoison() {
		c.checkForBody(fr, s, c.poison())
		return
	}

	ns, hasNs := c.ctx.TypeMethodNs[iterTy.Sym]
	if !hasNs {
		c.ctx.Fail(s.Iterable.Node(), diag.KindValueNotIterator, c.ctx.Symbols.Display(iterTy))
		c.checkForBody(fr, s, c.poison())
		return
	}
	nextSym, found, err := c.ctx.Namespaces.FindSym(ns, intern.IterNext)
	if !found || err != nil {
		c.ctx.Fail(s.Iterable.Node(), diag.KindValueNotIterator, c.ctx.Symbols.Display(iterTy))
		c.checkForBody(fr, s, c.poison())
		return
	}
	next := c.ctx.Symbols.Sym(nextSym)
	if next.Tag != symtab.TagFunction || next.Function == nil || len(next.Function.Args) != 1 {
		c.ctx.Fail(s.Iterable.Node(), diag.KindValueNotIterator, c.ctx.Symbols.Display(iterTy))
		c.checkForBody(fr, s, c.poison())
		return
	}

	env := freshGenEnv(c.ctx, next.Generics, s.Rng)
	selfTy := c.ctx.Symbols.Subst(next.Function.Args[0].Type, env)
	c.unify(s.Iterable.Node(), diag.KindValueNotIterator, iterTy, selfTy)

	elem := c.ctx.Symbols.NewVar(s.Var.Rng)
	retTy := c.ctx.Symbols.Subst(next.Function.Return, env)
	if !c.unify(s.Iterable.Node(), diag.KindValueNotIterator, retTy, c.optionOf(elem)) {
		c.checkForBody(fr, s, c.poison())
		return
	}

	c.ctx.TyInfo.ForNext[id] = pipeline.CallTarget{Sym: nextSym, Gens: c.gensFromEnv(next.Generics, env)}
	c.checkForBody(fr, s, elem)
}

func (c *checker) checkForBody(fr frame, s *ast.ForStmt, elemTy symtab.Ty) {
	loopFr := fr.withScope(c.ctx.Scopes.PushLoop(fr.scopeId, fr.hasScope))
	loopFr = loopFr.withScope(c.ctx.Scopes.PushVariable(loopFr.scopeId, true, s.Var.Id, elemTy))
	c.loopResults = append(c.loopResults, symtab.TyCon(symtab.SymUnit, symtab.EmptyGenList))
	bodyTy := c.checkExpr(loopFr, s.Body)
	c.unify(s.Body.Node(), diag.KindBranchTypeMismatch, bodyTy, symtab.TyCon(symtab.SymUnit, symtab.EmptyGenList))
	c.loopResults = c.loopResults[:len(c.loopResults)-1]
}
