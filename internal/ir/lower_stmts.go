package ir

import (
	"github.com/margarine-lang/marginc/internal/ast"
	"github.com/margarine-lang/marginc/internal/bytecode"
)

// lowerStmt emits one statement; statements leave the operand stack as
// they found it.
func (lc *loweringCtx) lowerStmt(id ast.StmtId) {
	if lc.errCheck(id.Node()) {
		return
	}
	switch s := lc.g.ctx.Program.Arena.Stmt(id).(type) {
	case *ast.VarDeclStmt:
		lc.lowerExpr(s.Value)
		slot := lc.newLocal(s.Name.Id)
		lc.emit().WriteOp(bytecode.OpStore)
		lc.emit().WriteU8(uint8(slot))

	case *ast.TupleDestructureStmt:
		lc.lowerTupleDestructure(s)

	case *ast.AssignStmt:
		lc.lowerAssign(s)

	case *ast.ForStmt:
		lc.lowerFor(id, s)
	}
}

// lowerTupleDestructure reads each field off a duplicated tuple value in
// turn; the final field consumes the tuple itself.
func (lc *loweringCtx) lowerTupleDestructure(s *ast.TupleDestructureStmt) {
	lc.lowerExpr(s.Value)
	if len(s.Names) == 0 {
		lc.emit().WriteOp(bytecode.OpPop)
		return
	}
	slots := make([]int, len(s.Names))
	for i, n := range s.Names {
		slots[i] = lc.newLocal(n.Id)
	}
	for i := range s.Names {
		b := lc.emit()
		if i < len(s.Names)-1 {
			b.WriteOp(bytecode.OpCopy)
		}
		b.WriteOp(bytecode.OpLoadField)
		b.WriteU8(uint8(i))
		b.WriteOp(bytecode.OpStore)
		b.WriteU8(uint8(slots[i]))
	}
}

func (lc *loweringCtx) lowerAssign(s *ast.AssignStmt) {
	switch target := s.Target.(type) {
	case *ast.IdentExpr:
		slot, ok := lc.lookupLocal(target.Name.Id)
		if !ok {
			lc.errHere()
			return
		}
		lc.lowerExpr(s.Value)
		lc.emit().WriteOp(bytecode.OpStore)
		lc.emit().WriteU8(uint8(slot))

	case *ast.FieldAccessExpr:
		ty := lc.exprTy(target.Target)
		idx, isEnum, ok := lc.fieldSlot(ty, target.Field.Id)
		if !ok || isEnum {
			lc.errHere()
			return
		}
		lc.lowerExpr(target.Target)
		lc.lowerExpr(s.Value)
		lc.emit().WriteOp(bytecode.OpStoreField)
		lc.emit().WriteU8(uint8(idx))

	case *ast.IndexExpr:
		lc.lowerExpr(target.Target)
		lc.lowerExpr(target.Index)
		lc.lowerExpr(s.Value)
		lc.emit().WriteOp(bytecode.OpStoreList)

	default:
		lc.errHere()
	}
}

// lowerFor drives the iterator protocol directly: the iterable is held
// in an anonymous local, each iteration calls its next() monomorph, and
// the returned option's tag decides between binding the payload and
// leaving the loop.
func (lc *loweringCtx) lowerFor(id ast.StmtId, s *ast.ForStmt) {
	target, ok := lc.g.ctx.TyInfo.ForNext[id]
	if !ok {
		lc.errHere()
		return
	}
	nextIdx := lc.g.fetch(target.Sym, lc.g.resolveGens(target.Gens, lc.subst))

	lc.lowerExpr(s.Iterable)
	iterSlot := lc.newTemp()
	lc.emit().WriteOp(bytecode.OpStore)
	lc.emit().WriteU8(uint8(iterSlot))

	varSlot := lc.newLocal(s.Var.Id)
	resultSlot := lc.newTemp()

	headB := lc.fn.newBlock()
	someB := lc.fn.newBlock()
	noneB := lc.fn.newBlock()
	exitB := lc.fn.newBlock()
	lc.terminate(Terminator{Kind: TermGoto, Targets: []int{headB}})

	lc.switchTo(headB)
	b := lc.emit()
	b.WriteOp(bytecode.OpLoad)
	b.WriteU8(uint8(iterSlot))
	b.WriteOp(bytecode.OpConstInt)
	b.WriteI64(int64(nextIdx))
	b.WriteOp(bytecode.OpCreateFuncRef)
	b.WriteU8(0)
	b.WriteOp(bytecode.OpCallFuncRef)
	b.WriteU8(1)
	b.WriteOp(bytecode.OpCopy)
	b.WriteOp(bytecode.OpLoadField)
	b.WriteU8(0)
	b.WriteOp(bytecode.OpConstInt)
	b.WriteI64(0)
	b.WriteOp(bytecode.OpEq)
	lc.terminate(Terminator{Kind: TermSwitchBool, Targets: []int{someB, noneB}})

	lc.switchTo(someB)
	lc.emit().WriteOp(bytecode.OpLoadField)
	lc.emit().WriteU8(1)
	lc.emit().WriteOp(bytecode.OpStore)
	lc.emit().WriteU8(uint8(varSlot))
	lc.loops = append(lc.loops, loopCtx{head: headB, exit: exitB, resultSlot: resultSlot})
	lc.lowerExpr(s.Body)
	lc.emit().WriteOp(bytecode.OpPop)
	lc.terminate(Terminator{Kind: TermGoto, Targets: []int{headB}})
	lc.loops = lc.loops[:len(lc.loops)-1]

	lc.switchTo(noneB)
	lc.emit().WriteOp(bytecode.OpPop)
	lc.terminate(Terminator{Kind: TermGoto, Targets: []int{exitB}})

	lc.switchTo(exitB)
}
