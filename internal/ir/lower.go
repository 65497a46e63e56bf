package ir

import (
	"strconv"

	"github.com/margarine-lang/marginc/internal/ast"
	"github.com/margarine-lang/marginc/internal/bytecode"
	"github.com/margarine-lang/marginc/internal/diag"
	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/symtab"
)

type localBinding struct {
	name intern.StrId
	slot int
	anon bool
}

type loopCtx struct {
	head       int
	exit       int
	resultSlot int
}

// loweringCtx is the per-function emission state: the block under
// construction, the local-slot table (never reused within a function, so
// shadowing is append-only), the enclosing-loop stack, and the
// monomorphization substitution body types resolve through.
type loweringCtx struct {
	g          *Generator
	fn         *Function
	cur        int
	subst      map[symtab.VarId]symtab.Ty
	parentHash uint64
	locals     []localBinding
	nextSlot   int
	loops      []loopCtx
}

func (g *Generator) lowerFunction(f *Function, body ast.ExprId, params []intern.StrId, subst map[symtab.VarId]symtab.Ty, hash uint64) {
	lc := &loweringCtx{g: g, fn: f, subst: subst, parentHash: hash}
	lc.cur = f.newBlock()
	// Prologue: reserve the extra local slots above the arguments the
	// caller pushed. The amount is patched once the body is lowered and
	// the high-water mark is known.
	lc.emit().WriteOp(bytecode.OpPushLocalSpace)
	lc.emit().WriteU8(0)
	for i, p := range params {
		lc.locals = append(lc.locals, localBinding{name: p, slot: i})
	}
	lc.nextSlot = len(params)

	lc.lowerExpr(body)
	lc.terminate(Terminator{Kind: TermRet})

	f.Blocks[0].Code.Bytes()[1] = uint8(f.TotalLocals - f.Argc)
}

func (lc *loweringCtx) emit() *bytecode.Buffer {
	return &lc.fn.Blocks[lc.cur].Code
}

// terminate seals the current block; a block already sealed (the body
// diverged) keeps its first terminator.
func (lc *loweringCtx) terminate(t Terminator) {
	blk := lc.fn.Blocks[lc.cur]
	if blk.Term.Kind == TermNone {
		blk.Term = t
	}
}

func (lc *loweringCtx) switchTo(b int) {
	lc.cur = b
}

func (lc *loweringCtx) newLocal(name intern.StrId) int {
	slot := lc.nextSlot
	lc.nextSlot++
	if lc.nextSlot > lc.fn.TotalLocals {
		lc.fn.TotalLocals = lc.nextSlot
	}
	lc.locals = append(lc.locals, localBinding{name: name, slot: slot})
	return slot
}

func (lc *loweringCtx) newTemp() int {
	slot := lc.nextSlot
	lc.nextSlot++
	if lc.nextSlot > lc.fn.TotalLocals {
		lc.fn.TotalLocals = lc.nextSlot
	}
	lc.locals = append(lc.locals, localBinding{slot: slot, anon: true})
	return slot
}

func (lc *loweringCtx) lookupLocal(name intern.StrId) (int, bool) {
	for i := len(lc.locals) - 1; i >= 0; i-- {
		if !lc.locals[i].anon && lc.locals[i].name == name {
			return lc.locals[i].slot, true
		}
	}
	return 0, false
}

// exprTy returns one expression's type, resolved to this
// monomorphization's concrete instantiation.
func (lc *loweringCtx) exprTy(id ast.ExprId) symtab.Ty {
	return lc.g.resolveTy(lc.g.ctx.TyInfo.ExprTypes[id], lc.subst)
}

// errCheck translates a recorded analysis error at node into an Err
// terminator, so execution reaching this point fails loudly instead of
// running code lowered from a meaningless tree. Emission continues in a
// fresh (unreachable) block.
func (lc *loweringCtx) errCheck(n ast.NodeId) bool {
	kind, ok := lc.g.ctx.ErrNodes[n]
	if !ok {
		return false
	}
	rng := lc.g.ctx.Program.Arena.Range(n)
	ref := lc.g.errIndex[errKey{rng: rng, kind: kind}]
	lc.terminate(Terminator{Kind: TermErr, ErrSection: uint8(diag.SectionSema), ErrFile: ref.file, ErrIndex: ref.index})
	lc.switchTo(lc.fn.newBlock())
	return true
}

// errHere seals the current block with a generic fault terminator, for
// trees codegen cannot make sense of even without a recorded diagnostic.
func (lc *loweringCtx) errHere() {
	lc.terminate(Terminator{Kind: TermErr, ErrSection: uint8(diag.SectionSema)})
	lc.switchTo(lc.fn.newBlock())
}

// lowerExpr emits code leaving exactly one value on the operand stack.
// Diverging forms (return, break, continue, recorded errors) seal the
// block and push a placeholder into the unreachable continuation so the
// stack bookkeeping downstream stays uniform.
func (lc *loweringCtx) lowerExpr(id ast.ExprId) {
	if lc.errCheck(id.Node()) {
		lc.emit().WriteOp(bytecode.OpUnit)
		return
	}
	switch e := lc.g.ctx.Program.Arena.Expr(id).(type) {
	case *ast.LiteralExpr:
		lc.lowerLiteral(e)
	case *ast.IdentExpr:
		lc.lowerIdent(id, e)
	case *ast.BinOpExpr:
		lc.lowerBinOp(e)
	case *ast.UnOpExpr:
		lc.lowerExpr(e.Operand)
		if e.Op == ast.OpNot {
			lc.emit().WriteOp(bytecode.OpNot)
		} else {
			lc.emit().WriteOp(bytecode.OpNeg)
		}
	case *ast.IfExpr:
		lc.lowerIf(e)
	case *ast.MatchExpr:
		lc.lowerMatch(id, e)
	case *ast.BlockExpr:
		lc.lowerBlock(e)
	case *ast.CreateStructExpr:
		lc.lowerCreateStruct(id, e)
	case *ast.FieldAccessExpr:
		lc.lowerFieldAccess(e)
	case *ast.CallExpr:
		lc.lowerCall(id, e)
	case *ast.ClosureExpr:
		lc.lowerClosure(id)
	case *ast.RangeExpr:
		lc.lowerExpr(e.Start)
		lc.lowerExpr(e.End)
		lc.emit().WriteOp(bytecode.OpCreateStruct)
		lc.emit().WriteU8(2)
	case *ast.IndexExpr:
		lc.lowerExpr(e.Target)
		lc.lowerExpr(e.Index)
		lc.emit().WriteOp(bytecode.OpIndexList)
	case *ast.AsCastExpr:
		lc.lowerCast(id, e)
	case *ast.UnwrapExpr:
		lc.lowerExpr(e.Value)
		lc.emit().WriteOp(bytecode.OpUnwrap)
	case *ast.OrReturnExpr:
		lc.lowerOrReturn(e)
	case *ast.LoopExpr:
		lc.lowerLoop(e)
	case *ast.ReturnExpr:
		if e.Value != nil {
			lc.lowerExpr(*e.Value)
		} else {
			lc.emit().WriteOp(bytecode.OpUnit)
		}
		lc.terminate(Terminator{Kind: TermRet})
		lc.switchTo(lc.fn.newBlock())
		lc.emit().WriteOp(bytecode.OpUnit)
	case *ast.ContinueExpr:
		if len(lc.loops) == 0 {
			lc.errHere()
		} else {
			lc.terminate(Terminator{Kind: TermGoto, Targets: []int{lc.loops[len(lc.loops)-1].head}})
			lc.switchTo(lc.fn.newBlock())
		}
		lc.emit().WriteOp(bytecode.OpUnit)
	case *ast.BreakExpr:
		lc.lowerBreak(e)
	case *ast.TupleExpr:
		for _, el := range e.Elements {
			lc.lowerExpr(el)
		}
		lc.emit().WriteOp(bytecode.OpCreateStruct)
		lc.emit().WriteU8(uint8(len(e.Elements)))
	case *ast.WithinNamespaceExpr:
		lc.lowerFuncRefAt(id)
	default:
		lc.errHere()
		lc.emit().WriteOp(bytecode.OpUnit)
	}
}

func (lc *loweringCtx) lowerLiteral(e *ast.LiteralExpr) {
	b := lc.emit()
	switch e.Kind {
	case ast.LitInt:
		b.WriteOp(bytecode.OpConstInt)
		b.WriteI64(e.IntVal)
	case ast.LitFloat:
		b.WriteOp(bytecode.OpConstFloat)
		b.WriteF64(e.FloatVal)
	case ast.LitBool:
		b.WriteOp(bytecode.OpConstBool)
		if e.BoolVal {
			b.WriteU8(1)
		} else {
			b.WriteU8(0)
		}
	default:
		b.WriteOp(bytecode.OpConstStr)
		b.WriteU32(lc.g.internString(e.StrVal))
	}
}

func (lc *loweringCtx) lowerIdent(id ast.ExprId, e *ast.IdentExpr) {
	if slot, ok := lc.lookupLocal(e.Name.Id); ok {
		lc.emit().WriteOp(bytecode.OpLoad)
		lc.emit().WriteU8(uint8(slot))
		return
	}
	lc.lowerFuncRefAt(id)
}

// lowerFuncRefAt materializes the function reference recorded against a
// name used as a value: the monomorph's index as a constant, then a
// capture-free reference object.
func (lc *loweringCtx) lowerFuncRefAt(id ast.ExprId) {
	target, ok := lc.g.ctx.TyInfo.CallTargets[id]
	if !ok {
		lc.errHere()
		lc.emit().WriteOp(bytecode.OpUnit)
		return
	}
	fidx := lc.g.fetch(target.Sym, lc.g.resolveGens(target.Gens, lc.subst))
	b := lc.emit()
	b.WriteOp(bytecode.OpConstInt)
	b.WriteI64(int64(fidx))
	b.WriteOp(bytecode.OpCreateFuncRef)
	b.WriteU8(0)
}

var binOpcodes = map[ast.BinOp]bytecode.Op{
	ast.OpAdd: bytecode.OpAdd,
	ast.OpSub: bytecode.OpSub,
	ast.OpMul: bytecode.OpMul,
	ast.OpDiv: bytecode.OpDiv,
	ast.OpMod: bytecode.OpMod,
	ast.OpEq:  bytecode.OpEq,
	ast.OpLt:  bytecode.OpLt,
	ast.OpLe:  bytecode.OpLe,
	ast.OpGt:  bytecode.OpGt,
	ast.OpGe:  bytecode.OpGe,
	ast.OpAnd: bytecode.OpAnd,
	ast.OpOr:  bytecode.OpOr,
}

func (lc *loweringCtx) lowerBinOp(e *ast.BinOpExpr) {
	lc.lowerExpr(e.Left)
	lc.lowerExpr(e.Right)
	if e.Op == ast.OpNe {
		lc.emit().WriteOp(bytecode.OpEq)
		lc.emit().WriteOp(bytecode.OpNot)
		return
	}
	lc.emit().WriteOp(binOpcodes[e.Op])
}

func (lc *loweringCtx) lowerIf(e *ast.IfExpr) {
	result := lc.newTemp()
	thenB := lc.fn.newBlock()
	elseB := lc.fn.newBlock()
	joinB := lc.fn.newBlock()

	lc.lowerExpr(e.Cond)
	lc.terminate(Terminator{Kind: TermSwitchBool, Targets: []int{thenB, elseB}})

	lc.switchTo(thenB)
	lc.lowerExpr(e.Then)
	lc.emit().WriteOp(bytecode.OpStore)
	lc.emit().WriteU8(uint8(result))
	lc.terminate(Terminator{Kind: TermGoto, Targets: []int{joinB}})

	lc.switchTo(elseB)
	if e.Else != nil {
		lc.lowerExpr(*e.Else)
	} else {
		lc.emit().WriteOp(bytecode.OpUnit)
	}
	lc.emit().WriteOp(bytecode.OpStore)
	lc.emit().WriteU8(uint8(result))
	lc.terminate(Terminator{Kind: TermGoto, Targets: []int{joinB}})

	lc.switchTo(joinB)
	lc.emit().WriteOp(bytecode.OpLoad)
	lc.emit().WriteU8(uint8(result))
}

func (lc *loweringCtx) lowerMatch(id ast.ExprId, e *ast.MatchExpr) {
	scrTy := lc.exprTy(e.Scrutinee)
	if scrTy.IsVar() || scrTy.Sym.IsPoison() {
		lc.errHere()
		lc.emit().WriteOp(bytecode.OpUnit)
		return
	}
	sym := lc.g.ctx.Symbols.Sym(scrTy.Sym)
	if sym.Tag != symtab.TagContainer || sym.Container.SubKind != symtab.ContainerEnum {
		lc.errHere()
		lc.emit().WriteOp(bytecode.OpUnit)
		return
	}
	fields := sym.Container.Fields

	lc.lowerExpr(e.Scrutinee)
	scrSlot := lc.newTemp()
	lc.emit().WriteOp(bytecode.OpStore)
	lc.emit().WriteU8(uint8(scrSlot))
	result := lc.newTemp()
	joinB := lc.fn.newBlock()

	// The switch table is indexed by variant order; arms that sema
	// flagged as invalid (or gaps in a match it already diagnosed) fall
	// through to a fault block.
	faultB := -1
	fault := func() int {
		if faultB < 0 {
			faultB = lc.fn.newBlock()
			lc.fn.Blocks[faultB].Term = Terminator{Kind: TermErr, ErrSection: uint8(diag.SectionSema)}
		}
		return faultB
	}

	targets := make([]int, len(fields))
	for i := range targets {
		targets[i] = -1
	}
	type loweredArm struct {
		block   int
		arm     ast.MatchArm
		variant int
	}
	var arms []loweredArm
	wildcardB := -1
	for _, arm := range e.Arms {
		armB := lc.fn.newBlock()
		switch p := arm.Pattern.(type) {
		case ast.VariantPattern:
			variant := -1
			for i, f := range fields {
				if f.Name == p.VariantName.Id {
					variant = i
					break
				}
			}
			if variant < 0 || targets[variant] >= 0 {
				continue
			}
			targets[variant] = armB
			arms = append(arms, loweredArm{block: armB, arm: arm, variant: variant})
		case ast.WildcardPattern:
			if wildcardB < 0 {
				wildcardB = armB
				arms = append(arms, loweredArm{block: armB, arm: arm, variant: -1})
			}
		}
	}
	for i := range targets {
		if targets[i] >= 0 {
			continue
		}
		if wildcardB >= 0 {
			targets[i] = wildcardB
		} else {
			targets[i] = fault()
		}
	}

	lc.emit().WriteOp(bytecode.OpLoad)
	lc.emit().WriteU8(uint8(scrSlot))
	lc.emit().WriteOp(bytecode.OpLoadField)
	lc.emit().WriteU8(0)
	lc.terminate(Terminator{Kind: TermSwitch, Targets: targets})

	for _, la := range arms {
		lc.switchTo(la.block)
		savedLocals := len(lc.locals)
		if vp, ok := la.arm.Pattern.(ast.VariantPattern); ok && vp.Binding != nil {
			slot := lc.newLocal(vp.Binding.Id)
			lc.emit().WriteOp(bytecode.OpLoad)
			lc.emit().WriteU8(uint8(scrSlot))
			lc.emit().WriteOp(bytecode.OpLoadField)
			lc.emit().WriteU8(1)
			lc.emit().WriteOp(bytecode.OpStore)
			lc.emit().WriteU8(uint8(slot))
		}
		lc.lowerExpr(la.arm.Body)
		lc.emit().WriteOp(bytecode.OpStore)
		lc.emit().WriteU8(uint8(result))
		lc.terminate(Terminator{Kind: TermGoto, Targets: []int{joinB}})
		lc.locals = lc.locals[:savedLocals]
	}

	lc.switchTo(joinB)
	lc.emit().WriteOp(bytecode.OpLoad)
	lc.emit().WriteU8(uint8(result))
}

func (lc *loweringCtx) lowerBlock(e *ast.BlockExpr) {
	savedLocals := len(lc.locals)
	for _, s := range e.Stmts {
		lc.lowerStmt(s)
	}
	if e.Tail != nil {
		lc.lowerExpr(*e.Tail)
	} else {
		lc.emit().WriteOp(bytecode.OpUnit)
	}
	lc.locals = lc.locals[:savedLocals]
}

func (lc *loweringCtx) lowerCreateStruct(id ast.ExprId, e *ast.CreateStructExpr) {
	ty := lc.exprTy(id)
	if ty.IsVar() || ty.Sym.IsPoison() {
		lc.errHere()
		lc.emit().WriteOp(bytecode.OpUnit)
		return
	}
	fields := lc.g.ctx.Symbols.Sym(ty.Sym).Container.Fields
	// Field values are laid out (and therefore evaluated) in declaration
	// order, which is also the object's runtime field order.
	for _, f := range fields {
		found := false
		for _, init := range e.Fields {
			if init.Name.Id == f.Name {
				lc.lowerExpr(init.Value)
				found = true
				break
			}
		}
		if !found {
			lc.emit().WriteOp(bytecode.OpUnit)
		}
	}
	lc.emit().WriteOp(bytecode.OpCreateStruct)
	lc.emit().WriteU8(uint8(len(fields)))
}

// fieldSlot resolves a field name against a concrete aggregate type:
// the field's positional index, and whether the access is an enum
// payload probe rather than a plain read.
func (lc *loweringCtx) fieldSlot(ty symtab.Ty, name intern.StrId) (idx int, isEnum bool, ok bool) {
	if ty.IsVar() || ty.Sym.IsPoison() {
		return 0, false, false
	}
	if ty.Sym == symtab.SymTuple {
		n, err := strconv.Atoi(lc.g.ctx.Interner.String(name))
		if err != nil {
			return 0, false, false
		}
		return n, false, true
	}
	sym := lc.g.ctx.Symbols.Sym(ty.Sym)
	if sym.Tag != symtab.TagContainer {
		return 0, false, false
	}
	for i, f := range sym.Container.Fields {
		if f.Name == name {
			return i, sym.Container.SubKind == symtab.ContainerEnum, true
		}
	}
	return 0, false, false
}

func (lc *loweringCtx) lowerFieldAccess(e *ast.FieldAccessExpr) {
	ty := lc.exprTy(e.Target)
	idx, isEnum, ok := lc.fieldSlot(ty, e.Field.Id)
	if !ok {
		lc.errHere()
		lc.emit().WriteOp(bytecode.OpUnit)
		return
	}
	lc.lowerExpr(e.Target)
	if isEnum {
		lc.emit().WriteOp(bytecode.OpLoadEnumField)
		lc.emit().WriteU32(uint32(idx))
		return
	}
	lc.emit().WriteOp(bytecode.OpLoadField)
	lc.emit().WriteU8(uint8(idx))
}

func (lc *loweringCtx) lowerCall(id ast.ExprId, e *ast.CallExpr) {
	if target, ok := lc.g.ctx.TyInfo.CallTargets[id]; ok {
		argc := len(e.Args)
		// A method call's receiver is the implicit first argument.
		if fa, isMethod := lc.g.ctx.Program.Arena.Expr(e.Callee).(*ast.FieldAccessExpr); isMethod {
			lc.lowerExpr(fa.Target)
			argc++
		}
		for _, a := range e.Args {
			lc.lowerExpr(a)
		}
		fidx := lc.g.fetch(target.Sym, lc.g.resolveGens(target.Gens, lc.subst))
		b := lc.emit()
		b.WriteOp(bytecode.OpConstInt)
		b.WriteI64(int64(fidx))
		b.WriteOp(bytecode.OpCreateFuncRef)
		b.WriteU8(0)
		b.WriteOp(bytecode.OpCallFuncRef)
		b.WriteU8(uint8(argc))
		return
	}
	for _, a := range e.Args {
		lc.lowerExpr(a)
	}
	lc.lowerExpr(e.Callee)
	lc.emit().WriteOp(bytecode.OpCallFuncRef)
	lc.emit().WriteU8(uint8(len(e.Args)))
}

func (lc *loweringCtx) lowerClosure(id ast.ExprId) {
	closSym, ok := lc.g.ctx.TyInfo.ClosureSyms[id]
	if !ok {
		lc.errHere()
		lc.emit().WriteOp(bytecode.OpUnit)
		return
	}
	fidx := lc.g.fetchClosure(closSym, lc.subst, lc.parentHash)
	b := lc.emit()
	b.WriteOp(bytecode.OpConstInt)
	b.WriteI64(int64(fidx))
	captures := lc.g.ctx.Symbols.Sym(closSym).Function.Captures
	for _, c := range captures {
		slot, found := lc.lookupLocal(c.Name)
		if !found {
			lc.emit().WriteOp(bytecode.OpUnit)
			continue
		}
		lc.emit().WriteOp(bytecode.OpLoad)
		lc.emit().WriteU8(uint8(slot))
	}
	lc.emit().WriteOp(bytecode.OpCreateFuncRef)
	lc.emit().WriteU8(uint8(len(captures)))
}

func (lc *loweringCtx) lowerCast(id ast.ExprId, e *ast.AsCastExpr) {
	lc.lowerExpr(e.Value)
	from := lc.exprTy(e.Value)
	to := lc.exprTy(id)
	if from.IsVar() || to.IsVar() {
		return
	}
	switch {
	case isIntHead(from.Sym) && isFloatHead(to.Sym):
		lc.emit().WriteOp(bytecode.OpCastIntToFloat)
	case isFloatHead(from.Sym) && isIntHead(to.Sym):
		lc.emit().WriteOp(bytecode.OpCastFloatToInt)
	case from.Sym == symtab.SymBool && isIntHead(to.Sym):
		lc.emit().WriteOp(bytecode.OpCastBoolToInt)
	}
}

func isIntHead(s symtab.SymbolId) bool {
	return s >= symtab.SymI8 && s <= symtab.SymU64
}

func isFloatHead(s symtab.SymbolId) bool {
	return s == symtab.SymF32 || s == symtab.SymF64
}

// lowerOrReturn duplicates the operand, tests the tag, and either leaves
// the payload on the stack or returns the whole value from the enclosing
// function.
func (lc *loweringCtx) lowerOrReturn(e *ast.OrReturnExpr) {
	lc.lowerExpr(e.Value)
	okB := lc.fn.newBlock()
	retB := lc.fn.newBlock()

	b := lc.emit()
	b.WriteOp(bytecode.OpCopy)
	b.WriteOp(bytecode.OpLoadField)
	b.WriteU8(0)
	b.WriteOp(bytecode.OpConstInt)
	b.WriteI64(0)
	b.WriteOp(bytecode.OpEq)
	lc.terminate(Terminator{Kind: TermSwitchBool, Targets: []int{okB, retB}})

	// The failure case propagates the operand itself as the function's
	// return value.
	lc.fn.Blocks[retB].Term = Terminator{Kind: TermRet}

	lc.switchTo(okB)
	lc.emit().WriteOp(bytecode.OpLoadField)
	lc.emit().WriteU8(1)
}

func (lc *loweringCtx) lowerLoop(e *ast.LoopExpr) {
	result := lc.newTemp()
	headB := lc.fn.newBlock()
	exitB := lc.fn.newBlock()
	lc.terminate(Terminator{Kind: TermGoto, Targets: []int{headB}})

	lc.loops = append(lc.loops, loopCtx{head: headB, exit: exitB, resultSlot: result})
	lc.switchTo(headB)
	lc.lowerExpr(e.Body)
	lc.emit().WriteOp(bytecode.OpPop)
	lc.terminate(Terminator{Kind: TermGoto, Targets: []int{headB}})
	lc.loops = lc.loops[:len(lc.loops)-1]

	lc.switchTo(exitB)
	lc.emit().WriteOp(bytecode.OpLoad)
	lc.emit().WriteU8(uint8(result))
}

func (lc *loweringCtx) lowerBreak(e *ast.BreakExpr) {
	if len(lc.loops) == 0 {
		lc.errHere()
		lc.emit().WriteOp(bytecode.OpUnit)
		return
	}
	loop := lc.loops[len(lc.loops)-1]
	if e.Value != nil {
		lc.lowerExpr(*e.Value)
	} else {
		lc.emit().WriteOp(bytecode.OpUnit)
	}
	lc.emit().WriteOp(bytecode.OpStore)
	lc.emit().WriteU8(uint8(loop.resultSlot))
	lc.terminate(Terminator{Kind: TermGoto, Targets: []int{loop.exit}})
	lc.switchTo(lc.fn.newBlock())
	lc.emit().WriteOp(bytecode.OpUnit)
}
