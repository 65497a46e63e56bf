package sema

import (
	"strconv"
	"strings"

	"github.com/margarine-lang/marginc/internal/ast"
	"github.com/margarine-lang/marginc/internal/diag"
	"github.com/margarine-lang/marginc/internal/intern"
	"github.com/margarine-lang/marginc/internal/nsmap"
	"github.com/margarine-lang/marginc/internal/pipeline"
	"github.com/margarine-lang/marginc/internal/symtab"
)

func (c *checker) checkExpr(fr frame, id ast.ExprId) symtab.Ty {
	return c.checkExprWith(fr, id, nil)
}

// checkExprWith types one expression. expect, when non-nil, is the type
// the surrounding context wants; it only influences closures (their
// parameter and return types pre-unify against an expected function type
// before the body is checked) — every other form is typed bottom-up and
// the caller unifies afterwards.
func (c *checker) checkExprWith(fr frame, id ast.ExprId, expect *symtab.Ty) symtab.Ty {
	switch ex := c.ctx.Program.Arena.Expr(id).(type) {
	case *ast.LiteralExpr:
		return c.record(id, c.literalTy(ex))
	case *ast.IdentExpr:
		return c.record(id, c.checkIdent(fr, id, ex))
	case *ast.BinOpExpr:
		return c.record(id, c.checkBinOp(fr, id, ex))
	case *ast.UnOpExpr:
		return c.record(id, c.checkUnOp(fr, id, ex))
	case *ast.IfExpr:
		return c.record(id, c.checkIf(fr, id, ex))
	case *ast.MatchExpr:
		return c.record(id, c.checkMatch(fr, id, ex))
	case *ast.BlockExpr:
		return c.record(id, c.checkBlock(fr, ex))
	case *ast.CreateStructExpr:
		return c.record(id, c.checkCreateStruct(fr, id, ex))
	case *ast.FieldAccessExpr:
		return c.record(id, c.checkFieldAccess(fr, id, ex))
	case *ast.CallExpr:
		return c.record(id, c.checkCall(fr, id, ex))
	case *ast.ClosureExpr:
		return c.record(id, c.checkClosure(fr, id, ex, expect))
	case *ast.RangeExpr:
		return c.record(id, c.checkRange(fr, id, ex))
	case *ast.IndexExpr:
		return c.record(id, c.checkIndex(fr, id, ex))
	case *ast.AsCastExpr:
		return c.record(id, c.checkCast(fr, id, ex))
	case *ast.UnwrapExpr:
		return c.record(id, c.checkUnwrap(fr, id, ex))
	case *ast.OrReturnExpr:
		return c.record(id, c.checkOrReturn(fr, id, ex))
	case *ast.LoopExpr:
		return c.record(id, c.checkLoop(fr, ex))
	case *ast.ReturnExpr:
		return c.record(id, c.checkReturn(fr, id, ex))
	case *ast.ContinueExpr:
		if !c.ctx.Scopes.InLoop(fr.scopeId, fr.hasScope) {
			c.ctx.Fail(id.Node(), diag.KindContinueOutsideLoop, "")
		}
		return c.record(id, symtab.TyCon(symtab.SymNever, symtab.EmptyGenList))
	case *ast.BreakExpr:
		return c.record(id, c.checkBreak(fr, id, ex))
	case *ast.TupleExpr:
		tys := make([]symtab.Ty, len(ex.Elements))
		for i, e := range ex.Elements {
			tys[i] = c.checkExpr(fr, e)
		}
		return c.record(id, c.tupleTy(tys))
	case *ast.WithinNamespaceExpr:
		return c.record(id, c.checkWithinNamespace(fr, id, ex))
	default:
		c.ctx.Fail(id.Node(), diag.KindUnableToInfer, "")
		return c.record(id, c.poison())
	}
}

func (c *checker) literalTy(e *ast.LiteralExpr) symtab.Ty {
	switch e.Kind {
	case ast.LitInt:
		return symtab.TyCon(symtab.SymI64, symtab.EmptyGenList)
	case ast.LitFloat:
		return symtab.TyCon(symtab.SymF64, symtab.EmptyGenList)
	case ast.LitBool:
		return symtab.TyCon(symtab.SymBool, symtab.EmptyGenList)
	default:
		return symtab.TyCon(symtab.SymStr, symtab.EmptyGenList)
	}
}

// unify wraps Eq with the standard mismatch diagnostic: on failure it
// records kind at node, with the two rendered types as detail.
func (c *checker) unify(node ast.NodeId, kind diag.Kind, a, b symtab.Ty) bool {
	ok, err := c.ctx.Symbols.Eq(a, b)
	if ok && err == nil {
		return true
	}
	c.ctx.Fail(node, kind, c.ctx.Symbols.Display(a)+" vs "+c.ctx.Symbols.Display(b))
	return false
}

func (c *checker) posName(i int) intern.StrId {
	return c.ctx.Interner.Intern(strconv.Itoa(i))
}

func (c *checker) tupleTy(elems []symtab.Ty) symtab.Ty {
	entries := make([]symtab.GenEntry, len(elems))
	for i, t := range elems {
		entries[i] = symtab.GenEntry{Name: c.posName(i), Type: t}
	}
	return symtab.TyCon(symtab.SymTuple, c.ctx.Symbols.AddGens(entries))
}

// funcTy builds the structural function type (params..., ret) on the
// variable-arity Func head.
func (c *checker) funcTy(params []symtab.Ty, ret symtab.Ty) symtab.Ty {
	entries := make([]symtab.GenEntry, len(params)+1)
	for i, t := range params {
		entries[i] = symtab.GenEntry{Name: c.posName(i), Type: t}
	}
	entries[len(params)] = symtab.GenEntry{Name: c.posName(len(params)), Type: ret}
	return symtab.TyCon(symtab.SymFunc, c.ctx.Symbols.AddGens(entries))
}

func (c *checker) optionOf(t symtab.Ty) symtab.Ty {
	name := c.ctx.Symbols.Sym(symtab.SymOption).Generics[0]
	return symtab.TyCon(symtab.SymOption, c.ctx.Symbols.AddGens([]symtab.GenEntry{{Name: name, Type: t}}))
}

func isNumericSym(s symtab.SymbolId) bool {
	return s >= symtab.SymI8 && s <= symtab.SymF64
}

func isIntSym(s symtab.SymbolId) bool {
	return s >= symtab.SymI8 && s <= symtab.SymU64
}

func isFloatSym(s symtab.SymbolId) bool {
	return s == symtab.SymF32 || s == symtab.SymF64
}

// resolveTy resolves a type written inside a function body (annotation,
// explicit call generics, cast target) into a Ty: generic parameters of
// the enclosing function come from fr.genEnv, everything else resolves
// through the scope chain's namespaces and then the root.
func (c *checker) resolveTy(fr frame, t *ast.TypeExpr) (symtab.Ty, bool) {
	if t == nil {
		return symtab.TyCon(symtab.SymUnit, symtab.EmptyGenList), true
	}
	if t.IsTuple {
		elems := make([]symtab.Ty, len(t.Elements))
		ok := true
		for i, e := range t.Elements {
			et, k := c.resolveTy(fr, e)
			elems[i] = et
			ok = ok && k
		}
		return c.tupleTy(elems), ok
	}
	if fr.genEnv != nil {
		if ty, ok := fr.genEnv[t.Name.Id]; ok {
			return ty, true
		}
	}
	sym, found := c.lookupTypeSym(fr, t.Name.Id)
	if !found {
		c.ctx.FailRange(t.Rng, diag.KindUnknownType, c.ctx.Interner.String(t.Name.Id))
		return c.poison(), false
	}
	paramNames := c.ctx.Symbols.Sym(sym).Generics
	if len(t.Args) != len(paramNames) {
		c.ctx.FailRange(t.Rng, diag.KindGenericLengthMismatch, c.ctx.Interner.String(t.Name.Id))
		return c.poison(), false
	}
	entries := make([]symtab.GenEntry, len(t.Args))
	ok := true
	for i, a := range t.Args {
		at, k := c.resolveTy(fr, a)
		entries[i] = symtab.GenEntry{Name: paramNames[i], Type: at}
		ok = ok && k
	}
	return symtab.TyCon(sym, c.ctx.Symbols.AddGens(entries)), ok
}

// symbolValueTy types a function symbol used as a value: its signature is
// instantiated with fresh variables for every generic parameter and the
// resulting function type is returned; the instantiation is recorded at
// node so codegen can materialize the right monomorph's reference.
func (c *checker) symbolValueTy(fr frame, at ast.ExprId, sym symtab.SymbolId) symtab.Ty {
	s := c.ctx.Symbols.Sym(sym)
	if s.Tag != symtab.TagFunction || s.Function == nil {
		c.ctx.Fail(at.Node(), diag.KindVariableNotFound, c.ctx.Interner.String(s.Path))
		return c.poison()
	}
	rng := c.ctx.Program.Arena.Expr(at).Range()
	env := freshGenEnv(c.ctx, s.Generics, rng)
	params := make([]symtab.Ty, len(s.Function.Args))
	for i, a := range s.Function.Args {
		params[i] = c.ctx.Symbols.Subst(a.Type, env)
	}
	ret := c.ctx.Symbols.Subst(s.Function.Return, env)
	c.ctx.TyInfo.CallTargets[at] = pipeline.CallTarget{Sym: sym, Gens: c.gensFromEnv(s.Generics, env)}
	return c.funcTy(params, ret)
}

func (c *checker) gensFromEnv(names []intern.StrId, env map[intern.StrId]symtab.Ty) symtab.GenListId {
	if len(names) == 0 {
		return symtab.EmptyGenList
	}
	entries := make([]symtab.GenEntry, len(names))
	for i, n := range names {
		entries[i] = symtab.GenEntry{Name: n, Type: env[n]}
	}
	return c.ctx.Symbols.AddGens(entries)
}

func (c *checker) checkIdent(fr frame, id ast.ExprId, e *ast.IdentExpr) symtab.Ty {
	ty, isVar, sym, ok := c.lookupValue(fr, e.Name.Id)
	if !ok {
		c.ctx.Fail(id.Node(), diag.KindVariableNotFound, c.ctx.Interner.String(e.Name.Id))
		return c.poison()
	}
	if isVar {
		return ty
	}
	return c.symbolValueTy(fr, id, sym)
}

func (c *checker) checkBinOp(fr frame, id ast.ExprId, e *ast.BinOpExpr) symtab.Ty {
	lt := c.checkExpr(fr, e.Left)
	rt := c.checkExpr(fr, e.Right)

	switch e.Op {
	case ast.OpAnd, ast.OpOr:
		boolTy := symtab.TyCon(symtab.SymBool, symtab.EmptyGenList)
		c.unify(e.Left.Node(), diag.KindInvalidBinaryOp, lt, boolTy)
		c.unify(e.Right.Node(), diag.KindInvalidBinaryOp, rt, boolTy)
		return boolTy

	case ast.OpEq, ast.OpNe:
		c.unify(id.Node(), diag.KindInvalidBinaryOp, lt, rt)
		return symtab.TyCon(symtab.SymBool, symtab.EmptyGenList)

	case ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		if !c.unify(id.Node(), diag.KindInvalidBinaryOp, lt, rt) {
			return symtab.TyCon(symtab.SymBool, symtab.EmptyGenList)
		}
		t := c.ctx.Symbols.InstantiateShallow(lt)
		if !t.IsVar() && !t.Sym.IsPoison() && !isNumericSym(t.Sym) {
			c.ctx.Fail(id.Node(), diag.KindInvalidBinaryOp, c.ctx.Symbols.Display(t))
		}
		return symtab.TyCon(symtab.SymBool, symtab.EmptyGenList)

	default: // arithmetic
		if !c.unify(id.Node(), diag.KindInvalidBinaryOp, lt, rt) {
			return c.poison()
		}
		t := c.ctx.Symbols.InstantiateShallow(lt)
		if t.IsVar() || t.Sym.IsPoison() {
			return lt
		}
		if isNumericSym(t.Sym) {
			return lt
		}
		// String concatenation rides the add opcode; everything else on a
		// non-numeric operand is rejected.
		if t.Sym == symtab.SymStr && e.Op == ast.OpAdd {
			return lt
		}
		c.ctx.Fail(id.Node(), diag.KindInvalidBinaryOp, c.ctx.Symbols.Display(t))
		return c.poison()
	}
}

func (c *checker) checkUnOp(fr frame, id ast.ExprId, e *ast.UnOpExpr) symtab.Ty {
	ot := c.checkExpr(fr, e.Operand)
	switch e.Op {
	case ast.OpNot:
		boolTy := symtab.TyCon(symtab.SymBool, symtab.EmptyGenList)
		c.unify(id.Node(), diag.KindInvalidUnaryOp, ot, boolTy)
		return boolTy
	default: // negation
		t := c.ctx.Symbols.InstantiateShallow(ot)
		if t.IsVar() {
			// Drive inference: a bare negation on an unconstrained
			// operand defaults it to i64.
			i64 := symtab.TyCon(symtab.SymI64, symtab.EmptyGenList)
			c.unify(id.Node(), diag.KindInvalidUnaryOp, ot, i64)
			return i64
		}
		if !t.Sym.IsPoison() && !isNumericSym(t.Sym) {
			c.ctx.Fail(id.Node(), diag.KindInvalidUnaryOp, c.ctx.Symbols.Display(t))
			return c.poison()
		}
		return ot
	}
}

func (c *checker) checkIf(fr frame, id ast.ExprId, e *ast.IfExpr) symtab.Ty {
	condTy := c.checkExpr(fr, e.Cond)
	c.unify(e.Cond.Node(), diag.KindBranchTypeMismatch, condTy, symtab.TyCon(symtab.SymBool, symtab.EmptyGenList))

	thenTy := c.checkExpr(fr, e.Then)
	if e.Else == nil {
		unit := symtab.TyCon(symtab.SymUnit, symtab.EmptyGenList)
		if ok, err := c.ctx.Symbols.Eq(thenTy, unit); !ok || err != nil {
			c.ctx.Fail(id.Node(), diag.KindMissingElse, c.ctx.Symbols.Display(thenTy))
			return c.poison()
		}
		return unit
	}
	elseTy := c.checkExpr(fr, *e.Else)
	if !c.unify(id.Node(), diag.KindBranchTypeMismatch, thenTy, elseTy) {
		return c.poison()
	}
	return thenTy
}

func (c *checker) checkMatch(fr frame, id ast.ExprId, e *ast.MatchExpr) symtab.Ty {
	scrTy := c.ctx.Symbols.InstantiateShallow(c.checkExpr(fr, e.Scrutinee))
	if scrTy.IsVar() {
		c.ctx.Fail(e.Scrutinee.Node(), diag.KindUnableToInfer, "")
		return c.poison()
	}
	if scrTy.Sym.IsPoison() {
		return c.poison()
	}
	sym := c.ctx.Symbols.Sym(scrTy.Sym)
	if sym.Tag != symtab.TagContainer || sym.Container.SubKind != symtab.ContainerEnum {
		c.ctx.Fail(e.Scrutinee.Node(), diag.KindMatchOnNonEnum, c.ctx.Symbols.Display(scrTy))
		return c.poison()
	}

	env := instantiateEnvFor(c.ctx, scrTy)
	result := c.ctx.Symbols.NewVar(c.ctx.Program.Arena.Expr(id).Range())

	covered := make(map[int]bool)
	hasWildcard := false
	for _, arm := range e.Arms {
		armFr := fr
		switch p := arm.Pattern.(type) {
		case ast.VariantPattern:
			idx := -1
			for i, f := range sym.Container.Fields {
				if f.Name == p.VariantName.Id {
					idx = i
					break
				}
			}
			if idx < 0 {
				c.ctx.Fail(id.Node(), diag.KindInvalidMatchArm, c.ctx.Interner.String(p.VariantName.Id))
			} else if covered[idx] {
				c.ctx.Fail(id.Node(), diag.KindDuplicateMatchArm, c.ctx.Interner.String(p.VariantName.Id))
			} else {
				covered[idx] = true
			}
			if p.Binding != nil && idx >= 0 {
				payload := c.ctx.Symbols.Subst(sym.Container.Fields[idx].Type, env)
				armFr = armFr.withScope(c.ctx.Scopes.PushVariable(armFr.scopeId, armFr.hasScope, p.Binding.Id, payload))
			}
		case ast.WildcardPattern:
			hasWildcard = true
		}
		armTy := c.checkExpr(armFr, arm.Body)
		c.unify(arm.Body.Node(), diag.KindBranchTypeMismatch, armTy, result)
	}

	if !hasWildcard && len(covered) < len(sym.Container.Fields) {
		var missing []string
		for i, f := range sym.Container.Fields {
			if !covered[i] {
				missing = append(missing, c.ctx.Interner.String(f.Name))
			}
		}
		c.ctx.Fail(id.Node(), diag.KindNonExhaustiveMatch, strings.Join(missing, ", "))
	}
	return result
}

func (c *checker) checkBlock(fr frame, e *ast.BlockExpr) symtab.Ty {
	for _, s := range e.Stmts {
		fr = c.checkStmt(fr, s)
	}
	if e.Tail != nil {
		return c.checkExpr(fr, *e.Tail)
	}
	return symtab.TyCon(symtab.SymUnit, symtab.EmptyGenList)
}

func (c *checker) checkCreateStruct(fr frame, id ast.ExprId, e *ast.CreateStructExpr) symtab.Ty {
	if e.Type == nil || e.Type.IsTuple {
		c.ctx.Fail(id.Node(), diag.KindStructCreateOnNonStruct, "")
		return c.poison()
	}
	symId, found := c.lookupTypeSym(fr, e.Type.Name.Id)
	if !found {
		c.ctx.Fail(id.Node(), diag.KindUnknownType, c.ctx.Interner.String(e.Type.Name.Id))
		return c.poison()
	}
	sym := c.ctx.Symbols.Sym(symId)
	if sym.Tag != symtab.TagContainer ||
		(sym.Container.SubKind != symtab.ContainerStruct && sym.Container.SubKind != symtab.ContainerTuple) {
		c.ctx.Fail(id.Node(), diag.KindStructCreateOnNonStruct, c.ctx.Interner.String(e.Type.Name.Id))
		return c.poison()
	}

	rng := e.Rng
	var env map[intern.StrId]symtab.Ty
	if len(e.Type.Args) > 0 {
		if len(e.Type.Args) != len(sym.Generics) {
			c.ctx.Fail(id.Node(), diag.KindGenericLengthMismatch, c.ctx.Interner.String(sym.Path))
			return c.poison()
		}
		env = make(map[intern.StrId]symtab.Ty, len(sym.Generics))
		for i, a := range e.Type.Args {
			at, _ := c.resolveTy(fr, a)
			env[sym.Generics[i]] = at
		}
	} else {
		env = freshGenEnv(c.ctx, sym.Generics, rng)
	}

	seen := make(map[intern.StrId]bool, len(e.Fields))
	for _, init := range e.Fields {
		if seen[init.Name.Id] {
			c.ctx.Fail(id.Node(), diag.KindDuplicateField, c.ctx.Interner.String(init.Name.Id))
			continue
		}
		seen[init.Name.Id] = true

		var declared *symtab.ContainerField
		for i := range sym.Container.Fields {
			if sym.Container.Fields[i].Name == init.Name.Id {
				declared = &sym.Container.Fields[i]
				break
			}
		}
		if declared == nil {
			c.ctx.Fail(id.Node(), diag.KindUnknownField, c.ctx.Interner.String(init.Name.Id))
			c.checkExpr(fr, init.Value)
			continue
		}
		want := c.ctx.Symbols.Subst(declared.Type, env)
		got := c.checkExprWith(fr, init.Value, &want)
		c.unify(init.Value.Node(), diag.KindInvalidType, got, want)
	}

	var missing []string
	for _, f := range sym.Container.Fields {
		if !seen[f.Name] {
			missing = append(missing, c.ctx.Interner.String(f.Name))
		}
	}
	if len(missing) > 0 {
		c.ctx.Fail(id.Node(), diag.KindMissingFields, strings.Join(missing, ", "))
	}

	return symtab.TyCon(symId, c.gensFromEnv(sym.Generics, env))
}

func (c *checker) checkFieldAccess(fr frame, id ast.ExprId, e *ast.FieldAccessExpr) symtab.Ty {
	targetTy := c.ctx.Symbols.InstantiateShallow(c.checkExpr(fr, e.Target))
	return c.fieldTy(id, targetTy, e.Field)
}

// fieldTy types one field selection against an already-typed target: a
// struct or tuple field reads as the field's instantiated type, an enum
// variant name probes the payload and reads as Option<payload>.
func (c *checker) fieldTy(id ast.ExprId, targetTy symtab.Ty, field ast.Name) symtab.Ty {
	if targetTy.IsVar() {
		c.ctx.Fail(id.Node(), diag.KindUnableToInfer, "")
		return c.poison()
	}
	if targetTy.Sym.IsPoison() {
		return c.poison()
	}
	if targetTy.Sym == symtab.SymTuple {
		gens := c.ctx.Symbols.GetGens(targetTy.Gens)
		idx, err := strconv.Atoi(c.ctx.Interner.String(field.Id))
		if err != nil || idx < 0 || idx >= len(gens) {
			c.ctx.Fail(id.Node(), diag.KindUnknownField, c.ctx.Interner.String(field.Id))
			return c.poison()
		}
		return gens[idx].Type
	}

	sym := c.ctx.Symbols.Sym(targetTy.Sym)
	if sym.Tag != symtab.TagContainer {
		c.ctx.Fail(id.Node(), diag.KindFieldAccessOnNonAggregate, c.ctx.Symbols.Display(targetTy))
		return c.poison()
	}
	env := instantiateEnvFor(c.ctx, targetTy)
	for _, f := range sym.Container.Fields {
		if f.Name != field.Id {
			continue
		}
		ft := c.ctx.Symbols.Subst(f.Type, env)
		if sym.Container.SubKind == symtab.ContainerEnum {
			return c.optionOf(ft)
		}
		return ft
	}
	c.ctx.Fail(id.Node(), diag.KindUnknownField, c.ctx.Interner.String(field.Id))
	return c.poison()
}

func (c *checker) checkCall(fr frame, id ast.ExprId, e *ast.CallExpr) symtab.Ty {
	switch callee := c.ctx.Program.Arena.Expr(e.Callee).(type) {
	case *ast.IdentExpr:
		// Local variables holding function values shadow named functions.
		if ty, matchId, found := c.ctx.Scopes.FindVarAt(fr.scopeId, fr.hasScope, callee.Name.Id); found {
			c.noteCapture(fr, callee.Name.Id, matchId, ty)
			c.record(e.Callee, ty)
			return c.checkIndirectCall(fr, id, e, ty)
		}
		if _, _, sym, ok := c.lookupValue(fr, callee.Name.Id); ok {
			return c.checkSymbolCall(fr, id, e, sym, nil)
		}
		c.ctx.Fail(e.Callee.Node(), diag.KindFunctionNotFound, c.ctx.Interner.String(callee.Name.Id))
		c.record(e.Callee, c.poison())
		return c.poison()

	case *ast.FieldAccessExpr:
		recvTy := c.ctx.Symbols.InstantiateShallow(c.checkExpr(fr, callee.Target))
		if !recvTy.IsVar() && !recvTy.Sym.IsPoison() {
			if ns, ok := c.ctx.TypeMethodNs[recvTy.Sym]; ok {
				if sym, found, err := c.ctx.Namespaces.FindSym(ns, callee.Field.Id); found && err == nil {
					return c.checkSymbolCall(fr, id, e, sym, &recvTy)
				}
			}
		}
		// Not a method: a function-valued field.
		fieldTy := c.fieldTy(e.Callee, recvTy, callee.Field)
		c.record(e.Callee, fieldTy)
		return c.checkIndirectCall(fr, id, e, fieldTy)

	case *ast.WithinNamespaceExpr:
		if sym, ok := c.resolvePathSym(fr, e.Callee, callee); ok {
			return c.checkSymbolCall(fr, id, e, sym, nil)
		}
		c.record(e.Callee, c.poison())
		return c.poison()

	default:
		calleeTy := c.checkExpr(fr, e.Callee)
		return c.checkIndirectCall(fr, id, e, calleeTy)
	}
}

// checkSymbolCall types a direct call to a named function symbol,
// optionally with a method receiver supplying the implicit first
// argument. The instantiation chosen for the callee's generics (explicit
// arguments, or fresh variables driven by argument unification) is
// recorded for monomorphization.
func (c *checker) checkSymbolCall(fr frame, id ast.ExprId, e *ast.CallExpr, symId symtab.SymbolId, recv *symtab.Ty) symtab.Ty {
	sym := c.ctx.Symbols.Sym(symId)
	if sym.Tag != symtab.TagFunction || sym.Function == nil {
		c.ctx.Fail(id.Node(), diag.KindCallOnNonFunction, c.ctx.Interner.String(sym.Path))
		c.record(e.Callee, c.poison())
		return c.poison()
	}
	fn := sym.Function

	rng := e.Rng
	var env map[intern.StrId]symtab.Ty
	if len(e.Generics) > 0 {
		if len(e.Generics) != len(sym.Generics) {
			c.ctx.Fail(id.Node(), diag.KindGenericLengthMismatch, c.ctx.Interner.String(sym.Path))
			c.record(e.Callee, c.poison())
			return c.poison()
		}
		env = make(map[intern.StrId]symtab.Ty, len(sym.Generics))
		for i, g := range e.Generics {
			gt, _ := c.resolveTy(fr, g)
			env[sym.Generics[i]] = gt
		}
	} else {
		env = freshGenEnv(c.ctx, sym.Generics, rng)
	}

	nRecv := 0
	if recv != nil {
		nRecv = 1
	}
	if len(e.Args)+nRecv != len(fn.Args) {
		c.ctx.Fail(id.Node(), diag.KindArityMismatch,
			c.ctx.Interner.String(sym.Path)+": "+strconv.Itoa(len(e.Args)+nRecv)+" for "+strconv.Itoa(len(fn.Args)))
	}

	params := make([]symtab.Ty, len(fn.Args))
	for i, a := range fn.Args {
		params[i] = c.ctx.Symbols.Subst(a.Type, env)
	}
	if recv != nil && len(params) > 0 {
		c.unify(e.Callee.Node(), diag.KindInvalidType, *recv, params[0])
	}
	for i, argExpr := range e.Args {
		pi := i + nRecv
		if pi >= len(params) {
			c.checkExpr(fr, argExpr)
			continue
		}
		got := c.checkExprWith(fr, argExpr, &params[pi])
		c.unify(argExpr.Node(), diag.KindInvalidType, got, params[pi])
	}

	ret := c.ctx.Symbols.Subst(fn.Return, env)
	c.ctx.TyInfo.CallTargets[id] = pipeline.CallTarget{Sym: symId, Gens: c.gensFromEnv(sym.Generics, env)}
	c.record(e.Callee, c.funcTy(params, ret))
	return ret
}

// checkIndirectCall types a call through a function value: the callee
// type must be (or unify with) a structural function type of matching
// arity.
func (c *checker) checkIndirectCall(fr frame, id ast.ExprId, e *ast.CallExpr, calleeTy symtab.Ty) symtab.Ty {
	calleeTy = c.ctx.Symbols.InstantiateShallow(calleeTy)
	if !calleeTy.IsVar() && calleeTy.Sym.IsPoison() {
		for _, a := range e.Args {
			c.checkExpr(fr, a)
		}
		return c.poison()
	}
	if calleeTy.IsVar() {
		params := make([]symtab.Ty, len(e.Args))
		for i, a := range e.Args {
			params[i] = c.checkExpr(fr, a)
		}
		ret := c.ctx.Symbols.NewVar(e.Rng)
		c.unify(id.Node(), diag.KindCallOnNonFunction, calleeTy, c.funcTy(params, ret))
		return ret
	}
	if calleeTy.Sym != symtab.SymFunc {
		c.ctx.Fail(id.Node(), diag.KindCallOnNonFunction, c.ctx.Symbols.Display(calleeTy))
		for _, a := range e.Args {
			c.checkExpr(fr, a)
		}
		return c.poison()
	}
	gens := c.ctx.Symbols.GetGens(calleeTy.Gens)
	if len(gens) == 0 {
		c.ctx.Fail(id.Node(), diag.KindCallOnNonFunction, c.ctx.Symbols.Display(calleeTy))
		return c.poison()
	}
	params, ret := gens[:len(gens)-1], gens[len(gens)-1].Type
	if len(e.Args) != len(params) {
		c.ctx.Fail(id.Node(), diag.KindArityMismatch,
			strconv.Itoa(len(e.Args))+" for "+strconv.Itoa(len(params)))
	}
	for i, argExpr := range e.Args {
		if i >= len(params) {
			c.checkExpr(fr, argExpr)
			continue
		}
		want := params[i].Type
		got := c.checkExprWith(fr, argExpr, &want)
		c.unify(argExpr.Node(), diag.KindInvalidType, got, want)
	}
	return ret
}

func (c *checker) checkClosure(fr frame, id ast.ExprId, e *ast.ClosureExpr, expect *symtab.Ty) symtab.Ty {
	// The closure's symbol is created before its body is checked so a
	// recursive reference through a variable the closure is bound to
	// still resolves; captures land on the symbol afterwards.
	closPath := c.ctx.Interner.Intern("closure#" + strconv.Itoa(len(c.ctx.TyInfo.ClosureSyms)))
	closSym := c.ctx.Symbols.Pending(closPath, nil)
	c.ctx.TyInfo.ClosureSyms[id] = closSym

	params := make([]symtab.Ty, len(e.Params))
	for i, p := range e.Params {
		if p.Type != nil {
			pt, _ := c.resolveTy(fr, p.Type)
			params[i] = pt
		} else {
			params[i] = c.ctx.Symbols.NewVar(p.Name.Rng)
		}
	}
	var ret symtab.Ty
	if e.Return != nil {
		rt, _ := c.resolveTy(fr, e.Return)
		ret = rt
	} else {
		ret = c.ctx.Symbols.NewVar(e.Rng)
	}

	// Pre-unify against the expected function type before the body is
	// checked, so annotations flow inward (a closure argument to
	// map(f: (T) -> U) gets its parameter types from the call).
	if expect != nil {
		exp := c.ctx.Symbols.InstantiateShallow(*expect)
		if !exp.IsVar() && exp.Sym == symtab.SymFunc {
			expGens := c.ctx.Symbols.GetGens(exp.Gens)
			if len(expGens) == len(params)+1 {
				for i := range params {
					c.ctx.Symbols.Eq(params[i], expGens[i].Type)
				}
				c.ctx.Symbols.Eq(ret, expGens[len(params)].Type)
			}
		}
	}

	boundary := c.ctx.Scopes.PushClosure(fr.scopeId, fr.hasScope, closSym, ret)
	bodyFr := fr.withScope(boundary)
	var captures []symtab.ClosureCapture
	cl := &closureCtx{boundary: boundary, captures: &captures, captured: make(map[intern.StrId]bool)}
	bodyFr.closures = append(append([]*closureCtx{}, fr.closures...), cl)
	for i, p := range e.Params {
		bodyFr = bodyFr.withScope(c.ctx.Scopes.PushVariable(bodyFr.scopeId, true, p.Name.Id, params[i]))
	}

	bodyTy := c.checkExpr(bodyFr, e.Body)
	c.unify(e.Body.Node(), diag.KindReturnMismatch, bodyTy, ret)

	args := make([]symtab.FuncArg, len(e.Params))
	for i, p := range e.Params {
		args[i] = symtab.FuncArg{Name: p.Name.Id}
	}
	c.ctx.Symbols.Bind(closSym, symtab.Symbol{
		Path: closPath,
		Tag:  symtab.TagFunction,
		Function: &symtab.FunctionData{
			Args:     args,
			Return:   symtab.Concrete(symtab.SymUnit, nil, e.Rng),
			Kind:     symtab.FuncClosure,
			Captures: captures,
		},
	})
	return c.funcTy(params, ret)
}

func (c *checker) checkRange(fr frame, id ast.ExprId, e *ast.RangeExpr) symtab.Ty {
	i64 := symtab.TyCon(symtab.SymI64, symtab.EmptyGenList)
	st := c.checkExpr(fr, e.Start)
	en := c.checkExpr(fr, e.End)
	c.unify(e.Start.Node(), diag.KindInvalidRangeBound, st, i64)
	c.unify(e.End.Node(), diag.KindInvalidRangeBound, en, i64)
	return symtab.TyCon(symtab.SymRange, symtab.EmptyGenList)
}

func (c *checker) checkIndex(fr frame, id ast.ExprId, e *ast.IndexExpr) symtab.Ty {
	targetTy := c.ctx.Symbols.InstantiateShallow(c.checkExpr(fr, e.Target))
	idxTy := c.checkExpr(fr, e.Index)
	c.unify(e.Index.Node(), diag.KindInvalidType, idxTy, symtab.TyCon(symtab.SymI64, symtab.EmptyGenList))

	if targetTy.IsVar() {
		elem := c.ctx.Symbols.NewVar(e.Rng)
		name := c.ctx.Symbols.Sym(symtab.SymList).Generics[0]
		listTy := symtab.TyCon(symtab.SymList, c.ctx.Symbols.AddGens([]symtab.GenEntry{{Name: name, Type: elem}}))
		c.unify(id.Node(), diag.KindIndexOnNonList, targetTy, listTy)
		return elem
	}
	if targetTy.Sym.IsPoison() {
		return c.poison()
	}
	if targetTy.Sym != symtab.SymList {
		c.ctx.Fail(id.Node(), diag.KindIndexOnNonList, c.ctx.Symbols.Display(targetTy))
		return c.poison()
	}
	gens := c.ctx.Symbols.GetGens(targetTy.Gens)
	if len(gens) != 1 {
		return c.poison()
	}
	return gens[0].Type
}

func (c *checker) checkCast(fr frame, id ast.ExprId, e *ast.AsCastExpr) symtab.Ty {
	valTy := c.ctx.Symbols.InstantiateShallow(c.checkExpr(fr, e.Value))
	target, ok := c.resolveTy(fr, e.Type)
	if !ok {
		return c.poison()
	}
	target = c.ctx.Symbols.InstantiateShallow(target)
	if valTy.IsVar() {
		c.ctx.Fail(id.Node(), diag.KindUnableToInfer, "")
		return target
	}
	if valTy.Sym.IsPoison() || (!target.IsVar() && target.Sym.IsPoison()) {
		return c.poison()
	}
	if target.IsVar() {
		c.ctx.Fail(id.Node(), diag.KindInvalidCast, "")
		return c.poison()
	}
	from, to := valTy.Sym, target.Sym
	switch {
	case from == to:
	case isIntSym(from) && isFloatSym(to):
	case isFloatSym(from) && isIntSym(to):
	case from == symtab.SymBool && isIntSym(to):
	case isIntSym(from) && isIntSym(to):
	default:
		c.ctx.Fail(id.Node(), diag.KindInvalidCast,
			c.ctx.Symbols.Display(valTy)+" as "+c.ctx.Symbols.Display(target))
		return c.poison()
	}
	return target
}

func (c *checker) checkUnwrap(fr frame, id ast.ExprId, e *ast.UnwrapExpr) symtab.Ty {
	t := c.ctx.Symbols.InstantiateShallow(c.checkExpr(fr, e.Value))
	if t.IsVar() {
		c.ctx.Fail(id.Node(), diag.KindUnableToInfer, "")
		return c.poison()
	}
	if t.Sym.IsPoison() {
		return c.poison()
	}
	if t.Sym != symtab.SymOption && t.Sym != symtab.SymResult {
		c.ctx.Fail(id.Node(), diag.KindUnwrapOnWrongType, c.ctx.Symbols.Display(t))
		return c.poison()
	}
	gens := c.ctx.Symbols.GetGens(t.Gens)
	if len(gens) == 0 {
		return c.poison()
	}
	return gens[0].Type
}

func (c *checker) checkOrReturn(fr frame, id ast.ExprId, e *ast.OrReturnExpr) symtab.Ty {
	t := c.ctx.Symbols.InstantiateShallow(c.checkExpr(fr, e.Value))
	if t.IsVar() {
		c.ctx.Fail(id.Node(), diag.KindUnableToInfer, "")
		return c.poison()
	}
	if t.Sym.IsPoison() {
		return c.poison()
	}
	retTy, _, inFunc := c.ctx.Scopes.FindCurrFunc(fr.scopeId, fr.hasScope)
	if !inFunc {
		c.ctx.Fail(id.Node(), diag.KindReturnOutsideFunction, "")
		return c.poison()
	}
	retTy = c.ctx.Symbols.InstantiateShallow(retTy)

	switch t.Sym {
	case symtab.SymOption:
		if retTy.IsVar() || retTy.Sym != symtab.SymOption {
			if !retTy.IsVar() && retTy.Sym.IsPoison() {
				return c.poison()
			}
			c.ctx.Fail(id.Node(), diag.KindFunctionDoesNotReturnOption, c.ctx.Symbols.Display(retTy))
			return c.poison()
		}
		return c.ctx.Symbols.GetGens(t.Gens)[0].Type

	case symtab.SymResult:
		if retTy.IsVar() || retTy.Sym != symtab.SymResult {
			if !retTy.IsVar() && retTy.Sym.IsPoison() {
				return c.poison()
			}
			c.ctx.Fail(id.Node(), diag.KindFunctionDoesNotReturnResult, c.ctx.Symbols.Display(retTy))
			return c.poison()
		}
		// The propagated error type must agree with the function's.
		opGens := c.ctx.Symbols.GetGens(t.Gens)
		retGens := c.ctx.Symbols.GetGens(retTy.Gens)
		if len(opGens) == 2 && len(retGens) == 2 {
			c.unify(id.Node(), diag.KindReturnTypeMismatch, opGens[1].Type, retGens[1].Type)
		}
		return opGens[0].Type

	default:
		c.ctx.Fail(id.Node(), diag.KindTryOnWrongType, c.ctx.Symbols.Display(t))
		return c.poison()
	}
}

func (c *checker) checkLoop(fr frame, e *ast.LoopExpr) symtab.Ty {
	result := c.ctx.Symbols.NewVar(e.Rng)
	c.loopResults = append(c.loopResults, result)
	loopFr := fr.withScope(c.ctx.Scopes.PushLoop(fr.scopeId, fr.hasScope))
	bodyTy := c.checkExpr(loopFr, e.Body)
	c.unify(e.Body.Node(), diag.KindBranchTypeMismatch, bodyTy, symtab.TyCon(symtab.SymUnit, symtab.EmptyGenList))
	c.loopResults = c.loopResults[:len(c.loopResults)-1]
	return result
}

func (c *checker) checkReturn(fr frame, id ast.ExprId, e *ast.ReturnExpr) symtab.Ty {
	retTy, _, inFunc := c.ctx.Scopes.FindCurrFunc(fr.scopeId, fr.hasScope)
	if !inFunc {
		c.ctx.Fail(id.Node(), diag.KindReturnOutsideFunction, "")
		if e.Value != nil {
			c.checkExpr(fr, *e.Value)
		}
		return symtab.TyCon(symtab.SymNever, symtab.EmptyGenList)
	}
	var valTy symtab.Ty
	if e.Value != nil {
		valTy = c.checkExprWith(fr, *e.Value, &retTy)
	} else {
		valTy = symtab.TyCon(symtab.SymUnit, symtab.EmptyGenList)
	}
	c.unify(id.Node(), diag.KindReturnTypeMismatch, valTy, retTy)
	return symtab.TyCon(symtab.SymNever, symtab.EmptyGenList)
}

func (c *checker) checkBreak(fr frame, id ast.ExprId, e *ast.BreakExpr) symtab.Ty {
	if !c.ctx.Scopes.InLoop(fr.scopeId, fr.hasScope) || len(c.loopResults) == 0 {
		c.ctx.Fail(id.Node(), diag.KindBreakOutsideLoop, "")
		if e.Value != nil {
			c.checkExpr(fr, *e.Value)
		}
		return symtab.TyCon(symtab.SymNever, symtab.EmptyGenList)
	}
	result := c.loopResults[len(c.loopResults)-1]
	var valTy symtab.Ty
	if e.Value != nil {
		valTy = c.checkExprWith(fr, *e.Value, &result)
	} else {
		valTy = symtab.TyCon(symtab.SymUnit, symtab.EmptyGenList)
	}
	c.unify(id.Node(), diag.KindBranchTypeMismatch, valTy, result)
	return symtab.TyCon(symtab.SymNever, symtab.EmptyGenList)
}

// resolvePathSym resolves a qualified name (shapes::Circle) to a symbol:
// each leading segment selects a namespace — an explicitly entered scope
// namespace, a module child, or a type's own method namespace — and the
// final segment looks up inside it.
func (c *checker) resolvePathSym(fr frame, at ast.ExprId, e *ast.WithinNamespaceExpr) (symtab.SymbolId, bool) {
	if len(e.Path) == 0 {
		c.ctx.Fail(at.Node(), diag.KindNamespaceNotFound, "")
		return 0, false
	}
	ns, ok := c.resolveFirstSegment(fr, e.Path[0].Id)
	if !ok {
		c.ctx.Fail(at.Node(), diag.KindNamespaceNotFound, c.ctx.Interner.String(e.Path[0].Id))
		return 0, false
	}
	for _, seg := range e.Path[1:] {
		next, found := c.nextSegment(ns, seg.Id)
		if !found {
			c.ctx.Fail(at.Node(), diag.KindNamespaceNotFound, c.ctx.Interner.String(seg.Id))
			return 0, false
		}
		ns = next
	}
	sym, found, err := c.ctx.Namespaces.FindSym(ns, e.Name.Id)
	if !found || err != nil {
		c.ctx.Fail(at.Node(), diag.KindVariableNotFound, c.ctx.Interner.String(e.Name.Id))
		return 0, false
	}
	return sym, true
}

func (c *checker) resolveFirstSegment(fr frame, name intern.StrId) (nsmap.NamespaceId, bool) {
	if ns, ok := c.ctx.Scopes.FindNs(fr.scopeId, fr.hasScope, name); ok {
		return ns, true
	}
	for _, outer := range c.ctx.Scopes.ImplicitNamespaces(fr.scopeId, fr.hasScope) {
		if child, ok := c.ctx.Namespaces.FindChild(outer, name); ok {
			return child, true
		}
	}
	if child, ok := c.ctx.Namespaces.FindChild(c.ctx.RootNamespace, name); ok {
		return child, true
	}
	// A type name: its method/variant namespace.
	if sym, ok := c.lookupTypeSym(fr, name); ok {
		if ns, has := c.ctx.TypeMethodNs[sym]; has {
			return ns, true
		}
	}
	return 0, false
}

func (c *checker) nextSegment(ns nsmap.NamespaceId, name intern.StrId) (nsmap.NamespaceId, bool) {
	if child, ok := c.ctx.Namespaces.FindChild(ns, name); ok {
		return child, true
	}
	if sym, found, err := c.ctx.Namespaces.FindSym(ns, name); found && err == nil {
		if methodNs, has := c.ctx.TypeMethodNs[sym]; has {
			return methodNs, true
		}
	}
	return 0, false
}

func (c *checker) checkWithinNamespace(fr frame, id ast.ExprId, e *ast.WithinNamespaceExpr) symtab.Ty {
	sym, ok := c.resolvePathSym(fr, id, e)
	if !ok {
		return c.poison()
	}
	return c.symbolValueTy(fr, id, sym)
}
