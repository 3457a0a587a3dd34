package octopus

import (
	"context"
	"strings"
)

// compileExpr lowers an IR expression node into a concrete Term given
// a register file, per spec.md section 4.5 step 1-2: assign's rhs and
// a select's scrutinees are evaluated against the register values the
// configuration currently holds.
func compileExpr(e *IRExpr, regs RegisterFile) (*Term, error) {
	switch e.Kind {
	case ExprConst:
		return Const(e.Width, e.Value), nil

	case ExprReg:
		reg, ok := regs[e.Reg]
		if !ok {
			return nil, newErr(KindIRSemantic, "read of undeclared register %q", e.Reg)
		}
		if e.HasSlice {
			return Extract(reg, e.Hi, e.Lo), nil
		}
		return reg, nil

	case ExprConcat:
		lhs, err := compileExpr(e.Lhs, regs)
		if err != nil {
			return nil, err
		}
		rhs, err := compileExpr(e.Rhs, regs)
		if err != nil {
			return nil, err
		}
		return Concat(lhs, rhs), nil

	case ExprBitwise:
		lhs, err := compileExpr(e.Lhs, regs)
		if err != nil {
			return nil, err
		}
		if e.Op == OpNot {
			return Not(lhs), nil
		}
		rhs, err := compileExpr(e.Rhs, regs)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case OpAnd:
			return And(lhs, rhs), nil
		case OpOr:
			return Or(lhs, rhs), nil
		case OpXor:
			return Xor(lhs, rhs), nil
		case OpShl:
			return Shl(lhs, rhs), nil
		case OpShr:
			return Shr(lhs, rhs), nil
		}
		return nil, newErr(KindInternalInvariant, "unreachable bitwise op %v", e.Op)

	case ExprEq:
		lhs, err := compileExpr(e.Lhs, regs)
		if err != nil {
			return nil, err
		}
		rhs, err := compileExpr(e.Rhs, regs)
		if err != nil {
			return nil, err
		}
		return Eq(lhs, rhs), nil

	case ExprIte:
		cond, err := compileExpr(e.Cond, regs)
		if err != nil {
			return nil, err
		}
		then, err := compileExpr(e.Then, regs)
		if err != nil {
			return nil, err
		}
		els, err := compileExpr(e.Else, regs)
		if err != nil {
			return nil, err
		}
		return Ite(cond, then, els), nil

	default:
		return nil, newErr(KindInternalInvariant, "unreachable expr kind %v", e.Kind)
	}
}

// execStatements runs a state's ordered statement list (spec.md
// section 4.5 step 1), returning the resulting register file and
// buffer offset. An extract pops width(header) bits off the shared
// buffer and concatenates them into Dest (appended below a value an
// earlier statement wrote; a register still holding its initial opaque
// constant is replaced); an assign evaluates Rhs
// against the register file as it stands *before* this statement and
// writes it (whole register, or just a slice) to AssignDest.
func execStatements(state *State, regs RegisterFile, offset int, buf *Buffer) (RegisterFile, int, error) {
	for _, stmt := range state.Statements {
		switch stmt.Kind {
		case StmtExtract:
			bits := buf.Slice(offset, stmt.Header.Width)
			offset += stmt.Header.Width
			prev, ok := regs[stmt.Dest]
			// The register's initial opaque constant (initialRegisterFile)
			// is replaced by the first extract. Repeated extracts into
			// the same register append, matching "appending exactly
			// width(header) bits to a destination register" (spec.md
			// section 3) across multiple extract statements targeting
			// one field.
			if ok && !(prev.kind == kindVar && strings.HasSuffix(prev.name, "!"+stmt.Dest+"!init")) {
				regs = regs.With(stmt.Dest, Concat(prev, bits))
			} else {
				regs = regs.With(stmt.Dest, bits)
			}

		case StmtAssign:
			val, err := compileExpr(stmt.Rhs, regs)
			if err != nil {
				return nil, 0, err
			}
			if stmt.Hi >= 0 {
				cur, ok := regs[stmt.AssignDest]
				if !ok {
					return nil, 0, newErr(KindIRSemantic, "assign to undeclared register %q", stmt.AssignDest)
				}
				regs = regs.With(stmt.AssignDest, sliceAssign(cur, val, stmt.Hi, stmt.Lo))
			} else {
				regs = regs.With(stmt.AssignDest, val)
			}
		}
	}
	return regs, offset, nil
}

// sliceAssign rebuilds dst with bits [lo:hi] replaced by src,
// implementing spec.md section 4.1's slice_assign(dst, src, at) via
// concat/extract: the untouched high and low parts of dst are kept,
// src fills the middle.
func sliceAssign(dst, src *Term, hi, lo int) *Term {
	if src.width != hi-lo+1 {
		panic("octopus: slice_assign width mismatch")
	}
	var parts []*Term
	if hi < dst.width-1 {
		parts = append(parts, Extract(dst, dst.width-1, hi+1))
	}
	parts = append(parts, src)
	if lo > 0 {
		parts = append(parts, Extract(dst, lo-1, 0))
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out = Concat(out, p)
	}
	return out
}

// Successor is one feasible outcome of stepping a configuration: the
// extended path condition and the control state it leads to.
type Successor struct {
	PathCond *Term
	State    Target
}

// compileGuards evaluates a transition's scrutinees and arms against a
// register file, yielding one (guard, target) pair per arm plus the
// implicit/explicit default, per spec.md section 4.5 steps 2-4:
// wildcard pattern components contribute `true`; exact components
// contribute `eq(scrutinee_slice, value)`; each arm's guard is
// conjoined with the negation of every earlier arm's guard so first-
// match semantics hold; the default's guard is the negation of all of
// them.
func compileGuards(t *Transition, regs RegisterFile) ([]Successor, error) {
	scrutinees := make([]*Term, len(t.Scrutinees))
	for i, sc := range t.Scrutinees {
		term, err := compileExpr(sc, regs)
		if err != nil {
			return nil, err
		}
		scrutinees[i] = term
	}

	var out []Successor
	negPrior := True
	for _, arm := range t.Arms {
		match := True
		for i, pc := range arm.Pattern {
			if pc.Wildcard {
				continue
			}
			match = And(match, Eq(scrutinees[i], Const(scrutinees[i].width, pc.Value)))
		}
		guard := And(negPrior, match)
		out = append(out, Successor{PathCond: guard, State: arm.Target})
		negPrior = And(negPrior, Not(match))
	}
	out = append(out, Successor{PathCond: negPrior, State: t.Default})
	return out, nil
}

// Step computes the feasible successor configurations of cfg under
// one state's worth of input (spec.md section 4.5): it executes the
// state's statements, compiles the select's guards, and asks sess
// which guards are jointly satisfiable with cfg's path condition,
// discarding the rest. Side effect: may grow the shared buffer.
func Step(ctx context.Context, p *Parser, cfg Cfg, buf *Buffer, sess *Session) ([]Cfg, error) {
	kind, isTerminal := Terminal(cfg)
	if isTerminal {
		return nil, newErr(KindInternalInvariant, "Step called on a terminal configuration (%v)", kind)
	}

	state, ok := p.states[cfg.State.State]
	if !ok {
		return nil, newErr(KindIRSemantic, "no such state %q", cfg.State.State)
	}

	regs, offset, err := execStatements(state, cfg.Regs, cfg.Offset, buf)
	if err != nil {
		return nil, err
	}

	successors, err := compileGuards(state.Transition, regs)
	if err != nil {
		return nil, err
	}

	var out []Cfg
	for _, succ := range successors {
		guard := And(cfg.PathCond, succ.PathCond)
		sat, err := querySat(ctx, sess, guard)
		if err != nil {
			return nil, err.withContext(cfg.State.String(), offset, guard.String())
		}
		if sat == Unsat {
			continue
		}
		if sat == Unknown {
			return nil, newErr(KindSolverIndeterminate, "feasibility of %s", guard).withContext(cfg.State.String(), offset, guard.String())
		}
		out = append(out, Cfg{State: succ.State, PathCond: guard, Regs: regs, Offset: offset})
	}
	return out, nil
}

// querySat asks sess, inside a fresh Push/Pop frame, whether formula
// is satisfiable.
func querySat(ctx context.Context, sess *Session, formula *Term) (CheckResult, *EngineError) {
	sess.Push()
	defer sess.Pop()
	sess.Assert(formula)
	res, err := sess.Check(ctx)
	if err != nil {
		if ee, ok := err.(*EngineError); ok {
			return Unknown, ee
		}
		return Unknown, newErr(KindInternalInvariant, "%s", err)
	}
	return res, nil
}
