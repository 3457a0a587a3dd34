package octopus

import "context"

// chain is a straight-line run of states that do not themselves
// branch: every state but the last has a transition with no arms (a
// bare `default` to another state), so crossing it consumes input but
// never forks the search. The last state is where a real decision
// happens — either a multi-arm select or a verdict.
type chain struct {
	states []*State // in traversal order, including the final (branching/terminal) state
	width  int      // sum of extract widths over the whole chain
}

// chainFrom follows trivial (unconditional, single-target) states
// starting at name until it reaches one with a genuine multi-arm
// select or a verdict transition, which is what spec.md section 4.7
// means by "their next select": the literal per-state IR always ends
// a state in *some* select, so the only selects worth stopping a leap
// at are the ones that can actually disagree between the two sides.
// A visited set guards against a pathological unconditional cycle.
func chainFrom(p *Parser, name string) (*chain, error) {
	c := &chain{}
	visited := make(map[string]bool)
	for {
		if visited[name] {
			return nil, newErr(KindInternalInvariant, "unconditional cycle through state %q", name)
		}
		visited[name] = true
		state, ok := p.states[name]
		if !ok {
			return nil, newErr(KindIRSemantic, "no such state %q", name)
		}
		c.states = append(c.states, state)
		for _, stmt := range state.Statements {
			if stmt.Kind == StmtExtract {
				c.width += stmt.Header.Width
			}
		}
		branches := len(state.Transition.Arms) > 0 || state.Transition.Default.Kind != TargetState
		if branches {
			return c, nil
		}
		name = state.Transition.Default.State
	}
}

// chainExec runs every statement of every state in c in order,
// threading the register file and buffer offset through, and reports
// the final (branching/terminal) state the chain lands on.
func chainExec(c *chain, regs RegisterFile, offset int, buf *Buffer) (RegisterFile, int, *State, error) {
	var err error
	for _, st := range c.states {
		regs, offset, err = execStatements(st, regs, offset, buf)
		if err != nil {
			return nil, 0, nil, err
		}
	}
	return regs, offset, c.states[len(c.states)-1], nil
}

// leapStep is the stepPair used by RunLeaps. When both sides' chains
// to their next real decision point consume the same number of bits,
// it executes both chains in one shot and discharges the landing
// state's select once, instead of one discharge per intervening
// state. When the chain lengths differ, spec.md section 4.7 says to
// leap by the shorter side and defer the longer one into single-bit
// mode until realigned; since this IR has no notion of splitting a
// single extract mid-width, the conservative realisation of "single-
// bit mode" here is to fall back to ordinary per-state stepping on
// both sides for this round, which naturally reconverges once the
// shorter side's states catch up (documented in DESIGN.md).
func (e *Engine) leapStep(ctx context.Context, left, right Cfg) ([]Cfg, []Cfg, error) {
	cl, err := chainFrom(e.P1, left.State.State)
	if err != nil {
		return nil, nil, err
	}
	cr, err := chainFrom(e.P2, right.State.State)
	if err != nil {
		return nil, nil, err
	}

	if cl.width != cr.width {
		return e.naiveStep(ctx, left, right)
	}

	succL, err := e.leapOneSide(ctx, e.P1, left, cl, e.Buf, e.Sess)
	if err != nil {
		return nil, nil, err
	}
	succR, err := e.leapOneSide(ctx, e.P2, right, cr, e.Buf, e.Sess)
	if err != nil {
		return nil, nil, err
	}
	return succL, succR, nil
}

// leapOneSide executes c's statement blocks and discharges the final
// state's select, exactly as Step does for a single state — the leap
// is transparent to everything downstream of it.
func (e *Engine) leapOneSide(ctx context.Context, p *Parser, cfg Cfg, c *chain, buf *Buffer, sess *Session) ([]Cfg, error) {
	regs, offset, final, err := chainExec(c, cfg.Regs, cfg.Offset, buf)
	if err != nil {
		return nil, err
	}

	successors, err := compileGuards(final.Transition, regs)
	if err != nil {
		return nil, err
	}

	var out []Cfg
	for _, succ := range successors {
		guard := And(cfg.PathCond, succ.PathCond)
		sat, eerr := querySat(ctx, sess, guard)
		if eerr != nil {
			return nil, eerr.withContext(final.Name, offset, guard.String())
		}
		if sat == Unsat {
			continue
		}
		if sat == Unknown {
			return nil, newErr(KindSolverIndeterminate, "feasibility of leap successor %s", guard).
				withContext(final.Name, offset, guard.String())
		}
		out = append(out, Cfg{State: succ.State, PathCond: guard, Regs: regs, Offset: offset})
	}
	return out, nil
}

// RunLeaps computes the largest bisimulation using the leaps
// optimisation (spec.md section 4.7); `engine.disable_leaps` reduces
// it to RunNaive, and any SolverIndeterminate surfacing from the leaps
// run restarts the whole search with RunNaive (per-state steps, no
// leaps) when `engine.fallback_to_naive_on_unknown` is set.
func (e *Engine) RunLeaps(ctx context.Context) (*Relation, *Counterexample, error) {
	if e.Config.GetBool("engine.disable_leaps") {
		return e.RunNaive(ctx)
	}

	e.rel = &Relation{}
	w := []pairWork{{
		Left:        Initial(e.P1, "L"),
		Right:       Initial(e.P2, "R"),
		ParentClass: -1,
		Guard:       True,
	}}
	rel, cex, err := e.drain(ctx, w, e.leapStep)
	if err != nil && isKind(err, KindSolverIndeterminate) && e.Config.GetBool("engine.fallback_to_naive_on_unknown") {
		e.Log.WithError(err).Warn("solver returned unknown during leaps run, retrying with the naive engine")
		return e.RunNaive(ctx)
	}
	return rel, cex, err
}
