package octopus

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"
)

// Class is one observable-pair equivalence class already proven to
// coinduct: a control-state-tag pair together with the register
// equalities that held when it was first reached. This is the
// persistent half of the certificate (spec.md section 4.6).
type Class struct {
	ID       int
	LeftTag  string
	RightTag string
	RegEq    *Term
	PathCond *Term
}

// Edge records one transition the engine actually explored: from a
// class, under Guard, either to another class (ToClass >= 0) or to a
// terminal verdict (ToClass == -1, Verdict holds the shared outcome).
// A consumer re-verifies the certificate by replaying each Edge's
// discharge query (spec.md section 4.8).
type Edge struct {
	From    int
	Guard   *Term
	ToClass int
	Verdict TargetKind
}

// Relation is the finite presentation of the bisimulation the engine
// discovers: the certificate emitted on success.
type Relation struct {
	Classes []Class
	Edges   []Edge
}

// pairWork is one entry in the worklist W (spec.md section 4.6): a
// symbolic configuration pair not yet explored, plus enough context
// (parent class, guard that led here) to record an Edge once it is.
type pairWork struct {
	Left, Right Cfg
	ParentClass int // -1 for the initial pair
	Guard       *Term
}

// Engine drives either the naive (C6) or leaps-optimised (C7)
// bisimulation search between two parsers over a shared symbolic
// input buffer.
type Engine struct {
	P1, P2 *Parser
	Buf    *Buffer
	Sess   *Session
	Config *Config
	Log    *logrus.Entry

	rel *Relation
}

// NewEngine wires a fresh Engine. The two parsers must already be
// loaded (LoadParser) and share nothing but the Session passed in and
// the Buffer NewEngine creates for them.
func NewEngine(p1, p2 *Parser, sess *Session, cfg *Config, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{P1: p1, P2: p2, Buf: NewBuffer(), Sess: sess, Config: cfg, Log: log}
}

// stepPair computes both sides' feasible successors of one worklist
// pair. RunNaive uses the ordinary single-state Step; RunLeaps
// (leaps.go) substitutes a version that advances by a whole leap
// when both sides' next-branch distances agree.
type stepPair func(ctx context.Context, left, right Cfg) ([]Cfg, []Cfg, error)

func (e *Engine) naiveStep(ctx context.Context, left, right Cfg) ([]Cfg, []Cfg, error) {
	succL, err := Step(ctx, e.P1, left, e.Buf, e.Sess)
	if err != nil {
		return nil, nil, err
	}
	succR, err := Step(ctx, e.P2, right, e.Buf, e.Sess)
	if err != nil {
		return nil, nil, err
	}
	return succL, succR, nil
}

// RunNaive computes the largest bisimulation one state-step at a time
// (spec.md section 4.6; the `-n/--naive` flag selects this path, and
// RunLeaps falls back to it when leaps are disabled or a leaps run
// ends in SolverIndeterminate under fallback_to_naive_on_unknown).
func (e *Engine) RunNaive(ctx context.Context) (*Relation, *Counterexample, error) {
	e.rel = &Relation{}
	w := []pairWork{{
		Left:        Initial(e.P1, "L"),
		Right:       Initial(e.P2, "R"),
		ParentClass: -1,
		Guard:       True,
	}}
	return e.drain(ctx, w, e.naiveStep)
}

// drain runs the worklist to exhaustion or until a divergence is
// found, shared by RunNaive and RunLeaps (leaps.go): every pair
// popped off W is discharge-checked the same way regardless of
// whether step produced it by a single-state step or a multi-state
// leap, which is exactly spec.md section 4.7's requirement to
// re-verify the discharge rule at every post-leap configuration.
func (e *Engine) drain(ctx context.Context, w []pairWork, step stepPair) (*Relation, *Counterexample, error) {
	for len(w) > 0 {
		cur := w[0]
		w = w[1:]

		kindL, termL := Terminal(cur.Left)
		kindR, termR := Terminal(cur.Right)

		if termL || termR {
			if !termL || !termR || kindL != kindR {
				cex, err := e.diverge(ctx, cur.Left, cur.Right, "verdicts diverge")
				return e.rel, cex, err
			}
			matches, cex, err := e.observablesMatch(ctx, cur.Left, cur.Right)
			if err != nil {
				return nil, nil, err
			}
			if !matches {
				return e.rel, cex, nil
			}
			if cur.ParentClass >= 0 {
				e.rel.Edges = append(e.rel.Edges, Edge{From: cur.ParentClass, Guard: cur.Guard, ToClass: -1, Verdict: kindL})
			}
			continue
		}

		covered, matchID, err := e.discharge(ctx, cur.Left, cur.Right)
		if err != nil {
			return nil, nil, err
		}
		if covered {
			if cur.ParentClass >= 0 {
				e.rel.Edges = append(e.rel.Edges, Edge{From: cur.ParentClass, Guard: cur.Guard, ToClass: matchID})
			}
			continue
		}

		classID := len(e.rel.Classes)
		e.rel.Classes = append(e.rel.Classes, Class{
			ID:       classID,
			LeftTag:  cur.Left.State.String(),
			RightTag: cur.Right.State.String(),
			RegEq:    regEqOf(cur.Left, cur.Right),
			PathCond: And(cur.Left.PathCond, cur.Right.PathCond),
		})
		if cur.ParentClass >= 0 {
			e.rel.Edges = append(e.rel.Edges, Edge{From: cur.ParentClass, Guard: cur.Guard, ToClass: classID})
		}

		e.Log.WithFields(logrus.Fields{"left": cur.Left.State, "right": cur.Right.State, "class": classID}).
			Debug("expanding pair")

		succL, succR, err := step(ctx, cur.Left, cur.Right)
		if err != nil {
			return nil, nil, e.fallbackOrFail(err)
		}

		// Cartesian product of this step's feasible successors,
		// re-checked jointly (spec.md section 4.6 step 4): a guard
		// feasible on one side alone need not be feasible together
		// with the other side's guard.
		for _, sl := range succL {
			for _, sr := range succR {
				guard := And(sl.PathCond, sr.PathCond)
				sat, eerr := querySat(ctx, e.Sess, guard)
				if eerr != nil {
					return nil, nil, e.fallbackOrFail(eerr)
				}
				if sat == Unsat {
					continue
				}
				if sat == Unknown {
					return nil, nil, e.fallbackOrFail(newErr(KindSolverIndeterminate,
						"joint feasibility of successor (%s,%s)", sl.State, sr.State))
				}
				w = append(w, pairWork{Left: sl, Right: sr, ParentClass: classID, Guard: guard})
			}
		}
	}
	return e.rel, nil, nil
}

// fallbackOrFail returns err unchanged: drain itself never retries.
// The --fallback-to-naive-on-unknown retry (spec.md section 9) is done
// by RunLeaps (leaps.go), which reruns the whole search with RunNaive
// when drain surfaces a SolverIndeterminate.
func (e *Engine) fallbackOrFail(err error) error {
	return err
}

// discharge implements spec.md section 4.6's "this pair is already
// covered" rule: (cfgL, cfgR) is covered by the relation built so far
// iff path_condition(cfgL) & path_condition(cfgR) & register_equality
// implies the disjunction, over already-proven classes with matching
// state tags, of their register equalities.
func (e *Engine) discharge(ctx context.Context, left, right Cfg) (bool, int, error) {
	lhs := And(And(left.PathCond, right.PathCond), regEqOf(left, right))

	disj := False
	matchID := -1
	for _, cls := range e.rel.Classes {
		if cls.LeftTag != left.State.String() || cls.RightTag != right.State.String() {
			continue
		}
		disj = Or(disj, cls.RegEq)
		if matchID == -1 {
			matchID = cls.ID
		}
	}
	if matchID == -1 {
		return false, -1, nil // no class with this tag pair exists yet: trivially not covered
	}

	formula := And(lhs, Not(disj))
	sat, eerr := querySat(ctx, e.Sess, formula)
	if eerr != nil {
		return false, -1, eerr
	}
	if sat == Unknown {
		return false, -1, newErr(KindSolverIndeterminate, "discharge query for (%s,%s)", left.State, right.State)
	}
	return sat == Unsat, matchID, nil
}

// observablesMatch checks, for a pair where both sides have committed
// to the same verdict, whether their register snapshots are forced
// equal by the joint path condition. If not, it constructs a witness
// packet from the model that separates them.
func (e *Engine) observablesMatch(ctx context.Context, left, right Cfg) (bool, *Counterexample, error) {
	joint := And(left.PathCond, right.PathCond)
	notEq := Not(regEqOf(left, right))

	e.Sess.Push()
	defer e.Sess.Pop()
	e.Sess.Assert(joint)
	e.Sess.Assert(notEq)
	res, err := e.Sess.Check(ctx)
	if err != nil {
		return false, nil, newErr(KindSolverIndeterminate, "%s", err)
	}
	switch res {
	case Unsat:
		return true, nil, nil
	case Unknown:
		return false, nil, newErr(KindSolverIndeterminate, "observable-equality query for (%s,%s)", left.State, right.State)
	default: // Sat: the two sides can diverge observably
		cex, cerr := buildCounterexample(e.Sess, left, right, e.Buf, "diverging observable register snapshot")
		return false, cex, cerr
	}
}

// diverge asserts only the joint path condition (already known
// satisfiable, since a pair is only ever enqueued after its joint
// guard passed feasibility) and extracts a witness packet for a
// verdict mismatch.
func (e *Engine) diverge(ctx context.Context, left, right Cfg, reason string) (*Counterexample, error) {
	e.Sess.Push()
	defer e.Sess.Pop()
	e.Sess.Assert(And(left.PathCond, right.PathCond))
	res, err := e.Sess.Check(ctx)
	if err != nil {
		return nil, newErr(KindSolverIndeterminate, "%s", err)
	}
	if res != Sat {
		return nil, newErr(KindInternalInvariant, "enqueued pair's joint path condition is not satisfiable")
	}
	return buildCounterexample(e.Sess, left, right, e.Buf, reason)
}

// regEqOf conjoins Eq(leftReg, rightReg) over every register name
// declared in both parsers; registers whose declared widths differ
// can never be observably equal and contribute False, so a width
// mismatch (spec.md section 8 scenario 2) is always reported as a
// divergence rather than a solver panic.
func regEqOf(left, right Cfg) *Term {
	acc := True
	for _, name := range commonRegisterNames(left.Regs, right.Regs) {
		l, r := left.Regs[name], right.Regs[name]
		if l.Width() != r.Width() {
			acc = And(acc, False)
			continue
		}
		acc = And(acc, Eq(l, r))
	}
	return acc
}

func commonRegisterNames(l, r RegisterFile) []string {
	var out []string
	for name := range l {
		if _, ok := r[name]; ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
