package octopus

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// CheckResult is the three-valued outcome of an SMT check-sat query
// (spec.md section 4.3).
type CheckResult int

const (
	Unsat CheckResult = iota
	Sat
	Unknown
)

func (r CheckResult) String() string {
	switch r {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	default:
		return "unknown"
	}
}

// SolverOptions configures one portfolio member. Name selects the
// backend ("z3" is the only one wired today; "stub" selects the
// trivial pure-Go decision procedure used by tests).
type SolverOptions struct {
	Name           string
	Incremental    bool
	GenerateModels bool
	TimeoutMs      int
}

// Solver is the uniform contract every SMT backend implements. It
// intentionally mirrors an assertion-stack solver's native API
// (push/pop/assert/check/model); the adapter drives every member
// through it directly and never replays frames into a member.
type Solver interface {
	Name() string
	Push()
	Pop()
	Assert(f *Term)
	// Check runs the decision procedure over everything asserted on
	// the current stack. It must honour ctx's deadline and return
	// Unknown (not an error) on timeout or native solver "unknown".
	Check(ctx context.Context) (CheckResult, error)
	// Model returns concrete values for terms, valid only right after
	// Check returned Sat with GenerateModels on.
	Model(terms []*Term) (map[*Term]uint64, error)
	Close()
}

// Session is a portfolio of solvers kept assertion-stack-synchronised.
// Per spec.md section 4.3/5, the portfolio is "a reduction, not a
// fallback chain": Check races every member and returns the first
// decisive (sat/unsat) answer, cancelling the rest.
type Session struct {
	solvers []Solver
	global  SolverOptions

	// frames records the logical assertion stack shared by every
	// member. Each member keeps its own stack through Push/Pop/Assert;
	// frames is not replayed into any member, and the Incremental
	// option is not consulted.
	frames [][]*Term

	log *logrus.Entry

	lastSat    Solver
	lastResult CheckResult
}

// Open constructs a Session from a list of (name, options) pairs
// (spec.md section 4.3's `open`). An unknown solver name makes Open
// fail with an InputError.
func Open(specs []SolverOptions, global SolverOptions, log *logrus.Entry) (*Session, error) {
	if len(specs) == 0 {
		return nil, newErr(KindInput, "at least one solver must be configured")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Session{
		global: global,
		frames: [][]*Term{{}},
		log:    log,
	}
	for _, spec := range specs {
		merged := mergeOptions(global, spec)
		solver, err := newBackend(merged)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.solvers = append(s.solvers, solver)
	}
	return s, nil
}

func mergeOptions(global, spec SolverOptions) SolverOptions {
	out := spec
	if out.TimeoutMs == 0 {
		out.TimeoutMs = global.TimeoutMs
	}
	// A boolean option is on when either the per-solver spec or the
	// global defaults turn it on.
	out.Incremental = out.Incremental || global.Incremental
	out.GenerateModels = out.GenerateModels || global.GenerateModels
	return out
}

func newBackend(opt SolverOptions) (Solver, error) {
	switch opt.Name {
	case "z3", "":
		return newZ3Solver(opt)
	case "stub":
		return newStubSolver(opt), nil
	default:
		return nil, newErr(KindInput, "unknown solver backend %q", opt.Name)
	}
}

// Push opens a new assertion-stack frame on every portfolio member.
func (s *Session) Push() {
	s.frames = append(s.frames, nil)
	for _, b := range s.solvers {
		b.Push()
	}
}

// Pop discards the current frame's assertions from every member.
func (s *Session) Pop() {
	if len(s.frames) == 1 {
		panic("octopus: Pop without matching Push")
	}
	s.frames = s.frames[:len(s.frames)-1]
	for _, b := range s.solvers {
		b.Pop()
	}
}

// Assert adds formula at the current stack frame of every member.
func (s *Session) Assert(formula *Term) {
	top := len(s.frames) - 1
	s.frames[top] = append(s.frames[top], formula)
	for _, b := range s.solvers {
		b.Assert(formula)
	}
}

// Depth reports the number of open Push frames (1 = base frame).
func (s *Session) Depth() int { return len(s.frames) }

// Model returns a concrete assignment for terms, valid only
// immediately after a Check that returned Sat.
func (s *Session) Model(terms []*Term) (map[*Term]uint64, error) {
	if s.lastResult != Sat || s.lastSat == nil {
		return nil, newErr(KindInternalInvariant, "Model called without a preceding Sat Check")
	}
	return s.lastSat.Model(terms)
}

// Close releases every portfolio member's native resources.
func (s *Session) Close() {
	for _, b := range s.solvers {
		b.Close()
	}
}

// timeout is the session's global TimeoutMs (10s when unset); every
// solver still enforces its own via its opts, this is only used to
// bound the Check call itself.
func (s *Session) timeout() time.Duration {
	ms := s.global.TimeoutMs
	if ms <= 0 {
		ms = 10_000
	}
	return time.Duration(ms) * time.Millisecond
}

func (s *Session) String() string {
	names := make([]string, len(s.solvers))
	for i, b := range s.solvers {
		names[i] = b.Name()
	}
	return fmt.Sprintf("Session%v", names)
}
