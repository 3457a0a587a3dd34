package octopus

import "context"

// stubSolver is a trivial, pure-Go decision procedure: it only
// recognises the syntactically-obvious cases (Unsat for a literal False
// assertion or two assertions that are literally-negated copies of
// each other, Sat when every assertion is a literal True or there are
// none) and returns Unknown for anything else. It exists so unit tests
// that only exercise the adapter's push/pop/assert/check plumbing —
// not real bit-vector reasoning — don't need cgo/z3 available.
type stubSolver struct {
	opt    SolverOptions
	frames [][]*Term
}

func newStubSolver(opt SolverOptions) Solver {
	return &stubSolver{opt: opt, frames: [][]*Term{{}}}
}

func (s *stubSolver) Name() string { return "stub" }

func (s *stubSolver) Push() { s.frames = append(s.frames, nil) }

func (s *stubSolver) Pop() { s.frames = s.frames[:len(s.frames)-1] }

func (s *stubSolver) Assert(f *Term) {
	top := len(s.frames) - 1
	s.frames[top] = append(s.frames[top], f)
}

func (s *stubSolver) Check(ctx context.Context) (CheckResult, error) {
	all := s.flatten()
	for _, f := range all {
		if f == False {
			return Unsat, nil
		}
	}
	for i, f := range all {
		for _, g := range all[i+1:] {
			if isNegationOf(f, g) {
				return Unsat, nil
			}
		}
	}
	for _, f := range all {
		if f != True {
			return Unknown, nil
		}
	}
	return Sat, nil
}

func isNegationOf(a, b *Term) bool {
	return Not(a) == b || Not(b) == a
}

func (s *stubSolver) flatten() []*Term {
	var all []*Term
	for _, frame := range s.frames {
		all = append(all, frame...)
	}
	return all
}

func (s *stubSolver) Model(terms []*Term) (map[*Term]uint64, error) {
	return nil, newErr(KindInternalInvariant, "stub solver does not produce models")
}

func (s *stubSolver) Close() {}
