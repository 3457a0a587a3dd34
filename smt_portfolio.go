package octopus

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Check asks whether the current assertion stack is satisfiable. Per
// spec.md sections 4.3 and 5 ("the solver portfolio is a reduction,
// not a fallback chain"), every portfolio member runs concurrently on
// the same query; the first decisive (sat/unsat) answer wins and the
// others are cancelled via ctx. If every member returns Unknown (or
// times out), Check returns Unknown and leaves it to the caller
// (bisim.go / leaps.go) to decide whether that is fatal
// (SolverIndeterminate) or recoverable (--fallback-to-naive-on-unknown).
func (s *Session) Check(ctx context.Context) (CheckResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	type answer struct {
		solver Solver
		result CheckResult
	}
	decisive := make(chan answer, len(s.solvers))

	g, gctx := errgroup.WithContext(ctx)
	for _, solver := range s.solvers {
		solver := solver
		g.Go(func() error {
			res, err := solver.Check(gctx)
			if err != nil {
				return err
			}
			if res != Unknown {
				select {
				case decisive <- answer{solver, res}:
				case <-gctx.Done():
				}
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case a := <-decisive:
		cancel() // interrupt the remaining portfolio members
		<-done   // wait for sibling goroutines to observe cancellation and return
		s.lastResult = a.result
		if a.result == Sat {
			s.lastSat = a.solver
		} else {
			s.lastSat = nil
		}
		s.log.WithFields(map[string]any{"solver": a.solver.Name(), "result": a.result.String()}).Debug("portfolio decided")
		return a.result, nil

	case err := <-done:
		if err != nil {
			return Unknown, err
		}
		// Every member finished without a decisive answer: all Unknown.
		s.lastResult = Unknown
		s.lastSat = nil
		return Unknown, nil
	}
}
