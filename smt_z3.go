package octopus

import (
	"context"
	"fmt"

	"github.com/aclements/go-z3/z3"
)

// z3Solver wraps one Z3 context/solver pair behind the Solver
// contract. Each Session member gets its own z3.Context: Z3 contexts
// are not safe to share across the goroutines the portfolio races
// (spec.md section 5).
//
// Boolean-valued terms (kindEq, and anything width-1 combined with
// And/Or/Not) are uniformly lowered to 1-bit z3.BV values, with 1
// meaning true. This keeps translate total over *Term without a
// separate Bool/BV case split; the two spots that need a genuine
// z3.Bool (Solver.Assert and an Ite condition) convert at the edge via
// asBool.
type z3Solver struct {
	opt    SolverOptions
	ctx    *z3.Context
	solver *z3.Solver

	// astCache memoises the Term -> z3 BV translation per solver
	// instance (distinct from the global C1 arena: a z3 AST is bound
	// to this solver's context and cannot be shared across Sessions).
	astCache map[*Term]z3.BV
}

func newZ3Solver(opt SolverOptions) (Solver, error) {
	cfg := z3.NewContextConfig()
	if opt.TimeoutMs > 0 {
		cfg.SetParamValue("timeout", fmt.Sprintf("%d", opt.TimeoutMs))
	}
	ctx := z3.NewContext(cfg)
	solver := z3.NewSolver(ctx)
	return &z3Solver{
		opt:      opt,
		ctx:      ctx,
		solver:   solver,
		astCache: make(map[*Term]z3.BV),
	}, nil
}

func (z *z3Solver) Name() string { return "z3" }

func (z *z3Solver) Push() { z.solver.Push() }

func (z *z3Solver) Pop() { z.solver.Pop(1) }

func (z *z3Solver) Assert(f *Term) {
	z.solver.Assert(z.asBool(z.translate(f)))
}

func (z *z3Solver) Check(ctx context.Context) (CheckResult, error) {
	done := make(chan struct{})
	var sat z3.Sat
	go func() {
		sat = z.solver.Check()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		z.solver.Interrupt()
		<-done
		return Unknown, nil
	}
	switch sat {
	case z3.True:
		return Sat, nil
	case z3.False:
		return Unsat, nil
	default:
		return Unknown, nil
	}
}

func (z *z3Solver) Model(terms []*Term) (map[*Term]uint64, error) {
	if !z.opt.GenerateModels {
		return nil, newErr(KindInternalInvariant, "z3 solver opened with generate_models=false")
	}
	model := z.solver.Model()
	out := make(map[*Term]uint64, len(terms))
	for _, t := range terms {
		bv := z.translate(t)
		val, exact := model.Eval(bv, true).AsUint64()
		if exact {
			out[t] = val
		}
	}
	return out, nil
}

func (z *z3Solver) Close() {
	z.ctx.Close()
}

// translate lowers a hash-consed Term into this solver's 1-bit-BV-for-
// booleans encoding, memoising by Term identity (cheap, since Terms
// are interned in the global arena already).
func (z *z3Solver) translate(t *Term) z3.BV {
	if v, ok := z.astCache[t]; ok {
		return v
	}
	var out z3.BV
	switch t.kind {
	case kindConst:
		out = z.ctx.FromUint(t.value, z.ctx.BVSort(t.width))
	case kindVar:
		out = z.ctx.Const(t.name, z.ctx.BVSort(t.width))
	case kindConcat:
		out = z.translate(t.lhs).Concat(z.translate(t.rhs))
	case kindExtract:
		out = z.translate(t.lhs).Extract(t.hi, t.lo)
	case kindBitwise:
		lhs := z.translate(t.lhs)
		switch t.op {
		case OpNot:
			out = lhs.Not()
		case OpAnd:
			out = lhs.And(z.translate(t.rhs))
		case OpOr:
			out = lhs.Or(z.translate(t.rhs))
		case OpXor:
			out = lhs.Xor(z.translate(t.rhs))
		case OpShl:
			out = lhs.Lsh(z.translate(t.rhs))
		case OpShr:
			out = lhs.URsh(z.translate(t.rhs))
		}
	case kindEq:
		eq := z.translate(t.lhs).Eq(z.translate(t.rhs))
		out = z.fromBool(eq)
	case kindIte:
		cond := z.asBool(z.translate(t.cond))
		out = cond.IfThenElse(z.translate(t.then), z.translate(t.els)).(z3.BV)
	default:
		panic("octopus: unreachable term kind in z3 translation")
	}
	z.astCache[t] = out
	return out
}

// asBool converts our 1-bit-BV boolean encoding into a genuine
// z3.Bool, needed at Solver.Assert and at an Ite's condition.
func (z *z3Solver) asBool(v z3.BV) z3.Bool {
	return v.Eq(z.ctx.FromUint(1, z.ctx.BVSort(1)))
}

// fromBool converts a genuine z3.Bool (e.g. the result of BV.Eq) back
// into our 1-bit-BV encoding.
func (z *z3Solver) fromBool(b z3.Bool) z3.BV {
	one := z.ctx.FromUint(1, z.ctx.BVSort(1))
	zero := z.ctx.FromUint(0, z.ctx.BVSort(1))
	return b.IfThenElse(one, zero).(z3.BV)
}
