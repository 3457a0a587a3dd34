package octopus

import (
	"context"
	"fmt"
	"strings"

	"github.com/jortvanleenen/octopus/ascii"
)

// Counterexample is the witness produced when RunNaive/RunLeaps find
// a diverging pair (spec.md section 4.8, failure path): the two
// terminal configurations, the reason they diverge, and a concrete
// bit sequence for the shared input buffer up to the joint offset
// that a caller can replay against either parser directly.
type Counterexample struct {
	Reason string
	Left   Cfg
	Right  Cfg
	// Bits holds one resolved 0/1 value per shared buffer position up
	// to max(Left.Offset, Right.Offset), taken from the solver's model
	// of the frame asserted when the divergence was detected.
	Bits []uint64
}

// buildCounterexample extracts a concrete witness packet from sess's
// current (already-checked-Sat) frame: a model for every buffer bit
// the two sides have consumed between them.
func buildCounterexample(sess *Session, left, right Cfg, buf *Buffer, reason string) (*Counterexample, error) {
	n := left.Offset
	if right.Offset > n {
		n = right.Offset
	}
	terms := make([]*Term, n)
	for i := 0; i < n; i++ {
		terms[i] = buf.Bit(i)
	}
	model, err := sess.Model(terms)
	if err != nil {
		return nil, err
	}
	bits := make([]uint64, n)
	for i, t := range terms {
		bits[i] = model[t]
	}
	return &Counterexample{Reason: reason, Left: left, Right: right, Bits: bits}, nil
}

// String renders the counterexample's witness packet as a bit string
// and the two diverging control states, in the teacher's themed
// pretty-printing style.
func (c *Counterexample) String() string {
	var b strings.Builder
	b.WriteString(ascii.Color(ascii.DefaultTheme.Divergent, "DIVERGENT"))
	b.WriteString(": ")
	b.WriteString(c.Reason)
	b.WriteString("\n  packet: ")
	for _, bit := range c.Bits {
		fmt.Fprintf(&b, "%d", bit)
	}
	fmt.Fprintf(&b, "\n  left:  %s (offset %d)\n", ascii.Color(ascii.DefaultTheme.Accent, "%s", c.Left.State), c.Left.Offset)
	fmt.Fprintf(&b, "  right: %s (offset %d)\n", ascii.Color(ascii.DefaultTheme.Accent, "%s", c.Right.State), c.Right.Offset)
	return b.String()
}

// String renders a relation as the certificate a consumer replays to
// re-verify equivalence without re-exploring: every class, and every
// transition out of it with the guard that was discharged.
func (r *Relation) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d classes, %d transitions\n",
		ascii.Color(ascii.DefaultTheme.Accept, "EQUIVALENT"), len(r.Classes), len(r.Edges))
	for _, cls := range r.Classes {
		fmt.Fprintf(&b, "  class %d: {%s, %s}\n", cls.ID,
			ascii.Color(ascii.DefaultTheme.Accent, "%s", cls.LeftTag),
			ascii.Color(ascii.DefaultTheme.Accent, "%s", cls.RightTag))
	}
	for _, e := range r.Edges {
		if e.ToClass < 0 {
			fmt.Fprintf(&b, "    %d --[%s]--> %s\n", e.From, e.Guard,
				ascii.Color(verdictColor(e.Verdict), "%s", e.Verdict))
			continue
		}
		fmt.Fprintf(&b, "    %d --[%s]--> class %d\n", e.From, e.Guard, e.ToClass)
	}
	return b.String()
}

func verdictColor(k TargetKind) string {
	if k == TargetAccept {
		return ascii.DefaultTheme.Accept
	}
	return ascii.DefaultTheme.Reject
}

// Verify re-runs every edge's discharge query against a fresh
// session, confirming the certificate without re-exploring the state
// space (spec.md section 4.8): for a class-to-class edge this checks
// that Guard, conjoined with the source class's accumulated path
// condition, is consistent with the destination class's register
// equality; for a class-to-verdict edge it checks that Guard, with the
// source class's path condition, is satisfiable. Verify does not re-derive R; it only checks that R, as
// given, is internally consistent.
func (r *Relation) Verify(sess *Session) error {
	byID := make(map[int]Class, len(r.Classes))
	for _, c := range r.Classes {
		byID[c.ID] = c
	}
	for _, e := range r.Edges {
		from, ok := byID[e.From]
		if !ok {
			return newErr(KindInternalInvariant, "certificate edge references unknown class %d", e.From)
		}
		formula := And(from.PathCond, e.Guard)
		if e.ToClass >= 0 {
			to, ok := byID[e.ToClass]
			if !ok {
				return newErr(KindInternalInvariant, "certificate edge references unknown class %d", e.ToClass)
			}
			formula = And(formula, to.RegEq)
		}
		sess.Push()
		sess.Assert(formula)
		res, err := sess.Check(context.Background())
		sess.Pop()
		if err != nil {
			return err
		}
		if res != Sat {
			return newErr(KindInternalInvariant, "certificate edge %d -> %v fails to re-discharge", e.From, e.ToClass)
		}
	}
	return nil
}
