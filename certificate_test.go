package octopus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCertificateVerifies is spec.md section 8's certificate validity
// property: a certificate the engine emits for an equivalent pair
// re-discharges every edge independently.
func TestCertificateVerifies(t *testing.T) {
	p := testParserAcceptAfterExtract(t, "hdr", 4)
	sess := newZ3TestSession(t)
	engine := NewEngine(p, p, sess, NewConfig(), nil)

	rel, cex, err := engine.RunNaive(context.Background())
	require.NoError(t, err)
	require.Nil(t, cex)

	require.NoError(t, rel.Verify(sess))
}

// TestCounterexampleReportsDivergingVerdicts checks the witness the
// engine reports for two parsers with swapped verdicts: it holds one
// bit per consumed input position, and its two terminal configurations
// carry different verdicts. The packet is not replayed through the
// parsers here.
func TestCounterexampleReportsDivergingVerdicts(t *testing.T) {
	p1 := testParserSelectOnBit(t, []SelectArm{
		armTo(1, Target{Kind: TargetAccept}),
		armTo(0, Target{Kind: TargetReject}),
	})
	p2 := testParserSelectOnBit(t, []SelectArm{
		armTo(1, Target{Kind: TargetReject}),
		armTo(0, Target{Kind: TargetAccept}),
	})
	sess := newZ3TestSession(t)
	engine := NewEngine(p1, p2, sess, NewConfig(), nil)

	_, cex, err := engine.RunNaive(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cex)
	require.Len(t, cex.Bits, cex.Left.Offset)

	leftVerdict, _ := Terminal(cex.Left)
	rightVerdict, _ := Terminal(cex.Right)
	require.NotEqual(t, leftVerdict, rightVerdict)
}

func TestCounterexampleStringMentionsReason(t *testing.T) {
	cex := &Counterexample{
		Reason: "verdicts diverge",
		Left:   Cfg{State: Target{Kind: TargetAccept}},
		Right:  Cfg{State: Target{Kind: TargetReject}},
		Bits:   []uint64{1, 0, 1, 1},
	}
	s := cex.String()
	require.Contains(t, s, "verdicts diverge")
	require.Contains(t, s, "1011")
}
