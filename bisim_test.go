package octopus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestReflexivity is spec.md section 8's reflexivity property:
// equivalent(P, P) holds, and the certificate is non-empty.
func TestReflexivity(t *testing.T) {
	p := testParserAcceptAfterExtract(t, "hdr", 4)
	sess := newZ3TestSession(t)
	engine := NewEngine(p, p, sess, NewConfig(), nil)

	rel, cex, err := engine.RunNaive(context.Background())
	require.NoError(t, err)
	require.Nil(t, cex)
	require.NotEmpty(t, rel.Classes)
	require.LessOrEqual(t, len(rel.Classes), 1) // |states(P)|^2 == 1 here
}

// TestReorderedDisjointSelectIsEquivalent is scenario 3: arms cover
// disjoint values in a different order, so the observable behaviour
// is unchanged.
func TestReorderedDisjointSelectIsEquivalent(t *testing.T) {
	p1 := testParserSelectOnBit(t, []SelectArm{
		armTo(1, Target{Kind: TargetAccept}),
		armTo(0, Target{Kind: TargetReject}),
	})
	p2 := testParserSelectOnBit(t, []SelectArm{
		armTo(0, Target{Kind: TargetReject}),
		armTo(1, Target{Kind: TargetAccept}),
	})
	sess := newZ3TestSession(t)
	engine := NewEngine(p1, p2, sess, NewConfig(), nil)

	_, cex, err := engine.RunNaive(context.Background())
	require.NoError(t, err)
	require.Nil(t, cex)
}

// TestFirstMatchFlipIsNotEquivalent is scenario 4: two parsers whose
// arms overlap, so swapping their order changes which one wins.
func TestFirstMatchFlipIsNotEquivalent(t *testing.T) {
	p1 := testParserSelectOnBit(t, []SelectArm{
		wildcardArmTo(Target{Kind: TargetAccept}),
		armTo(1, Target{Kind: TargetReject}),
	})
	p2 := testParserSelectOnBit(t, []SelectArm{
		armTo(1, Target{Kind: TargetReject}),
		wildcardArmTo(Target{Kind: TargetAccept}),
	})
	sess := newZ3TestSession(t)
	engine := NewEngine(p1, p2, sess, NewConfig(), nil)

	_, cex, err := engine.RunNaive(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cex)
}

// TestWidthChangeIsNotEquivalent is scenario 2: differing field
// widths must surface as a divergence, not a solver panic.
func TestWidthChangeIsNotEquivalent(t *testing.T) {
	p1 := testParserAcceptAfterExtract(t, "hdr", 4)
	p2 := testParserAcceptAfterExtract(t, "hdr", 3)
	sess := newZ3TestSession(t)
	engine := NewEngine(p1, p2, sess, NewConfig(), nil)

	_, cex, err := engine.RunNaive(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cex)
}

// TestSelfLoopUnrollingIsEquivalent is scenario 5: a parser looping on
// itself until a stop flag is set must be equivalent to the same
// parser with its first iteration unrolled into a separate state.
func TestSelfLoopUnrollingIsEquivalent(t *testing.T) {
	p1 := testParserSelfLoop(t)
	p2 := testParserSelfLoopUnrolled(t)
	sess := newZ3TestSession(t)
	engine := NewEngine(p1, p2, sess, NewConfig(), nil)

	_, cex, err := engine.RunNaive(context.Background())
	require.NoError(t, err)
	require.Nil(t, cex)
}

func TestRegEqOfMismatchedWidthIsFalse(t *testing.T) {
	l := Cfg{Regs: RegisterFile{"x": Const(4, 0)}}
	r := Cfg{Regs: RegisterFile{"x": Const(3, 0)}}
	require.Equal(t, False, regEqOf(l, r))
}

func TestCommonRegisterNamesIsSortedIntersection(t *testing.T) {
	l := RegisterFile{"b": Const(1, 0), "a": Const(1, 0)}
	r := RegisterFile{"a": Const(1, 0), "c": Const(1, 0)}
	require.Equal(t, []string{"a"}, commonRegisterNames(l, r))
}
