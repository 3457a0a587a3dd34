package octopus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLeapAgreesWithNaive is spec.md section 8's leap/naive agreement
// property for the reflexive case: the verdict (and its presence of a
// counterexample) must match between -n and the default leaps engine.
func TestLeapAgreesWithNaive(t *testing.T) {
	p := testParserAcceptAfterExtract(t, "hdr", 4)

	sessNaive := newZ3TestSession(t)
	naive := NewEngine(p, p, sessNaive, NewConfig(), nil)
	_, cexNaive, err := naive.RunNaive(context.Background())
	require.NoError(t, err)

	sessLeap := newZ3TestSession(t)
	leap := NewEngine(p, p, sessLeap, NewConfig(), nil)
	_, cexLeap, err := leap.RunLeaps(context.Background())
	require.NoError(t, err)

	require.Equal(t, cexNaive == nil, cexLeap == nil)
}

// TestDisableLeapsFallsBackToNaive checks engine.disable_leaps reduces
// RunLeaps to RunNaive (spec.md section 4.7).
func TestDisableLeapsFallsBackToNaive(t *testing.T) {
	p := testParserAcceptAfterExtract(t, "hdr", 4)
	sess := newZ3TestSession(t)
	cfg := NewConfig()
	cfg.SetBool("engine.disable_leaps", true)
	engine := NewEngine(p, p, sess, cfg, nil)

	rel, cex, err := engine.RunLeaps(context.Background())
	require.NoError(t, err)
	require.Nil(t, cex)
	require.NotEmpty(t, rel.Classes)
}

// TestSplitHeaderLeapsToMergedHeader is scenario 6: one side reads two
// 32-bit headers, the other one 64-bit header with the same field
// mapping — equivalent, and RunLeaps should discharge it by leaping
// the matching 32+32 vs 64 bit distance in a single SMT query instead
// of falling back to per-state stepping.
func TestSplitHeaderLeapsToMergedHeader(t *testing.T) {
	split := testParserSplitHeader(t)
	merged := testParserMergedHeader(t)

	splitChain, err := chainFrom(split, Start(split))
	require.NoError(t, err)
	mergedChain, err := chainFrom(merged, Start(merged))
	require.NoError(t, err)
	require.Equal(t, splitChain.width, mergedChain.width)

	sess := newZ3TestSession(t)
	engine := NewEngine(split, merged, sess, NewConfig(), nil)

	rel, cex, err := engine.RunLeaps(context.Background())
	require.NoError(t, err)
	require.Nil(t, cex)
	require.NotEmpty(t, rel.Classes)
}

func TestChainFromSingleStateIsItsOwnWidth(t *testing.T) {
	p := testParserAcceptAfterExtract(t, "hdr", 4)
	c, err := chainFrom(p, Start(p))
	require.NoError(t, err)
	require.Equal(t, 4, c.width)
	require.Len(t, c.states, 1)
}

func TestChainFromFollowsTrivialDefaultChain(t *testing.T) {
	mid := &State{
		Name:       "mid",
		Statements: []Statement{{Kind: StmtExtract, Header: Header{Name: "b", Width: 2}, Dest: "b"}},
		Transition: &Transition{Default: Target{Kind: TargetAccept}},
	}
	start := &State{
		Name:       "start",
		Statements: []Statement{{Kind: StmtExtract, Header: Header{Name: "a", Width: 3}, Dest: "a"}},
		Transition: &Transition{Default: Target{Kind: TargetState, State: "mid"}},
	}
	p := &Parser{
		states:    map[string]*State{"start": start, "mid": mid},
		order:     []string{"start", "mid"},
		start:     "start",
		registers: map[string]int{"a": 3, "b": 2},
	}

	c, err := chainFrom(p, "start")
	require.NoError(t, err)
	require.Equal(t, 5, c.width)
	require.Len(t, c.states, 2)
}
