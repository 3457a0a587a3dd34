package octopus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferSliceIsMostSignificantBitFirst(t *testing.T) {
	buf := NewBuffer()
	s := buf.Slice(0, 4)
	require.Equal(t, 4, s.Width())
	require.Same(t, buf.Bit(0), Extract(s, 3, 3))
	// Re-slicing the same range must yield the identical hash-consed
	// term, since Bit(i) always returns the same variable for i.
	require.Same(t, s, buf.Slice(0, 4))
}

func TestBufferBitIsStableAcrossCalls(t *testing.T) {
	buf := NewBuffer()
	a := buf.Bit(5)
	b := buf.Bit(5)
	require.Same(t, a, b)
}

func TestInitialConfigurationIsNotTerminal(t *testing.T) {
	p := testParserAcceptAfterExtract(t, "hdr", 4)
	cfg := Initial(p, "L")
	_, terminal := Terminal(cfg)
	require.False(t, terminal)
	require.Equal(t, Start(p), cfg.State.State)
	require.Equal(t, 0, cfg.Offset)
}

func TestInitialRegistersDifferBetweenSides(t *testing.T) {
	p := testParserAcceptAfterExtract(t, "hdr", 4)
	l := Initial(p, "L")
	r := Initial(p, "R")
	require.NotEqual(t, l.Regs["hdr"], r.Regs["hdr"])
}

func TestRegisterFileWithIsImmutableCopy(t *testing.T) {
	base := RegisterFile{"x": Const(4, 1)}
	updated := base.With("x", Const(4, 2))
	require.Equal(t, uint64(1), base["x"].value)
	require.Equal(t, uint64(2), updated["x"].value)
}
