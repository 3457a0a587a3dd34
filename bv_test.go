package octopus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstInterning(t *testing.T) {
	a := Const(8, 0xAB)
	b := Const(8, 0xAB)
	require.True(t, a == b, "equal constants must hash-cons to the same pointer")

	c := Const(8, 0xAB+0x100) // masked down to 0xAB
	assert.True(t, a == c)
}

func TestVarIdentity(t *testing.T) {
	x1 := Var("x", 4)
	x2 := Var("x", 4)
	assert.True(t, x1 == x2)

	y := Var("y", 4)
	assert.False(t, x1 == y)
}

func TestConcatExtractCancellation(t *testing.T) {
	a := Var("a", 4)
	b := Var("b", 4)
	cc := Concat(a, b)
	require.Equal(t, 8, cc.Width())

	// b occupies the low 4 bits, a the high 4 bits.
	assert.Same(t, b, Extract(cc, 3, 0))
	assert.Same(t, a, Extract(cc, 7, 4))
}

func TestDoubleNegation(t *testing.T) {
	x := Var("x", 8)
	nn := Not(Not(x))
	assert.Same(t, x, nn)
}

func TestAndOrIdempotence(t *testing.T) {
	x := Var("x", 8)
	assert.Same(t, x, And(x, x))
	assert.Same(t, x, Or(x, x))
}

func TestConstantFolding(t *testing.T) {
	assert.Equal(t, Const(8, 0x0F), And(Const(8, 0xFF), Const(8, 0x0F)))
	assert.Equal(t, Const(8, 0xFF), Or(Const(8, 0xF0), Const(8, 0x0F)))
}

func TestIteConstantCondition(t *testing.T) {
	x := Var("x", 4)
	y := Var("y", 4)
	assert.Same(t, x, Ite(True, x, y))
	assert.Same(t, y, Ite(False, x, y))
}

func TestEqReflexive(t *testing.T) {
	x := Var("x", 4)
	assert.Same(t, True, Eq(x, x))
}

func TestWidthMismatchPanics(t *testing.T) {
	x := Var("x", 4)
	y := Var("y", 8)
	assert.Panics(t, func() { And(x, y) })
	assert.Panics(t, func() { Eq(x, y) })
}

func TestExtractOutOfBoundsPanics(t *testing.T) {
	x := Var("x", 4)
	assert.Panics(t, func() { Extract(x, 4, 0) })
	assert.Panics(t, func() { Extract(x, 1, 2) })
}
