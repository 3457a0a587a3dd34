package octopus

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testSession(t *testing.T, n int) *Session {
	t.Helper()
	specs := make([]SolverOptions, n)
	for i := range specs {
		specs[i] = SolverOptions{Name: "stub"}
	}
	s, err := Open(specs, SolverOptions{TimeoutMs: 1000}, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSessionAssertFalseIsUnsat(t *testing.T) {
	s := testSession(t, 1)
	s.Assert(False)
	res, err := s.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, Unsat, res)
}

func TestSessionEmptyIsSat(t *testing.T) {
	s := testSession(t, 2)
	res, err := s.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, Sat, res)
}

func TestSessionContradictionIsUnsat(t *testing.T) {
	s := testSession(t, 1)
	x := Var("x", 1)
	s.Assert(x)
	s.Assert(Not(x))
	res, err := s.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, Unsat, res)
}

func TestSessionPushPopRestoresFrame(t *testing.T) {
	s := testSession(t, 1)
	s.Assert(True)
	s.Push()
	s.Assert(False)
	res, err := s.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, Unsat, res)

	s.Pop()
	res, err = s.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, Sat, res)
}

func TestSessionUnknownWhenUndecidable(t *testing.T) {
	s := testSession(t, 2)
	x := Var("x", 8)
	y := Var("y", 8)
	s.Assert(Eq(x, y)) // the stub solver can't decide this either way
	res, err := s.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, Unknown, res)
}
