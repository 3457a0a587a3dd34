package octopus

import "testing"

// testParserAcceptAfterExtract builds the scenario-1 style parser
// directly from the IR types (bypassing JSON/LoadParser, which has
// its own dedicated tests in ir_load_test.go): one state that
// extracts a single field and accepts unconditionally.
func testParserAcceptAfterExtract(t *testing.T, reg string, width int) *Parser {
	t.Helper()
	start := &State{
		Name: "start",
		Statements: []Statement{
			{Kind: StmtExtract, Header: Header{Name: reg, Width: width}, Dest: reg},
		},
		Transition: &Transition{Default: Target{Kind: TargetAccept}},
	}
	return &Parser{
		states:    map[string]*State{"start": start},
		order:     []string{"start"},
		start:     "start",
		registers: map[string]int{reg: width},
	}
}

// testParserSelectOnBit builds a two-state parser: start extracts a
// 1-bit field into "tag", then selects on it with the given arm
// order, each arm going straight to accept/reject, default reject.
func testParserSelectOnBit(t *testing.T, arms []SelectArm) *Parser {
	t.Helper()
	start := &State{
		Name: "start",
		Statements: []Statement{
			{Kind: StmtExtract, Header: Header{Name: "tag", Width: 1}, Dest: "tag"},
		},
		Transition: &Transition{
			Scrutinees: []*IRExpr{{Kind: ExprReg, Width: 1, Reg: "tag"}},
			Arms:       arms,
			Default:    Target{Kind: TargetReject},
		},
	}
	return &Parser{
		states:    map[string]*State{"start": start},
		order:     []string{"start"},
		start:     "start",
		registers: map[string]int{"tag": 1},
	}
}

// testParserSelfLoop builds the scenario-5 "direct loop" parser: a
// single state that extracts a 1-bit stop flag and either accepts
// (stop set) or loops back on itself (stop clear).
func testParserSelfLoop(t *testing.T) *Parser {
	t.Helper()
	start := &State{
		Name:       "start",
		Statements: []Statement{{Kind: StmtExtract, Header: Header{Name: "stop", Width: 1}, Dest: "stop"}},
		Transition: &Transition{
			Scrutinees: []*IRExpr{{Kind: ExprReg, Width: 1, Reg: "stop"}},
			Arms:       []SelectArm{armTo(1, Target{Kind: TargetAccept})},
			Default:    Target{Kind: TargetState, State: "start"},
		},
	}
	return &Parser{
		states:    map[string]*State{"start": start},
		order:     []string{"start"},
		start:     "start",
		registers: map[string]int{"stop": 1},
	}
}

// testParserSelfLoopUnrolled builds the scenario-5 "unrolled once"
// counterpart: the first iteration is its own state, falling through
// into the self-looping state on the second and later iterations.
// Language-equivalent to testParserSelfLoop, just written out longhand
// for the first label.
func testParserSelfLoopUnrolled(t *testing.T) *Parser {
	t.Helper()
	loop := &State{
		Name:       "loop",
		Statements: []Statement{{Kind: StmtExtract, Header: Header{Name: "stop", Width: 1}, Dest: "stop"}},
		Transition: &Transition{
			Scrutinees: []*IRExpr{{Kind: ExprReg, Width: 1, Reg: "stop"}},
			Arms:       []SelectArm{armTo(1, Target{Kind: TargetAccept})},
			Default:    Target{Kind: TargetState, State: "loop"},
		},
	}
	s0 := &State{
		Name:       "s0",
		Statements: []Statement{{Kind: StmtExtract, Header: Header{Name: "stop", Width: 1}, Dest: "stop"}},
		Transition: &Transition{
			Scrutinees: []*IRExpr{{Kind: ExprReg, Width: 1, Reg: "stop"}},
			Arms:       []SelectArm{armTo(1, Target{Kind: TargetAccept})},
			Default:    Target{Kind: TargetState, State: "loop"},
		},
	}
	return &Parser{
		states:    map[string]*State{"s0": s0, "loop": loop},
		order:     []string{"s0", "loop"},
		start:     "s0",
		registers: map[string]int{"stop": 1},
	}
}

// testParserSplitHeader and testParserMergedHeader are the scenario-6
// pair: the same 64 bits of packet observed either as two chained
// 32-bit extracts or as a single 64-bit extract, both accepting
// unconditionally afterwards.
func testParserSplitHeader(t *testing.T) *Parser {
	t.Helper()
	s1 := &State{
		Name:       "s1",
		Statements: []Statement{{Kind: StmtExtract, Header: Header{Name: "lo", Width: 32}, Dest: "lo"}},
		Transition: &Transition{Default: Target{Kind: TargetAccept}},
	}
	s0 := &State{
		Name:       "s0",
		Statements: []Statement{{Kind: StmtExtract, Header: Header{Name: "hi", Width: 32}, Dest: "hi"}},
		Transition: &Transition{Default: Target{Kind: TargetState, State: "s1"}},
	}
	return &Parser{
		states:    map[string]*State{"s0": s0, "s1": s1},
		order:     []string{"s0", "s1"},
		start:     "s0",
		registers: map[string]int{"hi": 32, "lo": 32},
	}
}

func testParserMergedHeader(t *testing.T) *Parser {
	t.Helper()
	s0 := &State{
		Name:       "s0",
		Statements: []Statement{{Kind: StmtExtract, Header: Header{Name: "full", Width: 64}, Dest: "full"}},
		Transition: &Transition{Default: Target{Kind: TargetAccept}},
	}
	return &Parser{
		states:    map[string]*State{"s0": s0},
		order:     []string{"s0"},
		start:     "s0",
		registers: map[string]int{"full": 64},
	}
}

func armTo(value uint64, target Target) SelectArm {
	return SelectArm{Pattern: []PatternComponent{{Value: value}}, Target: target}
}

func wildcardArmTo(target Target) SelectArm {
	return SelectArm{Pattern: []PatternComponent{{Wildcard: true}}, Target: target}
}

func newZ3TestSession(t *testing.T) *Session {
	t.Helper()
	s, err := Open([]SolverOptions{{Name: "z3"}}, SolverOptions{TimeoutMs: 5000, Incremental: true, GenerateModels: true}, nil)
	if err != nil {
		t.Skipf("z3 backend unavailable: %s", err)
	}
	t.Cleanup(s.Close)
	return s
}
