package octopus

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// --- Wire schema -----------------------------------------------------
//
// The external compiler (out of scope; spec.md section 6) hands us IR
// JSON shaped as:
//
//	{
//	  "start": "s0",
//	  "registers": {"hdr": 8, "tmp": 4},
//	  "states": [
//	    {"name": "s0",
//	     "statements": [{"kind": "extract", "header": "hdr", "header_width": 8, "dest": "hdr"}],
//	     "transition": {"select": {"scrutinees": [{"kind": "reg", "reg": "hdr"}],
//	                               "cases": [{"pattern": [{"value": 1, "width": 8}], "target": "accept"}],
//	                               "default": "reject"}}}
//	  ]
//	}
//
// Unknown keys are tolerated (encoding/json ignores them by default);
// missing required keys surface as an InputError ("schema: ...").

type jsonIR struct {
	Start     string         `json:"start"`
	Registers map[string]int `json:"registers"`
	States    []jsonState    `json:"states"`
}

type jsonState struct {
	Name       string          `json:"name"`
	Statements []jsonStatement `json:"statements"`
	Transition jsonTransition  `json:"transition"`
}

type jsonStatement struct {
	Kind string `json:"kind"`

	// extract
	Header      string `json:"header"`
	HeaderWidth int    `json:"header_width"`
	Dest        string `json:"dest"`

	// assign
	Lhs string    `json:"lhs"`
	Hi  *int      `json:"hi"`
	Lo  *int      `json:"lo"`
	Rhs *jsonExpr `json:"rhs"`
}

type jsonExpr struct {
	Kind  string `json:"kind"`
	Width int    `json:"width"`
	Value uint64 `json:"value"`

	Reg string `json:"reg"`
	Hi  *int   `json:"hi"`
	Lo  *int   `json:"lo"`

	Op  string    `json:"op"`
	Lhs *jsonExpr `json:"lhs"`
	Rhs *jsonExpr `json:"rhs"`

	Cond *jsonExpr `json:"cond"`
	Then *jsonExpr `json:"then"`
	Else *jsonExpr `json:"else"`
}

type jsonTransition struct {
	Verdict string      `json:"verdict"`
	Select  *jsonSelect `json:"select"`
}

type jsonSelect struct {
	Scrutinees []*jsonExpr `json:"scrutinees"`
	Cases      []jsonCase  `json:"cases"`
	Default    *string     `json:"default"`
}

type jsonCase struct {
	Pattern []jsonPatternComponent `json:"pattern"`
	Target  string                 `json:"target"`
}

type jsonPatternComponent struct {
	Wildcard bool   `json:"wildcard"`
	Value    uint64 `json:"value"`
}

// LoadParser parses and validates IR JSON into a Parser, per spec.md
// section 4.2. It rejects unsupported constructs early (section 9:
// "IR loading should reject unsupported constructs early") and
// canonicalises the open question on implicit reject by inserting an
// explicit `default: reject` on every select missing one.
//
// All UnsupportedConstruct and IRSemanticError violations found while
// validating a single file are aggregated into one *multierror.Error
// instead of stopping at the first, so the CLI can report everything
// wrong with an input in one pass.
func LoadParser(data []byte) (*Parser, error) {
	var raw jsonIR
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newErr(KindInput, "schema: invalid JSON: %s", err)
	}
	if raw.Start == "" {
		return nil, newErr(KindInput, "schema: missing required key \"start\"")
	}
	if len(raw.States) == 0 {
		return nil, newErr(KindInput, "schema: missing required key \"states\"")
	}

	p := &Parser{
		states:    make(map[string]*State, len(raw.States)),
		order:     make([]string, 0, len(raw.States)),
		start:     raw.Start,
		registers: make(map[string]int, len(raw.Registers)),
	}
	for name, width := range raw.Registers {
		p.registers[name] = width
	}

	var errs *multierror.Error

	for _, js := range raw.States {
		if js.Name == "" {
			errs = multierror.Append(errs, newErr(KindInput, "schema: state missing required key \"name\""))
			continue
		}
		if _, dup := p.states[js.Name]; dup {
			errs = multierror.Append(errs, newErr(KindInput, "schema: duplicate state %q", js.Name))
			continue
		}
		state, serrs := loadState(p, js)
		for _, e := range serrs {
			errs = multierror.Append(errs, e)
		}
		p.states[js.Name] = state
		p.order = append(p.order, js.Name)
	}

	if _, ok := p.states[p.start]; !ok {
		errs = multierror.Append(errs, newErr(KindInput, "schema: start state %q is not declared", p.start))
	}

	// Cross-reference targets: every TargetState must name a declared
	// state. Forward references (including self-loops) are allowed
	// per spec.md section 4.2.
	for _, name := range p.order {
		s := p.states[name]
		if s.Transition == nil {
			continue
		}
		for _, arm := range s.Transition.Arms {
			errs = checkTarget(p, arm.Target, errs)
		}
		errs = checkTarget(p, s.Transition.Default, errs)
	}

	if errs != nil {
		return nil, errs.ErrorOrNil()
	}

	if err := validateDataFlow(p); err != nil {
		return nil, err
	}

	return p, nil
}

func checkTarget(p *Parser, t Target, errs *multierror.Error) *multierror.Error {
	if t.Kind != TargetState {
		return errs
	}
	if _, ok := p.states[t.State]; !ok {
		return multierror.Append(errs, newErr(KindInput, "schema: transition targets undeclared state %q", t.State))
	}
	return errs
}

func loadState(p *Parser, js jsonState) (*State, []error) {
	var errs []error
	state := &State{Name: js.Name}

	for i, jstmt := range js.Statements {
		stmt, err := loadStatement(p, jstmt)
		if err != nil {
			errs = append(errs, fmt.Errorf("state %q statement %d: %w", js.Name, i, err))
			continue
		}
		state.Statements = append(state.Statements, *stmt)
	}

	transition, terrs := loadTransition(js)
	errs = append(errs, terrs...)
	state.Transition = transition

	return state, errs
}

func loadStatement(p *Parser, js jsonStatement) (*Statement, error) {
	switch js.Kind {
	case "extract":
		if js.Header == "" || js.HeaderWidth <= 0 || js.Dest == "" {
			return nil, newErr(KindInput, "schema: extract statement missing header/header_width/dest")
		}
		declareRegister(p, js.Dest, js.HeaderWidth)
		return &Statement{
			Kind:   StmtExtract,
			Header: Header{Name: js.Header, Width: js.HeaderWidth},
			Dest:   js.Dest,
		}, nil

	case "assign":
		if js.Lhs == "" || js.Rhs == nil {
			return nil, newErr(KindInput, "schema: assign statement missing lhs/rhs")
		}
		rhs, err := loadExpr(js.Rhs)
		if err != nil {
			return nil, err
		}
		hi, lo := -1, -1
		if js.Hi != nil && js.Lo != nil {
			hi, lo = *js.Hi, *js.Lo
			if lo < 0 || hi < lo {
				return nil, newErr(KindUnsupportedConstruct, "assign to %q: invalid slice [%d:%d]", js.Lhs, hi, lo)
			}
			declareRegister(p, js.Lhs, hi+1)
		} else {
			declareRegister(p, js.Lhs, rhs.Width)
		}
		return &Statement{
			Kind:       StmtAssign,
			AssignDest: js.Lhs,
			Hi:         hi,
			Lo:         lo,
			Rhs:        rhs,
		}, nil

	case "":
		return nil, newErr(KindInput, "schema: statement missing required key \"kind\"")

	default:
		return nil, newErr(KindUnsupportedConstruct, "statement kind %q is outside the covered subset", js.Kind)
	}
}

func declareRegister(p *Parser, name string, width int) {
	if _, ok := p.registers[name]; !ok {
		p.registers[name] = width
	}
}

func loadExpr(js *jsonExpr) (*IRExpr, error) {
	if js == nil {
		return nil, newErr(KindInput, "schema: missing expression")
	}
	switch js.Kind {
	case "const":
		if js.Width <= 0 {
			return nil, newErr(KindUnsupportedConstruct, "const expression has non-fixed or non-positive width %d", js.Width)
		}
		return &IRExpr{Kind: ExprConst, Width: js.Width, Value: js.Value}, nil

	case "reg":
		if js.Reg == "" {
			return nil, newErr(KindInput, "schema: reg expression missing \"reg\"")
		}
		e := &IRExpr{Kind: ExprReg, Reg: js.Reg}
		if js.Hi != nil && js.Lo != nil {
			e.HasSlice = true
			e.Hi, e.Lo = *js.Hi, *js.Lo
			if e.Lo < 0 || e.Hi < e.Lo {
				return nil, newErr(KindUnsupportedConstruct, "reg %q slice [%d:%d] is malformed", js.Reg, e.Hi, e.Lo)
			}
			e.Width = e.Hi - e.Lo + 1
		} else if js.Width > 0 {
			e.Width = js.Width
		}
		return e, nil

	case "concat":
		lhs, err := loadExpr(js.Lhs)
		if err != nil {
			return nil, err
		}
		rhs, err := loadExpr(js.Rhs)
		if err != nil {
			return nil, err
		}
		return &IRExpr{Kind: ExprConcat, Width: lhs.Width + rhs.Width, Lhs: lhs, Rhs: rhs}, nil

	case "and", "or", "xor", "not", "shl", "shr":
		lhs, err := loadExpr(js.Lhs)
		if err != nil {
			return nil, err
		}
		e := &IRExpr{Kind: ExprBitwise, Width: lhs.Width, Lhs: lhs, Op: bvOpFromString(js.Kind)}
		if js.Kind != "not" {
			rhs, err := loadExpr(js.Rhs)
			if err != nil {
				return nil, err
			}
			e.Rhs = rhs
		}
		return e, nil

	case "eq":
		lhs, err := loadExpr(js.Lhs)
		if err != nil {
			return nil, err
		}
		rhs, err := loadExpr(js.Rhs)
		if err != nil {
			return nil, err
		}
		return &IRExpr{Kind: ExprEq, Width: 1, Lhs: lhs, Rhs: rhs}, nil

	case "ite":
		cond, err := loadExpr(js.Cond)
		if err != nil {
			return nil, err
		}
		then, err := loadExpr(js.Then)
		if err != nil {
			return nil, err
		}
		els, err := loadExpr(js.Else)
		if err != nil {
			return nil, err
		}
		return &IRExpr{Kind: ExprIte, Width: then.Width, Cond: cond, Then: then, Else: els}, nil

	case "":
		return nil, newErr(KindInput, "schema: expression missing required key \"kind\"")

	default:
		return nil, newErr(KindUnsupportedConstruct, "expression kind %q is outside the covered subset (bit-vector operations only)", js.Kind)
	}
}

func bvOpFromString(s string) BVOp {
	switch s {
	case "and":
		return OpAnd
	case "or":
		return OpOr
	case "xor":
		return OpXor
	case "not":
		return OpNot
	case "shl":
		return OpShl
	case "shr":
		return OpShr
	default:
		return OpAnd
	}
}

func loadTransition(js jsonState) (*Transition, []error) {
	jt := js.Transition
	switch {
	case jt.Verdict == "accept" || jt.Verdict == "reject":
		return verdictTransition(jt.Verdict), nil
	case jt.Select != nil:
		return loadSelect(js.Name, jt.Select)
	default:
		// spec.md section 9 open question: a select without an
		// explicit default implicitly rejects. A state with *no*
		// terminal transition at all is a schema error — the load
		// time canonicalisation only fills in a missing `default`
		// arm, it does not invent a transition out of thin air.
		return nil, []error{newErr(KindInput, "schema: state %q has no terminal transition", js.Name)}
	}
}

// verdictTransition represents a state whose transition is directly
// `accept`/`reject` (as opposed to a select arm pointing at one) as a
// degenerate Transition with no scrutinees/arms and a Default of the
// given verdict. This lets every other component treat a state's
// Transition uniformly.
func verdictTransition(verdict string) *Transition {
	switch verdict {
	case "accept":
		return &Transition{Default: Target{Kind: TargetAccept}}
	case "reject":
		return &Transition{Default: Target{Kind: TargetReject}}
	default:
		return nil
	}
}

func loadSelect(stateName string, js *jsonSelect) (*Transition, []error) {
	var errs []error
	t := &Transition{}

	for i, se := range js.Scrutinees {
		e, err := loadExpr(se)
		if err != nil {
			errs = append(errs, fmt.Errorf("state %q select scrutinee %d: %w", stateName, i, err))
			continue
		}
		t.Scrutinees = append(t.Scrutinees, e)
	}

	for i, jc := range js.Cases {
		if len(jc.Pattern) != len(t.Scrutinees) {
			errs = append(errs, newErr(KindInput, "state %q case %d: pattern arity %d does not match %d scrutinees",
				stateName, i, len(jc.Pattern), len(t.Scrutinees)))
			continue
		}
		target, err := parseTarget(jc.Target)
		if err != nil {
			errs = append(errs, fmt.Errorf("state %q case %d: %w", stateName, i, err))
			continue
		}
		pattern := make([]PatternComponent, len(jc.Pattern))
		for j, pc := range jc.Pattern {
			pattern[j] = PatternComponent{Wildcard: pc.Wildcard, Value: pc.Value}
		}
		t.Arms = append(t.Arms, SelectArm{Pattern: pattern, Target: target})
	}

	// Open question (spec.md section 9): canonicalise the implicit
	// reject by inserting an explicit default arm when none is given.
	if js.Default != nil {
		target, err := parseTarget(*js.Default)
		if err != nil {
			errs = append(errs, fmt.Errorf("state %q default: %w", stateName, err))
		} else {
			t.Default = target
		}
	} else {
		t.Default = Target{Kind: TargetReject}
	}

	return t, errs
}

func parseTarget(s string) (Target, error) {
	switch s {
	case "accept":
		return Target{Kind: TargetAccept}, nil
	case "reject":
		return Target{Kind: TargetReject}, nil
	case "":
		return Target{}, newErr(KindInput, "schema: target is empty")
	default:
		return Target{Kind: TargetState, State: s}, nil
	}
}

// validateDataFlow enforces spec.md section 3's invariant that "every
// register slice read has been written on every path reaching the
// read," via a forward must-write dataflow fixpoint over the (cyclic,
// since self-loops and forward references are allowed) control-flow
// graph induced by select targets.
func validateDataFlow(p *Parser) error {
	writtenAtEntry := make(map[string]map[string]bool, len(p.order))
	for _, name := range p.order {
		writtenAtEntry[name] = nil // nil means "not yet computed"
	}
	writtenAtEntry[p.start] = map[string]bool{}

	preds := predecessors(p)

	changed := true
	for changed {
		changed = false
		for _, name := range p.order {
			in := meetPredecessors(p, name, preds, writtenAtEntry)
			if in == nil {
				continue
			}
			out := writeSet(p.states[name], in)
			if !setEqual(writtenAtEntry[name], in) {
				writtenAtEntry[name] = in
				changed = true
			}
			_ = out
		}
	}

	var errs *multierror.Error
	for _, name := range p.order {
		in := writtenAtEntry[name]
		if in == nil {
			continue // unreachable from start; nothing to validate
		}
		running := cloneSet(in)
		s := p.states[name]
		for i, stmt := range s.Statements {
			if stmt.Kind == StmtAssign {
				for _, reg := range readRegisters(stmt.Rhs) {
					if !running[reg] {
						errs = multierror.Append(errs, newErr(KindIRSemantic,
							"state %q statement %d reads register %q before it is written on some path",
							name, i, reg))
					}
				}
				running[stmt.AssignDest] = true
			} else {
				running[stmt.Dest] = true
			}
		}
		if s.Transition != nil {
			for _, sc := range s.Transition.Scrutinees {
				for _, reg := range readRegisters(sc) {
					if !running[reg] {
						errs = multierror.Append(errs, newErr(KindIRSemantic,
							"state %q select scrutinee reads register %q before it is written on some path", name, reg))
					}
				}
			}
		}
	}
	return errs.ErrorOrNil()
}

func predecessors(p *Parser) map[string][]string {
	preds := make(map[string][]string, len(p.order))
	for _, name := range p.order {
		s := p.states[name]
		if s.Transition == nil {
			continue
		}
		targets := make(map[string]bool)
		for _, arm := range s.Transition.Arms {
			if arm.Target.Kind == TargetState {
				targets[arm.Target.State] = true
			}
		}
		if s.Transition.Default.Kind == TargetState {
			targets[s.Transition.Default.State] = true
		}
		for tgt := range targets {
			preds[tgt] = append(preds[tgt], name)
		}
	}
	return preds
}

func meetPredecessors(p *Parser, name string, preds map[string][]string, in map[string]map[string]bool) map[string]bool {
	if in[name] != nil {
		// Already seeded (start state); still must meet with
		// predecessors in case of a self-loop or cycle back to start.
	}
	ps := preds[name]
	var acc map[string]bool
	seeded := in[name] != nil
	if seeded {
		acc = cloneSet(in[name])
	}
	for _, pr := range ps {
		out := writeSetAtExit(p, pr, in)
		if out == nil {
			continue // predecessor not yet reached a fixpoint
		}
		if acc == nil {
			acc = cloneSet(out)
			seeded = true
			continue
		}
		acc = intersect(acc, out)
	}
	if !seeded {
		return nil
	}
	return acc
}

func writeSetAtExit(p *Parser, name string, in map[string]map[string]bool) map[string]bool {
	entry := in[name]
	if entry == nil {
		return nil
	}
	return writeSet(p.states[name], entry)
}

func writeSet(s *State, in map[string]bool) map[string]bool {
	out := cloneSet(in)
	for _, stmt := range s.Statements {
		if stmt.Kind == StmtAssign {
			out[stmt.AssignDest] = true
		} else {
			out[stmt.Dest] = true
		}
	}
	return out
}

func readRegisters(e *IRExpr) []string {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case ExprReg:
		return []string{e.Reg}
	case ExprConcat, ExprBitwise, ExprEq:
		out := readRegisters(e.Lhs)
		out = append(out, readRegisters(e.Rhs)...)
		return out
	case ExprIte:
		out := readRegisters(e.Cond)
		out = append(out, readRegisters(e.Then)...)
		out = append(out, readRegisters(e.Else)...)
		return out
	default:
		return nil
	}
}

func cloneSet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func setEqual(a, b map[string]bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func intersect(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}
