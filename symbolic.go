package octopus

import "fmt"

// Buffer is the shared symbolic input: both sides of a bisimulation
// pair read from the same packet, so the buffer is a single object
// indexed by both configurations' offsets (spec.md section 3).
// Indexing beyond what has been materialised mints a fresh bit
// variable; the buffer is owned exclusively by the single-threaded
// bisimulation loop (spec.md section 5), so no locking is needed.
type Buffer struct {
	bits []*Term
}

// NewBuffer creates an empty shared symbolic buffer.
func NewBuffer() *Buffer { return &Buffer{} }

// Bit returns the i-th symbolic input bit, materialising it (and any
// bits below it not yet requested) on first access.
func (b *Buffer) Bit(i int) *Term {
	for len(b.bits) <= i {
		b.bits = append(b.bits, Var(fmt.Sprintf("in!%d", len(b.bits)), 1))
	}
	return b.bits[i]
}

// Slice concatenates bits [offset, offset+width) into one term, most
// significant bit first — the same order extract(header) uses to
// build up a register's value one consumed bit at a time.
func (b *Buffer) Slice(offset, width int) *Term {
	if width <= 0 {
		panic("octopus: non-positive slice width")
	}
	t := b.Bit(offset)
	for i := 1; i < width; i++ {
		t = Concat(t, b.Bit(offset+i))
	}
	return t
}

// RegisterFile is a finite, immutable mapping from register name to
// its current symbolic term. Unread registers hold an opaque symbolic
// constant unique per register (spec.md section 3); configurations
// never mutate a RegisterFile after creation, so With returns a
// shallow copy with one binding replaced.
type RegisterFile map[string]*Term

// With returns a copy of r with name rebound to value.
func (r RegisterFile) With(name string, value *Term) RegisterFile {
	out := make(RegisterFile, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	out[name] = value
	return out
}

func initialRegisterFile(p *Parser, side string) RegisterFile {
	out := make(RegisterFile, len(p.registers))
	for name, width := range p.registers {
		out[name] = Var(fmt.Sprintf("%s!%s!init", side, name), width)
	}
	return out
}

// Cfg is one side's symbolic configuration: control state, path
// condition, register file, and shared-buffer offset (spec.md section
// 4.4). Cfg is never mutated after construction; every operation in
// step.go returns a new Cfg value.
type Cfg struct {
	State    Target
	PathCond *Term
	Regs     RegisterFile
	Offset   int
}

// Initial builds the starting configuration for parser p, with an
// empty path condition and the declared registers bound to fresh
// per-register symbolic constants. side distinguishes the two
// parsers' initial register constants ("L"/"R") so left and right
// never alias an uninitialised register by accident.
func Initial(p *Parser, side string) Cfg {
	return Cfg{
		State:    Target{Kind: TargetState, State: Start(p)},
		PathCond: True,
		Regs:     initialRegisterFile(p, side),
		Offset:   0,
	}
}

// Terminal reports the verdict cfg has committed to, or
// (TargetState-kind, false) if cfg has not yet reached accept/reject.
func Terminal(cfg Cfg) (TargetKind, bool) {
	if cfg.State.Kind == TargetState {
		return TargetState, false
	}
	return cfg.State.Kind, true
}

// Observable is the pair (state_tag, register snapshot) the
// bisimulation relation's equality check operates over (spec.md
// section 4.4).
type Observable struct {
	StateTag string
	Regs     RegisterFile
}

func ObservableOf(cfg Cfg) Observable {
	return Observable{StateTag: cfg.State.String(), Regs: cfg.Regs}
}

// ReadNextBit extends the shared buffer by one bit if needed and
// returns that bit term together with a copy of cfg advanced by one
// position (spec.md section 4.4's read_next_bit).
func ReadNextBit(cfg Cfg, buf *Buffer) (*Term, Cfg) {
	bit := buf.Bit(cfg.Offset)
	next := cfg
	next.Offset = cfg.Offset + 1
	return bit, next
}
