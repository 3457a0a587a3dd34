package octopus

import (
	"fmt"
	"sync"
)

// BVOp names the bitwise operators carried by a bitwise term.
type BVOp int

const (
	OpAnd BVOp = iota
	OpOr
	OpXor
	OpNot
	OpShl
	OpShr
)

func (op BVOp) String() string {
	switch op {
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpXor:
		return "xor"
	case OpNot:
		return "not"
	case OpShl:
		return "shl"
	case OpShr:
		return "shr"
	default:
		return "?"
	}
}

// termKind discriminates the sum type described in spec.md section 3:
// constant, variable, concat, extract, bitwise, equality and ite.
type termKind int

const (
	kindConst termKind = iota
	kindVar
	kindConcat
	kindExtract
	kindBitwise
	kindEq
	kindIte
)

// Term is an immutable, hash-consed bit-vector (or boolean, for Eq/Ite
// with width 1) expression. Two structurally identical terms are, after
// interning, the same pointer: structural equality is cheap identity
// comparison, per spec.md section 9 ("Symbolic-term graphs must be
// shared, not owned").
type Term struct {
	kind  termKind
	width int

	// constant
	value uint64

	// variable
	name string

	// concat / bitwise(lhs, rhs) / eq(lhs, rhs)
	lhs, rhs *Term

	// extract
	hi, lo int

	// bitwise
	op BVOp

	// ite
	cond, then, els *Term
}

// Width returns the bit-width of the term (1 for boolean-valued terms
// produced by Eq).
func (t *Term) Width() int { return t.width }

// IsBool reports whether t is a boolean formula (an Eq, a boolean
// conjunction/disjunction/negation built from Eq via Ite-on-1-bit, or a
// width-1 term treated as a predicate).
func (t *Term) IsBool() bool { return t.kind == kindEq || t.width == 1 }

func (t *Term) String() string {
	switch t.kind {
	case kindConst:
		return fmt.Sprintf("0x%x:%d", t.value, t.width)
	case kindVar:
		return fmt.Sprintf("%s:%d", t.name, t.width)
	case kindConcat:
		return fmt.Sprintf("(concat %s %s)", t.lhs, t.rhs)
	case kindExtract:
		return fmt.Sprintf("(extract %d %d %s)", t.hi, t.lo, t.lhs)
	case kindBitwise:
		if t.op == OpNot {
			return fmt.Sprintf("(not %s)", t.lhs)
		}
		return fmt.Sprintf("(%s %s %s)", t.op, t.lhs, t.rhs)
	case kindEq:
		return fmt.Sprintf("(= %s %s)", t.lhs, t.rhs)
	case kindIte:
		return fmt.Sprintf("(ite %s %s %s)", t.cond, t.then, t.els)
	default:
		return "<?term>"
	}
}

// termKey is the structural key the arena hash-conses on. Every field
// that String() would print participates here, so structurally equal
// terms always collide to one interned pointer.
type termKey struct {
	kind       termKind
	width      int
	value      uint64
	name       string
	lhs, rhs   *Term
	hi, lo     int
	op         BVOp
	cond, then *Term
	els        *Term
}

// termTable is the process-wide, append-only hash-consing arena.
// Grounded on the teacher's generic incremental query cache
// (Database.cache in the retrieval pack's langlang/go query.go): a
// mutex-guarded map that is only ever grown, never invalidated, safe
// to query from multiple goroutines (spec.md section 5: "the
// hash-consing table is the only process-wide cache ... safe to query
// across threads").
type termTable struct {
	mu    sync.RWMutex
	terms map[termKey]*Term
}

func newTermTable() *termTable {
	return &termTable{terms: make(map[termKey]*Term, 1024)}
}

func (a *termTable) intern(key termKey, build func() *Term) *Term {
	a.mu.RLock()
	if t, ok := a.terms[key]; ok {
		a.mu.RUnlock()
		return t
	}
	a.mu.RUnlock()

	// build runs without the lock held: simplify may itself intern
	// further terms (Const, Extract) from inside it.
	t := build()

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.terms[key]; ok {
		return existing
	}
	a.terms[key] = t
	return t
}

// arena is the single process-wide term table. A single arena freed at
// process exit is idiomatic here (spec.md section 9): terms are
// write-mostly and never deleted.
var arena = newTermTable()

func widthMismatch(op string, a, b *Term) {
	panic(fmt.Sprintf("octopus: width mismatch in %s: %d vs %d", op, a.width, b.width))
}

// Const builds (or fetches) the constant term of the given width. The
// value is masked to width bits.
func Const(width int, value uint64) *Term {
	if width <= 0 {
		panic("octopus: non-positive term width")
	}
	if width < 64 {
		value &= (uint64(1) << width) - 1
	}
	key := termKey{kind: kindConst, width: width, value: value}
	return arena.intern(key, func() *Term {
		return &Term{kind: kindConst, width: width, value: value}
	})
}

// Var builds (or fetches) the unique symbolic variable with the given
// name and width. Each distinct name/width pair denotes one logical
// unknown; callers that need freshness must mint unique names (see
// symbolic.go's buffer and register-file initialisation).
func Var(name string, width int) *Term {
	if width <= 0 {
		panic("octopus: non-positive term width")
	}
	key := termKey{kind: kindVar, width: width, name: name}
	return arena.intern(key, func() *Term {
		return &Term{kind: kindVar, width: width, name: name}
	})
}

// Concat appends rhs's bits below lhs's: width(Concat(a,b)) =
// width(a)+width(b), matching the extract/register-write convention
// used by step.go when appending freshly-extracted bits.
func Concat(lhs, rhs *Term) *Term {
	key := termKey{kind: kindConcat, width: lhs.width + rhs.width, lhs: lhs, rhs: rhs}
	return arena.intern(key, func() *Term {
		t := &Term{kind: kindConcat, width: lhs.width + rhs.width, lhs: lhs, rhs: rhs}
		return simplify(t)
	})
}

// Extract takes bits [lo, hi] (inclusive) out of src, requiring
// 0 <= lo <= hi < width(src).
func Extract(src *Term, hi, lo int) *Term {
	if lo < 0 || hi < lo || hi >= src.width {
		panic(fmt.Sprintf("octopus: extract(%d,%d) out of bounds for width %d", hi, lo, src.width))
	}
	if lo == 0 && hi == src.width-1 {
		return src
	}
	key := termKey{kind: kindExtract, width: hi - lo + 1, lhs: src, hi: hi, lo: lo}
	return arena.intern(key, func() *Term {
		t := &Term{kind: kindExtract, width: hi - lo + 1, lhs: src, hi: hi, lo: lo}
		return simplify(t)
	})
}

func bitwise(op BVOp, lhs, rhs *Term) *Term {
	if rhs != nil && lhs.width != rhs.width {
		widthMismatch(op.String(), lhs, rhs)
	}
	var rhsKey *Term
	if rhs != nil {
		rhsKey = rhs
	}
	key := termKey{kind: kindBitwise, width: lhs.width, lhs: lhs, rhs: rhsKey, op: op}
	return arena.intern(key, func() *Term {
		t := &Term{kind: kindBitwise, width: lhs.width, lhs: lhs, rhs: rhsKey, op: op}
		return simplify(t)
	})
}

func And(lhs, rhs *Term) *Term { return bitwise(OpAnd, lhs, rhs) }
func Or(lhs, rhs *Term) *Term  { return bitwise(OpOr, lhs, rhs) }
func Xor(lhs, rhs *Term) *Term { return bitwise(OpXor, lhs, rhs) }
func Not(t *Term) *Term        { return bitwise(OpNot, t, nil) }
func Shl(lhs, rhs *Term) *Term { return bitwise(OpShl, lhs, rhs) }
func Shr(lhs, rhs *Term) *Term { return bitwise(OpShr, lhs, rhs) }

// Eq lifts a bit-vector equality to a width-1 boolean term, per
// spec.md section 3 ("equality(lhs, rhs) -> boolean term").
func Eq(lhs, rhs *Term) *Term {
	if lhs.width != rhs.width {
		widthMismatch("eq", lhs, rhs)
	}
	key := termKey{kind: kindEq, width: 1, lhs: lhs, rhs: rhs}
	return arena.intern(key, func() *Term {
		t := &Term{kind: kindEq, width: 1, lhs: lhs, rhs: rhs}
		return simplify(t)
	})
}

// Ite builds a conditional term; cond must be boolean (width 1), then
// and els must share a width.
func Ite(cond, then, els *Term) *Term {
	if !cond.IsBool() {
		panic("octopus: ite condition must be boolean")
	}
	if then.width != els.width {
		widthMismatch("ite", then, els)
	}
	key := termKey{kind: kindIte, width: then.width, cond: cond, then: then, els: els}
	return arena.intern(key, func() *Term {
		t := &Term{kind: kindIte, width: then.width, cond: cond, then: then, els: els}
		return simplify(t)
	})
}

// True and False are the canonical boolean constants used throughout
// the path-condition and guard algebra.
var (
	True  = Const(1, 1)
	False = Const(1, 0)
)

// AndBool / OrBool over booleans, a thin convenience matching the way
// guards are conjoined in step.go and the path condition is extended
// in symbolic.go.
func AndBool(terms ...*Term) *Term {
	acc := True
	for _, t := range terms {
		acc = And(acc, t)
	}
	return acc
}

func OrBool(terms ...*Term) *Term {
	acc := False
	for _, t := range terms {
		acc = Or(acc, t)
	}
	return acc
}
