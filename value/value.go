// Package value implements the closed, sum-typed scalar value a tuple space
// communicates in, plus the immutable Tuple built out of them.
//
// The type set is fixed on purpose: out, in, rd and friends only ever move
// these eleven kinds of data between peers, so the whole system can index,
// compare and serialize values without any reflection or schema.
package value

import (
	"fmt"
	"strings"
)

// Kind identifies which alternative of the Value sum type is populated. The
// numeric order of these constants is the order used to compare values of
// different kinds against each other, so it must never be reordered once
// tuples have been exchanged between peers running different builds.
type Kind uint8

const (
	KindInt16 Kind = iota
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindFnCall
	KindFnCallTag
)

func (k Kind) String() string {
	switch k {
	case KindInt16:
		return "i16"
	case KindUint16:
		return "u16"
	case KindInt32:
		return "i32"
	case KindUint32:
		return "u32"
	case KindInt64:
		return "i64"
	case KindUint64:
		return "u64"
	case KindFloat32:
		return "f32"
	case KindFloat64:
		return "f64"
	case KindString:
		return "string"
	case KindFnCall:
		return "fn-call"
	case KindFnCallTag:
		return "fn-call-tag"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// FnCall carries a function name plus the already-evaluated arguments eval
// invokes it with. It is itself a Value so it can be embedded as a field of
// a tuple (the wire frame a coordinator ships to a worker for eval is just a
// one-field tuple holding an FnCall).
type FnCall struct {
	Name string
	Args Tuple
}

func (f FnCall) String() string {
	return fmt.Sprintf("%s(%s)", f.Name, f.Args)
}

// FnCallTag is the singleton placeholder meaning "some function call" used
// by queries that want to match any FnCall regardless of name or arguments.
// It compares less than every other Value and equal only to itself.
type FnCallTag struct{}

func (FnCallTag) String() string { return "<fn-call>" }

// Value is the closed sum type every tuple field is drawn from. The zero
// Value is not meaningful; always construct one with one of the New*
// helpers.
type Value struct {
	kind Kind
	i    int64  // Int16, Uint16, Int32, Uint32, Int64 (sign-extended)
	u    uint64 // Uint64, and the bit pattern for Float32/Float64
	s    string // String
	fn   *FnCall
}

func NewInt16(v int16) Value     { return Value{kind: KindInt16, i: int64(v)} }
func NewUint16(v uint16) Value   { return Value{kind: KindUint16, i: int64(v)} }
func NewInt32(v int32) Value     { return Value{kind: KindInt32, i: int64(v)} }
func NewUint32(v uint32) Value   { return Value{kind: KindUint32, i: int64(v)} }
func NewInt64(v int64) Value     { return Value{kind: KindInt64, i: v} }
func NewUint64(v uint64) Value   { return Value{kind: KindUint64, u: v} }
func NewFloat32(v float32) Value { return Value{kind: KindFloat32, u: uint64(float32bits(v))} }
func NewFloat64(v float64) Value { return Value{kind: KindFloat64, u: float64bits(v)} }
func NewString(v string) Value   { return Value{kind: KindString, s: v} }

func NewFnCall(name string, args ...Value) Value {
	return Value{kind: KindFnCall, fn: &FnCall{Name: name, Args: NewTuple(args...)}}
}

func NewFnCallTag() Value { return Value{kind: KindFnCallTag} }

// Kind reports which alternative is populated.
func (v Value) Kind() Kind { return v.kind }

func (v Value) Int16() int16     { return int16(v.i) }
func (v Value) Uint16() uint16   { return uint16(v.i) }
func (v Value) Int32() int32     { return int32(v.i) }
func (v Value) Uint32() uint32   { return uint32(v.i) }
func (v Value) Int64() int64     { return v.i }
func (v Value) Uint64() uint64   { return v.u }
func (v Value) Float32() float32 { return float32frombits(uint32(v.u)) }
func (v Value) Float64() float64 { return float64frombits(v.u) }
func (v Value) String_() string  { return v.s }
func (v Value) FnCall() FnCall   { return *v.fn }

func (v Value) String() string {
	switch v.kind {
	case KindInt16, KindInt32, KindInt64:
		return fmt.Sprintf("(%s: %d)", v.kind, v.signed())
	case KindUint16, KindUint32:
		return fmt.Sprintf("(%s: %d)", v.kind, uint64(v.i))
	case KindUint64:
		return fmt.Sprintf("(%s: %d)", v.kind, v.u)
	case KindFloat32:
		return fmt.Sprintf("(%s: %v)", v.kind, v.Float32())
	case KindFloat64:
		return fmt.Sprintf("(%s: %v)", v.kind, v.Float64())
	case KindString:
		return fmt.Sprintf("(%s: %q@%d)", v.kind, v.s, len(v.s))
	case KindFnCall:
		return fmt.Sprintf("(%s: %s)", v.kind, v.fn)
	case KindFnCallTag:
		return "(fn-call-tag)"
	default:
		return "(invalid value)"
	}
}

func (v Value) signed() int64 {
	switch v.kind {
	case KindInt16:
		return int64(int16(v.i))
	case KindInt32:
		return int64(int32(v.i))
	default:
		return v.i
	}
}

// Compare orders two Values: first by Kind, then by the natural order of
// the populated variant. FnCallTag sorts before everything, including
// itself only by equality (Compare returns 0 for two FnCallTags and never
// 0 for a FnCallTag against anything else of the same Kind, which can only
// be another FnCallTag).
func Compare(a, b Value) int {
	if a.kind != b.kind {
		if a.kind == KindFnCallTag {
			return -1
		}
		if b.kind == KindFnCallTag {
			return 1
		}
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindInt16:
		return cmpInt64(int64(int16(a.i)), int64(int16(b.i)))
	case KindInt32:
		return cmpInt64(int64(int32(a.i)), int64(int32(b.i)))
	case KindInt64:
		return cmpInt64(a.i, b.i)
	case KindUint16:
		return cmpUint64(uint64(uint16(a.i)), uint64(uint16(b.i)))
	case KindUint32:
		return cmpUint64(uint64(uint32(a.i)), uint64(uint32(b.i)))
	case KindUint64:
		return cmpUint64(a.u, b.u)
	case KindFloat32:
		return cmpFloat64(float64(a.Float32()), float64(b.Float32()))
	case KindFloat64:
		return cmpFloat64(a.Float64(), b.Float64())
	case KindString:
		return strings.Compare(a.s, b.s)
	case KindFnCall:
		if a.fn.Name != b.fn.Name {
			return strings.Compare(a.fn.Name, b.fn.Name)
		}
		return CompareTuples(a.fn.Args, b.fn.Args)
	case KindFnCallTag:
		return 0
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Equal reports whether two values compare equal (same Kind, same payload).
func Equal(a, b Value) bool { return Compare(a, b) == 0 }
