package value

import "strings"

// Tuple is a finite, ordered, immutable sequence of Values -- the atomic
// unit out, in, rd and eval exchange. A Tuple is a value type: copying the
// slice header is cheap and safe since nothing ever mutates the backing
// array after NewTuple returns it.
type Tuple struct {
	fields []Value
}

// NewTuple builds an immutable Tuple from the given fields. The slice is
// copied so later mutation of the caller's backing array cannot reach back
// into the Tuple.
func NewTuple(fields ...Value) Tuple {
	cp := make([]Value, len(fields))
	copy(cp, fields)
	return Tuple{fields: cp}
}

// Size returns the tuple's arity.
func (t Tuple) Size() int { return len(t.fields) }

// At returns the value at position i. It panics for an out-of-range i, the
// same contract as slice indexing.
func (t Tuple) At(i int) Value { return t.fields[i] }

// Fields returns the tuple's fields as a slice the caller must not mutate.
func (t Tuple) Fields() []Value { return t.fields }

func (t Tuple) String() string {
	var b strings.Builder
	b.WriteByte('<')
	for i, f := range t.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.String())
	}
	b.WriteByte('>')
	return b.String()
}

// CompareTuples orders two tuples by size first, then positionwise by
// Compare. It is the basis of equality-matching a Concrete query against a
// stored tuple.
func CompareTuples(a, b Tuple) int {
	if len(a.fields) != len(b.fields) {
		if len(a.fields) < len(b.fields) {
			return -1
		}
		return 1
	}
	for i := range a.fields {
		if c := Compare(a.fields[i], b.fields[i]); c != 0 {
			return c
		}
	}
	return 0
}

// TuplesEqual reports whether two tuples are equal field by field.
func TuplesEqual(a, b Tuple) bool { return CompareTuples(a, b) == 0 }
