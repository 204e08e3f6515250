// Package query implements Linda query tuples: a predicate over a stored
// tuple whose positions are either concrete values or typed wildcards.
//
// A field match is three-way (incomparable/not-found/found), and matching
// is equality-only on concrete positions; an index entry is looked up by a
// comparable key and yields a pointer to the stored tuple.
package query

import (
	"fmt"
	"strings"

	"github.com/bodand/lindadb/value"
)

// Wildcard is a query position that matches any Value of the given Kind,
// binding the matched value into Out on success.
type Wildcard struct {
	Kind value.Kind
	Out  *value.Value
}

// Field is a single query position: either a concrete Value or a Wildcard.
// The zero Field is invalid; use NewValueField or NewWildcardField.
type Field struct {
	isWildcard bool
	val        value.Value
	wild       Wildcard
}

func NewValueField(v value.Value) Field { return Field{val: v} }

func NewWildcardField(kind value.Kind, out *value.Value) Field {
	return Field{isWildcard: true, wild: Wildcard{Kind: kind, Out: out}}
}

func (f Field) IsWildcard() bool { return f.isWildcard }
func (f Field) Value() value.Value { return f.val }
func (f Field) Wildcard() Wildcard { return f.wild }

func (f Field) String() string {
	if f.isWildcard {
		return fmt.Sprintf("?%s", f.wild.Kind)
	}
	return f.val.String()
}

// compareFieldToValue orders a field against a candidate value: equal
// if kinds match (binding Out on that branch, the caller's responsibility
// -- see bindIfWildcard), else ordered by kind-index difference.
func compareFieldToValue(f Field, v value.Value) int {
	if !f.isWildcard {
		return value.Compare(f.val, v)
	}
	if f.wild.Kind == v.Kind() {
		return 0
	}
	if f.wild.Kind < v.Kind() {
		return -1
	}
	return 1
}

func bindIfWildcard(f Field, v value.Value) {
	if f.isWildcard && f.wild.Kind == v.Kind() && f.wild.Out != nil {
		*f.wild.Out = v
	}
}

// FieldMatch is the three-way outcome of asking an index to search or
// remove by a single field: incomparable (the index can't even compare the
// candidate field), not found, or found.
type FieldMatch struct {
	Incomparable bool
	Found        bool
	Tuple        value.Tuple
	// Handle is an opaque store-internal reference to the matched entry
	// (store.index stashes its *tupleNode here), letting the store remove
	// the same physical entry from its other indices without a second
	// lookup. Callers outside store should not interpret it.
	Handle interface{}
}

// Query is a tuple-sized predicate: either Concrete (matches by tuple
// equality) or Piecewise (matches position-by-position, allowing
// wildcards).
type Query struct {
	fields    []Field
	concrete  bool
}

// NewConcrete builds a query that only matches a tuple equal to t.
func NewConcrete(t value.Tuple) Query {
	fields := make([]Field, t.Size())
	for i, v := range t.Fields() {
		fields[i] = NewValueField(v)
	}
	return Query{fields: fields, concrete: true}
}

// NewPiecewise builds a query whose positions may be concrete values or
// wildcards.
func NewPiecewise(fields ...Field) Query {
	return Query{fields: append([]Field(nil), fields...)}
}

// Size is the query's arity.
func (q Query) Size() int { return len(q.fields) }

// Field returns the i-th query position.
func (q Query) Field(i int) Field { return q.fields[i] }

// IsConcrete reports whether the query was built with NewConcrete (pure
// equality match, no wildcards).
func (q Query) IsConcrete() bool { return q.concrete }

// AsRepresentingTuple projects the query to a Tuple: concrete values as-is,
// wildcards projected to a ref-value value.Value carrying their admitted
// Kind with the zero payload for that kind. Used for transport and for the
// all-wildcard fallback's type signature rendering.
func (q Query) AsRepresentingTuple() value.Tuple {
	vals := make([]value.Value, len(q.fields))
	for i, f := range q.fields {
		if !f.isWildcard {
			vals[i] = f.val
			continue
		}
		vals[i] = zeroOfKind(f.wild.Kind)
	}
	return value.NewTuple(vals...)
}

func zeroOfKind(k value.Kind) value.Value {
	switch k {
	case value.KindInt16:
		return value.NewInt16(0)
	case value.KindUint16:
		return value.NewUint16(0)
	case value.KindInt32:
		return value.NewInt32(0)
	case value.KindUint32:
		return value.NewUint32(0)
	case value.KindInt64:
		return value.NewInt64(0)
	case value.KindUint64:
		return value.NewUint64(0)
	case value.KindFloat32:
		return value.NewFloat32(0)
	case value.KindFloat64:
		return value.NewFloat64(0)
	case value.KindString:
		return value.NewString("")
	case value.KindFnCall:
		return value.NewFnCall("")
	default:
		return value.NewFnCallTag()
	}
}

// AsTypeString is a canonical, deterministic type signature for the query,
// for logging. store's hash pre-filter does not use it; it hashes the Kinds
// of AsRepresentingTuple instead.
func (q Query) AsTypeString() string {
	var b strings.Builder
	for i, f := range q.fields {
		if i > 0 {
			b.WriteByte(',')
		}
		if f.isWildcard {
			b.WriteString(f.wild.Kind.String())
		} else {
			b.WriteString(f.val.Kind().String())
		}
	}
	return b.String()
}

// Matches reports whether t satisfies the query: sizes agree and every
// position matches (wildcards match by kind, binding Out on success;
// concrete positions match by value equality). On a failed match no
// wildcard Out-slots are touched, per spec.
func (q Query) Matches(t value.Tuple) bool {
	if len(q.fields) != t.Size() {
		return false
	}
	for i, f := range q.fields {
		if compareFieldToValue(f, t.At(i)) != 0 {
			return false
		}
	}
	for i, f := range q.fields {
		bindIfWildcard(f, t.At(i))
	}
	return true
}
