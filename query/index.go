package query

import "github.com/bodand/lindadb/value"

// FieldIndex is the per-position index a Query consults: a multi-map from
// value.Value to stored tuples, keyed on one tuple position, that verifies
// the whole query (not just that one position) before reporting a hit --
// the index only narrows the search. store.index implements this; keeping
// the interface here (not in store) lets Query stay independent of the
// store's locking details while still driving the indexed search/remove.
type FieldIndex interface {
	// Search looks up f in the index, accepting the first entry for which
	// verify returns true, without removing anything.
	Search(f Field, verify func(value.Tuple) bool) FieldMatch
	// Remove is the destructive counterpart of Search: on a hit it removes
	// that entry from the index (but not from the store's other indices or
	// its primary collection -- the caller is responsible for that).
	Remove(f Field, verify func(value.Tuple) bool) FieldMatch
}

// SearchViaField asks index i of db to resolve query position i, returning
// the three-way incomparable/not-found/found result the indexed matching
// algorithm is built from. The index confirms the whole query matches, not
// just position i, so a Found result is a true match.
func (q Query) SearchViaField(i int, db FieldIndex) FieldMatch {
	f := q.fields[i]
	if f.isWildcard {
		return FieldMatch{Incomparable: true}
	}
	return db.Search(f, q.Matches)
}

// RemoveViaField is the destructive counterpart of SearchViaField.
func (q Query) RemoveViaField(i int, db FieldIndex) FieldMatch {
	f := q.fields[i]
	if f.isWildcard {
		return FieldMatch{Incomparable: true}
	}
	return db.Remove(f, q.Matches)
}

// BindAll copies t's fields into every wildcard Out-slot this query
// carries, without re-checking that t matches (the caller -- runtime, after
// a store hit or a coordinator response -- has already established that).
func (q Query) BindAll(t value.Tuple) {
	for i, f := range q.fields {
		if f.isWildcard && i < t.Size() {
			bindIfWildcard(f, t.At(i))
		}
	}
}
