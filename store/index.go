package store

import (
	"math"
	"sync"

	"github.com/spaolacci/murmur3"

	"github.com/bodand/lindadb/query"
	"github.com/bodand/lindadb/value"
)

// Fanout bounds how many leading query positions participate in the
// indexed match before falling back to a full scan.
const Fanout = 3

// index is one positional multi-map: every stored tuple contributes its
// value at this position as a key. Lookups are by exact value (Compare==0),
// narrowing candidates before the caller's verify callback confirms the
// whole tuple. This is a hash multi-map rather than an ordered tree: no
// operation here needs a range query, only point lookups by exact field
// value.
type index struct {
	mu      sync.RWMutex
	buckets map[uint64][]*tupleNode
}

func newIndex() *index {
	return &index{buckets: make(map[uint64][]*tupleNode)}
}

// canonicalKey hashes a Value's kind and payload into a bucket key.
// Collisions are resolved by Compare/Equal at lookup time, same contract
// as murmur3 buckets elsewhere in this package.
func canonicalKey(v value.Value) uint64 {
	h := murmur3.New64()
	h.Write([]byte{byte(v.Kind())})
	switch v.Kind() {
	case value.KindString:
		h.Write([]byte(v.String_()))
	case value.KindInt16:
		h.Write(uint64Bytes(uint64(v.Int16())))
	case value.KindInt32:
		h.Write(uint64Bytes(uint64(v.Int32())))
	case value.KindInt64:
		h.Write(uint64Bytes(uint64(v.Int64())))
	case value.KindUint16:
		h.Write(uint64Bytes(uint64(v.Uint16())))
	case value.KindUint32:
		h.Write(uint64Bytes(uint64(v.Uint32())))
	case value.KindUint64:
		h.Write(uint64Bytes(v.Uint64()))
	case value.KindFloat32:
		h.Write(uint64Bytes(uint64(math.Float32bits(v.Float32()))))
	case value.KindFloat64:
		h.Write(uint64Bytes(math.Float64bits(v.Float64())))
	case value.KindFnCall:
		h.Write([]byte(v.FnCall().Name))
	default:
		// fn-call-tag: all instances are equal, no payload to mix in.
	}
	return h.Sum64()
}

func uint64Bytes(u uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
	return b
}

func (ix *index) insert(v value.Value, n *tupleNode) {
	key := canonicalKey(v)
	ix.mu.Lock()
	ix.buckets[key] = append(ix.buckets[key], n)
	ix.mu.Unlock()
}

// removeNode deletes the specific node n from the bucket for v, used when n
// was located via a different index and must now be unlinked from this one
// too.
func (ix *index) removeNode(v value.Value, n *tupleNode) {
	key := canonicalKey(v)
	ix.mu.Lock()
	defer ix.mu.Unlock()
	bucket := ix.buckets[key]
	for i, cand := range bucket {
		if cand == n {
			ix.buckets[key] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// Search implements query.FieldIndex.
func (ix *index) Search(f query.Field, verify func(value.Tuple) bool) query.FieldMatch {
	key := canonicalKey(f.Value())
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for _, n := range ix.buckets[key] {
		if verify(n.tuple) {
			return query.FieldMatch{Found: true, Tuple: n.tuple, Handle: n}
		}
	}
	return query.FieldMatch{Found: false}
}

// Remove implements query.FieldIndex: the destructive counterpart of
// Search, removing only the winning entry from this index. The store is
// responsible for unlinking the same node from its other indices and from
// the primary collection.
func (ix *index) Remove(f query.Field, verify func(value.Tuple) bool) query.FieldMatch {
	key := canonicalKey(f.Value())
	ix.mu.Lock()
	defer ix.mu.Unlock()
	bucket := ix.buckets[key]
	for i, n := range bucket {
		if verify(n.tuple) {
			ix.buckets[key] = append(bucket[:i], bucket[i+1:]...)
			return query.FieldMatch{Found: true, Tuple: n.tuple, Handle: n}
		}
	}
	return query.FieldMatch{Found: false}
}
