package persistent

import (
	"encoding/json"
	"sort"

	"github.com/zeebo/blake3"
)

// contentHash returns a blake3 digest of v's canonical JSON encoding.
// PtrEqual uses this as the fallback identity for containers too small
// to justify the heap-node sharing the fast path relies on — the
// content-addressed root hash the design notes call out as an
// alternative to reference-equal node pointers.
func contentHash(v any) [32]byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("persistent: content not JSON-serializable: " + err.Error())
	}
	return blake3.Sum256(b)
}

// sortedPairs renders a map's entries as a deterministically ordered
// slice of key/value pairs so two maps with the same content hash the same
// regardless of Go's randomized map iteration order.
func sortedPairs[K comparable, V any](m map[K]V) []pair {
	out := make([]pair, 0, len(m))
	for k, v := range m {
		out = append(out, pair{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].sortKey() < out[j].sortKey() })
	return out
}

type pair struct {
	Key   any
	Value any
}

func (p pair) sortKey() string {
	b, err := json.Marshal(p.Key)
	if err != nil {
		panic("persistent: key not JSON-serializable: " + err.Error())
	}
	return string(b)
}
