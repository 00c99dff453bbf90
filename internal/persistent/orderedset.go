package persistent

import "sort"

// IndexEntry is a single (score, subject-id) pair held in one of the
// bench's secondary sort indices (up_index["video"|"live"|"ctime"]).
type IndexEntry struct {
	Score int64
	ID    string
}

func lessIndexEntry(a, b IndexEntry) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.ID < b.ID
}

// IndexSet is an immutable ascending-ordered set of IndexEntry, the Go
// stand-in for the source's im::OrdSet<(i64, String)>.
type IndexSet struct {
	root *indexSetNode
}

type indexSetNode struct {
	items []IndexEntry // sorted ascending, no duplicate (Score,ID) pairs
}

// NewIndexSet returns an empty IndexSet.
func NewIndexSet() IndexSet {
	return IndexSet{root: &indexSetNode{items: []IndexEntry{}}}
}

// Len reports the number of entries.
func (s IndexSet) Len() int {
	if s.root == nil {
		return 0
	}
	return len(s.root.items)
}

// Items returns the entries in ascending (Score, ID) order.
func (s IndexSet) Items() []IndexEntry {
	if s.root == nil {
		return nil
	}
	out := make([]IndexEntry, len(s.root.items))
	copy(out, s.root.items)
	return out
}

func (s IndexSet) searchPos(e IndexEntry) (int, bool) {
	items := s.root.safeItems()
	i := sort.Search(len(items), func(i int) bool { return !lessIndexEntry(items[i], e) })
	if i < len(items) && items[i] == e {
		return i, true
	}
	return i, false
}

func (n *indexSetNode) safeItems() []IndexEntry {
	if n == nil {
		return nil
	}
	return n.items
}

// Insert returns a new IndexSet with e inserted in sorted position.
// Inserting an entry already present returns the receiver unchanged.
func (s IndexSet) Insert(e IndexEntry) IndexSet {
	pos, found := s.searchPos(e)
	if found {
		return s
	}
	old := s.Items()
	next := make([]IndexEntry, len(old)+1)
	copy(next, old[:pos])
	next[pos] = e
	copy(next[pos+1:], old[pos:])
	return IndexSet{root: &indexSetNode{items: next}}
}

// Remove returns a new IndexSet without e. Returns the receiver unchanged
// if e was absent.
func (s IndexSet) Remove(e IndexEntry) IndexSet {
	pos, found := s.searchPos(e)
	if !found {
		return s
	}
	old := s.Items()
	next := make([]IndexEntry, len(old)-1)
	copy(next, old[:pos])
	copy(next[pos:], old[pos+1:])
	return IndexSet{root: &indexSetNode{items: next}}
}

// PtrEqual is the admissibility check, mirroring Map.PtrEqual.
func (s IndexSet) PtrEqual(o IndexSet) bool {
	if s.root == o.root {
		return true
	}
	if s.Len() > inlineThreshold || o.Len() > inlineThreshold {
		return false
	}
	a, b := s.Items(), o.Items()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// StringSet is an immutable lexicographically-ordered set of strings, the
// Go stand-in for the source's im::OrdSet<String> (used for group
// membership, up_join_group[gid]).
type StringSet struct {
	root *stringSetNode
}

type stringSetNode struct {
	items []string // sorted ascending, unique
}

// NewStringSet returns an empty StringSet.
func NewStringSet() StringSet {
	return StringSet{root: &stringSetNode{items: []string{}}}
}

// Len reports the number of entries.
func (s StringSet) Len() int {
	if s.root == nil {
		return 0
	}
	return len(s.root.items)
}

// Items returns the entries in ascending order.
func (s StringSet) Items() []string {
	if s.root == nil {
		return nil
	}
	out := make([]string, len(s.root.items))
	copy(out, s.root.items)
	return out
}

func (s StringSet) searchPos(v string) (int, bool) {
	items := s.root.safeItems()
	i := sort.SearchStrings(items, v)
	return i, i < len(items) && items[i] == v
}

func (n *stringSetNode) safeItems() []string {
	if n == nil {
		return nil
	}
	return n.items
}

// Contains reports whether v is a member.
func (s StringSet) Contains(v string) bool {
	_, ok := s.searchPos(v)
	return ok
}

// Insert returns a new StringSet with v inserted. Returns the receiver
// unchanged if v was already present.
func (s StringSet) Insert(v string) StringSet {
	pos, found := s.searchPos(v)
	if found {
		return s
	}
	old := s.Items()
	next := make([]string, len(old)+1)
	copy(next, old[:pos])
	next[pos] = v
	copy(next[pos+1:], old[pos:])
	return StringSet{root: &stringSetNode{items: next}}
}

// Remove returns a new StringSet without v. Returns the receiver
// unchanged if v was absent.
func (s StringSet) Remove(v string) StringSet {
	pos, found := s.searchPos(v)
	if !found {
		return s
	}
	old := s.Items()
	next := make([]string, len(old)-1)
	copy(next, old[:pos])
	copy(next[pos:], old[pos+1:])
	return StringSet{root: &stringSetNode{items: next}}
}

// PtrEqual is the admissibility check, mirroring Map.PtrEqual.
func (s StringSet) PtrEqual(o StringSet) bool {
	if s.root == o.root {
		return true
	}
	if s.Len() > inlineThreshold || o.Len() > inlineThreshold {
		return false
	}
	a, b := s.Items(), o.Items()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
