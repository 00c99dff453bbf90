package persistent

import "testing"

func TestMapSetGetPtrEqual(t *testing.T) {
	m := NewMap[string, int]()
	m1 := m.Set("a", 1)
	if !m1.PtrEqual(m1) {
		t.Fatalf("a map must be ptr-equal to itself")
	}
	if v, ok := m1.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %v, %v, want 1, true", v, ok)
	}
	m2 := m1.Set("a", 1)
	if !m1.PtrEqual(m2) {
		t.Fatalf("two small maps with identical content should compare ptr-equal via the inline fallback")
	}
}

func TestMapPtrEqualDivergesAfterDistinctWrite(t *testing.T) {
	m := NewMap[string, int]().Set("a", 1)
	m2 := m.Set("b", 2)
	if m.PtrEqual(m2) {
		t.Fatalf("maps with different content must not compare ptr-equal")
	}
}

func TestMapDeleteIsNoopWhenAbsent(t *testing.T) {
	m := NewMap[string, int]().Set("a", 1)
	m2 := m.Delete("missing")
	if !m.PtrEqual(m2) {
		t.Fatalf("Delete of an absent key should return the receiver unchanged")
	}
}

func TestMapPtrEqualAboveInlineThresholdRequiresSharedRoot(t *testing.T) {
	m := NewMap[string, int]()
	for i := 0; i < inlineThreshold+1; i++ {
		m = m.Set(string(rune('a'+i)), i)
	}
	m2 := NewMap[string, int]()
	for i := 0; i < inlineThreshold+1; i++ {
		m2 = m2.Set(string(rune('a'+i)), i)
	}
	if m.PtrEqual(m2) {
		t.Fatalf("maps above the inline threshold must compare by identity, not content")
	}
}

func TestSeqAppendAndDropFront(t *testing.T) {
	s := NewSeq[int](1, 2, 3)
	s = s.Append(4)
	if got := s.Items(); len(got) != 4 || got[3] != 4 {
		t.Fatalf("Items() = %v, want [1 2 3 4]", got)
	}
	dropped := s.DropFront(2)
	if got := dropped.Items(); len(got) != 2 || got[0] != 3 {
		t.Fatalf("DropFront(2) = %v, want [3 4]", got)
	}
}

func TestSeqDropFrontClampsToLength(t *testing.T) {
	s := NewSeq[int](1, 2)
	dropped := s.DropFront(10)
	if dropped.Len() != 0 {
		t.Fatalf("DropFront past the end should empty the sequence, got len %d", dropped.Len())
	}
}

func TestOrderedMapPreservesInsertionOrder(t *testing.T) {
	om := NewOrderedMap[string, int]()
	om = om.Set("b", 2).Set("a", 1).Set("c", 3)
	want := []string{"b", "a", "c"}
	got := om.Keys()
	if len(got) != len(want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Keys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestOrderedMapReassignDoesNotReorder(t *testing.T) {
	om := NewOrderedMap[string, int]().Set("a", 1).Set("b", 2)
	om = om.Set("a", 99)
	got := om.Keys()
	if got[0] != "a" || got[1] != "b" {
		t.Fatalf("reassigning an existing key must not move it, got %v", got)
	}
}

func TestIndexSetInsertOrdersByScoreThenID(t *testing.T) {
	s := NewIndexSet()
	s = s.Insert(IndexEntry{Score: 5, ID: "x"})
	s = s.Insert(IndexEntry{Score: 1, ID: "y"})
	s = s.Insert(IndexEntry{Score: 5, ID: "a"})
	items := s.Items()
	want := []IndexEntry{{1, "y"}, {5, "a"}, {5, "x"}}
	if len(items) != len(want) {
		t.Fatalf("Items() = %v, want %v", items, want)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Fatalf("Items()[%d] = %v, want %v", i, items[i], want[i])
		}
	}
}

func TestIndexSetRemove(t *testing.T) {
	s := NewIndexSet().Insert(IndexEntry{Score: 1, ID: "a"}).Insert(IndexEntry{Score: 2, ID: "b"})
	s = s.Remove(IndexEntry{Score: 1, ID: "a"})
	if s.Len() != 1 || s.Items()[0].ID != "b" {
		t.Fatalf("Remove left unexpected state: %v", s.Items())
	}
}

func TestStringSetInsertContainsRemove(t *testing.T) {
	s := NewStringSet().Insert("b").Insert("a")
	if !s.Contains("a") || !s.Contains("b") {
		t.Fatalf("expected both members present")
	}
	if got := s.Items(); got[0] != "a" || got[1] != "b" {
		t.Fatalf("Items() = %v, want sorted [a b]", got)
	}
	s = s.Remove("a")
	if s.Contains("a") {
		t.Fatalf("a should have been removed")
	}
}

func TestIndexEntryJSONRoundTrip(t *testing.T) {
	e := IndexEntry{Score: -7, ID: "42"}
	b, err := e.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	var got IndexEntry
	if err := got.UnmarshalJSON(b); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if got != e {
		t.Fatalf("round trip = %v, want %v", got, e)
	}
}
