package persistent

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON renders an IndexEntry as a 2-element [score, id] array,
// matching how the source this bus was modeled on serializes its
// (i64, String) index tuples.
func (e IndexEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Score, e.ID})
}

// MarshalJSON renders an IndexSet as its entries in ascending order, so a
// Map holding IndexSet values content-hashes by the sets' contents.
func (s IndexSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Items())
}

// MarshalJSON renders a StringSet as its members in ascending order, so a
// Map holding StringSet values content-hashes by the sets' contents.
func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Items())
}

// UnmarshalJSON parses a 2-element [score, id] array back into an IndexEntry.
func (e *IndexEntry) UnmarshalJSON(b []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("persistent: index entry: %w", err)
	}
	if err := json.Unmarshal(pair[0], &e.Score); err != nil {
		return fmt.Errorf("persistent: index entry score: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.ID); err != nil {
		return fmt.Errorf("persistent: index entry id: %w", err)
	}
	return nil
}
