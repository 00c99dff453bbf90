// Package bench implements the council's document (§3 of the bus spec):
// a nine-field, structurally-shared aggregate plus the pure domain
// operations that produce successor benches from it. Every exported
// function here is a pure function from (Bench, args) to (Bench, error);
// none of them touch a channel, a clock source shared with anyone else,
// or disk.
package bench

import (
	"time"

	"github.com/hobob-dev/hobob/internal/persistent"
)

// JSONObject is a JSON-shaped map, used throughout the bench for values
// whose schema is operation-specific rather than fixed Go structs (up_info
// entries, group_info entries, log records, commands, events).
type JSONObject = map[string]any

// Event is a transient, counter-or-broadcast-tagged record produced by a
// domain operation. See §9 "Event transience": it never survives a publish.
type Event = JSONObject

const flagClosing = "#CLOSING#"

// Bench is the aggregate root described in spec.md §3. It is a plain
// value type: copying it (`next := b`) is O(1) and shares every field's
// backing node with the original, because each field is itself an
// immutable, pointer-backed persistent container (internal/persistent).
// A domain operation "clones" the bench simply by taking it as a
// by-value receiver and only replacing the fields it actually touches.
type Bench struct {
	UpInfo      persistent.Map[string, JSONObject]
	UpIndex     persistent.Map[string, persistent.IndexSet]
	UpByFid     persistent.Seq[string]
	UpJoinGroup persistent.Map[string, persistent.StringSet]
	Events      persistent.Seq[Event]
	GroupInfo   persistent.OrderedMap[string, JSONObject]
	Logs        persistent.Seq[JSONObject]
	Runtime     persistent.Map[string, any]
	Commands    persistent.Seq[JSONObject]
}

// New returns a freshly initialised, empty bench: groups "0" and "1"
// seeded, no subjects tracked, no closing flag.
func New() Bench {
	b := Bench{
		UpInfo:      persistent.NewMap[string, JSONObject](),
		UpIndex:     persistent.NewMap[string, persistent.IndexSet](),
		UpByFid:     persistent.NewSeq[string](),
		UpJoinGroup: persistent.NewMap[string, persistent.StringSet](),
		Events:      persistent.Empty[Event](),
		GroupInfo:   persistent.NewOrderedMap[string, JSONObject](),
		Logs:        persistent.Empty[JSONObject](),
		Runtime:     persistent.NewMap[string, any](),
		Commands:    persistent.Empty[JSONObject](),
	}
	return b.initSeedGroups()
}

// initSeedGroups ensures groups "0" (全部) and "1" (特殊关注) exist,
// non-removable, as required by §3's invariants. Safe to call on an
// already-seeded bench (idempotent), which is exactly what load() does
// after decoding an on-disk document.
func (b Bench) initSeedGroups() Bench {
	b = b.seedGroup("0", "全部")
	b = b.seedGroup("1", "特殊关注")
	return b
}

func (b Bench) seedGroup(gid, name string) Bench {
	if !b.GroupInfo.Has(gid) {
		b.GroupInfo = b.GroupInfo.Set(gid, JSONObject{"name": name, "removable": false})
	}
	if !b.UpJoinGroup.Has(gid) {
		b.UpJoinGroup = b.UpJoinGroup.Set(gid, persistent.NewStringSet())
	}
	return b
}

// RemoveClosingFlag strips any #CLOSING# marker, used by load() so a
// bench persisted mid-shutdown doesn't come back up already closing.
func (b Bench) RemoveClosingFlag() Bench {
	if !b.Runtime.Has(flagClosing) {
		return b
	}
	b.Runtime = b.Runtime.Delete(flagClosing)
	return b
}

// SetClosingFlag marks the bench as shutting down (§3 invariant: bars
// further chair updates from being committed once visible).
func (b Bench) SetClosingFlag() Bench {
	b.Runtime = b.Runtime.Set(flagClosing, true)
	return b
}

// IsClosing reports whether runtime["#CLOSING#"] is present.
func (b Bench) IsClosing() bool {
	return b.Runtime.Has(flagClosing)
}

// PtrEq is the council's admissibility check (§4.B "Structural
// equality"): true iff every field either shares its backing node with
// other's, or both sides are small enough to be compared by content hash.
func (b Bench) PtrEq(o Bench) bool {
	return b.UpInfo.PtrEqual(o.UpInfo) &&
		b.UpIndex.PtrEqual(o.UpIndex) &&
		b.UpByFid.PtrEqual(o.UpByFid) &&
		b.UpJoinGroup.PtrEqual(o.UpJoinGroup) &&
		b.Events.PtrEqual(o.Events) &&
		b.GroupInfo.PtrEqual(o.GroupInfo) &&
		b.Logs.PtrEqual(o.Logs) &&
		b.Runtime.PtrEqual(o.Runtime) &&
		b.Commands.PtrEqual(o.Commands)
}

// DrainEvents returns a copy of b with Events cleared, and the events
// that were present. The council calls this during publish (§4.D); it is
// the Go stand-in for the "(Bench, Vec<Event>)" return style the design
// notes suggest for languages without cheap persistent vectors baked into
// every function signature.
func (b Bench) DrainEvents() (Bench, []Event) {
	evs := b.Events.Items()
	b.Events = persistent.Empty[Event]()
	return b, evs
}

// tsLayout is the Go time layout this package formats and parses
// runtime "utils/ts" strings with: milliseconds, UTC, matching the
// schema's "3 or more fractional digits" pattern.
const tsLayout = "2006-01-02T15:04:05.000Z"

// FormatTS renders t as a utils/ts-schema-valid string.
func FormatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

// ParseTS parses a utils/ts-schema string back into a time.Time.
func ParseTS(s string) (time.Time, error) {
	return time.Parse(tsLayout, s)
}

func nowTS() string {
	return FormatTS(time.Now())
}

func cloneJSONObject(m JSONObject) JSONObject {
	next := make(JSONObject, len(m))
	for k, v := range m {
		next[k] = v
	}
	return next
}

// getPath walks a dotted/"/"-joined path through nested JSONObjects,
// returning nil if any segment is missing — mirrors the original's
// field-by-field Value indexing used by runtime_field.
func getPath(v any, segs []string) any {
	cur := v
	for _, s := range segs {
		obj, ok := cur.(JSONObject)
		if !ok {
			return nil
		}
		cur, ok = obj[s]
		if !ok {
			return nil
		}
	}
	return cur
}

// setPath writes val at the end of a dotted path inside root, building
// any missing intermediate objects, and returns the (possibly new) root.
func setPath(root JSONObject, segs []string, val any) JSONObject {
	if len(segs) == 0 {
		return root
	}
	next := cloneJSONObject(root)
	if len(segs) == 1 {
		next[segs[0]] = val
		return next
	}
	child, ok := next[segs[0]].(JSONObject)
	if !ok {
		child = JSONObject{}
	}
	next[segs[0]] = setPath(child, segs[1:], val)
	return next
}
