package bench

import (
	"encoding/json"
	"fmt"

	"github.com/hobob-dev/hobob/internal/persistent"
	"github.com/hobob-dev/hobob/internal/schema"
)

// toJSONValue round-trips v through JSON so schema.Registry.Validate sees
// exactly the plain map[string]any/float64/string/bool shape a decoded
// wire payload would have, regardless of what concrete Go type v started
// as. Every domain operation below validates this round-tripped value,
// never the Go argument struct directly.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("bench: marshal payload: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("bench: unmarshal payload: %w", err)
	}
	return out, nil
}

func validate(reg *schema.Registry, name string, args any) error {
	doc, err := toJSONValue(args)
	if err != nil {
		return err
	}
	return reg.Validate(name, doc)
}

func gidKey(gid int64) string { return fmt.Sprintf("%d", gid) }
func uidKey(uid int64) string { return fmt.Sprintf("%d", uid) }

// emit appends an event to the bench's transient event log (§4.D);
// drained and fanned out by the council on publish, never persisted.
func (b Bench) emit(ev Event) Bench {
	b.Events = b.Events.Append(ev)
	return b
}

// Emit is emit's exported form, for callers outside this package that
// need to append an event without going through a named domain
// operation — chiefly the chair's count() helper, which pushes a
// "#COUNTER#"-tagged event the council absorbs instead of broadcasting.
func Emit(b Bench, ev Event) Bench {
	return b.emit(ev)
}

func withPickBasicField(info JSONObject, field string, val any) JSONObject {
	next := cloneJSONObject(info)
	pick, _ := next["pick"].(JSONObject)
	pick = cloneJSONObject(pick)
	basic, _ := pick["basic"].(JSONObject)
	basic = cloneJSONObject(basic)
	basic[field] = val
	pick["basic"] = basic
	next["pick"] = pick
	return next
}

// FollowArgs is the payload for Follow, validated against the "follow"
// schema before being applied.
type FollowArgs struct {
	UID    int64 `json:"uid"`
	Enable *bool `json:"enable,omitempty"`
}

// Follow registers interest in a subject (§4.B): validates, logs at
// level 2, queues a fetch command when enabling, and either seeds a
// brand-new up_info entry (fid = its position in up_by_fid, ctime = -1,
// ban = false) or toggles pick.basic.ban = !enable on an existing one.
func Follow(b Bench, reg *schema.Registry, args FollowArgs) (Bench, error) {
	if err := validate(reg, "follow", args); err != nil {
		return b, err
	}
	enable := true
	if args.Enable != nil {
		enable = *args.Enable
	}
	id := uidKey(args.UID)
	b = b.addLog(2, fmt.Sprintf("follow uid=%d enable=%v", args.UID, enable))

	if enable {
		b = b.pushCommand(JSONObject{"cmd": "fetch", "args": JSONObject{"uid": args.UID}})
	}

	if existing, ok := b.UpInfo.Get(id); ok {
		b.UpInfo = b.UpInfo.Set(id, withPickBasicField(existing, "ban", !enable))
		return b, nil
	}

	fid := b.UpByFid.Len()
	info := JSONObject{"pick": JSONObject{"basic": JSONObject{
		"fid":   fid,
		"ban":   false,
		"ctime": int64(-1),
	}}}
	b.UpInfo = b.UpInfo.Set(id, info)
	b.UpByFid = b.UpByFid.Append(id)
	b = b.insertIntoIndex("ctime", -1, id)
	return b, nil
}

// RefreshArgs is the payload for Refresh.
type RefreshArgs struct {
	UID int64 `json:"uid"`
}

// Refresh queues an immediate fetch command for a known subject (§4.B),
// returning ErrUnknownSubject if uid was never followed.
func Refresh(b Bench, reg *schema.Registry, args RefreshArgs) (Bench, error) {
	if err := validate(reg, "refresh", args); err != nil {
		return b, err
	}
	id := uidKey(args.UID)
	if !b.UpInfo.Has(id) {
		return b, ErrUnknownSubject
	}
	b = b.pushCommand(JSONObject{"cmd": "fetch", "args": JSONObject{"uid": args.UID}})
	return b, nil
}

// ForceSilence doubles runtime.bucket.gap (§4.B: force_silence), an
// operator-triggered backoff independent of any one subject's state.
func ForceSilence(b Bench) Bench {
	return BucketDoubleGap(b)
}

// ToggleGroupArgs is the payload for ToggleGroup.
type ToggleGroupArgs struct {
	UID int64 `json:"uid"`
	GID int64 `json:"gid"`
}

// ToggleGroup flips a subject's membership in a group (§4.B), creating
// the group with a placeholder name if gid was never touched — this
// operation never fails on an unknown gid, unlike users_pick.
func ToggleGroup(b Bench, reg *schema.Registry, args ToggleGroupArgs) (Bench, error) {
	if err := validate(reg, "toggle_group", args); err != nil {
		return b, err
	}
	uid, gid := uidKey(args.UID), gidKey(args.GID)
	b = b.ensureGroup(gid, gid)

	members, _ := b.UpJoinGroup.Get(gid)
	if members.Contains(uid) {
		members = members.Remove(uid)
	} else {
		members = members.Insert(uid)
	}
	b.UpJoinGroup = b.UpJoinGroup.Set(gid, members)
	return b, nil
}

// ensureGroup makes sure gid has an entry in both group_info (with a
// placeholder name and removable=true if missing) and
// up_join_group, without disturbing either if gid is already known.
func (b Bench) ensureGroup(gid, placeholderName string) Bench {
	if !b.GroupInfo.Has(gid) {
		b.GroupInfo = b.GroupInfo.Set(gid, JSONObject{"name": placeholderName, "removable": true})
	}
	if !b.UpJoinGroup.Has(gid) {
		b.UpJoinGroup = b.UpJoinGroup.Set(gid, persistent.NewStringSet())
	}
	return b
}

// TouchGroupArgs is the payload for TouchGroup.
type TouchGroupArgs struct {
	GID  int64  `json:"gid"`
	Name string `json:"name"`
	Pin  *bool  `json:"pin,omitempty"`
}

// TouchGroup creates or renames a user-defined group, gid >= 2 (§4.B).
// If pin is given, removable is set to !pin; otherwise a newly-created
// group defaults to removable=true and an existing one keeps whatever it
// had.
func TouchGroup(b Bench, reg *schema.Registry, args TouchGroupArgs) (Bench, error) {
	if err := validate(reg, "touch_group", args); err != nil {
		return b, err
	}
	gid := gidKey(args.GID)
	info := JSONObject{"name": args.Name, "removable": true}
	if existing, ok := b.GroupInfo.Get(gid); ok {
		info = cloneJSONObject(existing)
		info["name"] = args.Name
	}
	if args.Pin != nil {
		info["removable"] = !*args.Pin
	}
	b.GroupInfo = b.GroupInfo.Set(gid, info)
	if !b.UpJoinGroup.Has(gid) {
		b.UpJoinGroup = b.UpJoinGroup.Set(gid, persistent.NewStringSet())
	}
	return b, nil
}

// UsersPickArgs is the payload for UsersPick.
type UsersPickArgs struct {
	GID        int64  `json:"gid"`
	OrderDesc  string `json:"order_desc"`
	RangeStart int64  `json:"range_start"`
	RangeLen   int64  `json:"range_len"`
}

// UsersPick returns a page of a group's members' "pick" projections
// (§4.B). order_desc="default" walks up_by_fid (insertion order);
// otherwise it walks up_index[order_desc] reversed, so the
// highest-scoring (most recently active) subject comes first. Fails
// with ErrUnknownGroup without mutating anything if gid was never
// touched. An order_desc naming an index that was never created (i.e.
// neither "default" nor an axis ModifyUpInfo has ever indexed) quietly
// yields an empty page rather than an error, unlike the source this
// mirrors, which treats that as "index not found" — harmless since
// up_index only ever grows, so an absent index means zero matches
// either way, but worth flagging as a divergence.
func UsersPick(b Bench, reg *schema.Registry, args UsersPickArgs) ([]any, error) {
	if err := validate(reg, "users_pick", args); err != nil {
		return nil, err
	}
	gid := gidKey(args.GID)
	members, ok := b.UpJoinGroup.Get(gid)
	if !ok {
		return nil, ErrUnknownGroup
	}

	var ids []string
	if args.OrderDesc == "default" {
		for _, id := range b.UpByFid.Items() {
			if args.GID != 0 && !members.Contains(id) {
				continue
			}
			ids = append(ids, id)
		}
	} else {
		idx, _ := b.UpIndex.Get(args.OrderDesc)
		entries := idx.Items()
		reverseIndexEntries(entries)
		for _, e := range entries {
			if args.GID != 0 && !members.Contains(e.ID) {
				continue
			}
			ids = append(ids, e.ID)
		}
	}

	start := int(args.RangeStart)
	if start > len(ids) {
		start = len(ids)
	}
	end := start + int(args.RangeLen)
	if end > len(ids) {
		end = len(ids)
	}

	out := make([]any, 0, end-start)
	for _, id := range ids[start:end] {
		info, ok := b.UpInfo.Get(id)
		if !ok {
			continue
		}
		out = append(out, info["pick"])
	}
	return out, nil
}

func reverseIndexEntries(es []persistent.IndexEntry) {
	for i, j := 0, len(es)-1; i < j; i, j = i+1, j-1 {
		es[i], es[j] = es[j], es[i]
	}
}

// RuntimeField reads a dotted path under runtime[key] (§4.B/§6).
func RuntimeField(b Bench, key string, path []string) any {
	v, ok := b.Runtime.Get(key)
	if !ok {
		return nil
	}
	if len(path) == 0 {
		return v
	}
	obj, ok := v.(JSONObject)
	if !ok {
		return nil
	}
	return getPath(obj, path)
}

// RuntimeSetField builds any missing intermediate objects along path,
// assigns val, then validates the entire resulting runtime[key] subtree
// against schema "runtime/<key>" before committing (§4.B). Looking up a
// key with no matching registered schema is the registry's own
// fail-fast programmer error, not swallowed here.
func RuntimeSetField(b Bench, reg *schema.Registry, key string, path []string, val any) (Bench, error) {
	existing, _ := b.Runtime.Get(key)
	obj, _ := existing.(JSONObject)
	if obj == nil {
		obj = JSONObject{}
	}
	updated := setPath(obj, path, val)
	if err := validate(reg, "runtime/"+key, updated); err != nil {
		return b, err
	}
	b.Runtime = b.Runtime.Set(key, updated)
	return b, nil
}

func logFilterField(b Bench, field string, fallback int64) int64 {
	v, _ := b.Runtime.Get("log_filter")
	obj, _ := v.(JSONObject)
	return bucketInt64(obj, field, fallback)
}

// addLog appends a log record if level is at or below the configured
// maxlevel, trimming the buffer from the front once it exceeds
// buffer_lines. Trimming drops fit_lines+1 records (an inclusive
// 0..=fit_lines range in the source this mirrors), so the default
// fit_lines=16 drops 17 records per trim.
func (b Bench) addLog(level int64, msg string) Bench {
	if level > logFilterField(b, "maxlevel", 3) {
		return b
	}
	b.Logs = b.Logs.Append(JSONObject{"ts": nowTS(), "level": level, "msg": msg})
	bufferLines := logFilterField(b, "buffer_lines", 2048)
	if int64(b.Logs.Len()) > bufferLines {
		b.Logs = b.Logs.DropFront(int(logFilterField(b, "fit_lines", 16)) + 1)
	}
	return b
}

// AddLog is the exported, schema-validating entry point for appending a
// log record from outside the bench package (chair diagnostics, council
// throttled misses).
func AddLog(b Bench, reg *schema.Registry, level int64, msg string) (Bench, error) {
	rec := JSONObject{"ts": nowTS(), "level": level, "msg": msg}
	if err := validate(reg, "log", rec); err != nil {
		return b, err
	}
	return b.addLog(level, msg), nil
}

func (b Bench) pushCommand(cmd JSONObject) Bench {
	b.Commands = b.Commands.Append(cmd)
	return b
}

// CommandQueueDepth reports the number of pending commands, a diagnostic
// the source this was modeled on didn't expose (its command queue was
// uncapped and unobserved); this repository keeps it uncapped but adds
// the diagnostic so an operator can see it growing.
func (b Bench) CommandQueueDepth() int {
	return b.Commands.Len()
}

// DrainCommands returns a copy of b with Commands cleared, and the
// commands that were pending — the chair-facing counterpart of
// DrainEvents, used by whatever executes fetches against the outside
// world (out of scope for this module; see SPEC_FULL.md Non-goals).
func (b Bench) DrainCommands() (Bench, []JSONObject) {
	cmds := b.Commands.Items()
	b.Commands = persistent.Empty[JSONObject]()
	return b, cmds
}

func (b Bench) insertIntoIndex(name string, score int64, id string) Bench {
	idx, ok := b.UpIndex.Get(name)
	if !ok {
		idx = persistent.NewIndexSet()
	}
	idx = idx.Insert(persistent.IndexEntry{Score: score, ID: id})
	b.UpIndex = b.UpIndex.Set(name, idx)
	return b
}

func (b Bench) removeFromIndex(name string, score int64, id string) Bench {
	idx, ok := b.UpIndex.Get(name)
	if !ok {
		return b
	}
	idx = idx.Remove(persistent.IndexEntry{Score: score, ID: id})
	b.UpIndex = b.UpIndex.Set(name, idx)
	return b
}

// ModifyUpInfo applies fn to up_info[uid], then for each of video, live,
// ctime re-extracts the axis score and, if it changed, moves the
// subject's entry in that index; a changed video or live axis also
// appends an event carrying the new pick subtree (§4.B). Finishes with a
// bucket access. Returns ErrUnknownSubject if uid was never followed.
func ModifyUpInfo(b Bench, uid int64, fn func(JSONObject) JSONObject) (Bench, error) {
	id := uidKey(uid)
	existing, ok := b.UpInfo.Get(id)
	if !ok {
		return b, ErrUnknownSubject
	}

	oldCtime := extractScore(existing, "ctime")
	oldVideo := extractScore(existing, "video")
	oldLive := extractScore(existing, "live")

	next := fn(cloneJSONObject(existing))
	b.UpInfo = b.UpInfo.Set(id, next)

	newCtime := extractScore(next, "ctime")
	newVideo := extractScore(next, "video")
	newLive := extractScore(next, "live")

	b = b.reindexAxis("ctime", oldCtime, newCtime, id, next, false)
	b = b.reindexAxis("video", oldVideo, newVideo, id, next, true)
	b = b.reindexAxis("live", oldLive, newLive, id, next, true)

	b = BucketAccess(b)
	return b, nil
}

// reindexAxis moves id's entry in up_index[axis] from oldScore to
// newScore if it changed, optionally appending the
// {type:axis, axis:<pick subtree>} event §4.B describes for the
// video/live axes.
func (b Bench) reindexAxis(axis string, oldScore, newScore int64, id string, info JSONObject, emitsEvent bool) Bench {
	if oldScore == newScore {
		return b
	}
	b = b.removeFromIndex(axis, oldScore, id)
	b = b.insertIntoIndex(axis, newScore, id)
	if emitsEvent {
		pick, _ := info["pick"].(JSONObject)
		subtree := pick[axis]
		b = b.emit(Event{"type": axis, axis: subtree})
	}
	return b
}

// extractScore applies the fixed extractor for axis to a full up_info
// entry: pick.video.ts, pick.live.entropy, pick.basic.ctime, each
// defaulting to -1 when absent.
func extractScore(info JSONObject, axis string) int64 {
	pick, _ := info["pick"].(JSONObject)
	switch axis {
	case "video":
		return asInt64(getPath(pick, []string{"video", "ts"}), -1)
	case "live":
		return asInt64(getPath(pick, []string{"live", "entropy"}), -1)
	case "ctime":
		return asInt64(getPath(pick, []string{"basic", "ctime"}), -1)
	default:
		return -1
	}
}

func asInt64(v any, fallback int64) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return fallback
	}
}
