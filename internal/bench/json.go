package bench

import (
	"encoding/json"
	"fmt"

	"github.com/hobob-dev/hobob/internal/persistent"
)

// doc is the on-disk shape of a bench (§4.E "Persistence"). Events are
// deliberately absent: they are transient and never survive a publish,
// let alone a dump to disk.
type doc struct {
	UpInfo      map[string]JSONObject              `json:"up_info"`
	UpIndex     map[string][]persistent.IndexEntry `json:"up_index"`
	UpByFid     []string                           `json:"up_by_fid"`
	UpJoinGroup map[string][]string                `json:"up_join_group"`
	GroupInfo   []groupEntry                       `json:"group_info"`
	Logs        []JSONObject                       `json:"logs"`
	Runtime     JSONObject                         `json:"runtime"`
	Commands    []JSONObject                       `json:"commands"`
}

type groupEntry struct {
	GID  string     `json:"gid"`
	Info JSONObject `json:"info"`
}

// ToDoc renders b into its on-disk JSON representation.
func (b Bench) ToDoc() []byte {
	d := doc{
		UpInfo:      map[string]JSONObject{},
		UpIndex:     map[string][]persistent.IndexEntry{},
		UpJoinGroup: map[string][]string{},
		Runtime:     JSONObject{},
	}
	b.UpInfo.Range(func(k string, v JSONObject) { d.UpInfo[k] = v })
	b.UpIndex.Range(func(k string, v persistent.IndexSet) { d.UpIndex[k] = v.Items() })
	d.UpByFid = b.UpByFid.Items()
	b.UpJoinGroup.Range(func(k string, v persistent.StringSet) { d.UpJoinGroup[k] = v.Items() })
	b.GroupInfo.Range(func(k string, v JSONObject) {
		d.GroupInfo = append(d.GroupInfo, groupEntry{GID: k, Info: v})
	})
	d.Logs = b.Logs.Items()
	b.Runtime.Range(func(k string, v any) { d.Runtime[k] = v })
	d.Commands = b.Commands.Items()

	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		// Every field is built from types ToDoc itself constructed from
		// already-validated JSON documents; a marshal failure here means
		// a caller smuggled an unserializable Go value into the bench.
		panic("bench: document not JSON-serializable: " + err.Error())
	}
	return out
}

// FromDoc parses an on-disk document into a Bench, re-seeding groups "0"
// and "1" and clearing any closing flag left over from a prior shutdown.
func FromDoc(data []byte) (Bench, error) {
	var d doc
	if err := json.Unmarshal(data, &d); err != nil {
		return Bench{}, fmt.Errorf("bench: decode document: %w", err)
	}

	b := New()
	upInfo := persistent.NewMap[string, JSONObject]()
	for k, v := range d.UpInfo {
		upInfo = upInfo.Set(k, v)
	}
	b.UpInfo = upInfo

	upIndex := persistent.NewMap[string, persistent.IndexSet]()
	for k, entries := range d.UpIndex {
		set := persistent.NewIndexSet()
		for _, e := range entries {
			set = set.Insert(e)
		}
		upIndex = upIndex.Set(k, set)
	}
	b.UpIndex = upIndex

	b.UpByFid = persistent.NewSeq(d.UpByFid...)

	upJoin := persistent.NewMap[string, persistent.StringSet]()
	for k, members := range d.UpJoinGroup {
		set := persistent.NewStringSet()
		for _, m := range members {
			set = set.Insert(m)
		}
		upJoin = upJoin.Set(k, set)
	}
	b.UpJoinGroup = upJoin

	groupInfo := persistent.NewOrderedMap[string, JSONObject]()
	for _, ge := range d.GroupInfo {
		groupInfo = groupInfo.Set(ge.GID, ge.Info)
	}
	b.GroupInfo = groupInfo

	b.Logs = persistent.NewSeq(d.Logs...)

	runtime := persistent.NewMap[string, any]()
	for k, v := range d.Runtime {
		runtime = runtime.Set(k, v)
	}
	b.Runtime = runtime

	b.Commands = persistent.NewSeq(d.Commands...)

	b = b.initSeedGroups()
	b = b.RemoveClosingFlag()
	return b, nil
}
