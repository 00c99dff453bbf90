package bench

import (
	"testing"

	"github.com/hobob-dev/hobob/internal/schema"
)

func TestToDocFromDocRoundTrip(t *testing.T) {
	reg, err := schema.New()
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	b := New()
	b, err = Follow(b, reg, FollowArgs{UID: 1})
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	b, err = TouchGroup(b, reg, TouchGroupArgs{GID: 5, Name: "watch"})
	if err != nil {
		t.Fatalf("TouchGroup: %v", err)
	}
	b, err = ToggleGroup(b, reg, ToggleGroupArgs{UID: 1, GID: 5})
	if err != nil {
		t.Fatalf("ToggleGroup: %v", err)
	}
	b, err = AddLog(b, reg, 1, "hello")
	if err != nil {
		t.Fatalf("AddLog: %v", err)
	}

	doc := b.ToDoc()
	restored, err := FromDoc(doc)
	if err != nil {
		t.Fatalf("FromDoc: %v", err)
	}

	if !restored.UpInfo.Has("1") {
		t.Fatalf("expected restored bench to retain up_info[1]")
	}
	if !restored.GroupInfo.Has("5") {
		t.Fatalf("expected restored bench to retain group 5")
	}
	members, ok := restored.UpJoinGroup.Get("5")
	if !ok || !members.Contains("1") {
		t.Fatalf("expected uid 1 to remain a member of group 5 after round trip")
	}
	// Follow logs at level 2 and AddLog adds the "hello" record.
	if restored.Logs.Len() != 2 {
		t.Fatalf("expected both log entries to survive the round trip, got %d", restored.Logs.Len())
	}
}

func TestFromDocReseedsDefaultGroupsAndClearsClosing(t *testing.T) {
	b := New().SetClosingFlag()
	doc := b.ToDoc()

	restored, err := FromDoc(doc)
	if err != nil {
		t.Fatalf("FromDoc: %v", err)
	}
	if restored.IsClosing() {
		t.Fatalf("a reloaded bench must never come back up already closing")
	}
	if !restored.GroupInfo.Has("0") || !restored.GroupInfo.Has("1") {
		t.Fatalf("expected default groups to be present after reload")
	}
}

func TestToDocExcludesTransientEvents(t *testing.T) {
	b := New()
	b = Emit(b, Event{"type": "ping"})
	doc := b.ToDoc()

	restored, err := FromDoc(doc)
	if err != nil {
		t.Fatalf("FromDoc: %v", err)
	}
	if restored.Events.Len() != 0 {
		t.Fatalf("events must never be persisted, got %d", restored.Events.Len())
	}
}
