package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/onnwee/stream-dock/canonical"
	"github.com/onnwee/stream-dock/chatagg"
	"github.com/onnwee/stream-dock/registry"
)

// memKV is an in-memory backend for tests.
type memKV struct {
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: map[string]string{}} }

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *memKV) Close() error { return nil }

func TestStreamersRoundTrip(t *testing.T) {
	ctx := context.Background()
	state := NewState(newMemKV())

	got, err := state.Streamers(ctx)
	if err != nil {
		t.Fatalf("Streamers() error = %v", err)
	}
	if got != nil {
		t.Errorf("fresh store returned %v, want nil", got)
	}

	list := []registry.Streamer{
		{ID: "destiny", Nickname: "Destiny", Platforms: map[string]string{"twitch": "destiny", "kick": "destiny"}},
		{ID: "vtuber", Nickname: "Vtuber", Platforms: map[string]string{"youtube": "UCchannel"}, AutoOpen: true},
	}
	if err := state.SetStreamers(ctx, list); err != nil {
		t.Fatalf("SetStreamers() error = %v", err)
	}
	got, err = state.Streamers(ctx)
	if err != nil {
		t.Fatalf("Streamers() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "destiny" || got[1].ID != "vtuber" {
		t.Errorf("round trip lost order or entries: %+v", got)
	}
	if !got[1].AutoOpen {
		t.Error("auto_open flag lost")
	}
}

func TestSelectionsAndPinsRoundTrip(t *testing.T) {
	ctx := context.Background()
	state := NewState(newMemKV())

	video := []canonical.Key{canonical.New("twitch", "destiny")}
	chat := []canonical.Key{canonical.HouseKey, canonical.New("kick", "destiny")}
	if err := state.SetSelections(ctx, video, chat); err != nil {
		t.Fatalf("SetSelections() error = %v", err)
	}
	gotVideo, gotChat, err := state.Selections(ctx)
	if err != nil {
		t.Fatalf("Selections() error = %v", err)
	}
	if len(gotVideo) != 1 || gotVideo[0] != video[0] {
		t.Errorf("video selections = %v", gotVideo)
	}
	if len(gotChat) != 2 || gotChat[0] != canonical.HouseKey {
		t.Errorf("chat selections = %v", gotChat)
	}

	pin := registry.NewRecord("twitch", "vodchannel")
	pin.Title = "24/7 reruns"
	if err := state.SetPins(ctx, []registry.Record{pin}); err != nil {
		t.Fatalf("SetPins() error = %v", err)
	}
	pins, err := state.Pins(ctx)
	if err != nil {
		t.Fatalf("Pins() error = %v", err)
	}
	if len(pins) != 1 || pins[0].Key != pin.Key || pins[0].Title != "24/7 reruns" {
		t.Errorf("pins = %+v", pins)
	}
}

func TestChatSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	state := NewState(newMemKV())

	if _, found, err := state.ChatSettings(ctx); err != nil || found {
		t.Fatalf("fresh store: found=%v err=%v, want unfound", found, err)
	}

	in := chatagg.Settings{Mode: chatagg.SortArrival, VisibleCap: 50, ScrollCap: 400, Highlights: []string{"dgg"}}
	if err := state.SetChatSettings(ctx, in); err != nil {
		t.Fatalf("SetChatSettings() error = %v", err)
	}
	out, found, err := state.ChatSettings(ctx)
	if err != nil || !found {
		t.Fatalf("ChatSettings(): found=%v err=%v", found, err)
	}
	if out.Mode != chatagg.SortArrival || out.VisibleCap != 50 || len(out.Highlights) != 1 {
		t.Errorf("settings = %+v", out)
	}
}

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "streamers.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSeed(t *testing.T) {
	path := writeSeed(t, `
streamers:
  - id: destiny
    nickname: Destiny
    platforms:
      twitch: destiny
      kick: destiny
    colors:
      twitch: "#9147ff"
    auto_open: true
  - nickname: Vtuber
    platforms:
      youtube: UCchannel
    hide_label: true
`)
	list, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("loaded %d streamers, want 2", len(list))
	}
	if list[0].ID != "destiny" || !list[0].AutoOpen || list[0].Colors["twitch"] != "#9147ff" {
		t.Errorf("first streamer = %+v", list[0])
	}
	// Missing id falls back to nickname.
	if list[1].ID != "Vtuber" || !list[1].HideLabel {
		t.Errorf("second streamer = %+v", list[1])
	}
}

func TestLoadSeedRejectsAnonymousEntry(t *testing.T) {
	path := writeSeed(t, "streamers:\n  - platforms:\n      twitch: x\n")
	if _, err := LoadSeed(path); err == nil {
		t.Fatal("expected error for entry without id or nickname")
	}
}

func TestSeedIfEmpty(t *testing.T) {
	ctx := context.Background()
	state := NewState(newMemKV())
	path := writeSeed(t, "streamers:\n  - id: a\n    platforms:\n      twitch: a\n")

	if err := SeedIfEmpty(ctx, state, path); err != nil {
		t.Fatalf("SeedIfEmpty() error = %v", err)
	}
	list, _ := state.Streamers(ctx)
	if len(list) != 1 {
		t.Fatalf("seed not imported: %v", list)
	}

	// A populated store, even an explicitly emptied one, is never reseeded.
	if err := state.SetStreamers(ctx, []registry.Streamer{}); err != nil {
		t.Fatal(err)
	}
	if err := SeedIfEmpty(ctx, state, path); err != nil {
		t.Fatalf("SeedIfEmpty() error = %v", err)
	}
	list, _ = state.Streamers(ctx)
	if len(list) != 0 {
		t.Errorf("emptied list was reseeded: %v", list)
	}

	// Unset path is a no-op.
	if err := SeedIfEmpty(ctx, NewState(newMemKV()), ""); err != nil {
		t.Errorf("unset path should be a no-op, got %v", err)
	}
}
