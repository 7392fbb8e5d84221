// Package store persists the small mutable state the dock owns: the
// bookmarked streamer list, manual pins, selection sets, and chat display
// settings. Everything is JSON under an opaque KV, so the Postgres and Redis
// backends stay interchangeable.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/onnwee/stream-dock/canonical"
	"github.com/onnwee/stream-dock/chatagg"
	"github.com/onnwee/stream-dock/registry"
)

// KV is the backend contract. Get reports found=false for missing keys
// rather than an error.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

const (
	keyStreamers     = "streamers"
	keyPins          = "pins"
	keySelectedVideo = "selected_video"
	keySelectedChat  = "selected_chat"
	keyChatSettings  = "chat_settings"
)

// State is the typed layer over a KV backend.
type State struct {
	kv KV
}

func NewState(kv KV) *State { return &State{kv: kv} }

func (s *State) Close() error { return s.kv.Close() }

func getJSON[T any](ctx context.Context, kv KV, key string, out *T) (bool, error) {
	raw, found, err := kv.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func setJSON(ctx context.Context, kv KV, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, string(raw))
}

// Streamers returns the persisted bookmark list in order; nil when none has
// ever been stored.
func (s *State) Streamers(ctx context.Context) ([]registry.Streamer, error) {
	var list []registry.Streamer
	if _, err := getJSON(ctx, s.kv, keyStreamers, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *State) SetStreamers(ctx context.Context, list []registry.Streamer) error {
	return setJSON(ctx, s.kv, keyStreamers, list)
}

func (s *State) Pins(ctx context.Context) ([]registry.Record, error) {
	var pins []registry.Record
	if _, err := getJSON(ctx, s.kv, keyPins, &pins); err != nil {
		return nil, err
	}
	return pins, nil
}

func (s *State) SetPins(ctx context.Context, pins []registry.Record) error {
	return setJSON(ctx, s.kv, keyPins, pins)
}

// Selections returns the persisted video and chat selection sets.
func (s *State) Selections(ctx context.Context) (video, chat []canonical.Key, err error) {
	if _, err := getJSON(ctx, s.kv, keySelectedVideo, &video); err != nil {
		return nil, nil, err
	}
	if _, err := getJSON(ctx, s.kv, keySelectedChat, &chat); err != nil {
		return nil, nil, err
	}
	return video, chat, nil
}

func (s *State) SetSelections(ctx context.Context, video, chat []canonical.Key) error {
	if err := setJSON(ctx, s.kv, keySelectedVideo, video); err != nil {
		return err
	}
	return setJSON(ctx, s.kv, keySelectedChat, chat)
}

// ChatSettings returns the persisted chat display settings; found=false means
// the defaults have never been changed.
func (s *State) ChatSettings(ctx context.Context) (chatagg.Settings, bool, error) {
	var settings chatagg.Settings
	found, err := getJSON(ctx, s.kv, keyChatSettings, &settings)
	return settings, found, err
}

func (s *State) SetChatSettings(ctx context.Context, settings chatagg.Settings) error {
	return setJSON(ctx, s.kv, keyChatSettings, settings)
}
