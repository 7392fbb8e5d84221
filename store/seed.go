package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/onnwee/stream-dock/registry"
)

// seedStreamer is the YAML shape of one bookmarked streamer.
type seedStreamer struct {
	ID        string            `yaml:"id"`
	Nickname  string            `yaml:"nickname"`
	Platforms map[string]string `yaml:"platforms"`
	Colors    map[string]string `yaml:"colors"`
	Color     string            `yaml:"color"`
	AutoOpen  bool              `yaml:"auto_open"`
	HideLabel bool              `yaml:"hide_label"`
}

type seedFile struct {
	Streamers []seedStreamer `yaml:"streamers"`
}

// LoadSeed reads the streamer seed file. Entries without an id take their
// nickname as id; entries with neither are rejected.
func LoadSeed(path string) ([]registry.Streamer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed yaml: %w", err)
	}
	list := make([]registry.Streamer, 0, len(f.Streamers))
	for i, s := range f.Streamers {
		if s.ID == "" {
			s.ID = s.Nickname
		}
		if s.ID == "" {
			return nil, fmt.Errorf("seed entry %d has neither id nor nickname", i)
		}
		list = append(list, registry.Streamer{
			ID:        s.ID,
			Nickname:  s.Nickname,
			Platforms: s.Platforms,
			Colors:    s.Colors,
			Color:     s.Color,
			AutoOpen:  s.AutoOpen,
			HideLabel: s.HideLabel,
		})
	}
	return list, nil
}

// SeedIfEmpty imports the seed file into the store when no streamer list has
// ever been persisted. An unset path is a no-op.
func SeedIfEmpty(ctx context.Context, state *State, path string) error {
	if path == "" {
		return nil
	}
	existing, err := state.Streamers(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	list, err := LoadSeed(path)
	if err != nil {
		return err
	}
	if err := state.SetStreamers(ctx, list); err != nil {
		return err
	}
	slog.Info("store: seeded streamer list", slog.Int("count", len(list)), slog.String("path", path))
	return nil
}
