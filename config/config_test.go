package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TWITCH_CLIENT_ID", "TWITCH_CLIENT_SECRET", "YT_API_KEY",
		"FEED_URL", "FEED_CHAT_URL", "KICK_CHAT_URL",
		"POLL_INTERVAL", "YT_POLL_MULTIPLIER", "PREFERRED_PLATFORMS",
		"CHAT_VISIBLE_CAP", "CHAT_SCROLL_CAP",
		"STORE_BACKEND", "DB_DSN", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"SEED_PATH", "LISTEN_ADDR", "ADMIN_TOKEN",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", cfg.PollInterval)
	}
	if cfg.YTPollMultiplier != 4 {
		t.Errorf("YTPollMultiplier = %d, want 4", cfg.YTPollMultiplier)
	}
	if len(cfg.PreferredPlatforms) != 3 || cfg.PreferredPlatforms[0] != "twitch" {
		t.Errorf("PreferredPlatforms = %v", cfg.PreferredPlatforms)
	}
	if cfg.ChatVisibleCap != 70 || cfg.ChatScrollCap != 600 {
		t.Errorf("chat caps = %d/%d, want 70/600", cfg.ChatVisibleCap, cfg.ChatScrollCap)
	}
	if cfg.StoreBackend != "postgres" {
		t.Errorf("StoreBackend = %q, want postgres", cfg.StoreBackend)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.TwitchEnabled() || cfg.YouTubeEnabled() {
		t.Error("platforms enabled without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TWITCH_CLIENT_ID", "id")
	t.Setenv("TWITCH_CLIENT_SECRET", "secret")
	t.Setenv("POLL_INTERVAL", "1m")
	t.Setenv("PREFERRED_PLATFORMS", "Kick, twitch")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("CHAT_SCROLL_CAP", "900")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.TwitchEnabled() {
		t.Error("TwitchEnabled() = false with credentials set")
	}
	if cfg.PollInterval != time.Minute {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if len(cfg.PreferredPlatforms) != 2 || cfg.PreferredPlatforms[0] != "kick" {
		t.Errorf("PreferredPlatforms = %v, want normalized [kick twitch]", cfg.PreferredPlatforms)
	}
	if cfg.StoreBackend != "redis" {
		t.Errorf("StoreBackend = %q", cfg.StoreBackend)
	}
	if cfg.ChatScrollCap != 900 {
		t.Errorf("ChatScrollCap = %d", cfg.ChatScrollCap)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad interval", "POLL_INTERVAL", "soon"},
		{"negative interval", "POLL_INTERVAL", "-5s"},
		{"bad multiplier", "YT_POLL_MULTIPLIER", "0"},
		{"unknown backend", "STORE_BACKEND", "sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() accepted %s=%q", tt.key, tt.value)
			}
		})
	}
}
