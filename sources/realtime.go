package sources

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fasthttp/websocket"
	"golang.org/x/time/rate"

	"github.com/onnwee/stream-dock/canonical"
	"github.com/onnwee/stream-dock/registry"
	"github.com/onnwee/stream-dock/telemetry"
)

// RealtimeClient is the long-lived websocket consumer of the community
// realtime feed. The feed pushes full-snapshot frames; each frame replaces
// the realtime shelf wholesale, so a dropped frame costs freshness, never
// correctness.
type RealtimeClient struct {
	URL string
	Out chan<- Event

	// Limiter paces reconnect attempts. Defaults to one dial per 5s with a
	// burst of 3, enough to ride out feed restarts without hammering it.
	Limiter *rate.Limiter
	Dialer  *websocket.Dialer

	// ReadTimeout bounds how long a silent connection is trusted before the
	// client redials. The feed heartbeats well inside this.
	ReadTimeout time.Duration
}

type rtFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// rtEmbed is one entry of an embeds frame. Viewers is a pointer so "reported
// zero viewers" and "did not report viewers" stay distinct.
type rtEmbed struct {
	Platform  string `json:"platform"`
	ID        string `json:"id"`
	Title     string `json:"title"`
	Viewers   *int   `json:"viewers"`
	Thumbnail string `json:"thumbnail"`
}

// Run dials the feed and consumes frames until the context is cancelled,
// redialing on any error. Malformed frames and entries are skipped
// individually; they never tear the connection down.
func (c *RealtimeClient) Run(ctx context.Context) {
	limiter := c.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(5*time.Second), 3)
	}
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	readTimeout := c.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 90 * time.Second
	}

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		conn, _, err := dialer.DialContext(ctx, c.URL, nil)
		if err != nil {
			slog.Warn("realtime: dial failed", slog.String("url", c.URL), slog.Any("err", err))
			telemetry.CountRealtimeReconnect()
			continue
		}
		slog.Info("realtime: connected", slog.String("url", c.URL))

		err = c.consume(ctx, conn, readTimeout)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		slog.Warn("realtime: connection lost, redialing", slog.Any("err", err))
		telemetry.CountRealtimeReconnect()
	}
}

func (c *RealtimeClient) consume(ctx context.Context, conn *websocket.Conn, readTimeout time.Duration) error {
	// Unblock the blocking read when the context dies.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleFrame(data)
	}
}

func (c *RealtimeClient) handleFrame(data []byte) {
	var f rtFrame
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Debug("realtime: malformed frame skipped", slog.Any("err", err))
		return
	}
	switch f.Type {
	case "embeds":
		batch := decodeEmbeds(f.Data)
		if batch == nil {
			return
		}
		telemetry.CountRealtimeBatch()
		c.Out <- RealtimeEvent{Batch: batch}
	case "banned":
		banned := decodeBanned(f.Data)
		if banned == nil {
			return
		}
		c.Out <- RealtimeEvent{Banned: banned}
	default:
		// Heartbeats and frames from newer feed versions.
	}
}

// decodeEmbeds decodes an embeds frame entry by entry so one malformed entry
// drops only itself. Returns a non-nil (possibly empty) slice on a decodable
// frame; empty means every source went dark and the shelf must clear.
func decodeEmbeds(data []byte) []registry.Record {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		slog.Debug("realtime: embeds frame not a list", slog.Any("err", err))
		return nil
	}
	batch := make([]registry.Record, 0, len(raws))
	for _, raw := range raws {
		var e rtEmbed
		if err := json.Unmarshal(raw, &e); err != nil {
			slog.Debug("realtime: embed entry skipped", slog.Any("err", err))
			continue
		}
		if e.Platform == "" || e.ID == "" {
			continue
		}
		rec := registry.NewRecord(e.Platform, e.ID)
		rec.Title = e.Title
		rec.Thumbnail = e.Thumbnail
		if e.Viewers != nil {
			rec.Viewers = *e.Viewers
			rec.HasViewers = true
		}
		batch = append(batch, rec)
	}
	return batch
}

// decodeBanned converts the banned section into canonical keys, skipping
// entries that do not parse.
func decodeBanned(data []byte) map[canonical.Key]string {
	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.Debug("realtime: banned frame skipped", slog.Any("err", err))
		return nil
	}
	banned := make(map[canonical.Key]string, len(entries))
	for raw, reason := range entries {
		k, ok := canonical.Parse(raw)
		if !ok {
			slog.Debug("realtime: banned entry skipped", slog.String("raw", raw))
			continue
		}
		banned[k] = reason
	}
	return banned
}
