package chatsrc

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fasthttp/websocket"
	"golang.org/x/time/rate"

	"github.com/onnwee/stream-dock/canonical"
	"github.com/onnwee/stream-dock/chatagg"
)

// WSAdapter reads chat messages from a websocket endpoint. It covers both the
// house community chat and Kick chatrooms; the two differ only in URL and an
// optional subscribe frame sent after connecting.
type WSAdapter struct {
	key       canonical.Key
	url       string
	subscribe []byte // sent once per connection when non-nil
	sink      Sink

	readTimeout time.Duration
	dialer      *websocket.Dialer
}

// wsMessage is the wire shape both endpoints share. Timestamp is epoch
// milliseconds; zero means the source did not report one.
type wsMessage struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// NewHouseAdapter reads the always-on community chat feed.
func NewHouseAdapter(url string, sink Sink) *WSAdapter {
	return &WSAdapter{key: canonical.HouseKey, url: url, sink: sink, readTimeout: 90 * time.Second}
}

// NewKickAdapter subscribes to one Kick channel's chatroom on the chat
// gateway.
func NewKickAdapter(k canonical.Key, gatewayURL string, sink Sink) *WSAdapter {
	sub, _ := json.Marshal(map[string]string{"event": "subscribe", "channel": k.ID()})
	return &WSAdapter{key: k, url: gatewayURL, subscribe: sub, sink: sink, readTimeout: 90 * time.Second}
}

func (a *WSAdapter) Key() canonical.Key { return a.key }

// Run dials and reads until the context is cancelled, reconnecting on any
// error under a rate limiter. Malformed messages are skipped individually.
func (a *WSAdapter) Run(ctx context.Context) {
	limiter := rate.NewLimiter(rate.Every(5*time.Second), 3)
	dialer := a.dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		conn, _, err := dialer.DialContext(ctx, a.url, nil)
		if err != nil {
			slog.Warn("chatsrc: dial failed",
				slog.String("key", string(a.key)), slog.Any("err", err))
			continue
		}
		err = a.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		slog.Warn("chatsrc: connection lost, redialing",
			slog.String("key", string(a.key)), slog.Any("err", err))
	}
}

func (a *WSAdapter) consume(ctx context.Context, conn *websocket.Conn) error {
	if a.subscribe != nil {
		if err := conn.WriteMessage(websocket.TextMessage, a.subscribe); err != nil {
			return err
		}
	}

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
		if err := conn.SetReadDeadline(time.Now().Add(a.readTimeout)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if ev, ok := a.decode(data); ok {
			a.sink(ev)
		}
	}
}

func (a *WSAdapter) decode(data []byte) (chatagg.Event, bool) {
	var m wsMessage
	if err := json.Unmarshal(data, &m); err != nil || m.Text == "" {
		return chatagg.Event{}, false
	}
	ev := chatagg.Event{Source: a.key, Author: m.Author, Text: m.Text}
	if m.Timestamp > 0 {
		ev.SourceTime = time.UnixMilli(m.Timestamp).UTC()
	}
	return ev, true
}
