package chatsrc

import (
	"context"
	"log/slog"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"golang.org/x/time/rate"

	"github.com/onnwee/stream-dock/canonical"
	"github.com/onnwee/stream-dock/chatagg"
)

// TwitchAdapter reads one channel's chat over anonymous IRC. Anonymous
// clients can read any channel without credentials, which is all the
// combined view needs.
type TwitchAdapter struct {
	key  canonical.Key
	sink Sink
}

func NewTwitchAdapter(k canonical.Key, sink Sink) *TwitchAdapter {
	return &TwitchAdapter{key: k, sink: sink}
}

func (a *TwitchAdapter) Key() canonical.Key { return a.key }

// Run connects and reads until the context is cancelled, reconnecting on
// failure under a rate limiter.
func (a *TwitchAdapter) Run(ctx context.Context) {
	limiter := rate.NewLimiter(rate.Every(5*time.Second), 3)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		client := twitch.NewAnonymousClient()
		client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
			author := msg.User.DisplayName
			if author == "" {
				author = msg.User.Name
			}
			a.sink(chatagg.Event{
				Source:     a.key,
				Author:     author,
				Text:       msg.Message,
				SourceTime: msg.Time,
			})
		})
		client.Join(a.key.ID())

		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = client.Disconnect()
			case <-done:
			}
		}()

		err := client.Connect()
		close(done)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("chatsrc: twitch connection lost",
			slog.String("channel", a.key.ID()), slog.Any("err", err))
	}
}
