// Package twitchapi is a minimal Helix client for stream liveness lookups,
// authenticated with an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/onnwee/stream-dock/canonical"
	"github.com/onnwee/stream-dock/registry"
)

const defaultBaseURL = "https://api.twitch.tv/helix"

// helixMaxRetries bounds attempts against transient 5xx responses.
const helixMaxRetries = 3

// Client checks channel liveness via Helix GetStreams.
type Client struct {
	ClientID    string
	TokenSource oauth2.TokenSource
	HTTPClient  *http.Client
	BaseURL     string // overridden in tests
}

// NewClient builds a client with an app access token minted through the
// client-credentials grant. The token source caches and refreshes itself.
func NewClient(clientID, clientSecret string) *Client {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     "https://id.twitch.tv/oauth2/token",
	}
	return &Client{
		ClientID:    clientID,
		TokenSource: cfg.TokenSource(context.Background()),
	}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultBaseURL
}

type streamEntry struct {
	Type         string `json:"type"`
	Title        string `json:"title"`
	ViewerCount  int    `json:"viewer_count"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// CheckLive reports whether the login's channel is live. A nil record with a
// nil error means confirmed offline.
func (c *Client) CheckLive(ctx context.Context, login string) (*registry.Record, error) {
	if login == "" {
		return nil, fmt.Errorf("login empty")
	}
	tok, err := c.TokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("app token: %w", err)
	}

	var body struct {
		Data []streamEntry `json:"data"`
	}
	var lastStatus int
	for attempt := 0; attempt < helixMaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/streams", nil)
		if err != nil {
			return nil, err
		}
		q := req.URL.Query()
		q.Set("user_login", login)
		req.URL.RawQuery = q.Encode()
		req.Header.Set("Client-Id", c.ClientID)
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

		resp, err := c.http().Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			lastStatus = resp.StatusCode
			if err := resp.Body.Close(); err != nil {
				slog.Warn("failed to close response body", slog.Any("err", err))
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			status := resp.StatusCode
			if err := resp.Body.Close(); err != nil {
				slog.Warn("failed to close response body", slog.Any("err", err))
			}
			return nil, fmt.Errorf("helix streams: status %d", status)
		}
		err = json.NewDecoder(resp.Body).Decode(&body)
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("failed to close response body", slog.Any("err", cerr))
		}
		if err != nil {
			return nil, err
		}
		return c.toRecord(login, body.Data), nil
	}
	return nil, fmt.Errorf("helix streams: status %d after %d attempts", lastStatus, helixMaxRetries)
}

func (c *Client) toRecord(login string, data []streamEntry) *registry.Record {
	for _, s := range data {
		if s.Type != "live" {
			continue
		}
		rec := registry.NewRecord(canonical.PlatformTwitch, login)
		rec.Title = s.Title
		rec.Viewers = s.ViewerCount
		rec.HasViewers = true
		rec.Thumbnail = thumbnailURL(s.ThumbnailURL)
		return &rec
	}
	return nil
}

// thumbnailURL fills Helix's template placeholders with a dock-sized preview.
func thumbnailURL(tpl string) string {
	tpl = strings.ReplaceAll(tpl, "{width}", "320")
	return strings.ReplaceAll(tpl, "{height}", "180")
}
