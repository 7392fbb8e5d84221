// Package kickapi checks Kick channel liveness over the public channels
// endpoint. No authentication is required for reads.
package kickapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/onnwee/stream-dock/canonical"
	"github.com/onnwee/stream-dock/registry"
)

const defaultBaseURL = "https://kick.com/api/v2"

// Client answers liveness checks for Kick channels.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string // overridden in tests
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

type channelResponse struct {
	Livestream *struct {
		SessionTitle string `json:"session_title"`
		IsLive       bool   `json:"is_live"`
		ViewerCount  int    `json:"viewer_count"`
		Thumbnail    struct {
			URL string `json:"url"`
		} `json:"thumbnail"`
	} `json:"livestream"`
}

// CheckLive reports whether the channel slug is live. A nil record with a nil
// error means confirmed offline; a 404 counts as offline, not failure, since
// renamed channels should not spam the error counters.
func (c *Client) CheckLive(ctx context.Context, slug string) (*registry.Record, error) {
	if slug == "" {
		return nil, fmt.Errorf("slug empty")
	}
	endpoint := c.baseURL() + "/channels/" + url.PathEscape(slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kick channels: status %d", resp.StatusCode)
	}

	var body channelResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.Livestream == nil || !body.Livestream.IsLive {
		return nil, nil
	}

	rec := registry.NewRecord(canonical.PlatformKick, slug)
	rec.Title = body.Livestream.SessionTitle
	rec.Viewers = body.Livestream.ViewerCount
	rec.HasViewers = true
	rec.Thumbnail = body.Livestream.Thumbnail.URL
	return &rec, nil
}
