// Package youtubeapi resolves a channel's current live broadcast through the
// YouTube Data API. Reads are API-key authenticated; no user credentials are
// ever involved.
package youtubeapi

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/stream-dock/canonical"
	"github.com/onnwee/stream-dock/registry"
)

// Client answers liveness checks for YouTube channels. The raw id it is asked
// about is a channel id; the record it returns is keyed by the live video id,
// which only exists while the broadcast runs.
type Client struct {
	svc *yt.Service
}

// New builds a client with the given API key. Extra options are for tests
// (endpoint override, custom HTTP client).
func New(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Client, error) {
	all := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := yt.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// CheckLive looks up the channel's live broadcast, if any. A nil record with
// a nil error means the channel is not live.
func (c *Client) CheckLive(ctx context.Context, channelID string) (*registry.Record, error) {
	if channelID == "" {
		return nil, fmt.Errorf("channel id empty")
	}
	search, err := c.svc.Search.List([]string{"id"}).
		ChannelId(channelID).
		EventType("live").
		Type("video").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("live search: %w", err)
	}
	if len(search.Items) == 0 || search.Items[0].Id == nil || search.Items[0].Id.VideoId == "" {
		return nil, nil
	}
	videoID := search.Items[0].Id.VideoId

	videos, err := c.svc.Videos.List([]string{"snippet", "liveStreamingDetails"}).
		Id(videoID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("video lookup: %w", err)
	}

	rec := registry.NewRecord(canonical.PlatformYouTube, videoID)
	if len(videos.Items) > 0 {
		v := videos.Items[0]
		if v.Snippet != nil {
			rec.Title = v.Snippet.Title
			if v.Snippet.Thumbnails != nil && v.Snippet.Thumbnails.Medium != nil {
				rec.Thumbnail = v.Snippet.Thumbnails.Medium.Url
			}
		}
		if v.LiveStreamingDetails != nil && v.LiveStreamingDetails.ConcurrentViewers > 0 {
			rec.Viewers = int(v.LiveStreamingDetails.ConcurrentViewers)
			rec.HasViewers = true
		}
	}
	return &rec, nil
}
