// Package registry owns the merged catalog of watchable embeds. It folds the
// realtime feed, per-streamer liveness polls, and manual pins into one
// consistent view, keeps selected keys resolvable after their sources stop
// reporting them, and exposes the dock grouping the frontend renders.
package registry

import (
	"time"

	"github.com/onnwee/stream-dock/canonical"
)

// Record is one watchable embed as the catalog knows it. Records are replaced
// wholesale by merge cycles; the only field ever patched across sources is
// the viewer count overlay.
type Record struct {
	Key        canonical.Key `json:"key"`
	Platform   string        `json:"platform"`
	RawID      string        `json:"raw_id"`
	Title      string        `json:"title,omitempty"`
	Viewers    int           `json:"viewers,omitempty"`
	HasViewers bool          `json:"has_viewers,omitempty"`
	Thumbnail  string        `json:"thumbnail,omitempty"`
	Banned     bool          `json:"banned,omitempty"`
	BanReason  string        `json:"ban_reason,omitempty"`
}

// NewRecord builds a record with its canonical key derived from platform and
// raw id.
func NewRecord(platform, rawID string) Record {
	return Record{
		Key:      canonical.New(platform, rawID),
		Platform: canonical.New(platform, rawID).Platform(),
		RawID:    rawID,
	}
}

// Streamer is a user bookmark: one person, up to one identifier per platform.
// Order among streamers is significant (dock left-to-right) and preserved on
// edit.
type Streamer struct {
	ID        string            `json:"id"`
	Nickname  string            `json:"nickname"`
	Platforms map[string]string `json:"platforms,omitempty"` // platform -> raw id
	Colors    map[string]string `json:"colors,omitempty"`    // platform -> accent color
	Color     string            `json:"color,omitempty"`     // master accent color
	AutoOpen  bool              `json:"auto_open,omitempty"`
	HideLabel bool              `json:"hide_label,omitempty"`
}

// PollResult is the outcome of one completed liveness poll for a single
// (streamer, platform) pair. A nil Record with Live=false means confirmed
// offline; Err means the poll failed and must not disturb prior poll state.
type PollResult struct {
	Platform   string
	StreamerID string
	Live       bool
	Record     *Record
	Err        error
	At         time.Time
}

// View is an immutable snapshot of registry state, safe to hand to readers
// while merge cycles continue.
type View struct {
	Catalog       map[canonical.Key]Record `json:"catalog"` // merged catalog plus retained ghosts
	Ghosts        []canonical.Key          `json:"ghosts,omitempty"`
	SelectedVideo []canonical.Key          `json:"selected_video"`
	SelectedChat  []canonical.Key          `json:"selected_chat"`
	Pinned        []canonical.Key          `json:"pinned"`
	Groups        []DockGroup              `json:"groups"`
}
