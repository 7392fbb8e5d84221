// Package chatagg merges chat messages from independently-timed sources into
// one ordered, bounded feed. Ingestion appends immutable messages with a
// monotonic arrival sequence; ordering, highlighting, and display attributes
// are all computed at snapshot time so setting changes apply to messages
// already in the buffer.
package chatagg

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/stream-dock/canonical"
	"github.com/onnwee/stream-dock/registry"
	"github.com/onnwee/stream-dock/telemetry"
)

// SortMode selects the snapshot ordering.
type SortMode string

const (
	// SortTimestamp orders by source timestamp, falling back to the arrival
	// wall time, ties broken by arrival sequence.
	SortTimestamp SortMode = "timestamp"
	// SortArrival orders strictly by arrival sequence.
	SortArrival SortMode = "arrival"
)

// DefaultVisibleCap and DefaultScrollCap are the retention limits used when
// no persisted settings exist.
const (
	DefaultVisibleCap = 70
	DefaultScrollCap  = 600
)

// Event is what a chat source adapter delivers. SourceTime is zero when the
// source provided no timestamp or one the adapter does not trust.
type Event struct {
	Source     canonical.Key
	Author     string
	Text       string
	SourceTime time.Time
}

// Message is one retained chat message. Immutable once created.
type Message struct {
	Seq        uint64        `json:"seq"`
	Source     canonical.Key `json:"source"`
	Author     string        `json:"author"`
	Text       string        `json:"text"`
	SourceTime time.Time     `json:"source_time,omitempty"`
	ArrivedAt  time.Time     `json:"arrived_at"`
}

// DisplayMessage is a message dressed with read-time attributes.
type DisplayMessage struct {
	Message
	Highlighted bool   `json:"highlighted,omitempty"`
	Label       string `json:"label,omitempty"`
	Color       string `json:"color"`
	ShowLabel   bool   `json:"show_label"`
}

// Settings are the user-visible aggregator knobs, persisted externally.
type Settings struct {
	Mode       SortMode `json:"mode"`
	VisibleCap int      `json:"visible_cap"`
	ScrollCap  int      `json:"scroll_cap"`
	Highlights []string `json:"highlights,omitempty"`
}

// Clamped normalizes settings: defaults for zero values and visibleCap
// clamped to scrollCap.
func (s Settings) Clamped() Settings {
	if s.Mode != SortArrival {
		s.Mode = SortTimestamp
	}
	if s.ScrollCap <= 0 {
		s.ScrollCap = DefaultScrollCap
	}
	if s.VisibleCap <= 0 {
		s.VisibleCap = DefaultVisibleCap
	}
	if s.VisibleCap > s.ScrollCap {
		s.VisibleCap = s.ScrollCap
	}
	return s
}

// Resolver supplies the registry lookups used for display attributes.
type Resolver interface {
	StreamerFor(k canonical.Key) (registry.Streamer, bool)
	Resolve(k canonical.Key) (registry.Record, bool)
}

// Counts are derived values recomputed per snapshot.
type Counts struct {
	Total        int `json:"total"`
	HouseAuthors int `json:"house_authors"`
}

// Aggregator owns the bounded message buffer. Created on view activation and
// discarded on deactivation; never persisted.
type Aggregator struct {
	mu       sync.Mutex
	buf      *ring
	seq      uint64
	settings Settings
	resolver Resolver
	now      func() time.Time
}

// New creates an aggregator with clamped settings. resolver may be nil, in
// which case labels fall back to raw ids and colors to the key hash.
func New(settings Settings, resolver Resolver) *Aggregator {
	s := settings.Clamped()
	return &Aggregator{
		buf:      newRing(s.ScrollCap),
		settings: s,
		resolver: resolver,
		now:      time.Now,
	}
}

// SetResolver installs or replaces the registry lookup used for display
// attributes. Attributes are dressed at read time, so earlier messages pick
// up the resolver retroactively.
func (a *Aggregator) SetResolver(r Resolver) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resolver = r
}

// Ingest assigns the next arrival sequence number and appends the message.
// This is the only mutation path; eviction beyond the scroll cap is O(1).
func (a *Aggregator) Ingest(ev Event) {
	a.mu.Lock()
	a.seq++
	evicted := a.buf.push(Message{
		Seq:        a.seq,
		Source:     ev.Source,
		Author:     ev.Author,
		Text:       ev.Text,
		SourceTime: ev.SourceTime,
		ArrivedAt:  a.now().UTC(),
	})
	size := a.buf.len()
	a.mu.Unlock()

	telemetry.CountChatIngested(ev.Source.Platform())
	telemetry.CountChatEvicted(evicted)
	telemetry.SetChatBufferSize(size)
}

// Settings returns the active settings.
func (a *Aggregator) Settings() Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// SetSettings replaces the active settings, clamping to the cap invariant.
// Lowering the scroll cap evicts oldest messages immediately.
func (a *Aggregator) SetSettings(s Settings) Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	s = s.Clamped()
	if s.ScrollCap != a.settings.ScrollCap {
		a.buf = a.buf.resized(s.ScrollCap)
	}
	a.settings = s
	return s
}

// Snapshot is a pure read of the retained window: ordered by the active sort
// mode, then truncated to the newest visibleCap entries when the view is
// pinned to the bottom, or up to scrollCap entries when scrolled away.
func (a *Aggregator) Snapshot(pinnedToBottom bool) []DisplayMessage {
	a.mu.Lock()
	msgs := a.buf.all()
	s := a.settings
	resolver := a.resolver
	a.mu.Unlock()

	switch s.Mode {
	case SortArrival:
		sort.Slice(msgs, func(i, j int) bool { return msgs[i].Seq < msgs[j].Seq })
	default:
		sort.Slice(msgs, func(i, j int) bool {
			ti, tj := effectiveTime(msgs[i]), effectiveTime(msgs[j])
			if ti.Equal(tj) {
				return msgs[i].Seq < msgs[j].Seq
			}
			return ti.Before(tj)
		})
	}

	if pinnedToBottom && len(msgs) > s.VisibleCap {
		msgs = msgs[len(msgs)-s.VisibleCap:]
	}

	out := make([]DisplayMessage, len(msgs))
	for i, m := range msgs {
		out[i] = DisplayMessage{
			Message:     m,
			Highlighted: highlighted(m.Text, s.Highlights),
		}
		out[i].Label, out[i].Color, out[i].ShowLabel = displayAttrs(m.Source, resolver)
	}
	return out
}

// Counts returns the derived counters: total retained messages and distinct
// author names seen on the always-on house source.
func (a *Aggregator) Counts() Counts {
	a.mu.Lock()
	msgs := a.buf.all()
	a.mu.Unlock()

	authors := map[string]struct{}{}
	for _, m := range msgs {
		if m.Source == canonical.HouseKey {
			authors[m.Author] = struct{}{}
		}
	}
	return Counts{Total: len(msgs), HouseAuthors: len(authors)}
}

// effectiveTime is the timestamp-mode sort key: the source timestamp when
// present, else the arrival wall time.
func effectiveTime(m Message) time.Time {
	if !m.SourceTime.IsZero() {
		return m.SourceTime
	}
	return m.ArrivedAt
}

func highlighted(text string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
