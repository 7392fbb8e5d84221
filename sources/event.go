// Package sources feeds the registry. Every input path — the realtime
// websocket feed, per-streamer liveness polls, and manual pins — is expressed
// as one Event variant and folded into the registry by a single coordinator
// goroutine, so adapters never touch registry internals directly.
package sources

import (
	"context"
	"log/slog"

	"github.com/onnwee/stream-dock/canonical"
	"github.com/onnwee/stream-dock/registry"
)

// Event is the closed set of registry inputs. Exactly one of the concrete
// types below is sent per submission.
type Event interface {
	isEvent()
}

// RealtimeEvent carries one frame from the realtime feed: a full embed
// snapshot, a banned-list replacement, or both. A nil Banned map means the
// frame carried no banned section; an empty non-nil map clears the list.
type RealtimeEvent struct {
	Batch  []registry.Record
	Banned map[canonical.Key]string
}

// PollEvent carries one completed liveness poll for a (streamer, platform)
// pair, including failed polls so the registry can count them.
type PollEvent struct {
	Result registry.PollResult
}

// PinEvent adds or removes a manual pin. Add takes effect when non-nil,
// otherwise Remove names the key to unpin.
type PinEvent struct {
	Add    *registry.Record
	Remove canonical.Key
}

func (RealtimeEvent) isEvent() {}
func (PollEvent) isEvent()     {}
func (PinEvent) isEvent()      {}

// Coordinator serializes all source events into registry mutations. One
// coordinator runs per registry.
type Coordinator struct {
	reg *registry.Registry
	ch  chan Event
}

// NewCoordinator creates a coordinator with the given event buffer. A buffer
// of a few dozen absorbs poll bursts when many streamers tick together.
func NewCoordinator(reg *registry.Registry, buffer int) *Coordinator {
	if buffer <= 0 {
		buffer = 64
	}
	return &Coordinator{reg: reg, ch: make(chan Event, buffer)}
}

// Events is the submission channel handed to source adapters.
func (c *Coordinator) Events() chan<- Event { return c.ch }

// Submit enqueues an event, blocking if the buffer is full.
func (c *Coordinator) Submit(ev Event) { c.ch <- ev }

// Run consumes events until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.ch:
			c.apply(ev)
		}
	}
}

func (c *Coordinator) apply(ev Event) {
	switch e := ev.(type) {
	case RealtimeEvent:
		if e.Batch != nil {
			c.reg.ApplyRealtime(e.Batch)
		}
		if e.Banned != nil {
			c.reg.ApplyBanned(e.Banned)
		}
	case PollEvent:
		c.reg.ApplyPoll(e.Result)
	case PinEvent:
		if e.Add != nil {
			c.reg.AddPin(*e.Add)
		} else if e.Remove != "" {
			c.reg.RemovePin(e.Remove)
		}
	default:
		slog.Warn("sources: unknown event type dropped", slog.Any("event", ev))
	}
}
