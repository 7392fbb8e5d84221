// Package chatsrc connects live chat sources to the aggregator. One adapter
// runs per selected chat key; the manager diffs the selected set against the
// running set and starts or stops only what changed, so toggling one source
// never drops messages on the others.
package chatsrc

import (
	"context"
	"log/slog"
	"sync"

	"github.com/onnwee/stream-dock/canonical"
	"github.com/onnwee/stream-dock/chatagg"
	"github.com/onnwee/stream-dock/telemetry"
)

// Sink receives every message an adapter produces.
type Sink func(chatagg.Event)

// Adapter is one live chat connection. Run blocks until the context is
// cancelled, reconnecting internally as needed.
type Adapter interface {
	Key() canonical.Key
	Run(ctx context.Context)
}

// Factory builds the adapter for a key, or reports the key unsupported (e.g.
// a YouTube source, whose live chat needs user auth this service never holds).
type Factory func(k canonical.Key, sink Sink) (Adapter, bool)

// Manager owns the running adapter set.
type Manager struct {
	mu      sync.Mutex
	base    context.Context
	factory Factory
	sink    Sink
	running map[canonical.Key]context.CancelFunc
}

// NewManager creates a manager whose adapters live under ctx: cancelling it
// stops them all.
func NewManager(ctx context.Context, factory Factory, sink Sink) *Manager {
	return &Manager{
		base:    ctx,
		factory: factory,
		sink:    sink,
		running: make(map[canonical.Key]context.CancelFunc),
	}
}

// Sync reconciles running adapters against the desired key set. Keys present
// in both are left untouched.
func (m *Manager) Sync(keys []canonical.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[canonical.Key]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}

	for k, cancel := range m.running {
		if _, ok := want[k]; !ok {
			cancel()
			delete(m.running, k)
			slog.Debug("chatsrc: adapter stopped", slog.String("key", string(k)))
		}
	}

	for k := range want {
		if _, ok := m.running[k]; ok {
			continue
		}
		adapter, ok := m.factory(k, m.sink)
		if !ok {
			continue
		}
		ctx, cancel := context.WithCancel(m.base)
		m.running[k] = cancel
		slog.Debug("chatsrc: adapter started", slog.String("key", string(k)))
		go adapter.Run(ctx)
	}

	telemetry.SetChatAdapters(len(m.running))
}

// Running returns the keys with a live adapter, for the status endpoint.
func (m *Manager) Running() []canonical.Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]canonical.Key, 0, len(m.running))
	for k := range m.running {
		keys = append(keys, k)
	}
	return keys
}

// Close stops every adapter.
func (m *Manager) Close() {
	m.Sync(nil)
}
