package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/stream-dock/canonical"
	"github.com/onnwee/stream-dock/chatagg"
	"github.com/onnwee/stream-dock/registry"
	"github.com/onnwee/stream-dock/store"
	"github.com/onnwee/stream-dock/telemetry"
)

// Options are the collaborators the HTTP layer serves.
type Options struct {
	Registry *registry.Registry
	Agg      *chatagg.Aggregator
	State    *store.State

	// ChatRunning reports which chat adapters are connected, for /status.
	ChatRunning func() []canonical.Key
	// OnStreamersChanged lets main re-point pollers and persistence when
	// the roster is edited.
	OnStreamersChanged func([]registry.Streamer)

	AdminToken string
}

// Handlers contains HTTP handlers with their dependencies.
type Handlers struct {
	opts      Options
	startedAt time.Time
}

func NewHandlers(opts Options) *Handlers {
	return &Handlers{opts: opts, startedAt: time.Now().UTC()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.Any("err", err))
	}
}

// HandleHealthz is the liveness probe.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReadyz reports ready once the store answers reads.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if _, err := h.opts.State.Streamers(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "store unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus summarizes runtime state for operators.
func (h *Handlers) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	view := h.opts.Registry.View()
	counts := h.opts.Agg.Counts()
	var adapters []canonical.Key
	if h.opts.ChatRunning != nil {
		adapters = h.opts.ChatRunning()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"catalog_size":   len(view.Catalog),
		"ghosts":         len(view.Ghosts),
		"pinned":         len(view.Pinned),
		"selected_video": len(view.SelectedVideo),
		"selected_chat":  len(view.SelectedChat),
		"dock_groups":    len(view.Groups),
		"chat_buffered":  counts.Total,
		"house_authors":  counts.HouseAuthors,
		"chat_adapters":  adapters,
		"tracing":        telemetry.IsTracingEnabled(),
	})
}

// HandleCatalog returns the full merged view.
func (h *Handlers) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.opts.Registry.View())
}

// HandleDock returns just the dock groups, the shape the frontend renders.
func (h *Handlers) HandleDock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": h.opts.Registry.View().Groups})
}

type pinRequest struct {
	Platform string `json:"platform"`
	ID       string `json:"id"`
	Title    string `json:"title"`
}

// HandlePins lists, adds, or removes manual pins.
func (h *Handlers) HandlePins(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		view := h.opts.Registry.View()
		pins := make([]registry.Record, 0, len(view.Pinned))
		for _, k := range view.Pinned {
			if rec, ok := view.Catalog[k]; ok {
				pins = append(pins, rec)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"pins": pins})
	case http.MethodPost:
		var req pinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Platform == "" || req.ID == "" {
			http.Error(w, "platform and id required", http.StatusBadRequest)
			return
		}
		rec := registry.NewRecord(req.Platform, req.ID)
		rec.Title = req.Title
		h.opts.Registry.AddPin(rec)
		writeJSON(w, http.StatusCreated, map[string]any{"key": rec.Key})
	case http.MethodDelete:
		raw := r.URL.Query().Get("key")
		k, ok := canonical.Parse(raw)
		if !ok {
			http.Error(w, "key query parameter required (platform:id)", http.StatusBadRequest)
			return
		}
		if !h.opts.Registry.RemovePin(k) {
			http.Error(w, "pin not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"removed": string(k)})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type toggleRequest struct {
	// Group toggle: all keys of one dock group.
	Keys []canonical.Key `json:"keys,omitempty"`
	// Single-key toggle.
	Key  canonical.Key `json:"key,omitempty"`
	Kind string        `json:"kind,omitempty"` // "video" or "chat"
	On   bool          `json:"on,omitempty"`
}

// HandleSelectionToggle flips selection state: a dock group as a unit, or a
// single key's video or chat selection.
func (h *Handlers) HandleSelectionToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	switch {
	case len(req.Keys) > 0:
		h.opts.Registry.ToggleGroup(req.Keys)
	case req.Key != "":
		var ok bool
		switch req.Kind {
		case "chat":
			ok = h.opts.Registry.SetChatSelected(req.Key, req.On)
		case "video", "":
			ok = h.opts.Registry.SetVideoSelected(req.Key, req.On)
		default:
			http.Error(w, "kind must be video or chat", http.StatusBadRequest)
			return
		}
		if !ok {
			http.Error(w, "key not resolvable", http.StatusConflict)
			return
		}
	default:
		http.Error(w, "keys or key required", http.StatusBadRequest)
		return
	}
	view := h.opts.Registry.View()
	writeJSON(w, http.StatusOK, map[string]any{
		"selected_video": view.SelectedVideo,
		"selected_chat":  view.SelectedChat,
	})
}

// HandleChatMessages returns the combined chat snapshot. ?pinned=0 requests
// the full scrollback instead of the visible slice.
func (h *Handlers) HandleChatMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pinned := r.URL.Query().Get("pinned") != "0"
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": h.opts.Agg.Snapshot(pinned),
		"counts":   h.opts.Agg.Counts(),
	})
}

// HandleChatSettings reads or replaces the chat display settings. Replaced
// settings are clamped, applied, and persisted.
func (h *Handlers) HandleChatSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.opts.Agg.Settings())
	case http.MethodPut:
		var settings chatagg.Settings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		applied := h.opts.Agg.SetSettings(settings)
		if err := h.opts.State.SetChatSettings(r.Context(), applied); err != nil {
			slog.Warn("failed to persist chat settings", slog.Any("err", err))
		}
		writeJSON(w, http.StatusOK, applied)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleStreamers reads or replaces the bookmarked streamer roster. Writes
// require the admin token (enforced by middleware).
func (h *Handlers) HandleStreamers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"streamers": h.opts.Registry.Streamers()})
	case http.MethodPut:
		var list []registry.Streamer
		if err := json.NewDecoder(r.Body).Decode(&list); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		for _, s := range list {
			if s.ID == "" {
				http.Error(w, "streamer id required", http.StatusBadRequest)
				return
			}
		}
		h.opts.Registry.SetStreamers(list)
		if err := h.opts.State.SetStreamers(r.Context(), list); err != nil {
			slog.Warn("failed to persist streamers", slog.Any("err", err))
		}
		if h.opts.OnStreamersChanged != nil {
			h.opts.OnStreamersChanged(list)
		}
		writeJSON(w, http.StatusOK, map[string]any{"streamers": list})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
