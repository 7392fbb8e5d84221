package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/stream-dock/canonical"
	"github.com/onnwee/stream-dock/chatagg"
	"github.com/onnwee/stream-dock/registry"
	"github.com/onnwee/stream-dock/store"
)

type memKV struct {
	data map[string]string
}

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *memKV) Close() error { return nil }

func newTestMux(t *testing.T, opts Options) http.Handler {
	t.Helper()
	t.Setenv("RATE_LIMIT_ENABLED", "0")
	t.Setenv("ENV", "dev")
	if opts.Registry == nil {
		opts.Registry = registry.New(registry.Options{})
	}
	if opts.Agg == nil {
		opts.Agg = chatagg.New(chatagg.Settings{}, opts.Registry)
	}
	if opts.State == nil {
		opts.State = store.NewState(&memKV{data: map[string]string{}})
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewMux(ctx, opts)
}

func doJSON(t *testing.T, mux http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	mux := newTestMux(t, Options{})

	rec := doJSON(t, mux, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d", rec.Code)
	}
	rec = doJSON(t, mux, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/readyz = %d", rec.Code)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got == "" {
		t.Error("no correlation id header")
	}

	rec = doJSON(t, mux, http.MethodGet, "/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/status = %d", rec.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if _, ok := status["tracing"]; !ok {
		t.Error("status payload missing tracing flag")
	}
}

func TestCatalogAndDock(t *testing.T) {
	reg := registry.New(registry.Options{})
	rec := registry.NewRecord("twitch", "destiny")
	rec.Title = "Live"
	reg.ApplyRealtime([]registry.Record{rec})

	mux := newTestMux(t, Options{Registry: reg})

	resp := doJSON(t, mux, http.MethodGet, "/catalog", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("/catalog = %d", resp.Code)
	}
	var view registry.View
	if err := json.Unmarshal(resp.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	if _, ok := view.Catalog[rec.Key]; !ok {
		t.Errorf("catalog missing %s: %+v", rec.Key, view.Catalog)
	}

	resp = doJSON(t, mux, http.MethodGet, "/dock", "", nil)
	if resp.Code != http.StatusOK {
		t.Errorf("/dock = %d", resp.Code)
	}
	resp = doJSON(t, mux, http.MethodPost, "/dock", "{}", nil)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /dock = %d, want 405", resp.Code)
	}
}

func TestPinsLifecycle(t *testing.T) {
	mux := newTestMux(t, Options{})

	resp := doJSON(t, mux, http.MethodPost, "/pins", `{"platform":"twitch","id":"VODChannel","title":"reruns"}`, nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("POST /pins = %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		Key canonical.Key `json:"key"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &created)
	if created.Key != "twitch:vodchannel" {
		t.Errorf("created key = %q, want canonical form", created.Key)
	}

	resp = doJSON(t, mux, http.MethodGet, "/pins", "", nil)
	var list struct {
		Pins []registry.Record `json:"pins"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &list)
	if len(list.Pins) != 1 || list.Pins[0].Title != "reruns" {
		t.Errorf("pins = %+v", list.Pins)
	}

	resp = doJSON(t, mux, http.MethodDelete, "/pins?key=twitch:vodchannel", "", nil)
	if resp.Code != http.StatusOK {
		t.Errorf("DELETE /pins = %d", resp.Code)
	}
	resp = doJSON(t, mux, http.MethodDelete, "/pins?key=twitch:vodchannel", "", nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want 404", resp.Code)
	}

	resp = doJSON(t, mux, http.MethodPost, "/pins", `{"title":"no key"}`, nil)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("POST /pins without platform/id = %d, want 400", resp.Code)
	}
}

func TestSelectionToggle(t *testing.T) {
	reg := registry.New(registry.Options{})
	rec := registry.NewRecord("twitch", "destiny")
	reg.ApplyRealtime([]registry.Record{rec})
	mux := newTestMux(t, Options{Registry: reg})

	resp := doJSON(t, mux, http.MethodPost, "/selection/toggle", `{"key":"twitch:destiny","kind":"video","on":true}`, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("toggle = %d: %s", resp.Code, resp.Body.String())
	}
	var sel struct {
		SelectedVideo []canonical.Key `json:"selected_video"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &sel)
	if len(sel.SelectedVideo) != 1 {
		t.Errorf("selected_video = %v", sel.SelectedVideo)
	}

	// Selecting a key nothing reports is refused.
	resp = doJSON(t, mux, http.MethodPost, "/selection/toggle", `{"key":"kick:ghost","kind":"chat","on":true}`, nil)
	if resp.Code != http.StatusConflict {
		t.Errorf("unresolvable toggle = %d, want 409", resp.Code)
	}

	// Group toggle clears when any member is selected.
	resp = doJSON(t, mux, http.MethodPost, "/selection/toggle", `{"keys":["twitch:destiny"]}`, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("group toggle = %d", resp.Code)
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &sel)
	if len(sel.SelectedVideo) != 0 {
		t.Errorf("group toggle did not clear: %v", sel.SelectedVideo)
	}

	resp = doJSON(t, mux, http.MethodPost, "/selection/toggle", `{}`, nil)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("empty toggle = %d, want 400", resp.Code)
	}
}

func TestChatEndpoints(t *testing.T) {
	reg := registry.New(registry.Options{})
	agg := chatagg.New(chatagg.Settings{}, reg)
	agg.Ingest(chatagg.Event{Source: canonical.HouseKey, Author: "alice", Text: "hello"})
	mux := newTestMux(t, Options{Registry: reg, Agg: agg})

	resp := doJSON(t, mux, http.MethodGet, "/chat/messages", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("/chat/messages = %d", resp.Code)
	}
	var body struct {
		Messages []chatagg.DisplayMessage `json:"messages"`
		Counts   chatagg.Counts           `json:"counts"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Messages) != 1 || body.Counts.HouseAuthors != 1 {
		t.Errorf("messages = %d, house authors = %d", len(body.Messages), body.Counts.HouseAuthors)
	}

	// Settings round trip; over-large visible cap comes back clamped.
	resp = doJSON(t, mux, http.MethodPut, "/chat/settings", `{"mode":"arrival","visible_cap":999,"scroll_cap":200}`, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("PUT /chat/settings = %d", resp.Code)
	}
	var settings chatagg.Settings
	_ = json.Unmarshal(resp.Body.Bytes(), &settings)
	if settings.VisibleCap != 200 {
		t.Errorf("visible cap = %d, want clamped 200", settings.VisibleCap)
	}
	if settings.Mode != chatagg.SortArrival {
		t.Errorf("mode = %q", settings.Mode)
	}

	resp = doJSON(t, mux, http.MethodGet, "/chat/settings", "", nil)
	_ = json.Unmarshal(resp.Body.Bytes(), &settings)
	if settings.ScrollCap != 200 {
		t.Errorf("persisted scroll cap = %d", settings.ScrollCap)
	}
}

func TestStreamersAdminAuth(t *testing.T) {
	var changed []registry.Streamer
	mux := newTestMux(t, Options{
		AdminToken:         "sekrit",
		OnStreamersChanged: func(list []registry.Streamer) { changed = list },
	})

	resp := doJSON(t, mux, http.MethodGet, "/streamers", "", nil)
	if resp.Code != http.StatusOK {
		t.Errorf("GET /streamers = %d, want open read", resp.Code)
	}

	body := `[{"id":"destiny","nickname":"Destiny","platforms":{"twitch":"destiny"}}]`
	resp = doJSON(t, mux, http.MethodPut, "/streamers", body, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("PUT without token = %d, want 401", resp.Code)
	}

	resp = doJSON(t, mux, http.MethodPut, "/streamers", body, map[string]string{"X-Admin-Token": "sekrit"})
	if resp.Code != http.StatusOK {
		t.Fatalf("PUT with token = %d: %s", resp.Code, resp.Body.String())
	}
	if len(changed) != 1 || changed[0].ID != "destiny" {
		t.Errorf("OnStreamersChanged got %+v", changed)
	}

	resp = doJSON(t, mux, http.MethodPut, "/streamers", `[{"nickname":"anon"}]`, map[string]string{"X-Admin-Token": "sekrit"})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("PUT without id = %d, want 400", resp.Code)
	}
}

func TestRateLimiterBlocksBursts(t *testing.T) {
	cfg := &rateLimiterConfig{enabled: true, requestsPerIP: 2, window: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := newIPRateLimiter(ctx, cfg)

	if !rl.allow("1.2.3.4") || !rl.allow("1.2.3.4") {
		t.Fatal("first requests should pass")
	}
	if rl.allow("1.2.3.4") {
		t.Error("third request within window should be blocked")
	}
	if !rl.allow("5.6.7.8") {
		t.Error("other IPs unaffected")
	}
}
