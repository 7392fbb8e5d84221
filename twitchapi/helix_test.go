package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"
)

func staticToken() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"})
}

func TestCheckLiveReportsLiveStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/streams" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.URL.Query().Get("user_login"); got != "destiny" {
			t.Errorf("user_login = %q, want destiny", got)
		}
		if got := r.Header.Get("Client-Id"); got != "test-client-id" {
			t.Errorf("Client-Id = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{
				"type":          "live",
				"title":         "Big Stream",
				"viewer_count":  1234,
				"thumbnail_url": "https://cdn.example/{width}x{height}.jpg",
			}},
		})
	}))
	defer server.Close()

	c := &Client{ClientID: "test-client-id", TokenSource: staticToken(), BaseURL: server.URL}
	rec, err := c.CheckLive(context.Background(), "destiny")
	if err != nil {
		t.Fatalf("CheckLive() error = %v", err)
	}
	if rec == nil {
		t.Fatal("CheckLive() = nil, want live record")
	}
	if rec.Key != "twitch:destiny" {
		t.Errorf("key = %q, want twitch:destiny", rec.Key)
	}
	if rec.Title != "Big Stream" || rec.Viewers != 1234 || !rec.HasViewers {
		t.Errorf("record = %+v, want title + reported viewers", rec)
	}
	if rec.Thumbnail != "https://cdn.example/320x180.jpg" {
		t.Errorf("thumbnail = %q, want placeholders filled", rec.Thumbnail)
	}
}

func TestCheckLiveOffline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
	}))
	defer server.Close()

	c := &Client{ClientID: "id", TokenSource: staticToken(), BaseURL: server.URL}
	rec, err := c.CheckLive(context.Background(), "offline")
	if err != nil {
		t.Fatalf("CheckLive() error = %v", err)
	}
	if rec != nil {
		t.Errorf("record = %+v, want nil for confirmed offline", rec)
	}
}

func TestCheckLiveIgnoresNonLiveEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"type": "rerun", "title": "Old"}},
		})
	}))
	defer server.Close()

	c := &Client{ClientID: "id", TokenSource: staticToken(), BaseURL: server.URL}
	rec, err := c.CheckLive(context.Background(), "rerunchannel")
	if err != nil {
		t.Fatalf("CheckLive() error = %v", err)
	}
	if rec != nil {
		t.Error("rerun entry treated as live")
	}
}

func TestCheckLive5xxRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"type": "live", "title": "Recovered"}},
		})
	}))
	defer server.Close()

	c := &Client{ClientID: "id", TokenSource: staticToken(), BaseURL: server.URL}
	rec, err := c.CheckLive(context.Background(), "flaky")
	if err != nil {
		t.Fatalf("CheckLive() error = %v", err)
	}
	if rec == nil || rec.Title != "Recovered" {
		t.Fatalf("record = %+v, want recovered live record", rec)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestCheckLiveClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := &Client{ClientID: "id", TokenSource: staticToken(), BaseURL: server.URL}
	if _, err := c.CheckLive(context.Background(), "someone"); err == nil {
		t.Fatal("expected error on 401")
	}
}

func TestCheckLiveEmptyLogin(t *testing.T) {
	c := &Client{ClientID: "id", TokenSource: staticToken()}
	if _, err := c.CheckLive(context.Background(), ""); err == nil {
		t.Fatal("expected error on empty login")
	}
}
