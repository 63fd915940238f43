package unsplash

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestSearchPhoto(t *testing.T) {
	var tracked atomic.Bool
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Client-ID key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/search/photos":
			if r.URL.Query().Get("query") != "mountain sunrise" || r.URL.Query().Get("orientation") != "landscape" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"results":[{"id":"abc",
				"urls":{"raw":"https://images.example.com/photo?ixid=1","regular":"https://images.example.com/regular"},
				"links":{"html":"https://unsplash.com/photos/abc","download_location":"` + server.URL + `/photos/abc/download"},
				"user":{"name":"Jane Doe","links":{"html":"https://unsplash.com/@jane"}}}]}`))
		case "/photos/abc/download":
			tracked.Store(true)
			_, _ = w.Write([]byte(`{"url":"x"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "key", time.Second)
	photo, err := client.SearchPhoto(context.Background(), "mountain sunrise", 1280, 720)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if photo.PhotographerName != "Jane Doe" || photo.PageURL != "https://unsplash.com/photos/abc" {
		t.Fatalf("unexpected attribution %+v", photo)
	}
	if !strings.Contains(photo.URL, "w=1280") || !strings.Contains(photo.URL, "h=720") || !strings.Contains(photo.URL, "ixid=1") {
		t.Fatalf("expected sized raw url, got %s", photo.URL)
	}

	if err := client.TrackDownload(context.Background(), photo.DownloadLocation); err != nil {
		t.Fatalf("track: %v", err)
	}
	if !tracked.Load() {
		t.Fatal("expected download to be tracked")
	}
}

func TestSearchNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	t.Cleanup(server.Close)

	_, err := NewClient(server.URL, "key", time.Second).SearchPhoto(context.Background(), "nothing", 100, 100)
	if !errors.Is(err, ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got %v", err)
	}
}

func TestNotConfigured(t *testing.T) {
	if _, err := NewClient("", "", time.Second).SearchPhoto(context.Background(), "q", 1, 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
