package api_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edumarques81/stellar-stream-client/internal/domain/track"
	"github.com/edumarques81/stellar-stream-client/internal/infra/api"
)

func writeEvents(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, ev := range events {
		fmt.Fprintf(w, "data: %s\n\n", ev)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func collect(t *testing.T, ch <-chan track.DownloadStatus) []track.DownloadStatus {
	t.Helper()
	var out []track.DownloadStatus
	timeout := time.After(5 * time.Second)
	for {
		select {
		case st, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, st)
		case <-timeout:
			t.Fatal("timed out waiting for progress channel to close")
			return out
		}
	}
}

func TestSubscribeDownloadProgress(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tracks/t-1/progress" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if q := r.URL.Query().Get("quality"); q != "flac" {
			t.Errorf("unexpected quality %q", q)
		}
		if a := r.Header.Get("Accept"); a != "text/event-stream" {
			t.Errorf("unexpected Accept %q", a)
		}
		fmt.Fprint(w, ": heartbeat\n\n")
		writeEvents(w,
			`{"status":"searching","progress":0}`,
			`not json`,
			`{"status":"downloading","progress":50}`,
			`{"status":"ready","progress":100,"quality":"flac","fileSize":1024}`,
			`{"status":"downloading","progress":1}`,
		)
	})

	ch, err := newClient(t, h).SubscribeDownloadProgress(context.Background(), "t-1", track.QualityFLAC)
	if err != nil {
		t.Fatalf("SubscribeDownloadProgress: %v", err)
	}

	got := collect(t, ch)
	if len(got) != 3 {
		t.Fatalf("expected 3 statuses, got %d: %+v", len(got), got)
	}
	want := []track.DownloadState{track.DownloadSearching, track.DownloadDownloading, track.DownloadReady}
	for i, st := range got {
		if st.Status != want[i] {
			t.Errorf("status %d: expected %s, got %s", i, want[i], st.Status)
		}
		if st.TrackID != "t-1" {
			t.Errorf("status %d: expected track id filled, got %q", i, st.TrackID)
		}
	}
	if got[2].FileSize != 1024 {
		t.Errorf("expected file size 1024, got %d", got[2].FileSize)
	}
}

func TestSubscribeDownloadProgressReconnects(t *testing.T) {
	var conns atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if conns.Add(1) == 1 {
			writeEvents(w, `{"status":"downloading","progress":30}`)
			return
		}
		writeEvents(w, `{"status":"ready","progress":100}`)
	})

	ch, err := newClient(t, h).SubscribeDownloadProgress(context.Background(), "t-1", "")
	if err != nil {
		t.Fatalf("SubscribeDownloadProgress: %v", err)
	}

	got := collect(t, ch)
	if len(got) != 2 || got[1].Status != track.DownloadReady {
		t.Fatalf("unexpected statuses %+v", got)
	}
	if conns.Load() != 2 {
		t.Errorf("expected 2 connections, got %d", conns.Load())
	}
}

func TestSubscribeDownloadProgressGivesUp(t *testing.T) {
	var conns atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conns.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	ch, err := newClient(t, h, api.WithMaxRetries(2)).SubscribeDownloadProgress(context.Background(), "t-1", "")
	if err != nil {
		t.Fatalf("SubscribeDownloadProgress: %v", err)
	}

	got := collect(t, ch)
	if len(got) != 1 || got[0].Status != track.DownloadFailed || got[0].Error == "" {
		t.Fatalf("expected a single failed status, got %+v", got)
	}
	if conns.Load() != 3 {
		t.Errorf("expected 3 connection attempts, got %d", conns.Load())
	}
}

func TestSubscribeDownloadProgressNotFound(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := newClient(t, h).SubscribeDownloadProgress(context.Background(), "missing", "")
	if !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolverWaitsForDownload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tracks/prepare", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"track":{"id":"t-9","title":"Song","artistName":"Artist","albumCover":"http://img/c.jpg"},"downloadStatus":{"status":"searching"}}`)
	})
	mux.HandleFunc("/api/tracks/t-9/progress", func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w, `{"status":"downloading","progress":60}`, `{"status":"ready","progress":100}`)
	})

	c := newClient(t, mux)
	var seen atomic.Int32
	r := track.NewResolver(c,
		track.WithProgressSubscriber(c),
		track.WithProgressObserver(func(track.DownloadStatus) { seen.Add(1) }),
	)

	got, err := r.Resolve(context.Background(), track.Track{Title: "Song", ArtistName: "Artist"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != "t-9" || got.AlbumCover != "http://img/c.jpg" {
		t.Errorf("unexpected resolved track %+v", got)
	}
	if seen.Load() != 2 {
		t.Errorf("expected 2 observed statuses, got %d", seen.Load())
	}
}
