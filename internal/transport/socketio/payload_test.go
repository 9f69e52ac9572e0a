package socketio

import (
	"testing"

	"github.com/edumarques81/stellar-stream-client/internal/domain/lifecycle"
)

func TestTrackArg(t *testing.T) {
	tests := []struct {
		name    string
		arg     any
		wantErr bool
		title   string
		id      string
	}{
		{name: "bare track", arg: map[string]any{"title": "Song", "artistName": "Artist"}, title: "Song"},
		{name: "wrapped track", arg: map[string]any{"track": map[string]any{"id": "t-1", "title": "Song", "artistName": "A"}}, title: "Song", id: "t-1"},
		{name: "id only", arg: map[string]any{"id": "t-2"}, id: "t-2"},
		{name: "missing artist", arg: map[string]any{"title": "Song"}, wantErr: true},
		{name: "nil", arg: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := trackArg([]any{tt.arg})
			if (err != nil) != tt.wantErr {
				t.Fatalf("trackArg error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Title != tt.title || got.ID != tt.id {
				t.Errorf("unexpected track %+v", got)
			}
		})
	}
}

func TestTracksArg(t *testing.T) {
	a := map[string]any{"title": "A", "artistName": "X"}
	b := map[string]any{"title": "B", "artistName": "Y"}

	list, err := tracksArg([]any{[]any{a, b}})
	if err != nil || len(list) != 2 {
		t.Errorf("list: got %v, %v", list, err)
	}

	wrapped, err := tracksArg([]any{map[string]any{"tracks": []any{a}}})
	if err != nil || len(wrapped) != 1 || wrapped[0].Title != "A" {
		t.Errorf("wrapped: got %v, %v", wrapped, err)
	}

	single, err := tracksArg([]any{b})
	if err != nil || len(single) != 1 || single[0].Title != "B" {
		t.Errorf("single: got %v, %v", single, err)
	}

	if _, err := tracksArg([]any{[]any{a, map[string]any{"title": "no artist"}}}); err == nil {
		t.Error("expected an invalid entry to reject the list")
	}
}

func TestScalarArgs(t *testing.T) {
	if n, err := numberArg([]any{float64(42)}); err != nil || n != 42 {
		t.Errorf("number: %v, %v", n, err)
	}
	if n, err := numberArg([]any{map[string]any{"value": float64(7)}}); err != nil || n != 7 {
		t.Errorf("wrapped number: %v, %v", n, err)
	}
	if _, err := numberArg([]any{"loud"}); err == nil {
		t.Error("expected error for a string volume")
	}
	if b, err := boolArg([]any{map[string]any{"value": true}}); err != nil || !b {
		t.Errorf("bool: %v, %v", b, err)
	}
	if s, err := stringArg([]any{"flac"}); err != nil || s != "flac" {
		t.Errorf("string: %v, %v", s, err)
	}
	if _, err := boolArg(nil); err == nil {
		t.Error("expected error without payload")
	}
	if i, err := indexArg([]any{map[string]any{"index": float64(3)}}); err != nil || i != 3 {
		t.Errorf("index: %v, %v", i, err)
	}
}

func TestSeekArg(t *testing.T) {
	req, err := seekArg([]any{float64(50)})
	if err != nil || req.Percent == nil || *req.Percent != 50 {
		t.Errorf("percent: %+v, %v", req, err)
	}

	req, err = seekArg([]any{map[string]any{"seconds": float64(90)}})
	if err != nil || req.Seconds == nil || *req.Seconds != 90 {
		t.Errorf("seconds: %+v, %v", req, err)
	}

	if _, err := seekArg([]any{map[string]any{}}); err == nil {
		t.Error("expected error for an empty seek")
	}
}

func TestVisibilityArg(t *testing.T) {
	tests := []struct {
		arg  any
		want lifecycle.Visibility
		ok   bool
	}{
		{"hidden", lifecycle.VisibilityHidden, true},
		{map[string]any{"state": "visible"}, lifecycle.VisibilityVisible, true},
		{map[string]any{"hidden": true}, lifecycle.VisibilityHidden, true},
		{map[string]any{"hidden": false}, lifecycle.VisibilityVisible, true},
		{"prerender", "", false},
	}

	for _, tt := range tests {
		got, err := visibilityArg([]any{tt.arg})
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("visibilityArg(%v) = %q, %v", tt.arg, got, err)
		}
	}
}

func TestActionArg(t *testing.T) {
	d, err := actionArg([]any{"nexttrack"})
	if err != nil || d.Action != lifecycle.ActionNextTrack {
		t.Errorf("bare action: %+v, %v", d, err)
	}

	d, err = actionArg([]any{map[string]any{"action": "seekbackward", "seekOffset": float64(15)}})
	if err != nil || d.Action != lifecycle.ActionSeekBackward || d.SeekOffset != 15 {
		t.Errorf("detailed action: %+v, %v", d, err)
	}

	if _, err := actionArg([]any{map[string]any{}}); err == nil {
		t.Error("expected error for a nameless action")
	}
}
