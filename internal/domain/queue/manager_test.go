package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/edumarques81/stellar-stream-client/internal/domain/queue"
	"github.com/edumarques81/stellar-stream-client/internal/domain/track"
)

type fakeSimilar struct {
	calls  int32
	tracks []track.Track
	err    error
	gate   chan struct{}
}

func (f *fakeSimilar) SimilarTracks(ctx context.Context, id string) ([]track.Track, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.tracks, nil
}

type fakeResolver struct {
	mu    sync.Mutex
	calls int32
	fails int // number of initial calls that fail
	gate  chan struct{}
}

func (f *fakeResolver) Resolve(ctx context.Context, t track.Track) (track.Track, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	fail := int(n) <= f.fails
	f.mu.Unlock()
	if fail {
		return track.Track{}, errors.New("prepare failed")
	}
	t.ID = "id-" + t.Title
	return t, nil
}

func song(title string) track.Track {
	return track.Track{Title: title, ArtistName: "Artist", AlbumName: "Album"}
}

func resolved(title string) track.Track {
	t := song(title)
	t.ID = "id-" + title
	return t
}

func sweep(m *queue.Manager, t track.Track, from, to, step float64) {
	for p := from; p <= to; p += step {
		m.Progress(t, p)
	}
}

func TestFIFOOrder(t *testing.T) {
	m := queue.NewManager(&fakeSimilar{}, &fakeResolver{})
	defer m.Close()

	var titles []string
	for i := 0; i < 5; i++ {
		title := fmt.Sprintf("t%d", i)
		titles = append(titles, title)
		m.Add(song(title))
	}

	for i, want := range titles {
		got, ok := m.Next(context.Background())
		if !ok {
			t.Fatalf("expected track %d", i)
		}
		if got.Title != want {
			t.Errorf("position %d: expected %s, got %s", i, want, got.Title)
		}
	}

	if _, ok := m.Next(context.Background()); ok {
		t.Error("expected empty queue")
	}
}

func TestThresholdActionsFireOncePerPlaythrough(t *testing.T) {
	similar := &fakeSimilar{tracks: []track.Track{song("y"), song("z")}}
	resolver := &fakeResolver{}
	m := queue.NewManager(similar, resolver)
	defer m.Close()

	x := resolved("x")
	m.TrackStarted(x)

	sweep(m, x, 0, 50, 0.25)
	m.Wait()
	sweep(m, x, 50.25, 100, 0.25)
	m.Wait()

	if calls := atomic.LoadInt32(&similar.calls); calls != 1 {
		t.Errorf("expected 1 lookahead fetch, got %d", calls)
	}
	if calls := atomic.LoadInt32(&resolver.calls); calls != 1 {
		t.Errorf("expected 1 pre-resolution, got %d", calls)
	}

	prepared, ok := m.Prepared()
	if !ok || prepared.Title != "y" || !prepared.IsResolved() {
		t.Errorf("expected resolved y prepared, got %+v", prepared)
	}

	tracks := m.Tracks()
	if len(tracks) != 2 || tracks[0].ID != "id-y" {
		t.Errorf("expected head patched in place, got %+v", tracks)
	}

	t.Run("next playthrough re-arms", func(t *testing.T) {
		y, _ := m.Next(context.Background())
		m.TrackStarted(y)
		sweep(m, y, 0, 100, 1)
		m.Wait()

		// queue is not empty, so no new fetch; z gets prepared
		if calls := atomic.LoadInt32(&similar.calls); calls != 1 {
			t.Errorf("expected no extra fetch, got %d", calls)
		}
		if calls := atomic.LoadInt32(&resolver.calls); calls != 2 {
			t.Errorf("expected z to be prepared, got %d resolutions", calls)
		}
	})
}

func TestSingleFlightWhileInProgress(t *testing.T) {
	gate := make(chan struct{})
	similar := &fakeSimilar{tracks: []track.Track{song("y")}, gate: gate}
	m := queue.NewManager(similar, &fakeResolver{})
	defer m.Close()

	x := resolved("x")
	m.TrackStarted(x)
	for _, p := range []float64{10, 10.2, 10.5, 10.9} {
		m.Progress(x, p)
	}
	// seeking back and crossing again while the fetch is outstanding
	m.Progress(x, 5)
	m.Progress(x, 12)

	close(gate)
	m.Wait()

	if calls := atomic.LoadInt32(&similar.calls); calls != 1 {
		t.Errorf("expected 1 fetch, got %d", calls)
	}
}

func TestCoarseTicksStillCross(t *testing.T) {
	similar := &fakeSimilar{tracks: []track.Track{song("y")}}
	resolver := &fakeResolver{}
	m := queue.NewManager(similar, resolver)
	defer m.Close()

	x := resolved("x")
	m.TrackStarted(x)
	m.Progress(x, 0)
	m.Progress(x, 33)
	m.Wait()
	m.Progress(x, 66)
	m.Wait()

	if atomic.LoadInt32(&similar.calls) != 1 || atomic.LoadInt32(&resolver.calls) != 1 {
		t.Errorf("expected both actions to fire once, got fetch=%d resolve=%d", similar.calls, resolver.calls)
	}
}

func TestFailureClearsGuard(t *testing.T) {
	t.Run("prepare", func(t *testing.T) {
		resolver := &fakeResolver{fails: 1}
		m := queue.NewManager(&fakeSimilar{}, resolver)
		defer m.Close()

		x := resolved("x")
		m.Add(song("y"))
		m.TrackStarted(x)

		m.Progress(x, 60)
		m.Wait()
		if _, ok := m.Prepared(); ok {
			t.Fatal("expected nothing prepared after failure")
		}

		m.Progress(x, 40)
		m.Progress(x, 60.5)
		m.Wait()

		if calls := atomic.LoadInt32(&resolver.calls); calls != 2 {
			t.Errorf("expected a retry, got %d calls", calls)
		}
		if _, ok := m.Prepared(); !ok {
			t.Error("expected retry to prepare the head")
		}
	})

	t.Run("lookahead", func(t *testing.T) {
		similar := &fakeSimilar{err: errors.New("offline")}
		m := queue.NewManager(similar, &fakeResolver{})
		defer m.Close()

		x := resolved("x")
		m.TrackStarted(x)
		m.Progress(x, 10)
		m.Wait()

		if m.Len() != 0 {
			t.Error("failed fetch should leave the queue empty")
		}

		similar.err = nil
		similar.tracks = []track.Track{song("y")}
		m.Progress(x, 5)
		m.Progress(x, 10)
		m.Wait()

		if m.Len() != 1 {
			t.Errorf("expected retry to fill the queue, got %d", m.Len())
		}
	})
}

// seededSimilar names its results after the seed so stale fills are visible.
type seededSimilar struct {
	calls int32
	gate  chan struct{}
}

func (f *seededSimilar) SimilarTracks(ctx context.Context, id string) ([]track.Track, error) {
	atomic.AddInt32(&f.calls, 1)
	<-f.gate
	return []track.Track{song(id + "-sim1"), song(id + "-sim2")}, nil
}

func TestResultsAfterTrackChange(t *testing.T) {
	t.Run("lookahead", func(t *testing.T) {
		similar := &seededSimilar{gate: make(chan struct{})}
		m := queue.NewManager(similar, &fakeResolver{})
		defer m.Close()

		x := resolved("x")
		m.TrackStarted(x)
		m.Progress(x, 10.5)

		w := resolved("w")
		m.TrackStarted(w)
		m.Progress(w, 10.5)

		close(similar.gate)
		m.Wait()

		if calls := atomic.LoadInt32(&similar.calls); calls != 2 {
			t.Fatalf("expected the new track to fetch its own lookahead, got %d fetches", calls)
		}
		tracks := m.Tracks()
		if len(tracks) != 2 || tracks[0].Title != "id-w-sim1" {
			t.Fatalf("expected w's similar tracks, got %+v", tracks)
		}

		m.Clear()
		sweep(m, w, 11, 100, 1)
		m.Wait()
		if calls := atomic.LoadInt32(&similar.calls); calls != 2 {
			t.Errorf("expected one fetch per playthrough, got %d", calls)
		}
	})

	t.Run("stale lookahead is dropped", func(t *testing.T) {
		similar := &seededSimilar{gate: make(chan struct{})}
		m := queue.NewManager(similar, &fakeResolver{})
		defer m.Close()

		x := resolved("x")
		m.TrackStarted(x)
		m.Progress(x, 10.5)
		m.TrackStarted(resolved("w"))

		close(similar.gate)
		m.Wait()

		if m.Len() != 0 {
			t.Errorf("expected x's lookahead discarded, got %+v", m.Tracks())
		}
	})

	t.Run("prepare", func(t *testing.T) {
		resolver := &fakeResolver{gate: make(chan struct{})}
		m := queue.NewManager(&fakeSimilar{}, resolver)
		defer m.Close()

		m.Add(song("y"))
		x := resolved("x")
		m.TrackStarted(x)
		m.Progress(x, 60)

		w := resolved("w")
		m.TrackStarted(w)
		close(resolver.gate)
		m.Wait()

		if _, ok := m.Prepared(); ok {
			t.Fatal("expected x's pre-resolution discarded")
		}
		if tracks := m.Tracks(); len(tracks) != 1 || tracks[0].IsResolved() {
			t.Fatalf("queue should be untouched, got %+v", tracks)
		}

		sweep(m, w, 0, 100, 1)
		m.Wait()

		if calls := atomic.LoadInt32(&resolver.calls); calls != 2 {
			t.Errorf("expected w to prepare the head itself, got %d resolutions", calls)
		}
		if p, ok := m.Prepared(); !ok || p.Title != "y" {
			t.Errorf("expected y prepared, got %+v", p)
		}
	})
}

func TestUnresolvedCurrentSkipsFill(t *testing.T) {
	similar := &fakeSimilar{tracks: []track.Track{song("y")}}
	m := queue.NewManager(similar, &fakeResolver{})
	defer m.Close()

	x := song("x")
	m.TrackStarted(x)
	sweep(m, x, 0, 20, 1)
	m.Wait()

	if calls := atomic.LoadInt32(&similar.calls); calls != 0 {
		t.Errorf("expected no fetch without a resolved id, got %d", calls)
	}
}

func TestFillExcludesCurrentAndDuplicates(t *testing.T) {
	similar := &fakeSimilar{tracks: []track.Track{song("x"), song("y"), song("y"), song("z")}}
	m := queue.NewManager(similar, &fakeResolver{})
	defer m.Close()

	m.TrackStarted(resolved("x"))
	if err := m.FillQueue(context.Background()); err != nil {
		t.Fatal(err)
	}

	tracks := m.Tracks()
	if len(tracks) != 2 || tracks[0].Title != "y" || tracks[1].Title != "z" {
		t.Errorf("expected [y z], got %+v", tracks)
	}
}

func TestFillQueue(t *testing.T) {
	t.Run("requires a current track", func(t *testing.T) {
		m := queue.NewManager(&fakeSimilar{}, &fakeResolver{})
		defer m.Close()

		if err := m.FillQueue(context.Background()); !errors.Is(err, queue.ErrNoCurrentTrack) {
			t.Errorf("expected ErrNoCurrentTrack, got %v", err)
		}
	})

	t.Run("replaces the queue outright", func(t *testing.T) {
		similar := &fakeSimilar{tracks: []track.Track{song("s1"), song("s2")}}
		m := queue.NewManager(similar, &fakeResolver{})
		defer m.Close()

		m.Add(song("a"), song("b"), song("c"))
		m.TrackStarted(resolved("x"))
		if err := m.FillQueue(context.Background()); err != nil {
			t.Fatal(err)
		}
		if tracks := m.Tracks(); len(tracks) != 2 || tracks[0].Title != "s1" {
			t.Errorf("expected similar tracks, got %+v", tracks)
		}
	})

	t.Run("returns fetch errors", func(t *testing.T) {
		m := queue.NewManager(&fakeSimilar{err: errors.New("boom")}, &fakeResolver{})
		defer m.Close()

		m.TrackStarted(resolved("x"))
		var fetchErr *queue.LookaheadFetchError
		if err := m.FillQueue(context.Background()); !errors.As(err, &fetchErr) {
			t.Errorf("expected LookaheadFetchError, got %v", err)
		}
	})
}

func prepareHead(t *testing.T, m *queue.Manager) {
	t.Helper()
	x := resolved("x")
	m.TrackStarted(x)
	m.Progress(x, 60)
	m.Wait()
	if _, ok := m.Prepared(); !ok {
		t.Fatal("expected head to be prepared")
	}
}

func TestPreparedInvalidation(t *testing.T) {
	reverse := func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}

	tests := []struct {
		name   string
		mutate func(m *queue.Manager)
	}{
		{"set queue", func(m *queue.Manager) { m.SetQueue([]track.Track{song("y"), song("z")}) }},
		{"clear", func(m *queue.Manager) { m.Clear() }},
		{"shuffle", func(m *queue.Manager) { m.Shuffle() }},
		{"remove head", func(m *queue.Manager) { _ = m.Remove(0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := queue.NewManager(&fakeSimilar{}, &fakeResolver{}, queue.WithShuffle(reverse))
			defer m.Close()

			m.Add(song("y"), song("z"))
			prepareHead(t, m)

			tt.mutate(m)
			if _, ok := m.Prepared(); ok {
				t.Error("expected prepared slot to be cleared")
			}
		})
	}

	t.Run("add keeps prepared head", func(t *testing.T) {
		m := queue.NewManager(&fakeSimilar{}, &fakeResolver{})
		defer m.Close()

		m.Add(song("y"))
		prepareHead(t, m)
		m.Add(song("z"))

		if p, ok := m.Prepared(); !ok || p.Title != "y" {
			t.Error("appending should not invalidate the prepared head")
		}
	})
}

func TestPrepareDiscardedWhenHeadChanges(t *testing.T) {
	gate := make(chan struct{})
	resolver := &fakeResolver{gate: gate}
	m := queue.NewManager(&fakeSimilar{}, resolver)
	defer m.Close()

	m.Add(song("y"))
	x := resolved("x")
	m.TrackStarted(x)
	m.Progress(x, 60)

	m.SetQueue([]track.Track{song("other")})
	close(gate)
	m.Wait()

	if _, ok := m.Prepared(); ok {
		t.Error("stale resolution should not be cached")
	}
	tracks := m.Tracks()
	if len(tracks) != 1 || tracks[0].Title != "other" || tracks[0].IsResolved() {
		t.Errorf("queue should be untouched, got %+v", tracks)
	}
}

func TestNextPrefersPrepared(t *testing.T) {
	m := queue.NewManager(&fakeSimilar{}, &fakeResolver{})
	defer m.Close()

	m.Add(song("y"), song("z"))
	prepareHead(t, m)

	next, ok := m.Next(context.Background())
	if !ok || next.ID != "id-y" {
		t.Errorf("expected prepared y, got %+v", next)
	}
	if _, ok := m.Prepared(); ok {
		t.Error("prepared slot should be consumed")
	}

	raw, ok := m.Next(context.Background())
	if !ok || raw.Title != "z" || raw.IsResolved() {
		t.Errorf("expected raw z, got %+v", raw)
	}
}

func TestAtMostOnePrepared(t *testing.T) {
	m := queue.NewManager(&fakeSimilar{}, &fakeResolver{})
	defer m.Close()

	for i := 0; i < 4; i++ {
		m.Add(song(fmt.Sprintf("t%d", i)))
	}

	for i := 0; i < 4; i++ {
		cur := resolved(fmt.Sprintf("cur%d", i))
		m.TrackStarted(cur)
		sweep(m, cur, 0, 100, 5)
		m.Wait()

		prepared := 0
		for _, tr := range m.Tracks() {
			if tr.IsResolved() {
				prepared++
			}
		}
		if prepared > 1 {
			t.Fatalf("round %d: %d resolved entries in queue", i, prepared)
		}

		next, ok := m.Next(context.Background())
		if !ok || next.Title != fmt.Sprintf("t%d", i) {
			t.Fatalf("round %d: expected t%d, got %+v", i, i, next)
		}
	}
}

func TestRemoveOutOfRange(t *testing.T) {
	m := queue.NewManager(&fakeSimilar{}, &fakeResolver{})
	defer m.Close()

	if err := m.Remove(0); err == nil {
		t.Error("expected error removing from empty queue")
	}
}

func TestSubscribe(t *testing.T) {
	m := queue.NewManager(&fakeSimilar{}, &fakeResolver{})
	defer m.Close()

	ch := m.Subscribe()
	m.Add(song("a"))

	snapshot := <-ch
	if len(snapshot) != 1 || snapshot[0].Title != "a" {
		t.Errorf("unexpected snapshot %+v", snapshot)
	}
}

func TestThresholdCrossed(t *testing.T) {
	th := queue.Threshold{At: 10, Window: 1}

	tests := []struct {
		prev, cur float64
		want      bool
	}{
		{9.5, 10, true},
		{10, 10.5, true},
		{9, 9.9, false},
		{5, 40, true},
		{11, 12, false},
		{40, 50, false},
	}
	for _, tt := range tests {
		if got := th.Crossed(tt.prev, tt.cur); got != tt.want {
			t.Errorf("Crossed(%v, %v): expected %v, got %v", tt.prev, tt.cur, tt.want, got)
		}
	}
}
