// Package queue manages upcoming tracks and keeps the next one ready before
// the current one ends.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-stream-client/internal/domain/track"
	"github.com/edumarques81/stellar-stream-client/internal/event"
)

// ErrNoCurrentTrack is returned by FillQueue when nothing resolved is playing.
var ErrNoCurrentTrack = errors.New("no resolved current track")

// LookaheadFetchError wraps a failed similar-tracks lookup.
type LookaheadFetchError struct {
	TrackID string
	Err     error
}

func (e *LookaheadFetchError) Error() string {
	return fmt.Sprintf("lookahead fetch for %s: %v", e.TrackID, e.Err)
}

func (e *LookaheadFetchError) Unwrap() error {
	return e.Err
}

// PrepareNextError wraps a failed pre-resolution of the queue head.
type PrepareNextError struct {
	Track track.Track
	Err   error
}

func (e *PrepareNextError) Error() string {
	return fmt.Sprintf("prepare next %q: %v", e.Track.String(), e.Err)
}

func (e *PrepareNextError) Unwrap() error {
	return e.Err
}

// SimilarFetcher looks up tracks similar to a resolved one.
type SimilarFetcher interface {
	SimilarTracks(ctx context.Context, trackID string) ([]track.Track, error)
}

// Resolver turns an unresolved track into a playable one.
type Resolver interface {
	Resolve(ctx context.Context, t track.Track) (track.Track, error)
}

// Config holds the progress bands of the background actions.
type Config struct {
	Fill    Threshold
	Prepare Threshold
}

// DefaultConfig fills the queue at 10% and prepares the next track at 60%.
func DefaultConfig() Config {
	return Config{
		Fill:    Threshold{At: 10, Window: 1},
		Prepare: Threshold{At: 60, Window: 1},
	}
}

// Manager owns the ordered upcoming list and the prepared-next slot.
type Manager struct {
	similar  SimilarFetcher
	resolver Resolver
	cfg      Config
	shuffle  func(n int, swap func(i, j int))

	mu          sync.Mutex
	queue       []track.Track
	prepared    *track.Track
	current     *track.Track
	last        float64
	playthrough uint64
	fill        action
	prepare     action

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	changes event.Emitter[[]track.Track]
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig overrides the thresholds.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.cfg = cfg
	}
}

// WithShuffle replaces the shuffle source.
func WithShuffle(fn func(n int, swap func(i, j int))) Option {
	return func(m *Manager) {
		m.shuffle = fn
	}
}

// NewManager creates a queue manager.
func NewManager(similar SimilarFetcher, resolver Resolver, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		similar:  similar,
		resolver: resolver,
		cfg:      DefaultConfig(),
		shuffle:  rand.Shuffle,
		ctx:      ctx,
		cancel:   cancel,
	}
	m.changes.Name = "queue"

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe returns a channel receiving a queue snapshot after every change.
func (m *Manager) Subscribe() <-chan []track.Track {
	return m.changes.Listen()
}

// Unsubscribe stops delivery to ch.
func (m *Manager) Unsubscribe(ch <-chan []track.Track) {
	m.changes.Unlisten(ch)
}

// notifyLocked publishes a snapshot. Caller holds mu.
func (m *Manager) notifyLocked() {
	m.changes.Emit(append([]track.Track(nil), m.queue...))
}

// Tracks returns a copy of the queue.
func (m *Manager) Tracks() []track.Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]track.Track(nil), m.queue...)
}

// Len returns the queue length.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Prepared returns the prepared-next track, if any.
func (m *Manager) Prepared() (track.Track, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.prepared == nil {
		return track.Track{}, false
	}
	return *m.prepared, true
}

// Add appends tracks to the end of the queue.
func (m *Manager) Add(tracks ...track.Track) {
	if len(tracks) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue = append(m.queue, tracks...)
	log.Debug().Int("added", len(tracks)).Int("length", len(m.queue)).Msg("Tracks queued")
	m.notifyLocked()
}

// SetQueue replaces the queue outright.
func (m *Manager) SetQueue(tracks []track.Track) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue = append([]track.Track(nil), tracks...)
	m.prepared = nil
	log.Debug().Int("length", len(m.queue)).Msg("Queue replaced")
	m.notifyLocked()
}

// Clear empties the queue.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue = nil
	m.prepared = nil
	m.notifyLocked()
}

// Shuffle reorders the queue randomly.
func (m *Manager) Shuffle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shuffle(len(m.queue), func(i, j int) {
		m.queue[i], m.queue[j] = m.queue[j], m.queue[i]
	})
	m.prepared = nil
	m.notifyLocked()
}

// Remove deletes the entry at index i.
func (m *Manager) Remove(i int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i < 0 || i >= len(m.queue) {
		return fmt.Errorf("queue index %d out of range", i)
	}
	m.queue = append(m.queue[:i], m.queue[i+1:]...)
	if i == 0 {
		m.prepared = nil
	}
	m.notifyLocked()
	return nil
}

// Next pops the head of the queue. The prepared copy is returned when it
// matches the head; ok is false when the queue is empty.
func (m *Manager) Next(ctx context.Context) (track.Track, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return track.Track{}, false
	}

	head := m.queue[0]
	m.queue = m.queue[1:]
	if m.prepared != nil && m.prepared.SameAs(head) {
		head = *m.prepared
	}
	m.prepared = nil

	log.Debug().Str("track", head.String()).Bool("resolved", head.IsResolved()).Msg("Next from queue")
	m.notifyLocked()
	return head, true
}

// TrackStarted begins a new playthrough and re-arms the threshold actions.
func (m *Manager) TrackStarted(t track.Track) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = &t
	m.last = 0
	m.playthrough++
	m.fill.reset()
	m.prepare.reset()
	log.Debug().Str("track", t.String()).Uint64("playthrough", m.playthrough).Msg("Playthrough started")
}

// Progress evaluates the threshold bands for a progress tick of t.
func (m *Manager) Progress(t track.Track, percent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || !m.current.SameAs(t) {
		return
	}
	prev := m.last
	m.last = percent

	if m.fill.state == actionIdle && m.cfg.Fill.Crossed(prev, percent) &&
		len(m.queue) == 0 && m.current.IsResolved() {
		ctx := m.fill.start(m.ctx, m.playthrough)
		m.wg.Add(1)
		go m.runFill(ctx, m.playthrough, m.current.ID, *m.current)
	}

	if m.prepare.state == actionIdle && m.cfg.Prepare.Crossed(prev, percent) && len(m.queue) > 0 {
		head := m.queue[0]
		if !head.IsResolved() && (m.prepared == nil || !m.prepared.SameAs(head)) {
			ctx := m.prepare.start(m.ctx, m.playthrough)
			m.wg.Add(1)
			go m.runPrepare(ctx, m.playthrough, head)
		}
	}
}

func (m *Manager) runFill(ctx context.Context, playthrough uint64, id string, current track.Track) {
	defer m.wg.Done()

	tracks, err := m.similar.SimilarTracks(ctx, id)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.fill.finish(playthrough, err == nil) {
		log.Debug().Str("seed", current.String()).Msg("Track changed, discarding lookahead")
		return
	}
	if err != nil {
		log.Warn().Err(&LookaheadFetchError{TrackID: id, Err: err}).Msg("Lookahead fill failed")
		return
	}
	if len(m.queue) != 0 {
		log.Debug().Msg("Queue filled meanwhile, discarding lookahead")
		return
	}

	m.queue = withoutDuplicates(tracks, current)
	m.prepared = nil
	log.Info().Str("seed", current.String()).Int("tracks", len(m.queue)).Msg("Queue filled with similar tracks")
	m.notifyLocked()
}

func (m *Manager) runPrepare(ctx context.Context, playthrough uint64, head track.Track) {
	defer m.wg.Done()

	resolved, err := m.resolver.Resolve(ctx, head)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.prepare.finish(playthrough, err == nil) {
		log.Debug().Str("track", head.String()).Msg("Track changed, discarding prepared track")
		return
	}
	if err != nil {
		log.Warn().Err(&PrepareNextError{Track: head, Err: err}).Msg("Prepare next failed")
		return
	}

	// the head may have changed while resolving
	if len(m.queue) == 0 || !m.queue[0].SameAs(head) {
		log.Debug().Str("track", head.String()).Msg("Queue head changed, discarding prepared track")
		return
	}

	m.queue[0] = resolved
	m.prepared = &resolved
	log.Info().Str("track", resolved.String()).Str("id", resolved.ID).Msg("Next track prepared")
	m.notifyLocked()
}

// FillQueue replaces the queue with tracks similar to the current one.
func (m *Manager) FillQueue(ctx context.Context) error {
	m.mu.Lock()
	var current track.Track
	ok := m.current != nil && m.current.IsResolved()
	if ok {
		current = *m.current
	}
	m.mu.Unlock()

	if !ok {
		return ErrNoCurrentTrack
	}

	tracks, err := m.similar.SimilarTracks(ctx, current.ID)
	if err != nil {
		return &LookaheadFetchError{TrackID: current.ID, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue = withoutDuplicates(tracks, current)
	m.prepared = nil
	log.Info().Str("seed", current.String()).Int("tracks", len(m.queue)).Msg("Queue refilled")
	m.notifyLocked()
	return nil
}

// Wait blocks until running background actions return.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close cancels background actions and waits for them.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
	m.changes.Close()
}

// withoutDuplicates drops the seed track and repeated entries.
func withoutDuplicates(tracks []track.Track, seed track.Track) []track.Track {
	seen := map[string]bool{seed.Key(): true}
	out := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		key := t.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
