package player

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-stream-client/internal/domain/track"
	"github.com/edumarques81/stellar-stream-client/internal/event"
)

const (
	// QualityPreferenceKey is the persisted preference holding the stream quality.
	QualityPreferenceKey = "stellar.audioQuality"

	// DefaultSeekStep is the seek-forward/backward step in seconds.
	DefaultSeekStep = 10.0
)

// ErrQueueExhausted is carried by EventQueueExhausted. It is not a failure.
var ErrQueueExhausted = errors.New("queue exhausted")

// EventType identifies an engine event.
type EventType string

const (
	EventStateChanged   EventType = "state"
	EventProgress       EventType = "progress"
	EventTrackChanged   EventType = "trackChanged"
	EventPlaybackFailed EventType = "playbackFailed"
	EventQueueExhausted EventType = "queueExhausted"
)

// Event is published to observers after every state transition.
type Event struct {
	Type  EventType
	State *State
	Err   error
}

// Resolver turns an unresolved track into a playable one.
type Resolver interface {
	Resolve(ctx context.Context, t track.Track) (track.Track, error)
}

// URLBuilder builds stream URLs for resolved tracks.
type URLBuilder interface {
	URL(id string, quality track.Quality) string
}

// Preferences is a persistent key/value store.
type Preferences interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Sequencer decides what plays next. The queue manager implements it.
type Sequencer interface {
	Next(ctx context.Context) (track.Track, bool)
	TrackStarted(t track.Track)
	Progress(t track.Track, percent float64)
	Shuffle()
}

// Engine is the single owner of the audio output.
// Every playback transition goes through it.
type Engine struct {
	out      Output
	resolver Resolver
	urls     URLBuilder
	prefs    Preferences
	seq      Sequencer
	seekStep float64
	quality  track.Quality

	state  *State
	events event.Emitter[Event]

	// mu guards the load generation. A Play bumps gen; continuations of older
	// loads compare against it and drop their results.
	mu         sync.Mutex
	gen        uint64
	cancelLoad context.CancelFunc
	active     uint64 // output load sequence of the current source, 0 when none

	// outMu serializes source changes on the output.
	outMu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithSequencer sets the component asked for the next track.
func WithSequencer(s Sequencer) Option {
	return func(e *Engine) {
		e.seq = s
	}
}

// WithPreferences sets the store holding the quality preference.
func WithPreferences(p Preferences) Option {
	return func(e *Engine) {
		e.prefs = p
	}
}

// WithSeekStep sets the step used by SeekBy callers such as media keys.
func WithSeekStep(seconds float64) Option {
	return func(e *Engine) {
		if seconds > 0 {
			e.seekStep = seconds
		}
	}
}

// WithDefaultQuality sets the quality used when no preference is stored.
func WithDefaultQuality(q track.Quality) Option {
	return func(e *Engine) {
		if q != "" {
			e.quality = q
		}
	}
}

// New creates an engine. The initial quality is read from preferences.
func New(ctx context.Context, out Output, resolver Resolver, urls URLBuilder, opts ...Option) *Engine {
	e := &Engine{
		out:      out,
		resolver: resolver,
		urls:     urls,
		seekStep: DefaultSeekStep,
		quality:  track.DefaultQuality,
	}
	e.events.Name = "player"

	for _, opt := range opts {
		opt(e)
	}

	e.state = NewState(e.loadQuality(ctx))
	return e
}

func (e *Engine) loadQuality(ctx context.Context) track.Quality {
	if e.prefs == nil {
		return e.quality
	}

	v, ok, err := e.prefs.Get(ctx, QualityPreferenceKey)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read quality preference")
		return e.quality
	}
	if !ok {
		return e.quality
	}

	q, err := track.ParseQuality(v)
	if err != nil {
		log.Warn().Err(err).Msg("Dropping stored quality preference")
		if err := e.prefs.Delete(ctx, QualityPreferenceKey); err != nil {
			log.Warn().Err(err).Msg("Failed to delete quality preference")
		}
		return e.quality
	}
	return q
}

// State returns a snapshot of the playback state.
func (e *Engine) State() *State {
	return e.state.Clone()
}

// IsPlaying reports whether playback is intended to be audible.
func (e *Engine) IsPlaying() bool {
	return e.state.Playing()
}

// SeekStep returns the configured seek step in seconds.
func (e *Engine) SeekStep() float64 {
	return e.seekStep
}

// Subscribe returns a channel of engine events.
func (e *Engine) Subscribe() <-chan Event {
	return e.events.Listen()
}

// Unsubscribe stops delivery to ch and closes it.
func (e *Engine) Unsubscribe(ch <-chan Event) {
	e.events.Unlisten(ch)
}

// Close releases all subscribers.
func (e *Engine) Close() {
	e.events.Close()
}

func (e *Engine) emit(t EventType, err error) {
	e.events.Emit(Event{Type: t, State: e.state.Clone(), Err: err})
}

// supersede invalidates any in-flight load and returns the new generation.
// apply runs under the generation lock so readers never see a half-switched state.
func (e *Engine) supersede(apply func()) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelLoad != nil {
		e.cancelLoad()
		e.cancelLoad = nil
	}
	e.gen++
	e.active = 0
	if apply != nil {
		apply()
	}
	return e.gen
}

func (e *Engine) beginLoad(ctx context.Context, apply func()) (context.Context, uint64) {
	gen := e.supersede(apply)

	loadCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	if e.gen == gen {
		e.cancelLoad = cancel
	} else {
		cancel()
	}
	e.mu.Unlock()
	return loadCtx, gen
}

func (e *Engine) finish(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gen == gen && e.cancelLoad != nil {
		e.cancelLoad()
		e.cancelLoad = nil
	}
}

// commit runs fn only if gen is still current.
func (e *Engine) commit(gen uint64, fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gen != gen {
		return false
	}
	fn()
	return true
}

func (e *Engine) currentGen() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen
}

func (e *Engine) setActive(gen, seq uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gen != gen {
		return false
	}
	e.active = seq
	return true
}

// activeGen returns the generation owning seq, or false for stale events.
func (e *Engine) activeGen(seq uint64) (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == 0 || e.active != seq {
		return 0, false
	}
	return e.gen, true
}

// Play loads t and starts it from position 0, resolving it first when needed.
// A later Play supersedes this one: it returns ErrSuperseded and leaves no trace.
func (e *Engine) Play(ctx context.Context, t track.Track) error {
	loadCtx, gen := e.beginLoad(ctx, func() { e.state.StartLoading(t) })
	defer e.finish(gen)

	log.Info().Str("track", t.String()).Bool("resolved", t.IsResolved()).Msg("Play")
	e.emit(EventStateChanged, nil)

	resolved := t
	if !t.IsResolved() {
		r, err := e.resolver.Resolve(loadCtx, t)
		if err != nil {
			e.outMu.Lock()
			defer e.outMu.Unlock()
			return e.failLocked(gen, err)
		}
		resolved = r
	}

	if err := e.load(loadCtx, gen, resolved, true); err != nil {
		return err
	}

	if !e.commit(gen, func() { e.state.Started(resolved) }) {
		return ErrSuperseded
	}

	e.emit(EventTrackChanged, nil)
	if e.seq != nil {
		e.seq.TrackStarted(resolved)
	}
	return nil
}

// load replaces the output source with t and optionally starts it.
func (e *Engine) load(ctx context.Context, gen uint64, t track.Track, play bool) error {
	e.outMu.Lock()
	defer e.outMu.Unlock()

	if e.currentGen() != gen {
		return ErrSuperseded
	}

	url := e.urls.URL(t.ID, e.state.GetQuality())
	seq, err := e.out.Load(ctx, url)
	if err != nil {
		return e.failLocked(gen, &StreamPlaybackError{Track: t, Op: "load", Err: err})
	}
	if !e.setActive(gen, seq) {
		return ErrSuperseded
	}

	if play {
		if err := e.out.Play(ctx); err != nil {
			return e.failLocked(gen, &StreamPlaybackError{Track: t, Op: "start", Err: err})
		}
	}
	return nil
}

// failLocked moves to Errored if gen is current. Caller holds outMu.
func (e *Engine) failLocked(gen uint64, err error) error {
	if !e.commit(gen, func() {
		e.state.Fail(err)
		e.active = 0
	}) {
		return ErrSuperseded
	}

	if stopErr := e.out.Stop(); stopErr != nil {
		log.Debug().Err(stopErr).Msg("Stop after failure")
	}

	log.Error().Err(err).Msg("Playback failed")
	e.emit(EventPlaybackFailed, err)
	return err
}

// Run consumes output events until ctx ends or the output closes its channel.
func (e *Engine) Run(ctx context.Context) {
	events := e.out.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.handle(ctx, ev)
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev OutputEvent) {
	gen, ok := e.activeGen(ev.Seq)
	if !ok {
		log.Debug().Uint64("seq", ev.Seq).Str("kind", string(ev.Kind)).Msg("Ignoring stale output event")
		return
	}

	switch ev.Kind {
	case OutputTimeUpdate:
		e.onTimeUpdate(gen, ev)
	case OutputEnded:
		e.onEnded(ctx, gen)
	case OutputError:
		cur, _ := e.state.Current()
		e.outMu.Lock()
		e.failLocked(gen, &StreamPlaybackError{Track: cur, Op: "stream", Err: ev.Err})
		e.outMu.Unlock()
	}
}

func (e *Engine) onTimeUpdate(gen uint64, ev OutputEvent) {
	var (
		pct     float64
		applied bool
	)
	e.commit(gen, func() {
		switch e.state.GetStatus() {
		case StatusPlaying, StatusPaused:
		default:
			return
		}
		if ev.Format != "" {
			e.state.SetStreamFormat(ev.Format)
		}
		pct = e.state.UpdateTime(ev.CurrentTime, ev.Duration)
		applied = true
	})
	if !applied {
		return
	}

	e.emit(EventProgress, nil)
	if e.seq != nil {
		if cur, ok := e.state.Current(); ok {
			e.seq.Progress(cur, pct)
		}
	}
}

func (e *Engine) onEnded(ctx context.Context, gen uint64) {
	cur, ok := e.state.Current()
	if !ok || !e.commit(gen, e.state.End) {
		return
	}
	log.Info().Str("track", cur.String()).Msg("Track ended")
	e.emit(EventStateChanged, nil)

	if e.state.GetRepeat() {
		e.restart(ctx, gen, cur)
		return
	}
	e.advance(ctx, gen)
}

// restart replays the current track from 0 without consulting the queue.
func (e *Engine) restart(ctx context.Context, gen uint64, cur track.Track) {
	e.outMu.Lock()
	if err := e.out.Seek(0); err != nil {
		log.Debug().Err(err).Msg("Seek to start before replay")
	}
	if err := e.out.Play(ctx); err != nil {
		e.failLocked(gen, &StreamPlaybackError{Track: cur, Op: "repeat", Err: err})
		e.outMu.Unlock()
		return
	}
	e.outMu.Unlock()

	if !e.commit(gen, func() { e.state.Started(cur) }) {
		return
	}
	log.Info().Str("track", cur.String()).Msg("Repeating track")
	e.emit(EventTrackChanged, nil)
	if e.seq != nil {
		e.seq.TrackStarted(cur)
	}
}

// advance asks the sequencer for the next track and plays it. Callers that
// race on the same generation pop the queue once.
func (e *Engine) advance(ctx context.Context, gen uint64) {
	next, ok, claimed, fresh := e.popNext(ctx, gen)
	if !fresh {
		return
	}
	if !ok {
		e.exhausted(claimed)
		return
	}

	if err := e.Play(ctx, next); err != nil && !errors.Is(err, ErrSuperseded) {
		log.Warn().Err(err).Str("track", next.String()).Msg("Failed to play next track")
	}
}

// popNext claims gen by moving to a new generation and pops the sequencer
// under the generation lock. fresh is false when gen is already stale.
func (e *Engine) popNext(ctx context.Context, gen uint64) (next track.Track, ok bool, claimed uint64, fresh bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gen != gen {
		return track.Track{}, false, 0, false
	}
	if e.cancelLoad != nil {
		e.cancelLoad()
		e.cancelLoad = nil
	}
	e.gen++
	e.active = 0

	if e.seq != nil {
		next, ok = e.seq.Next(ctx)
	}
	return next, ok, e.gen, true
}

func (e *Engine) exhausted(gen uint64) {
	e.outMu.Lock()
	defer e.outMu.Unlock()

	if !e.commit(gen, func() {
		e.state.Stop()
		e.active = 0
	}) {
		return
	}
	if err := e.out.Stop(); err != nil {
		log.Debug().Err(err).Msg("Stop on empty queue")
	}

	log.Info().Msg("Queue exhausted, playback stopped")
	e.emit(EventQueueExhausted, ErrQueueExhausted)
}

// Next skips to the next queued track, stopping when the queue is empty.
func (e *Engine) Next(ctx context.Context) error {
	if _, ok := e.state.Current(); !ok && e.seq == nil {
		return ErrNoTrack
	}
	e.advance(ctx, e.currentGen())
	return nil
}

// Previous restarts the current track.
func (e *Engine) Previous(ctx context.Context) error {
	if _, ok := e.state.Current(); !ok {
		return ErrNoTrack
	}
	return e.SeekTo(0)
}

// Stop halts playback and returns to idle. In-flight loads are abandoned.
func (e *Engine) Stop() error {
	gen := e.supersede(nil)

	e.outMu.Lock()
	err := e.out.Stop()
	e.commit(gen, e.state.Stop)
	e.outMu.Unlock()

	log.Info().Msg("Stop")
	e.emit(EventStateChanged, nil)
	return err
}

// TogglePlay flips between playing and paused, reconciling with the output's
// paused flag. It does nothing without a current track.
func (e *Engine) TogglePlay(ctx context.Context) error {
	if _, ok := e.state.Current(); !ok {
		return nil
	}

	switch e.state.GetStatus() {
	case StatusLoading:
		return nil
	case StatusPlaying, StatusPaused:
		if e.out.Paused() {
			return e.Resume(ctx)
		}
		return e.Pause()
	default:
		return e.Resume(ctx)
	}
}

// Resume makes the current track audible. A finished, stopped or failed track
// is reloaded from the start.
func (e *Engine) Resume(ctx context.Context) error {
	cur, ok := e.state.Current()
	if !ok {
		return ErrNoTrack
	}

	switch e.state.GetStatus() {
	case StatusLoading:
		return nil
	case StatusIdle, StatusEnded, StatusErrored:
		return e.Play(ctx, cur)
	}

	gen := e.currentGen()
	e.outMu.Lock()
	defer e.outMu.Unlock()

	if e.out.Paused() {
		if err := e.out.Play(ctx); err != nil {
			return e.failLocked(gen, &StreamPlaybackError{Track: cur, Op: "resume", Err: err})
		}
	}
	if e.commit(gen, func() { e.state.SetPlaying(true) }) {
		log.Info().Msg("Resume")
		e.emit(EventStateChanged, nil)
	}
	return nil
}

// Pause pauses the current track.
func (e *Engine) Pause() error {
	switch e.state.GetStatus() {
	case StatusPlaying, StatusPaused:
	default:
		return nil
	}

	gen := e.currentGen()
	e.outMu.Lock()
	defer e.outMu.Unlock()

	if !e.out.Paused() {
		if err := e.out.Pause(); err != nil {
			return err
		}
	}
	if e.commit(gen, func() { e.state.SetPlaying(false) }) {
		log.Info().Msg("Pause")
		e.emit(EventStateChanged, nil)
	}
	return nil
}

// Seek moves to percent (0-100) of the track. It does nothing while the
// duration is unknown.
func (e *Engine) Seek(percent float64) error {
	_, duration := e.state.Timing()
	if duration <= 0 {
		return nil
	}
	return e.SeekTo(duration * clampPercent(percent) / 100)
}

// SeekBy moves relative to the current position.
func (e *Engine) SeekBy(delta float64) error {
	current, _ := e.state.Timing()
	return e.SeekTo(current + delta)
}

// SeekTo moves to an absolute position, clamped to [0, duration].
func (e *Engine) SeekTo(seconds float64) error {
	switch e.state.GetStatus() {
	case StatusPlaying, StatusPaused:
	default:
		return nil
	}

	_, duration := e.state.Timing()
	if duration <= 0 {
		return nil
	}
	if seconds < 0 {
		seconds = 0
	} else if seconds > duration {
		seconds = duration
	}

	gen := e.currentGen()
	e.outMu.Lock()
	defer e.outMu.Unlock()

	if err := e.out.Seek(seconds); err != nil {
		return err
	}
	if e.commit(gen, func() { e.state.UpdateTime(seconds, 0) }) {
		log.Debug().Float64("seconds", seconds).Msg("Seek")
		e.emit(EventProgress, nil)
	}
	return nil
}

// ChangeVolume sets the volume in percent. Out-of-range values are clamped and
// zero mutes.
func (e *Engine) ChangeVolume(percent int) error {
	v := e.state.SetVolume(percent)

	e.outMu.Lock()
	err := e.out.SetVolume(float64(v) / 100)
	e.outMu.Unlock()

	log.Info().Int("volume", v).Msg("SetVolume")
	e.emit(EventStateChanged, nil)
	return err
}

// ChangeQuality persists q and reloads the current track at the new quality
// from position 0, keeping the play/pause intent.
func (e *Engine) ChangeQuality(ctx context.Context, q track.Quality) error {
	e.state.SetQuality(q)
	if e.prefs != nil {
		if err := e.prefs.Set(ctx, QualityPreferenceKey, string(q)); err != nil {
			log.Warn().Err(err).Msg("Failed to persist quality preference")
		}
	}
	log.Info().Str("quality", string(q)).Msg("ChangeQuality")

	cur, ok := e.state.Current()
	status := e.state.GetStatus()
	if !ok || !cur.IsResolved() || (status != StatusPlaying && status != StatusPaused) {
		e.emit(EventStateChanged, nil)
		return nil
	}

	wasPlaying := e.state.Playing()
	loadCtx, gen := e.beginLoad(ctx, nil)
	defer e.finish(gen)

	if err := e.load(loadCtx, gen, cur, wasPlaying); err != nil {
		return err
	}
	if e.commit(gen, func() { e.state.Reloaded(wasPlaying) }) {
		e.emit(EventStateChanged, nil)
	}
	return nil
}

// SetRepeat enables or disables single-track repeat.
func (e *Engine) SetRepeat(on bool) {
	e.state.SetRepeat(on)
	e.emit(EventStateChanged, nil)
}

// SetShuffle records the shuffle mode; enabling it reorders the queue.
func (e *Engine) SetShuffle(on bool) {
	e.state.SetShuffle(on)
	if on && e.seq != nil {
		e.seq.Shuffle()
	}
	e.emit(EventStateChanged, nil)
}
