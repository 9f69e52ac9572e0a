package mpd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-stream-client/internal/audio"
	"github.com/edumarques81/stellar-stream-client/internal/domain/lifecycle"
	"github.com/edumarques81/stellar-stream-client/internal/domain/player"
)

// DefaultPollInterval is how often status is sampled for time updates.
const DefaultPollInterval = 250 * time.Millisecond

// ErrOutputClosed is returned by operations on a closed output.
var ErrOutputClosed = errors.New("mpd output closed")

// Conn is the subset of Client used by Output.
type Conn interface {
	Status() (mpd.Attrs, error)
	Play(pos int) error
	Pause(pause bool) error
	Stop() error
	SeekCur(seconds float64) error
	SetVolume(vol int) error
	Clear() error
	Add(uri string) error
	ClearError() error
}

type intent int

const (
	intentStopped intent = iota
	intentPlaying
	intentPaused
)

// Output plays one stream URL at a time through MPD. It implements
// player.Output and, for the lifecycle adapter, lifecycle.AudioContext.
type Output struct {
	conn     Conn
	interval time.Duration
	watch    <-chan string

	mu        sync.Mutex
	seq       uint64
	loaded    bool
	intent    intent
	lastState string // "" after a lost connection
	lastErr   string
	elapsed   float64
	duration  float64
	format    *audio.Format
	pending   float64 // seek applied on the next Play from stop
	ctxState  lifecycle.ContextState
	closed    bool

	events  chan player.OutputEvent
	changes chan lifecycle.ContextState
}

// OutputOption configures an Output.
type OutputOption func(*Output)

// WithPollInterval sets the status sampling interval.
func WithPollInterval(d time.Duration) OutputOption {
	return func(o *Output) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithWatch adds an MPD idle channel that triggers an immediate poll.
func WithWatch(ch <-chan string) OutputOption {
	return func(o *Output) {
		o.watch = ch
	}
}

// NewOutput creates an MPD-backed output.
func NewOutput(conn Conn, opts ...OutputOption) *Output {
	o := &Output{
		conn:      conn,
		interval:  DefaultPollInterval,
		lastState: "stop",
		ctxState:  lifecycle.ContextRunning,
		events:    make(chan player.OutputEvent, 64),
		changes:   make(chan lifecycle.ContextState, 4),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Load replaces the MPD queue with url without starting playback.
func (o *Output) Load(ctx context.Context, url string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return 0, ErrOutputClosed
	}

	o.seq++
	o.loaded = false
	o.intent = intentStopped
	o.lastState = "stop"
	o.elapsed, o.duration, o.pending = 0, 0, 0

	if err := o.conn.Stop(); err != nil {
		return 0, fmt.Errorf("stop: %w", err)
	}
	if err := o.conn.Clear(); err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	if err := o.conn.Add(url); err != nil {
		return 0, fmt.Errorf("add stream: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	o.loaded = true
	log.Debug().Uint64("seq", o.seq).Msg("Stream loaded into MPD")
	return o.seq, nil
}

// Play starts the loaded stream or resumes it from pause.
func (o *Output) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutputClosed
	}
	if !o.loaded {
		return player.ErrNoTrack
	}

	if o.intent == intentPaused {
		if err := o.conn.Pause(false); err != nil {
			return fmt.Errorf("unpause: %w", err)
		}
	} else {
		if err := o.conn.Play(0); err != nil {
			return fmt.Errorf("play: %w", err)
		}
		if o.pending > 0 {
			if err := o.conn.SeekCur(o.pending); err != nil {
				log.Warn().Err(err).Float64("position", o.pending).Msg("Failed to apply pending seek")
			}
		}
	}

	o.pending = 0
	o.intent = intentPlaying
	o.lastState = "play"
	o.setContextLocked(lifecycle.ContextRunning)
	return nil
}

// Pause pauses playback.
func (o *Output) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutputClosed
	}
	if o.intent != intentPlaying {
		return nil
	}
	if err := o.conn.Pause(true); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	o.intent = intentPaused
	o.lastState = "pause"
	return nil
}

// Paused reports whether the output is not meant to be playing.
func (o *Output) Paused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.intent != intentPlaying
}

// Seek moves within the current stream. While stopped the position is kept
// and applied on the next Play.
func (o *Output) Seek(seconds float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutputClosed
	}
	if o.intent == intentStopped {
		o.pending = seconds
		o.elapsed = seconds
		return nil
	}
	if err := o.conn.SeekCur(seconds); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	o.elapsed = seconds
	return nil
}

// SetVolume maps a linear volume in [0,1] onto MPD's 0-100 scale.
func (o *Output) SetVolume(volume float64) error {
	v := int(math.Round(volume * 100))
	if err := o.conn.SetVolume(v); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	return nil
}

// Stop stops playback. No ended event follows.
func (o *Output) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutputClosed
	}
	o.intent = intentStopped
	o.lastState = "stop"
	o.pending = 0
	if err := o.conn.Stop(); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

// Events returns the native event stream.
func (o *Output) Events() <-chan player.OutputEvent {
	return o.events
}

// State returns the audio context state.
func (o *Output) State() lifecycle.ContextState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ctxState
}

// StateChanges reports audio context transitions.
func (o *Output) StateChanges() <-chan lifecycle.ContextState {
	return o.changes
}

// Resume brings MPD back to playing after an outside pause or a lost
// connection. Playback restarts at the last known position when MPD came
// back stopped.
func (o *Output) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutputClosed
	}

	attrs, err := o.conn.Status()
	if err != nil {
		return fmt.Errorf("resume audio context: %w", err)
	}

	if o.intent == intentPlaying && o.loaded {
		switch attrs["state"] {
		case "pause":
			if err := o.conn.Pause(false); err != nil {
				return fmt.Errorf("resume audio context: %w", err)
			}
		case "stop":
			if err := o.conn.Play(0); err != nil {
				return fmt.Errorf("resume audio context: %w", err)
			}
			if o.elapsed > 0 {
				if err := o.conn.SeekCur(o.elapsed); err != nil {
					log.Warn().Err(err).Float64("position", o.elapsed).Msg("Failed to restore position")
				}
			}
		}
		o.lastState = "play"
	}

	o.setContextLocked(lifecycle.ContextRunning)
	return nil
}

// Close stops event delivery. The context reports closed afterwards.
func (o *Output) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.setContextLocked(lifecycle.ContextClosed)
	o.closed = true
}

// Run samples MPD status until ctx ends.
func (o *Output) Run(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	watch := o.watch
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case _, ok := <-watch:
			if !ok {
				watch = nil
				continue
			}
		}
		o.Poll()
	}
}

// Poll samples MPD status once and emits the resulting events.
func (o *Output) Poll() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}

	attrs, err := o.conn.Status()
	if err != nil {
		if o.lastState != "" {
			log.Warn().Err(err).Msg("MPD status unavailable")
		}
		o.lastState = ""
		o.setContextLocked(lifecycle.ContextSuspended)
		return
	}

	state := attrs["state"]
	prev := o.lastState

	if msg := attrs["error"]; msg != "" {
		if msg != o.lastErr && o.loaded {
			o.lastErr = msg
			o.intent = intentStopped
			o.emitLocked(player.OutputEvent{Kind: player.OutputError, Err: errors.New(msg)})
			if err := o.conn.ClearError(); err != nil {
				log.Debug().Err(err).Msg("Failed to clear MPD error")
			}
		}
		o.lastState = state
		o.setContextLocked(lifecycle.ContextRunning)
		return
	}
	o.lastErr = ""

	if format := audio.ParseFormat(attrs["audio"]); format != nil && !format.Equal(o.format) {
		log.Debug().Str("format", format.String()).Msg("MPD output format changed")
		o.format = format
	}

	if o.loaded && (state == "play" || state == "pause") {
		elapsed, duration := timing(attrs)
		if elapsed != o.elapsed || duration != o.duration {
			o.elapsed, o.duration = elapsed, duration
			o.emitLocked(player.OutputEvent{
				Kind:        player.OutputTimeUpdate,
				CurrentTime: elapsed,
				Duration:    duration,
				Format:      o.format.String(),
			})
		}
	}

	switch {
	case o.intent != intentPlaying, state == "play":
		o.setContextLocked(lifecycle.ContextRunning)
	case state == "stop" && prev == "play":
		o.intent = intentStopped
		o.emitLocked(player.OutputEvent{Kind: player.OutputEnded, CurrentTime: o.duration, Duration: o.duration})
		o.setContextLocked(lifecycle.ContextRunning)
	default:
		// paused by someone else, or back from a lost connection without playing
		o.setContextLocked(lifecycle.ContextSuspended)
	}

	o.lastState = state
}

func (o *Output) emitLocked(ev player.OutputEvent) {
	ev.Seq = o.seq
	select {
	case o.events <- ev:
	default:
		log.Warn().Str("kind", string(ev.Kind)).Msg("Output event dropped, listener is full")
	}
}

func (o *Output) setContextLocked(st lifecycle.ContextState) {
	if o.ctxState == st || o.ctxState == lifecycle.ContextClosed {
		return
	}
	o.ctxState = st
	log.Debug().Str("state", string(st)).Msg("Audio context state")
	select {
	case o.changes <- st:
	default:
	}
}

// timing reads elapsed and duration seconds from status, falling back to
// the legacy "time" field ("elapsed:total").
func timing(attrs mpd.Attrs) (elapsed, duration float64) {
	elapsed, _ = strconv.ParseFloat(attrs["elapsed"], 64)
	duration, _ = strconv.ParseFloat(attrs["duration"], 64)

	if t := attrs["time"]; t != "" && (elapsed == 0 || duration == 0) {
		if cur, total, ok := strings.Cut(t, ":"); ok {
			if elapsed == 0 {
				elapsed, _ = strconv.ParseFloat(cur, 64)
			}
			if duration == 0 {
				duration, _ = strconv.ParseFloat(total, 64)
			}
		}
	}
	return elapsed, duration
}
