// Package lifecycle keeps playback alive and controllable across host
// interruptions and publishes now-playing state to the media session.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-stream-client/internal/domain/player"
	"github.com/edumarques81/stellar-stream-client/internal/domain/track"
)

// ContextState is the state of the audio-processing context.
type ContextState string

const (
	ContextRunning   ContextState = "running"
	ContextSuspended ContextState = "suspended"
	ContextClosed    ContextState = "closed"
)

// AudioContext is the audio-processing context under the output.
type AudioContext interface {
	State() ContextState
	Resume(ctx context.Context) error
	// StateChanges reports transitions; it may be nil if the context never
	// changes on its own.
	StateChanges() <-chan ContextState
}

// Visibility is the host visibility of the client.
type Visibility string

const (
	VisibilityHidden  Visibility = "hidden"
	VisibilityVisible Visibility = "visible"
)

// Transport is the subset of the playback engine driven by media actions.
type Transport interface {
	IsPlaying() bool
	Resume(ctx context.Context) error
	Pause() error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Stop() error
	SeekBy(delta float64) error
	SeekTo(seconds float64) error
	SeekStep() float64
	Subscribe() <-chan player.Event
	Unsubscribe(ch <-chan player.Event)
}

// Adapter watches visibility, interruptions and the keepalive timer, and
// mirrors engine state into the media session.
type Adapter struct {
	audio     AudioContext
	transport Transport
	session   MediaSession
	policy    KeepalivePolicy

	published string // key of the track whose metadata is published
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithKeepalive sets the keepalive policy. The default is NoopKeepalive.
func WithKeepalive(p KeepalivePolicy) AdapterOption {
	return func(a *Adapter) {
		if p != nil {
			a.policy = p
		}
	}
}

// NewAdapter creates a lifecycle adapter.
func NewAdapter(audio AudioContext, transport Transport, session MediaSession, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		audio:     audio,
		transport: transport,
		session:   session,
		policy:    NoopKeepalive{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterActions wires every media action to the transport. Unsupported
// actions are skipped; the rest are still registered. It returns the number
// of registered actions.
func (a *Adapter) RegisterActions() int {
	handlers := map[Action]ActionHandler{
		ActionPlay: func(ctx context.Context, _ ActionDetails) error {
			return a.transport.Resume(ctx)
		},
		ActionPause: func(context.Context, ActionDetails) error {
			return a.transport.Pause()
		},
		ActionNextTrack: func(ctx context.Context, _ ActionDetails) error {
			return a.transport.Next(ctx)
		},
		ActionPreviousTrack: func(ctx context.Context, _ ActionDetails) error {
			return a.transport.Previous(ctx)
		},
		ActionSeekForward: func(_ context.Context, d ActionDetails) error {
			return a.transport.SeekBy(a.offset(d))
		},
		ActionSeekBackward: func(_ context.Context, d ActionDetails) error {
			return a.transport.SeekBy(-a.offset(d))
		},
		ActionSeekTo: func(_ context.Context, d ActionDetails) error {
			return a.transport.SeekTo(d.SeekTime)
		},
		ActionStop: func(context.Context, ActionDetails) error {
			return a.transport.Stop()
		},
	}

	registered := 0
	for _, action := range Actions {
		err := a.session.SetActionHandler(action, handlers[action])
		switch {
		case err == nil:
			registered++
		case errors.Is(err, ErrActionUnsupported):
			log.Debug().Str("action", string(action)).Msg("Media session action unsupported")
		default:
			log.Warn().Err(err).Str("action", string(action)).Msg("Failed to register media session action")
		}
	}

	log.Info().Int("registered", registered).Int("total", len(Actions)).Msg("Media session actions registered")
	return registered
}

func (a *Adapter) offset(d ActionDetails) float64 {
	if d.SeekOffset > 0 {
		return d.SeekOffset
	}
	return a.transport.SeekStep()
}

// Run mirrors engine events into the media session and reacts to context
// changes and the keepalive timer until ctx ends.
func (a *Adapter) Run(ctx context.Context) {
	events := a.transport.Subscribe()
	defer a.transport.Unsubscribe(events)

	var tick <-chan time.Time
	if every := a.policy.Interval(); every > 0 {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		tick = ticker.C
		log.Info().Dur("interval", every).Msg("Audio keepalive enabled")
	}

	changes := a.audio.StateChanges()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.publish(ev)
		case st, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			a.onContextChange(ctx, st)
		case <-tick:
			a.ensureRunning(ctx, "keepalive")
		}
	}
}

// HandleVisibility re-asserts the audio context on visibility transitions.
func (a *Adapter) HandleVisibility(ctx context.Context, v Visibility) {
	log.Debug().Str("visibility", string(v)).Msg("Visibility changed")
	switch v {
	case VisibilityHidden:
		a.ensureRunning(ctx, "backgrounded")
	case VisibilityVisible:
		a.ensureRunning(ctx, "foregrounded")
	}
}

func (a *Adapter) onContextChange(ctx context.Context, st ContextState) {
	log.Debug().Str("state", string(st)).Msg("Audio context state changed")
	if st == ContextSuspended {
		a.ensureRunning(ctx, "interrupted")
	}
}

// ensureRunning resumes a suspended context while playback is intended.
func (a *Adapter) ensureRunning(ctx context.Context, reason string) {
	if !a.transport.IsPlaying() {
		return
	}

	switch a.audio.State() {
	case ContextRunning:
		return
	case ContextClosed:
		log.Warn().Str("reason", reason).Msg("Audio context closed, cannot resume")
		return
	}

	if err := a.audio.Resume(ctx); err != nil {
		log.Warn().Err(err).Str("reason", reason).Msg("Failed to resume audio context")
		return
	}
	log.Info().Str("reason", reason).Msg("Audio context resumed")
}

func (a *Adapter) publish(ev player.Event) {
	state := ev.State
	if state == nil {
		return
	}

	cur, ok := state.Current()
	if !ok {
		if a.published != "" {
			a.session.SetMetadata(nil)
			a.published = ""
		}
		a.session.SetPlaybackState(PlaybackNone)
		return
	}

	key := cur.Key() + "\x00" + cur.AlbumCover
	if key != a.published {
		a.session.SetMetadata(metadataFor(cur))
		a.published = key
	}

	switch {
	case state.IsPlaying:
		a.session.SetPlaybackState(PlaybackPlaying)
	case state.Status == player.StatusIdle:
		a.session.SetPlaybackState(PlaybackNone)
	default:
		a.session.SetPlaybackState(PlaybackPaused)
	}
}

func metadataFor(t track.Track) *Metadata {
	return &Metadata{
		Title:    t.Title,
		Artist:   t.ArtistName,
		Album:    t.AlbumName,
		Artwork:  ArtworkSet(t.AlbumCover),
		Duration: float64(t.Duration),
	}
}
