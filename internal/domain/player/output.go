package player

import (
	"context"
	"errors"
	"fmt"

	"github.com/edumarques81/stellar-stream-client/internal/domain/track"
)

// OutputEventKind identifies a native media event.
type OutputEventKind string

const (
	OutputTimeUpdate OutputEventKind = "timeupdate"
	OutputEnded      OutputEventKind = "ended"
	OutputError      OutputEventKind = "error"
)

// OutputEvent is a native media event. Seq is the load sequence returned by
// Output.Load for the source that produced it.
type OutputEvent struct {
	Seq         uint64
	Kind        OutputEventKind
	CurrentTime float64 // seconds
	Duration    float64 // seconds, 0 when unknown
	Format      string
	Err         error
}

// Output is the single native audio output.
// Only the Engine may call it.
type Output interface {
	// Load replaces the source without starting playback and returns a new
	// load sequence number.
	Load(ctx context.Context, url string) (uint64, error)
	// Play starts or resumes the loaded source.
	Play(ctx context.Context) error
	Pause() error
	// Paused reports the native paused flag.
	Paused() bool
	Seek(seconds float64) error
	// SetVolume takes a linear volume in [0,1].
	SetVolume(volume float64) error
	Stop() error
	Events() <-chan OutputEvent
}

var (
	// ErrSuperseded is returned by a Play call replaced by a newer one.
	ErrSuperseded = errors.New("play superseded by a newer request")

	// ErrNoTrack is returned when an operation needs a current track.
	ErrNoTrack = errors.New("no current track")
)

// StreamPlaybackError reports a failure of the output to start or continue.
type StreamPlaybackError struct {
	Track track.Track
	Op    string
	Err   error
}

func (e *StreamPlaybackError) Error() string {
	return fmt.Sprintf("playback %s %q: %v", e.Op, e.Track.String(), e.Err)
}

func (e *StreamPlaybackError) Unwrap() error {
	return e.Err
}
