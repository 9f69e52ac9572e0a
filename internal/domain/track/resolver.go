package track

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

var (
	// ErrNoPlayableID indicates the server answered without a stream identifier.
	ErrNoPlayableID = errors.New("no playable id in prepare response")

	// ErrProgressClosed indicates the progress channel closed before a terminal status.
	ErrProgressClosed = errors.New("download progress closed before completion")
)

// ResolutionError is returned when a track cannot be turned into a playable one.
type ResolutionError struct {
	Track Track
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Track.String(), e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// PrepareResult is the server answer to a prepare request.
// Status is empty when the server answered synchronously with a ready track.
type PrepareResult struct {
	Track  Track
	Status DownloadStatus
}

// Preparer asks the streaming server to make a track stream-ready.
type Preparer interface {
	PrepareTrack(ctx context.Context, partial Track) (PrepareResult, error)
}

// ProgressSubscriber follows server-side preparation of a track.
// The returned channel is closed after a terminal status or when ctx ends.
type ProgressSubscriber interface {
	SubscribeDownloadProgress(ctx context.Context, trackID string, quality Quality) (<-chan DownloadStatus, error)
}

// Resolver turns descriptive metadata into a resolved Track.
// It never touches playback state; callers integrate the result.
type Resolver struct {
	preparer   Preparer
	progress   ProgressSubscriber
	onProgress func(DownloadStatus)
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithProgressSubscriber makes the resolver wait for downloads that are still
// in progress when prepare returns.
func WithProgressSubscriber(s ProgressSubscriber) ResolverOption {
	return func(r *Resolver) {
		r.progress = s
	}
}

// WithProgressObserver receives every download status seen while waiting.
func WithProgressObserver(fn func(DownloadStatus)) ResolverOption {
	return func(r *Resolver) {
		r.onProgress = fn
	}
}

// NewResolver creates a resolver backed by the given preparer.
func NewResolver(preparer Preparer, opts ...ResolverOption) *Resolver {
	r := &Resolver{preparer: preparer}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns a playable version of t. Already resolved tracks are returned
// unchanged. Failures are *ResolutionError and are never retried here.
func (r *Resolver) Resolve(ctx context.Context, t Track) (Track, error) {
	if t.IsResolved() {
		return t, nil
	}

	log.Debug().Str("track", t.String()).Msg("Resolving track")

	res, err := r.preparer.PrepareTrack(ctx, t)
	if err != nil {
		return Track{}, &ResolutionError{Track: t, Err: err}
	}
	if res.Track.ID == "" {
		return Track{}, &ResolutionError{Track: t, Err: ErrNoPlayableID}
	}

	switch res.Status.Status {
	case DownloadFailed:
		return Track{}, &ResolutionError{Track: t, Err: downloadError(res.Status)}
	case DownloadNotStarted, DownloadSearching, DownloadDownloading:
		if r.progress != nil {
			if err := r.awaitReady(ctx, res.Track.ID); err != nil {
				return Track{}, &ResolutionError{Track: t, Err: err}
			}
		}
	}

	resolved := merge(t, res.Track)
	log.Info().Str("track", resolved.String()).Str("id", resolved.ID).Msg("Track resolved")
	return resolved, nil
}

func (r *Resolver) awaitReady(ctx context.Context, id string) error {
	updates, err := r.progress.SubscribeDownloadProgress(ctx, id, "")
	if err != nil {
		return fmt.Errorf("subscribe progress: %w", err)
	}

	for st := range updates {
		if r.onProgress != nil {
			r.onProgress(st)
		}
		switch st.Status {
		case DownloadReady:
			return nil
		case DownloadFailed:
			return downloadError(st)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrProgressClosed
}

func downloadError(st DownloadStatus) error {
	if st.Error != "" {
		return fmt.Errorf("download failed: %s", st.Error)
	}
	return errors.New("download failed")
}

// merge keeps the caller's identity fields and takes the id plus any missing
// metadata from the server copy.
func merge(partial, server Track) Track {
	out := partial
	out.ID = server.ID
	if out.AlbumName == "" {
		out.AlbumName = server.AlbumName
	}
	if out.AlbumCover == "" {
		out.AlbumCover = server.AlbumCover
	}
	if out.Duration == 0 {
		out.Duration = server.Duration
	}
	if out.ExternalReferenceID == "" {
		out.ExternalReferenceID = server.ExternalReferenceID
	}
	if out.ExternalLink == "" {
		out.ExternalLink = server.ExternalLink
	}
	if out.Title == "" {
		out.Title = server.Title
	}
	if out.ArtistName == "" {
		out.ArtistName = server.ArtistName
	}
	return out
}
