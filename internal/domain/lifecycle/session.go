package lifecycle

import (
	"context"
	"errors"
	"path"
	"strconv"
	"strings"
)

// ErrActionUnsupported is returned by a MediaSession for actions the host
// cannot surface.
var ErrActionUnsupported = errors.New("media session action not supported")

// Action is a media session transport action.
type Action string

const (
	ActionPlay          Action = "play"
	ActionPause         Action = "pause"
	ActionNextTrack     Action = "nexttrack"
	ActionPreviousTrack Action = "previoustrack"
	ActionSeekForward   Action = "seekforward"
	ActionSeekBackward  Action = "seekbackward"
	ActionSeekTo        Action = "seekto"
	ActionStop          Action = "stop"
)

// Actions lists every action the adapter registers.
var Actions = []Action{
	ActionPlay,
	ActionPause,
	ActionNextTrack,
	ActionPreviousTrack,
	ActionSeekForward,
	ActionSeekBackward,
	ActionSeekTo,
	ActionStop,
}

// ActionDetails carries the optional arguments of an action.
type ActionDetails struct {
	Action     Action  `json:"action"`
	SeekOffset float64 `json:"seekOffset,omitempty"` // seconds
	SeekTime   float64 `json:"seekTime,omitempty"`   // seconds
}

// ActionHandler runs a transport action.
type ActionHandler func(ctx context.Context, details ActionDetails) error

// Artwork is one image of the now-playing artwork set.
type Artwork struct {
	Src   string `json:"src"`
	Sizes string `json:"sizes"`
	Type  string `json:"type"`
}

// Metadata is the now-playing information shown by the host.
type Metadata struct {
	Title    string    `json:"title"`
	Artist   string    `json:"artist"`
	Album    string    `json:"album"`
	Artwork  []Artwork `json:"artwork"`
	Duration float64   `json:"duration,omitempty"`
}

// PlaybackState is the coarse state shown by the host.
type PlaybackState string

const (
	PlaybackNone    PlaybackState = "none"
	PlaybackPaused  PlaybackState = "paused"
	PlaybackPlaying PlaybackState = "playing"
)

// MediaSession is the host's now-playing facility.
type MediaSession interface {
	// SetMetadata publishes now-playing info; nil clears it.
	SetMetadata(m *Metadata)
	SetPlaybackState(state PlaybackState)
	// SetActionHandler returns ErrActionUnsupported for actions the host lacks.
	SetActionHandler(action Action, handler ActionHandler) error
}

// ArtworkSizes are the square resolutions published for each cover.
var ArtworkSizes = []int{96, 128, 192, 256, 384, 512}

// ArtworkSet expands one cover URL into the published artwork set.
func ArtworkSet(cover string) []Artwork {
	if cover == "" {
		return nil
	}

	mime := "image/jpeg"
	switch strings.ToLower(path.Ext(strings.SplitN(cover, "?", 2)[0])) {
	case ".png":
		mime = "image/png"
	case ".webp":
		mime = "image/webp"
	}

	set := make([]Artwork, 0, len(ArtworkSizes))
	for _, size := range ArtworkSizes {
		s := strconv.Itoa(size)
		set = append(set, Artwork{Src: cover, Sizes: s + "x" + s, Type: mime})
	}
	return set
}
