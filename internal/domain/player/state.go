// Package player provides the playback engine that owns the audio output.
package player

import (
	"sync"

	"github.com/edumarques81/stellar-stream-client/internal/domain/track"
)

// Status is the playback engine state.
type Status string

// Status constants for player state
const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
	StatusEnded   Status = "ended"
	StatusErrored Status = "errored"
)

// State represents the current playback state.
// It is safe for concurrent access; only the Engine writes to it.
type State struct {
	mu sync.RWMutex

	Status       Status
	CurrentTrack *track.Track
	IsPlaying    bool

	// Progress is CurrentTime/Duration in percent, 0-100.
	Progress    float64
	CurrentTime float64 // seconds
	Duration    float64 // seconds, 0 when unknown

	Volume int
	Muted  bool

	Quality track.Quality
	Repeat  bool
	Shuffle bool

	// StreamFormat describes the decoded stream as reported by the output.
	StreamFormat string
	LastError    string
}

// NewState creates a new player state with default values.
func NewState(quality track.Quality) *State {
	if quality == "" {
		quality = track.DefaultQuality
	}
	return &State{
		Status:  StatusIdle,
		Volume:  100,
		Quality: quality,
	}
}

// StartLoading marks t as the current track and resets progress.
func (s *State) StartLoading(t track.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Status = StatusLoading
	s.CurrentTrack = &t
	s.IsPlaying = false
	s.Progress = 0
	s.CurrentTime = 0
	s.Duration = float64(t.Duration)
	s.StreamFormat = ""
	s.LastError = ""
}

// Started records that t is audible from position 0.
func (s *State) Started(t track.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Status = StatusPlaying
	s.CurrentTrack = &t
	s.IsPlaying = true
	s.Progress = 0
	s.CurrentTime = 0
	if t.Duration > 0 {
		s.Duration = float64(t.Duration)
	}
}

// Reloaded records a restart of the current track from position 0.
func (s *State) Reloaded(playing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Progress = 0
	s.CurrentTime = 0
	s.IsPlaying = playing
	if playing {
		s.Status = StatusPlaying
	} else {
		s.Status = StatusPaused
	}
}

// SetPlaying mirrors the output's paused flag.
func (s *State) SetPlaying(playing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.IsPlaying = playing
	if playing {
		s.Status = StatusPlaying
	} else {
		s.Status = StatusPaused
	}
}

// UpdateTime applies a time update. Progress keeps its last value when the
// duration is unknown.
func (s *State) UpdateTime(current, duration float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CurrentTime = current
	if duration > 0 {
		s.Duration = duration
	}
	if s.Duration > 0 {
		s.Progress = clampPercent(current / s.Duration * 100)
	}
	return s.Progress
}

// SetStreamFormat records the decoded stream format.
func (s *State) SetStreamFormat(format string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StreamFormat = format
}

// End marks the current track as finished.
func (s *State) End() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Status = StatusEnded
	s.IsPlaying = false
	s.Progress = 100
	if s.Duration > 0 {
		s.CurrentTime = s.Duration
	}
}

// Fail records a playback error.
func (s *State) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Status = StatusErrored
	s.IsPlaying = false
	if err != nil {
		s.LastError = err.Error()
	}
}

// Stop returns the state to idle, keeping the last track for display.
func (s *State) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Status = StatusIdle
	s.IsPlaying = false
	s.Progress = 0
	s.CurrentTime = 0
}

// SetVolume sets the volume level (0-100). Zero means muted.
func (s *State) SetVolume(volume int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Volume = ClampVolume(volume)
	s.Muted = s.Volume == 0
	return s.Volume
}

// SetQuality sets the stream quality.
func (s *State) SetQuality(q track.Quality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Quality = q
}

// SetRepeat sets the repeat mode.
func (s *State) SetRepeat(repeat bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Repeat = repeat
}

// SetShuffle sets the shuffle mode.
func (s *State) SetShuffle(shuffle bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Shuffle = shuffle
}

// Current returns the current track, if any.
func (s *State) Current() (track.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.CurrentTrack == nil {
		return track.Track{}, false
	}
	return *s.CurrentTrack, true
}

// GetStatus returns the engine status.
func (s *State) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// Playing reports the isPlaying intent.
func (s *State) Playing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.IsPlaying
}

// Timing returns current time and duration in seconds.
func (s *State) Timing() (current, duration float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CurrentTime, s.Duration
}

// GetQuality returns the stream quality.
func (s *State) GetQuality() track.Quality {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Quality
}

// GetRepeat returns the repeat mode.
func (s *State) GetRepeat() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Repeat
}

// ToJSON returns the state as a map suitable for JSON serialization.
func (s *State) ToJSON() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var current interface{}
	if s.CurrentTrack != nil {
		current = *s.CurrentTrack
	}

	return map[string]interface{}{
		"status":       s.Status,
		"currentTrack": current,
		"isPlaying":    s.IsPlaying,
		"progress":     s.Progress,
		"currentTime":  s.CurrentTime,
		"duration":     s.Duration,
		"volume":       s.Volume,
		"mute":         s.Muted,
		"quality":      s.Quality,
		"repeat":       s.Repeat,
		"shuffle":      s.Shuffle,
		"streamFormat": s.StreamFormat,
		"error":        s.LastError,
	}
}

// Clone returns a copy of the current state.
func (s *State) Clone() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var current *track.Track
	if s.CurrentTrack != nil {
		t := *s.CurrentTrack
		current = &t
	}

	return &State{
		Status:       s.Status,
		CurrentTrack: current,
		IsPlaying:    s.IsPlaying,
		Progress:     s.Progress,
		CurrentTime:  s.CurrentTime,
		Duration:     s.Duration,
		Volume:       s.Volume,
		Muted:        s.Muted,
		Quality:      s.Quality,
		Repeat:       s.Repeat,
		Shuffle:      s.Shuffle,
		StreamFormat: s.StreamFormat,
		LastError:    s.LastError,
	}
}

// ClampVolume limits a volume to 0-100.
func ClampVolume(volume int) int {
	if volume < 0 {
		return 0
	} else if volume > 100 {
		return 100
	}
	return volume
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	} else if p > 100 {
		return 100
	}
	return p
}
