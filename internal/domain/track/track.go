// Package track provides the track model and the resolver that turns
// descriptive metadata into a playable track.
package track

import (
	"fmt"
	"strings"
)

// Quality is a requested stream encoding.
type Quality string

// Supported stream qualities
const (
	Quality128  Quality = "128"
	Quality192  Quality = "192"
	Quality256  Quality = "256"
	Quality320  Quality = "320"
	QualityFLAC Quality = "flac"

	// DefaultQuality is used when no preference has been persisted.
	DefaultQuality = Quality320
)

// Qualities lists every supported quality, lowest first.
var Qualities = []Quality{Quality128, Quality192, Quality256, Quality320, QualityFLAC}

// ParseQuality validates a quality string.
func ParseQuality(s string) (Quality, error) {
	q := Quality(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Qualities {
		if q == known {
			return q, nil
		}
	}
	return "", fmt.Errorf("unknown quality %q", s)
}

// Track is a playable or pre-playable unit.
// A track with an ID is resolved and can be streamed immediately.
type Track struct {
	ID                  string `json:"id,omitempty"`
	Title               string `json:"title"`
	ArtistName          string `json:"artistName"`
	AlbumName           string `json:"albumName,omitempty"`
	AlbumCover          string `json:"albumCover,omitempty"`
	Duration            int    `json:"duration,omitempty"` // seconds
	ExternalReferenceID string `json:"externalReferenceId,omitempty"`
	ExternalLink        string `json:"externalLink,omitempty"`
}

// IsResolved reports whether the track carries a playable identifier.
func (t Track) IsResolved() bool {
	return t.ID != ""
}

// Key returns a stable identity built from title, artist and album.
// Two tracks with the same key are treated as the same queue entry.
func (t Track) Key() string {
	return normalize(t.Title) + "\x00" + normalize(t.ArtistName) + "\x00" + normalize(t.AlbumName)
}

// SameAs reports whether two tracks share a stable key.
func (t Track) SameAs(other Track) bool {
	return t.Key() == other.Key()
}

// String returns "Artist - Title" for logging.
func (t Track) String() string {
	if t.ArtistName == "" {
		return t.Title
	}
	return t.ArtistName + " - " + t.Title
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// DownloadState is the server-side preparation state of a track.
type DownloadState string

const (
	DownloadNotStarted  DownloadState = "not_started"
	DownloadSearching   DownloadState = "searching"
	DownloadDownloading DownloadState = "downloading"
	DownloadReady       DownloadState = "ready"
	DownloadFailed      DownloadState = "failed"
)

// Terminal reports whether no further updates follow this state.
func (s DownloadState) Terminal() bool {
	return s == DownloadReady || s == DownloadFailed
}

// DownloadStatus is a server-pushed progress report for a track preparation.
type DownloadStatus struct {
	TrackID  string        `json:"trackId,omitempty"`
	Status   DownloadState `json:"status"`
	Progress float64       `json:"progress"`
	Quality  string        `json:"quality,omitempty"`
	Duration int           `json:"duration,omitempty"`
	FileSize int64         `json:"fileSize,omitempty"`
	Error    string        `json:"error,omitempty"`
}
