// Package stream builds playable media URLs for resolved tracks.
package stream

import (
	"net/url"
	"strings"

	"github.com/edumarques81/stellar-stream-client/internal/domain/track"
)

// BuildURL returns the stream URL for a resolved track id.
// An empty quality leaves the choice to the server.
func BuildURL(baseURL, resolvedID, credential string, quality track.Quality) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(baseURL, "/"))
	b.WriteString("/api/tracks/")
	b.WriteString(url.PathEscape(resolvedID))
	b.WriteString("/stream")

	q := url.Values{}
	q.Set("token", credential)
	if quality != "" {
		q.Set("quality", string(quality))
	}
	b.WriteString("?")
	b.WriteString(q.Encode())

	return b.String()
}

// Builder binds the server base URL and access credential.
type Builder struct {
	baseURL    string
	credential string
}

// NewBuilder creates a Builder.
func NewBuilder(baseURL, credential string) *Builder {
	return &Builder{baseURL: baseURL, credential: credential}
}

// URL returns the stream URL for id at the given quality.
func (b *Builder) URL(id string, quality track.Quality) string {
	return BuildURL(b.baseURL, id, b.credential, quality)
}
