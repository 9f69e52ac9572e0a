package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-stream-client/internal/domain/track"
)

type prepareRequest struct {
	Title               string `json:"title"`
	ArtistName          string `json:"artistName"`
	AlbumName           string `json:"albumName,omitempty"`
	ExternalReferenceID string `json:"externalReferenceId,omitempty"`
	ExternalLink        string `json:"externalLink,omitempty"`
}

type prepareResponse struct {
	Track          track.Track           `json:"track"`
	DownloadStatus *track.DownloadStatus `json:"downloadStatus,omitempty"`
}

type similarResponse struct {
	Tracks []track.Track `json:"tracks"`
}

// PrepareTrack asks the server to make a track stream-ready.
func (c *Client) PrepareTrack(ctx context.Context, partial track.Track) (track.PrepareResult, error) {
	req := prepareRequest{
		Title:               partial.Title,
		ArtistName:          partial.ArtistName,
		AlbumName:           partial.AlbumName,
		ExternalReferenceID: partial.ExternalReferenceID,
		ExternalLink:        partial.ExternalLink,
	}

	var resp prepareResponse
	if err := c.do(ctx, http.MethodPost, "/api/tracks/prepare", req, &resp); err != nil {
		return track.PrepareResult{}, fmt.Errorf("prepare track: %w", err)
	}

	res := track.PrepareResult{Track: resp.Track}
	if resp.DownloadStatus != nil {
		res.Status = *resp.DownloadStatus
		if res.Status.TrackID == "" {
			res.Status.TrackID = resp.Track.ID
		}
	}

	log.Debug().
		Str("track", partial.String()).
		Str("id", res.Track.ID).
		Str("status", string(res.Status.Status)).
		Msg("Track prepared")

	return res, nil
}

// SimilarTracks returns tracks similar to the given resolved track.
func (c *Client) SimilarTracks(ctx context.Context, trackID string) ([]track.Track, error) {
	var resp similarResponse
	path := "/api/tracks/" + url.PathEscape(trackID) + "/similar"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("similar tracks: %w", err)
	}

	log.Debug().Str("id", trackID).Int("count", len(resp.Tracks)).Msg("Similar tracks fetched")
	return resp.Tracks, nil
}
