package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-stream-client/internal/domain/track"
)

const (
	progressBuffer = 8
	maxEventSize   = 64 * 1024
)

// SubscribeDownloadProgress follows the server's progress stream for a track.
// The returned channel receives every status and is closed after a terminal
// one, when ctx ends, or after a failed status once reconnects are exhausted.
func (c *Client) SubscribeDownloadProgress(ctx context.Context, trackID string, quality track.Quality) (<-chan track.DownloadStatus, error) {
	body, err := c.openStream(ctx, trackID, quality)
	if err != nil && !retryable(err) {
		return nil, fmt.Errorf("subscribe progress: %w", err)
	}

	out := make(chan track.DownloadStatus, progressBuffer)
	go c.followProgress(ctx, trackID, quality, body, err, out)
	return out, nil
}

func (c *Client) followProgress(ctx context.Context, id string, quality track.Quality, body io.ReadCloser, lastErr error, out chan<- track.DownloadStatus) {
	defer close(out)

	failures := 0
	if lastErr != nil {
		failures = 1
	}

	for {
		if body == nil {
			if failures > c.maxRetries {
				log.Warn().Err(lastErr).Str("id", id).Msg("Download progress stream gave up")
				c.sendFailed(ctx, out, id, lastErr)
				return
			}

			wait := c.backoff(failures)
			log.Debug().Str("id", id).Int("attempt", failures).Dur("wait", wait).Err(lastErr).Msg("Reconnecting download progress stream")
			if err := c.sleep(ctx, wait); err != nil {
				return
			}

			body, lastErr = c.openStream(ctx, id, quality)
			if lastErr != nil {
				if ctx.Err() != nil {
					return
				}
				if !retryable(lastErr) {
					c.sendFailed(ctx, out, id, lastErr)
					return
				}
				failures++
				continue
			}
		}

		terminal, received, err := readEvents(ctx, body, id, out)
		body.Close()
		body = nil

		if terminal || ctx.Err() != nil {
			return
		}
		if received {
			failures = 0
		}
		failures++
		lastErr = err
	}
}

func (c *Client) openStream(ctx context.Context, id string, quality track.Quality) (io.ReadCloser, error) {
	path := "/api/tracks/" + url.PathEscape(id) + "/progress"
	if quality != "" {
		path += "?" + url.Values{"quality": {string(quality)}}.Encode()
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTemporaryFailure, err)
	}

	if err := statusError(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// readEvents forwards "data:" events until the stream ends. It reports
// whether a terminal status was seen and whether any status was received.
func readEvents(ctx context.Context, r io.Reader, id string, out chan<- track.DownloadStatus) (terminal, received bool, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxEventSize)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			st, ok := decodeStatus(data.String(), id)
			data.Reset()
			if !ok {
				continue
			}

			received = true
			select {
			case out <- st:
			case <-ctx.Done():
				return false, received, ctx.Err()
			}
			if st.Status.Terminal() {
				return true, received, nil
			}

		case strings.HasPrefix(line, ":"):
			// comment / heartbeat

		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if err := scanner.Err(); err != nil {
		return false, received, err
	}
	return false, received, io.ErrUnexpectedEOF
}

func decodeStatus(payload, id string) (track.DownloadStatus, bool) {
	var st track.DownloadStatus
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Ignoring malformed download progress event")
		return st, false
	}
	if st.TrackID == "" {
		st.TrackID = id
	}
	return st, true
}

func (c *Client) sendFailed(ctx context.Context, out chan<- track.DownloadStatus, id string, err error) {
	st := track.DownloadStatus{TrackID: id, Status: track.DownloadFailed}
	if err != nil {
		st.Error = "progress stream: " + err.Error()
	}
	select {
	case out <- st:
	case <-ctx.Done():
	}
}
