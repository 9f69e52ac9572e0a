package socketio

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/edumarques81/stellar-stream-client/internal/domain/lifecycle"
	"github.com/edumarques81/stellar-stream-client/internal/domain/track"
)

var errMissingPayload = errors.New("missing payload")

// decode converts a socket.io argument (already JSON-decoded into maps and
// slices) into v.
func decode(args []any, v any) error {
	if len(args) == 0 || args[0] == nil {
		return errMissingPayload
	}
	b, err := json.Marshal(args[0])
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// trackArg accepts either a bare track or {"track": {...}}.
func trackArg(args []any) (track.Track, error) {
	var wrapped struct {
		Track *track.Track `json:"track"`
	}
	if err := decode(args, &wrapped); err != nil {
		return track.Track{}, err
	}
	if wrapped.Track != nil {
		return validTrack(*wrapped.Track)
	}

	var t track.Track
	if err := decode(args, &t); err != nil {
		return track.Track{}, err
	}
	return validTrack(t)
}

func validTrack(t track.Track) (track.Track, error) {
	if t.ID == "" && (t.Title == "" || t.ArtistName == "") {
		return track.Track{}, fmt.Errorf("track needs an id or a title and artist")
	}
	return t, nil
}

// tracksArg accepts a track list, {"tracks": [...]}, or a single track.
func tracksArg(args []any) ([]track.Track, error) {
	if len(args) > 0 {
		if _, ok := args[0].([]any); ok {
			var list []track.Track
			if err := decode(args, &list); err != nil {
				return nil, err
			}
			return validTracks(list)
		}
	}

	var wrapped struct {
		Tracks []track.Track `json:"tracks"`
	}
	if err := decode(args, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Tracks != nil {
		return validTracks(wrapped.Tracks)
	}

	t, err := trackArg(args)
	if err != nil {
		return nil, err
	}
	return []track.Track{t}, nil
}

func validTracks(list []track.Track) ([]track.Track, error) {
	for i, t := range list {
		if _, err := validTrack(t); err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
	}
	return list, nil
}

// numberArg accepts a number or {"value": number}.
func numberArg(args []any) (float64, error) {
	if len(args) == 0 {
		return 0, errMissingPayload
	}
	switch v := args[0].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case map[string]any:
		if f, ok := v["value"].(float64); ok {
			return f, nil
		}
	}
	return 0, fmt.Errorf("expected a number, got %T", args[0])
}

// boolArg accepts a bool or {"value": bool}.
func boolArg(args []any) (bool, error) {
	if len(args) == 0 {
		return false, errMissingPayload
	}
	switch v := args[0].(type) {
	case bool:
		return v, nil
	case map[string]any:
		if b, ok := v["value"].(bool); ok {
			return b, nil
		}
	}
	return false, fmt.Errorf("expected a bool, got %T", args[0])
}

// stringArg accepts a string or {"value": string}.
func stringArg(args []any) (string, error) {
	if len(args) == 0 {
		return "", errMissingPayload
	}
	switch v := args[0].(type) {
	case string:
		return v, nil
	case map[string]any:
		if s, ok := v["value"].(string); ok {
			return s, nil
		}
	}
	return "", fmt.Errorf("expected a string, got %T", args[0])
}

// seekRequest is either a progress percentage or an absolute position.
type seekRequest struct {
	Percent *float64 `json:"percent"`
	Seconds *float64 `json:"seconds"`
}

// seekArg accepts a bare number (percent), {"percent": n} or {"seconds": n}.
func seekArg(args []any) (seekRequest, error) {
	if n, err := numberArg(args); err == nil {
		return seekRequest{Percent: &n}, nil
	}
	var req seekRequest
	if err := decode(args, &req); err != nil {
		return req, err
	}
	if req.Percent == nil && req.Seconds == nil {
		return req, fmt.Errorf("seek needs percent or seconds")
	}
	return req, nil
}

// visibilityArg accepts "hidden"/"visible", {"state": ...} or {"hidden": bool}.
func visibilityArg(args []any) (lifecycle.Visibility, error) {
	if s, err := stringArg(args); err == nil {
		return parseVisibility(s)
	}

	var payload struct {
		State  string `json:"state"`
		Hidden *bool  `json:"hidden"`
	}
	if err := decode(args, &payload); err != nil {
		return "", err
	}
	if payload.Hidden != nil {
		if *payload.Hidden {
			return lifecycle.VisibilityHidden, nil
		}
		return lifecycle.VisibilityVisible, nil
	}
	return parseVisibility(payload.State)
}

func parseVisibility(s string) (lifecycle.Visibility, error) {
	switch v := lifecycle.Visibility(s); v {
	case lifecycle.VisibilityHidden, lifecycle.VisibilityVisible:
		return v, nil
	}
	return "", fmt.Errorf("unknown visibility %q", s)
}

// actionArg accepts "play" or {"action": "seekto", "seekTime": 30}.
func actionArg(args []any) (lifecycle.ActionDetails, error) {
	if s, ok := firstString(args); ok {
		return lifecycle.ActionDetails{Action: lifecycle.Action(s)}, nil
	}
	var d lifecycle.ActionDetails
	if err := decode(args, &d); err != nil {
		return d, err
	}
	if d.Action == "" {
		return d, fmt.Errorf("media action without a name")
	}
	return d, nil
}

func firstString(args []any) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	s, ok := args[0].(string)
	return s, ok
}

// indexArg accepts a number or {"index": number}.
func indexArg(args []any) (int, error) {
	if n, err := numberArg(args); err == nil {
		return int(n), nil
	}
	var payload struct {
		Index *int `json:"index"`
	}
	if err := decode(args, &payload); err != nil {
		return 0, err
	}
	if payload.Index == nil {
		return 0, fmt.Errorf("missing index")
	}
	return *payload.Index, nil
}
