package lifecycle

import (
	"fmt"
	"time"
)

// KeepalivePolicy decides how often the audio context is re-asserted while
// playing. A zero interval disables the periodic check.
type KeepalivePolicy interface {
	Interval() time.Duration
}

// NoopKeepalive never runs periodic checks.
type NoopKeepalive struct{}

func (NoopKeepalive) Interval() time.Duration { return 0 }

// IntervalKeepalive re-asserts the audio context every Every.
type IntervalKeepalive struct {
	Every time.Duration
}

func (p IntervalKeepalive) Interval() time.Duration { return p.Every }

// Keepalive policy names accepted by PolicyFor.
const (
	PolicyNone     = "none"
	PolicyInterval = "interval"
)

// PolicyFor returns the named policy.
func PolicyFor(name string, every time.Duration) (KeepalivePolicy, error) {
	switch name {
	case "", PolicyNone:
		return NoopKeepalive{}, nil
	case PolicyInterval:
		if every <= 0 {
			return nil, fmt.Errorf("keepalive interval must be positive, got %s", every)
		}
		return IntervalKeepalive{Every: every}, nil
	default:
		return nil, fmt.Errorf("unknown keepalive policy %q", name)
	}
}
