package queue

import "context"

// Threshold is a narrow progress band, in percent, that triggers an action.
type Threshold struct {
	At     float64
	Window float64
}

// Crossed reports whether moving from prev to cur enters the band, either by
// landing inside it or by jumping over its start in one tick.
func (th Threshold) Crossed(prev, cur float64) bool {
	if cur >= th.At && cur < th.At+th.Window {
		return true
	}
	return prev < th.At && cur >= th.At
}

// actionState is the per-playthrough state of a background action.
type actionState int

const (
	actionIdle actionState = iota
	actionInFlight
	actionDone
)

// action is the guard of one background action. It belongs to the
// playthrough that started it; a new playthrough cancels it and re-arms.
type action struct {
	state       actionState
	playthrough uint64
	cancel      context.CancelFunc
}

// start marks the action in flight for playthrough and returns its context.
func (a *action) start(parent context.Context, playthrough uint64) context.Context {
	ctx, cancel := context.WithCancel(parent)
	a.state = actionInFlight
	a.playthrough = playthrough
	a.cancel = cancel
	return ctx
}

// reset cancels a running action and returns the guard to idle.
func (a *action) reset() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.state = actionIdle
}

// finish settles the guard when the run for playthrough returns. It reports
// false when the run is stale and its result must be dropped.
func (a *action) finish(playthrough uint64, ok bool) bool {
	if a.playthrough != playthrough || a.state != actionInFlight {
		return false
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if ok {
		a.state = actionDone
	} else {
		a.state = actionIdle
	}
	return true
}
