package mpd_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	gompd "github.com/fhs/gompd/v2/mpd"

	"github.com/edumarques81/stellar-stream-client/internal/domain/lifecycle"
	"github.com/edumarques81/stellar-stream-client/internal/domain/player"
	"github.com/edumarques81/stellar-stream-client/internal/infra/mpd"
)

type fakeConn struct {
	mu       sync.Mutex
	attrs    gompd.Attrs
	down     bool
	commands []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{attrs: gompd.Attrs{"state": "stop"}}
}

func (f *fakeConn) set(kv ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			delete(f.attrs, kv[i])
			continue
		}
		f.attrs[kv[i]] = kv[i+1]
	}
}

func (f *fakeConn) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeConn) record(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("connection refused")
	}
	f.commands = append(f.commands, cmd)
	return nil
}

func (f *fakeConn) has(cmd string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.commands {
		if c == cmd {
			return true
		}
	}
	return false
}

func (f *fakeConn) Status() (gompd.Attrs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errors.New("connection refused")
	}
	out := gompd.Attrs{}
	for k, v := range f.attrs {
		out[k] = v
	}
	return out, nil
}

func (f *fakeConn) Play(pos int) error {
	if err := f.record(fmt.Sprintf("play %d", pos)); err != nil {
		return err
	}
	f.set("state", "play")
	return nil
}

func (f *fakeConn) Pause(pause bool) error {
	if err := f.record(fmt.Sprintf("pause %v", pause)); err != nil {
		return err
	}
	if pause {
		f.set("state", "pause")
	} else {
		f.set("state", "play")
	}
	return nil
}

func (f *fakeConn) Stop() error {
	if err := f.record("stop"); err != nil {
		return err
	}
	f.set("state", "stop")
	return nil
}

func (f *fakeConn) SeekCur(s float64) error { return f.record(fmt.Sprintf("seekcur %.1f", s)) }
func (f *fakeConn) SetVolume(v int) error   { return f.record(fmt.Sprintf("setvol %d", v)) }
func (f *fakeConn) Clear() error            { return f.record("clear") }
func (f *fakeConn) Add(uri string) error    { return f.record("add " + uri) }

func (f *fakeConn) ClearError() error {
	if err := f.record("clearerror"); err != nil {
		return err
	}
	f.set("error", "")
	return nil
}

func drain(ch <-chan player.OutputEvent) []player.OutputEvent {
	var out []player.OutputEvent
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func loadAndPlay(t *testing.T, o *mpd.Output) uint64 {
	t.Helper()
	ctx := context.Background()
	seq, err := o.Load(ctx, "http://server/api/tracks/1/stream")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := o.Play(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}
	return seq
}

func TestOutputLoad(t *testing.T) {
	conn := newFakeConn()
	o := mpd.NewOutput(conn)

	first, err := o.Load(context.Background(), "http://a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, _ := o.Load(context.Background(), "http://b")

	if second <= first {
		t.Errorf("expected increasing sequence, got %d then %d", first, second)
	}
	if !conn.has("clear") || !conn.has("add http://b") {
		t.Errorf("expected queue replaced, got %v", conn.commands)
	}
	if !o.Paused() {
		t.Error("a loaded stream should not play until Play")
	}
}

func TestOutputPlayWithoutLoad(t *testing.T) {
	o := mpd.NewOutput(newFakeConn())
	if err := o.Play(context.Background()); !errors.Is(err, player.ErrNoTrack) {
		t.Errorf("expected ErrNoTrack, got %v", err)
	}
}

func TestOutputTimeUpdates(t *testing.T) {
	conn := newFakeConn()
	o := mpd.NewOutput(conn)
	seq := loadAndPlay(t, o)

	conn.set("elapsed", "12.500", "duration", "200.000", "audio", "44100:16:2")
	o.Poll()
	o.Poll() // unchanged, no event

	conn.set("elapsed", "", "duration", "", "time", "13:200")
	o.Poll()

	events := drain(o.Events())
	if len(events) != 2 {
		t.Fatalf("expected 2 time updates, got %d: %+v", len(events), events)
	}
	ev := events[0]
	if ev.Kind != player.OutputTimeUpdate || ev.Seq != seq || ev.CurrentTime != 12.5 || ev.Duration != 200 {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Format != "PCM 44.1kHz 16-bit" {
		t.Errorf("unexpected format %q", ev.Format)
	}
	if events[1].CurrentTime != 13 || events[1].Duration != 200 {
		t.Errorf("expected legacy time field parsed, got %+v", events[1])
	}
	if events[1].Format != ev.Format {
		t.Errorf("format lost between updates: %q", events[1].Format)
	}

	conn.set("time", "14:200", "audio", "96000:24:2")
	o.Poll()
	events = drain(o.Events())
	if len(events) != 1 || events[0].Format != "PCM 96kHz 24-bit" {
		t.Errorf("expected format change on next update, got %+v", events)
	}
}

func TestOutputEnded(t *testing.T) {
	conn := newFakeConn()
	o := mpd.NewOutput(conn)
	seq := loadAndPlay(t, o)

	conn.set("elapsed", "199", "duration", "200")
	o.Poll()
	conn.set("state", "stop", "elapsed", "", "duration", "")
	o.Poll()
	o.Poll()

	var ended []player.OutputEvent
	for _, ev := range drain(o.Events()) {
		if ev.Kind == player.OutputEnded {
			ended = append(ended, ev)
		}
	}
	if len(ended) != 1 || ended[0].Seq != seq {
		t.Fatalf("expected one ended event for seq %d, got %+v", seq, ended)
	}
	if !o.Paused() {
		t.Error("output should not be playing after the stream ended")
	}
}

func TestOutputStopDoesNotEnd(t *testing.T) {
	conn := newFakeConn()
	o := mpd.NewOutput(conn)
	loadAndPlay(t, o)
	o.Poll()

	if err := o.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	o.Poll()

	for _, ev := range drain(o.Events()) {
		if ev.Kind == player.OutputEnded {
			t.Error("our own stop must not produce an ended event")
		}
	}
}

func TestOutputError(t *testing.T) {
	conn := newFakeConn()
	o := mpd.NewOutput(conn)
	loadAndPlay(t, o)

	conn.set("state", "stop", "error", "Failed to open stream")
	o.Poll()
	o.Poll()

	events := drain(o.Events())
	if len(events) != 1 || events[0].Kind != player.OutputError {
		t.Fatalf("expected a single error event, got %+v", events)
	}
	if events[0].Err == nil || events[0].Err.Error() != "Failed to open stream" {
		t.Errorf("unexpected error %v", events[0].Err)
	}
	if !conn.has("clearerror") {
		t.Error("expected the MPD error to be cleared")
	}
}

func TestOutputPauseResumeAndSeek(t *testing.T) {
	conn := newFakeConn()
	o := mpd.NewOutput(conn)
	loadAndPlay(t, o)
	ctx := context.Background()

	if err := o.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !o.Paused() || !conn.has("pause true") {
		t.Error("expected paused")
	}
	if err := o.Play(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if o.Paused() || !conn.has("pause false") {
		t.Error("expected resume from pause")
	}

	if err := o.Seek(42); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if !conn.has("seekcur 42.0") {
		t.Errorf("expected seekcur, got %v", conn.commands)
	}

	if err := o.SetVolume(0.5); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	if !conn.has("setvol 50") {
		t.Errorf("expected setvol 50, got %v", conn.commands)
	}
}

func TestOutputSeekWhileStopped(t *testing.T) {
	conn := newFakeConn()
	o := mpd.NewOutput(conn)
	if _, err := o.Load(context.Background(), "http://a"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := o.Seek(30); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if conn.has("seekcur 30.0") {
		t.Fatal("seek should wait for Play while stopped")
	}
	if err := o.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if !conn.has("seekcur 30.0") {
		t.Error("expected pending seek applied on Play")
	}
}

func TestOutputAudioContext(t *testing.T) {
	t.Run("outside pause suspends", func(t *testing.T) {
		conn := newFakeConn()
		o := mpd.NewOutput(conn)
		loadAndPlay(t, o)

		conn.set("state", "pause")
		o.Poll()

		if o.State() != lifecycle.ContextSuspended {
			t.Fatalf("expected suspended, got %s", o.State())
		}
		select {
		case st := <-o.StateChanges():
			if st != lifecycle.ContextSuspended {
				t.Errorf("expected suspended change, got %s", st)
			}
		default:
			t.Error("expected a state change")
		}

		if err := o.Resume(context.Background()); err != nil {
			t.Fatalf("Resume: %v", err)
		}
		if o.State() != lifecycle.ContextRunning || !conn.has("pause false") {
			t.Errorf("expected resumed, state %s commands %v", o.State(), conn.commands)
		}
	})

	t.Run("own pause stays running", func(t *testing.T) {
		conn := newFakeConn()
		o := mpd.NewOutput(conn)
		loadAndPlay(t, o)

		if err := o.Pause(); err != nil {
			t.Fatalf("Pause: %v", err)
		}
		o.Poll()

		if o.State() != lifecycle.ContextRunning {
			t.Errorf("expected running, got %s", o.State())
		}
	})

	t.Run("lost connection restores position", func(t *testing.T) {
		conn := newFakeConn()
		o := mpd.NewOutput(conn)
		loadAndPlay(t, o)

		conn.set("elapsed", "80", "duration", "200")
		o.Poll()

		conn.setDown(true)
		o.Poll()
		if o.State() != lifecycle.ContextSuspended {
			t.Fatalf("expected suspended on lost connection, got %s", o.State())
		}

		conn.setDown(false)
		conn.set("state", "stop", "elapsed", "", "duration", "")
		o.Poll()
		for _, ev := range drain(o.Events()) {
			if ev.Kind == player.OutputEnded {
				t.Fatal("a reconnect must not look like the end of the stream")
			}
		}

		if err := o.Resume(context.Background()); err != nil {
			t.Fatalf("Resume: %v", err)
		}
		if !conn.has("seekcur 80.0") {
			t.Errorf("expected position restored, got %v", conn.commands)
		}
	})

	t.Run("closed", func(t *testing.T) {
		o := mpd.NewOutput(newFakeConn())
		o.Close()
		if o.State() != lifecycle.ContextClosed {
			t.Errorf("expected closed, got %s", o.State())
		}
		if err := o.Resume(context.Background()); !errors.Is(err, mpd.ErrOutputClosed) {
			t.Errorf("expected ErrOutputClosed, got %v", err)
		}
	})
}

var (
	_ player.Output          = (*mpd.Output)(nil)
	_ lifecycle.AudioContext = (*mpd.Output)(nil)
	_ mpd.Conn               = (*mpd.Client)(nil)
)
