// Package socketio is the Socket.io surface of the client: remote transport
// control, state pushes and the now-playing media session.
package socketio

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/edumarques81/stellar-stream-client/internal/domain/lifecycle"
	"github.com/edumarques81/stellar-stream-client/internal/domain/player"
	"github.com/edumarques81/stellar-stream-client/internal/domain/track"
)

// DefaultDebounce is the broadcast debounce window.
const DefaultDebounce = 100 * time.Millisecond

// Transport is the playback engine surface driven by remote clients.
type Transport interface {
	State() *player.State
	Play(ctx context.Context, t track.Track) error
	TogglePlay(ctx context.Context) error
	Resume(ctx context.Context) error
	Pause() error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Stop() error
	Seek(percent float64) error
	SeekTo(seconds float64) error
	ChangeVolume(percent int) error
	ChangeQuality(ctx context.Context, q track.Quality) error
	SetRepeat(on bool)
	SetShuffle(on bool)
	Subscribe() <-chan player.Event
	Unsubscribe(ch <-chan player.Event)
}

// Queue is the queue surface driven by remote clients.
type Queue interface {
	Tracks() []track.Track
	Add(tracks ...track.Track)
	SetQueue(tracks []track.Track)
	Clear()
	Remove(i int) error
	FillQueue(ctx context.Context) error
	Subscribe() <-chan []track.Track
	Unsubscribe(ch <-chan []track.Track)
}

// VisibilityHandler receives visibility reports from clients.
type VisibilityHandler interface {
	HandleVisibility(ctx context.Context, v lifecycle.Visibility)
}

// Server handles Socket.io connections and events. It also implements
// lifecycle.MediaSession.
type Server struct {
	io        *socket.Server
	transport Transport
	queue     Queue
	sessionID string
	limiter   *ConnectionLimiter
	debouncer *Debouncer
	window    time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	clients    map[string]*socket.Socket
	visibility VisibilityHandler
	supported  map[lifecycle.Action]bool
	handlers   map[lifecycle.Action]lifecycle.ActionHandler
	nowPlaying *lifecycle.Metadata
	playback   lifecycle.PlaybackState
}

// Option configures a Server.
type Option func(*Server)

// WithSessionID sets the id published with now-playing pushes.
func WithSessionID(id string) Option {
	return func(s *Server) {
		if id != "" {
			s.sessionID = id
		}
	}
}

// WithMaxRemoteClients caps concurrent non-loopback clients; 0 disables it.
func WithMaxRemoteClients(n int) Option {
	return func(s *Server) {
		s.limiter = NewConnectionLimiter(n)
	}
}

// WithSupportedActions restricts the media actions this surface accepts.
func WithSupportedActions(actions ...lifecycle.Action) Option {
	return func(s *Server) {
		s.supported = make(map[lifecycle.Action]bool, len(actions))
		for _, a := range actions {
			s.supported[a] = true
		}
	}
}

// WithDebounce sets the broadcast debounce window.
func WithDebounce(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.window = d
		}
	}
}

// NewServer creates a new Socket.io server.
func NewServer(transport Transport, queue Queue, opts ...Option) (*Server, error) {
	ioOpts := socket.DefaultServerOptions()
	ioOpts.SetPingTimeout(20 * time.Second)
	ioOpts.SetPingInterval(25 * time.Second)
	ioOpts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		io:        socket.NewServer(nil, ioOpts),
		transport: transport,
		queue:     queue,
		sessionID: uuid.New().String(),
		limiter:   NewConnectionLimiter(0),
		window:    DefaultDebounce,
		ctx:       ctx,
		cancel:    cancel,
		clients:   make(map[string]*socket.Socket),
		handlers:  make(map[lifecycle.Action]lifecycle.ActionHandler),
		playback:  lifecycle.PlaybackNone,
	}
	WithSupportedActions(lifecycle.Actions...)(s)

	for _, opt := range opts {
		opt(s)
	}

	s.debouncer = NewDebouncer(s.window, s.flush)
	s.setupHandlers()

	return s, nil
}

// SessionID returns the now-playing session id.
func (s *Server) SessionID() string { return s.sessionID }

// SetVisibilityHandler routes client visibility reports.
func (s *Server) SetVisibilityHandler(h VisibilityHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visibility = h
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())
		addr := client.Handshake().Address

		log.Info().Str("id", clientID).Str("addr", addr).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		if evicted := s.limiter.Add(clientID, addr); evicted != "" {
			s.evict(evicted)
		}

		// Send initial state after small delay
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.pushState(client)
			s.pushQueue(client)
			s.pushNowPlaying(client)
		}()

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.limiter.Remove(clientID)
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		s.registerPlayerEvents(client, clientID)
		s.registerQueueEvents(client, clientID)
		s.registerSessionEvents(client, clientID)
	})
}

func (s *Server) registerPlayerEvents(client *socket.Socket, clientID string) {
	client.On("getState", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("getState")
		s.pushState(client)
	})

	client.On("play", func(args ...any) {
		log.Debug().Str("id", clientID).Interface("data", args).Msg("play")
		if len(args) == 0 || args[0] == nil {
			s.async("resume", func(ctx context.Context) error { return s.transport.Resume(ctx) })
			return
		}
		t, err := trackArg(args)
		if err != nil {
			s.reject(client, "play", err)
			return
		}
		s.async("play", func(ctx context.Context) error { return s.transport.Play(ctx, t) })
	})

	client.On("toggle", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("toggle")
		s.async("toggle", s.transport.TogglePlay)
	})

	client.On("pause", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("pause")
		s.async("pause", func(context.Context) error { return s.transport.Pause() })
	})

	client.On("stop", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("stop")
		s.async("stop", func(context.Context) error { return s.transport.Stop() })
	})

	client.On("next", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("next")
		s.async("next", s.transport.Next)
	})

	client.On("prev", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("prev")
		s.async("prev", s.transport.Previous)
	})

	client.On("seek", func(args ...any) {
		req, err := seekArg(args)
		if err != nil {
			s.reject(client, "seek", err)
			return
		}
		log.Debug().Str("id", clientID).Interface("data", args).Msg("seek")
		s.async("seek", func(context.Context) error {
			if req.Seconds != nil {
				return s.transport.SeekTo(*req.Seconds)
			}
			return s.transport.Seek(*req.Percent)
		})
	})

	client.On("volume", func(args ...any) {
		vol, err := numberArg(args)
		if err != nil {
			s.reject(client, "volume", err)
			return
		}
		log.Debug().Str("id", clientID).Float64("vol", vol).Msg("volume")
		s.async("volume", func(context.Context) error { return s.transport.ChangeVolume(int(vol)) })
	})

	client.On("changeQuality", func(args ...any) {
		raw, err := stringArg(args)
		if err != nil {
			s.reject(client, "changeQuality", err)
			return
		}
		q, err := track.ParseQuality(raw)
		if err != nil {
			s.reject(client, "changeQuality", err)
			return
		}
		log.Debug().Str("id", clientID).Str("quality", string(q)).Msg("changeQuality")
		s.async("changeQuality", func(ctx context.Context) error { return s.transport.ChangeQuality(ctx, q) })
	})

	client.On("setRepeat", func(args ...any) {
		on, err := boolArg(args)
		if err != nil {
			s.reject(client, "setRepeat", err)
			return
		}
		log.Debug().Str("id", clientID).Bool("value", on).Msg("setRepeat")
		s.transport.SetRepeat(on)
	})

	client.On("setShuffle", func(args ...any) {
		on, err := boolArg(args)
		if err != nil {
			s.reject(client, "setShuffle", err)
			return
		}
		log.Debug().Str("id", clientID).Bool("value", on).Msg("setShuffle")
		s.transport.SetShuffle(on)
	})
}

func (s *Server) registerQueueEvents(client *socket.Socket, clientID string) {
	client.On("getQueue", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("getQueue")
		s.pushQueue(client)
	})

	client.On("addToQueue", func(args ...any) {
		tracks, err := tracksArg(args)
		if err != nil {
			s.reject(client, "addToQueue", err)
			return
		}
		log.Debug().Str("id", clientID).Int("count", len(tracks)).Msg("addToQueue")
		s.queue.Add(tracks...)
	})

	client.On("setQueue", func(args ...any) {
		tracks, err := tracksArg(args)
		if err != nil {
			s.reject(client, "setQueue", err)
			return
		}
		log.Debug().Str("id", clientID).Int("count", len(tracks)).Msg("setQueue")
		s.queue.SetQueue(tracks)
	})

	client.On("removeFromQueue", func(args ...any) {
		i, err := indexArg(args)
		if err == nil {
			err = s.queue.Remove(i)
		}
		if err != nil {
			s.reject(client, "removeFromQueue", err)
		}
	})

	client.On("clearQueue", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("clearQueue")
		s.queue.Clear()
	})

	client.On("fillQueue", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("fillQueue")
		go func() {
			if err := s.queue.FillQueue(s.ctx); err != nil {
				log.Warn().Err(err).Msg("FillQueue failed")
				s.reject(client, "fillQueue", err)
			}
		}()
	})
}

func (s *Server) registerSessionEvents(client *socket.Socket, clientID string) {
	client.On("getNowPlaying", func(args ...any) {
		s.pushNowPlaying(client)
	})

	client.On("visibility", func(args ...any) {
		v, err := visibilityArg(args)
		if err != nil {
			s.reject(client, "visibility", err)
			return
		}
		s.mu.RLock()
		h := s.visibility
		s.mu.RUnlock()
		if h != nil {
			go h.HandleVisibility(s.ctx, v)
		}
	})

	client.On("mediaAction", func(args ...any) {
		d, err := actionArg(args)
		if err != nil {
			s.reject(client, "mediaAction", err)
			return
		}
		log.Debug().Str("id", clientID).Str("action", string(d.Action)).Msg("mediaAction")
		go func() {
			if err := s.Dispatch(s.ctx, d); err != nil {
				log.Warn().Err(err).Str("action", string(d.Action)).Msg("Media action failed")
			}
		}()
	})
}

// async runs a transport call off the socket goroutine so a slow resolution
// never blocks a later superseding request.
func (s *Server) async(op string, fn func(context.Context) error) {
	go func() {
		if err := fn(s.ctx); err != nil {
			log.Warn().Err(err).Str("op", op).Msg("Remote command failed")
		}
	}()
}

func (s *Server) reject(client *socket.Socket, op string, err error) {
	log.Debug().Err(err).Str("op", op).Msg("Rejected remote command")
	client.Emit("pushError", map[string]any{"op": op, "error": err.Error()})
}

func (s *Server) evict(id string) {
	s.mu.RLock()
	client := s.clients[id]
	s.mu.RUnlock()
	if client == nil {
		return
	}
	log.Info().Str("id", id).Msg("Evicting oldest remote client")
	client.Disconnect(true)
}

// Dispatch runs the registered handler for a media action.
func (s *Server) Dispatch(ctx context.Context, d lifecycle.ActionDetails) error {
	s.mu.RLock()
	h := s.handlers[d.Action]
	s.mu.RUnlock()

	if h == nil {
		return lifecycle.ErrActionUnsupported
	}
	return h(ctx, d)
}

// SetActionHandler implements lifecycle.MediaSession.
func (s *Server) SetActionHandler(action lifecycle.Action, handler lifecycle.ActionHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.supported[action] {
		return lifecycle.ErrActionUnsupported
	}
	if handler == nil {
		delete(s.handlers, action)
		return nil
	}
	s.handlers[action] = handler
	return nil
}

// SetMetadata implements lifecycle.MediaSession.
func (s *Server) SetMetadata(m *lifecycle.Metadata) {
	s.mu.Lock()
	s.nowPlaying = m
	s.mu.Unlock()

	s.io.Emit("pushNowPlaying", s.nowPlayingPayload())
}

// SetPlaybackState implements lifecycle.MediaSession.
func (s *Server) SetPlaybackState(st lifecycle.PlaybackState) {
	s.mu.Lock()
	changed := s.playback != st
	s.playback = st
	s.mu.Unlock()

	if changed {
		s.io.Emit("pushPlaybackState", map[string]any{
			"sessionId": s.sessionID,
			"state":     st,
		})
	}
}

// NowPlaying returns the published metadata and playback state.
func (s *Server) NowPlaying() (*lifecycle.Metadata, lifecycle.PlaybackState) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowPlaying, s.playback
}

func (s *Server) nowPlayingPayload() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actions := make([]lifecycle.Action, 0, len(s.handlers))
	for _, a := range lifecycle.Actions {
		if s.handlers[a] != nil {
			actions = append(actions, a)
		}
	}

	return map[string]any{
		"sessionId":     s.sessionID,
		"metadata":      s.nowPlaying,
		"playbackState": s.playback,
		"actions":       actions,
	}
}

// pushState sends current state to a client.
func (s *Server) pushState(client *socket.Socket) {
	client.Emit("pushState", s.statePayload())
}

// pushQueue sends current queue to a client.
func (s *Server) pushQueue(client *socket.Socket) {
	client.Emit("pushQueue", s.queuePayload(s.queue.Tracks()))
}

func (s *Server) pushNowPlaying(client *socket.Socket) {
	client.Emit("pushNowPlaying", s.nowPlayingPayload())
}

func (s *Server) statePayload() map[string]interface{} {
	state := s.transport.State().ToJSON()
	state["sessionId"] = s.sessionID
	return state
}

func (s *Server) queuePayload(tracks []track.Track) map[string]interface{} {
	if tracks == nil {
		tracks = []track.Track{}
	}
	return map[string]interface{}{
		"tracks": tracks,
		"length": len(tracks),
	}
}

// BroadcastState sends state to all connected clients.
func (s *Server) BroadcastState() {
	state := s.statePayload()
	s.io.Emit("pushState", state)

	if log.Debug().Enabled() {
		data, _ := json.Marshal(state)
		s.mu.RLock()
		clientCount := len(s.clients)
		s.mu.RUnlock()
		log.Debug().RawJSON("state", data).Int("clients", clientCount).Msg("Broadcast state")
	}
}

// BroadcastQueue sends queue to all connected clients.
func (s *Server) BroadcastQueue() {
	s.io.Emit("pushQueue", s.queuePayload(s.queue.Tracks()))
}

// BroadcastDownloadStatus forwards a track preparation update.
func (s *Server) BroadcastDownloadStatus(st track.DownloadStatus) {
	s.io.Emit("pushDownloadStatus", st)
}

func (s *Server) flush(t Topic) {
	if t.Has(TopicState) {
		s.BroadcastState()
	}
	if t.Has(TopicQueue) {
		s.BroadcastQueue()
	}
}

// Run forwards engine and queue changes to clients until ctx ends.
func (s *Server) Run(ctx context.Context) {
	events := s.transport.Subscribe()
	defer s.transport.Unsubscribe(events)
	queue := s.queue.Subscribe()
	defer s.queue.Unsubscribe(queue)

	log.Info().Msg("Socket.io broadcaster started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Socket.io broadcaster stopped")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.onEngineEvent(ev)
		case _, ok := <-queue:
			if !ok {
				queue = nil
				continue
			}
			s.debouncer.Trigger(TopicQueue)
		}
	}
}

func (s *Server) onEngineEvent(ev player.Event) {
	switch ev.Type {
	case player.EventPlaybackFailed:
		payload := map[string]any{"error": ""}
		if ev.Err != nil {
			payload["error"] = ev.Err.Error()
		}
		if ev.State != nil {
			if cur, ok := ev.State.Current(); ok {
				payload["track"] = cur
			}
		}
		s.io.Emit("pushPlaybackError", payload)
	case player.EventQueueExhausted:
		s.io.Emit("pushQueueExhausted", map[string]any{"sessionId": s.sessionID})
	}
	s.debouncer.Trigger(TopicState)
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close closes the Socket.io server.
func (s *Server) Close() error {
	s.cancel()
	s.debouncer.Stop()
	s.io.Close(nil)
	return nil
}
