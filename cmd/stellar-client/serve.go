package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-stream-client/internal/config"
	"github.com/edumarques81/stellar-stream-client/internal/domain/lifecycle"
	"github.com/edumarques81/stellar-stream-client/internal/domain/player"
	"github.com/edumarques81/stellar-stream-client/internal/domain/queue"
	"github.com/edumarques81/stellar-stream-client/internal/domain/stream"
	"github.com/edumarques81/stellar-stream-client/internal/domain/track"
	"github.com/edumarques81/stellar-stream-client/internal/infra/api"
	"github.com/edumarques81/stellar-stream-client/internal/infra/mpd"
	"github.com/edumarques81/stellar-stream-client/internal/infra/store"
	"github.com/edumarques81/stellar-stream-client/internal/transport/socketio"
	"github.com/edumarques81/stellar-stream-client/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the playback engine and the Socket.io server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func newAPIClient(cfg *config.Config) *api.Client {
	return api.New(
		api.WithBaseURL(cfg.Server.BaseURL),
		api.WithToken(cfg.Server.Token),
		api.WithSessionID(cfg.Server.SessionID),
		api.WithHTTPClient(&http.Client{Timeout: cfg.Server.TimeoutDuration()}),
		api.WithMaxRetries(cfg.Server.MaxRetries),
		api.WithRetryWait(cfg.Server.RetryWaitDuration()),
	)
}

func runServe(cfg *config.Config) error {
	// Print startup banner
	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Streaming Playback Client")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("listen", cfg.HTTP.Listen).
		Str("server", cfg.Server.BaseURL).
		Str("mpd_host", cfg.MPD.Host).
		Int("mpd_port", cfg.MPD.Port).
		Str("quality", cfg.Playback.Quality).
		Str("keepalive", cfg.Lifecycle.Keepalive).
		Bool("token_set", cfg.Server.Token != "").
		Msg("Configuration")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Preferences
	db := store.NewDB(cfg.Store.Path)
	if err := db.Open(); err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open preference store")
	}
	defer db.Close()
	if v, err := db.SchemaVersion(ctx); err == nil {
		log.Info().Str("path", db.Path()).Str("schema", v).Msg("Preference store opened")
	}

	// MPD output
	mpdClient := mpd.NewClient(cfg.MPD.Host, cfg.MPD.Port, cfg.MPD.Password)
	if err := mpdClient.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MPD")
	}
	defer mpdClient.Close()

	if err := mpdClient.Ping(); err != nil {
		log.Fatal().Err(err).Msg("MPD ping failed")
	}
	log.Info().Msg("MPD connection verified")

	outOpts := []mpd.OutputOption{mpd.WithPollInterval(cfg.MPD.PollDuration())}
	if watch, err := mpdClient.Watch("player", "mixer"); err != nil {
		log.Warn().Err(err).Msg("MPD idle watcher unavailable, polling only")
	} else {
		outOpts = append(outOpts, mpd.WithWatch(watch))
	}
	output := mpd.NewOutput(mpdClient, outOpts...)
	defer output.Close()

	// Streaming server
	apiClient := newAPIClient(cfg)

	// The download observer is bound once the Socket.io server exists.
	var (
		socketMu     sync.RWMutex
		socketServer *socketio.Server
	)
	resolver := track.NewResolver(apiClient,
		track.WithProgressSubscriber(apiClient),
		track.WithProgressObserver(func(st track.DownloadStatus) {
			socketMu.RLock()
			defer socketMu.RUnlock()
			if socketServer != nil {
				socketServer.BroadcastDownloadStatus(st)
			}
		}),
	)

	queueManager := queue.NewManager(apiClient, resolver, queue.WithConfig(cfg.Queue.Thresholds()))
	defer queueManager.Close()

	engine := player.New(ctx, output, resolver,
		stream.NewBuilder(apiClient.BaseURL(), apiClient.Token()),
		player.WithSequencer(queueManager),
		player.WithPreferences(db),
		player.WithSeekStep(float64(cfg.Playback.SeekStep)),
		player.WithDefaultQuality(track.Quality(cfg.Playback.Quality)),
	)
	defer engine.Close()

	actions, _ := cfg.Lifecycle.Actions()
	srv, err := socketio.NewServer(engine, queueManager,
		socketio.WithSessionID(apiClient.SessionID()),
		socketio.WithMaxRemoteClients(cfg.HTTP.MaxRemoteClients),
		socketio.WithSupportedActions(actions...),
		socketio.WithDebounce(cfg.HTTP.DebounceDuration()),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Socket.io server")
	}
	defer srv.Close()

	socketMu.Lock()
	socketServer = srv
	socketMu.Unlock()

	// Lifecycle
	policy, _ := cfg.Lifecycle.Policy()
	adapter := lifecycle.NewAdapter(output, engine, srv, lifecycle.WithKeepalive(policy))
	registered := adapter.RegisterActions()
	srv.SetVisibilityHandler(adapter)
	log.Info().Int("actions", registered).Msg("Media session actions registered")

	go output.Run(ctx)
	go engine.Run(ctx)
	go adapter.Run(ctx)
	go srv.Run(ctx)

	// Setup HTTP server
	mux := http.NewServeMux()

	// Socket.io endpoint
	mux.Handle("/socket.io/", srv)

	// Health check
	mux.Handle("/health", withCORS(cfg.HTTP.AllowOrigin, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := mpdClient.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","mpd":"disconnected"}`))
			return
		}
		w.Write([]byte(`{"status":"ok","mpd":"connected"}`))
	})))

	// Version endpoint
	mux.Handle("/api/v1/version", withCORS(cfg.HTTP.AllowOrigin, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(version.GetInfo())
	})))

	// State snapshot
	mux.Handle("/api/v1/getState", withCORS(cfg.HTTP.AllowOrigin, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(engine.State().ToJSON())
	})))

	// Now playing, as published to the media session
	mux.Handle("/api/v1/nowPlaying", withCORS(cfg.HTTP.AllowOrigin, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta, state := srv.NowPlaying()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"metadata":      meta,
			"playbackState": state,
		})
	})))

	server := &http.Server{
		Addr:        cfg.HTTP.Listen,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", cfg.HTTP.Listen).Msg("HTTP server listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}

	log.Info().Msg("Server stopped")
	return nil
}
