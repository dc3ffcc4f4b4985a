// Package main is the entry point for the Ampcast server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/ampcast-core/internal/config"
	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/miniplayer"
	"github.com/edumarques81/ampcast-core/internal/domain/player"
	"github.com/edumarques81/ampcast-core/internal/domain/playlist"
	"github.com/edumarques81/ampcast-core/internal/infra/artwork"
	"github.com/edumarques81/ampcast-core/internal/infra/blobs"
	"github.com/edumarques81/ampcast-core/internal/infra/httpsource"
	"github.com/edumarques81/ampcast-core/internal/infra/mpd"
	"github.com/edumarques81/ampcast-core/internal/infra/qobuz"
	"github.com/edumarques81/ampcast-core/internal/infra/store"
	"github.com/edumarques81/ampcast-core/internal/transport/socketio"
	"github.com/edumarques81/ampcast-core/internal/version"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "ampcast.toml", "Path to the TOML config file")
	port := flag.String("port", "", "HTTP server port (overrides config)")
	mpdHost := flag.String("mpd-host", "", "MPD host (overrides config)")
	mpdPort := flag.Int("mpd-port", 0, "MPD port (overrides config)")
	mpdPassword := flag.String("mpd-password", "", "MPD password (overrides config)")
	staticDir := flag.String("static", "", "Directory to serve static files from (optional)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *mpdHost != "" {
		cfg.MPD.Host = *mpdHost
	}
	if *mpdPort != 0 {
		cfg.MPD.Port = *mpdPort
	}
	if *mpdPassword != "" {
		cfg.MPD.Password = *mpdPassword
	}
	if *staticDir != "" {
		cfg.Server.StaticDir = *staticDir
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Print startup banner
	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Playback and Mini Player Server")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("port", cfg.Server.Port).
		Str("mpd", cfg.MPDAddress()).
		Bool("password_set", cfg.MPD.Password != "").
		Str("store", cfg.Store.Path).
		Bool("qobuz", cfg.Qobuz.Enabled).
		Int("web_feeds", len(cfg.Web.Feeds)).
		Msg("Configuration")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistent store
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create data directory")
	}
	db := store.NewDB(cfg.Store.Path)
	if err := db.Open(); err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer db.Close()

	queue, err := playlist.New(db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read playlist")
	}

	// Create MPD client
	mpdClient := mpd.NewClient(cfg.MPD.Host, cfg.MPD.Port, cfg.MPD.Password)
	if err := mpdClient.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MPD")
	}
	defer mpdClient.Close()

	// Verify MPD connection
	if err := mpdClient.Ping(); err != nil {
		log.Fatal().Err(err).Msg("MPD ping failed")
	}
	log.Info().Msg("MPD connection verified")

	mpdPlayer := mpd.NewPlayer(mpdClient)

	var qobuzAPI qobuz.API
	if cfg.Qobuz.Enabled {
		client, err := newQobuzClient(ctx, cfg.Qobuz)
		if err != nil {
			log.Warn().Err(err).Msg("Qobuz disabled")
		} else {
			qobuzAPI = client
			mpdPlayer.AddResolver(qobuz.NewResolver(client, nil))
			log.Info().Msg("Qobuz streaming enabled")
		}
	}

	go func() {
		if err := mpdPlayer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("MPD player stopped")
		}
	}()

	omni := player.NewOmniPlayer[*media.PlaylistItem]()
	omni.Register(mpdPlayer, mpdPlayer.CanPlay)
	playback := player.NewPlayback(omni)
	following := queue.Follow(playback)
	defer following.Unsubscribe()

	if current := queue.Current(); current != nil {
		if err := playback.Load(current); err != nil {
			log.Warn().Err(err).Str("src", current.Src).Msg("Failed to restore current item")
		}
	}

	// Browsing
	web := httpsource.NewClient(httpsource.Config{RequestsPerSecond: cfg.Web.RequestsPerSecond})
	feeds := make(map[string]string, len(cfg.Web.Feeds))
	for _, f := range cfg.Web.Feeds {
		feeds[f.Name] = f.Endpoint
	}
	browse := &catalog{
		pager: pagerConfig(cfg.Pager),
		mpd:   mpdClient,
		qobuz: qobuzAPI,
		web:   web,
		feeds: feeds,
		queue: queue,
	}

	// Create Socket.io server
	serverCfg := socketio.DefaultServerConfig()
	serverCfg.MaxRemoteClients = cfg.Server.MaxRemoteClients
	serverCfg.Hub.Origin = cfg.MiniPlayer.Origin
	serverCfg.Hub.AttachTimeout = cfg.MiniPlayer.AttachTimeout.Duration
	socketServer, err := socketio.NewServer(serverCfg, browse.Feed)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Socket.io server")
	}
	defer socketServer.Close()

	// Mini player
	objectURLs := blobs.NewRegistry(cfg.MiniPlayer.Origin)
	mini := miniplayer.NewController(miniplayer.Config{
		Origin:         cfg.MiniPlayer.Origin,
		WindowName:     cfg.MiniPlayer.WindowName,
		ReadyTimeout:   cfg.MiniPlayer.ReadyTimeout.Duration,
		DriftTolerance: cfg.MiniPlayer.DriftTolerance.Duration,
		HeartbeatDelay: cfg.MiniPlayer.HeartbeatDelay.Duration,
	}, socketServer.Hub(), playback, objectURLs)
	socketServer.Hub().Listen(mini.Receive)
	navigation := followNavigation(mini, queue, playback)
	defer navigation.Unsubscribe()
	remote := newMiniPlayer(mini, queue)
	defer remote.release()

	// Setup HTTP server
	mux := http.NewServeMux()

	// Socket.io endpoint
	mux.Handle("/socket.io/", socketServer)

	// Object URLs handed to the mini player
	mux.Handle(blobs.Prefix, objectURLs)

	// Album art for MPD tracks, cached in the store
	mux.Handle(artwork.Prefix, artwork.NewService(mpdClient, db))

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := mpdClient.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","mpd":"disconnected"}`))
			return
		}
		w.Write([]byte(`{"status":"ok","mpd":"connected"}`))
	})

	// Version endpoint
	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(version.GetInfo())
	})

	mux.Handle("/api/v1/playback", playbackHandler(playback))
	mux.Handle("/api/v1/mini-player", miniPlayerHandler(remote))

	// Serve static files if directory specified (SPA mode)
	if dir := cfg.Server.StaticDir; dir != "" {
		log.Info().Str("dir", dir).Msg("Serving static files")
		mux.Handle("/", spaHandler(dir))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")
		if err := mini.Close(); err != nil {
			log.Debug().Err(err).Msg("Mini player was not open")
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", server.Addr).Msg("Starting HTTP server")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server error")
	}
	log.Info().Msg("Server stopped")
}

func newQobuzClient(ctx context.Context, conf config.QobuzConfig) (*qobuz.Client, error) {
	creds := qobuz.Credentials{
		AppID:     conf.AppID,
		AppSecret: conf.AppSecret,
		AuthToken: conf.AuthToken,
	}
	if (creds.AppID == "" || creds.AppSecret == "") && conf.Extract {
		extractCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		extracted, err := qobuz.NewExtractor().Extract(extractCtx)
		if err != nil {
			return nil, err
		}
		extracted.AuthToken = creds.AuthToken
		creds = extracted
		log.Info().Str("app_id", creds.AppID).Msg("Extracted Qobuz credentials")
	}
	return qobuz.NewClient(creds)
}
