// Command stream-dock is the entrypoint for the live embed dock API.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects the state store (Postgres or Redis) and seeds the streamer
//     roster on first run.
//   - Rebuilds the registry from persisted state and starts the sources:
//     realtime feed, liveness pollers, and chat adapters.
//   - Exposes the HTTP API with /healthz, /readyz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/stream-dock/canonical"
	"github.com/onnwee/stream-dock/chatagg"
	"github.com/onnwee/stream-dock/chatsrc"
	"github.com/onnwee/stream-dock/config"
	"github.com/onnwee/stream-dock/kickapi"
	"github.com/onnwee/stream-dock/registry"
	"github.com/onnwee/stream-dock/server"
	"github.com/onnwee/stream-dock/sources"
	"github.com/onnwee/stream-dock/store"
	"github.com/onnwee/stream-dock/telemetry"
	"github.com/onnwee/stream-dock/twitchapi"
	"github.com/onnwee/stream-dock/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("stream-dock", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Root context with graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// State store: backend per config, seeded on first run.
	state, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("store connect failed", slog.Any("err", err), slog.String("backend", cfg.StoreBackend))
		os.Exit(1)
	}
	defer func() {
		if err := state.Close(); err != nil {
			slog.Error("failed to close store", slog.Any("err", err))
		}
	}()
	if err := store.SeedIfEmpty(ctx, state, cfg.SeedPath); err != nil {
		slog.Error("seed import failed", slog.Any("err", err))
		os.Exit(1)
	}

	streamers, err := state.Streamers(ctx)
	if err != nil {
		slog.Error("failed to read streamers", slog.Any("err", err))
		os.Exit(1)
	}
	pins, err := state.Pins(ctx)
	if err != nil {
		slog.Error("failed to read pins", slog.Any("err", err))
		os.Exit(1)
	}
	selVideo, selChat, err := state.Selections(ctx)
	if err != nil {
		slog.Error("failed to read selections", slog.Any("err", err))
		os.Exit(1)
	}

	// Chat aggregator with persisted display settings.
	settings := chatagg.Settings{VisibleCap: cfg.ChatVisibleCap, ScrollCap: cfg.ChatScrollCap}
	if persisted, found, err := state.ChatSettings(ctx); err != nil {
		slog.Warn("failed to read chat settings, using defaults", slog.Any("err", err))
	} else if found {
		settings = persisted
	}

	agg := chatagg.New(settings, nil)

	// Chat adapters follow the selected chat set; the house feed is always on.
	factory := chatsrc.NewFactory(cfg.KickChatURL, cfg.FeedChatURL)
	chatMgr := chatsrc.NewManager(ctx, factory, agg.Ingest)
	syncChat := func(selected []canonical.Key) {
		keys := append([]canonical.Key{canonical.HouseKey}, selected...)
		chatMgr.Sync(keys)
	}

	// Every registry change persists selections and pins and re-points the
	// chat adapters at the selected chat set.
	onChange := func(view registry.View) {
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := state.SetSelections(persistCtx, view.SelectedVideo, view.SelectedChat); err != nil {
			slog.Warn("failed to persist selections", slog.Any("err", err))
		}
		pinned := make([]registry.Record, 0, len(view.Pinned))
		for _, k := range view.Pinned {
			if rec, ok := view.Catalog[k]; ok {
				pinned = append(pinned, rec)
			}
		}
		if err := state.SetPins(persistCtx, pinned); err != nil {
			slog.Warn("failed to persist pins", slog.Any("err", err))
		}
		syncChat(view.SelectedChat)
	}

	reg := registry.New(registry.Options{
		Streamers:          streamers,
		PreferredPlatforms: cfg.PreferredPlatforms,
		Pinned:             pins,
		SelectedVideo:      selVideo,
		SelectedChat:       selChat,
		OnChange:           onChange,
	})
	agg.SetResolver(reg)
	syncChat(reg.SelectedChat())

	// Sources: one coordinator folds every input into the registry.
	coord := sources.NewCoordinator(reg, 64)
	go coord.Run(ctx)

	checkers := buildCheckers(ctx, cfg)
	poller := sources.NewPoller(coord.Events(), checkers, cfg.PollInterval, cfg.YTPollMultiplier)
	go poller.Run(ctx)
	poller.SetStreamers(streamers)

	if cfg.FeedURL != "" {
		realtime := &sources.RealtimeClient{URL: cfg.FeedURL, Out: coord.Events()}
		go realtime.Run(ctx)
	} else {
		slog.Info("realtime feed disabled (FEED_URL empty)")
	}

	// pprof profiling endpoints in debug mode (ENABLE_PPROF=1).
	if os.Getenv("ENABLE_PPROF") == "1" {
		go startPprof()
	}

	go func() {
		opts := server.Options{
			Registry:    reg,
			Agg:         agg,
			State:       state,
			ChatRunning: chatMgr.Running,
			OnStreamersChanged: func(list []registry.Streamer) {
				poller.SetStreamers(list)
			},
			AdminToken: cfg.AdminToken,
		}
		if err := server.Start(ctx, opts, cfg.ListenAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	chatMgr.Close()
}

// setupLogging configures slog from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()),
		slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}

func openStore(ctx context.Context, cfg *config.Config) (*store.State, error) {
	switch cfg.StoreBackend {
	case "redis":
		kv, err := store.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return store.NewState(kv), nil
	default:
		kv, err := store.ConnectPostgres(ctx, cfg.DBDsn)
		if err != nil {
			return nil, err
		}
		return store.NewState(kv), nil
	}
}

// buildCheckers wires one liveness checker per platform with credentials.
func buildCheckers(ctx context.Context, cfg *config.Config) map[string]sources.LivenessChecker {
	checkers := map[string]sources.LivenessChecker{
		canonical.PlatformKick: &kickapi.Client{},
	}
	if cfg.TwitchEnabled() {
		checkers[canonical.PlatformTwitch] = twitchapi.NewClient(cfg.TwitchClientID, cfg.TwitchClientSecret)
	} else {
		slog.Info("twitch polling disabled (missing client id/secret)")
	}
	if cfg.YouTubeEnabled() {
		yt, err := youtubeapi.New(ctx, cfg.YTAPIKey)
		if err != nil {
			slog.Warn("youtube client init failed, polling disabled", slog.Any("err", err))
		} else {
			checkers[canonical.PlatformYouTube] = yt
		}
	} else {
		slog.Info("youtube polling disabled (YT_API_KEY empty)")
	}
	return checkers
}

func startPprof() {
	pprofAddr := os.Getenv("PPROF_ADDR")
	if pprofAddr == "" {
		pprofAddr = "localhost:6060"
	}
	slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
	srv := &http.Server{
		Addr:              pprofAddr,
		Handler:           nil, // default mux exposes /debug/pprof
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("pprof server error", slog.Any("err", err))
	}
}
