// Command huntqueue is the main entrypoint for the live request-queue service.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Wires the broadcast hub, queue engine, and connection supervisor.
//   - Exposes the HTTP API: queue/config/catalog surfaces, SSE event
//     streams, connect control, /healthz, /status, and /metrics.
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

	"github.com/moyuhunter/huntqueue/auth"
	"github.com/moyuhunter/huntqueue/bili"
	"github.com/moyuhunter/huntqueue/broadcast"
	"github.com/moyuhunter/huntqueue/config"
	"github.com/moyuhunter/huntqueue/db"
	"github.com/moyuhunter/huntqueue/queue"
	"github.com/moyuhunter/huntqueue/server"
	"github.com/moyuhunter/huntqueue/supervisor"
	"github.com/moyuhunter/huntqueue/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
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
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("huntqueue", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Run database migrations using dual-system approach:
	// 1. Primary: versioned migrations (golang-migrate) from db/migrations/
	// 2. Fallback: embedded SQL (db.Migrate) for backward compatibility
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("embedded SQL migration completed successfully",
			slog.String("component", "db_migrate"))
	} else {
		slog.Info("versioned migrations completed successfully",
			slog.String("component", "db_migrate"))
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Core wiring: hub, engine (with persisted config), supervisor.
	hub := broadcast.NewHub()

	queueCfg, err := db.LoadQueueConfig(ctx, database)
	if err != nil {
		slog.Warn("loading queue config failed, using defaults", slog.Any("err", err))
		queueCfg = queue.DefaultConfig()
	}
	engine := queue.NewEngine(&db.CatalogAdapter{DB: database}, hub, queueCfg)

	dialer := func(dctx context.Context, roomID int64, cookie string) (supervisor.Stream, error) {
		return bili.Connect(dctx, cfg.DanmuWSURL, roomID, cookie)
	}
	acquirer := func(actx context.Context, loginURL, markerCookie string) (string, error) {
		return auth.AcquireCookies(actx, loginURL, markerCookie, auth.Options{
			PollInterval: cfg.LoginPollInterval,
			Timeout:      cfg.LoginTimeout,
			Headless:     cfg.LoginHeadless,
		})
	}
	sup := supervisor.New(ctx, &db.CredentialStoreAdapter{DB: database}, dialer, acquirer, engine.HandleEvent)

	if cfg.AutoConnect {
		if err := cfg.ValidateConnectReady(); err != nil {
			slog.Error("AUTO_CONNECT set but configuration incomplete", slog.Any("err", err))
		} else {
			go func() {
				connected, err := sup.Connect(ctx, cfg.LoginURL, cfg.TargetCookie, cfg.RoomID)
				if err != nil {
					slog.Error("auto connect failed", slog.Any("err", err))
					return
				}
				slog.Info("auto connect finished", slog.Bool("connected", connected))
			}()
		}
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
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
		}()
	}

	// HTTP server (API, SSE, health, metrics)
	go func() {
		deps := server.Deps{DB: database, Engine: engine, Hub: hub, Sup: sup, Cfg: cfg}
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
	sup.Disconnect()
}
