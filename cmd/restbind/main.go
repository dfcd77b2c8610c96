package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/restbind/restbind/internal/config"
	"github.com/restbind/restbind/internal/entity"
	"github.com/restbind/restbind/internal/resource"
	"github.com/restbind/restbind/internal/runtime"
	"github.com/restbind/restbind/internal/server"
	"github.com/restbind/restbind/internal/storage/sqlite"
	"github.com/restbind/restbind/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.Init("restbind", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	registry := entity.NewRegistry()
	if err := registerCatalog(registry); err != nil {
		log.Fatalf("Failed to register entities: %v", err)
	}

	store, err := sqlite.New(cfg.Storage.Path, registry)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	rt := runtime.New(store, runtime.WithLogger(logger))
	for _, name := range registry.Names() {
		e, _ := registry.Get(name)
		if err := rt.Register(e); err != nil {
			log.Fatalf("Failed to register %s: %v", name, err)
		}
	}

	srv := server.New(cfg.Server.Port, cfg.Server.RequestTimeout, logger)
	srv.Router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	handler := resource.NewHandler(rt, logger)
	handler.Mount(srv.Router)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	logger.Info("restbind started",
		slog.Int("port", cfg.Server.Port),
		slog.String("storage", cfg.Storage.Path))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// registerCatalog declares the demo schema: a small music catalog.
func registerCatalog(registry *entity.Registry) error {
	artists := &entity.Entity{
		Name:  "artists",
		Table: "artists",
		Attributes: []entity.Attribute{
			{Name: "name", Kind: entity.String},
			{Name: "formed", Kind: entity.Int},
		},
	}
	if err := registry.Register(artists); err != nil {
		return err
	}

	albums := &entity.Entity{
		Name:  "albums",
		Table: "albums",
		Attributes: []entity.Attribute{
			{Name: "title", Kind: entity.String},
			{Name: "year", Kind: entity.Int},
		},
		Relationships: []entity.Relationship{
			{Name: "artist", Target: "artists", FKColumn: "artist_id"},
		},
		AllowClientIDs: true,
	}
	return registry.Register(albums)
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
