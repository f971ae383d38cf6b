package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"genpanel/internal/batch"
	"genpanel/internal/canvas"
	"genpanel/internal/gateway"
	"genpanel/internal/http/handlers"
	httpapi "genpanel/internal/http/httpapi"
	"genpanel/internal/imgutil"
	"genpanel/internal/infra"
	"genpanel/internal/session"
	"genpanel/internal/settings"
	"genpanel/internal/storage"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	store, err := settings.NewStore(cfg.SettingsPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open settings store")
	}

	files, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open image storage")
	}

	doc, err := loadDocument(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load document")
	}
	host := canvas.NewDocumentHost(canvas.StaticProvider{Doc: doc}, logger)

	apiKey := cfg.GeminiAPIKey
	if apiKey == "" {
		apiKey = store.APIKey()
	}
	ctx := context.Background()
	client, err := gateway.NewClient(ctx, apiKey, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct model client")
	}

	ctrl := session.New(client, host, store, logger,
		session.WithBatchOptions(batch.WithDelay(cfg.BatchDelay)))
	defer ctrl.Close()

	app := handlers.NewApp(ctrl, store, files, logger)
	router := httpapi.NewRouter(app, logger, cfg.AllowedOrigins)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("panel daemon listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("daemon stopped")
}

// loadDocument builds the in-memory canvas, seeded from DOCUMENT_PATH when
// set, blank otherwise.
func loadDocument(cfg *infra.Config) (*canvas.MemoryDocument, error) {
	if cfg.DocumentPath == "" {
		return canvas.NewMemoryDocument(cfg.DocumentWidth, cfg.DocumentHeight), nil
	}
	data, err := os.ReadFile(cfg.DocumentPath)
	if err != nil {
		return nil, err
	}
	img, err := imgutil.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return canvas.NewMemoryDocumentFromImage(img), nil
}
