package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"vidserver/internal/http/handlers"
	httpapi "vidserver/internal/http/httpapi"
	"vidserver/internal/infra"
	"vidserver/internal/infra/geoip"
	"vidserver/internal/middleware"
	"vidserver/internal/providers/genai"
	"vidserver/internal/providers/image"
	"vidserver/internal/providers/prompt"
	"vidserver/internal/providers/video"
	"vidserver/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	if resolver != nil {
		defer resolver.Close()
	}
	var lookup middleware.CountryLookup
	if resolver != nil {
		lookup = resolver.CountryCode
	}

	client, err := genai.NewClient(genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct API client")
	}

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	orchestrator := video.NewOrchestrator(video.Options{
		Client:       client,
		Deriver:      image.NewGeminiDeriver(client, cfg.TextModel),
		Synthesizer:  image.NewImagenSynthesizer(client, cfg.ImageModel),
		Store:        store,
		PollInterval: cfg.PollInterval,
		Logger:       &logger,
	})

	app := handlers.NewApp(prompt.NewGeminiEnhancer(client, cfg.TextModel), orchestrator, store, logger)
	router := httpapi.NewRouter(cfg, app, lookup)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
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
	logger.Info().Msg("server stopped")
}
