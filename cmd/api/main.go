package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/auth"
	"server/internal/extract"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/geoip"
	"server/internal/solver"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	if err := infra.Bootstrap(ctx, dbpool); err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare schema")
	}

	generator, err := solver.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init generation client")
	}
	defer generator.Close()

	geo, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable, location enrichment disabled")
	}
	if geo != nil {
		defer geo.Close()
	}

	jobs := repo.NewJobRepository(dbpool)
	history := repo.NewHistoryRepository(dbpool)

	app := &handlers.App{
		Logger:    logger,
		Cfg:       cfg,
		Users:     repo.NewUserRepository(dbpool),
		Jobs:      jobs,
		History:   history,
		Billing:   repo.NewBillingRepository(dbpool),
		Pipeline:  solver.NewPipeline(extract.NewExtractor(), generator, solver.NewJobRecorder(jobs, logger), logger),
		Validator: auth.NewValidator(cfg.JWTSecret, cfg.InsecureDevAuth, logger),
	}
	if geo != nil {
		app.Geo = geo
	}

	stopJanitor := startHistoryJanitor(ctx, history, logger)
	defer stopJanitor()

	router := httpapi.NewRouter(app)
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
