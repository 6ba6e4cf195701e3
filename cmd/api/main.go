package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"showtrack/internal/adapters/httpapi"
	"showtrack/internal/app"
	"showtrack/internal/infra/config"
	httpinfra "showtrack/internal/infra/http"
	"showtrack/internal/infra/log"
	"showtrack/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось собрать зависимости")
	}
	defer stack.Close()

	if cfg.Telegram.Token == "" {
		logger.Warn().Msg("api: TG_BOT_TOKEN не задан, все запросы к API будут отклонены")
	}

	server := httpinfra.NewServer(logger, httpinfra.Options{
		RateLimit:      cfg.HTTP.RateLimit,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	handler := httpapi.NewHandler(stack.Feed, stack.Ranking, stack.Shows, stack.Activity, stack.Changes, logger.With().Str("component", "httpapi").Logger())
	handler.Mount(server.Router, httpinfra.WebAppAuthMiddleware(cfg.Telegram.Token, cfg.HTTP.InitDataMaxAge))

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
