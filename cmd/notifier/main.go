package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"showtrack/internal/app"
	"showtrack/internal/infra/config"
	"showtrack/internal/infra/log"
	"showtrack/internal/infra/metrics"
)

const resubscribeDelay = 5 * time.Second

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv).With().Str("component", "notifier").Logger()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: не удалось собрать зависимости")
	}
	defer stack.Close()

	metrics.StartServer(ctx, logger, cfg.MetricsAddr)
	logger.Info().Str("backend", cfg.Notify.Backend).Msg("notifier: слушаем изменения")

	for ctx.Err() == nil {
		events, err := stack.Changes.Subscribe(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("notifier: подписка не удалась")
			sleep(ctx, resubscribeDelay)
			continue
		}
		for ev := range events {
			metrics.ObserveChange("received", string(ev.Table))
			logger.Info().Str("table", string(ev.Table)).Str("op", string(ev.Op)).Time("at", ev.OccurredAt).Msg("notifier: изменение")
		}
		if ctx.Err() == nil {
			logger.Warn().Msg("notifier: поток событий закрыт, переподключаемся")
			sleep(ctx, resubscribeDelay)
		}
	}
	logger.Info().Msg("notifier: остановка")
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
