package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"showtrack/internal/adapters/bot"
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
		logger.Fatal().Err(err).Msg("bot: не удалось собрать зависимости")
	}
	defer stack.Close()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось создать бота")
	}
	botAPI.Debug = cfg.Telegram.Debug

	h := bot.NewHandler(botAPI, logger.With().Str("component", "bot").Logger(),
		stack.Feed, stack.Ranking, stack.Shows, stack.Activity, stack.Cache, cfg.Telegram.WebAppURL)

	if cfg.Telegram.WebhookURL == "" {
		runPolling(ctx, botAPI, h, logger, cfg.MetricsAddr)
		return
	}

	// WebhookConfig этой версии библиотеки не знает secret_token, поэтому setWebhook вызывается напрямую.
	if _, err := botAPI.MakeRequest("setWebhook", bot.SetWebhookParams(cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret)); err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось зарегистрировать вебхук")
	}

	server := httpinfra.NewServer(logger, httpinfra.Options{})
	server.Router.Post("/bot/webhook", h.Webhook(cfg.Telegram.WebhookSecret))

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("bot: сервер остановлен")
			stop()
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("bot: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

// runPolling получает апдейты long polling'ом, когда вебхук не настроен.
func runPolling(ctx context.Context, botAPI *tgbotapi.BotAPI, h *bot.Handler, logger zerolog.Logger, metricsAddr string) {
	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), metricsAddr)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := botAPI.GetUpdatesChan(u)
	logger.Info().Msg("bot: запущен в режиме long polling")
	for {
		select {
		case <-ctx.Done():
			botAPI.StopReceivingUpdates()
			logger.Info().Msg("bot: остановка")
			return
		case upd := <-updates:
			h.HandleUpdate(ctx, upd)
		}
	}
}
