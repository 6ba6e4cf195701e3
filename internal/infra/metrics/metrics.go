package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	FeedBuildSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feed_build_seconds",
		Help:    "Время построения снимка или страницы ленты",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	RankingBuildSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ranking_build_seconds",
		Help:    "Время построения рейтинга",
		Buckets: prometheus.DefBuckets,
	}, []string{"view"})

	FetchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_failures_total",
		Help: "Ошибки получения базового набора записей",
	}, []string{"view"})

	ResolutionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resolution_failures_total",
		Help: "Строки, для которых не удалось получить сериал или профиль",
	}, []string{"view", "kind", "policy"})

	ChangeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "change_events_total",
		Help: "Сигналы об изменении данных",
	}, []string{"direction", "table"})

	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Состояние предохранителя: 0 closed, 1 half-open, 2 open",
	}, []string{"name"})

	CatalogFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_fallback_total",
		Help: "Ответы каталога из встроенного набора данных",
	}, []string{"operation"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		FeedBuildSeconds,
		RankingBuildSeconds,
		FetchFailures,
		ResolutionFailures,
		ChangeEventsTotal,
		BotSendErrors,
		CircuitBreakerState,
		CatalogFallbacks,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveResolutionFailure учитывает строку без сериала или профиля.
func ObserveResolutionFailure(view, kind string, policy string) {
	ResolutionFailures.WithLabelValues(view, kind, policy).Inc()
}

// ObserveChange учитывает опубликованный или полученный сигнал об изменении.
func ObserveChange(direction, table string) {
	if table == "" {
		table = "unknown"
	}
	ChangeEventsTotal.WithLabelValues(direction, table).Inc()
}
