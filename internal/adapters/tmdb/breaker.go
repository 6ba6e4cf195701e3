package tmdb

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"showtrack/internal/domain"
	"showtrack/internal/infra/metrics"
)

// Breaker защищает каталог предохранителем: после серии сбоев запросы не уходят в сеть,
// пока не истечёт таймаут. Ответ «не найдено» сбоем не считается.
type Breaker struct {
	next   domain.Catalog
	shows  *gobreaker.CircuitBreaker[domain.ShowSummary]
	search *gobreaker.CircuitBreaker[[]domain.ShowSummary]
}

var _ domain.Catalog = (*Breaker)(nil)

// NewBreaker создаёт предохранитель. Цепь размыкается при доле ошибок от 60% на минимум 10 запросах.
func NewBreaker(next domain.Catalog, log zerolog.Logger) *Breaker {
	return &Breaker{
		next:   next,
		shows:  gobreaker.NewCircuitBreaker[domain.ShowSummary](settings("tmdb-show", log)),
		search: gobreaker.NewCircuitBreaker[[]domain.ShowSummary](settings("tmdb-search", log)),
	}
}

func settings(name string, log zerolog.Logger) gobreaker.Settings {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("tmdb: смена состояния предохранителя")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}
}

// GetShow реализует domain.Catalog.
func (b *Breaker) GetShow(ctx context.Context, id int64) (domain.ShowSummary, error) {
	return b.shows.Execute(func() (domain.ShowSummary, error) {
		return b.next.GetShow(ctx, id)
	})
}

// SearchShows реализует domain.Catalog.
func (b *Breaker) SearchShows(ctx context.Context, query string) ([]domain.ShowSummary, error) {
	return b.search.Execute(func() ([]domain.ShowSummary, error) {
		return b.next.SearchShows(ctx, query)
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
