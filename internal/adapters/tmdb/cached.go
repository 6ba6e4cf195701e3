package tmdb

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"showtrack/internal/domain"
)

// Cached кэширует карточки сериалов. Поиск не кэшируется.
type Cached struct {
	next  domain.Catalog
	cache domain.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

var _ domain.Catalog = (*Cached)(nil)

// NewCached оборачивает каталог кэшем на чтение.
func NewCached(next domain.Catalog, cache domain.Cache, ttl time.Duration, log zerolog.Logger) *Cached {
	return &Cached{next: next, cache: cache, ttl: ttl, log: log}
}

type cachedShow struct {
	ID           int64          `json:"id"`
	Title        string         `json:"title"`
	PosterPath   string         `json:"poster_path,omitempty"`
	BackdropPath string         `json:"backdrop_path,omitempty"`
	FirstAirDate string         `json:"first_air_date,omitempty"`
	Genres       []domain.Genre `json:"genres,omitempty"`
	VoteAverage  float64        `json:"vote_average"`
}

func showKey(id int64) string { return "tmdb:show:" + strconv.FormatInt(id, 10) }

// GetShow реализует domain.Catalog.
func (c *Cached) GetShow(ctx context.Context, id int64) (domain.ShowSummary, error) {
	key := showKey(id)
	data, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var cs cachedShow
		if err := json.Unmarshal(data, &cs); err == nil {
			return domain.ShowSummary(cs), nil
		}
		c.log.Warn().Str("key", key).Msg("tmdb: битая запись в кэше")
	case !errors.Is(err, domain.ErrCacheMiss):
		c.log.Warn().Err(err).Str("key", key).Msg("tmdb: кэш недоступен")
	}

	show, err := c.next.GetShow(ctx, id)
	if err != nil {
		return domain.ShowSummary{}, err
	}
	if raw, err := json.Marshal(cachedShow(show)); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("tmdb: не удалось записать кэш")
		}
	}
	return show, nil
}

// SearchShows реализует domain.Catalog.
func (c *Cached) SearchShows(ctx context.Context, query string) ([]domain.ShowSummary, error) {
	return c.next.SearchShows(ctx, query)
}
