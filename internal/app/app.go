// Package app собирает хранилища, каталог и сценарии по конфигу.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"showtrack/internal/adapters/repo"
	"showtrack/internal/adapters/snapshot"
	"showtrack/internal/adapters/tmdb"
	"showtrack/internal/domain"
	"showtrack/internal/infra/cache"
	"showtrack/internal/infra/config"
	"showtrack/internal/infra/db"
	"showtrack/internal/infra/metrics"
	"showtrack/internal/infra/notify"
	"showtrack/internal/usecase/activity"
	"showtrack/internal/usecase/feed"
	"showtrack/internal/usecase/ranking"
	"showtrack/internal/usecase/resolve"
	"showtrack/internal/usecase/shows"
)

// Cache — TTL-кэш с атомарной операцией «выполнить один раз».
type Cache interface {
	domain.Cache
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) (bool, error)
}

// Notifications объединяет публикацию и подписку на сигналы об изменениях.
type Notifications interface {
	domain.ChangeNotifier
	domain.ChangeSubscriber
}

// Stack содержит собранные зависимости сервиса.
type Stack struct {
	Profiles domain.ProfileStore
	Store    domain.ActivityStore
	Cache    Cache
	Catalog  domain.Catalog
	Changes  Notifications

	Feed     *feed.Service
	Ranking  *ranking.Service
	Shows    *shows.Service
	Activity *activity.Service

	closers []func()
}

// Build подключает внешние системы. Пустые PG_DSN и REDIS_ADDR заменяются хранилищами в памяти.
func Build(ctx context.Context, cfg config.AppConfig, log zerolog.Logger) (*Stack, error) {
	s := &Stack{}
	if err := s.buildStores(ctx, cfg, log); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.buildChanges(ctx, cfg, log); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.buildCatalog(cfg, log); err != nil {
		s.Close()
		return nil, err
	}

	resolver := resolve.New(s.Catalog, s.Profiles, cfg.Lookups.Timeout, cfg.Lookups.FanoutLimit)
	s.Feed = feed.NewService(s.Store, resolver, snapshot.NewStore(s.Cache), feed.Options{
		PageSize:    cfg.Feed.PageSize,
		FetchLimit:  cfg.Feed.FetchLimit,
		Missing:     domain.MissingPolicy(cfg.Feed.Missing),
		SnapshotTTL: cfg.Feed.SnapshotTTL,
	}, log.With().Str("component", "feed").Logger())
	s.Ranking = ranking.NewService(s.Profiles, s.Store, resolver, ranking.Options{
		Limit:           cfg.Ranking.Limit,
		Missing:         domain.MissingPolicy(cfg.Ranking.Missing),
		InterestMissing: domain.MissingPolicy(cfg.Ranking.InterestMissing),
	}, log.With().Str("component", "ranking").Logger())
	s.Shows = shows.NewService(s.Catalog, cfg.TMDB.SearchLimit)
	s.Activity = activity.NewService(s.Profiles, s.Store, s.Changes, log.With().Str("component", "activity").Logger())
	return s, nil
}

func (s *Stack) buildStores(ctx context.Context, cfg config.AppConfig, log zerolog.Logger) error {
	if cfg.PGDSN != "" {
		pool, err := db.Connect(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("подключение к БД: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		pg := repo.NewPostgres(pool)
		s.Profiles, s.Store = pg, pg
	} else {
		log.Warn().Msg("app: PG_DSN не задан, данные хранятся в памяти")
		mem := repo.NewMemory()
		s.Profiles, s.Store = mem, mem
	}

	if cfg.RedisAddr != "" {
		client, err := connectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		s.Cache = cache.NewRedis(client, "showtrack:")
	} else {
		s.Cache = cache.NewMemory()
	}
	return nil
}

func connectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	start := time.Now()
	err := client.Ping(pingCtx).Err()
	metrics.ObserveNetworkRequest("redis", "ping", addr, start, err)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("подключение к Redis: %w", err)
	}
	return client, nil
}

func (s *Stack) buildChanges(ctx context.Context, cfg config.AppConfig, log zerolog.Logger) error {
	changesLog := log.With().Str("component", "notify").Logger()
	switch cfg.Notify.Backend {
	case "rabbitmq":
		if cfg.RabbitURL == "" {
			return fmt.Errorf("NOTIFY_BACKEND=rabbitmq требует RABBITMQ_URL")
		}
		rabbit, err := notify.NewRabbit(cfg.RabbitURL, cfg.Notify.Exchange, changesLog)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, func() { _ = rabbit.Close() })
		s.Changes = rabbit
	case "redis":
		if cfg.RedisAddr == "" {
			log.Warn().Msg("app: REDIS_ADDR не задан, сигналы об изменениях доставляются внутри процесса")
			s.Changes = notify.NewBroadcaster()
			return nil
		}
		client, err := connectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		s.Changes = notify.NewRedis(client, cfg.Notify.Channel, changesLog)
	default:
		s.Changes = notify.NewBroadcaster()
	}
	return nil
}

// buildCatalog собирает цепочку: запасные данные → кэш → предохранитель → TMDB.
// Ответы из запасного набора не попадают в кэш.
func (s *Stack) buildCatalog(cfg config.AppConfig, log zerolog.Logger) error {
	catalogLog := log.With().Str("component", "tmdb").Logger()
	client, err := tmdb.New(cfg.TMDB.BaseURL, cfg.TMDB.APIKey,
		tmdb.WithTimeout(cfg.TMDB.Timeout),
		tmdb.WithLanguage(cfg.TMDB.Language),
	)
	if err != nil {
		return fmt.Errorf("клиент TMDB: %w", err)
	}
	if cfg.TMDB.APIKey == "" {
		catalogLog.Warn().Msg("app: TMDB_API_KEY не задан, каталог работает на встроенных данных")
	}
	var catalog domain.Catalog = tmdb.NewBreaker(client, catalogLog)
	catalog = tmdb.NewCached(catalog, s.Cache, cfg.TMDB.CacheTTL, catalogLog)
	s.Catalog = tmdb.WithFallback(catalog, catalogLog)
	return nil
}

// Close освобождает подключения в обратном порядке.
func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
