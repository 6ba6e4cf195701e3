package resolve

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"showtrack/internal/domain"
)

const defaultTimeout = 3 * time.Second

// Resolver получает сериалы и профили для строк активности.
type Resolver struct {
	catalog  domain.Catalog
	profiles domain.ProfileStore
	timeout  time.Duration
	limit    int
}

// New создаёт резолвер. timeout ограничивает каждый отдельный запрос, limit — число параллельных запросов.
func New(catalog domain.Catalog, profiles domain.ProfileStore, timeout time.Duration, limit int) *Resolver {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Resolver{catalog: catalog, profiles: profiles, timeout: timeout, limit: limit}
}

// Limit возвращает ограничение параллелизма.
func (r *Resolver) Limit() int { return r.limit }

// Session создаёт мемо на время одного запроса: повторные запросы одного сериала или профиля
// выполняются один раз.
func (r *Resolver) Session() *Session {
	return &Session{
		r:        r,
		shows:    make(map[int64]showResult),
		profiles: make(map[string]profileResult),
	}
}

type showResult struct {
	show domain.ShowSummary
	err  error
}

type profileResult struct {
	profile domain.Profile
	err     error
}

// Session — мемо запросов в рамках одной агрегации.
type Session struct {
	r        *Resolver
	group    singleflight.Group
	mu       sync.Mutex
	shows    map[int64]showResult
	profiles map[string]profileResult
}

// Prime заранее кладёт известные профили в мемо.
func (s *Session) Prime(profiles []domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range profiles {
		s.profiles[p.ID] = profileResult{profile: p}
	}
}

// Show возвращает сериал по ID.
func (s *Session) Show(ctx context.Context, id int64) (domain.ShowSummary, error) {
	s.mu.Lock()
	if res, ok := s.shows[id]; ok {
		s.mu.Unlock()
		return res.show, res.err
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do("show:"+strconv.FormatInt(id, 10), func() (any, error) {
		s.mu.Lock()
		if res, ok := s.shows[id]; ok {
			s.mu.Unlock()
			return res.show, res.err
		}
		s.mu.Unlock()
		lookupCtx, cancel := context.WithTimeout(ctx, s.r.timeout)
		defer cancel()
		show, err := s.r.catalog.GetShow(lookupCtx, id)
		s.mu.Lock()
		s.shows[id] = showResult{show: show, err: err}
		s.mu.Unlock()
		return show, err
	})
	if err != nil {
		return domain.ShowSummary{}, err
	}
	return v.(domain.ShowSummary), nil
}

// Profile возвращает профиль пользователя.
func (s *Session) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	s.mu.Lock()
	if res, ok := s.profiles[userID]; ok {
		s.mu.Unlock()
		return res.profile, res.err
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do("profile:"+userID, func() (any, error) {
		s.mu.Lock()
		if res, ok := s.profiles[userID]; ok {
			s.mu.Unlock()
			return res.profile, res.err
		}
		s.mu.Unlock()
		lookupCtx, cancel := context.WithTimeout(ctx, s.r.timeout)
		defer cancel()
		profile, err := s.r.profiles.GetProfile(lookupCtx, userID)
		s.mu.Lock()
		s.profiles[userID] = profileResult{profile: profile, err: err}
		s.mu.Unlock()
		return profile, err
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return v.(domain.Profile), nil
}

// PlaceholderShow подставляется вместо недоступного сериала.
func PlaceholderShow(id int64) domain.ShowSummary {
	return domain.ShowSummary{ID: id, Title: fmt.Sprintf("Show %d", id)}
}

// PlaceholderProfile подставляется вместо отсутствующего профиля.
func PlaceholderProfile(userID string) domain.Profile {
	return domain.Profile{ID: userID, DisplayName: domain.AnonymousName}
}

// FailureKind классифицирует ошибку поиска для метрик.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// ForEach вызывает fn для индексов [0, n) параллельно, не более limit одновременно.
// Первая ошибка отменяет контекст остальных вызовов.
func ForEach(ctx context.Context, limit, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error { return fn(gctx, i) })
	}
	return g.Wait()
}
