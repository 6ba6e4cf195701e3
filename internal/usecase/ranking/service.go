package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"showtrack/internal/domain"
	"showtrack/internal/infra/metrics"
	"showtrack/internal/usecase/resolve"
)

// ErrFetch возвращается, если не удалось получить профили или записи для рейтинга.
var ErrFetch = errors.New("не удалось загрузить данные рейтинга")

const defaultLimit = 20

const (
	ViewMostWatched         = "most_watched"
	ViewBestRated           = "best_rated"
	ViewWatchlistPopularity = "watchlist_popularity"
	ViewInterest            = "interest"
	ViewUsers               = "users"
)

// Options задаёт параметры рейтингов.
type Options struct {
	Limit           int
	Missing         domain.MissingPolicy
	InterestMissing domain.MissingPolicy
}

// Service считает рейтинги по всей активности.
type Service struct {
	profiles domain.ProfileStore
	activity domain.ActivityStore
	resolver *resolve.Resolver
	opts     Options
	log      zerolog.Logger
}

// NewService создаёт сервис рейтингов.
func NewService(profiles domain.ProfileStore, activity domain.ActivityStore, resolver *resolve.Resolver, opts Options, log zerolog.Logger) *Service {
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if !opts.Missing.Valid() {
		opts.Missing = domain.MissingPlaceholder
	}
	if !opts.InterestMissing.Valid() {
		opts.InterestMissing = domain.MissingDrop
	}
	return &Service{profiles: profiles, activity: activity, resolver: resolver, opts: opts, log: log}
}

// MostWatched возвращает самые просматриваемые сериалы.
func (s *Service) MostWatched(ctx context.Context) ([]domain.ShowAggregate, error) {
	defer observe(ViewMostWatched, time.Now())
	aggs, err := s.watchedAggregates(ctx, ViewMostWatched)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(aggs, func(i, j int) bool { return aggs[i].WatchCount > aggs[j].WatchCount })
	return top(aggs, s.opts.Limit), nil
}

// BestRated возвращает сериалы с наибольшей средней оценкой. Сериалы без оценок не попадают в выдачу.
func (s *Service) BestRated(ctx context.Context) ([]domain.ShowAggregate, error) {
	defer observe(ViewBestRated, time.Now())
	aggs, err := s.watchedAggregates(ctx, ViewBestRated)
	if err != nil {
		return nil, err
	}
	rated := make([]domain.ShowAggregate, 0, len(aggs))
	for _, agg := range aggs {
		if agg.AverageRating > 0 && len(agg.Ratings) > 0 {
			rated = append(rated, agg)
		}
	}
	sort.SliceStable(rated, func(i, j int) bool { return rated[i].AverageRating > rated[j].AverageRating })
	return top(rated, s.opts.Limit), nil
}

// WatchlistPopularity возвращает сериалы, которые хочет посмотреть больше всего разных пользователей.
// WatchCount в результате — число уникальных пользователей.
func (s *Service) WatchlistPopularity(ctx context.Context) ([]domain.ShowAggregate, error) {
	defer observe(ViewWatchlistPopularity, time.Now())
	records, err := s.activity.ListWatchlist(ctx, "", 0)
	if err != nil {
		return nil, fetchErr(ViewWatchlistPopularity, "список желаемого", err)
	}

	session := s.resolver.Session()
	aggs := FoldWatchlist(records)
	if err := s.resolveWatchers(ctx, session, aggs); err != nil {
		return nil, err
	}
	aggs, err = s.resolveShows(ctx, session, ViewWatchlistPopularity, s.opts.Missing, aggs)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(aggs, func(i, j int) bool { return aggs[i].WatchCount > aggs[j].WatchCount })
	return top(aggs, s.opts.Limit), nil
}

// InterestFeed возвращает записи «кто что хочет посмотреть», новые первыми.
func (s *Service) InterestFeed(ctx context.Context) ([]domain.InterestEntry, error) {
	defer observe(ViewInterest, time.Now())
	records, err := s.activity.ListWatchlist(ctx, "", 0)
	if err != nil {
		return nil, fetchErr(ViewInterest, "список желаемого", err)
	}

	session := s.resolver.Session()
	entries := make([]*domain.InterestEntry, len(records))
	_ = resolve.ForEach(ctx, s.resolver.Limit(), len(records), func(ctx context.Context, i int) error {
		rec := records[i]
		show, err := session.Show(ctx, rec.ShowID)
		if err != nil {
			metrics.ObserveResolutionFailure(ViewInterest, "show_"+resolve.FailureKind(err), string(s.opts.InterestMissing))
			s.log.Warn().Err(err).Int64("show", rec.ShowID).Msg("ranking: сериал для интереса не найден")
			if s.opts.InterestMissing == domain.MissingDrop {
				return nil
			}
			show = resolve.PlaceholderShow(rec.ShowID)
		}
		user, err := session.Profile(ctx, rec.UserID)
		if err != nil {
			metrics.ObserveResolutionFailure(ViewInterest, "profile_"+resolve.FailureKind(err), string(domain.MissingPlaceholder))
			user = resolve.PlaceholderProfile(rec.UserID)
		}
		entries[i] = &domain.InterestEntry{Show: show, User: user, Note: rec.Note, AddedAt: rec.CreatedAt}
		return nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.InterestEntry, 0, len(entries))
	for _, e := range entries {
		if e != nil {
			out = append(out, *e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AddedAt.After(out[j].AddedAt) })
	return out, nil
}

// UserLeaderboard возвращает самых активных пользователей.
func (s *Service) UserLeaderboard(ctx context.Context) ([]domain.UserAggregate, error) {
	defer observe(ViewUsers, time.Now())
	profiles, err := s.profiles.ListProfiles(ctx)
	if err != nil {
		return nil, fetchErr(ViewUsers, "профили", err)
	}
	records, err := s.activity.ListWatched(ctx, "", 0)
	if err != nil {
		return nil, fetchErr(ViewUsers, "просмотренные", err)
	}
	users := FoldUsers(records, profiles)
	sort.SliceStable(users, func(i, j int) bool { return users[i].WatchedCount > users[j].WatchedCount })
	return top(users, s.opts.Limit), nil
}

// Board содержит все рейтинги; ошибка одного вида не мешает остальным.
type Board struct {
	MostWatched         []domain.ShowAggregate
	BestRated           []domain.ShowAggregate
	WatchlistPopularity []domain.ShowAggregate
	Interest            []domain.InterestEntry
	Users               []domain.UserAggregate
	Errors              map[string]error
}

// Board строит все рейтинги параллельно.
func (s *Service) Board(ctx context.Context) Board {
	var (
		board Board
		mu    sync.Mutex
		wg    sync.WaitGroup
	)
	board.Errors = make(map[string]error)
	run := func(view string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				board.Errors[view] = err
				mu.Unlock()
			}
		}()
	}
	run(ViewMostWatched, func() (err error) { board.MostWatched, err = s.MostWatched(ctx); return })
	run(ViewBestRated, func() (err error) { board.BestRated, err = s.BestRated(ctx); return })
	run(ViewWatchlistPopularity, func() (err error) { board.WatchlistPopularity, err = s.WatchlistPopularity(ctx); return })
	run(ViewInterest, func() (err error) { board.Interest, err = s.InterestFeed(ctx); return })
	run(ViewUsers, func() (err error) { board.Users, err = s.UserLeaderboard(ctx); return })
	wg.Wait()
	return board
}

// watchedAggregates загружает профили, их просмотры и сворачивает по сериалам.
func (s *Service) watchedAggregates(ctx context.Context, view string) ([]domain.ShowAggregate, error) {
	profiles, err := s.profiles.ListProfiles(ctx)
	if err != nil {
		return nil, fetchErr(view, "профили", err)
	}

	perUser := make([][]domain.WatchedRecord, len(profiles))
	err = resolve.ForEach(ctx, s.resolver.Limit(), len(profiles), func(ctx context.Context, i int) error {
		records, err := s.activity.ListWatched(ctx, profiles[i].ID, 0)
		if err != nil {
			return fmt.Errorf("просмотры %s: %w", profiles[i].ID, err)
		}
		perUser[i] = records
		return nil
	})
	if err != nil {
		return nil, fetchErr(view, "просмотренные", err)
	}

	session := s.resolver.Session()
	session.Prime(profiles)
	aggs := FoldWatched(profiles, perUser)
	return s.resolveShows(ctx, session, view, s.opts.Missing, aggs)
}

// resolveShows подставляет название и постер каждому агрегату.
// Отмена контекста возвращается ошибкой, а не заглушками.
func (s *Service) resolveShows(ctx context.Context, session *resolve.Session, view string, policy domain.MissingPolicy, aggs []domain.ShowAggregate) ([]domain.ShowAggregate, error) {
	keep := make([]bool, len(aggs))
	_ = resolve.ForEach(ctx, s.resolver.Limit(), len(aggs), func(ctx context.Context, i int) error {
		show, err := session.Show(ctx, aggs[i].ShowID)
		if err != nil {
			metrics.ObserveResolutionFailure(view, "show_"+resolve.FailureKind(err), string(policy))
			s.log.Debug().Err(err).Int64("show", aggs[i].ShowID).Str("view", view).Msg("ranking: сериал не найден")
			if policy == domain.MissingDrop {
				return nil
			}
			show = resolve.PlaceholderShow(aggs[i].ShowID)
		}
		aggs[i].Title = show.Title
		aggs[i].PosterPath = show.PosterPath
		keep[i] = true
		return nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := aggs[:0]
	for i, agg := range aggs {
		if keep[i] {
			out = append(out, agg)
		}
	}
	return out, nil
}

// resolveWatchers подставляет имена пользователей в списки зрителей.
func (s *Service) resolveWatchers(ctx context.Context, session *resolve.Session, aggs []domain.ShowAggregate) error {
	type ref struct{ agg, watcher int }
	var refs []ref
	for i := range aggs {
		for j := range aggs[i].Watchers {
			refs = append(refs, ref{agg: i, watcher: j})
		}
	}
	_ = resolve.ForEach(ctx, s.resolver.Limit(), len(refs), func(ctx context.Context, k int) error {
		w := &aggs[refs[k].agg].Watchers[refs[k].watcher]
		profile, err := session.Profile(ctx, w.UserID)
		if err != nil {
			profile = resolve.PlaceholderProfile(w.UserID)
		}
		w.Username = profile.Name()
		w.AvatarURL = profile.AvatarURL
		return nil
	})
	return ctx.Err()
}

func fetchErr(view, what string, err error) error {
	metrics.FetchFailures.WithLabelValues(view).Inc()
	return fmt.Errorf("%w: %s: %w", ErrFetch, what, err)
}

func observe(view string, start time.Time) {
	metrics.RankingBuildSeconds.WithLabelValues(view).Observe(time.Since(start).Seconds())
}

func top[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
