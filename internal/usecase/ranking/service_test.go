package ranking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"showtrack/internal/domain"
	"showtrack/internal/infra/metrics"
	"showtrack/internal/usecase/resolve"
)

type stubProfiles struct {
	list    []domain.Profile
	listErr error
}

func (p *stubProfiles) GetProfile(_ context.Context, id string) (domain.Profile, error) {
	for _, pr := range p.list {
		if pr.ID == id {
			return pr, nil
		}
	}
	return domain.Profile{}, domain.ErrNotFound
}
func (p *stubProfiles) ListProfiles(context.Context) ([]domain.Profile, error) {
	return p.list, p.listErr
}
func (p *stubProfiles) UpsertProfile(_ context.Context, pr domain.Profile) (domain.Profile, error) {
	return pr, nil
}

type stubActivity struct {
	watched      []domain.WatchedRecord
	watchlist    []domain.WatchlistRecord
	watchedErr   error
	watchlistErr error
}

func (s *stubActivity) ListWatched(_ context.Context, userID string, _ int) ([]domain.WatchedRecord, error) {
	if s.watchedErr != nil {
		return nil, s.watchedErr
	}
	if userID == "" {
		return s.watched, nil
	}
	var out []domain.WatchedRecord
	for _, r := range s.watched {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}
func (s *stubActivity) ListWatchlist(context.Context, string, int) ([]domain.WatchlistRecord, error) {
	return s.watchlist, s.watchlistErr
}
func (s *stubActivity) UpsertWatched(_ context.Context, r domain.WatchedRecord) (domain.WatchedRecord, error) {
	return r, nil
}
func (s *stubActivity) UpsertWatchlist(_ context.Context, r domain.WatchlistRecord) (domain.WatchlistRecord, error) {
	return r, nil
}
func (s *stubActivity) DeleteWatched(context.Context, string, string) error   { return nil }
func (s *stubActivity) DeleteWatchlist(context.Context, string, string) error { return nil }

type stubCatalog struct {
	missing map[int64]bool
	block   bool
}

func (c *stubCatalog) GetShow(ctx context.Context, id int64) (domain.ShowSummary, error) {
	if c.block {
		<-ctx.Done()
		return domain.ShowSummary{}, ctx.Err()
	}
	if c.missing[id] {
		return domain.ShowSummary{}, domain.ErrNotFound
	}
	return domain.ShowSummary{ID: id, Title: fmt.Sprintf("title-%d", id), PosterPath: "/p.jpg"}, nil
}
func (c *stubCatalog) SearchShows(context.Context, string) ([]domain.ShowSummary, error) {
	return nil, nil
}

func ptr(v float64) *float64 { return &v }

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newService(prof *stubProfiles, act *stubActivity, cat *stubCatalog, opts Options) *Service {
	return NewService(prof, act, resolve.New(cat, prof, time.Second, 4), opts, zerolog.Nop())
}

func twoUsers() *stubProfiles {
	return &stubProfiles{list: []domain.Profile{
		{ID: "u1", DisplayName: "Аня"},
		{ID: "u2", DisplayName: "Борис"},
	}}
}

func TestMostWatchedCountsAndAverages(t *testing.T) {
	act := &stubActivity{watched: []domain.WatchedRecord{
		{ID: "1", UserID: "u1", ShowID: 42, Rating: ptr(8)},
		{ID: "2", UserID: "u2", ShowID: 42, Rating: ptr(6)},
		{ID: "3", UserID: "u2", ShowID: 7},
	}}
	svc := newService(twoUsers(), act, &stubCatalog{}, Options{})

	aggs, err := svc.MostWatched(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(aggs) != 2 {
		t.Fatalf("ожидали 2 сериала, получили %d", len(aggs))
	}
	first := aggs[0]
	if first.ShowID != 42 || first.WatchCount != 2 || first.AverageRating != 7.0 {
		t.Fatalf("неверный агрегат: %+v", first)
	}
	if first.Title != "title-42" || first.PosterPath != "/p.jpg" {
		t.Fatalf("сериал не разрешён: %+v", first)
	}
	if len(first.Watchers) != 2 || first.Watchers[0].Username != "Аня" || first.Watchers[1].Username != "Борис" {
		t.Fatalf("неверные зрители: %+v", first.Watchers)
	}
	if aggs[1].AverageRating != 0 || len(aggs[1].Ratings) != 0 {
		t.Fatalf("сериал без оценок должен иметь средний балл 0: %+v", aggs[1])
	}
}

func TestMostWatchedTieKeepsFirstAppearance(t *testing.T) {
	act := &stubActivity{watched: []domain.WatchedRecord{
		{ID: "1", UserID: "u1", ShowID: 5},
		{ID: "2", UserID: "u1", ShowID: 9},
	}}
	svc := newService(twoUsers(), act, &stubCatalog{}, Options{})
	aggs, err := svc.MostWatched(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if aggs[0].ShowID != 5 || aggs[1].ShowID != 9 {
		t.Fatalf("при равенстве ожидали порядок первого появления: %+v", aggs)
	}
}

func TestMostWatchedAppliesLimit(t *testing.T) {
	act := &stubActivity{}
	for i := 0; i < 10; i++ {
		act.watched = append(act.watched, domain.WatchedRecord{ID: fmt.Sprint(i), UserID: "u1", ShowID: int64(i + 1)})
	}
	svc := newService(twoUsers(), act, &stubCatalog{}, Options{Limit: 3})
	aggs, err := svc.MostWatched(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(aggs) != 3 {
		t.Fatalf("ожидали 3 сериала, получили %d", len(aggs))
	}
}

func TestMostWatchedPlaceholderForMissingShow(t *testing.T) {
	act := &stubActivity{watched: []domain.WatchedRecord{{ID: "1", UserID: "u1", ShowID: 13}}}
	svc := newService(twoUsers(), act, &stubCatalog{missing: map[int64]bool{13: true}}, Options{})

	before := testutil.ToFloat64(metrics.ResolutionFailures.WithLabelValues(ViewMostWatched, "show_not_found", "placeholder"))
	aggs, err := svc.MostWatched(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(aggs) != 1 || aggs[0].Title != "Show 13" {
		t.Fatalf("ожидали заглушку, получили %+v", aggs)
	}
	after := testutil.ToFloat64(metrics.ResolutionFailures.WithLabelValues(ViewMostWatched, "show_not_found", "placeholder"))
	if after-before != 1 {
		t.Fatalf("ожидали рост счётчика на 1, получили %v", after-before)
	}
}

func TestBestRatedExcludesUnrated(t *testing.T) {
	act := &stubActivity{watched: []domain.WatchedRecord{
		{ID: "1", UserID: "u1", ShowID: 1, Rating: ptr(6)},
		{ID: "2", UserID: "u1", ShowID: 2},
		{ID: "3", UserID: "u1", ShowID: 3, Rating: ptr(9.5)},
		{ID: "4", UserID: "u2", ShowID: 4, Rating: ptr(0)},
	}}
	svc := newService(twoUsers(), act, &stubCatalog{}, Options{})
	aggs, err := svc.BestRated(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(aggs) != 2 {
		t.Fatalf("ожидали 2 сериала с оценками, получили %+v", aggs)
	}
	if aggs[0].ShowID != 3 || aggs[1].ShowID != 1 {
		t.Fatalf("неверный порядок: %+v", aggs)
	}
}

func TestWatchlistPopularityCountsDistinctUsers(t *testing.T) {
	act := &stubActivity{watchlist: []domain.WatchlistRecord{
		{ID: "1", UserID: "u1", ShowID: 10},
		{ID: "2", UserID: "u1", ShowID: 10},
		{ID: "3", UserID: "u2", ShowID: 10},
		{ID: "4", UserID: "u2", ShowID: 20},
	}}
	svc := newService(twoUsers(), act, &stubCatalog{}, Options{})
	aggs, err := svc.WatchlistPopularity(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(aggs) != 2 || aggs[0].ShowID != 10 || aggs[0].WatchCount != 2 || aggs[1].WatchCount != 1 {
		t.Fatalf("неверные агрегаты: %+v", aggs)
	}
	if aggs[0].Watchers[0].Username != "Аня" || aggs[0].Watchers[1].Username != "Борис" {
		t.Fatalf("имена зрителей не разрешены: %+v", aggs[0].Watchers)
	}
}

func TestInterestFeedDropsUnresolvedShowAndSortsNewestFirst(t *testing.T) {
	act := &stubActivity{watchlist: []domain.WatchlistRecord{
		{ID: "1", UserID: "u1", ShowID: 10, Note: "советуют", CreatedAt: base},
		{ID: "2", UserID: "u2", ShowID: 99, CreatedAt: base.Add(time.Hour)},
		{ID: "3", UserID: "ghost", ShowID: 20, CreatedAt: base.Add(2 * time.Hour)},
	}}
	svc := newService(twoUsers(), act, &stubCatalog{missing: map[int64]bool{99: true}}, Options{})
	entries, err := svc.InterestFeed(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ожидали 2 записи, получили %d", len(entries))
	}
	if entries[0].Show.ID != 20 || entries[0].User.Name() != domain.AnonymousName {
		t.Fatalf("ожидали запись неизвестного пользователя первой: %+v", entries[0])
	}
	if entries[1].Note != "советуют" || entries[1].User.DisplayName != "Аня" {
		t.Fatalf("неверная вторая запись: %+v", entries[1])
	}
}

func TestUserLeaderboard(t *testing.T) {
	act := &stubActivity{watched: []domain.WatchedRecord{
		{ID: "1", UserID: "u1", ShowID: 1, Rating: ptr(7)},
		{ID: "2", UserID: "u2", ShowID: 1, Rating: ptr(9)},
		{ID: "3", UserID: "u2", ShowID: 2, Rating: ptr(8)},
		{ID: "4", UserID: "ghost", ShowID: 2},
	}}
	svc := newService(twoUsers(), act, &stubCatalog{}, Options{})
	users, err := svc.UserLeaderboard(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("ожидали 3 пользователя, получили %d", len(users))
	}
	if users[0].UserID != "u2" || users[0].WatchedCount != 2 || users[0].AverageRating != 8.5 {
		t.Fatalf("неверный лидер: %+v", users[0])
	}
	if users[2].Username != domain.AnonymousName {
		t.Fatalf("неизвестный пользователь должен получить заглушку: %+v", users[2])
	}
}

func TestFetchFailureIsReported(t *testing.T) {
	svc := newService(&stubProfiles{listErr: errors.New("db down")}, &stubActivity{}, &stubCatalog{}, Options{})
	if _, err := svc.MostWatched(context.Background()); !errors.Is(err, ErrFetch) {
		t.Fatalf("ожидали ErrFetch, получили %v", err)
	}
	if _, err := svc.UserLeaderboard(context.Background()); !errors.Is(err, ErrFetch) {
		t.Fatalf("ожидали ErrFetch, получили %v", err)
	}
}

func TestBoardIsolatesFailures(t *testing.T) {
	act := &stubActivity{
		watched:      []domain.WatchedRecord{{ID: "1", UserID: "u1", ShowID: 42, Rating: ptr(8)}},
		watchlistErr: errors.New("timeout"),
	}
	svc := newService(twoUsers(), act, &stubCatalog{}, Options{})
	board := svc.Board(context.Background())
	if len(board.MostWatched) != 1 || len(board.BestRated) != 1 || len(board.Users) != 1 {
		t.Fatalf("рабочие рейтинги должны быть заполнены: %+v", board)
	}
	for _, view := range []string{ViewWatchlistPopularity, ViewInterest} {
		if !errors.Is(board.Errors[view], ErrFetch) {
			t.Fatalf("ожидали ErrFetch для %s, получили %v", view, board.Errors[view])
		}
	}
	if len(board.Errors) != 2 {
		t.Fatalf("ожидали ровно 2 ошибки, получили %v", board.Errors)
	}
}

func TestCancelledRankingReturnsError(t *testing.T) {
	act := &stubActivity{
		watched:   []domain.WatchedRecord{{ID: "1", UserID: "u1", ShowID: 42, Rating: ptr(8)}},
		watchlist: []domain.WatchlistRecord{{ID: "2", UserID: "u2", ShowID: 42}},
	}
	for _, policy := range []domain.MissingPolicy{domain.MissingPlaceholder, domain.MissingDrop} {
		svc := newService(twoUsers(), act, &stubCatalog{block: true}, Options{Missing: policy})
		views := map[string]func(context.Context) ([]domain.ShowAggregate, error){
			ViewMostWatched:         svc.MostWatched,
			ViewBestRated:           svc.BestRated,
			ViewWatchlistPopularity: svc.WatchlistPopularity,
		}
		for view, fn := range views {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			aggs, err := fn(ctx)
			cancel()
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("%s/%s: ожидали DeadlineExceeded, получили err=%v aggs=%+v", view, policy, err, aggs)
			}
		}
	}
}
