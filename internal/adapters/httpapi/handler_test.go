package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"showtrack/internal/adapters/repo"
	"showtrack/internal/adapters/snapshot"
	"showtrack/internal/domain"
	"showtrack/internal/infra/cache"
	httpinfra "showtrack/internal/infra/http"
	"showtrack/internal/infra/notify"
	"showtrack/internal/usecase/activity"
	"showtrack/internal/usecase/feed"
	"showtrack/internal/usecase/ranking"
	"showtrack/internal/usecase/resolve"
	"showtrack/internal/usecase/shows"
)

type stubCatalog struct{}

func (stubCatalog) GetShow(_ context.Context, id int64) (domain.ShowSummary, error) {
	if id == 404 {
		return domain.ShowSummary{}, domain.ErrNotFound
	}
	return domain.ShowSummary{ID: id, Title: fmt.Sprintf("title-%d", id)}, nil
}

func (stubCatalog) SearchShows(_ context.Context, q string) ([]domain.ShowSummary, error) {
	return []domain.ShowSummary{{ID: 1, Title: q}}, nil
}

// testAuth подставляет пользователя из заголовка X-User вместо проверки initData.
func testAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-User")
		if id == "" {
			id = "1"
		}
		numeric, _ := strconv.ParseInt(id, 10, 64)
		user := httpinfra.WebAppUser{ID: numeric, FirstName: "user" + id}
		next.ServeHTTP(w, r.WithContext(httpinfra.WithUser(r.Context(), user)))
	})
}

func newRouter(t *testing.T) (chi.Router, *notify.Broadcaster) {
	t.Helper()
	store := repo.NewMemory()
	broadcaster := notify.NewBroadcaster()
	log := zerolog.Nop()
	resolver := resolve.New(stubCatalog{}, store, time.Second, 4)

	h := NewHandler(
		feed.NewService(store, resolver, snapshot.NewStore(cache.NewMemory()), feed.Options{PageSize: 5}, log),
		ranking.NewService(store, store, resolver, ranking.Options{}, log),
		shows.NewService(stubCatalog{}, 10),
		activity.NewService(store, store, broadcaster, log),
		broadcaster,
		log,
	)
	r := chi.NewRouter()
	h.Mount(r, testAuth)
	return r, broadcaster
}

func do(t *testing.T, r http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-User", user)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestFeedPagination(t *testing.T) {
	r, _ := newRouter(t)
	for i := 1; i <= 7; i++ {
		rec := do(t, r, http.MethodPost, "/api/v1/watched", "1", map[string]any{"show_id": i})
		if rec.Code != http.StatusOK {
			t.Fatalf("ожидали 200, получили %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec := do(t, r, http.MethodGet, "/api/v1/feed", "1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d: %s", rec.Code, rec.Body.String())
	}
	first := decodeBody[feedPageDTO](t, rec)
	if len(first.Entries) != 5 || first.Done || first.NextPage == nil || *first.NextPage != 1 {
		t.Fatalf("неверная первая страница: %+v", first)
	}
	if first.Entries[0].Username != "user1" || first.Entries[0].Kind != "watched" {
		t.Fatalf("неверная запись: %+v", first.Entries[0])
	}

	rec = do(t, r, http.MethodGet, "/api/v1/feed/"+first.SnapshotID+"?page=1", "1", nil)
	second := decodeBody[feedPageDTO](t, rec)
	if len(second.Entries) != 2 || !second.Done {
		t.Fatalf("неверная вторая страница: %+v", second)
	}

	if rec := do(t, r, http.MethodGet, "/api/v1/feed/unknown", "1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("ожидали 404 для неизвестного снимка, получили %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/api/v1/feed/"+first.SnapshotID+"?page=x", "1", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400, получили %d", rec.Code)
	}
}

func TestMarkWatchedValidation(t *testing.T) {
	r, _ := newRouter(t)
	cases := []struct {
		name string
		body any
	}{
		{"rating", map[string]any{"show_id": 1, "rating": 11}},
		{"show", map[string]any{"rating": 5}},
		{"garbage", "not an object"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := do(t, r, http.MethodPost, "/api/v1/watched", "1", tc.body); rec.Code != http.StatusBadRequest {
				t.Fatalf("ожидали 400, получили %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRankings(t *testing.T) {
	r, _ := newRouter(t)
	do(t, r, http.MethodPost, "/api/v1/watched", "1", map[string]any{"show_id": 42, "rating": 8})
	do(t, r, http.MethodPost, "/api/v1/watched", "2", map[string]any{"show_id": 42, "rating": 6})
	do(t, r, http.MethodPost, "/api/v1/watchlist", "2", map[string]any{"show_id": 7, "note": "советуют"})

	rec := do(t, r, http.MethodGet, "/api/v1/rankings/most-watched", "1", nil)
	aggs := decodeBody[[]showAggregateDTO](t, rec)
	if len(aggs) != 1 || aggs[0].WatchCount != 2 || aggs[0].AverageRating != 7 || aggs[0].Title != "title-42" {
		t.Fatalf("неверный рейтинг: %+v", aggs)
	}

	rec = do(t, r, http.MethodGet, "/api/v1/rankings/interest", "1", nil)
	interest := decodeBody[[]interestDTO](t, rec)
	if len(interest) != 1 || interest[0].User.DisplayName != "user2" || interest[0].Note != "советуют" {
		t.Fatalf("неверная лента интересов: %+v", interest)
	}

	rec = do(t, r, http.MethodGet, "/api/v1/rankings", "1", nil)
	board := decodeBody[boardDTO](t, rec)
	if len(board.Users) != 2 || len(board.WatchlistPopularity) != 1 || len(board.Errors) != 0 {
		t.Fatalf("неверная сводка: %+v", board)
	}

	if rec := do(t, r, http.MethodGet, "/api/v1/rankings/unknown", "1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("ожидали 404, получили %d", rec.Code)
	}
}

func TestShows(t *testing.T) {
	r, _ := newRouter(t)
	rec := do(t, r, http.MethodGet, "/api/v1/shows/search?q=", "1", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("пустой поиск должен вернуть [], получили %d %q", rec.Code, rec.Body.String())
	}
	rec = do(t, r, http.MethodGet, "/api/v1/shows/search?q=wire", "1", nil)
	found := decodeBody[[]showDTO](t, rec)
	if len(found) != 1 || found[0].Title != "wire" {
		t.Fatalf("неверный поиск: %+v", found)
	}
	if rec := do(t, r, http.MethodGet, "/api/v1/shows/404", "1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("ожидали 404, получили %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/api/v1/shows/abc", "1", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400, получили %d", rec.Code)
	}
}

func TestMeAndDelete(t *testing.T) {
	r, _ := newRouter(t)
	rec := do(t, r, http.MethodPost, "/api/v1/watchlist", "5", map[string]any{"show_id": 3})
	item := decodeBody[watchlistDTO](t, rec)

	if rec := do(t, r, http.MethodDelete, "/api/v1/watchlist/"+item.ID, "6", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("чужую запись удалять нельзя, получили %d", rec.Code)
	}
	if rec := do(t, r, http.MethodDelete, "/api/v1/watchlist/"+item.ID, "5", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("ожидали 204, получили %d", rec.Code)
	}

	rec = do(t, r, http.MethodPut, "/api/v1/me", "5", map[string]any{"display_name": "Борис"})
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, r, http.MethodGet, "/api/v1/me", "5", nil)
	me := decodeBody[overviewDTO](t, rec)
	if me.Profile.DisplayName != "Борис" || len(me.Watchlist) != 0 {
		t.Fatalf("неверный профиль: %+v", me)
	}
	if rec := do(t, r, http.MethodPut, "/api/v1/me", "5", map[string]any{"avatar_url": "not a url"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400, получили %d", rec.Code)
	}
}

func TestEventsStream(t *testing.T) {
	r, broadcaster := newRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("неверный Content-Type: %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if line, _ := reader.ReadString('\n'); !strings.HasPrefix(line, "retry:") {
		t.Fatalf("ожидали retry, получили %q", line)
	}
	for broadcaster.Subscribers() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if err := broadcaster.Publish(ctx, domain.ChangeEvent{Table: domain.ChangeWatched, Op: domain.OpUpsert}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("поток оборвался: %v", err)
		}
		if strings.TrimSpace(line) == "event: invalidate" {
			return
		}
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("%w: boom", feed.ErrFetch):    http.StatusBadGateway,
		fmt.Errorf("%w: boom", ranking.ErrFetch): http.StatusBadGateway,
		domain.ErrSnapshotNotFound:               http.StatusNotFound,
		domain.ErrInvalidRating:                  http.StatusBadRequest,
		context.DeadlineExceeded:                 http.StatusGatewayTimeout,
		errors.New("other"):                      http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := StatusFor(err); got != want {
			t.Fatalf("%v: ожидали %d, получили %d", err, want, got)
		}
	}
}
