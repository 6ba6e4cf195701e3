package tmdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"showtrack/internal/domain"
	"showtrack/internal/infra/cache"
)

func newTestServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/3/tv/1396", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("api_key") != "key" || r.URL.Query().Get("language") != "ru-RU" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id":1396,"name":"Во все тяжкие","poster_path":"/bb.jpg","first_air_date":"2008-01-20","genres":[{"id":18,"name":"драма"}],"vote_average":8.9}`))
	})
	mux.HandleFunc("/3/tv/404", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status_code":34,"status_message":"The resource you requested could not be found."}`))
	})
	mux.HandleFunc("/3/tv/500", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/3/search/tv", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("query") != "wire" {
			t.Errorf("неверный запрос: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"results":[{"id":1438,"name":"The Wire","genre_ids":[80,18]}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(baseURL+"/3", "key", WithLanguage("ru-RU"), WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	return c
}

func TestClientGetShow(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	c := newClient(t, srv.URL)

	show, err := c.GetShow(context.Background(), 1396)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if show.Title != "Во все тяжкие" || show.PosterPath != "/bb.jpg" || len(show.Genres) != 1 || show.Genres[0].Name != "драма" {
		t.Fatalf("неверный сериал: %+v", show)
	}
	if _, err := c.GetShow(context.Background(), 404); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
	if _, err := c.GetShow(context.Background(), 500); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("ожидали ErrUnavailable, получили %v", err)
	}
}

func TestClientSearchMapsGenreIDs(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	shows, err := newClient(t, srv.URL).SearchShows(context.Background(), "wire")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(shows) != 1 || shows[0].Genres[0].Name != "Crime" || shows[0].Genres[1].Name != "Drama" {
		t.Fatalf("неверная выдача: %+v", shows)
	}
}

func TestFallbackOnTransportFailure(t *testing.T) {
	c, err := New("http://127.0.0.1:1", "", WithTimeout(200*time.Millisecond))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	cat := WithFallback(c, zerolog.Nop())

	shows, err := cat.SearchShows(context.Background(), "the")
	if err != nil {
		t.Fatalf("поиск должен отдать встроенные данные: %v", err)
	}
	if len(shows) != 2 {
		t.Fatalf("ожидали The Office и The Wire, получили %+v", shows)
	}
	show, err := cat.GetShow(context.Background(), 87108)
	if err != nil || show.Title != "Chernobyl" {
		t.Fatalf("ожидали Chernobyl, получили %+v, %v", show, err)
	}
	if _, err := cat.GetShow(context.Background(), 5); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}

func TestFallbackKeepsNotFound(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	cat := WithFallback(newClient(t, srv.URL), zerolog.Nop())
	if _, err := cat.GetShow(context.Background(), 404); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}

func TestCachedReadsThrough(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	cat := NewCached(newClient(t, srv.URL), cache.NewMemory(), time.Hour, zerolog.Nop())
	for i := 0; i < 3; i++ {
		show, err := cat.GetShow(context.Background(), 1396)
		if err != nil || show.ID != 1396 || len(show.Genres) != 1 {
			t.Fatalf("неверный ответ: %+v, %v", show, err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("ожидали один запрос к API, получили %d", hits.Load())
	}
	if _, err := cat.GetShow(context.Background(), 404); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}

type failingCatalog struct{ calls int }

func (f *failingCatalog) GetShow(context.Context, int64) (domain.ShowSummary, error) {
	f.calls++
	return domain.ShowSummary{}, ErrUnavailable
}
func (f *failingCatalog) SearchShows(context.Context, string) ([]domain.ShowSummary, error) {
	f.calls++
	return nil, ErrUnavailable
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	inner := &failingCatalog{}
	b := NewBreaker(inner, zerolog.Nop())
	for i := 0; i < 20; i++ {
		_, _ = b.GetShow(context.Background(), 1)
	}
	if inner.calls != 10 {
		t.Fatalf("после размыкания запросы не должны доходить до каталога, вызовов: %d", inner.calls)
	}
}
