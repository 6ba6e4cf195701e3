package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"showtrack/internal/domain"
	httpinfra "showtrack/internal/infra/http"
	"showtrack/internal/infra/metrics"
	"showtrack/internal/usecase/activity"
	"showtrack/internal/usecase/feed"
	"showtrack/internal/usecase/ranking"
	"showtrack/internal/usecase/shows"
)

const (
	maxBodyBytes   = 64 << 10
	requestTimeout = 30 * time.Second
	heartbeat      = 25 * time.Second
)

// Handler обслуживает JSON API мини-приложения.
type Handler struct {
	feed     *feed.Service
	ranking  *ranking.Service
	shows    *shows.Service
	activity *activity.Service
	events   domain.ChangeSubscriber
	validate *validator.Validate
	log      zerolog.Logger
}

// NewHandler создаёт обработчик API. events может быть nil, тогда поток событий недоступен.
func NewHandler(feedUC *feed.Service, rankingUC *ranking.Service, showsUC *shows.Service, activityUC *activity.Service, events domain.ChangeSubscriber, log zerolog.Logger) *Handler {
	return &Handler{
		feed:     feedUC,
		ranking:  rankingUC,
		shows:    showsUC,
		activity: activityUC,
		events:   events,
		validate: validator.New(),
		log:      log,
	}
}

// Mount регистрирует маршруты /api/v1 за middleware авторизации.
func (h *Handler) Mount(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth)
		r.Get("/events", h.streamEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Get("/feed", h.openFeed)
			r.Get("/feed/{snapshotID}", h.feedPage)

			r.Get("/rankings", h.board)
			r.Get("/rankings/{view}", h.rankingView)

			r.Get("/shows/search", h.searchShows)
			r.Get("/shows/{id}", h.getShow)

			r.Group(func(r chi.Router) {
				r.Use(h.syncProfile)
				r.Post("/watched", h.markWatched)
				r.Delete("/watched/{id}", h.removeWatched)
				r.Post("/watchlist", h.addToWatchlist)
				r.Delete("/watchlist/{id}", h.removeFromWatchlist)
				r.Get("/me", h.me)
				r.Put("/me", h.updateMe)
			})
		})
	})
}

// syncProfile создаёт профиль по данным Telegram при первом обращении пользователя.
func (h *Handler) syncProfile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := httpinfra.UserFromContext(r.Context())
		if !ok {
			httpinfra.WriteError(w, http.StatusUnauthorized, errors.New("пользователь не определён"))
			return
		}
		seed := domain.Profile{ID: user.UserID(), DisplayName: user.DisplayName(), AvatarURL: user.PhotoURL}
		if _, err := h.activity.EnsureProfile(r.Context(), seed); err != nil {
			h.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) openFeed(w http.ResponseWriter, r *http.Request) {
	page, err := h.feed.Open(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toFeedPage(page))
}

func (h *Handler) feedPage(w http.ResponseWriter, r *http.Request) {
	index := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			httpinfra.WriteError(w, http.StatusBadRequest, feed.ErrBadPage)
			return
		}
		index = v
	}
	page, err := h.feed.PageByID(r.Context(), chi.URLParam(r, "snapshotID"), index)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toFeedPage(page))
}

func (h *Handler) board(w http.ResponseWriter, r *http.Request) {
	httpinfra.WriteJSON(w, http.StatusOK, toBoard(h.ranking.Board(r.Context())))
}

func (h *Handler) rankingView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		body any
		err  error
	)
	switch chi.URLParam(r, "view") {
	case "most-watched":
		var aggs []domain.ShowAggregate
		aggs, err = h.ranking.MostWatched(ctx)
		body = toAggregates(aggs)
	case "best-rated":
		var aggs []domain.ShowAggregate
		aggs, err = h.ranking.BestRated(ctx)
		body = toAggregates(aggs)
	case "watchlist":
		var aggs []domain.ShowAggregate
		aggs, err = h.ranking.WatchlistPopularity(ctx)
		body = toAggregates(aggs)
	case "interest":
		var entries []domain.InterestEntry
		entries, err = h.ranking.InterestFeed(ctx)
		body = toInterest(entries)
	case "users":
		var users []domain.UserAggregate
		users, err = h.ranking.UserLeaderboard(ctx)
		body = toUsers(users)
	default:
		httpinfra.WriteError(w, http.StatusNotFound, fmt.Errorf("неизвестный рейтинг %q", chi.URLParam(r, "view")))
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, body)
}

func (h *Handler) searchShows(w http.ResponseWriter, r *http.Request) {
	found, err := h.shows.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toShows(found))
}

func (h *Handler) getShow(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, shows.ErrInvalidID)
		return
	}
	show, err := h.shows.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toShow(show))
}

func (h *Handler) markWatched(w http.ResponseWriter, r *http.Request) {
	var req markWatchedRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, _ := httpinfra.UserFromContext(r.Context())
	rec, err := h.activity.MarkWatched(r.Context(), user.UserID(), req.ShowID, req.Rating, req.Comment)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toWatched(rec))
}

func (h *Handler) removeWatched(w http.ResponseWriter, r *http.Request) {
	user, _ := httpinfra.UserFromContext(r.Context())
	if err := h.activity.RemoveWatched(r.Context(), user.UserID(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addToWatchlist(w http.ResponseWriter, r *http.Request) {
	var req watchlistRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, _ := httpinfra.UserFromContext(r.Context())
	rec, err := h.activity.AddToWatchlist(r.Context(), user.UserID(), req.ShowID, req.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toWatchlist(rec))
}

func (h *Handler) removeFromWatchlist(w http.ResponseWriter, r *http.Request) {
	user, _ := httpinfra.UserFromContext(r.Context())
	if err := h.activity.RemoveFromWatchlist(r.Context(), user.UserID(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, _ := httpinfra.UserFromContext(r.Context())
	overview, err := h.activity.Overview(r.Context(), user.UserID())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toOverview(overview))
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, _ := httpinfra.UserFromContext(r.Context())
	profile, err := h.activity.UpdateProfile(r.Context(), domain.Profile{
		ID:          user.UserID(),
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toProfile(profile))
}

// streamEvents отправляет событие invalidate на каждый сигнал об изменении данных.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		httpinfra.WriteError(w, http.StatusNotImplemented, errors.New("поток событий отключён"))
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	events, err := h.events.Subscribe(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("httpapi: подписка на изменения")
		httpinfra.WriteError(w, http.StatusServiceUnavailable, errors.New("поток событий недоступен"))
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, "retry: 3000\n\n"); err != nil {
		return
	}
	_ = rc.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, _ := json.Marshal(ev)
			if _, err := fmt.Fprintf(w, "event: invalidate\ndata: %s\n\n", payload); err != nil {
				return
			}
			metrics.ObserveChange("delivered", string(ev.Table))
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("некорректное тело запроса: %w", err))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", httpinfra.RequestID(r)).Msg("httpapi: ошибка запроса")
	}
	httpinfra.WriteError(w, status, err)
}

// StatusFor сопоставляет ошибку сценария HTTP-статусу.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, feed.ErrFetch), errors.Is(err, ranking.ErrFetch):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrSnapshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRating),
		errors.Is(err, activity.ErrInvalidShow),
		errors.Is(err, activity.ErrInvalidUser),
		errors.Is(err, activity.ErrTextTooLong),
		errors.Is(err, shows.ErrInvalidID),
		errors.Is(err, feed.ErrBadPage):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
