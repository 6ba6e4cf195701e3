package httpapi

import (
	"time"

	"showtrack/internal/domain"
	"showtrack/internal/usecase/activity"
	"showtrack/internal/usecase/ranking"
)

type genreDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type showDTO struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	PosterPath   string     `json:"poster_path,omitempty"`
	BackdropPath string     `json:"backdrop_path,omitempty"`
	FirstAirDate string     `json:"first_air_date,omitempty"`
	Genres       []genreDTO `json:"genres"`
	VoteAverage  float64    `json:"vote_average"`
}

type profileDTO struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type entryDTO struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	ShowID        int64     `json:"show_id"`
	Kind          string    `json:"kind"`
	Timestamp     time.Time `json:"timestamp"`
	Username      string    `json:"username"`
	ShowTitle     string    `json:"show_title"`
	UserAvatarURL string    `json:"user_avatar_url,omitempty"`
	PosterPath    string    `json:"poster_path,omitempty"`
	Rating        *float64  `json:"rating,omitempty"`
}

type feedPageDTO struct {
	SnapshotID string     `json:"snapshot_id"`
	Page       int        `json:"page"`
	Entries    []entryDTO `json:"entries"`
	Done       bool       `json:"done"`
	NextPage   *int       `json:"next_page,omitempty"`
}

type watcherDTO struct {
	UserID    string   `json:"user_id"`
	Username  string   `json:"username"`
	AvatarURL string   `json:"avatar_url,omitempty"`
	Rating    *float64 `json:"rating,omitempty"`
}

type showAggregateDTO struct {
	ShowID        int64        `json:"show_id"`
	Title         string       `json:"title"`
	PosterPath    string       `json:"poster_path,omitempty"`
	WatchCount    int          `json:"watch_count"`
	Ratings       []float64    `json:"ratings"`
	AverageRating float64      `json:"average_rating"`
	Watchers      []watcherDTO `json:"watchers"`
}

type userAggregateDTO struct {
	UserID        string  `json:"user_id"`
	Username      string  `json:"username"`
	AvatarURL     string  `json:"avatar_url,omitempty"`
	WatchedCount  int     `json:"watched_count"`
	AverageRating float64 `json:"average_rating"`
}

type interestDTO struct {
	Show    showDTO    `json:"show"`
	User    profileDTO `json:"user"`
	Note    string     `json:"note,omitempty"`
	AddedAt time.Time  `json:"added_at"`
}

type boardDTO struct {
	MostWatched         []showAggregateDTO `json:"most_watched"`
	BestRated           []showAggregateDTO `json:"best_rated"`
	WatchlistPopularity []showAggregateDTO `json:"watchlist"`
	Interest            []interestDTO      `json:"interest"`
	Users               []userAggregateDTO `json:"users"`
	Errors              map[string]string  `json:"errors,omitempty"`
}

type watchedDTO struct {
	ID        string     `json:"id"`
	ShowID    int64      `json:"show_id"`
	Rating    *float64   `json:"rating,omitempty"`
	Comment   string     `json:"comment,omitempty"`
	WatchedAt *time.Time `json:"watched_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type watchlistDTO struct {
	ID        string    `json:"id"`
	ShowID    int64     `json:"show_id"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type overviewDTO struct {
	Profile   profileDTO     `json:"profile"`
	Watched   []watchedDTO   `json:"watched"`
	Watchlist []watchlistDTO `json:"watchlist"`
}

type markWatchedRequest struct {
	ShowID  int64    `json:"show_id" validate:"required,gt=0"`
	Rating  *float64 `json:"rating" validate:"omitempty,min=0,max=10"`
	Comment string   `json:"comment" validate:"max=1000"`
}

type watchlistRequest struct {
	ShowID int64  `json:"show_id" validate:"required,gt=0"`
	Note   string `json:"note" validate:"max=1000"`
}

type profileRequest struct {
	DisplayName string `json:"display_name" validate:"max=64"`
	AvatarURL   string `json:"avatar_url" validate:"omitempty,url"`
}

func toShow(s domain.ShowSummary) showDTO {
	out := showDTO{
		ID:           s.ID,
		Title:        s.Title,
		PosterPath:   s.PosterPath,
		BackdropPath: s.BackdropPath,
		FirstAirDate: s.FirstAirDate,
		Genres:       make([]genreDTO, 0, len(s.Genres)),
		VoteAverage:  s.VoteAverage,
	}
	for _, g := range s.Genres {
		out.Genres = append(out.Genres, genreDTO(g))
	}
	return out
}

func toShows(shows []domain.ShowSummary) []showDTO {
	out := make([]showDTO, 0, len(shows))
	for _, s := range shows {
		out = append(out, toShow(s))
	}
	return out
}

func toProfile(p domain.Profile) profileDTO {
	return profileDTO{ID: p.ID, DisplayName: p.Name(), AvatarURL: p.AvatarURL}
}

func toFeedPage(page domain.FeedPage) feedPageDTO {
	out := feedPageDTO{
		SnapshotID: page.SnapshotID,
		Page:       page.Index,
		Entries:    make([]entryDTO, 0, len(page.Entries)),
		Done:       page.Done,
	}
	for _, e := range page.Entries {
		out.Entries = append(out.Entries, entryDTO{
			ID:            e.ID,
			UserID:        e.UserID,
			ShowID:        e.ShowID,
			Kind:          string(e.Kind),
			Timestamp:     e.Timestamp,
			Username:      e.Username,
			ShowTitle:     e.ShowTitle,
			UserAvatarURL: e.UserAvatarURL,
			PosterPath:    e.PosterPath,
			Rating:        e.Rating,
		})
	}
	if !page.Done {
		next := page.Index + 1
		out.NextPage = &next
	}
	return out
}

func toAggregates(aggs []domain.ShowAggregate) []showAggregateDTO {
	out := make([]showAggregateDTO, 0, len(aggs))
	for _, a := range aggs {
		dto := showAggregateDTO{
			ShowID:        a.ShowID,
			Title:         a.Title,
			PosterPath:    a.PosterPath,
			WatchCount:    a.WatchCount,
			Ratings:       append([]float64{}, a.Ratings...),
			AverageRating: a.AverageRating,
			Watchers:      make([]watcherDTO, 0, len(a.Watchers)),
		}
		for _, w := range a.Watchers {
			dto.Watchers = append(dto.Watchers, watcherDTO(w))
		}
		out = append(out, dto)
	}
	return out
}

func toUsers(users []domain.UserAggregate) []userAggregateDTO {
	out := make([]userAggregateDTO, 0, len(users))
	for _, u := range users {
		out = append(out, userAggregateDTO(u))
	}
	return out
}

func toInterest(entries []domain.InterestEntry) []interestDTO {
	out := make([]interestDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, interestDTO{Show: toShow(e.Show), User: toProfile(e.User), Note: e.Note, AddedAt: e.AddedAt})
	}
	return out
}

func toBoard(b ranking.Board) boardDTO {
	out := boardDTO{
		MostWatched:         toAggregates(b.MostWatched),
		BestRated:           toAggregates(b.BestRated),
		WatchlistPopularity: toAggregates(b.WatchlistPopularity),
		Interest:            toInterest(b.Interest),
		Users:               toUsers(b.Users),
	}
	if len(b.Errors) > 0 {
		out.Errors = make(map[string]string, len(b.Errors))
		for view, err := range b.Errors {
			out.Errors[view] = err.Error()
		}
	}
	return out
}

func toWatched(r domain.WatchedRecord) watchedDTO {
	return watchedDTO{ID: r.ID, ShowID: r.ShowID, Rating: r.Rating, Comment: r.Comment, WatchedAt: r.WatchedAt, CreatedAt: r.CreatedAt}
}

func toWatchlist(r domain.WatchlistRecord) watchlistDTO {
	return watchlistDTO{ID: r.ID, ShowID: r.ShowID, Note: r.Note, CreatedAt: r.CreatedAt}
}

func toOverview(o activity.Overview) overviewDTO {
	out := overviewDTO{
		Profile:   toProfile(o.Profile),
		Watched:   make([]watchedDTO, 0, len(o.Watched)),
		Watchlist: make([]watchlistDTO, 0, len(o.Watchlist)),
	}
	for _, r := range o.Watched {
		out.Watched = append(out.Watched, toWatched(r))
	}
	for _, r := range o.Watchlist {
		out.Watchlist = append(out.Watchlist, toWatchlist(r))
	}
	return out
}
