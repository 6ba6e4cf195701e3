package domain

import "time"

// Profile описывает пользователя сервиса.
type Profile struct {
	ID          string
	DisplayName string
	AvatarURL   string
}

// Name возвращает отображаемое имя или запасное значение.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return AnonymousName
}

// AnonymousName используется, когда у профиля нет имени.
const AnonymousName = "Аноним"

// Genre описывает жанр сериала в каталоге.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ShowSummary содержит метаданные сериала из внешнего каталога.
type ShowSummary struct {
	ID           int64
	Title        string
	PosterPath   string
	BackdropPath string
	FirstAirDate string
	Genres       []Genre
	VoteAverage  float64
}

// WatchedRecord отмечает, что пользователь посмотрел сериал.
type WatchedRecord struct {
	ID        string
	UserID    string
	ShowID    int64
	Rating    *float64
	Comment   string
	WatchedAt *time.Time
	CreatedAt time.Time
}

// EffectiveAt возвращает момент просмотра, а если он не задан — момент создания записи.
func (r WatchedRecord) EffectiveAt() time.Time {
	if r.WatchedAt != nil && !r.WatchedAt.IsZero() {
		return *r.WatchedAt
	}
	return r.CreatedAt
}

// WatchlistRecord отмечает желание пользователя посмотреть сериал.
type WatchlistRecord struct {
	ID        string
	UserID    string
	ShowID    int64
	Note      string
	CreatedAt time.Time
}

// ActivityKind различает типы событий в ленте.
type ActivityKind string

const (
	// KindWatched — пользователь посмотрел сериал.
	KindWatched ActivityKind = "watched"
	// KindAddedToWatchlist — пользователь добавил сериал в список «хочу посмотреть».
	KindAddedToWatchlist ActivityKind = "added_to_watchlist"
)

// ActivityEntry — разрешённая строка ленты с данными пользователя и сериала.
type ActivityEntry struct {
	ID            string
	UserID        string
	ShowID        int64
	Kind          ActivityKind
	Timestamp     time.Time
	Username      string
	ShowTitle     string
	UserAvatarURL string
	PosterPath    string
	Rating        *float64
}

// Watcher описывает зрителя сериала в агрегате.
type Watcher struct {
	UserID    string
	Username  string
	AvatarURL string
	Rating    *float64
}

// ShowAggregate хранит статистику по сериалу.
type ShowAggregate struct {
	ShowID        int64
	Title         string
	PosterPath    string
	WatchCount    int
	Ratings       []float64
	AverageRating float64
	Watchers      []Watcher
}

// UserAggregate хранит статистику по пользователю.
type UserAggregate struct {
	UserID        string
	Username      string
	AvatarURL     string
	WatchedCount  int
	AverageRating float64
}

// InterestEntry описывает запись «кто что хочет посмотреть».
type InterestEntry struct {
	Show    ShowSummary
	User    Profile
	Note    string
	AddedAt time.Time
}
