package domain

import (
	"context"
	"time"
)

// Catalog отдаёт метаданные сериалов из внешнего каталога.
type Catalog interface {
	// GetShow возвращает ErrNotFound, если сериала нет.
	GetShow(ctx context.Context, id int64) (ShowSummary, error)
	SearchShows(ctx context.Context, query string) ([]ShowSummary, error)
}

// ProfileStore управляет профилями пользователей.
type ProfileStore interface {
	// GetProfile возвращает ErrNotFound, если профиля нет.
	GetProfile(ctx context.Context, userID string) (Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
	UpsertProfile(ctx context.Context, profile Profile) (Profile, error)
}

// ActivityStore хранит отметки о просмотре и список «хочу посмотреть».
// Пустой userID в List* означает выборку по всем пользователям, limit <= 0 — без ограничения.
type ActivityStore interface {
	ListWatched(ctx context.Context, userID string, limit int) ([]WatchedRecord, error)
	ListWatchlist(ctx context.Context, userID string, limit int) ([]WatchlistRecord, error)
	UpsertWatched(ctx context.Context, rec WatchedRecord) (WatchedRecord, error)
	UpsertWatchlist(ctx context.Context, rec WatchlistRecord) (WatchlistRecord, error)
	DeleteWatched(ctx context.Context, userID, id string) error
	DeleteWatchlist(ctx context.Context, userID, id string) error
}

// SnapshotStore сохраняет снимки ленты между запросами страниц.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap FeedSnapshot, ttl time.Duration) error
	// LoadSnapshot возвращает ErrSnapshotNotFound для неизвестного или истёкшего снимка.
	LoadSnapshot(ctx context.Context, id string) (FeedSnapshot, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get возвращает ErrCacheMiss, если ключа нет.
	Get(ctx context.Context, key string) ([]byte, error)
}
