package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"showtrack/internal/domain"
)

// Memory хранит профили и активность в памяти процесса. Используется в тестах и при пустом PG_DSN.
type Memory struct {
	mu        sync.Mutex
	profiles  map[string]domain.Profile
	order     []string
	watched   []domain.WatchedRecord
	watchlist []domain.WatchlistRecord
}

var (
	_ domain.ProfileStore  = (*Memory)(nil)
	_ domain.ActivityStore = (*Memory)(nil)
)

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{profiles: make(map[string]domain.Profile)}
}

// GetProfile реализует domain.ProfileStore.
func (m *Memory) GetProfile(_ context.Context, userID string) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return domain.Profile{}, domain.ErrNotFound
	}
	return p, nil
}

// ListProfiles реализует domain.ProfileStore.
func (m *Memory) ListProfiles(context.Context) ([]domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Profile, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.profiles[id])
	}
	return out, nil
}

// UpsertProfile реализует domain.ProfileStore.
func (m *Memory) UpsertProfile(_ context.Context, profile domain.Profile) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[profile.ID]; !ok {
		m.order = append(m.order, profile.ID)
	}
	m.profiles[profile.ID] = profile
	return profile, nil
}

// ListWatched реализует domain.ActivityStore.
func (m *Memory) ListWatched(_ context.Context, userID string, limit int) ([]domain.WatchedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WatchedRecord
	for _, rec := range m.watched {
		if userID == "" || rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return capped(out, limit), nil
}

// ListWatchlist реализует domain.ActivityStore.
func (m *Memory) ListWatchlist(_ context.Context, userID string, limit int) ([]domain.WatchlistRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WatchlistRecord
	for _, rec := range m.watchlist {
		if userID == "" || rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return capped(out, limit), nil
}

// UpsertWatched реализует domain.ActivityStore: существующая запись пары (пользователь, сериал)
// обновляется, иначе добавляется новая.
func (m *Memory) UpsertWatched(_ context.Context, rec domain.WatchedRecord) (domain.WatchedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.watched {
		if existing.UserID == rec.UserID && existing.ShowID == rec.ShowID {
			existing.Rating = rec.Rating
			existing.Comment = rec.Comment
			existing.WatchedAt = rec.WatchedAt
			m.watched[i] = existing
			return existing, nil
		}
	}
	rec.ID = uuid.NewString()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.watched = append(m.watched, rec)
	return rec, nil
}

// UpsertWatchlist реализует domain.ActivityStore.
func (m *Memory) UpsertWatchlist(_ context.Context, rec domain.WatchlistRecord) (domain.WatchlistRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.watchlist {
		if existing.UserID == rec.UserID && existing.ShowID == rec.ShowID {
			existing.Note = rec.Note
			m.watchlist[i] = existing
			return existing, nil
		}
	}
	rec.ID = uuid.NewString()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.watchlist = append(m.watchlist, rec)
	return rec, nil
}

// DeleteWatched реализует domain.ActivityStore.
func (m *Memory) DeleteWatched(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rec := range m.watched {
		if rec.ID == id && rec.UserID == userID {
			m.watched = append(m.watched[:i], m.watched[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// DeleteWatchlist реализует domain.ActivityStore.
func (m *Memory) DeleteWatchlist(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rec := range m.watchlist {
		if rec.ID == id && rec.UserID == userID {
			m.watchlist = append(m.watchlist[:i], m.watchlist[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func capped[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
