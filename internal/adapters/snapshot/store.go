package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"showtrack/internal/domain"
)

const keyPrefix = "feed:snapshot:"

// Store хранит снимки ленты в кэше с TTL.
type Store struct {
	cache domain.Cache
}

var _ domain.SnapshotStore = (*Store)(nil)

// NewStore создаёт хранилище снимков поверх кэша.
func NewStore(cache domain.Cache) *Store {
	return &Store{cache: cache}
}

// SaveSnapshot реализует domain.SnapshotStore.
func (s *Store) SaveSnapshot(ctx context.Context, snap domain.FeedSnapshot, ttl time.Duration) error {
	if snap.ID == "" {
		return fmt.Errorf("снимок без идентификатора")
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.cache.Set(ctx, keyPrefix+snap.ID, raw, ttl)
}

// LoadSnapshot реализует domain.SnapshotStore.
func (s *Store) LoadSnapshot(ctx context.Context, id string) (domain.FeedSnapshot, error) {
	raw, err := s.cache.Get(ctx, keyPrefix+id)
	if errors.Is(err, domain.ErrCacheMiss) {
		return domain.FeedSnapshot{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.FeedSnapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	var snap domain.FeedSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.FeedSnapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}
