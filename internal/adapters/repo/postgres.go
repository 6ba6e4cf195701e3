package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"showtrack/internal/domain"
	"showtrack/internal/infra/metrics"
)

// Postgres реализует хранилища профилей и активности на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ProfileStore  = (*Postgres)(nil)
	_ domain.ActivityStore = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// GetProfile реализует domain.ProfileStore.
func (p *Postgres) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		profile domain.Profile
		name    sql.NullString
		avatar  sql.NullString
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, display_name, avatar_url FROM profiles WHERE id=$1
`, userID).Scan(&profile.ID, &name, &avatar)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "profiles_get", "profiles", start, nil)
		return domain.Profile{}, domain.ErrNotFound
	}
	metrics.ObserveNetworkRequest("postgres", "profiles_get", "profiles", start, err)
	if err != nil {
		return domain.Profile{}, err
	}
	profile.DisplayName = name.String
	profile.AvatarURL = avatar.String
	return profile, nil
}

// ListProfiles реализует domain.ProfileStore.
func (p *Postgres) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, display_name, avatar_url FROM profiles ORDER BY created_at
`)
	metrics.ObserveNetworkRequest("postgres", "profiles_list", "profiles", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var profiles []domain.Profile
	for rows.Next() {
		var (
			profile domain.Profile
			name    sql.NullString
			avatar  sql.NullString
		)
		if err := rows.Scan(&profile.ID, &name, &avatar); err != nil {
			return nil, err
		}
		profile.DisplayName = name.String
		profile.AvatarURL = avatar.String
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

// UpsertProfile реализует domain.ProfileStore.
func (p *Postgres) UpsertProfile(ctx context.Context, profile domain.Profile) (domain.Profile, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		saved  domain.Profile
		name   sql.NullString
		avatar sql.NullString
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO profiles (id, display_name, avatar_url)
VALUES ($1, NULLIF($2,''), NULLIF($3,''))
ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, avatar_url = EXCLUDED.avatar_url, updated_at = now()
RETURNING id, display_name, avatar_url
`, profile.ID, strings.TrimSpace(profile.DisplayName), strings.TrimSpace(profile.AvatarURL)).Scan(&saved.ID, &name, &avatar)
	metrics.ObserveNetworkRequest("postgres", "profiles_upsert", "profiles", start, err)
	if err != nil {
		return domain.Profile{}, err
	}
	saved.DisplayName = name.String
	saved.AvatarURL = avatar.String
	return saved, nil
}

// ListWatched реализует domain.ActivityStore. Записи отдаются от новых к старым.
func (p *Postgres) ListWatched(ctx context.Context, userID string, limit int) ([]domain.WatchedRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id::text, user_id, show_id, rating, comment, watched_at, created_at
FROM watched_shows
WHERE ($1 = '' OR user_id = $1)
ORDER BY created_at DESC
LIMIT NULLIF($2, 0)
`, userID, max(limit, 0))
	metrics.ObserveNetworkRequest("postgres", "watched_list", "watched_shows", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []domain.WatchedRecord
	for rows.Next() {
		rec, err := scanWatched(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListWatchlist реализует domain.ActivityStore. Записи отдаются от новых к старым.
func (p *Postgres) ListWatchlist(ctx context.Context, userID string, limit int) ([]domain.WatchlistRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id::text, user_id, show_id, note, created_at
FROM watchlist
WHERE ($1 = '' OR user_id = $1)
ORDER BY created_at DESC
LIMIT NULLIF($2, 0)
`, userID, max(limit, 0))
	metrics.ObserveNetworkRequest("postgres", "watchlist_list", "watchlist", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []domain.WatchlistRecord
	for rows.Next() {
		rec, err := scanWatchlist(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpsertWatched реализует domain.ActivityStore. На пару (user_id, show_id) хранится одна запись.
func (p *Postgres) UpsertWatched(ctx context.Context, rec domain.WatchedRecord) (domain.WatchedRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO watched_shows (user_id, show_id, rating, comment, watched_at, created_at)
VALUES ($1, $2, $3, NULLIF($4,''), $5, $6)
ON CONFLICT (user_id, show_id) DO UPDATE SET rating = EXCLUDED.rating, comment = EXCLUDED.comment, watched_at = EXCLUDED.watched_at, updated_at = now()
RETURNING id::text, user_id, show_id, rating, comment, watched_at, created_at
`, rec.UserID, rec.ShowID, rec.Rating, rec.Comment, rec.WatchedAt, rec.CreatedAt)
	saved, err := scanWatched(row)
	metrics.ObserveNetworkRequest("postgres", "watched_upsert", "watched_shows", start, err)
	if err != nil {
		return domain.WatchedRecord{}, err
	}
	return saved, nil
}

// UpsertWatchlist реализует domain.ActivityStore.
func (p *Postgres) UpsertWatchlist(ctx context.Context, rec domain.WatchlistRecord) (domain.WatchlistRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO watchlist (user_id, show_id, note, created_at)
VALUES ($1, $2, NULLIF($3,''), $4)
ON CONFLICT (user_id, show_id) DO UPDATE SET note = EXCLUDED.note, updated_at = now()
RETURNING id::text, user_id, show_id, note, created_at
`, rec.UserID, rec.ShowID, rec.Note, rec.CreatedAt)
	saved, err := scanWatchlist(row)
	metrics.ObserveNetworkRequest("postgres", "watchlist_upsert", "watchlist", start, err)
	if err != nil {
		return domain.WatchlistRecord{}, err
	}
	return saved, nil
}

// DeleteWatched реализует domain.ActivityStore.
func (p *Postgres) DeleteWatched(ctx context.Context, userID, id string) error {
	return p.deleteOwned(ctx, "watched_shows", userID, id)
}

// DeleteWatchlist реализует domain.ActivityStore.
func (p *Postgres) DeleteWatchlist(ctx context.Context, userID, id string) error {
	return p.deleteOwned(ctx, "watchlist", userID, id)
}

func (p *Postgres) deleteOwned(ctx context.Context, table, userID, id string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id::text=$1 AND user_id=$2`, table), id, userID)
	metrics.ObserveNetworkRequest("postgres", table+"_delete", table, start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanWatched(row pgx.Row) (domain.WatchedRecord, error) {
	var (
		rec       domain.WatchedRecord
		rating    sql.NullFloat64
		comment   sql.NullString
		watchedAt sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.ShowID, &rating, &comment, &watchedAt, &rec.CreatedAt); err != nil {
		return domain.WatchedRecord{}, err
	}
	if rating.Valid {
		v := rating.Float64
		rec.Rating = &v
	}
	if watchedAt.Valid {
		ts := watchedAt.Time
		rec.WatchedAt = &ts
	}
	rec.Comment = comment.String
	return rec, nil
}

func scanWatchlist(row pgx.Row) (domain.WatchlistRecord, error) {
	var (
		rec  domain.WatchlistRecord
		note sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.ShowID, &note, &rec.CreatedAt); err != nil {
		return domain.WatchlistRecord{}, err
	}
	rec.Note = note.String
	return rec, nil
}
