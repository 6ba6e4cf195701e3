package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"showtrack/internal/domain"
	"showtrack/internal/infra/metrics"
	"showtrack/internal/usecase/resolve"
)

// ErrFetch возвращается, если не удалось получить базовый набор записей.
var ErrFetch = errors.New("не удалось загрузить активность")

// ErrBadPage возвращается для отрицательного номера страницы.
var ErrBadPage = errors.New("некорректный номер страницы")

const (
	defaultPageSize    = 5
	defaultFetchLimit  = 50
	defaultSnapshotTTL = 30 * time.Minute
	viewName           = "feed"
)

// Options задаёт параметры ленты.
type Options struct {
	PageSize    int
	FetchLimit  int
	Missing     domain.MissingPolicy
	SnapshotTTL time.Duration
}

// Service строит общую ленту активности.
type Service struct {
	activity  domain.ActivityStore
	resolver  *resolve.Resolver
	snapshots domain.SnapshotStore
	opts      Options
	log       zerolog.Logger
	now       func() time.Time
}

// NewService создаёт сервис ленты. snapshots может быть nil, тогда работают только Snapshot/Page/Cursor.
func NewService(activity domain.ActivityStore, resolver *resolve.Resolver, snapshots domain.SnapshotStore, opts Options, log zerolog.Logger) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = defaultFetchLimit
	}
	if !opts.Missing.Valid() {
		opts.Missing = domain.MissingDrop
	}
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = defaultSnapshotTTL
	}
	return &Service{
		activity:  activity,
		resolver:  resolver,
		snapshots: snapshots,
		opts:      opts,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Snapshot загружает свежие записи обоих типов, сливает их и сортирует один раз.
func (s *Service) Snapshot(ctx context.Context) (domain.FeedSnapshot, error) {
	start := time.Now()
	defer func() { metrics.FeedBuildSeconds.WithLabelValues("snapshot").Observe(time.Since(start).Seconds()) }()

	var (
		watched   []domain.WatchedRecord
		watchlist []domain.WatchlistRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		watched, err = s.activity.ListWatched(gctx, "", s.opts.FetchLimit)
		if err != nil {
			return fmt.Errorf("просмотренные: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		watchlist, err = s.activity.ListWatchlist(gctx, "", s.opts.FetchLimit)
		if err != nil {
			return fmt.Errorf("список желаемого: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		metrics.FetchFailures.WithLabelValues(viewName).Inc()
		return domain.FeedSnapshot{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	return domain.FeedSnapshot{
		ID:        uuid.NewString(),
		Rows:      Merge(watched, watchlist),
		PageSize:  s.opts.PageSize,
		CreatedAt: s.now(),
	}, nil
}

// Merge помечает записи типом, объединяет их и стабильно сортирует по убыванию эффективного времени.
func Merge(watched []domain.WatchedRecord, watchlist []domain.WatchlistRecord) []domain.FeedRow {
	rows := make([]domain.FeedRow, 0, len(watched)+len(watchlist))
	for _, rec := range watched {
		rows = append(rows, domain.FeedRow{
			Kind:     domain.KindWatched,
			RecordID: rec.ID,
			UserID:   rec.UserID,
			ShowID:   rec.ShowID,
			At:       rec.EffectiveAt(),
			Rating:   rec.Rating,
		})
	}
	for _, rec := range watchlist {
		rows = append(rows, domain.FeedRow{
			Kind:     domain.KindAddedToWatchlist,
			RecordID: rec.ID,
			UserID:   rec.UserID,
			ShowID:   rec.ShowID,
			At:       rec.CreatedAt,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].At.After(rows[j].At) })
	return rows
}

// Page разрешает строки страницы index снимка. Строки без сериала или профиля обрабатываются
// согласно политике; ошибки отдельных строк наружу не выходят.
func (s *Service) Page(ctx context.Context, snap domain.FeedSnapshot, index int) (domain.FeedPage, error) {
	if index < 0 {
		return domain.FeedPage{}, ErrBadPage
	}
	start := time.Now()
	defer func() { metrics.FeedBuildSeconds.WithLabelValues("page").Observe(time.Since(start).Seconds()) }()

	size := snap.PageSize
	if size <= 0 {
		size = s.opts.PageSize
	}
	page := domain.FeedPage{SnapshotID: snap.ID, Index: index}
	// сравнение до умножения: index*size может переполниться
	if len(snap.Rows) == 0 || index > (len(snap.Rows)-1)/size {
		page.Done = true
		return page, nil
	}
	from := index * size
	if from >= len(snap.Rows) {
		page.Done = true
		return page, nil
	}
	to := min(from+size, len(snap.Rows))
	slice := snap.Rows[from:to]

	session := s.resolver.Session()
	resolved := make([]*domain.ActivityEntry, len(slice))
	_ = resolve.ForEach(ctx, s.resolver.Limit(), len(slice), func(ctx context.Context, i int) error {
		if entry, ok := s.resolveRow(ctx, session, slice[i]); ok {
			resolved[i] = &entry
		}
		return nil
	})
	if err := ctx.Err(); err != nil {
		return domain.FeedPage{}, err
	}

	page.Entries = make([]domain.ActivityEntry, 0, len(slice))
	for _, entry := range resolved {
		if entry != nil {
			page.Entries = append(page.Entries, *entry)
		}
	}
	page.Done = to >= len(snap.Rows)
	return page, nil
}

func (s *Service) resolveRow(ctx context.Context, session *resolve.Session, row domain.FeedRow) (domain.ActivityEntry, bool) {
	var (
		show    domain.ShowSummary
		showErr error
		done    = make(chan struct{})
	)
	go func() {
		defer close(done)
		show, showErr = session.Show(ctx, row.ShowID)
	}()
	profile, profileErr := session.Profile(ctx, row.UserID)
	<-done

	if showErr != nil {
		metrics.ObserveResolutionFailure(viewName, "show_"+resolve.FailureKind(showErr), string(s.opts.Missing))
		s.log.Debug().Err(showErr).Int64("show", row.ShowID).Str("record", row.RecordID).Msg("feed: сериал не найден")
		if s.opts.Missing == domain.MissingDrop {
			return domain.ActivityEntry{}, false
		}
		show = resolve.PlaceholderShow(row.ShowID)
	}
	if profileErr != nil {
		metrics.ObserveResolutionFailure(viewName, "profile_"+resolve.FailureKind(profileErr), string(s.opts.Missing))
		s.log.Debug().Err(profileErr).Str("user", row.UserID).Str("record", row.RecordID).Msg("feed: профиль не найден")
		if s.opts.Missing == domain.MissingDrop {
			return domain.ActivityEntry{}, false
		}
		profile = resolve.PlaceholderProfile(row.UserID)
	}

	return domain.ActivityEntry{
		ID:            row.RecordID,
		UserID:        row.UserID,
		ShowID:        row.ShowID,
		Kind:          row.Kind,
		Timestamp:     row.At,
		Username:      profile.Name(),
		ShowTitle:     show.Title,
		UserAvatarURL: profile.AvatarURL,
		PosterPath:    show.PosterPath,
		Rating:        row.Rating,
	}, true
}

// Open строит новый снимок, сохраняет его и возвращает первую страницу.
func (s *Service) Open(ctx context.Context) (domain.FeedPage, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return domain.FeedPage{}, err
	}
	if s.snapshots != nil {
		if err := s.snapshots.SaveSnapshot(ctx, snap, s.opts.SnapshotTTL); err != nil {
			return domain.FeedPage{}, fmt.Errorf("сохранение снимка: %w", err)
		}
	}
	return s.Page(ctx, snap, 0)
}

// PageByID отдаёт страницу ранее сохранённого снимка без повторной загрузки и сортировки.
func (s *Service) PageByID(ctx context.Context, snapshotID string, index int) (domain.FeedPage, error) {
	if s.snapshots == nil {
		return domain.FeedPage{}, domain.ErrSnapshotNotFound
	}
	snap, err := s.snapshots.LoadSnapshot(ctx, snapshotID)
	if err != nil {
		return domain.FeedPage{}, err
	}
	return s.Page(ctx, snap, index)
}
