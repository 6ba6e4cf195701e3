package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"showtrack/internal/domain"
	"showtrack/internal/infra/metrics"
)

var (
	ErrInvalidShow = errors.New("некорректный идентификатор сериала")
	ErrInvalidUser = errors.New("не указан пользователь")
	ErrTextTooLong = errors.New("слишком длинный текст")
)

const (
	maxCommentLen = 1000
	maxNameLen    = 64
)

// Service записывает активность пользователей и сообщает об изменениях.
type Service struct {
	profiles domain.ProfileStore
	activity domain.ActivityStore
	notifier domain.ChangeNotifier
	log      zerolog.Logger
	now      func() time.Time
}

// NewService создаёт сервис записи активности. notifier может быть nil.
func NewService(profiles domain.ProfileStore, activity domain.ActivityStore, notifier domain.ChangeNotifier, log zerolog.Logger) *Service {
	return &Service{
		profiles: profiles,
		activity: activity,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// MarkWatched отмечает сериал просмотренным. Повторная отметка обновляет оценку и комментарий.
func (s *Service) MarkWatched(ctx context.Context, userID string, showID int64, rating *float64, comment string) (domain.WatchedRecord, error) {
	if err := checkIDs(userID, showID); err != nil {
		return domain.WatchedRecord{}, err
	}
	rating, err := domain.ValidateRating(rating)
	if err != nil {
		return domain.WatchedRecord{}, err
	}
	comment, err = cleanText(comment, maxCommentLen)
	if err != nil {
		return domain.WatchedRecord{}, err
	}
	if _, err := s.EnsureProfile(ctx, domain.Profile{ID: userID}); err != nil {
		return domain.WatchedRecord{}, err
	}

	now := s.now()
	rec, err := s.activity.UpsertWatched(ctx, domain.WatchedRecord{
		UserID:    userID,
		ShowID:    showID,
		Rating:    rating,
		Comment:   comment,
		WatchedAt: &now,
		CreatedAt: now,
	})
	if err != nil {
		return domain.WatchedRecord{}, fmt.Errorf("сохранение просмотра: %w", err)
	}
	s.publish(ctx, domain.ChangeWatched, domain.OpUpsert)
	return rec, nil
}

// AddToWatchlist добавляет сериал в список «хочу посмотреть». Повторное добавление обновляет заметку.
func (s *Service) AddToWatchlist(ctx context.Context, userID string, showID int64, note string) (domain.WatchlistRecord, error) {
	if err := checkIDs(userID, showID); err != nil {
		return domain.WatchlistRecord{}, err
	}
	note, err := cleanText(note, maxCommentLen)
	if err != nil {
		return domain.WatchlistRecord{}, err
	}
	if _, err := s.EnsureProfile(ctx, domain.Profile{ID: userID}); err != nil {
		return domain.WatchlistRecord{}, err
	}

	rec, err := s.activity.UpsertWatchlist(ctx, domain.WatchlistRecord{
		UserID:    userID,
		ShowID:    showID,
		Note:      note,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.WatchlistRecord{}, fmt.Errorf("сохранение списка желаемого: %w", err)
	}
	s.publish(ctx, domain.ChangeWatchlist, domain.OpUpsert)
	return rec, nil
}

// RemoveWatched удаляет отметку о просмотре пользователя.
func (s *Service) RemoveWatched(ctx context.Context, userID, id string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUser
	}
	if err := s.activity.DeleteWatched(ctx, userID, id); err != nil {
		return fmt.Errorf("удаление просмотра: %w", err)
	}
	s.publish(ctx, domain.ChangeWatched, domain.OpDelete)
	return nil
}

// RemoveFromWatchlist удаляет запись из списка «хочу посмотреть».
func (s *Service) RemoveFromWatchlist(ctx context.Context, userID, id string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUser
	}
	if err := s.activity.DeleteWatchlist(ctx, userID, id); err != nil {
		return fmt.Errorf("удаление из списка желаемого: %w", err)
	}
	s.publish(ctx, domain.ChangeWatchlist, domain.OpDelete)
	return nil
}

// UpdateProfile сохраняет имя и аватар пользователя.
func (s *Service) UpdateProfile(ctx context.Context, profile domain.Profile) (domain.Profile, error) {
	if strings.TrimSpace(profile.ID) == "" {
		return domain.Profile{}, ErrInvalidUser
	}
	name, err := cleanText(profile.DisplayName, maxNameLen)
	if err != nil {
		return domain.Profile{}, err
	}
	profile.DisplayName = name
	profile.AvatarURL = strings.TrimSpace(profile.AvatarURL)

	saved, err := s.profiles.UpsertProfile(ctx, profile)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("сохранение профиля: %w", err)
	}
	s.publish(ctx, domain.ChangeProfiles, domain.OpUpsert)
	return saved, nil
}

// EnsureProfile возвращает профиль пользователя, создавая его при первом обращении.
// Существующий профиль без имени дополняется именем из seed.
func (s *Service) EnsureProfile(ctx context.Context, seed domain.Profile) (domain.Profile, error) {
	if strings.TrimSpace(seed.ID) == "" {
		return domain.Profile{}, ErrInvalidUser
	}
	existing, err := s.profiles.GetProfile(ctx, seed.ID)
	switch {
	case err == nil:
		if existing.DisplayName != "" || seed.DisplayName == "" {
			return existing, nil
		}
		existing.DisplayName = seed.DisplayName
		if existing.AvatarURL == "" {
			existing.AvatarURL = seed.AvatarURL
		}
		return s.UpdateProfile(ctx, existing)
	case errors.Is(err, domain.ErrNotFound):
		s.log.Info().Str("user", seed.ID).Msg("activity: создаём профиль")
		return s.UpdateProfile(ctx, seed)
	default:
		return domain.Profile{}, fmt.Errorf("получение профиля: %w", err)
	}
}

// Overview содержит профиль пользователя и его записи.
type Overview struct {
	Profile   domain.Profile
	Watched   []domain.WatchedRecord
	Watchlist []domain.WatchlistRecord
}

// Overview возвращает профиль пользователя вместе с его просмотрами и списком желаемого.
func (s *Service) Overview(ctx context.Context, userID string) (Overview, error) {
	profile, err := s.EnsureProfile(ctx, domain.Profile{ID: userID})
	if err != nil {
		return Overview{}, err
	}
	watched, err := s.activity.ListWatched(ctx, userID, 0)
	if err != nil {
		return Overview{}, fmt.Errorf("просмотры пользователя: %w", err)
	}
	watchlist, err := s.activity.ListWatchlist(ctx, userID, 0)
	if err != nil {
		return Overview{}, fmt.Errorf("список желаемого пользователя: %w", err)
	}
	return Overview{Profile: profile, Watched: watched, Watchlist: watchlist}, nil
}

func (s *Service) publish(ctx context.Context, table domain.ChangeTable, op domain.ChangeOp) {
	if s.notifier == nil {
		return
	}
	event := domain.ChangeEvent{Table: table, Op: op, OccurredAt: s.now()}
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.log.Error().Err(err).Str("table", string(table)).Msg("activity: не удалось опубликовать изменение")
		return
	}
	metrics.ObserveChange("published", string(table))
}

func checkIDs(userID string, showID int64) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUser
	}
	if showID <= 0 {
		return ErrInvalidShow
	}
	return nil
}

func cleanText(raw string, limit int) (string, error) {
	text := strings.TrimSpace(raw)
	if utf8.RuneCountInString(text) > limit {
		return "", fmt.Errorf("%w: больше %d символов", ErrTextTooLong, limit)
	}
	return text, nil
}
