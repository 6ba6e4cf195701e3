package shows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"showtrack/internal/domain"
)

// ErrInvalidID возвращается для неположительного идентификатора сериала.
var ErrInvalidID = errors.New("некорректный идентификатор сериала")

// Service ищет сериалы в каталоге.
type Service struct {
	catalog domain.Catalog
	limit   int
}

// NewService создаёт сервис поиска. limit <= 0 отключает ограничение выдачи.
func NewService(catalog domain.Catalog, limit int) *Service {
	return &Service{catalog: catalog, limit: limit}
}

// Search ищет сериалы по строке. Пустой запрос в каталог не отправляется.
func (s *Service) Search(ctx context.Context, query string) ([]domain.ShowSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	found, err := s.catalog.SearchShows(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("поиск сериалов: %w", err)
	}
	if s.limit > 0 && len(found) > s.limit {
		found = found[:s.limit]
	}
	return found, nil
}

// Get возвращает сериал по ID.
func (s *Service) Get(ctx context.Context, id int64) (domain.ShowSummary, error) {
	if id <= 0 {
		return domain.ShowSummary{}, ErrInvalidID
	}
	return s.catalog.GetShow(ctx, id)
}
