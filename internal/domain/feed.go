package domain

import "time"

// FeedRow — нормализованная строка активности до разрешения пользователя и сериала.
type FeedRow struct {
	Kind     ActivityKind `json:"kind"`
	RecordID string       `json:"record_id"`
	UserID   string       `json:"user_id"`
	ShowID   int64        `json:"show_id"`
	At       time.Time    `json:"at"`
	Rating   *float64     `json:"rating,omitempty"`
}

// FeedSnapshot фиксирует отсортированную ленту, по которой идёт постраничная выдача.
type FeedSnapshot struct {
	ID        string    `json:"id"`
	Rows      []FeedRow `json:"rows"`
	PageSize  int       `json:"page_size"`
	CreatedAt time.Time `json:"created_at"`
}

// Pages возвращает количество страниц снимка.
func (s FeedSnapshot) Pages() int {
	if s.PageSize <= 0 || len(s.Rows) == 0 {
		return 0
	}
	return (len(s.Rows) + s.PageSize - 1) / s.PageSize
}

// FeedPage — одна страница разрешённой ленты.
type FeedPage struct {
	SnapshotID string
	Index      int
	Entries    []ActivityEntry
	Done       bool
}

// MissingPolicy определяет, что делать со строкой, для которой не удалось получить сериал или профиль.
type MissingPolicy string

const (
	// MissingDrop — строка исключается из выдачи.
	MissingDrop MissingPolicy = "drop"
	// MissingPlaceholder — строка остаётся с подставленными значениями.
	MissingPlaceholder MissingPolicy = "placeholder"
)

// Valid сообщает, известна ли политика.
func (p MissingPolicy) Valid() bool {
	return p == MissingDrop || p == MissingPlaceholder
}
