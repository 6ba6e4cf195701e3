package domain

import (
	"context"
	"time"
)

// ChangeTable указывает, какая таблица изменилась.
type ChangeTable string

const (
	ChangeWatched   ChangeTable = "watched_shows"
	ChangeWatchlist ChangeTable = "watchlist"
	ChangeProfiles  ChangeTable = "profiles"
)

// ChangeOp описывает тип изменения.
type ChangeOp string

const (
	OpUpsert ChangeOp = "upsert"
	OpDelete ChangeOp = "delete"
)

// ChangeEvent — сигнал «данные изменились». Потребители не разбирают его содержимое,
// а просто перезапрашивают ленту.
type ChangeEvent struct {
	Table      ChangeTable `json:"table"`
	Op         ChangeOp    `json:"op"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// ChangeNotifier публикует сигналы об изменениях.
type ChangeNotifier interface {
	Publish(ctx context.Context, event ChangeEvent) error
}

// ChangeSubscriber подписывает на сигналы об изменениях.
// Канал закрывается после отмены ctx.
type ChangeSubscriber interface {
	Subscribe(ctx context.Context) (<-chan ChangeEvent, error)
}
