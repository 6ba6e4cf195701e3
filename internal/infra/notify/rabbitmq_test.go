package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"showtrack/internal/domain"
)

type fakeChannel struct {
	closed    bool
	published int
}

func (c *fakeChannel) PublishWithContext(context.Context, string, string, bool, bool, amqp.Publishing) error {
	if c.closed {
		return amqp.ErrClosed
	}
	c.published++
	return nil
}

func (c *fakeChannel) IsClosed() bool { return c.closed }

func newTestRabbit(channels ...*fakeChannel) (*Rabbit, *int) {
	opened := 0
	r := &Rabbit{exchange: "showtrack.changes", log: zerolog.Nop()}
	r.open = func() (publishChannel, error) {
		if opened >= len(channels) {
			return nil, errors.New("broker unavailable")
		}
		ch := channels[opened]
		opened++
		return ch, nil
	}
	r.publish, _ = r.open()
	return r, &opened
}

var testEvent = domain.ChangeEvent{Table: domain.ChangeWatched, Op: domain.OpUpsert, OccurredAt: time.Now()}

func TestRabbitReopensClosedChannel(t *testing.T) {
	first, second := &fakeChannel{}, &fakeChannel{}
	r, opened := newTestRabbit(first, second)

	if err := r.Publish(context.Background(), testEvent); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	first.closed = true
	for i := 0; i < 2; i++ {
		if err := r.Publish(context.Background(), testEvent); err != nil {
			t.Fatalf("публикация %d после закрытия канала: %v", i, err)
		}
	}
	if *opened != 2 || first.published != 1 || second.published != 2 {
		t.Fatalf("ожидали переоткрытие канала: opened=%d first=%d second=%d", *opened, first.published, second.published)
	}
}

// fakeRacyChannel сообщает, что открыт, но публикация падает с ErrClosed.
type fakeRacyChannel struct{ fakeChannel }

func (c *fakeRacyChannel) IsClosed() bool { return false }

func TestRabbitRetriesOnceAfterErrClosed(t *testing.T) {
	racy := &fakeRacyChannel{fakeChannel{closed: true}}
	next := &fakeChannel{}
	opened := 0
	r := &Rabbit{exchange: "showtrack.changes", log: zerolog.Nop(), publish: racy}
	r.open = func() (publishChannel, error) {
		opened++
		return next, nil
	}

	if err := r.Publish(context.Background(), testEvent); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if opened != 1 || next.published != 1 {
		t.Fatalf("ожидали одну повторную попытку: opened=%d published=%d", opened, next.published)
	}
}

func TestRabbitReportsUnavailableBroker(t *testing.T) {
	only := &fakeChannel{}
	r, _ := newTestRabbit(only)
	only.closed = true

	if err := r.Publish(context.Background(), testEvent); err == nil {
		t.Fatal("ожидали ошибку, когда канал не переоткрыть")
	}
	only.closed = false
	r.publish = only
	if err := r.Publish(context.Background(), testEvent); err != nil {
		t.Fatalf("после восстановления публикация должна пройти: %v", err)
	}
}
