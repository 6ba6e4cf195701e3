package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"showtrack/internal/domain"
	"showtrack/internal/infra/metrics"
)

// Rabbit рассылает сигналы об изменениях через fanout-exchange RabbitMQ.
// Каждый подписчик получает собственную эксклюзивную очередь.
type Rabbit struct {
	conn     *amqp.Connection
	exchange string
	log      zerolog.Logger
	open     func() (publishChannel, error)

	mu      sync.Mutex
	publish publishChannel
}

// publishChannel — часть *amqp.Channel, нужная для публикации.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
}

var (
	_ domain.ChangeNotifier   = (*Rabbit)(nil)
	_ domain.ChangeSubscriber = (*Rabbit)(nil)
)

// NewRabbit подключается к брокеру и объявляет exchange.
func NewRabbit(amqpURL, exchange string, log zerolog.Logger) (*Rabbit, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if exchange == "" {
		return nil, errors.New("exchange name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	r := &Rabbit{conn: conn, exchange: exchange, log: log}
	r.open = func() (publishChannel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("open channel: %w", err)
		}
		if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("declare exchange: %w", err)
		}
		return ch, nil
	}
	if r.publish, err = r.open(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return r, nil
}

// channel возвращает открытый канал публикации, переоткрывая закрытый брокером. Вызывается под mu.
func (r *Rabbit) channel() (publishChannel, error) {
	if r.publish != nil && !r.publish.IsClosed() {
		return r.publish, nil
	}
	ch, err := r.open()
	if err != nil {
		r.publish = nil
		return nil, err
	}
	r.log.Info().Str("exchange", r.exchange).Msg("notify: канал публикации rabbitmq переоткрыт")
	r.publish = ch
	return ch, nil
}

// Publish реализует domain.ChangeNotifier.
func (r *Rabbit) Publish(ctx context.Context, event domain.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   event.OccurredAt,
		Body:        payload,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	start := time.Now()
	ch, err := r.channel()
	if err == nil {
		err = ch.PublishWithContext(ctx, r.exchange, "", false, false, msg)
		if errors.Is(err, amqp.ErrClosed) {
			// канал закрыт между проверкой и публикацией: одна повторная попытка на новом
			r.publish = nil
			if ch, err = r.channel(); err == nil {
				err = ch.PublishWithContext(ctx, r.exchange, "", false, false, msg)
			}
		}
	}
	metrics.ObserveNetworkRequest("rabbitmq", "publish", r.exchange, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe реализует domain.ChangeSubscriber.
func (r *Rabbit) Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", r.exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}

	out := make(chan domain.ChangeEvent, bufferSize)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					r.log.Warn().Str("exchange", r.exchange).Msg("notify: канал rabbitmq закрыт")
					return
				}
				event, err := decode(d.Body)
				if err != nil {
					r.log.Warn().Err(err).Str("exchange", r.exchange).Msg("notify: битое сообщение")
				}
				deliver(ctx, out, event)
			}
		}
	}()
	return out, nil
}

// Close закрывает соединение с брокером.
func (r *Rabbit) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}
