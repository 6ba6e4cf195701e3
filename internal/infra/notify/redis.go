package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"showtrack/internal/domain"
	"showtrack/internal/infra/metrics"
)

// Redis рассылает сигналы об изменениях через Redis pub/sub.
type Redis struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

var (
	_ domain.ChangeNotifier   = (*Redis)(nil)
	_ domain.ChangeSubscriber = (*Redis)(nil)
)

// NewRedis создаёт канал уведомлений с указанным именем.
func NewRedis(client *redis.Client, channel string, log zerolog.Logger) *Redis {
	return &Redis{client: client, channel: channel, log: log}
}

// Publish реализует domain.ChangeNotifier.
func (r *Redis) Publish(ctx context.Context, event domain.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = r.client.Publish(ctx, r.channel, payload).Err()
	metrics.ObserveNetworkRequest("redis", "publish", r.channel, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe реализует domain.ChangeSubscriber.
func (r *Redis) Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, error) {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	out := make(chan domain.ChangeEvent, bufferSize)
	go func() {
		defer close(out)
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				event, err := decode([]byte(msg.Payload))
				if err != nil {
					r.log.Warn().Err(err).Str("channel", r.channel).Msg("notify: битое сообщение")
				}
				deliver(ctx, out, event)
			}
		}
	}()
	return out, nil
}
