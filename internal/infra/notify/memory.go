package notify

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"showtrack/internal/domain"
)

const bufferSize = 16

// Broadcaster рассылает сигналы подписчикам внутри процесса.
// Медленный подписчик теряет сигналы, а не блокирует публикацию.
type Broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan domain.ChangeEvent
}

var (
	_ domain.ChangeNotifier   = (*Broadcaster)(nil)
	_ domain.ChangeSubscriber = (*Broadcaster)(nil)
)

// NewBroadcaster создаёт рассыльщик без подписчиков.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan domain.ChangeEvent)}
}

// Publish реализует domain.ChangeNotifier.
func (b *Broadcaster) Publish(_ context.Context, event domain.ChangeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe реализует domain.ChangeSubscriber.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, error) {
	ch := make(chan domain.ChangeEvent, bufferSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

// Subscribers возвращает число активных подписчиков.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// decode разбирает сообщение. Сигнал не несёт полезной нагрузки, поэтому битое сообщение
// всё равно превращается в событие с текущим временем.
func decode(raw []byte) (domain.ChangeEvent, error) {
	var event domain.ChangeEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return domain.ChangeEvent{OccurredAt: time.Now().UTC()}, err
	}
	return event, nil
}

func deliver(ctx context.Context, out chan<- domain.ChangeEvent, event domain.ChangeEvent) {
	select {
	case out <- event:
	case <-ctx.Done():
	default:
	}
}
