package notify

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// Async - очередь уведомлений с фоновой доставкой и повторами.
// Если очередь переполнена, уведомление отбрасывается с предупреждением в лог.
type Async struct {
	sender     Sender
	queue      chan Message
	maxRetries int
	newBackOff func() backoff.BackOff

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsync создаёт диспетчер. Запуск - Start, остановка - Close.
func NewAsync(sender Sender, queueSize, maxRetries int) *Async {
	return &Async{
		sender:     sender,
		queue:      make(chan Message, queueSize),
		maxRetries: maxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}
}

// Notify ставит уведомление в очередь и сразу возвращает управление.
func (a *Async) Notify(_ context.Context, userID, title, content string) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		log.WithField("user_id", userID).Warn("Уведомление после остановки диспетчера отброшено")
		return
	}

	m := Message{UserID: userID, Title: title, Content: content, CreatedAt: time.Now()}
	select {
	case a.queue <- m:
	default:
		log.WithFields(log.Fields{
			"user_id": userID,
			"title":   title,
		}).Warn("Очередь уведомлений переполнена, уведомление отброшено")
	}
}

// Start запускает воркер доставки. ctx ограничивает повторы при остановке.
func (a *Async) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for m := range a.queue {
			a.deliver(ctx, m)
		}
	}()
	log.Info("Диспетчер уведомлений запущен")
}

// Close перестаёт принимать уведомления и дожидается доставки очереди.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
	log.Info("Диспетчер уведомлений остановлен")
}

func (a *Async) deliver(ctx context.Context, m Message) {
	operation := func() error {
		return a.sender.Send(ctx, m)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(a.newBackOff(), uint64(a.maxRetries)), ctx)
	err := backoff.RetryNotify(operation, b, func(err error, d time.Duration) {
		log.WithError(err).WithFields(log.Fields{
			"user_id": m.UserID,
			"backoff": d,
		}).Warn("Не удалось доставить уведомление, повторяем")
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"user_id": m.UserID,
			"title":   m.Title,
		}).Error("Уведомление не доставлено")
	}
}
