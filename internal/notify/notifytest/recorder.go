// Package notifytest - запоминающий Notifier для тестов сервисов.
package notifytest

import (
	"context"
	"sync"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/notify"
)

// Recorder синхронно запоминает все уведомления.
type Recorder struct {
	mu       sync.Mutex
	messages []notify.Message
}

var _ notify.Notifier = (*Recorder)(nil)

func (r *Recorder) Notify(_ context.Context, userID, title, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, notify.Message{UserID: userID, Title: title, Content: content})
}

// Messages возвращает копию всех уведомлений.
func (r *Recorder) Messages() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Message(nil), r.messages...)
}

// For возвращает уведомления одного пользователя.
func (r *Recorder) For(userID string) []notify.Message {
	var out []notify.Message
	for _, m := range r.Messages() {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out
}
