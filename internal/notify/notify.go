// Package notify доставляет уведомления пользователям после изменений журнала.
//
// Уведомления - «выстрелил и забыл»: Notify никогда не блокирует вызывающего
// и не возвращает ошибку, поэтому сбой доставки не может откатить
// или задержать запись в журнал баллов.
package notify

import (
	"context"
	"errors"
	"time"
)

// Notifier - то, что видят сервисы ядра.
type Notifier interface {
	Notify(ctx context.Context, userID, title, content string)
}

// Message - одно уведомление в очереди.
type Message struct {
	UserID    string
	Title     string
	Content   string
	CreatedAt time.Time
}

// Sender - конкретный канал доставки (Telegram, лог).
// Ошибка, обёрнутая в backoff.Permanent, не повторяется.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// ErrNoRecipient - у пользователя нет канала доставки (например, не привязан Telegram).
var ErrNoRecipient = errors.New("получатель уведомления не найден")

// Nop молча выбрасывает уведомления.
type Nop struct{}

func (Nop) Notify(context.Context, string, string, string) {}

// Text собирает текст сообщения из заголовка и тела.
func (m Message) Text() string {
	if m.Content == "" {
		return m.Title
	}
	return m.Title + "\n\n" + m.Content
}
