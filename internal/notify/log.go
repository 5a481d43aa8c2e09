package notify

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Log пишет уведомления в лог. Используется, когда бот не настроен.
type Log struct{}

func (Log) Send(_ context.Context, m Message) error {
	log.WithFields(log.Fields{
		"user_id": m.UserID,
		"title":   m.Title,
	}).Info(m.Content)
	return nil
}
