// Package filters решает, какие апдейты бот вообще обрабатывает и от чьего имени.
package filters

import (
	"context"
	"errors"
	"strings"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
)

// Members - то, что фильтру нужно от сервиса участников.
type Members interface {
	Touch(ctx context.Context, telegramID int64, username, fullName string) (*models.Member, error)
}

// ChatFilter пропускает только личные сообщения от людей и находит участника.
type ChatFilter struct {
	members Members
}

func NewChatFilter(members Members) *ChatFilter {
	return &ChatFilter{members: members}
}

// CheckAccess возвращает ok=false, если апдейт надо молча пропустить
// (группы, каналы, сервисные сообщения, боты).
// member == nil при ok=true означает, что пользователь не зарегистрирован в школе.
func (f *ChatFilter) CheckAccess(ctx context.Context, message *telego.Message) (member *models.Member, ok bool, err error) {
	if message == nil || message.From == nil || message.From.IsBot {
		return nil, false, nil
	}

	logger := log.WithFields(log.Fields{
		"component":  "ChatFilter",
		"chat_id":    message.Chat.ID,
		"chat_type":  message.Chat.Type,
		"tg_user_id": message.From.ID,
	})

	if message.Chat.Type != telego.ChatTypePrivate {
		logger.Debug("deny: not private")
		return nil, false, nil
	}

	fullName := strings.TrimSpace(message.From.FirstName + " " + message.From.LastName)
	member, err = f.members.Touch(ctx, message.From.ID, message.From.Username, fullName)
	if errors.Is(err, common.ErrUserNotFound) {
		logger.Debug("allow: unregistered")
		return nil, true, nil
	}
	if err != nil {
		logger.WithError(err).Error("member lookup failed")
		return nil, true, err
	}
	return member, true, nil
}
