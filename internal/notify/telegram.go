package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
)

// Resolver находит участника по внутреннему ID.
type Resolver interface {
	Get(ctx context.Context, id string) (*models.Member, error)
}

// Telegram доставляет уведомления личным сообщением в Telegram.
type Telegram struct {
	bot     *telego.Bot
	members Resolver
}

func NewTelegram(bot *telego.Bot, members Resolver) *Telegram {
	return &Telegram{bot: bot, members: members}
}

func (t *Telegram) Send(ctx context.Context, m Message) error {
	member, err := t.members.Get(ctx, m.UserID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrNoRecipient, m.UserID))
		}
		return err
	}
	if member.TelegramID == nil {
		return backoff.Permanent(fmt.Errorf("%w: %s без Telegram", ErrNoRecipient, m.UserID))
	}

	if _, err := t.bot.SendMessage(ctx, tu.Message(tu.ID(*member.TelegramID), m.Text())); err != nil {
		return fmt.Errorf("ошибка отправки в Telegram: %w", err)
	}
	return nil
}
