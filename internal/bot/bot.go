// Package bot - Telegram-интерфейс ядра баллов.
// bot.go принимает апдейты long polling-ом, пропускает их через фильтр
// и middleware и передаёт команды обработчикам из commands.go.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/bot/filters"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/bot/middleware"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/core"
)

// Sender отправляет сообщения. *telego.Bot удовлетворяет этому интерфейсу.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Options - настройки бота из конфигурации.
type Options struct {
	MaxInflight          int
	UpdateTimeoutSeconds int
	RateLimitRequests    int
	RateLimitWindow      time.Duration
	Location             *time.Location
}

// Bot - Telegram-бот школьной системы баллов.
type Bot struct {
	api    *telego.Bot
	sender Sender
	core   *core.Core
	opts   Options

	chatFilter  *filters.ChatFilter
	rateLimiter *middleware.RateLimiter
	parser      *CommandParser
	commands    map[string]command

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
	wg       sync.WaitGroup
}

// New создаёт бота поверх уже авторизованного telego.Bot.
func New(api *telego.Bot, c *core.Core, opts Options) *Bot {
	b := newBot(api, c, opts)
	b.api = api
	return b
}

func newBot(sender Sender, c *core.Core, opts Options) *Bot {
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 64
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	b := &Bot{
		sender:      sender,
		core:        c,
		opts:        opts,
		chatFilter:  filters.NewChatFilter(c.Members),
		rateLimiter: middleware.NewRateLimiter(opts.RateLimitRequests, opts.RateLimitWindow),
		parser:      NewCommandParser(),
		inflight:    make(chan struct{}, opts.MaxInflight),
	}
	b.commands = b.registerCommands()
	return b
}

// Start принимает апдейты, пока не отменён ctx, и ждёт завершения обработчиков.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        b.opts.UpdateTimeoutSeconds,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return fmt.Errorf("не удалось запустить long polling: %w", err)
	}

	log.WithFields(log.Fields{
		"max_inflight": b.opts.MaxInflight,
		"timeout_sec":  b.opts.UpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	// канал закрывается сам, когда ctx отменён
	for update := range updates {
		b.inflight <- struct{}{}
		b.wg.Add(1)
		go func(upd telego.Update) {
			defer func() {
				<-b.inflight
				b.wg.Done()
			}()
			b.handleUpdate(ctx, upd)
		}(update)
	}

	b.wg.Wait()
	b.rateLimiter.Close()
	log.Info("Бот остановлен")
	return nil
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	defer middleware.Recover(log.Fields{"update_id": update.UpdateID})

	message := update.Message
	if message == nil || message.Text == "" {
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	middleware.LogMessage(message, cmd)

	member, ok, err := b.chatFilter.CheckAccess(ctx, message)
	if !ok {
		return
	}
	if !isCommand {
		b.sendMessage(ctx, message.Chat.ID, "Я понимаю только команды. Список: /help")
		return
	}
	if !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("tg_user_id", message.From.ID).Debug("rate limited")
		return
	}
	if err != nil {
		b.sendMessage(ctx, message.Chat.ID, userMessage(err))
		return
	}

	reply := b.routeCommand(ctx, request{
		chatID:   message.Chat.ID,
		tgUserID: message.From.ID,
		member:   member,
		command:  cmd,
		args:     args,
	})
	b.sendMessage(ctx, message.Chat.ID, reply)
}

// sendMessage - утилита для отправки сообщений.
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) {
	if text == "" {
		return
	}
	if _, err := b.sender.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
