package bot

import (
	"context"
	"errors"
	"strconv"
	"unicode"

	log "github.com/sirupsen/logrus"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
)

// access - кому доступна команда.
type access int

const (
	accessPublic  access = iota // в том числе незарегистрированным
	accessMember                // любой зарегистрированный участник
	accessStaff                 // учитель или администратор
	accessAdmin                 // только администратор
)

// request - разобранная команда от пользователя.
type request struct {
	chatID   int64
	tgUserID int64
	member   *models.Member // nil - не зарегистрирован
	command  string
	args     []string
}

type command struct {
	access access
	usage  string
	run    func(ctx context.Context, req request) (string, error)
}

// usageError - неверные аргументы команды.
type usageError string

func (e usageError) Error() string { return "использование: " + string(e) }

func (b *Bot) registerCommands() map[string]command {
	return map[string]command{
		"start": {access: accessPublic, run: b.handleStart},
		"help":  {access: accessPublic, run: b.handleHelp},

		"balance":      {access: accessMember, run: b.handleBalance},
		"history":      {access: accessMember, usage: "/history [страница]", run: b.handleHistory},
		"redeem":       {access: accessMember, usage: "/redeem КОД", run: b.handleRedeem},
		"rewards":      {access: accessMember, run: b.handleRewards},
		"buy":          {access: accessMember, usage: "/buy ID_НАГРАДЫ", run: b.handleBuy},
		"orders":       {access: accessMember, run: b.handleOrders},
		"achievements": {access: accessMember, run: b.handleAchievements},

		"grant":   {access: accessStaff, usage: "/grant ID_УЧЕНИКА БАЛЛЫ [причина]", run: b.handleGrant},
		"take":    {access: accessStaff, usage: "/take ID_УЧЕНИКА БАЛЛЫ [причина]", run: b.handleTake},
		"cards":   {access: accessStaff, usage: "/cards НОМИНАЛ КОЛИЧЕСТВО [дней_действия]", run: b.handleCards},
		"pending": {access: accessStaff, run: b.handlePending},
		"approve": {access: accessStaff, usage: "/approve ID_ЗАЯВКИ [комментарий]", run: b.statusHandler(models.RedemptionApproved)},
		"reject":  {access: accessStaff, usage: "/reject ID_ЗАЯВКИ [комментарий]", run: b.statusHandler(models.RedemptionRejected)},
		"deliver": {access: accessStaff, usage: "/deliver ID_ЗАЯВКИ [комментарий]", run: b.statusHandler(models.RedemptionDelivered)},
		"award":   {access: accessStaff, usage: "/award ID_УЧЕНИКА ID_ДОСТИЖЕНИЯ", run: b.handleAward},

		"register": {access: accessAdmin, usage: "/register ID РОЛЬ [TELEGRAM_ID] [имя]", run: b.handleRegister},
	}
}

// routeCommand проверяет права и вызывает обработчик. Возвращает текст ответа.
func (b *Bot) routeCommand(ctx context.Context, req request) string {
	cmd, ok := b.commands[req.command]
	if !ok {
		return "Неизвестная команда. Список команд: /help"
	}

	switch {
	case cmd.access == accessPublic:
	case req.member == nil:
		return unregisteredText(req.tgUserID)
	case cmd.access == accessStaff && !req.member.Role.IsStaff():
		return "⛔ Команда доступна только учителям и администраторам"
	case cmd.access == accessAdmin && req.member.Role != models.RoleAdmin:
		return "⛔ Команда доступна только администраторам"
	}

	text, err := cmd.run(ctx, req)
	if err != nil {
		var ue usageError
		if errors.As(err, &ue) && cmd.usage != "" {
			return "ℹ️ Использование: " + cmd.usage
		}
		logger := log.WithError(err).WithField("command", req.command)
		if req.member != nil {
			logger = logger.WithField("user_id", req.member.ID)
		}
		if common.KindOf(err) == common.KindUnknown || common.Retriable(err) {
			logger.Error("Ошибка выполнения команды")
		} else {
			logger.Debug("Команда отклонена")
		}
		return userMessage(err)
	}
	return text
}

// userMessage переводит ошибку ядра в ответ пользователю.
func userMessage(err error) string {
	var ue usageError
	if errors.As(err, &ue) {
		return "ℹ️ Использование: " + string(ue)
	}
	if common.Retriable(err) {
		return "⚠️ Сервис временно недоступен, попробуйте позже"
	}
	if errors.Is(err, common.ErrInvalidInput) {
		return "❌ " + common.ErrInvalidInput.Msg
	}
	var e *common.Error
	if errors.As(err, &e) {
		return "❌ " + capitalize(e.Msg)
	}
	return "❌ Внутренняя ошибка, попробуйте позже"
}

func unregisteredText(tgUserID int64) string {
	return "Вы ещё не зарегистрированы в школьной системе баллов.\n" +
		"Ваш Telegram ID: " + strconv.FormatInt(tgUserID, 10) + "\n" +
		"Сообщите его классному руководителю или администратору."
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// --- разбор аргументов ---

func positiveInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
