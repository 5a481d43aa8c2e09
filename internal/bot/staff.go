package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/core"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/cards"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/members"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
)

func (b *Bot) handleGrant(ctx context.Context, req request) (string, error) {
	return b.grant(ctx, req, true)
}

func (b *Bot) handleTake(ctx context.Context, req request) (string, error) {
	return b.grant(ctx, req, false)
}

func (b *Bot) grant(ctx context.Context, req request, positive bool) (string, error) {
	if len(req.args) < 2 {
		return "", usageError("/" + req.command + " ID_УЧЕНИКА БАЛЛЫ [причина]")
	}
	amount, ok := positiveInt(req.args[1])
	if !ok {
		return "", common.ErrInvalidAmount
	}
	userID := req.args[0]

	txID, err := b.core.GrantPoints(ctx, core.GrantRequest{
		UserID:      userID,
		Amount:      amount,
		IsPositive:  positive,
		Category:    models.CategoryAdjustment,
		Description: strings.Join(req.args[2:], " "),
		ActorID:     req.member.ID,
	})
	if err != nil {
		return "", err
	}
	balance, err := b.core.GetBalance(ctx, userID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Транзакция #%d: %s для %s\n💰 Баланс ученика: %s",
		txID, common.FormatSignedPoints(amount, positive), userID, common.FormatPoints(balance)), nil
}

func (b *Bot) handleCards(ctx context.Context, req request) (string, error) {
	if len(req.args) < 2 || len(req.args) > 3 {
		return "", usageError("/cards НОМИНАЛ КОЛИЧЕСТВО [дней_действия]")
	}
	points, ok1 := positiveInt(req.args[0])
	count, ok2 := positiveInt(req.args[1])
	if !ok1 || !ok2 {
		return "", usageError("/cards НОМИНАЛ КОЛИЧЕСТВО [дней_действия]")
	}

	issue := cards.IssueRequest{
		Points:  points,
		Count:   int(count),
		ActorID: req.member.ID,
	}
	if len(req.args) == 3 {
		days, ok := positiveInt(req.args[2])
		if !ok || days > cards.MaxValidityDays {
			return "", usageError("/cards НОМИНАЛ КОЛИЧЕСТВО [дней_действия]")
		}
		until := b.core.Ledger.Now().Add(time.Duration(days) * 24 * time.Hour)
		issue.ValidUntil = &until
	}

	batch, err := b.core.Cards.Issue(ctx, issue)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🎫 Выпущено карт: %d по %s", len(batch), common.FormatPoints(points))
	if issue.ValidUntil != nil {
		sb.WriteString("\nДействуют до " + common.FormatDateTime(*issue.ValidUntil, b.opts.Location))
	}
	sb.WriteString("\n")
	for _, c := range batch {
		sb.WriteString("\n" + c.Code)
	}
	return sb.String(), nil
}

func (b *Bot) handlePending(ctx context.Context, _ request) (string, error) {
	all, err := b.core.Catalog.Redemptions(ctx, "")
	if err != nil {
		return "", err
	}
	var open []*models.Redemption
	for _, r := range all {
		if r.Status == models.RedemptionPending || r.Status == models.RedemptionApproved {
			open = append(open, r)
		}
	}
	if len(open) == 0 {
		return "✅ Открытых заявок нет", nil
	}
	return formatRedemptions("🧾 Открытые заявки:", open, b.opts.Location), nil
}

// statusHandler - /approve, /reject и /deliver отличаются только целевым статусом.
func (b *Bot) statusHandler(status models.RedemptionStatus) func(context.Context, request) (string, error) {
	return func(ctx context.Context, req request) (string, error) {
		if len(req.args) == 0 {
			return "", usageError("/" + req.command + " ID_ЗАЯВКИ [комментарий]")
		}
		var notes *string
		if len(req.args) > 1 {
			n := strings.Join(req.args[1:], " ")
			notes = &n
		}
		if err := b.core.SetRedemptionStatus(ctx, req.args[0], status, notes); err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ Заявка %s: %s", req.args[0], status.Title()), nil
	}
}

func (b *Bot) handleAward(ctx context.Context, req request) (string, error) {
	if len(req.args) != 2 {
		return "", usageError("/award ID_УЧЕНИКА ID_ДОСТИЖЕНИЯ")
	}
	achID, ok := positiveInt(req.args[1])
	if !ok {
		return "", usageError("/award ID_УЧЕНИКА ID_ДОСТИЖЕНИЯ")
	}
	if _, err := b.core.Members.Get(ctx, req.args[0]); err != nil {
		return "", err
	}

	granted, err := b.core.Achievements.Award(ctx, req.args[0], achID, req.member.ID)
	if err != nil {
		return "", err
	}
	if !granted {
		return "ℹ️ У ученика уже есть это достижение", nil
	}
	return "🏆 Достижение выдано", nil
}

func (b *Bot) handleRegister(ctx context.Context, req request) (string, error) {
	if len(req.args) < 2 {
		return "", usageError("/register ID РОЛЬ [TELEGRAM_ID] [имя]")
	}
	reg := members.RegisterRequest{
		ID:   req.args[0],
		Role: models.Role(strings.ToLower(req.args[1])),
	}
	rest := req.args[2:]
	if len(rest) > 0 {
		if tgID, ok := parseInt(rest[0]); ok {
			reg.TelegramID = &tgID
			rest = rest[1:]
		}
	}
	reg.FullName = strings.Join(rest, " ")

	m, err := b.core.Members.Register(ctx, reg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Участник %s зарегистрирован с ролью %s", m.DisplayName(), m.Role), nil
}
