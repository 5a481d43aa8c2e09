package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
)

const (
	historyPageSize = 10
	ordersShown     = 10
)

const memberHelp = `Команды:
/balance — баланс и текущий ранг
/history [страница] — история баллов
/redeem КОД — активировать карту пополнения
/rewards — каталог наград
/buy ID — заказать награду
/orders — мои заявки
/achievements — мои достижения`

const staffHelp = `

Для персонала:
/grant ID БАЛЛЫ [причина] — начислить
/take ID БАЛЛЫ [причина] — списать
/cards НОМИНАЛ КОЛ-ВО [дней] — выпустить карты
/pending — заявки на рассмотрении
/approve, /reject, /deliver ID_ЗАЯВКИ [комментарий]
/award ID ID_ДОСТИЖЕНИЯ — выдать достижение`

func (b *Bot) handleStart(_ context.Context, req request) (string, error) {
	if req.member == nil {
		return "👋 Здравствуйте!\n" + unregisteredText(req.tgUserID), nil
	}
	return fmt.Sprintf("👋 Здравствуйте, %s!\n\n%s", req.member.DisplayName(), helpFor(req.member)), nil
}

func (b *Bot) handleHelp(_ context.Context, req request) (string, error) {
	if req.member == nil {
		return unregisteredText(req.tgUserID), nil
	}
	return helpFor(req.member), nil
}

func helpFor(m *models.Member) string {
	if m.Role.IsStaff() {
		return memberHelp + staffHelp
	}
	return memberHelp
}

func (b *Bot) handleBalance(ctx context.Context, req request) (string, error) {
	balance, err := b.core.GetBalance(ctx, req.member.ID)
	if err != nil {
		return "", err
	}
	standing, err := b.core.Achievements.Progress(ctx, req.member.ID)
	if err != nil {
		return "", err
	}

	text := "💰 Ваш баланс: " + common.FormatPoints(balance)
	if standing.Tier != nil {
		text += "\n🏅 Ранг: " + standing.Tier.Name
		if standing.Level != nil {
			text += fmt.Sprintf(", уровень %d «%s»", standing.Level.Number, standing.Level.Name)
		}
	}
	return text, nil
}

func (b *Bot) handleHistory(ctx context.Context, req request) (string, error) {
	page := int64(1)
	if len(req.args) > 0 {
		n, ok := positiveInt(req.args[0])
		if !ok {
			return "", usageError("/history [страница]")
		}
		page = n
	}

	txs, err := b.core.ListTransactions(ctx, req.member.ID, models.DateRange{}, models.Page{
		Limit:  historyPageSize,
		Offset: int(page-1) * historyPageSize,
	})
	if err != nil {
		return "", err
	}
	if len(txs) == 0 {
		return "📭 Транзакций нет", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📜 История, страница %d:\n", page)
	for _, t := range txs {
		fmt.Fprintf(&sb, "\n%s  %s", common.FormatDateTime(t.CreatedAt, b.opts.Location),
			common.FormatSignedPoints(t.Points, t.IsPositive))
		if t.Description != "" {
			sb.WriteString("  " + t.Description)
		}
	}
	if len(txs) == historyPageSize {
		fmt.Fprintf(&sb, "\n\nДальше: /history %d", page+1)
	}
	return sb.String(), nil
}

func (b *Bot) handleRedeem(ctx context.Context, req request) (string, error) {
	if len(req.args) == 0 {
		return "", usageError("/redeem КОД")
	}
	// код могли ввести группами через пробел
	res, err := b.core.RedeemCard(ctx, strings.Join(req.args, ""), req.member.ID)
	if err != nil {
		return "", err
	}

	text := fmt.Sprintf("✅ Карта активирована: %s\n💰 Баланс: %s",
		common.FormatSignedPoints(res.Points, true), common.FormatPoints(res.Balance))
	if len(res.Granted) > 0 {
		text += fmt.Sprintf("\n🏆 Новых достижений: %d (/achievements)", len(res.Granted))
	}
	return text, nil
}

func (b *Bot) handleRewards(ctx context.Context, req request) (string, error) {
	items, err := b.core.Catalog.Items(ctx, req.member.Role)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "🎁 Каталог наград пока пуст", nil
	}

	var sb strings.Builder
	sb.WriteString("🎁 Каталог наград:\n")
	for _, i := range items {
		fmt.Fprintf(&sb, "\n#%d %s — %s", i.ID, i.Name, common.FormatPoints(i.Cost))
		if i.AvailableQuantity == 0 {
			sb.WriteString(" (нет в наличии)")
		} else {
			fmt.Fprintf(&sb, " (осталось %d)", i.AvailableQuantity)
		}
	}
	sb.WriteString("\n\nЗаказать: /buy ID")
	return sb.String(), nil
}

func (b *Bot) handleBuy(ctx context.Context, req request) (string, error) {
	if len(req.args) != 1 {
		return "", usageError("/buy ID_НАГРАДЫ")
	}
	itemID, ok := positiveInt(strings.TrimPrefix(req.args[0], "#"))
	if !ok {
		return "", usageError("/buy ID_НАГРАДЫ")
	}

	receipt, err := b.core.RedeemCatalogItem(ctx, req.member.ID, itemID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("🎁 Заявка на «%s» принята\nНомер: %s\nСписано: %s\n💰 Баланс: %s\nСтатус: %s",
		receipt.ItemName, receipt.RedemptionID,
		common.FormatPoints(receipt.Cost), common.FormatPoints(receipt.Balance),
		receipt.Status.Title()), nil
}

func (b *Bot) handleOrders(ctx context.Context, req request) (string, error) {
	reds, err := b.core.Catalog.Redemptions(ctx, req.member.ID)
	if err != nil {
		return "", err
	}
	if len(reds) == 0 {
		return "📭 Заявок нет", nil
	}
	return formatRedemptions("🧾 Ваши заявки:", reds, b.opts.Location), nil
}

func (b *Bot) handleAchievements(ctx context.Context, req request) (string, error) {
	held, err := b.core.Achievements.Held(ctx, req.member.ID)
	if err != nil {
		return "", err
	}
	if len(held) == 0 {
		return "🏆 Достижений пока нет. Копите баллы!", nil
	}

	var sb strings.Builder
	sb.WriteString("🏆 Ваши достижения:\n")
	for _, a := range held {
		fmt.Fprintf(&sb, "\n• %s «%s»", a.Kind.Title(), a.Name)
	}
	return sb.String(), nil
}

// formatRedemptions - список заявок. Полный ID нужен персоналу для /approve и др.
func formatRedemptions(title string, reds []*models.Redemption, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString(title + "\n")
	for i, r := range reds {
		if i == ordersShown {
			fmt.Fprintf(&sb, "\n… и ещё %d", len(reds)-ordersShown)
			break
		}
		fmt.Fprintf(&sb, "\n%s «%s» — %s, %s\n%s", common.FormatDateTime(r.CreatedAt, loc),
			r.ItemName, common.FormatPoints(r.Cost), r.Status.Title(), r.ID)
	}
	return sb.String()
}

// parseInt - целое из аргумента (для ID Telegram).
func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
