package bot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/core"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/db/memory"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/cards"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/catalog"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/members"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/notify"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*telego.SendMessageParams
}

func (f *fakeSender) SendMessage(_ context.Context, p *telego.SendMessageParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, p)
	return &telego.Message{}, nil
}

func (f *fakeSender) last(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1].Text
}

const (
	teacherTG = int64(1001)
	studentTG = int64(2002)
)

func newTestBot(t *testing.T) (*Bot, *fakeSender, *core.Core) {
	t.Helper()
	ctx := context.Background()
	c := core.New(memory.New(), notify.Nop{}, core.Options{})

	for _, reg := range []members.RegisterRequest{
		{ID: "t1", TelegramID: ptr(teacherTG), FullName: "Учитель", Role: models.RoleTeacher},
		{ID: "s1", TelegramID: ptr(studentTG), FullName: "Ученик", Role: models.RoleStudent},
	} {
		_, err := c.Members.Register(ctx, reg)
		require.NoError(t, err)
	}

	sender := &fakeSender{}
	b := newBot(sender, c, Options{RateLimitRequests: 100, RateLimitWindow: time.Minute})
	t.Cleanup(b.rateLimiter.Close)
	return b, sender, c
}

func ptr[T any](v T) *T { return &v }

func send(b *Bot, tgID int64, text string) {
	b.handleUpdate(context.Background(), telego.Update{
		UpdateID: 1,
		Message: &telego.Message{
			Chat: telego.Chat{ID: tgID, Type: telego.ChatTypePrivate},
			From: &telego.User{ID: tgID},
			Text: text,
		},
	})
}

func TestBot_UnregisteredUserSeesTelegramID(t *testing.T) {
	b, sender, _ := newTestBot(t)

	send(b, 9999, "/balance")
	assert.Contains(t, sender.last(t), "9999")

	send(b, 9999, "/start")
	assert.Contains(t, sender.last(t), "не зарегистрированы")
}

func TestBot_GrantAndBalance(t *testing.T) {
	b, sender, c := newTestBot(t)

	send(b, teacherTG, "/grant s1 50 за олимпиаду")
	assert.Contains(t, sender.last(t), "Транзакция")
	assert.Contains(t, sender.last(t), "+50 баллов")

	send(b, studentTG, "/balance")
	assert.Contains(t, sender.last(t), "50 баллов")

	send(b, studentTG, "/history")
	assert.Contains(t, sender.last(t), "за олимпиаду")

	balance, err := c.GetBalance(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)
}

func TestBot_StaffCommandsForbiddenForStudents(t *testing.T) {
	b, sender, c := newTestBot(t)

	send(b, studentTG, "/grant s1 1000")
	assert.Contains(t, sender.last(t), "только учителям")

	send(b, teacherTG, "/register x1 student")
	assert.Contains(t, sender.last(t), "только администраторам")

	balance, err := c.GetBalance(context.Background(), "s1")
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestBot_BuyFlow(t *testing.T) {
	b, sender, c := newTestBot(t)
	ctx := context.Background()

	item, err := c.Catalog.AddItem(ctx, catalog.NewItem{Name: "Тетрадь", Cost: 30, Quantity: 1})
	require.NoError(t, err)

	send(b, studentTG, "/buy 1")
	assert.Contains(t, sender.last(t), "Недостаточно баллов")

	send(b, teacherTG, "/grant s1 40")
	send(b, studentTG, "/rewards")
	assert.Contains(t, sender.last(t), "Тетрадь")

	send(b, studentTG, "/buy abc")
	assert.Contains(t, sender.last(t), "Использование")

	send(b, studentTG, "/buy 1")
	assert.Contains(t, sender.last(t), "Заявка на «Тетрадь» принята")

	reds, err := c.Catalog.Redemptions(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, reds, 1)
	assert.Equal(t, item.ID, reds[0].ItemID)

	send(b, teacherTG, "/approve "+reds[0].ID)
	assert.Contains(t, sender.last(t), "одобрена")

	send(b, teacherTG, "/approve "+reds[0].ID)
	assert.Contains(t, sender.last(t), "Недопустимая смена статуса")
}

func TestBot_IssueAndRedeemCard(t *testing.T) {
	b, sender, c := newTestBot(t)
	ctx := context.Background()

	send(b, teacherTG, "/cards 25 1 7")
	assert.Contains(t, sender.last(t), "Выпущено карт: 1")

	text := sender.last(t)
	code := text[len(text)-12:]
	card, err := c.Cards.Get(ctx, code)
	require.NoError(t, err)
	require.NotNil(t, card.ValidUntil)

	send(b, studentTG, "/redeem "+code)
	assert.Contains(t, sender.last(t), "Карта активирована")

	send(b, studentTG, "/redeem "+code)
	assert.Contains(t, sender.last(t), "Карта уже использована")
}

func TestBot_CardValidityDaysBounded(t *testing.T) {
	b, sender, c := newTestBot(t)
	ctx := context.Background()

	// Переполнение длительности не должно давать карту из прошлого
	send(b, teacherTG, "/cards 25 1 999999999999")
	assert.Contains(t, sender.last(t), "Использование")
	assert.NotContains(t, sender.last(t), "Выпущено")

	send(b, teacherTG, fmt.Sprintf("/cards 25 1 %d", cards.MaxValidityDays+1))
	assert.Contains(t, sender.last(t), "Использование")

	send(b, teacherTG, fmt.Sprintf("/cards 25 1 %d", cards.MaxValidityDays))
	text := sender.last(t)
	assert.Contains(t, text, "Выпущено карт: 1")

	card, err := c.Cards.Get(ctx, text[len(text)-12:])
	require.NoError(t, err)
	require.NotNil(t, card.ValidUntil)
	assert.True(t, card.ValidUntil.After(time.Now().AddDate(9, 0, 0)))
}

func TestBot_IgnoresGroupsAndPlainText(t *testing.T) {
	b, sender, _ := newTestBot(t)

	b.handleUpdate(context.Background(), telego.Update{Message: &telego.Message{
		Chat: telego.Chat{ID: -100, Type: telego.ChatTypeGroup},
		From: &telego.User{ID: studentTG},
		Text: "/balance",
	}})
	assert.Empty(t, sender.sent)

	send(b, studentTG, "привет")
	assert.Contains(t, sender.last(t), "/help")
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "ℹ️ Использование: /x", userMessage(usageError("/x")))
	assert.Contains(t, userMessage(assert.AnError), "Внутренняя ошибка")
}
