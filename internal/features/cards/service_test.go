package cards

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/db/memory"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/ledger"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/notify/notifytest"
)

type stubEvaluator struct {
	calls atomic.Int32
	err   error
}

func (s *stubEvaluator) Evaluate(context.Context, string) ([]int64, error) {
	s.calls.Add(1)
	return nil, s.err
}

type fixture struct {
	store  *memory.Store
	ledger *ledger.Service
	svc    *Service
	eval   *stubEvaluator
	rec    *notifytest.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	rec := &notifytest.Recorder{}
	l := ledger.NewService(store, rec)
	ev := &stubEvaluator{}
	f := &fixture{store: store, ledger: l, svc: NewService(store, l, ev, rec, Options{CodeLength: 12, MaxUsageAttempts: 3}), eval: ev, rec: rec}
	for _, id := range []string{"u1", "u2", "u3"} {
		f.member(t, id)
	}
	return f
}

func (f *fixture) member(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.store.UpsertMember(context.Background(), &models.Member{ID: id, Role: models.RoleStudent}))
}

func (f *fixture) insert(t *testing.T, c *models.Card) *models.Card {
	t.Helper()
	require.NoError(t, f.store.InsertCards(context.Background(), []*models.Card{c}))
	got, err := f.store.CardByCode(context.Background(), c.Code)
	require.NoError(t, err)
	return got
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	b, err := f.ledger.GetCached(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func timePtr(t time.Time) *time.Time { return &t }

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

// Карта ABC123 на 50 баллов: первая активация начисляет, вторая - ErrCardAlreadyUsed.
func TestRedeem_ABC123(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert(t, &models.Card{Code: "ABC123", Points: 50, MaxUsageAttempts: 5})

	assert.Zero(t, f.balance(t, "u1"))

	res, err := f.svc.Redeem(ctx, "ABC123", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.Points)
	assert.Equal(t, int64(50), res.Balance)
	assert.Equal(t, int64(50), f.balance(t, "u1"))
	assert.Equal(t, int32(1), f.eval.calls.Load())

	_, err = f.svc.Redeem(ctx, "ABC123", "u1")
	assert.ErrorIs(t, err, common.ErrCardAlreadyUsed)
	assert.Equal(t, int64(50), f.balance(t, "u1"))

	list, err := f.ledger.List(ctx, "u1", models.DateRange{}, models.Page{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.CategoryRecharge, list[0].CategoryName())
	assert.Equal(t, "u1", list[0].CreatedBy)

	msgs := f.rec.For("u1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "Карта активирована", msgs[0].Title)
}

func TestRedeem_NormalizesCode(t *testing.T) {
	f := newFixture(t)
	f.insert(t, &models.Card{Code: "ABCD1234", Points: 5})

	res, err := f.svc.Redeem(context.Background(), " abcd-1234 ", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Points)
}

// N одновременных активаций одной карты: ровно одна успешна и ровно одна транзакция.
func TestRedeem_ConcurrentAtMostOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert(t, &models.Card{Code: "RACE01", Points: 30})

	const n = 32
	var wins atomic.Int32
	var g errgroup.Group
	for i := 0; i < n; i++ {
		user := fmt.Sprintf("u%d", i)
		f.member(t, user)
		g.Go(func() error {
			_, err := f.svc.Redeem(ctx, "RACE01", user)
			switch {
			case err == nil:
				wins.Add(1)
				return nil
			case errors.Is(err, common.ErrCardAlreadyUsed):
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), wins.Load())

	users, err := f.store.LedgerUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)

	list, err := f.ledger.List(ctx, users[0], models.DateRange{}, models.Page{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRedeem_ExpiredAndUsedAlwaysRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	f.insert(t, &models.Card{Code: "EXPIRED1", Points: 10, ValidUntil: timePtr(now.Add(-time.Minute))})
	f.insert(t, &models.Card{
		Code: "USED0001", Points: 10, IsUsed: true,
		UsedBy: strPtr("u9"), UsedAt: timePtr(now.Add(-time.Hour)),
		ValidUntil: timePtr(now.Add(time.Hour)),
	})

	for i := 0; i < 3; i++ {
		_, err := f.svc.Redeem(ctx, "EXPIRED1", "u1")
		assert.ErrorIs(t, err, common.ErrCardExpired)

		_, err = f.svc.Redeem(ctx, "USED0001", "u1")
		assert.ErrorIs(t, err, common.ErrCardAlreadyUsed)
	}
	assert.Zero(t, f.balance(t, "u1"))
	assert.Zero(t, f.eval.calls.Load())
}

func TestRedeem_NotYetValid(t *testing.T) {
	f := newFixture(t)
	f.insert(t, &models.Card{Code: "FUTURE01", Points: 10, ValidFrom: timePtr(time.Now().Add(time.Hour))})

	_, err := f.svc.Redeem(context.Background(), "FUTURE01", "u1")
	assert.ErrorIs(t, err, common.ErrCardNotYetValid)
	assert.ErrorIs(t, err, common.ErrGated)
}

func TestRedeem_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Redeem(context.Background(), "NOPE", "u1")
	assert.ErrorIs(t, err, common.ErrCardNotFound)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRedeem_AssignmentAndLockout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert(t, &models.Card{Code: "ASSIGNED", Points: 20, AssignedTo: strPtr("u2"), MaxUsageAttempts: 2})

	_, err := f.svc.Redeem(ctx, "ASSIGNED", "u1")
	assert.ErrorIs(t, err, common.ErrCardNotAssigned)
	_, err = f.svc.Redeem(ctx, "ASSIGNED", "u1")
	assert.ErrorIs(t, err, common.ErrCardNotAssigned)

	card, err := f.svc.Get(ctx, "ASSIGNED")
	require.NoError(t, err)
	assert.Equal(t, 2, card.FailedAttempts)
	assert.Equal(t, models.CardExhausted, card.State(time.Now()))

	// Даже владелец больше не может активировать заблокированную карту
	_, err = f.svc.Redeem(ctx, "ASSIGNED", "u2")
	assert.ErrorIs(t, err, common.ErrCardLocked)
	assert.Zero(t, f.balance(t, "u2"))
}

func TestRedeem_CooldownThrottlesCounting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert(t, &models.Card{Code: "COOLDOWN", Points: 20, AssignedTo: strPtr("u3"), MaxUsageAttempts: 2, UsageCooldownHours: 24})

	for i := 0; i < 5; i++ {
		_, err := f.svc.Redeem(ctx, "COOLDOWN", "u1")
		assert.ErrorIs(t, err, common.ErrCardNotAssigned)
	}
	card, err := f.svc.Get(ctx, "COOLDOWN")
	require.NoError(t, err)
	assert.Equal(t, 1, card.FailedAttempts)

	// Другой пользователь считается отдельно
	_, err = f.svc.Redeem(ctx, "COOLDOWN", "u2")
	assert.ErrorIs(t, err, common.ErrCardNotAssigned)

	_, err = f.svc.Redeem(ctx, "COOLDOWN", "u3")
	assert.ErrorIs(t, err, common.ErrCardLocked)
}

func TestRedeem_EvaluatorFailureKeepsCredit(t *testing.T) {
	f := newFixture(t)
	f.eval.err = errors.New("движок недоступен")
	f.insert(t, &models.Card{Code: "EVALFAIL", Points: 40})

	res, err := f.svc.Redeem(context.Background(), "EVALFAIL", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), res.Points)
	assert.Equal(t, int64(40), f.balance(t, "u1"))
}

func TestIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	until := time.Now().Add(24 * time.Hour)

	batch, err := f.svc.Issue(ctx, IssueRequest{
		Points: 25, Count: 10, ValidUntil: &until, MaxUsageAttempts: intPtr(4), ActorID: "admin",
	})
	require.NoError(t, err)
	require.Len(t, batch, 10)

	seen := make(map[string]struct{})
	for _, c := range batch {
		assert.Len(t, c.Code, 12)
		assert.Equal(t, common.NormalizeCardCode(c.Code), c.Code)
		assert.NotZero(t, c.ID)
		seen[c.Code] = struct{}{}
	}
	assert.Len(t, seen, 10)

	for _, c := range batch {
		assert.Equal(t, 4, c.MaxUsageAttempts)
	}

	res, err := f.svc.Redeem(ctx, batch[0].Code, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), res.Points)
}

// Без явного лимита карта получает лимит по умолчанию и блокируется после N неудач.
func TestIssue_DefaultAttemptsLockCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	batch, err := f.svc.Issue(ctx, IssueRequest{Points: 15, Count: 1, AssignedTo: "u1", ActorID: "admin"})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	code := batch[0].Code
	assert.Equal(t, 3, batch[0].MaxUsageAttempts)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Redeem(ctx, code, "u2")
		require.ErrorIs(t, err, common.ErrCardNotAssigned)
	}

	card, err := f.store.CardByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, 3, card.FailedAttempts)
	assert.True(t, card.Locked())

	// Заблокирована и для владельца
	_, err = f.svc.Redeem(ctx, code, "u1")
	assert.ErrorIs(t, err, common.ErrCardLocked)
	assert.Zero(t, f.balance(t, "u1"))
}

// Явный ноль отключает блокировку.
func TestIssue_ExplicitZeroAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	batch, err := f.svc.Issue(ctx, IssueRequest{Points: 15, Count: 1, AssignedTo: "u1", MaxUsageAttempts: intPtr(0), ActorID: "admin"})
	require.NoError(t, err)
	code := batch[0].Code
	assert.Zero(t, batch[0].MaxUsageAttempts)

	for i := 0; i < 5; i++ {
		_, err := f.svc.Redeem(ctx, code, "u2")
		require.ErrorIs(t, err, common.ErrCardNotAssigned)
	}

	res, err := f.svc.Redeem(ctx, code, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(15), res.Points)
}

// Активация для незарегистрированного пользователя не трогает карту.
func TestRedeem_UnknownMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert(t, &models.Card{Code: "GHOST001", Points: 10, MaxUsageAttempts: 1})

	_, err := f.svc.Redeem(ctx, "GHOST001", "nobody")
	require.ErrorIs(t, err, common.ErrUserNotFound)

	card, err := f.store.CardByCode(ctx, "GHOST001")
	require.NoError(t, err)
	assert.False(t, card.IsUsed)
	assert.Zero(t, card.FailedAttempts)

	users, err := f.store.LedgerUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	res, err := f.svc.Redeem(ctx, "GHOST001", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Points)
}

func TestIssue_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	_, err := f.svc.Issue(ctx, IssueRequest{Points: 0, Count: 1, ActorID: "a"})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = f.svc.Issue(ctx, IssueRequest{Points: 10, Count: 0, ActorID: "a"})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = f.svc.Issue(ctx, IssueRequest{Points: 10, Count: 1})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = f.svc.Issue(ctx, IssueRequest{
		Points: 10, Count: 1, ActorID: "a",
		ValidFrom: timePtr(now), ValidUntil: timePtr(now.Add(-time.Hour)),
	})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = f.svc.Issue(ctx, IssueRequest{Points: 10, Count: 1, MaxUsageAttempts: intPtr(-1), ActorID: "a"})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
