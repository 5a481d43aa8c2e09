package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/db"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/db/memory"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/notify/notifytest"
)

func setup(t *testing.T, users ...string) (*Service, *memory.Store, *notifytest.Recorder) {
	t.Helper()
	store := memory.New()
	for _, id := range users {
		require.NoError(t, store.UpsertMember(context.Background(), &models.Member{ID: id, Role: models.RoleStudent}))
	}
	rec := &notifytest.Recorder{}
	return NewService(store, rec), store, rec
}

type countingEvaluator struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingEvaluator) Evaluate(_ context.Context, userID string) ([]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[userID]++
	return nil, nil
}

func TestGrant_UpdatesCacheAndNotifies(t *testing.T) {
	svc, _, rec := setup(t, "u1")
	ev := &countingEvaluator{}
	svc.SetEvaluator(ev)
	ctx := context.Background()

	txID, err := svc.Grant(ctx, GrantRequest{UserID: "u1", Amount: 40, IsPositive: true, Description: "Олимпиада", ActorID: "t1"})
	require.NoError(t, err)
	assert.NotZero(t, txID)

	_, err = svc.Grant(ctx, GrantRequest{UserID: "u1", Amount: 15, IsPositive: false, Description: "Опоздание", ActorID: "t1"})
	require.NoError(t, err)

	cached, err := svc.GetCached(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), cached)

	actual, err := svc.Recompute(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, cached, actual)

	msgs := rec.For("u1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "Начислены баллы", msgs[0].Title)
	assert.Equal(t, "Списаны баллы", msgs[1].Title)
	assert.Equal(t, 2, ev.calls["u1"])

	list, err := svc.List(ctx, "u1", models.DateRange{}, models.Page{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.CategoryAdjustment, list[0].CategoryName())
	assert.Equal(t, "t1", list[0].CreatedBy)
}

func TestGrant_Rejections(t *testing.T) {
	svc, _, rec := setup(t, "u1")
	ctx := context.Background()

	_, err := svc.Grant(ctx, GrantRequest{UserID: "u1", Amount: 0, IsPositive: true, ActorID: "t1"})
	assert.ErrorIs(t, err, common.ErrInvalidAmount)

	_, err = svc.Grant(ctx, GrantRequest{UserID: "u1", Amount: 5, IsPositive: true})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = svc.Grant(ctx, GrantRequest{UserID: "u1", Amount: 5, IsPositive: true, Category: "casino", ActorID: "t1"})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = svc.Grant(ctx, GrantRequest{UserID: "ghost", Amount: 5, IsPositive: true, ActorID: "t1"})
	assert.ErrorIs(t, err, common.ErrUserNotFound)

	assert.Empty(t, rec.Messages())
}

func TestAppend_RequiresPositiveMagnitude(t *testing.T) {
	svc, store, _ := setup(t)
	err := store.Atomic(context.Background(), "u1", func(ctx context.Context, tx db.Tx) error {
		_, err := svc.Append(ctx, tx, Entry{UserID: "u1", Points: -5, IsPositive: true})
		return err
	})
	assert.ErrorIs(t, err, common.ErrInvalidAmount)
}

// Для любой последовательности Append кэш после Refresh равен пересчёту.
func TestCacheEqualsRecompute(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()
	amounts := []int64{10, -3, 7, -20, 100, -1, 1}

	for _, a := range amounts {
		e := Entry{UserID: "u1", Points: a, IsPositive: a > 0, ActorID: "system"}
		if a < 0 {
			e.Points = -a
		}
		require.NoError(t, store.Atomic(ctx, "u1", func(ctx context.Context, tx db.Tx) error {
			_, _, err := svc.Post(ctx, tx, e)
			return err
		}))

		cached, err := svc.GetCached(ctx, "u1")
		require.NoError(t, err)
		actual, err := svc.Recompute(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, actual, cached)
	}

	balance, err := svc.GetCached(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(94), balance)
}

func TestConcurrentGrants_NoLostUpdates(t *testing.T) {
	svc, _, _ := setup(t, "u1")
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := svc.Grant(ctx, GrantRequest{UserID: "u1", Amount: 5, IsPositive: true, ActorID: "t1"})
			return err
		})
	}
	require.NoError(t, g.Wait())

	cached, err := svc.GetCached(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), cached)
}

func TestRebuild_FromScratch(t *testing.T) {
	svc, store, _ := setup(t, "u1", "u2")
	ctx := context.Background()

	_, err := svc.Grant(ctx, GrantRequest{UserID: "u1", Amount: 30, IsPositive: true, ActorID: "t1"})
	require.NoError(t, err)
	_, err = svc.Grant(ctx, GrantRequest{UserID: "u2", Amount: 12, IsPositive: true, ActorID: "t1"})
	require.NoError(t, err)

	// Портим кэш напрямую, минуя Refresh
	require.NoError(t, store.Atomic(ctx, "u1", func(ctx context.Context, tx db.Tx) error {
		return tx.PutCachedBalance(ctx, "u1", 9999, time.Now())
	}))

	drifts, err := svc.RebuildAll(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, Drift{UserID: "u1", Cached: 9999, Actual: 30, Present: true}, drifts[0])

	cached, err := svc.GetCached(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), cached)

	// Повторная перестройка ничего не находит
	drifts, err = svc.RebuildAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestGetCached_NoTransactions(t *testing.T) {
	svc, _, _ := setup(t)
	balance, err := svc.GetCached(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestList_DateRangeAndPaging(t *testing.T) {
	svc, _, _ := setup(t, "u1")
	ctx := context.Background()

	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	step := 0
	svc.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * 24 * time.Hour)
	}

	for i := 0; i < 5; i++ {
		_, err := svc.Grant(ctx, GrantRequest{UserID: "u1", Amount: int64(i + 1), IsPositive: true, ActorID: "t1"})
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, "u1", models.DateRange{}, models.Page{})
	require.NoError(t, err)
	require.Len(t, all, 5)

	from := all[3].CreatedAt
	to := all[1].CreatedAt
	ranged, err := svc.List(ctx, "u1", models.DateRange{From: from, To: to}, models.Page{})
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, all[2].ID, ranged[0].ID)
	assert.Equal(t, all[3].ID, ranged[1].ID)

	paged, err := svc.List(ctx, "u1", models.DateRange{}, models.Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, paged, 2)
	assert.Equal(t, all[2].ID, paged[0].ID)
}
