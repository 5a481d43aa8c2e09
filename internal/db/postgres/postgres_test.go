package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/db"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/d?sslmode=disable", migrateURL("postgres://u:p@h:5432/d?sslmode=disable"))
	assert.Equal(t, "pgx5://u@h/d", migrateURL("postgresql://u@h/d"))
	assert.Equal(t, "pgx5://already", migrateURL("pgx5://already"))
}

// newTestStore подключается к TEST_DATABASE_URL, накатывает миграции
// и возвращает хранилище. Без переменной тест пропускается.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL не задан")
	}
	require.NoError(t, RunMigrations(dsn))

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	s := New(pool, 5*time.Second)
	t.Cleanup(s.Close)
	return s
}

func uniqueUser(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

func TestStore_AppendAndSum(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := uniqueUser("sum")

	err := s.Atomic(ctx, user, func(ctx context.Context, tx db.Tx) error {
		for _, tr := range []models.Transaction{
			{UserID: user, Points: 100, IsPositive: true, CreatedBy: "system"},
			{UserID: user, Points: 40, IsPositive: false, CreatedBy: "system"},
		} {
			if _, err := tx.AppendTransaction(ctx, &tr); err != nil {
				return err
			}
		}
		sum, err := tx.SumTransactions(ctx, user)
		if err != nil {
			return err
		}
		return tx.PutCachedBalance(ctx, user, sum, time.Now())
	})
	require.NoError(t, err)

	sum, err := s.SumTransactions(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(60), sum)

	cached, ok, err := s.CachedBalance(ctx, user)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sum, cached)

	list, err := s.ListTransactions(ctx, models.TransactionFilter{UserID: user})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, list[0].IsPositive)
}

func TestStore_ConcurrentCardConsume(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	code := "IT-" + uuid.NewString()[:8]
	require.NoError(t, s.InsertCards(ctx, []*models.Card{{Code: code, Points: 25, MaxUsageAttempts: 5, CreatedBy: "test"}}))
	card, err := s.CardByCode(ctx, code)
	require.NoError(t, err)

	const workers = 8
	wins := make(chan string, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		user := uniqueUser("racer")
		g.Go(func() error {
			return s.Atomic(ctx, user, func(ctx context.Context, tx db.Tx) error {
				ok, err := tx.ConsumeCard(ctx, card.ID, user, time.Now())
				if err != nil || !ok {
					return err
				}
				wins <- user
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())
	close(wins)
	assert.Len(t, wins, 1)
}

func TestStore_CatalogTakeStopsAtZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	item := &models.CatalogItem{Name: "Notebook", Cost: 10, AvailableQuantity: 2, Active: true}
	require.NoError(t, s.InsertCatalogItem(ctx, item))

	var g errgroup.Group
	taken := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			return s.Atomic(ctx, "", func(ctx context.Context, tx db.Tx) error {
				ok, err := tx.TakeCatalogItem(ctx, item.ID)
				if ok {
					taken <- struct{}{}
				}
				return err
			})
		})
	}
	require.NoError(t, g.Wait())
	close(taken)
	assert.Len(t, taken, 2)

	got, err := s.CatalogItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Zero(t, got.AvailableQuantity)
}

func TestStore_NotFoundMapping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CardByCode(ctx, "NO-SUCH-"+uuid.NewString())
	assert.ErrorIs(t, err, common.ErrCardNotFound)

	_, err = s.Redemption(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, common.ErrRedemptionNotFound)

	_, err = s.MemberByID(ctx, uniqueUser("ghost"))
	assert.ErrorIs(t, err, common.ErrUserNotFound)
}
