package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/config"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreDriver:           config.StoreDriverMemory,
		StoreTimeout:          time.Second,
		AppTimezone:           "UTC",
		NotifyQueueSize:       8,
		ThresholdMaxPasses:    2,
		CardCodeLength:        12,
		CronReconcileSpec:     "30 3 * * *",
		CronAttemptsPurgeSpec: "0 4 * * 0",
		CardAttemptsRetention: time.Hour,
		AdminID:               "admin",
		AdminTelegramID:       4242,
	}
}

func TestNew_MemoryStoreWithoutTelegram(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig())
	require.NoError(t, err)
	assert.Nil(t, a.Bot)

	admin, err := a.Core.Members.ByTelegramID(ctx, 4242)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)

	// повторная загрузка не перезаписывает администратора
	require.NoError(t, bootstrapAdmin(ctx, a.Core.Members, memoryConfig()))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.Run(runCtx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
}

func TestRun_BadCronSpec(t *testing.T) {
	cfg := memoryConfig()
	cfg.CronReconcileSpec = "каждую ночь"

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Error(t, a.Run(context.Background()))
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreDriver = "sqlite"
	_, err := openStore(context.Background(), cfg)
	assert.Error(t, err)
}
