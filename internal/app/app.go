// Package app инициализирует все компоненты приложения.
// app.go - точка сборки: хранилище, уведомления, ядро баллов,
// планировщик и Telegram-бот.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/bot"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/config"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/core"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/db"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/db/memory"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/db/postgres"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/members"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/jobs"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/notify"
)

// App содержит все компоненты приложения.
type App struct {
	Core      *core.Core
	Store     db.Store
	Scheduler *jobs.Scheduler
	Bot       *bot.Bot // nil, если TELEGRAM_BOT_TOKEN не задан

	notifier *notify.Async
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен - компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. Хранилище ===
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// === 2. Telegram Bot API ===
	var api *telego.Bot
	if cfg.TelegramEnabled() {
		api, err = telego.NewBot(cfg.TelegramBotToken,
			telego.WithLogger(log.WithField("component", "telego")))
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
		}
		me, err := api.GetMe(ctx)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("ошибка авторизации в Telegram: %w", err)
		}
		log.Infof("Авторизован как @%s", me.Username)
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN не задан: бот отключён, уведомления пишутся в лог")
	}

	// === 3. Уведомления ===
	var sender notify.Sender = notify.Log{}
	if api != nil {
		sender = notify.NewTelegram(api, members.NewService(store))
	}
	notifier := notify.NewAsync(sender, cfg.NotifyQueueSize, cfg.NotifyMaxRetries)

	// === 4. Ядро баллов ===
	c := core.New(store, notifier, core.Options{
		ThresholdMaxPasses:    cfg.ThresholdMaxPasses,
		CatalogRefundOnReject: cfg.CatalogRefundOnReject,
		CardCodeLength:        cfg.CardCodeLength,
		CardMaxUsageAttempts:  cfg.CardMaxUsageAttempts,
	})

	if err := bootstrapAdmin(ctx, c.Members, cfg); err != nil {
		store.Close()
		return nil, err
	}

	// === 5. Планировщик задач ===
	scheduler := jobs.NewScheduler(jobs.Config{
		ReconcileSpec:     cfg.CronReconcileSpec,
		AttemptsPurgeSpec: cfg.CronAttemptsPurgeSpec,
		AttemptsRetention: cfg.CardAttemptsRetention,
		Location:          cfg.Location(),
	}, c.Ledger, store)

	// === 6. Бот ===
	var b *bot.Bot
	if api != nil {
		b = bot.New(api, c, bot.Options{
			MaxInflight:          cfg.BotMaxInflight,
			UpdateTimeoutSeconds: cfg.BotUpdateTimeoutSeconds,
			RateLimitRequests:    cfg.RateLimitRequests,
			RateLimitWindow:      cfg.RateLimitWindow,
			Location:             cfg.Location(),
		})
	}

	return &App{
		Core:      c,
		Store:     store,
		Scheduler: scheduler,
		Bot:       b,
		notifier:  notifier,
	}, nil
}

// Run запускает фоновые компоненты и блокируется до отмены ctx.
// После возврата все компоненты остановлены, хранилище закрыто.
func (a *App) Run(ctx context.Context) error {
	defer a.Store.Close()

	// очередь уведомлений дочитывается и после отмены ctx
	a.notifier.Start(context.WithoutCancel(ctx))
	defer a.notifier.Close()

	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.Scheduler.Stop()

	g, ctx := errgroup.WithContext(ctx)
	if a.Bot != nil {
		g.Go(func() error { return a.Bot.Start(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return g.Wait()
}

// openStore выбирает реализацию хранилища по STORE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config) (db.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("STORE_DRIVER=memory: данные живут только до перезапуска")
		return memory.New(), nil

	case config.StoreDriverPostgres:
		if err := postgres.RunMigrations(cfg.DatabaseDSN()); err != nil {
			return nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		return postgres.New(pool, cfg.StoreTimeout), nil
	}
	return nil, fmt.Errorf("неизвестный STORE_DRIVER %q", cfg.StoreDriver)
}

// bootstrapAdmin создаёт первого администратора, чтобы было кому
// регистрировать остальных через /register. Существующего не трогает.
func bootstrapAdmin(ctx context.Context, svc *members.Service, cfg *config.Config) error {
	if cfg.AdminTelegramID == 0 {
		return nil
	}

	_, err := svc.Get(ctx, cfg.AdminID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, common.ErrUserNotFound) {
		return fmt.Errorf("ошибка проверки администратора: %w", err)
	}

	tgID := cfg.AdminTelegramID
	if _, err := svc.Register(ctx, members.RegisterRequest{
		ID:         cfg.AdminID,
		TelegramID: &tgID,
		FullName:   "Администратор",
		Role:       models.RoleAdmin,
	}); err != nil {
		return fmt.Errorf("ошибка создания администратора: %w", err)
	}
	log.WithField("admin_id", cfg.AdminID).Info("Создан первый администратор")
	return nil
}
