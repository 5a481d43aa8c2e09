// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: ночная сверка кэша балансов
// с журналом и чистка истории неудачных попыток активации карт.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/ledger"
)

// Reconciler перестраивает кэш балансов по журналу.
type Reconciler interface {
	RebuildAll(ctx context.Context) ([]ledger.Drift, error)
}

// AttemptPurger удаляет старую историю попыток активации.
type AttemptPurger interface {
	PurgeCardAttempts(ctx context.Context, before time.Time) (int64, error)
}

// Config - расписания и срок хранения попыток.
type Config struct {
	ReconcileSpec     string
	AttemptsPurgeSpec string
	AttemptsRetention time.Duration
	Location          *time.Location
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron       *cron.Cron
	cfg        Config
	reconciler Reconciler
	purger     AttemptPurger
	now        func() time.Time
}

// NewScheduler создаёт планировщик в часовом поясе приложения.
func NewScheduler(cfg Config, reconciler Reconciler, purger AttemptPurger) *Scheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := cron.PrintfLogger(log.StandardLogger())

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	return &Scheduler{
		cron:       c,
		cfg:        cfg,
		reconciler: reconciler,
		purger:     purger,
		now:        time.Now,
	}
}

// Start регистрирует задачи и запускает планировщик.
// Ошибка - только при некорректном расписании.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.ReconcileSpec, func() {
		log.Info("[CRON] Сверка кэша балансов с журналом")
		if _, err := s.ReconcileBalances(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка сверки балансов")
		}
	}); err != nil {
		return fmt.Errorf("некорректное расписание сверки %q: %w", s.cfg.ReconcileSpec, err)
	}

	if _, err := s.cron.AddFunc(s.cfg.AttemptsPurgeSpec, func() {
		log.Debug("[CRON] Чистка истории попыток активации")
		if _, err := s.PurgeAttempts(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка чистки попыток")
		}
	}); err != nil {
		return fmt.Errorf("некорректное расписание чистки %q: %w", s.cfg.AttemptsPurgeSpec, err)
	}

	s.cron.Start()
	log.WithField("location", s.cron.Location().String()).Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик и ждёт завершения текущих задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// ReconcileBalances перестраивает кэш всех пользователей и пишет в лог
// каждое расхождение: его быть не должно, поэтому это ошибка.
func (s *Scheduler) ReconcileBalances(ctx context.Context) ([]ledger.Drift, error) {
	drifts, err := s.reconciler.RebuildAll(ctx)
	for _, d := range drifts {
		log.WithFields(log.Fields{
			"user_id": d.UserID,
			"cached":  d.Cached,
			"actual":  d.Actual,
			"present": d.Present,
		}).Error("[CRON] Кэш баланса расходился с журналом, исправлено")
	}
	return drifts, err
}

// PurgeAttempts удаляет попытки старше срока хранения.
func (s *Scheduler) PurgeAttempts(ctx context.Context) (int64, error) {
	before := s.now().Add(-s.cfg.AttemptsRetention)
	removed, err := s.purger.PurgeCardAttempts(ctx, before)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.WithField("removed", removed).Info("[CRON] История попыток очищена")
	}
	return removed, nil
}
