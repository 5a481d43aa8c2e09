// Package ledger - журнал баллов и производный баланс.
//
// Журнал только дописывается. Баланс пользователя - знаковая сумма всех его
// транзакций; balance_cache лишь материализует её. Кэш пишет только Refresh,
// и только в той же транзакции хранилища, что и Append.
package ledger

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/db"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/notify"
)

// Entry - одна запись для Append.
type Entry struct {
	UserID      string
	Points      int64 // Модуль, строго > 0
	IsPositive  bool
	Category    string // Пусто - без категории
	Description string
	ActorID     string
}

// GrantRequest - ручное начисление или списание (учитель, админ, система).
type GrantRequest struct {
	UserID      string `validate:"required"`
	Amount      int64  `validate:"gt=0"`
	IsPositive  bool
	Category    string `validate:"omitempty,oneof=recharge catalog tier_reward achievement adjustment refund"`
	Description string `validate:"max=500"`
	ActorID     string `validate:"required"`
}

// Evaluator пересчитывает достижения после изменения баланса.
type Evaluator interface {
	Evaluate(ctx context.Context, userID string) ([]int64, error)
}

// Service - журнал и баланс.
type Service struct {
	store     db.Store
	notifier  notify.Notifier
	evaluator Evaluator
	now       func() time.Time
}

// NewService создаёт сервис журнала.
func NewService(store db.Store, notifier notify.Notifier) *Service {
	return &Service{store: store, notifier: notifier, now: time.Now}
}

// SetEvaluator подключает движок порогов. Движок сам зависит от журнала,
// поэтому связывается после создания обоих сервисов.
func (s *Service) SetEvaluator(e Evaluator) {
	s.evaluator = e
}

// Now - текущее время сервиса в UTC.
func (s *Service) Now() time.Time {
	return s.now().UTC()
}

// Append дописывает транзакцию в журнал внутри tx.
// Бизнес-проверок здесь нет: решает вызывающий.
func (s *Service) Append(ctx context.Context, tx db.Tx, e Entry) (int64, error) {
	if e.Points <= 0 {
		return 0, common.ErrInvalidAmount
	}
	if e.UserID == "" {
		return 0, fmt.Errorf("%w: пустой user_id", common.ErrInvalidInput)
	}

	t := &models.Transaction{
		UserID:      e.UserID,
		Points:      e.Points,
		IsPositive:  e.IsPositive,
		Description: e.Description,
		CreatedBy:   e.ActorID,
		CreatedAt:   s.Now(),
	}
	if e.Category != "" {
		category := e.Category
		t.Category = &category
	}
	if t.CreatedBy == "" {
		t.CreatedBy = "system"
	}
	return tx.AppendTransaction(ctx, t)
}

// Refresh пересчитывает баланс по журналу и перезаписывает кэш.
// Единственный путь записи в balance_cache.
func (s *Service) Refresh(ctx context.Context, tx db.Tx, userID string) (int64, error) {
	balance, err := tx.SumTransactions(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := tx.PutCachedBalance(ctx, userID, balance, s.Now()); err != nil {
		return 0, err
	}
	return balance, nil
}

// Post - Append и Refresh одним шагом. Возвращает ID транзакции и новый баланс.
func (s *Service) Post(ctx context.Context, tx db.Tx, e Entry) (txID, balance int64, err error) {
	txID, err = s.Append(ctx, tx, e)
	if err != nil {
		return 0, 0, err
	}
	balance, err = s.Refresh(ctx, tx, e.UserID)
	if err != nil {
		return 0, 0, err
	}
	return txID, balance, nil
}

// Balance читает баланс через r (хранилище или открытую транзакцию).
// Если строки кэша ещё нет, считает по журналу.
func (s *Service) Balance(ctx context.Context, r db.Reader, userID string) (int64, error) {
	balance, ok, err := r.CachedBalance(ctx, userID)
	if err != nil {
		return 0, err
	}
	if ok {
		return balance, nil
	}
	return r.SumTransactions(ctx, userID)
}

// Recompute - авторитетный баланс: полный проход по журналу.
func (s *Service) Recompute(ctx context.Context, userID string) (int64, error) {
	return s.store.SumTransactions(ctx, userID)
}

// GetCached - материализованный баланс. Для пользователя без кэша - пересчёт.
func (s *Service) GetCached(ctx context.Context, userID string) (int64, error) {
	return s.Balance(ctx, s.store, userID)
}

// Grant - ручное начисление/списание. Баланс может уйти в минус:
// корректировки - дело персонала.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (int64, error) {
	if req.Amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	if err := common.Validate(req); err != nil {
		return 0, err
	}
	if _, err := s.store.MemberByID(ctx, req.UserID); err != nil {
		return 0, err
	}

	category := req.Category
	if category == "" {
		category = models.CategoryAdjustment
	}

	var txID, balance int64
	err := s.store.Atomic(ctx, req.UserID, func(ctx context.Context, tx db.Tx) error {
		var err error
		txID, balance, err = s.Post(ctx, tx, Entry{
			UserID:      req.UserID,
			Points:      req.Amount,
			IsPositive:  req.IsPositive,
			Category:    category,
			Description: req.Description,
			ActorID:     req.ActorID,
		})
		return err
	})
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"user_id":  req.UserID,
		"points":   common.FormatSignedPoints(req.Amount, req.IsPositive),
		"category": category,
		"actor":    req.ActorID,
		"tx_id":    txID,
	}).Info("Баллы начислены вручную")

	s.afterCommit(ctx, req.UserID)

	title := "Начислены баллы"
	if !req.IsPositive {
		title = "Списаны баллы"
	}
	content := fmt.Sprintf("%s. %s\nБаланс: %s",
		common.FormatSignedPoints(req.Amount, req.IsPositive), req.Description, common.FormatPoints(balance))
	s.notifier.Notify(ctx, req.UserID, title, content)

	return txID, nil
}

// afterCommit запускает движок порогов. Его сбой не отменяет начисление.
func (s *Service) afterCommit(ctx context.Context, userID string) {
	if s.evaluator == nil {
		return
	}
	if _, err := s.evaluator.Evaluate(ctx, userID); err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка пересчёта достижений после начисления")
	}
}

// List - история транзакций пользователя от новых к старым.
func (s *Service) List(ctx context.Context, userID string, dr models.DateRange, page models.Page) ([]*models.Transaction, error) {
	return s.store.ListTransactions(ctx, models.TransactionFilter{
		UserID: userID,
		Range:  dr,
		Page:   page.Normalize(),
	})
}
