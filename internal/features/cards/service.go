// Package cards - карты пополнения: выпуск и активация.
//
// Карта переходит в состояние used не больше одного раза. Это обеспечивает
// условное обновление is_used=false → true с проверкой числа затронутых строк,
// а не отдельные чтение и запись.
package cards

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/db"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/ledger"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/notify"
)

// Result - итог успешной активации.
type Result struct {
	CardID  int64
	Points  int64
	TxID    int64
	Balance int64
	Granted []int64 // Достижения, выданные движком порогов после активации
}

// IssueRequest - выпуск пачки карт.
type IssueRequest struct {
	Points             int64  `validate:"gt=0"`
	Count              int    `validate:"gte=1,lte=500"`
	ValidFrom          *time.Time
	ValidUntil         *time.Time
	Category           string `validate:"max=32"`
	AssignedTo         string `validate:"max=64"`
	MaxUsageAttempts   *int   `validate:"omitempty,gte=0,lte=100"` // nil - лимит из Options, 0 - без блокировки
	UsageCooldownHours int    `validate:"gte=0,lte=720"`
	ActorID            string `validate:"required"`
}

// MaxValidityDays - предельный срок действия карты при выпуске на N дней.
const MaxValidityDays = 3650

// Options - параметры выпуска карт.
type Options struct {
	CodeLength       int
	MaxUsageAttempts int // Лимит неудачных попыток для карт без явного значения
}

// Service активирует и выпускает карты.
type Service struct {
	store     db.Store
	ledger    *ledger.Service
	evaluator ledger.Evaluator
	notifier  notify.Notifier
	opts      Options
}

// NewService создаёт сервис карт. evaluator может быть nil.
func NewService(store db.Store, ledgerSvc *ledger.Service, evaluator ledger.Evaluator, notifier notify.Notifier, opts Options) *Service {
	if opts.CodeLength <= 0 {
		opts.CodeLength = 12
	}
	if opts.MaxUsageAttempts < 0 {
		opts.MaxUsageAttempts = 0
	}
	return &Service{
		store:     store,
		ledger:    ledgerSvc,
		evaluator: evaluator,
		notifier:  notifier,
		opts:      opts,
	}
}

// Redeem активирует карту для пользователя.
//
// Шаги 1–5 проверяют карту до любых изменений. Шаг 6 - условное обновление
// в одной транзакции с начислением и Refresh под блокировкой пользователя.
// Проигравший гонку получает ErrCardAlreadyUsed, баллы ему не начисляются.
// Неудачи шагов 2–6 увеличивают failed_attempts (не чаще раза за cooldown).
func (s *Service) Redeem(ctx context.Context, code, userID string) (*Result, error) {
	code = common.NormalizeCardCode(code)
	logger := log.WithFields(log.Fields{
		"card":    common.CardFingerprint(code),
		"user_id": userID,
	})

	if code == "" || userID == "" {
		return nil, common.ErrInvalidInput
	}

	// Начислять некому: карту не трогаем и попытку не записываем
	if _, err := s.store.MemberByID(ctx, userID); err != nil {
		return nil, err
	}

	// 1. Поиск: ненайденную карту не к чему привязать
	card, err := s.store.CardByCode(ctx, code)
	if err != nil {
		if errors.Is(err, common.ErrCardNotFound) {
			logger.Info("Попытка активации несуществующей карты")
		}
		return nil, err
	}

	// 2–5. Проверки без изменений
	now := s.ledger.Now()
	if err := check(card, userID, now); err != nil {
		s.recordFailure(ctx, card, userID, err, now)
		logger.WithError(err).Info("Карта отклонена")
		return nil, err
	}

	// 6–7. Атомарная активация и начисление
	res := &Result{CardID: card.ID, Points: card.Points}
	err = s.store.Atomic(ctx, userID, func(ctx context.Context, tx db.Tx) error {
		won, err := tx.ConsumeCard(ctx, card.ID, userID, now)
		if err != nil {
			return err
		}
		if !won {
			return common.ErrCardAlreadyUsed
		}

		description := "Активация карты пополнения"
		if card.Category != nil && *card.Category != "" {
			description += " (" + *card.Category + ")"
		}
		res.TxID, res.Balance, err = s.ledger.Post(ctx, tx, ledger.Entry{
			UserID:      userID,
			Points:      card.Points,
			IsPositive:  true,
			Category:    models.CategoryRecharge,
			Description: description,
			ActorID:     userID,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrCardAlreadyUsed) {
			s.recordFailure(ctx, card, userID, err, now)
			logger.Info("Гонка за карту проиграна")
		}
		return nil, err
	}

	logger.WithFields(log.Fields{
		"points": card.Points,
		"tx_id":  res.TxID,
	}).Info("Карта активирована")

	// Движок порогов - после коммита; его сбой не отменяет начисление
	if s.evaluator != nil {
		granted, err := s.evaluator.Evaluate(ctx, userID)
		if err != nil {
			logger.WithError(err).Error("Ошибка пересчёта достижений после активации карты")
		}
		res.Granted = granted
		if len(granted) > 0 {
			if b, err := s.ledger.GetCached(ctx, userID); err == nil {
				res.Balance = b
			}
		}
	}

	s.notifier.Notify(ctx, userID, "Карта активирована",
		fmt.Sprintf("%s\nБаланс: %s", common.FormatSignedPoints(card.Points, true), common.FormatPoints(res.Balance)))
	return res, nil
}

// check - шаги 2–5: окно действия, использованность, блокировка, назначение.
func check(card *models.Card, userID string, now time.Time) error {
	switch {
	case card.Expired(now):
		return common.ErrCardExpired
	case card.NotYetValid(now):
		return common.ErrCardNotYetValid
	case card.IsUsed:
		return common.ErrCardAlreadyUsed
	case card.Locked():
		return common.ErrCardLocked
	case card.AssignedTo != nil && *card.AssignedTo != "" && *card.AssignedTo != userID:
		return common.ErrCardNotAssigned
	}
	return nil
}

// recordFailure учитывает неудачную попытку. Ошибка учёта не меняет
// ответ пользователю, только пишется в лог.
func (s *Service) recordFailure(ctx context.Context, card *models.Card, userID string, reason error, now time.Time) {
	counted, err := s.store.RecordCardFailure(ctx, &models.CardAttempt{
		CardID:    card.ID,
		UserID:    userID,
		Reason:    reasonCode(reason),
		CreatedAt: now,
	}, card.Cooldown())
	if err != nil {
		log.WithError(err).WithField("card", common.CardFingerprint(card.Code)).Warn("Не удалось учесть неудачную попытку")
		return
	}
	if counted {
		log.WithFields(log.Fields{
			"card":    common.CardFingerprint(card.Code),
			"user_id": userID,
			"failed":  card.FailedAttempts + 1,
			"max":     card.MaxUsageAttempts,
		}).Debug("Неудачная попытка учтена")
	}
}

func reasonCode(err error) string {
	var e *common.Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return "unknown"
}

// Issue выпускает пачку карт одного номинала.
func (s *Service) Issue(ctx context.Context, req IssueRequest) ([]*models.Card, error) {
	if err := common.Validate(req); err != nil {
		return nil, err
	}
	if req.ValidFrom != nil && req.ValidUntil != nil && !req.ValidUntil.After(*req.ValidFrom) {
		return nil, fmt.Errorf("%w: valid_until раньше valid_from", common.ErrInvalidInput)
	}

	maxAttempts := s.opts.MaxUsageAttempts
	if req.MaxUsageAttempts != nil {
		maxAttempts = *req.MaxUsageAttempts
	}

	batch := make([]*models.Card, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		c := &models.Card{
			Code:               s.newCode(),
			Points:             req.Points,
			ValidFrom:          req.ValidFrom,
			ValidUntil:         req.ValidUntil,
			MaxUsageAttempts:   maxAttempts,
			UsageCooldownHours: req.UsageCooldownHours,
			CreatedBy:          req.ActorID,
		}
		if req.Category != "" {
			category := req.Category
			c.Category = &category
		}
		if req.AssignedTo != "" {
			assigned := req.AssignedTo
			c.AssignedTo = &assigned
		}
		batch = append(batch, c)
	}

	if err := s.store.InsertCards(ctx, batch); err != nil {
		return nil, fmt.Errorf("ошибка выпуска карт: %w", err)
	}

	log.WithFields(log.Fields{
		"count":  len(batch),
		"points": req.Points,
		"actor":  req.ActorID,
	}).Info("Выпущены карты пополнения")
	return batch, nil
}

// newCode - код из случайного UUID: верхний регистр, без дефисов, нужной длины.
func (s *Service) newCode() string {
	var b strings.Builder
	for b.Len() < s.opts.CodeLength {
		b.WriteString(strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")))
	}
	return b.String()[:s.opts.CodeLength]
}

// Get возвращает карту по коду (для персонала).
func (s *Service) Get(ctx context.Context, code string) (*models.Card, error) {
	return s.store.CardByCode(ctx, common.NormalizeCardCode(code))
}
