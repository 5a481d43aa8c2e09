// Package catalog - каталог наград и заявки на них.
//
// Баллы списываются в момент заявки, а не при выдаче: заявка создаётся
// в статусе pending, дальше персонал ведёт её по цепочке
// pending → approved|rejected, approved → delivered.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/db"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/ledger"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/notify"
)

// Receipt - подтверждение заявки на награду.
type Receipt struct {
	RedemptionID string
	ItemID       int64
	ItemName     string
	Cost         int64
	TxID         int64
	Balance      int64
	Status       models.RedemptionStatus
	CreatedAt    time.Time
}

// NewItem - новая позиция каталога.
type NewItem struct {
	Name        string       `validate:"required,max=255"`
	Description string       `validate:"max=2000"`
	Cost        int64        `validate:"gt=0"`
	Quantity    int          `validate:"gte=0"`
	Role        *models.Role `validate:"omitempty,oneof=student parent teacher admin"`
}

// Options - политика каталога.
type Options struct {
	// RefundOnReject - вернуть баллы и остаток при отклонении заявки.
	RefundOnReject bool
}

// Service - каталог наград.
type Service struct {
	store     db.Store
	ledger    *ledger.Service
	evaluator ledger.Evaluator
	notifier  notify.Notifier
	opts      Options
}

// NewService создаёт сервис каталога. evaluator может быть nil.
func NewService(store db.Store, ledgerSvc *ledger.Service, evaluator ledger.Evaluator, notifier notify.Notifier, opts Options) *Service {
	return &Service{store: store, ledger: ledgerSvc, evaluator: evaluator, notifier: notifier, opts: opts}
}

// Redeem оформляет заявку на награду и сразу списывает баллы.
//
// Предварительные проверки по порядку: награда есть, есть на складе,
// доступна роли, хватает кэшированного баланса. Затем одна транзакция под
// блокировкой пользователя: условное списание остатка, повторная проверка
// баланса, заявка pending, отрицательная транзакция и Refresh. Остаток
// списывается первым: проигравший гонку за последнюю единицу получает
// ErrOutOfStock, даже если победитель потратил его же баллы.
func (s *Service) Redeem(ctx context.Context, userID string, itemID int64) (*Receipt, error) {
	member, err := s.store.MemberByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	item, err := s.store.CatalogItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.Active {
		return nil, common.ErrItemNotFound
	}
	if item.AvailableQuantity <= 0 {
		return nil, common.ErrOutOfStock
	}
	if !item.AllowedFor(member.Role) {
		return nil, common.ErrNotEligible
	}
	balance, err := s.ledger.GetCached(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < item.Cost {
		return nil, common.ErrInsufficientPoints
	}

	now := s.ledger.Now()
	receipt := &Receipt{
		RedemptionID: uuid.NewString(),
		ItemID:       item.ID,
		ItemName:     item.Name,
		Cost:         item.Cost,
		Status:       models.RedemptionPending,
		CreatedAt:    now,
	}

	err = s.store.Atomic(ctx, userID, func(ctx context.Context, tx db.Tx) error {
		taken, err := tx.TakeCatalogItem(ctx, item.ID)
		if err != nil {
			return err
		}
		if !taken {
			return common.ErrOutOfStock
		}

		// Баланс мог измениться между проверкой и блокировкой; откат вернёт остаток
		current, err := s.ledger.Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if current < item.Cost {
			return common.ErrInsufficientPoints
		}

		receipt.TxID, receipt.Balance, err = s.ledger.Post(ctx, tx, ledger.Entry{
			UserID:      userID,
			Points:      item.Cost,
			IsPositive:  false,
			Category:    models.CategoryCatalog,
			Description: fmt.Sprintf("Награда «%s» (#%d)", item.Name, item.ID),
			ActorID:     userID,
		})
		if err != nil {
			return err
		}

		return tx.InsertRedemption(ctx, &models.Redemption{
			ID:            receipt.RedemptionID,
			UserID:        userID,
			ItemID:        item.ID,
			ItemName:      item.Name,
			Cost:          item.Cost,
			TransactionID: receipt.TxID,
			Status:        models.RedemptionPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":       userID,
		"item_id":       item.ID,
		"cost":          item.Cost,
		"redemption_id": receipt.RedemptionID,
	}).Info("Заявка на награду оформлена")

	s.afterCommit(ctx, userID)

	s.notifier.Notify(ctx, userID, "Заявка на награду принята",
		fmt.Sprintf("«%s»: %s\nБаланс: %s", item.Name,
			common.FormatSignedPoints(item.Cost, false), common.FormatPoints(receipt.Balance)))
	return receipt, nil
}

// SetStatus ведёт заявку по цепочке статусов.
// Недопустимый переход - ErrInvalidTransition. При RefundOnReject
// отклонение возвращает баллы (транзакция refund) и единицу остатка.
func (s *Service) SetStatus(ctx context.Context, redemptionID string, status models.RedemptionStatus, notes *string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: неизвестный статус %q", common.ErrInvalidInput, status)
	}
	red, err := s.store.Redemption(ctx, redemptionID)
	if err != nil {
		return err
	}
	if !red.Status.CanMoveTo(status) {
		return common.ErrInvalidTransition
	}

	refund := status == models.RedemptionRejected && s.opts.RefundOnReject
	var balance int64

	err = s.store.Atomic(ctx, red.UserID, func(ctx context.Context, tx db.Tx) error {
		moved, err := tx.UpdateRedemptionStatus(ctx, red.ID, red.Status, status, notes, s.ledger.Now())
		if err != nil {
			return err
		}
		if !moved {
			// Кто-то успел сменить статус раньше
			return common.ErrInvalidTransition
		}
		if !refund {
			return nil
		}

		if err := tx.ReturnCatalogItem(ctx, red.ItemID); err != nil {
			return err
		}
		_, balance, err = s.ledger.Post(ctx, tx, ledger.Entry{
			UserID:      red.UserID,
			Points:      red.Cost,
			IsPositive:  true,
			Category:    models.CategoryRefund,
			Description: fmt.Sprintf("Возврат за отклонённую заявку «%s»", red.ItemName),
			ActorID:     "system",
		})
		return err
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"redemption_id": red.ID,
		"from":          red.Status,
		"to":            status,
		"refund":        refund,
	}).Info("Статус заявки изменён")

	content := fmt.Sprintf("«%s»: %s", red.ItemName, status.Title())
	if notes != nil && *notes != "" {
		content += "\n" + *notes
	}
	if refund {
		content += fmt.Sprintf("\nВозврат: %s\nБаланс: %s",
			common.FormatSignedPoints(red.Cost, true), common.FormatPoints(balance))
		s.afterCommit(ctx, red.UserID)
	}
	s.notifier.Notify(ctx, red.UserID, "Статус заявки изменён", content)
	return nil
}

func (s *Service) afterCommit(ctx context.Context, userID string) {
	if s.evaluator == nil {
		return
	}
	if _, err := s.evaluator.Evaluate(ctx, userID); err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка пересчёта достижений после заявки")
	}
}

// AddItem добавляет позицию в каталог.
func (s *Service) AddItem(ctx context.Context, req NewItem) (*models.CatalogItem, error) {
	if err := common.Validate(req); err != nil {
		return nil, err
	}
	item := &models.CatalogItem{
		Name:              req.Name,
		Description:       req.Description,
		Cost:              req.Cost,
		AvailableQuantity: req.Quantity,
		Role:              req.Role,
		Active:            true,
	}
	if err := s.store.InsertCatalogItem(ctx, item); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"item_id":  item.ID,
		"cost":     item.Cost,
		"quantity": item.AvailableQuantity,
	}).Info("Награда добавлена в каталог")
	return item, nil
}

// Items - активные позиции каталога, доступные роли (пустая роль - все).
func (s *Service) Items(ctx context.Context, role models.Role) ([]*models.CatalogItem, error) {
	items, err := s.store.CatalogItems(ctx, true)
	if err != nil {
		return nil, err
	}
	if role == "" {
		return items, nil
	}
	out := items[:0]
	for _, i := range items {
		if i.AllowedFor(role) {
			out = append(out, i)
		}
	}
	return out, nil
}

// Redemptions - заявки пользователя (пустой userID - все заявки).
func (s *Service) Redemptions(ctx context.Context, userID string) ([]*models.Redemption, error) {
	return s.store.Redemptions(ctx, userID)
}
