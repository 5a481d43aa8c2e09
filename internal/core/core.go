// Package core - внешние операции ядра баллов для окружающих слоёв
// (бот, админка, импорт). Сам ничего не хранит и лишь связывает сервисы.
package core

import (
	"context"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/achievements"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/cards"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/catalog"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/ledger"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/members"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
)

// GrantRequest - ручное начисление или списание.
type GrantRequest = ledger.GrantRequest

// Core собирает все сервисы ядра.
type Core struct {
	Members      *members.Service
	Ledger       *ledger.Service
	Cards        *cards.Service
	Achievements *achievements.Engine
	Catalog      *catalog.Service
}

// GrantPoints начисляет или списывает баллы и возвращает ID транзакции.
// После записи пересчитываются достижения и уходит уведомление.
func (c *Core) GrantPoints(ctx context.Context, req GrantRequest) (int64, error) {
	return c.Ledger.Grant(ctx, req)
}

// GetBalance - текущий баланс пользователя.
func (c *Core) GetBalance(ctx context.Context, userID string) (int64, error) {
	return c.Ledger.GetCached(ctx, userID)
}

// RedeemCard активирует карту пополнения.
func (c *Core) RedeemCard(ctx context.Context, code, userID string) (*cards.Result, error) {
	return c.Cards.Redeem(ctx, code, userID)
}

// ListTransactions - история пользователя за период, постранично.
func (c *Core) ListTransactions(ctx context.Context, userID string, dr models.DateRange, page models.Page) ([]*models.Transaction, error) {
	return c.Ledger.List(ctx, userID, dr, page)
}

// EvaluateAchievements пересчитывает достижения и возвращает новые.
func (c *Core) EvaluateAchievements(ctx context.Context, userID string) ([]int64, error) {
	return c.Achievements.Evaluate(ctx, userID)
}

// RedeemCatalogItem оформляет заявку на награду.
func (c *Core) RedeemCatalogItem(ctx context.Context, userID string, itemID int64) (*catalog.Receipt, error) {
	return c.Catalog.Redeem(ctx, userID, itemID)
}

// SetRedemptionStatus меняет статус заявки (выдача наград персоналом).
func (c *Core) SetRedemptionStatus(ctx context.Context, redemptionID string, status models.RedemptionStatus, notes *string) error {
	return c.Catalog.SetStatus(ctx, redemptionID, status, notes)
}
