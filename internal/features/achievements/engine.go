// Package achievements - движок порогов: значки, медали, ранги с уровнями и эмблемы.
//
// Все четыре вида - одно определение с дискриминатором Kind и общим
// диапазоном [min_points, max_points). Значки, медали и ранги выдаются
// автоматически по балансу; эмблемы только вручную через Award.
package achievements

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/db"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/ledger"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/notify"
)

// DefaultMaxPasses - проходов за один Evaluate, если не задано иное.
const DefaultMaxPasses = 2

// Engine выдаёт достижения по балансу.
type Engine struct {
	store     db.Store
	ledger    *ledger.Service
	notifier  notify.Notifier
	maxPasses int
}

// NewEngine создаёт движок. maxPasses < 1 заменяется на DefaultMaxPasses.
func NewEngine(store db.Store, ledgerSvc *ledger.Service, notifier notify.Notifier, maxPasses int) *Engine {
	if maxPasses < 1 {
		maxPasses = DefaultMaxPasses
	}
	return &Engine{store: store, ledger: ledgerSvc, notifier: notifier, maxPasses: maxPasses}
}

// reward - начисление, сделанное движком (для уведомления после коммита).
type reward struct {
	points int64
	reason string
}

// outcome - итог одного Evaluate.
type outcome struct {
	granted []*models.Achievement
	rewards []reward
	balance int64
}

// Evaluate выдаёт пользователю все ещё не полученные достижения, в диапазон
// которых попадает баланс, и переставляет указатель текущего ранга/уровня.
// Если награда за уровень подняла баланс, проход повторяется (не больше maxPasses).
// Повторный вызов без изменения баланса ничего не выдаёт.
func (e *Engine) Evaluate(ctx context.Context, userID string) ([]int64, error) {
	var out outcome
	err := e.store.Atomic(ctx, userID, func(ctx context.Context, tx db.Tx) error {
		out = outcome{}
		for pass := 1; pass <= e.maxPasses; pass++ {
			credited, err := e.pass(ctx, tx, userID, &out)
			if err != nil {
				return err
			}
			if !credited {
				break
			}
			if pass == e.maxPasses {
				log.WithFields(log.Fields{
					"user_id": userID,
					"passes":  pass,
				}).Warn("Достигнут лимит проходов движка порогов")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(out.granted))
	for _, a := range out.granted {
		ids = append(ids, a.ID)
	}
	if len(ids) > 0 || len(out.rewards) > 0 {
		log.WithFields(log.Fields{
			"user_id": userID,
			"granted": ids,
			"balance": out.balance,
		}).Info("Достижения пересчитаны")
	}
	e.notifyOutcome(ctx, userID, &out)
	return ids, nil
}

// pass - один проход движка внутри транзакции. Возвращает true,
// если было начисление и баланс изменился.
func (e *Engine) pass(ctx context.Context, tx db.Tx, userID string, out *outcome) (bool, error) {
	balance, err := e.ledger.Balance(ctx, tx, userID)
	if err != nil {
		return false, err
	}
	out.balance = balance

	defs, err := tx.Achievements(ctx, true)
	if err != nil {
		return false, err
	}
	held, err := e.heldSet(ctx, tx, userID)
	if err != nil {
		return false, err
	}

	now := e.ledger.Now()
	credited := false
	var bestTier *models.Achievement

	for _, def := range defs {
		if !def.Kind.RangeGated() || !def.Range().Contains(balance) {
			continue
		}
		if def.Kind == models.KindTier && (bestTier == nil || def.MinPoints > bestTier.MinPoints) {
			bestTier = def
		}
		if _, ok := held[def.ID]; ok {
			continue
		}

		inserted, err := tx.InsertUserAchievement(ctx, &models.UserAchievement{
			UserID:        userID,
			AchievementID: def.ID,
			AwardedBy:     "system",
			AwardedAt:     now,
		})
		if err != nil {
			return false, err
		}
		if !inserted {
			continue
		}
		held[def.ID] = struct{}{}
		out.granted = append(out.granted, def)

		// Сам ранг тоже может нести награду за вход в него
		if def.Kind == models.KindTier && def.RewardPoints > 0 {
			if err := e.credit(ctx, tx, userID, def.RewardPoints, "Награда за ранг «"+def.Name+"»", out); err != nil {
				return false, err
			}
			credited = true
		}
	}

	level, err := e.movePointer(ctx, tx, userID, bestTier, balance)
	if err != nil {
		return false, err
	}

	if level != nil && level.RewardPoints > 0 {
		paid, err := tx.InsertUserLevel(ctx, userID, level.ID, now)
		if err != nil {
			return false, err
		}
		if paid {
			reason := fmt.Sprintf("Награда за уровень %d «%s» ранга «%s»", level.Number, level.Name, bestTier.Name)
			if err := e.credit(ctx, tx, userID, level.RewardPoints, reason, out); err != nil {
				return false, err
			}
			credited = true
		}
	}

	if credited {
		balance, err := e.ledger.Refresh(ctx, tx, userID)
		if err != nil {
			return false, err
		}
		out.balance = balance
	}
	return credited, nil
}

// movePointer заменяет указатель текущего ранга и уровня. Старое значение
// не сохраняется: это не журнал. Возвращает выбранный уровень или nil.
func (e *Engine) movePointer(ctx context.Context, tx db.Tx, userID string, tier *models.Achievement, balance int64) (*models.Level, error) {
	p := &models.Progress{UserID: userID, UpdatedAt: e.ledger.Now()}
	var level *models.Level

	if tier != nil {
		tierID := tier.ID
		p.TierID = &tierID

		levels, err := tx.Levels(ctx, tier.ID)
		if err != nil {
			return nil, err
		}
		for _, l := range levels {
			if l.Range().Contains(balance) && (level == nil || l.Number > level.Number) {
				level = l
			}
		}
		if level != nil {
			levelID := level.ID
			p.LevelID = &levelID
		}
	}

	prev, err := tx.ProgressOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if equalID(prev.TierID, p.TierID) && equalID(prev.LevelID, p.LevelID) && !prev.UpdatedAt.IsZero() {
		return level, nil
	}
	if err := tx.PutProgress(ctx, p); err != nil {
		return nil, err
	}
	return level, nil
}

func (e *Engine) credit(ctx context.Context, tx db.Tx, userID string, points int64, reason string, out *outcome) error {
	_, err := e.ledger.Append(ctx, tx, ledger.Entry{
		UserID:      userID,
		Points:      points,
		IsPositive:  true,
		Category:    models.CategoryTierReward,
		Description: reason,
		ActorID:     "system",
	})
	if err != nil {
		return err
	}
	out.rewards = append(out.rewards, reward{points: points, reason: reason})
	return nil
}

func (e *Engine) heldSet(ctx context.Context, r db.Reader, userID string) (map[int64]struct{}, error) {
	held, err := r.UserAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := make(map[int64]struct{}, len(held))
	for _, ua := range held {
		set[ua.AchievementID] = struct{}{}
	}
	return set, nil
}

func (e *Engine) notifyOutcome(ctx context.Context, userID string, out *outcome) {
	for _, a := range out.granted {
		e.notifier.Notify(ctx, userID, "Новое достижение: "+a.Name, a.Kind.Title()+". "+a.Description)
	}
	for _, r := range out.rewards {
		e.notifier.Notify(ctx, userID, "Начислены баллы",
			fmt.Sprintf("%s. %s\nБаланс: %s", common.FormatSignedPoints(r.points, true), r.reason, common.FormatPoints(out.balance)))
	}
}

func equalID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
