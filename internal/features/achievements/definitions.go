package achievements

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/db"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/features/ledger"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
)

// Definition - новое определение достижения.
type Definition struct {
	Kind         models.AchievementKind `validate:"required,oneof=badge medal tier emblem"`
	Name         string                 `validate:"required,max=255"`
	Description  string                 `validate:"max=2000"`
	ImageURL     string                 `validate:"omitempty,url"`
	MinPoints    int64                  `validate:"gte=0"`
	MaxPoints    *int64
	RewardPoints int64 `validate:"gte=0"`
}

// LevelDefinition - уровень внутри ранга.
type LevelDefinition struct {
	TierID       int64  `validate:"required"`
	Number       int    `validate:"gte=1"`
	Name         string `validate:"required,max=255"`
	MinPoints    int64  `validate:"gte=0"`
	MaxPoints    *int64
	RewardPoints int64 `validate:"gte=0"`
}

// Define создаёт определение достижения.
func (e *Engine) Define(ctx context.Context, d Definition) (*models.Achievement, error) {
	if err := common.Validate(d); err != nil {
		return nil, err
	}
	a := &models.Achievement{
		Kind:         d.Kind,
		Name:         d.Name,
		Description:  d.Description,
		ImageURL:     d.ImageURL,
		MinPoints:    d.MinPoints,
		MaxPoints:    d.MaxPoints,
		RewardPoints: d.RewardPoints,
		Active:       true,
	}
	if !a.Range().Valid() {
		return nil, fmt.Errorf("%w: max_points должен быть больше min_points", common.ErrInvalidInput)
	}
	if err := e.store.InsertAchievement(ctx, a); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"achievement_id": a.ID,
		"kind":           a.Kind,
		"name":           a.Name,
	}).Info("Достижение создано")
	return a, nil
}

// DefineLevel добавляет уровень к рангу. Диапазон уровня должен лежать внутри диапазона ранга.
func (e *Engine) DefineLevel(ctx context.Context, d LevelDefinition) (*models.Level, error) {
	if err := common.Validate(d); err != nil {
		return nil, err
	}
	tier, err := e.store.Achievement(ctx, d.TierID)
	if err != nil {
		return nil, err
	}
	if tier.Kind != models.KindTier {
		return nil, fmt.Errorf("%w: уровни бывают только у рангов", common.ErrInvalidInput)
	}

	l := &models.Level{
		TierID:       d.TierID,
		Number:       d.Number,
		Name:         d.Name,
		MinPoints:    d.MinPoints,
		MaxPoints:    d.MaxPoints,
		RewardPoints: d.RewardPoints,
	}
	if !l.Range().Valid() || !within(l.Range(), tier.Range()) {
		return nil, fmt.Errorf("%w: диапазон уровня вне диапазона ранга", common.ErrInvalidInput)
	}
	if err := e.store.InsertLevel(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// within - лежит ли inner целиком внутри outer.
func within(inner, outer models.PointRange) bool {
	if inner.Min < outer.Min {
		return false
	}
	if outer.Max == nil {
		return true
	}
	return inner.Max != nil && *inner.Max <= *outer.Max
}

// List возвращает определения достижений.
func (e *Engine) List(ctx context.Context, activeOnly bool) ([]*models.Achievement, error) {
	return e.store.Achievements(ctx, activeOnly)
}

// Held возвращает достижения пользователя вместе с определениями.
func (e *Engine) Held(ctx context.Context, userID string) ([]*models.Achievement, error) {
	held, err := e.store.UserAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Achievement, 0, len(held))
	for _, ua := range held {
		a, err := e.store.Achievement(ctx, ua.AchievementID)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Standing - текущий ранг и уровень пользователя.
type Standing struct {
	Tier  *models.Achievement
	Level *models.Level
}

// Progress возвращает текущий ранг и уровень (nil, если ещё нет).
func (e *Engine) Progress(ctx context.Context, userID string) (*Standing, error) {
	p, err := e.store.ProgressOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	st := &Standing{}
	if p.TierID == nil {
		return st, nil
	}
	if st.Tier, err = e.store.Achievement(ctx, *p.TierID); err != nil {
		return nil, err
	}
	if p.LevelID == nil {
		return st, nil
	}
	levels, err := e.store.Levels(ctx, *p.TierID)
	if err != nil {
		return nil, err
	}
	for _, l := range levels {
		if l.ID == *p.LevelID {
			st.Level = l
			break
		}
	}
	return st, nil
}

// Award вручную выдаёт достижение любого вида (чаще всего эмблему).
// reward_points начисляются один раз - при первой выдаче.
// Повторная выдача не ошибка: возвращает false.
func (e *Engine) Award(ctx context.Context, userID string, achievementID int64, actorID string) (bool, error) {
	def, err := e.store.Achievement(ctx, achievementID)
	if err != nil {
		return false, err
	}
	if !def.Active {
		return false, common.ErrAchievementMissing
	}
	if _, err := e.store.MemberByID(ctx, userID); err != nil {
		return false, err
	}

	var (
		inserted bool
		balance  int64
	)
	err = e.store.Atomic(ctx, userID, func(ctx context.Context, tx db.Tx) error {
		var err error
		inserted, err = tx.InsertUserAchievement(ctx, &models.UserAchievement{
			UserID:        userID,
			AchievementID: def.ID,
			AwardedBy:     actorID,
			AwardedAt:     e.ledger.Now(),
		})
		if err != nil || !inserted || def.RewardPoints <= 0 {
			return err
		}
		_, balance, err = e.ledger.Post(ctx, tx, ledger.Entry{
			UserID:      userID,
			Points:      def.RewardPoints,
			IsPositive:  true,
			Category:    models.CategoryAchievement,
			Description: def.Kind.Title() + " «" + def.Name + "»",
			ActorID:     actorID,
		})
		return err
	})
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	log.WithFields(log.Fields{
		"user_id":        userID,
		"achievement_id": def.ID,
		"actor":          actorID,
	}).Info("Достижение выдано вручную")

	content := def.Kind.Title() + ". " + def.Description
	if def.RewardPoints > 0 {
		content += fmt.Sprintf("\n%s\nБаланс: %s",
			common.FormatSignedPoints(def.RewardPoints, true), common.FormatPoints(balance))
	}
	e.notifier.Notify(ctx, userID, "Новое достижение: "+def.Name, content)

	// Награда могла поднять баланс в новый диапазон
	if def.RewardPoints > 0 {
		if _, err := e.Evaluate(ctx, userID); err != nil {
			log.WithError(err).WithField("user_id", userID).Error("Ошибка пересчёта достижений после выдачи")
		}
	}
	return true, nil
}
