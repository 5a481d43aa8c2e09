package models

import "time"

// AchievementKind - вид достижения.
type AchievementKind string

const (
	KindBadge  AchievementKind = "badge"
	KindMedal  AchievementKind = "medal"
	KindTier   AchievementKind = "tier"
	KindEmblem AchievementKind = "emblem" // Выдаётся вручную, начисляет баллы
)

// Valid проверяет вид достижения.
func (k AchievementKind) Valid() bool {
	switch k {
	case KindBadge, KindMedal, KindTier, KindEmblem:
		return true
	}
	return false
}

// RangeGated - выдаётся ли достижение автоматически по диапазону баланса.
func (k AchievementKind) RangeGated() bool {
	return k != KindEmblem && k.Valid()
}

// Title - название вида для сообщений пользователю.
func (k AchievementKind) Title() string {
	switch k {
	case KindBadge:
		return "Значок"
	case KindMedal:
		return "Медаль"
	case KindTier:
		return "Ранг"
	case KindEmblem:
		return "Эмблема"
	}
	return "Достижение"
}

// PointRange - полуоткрытый диапазон [Min, Max). Max == nil - без верхней границы.
type PointRange struct {
	Min int64
	Max *int64
}

// Contains проверяет, попадает ли баланс в диапазон.
func (r PointRange) Contains(balance int64) bool {
	if balance < r.Min {
		return false
	}
	return r.Max == nil || balance < *r.Max
}

// Valid - верхняя граница (если есть) строго больше нижней.
func (r PointRange) Valid() bool {
	return r.Max == nil || *r.Max > r.Min
}

// Achievement - определение значка, медали, ранга (tier) или эмблемы.
type Achievement struct {
	ID           int64           `db:"id"`
	Kind         AchievementKind `db:"kind"`
	Name         string          `db:"name"`
	Description  string          `db:"description"`
	ImageURL     string          `db:"image_url"`
	MinPoints    int64           `db:"min_points"`
	MaxPoints    *int64          `db:"max_points"`
	RewardPoints int64           `db:"reward_points"` // Для эмблем и ручной выдачи
	Active       bool            `db:"active"`
	CreatedAt    time.Time       `db:"created_at"`
}

// Range возвращает диапазон баланса достижения.
func (a *Achievement) Range() PointRange {
	return PointRange{Min: a.MinPoints, Max: a.MaxPoints}
}

// Level - уровень внутри ранга.
type Level struct {
	ID           int64  `db:"id"`
	TierID       int64  `db:"tier_id"`
	Number       int    `db:"number"`
	Name         string `db:"name"`
	MinPoints    int64  `db:"min_points"`
	MaxPoints    *int64 `db:"max_points"`
	RewardPoints int64  `db:"reward_points"` // Начисляется один раз при достижении уровня
}

// Range возвращает диапазон баланса уровня.
func (l *Level) Range() PointRange {
	return PointRange{Min: l.MinPoints, Max: l.MaxPoints}
}

// UserAchievement - выданное пользователю достижение (не более одного на пару).
type UserAchievement struct {
	UserID        string    `db:"user_id"`
	AchievementID int64     `db:"achievement_id"`
	AwardedBy     string    `db:"awarded_by"`
	AwardedAt     time.Time `db:"awarded_at"`
}

// Progress - текущий ранг и уровень пользователя. Перезаписывается, а не копится.
type Progress struct {
	UserID    string    `db:"user_id"`
	TierID    *int64    `db:"current_tier_id"`
	LevelID   *int64    `db:"current_level_id"`
	UpdatedAt time.Time `db:"updated_at"`
}
