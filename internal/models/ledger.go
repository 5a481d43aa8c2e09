package models

import "time"

// Категории транзакций
const (
	CategoryRecharge    = "recharge"    // Активация карты пополнения
	CategoryCatalog     = "catalog"     // Покупка награды из каталога
	CategoryTierReward  = "tier_reward" // Награда за новый уровень
	CategoryAchievement = "achievement" // Ручная выдача достижения (эмблемы)
	CategoryAdjustment  = "adjustment"  // Корректировка учителем/админом
	CategoryRefund      = "refund"      // Возврат за отклонённую заявку
)

// Transaction - одна неизменяемая запись журнала баллов.
// Points всегда положительное, знак хранится отдельно в IsPositive.
type Transaction struct {
	ID          int64     `db:"id"`
	UserID      string    `db:"user_id"`
	Points      int64     `db:"points"`
	IsPositive  bool      `db:"is_positive"`
	Category    *string   `db:"category"`
	Description string    `db:"description"`
	CreatedBy   string    `db:"created_by"` // Кто инициировал: сам пользователь, учитель или "system"
	CreatedAt   time.Time `db:"created_at"`
}

// Signed возвращает изменение баланса со знаком.
func (t *Transaction) Signed() int64 {
	if t.IsPositive {
		return t.Points
	}
	return -t.Points
}

// CategoryName возвращает категорию или пустую строку.
func (t *Transaction) CategoryName() string {
	if t.Category == nil {
		return ""
	}
	return *t.Category
}

// BalanceCache - материализованный баланс. Всегда сводится к пересчёту журнала.
type BalanceCache struct {
	UserID      string    `db:"user_id"`
	Balance     int64     `db:"balance"`
	RefreshedAt time.Time `db:"refreshed_at"`
}

// DateRange - полуоткрытый интервал [From, To). Нулевые границы означают «без ограничения».
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains проверяет, попадает ли момент в интервал.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// Page - параметры постраничной выдачи.
type Page struct {
	Limit  int
	Offset int
}

// Normalize подставляет значения по умолчанию и обрезает лимит.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// TransactionFilter - выборка транзакций пользователя.
type TransactionFilter struct {
	UserID string
	Range  DateRange
	Page   Page
}
