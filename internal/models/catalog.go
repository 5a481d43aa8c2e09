package models

import "time"

// CatalogItem - награда из каталога с ограниченным количеством.
type CatalogItem struct {
	ID                int64     `db:"id"`
	Name              string    `db:"name"`
	Description       string    `db:"description"`
	Cost              int64     `db:"cost"`
	AvailableQuantity int       `db:"available_quantity"` // Никогда не уходит ниже нуля
	Role              *Role     `db:"role"`               // Если задано - только для этой роли
	Active            bool      `db:"active"`
	CreatedAt         time.Time `db:"created_at"`
}

// AllowedFor проверяет ограничение по роли.
func (i *CatalogItem) AllowedFor(role Role) bool {
	return i.Role == nil || *i.Role == role
}

// RedemptionStatus - статус заявки на выдачу награды.
type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionApproved  RedemptionStatus = "approved"
	RedemptionRejected  RedemptionStatus = "rejected"
	RedemptionDelivered RedemptionStatus = "delivered"
)

// Valid проверяет статус.
func (s RedemptionStatus) Valid() bool {
	switch s {
	case RedemptionPending, RedemptionApproved, RedemptionRejected, RedemptionDelivered:
		return true
	}
	return false
}

// CanMoveTo: pending → approved/rejected, approved → delivered.
func (s RedemptionStatus) CanMoveTo(next RedemptionStatus) bool {
	switch s {
	case RedemptionPending:
		return next == RedemptionApproved || next == RedemptionRejected
	case RedemptionApproved:
		return next == RedemptionDelivered
	}
	return false
}

// Title - статус по-русски для сообщений пользователю.
func (s RedemptionStatus) Title() string {
	switch s {
	case RedemptionPending:
		return "ожидает рассмотрения"
	case RedemptionApproved:
		return "одобрена"
	case RedemptionRejected:
		return "отклонена"
	case RedemptionDelivered:
		return "выдана"
	}
	return string(s)
}

// Redemption - заявка на награду. Баллы списываются при создании заявки.
type Redemption struct {
	ID            string           `db:"id"`
	UserID        string           `db:"user_id"`
	ItemID        int64            `db:"item_id"`
	ItemName      string           `db:"item_name"`
	Cost          int64            `db:"cost"`
	TransactionID int64            `db:"transaction_id"`
	Status        RedemptionStatus `db:"status"`
	Notes         *string          `db:"notes"`
	CreatedAt     time.Time        `db:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at"`
}
