package models

import "time"

// CardState - производное состояние карты пополнения.
type CardState string

const (
	CardActive      CardState = "active"
	CardUsed        CardState = "used"      // терминальное
	CardExhausted   CardState = "exhausted" // терминальное: попытки исчерпаны
	CardExpired     CardState = "expired"   // терминальное: истёк срок
	CardNotYetValid CardState = "not_yet_valid"
)

// Card - карта пополнения баллов.
type Card struct {
	ID                 int64      `db:"id"`
	Code               string     `db:"code"`
	Points             int64      `db:"points"` // Номинал
	IsUsed             bool       `db:"is_used"`
	UsedBy             *string    `db:"used_by"`
	UsedAt             *time.Time `db:"used_at"`
	ValidFrom          *time.Time `db:"valid_from"`
	ValidUntil         *time.Time `db:"valid_until"`
	Category           *string    `db:"category"`
	AssignedTo         *string    `db:"assigned_to"` // Если задан - активировать может только он
	MaxUsageAttempts   int        `db:"max_usage_attempts"`
	UsageCooldownHours int        `db:"usage_cooldown_hours"`
	FailedAttempts     int        `db:"failed_attempts"`
	CreatedBy          string     `db:"created_by"`
	CreatedAt          time.Time  `db:"created_at"`
}

// Expired - истёк ли срок действия на момент now.
func (c *Card) Expired(now time.Time) bool {
	return c.ValidUntil != nil && !now.Before(*c.ValidUntil)
}

// NotYetValid - карта ещё не вступила в силу.
func (c *Card) NotYetValid(now time.Time) bool {
	return c.ValidFrom != nil && now.Before(*c.ValidFrom)
}

// Locked - исчерпан лимит неудачных попыток.
func (c *Card) Locked() bool {
	return c.MaxUsageAttempts > 0 && c.FailedAttempts >= c.MaxUsageAttempts
}

// State возвращает состояние карты на момент now.
func (c *Card) State(now time.Time) CardState {
	switch {
	case c.IsUsed:
		return CardUsed
	case c.Expired(now):
		return CardExpired
	case c.Locked():
		return CardExhausted
	case c.NotYetValid(now):
		return CardNotYetValid
	}
	return CardActive
}

// Cooldown - окно, в котором повторные неудачи одного пользователя считаются одной.
func (c *Card) Cooldown() time.Duration {
	return time.Duration(c.UsageCooldownHours) * time.Hour
}

// CardAttempt - неудачная попытка активации карты.
type CardAttempt struct {
	CardID    int64     `db:"card_id"`
	UserID    string    `db:"user_id"`
	Reason    string    `db:"reason"`
	Counted   bool      `db:"counted"` // Увеличила ли failed_attempts
	CreatedAt time.Time `db:"created_at"`
}
