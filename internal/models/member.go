// Package models описывает сущности, общие для хранилища и сервисов ядра баллов.
package models

import "time"

// Role - роль пользователя. Влияет только на права, не на механику журнала.
type Role string

const (
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid проверяет, что роль из известного набора.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleParent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// IsStaff - учитель или администратор (может начислять баллы и выпускать карты).
func (r Role) IsStaff() bool {
	return r == RoleTeacher || r == RoleAdmin
}

// Member - пользователь школы, как его видит коллаборатор идентификации.
type Member struct {
	ID         string    `db:"id"`          // Внешний ID пользователя
	TelegramID *int64    `db:"telegram_id"` // Telegram user ID (если привязан)
	Username   string    `db:"username"`    // @username (может быть пустым)
	FullName   string    `db:"full_name"`
	Role       Role      `db:"role"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// DisplayName возвращает отображаемое имя пользователя.
func (m *Member) DisplayName() string {
	if m.FullName != "" {
		return m.FullName
	}
	if m.Username != "" {
		return "@" + m.Username
	}
	return m.ID
}
