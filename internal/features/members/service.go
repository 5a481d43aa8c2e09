// Package members - коллаборатор идентификации: кто пользователь и какая у него роль.
// Роль влияет только на права (каталог, команды персонала), но не на механику журнала.
package members

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/db"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
)

// RegisterRequest - данные для регистрации или обновления участника.
type RegisterRequest struct {
	ID         string      `validate:"required,max=64"`
	TelegramID *int64      `validate:"omitempty,gt=0"`
	Username   string      `validate:"max=255"`
	FullName   string      `validate:"max=255"`
	Role       models.Role `validate:"required,oneof=student parent teacher admin"`
}

// Service управляет участниками.
type Service struct {
	store db.Store
}

// NewService создаёт новый сервис участников.
func NewService(store db.Store) *Service {
	return &Service{store: store}
}

// Register создаёт участника или обновляет существующего.
// Повторная регистрация с тем же ID меняет данные и роль, но не дату создания.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.Member, error) {
	if err := common.Validate(req); err != nil {
		return nil, err
	}

	m := &models.Member{
		ID:         req.ID,
		TelegramID: req.TelegramID,
		Username:   req.Username,
		FullName:   req.FullName,
		Role:       req.Role,
	}
	if err := s.store.UpsertMember(ctx, m); err != nil {
		return nil, fmt.Errorf("ошибка регистрации участника: %w", err)
	}

	log.WithFields(log.Fields{
		"user_id": m.ID,
		"role":    m.Role,
	}).Info("Участник зарегистрирован")
	return m, nil
}

// Touch обновляет имя и username участника из Telegram, если они изменились.
// Незарегистрированный пользователь не создаётся.
func (s *Service) Touch(ctx context.Context, telegramID int64, username, fullName string) (*models.Member, error) {
	m, err := s.store.MemberByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if m.Username == username && (fullName == "" || m.FullName == fullName) {
		return m, nil
	}

	m.Username = username
	if fullName != "" {
		m.FullName = fullName
	}
	if err := s.store.UpsertMember(ctx, m); err != nil {
		return nil, fmt.Errorf("ошибка обновления участника: %w", err)
	}
	log.WithField("user_id", m.ID).Debug("Данные участника обновлены")
	return m, nil
}

// Get возвращает участника по ID или common.ErrUserNotFound.
func (s *Service) Get(ctx context.Context, id string) (*models.Member, error) {
	return s.store.MemberByID(ctx, id)
}

// ByTelegramID возвращает участника, привязанного к Telegram-аккаунту.
func (s *Service) ByTelegramID(ctx context.Context, telegramID int64) (*models.Member, error) {
	return s.store.MemberByTelegramID(ctx, telegramID)
}

// Role возвращает роль участника.
func (s *Service) Role(ctx context.Context, id string) (models.Role, error) {
	m, err := s.store.MemberByID(ctx, id)
	if err != nil {
		return "", err
	}
	return m.Role, nil
}

// Exists проверяет, зарегистрирован ли участник.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.store.MemberByID(ctx, id)
	if errors.Is(err, common.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
