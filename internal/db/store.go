// Package db описывает хранилище ядра баллов.
// Реализации: postgres (боевая, pgx) и memory (локальный запуск и тесты).
//
// Главное правило: всё, что меняет журнал пользователя, выполняется внутри
// Atomic с его userID - одна транзакция, под блокировкой этого пользователя.
// Внутри fn работать только через tx: обращение к самому Store из fn
// в memory-реализации приведёт к взаимоблокировке.
package db

import (
	"context"
	"time"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
)

// Reader - запросы на чтение. Доступны и вне транзакции, и внутри неё.
type Reader interface {
	// --- Журнал и баланс ---

	// CachedBalance возвращает материализованный баланс; ok=false, если строки ещё нет.
	CachedBalance(ctx context.Context, userID string) (balance int64, ok bool, err error)
	// SumTransactions - полный пересчёт: сумма положительных минус сумма отрицательных.
	SumTransactions(ctx context.Context, userID string) (int64, error)
	// ListTransactions - транзакции пользователя от новых к старым.
	ListTransactions(ctx context.Context, f models.TransactionFilter) ([]*models.Transaction, error)
	// LedgerUsers - все пользователи, у которых есть транзакции или строка кэша.
	LedgerUsers(ctx context.Context) ([]string, error)

	// --- Участники ---

	MemberByID(ctx context.Context, id string) (*models.Member, error)
	MemberByTelegramID(ctx context.Context, telegramID int64) (*models.Member, error)

	// --- Карты ---

	CardByCode(ctx context.Context, code string) (*models.Card, error)

	// --- Достижения ---

	Achievements(ctx context.Context, activeOnly bool) ([]*models.Achievement, error)
	Achievement(ctx context.Context, id int64) (*models.Achievement, error)
	Levels(ctx context.Context, tierID int64) ([]*models.Level, error)
	UserAchievements(ctx context.Context, userID string) ([]*models.UserAchievement, error)
	// ProgressOf возвращает пустой Progress, если записи нет.
	ProgressOf(ctx context.Context, userID string) (*models.Progress, error)

	// --- Каталог ---

	CatalogItem(ctx context.Context, id int64) (*models.CatalogItem, error)
	CatalogItems(ctx context.Context, activeOnly bool) ([]*models.CatalogItem, error)
	Redemption(ctx context.Context, id string) (*models.Redemption, error)
	Redemptions(ctx context.Context, userID string) ([]*models.Redemption, error)
}

// Tx - операции внутри одной транзакции хранилища.
type Tx interface {
	Reader

	// AppendTransaction - единственная запись в журнал. Заполняет ID и CreatedAt.
	AppendTransaction(ctx context.Context, t *models.Transaction) (int64, error)
	// PutCachedBalance перезаписывает кэш баланса (только из Refresh).
	PutCachedBalance(ctx context.Context, userID string, balance int64, at time.Time) error

	// ConsumeCard - условное обновление is_used=false → true.
	// false означает, что карту уже кто-то использовал.
	ConsumeCard(ctx context.Context, cardID int64, userID string, at time.Time) (bool, error)

	// InsertUserAchievement вставляет, если у пользователя ещё нет этого достижения.
	InsertUserAchievement(ctx context.Context, ua *models.UserAchievement) (bool, error)
	// InsertUserLevel отмечает выплату награды за уровень; false - уже выплачена.
	InsertUserLevel(ctx context.Context, userID string, levelID int64, at time.Time) (bool, error)
	PutProgress(ctx context.Context, p *models.Progress) error

	// TakeCatalogItem уменьшает остаток на 1, только если он больше нуля.
	TakeCatalogItem(ctx context.Context, itemID int64) (bool, error)
	ReturnCatalogItem(ctx context.Context, itemID int64) error
	InsertRedemption(ctx context.Context, r *models.Redemption) error
	// UpdateRedemptionStatus меняет статус, только если текущий равен from.
	UpdateRedemptionStatus(ctx context.Context, id string, from, to models.RedemptionStatus, notes *string, at time.Time) (bool, error)
}

// Store - хранилище целиком.
type Store interface {
	Reader

	// Atomic выполняет fn в одной транзакции. Если userID не пустой,
	// транзакция держит блокировку журнала этого пользователя до своего конца.
	// Ошибка fn откатывает всё.
	Atomic(ctx context.Context, userID string, fn func(ctx context.Context, tx Tx) error) error

	UpsertMember(ctx context.Context, m *models.Member) error

	InsertCards(ctx context.Context, cards []*models.Card) error
	// RecordCardFailure пишет неудачную попытку и увеличивает failed_attempts,
	// если у этого пользователя не было учтённой попытки по карте за cooldown.
	RecordCardFailure(ctx context.Context, a *models.CardAttempt, cooldown time.Duration) (counted bool, err error)
	PurgeCardAttempts(ctx context.Context, before time.Time) (int64, error)

	InsertAchievement(ctx context.Context, a *models.Achievement) error
	InsertLevel(ctx context.Context, l *models.Level) error

	InsertCatalogItem(ctx context.Context, item *models.CatalogItem) error

	Close()
}
