// queries.go содержит запросы, общие для пула и транзакции.
// Один и тот же код работает и вне Atomic, и внутри неё.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
)

// querier - общее между *pgxpool.Pool и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	q       querier
	timeout time.Duration
}

func (r *queries) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// notFound превращает pgx.ErrNoRows в доменную ошибку.
func notFound(op string, err, domain error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain
	}
	return common.StoreError(op, err)
}

// collectOne выбирает одну строку в структуру по тегам db.
func collectOne[T any](ctx context.Context, q querier, sql string, args ...any) (*T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[T])
}

func collectAll[T any](ctx context.Context, q querier, sql string, args ...any) ([]*T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[T])
}

const (
	transactionColumns = `id, user_id, points, is_positive, category, description, created_by, created_at`
	memberColumns      = `id, telegram_id, username, full_name, role, created_at, updated_at`
	cardColumns        = `id, code, points, is_used, used_by, used_at, valid_from, valid_until, category,
		assigned_to, max_usage_attempts, usage_cooldown_hours, failed_attempts, created_by, created_at`
	achievementColumns = `id, kind, name, description, image_url, min_points, max_points, reward_points, active, created_at`
	levelColumns       = `id, tier_id, number, name, min_points, max_points, reward_points`
	itemColumns        = `id, name, description, cost, available_quantity, role, active, created_at`
	redemptionColumns  = `id::text AS id, user_id, item_id, item_name, cost, transaction_id, status, notes, created_at, updated_at`
)

// ===============================
// ЖУРНАЛ И БАЛАНС
// ===============================

func (r *queries) CachedBalance(ctx context.Context, userID string) (int64, bool, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var balance int64
	err := r.q.QueryRow(ctx, `SELECT balance FROM balance_cache WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, common.StoreError("cached balance", err)
	}
	return balance, true, nil
}

func (r *queries) SumTransactions(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var sum int64
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN is_positive THEN points ELSE -points END), 0)
		FROM points_transactions
		WHERE user_id = $1
	`, userID).Scan(&sum)
	if err != nil {
		return 0, common.StoreError("sum transactions", err)
	}
	return sum, nil
}

func (r *queries) ListTransactions(ctx context.Context, f models.TransactionFilter) ([]*models.Transaction, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	page := f.Page.Normalize()
	var from, to *time.Time
	if !f.Range.From.IsZero() {
		from = &f.Range.From
	}
	if !f.Range.To.IsZero() {
		to = &f.Range.To
	}

	out, err := collectAll[models.Transaction](ctx, r.q, `
		SELECT `+transactionColumns+`
		FROM points_transactions
		WHERE user_id = $1
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`, f.UserID, from, to, page.Limit, page.Offset)
	if err != nil {
		return nil, common.StoreError("list transactions", err)
	}
	return out, nil
}

func (r *queries) LedgerUsers(ctx context.Context) ([]string, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	rows, err := r.q.Query(ctx, `
		SELECT user_id FROM points_transactions
		UNION
		SELECT user_id FROM balance_cache
		ORDER BY user_id
	`)
	if err != nil {
		return nil, common.StoreError("ledger users", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, common.StoreError("ledger users", err)
	}
	return users, nil
}

func (r *queries) AppendTransaction(ctx context.Context, t *models.Transaction) (int64, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO points_transactions (user_id, points, is_positive, category, description, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, t.UserID, t.Points, t.IsPositive, t.Category, t.Description, t.CreatedBy, createdAt).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return 0, common.StoreError("append transaction", err)
	}
	return t.ID, nil
}

func (r *queries) PutCachedBalance(ctx context.Context, userID string, balance int64, at time.Time) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	_, err := r.q.Exec(ctx, `
		INSERT INTO balance_cache (user_id, balance, refreshed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance, refreshed_at = EXCLUDED.refreshed_at
	`, userID, balance, at)
	return common.StoreError("put cached balance", err)
}

// ===============================
// УЧАСТНИКИ
// ===============================

func (r *queries) MemberByID(ctx context.Context, id string) (*models.Member, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	m, err := collectOne[models.Member](ctx, r.q, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
	if err != nil {
		return nil, notFound("member", err, common.ErrUserNotFound)
	}
	return m, nil
}

func (r *queries) MemberByTelegramID(ctx context.Context, telegramID int64) (*models.Member, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	m, err := collectOne[models.Member](ctx, r.q, `SELECT `+memberColumns+` FROM members WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return nil, notFound("member by telegram", err, common.ErrUserNotFound)
	}
	return m, nil
}

// ===============================
// КАРТЫ
// ===============================

func (r *queries) CardByCode(ctx context.Context, code string) (*models.Card, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	c, err := collectOne[models.Card](ctx, r.q, `SELECT `+cardColumns+` FROM recharge_cards WHERE code = $1`, code)
	if err != nil {
		return nil, notFound("card", err, common.ErrCardNotFound)
	}
	return c, nil
}

// ConsumeCard - условное обновление: выигрывает ровно одна транзакция.
func (r *queries) ConsumeCard(ctx context.Context, cardID int64, userID string, at time.Time) (bool, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
		UPDATE recharge_cards
		SET is_used = TRUE, used_by = $2, used_at = $3
		WHERE id = $1 AND is_used = FALSE
	`, cardID, userID, at)
	if err != nil {
		return false, common.StoreError("consume card", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ===============================
// ДОСТИЖЕНИЯ
// ===============================

func (r *queries) Achievements(ctx context.Context, activeOnly bool) ([]*models.Achievement, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	out, err := collectAll[models.Achievement](ctx, r.q, `
		SELECT `+achievementColumns+`
		FROM achievements
		WHERE NOT $1 OR active
		ORDER BY min_points, id
	`, activeOnly)
	if err != nil {
		return nil, common.StoreError("achievements", err)
	}
	return out, nil
}

func (r *queries) Achievement(ctx context.Context, id int64) (*models.Achievement, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	a, err := collectOne[models.Achievement](ctx, r.q, `SELECT `+achievementColumns+` FROM achievements WHERE id = $1`, id)
	if err != nil {
		return nil, notFound("achievement", err, common.ErrAchievementMissing)
	}
	return a, nil
}

func (r *queries) Levels(ctx context.Context, tierID int64) ([]*models.Level, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	out, err := collectAll[models.Level](ctx, r.q, `
		SELECT `+levelColumns+` FROM tier_levels WHERE tier_id = $1 ORDER BY number
	`, tierID)
	if err != nil {
		return nil, common.StoreError("levels", err)
	}
	return out, nil
}

func (r *queries) UserAchievements(ctx context.Context, userID string) ([]*models.UserAchievement, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	out, err := collectAll[models.UserAchievement](ctx, r.q, `
		SELECT user_id, achievement_id, awarded_by, awarded_at
		FROM user_achievements
		WHERE user_id = $1
		ORDER BY achievement_id
	`, userID)
	if err != nil {
		return nil, common.StoreError("user achievements", err)
	}
	return out, nil
}

func (r *queries) ProgressOf(ctx context.Context, userID string) (*models.Progress, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	p, err := collectOne[models.Progress](ctx, r.q, `
		SELECT user_id, current_tier_id, current_level_id, updated_at
		FROM user_progress
		WHERE user_id = $1
	`, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.Progress{UserID: userID}, nil
	}
	if err != nil {
		return nil, common.StoreError("progress", err)
	}
	return p, nil
}

func (r *queries) InsertUserAchievement(ctx context.Context, ua *models.UserAchievement) (bool, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
		INSERT INTO user_achievements (user_id, achievement_id, awarded_by, awarded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`, ua.UserID, ua.AchievementID, ua.AwardedBy, ua.AwardedAt)
	if err != nil {
		return false, common.StoreError("insert user achievement", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *queries) InsertUserLevel(ctx context.Context, userID string, levelID int64, at time.Time) (bool, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
		INSERT INTO user_levels (user_id, level_id, awarded_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, level_id) DO NOTHING
	`, userID, levelID, at)
	if err != nil {
		return false, common.StoreError("insert user level", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *queries) PutProgress(ctx context.Context, p *models.Progress) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	_, err := r.q.Exec(ctx, `
		INSERT INTO user_progress (user_id, current_tier_id, current_level_id, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			current_tier_id = EXCLUDED.current_tier_id,
			current_level_id = EXCLUDED.current_level_id,
			updated_at = EXCLUDED.updated_at
	`, p.UserID, p.TierID, p.LevelID, p.UpdatedAt)
	return common.StoreError("put progress", err)
}

// ===============================
// КАТАЛОГ
// ===============================

func (r *queries) CatalogItem(ctx context.Context, id int64) (*models.CatalogItem, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	i, err := collectOne[models.CatalogItem](ctx, r.q, `SELECT `+itemColumns+` FROM catalog_items WHERE id = $1`, id)
	if err != nil {
		return nil, notFound("catalog item", err, common.ErrItemNotFound)
	}
	return i, nil
}

func (r *queries) CatalogItems(ctx context.Context, activeOnly bool) ([]*models.CatalogItem, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	out, err := collectAll[models.CatalogItem](ctx, r.q, `
		SELECT `+itemColumns+`
		FROM catalog_items
		WHERE NOT $1 OR active
		ORDER BY cost, id
	`, activeOnly)
	if err != nil {
		return nil, common.StoreError("catalog items", err)
	}
	return out, nil
}

func (r *queries) Redemption(ctx context.Context, id string) (*models.Redemption, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	// Невалидный UUID в PostgreSQL - ошибка приведения типа, а не «не найдено»
	if !validUUID(id) {
		return nil, common.ErrRedemptionNotFound
	}
	red, err := collectOne[models.Redemption](ctx, r.q, `SELECT `+redemptionColumns+` FROM catalog_redemptions WHERE id = $1::uuid`, id)
	if err != nil {
		return nil, notFound("redemption", err, common.ErrRedemptionNotFound)
	}
	return red, nil
}

func (r *queries) Redemptions(ctx context.Context, userID string) ([]*models.Redemption, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	out, err := collectAll[models.Redemption](ctx, r.q, `
		SELECT `+redemptionColumns+`
		FROM catalog_redemptions
		WHERE $1 = '' OR user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, common.StoreError("redemptions", err)
	}
	return out, nil
}

// TakeCatalogItem - условный декремент, остаток не уходит ниже нуля.
func (r *queries) TakeCatalogItem(ctx context.Context, itemID int64) (bool, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
		UPDATE catalog_items
		SET available_quantity = available_quantity - 1
		WHERE id = $1 AND available_quantity > 0
	`, itemID)
	if err != nil {
		return false, common.StoreError("take catalog item", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *queries) ReturnCatalogItem(ctx context.Context, itemID int64) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
		UPDATE catalog_items SET available_quantity = available_quantity + 1 WHERE id = $1
	`, itemID)
	if err != nil {
		return common.StoreError("return catalog item", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrItemNotFound
	}
	return nil
}

func (r *queries) InsertRedemption(ctx context.Context, red *models.Redemption) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	_, err := r.q.Exec(ctx, `
		INSERT INTO catalog_redemptions
			(id, user_id, item_id, item_name, cost, transaction_id, status, notes, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, red.ID, red.UserID, red.ItemID, red.ItemName, red.Cost, red.TransactionID,
		string(red.Status), red.Notes, red.CreatedAt, red.UpdatedAt)
	return common.StoreError("insert redemption", err)
}

// UpdateRedemptionStatus - условный переход: меняет статус, только если он всё ещё from.
func (r *queries) UpdateRedemptionStatus(ctx context.Context, id string, from, to models.RedemptionStatus, notes *string, at time.Time) (bool, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	if !validUUID(id) {
		return false, nil
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE catalog_redemptions
		SET status = $3, notes = COALESCE($4, notes), updated_at = $5
		WHERE id = $1::uuid AND status = $2
	`, id, string(from), string(to), notes, at)
	if err != nil {
		return false, common.StoreError("update redemption status", err)
	}
	return tag.RowsAffected() == 1, nil
}
