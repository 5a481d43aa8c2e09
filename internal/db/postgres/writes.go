// writes.go - записи вне журнала баллов: участники, выпуск карт,
// учёт неудачных попыток и справочники достижений и каталога.
package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
)

func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// UpsertMember создаёт участника или обновляет его данные.
// Используем ON CONFLICT, чтобы повторная регистрация не падала.
func (s *Store) UpsertMember(ctx context.Context, m *models.Member) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	err := s.pool.QueryRow(ctx, `
		INSERT INTO members (id, telegram_id, username, full_name, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			telegram_id = EXCLUDED.telegram_id,
			username = EXCLUDED.username,
			full_name = EXCLUDED.full_name,
			role = EXCLUDED.role,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`, m.ID, m.TelegramID, m.Username, m.FullName, string(m.Role)).Scan(&m.CreatedAt, &m.UpdatedAt)
	return common.StoreError("upsert member", err)
}

// InsertCards выпускает пачку карт одной транзакцией.
// Дубликат кода откатывает всю пачку.
func (s *Store) InsertCards(ctx context.Context, cards []*models.Card) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return common.StoreError("begin", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, c := range cards {
		batch.Queue(`
			INSERT INTO recharge_cards
				(code, points, valid_from, valid_until, category, assigned_to,
				 max_usage_attempts, usage_cooldown_hours, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id, created_at
		`, c.Code, c.Points, c.ValidFrom, c.ValidUntil, c.Category, c.AssignedTo,
			c.MaxUsageAttempts, c.UsageCooldownHours, c.CreatedBy)
	}

	results := tx.SendBatch(ctx, batch)
	for _, c := range cards {
		if err := results.QueryRow().Scan(&c.ID, &c.CreatedAt); err != nil {
			results.Close()
			return common.StoreError("insert cards", err)
		}
	}
	if err := results.Close(); err != nil {
		return common.StoreError("insert cards", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return common.StoreError("commit", err)
	}
	return nil
}

// RecordCardFailure пишет попытку и, если за cooldown у этого пользователя
// не было учтённой попытки по карте, увеличивает failed_attempts.
// Строка карты блокируется FOR UPDATE, чтобы параллельные ошибки
// одного пользователя не посчитались дважды.
func (s *Store) RecordCardFailure(ctx context.Context, a *models.CardAttempt, cooldown time.Duration) (bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, common.StoreError("begin", err)
	}
	defer tx.Rollback(ctx)

	var cardID int64
	if err := tx.QueryRow(ctx,
		`SELECT id FROM recharge_cards WHERE id = $1 FOR UPDATE`, a.CardID,
	).Scan(&cardID); err != nil {
		return false, notFound("record card failure", err, common.ErrCardNotFound)
	}

	counted := true
	if cooldown > 0 {
		var recent bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM card_attempts
				WHERE card_id = $1 AND user_id = $2 AND counted AND created_at > $3
			)
		`, a.CardID, a.UserID, a.CreatedAt.Add(-cooldown)).Scan(&recent); err != nil {
			return false, common.StoreError("record card failure", err)
		}
		counted = !recent
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO card_attempts (card_id, user_id, reason, counted, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, a.CardID, a.UserID, a.Reason, counted, a.CreatedAt); err != nil {
		return false, common.StoreError("record card failure", err)
	}

	if counted {
		if _, err := tx.Exec(ctx,
			`UPDATE recharge_cards SET failed_attempts = failed_attempts + 1 WHERE id = $1`, a.CardID,
		); err != nil {
			return false, common.StoreError("record card failure", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, common.StoreError("commit", err)
	}
	a.Counted = counted
	return counted, nil
}

// PurgeCardAttempts удаляет историю попыток старше before.
// Счётчик failed_attempts на картах не меняется.
func (s *Store) PurgeCardAttempts(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM card_attempts WHERE created_at < $1`, before)
	if err != nil {
		return 0, common.StoreError("purge card attempts", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) InsertAchievement(ctx context.Context, a *models.Achievement) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	err := s.pool.QueryRow(ctx, `
		INSERT INTO achievements (kind, name, description, image_url, min_points, max_points, reward_points, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, string(a.Kind), a.Name, a.Description, a.ImageURL, a.MinPoints, a.MaxPoints, a.RewardPoints, a.Active,
	).Scan(&a.ID, &a.CreatedAt)
	return common.StoreError("insert achievement", err)
}

func (s *Store) InsertLevel(ctx context.Context, l *models.Level) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	err := s.pool.QueryRow(ctx, `
		INSERT INTO tier_levels (tier_id, number, name, min_points, max_points, reward_points)
		SELECT id, $2, $3, $4, $5, $6 FROM achievements WHERE id = $1 AND kind = 'tier'
		RETURNING id
	`, l.TierID, l.Number, l.Name, l.MinPoints, l.MaxPoints, l.RewardPoints).Scan(&l.ID)
	if err != nil {
		return notFound("insert level", err, common.ErrAchievementMissing)
	}
	return nil
}

func (s *Store) InsertCatalogItem(ctx context.Context, item *models.CatalogItem) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var role *string
	if item.Role != nil {
		r := string(*item.Role)
		role = &r
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO catalog_items (name, description, cost, available_quantity, role, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, item.Name, item.Description, item.Cost, item.AvailableQuantity, role, item.Active,
	).Scan(&item.ID, &item.CreatedAt)
	return common.StoreError("insert catalog item", err)
}
