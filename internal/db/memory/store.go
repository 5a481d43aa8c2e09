package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
)

func errCheckViolation(constraint string) error {
	return fmt.Errorf("нарушено ограничение %s", constraint)
}

func errUniqueViolation(key string) error {
	return fmt.Errorf("дубликат ключа %s", key)
}

// --- Чтение вне транзакций ---

func (s *Store) CachedBalance(ctx context.Context, userID string) (balance int64, ok bool, err error) {
	err = s.read(ctx, "cached balance", func(st *state) error {
		balance, ok, err = st.CachedBalance(ctx, userID)
		return err
	})
	return balance, ok, err
}

func (s *Store) SumTransactions(ctx context.Context, userID string) (sum int64, err error) {
	err = s.read(ctx, "sum transactions", func(st *state) error {
		sum, err = st.SumTransactions(ctx, userID)
		return err
	})
	return sum, err
}

func (s *Store) ListTransactions(ctx context.Context, f models.TransactionFilter) (out []*models.Transaction, err error) {
	err = s.read(ctx, "list transactions", func(st *state) error {
		out, err = st.ListTransactions(ctx, f)
		return err
	})
	return out, err
}

func (s *Store) LedgerUsers(ctx context.Context) (out []string, err error) {
	err = s.read(ctx, "ledger users", func(st *state) error {
		out, err = st.LedgerUsers(ctx)
		return err
	})
	return out, err
}

func (s *Store) MemberByID(ctx context.Context, id string) (m *models.Member, err error) {
	err = s.read(ctx, "member", func(st *state) error {
		m, err = st.MemberByID(ctx, id)
		return err
	})
	return m, err
}

func (s *Store) MemberByTelegramID(ctx context.Context, telegramID int64) (m *models.Member, err error) {
	err = s.read(ctx, "member by telegram", func(st *state) error {
		m, err = st.MemberByTelegramID(ctx, telegramID)
		return err
	})
	return m, err
}

func (s *Store) CardByCode(ctx context.Context, code string) (c *models.Card, err error) {
	err = s.read(ctx, "card", func(st *state) error {
		c, err = st.CardByCode(ctx, code)
		return err
	})
	return c, err
}

func (s *Store) Achievements(ctx context.Context, activeOnly bool) (out []*models.Achievement, err error) {
	err = s.read(ctx, "achievements", func(st *state) error {
		out, err = st.Achievements(ctx, activeOnly)
		return err
	})
	return out, err
}

func (s *Store) Achievement(ctx context.Context, id int64) (a *models.Achievement, err error) {
	err = s.read(ctx, "achievement", func(st *state) error {
		a, err = st.Achievement(ctx, id)
		return err
	})
	return a, err
}

func (s *Store) Levels(ctx context.Context, tierID int64) (out []*models.Level, err error) {
	err = s.read(ctx, "levels", func(st *state) error {
		out, err = st.Levels(ctx, tierID)
		return err
	})
	return out, err
}

func (s *Store) UserAchievements(ctx context.Context, userID string) (out []*models.UserAchievement, err error) {
	err = s.read(ctx, "user achievements", func(st *state) error {
		out, err = st.UserAchievements(ctx, userID)
		return err
	})
	return out, err
}

func (s *Store) ProgressOf(ctx context.Context, userID string) (p *models.Progress, err error) {
	err = s.read(ctx, "progress", func(st *state) error {
		p, err = st.ProgressOf(ctx, userID)
		return err
	})
	return p, err
}

func (s *Store) CatalogItem(ctx context.Context, id int64) (i *models.CatalogItem, err error) {
	err = s.read(ctx, "catalog item", func(st *state) error {
		i, err = st.CatalogItem(ctx, id)
		return err
	})
	return i, err
}

func (s *Store) CatalogItems(ctx context.Context, activeOnly bool) (out []*models.CatalogItem, err error) {
	err = s.read(ctx, "catalog items", func(st *state) error {
		out, err = st.CatalogItems(ctx, activeOnly)
		return err
	})
	return out, err
}

func (s *Store) Redemption(ctx context.Context, id string) (r *models.Redemption, err error) {
	err = s.read(ctx, "redemption", func(st *state) error {
		r, err = st.Redemption(ctx, id)
		return err
	})
	return r, err
}

func (s *Store) Redemptions(ctx context.Context, userID string) (out []*models.Redemption, err error) {
	err = s.read(ctx, "redemptions", func(st *state) error {
		out, err = st.Redemptions(ctx, userID)
		return err
	})
	return out, err
}

// --- Записи вне журнала ---

// UpsertMember создаёт или обновляет участника.
func (s *Store) UpsertMember(ctx context.Context, m *models.Member) error {
	return s.write(ctx, "upsert member", func(st *state) error {
		now := s.now().UTC()
		upd := copyOf(m)
		if prev, ok := st.members[m.ID]; ok {
			upd.CreatedAt = prev.CreatedAt
		} else {
			upd.CreatedAt = now
		}
		upd.UpdatedAt = now
		st.members[m.ID] = upd
		m.CreatedAt, m.UpdatedAt = upd.CreatedAt, upd.UpdatedAt
		return nil
	})
}

// InsertCards добавляет пачку карт; дубликат кода откатывает всю пачку.
func (s *Store) InsertCards(ctx context.Context, cards []*models.Card) error {
	return s.write(ctx, "insert cards", func(st *state) error {
		seen := make(map[string]struct{}, len(cards))
		for _, c := range cards {
			if _, dup := st.cardCodes[c.Code]; dup {
				return errUniqueViolation("cards.code")
			}
			if _, dup := seen[c.Code]; dup {
				return errUniqueViolation("cards.code")
			}
			seen[c.Code] = struct{}{}
		}
		now := s.now().UTC()
		for _, c := range cards {
			st.cardSeq++
			c.ID = st.cardSeq
			if c.CreatedAt.IsZero() {
				c.CreatedAt = now
			}
			st.cards[c.ID] = copyOf(c)
			st.cardCodes[c.Code] = c.ID
		}
		return nil
	})
}

// RecordCardFailure - см. db.Store.
func (s *Store) RecordCardFailure(ctx context.Context, a *models.CardAttempt, cooldown time.Duration) (bool, error) {
	var counted bool
	err := s.write(ctx, "record card failure", func(st *state) error {
		card, ok := st.cards[a.CardID]
		if !ok {
			return common.ErrCardNotFound
		}

		counted = true
		if cooldown > 0 {
			since := a.CreatedAt.Add(-cooldown)
			for _, prev := range st.attempts {
				if prev.CardID == a.CardID && prev.UserID == a.UserID && prev.Counted && prev.CreatedAt.After(since) {
					counted = false
					break
				}
			}
		}

		a.Counted = counted
		rec := copyOf(a)
		st.attempts = append(st.attempts, rec)

		if counted {
			upd := copyOf(card)
			upd.FailedAttempts++
			st.cards[card.ID] = upd
		}
		return nil
	})
	return counted, err
}

// PurgeCardAttempts удаляет записи попыток старше before.
func (s *Store) PurgeCardAttempts(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	err := s.write(ctx, "purge card attempts", func(st *state) error {
		kept := st.attempts[:0:0]
		for _, a := range st.attempts {
			if a.CreatedAt.Before(before) {
				removed++
				continue
			}
			kept = append(kept, a)
		}
		st.attempts = kept
		return nil
	})
	return removed, err
}

func (s *Store) InsertAchievement(ctx context.Context, a *models.Achievement) error {
	return s.write(ctx, "insert achievement", func(st *state) error {
		st.achSeq++
		a.ID = st.achSeq
		if a.CreatedAt.IsZero() {
			a.CreatedAt = s.now().UTC()
		}
		st.achievements[a.ID] = copyOf(a)
		return nil
	})
}

func (s *Store) InsertLevel(ctx context.Context, l *models.Level) error {
	return s.write(ctx, "insert level", func(st *state) error {
		tier, ok := st.achievements[l.TierID]
		if !ok || tier.Kind != models.KindTier {
			return common.ErrAchievementMissing
		}
		for _, other := range st.levels {
			if other.TierID == l.TierID && other.Number == l.Number {
				return errUniqueViolation("tier_levels(tier_id, number)")
			}
		}
		st.levelSeq++
		l.ID = st.levelSeq
		st.levels[l.ID] = copyOf(l)
		return nil
	})
}

func (s *Store) InsertCatalogItem(ctx context.Context, item *models.CatalogItem) error {
	return s.write(ctx, "insert catalog item", func(st *state) error {
		if item.AvailableQuantity < 0 {
			return errCheckViolation("available_quantity >= 0")
		}
		st.itemSeq++
		item.ID = st.itemSeq
		if item.CreatedAt.IsZero() {
			item.CreatedAt = s.now().UTC()
		}
		st.items[item.ID] = copyOf(item)
		return nil
	})
}
