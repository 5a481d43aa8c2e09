package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/common"
	"github.com/ziadmustafa1/arabic-school-syste-main2-sub001/internal/models"
)

// state - все таблицы. Значения в картах не меняются на месте:
// любое изменение кладёт новую копию, поэтому clone может копировать указатели.
type state struct {
	txSeq    int64
	cardSeq  int64
	achSeq   int64
	levelSeq int64
	itemSeq  int64

	transactions []*models.Transaction
	balances     map[string]models.BalanceCache
	members      map[string]*models.Member

	cards     map[int64]*models.Card
	cardCodes map[string]int64
	attempts  []*models.CardAttempt

	achievements map[int64]*models.Achievement
	levels       map[int64]*models.Level
	userAch      map[string]map[int64]*models.UserAchievement
	userLevels   map[string]map[int64]time.Time
	progress     map[string]*models.Progress

	items       map[int64]*models.CatalogItem
	redemptions map[string]*models.Redemption
}

func newState() *state {
	return &state{
		balances:     make(map[string]models.BalanceCache),
		members:      make(map[string]*models.Member),
		cards:        make(map[int64]*models.Card),
		cardCodes:    make(map[string]int64),
		achievements: make(map[int64]*models.Achievement),
		levels:       make(map[int64]*models.Level),
		userAch:      make(map[string]map[int64]*models.UserAchievement),
		userLevels:   make(map[string]map[int64]time.Time),
		progress:     make(map[string]*models.Progress),
		items:        make(map[int64]*models.CatalogItem),
		redemptions:  make(map[string]*models.Redemption),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	c := *s
	c.transactions = append([]*models.Transaction(nil), s.transactions...)
	c.attempts = append([]*models.CardAttempt(nil), s.attempts...)
	c.balances = cloneMap(s.balances)
	c.members = cloneMap(s.members)
	c.cards = cloneMap(s.cards)
	c.cardCodes = cloneMap(s.cardCodes)
	c.achievements = cloneMap(s.achievements)
	c.levels = cloneMap(s.levels)
	c.progress = cloneMap(s.progress)
	c.items = cloneMap(s.items)
	c.redemptions = cloneMap(s.redemptions)

	c.userAch = make(map[string]map[int64]*models.UserAchievement, len(s.userAch))
	for k, v := range s.userAch {
		c.userAch[k] = cloneMap(v)
	}
	c.userLevels = make(map[string]map[int64]time.Time, len(s.userLevels))
	for k, v := range s.userLevels {
		c.userLevels[k] = cloneMap(v)
	}
	return &c
}

func copyOf[T any](v *T) *T {
	c := *v
	return &c
}

// ===============================
// ЖУРНАЛ И БАЛАНС
// ===============================

func (s *state) CachedBalance(_ context.Context, userID string) (int64, bool, error) {
	b, ok := s.balances[userID]
	return b.Balance, ok, nil
}

func (s *state) SumTransactions(_ context.Context, userID string) (int64, error) {
	var sum int64
	for _, t := range s.transactions {
		if t.UserID == userID {
			sum += t.Signed()
		}
	}
	return sum, nil
}

func (s *state) ListTransactions(_ context.Context, f models.TransactionFilter) ([]*models.Transaction, error) {
	page := f.Page.Normalize()

	var matched []*models.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		t := s.transactions[i]
		if t.UserID != f.UserID || !f.Range.Contains(t.CreatedAt) {
			continue
		}
		matched = append(matched, t)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if page.Offset >= len(matched) {
		return nil, nil
	}
	end := page.Offset + page.Limit
	if end > len(matched) {
		end = len(matched)
	}
	out := make([]*models.Transaction, 0, end-page.Offset)
	for _, t := range matched[page.Offset:end] {
		out = append(out, copyOf(t))
	}
	return out, nil
}

func (s *state) LedgerUsers(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, t := range s.transactions {
		seen[t.UserID] = struct{}{}
	}
	for id := range s.balances {
		seen[id] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *state) AppendTransaction(_ context.Context, t *models.Transaction) (int64, error) {
	if t.Points <= 0 {
		return 0, common.StoreError("append", errCheckViolation("points > 0"))
	}
	s.txSeq++
	t.ID = s.txSeq
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.transactions = append(s.transactions, copyOf(t))
	return t.ID, nil
}

func (s *state) PutCachedBalance(_ context.Context, userID string, balance int64, at time.Time) error {
	s.balances[userID] = models.BalanceCache{UserID: userID, Balance: balance, RefreshedAt: at}
	return nil
}

// ===============================
// УЧАСТНИКИ
// ===============================

func (s *state) MemberByID(_ context.Context, id string) (*models.Member, error) {
	m, ok := s.members[id]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	return copyOf(m), nil
}

func (s *state) MemberByTelegramID(_ context.Context, telegramID int64) (*models.Member, error) {
	for _, m := range s.members {
		if m.TelegramID != nil && *m.TelegramID == telegramID {
			return copyOf(m), nil
		}
	}
	return nil, common.ErrUserNotFound
}

// ===============================
// КАРТЫ
// ===============================

func (s *state) CardByCode(_ context.Context, code string) (*models.Card, error) {
	id, ok := s.cardCodes[code]
	if !ok {
		return nil, common.ErrCardNotFound
	}
	return copyOf(s.cards[id]), nil
}

func (s *state) ConsumeCard(_ context.Context, cardID int64, userID string, at time.Time) (bool, error) {
	c, ok := s.cards[cardID]
	if !ok || c.IsUsed {
		return false, nil
	}
	upd := copyOf(c)
	upd.IsUsed = true
	upd.UsedBy = &userID
	upd.UsedAt = &at
	s.cards[cardID] = upd
	return true, nil
}

// ===============================
// ДОСТИЖЕНИЯ
// ===============================

func (s *state) Achievements(_ context.Context, activeOnly bool) ([]*models.Achievement, error) {
	out := make([]*models.Achievement, 0, len(s.achievements))
	for _, a := range s.achievements {
		if activeOnly && !a.Active {
			continue
		}
		out = append(out, copyOf(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MinPoints == out[j].MinPoints {
			return out[i].ID < out[j].ID
		}
		return out[i].MinPoints < out[j].MinPoints
	})
	return out, nil
}

func (s *state) Achievement(_ context.Context, id int64) (*models.Achievement, error) {
	a, ok := s.achievements[id]
	if !ok {
		return nil, common.ErrAchievementMissing
	}
	return copyOf(a), nil
}

func (s *state) Levels(_ context.Context, tierID int64) ([]*models.Level, error) {
	var out []*models.Level
	for _, l := range s.levels {
		if l.TierID == tierID {
			out = append(out, copyOf(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *state) UserAchievements(_ context.Context, userID string) ([]*models.UserAchievement, error) {
	var out []*models.UserAchievement
	for _, ua := range s.userAch[userID] {
		out = append(out, copyOf(ua))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AchievementID < out[j].AchievementID })
	return out, nil
}

func (s *state) ProgressOf(_ context.Context, userID string) (*models.Progress, error) {
	p, ok := s.progress[userID]
	if !ok {
		return &models.Progress{UserID: userID}, nil
	}
	return copyOf(p), nil
}

func (s *state) InsertUserAchievement(_ context.Context, ua *models.UserAchievement) (bool, error) {
	held, ok := s.userAch[ua.UserID]
	if !ok {
		held = make(map[int64]*models.UserAchievement)
		s.userAch[ua.UserID] = held
	}
	if _, exists := held[ua.AchievementID]; exists {
		return false, nil
	}
	held[ua.AchievementID] = copyOf(ua)
	return true, nil
}

func (s *state) InsertUserLevel(_ context.Context, userID string, levelID int64, at time.Time) (bool, error) {
	paid, ok := s.userLevels[userID]
	if !ok {
		paid = make(map[int64]time.Time)
		s.userLevels[userID] = paid
	}
	if _, exists := paid[levelID]; exists {
		return false, nil
	}
	paid[levelID] = at
	return true, nil
}

func (s *state) PutProgress(_ context.Context, p *models.Progress) error {
	s.progress[p.UserID] = copyOf(p)
	return nil
}

// ===============================
// КАТАЛОГ
// ===============================

func (s *state) CatalogItem(_ context.Context, id int64) (*models.CatalogItem, error) {
	i, ok := s.items[id]
	if !ok {
		return nil, common.ErrItemNotFound
	}
	return copyOf(i), nil
}

func (s *state) CatalogItems(_ context.Context, activeOnly bool) ([]*models.CatalogItem, error) {
	out := make([]*models.CatalogItem, 0, len(s.items))
	for _, i := range s.items {
		if activeOnly && !i.Active {
			continue
		}
		out = append(out, copyOf(i))
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Cost == out[b].Cost {
			return out[a].ID < out[b].ID
		}
		return out[a].Cost < out[b].Cost
	})
	return out, nil
}

func (s *state) Redemption(_ context.Context, id string) (*models.Redemption, error) {
	r, ok := s.redemptions[id]
	if !ok {
		return nil, common.ErrRedemptionNotFound
	}
	return copyOf(r), nil
}

func (s *state) Redemptions(_ context.Context, userID string) ([]*models.Redemption, error) {
	var out []*models.Redemption
	for _, r := range s.redemptions {
		if userID == "" || r.UserID == userID {
			out = append(out, copyOf(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *state) TakeCatalogItem(_ context.Context, itemID int64) (bool, error) {
	i, ok := s.items[itemID]
	if !ok || i.AvailableQuantity <= 0 {
		return false, nil
	}
	upd := copyOf(i)
	upd.AvailableQuantity--
	s.items[itemID] = upd
	return true, nil
}

func (s *state) ReturnCatalogItem(_ context.Context, itemID int64) error {
	i, ok := s.items[itemID]
	if !ok {
		return common.ErrItemNotFound
	}
	upd := copyOf(i)
	upd.AvailableQuantity++
	s.items[itemID] = upd
	return nil
}

func (s *state) InsertRedemption(_ context.Context, r *models.Redemption) error {
	if _, exists := s.redemptions[r.ID]; exists {
		return common.StoreError("insert redemption", errUniqueViolation("redemptions.id"))
	}
	s.redemptions[r.ID] = copyOf(r)
	return nil
}

func (s *state) UpdateRedemptionStatus(_ context.Context, id string, from, to models.RedemptionStatus, notes *string, at time.Time) (bool, error) {
	r, ok := s.redemptions[id]
	if !ok || r.Status != from {
		return false, nil
	}
	upd := copyOf(r)
	upd.Status = to
	if notes != nil {
		upd.Notes = notes
	}
	upd.UpdatedAt = at
	s.redemptions[id] = upd
	return true, nil
}
