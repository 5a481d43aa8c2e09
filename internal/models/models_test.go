package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestPointRange_Contains(t *testing.T) {
	tests := []struct {
		name    string
		r       PointRange
		balance int64
		want    bool
	}{
		{"ниже минимума", PointRange{Min: 100, Max: ptr[int64](200)}, 99, false},
		{"ровно минимум", PointRange{Min: 100, Max: ptr[int64](200)}, 100, true},
		{"внутри", PointRange{Min: 100, Max: ptr[int64](200)}, 150, true},
		{"максимум не включается", PointRange{Min: 100, Max: ptr[int64](200)}, 200, false},
		{"без верхней границы", PointRange{Min: 100}, 1_000_000, true},
		{"отрицательный баланс", PointRange{Min: 0}, -5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Contains(tt.balance))
		})
	}

	assert.True(t, PointRange{Min: 10}.Valid())
	assert.False(t, PointRange{Min: 10, Max: ptr[int64](10)}.Valid())
}

func TestAchievementKind(t *testing.T) {
	assert.True(t, KindBadge.RangeGated())
	assert.True(t, KindTier.RangeGated())
	assert.False(t, KindEmblem.RangeGated())
	assert.False(t, AchievementKind("trophy").Valid())
}

func TestCard_State(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		card Card
		want CardState
	}{
		{"активная", Card{}, CardActive},
		{"использована", Card{IsUsed: true, ValidUntil: &past}, CardUsed},
		{"истекла", Card{ValidUntil: &past, FailedAttempts: 9, MaxUsageAttempts: 1}, CardExpired},
		{"истекает ровно сейчас", Card{ValidUntil: &now}, CardExpired},
		{"исчерпаны попытки", Card{MaxUsageAttempts: 3, FailedAttempts: 3, ValidFrom: &future}, CardExhausted},
		{"без лимита попыток", Card{MaxUsageAttempts: 0, FailedAttempts: 100}, CardActive},
		{"ещё не действует", Card{ValidFrom: &future}, CardNotYetValid},
		{"начала действовать", Card{ValidFrom: &now}, CardActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.card.State(now))
		})
	}

	assert.Equal(t, 24*time.Hour, (&Card{UsageCooldownHours: 24}).Cooldown())
}

func TestRedemptionStatus_CanMoveTo(t *testing.T) {
	assert.True(t, RedemptionPending.CanMoveTo(RedemptionApproved))
	assert.True(t, RedemptionPending.CanMoveTo(RedemptionRejected))
	assert.True(t, RedemptionApproved.CanMoveTo(RedemptionDelivered))

	assert.False(t, RedemptionPending.CanMoveTo(RedemptionDelivered))
	assert.False(t, RedemptionApproved.CanMoveTo(RedemptionRejected))
	assert.False(t, RedemptionRejected.CanMoveTo(RedemptionApproved))
	assert.False(t, RedemptionDelivered.CanMoveTo(RedemptionPending))
	assert.False(t, RedemptionStatus("lost").Valid())
}

func TestCatalogItem_AllowedFor(t *testing.T) {
	open := &CatalogItem{}
	assert.True(t, open.AllowedFor(RoleParent))

	teachersOnly := &CatalogItem{Role: ptr(RoleTeacher)}
	assert.True(t, teachersOnly.AllowedFor(RoleTeacher))
	assert.False(t, teachersOnly.AllowedFor(RoleStudent))
}

func TestTransaction_Signed(t *testing.T) {
	assert.Equal(t, int64(10), (&Transaction{Points: 10, IsPositive: true}).Signed())
	assert.Equal(t, int64(-10), (&Transaction{Points: 10}).Signed())
	assert.Equal(t, "", (&Transaction{}).CategoryName())
}

func TestPage_Normalize(t *testing.T) {
	assert.Equal(t, Page{Limit: DefaultPageLimit}, Page{}.Normalize())
	assert.Equal(t, Page{Limit: MaxPageLimit, Offset: 0}, Page{Limit: 10_000, Offset: -3}.Normalize())
	assert.Equal(t, Page{Limit: 5, Offset: 10}, Page{Limit: 5, Offset: 10}.Normalize())
}

func TestDateRange_Contains(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	r := DateRange{From: from, To: to}

	assert.True(t, r.Contains(from))
	assert.True(t, r.Contains(to.Add(-time.Second)))
	assert.False(t, r.Contains(to))
	assert.False(t, r.Contains(from.Add(-time.Second)))
	assert.True(t, DateRange{}.Contains(time.Time{}))
}

func TestMember(t *testing.T) {
	assert.True(t, RoleAdmin.IsStaff())
	assert.False(t, RoleParent.IsStaff())
	assert.Equal(t, "@ali", (&Member{ID: "u1", Username: "ali"}).DisplayName())
	assert.Equal(t, "u1", (&Member{ID: "u1"}).DisplayName())
}

func TestTitles(t *testing.T) {
	assert.Equal(t, "Ранг", KindTier.Title())
	assert.Equal(t, "Достижение", AchievementKind("unknown").Title())
	assert.Equal(t, "выдана", RedemptionDelivered.Title())
	assert.Equal(t, "archived", RedemptionStatus("archived").Title())
}
