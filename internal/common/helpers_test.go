package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPluralizePoints(t *testing.T) {
	cases := map[int64]string{
		0: "баллов", 1: "балл", 2: "балла", 4: "балла", 5: "баллов",
		11: "баллов", 12: "баллов", 21: "балл", 22: "балла", 111: "баллов", -3: "балла",
	}
	for n, want := range cases {
		assert.Equal(t, want, PluralizePoints(n), "n=%d", n)
	}
}

func TestFormatSignedPoints(t *testing.T) {
	assert.Equal(t, "+50 баллов", FormatSignedPoints(50, true))
	assert.Equal(t, "-1 балл", FormatSignedPoints(1, false))
}

func TestFormatDateTime(t *testing.T) {
	ts := time.Date(2026, 3, 5, 7, 9, 0, 0, time.UTC)
	assert.Equal(t, "05.03.2026 07:09", FormatDateTime(ts, nil))
}

func TestCardFingerprintIgnoresFormatting(t *testing.T) {
	assert.Equal(t, CardFingerprint("abc-123"), CardFingerprint(" ABC123 "))
	assert.NotEqual(t, CardFingerprint("ABC123"), CardFingerprint("ABC124"))
	assert.Len(t, CardFingerprint("ABC123"), 12)
}

func TestErrorKinds(t *testing.T) {
	assert.True(t, errors.Is(ErrCardNotFound, ErrNotFound))
	assert.False(t, errors.Is(ErrCardNotFound, ErrItemNotFound))
	assert.True(t, errors.Is(fmt.Errorf("wrap: %w", ErrCardAlreadyUsed), ErrCardAlreadyUsed))
	assert.True(t, errors.Is(ErrOutOfStock, ErrConflict))
	assert.Equal(t, KindGated, KindOf(ErrCardExpired))
	assert.False(t, Retriable(ErrInsufficientPoints))
}

func TestStoreErrorClassification(t *testing.T) {
	err := StoreError("append", errors.New("connection reset"))
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, Retriable(err))
	assert.Contains(t, err.Error(), "connection reset")

	timeout := StoreError("append", fmt.Errorf("query: %w", context.DeadlineExceeded))
	assert.True(t, errors.Is(timeout, ErrTimeout))
	assert.Equal(t, KindTimeout, KindOf(timeout))

	// доменные ошибки не переупаковываются
	assert.Same(t, ErrOutOfStock, StoreError("take", ErrOutOfStock))
	assert.Nil(t, StoreError("noop", nil))
}
