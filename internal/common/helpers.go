// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, форматирование баллов, работа с временем.
package common

import (
	"fmt"
	"time"
)

// plural выбирает форму слова для числа n: one (1, 21), few (2-4, 22-24), many (0, 5-20, ...).
func plural(n int64, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizePoints возвращает правильную форму слова «балл» для числа n.
//
//	PluralizePoints(1)  → "балл"
//	PluralizePoints(3)  → "балла"
//	PluralizePoints(11) → "баллов"
func PluralizePoints(n int64) string {
	return plural(n, "балл", "балла", "баллов")
}

// FormatPoints форматирует количество баллов: FormatPoints(150) → "150 баллов".
func FormatPoints(points int64) string {
	return fmt.Sprintf("%d %s", points, PluralizePoints(points))
}

// FormatSignedPoints создаёт строку вида "+100 баллов" или "-50 баллов".
func FormatSignedPoints(points int64, positive bool) string {
	if positive {
		return "+" + FormatPoints(points)
	}
	return "-" + FormatPoints(points)
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" в заданном поясе.
// Используется для отображения дат транзакций.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02.01.2006 15:04")
}
