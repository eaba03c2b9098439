// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: работа с UTC-датами, часы и склонение числительных для бота.
package common

import (
	"math"
	"time"
)

// Clock возвращает текущее время. Сервисы получают его через конструктор,
// тесты подставляют фиксированное время.
type Clock func() time.Time

// SystemClock — реальные часы в UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// DayStart возвращает начало UTC-суток для момента t.
// Дневные лимиты и дневные задания сбрасываются в полночь по UTC.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// UTCDate — синоним DayStart для ключей счётчиков (только дата).
func UTCDate(t time.Time) time.Time {
	return DayStart(t)
}

// pluralRu выбирает форму слова для русского числительного.
//
//   - n%10==1 И n%100!=11 → one (1, 21, 101)
//   - n%10 в [2,4] И n%100 НЕ в [12,14] → few (2, 3, 24)
//   - остальное → many (0, 5-20, 100)
func pluralRu(n int64, one, few, many string) string {
	absN := int64(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizeTokens возвращает форму слова «токен» для числа n.
//
//	PluralizeTokens(1)  → "токен"
//	PluralizeTokens(3)  → "токена"
//	PluralizeTokens(11) → "токенов"
func PluralizeTokens(n int64) string {
	return pluralRu(n, "токен", "токена", "токенов")
}

