// Package common — pluralize.go форматирует суммы токенов для сообщений бота
// с учётом языка пользователя.
package common

import "fmt"

// FormatTokens создаёт строку вида "150 токенов" или "150 tokens".
//
//	FormatTokens(1, "ru")   → "1 токен"
//	FormatTokens(21, "ru")  → "21 токен"
//	FormatTokens(1, "en")   → "1 token"
func FormatTokens(amount int64, locale string) string {
	if locale == "ru" {
		return fmt.Sprintf("%d %s", amount, PluralizeTokens(amount))
	}
	if amount == 1 || amount == -1 {
		return fmt.Sprintf("%d token", amount)
	}
	return fmt.Sprintf("%d tokens", amount)
}

// FormatTokensDelta добавляет знак: "+3 токена", "-50 tokens".
func FormatTokensDelta(amount int64, locale string) string {
	if amount >= 0 {
		return "+" + FormatTokens(amount, locale)
	}
	return FormatTokens(amount, locale)
}
