// Package accounts — models.go содержит запросы и ответы профиля.
package accounts

import "serotonyl.ru/flip-bot/internal/ledger"

// Profile — профиль пользователя для клиента.
type Profile struct {
	ID           int64       `json:"id"`
	TelegramID   int64       `json:"telegram_id"`
	Nickname     string      `json:"nickname"`
	Balance      int64       `json:"flip_tokens"`
	Language     string      `json:"language"`
	SoundEnabled bool        `json:"sound_enabled"`
	Role         ledger.Role `json:"role"`
}

// ProfileOf строит профиль из записи хранилища.
func ProfileOf(a *ledger.Account) Profile {
	return Profile{
		ID:           a.ID,
		TelegramID:   a.TelegramID,
		Nickname:     a.Nickname,
		Balance:      a.Balance,
		Language:     a.Locale,
		SoundEnabled: a.SoundEnabled,
		Role:         a.Role,
	}
}

// ProfileUpdate — изменяемые поля профиля. nil — поле не меняется.
type ProfileUpdate struct {
	Nickname     *string `json:"nickname"`
	Language     *string `json:"language"`
	SoundEnabled *bool   `json:"sound_enabled"`
}

// LoginResult — токен доступа и профиль.
type LoginResult struct {
	AccessToken string  `json:"access_token"`
	User        Profile `json:"user"`
	Created     bool    `json:"-"`
}

// ReferralResult — итог приглашения для приглашённого.
type ReferralResult struct {
	ReferrerID   int64 `json:"referrer_id"`
	TokensEarned int64 `json:"tokens_earned"`
	Balance      int64 `json:"current_balance"`
}
