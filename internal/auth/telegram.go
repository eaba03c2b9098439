// Package auth проверяет подписи Telegram и выпускает токены доступа.
//
// telegram.go — схема подписи Telegram: ключ HMAC — sha256(bot_token),
// подписывается строка из пар key=value, отсортированных по ключу и
// соединённых переводом строки, без поля hash. Той же схемой подписаны
// данные входа и вебхуки платежей. Проверку нельзя отключить.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"serotonyl.ru/flip-bot/internal/common"
)

// HashField — поле с подписью.
const HashField = "hash"

// Verifier проверяет данные, подписанные секретом бота.
type Verifier struct {
	secret []byte
	maxAge time.Duration
	clock  common.Clock
	// без токена бота любая подпись отклоняется
	disabled bool
}

// NewVerifier создаёт проверку подписи. maxAge — допустимый возраст auth_date при входе.
// С пустым botToken Verify отклоняет любые данные.
func NewVerifier(botToken string, maxAge time.Duration, clock common.Clock) *Verifier {
	if clock == nil {
		clock = common.SystemClock
	}
	sum := sha256.Sum256([]byte(botToken))
	return &Verifier{
		secret:   sum[:],
		disabled: strings.TrimSpace(botToken) == "",
		maxAge:   maxAge,
		clock:    clock,
	}
}

// DataCheckString собирает строку для подписи.
func DataCheckString(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != HashField {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+fields[k])
	}
	return strings.Join(lines, "\n")
}

// Sign возвращает hex-подпись полей (поле hash игнорируется).
func (v *Verifier) Sign(fields map[string]string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(DataCheckString(fields)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify сравнивает подпись за постоянное время.
// Нет поля hash или подпись не совпала — common.ErrAuthenticationFailed.
func (v *Verifier) Verify(fields map[string]string) error {
	if v.disabled {
		return fmt.Errorf("%w: токен бота не задан", common.ErrAuthenticationFailed)
	}
	got, ok := fields[HashField]
	if !ok || got == "" {
		return fmt.Errorf("%w: нет подписи", common.ErrAuthenticationFailed)
	}
	gotRaw, err := hex.DecodeString(strings.ToLower(got))
	if err != nil {
		return fmt.Errorf("%w: подпись не в hex", common.ErrAuthenticationFailed)
	}
	want, _ := hex.DecodeString(v.Sign(fields))
	if !hmac.Equal(gotRaw, want) {
		return fmt.Errorf("%w: подпись не совпала", common.ErrAuthenticationFailed)
	}
	return nil
}

// LoginData — проверенные данные входа Telegram.
type LoginData struct {
	TelegramID   int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
	AuthDate     time.Time
}

// VerifyLogin проверяет подпись и свежесть данных входа.
func (v *Verifier) VerifyLogin(fields map[string]string) (*LoginData, error) {
	if err := v.Verify(fields); err != nil {
		return nil, err
	}

	authUnix, err := strconv.ParseInt(fields["auth_date"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: некорректный auth_date", common.ErrAuthenticationFailed)
	}
	authDate := time.Unix(authUnix, 0).UTC()
	if v.clock().Sub(authDate) > v.maxAge {
		return nil, fmt.Errorf("%w: данные входа устарели", common.ErrAuthenticationFailed)
	}

	id, err := strconv.ParseInt(fields["id"], 10, 64)
	if err != nil || id <= 0 {
		return nil, common.InvalidInput("некорректный id пользователя Telegram")
	}

	return &LoginData{
		TelegramID:   id,
		Username:     fields["username"],
		FirstName:    fields["first_name"],
		LastName:     fields["last_name"],
		LanguageCode: fields["language_code"],
		AuthDate:     authDate,
	}, nil
}
