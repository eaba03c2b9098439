// Package auth — jwt.go выпускает и проверяет токены доступа HS256.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/ledger"
)

// Claims — содержимое токена доступа.
type Claims struct {
	AccountID  int64       `json:"uid"`
	TelegramID int64       `json:"tid"`
	Role       ledger.Role `json:"role"`
	jwt.RegisteredClaims
}

// Issuer подписывает и проверяет токены.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  common.Clock
}

// NewIssuer создаёт выпуск токенов.
func NewIssuer(secret string, ttl time.Duration, clock common.Clock) *Issuer {
	if clock == nil {
		clock = common.SystemClock
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, clock: clock}
}

// Issue выпускает токен для пользователя.
func (i *Issuer) Issue(acc *ledger.Account) (string, error) {
	now := i.clock()
	claims := Claims{
		AccountID:  acc.ID,
		TelegramID: acc.TelegramID,
		Role:       acc.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(acc.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return token, nil
}

// Parse проверяет подпись и срок действия токена.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.clock),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: срок токена истёк", common.ErrAuthenticationFailed)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrAuthenticationFailed, err)
	}
	if claims.AccountID <= 0 {
		return nil, fmt.Errorf("%w: в токене нет пользователя", common.ErrAuthenticationFailed)
	}
	return claims, nil
}
