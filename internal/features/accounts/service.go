// Package accounts — service.go: вход через Telegram, профиль и приглашения.
// Вход регистрирует нового пользователя или обновляет данные существующего.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/flip-bot/internal/auth"
	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/ledger"
)

// Бонусы за приглашение
const (
	ReferrerBonus int64 = 50
	ReferredBonus int64 = 20
)

const maxNicknameLen = 64

// TokenIssuer выпускает токен доступа.
type TokenIssuer interface {
	Issue(acc *ledger.Account) (string, error)
}

// Service управляет пользователями мини-приложения.
type Service struct {
	store   ledger.Store
	issuer  TokenIssuer
	isAdmin func(telegramID int64) bool
	clock   common.Clock
}

// NewService создаёт сервис пользователей.
// isAdmin сообщает, какие Telegram ID получают роль admin при входе.
func NewService(store ledger.Store, issuer TokenIssuer, isAdmin func(int64) bool, clock common.Clock) *Service {
	if clock == nil {
		clock = common.SystemClock
	}
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	return &Service{store: store, issuer: issuer, isAdmin: isAdmin, clock: clock}
}

// Login регистрирует или обновляет пользователя по проверенным данным Telegram
// и выпускает токен доступа.
func (s *Service) Login(ctx context.Context, data *auth.LoginData) (*LoginResult, error) {
	acc, created, err := s.Ensure(ctx, data)
	if err != nil {
		return nil, err
	}

	token, err := s.issuer.Issue(acc)
	if err != nil {
		return nil, err
	}

	entry := log.WithFields(log.Fields{
		"account_id":  acc.ID,
		"telegram_id": acc.TelegramID,
		"role":        acc.Role,
	})
	if created {
		entry.Info("Новый пользователь зарегистрирован")
	} else {
		entry.Debug("Пользователь вошёл")
	}

	return &LoginResult{AccessToken: token, User: ProfileOf(acc), Created: created}, nil
}

// Ensure регистрирует пользователя или обновляет его данные без выпуска токена.
// Используется ботом на /start: данные отправителя в апдейте уже проверены Telegram.
func (s *Service) Ensure(ctx context.Context, data *auth.LoginData) (*ledger.Account, bool, error) {
	acc, created, err := s.upsert(ctx, data)
	// Два первых входа одновременно: второй упирается в уникальный telegram_id
	// и повторяет попытку уже как обновление.
	if err != nil && errors.Is(err, common.ErrInvalidInput) {
		acc, created, err = s.upsert(ctx, data)
	}
	return acc, created, err
}

// ByTelegramID возвращает пользователя по Telegram ID.
func (s *Service) ByTelegramID(ctx context.Context, telegramID int64) (*ledger.Account, error) {
	var acc *ledger.Account
	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		acc, err = tx.LockAccountByTelegramID(ctx, telegramID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *Service) upsert(ctx context.Context, data *auth.LoginData) (*ledger.Account, bool, error) {
	now := s.clock()
	var (
		acc     *ledger.Account
		created bool
	)

	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		existing, err := tx.LockAccountByTelegramID(ctx, data.TelegramID)
		switch {
		case errors.Is(err, common.ErrAccountNotFound):
			acc = &ledger.Account{
				TelegramID:   data.TelegramID,
				Username:     data.Username,
				FirstName:    data.FirstName,
				LastName:     data.LastName,
				Nickname:     defaultNickname(data),
				Balance:      ledger.StartingBalance,
				Locale:       ledger.NormalizeLocale(data.LanguageCode),
				SoundEnabled: true,
				Role:         ledger.RoleUser,
				CreatedAt:    now,
				LastLogin:    now,
			}
			if s.isAdmin(data.TelegramID) {
				acc.Role = ledger.RoleAdmin
			}
			created = true
			return tx.InsertAccount(ctx, acc)
		case err != nil:
			return err
		}

		acc = existing
		if data.Username != "" {
			acc.Username = data.Username
		}
		if data.FirstName != "" {
			acc.FirstName = data.FirstName
		}
		if data.LastName != "" {
			acc.LastName = data.LastName
		}
		if data.LanguageCode != "" {
			acc.Locale = ledger.NormalizeLocale(data.LanguageCode)
		}
		if s.isAdmin(data.TelegramID) {
			acc.Role = ledger.RoleAdmin
		}
		acc.LastLogin = now
		created = false
		return tx.UpdateAccount(ctx, acc)
	})
	if err != nil {
		return nil, false, err
	}
	return acc, created, nil
}

func defaultNickname(data *auth.LoginData) string {
	if data.Username != "" {
		return data.Username
	}
	return fmt.Sprintf("user_%d", data.TelegramID)
}

// Profile возвращает профиль пользователя.
func (s *Service) Profile(ctx context.Context, accountID int64) (*Profile, error) {
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	p := ProfileOf(acc)
	return &p, nil
}

// UpdateProfile меняет никнейм, язык и звук. Баланс и роль не трогает.
func (s *Service) UpdateProfile(ctx context.Context, accountID int64, upd ProfileUpdate) (*Profile, error) {
	nickname, locale, err := validateUpdate(upd)
	if err != nil {
		return nil, err
	}

	var out Profile
	err = s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		acc, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if upd.Nickname != nil {
			acc.Nickname = nickname
		}
		if upd.Language != nil {
			acc.Locale = locale
		}
		if upd.SoundEnabled != nil {
			acc.SoundEnabled = *upd.SoundEnabled
		}
		if err := tx.UpdateAccount(ctx, acc); err != nil {
			return fmt.Errorf("ошибка обновления профиля: %w", err)
		}
		out = ProfileOf(acc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func validateUpdate(upd ProfileUpdate) (nickname, locale string, err error) {
	if upd.Nickname != nil {
		nickname = strings.TrimSpace(*upd.Nickname)
		if nickname == "" {
			return "", "", common.InvalidInput("никнейм не может быть пустым")
		}
		if utf8.RuneCountInString(nickname) > maxNicknameLen {
			return "", "", common.InvalidInput("никнейм длиннее %d символов", maxNicknameLen)
		}
	}
	if upd.Language != nil {
		switch *upd.Language {
		case ledger.LocaleEN, ledger.LocaleRU:
			locale = *upd.Language
		default:
			return "", "", common.InvalidInput("неподдерживаемый язык %q", *upd.Language)
		}
	}
	return nickname, locale, nil
}

// Referral засчитывает приглашение: приглашающий получает ReferrerBonus,
// приглашённый — ReferredBonus. Пара засчитывается один раз.
// code — Telegram ID или никнейм приглашающего.
func (s *Service) Referral(ctx context.Context, accountID int64, code string) (*ReferralResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, common.InvalidInput("не указан код приглашения")
	}
	now := s.clock()
	res := &ReferralResult{TokensEarned: ReferredBonus}

	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		referrer, err := tx.FindAccountByCode(ctx, code)
		if err != nil {
			return err
		}
		if referrer.ID == accountID {
			return common.ErrSelfReferral
		}

		// Порядок блокировок по возрастанию ID
		first, second := referrer.ID, accountID
		if first > second {
			first, second = second, first
		}
		if _, err := tx.LockAccount(ctx, first); err != nil {
			return err
		}
		if _, err := tx.LockAccount(ctx, second); err != nil {
			return err
		}

		// Приглашённый засчитывается один раз, встречное приглашение не засчитывается
		referred, err := tx.IsReferred(ctx, accountID)
		if err != nil {
			return err
		}
		mutual, err := tx.ReferralExists(ctx, accountID, referrer.ID)
		if err != nil {
			return err
		}
		if referred || mutual {
			return common.ErrAlreadyReferred
		}
		if err := tx.InsertReferral(ctx, &ledger.Referral{
			ReferrerID:  referrer.ID,
			ReferredID:  accountID,
			RewardGiven: true,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		if _, err := tx.AdjustBalance(ctx, referrer.ID, ReferrerBonus); err != nil {
			return err
		}
		balance, err := tx.AdjustBalance(ctx, accountID, ReferredBonus)
		if err != nil {
			return err
		}

		res.ReferrerID = referrer.ID
		res.Balance = balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account_id":  accountID,
		"referrer_id": res.ReferrerID,
	}).Info("Приглашение засчитано")

	return res, nil
}

// Locale возвращает язык пользователя; при любой ошибке — английский.
func (s *Service) Locale(ctx context.Context, accountID int64) string {
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return ledger.LocaleEN
	}
	return acc.Locale
}
