// Package common — errors.go определяет ошибки, общие для всех модулей.
// Обработчики различают ошибки через errors.Is/errors.As и отдают клиенту
// стабильный код ошибки вместе с контекстными данными.
package common

import (
	"errors"
	"fmt"
)

// Ошибки «не найдено»
var (
	ErrNotFound        = errors.New("не найдено")
	ErrAccountNotFound = fmt.Errorf("пользователь %w", ErrNotFound)
	ErrTaskNotFound    = fmt.Errorf("задание %w", ErrNotFound)
	ErrRewardNotFound  = fmt.Errorf("награда %w", ErrNotFound)
	ErrPaymentNotFound = fmt.Errorf("платёж %w", ErrNotFound)
)

// Ошибки доступа и входных данных
var (
	// ErrUnauthorized — роль или личность не позволяют выполнить действие
	ErrUnauthorized = errors.New("недостаточно прав")
	// ErrInvalidInput — некорректные или отсутствующие поля, неизвестные значения перечислений
	ErrInvalidInput = errors.New("некорректные входные данные")
	// ErrAuthenticationFailed — подпись или свежесть данных не прошли проверку
	ErrAuthenticationFailed = errors.New("проверка подписи не пройдена")
)

// Ошибки бизнес-правил экономики
var (
	ErrDailyLimitExceeded   = errors.New("дневной лимит игр исчерпан")
	ErrRequirementsNotMet   = errors.New("условия задания не выполнены")
	ErrAlreadyCompleted     = errors.New("задание уже выполнено")
	ErrTaskInactive         = errors.New("задание неактивно")
	ErrTaskExpired          = errors.New("срок задания истёк")
	ErrRewardInactive       = errors.New("награда недоступна")
	ErrOutOfStock           = errors.New("награда закончилась")
	ErrInsufficientTokens   = errors.New("недостаточно токенов")
	ErrInvalidPaymentStatus = errors.New("неизвестный статус платежа")
	ErrSelfReferral         = errors.New("нельзя пригласить самого себя")
	ErrAlreadyReferred      = errors.New("приглашение уже засчитано")
)

// ErrStoreUnavailable — хранилище недоступно. Единственная ошибка,
// которую вызывающая сторона может безопасно повторить.
var ErrStoreUnavailable = errors.New("хранилище недоступно")

// DailyLimitError — дневной лимит игр исчерпан, с текущими значениями.
type DailyLimitError struct {
	Cap     int
	Current int
}

func (e *DailyLimitError) Error() string {
	return fmt.Sprintf("%s: %d/%d", ErrDailyLimitExceeded, e.Current, e.Cap)
}

func (e *DailyLimitError) Is(target error) bool { return target == ErrDailyLimitExceeded }

// RequirementsNotMetError — сыграно меньше игр, чем требует задание.
type RequirementsNotMetError struct {
	Required int
	Current  int
}

func (e *RequirementsNotMetError) Error() string {
	return fmt.Sprintf("%s: нужно %d, сейчас %d", ErrRequirementsNotMet, e.Required, e.Current)
}

func (e *RequirementsNotMetError) Is(target error) bool { return target == ErrRequirementsNotMet }

// InsufficientTokensError — на балансе меньше, чем стоит награда.
type InsufficientTokensError struct {
	Required int64
	Balance  int64
}

func (e *InsufficientTokensError) Error() string {
	return fmt.Sprintf("%s: нужно %d, есть %d", ErrInsufficientTokens, e.Required, e.Balance)
}

func (e *InsufficientTokensError) Is(target error) bool { return target == ErrInsufficientTokens }

// InvalidInput оборачивает ErrInvalidInput с пояснением.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Kind — стабильный код ошибки для клиента.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindUnauthorized         Kind = "unauthorized"
	KindInvalidInput         Kind = "invalid_input"
	KindAuthenticationFailed Kind = "authentication_failed"
	KindDailyLimitExceeded   Kind = "daily_limit_exceeded"
	KindRequirementsNotMet   Kind = "requirements_not_met"
	KindAlreadyCompleted     Kind = "already_completed"
	KindTaskInactive         Kind = "task_inactive"
	KindTaskExpired          Kind = "task_expired"
	KindRewardInactive       Kind = "reward_inactive"
	KindOutOfStock           Kind = "out_of_stock"
	KindInsufficientTokens   Kind = "insufficient_tokens"
	KindInvalidPaymentStatus Kind = "invalid_payment_status"
	KindSelfReferral         Kind = "self_referral"
	KindAlreadyReferred      Kind = "already_referred"
	KindStoreUnavailable     Kind = "store_unavailable"
	KindInternal             Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrNotFound, KindNotFound},
	{ErrUnauthorized, KindUnauthorized},
	{ErrInvalidInput, KindInvalidInput},
	{ErrAuthenticationFailed, KindAuthenticationFailed},
	{ErrDailyLimitExceeded, KindDailyLimitExceeded},
	{ErrRequirementsNotMet, KindRequirementsNotMet},
	{ErrAlreadyCompleted, KindAlreadyCompleted},
	{ErrTaskInactive, KindTaskInactive},
	{ErrTaskExpired, KindTaskExpired},
	{ErrRewardInactive, KindRewardInactive},
	{ErrOutOfStock, KindOutOfStock},
	{ErrInsufficientTokens, KindInsufficientTokens},
	{ErrInvalidPaymentStatus, KindInvalidPaymentStatus},
	{ErrSelfReferral, KindSelfReferral},
	{ErrAlreadyReferred, KindAlreadyReferred},
	{ErrStoreUnavailable, KindStoreUnavailable},
}

// KindOf возвращает код ошибки. Нераспознанные ошибки — KindInternal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
