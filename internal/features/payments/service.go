// Package payments — service.go: машина состояний платежа.
//
//	pending → completed (начисление токенов, один раз)
//	pending → failed
//	completed → refunded (только вручную, без списания)
//
// Блокировка: сначала платёж, потом пользователь. Повторный вебхук по
// завершённому платежу ничего не меняет и возвращает текущее состояние.
package payments

import (
	"context"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/ledger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Статусы провайдера
const (
	ProviderSuccessful = "successful"
	ProviderPaid       = "paid"
	ProviderFailed     = "failed"
)

// Service управляет платежами.
type Service struct {
	store       ledger.Store
	clock       common.Clock
	botUsername string
}

// NewService создаёт сервис платежей. botUsername нужен для ссылки на оплату.
func NewService(store ledger.Store, clock common.Clock, botUsername string) *Service {
	if clock == nil {
		clock = common.SystemClock
	}
	return &Service{store: store, clock: clock, botUsername: botUsername}
}

// Packages возвращает каталог пакетов на языке пользователя.
func (s *Service) Packages(locale string) []PackageView {
	out := make([]PackageView, 0, len(Packages))
	for _, p := range Packages {
		out = append(out, PackageView{
			ID:          p.ID,
			Tokens:      p.Tokens,
			Price:       p.Price,
			Currency:    p.Currency,
			Description: p.Description.For(locale),
		})
	}
	return out
}

// PaymentLink — ссылка на оплату через бота.
func (s *Service) PaymentLink(paymentID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=payment_%d", s.botUsername, paymentID)
}

// Create заводит платёж в статусе pending. Баланс не меняется.
func (s *Service) Create(ctx context.Context, accountID int64, packageID string) (*CreateResult, error) {
	pkg, err := FindPackage(packageID)
	if err != nil {
		return nil, err
	}

	p := &ledger.Payment{
		AccountID:    accountID,
		PackageID:    pkg.ID,
		Amount:       pkg.Price,
		Currency:     pkg.Currency,
		TokensAmount: pkg.Tokens,
		Status:       ledger.PaymentPending,
		CreatedAt:    s.clock(),
	}
	err = s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.LockAccount(ctx, accountID); err != nil {
			return err
		}
		return tx.InsertPayment(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"payment_id": p.ID,
		"package":    pkg.ID,
		"amount":     pkg.Price.String(),
	}).Info("Платёж создан")

	return &CreateResult{Payment: p, PaymentLink: s.PaymentLink(p.ID)}, nil
}

func mapProviderStatus(status string) (ledger.PaymentStatus, error) {
	switch status {
	case ProviderSuccessful, ProviderPaid:
		return ledger.PaymentCompleted, nil
	case ProviderFailed:
		return ledger.PaymentFailed, nil
	}
	return "", fmt.Errorf("%w: %q", common.ErrInvalidPaymentStatus, status)
}

// Settle применяет результат оплаты. Подлинность уведомления проверяется до вызова.
func (s *Service) Settle(ctx context.Context, paymentID int64, providerStatus, providerRef string) (*SettleResult, error) {
	now := s.clock()
	res := &SettleResult{}

	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		p, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		res.Payment = p

		if p.Status != ledger.PaymentPending {
			return nil
		}

		next, err := mapProviderStatus(providerStatus)
		if err != nil {
			return err
		}
		return s.transition(ctx, tx, p, next, providerRef, now, res)
	})
	if err != nil {
		return nil, err
	}

	if res.Applied {
		log.WithFields(log.Fields{
			"payment_id": paymentID,
			"account_id": res.Payment.AccountID,
			"status":     res.Payment.Status,
			"tokens":     res.Payment.TokensAmount,
		}).Info("Платёж обработан")
	}
	return res, nil
}

// Get возвращает платёж по ID.
func (s *Service) Get(ctx context.Context, paymentID int64) (*ledger.Payment, error) {
	return s.store.GetPayment(ctx, paymentID)
}

// PriceMinor — сумма платежа в минимальных единицах валюты (центах).
func PriceMinor(p *ledger.Payment) int {
	return int(p.Amount.Shift(2).Round(0).IntPart())
}

// transition переводит заблокированный платёж в новый статус.
// Начисление происходит только при переходе pending → completed.
func (s *Service) transition(ctx context.Context, tx ledger.Tx, p *ledger.Payment, next ledger.PaymentStatus, providerRef string, now time.Time, res *SettleResult) error {
	credit := p.Status == ledger.PaymentPending && next == ledger.PaymentCompleted

	p.Status = next
	if credit {
		completedAt := now
		p.CompletedAt = &completedAt
		if providerRef != "" {
			ref := providerRef
			p.ProviderRef = &ref
		}
	}
	if err := tx.UpdatePayment(ctx, p); err != nil {
		return fmt.Errorf("ошибка обновления платежа: %w", err)
	}

	if credit {
		balance, err := tx.AdjustBalance(ctx, p.AccountID, p.TokensAmount)
		if err != nil {
			return err
		}
		res.Balance = &balance
	}
	res.Applied = true
	return nil
}

// History возвращает платежи пользователя (новые первыми).
func (s *Service) History(ctx context.Context, accountID int64, limit int) ([]ledger.Payment, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	list, err := s.store.ListPayments(ctx, ledger.PaymentFilter{AccountID: &accountID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории платежей: %w", err)
	}
	return list, nil
}

// ListAll — все платежи для админки, опционально по статусу. limit <= 0 — без ограничения.
func (s *Service) ListAll(ctx context.Context, status *ledger.PaymentStatus, limit int) ([]ledger.Payment, error) {
	list, err := s.store.ListPayments(ctx, ledger.PaymentFilter{Status: status, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("ошибка получения платежей: %w", err)
	}
	return list, nil
}

// SetStatus — ручная смена статуса админом.
// Допустимо: pending → completed (с начислением), pending → failed,
// completed → refunded (без списания). Тот же статус — без изменений.
func (s *Service) SetStatus(ctx context.Context, paymentID int64, next ledger.PaymentStatus) (*SettleResult, error) {
	now := s.clock()
	res := &SettleResult{}

	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		p, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		res.Payment = p

		if p.Status == next {
			return nil
		}
		if !allowedManual(p.Status, next) {
			return fmt.Errorf("%w: переход %s → %s запрещён", common.ErrInvalidPaymentStatus, p.Status, next)
		}
		return s.transition(ctx, tx, p, next, "manual:"+strconv.FormatInt(paymentID, 10), now, res)
	})
	if err != nil {
		return nil, err
	}

	if res.Applied {
		log.WithFields(log.Fields{
			"payment_id": paymentID,
			"status":     next,
		}).Warn("Статус платежа изменён вручную")
	}
	return res, nil
}

func allowedManual(from, to ledger.PaymentStatus) bool {
	switch from {
	case ledger.PaymentPending:
		return to == ledger.PaymentCompleted || to == ledger.PaymentFailed
	case ledger.PaymentCompleted:
		return to == ledger.PaymentRefunded
	}
	return false
}
