// Package payments — webhook.go: уведомления платёжного провайдера.
package payments

import (
	"context"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/flip-bot/internal/common"
)

// Authenticator проверяет подпись полей уведомления.
type Authenticator interface {
	Verify(fields map[string]string) error
}

// Поля уведомления
const (
	FieldPaymentID   = "payment_id"
	FieldStatus      = "status"
	FieldProviderRef = "telegram_payment_id"
)

// Webhook проверяет подлинность уведомления и применяет его.
// Неподписанное или поддельное уведомление ничего не меняет.
type Webhook struct {
	service *Service
	auth    Authenticator
}

// NewWebhook создаёт обработку уведомлений.
func NewWebhook(service *Service, auth Authenticator) *Webhook {
	return &Webhook{service: service, auth: auth}
}

// Handle проверяет подпись, затем переводит платёж в новое состояние.
func (w *Webhook) Handle(ctx context.Context, fields map[string]string) (*SettleResult, error) {
	if err := w.auth.Verify(fields); err != nil {
		log.WithField("payment_id", fields[FieldPaymentID]).WithError(err).Warn("Отклонено уведомление о платеже")
		return nil, err
	}

	raw := fields[FieldPaymentID]
	if raw == "" {
		return nil, common.InvalidInput("не указан %s", FieldPaymentID)
	}
	paymentID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || paymentID <= 0 {
		return nil, common.InvalidInput("некорректный %s", FieldPaymentID)
	}

	res, err := w.service.Settle(ctx, paymentID, fields[FieldStatus], fields[FieldProviderRef])
	if err != nil {
		return nil, fmt.Errorf("платёж %d: %w", paymentID, err)
	}
	return res, nil
}
