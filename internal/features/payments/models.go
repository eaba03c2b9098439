// Package payments — models.go содержит представления платежей для клиента.
package payments

import (
	"github.com/shopspring/decimal"

	"serotonyl.ru/flip-bot/internal/ledger"
)

// PackageView — пакет на языке пользователя.
type PackageView struct {
	ID          string          `json:"id"`
	Tokens      int64           `json:"tokens"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
}

// CreateResult — созданный платёж и ссылка на оплату в боте.
type CreateResult struct {
	Payment     *ledger.Payment `json:"payment"`
	PaymentLink string          `json:"payment_link"`
}

// SettleResult — состояние платежа после вебхука.
// Applied == false, если платёж уже был в конечном состоянии.
type SettleResult struct {
	Payment *ledger.Payment `json:"payment"`
	Applied bool            `json:"applied"`
	Balance *int64          `json:"current_balance,omitempty"`
}
