// Package rewards — models.go содержит представления наград для клиента.
package rewards

import (
	"time"

	"serotonyl.ru/flip-bot/internal/ledger"
)

// CatalogItem — награда на языке пользователя.
type CatalogItem struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Cost        int64  `json:"cost"`
	Stock       *int   `json:"stock"`
	CanAfford   bool   `json:"can_afford"`
}

// Catalog — список наград и текущий баланс.
type Catalog struct {
	Rewards []CatalogItem `json:"rewards"`
	Balance int64         `json:"user_balance"`
}

// RedeemResult — итог обмена токенов.
type RedeemResult struct {
	RedemptionID int64 `json:"redemption_id"`
	RewardID     int64 `json:"reward_id"`
	TokensSpent  int64 `json:"tokens_spent"`
	Balance      int64 `json:"current_balance"`
	StockLeft    *int  `json:"stock_left,omitempty"`
}

// HistoryItem — запись истории обменов.
type HistoryItem struct {
	ID          int64                `json:"id"`
	RewardID    int64                `json:"reward_id"`
	Name        ledger.LocalizedText `json:"name"`
	TokensSpent int64                `json:"tokens_spent"`
	RedeemedAt  time.Time            `json:"redeemed_at"`
}
