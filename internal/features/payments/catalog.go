// Package payments — catalog.go: пакеты токенов для покупки.
package payments

import (
	"github.com/shopspring/decimal"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/ledger"
)

// Currency — валюта всех пакетов.
const Currency = "USD"

// Package — пакет токенов.
type Package struct {
	ID          string               `json:"id"`
	Tokens      int64                `json:"tokens"`
	Price       decimal.Decimal      `json:"price"`
	Currency    string               `json:"currency"`
	Description ledger.LocalizedText `json:"description"`
}

// Packages — каталог пакетов в порядке отображения.
var Packages = []Package{
	{
		ID: "small", Tokens: 100, Price: decimal.RequireFromString("1.99"), Currency: Currency,
		Description: ledger.LocalizedText{EN: "Small package", RU: "Малый пакет"},
	},
	{
		ID: "medium", Tokens: 300, Price: decimal.RequireFromString("4.99"), Currency: Currency,
		Description: ledger.LocalizedText{EN: "Medium package", RU: "Средний пакет"},
	},
	{
		ID: "large", Tokens: 500, Price: decimal.RequireFromString("7.99"), Currency: Currency,
		Description: ledger.LocalizedText{EN: "Large package", RU: "Большой пакет"},
	},
	{
		ID: "premium", Tokens: 1000, Price: decimal.RequireFromString("14.99"), Currency: Currency,
		Description: ledger.LocalizedText{EN: "Premium package", RU: "Премиум пакет"},
	},
}

// FindPackage ищет пакет по ID.
func FindPackage(id string) (Package, error) {
	for _, p := range Packages {
		if p.ID == id {
			return p, nil
		}
	}
	return Package{}, common.InvalidInput("неизвестный пакет %q", id)
}
