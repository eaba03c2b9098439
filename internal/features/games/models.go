// Package games — models.go содержит структуры запросов и результатов игр.
package games

import "serotonyl.ru/flip-bot/internal/ledger"

// Params — входные данные игры. Question нужен только магическому шару.
type Params struct {
	Question string `json:"question"`
}

// CardView — карта таро на языке пользователя.
type CardView struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Meaning string `json:"meaning"`
}

// Outcome — исход розыгрыша до записи в хранилище.
type Outcome struct {
	Result string
	Card   *CardView
}

// PlayResult — результат одной игры.
type PlayResult struct {
	Kind         ledger.GameKind `json:"game_type"`
	Result       string          `json:"result"`
	Question     string          `json:"question,omitempty"`
	Card         *CardView       `json:"card,omitempty"`
	TokensEarned int64           `json:"tokens_earned"`
	Balance      int64           `json:"current_balance"`
	PlaysToday   int             `json:"plays_today"`
	MaxPlays     int             `json:"max_plays"`
}

// Limit — сколько сыграно сегодня и сколько можно.
type Limit struct {
	Kind    ledger.GameKind `json:"-"`
	Current int             `json:"current"`
	Max     int             `json:"max"`
}
