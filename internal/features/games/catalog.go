// Package games — catalog.go: статические таблицы игр.
// Значения только читаются, менять их во время работы нельзя.
package games

import "serotonyl.ru/flip-bot/internal/ledger"

// DailyCaps — сколько раз за UTC-сутки можно сыграть в каждую игру.
var DailyCaps = map[ledger.GameKind]int{
	ledger.GameCoin:  50,
	ledger.GameBall:  30,
	ledger.GameTarot: 20,
}

// Rewards — сколько токенов приносит одна игра.
var Rewards = map[ledger.GameKind]int64{
	ledger.GameCoin:  1,
	ledger.GameBall:  2,
	ledger.GameTarot: 3,
}

// Стороны монеты
const (
	Heads = "heads"
	Tails = "tails"
)

// BallAnswers — ответы магического шара.
var BallAnswers = []ledger.LocalizedText{
	{EN: "Definitely yes", RU: "Определенно да"},
	{EN: "Very likely", RU: "Весьма вероятно"},
	{EN: "Perhaps", RU: "Возможно"},
	{EN: "Ask again later", RU: "Спросите позже"},
	{EN: "Cannot predict now", RU: "Не могу предсказать сейчас"},
	{EN: "Don't count on it", RU: "Не рассчитывайте на это"},
	{EN: "My sources say no", RU: "Мои источники говорят нет"},
	{EN: "Definitely no", RU: "Определенно нет"},
}

// TarotCard — карта колоды.
type TarotCard struct {
	ID      int
	Name    ledger.LocalizedText
	Meaning ledger.LocalizedText
}

// TarotDeck — старшие арканы, которые выпадают в игре.
var TarotDeck = []TarotCard{
	{1, ledger.LocalizedText{EN: "The Fool", RU: "Шут"},
		ledger.LocalizedText{EN: "New beginnings, spontaneity, freedom, risk, potential", RU: "Новые начинания, спонтанность, свобода, риск, потенциал"}},
	{2, ledger.LocalizedText{EN: "The Magician", RU: "Маг"},
		ledger.LocalizedText{EN: "Manifestation, willpower, skill, inspiration", RU: "Проявление, сила воли, мастерство, вдохновение"}},
	{3, ledger.LocalizedText{EN: "The High Priestess", RU: "Верховная Жрица"},
		ledger.LocalizedText{EN: "Intuition, unconscious, divine feminine", RU: "Интуиция, подсознание, божественное женское начало"}},
	{4, ledger.LocalizedText{EN: "The Empress", RU: "Императрица"},
		ledger.LocalizedText{EN: "Fertility, femininity, beauty, nature, abundance", RU: "Плодородие, женственность, красота, природа, изобилие"}},
	{5, ledger.LocalizedText{EN: "The Emperor", RU: "Император"},
		ledger.LocalizedText{EN: "Authority, structure, control, fatherhood", RU: "Авторитет, структура, контроль, отцовская фигура"}},
	{6, ledger.LocalizedText{EN: "The Hierophant", RU: "Иерофант"},
		ledger.LocalizedText{EN: "Spiritual wisdom, religious beliefs, tradition", RU: "Духовная мудрость, религиозные убеждения, традиции"}},
	{7, ledger.LocalizedText{EN: "The Lovers", RU: "Влюбленные"},
		ledger.LocalizedText{EN: "Love, harmony, relationships, choices, alignment of values", RU: "Любовь, гармония, отношения, выбор, выравнивание ценностей"}},
	{8, ledger.LocalizedText{EN: "The Chariot", RU: "Колесница"},
		ledger.LocalizedText{EN: "Control, willpower, victory, assertion, determination", RU: "Контроль, сила воли, победа, напор, решительность"}},
}
