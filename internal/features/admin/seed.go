package admin

import "serotonyl.ru/flip-bot/internal/ledger"

func gamePtr(k ledger.GameKind) *ledger.GameKind { return &k }

func stockPtr(n int) *int { return &n }

// seedTasks — начальный каталог заданий.
var seedTasks = []ledger.Task{
	{
		Kind:          ledger.TaskDaily,
		Title:         ledger.LocalizedText{EN: "Play Flip Coin 5 times", RU: "Сыграть в Орел или Решка 5 раз"},
		Description:   ledger.LocalizedText{EN: "Flip the coin 5 times in a single day", RU: "Подбросить монетку 5 раз за один день"},
		RewardTokens:  10,
		RequiredGame:  gamePtr(ledger.GameCoin),
		RequiredCount: 5,
	},
	{
		Kind:          ledger.TaskDaily,
		Title:         ledger.LocalizedText{EN: "Ask the Magic Ball", RU: "Спросить Магический Шар"},
		Description:   ledger.LocalizedText{EN: "Ask the Magic 8 Ball a question", RU: "Задать вопрос Магическому Шару"},
		RewardTokens:  15,
		RequiredGame:  gamePtr(ledger.GameBall),
		RequiredCount: 1,
	},
	{
		Kind:          ledger.TaskDaily,
		Title:         ledger.LocalizedText{EN: "Draw a Tarot Card", RU: "Вытянуть карту Таро"},
		Description:   ledger.LocalizedText{EN: "Draw a Tarot Card for daily guidance", RU: "Вытянуть карту Таро для ежедневного руководства"},
		RewardTokens:  20,
		RequiredGame:  gamePtr(ledger.GameTarot),
		RequiredCount: 1,
	},
	{
		Kind:          ledger.TaskWeekly,
		Title:         ledger.LocalizedText{EN: "Flip Coin Master", RU: "Мастер Монетки"},
		Description:   ledger.LocalizedText{EN: "Flip the coin 30 times in a week", RU: "Подбросить монетку 30 раз за неделю"},
		RewardTokens:  50,
		RequiredGame:  gamePtr(ledger.GameCoin),
		RequiredCount: 30,
	},
	{
		Kind:          ledger.TaskWeekly,
		Title:         ledger.LocalizedText{EN: "Fortune Teller", RU: "Предсказатель"},
		Description:   ledger.LocalizedText{EN: "Play 20 games of any kind in a week", RU: "Сыграть 20 игр любого вида за неделю"},
		RewardTokens:  75,
		RequiredCount: 20,
	},
	{
		Kind:          ledger.TaskAchievement,
		Title:         ledger.LocalizedText{EN: "Coin Flip Addict", RU: "Зависимость от Монетки"},
		Description:   ledger.LocalizedText{EN: "Flip the coin 1000 times", RU: "Подбросить монетку 1000 раз"},
		RewardTokens:  200,
		RequiredGame:  gamePtr(ledger.GameCoin),
		RequiredCount: 1000,
	},
	{
		Kind:          ledger.TaskAchievement,
		Title:         ledger.LocalizedText{EN: "Mystic Master", RU: "Мастер Мистики"},
		Description:   ledger.LocalizedText{EN: "Play 500 games of any kind", RU: "Сыграть 500 игр любого вида"},
		RewardTokens:  300,
		RequiredCount: 500,
	},
}

// seedRewards — начальный каталог наград.
var seedRewards = []ledger.Reward{
	{
		Name:        ledger.LocalizedText{EN: "Coin Sticker Pack", RU: "Стикерпак 'Монетки'"},
		Description: ledger.LocalizedText{EN: "10 coin-themed stickers for Telegram", RU: "Набор из 10 стикеров с монетками для Telegram"},
		Image:       "🎭",
		Cost:        50,
		Stock:       stockPtr(100),
	},
	{
		Name:        ledger.LocalizedText{EN: "VIP Status", RU: "VIP статус"},
		Description: ledger.LocalizedText{EN: "Special status in the app and access to exclusive games", RU: "Особый статус в приложении и доступ к эксклюзивным играм"},
		Image:       "👑",
		Cost:        100,
		Stock:       stockPtr(50),
	},
	{
		Name:        ledger.LocalizedText{EN: "Custom Theme", RU: "Кастомная тема"},
		Description: ledger.LocalizedText{EN: "Unique theme for the application", RU: "Уникальная тема оформления для приложения"},
		Image:       "🎨",
		Cost:        75,
		Stock:       stockPtr(30),
	},
	{
		Name:        ledger.LocalizedText{EN: "Premium Avatar", RU: "Премиум аватар"},
		Description: ledger.LocalizedText{EN: "Exclusive avatar for your profile", RU: "Эксклюзивный аватар для вашего профиля"},
		Image:       "🧩",
		Cost:        60,
		Stock:       stockPtr(40),
	},
}
