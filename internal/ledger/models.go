// Package ledger описывает хранилище токенов: сущности экономики и контракт
// атомарных операций над ними.
// models.go — структуры данных и закрытые перечисления.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"serotonyl.ru/flip-bot/internal/common"
)

// GameKind — вид игры.
type GameKind string

const (
	GameCoin  GameKind = "coin"
	GameBall  GameKind = "ball"
	GameTarot GameKind = "tarot"
)

// GameKinds — все виды игр в порядке отображения.
var GameKinds = []GameKind{GameCoin, GameBall, GameTarot}

// ParseGameKind принимает как короткие имена, так и имена из API мини-приложения
// (flip_coin, magic_ball, tarot_card).
func ParseGameKind(s string) (GameKind, error) {
	switch s {
	case "coin", "flip_coin":
		return GameCoin, nil
	case "ball", "magic_ball":
		return GameBall, nil
	case "tarot", "tarot_card":
		return GameTarot, nil
	}
	return "", common.InvalidInput("неизвестный вид игры %q", s)
}

// APIName возвращает имя игры в API мини-приложения.
func (k GameKind) APIName() string {
	switch k {
	case GameCoin:
		return "flip_coin"
	case GameBall:
		return "magic_ball"
	case GameTarot:
		return "tarot_card"
	}
	return string(k)
}

// TaskKind — вид задания.
type TaskKind string

const (
	TaskDaily       TaskKind = "daily"
	TaskWeekly      TaskKind = "weekly"
	TaskAchievement TaskKind = "achievement"
	TaskSpecial     TaskKind = "special"
)

func ParseTaskKind(s string) (TaskKind, error) {
	switch k := TaskKind(s); k {
	case TaskDaily, TaskWeekly, TaskAchievement, TaskSpecial:
		return k, nil
	}
	return "", common.InvalidInput("неизвестный вид задания %q", s)
}

// Role — роль пользователя.
type Role string

const (
	RoleUser   Role = "user"
	RoleTester Role = "tester"
	RoleAdmin  Role = "admin"
)

// Roles — все роли.
var Roles = []Role{RoleAdmin, RoleTester, RoleUser}

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleTester, RoleAdmin:
		return r, nil
	}
	return "", common.InvalidInput("неизвестная роль %q", s)
}

// PaymentStatus — состояние платежа.
//
//	pending → completed → refunded
//	pending → failed
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(s); st {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return st, nil
	}
	return "", common.InvalidInput("неизвестный статус платежа %q", s)
}

// Поддерживаемые языки. Всё остальное приводится к английскому.
const (
	LocaleEN = "en"
	LocaleRU = "ru"
)

// NormalizeLocale обрезает код языка Telegram (ru-RU → ru) и отбрасывает неподдерживаемые.
func NormalizeLocale(code string) string {
	if len(code) >= 2 && code[:2] == LocaleRU {
		return LocaleRU
	}
	return LocaleEN
}

// StartingBalance — баланс нового пользователя.
const StartingBalance int64 = 100

// Account — пользователь мини-приложения. Баланс никогда не бывает отрицательным.
type Account struct {
	ID           int64     `db:"id" json:"id"`
	TelegramID   int64     `db:"telegram_id" json:"telegram_id"`
	Username     string    `db:"username" json:"username,omitempty"`
	FirstName    string    `db:"first_name" json:"first_name,omitempty"`
	LastName     string    `db:"last_name" json:"last_name,omitempty"`
	Nickname     string    `db:"nickname" json:"nickname"`
	Balance      int64     `db:"balance" json:"flip_tokens"`
	Locale       string    `db:"locale" json:"language"`
	SoundEnabled bool      `db:"sound_enabled" json:"sound_enabled"`
	Role         Role      `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	LastLogin    time.Time `db:"last_login" json:"last_login"`
}

// PlayRecord — одна сыгранная игра. Записи только добавляются.
type PlayRecord struct {
	ID           int64     `db:"id" json:"id"`
	AccountID    int64     `db:"account_id" json:"-"`
	Kind         GameKind  `db:"game_kind" json:"game_type"`
	Result       string    `db:"result" json:"result"`
	TokensEarned int64     `db:"tokens_earned" json:"tokens_earned"`
	PlayedAt     time.Time `db:"played_at" json:"played_at"`
}

// DailyPlayCounter — сколько раз пользователь сыграл в игру за UTC-сутки.
type DailyPlayCounter struct {
	AccountID int64     `db:"account_id"`
	Kind      GameKind  `db:"game_kind"`
	Date      time.Time `db:"play_date"`
	Count     int       `db:"count"`
}

// LocalizedText — текст на поддерживаемых языках.
type LocalizedText struct {
	EN string `json:"en"`
	RU string `json:"ru"`
}

// For возвращает текст на языке пользователя, с откатом на английский.
func (t LocalizedText) For(locale string) string {
	if locale == LocaleRU && t.RU != "" {
		return t.RU
	}
	return t.EN
}

// Task — задание из каталога (создаётся админом).
type Task struct {
	ID            int64         `db:"id" json:"id"`
	Kind          TaskKind      `db:"task_kind" json:"task_type"`
	Title         LocalizedText `json:"title"`
	Description   LocalizedText `json:"description"`
	RewardTokens  int64         `db:"reward_tokens" json:"reward_tokens"`
	RequiredGame  *GameKind     `db:"required_game_kind" json:"required_game_type"`
	RequiredCount int           `db:"required_count" json:"required_count"`
	Active        bool          `db:"is_active" json:"is_active"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	ExpiresAt     *time.Time    `db:"expires_at" json:"expires_at"`
}

// Expired сообщает, истёк ли срок задания к моменту now.
func (t *Task) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// CompletionPeriod возвращает ключ уникальности выполнения:
// для ежедневных заданий — UTC-дата, для остальных — фиксированная дата.
func (t *Task) CompletionPeriod(now time.Time) time.Time {
	if t.Kind == TaskDaily {
		return common.UTCDate(now)
	}
	return OncePeriod
}

// OncePeriod — ключ для заданий, выполняемых один раз навсегда.
var OncePeriod = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// TaskCompletion — факт выполнения задания.
type TaskCompletion struct {
	ID            int64     `db:"id" json:"id"`
	AccountID     int64     `db:"account_id" json:"-"`
	TaskID        int64     `db:"task_id" json:"task_id"`
	Period        time.Time `db:"period" json:"-"`
	TokensAwarded int64     `db:"tokens_awarded" json:"tokens_awarded"`
	CompletedAt   time.Time `db:"completed_at" json:"completed_at"`
}

// Reward — награда из каталога. Stock == nil означает неограниченный запас.
type Reward struct {
	ID          int64         `db:"id" json:"id"`
	Name        LocalizedText `json:"name"`
	Description LocalizedText `json:"description"`
	Image       string        `db:"image" json:"image"`
	Cost        int64         `db:"cost" json:"cost"`
	Active      bool          `db:"is_active" json:"is_active"`
	Stock       *int          `db:"stock" json:"stock"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}

// InStock сообщает, можно ли выдать ещё одну единицу.
func (r *Reward) InStock() bool {
	return r.Stock == nil || *r.Stock > 0
}

// Redemption — обмен токенов на награду.
type Redemption struct {
	ID          int64     `db:"id" json:"id"`
	AccountID   int64     `db:"account_id" json:"-"`
	RewardID    int64     `db:"reward_id" json:"reward_id"`
	TokensSpent int64     `db:"tokens_spent" json:"tokens_spent"`
	RedeemedAt  time.Time `db:"redeemed_at" json:"redeemed_at"`
}

// Payment — покупка токенов через платёжного провайдера.
type Payment struct {
	ID           int64           `db:"id" json:"id"`
	AccountID    int64           `db:"account_id" json:"user_id"`
	PackageID    string          `db:"package_id" json:"package_id"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Currency     string          `db:"currency" json:"currency"`
	TokensAmount int64           `db:"tokens_amount" json:"tokens_amount"`
	Status       PaymentStatus   `db:"status" json:"status"`
	ProviderRef  *string         `db:"provider_ref" json:"telegram_payment_id,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	CompletedAt  *time.Time      `db:"completed_at" json:"completed_at"`
}

// Referral — приглашение одного пользователя другим.
type Referral struct {
	ID          int64     `db:"id"`
	ReferrerID  int64     `db:"referrer_id"`
	ReferredID  int64     `db:"referred_id"`
	RewardGiven bool      `db:"reward_given"`
	CreatedAt   time.Time `db:"created_at"`
}

// Stats — сводная статистика для админки.
type Stats struct {
	Users struct {
		Total  int64          `json:"total"`
		ByRole map[Role]int64 `json:"by_role"`
	} `json:"users"`
	Games struct {
		Total  int64              `json:"total"`
		ByKind map[GameKind]int64 `json:"by_type"`
	} `json:"games"`
	Tasks struct {
		Total     int64 `json:"total"`
		Completed int64 `json:"completed"`
	} `json:"tasks"`
	Rewards struct {
		Total    int64 `json:"total"`
		Redeemed int64 `json:"redeemed"`
	} `json:"rewards"`
	Payments struct {
		Total     int64 `json:"total"`
		Completed int64 `json:"completed"`
	} `json:"payments"`
	Tokens struct {
		TotalInSystem int64 `json:"total_in_system"`
	} `json:"tokens"`
}
