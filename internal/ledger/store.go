// Package ledger — store.go задаёт контракт хранилища.
//
// Все изменения баланса, счётчиков игр, запаса наград и статуса платежей
// выполняются только внутри Store.Atomic: функция получает Tx, читает строки
// с блокировкой и меняет их. Либо фиксируются все изменения, либо ни одно.
// Если хранилище недоступно, методы возвращают ошибку, оборачивающую
// common.ErrStoreUnavailable.
package ledger

import (
	"context"
	"time"
)

// Store — хранилище экономики.
type Store interface {
	Queries

	// Atomic выполняет fn в одной транзакции. Ошибка fn откатывает всё.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx — операции, доступные внутри атомарного блока.
// Методы Lock* блокируют строку до конца транзакции: параллельные блоки,
// затрагивающие ту же строку, выполняются последовательно.
type Tx interface {
	// --- Пользователи ---

	// LockAccount возвращает пользователя и блокирует его строку (common.ErrAccountNotFound).
	LockAccount(ctx context.Context, accountID int64) (*Account, error)
	// LockAccountByTelegramID — то же по Telegram ID.
	LockAccountByTelegramID(ctx context.Context, telegramID int64) (*Account, error)
	// FindAccountByCode ищет пользователя по Telegram ID (строкой) или никнейму.
	FindAccountByCode(ctx context.Context, code string) (*Account, error)
	// InsertAccount создаёт пользователя и заполняет ID.
	InsertAccount(ctx context.Context, a *Account) error
	// UpdateAccount сохраняет профиль (кроме баланса).
	UpdateAccount(ctx context.Context, a *Account) error
	// AdjustBalance меняет баланс на delta и возвращает новый баланс.
	// Если баланс стал бы отрицательным — common.ErrInsufficientTokens, без изменений.
	AdjustBalance(ctx context.Context, accountID int64, delta int64) (int64, error)

	// --- Игры ---

	// LockDailyCounter находит или создаёт счётчик за дату и блокирует его.
	LockDailyCounter(ctx context.Context, accountID int64, kind GameKind, date time.Time) (*DailyPlayCounter, error)
	// SetDailyCount записывает новое значение счётчика.
	SetDailyCount(ctx context.Context, accountID int64, kind GameKind, date time.Time, count int) error
	// InsertPlay добавляет запись об игре.
	InsertPlay(ctx context.Context, p *PlayRecord) error
	// CountPlays считает игры пользователя с момента since. kind == nil — все виды.
	CountPlays(ctx context.Context, accountID int64, kind *GameKind, since time.Time) (int, error)

	// --- Задания ---

	// LockCatalog блокирует каталог до конца транзакции и возвращает число заданий.
	// Параллельные заполнения каталога выполняются по очереди.
	LockCatalog(ctx context.Context) (int64, error)
	InsertTask(ctx context.Context, t *Task) error
	InsertReward(ctx context.Context, r *Reward) error
	GetTask(ctx context.Context, taskID int64) (*Task, error)
	// HasCompletion сообщает, есть ли выполнение задания за период.
	HasCompletion(ctx context.Context, accountID, taskID int64, period time.Time) (bool, error)
	// InsertCompletion записывает выполнение. Повтор за тот же период — common.ErrAlreadyCompleted.
	InsertCompletion(ctx context.Context, c *TaskCompletion) error

	// --- Награды ---

	LockReward(ctx context.Context, rewardID int64) (*Reward, error)
	SetRewardStock(ctx context.Context, rewardID int64, stock int) error
	InsertRedemption(ctx context.Context, r *Redemption) error

	// --- Платежи ---

	InsertPayment(ctx context.Context, p *Payment) error
	LockPayment(ctx context.Context, paymentID int64) (*Payment, error)
	UpdatePayment(ctx context.Context, p *Payment) error

	// --- Приглашения ---

	ReferralExists(ctx context.Context, referrerID, referredID int64) (bool, error)
	// IsReferred сообщает, был ли аккаунт уже приглашён кем-либо.
	IsReferred(ctx context.Context, accountID int64) (bool, error)
	InsertReferral(ctx context.Context, r *Referral) error
}

// AccountFilter — фильтр списка пользователей.
type AccountFilter struct {
	Role  *Role
	Limit int
}

// PaymentFilter — фильтр списка платежей. Нулевые поля не фильтруют.
type PaymentFilter struct {
	AccountID *int64
	Status    *PaymentStatus
	Limit     int
}

// Queries — чтение без блокировок и правки каталога.
// Выборки возвращают копии: изменения в них не попадают в хранилище.
type Queries interface {
	GetAccount(ctx context.Context, accountID int64) (*Account, error)
	ListAccounts(ctx context.Context, f AccountFilter) ([]Account, error)
	// Nicknames возвращает никнеймы пользователей одним запросом. Неизвестные ID пропускаются.
	Nicknames(ctx context.Context, accountIDs []int64) (map[int64]string, error)

	// ListPlays — последние игры пользователя (новые первыми). kind == nil — все.
	ListPlays(ctx context.Context, accountID int64, kind *GameKind, limit int) ([]PlayRecord, error)
	// DailyCounts — счётчики игр пользователя за UTC-дату.
	DailyCounts(ctx context.Context, accountID int64, date time.Time) (map[GameKind]int, error)
	// PruneDailyCounters удаляет счётчики за даты раньше before.
	PruneDailyCounters(ctx context.Context, before time.Time) (int64, error)

	// ListTasks — задания по возрастанию ID.
	ListTasks(ctx context.Context, activeOnly bool) ([]Task, error)
	// ListCompletions — выполнения пользователя (новые первыми). limit <= 0 — все.
	ListCompletions(ctx context.Context, accountID int64, limit int) ([]TaskCompletion, error)
	CreateTask(ctx context.Context, t *Task) error
	UpdateTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, taskID int64) error
	CountTasks(ctx context.Context) (int64, error)

	// ListRewards — награды по возрастанию ID.
	ListRewards(ctx context.Context, activeOnly bool) ([]Reward, error)
	GetReward(ctx context.Context, rewardID int64) (*Reward, error)
	ListRedemptions(ctx context.Context, accountID int64, limit int) ([]Redemption, error)
	CreateReward(ctx context.Context, r *Reward) error
	UpdateReward(ctx context.Context, r *Reward) error
	DeleteReward(ctx context.Context, rewardID int64) error

	GetPayment(ctx context.Context, paymentID int64) (*Payment, error)
	ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, error)

	Stats(ctx context.Context) (*Stats, error)
}
