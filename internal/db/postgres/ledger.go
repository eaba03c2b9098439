// Package postgres — ledger.go реализует ledger.Store поверх PostgreSQL.
//
// Atomic открывает транзакцию, Lock-методы читают строки через
// SELECT ... FOR UPDATE. Ограничения схемы (CHECK balance >= 0, уникальные
// ключи счётчиков и выполнений) страхуют инварианты на уровне базы.
package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/ledger"
)

// querier — общее подмножество pgxpool.Pool и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store — хранилище экономики в PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

var _ ledger.Store = (*Store)(nil)

// NewStore создаёт хранилище поверх пула соединений.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Atomic выполняет fn в транзакции READ COMMITTED.
// Ошибка fn откатывает транзакцию и возвращается без изменений.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return wrap(err, "начала транзакции", nil)
	}
	// Откатываем транзакцию, если что-то пошло не так
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.WithError(rbErr).Warn("Ошибка отката транзакции")
		}
	}()

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrap(err, "фиксации транзакции", nil)
	}
	return nil
}

// ============================================================================
// Сканирование строк
// ============================================================================

const accountColumns = `id, telegram_id, username, first_name, last_name, nickname,
	balance, locale, sound_enabled, role, created_at, last_login`

func scanAccount(row pgx.Row) (*ledger.Account, error) {
	var a ledger.Account
	var role string
	err := row.Scan(
		&a.ID, &a.TelegramID, &a.Username, &a.FirstName, &a.LastName, &a.Nickname,
		&a.Balance, &a.Locale, &a.SoundEnabled, &role, &a.CreatedAt, &a.LastLogin,
	)
	if err != nil {
		return nil, err
	}
	a.Role = ledger.Role(role)
	return &a, nil
}

const taskColumns = `id, task_kind, title_en, title_ru, description_en, description_ru,
	reward_tokens, required_game_kind, required_count, is_active, created_at, expires_at`

func scanTask(row pgx.Row) (*ledger.Task, error) {
	var t ledger.Task
	var kind string
	var game *string
	err := row.Scan(
		&t.ID, &kind, &t.Title.EN, &t.Title.RU, &t.Description.EN, &t.Description.RU,
		&t.RewardTokens, &game, &t.RequiredCount, &t.Active, &t.CreatedAt, &t.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	t.Kind = ledger.TaskKind(kind)
	if game != nil {
		g := ledger.GameKind(*game)
		t.RequiredGame = &g
	}
	return &t, nil
}

const rewardColumns = `id, name_en, name_ru, description_en, description_ru, image,
	cost, is_active, stock, created_at`

func scanReward(row pgx.Row) (*ledger.Reward, error) {
	var r ledger.Reward
	err := row.Scan(
		&r.ID, &r.Name.EN, &r.Name.RU, &r.Description.EN, &r.Description.RU, &r.Image,
		&r.Cost, &r.Active, &r.Stock, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const paymentColumns = `id, account_id, package_id, amount, currency, tokens_amount,
	status, provider_ref, created_at, completed_at`

func scanPayment(row pgx.Row) (*ledger.Payment, error) {
	var p ledger.Payment
	var status string
	err := row.Scan(
		&p.ID, &p.AccountID, &p.PackageID, &p.Amount, &p.Currency, &p.TokensAmount,
		&status, &p.ProviderRef, &p.CreatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = ledger.PaymentStatus(status)
	return &p, nil
}

func gameArg(kind *ledger.GameKind) any {
	if kind == nil {
		return nil
	}
	return string(*kind)
}

// ============================================================================
// Tx
// ============================================================================

type pgTx struct {
	q querier
}

func (t *pgTx) LockAccount(ctx context.Context, accountID int64) (*ledger.Account, error) {
	a, err := scanAccount(t.q.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, accountID))
	return a, wrap(err, "блокировки пользователя", common.ErrAccountNotFound)
}

func (t *pgTx) LockAccountByTelegramID(ctx context.Context, telegramID int64) (*ledger.Account, error) {
	a, err := scanAccount(t.q.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE telegram_id = $1 FOR UPDATE`, telegramID))
	return a, wrap(err, "блокировки пользователя", common.ErrAccountNotFound)
}

func (t *pgTx) FindAccountByCode(ctx context.Context, code string) (*ledger.Account, error) {
	var tgID any
	if v, err := strconv.ParseInt(code, 10, 64); err == nil {
		tgID = v
	}
	a, err := scanAccount(t.q.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE telegram_id = $1 OR (nickname <> '' AND nickname = $2)
		ORDER BY id
		LIMIT 1
	`, tgID, code))
	return a, wrap(err, "поиска пользователя", common.ErrAccountNotFound)
}

func (t *pgTx) InsertAccount(ctx context.Context, a *ledger.Account) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO accounts (telegram_id, username, first_name, last_name, nickname,
			balance, locale, sound_enabled, role, created_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, a.TelegramID, a.Username, a.FirstName, a.LastName, a.Nickname,
		a.Balance, a.Locale, a.SoundEnabled, string(a.Role), a.CreatedAt, a.LastLogin,
	).Scan(&a.ID)
	if isUniqueViolation(err) {
		return common.InvalidInput("пользователь с telegram_id %d уже существует", a.TelegramID)
	}
	return wrap(err, "создания пользователя", nil)
}

func (t *pgTx) UpdateAccount(ctx context.Context, a *ledger.Account) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE accounts
		SET username = $2, first_name = $3, last_name = $4, nickname = $5,
			locale = $6, sound_enabled = $7, role = $8, last_login = $9
		WHERE id = $1
	`, a.ID, a.Username, a.FirstName, a.LastName, a.Nickname,
		a.Locale, a.SoundEnabled, string(a.Role), a.LastLogin)
	if err != nil {
		return wrap(err, "обновления пользователя", nil)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrAccountNotFound
	}
	return nil
}

func (t *pgTx) AdjustBalance(ctx context.Context, accountID int64, delta int64) (int64, error) {
	var balance int64
	err := t.q.QueryRow(ctx, `
		UPDATE accounts SET balance = balance + $2
		WHERE id = $1 AND balance + $2 >= 0
		RETURNING balance
	`, accountID, delta).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, wrap(err, "изменения баланса", nil)
	}

	// Ни одна строка не обновлена: либо пользователя нет, либо не хватает токенов
	err = t.q.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		return 0, wrap(err, "получения баланса", common.ErrAccountNotFound)
	}
	return balance, &common.InsufficientTokensError{Required: -delta, Balance: balance}
}

func (t *pgTx) LockDailyCounter(ctx context.Context, accountID int64, kind ledger.GameKind, date time.Time) (*ledger.DailyPlayCounter, error) {
	c := ledger.DailyPlayCounter{AccountID: accountID, Kind: kind, Date: common.UTCDate(date)}
	// DO UPDATE без изменения значения блокирует строку так же, как FOR UPDATE
	err := t.q.QueryRow(ctx, `
		INSERT INTO daily_play_counters (account_id, game_kind, play_date, count)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (account_id, game_kind, play_date)
		DO UPDATE SET count = daily_play_counters.count
		RETURNING count
	`, accountID, string(kind), c.Date).Scan(&c.Count)
	if err != nil {
		return nil, wrap(err, "блокировки счётчика игр", nil)
	}
	return &c, nil
}

func (t *pgTx) SetDailyCount(ctx context.Context, accountID int64, kind ledger.GameKind, date time.Time, count int) error {
	_, err := t.q.Exec(ctx, `
		UPDATE daily_play_counters SET count = $4
		WHERE account_id = $1 AND game_kind = $2 AND play_date = $3
	`, accountID, string(kind), common.UTCDate(date), count)
	return wrap(err, "обновления счётчика игр", nil)
}

func (t *pgTx) InsertPlay(ctx context.Context, p *ledger.PlayRecord) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO play_records (account_id, game_kind, result, tokens_earned, played_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, p.AccountID, string(p.Kind), p.Result, p.TokensEarned, p.PlayedAt).Scan(&p.ID)
	return wrap(err, "записи игры", nil)
}

func (t *pgTx) CountPlays(ctx context.Context, accountID int64, kind *ledger.GameKind, since time.Time) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM play_records
		WHERE account_id = $1 AND played_at >= $2 AND ($3::text IS NULL OR game_kind = $3)
	`, accountID, since, gameArg(kind)).Scan(&n)
	return n, wrap(err, "подсчёта игр", nil)
}

func (t *pgTx) GetTask(ctx context.Context, taskID int64) (*ledger.Task, error) {
	task, err := scanTask(t.q.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID))
	return task, wrap(err, "получения задания", common.ErrTaskNotFound)
}

func (t *pgTx) HasCompletion(ctx context.Context, accountID, taskID int64, period time.Time) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM task_completions
			WHERE account_id = $1 AND task_id = $2 AND period = $3)
	`, accountID, taskID, period).Scan(&exists)
	return exists, wrap(err, "проверки выполнения задания", nil)
}

func (t *pgTx) InsertCompletion(ctx context.Context, c *ledger.TaskCompletion) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO task_completions (account_id, task_id, period, tokens_awarded, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, c.AccountID, c.TaskID, c.Period, c.TokensAwarded, c.CompletedAt).Scan(&c.ID)
	if isUniqueViolation(err) {
		return common.ErrAlreadyCompleted
	}
	return wrap(err, "записи выполнения задания", nil)
}

func (t *pgTx) LockReward(ctx context.Context, rewardID int64) (*ledger.Reward, error) {
	r, err := scanReward(t.q.QueryRow(ctx,
		`SELECT `+rewardColumns+` FROM rewards WHERE id = $1 FOR UPDATE`, rewardID))
	return r, wrap(err, "блокировки награды", common.ErrRewardNotFound)
}

func (t *pgTx) SetRewardStock(ctx context.Context, rewardID int64, stock int) error {
	tag, err := t.q.Exec(ctx, `UPDATE rewards SET stock = $2 WHERE id = $1`, rewardID, stock)
	if isCheckViolation(err) {
		return common.ErrOutOfStock
	}
	if err != nil {
		return wrap(err, "обновления запаса награды", nil)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrRewardNotFound
	}
	return nil
}

func (t *pgTx) InsertRedemption(ctx context.Context, r *ledger.Redemption) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO redemptions (account_id, reward_id, tokens_spent, redeemed_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, r.AccountID, r.RewardID, r.TokensSpent, r.RedeemedAt).Scan(&r.ID)
	return wrap(err, "записи обмена", nil)
}

func (t *pgTx) InsertPayment(ctx context.Context, p *ledger.Payment) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO payments (account_id, package_id, amount, currency, tokens_amount,
			status, provider_ref, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, p.AccountID, p.PackageID, p.Amount, p.Currency, p.TokensAmount,
		string(p.Status), p.ProviderRef, p.CreatedAt, p.CompletedAt,
	).Scan(&p.ID)
	return wrap(err, "создания платежа", nil)
}

func (t *pgTx) LockPayment(ctx context.Context, paymentID int64) (*ledger.Payment, error) {
	p, err := scanPayment(t.q.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, paymentID))
	return p, wrap(err, "блокировки платежа", common.ErrPaymentNotFound)
}

func (t *pgTx) UpdatePayment(ctx context.Context, p *ledger.Payment) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE payments SET status = $2, provider_ref = $3, completed_at = $4
		WHERE id = $1
	`, p.ID, string(p.Status), p.ProviderRef, p.CompletedAt)
	if err != nil {
		return wrap(err, "обновления платежа", nil)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrPaymentNotFound
	}
	return nil
}

func (t *pgTx) ReferralExists(ctx context.Context, referrerID, referredID int64) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM referrals WHERE referrer_id = $1 AND referred_id = $2)
	`, referrerID, referredID).Scan(&exists)
	return exists, wrap(err, "проверки приглашения", nil)
}

// catalogLockKey — ключ advisory-блокировки заполнения каталога.
const catalogLockKey = 20240602

func (t *pgTx) LockCatalog(ctx context.Context) (int64, error) {
	if _, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, catalogLockKey); err != nil {
		return 0, wrap(err, "блокировки каталога", nil)
	}
	var n int64
	err := t.q.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n)
	return n, wrap(err, "подсчёта заданий", nil)
}

func (t *pgTx) InsertTask(ctx context.Context, task *ledger.Task) error {
	return insertTask(ctx, t.q, task)
}

func (t *pgTx) InsertReward(ctx context.Context, r *ledger.Reward) error {
	return insertReward(ctx, t.q, r)
}

func (t *pgTx) IsReferred(ctx context.Context, accountID int64) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM referrals WHERE referred_id = $1)
	`, accountID).Scan(&exists)
	return exists, wrap(err, "проверки приглашения", nil)
}

func (t *pgTx) InsertReferral(ctx context.Context, r *ledger.Referral) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO referrals (referrer_id, referred_id, reward_given, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, r.ReferrerID, r.ReferredID, r.RewardGiven, r.CreatedAt).Scan(&r.ID)
	if isUniqueViolation(err) {
		return common.ErrAlreadyReferred
	}
	return wrap(err, "записи приглашения", nil)
}
