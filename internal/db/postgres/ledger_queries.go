// Package postgres — ledger_queries.go: выборки и правки каталога без блокировок.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/ledger"
)

// limitArg превращает limit <= 0 в NULL (LIMIT NULL = без ограничения).
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

// collect читает все строки выборки через scan.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *Store) GetAccount(ctx context.Context, accountID int64) (*ledger.Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID))
	return a, wrap(err, "получения пользователя", common.ErrAccountNotFound)
}

func (s *Store) ListAccounts(ctx context.Context, f ledger.AccountFilter) ([]ledger.Account, error) {
	var role any
	if f.Role != nil {
		role = string(*f.Role)
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE ($1::text IS NULL OR role = $1)
		ORDER BY id DESC
		LIMIT $2
	`, role, limitArg(f.Limit))
	if err != nil {
		return nil, wrap(err, "получения пользователей", nil)
	}
	out, err := collect(rows, scanAccount)
	return out, wrap(err, "чтения пользователей", nil)
}

func (s *Store) Nicknames(ctx context.Context, accountIDs []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(accountIDs))
	if len(accountIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, `SELECT id, nickname FROM accounts WHERE id = ANY($1)`, accountIDs)
	if err != nil {
		return nil, wrap(err, "получения никнеймов", nil)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var nick string
		if err := rows.Scan(&id, &nick); err != nil {
			return nil, wrap(err, "чтения никнеймов", nil)
		}
		out[id] = nick
	}
	return out, wrap(rows.Err(), "чтения никнеймов", nil)
}

func scanPlay(row pgx.Row) (*ledger.PlayRecord, error) {
	var p ledger.PlayRecord
	var kind string
	if err := row.Scan(&p.ID, &p.AccountID, &kind, &p.Result, &p.TokensEarned, &p.PlayedAt); err != nil {
		return nil, err
	}
	p.Kind = ledger.GameKind(kind)
	return &p, nil
}

func (s *Store) ListPlays(ctx context.Context, accountID int64, kind *ledger.GameKind, limit int) ([]ledger.PlayRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, account_id, game_kind, result, tokens_earned, played_at
		FROM play_records
		WHERE account_id = $1 AND ($2::text IS NULL OR game_kind = $2)
		ORDER BY id DESC
		LIMIT $3
	`, accountID, gameArg(kind), limitArg(limit))
	if err != nil {
		return nil, wrap(err, "получения истории игр", nil)
	}
	out, err := collect(rows, scanPlay)
	return out, wrap(err, "чтения истории игр", nil)
}

func (s *Store) DailyCounts(ctx context.Context, accountID int64, date time.Time) (map[ledger.GameKind]int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT game_kind, count FROM daily_play_counters
		WHERE account_id = $1 AND play_date = $2
	`, accountID, common.UTCDate(date))
	if err != nil {
		return nil, wrap(err, "получения счётчиков игр", nil)
	}
	defer rows.Close()

	out := map[ledger.GameKind]int{}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, wrap(err, "сканирования счётчика", nil)
		}
		out[ledger.GameKind(kind)] = n
	}
	return out, wrap(rows.Err(), "чтения счётчиков игр", nil)
}

func (s *Store) PruneDailyCounters(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM daily_play_counters WHERE play_date < $1`, common.UTCDate(before))
	if err != nil {
		return 0, wrap(err, "очистки счётчиков игр", nil)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListTasks(ctx context.Context, activeOnly bool) ([]ledger.Task, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE (NOT $1 OR is_active)
		ORDER BY id
	`, activeOnly)
	if err != nil {
		return nil, wrap(err, "получения заданий", nil)
	}
	out, err := collect(rows, scanTask)
	return out, wrap(err, "чтения заданий", nil)
}

func scanCompletion(row pgx.Row) (*ledger.TaskCompletion, error) {
	var c ledger.TaskCompletion
	if err := row.Scan(&c.ID, &c.AccountID, &c.TaskID, &c.Period, &c.TokensAwarded, &c.CompletedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCompletions(ctx context.Context, accountID int64, limit int) ([]ledger.TaskCompletion, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, account_id, task_id, period, tokens_awarded, completed_at
		FROM task_completions
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, accountID, limitArg(limit))
	if err != nil {
		return nil, wrap(err, "получения выполненных заданий", nil)
	}
	out, err := collect(rows, scanCompletion)
	return out, wrap(err, "чтения выполненных заданий", nil)
}

func (s *Store) CreateTask(ctx context.Context, t *ledger.Task) error {
	return insertTask(ctx, s.db, t)
}

func insertTask(ctx context.Context, q querier, t *ledger.Task) error {
	err := q.QueryRow(ctx, `
		INSERT INTO tasks (task_kind, title_en, title_ru, description_en, description_ru,
			reward_tokens, required_game_kind, required_count, is_active, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, string(t.Kind), t.Title.EN, t.Title.RU, t.Description.EN, t.Description.RU,
		t.RewardTokens, gameArg(t.RequiredGame), t.RequiredCount, t.Active, t.CreatedAt, t.ExpiresAt,
	).Scan(&t.ID)
	return wrap(err, "создания задания", nil)
}

func (s *Store) UpdateTask(ctx context.Context, t *ledger.Task) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE tasks
		SET task_kind = $2, title_en = $3, title_ru = $4, description_en = $5, description_ru = $6,
			reward_tokens = $7, required_game_kind = $8, required_count = $9, is_active = $10, expires_at = $11
		WHERE id = $1
	`, t.ID, string(t.Kind), t.Title.EN, t.Title.RU, t.Description.EN, t.Description.RU,
		t.RewardTokens, gameArg(t.RequiredGame), t.RequiredCount, t.Active, t.ExpiresAt)
	if err != nil {
		return wrap(err, "обновления задания", nil)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrTaskNotFound
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, taskID int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, taskID)
	if err != nil {
		return wrap(err, "удаления задания", nil)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrTaskNotFound
	}
	return nil
}

func (s *Store) CountTasks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n)
	return n, wrap(err, "подсчёта заданий", nil)
}

func (s *Store) ListRewards(ctx context.Context, activeOnly bool) ([]ledger.Reward, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+rewardColumns+` FROM rewards
		WHERE (NOT $1 OR is_active)
		ORDER BY id
	`, activeOnly)
	if err != nil {
		return nil, wrap(err, "получения наград", nil)
	}
	out, err := collect(rows, scanReward)
	return out, wrap(err, "чтения наград", nil)
}

func (s *Store) GetReward(ctx context.Context, rewardID int64) (*ledger.Reward, error) {
	r, err := scanReward(s.db.QueryRow(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE id = $1`, rewardID))
	return r, wrap(err, "получения награды", common.ErrRewardNotFound)
}

func scanRedemption(row pgx.Row) (*ledger.Redemption, error) {
	var r ledger.Redemption
	if err := row.Scan(&r.ID, &r.AccountID, &r.RewardID, &r.TokensSpent, &r.RedeemedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListRedemptions(ctx context.Context, accountID int64, limit int) ([]ledger.Redemption, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, account_id, reward_id, tokens_spent, redeemed_at
		FROM redemptions
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, accountID, limitArg(limit))
	if err != nil {
		return nil, wrap(err, "получения истории обменов", nil)
	}
	out, err := collect(rows, scanRedemption)
	return out, wrap(err, "чтения истории обменов", nil)
}

func (s *Store) CreateReward(ctx context.Context, r *ledger.Reward) error {
	return insertReward(ctx, s.db, r)
}

func insertReward(ctx context.Context, q querier, r *ledger.Reward) error {
	err := q.QueryRow(ctx, `
		INSERT INTO rewards (name_en, name_ru, description_en, description_ru, image,
			cost, is_active, stock, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, r.Name.EN, r.Name.RU, r.Description.EN, r.Description.RU, r.Image,
		r.Cost, r.Active, r.Stock, r.CreatedAt,
	).Scan(&r.ID)
	if isCheckViolation(err) {
		return common.InvalidInput("стоимость должна быть > 0, запас >= 0")
	}
	return wrap(err, "создания награды", nil)
}

func (s *Store) UpdateReward(ctx context.Context, r *ledger.Reward) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE rewards
		SET name_en = $2, name_ru = $3, description_en = $4, description_ru = $5, image = $6,
			cost = $7, is_active = $8, stock = $9
		WHERE id = $1
	`, r.ID, r.Name.EN, r.Name.RU, r.Description.EN, r.Description.RU, r.Image,
		r.Cost, r.Active, r.Stock)
	if isCheckViolation(err) {
		return common.InvalidInput("стоимость должна быть > 0, запас >= 0")
	}
	if err != nil {
		return wrap(err, "обновления награды", nil)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrRewardNotFound
	}
	return nil
}

func (s *Store) DeleteReward(ctx context.Context, rewardID int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM rewards WHERE id = $1`, rewardID)
	if err != nil {
		return wrap(err, "удаления награды", nil)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrRewardNotFound
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, paymentID int64) (*ledger.Payment, error) {
	p, err := scanPayment(s.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, paymentID))
	return p, wrap(err, "получения платежа", common.ErrPaymentNotFound)
}

func (s *Store) ListPayments(ctx context.Context, f ledger.PaymentFilter) ([]ledger.Payment, error) {
	var status any
	if f.Status != nil {
		status = string(*f.Status)
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE ($1::bigint IS NULL OR account_id = $1)
			AND ($2::text IS NULL OR status = $2)
		ORDER BY id DESC
		LIMIT $3
	`, f.AccountID, status, limitArg(f.Limit))
	if err != nil {
		return nil, wrap(err, "получения платежей", nil)
	}
	out, err := collect(rows, scanPayment)
	return out, wrap(err, "чтения платежей", nil)
}

// Stats собирает сводку одним снимком (REPEATABLE READ), чтобы цифры были согласованы.
func (s *Store) Stats(ctx context.Context) (*ledger.Stats, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, wrap(err, "начала транзакции", nil)
	}
	defer tx.Rollback(ctx)

	st := &ledger.Stats{}
	st.Users.ByRole = map[ledger.Role]int64{}
	st.Games.ByKind = map[ledger.GameKind]int64{}

	rows, err := tx.Query(ctx, `SELECT role, COUNT(*), COALESCE(SUM(balance), 0) FROM accounts GROUP BY role`)
	if err != nil {
		return nil, wrap(err, "статистики пользователей", nil)
	}
	for rows.Next() {
		var role string
		var n, tokens int64
		if err := rows.Scan(&role, &n, &tokens); err != nil {
			rows.Close()
			return nil, wrap(err, "статистики пользователей", nil)
		}
		st.Users.ByRole[ledger.Role(role)] = n
		st.Users.Total += n
		st.Tokens.TotalInSystem += tokens
	}
	rows.Close()

	rows, err = tx.Query(ctx, `SELECT game_kind, COUNT(*) FROM play_records GROUP BY game_kind`)
	if err != nil {
		return nil, wrap(err, "статистики игр", nil)
	}
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			rows.Close()
			return nil, wrap(err, "статистики игр", nil)
		}
		st.Games.ByKind[ledger.GameKind(kind)] = n
		st.Games.Total += n
	}
	rows.Close()

	err = tx.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM tasks),
			(SELECT COUNT(*) FROM task_completions),
			(SELECT COUNT(*) FROM rewards),
			(SELECT COUNT(*) FROM redemptions),
			(SELECT COUNT(*) FROM payments),
			(SELECT COUNT(*) FROM payments WHERE status = 'completed')
	`).Scan(
		&st.Tasks.Total, &st.Tasks.Completed,
		&st.Rewards.Total, &st.Rewards.Redeemed,
		&st.Payments.Total, &st.Payments.Completed,
	)
	if err != nil {
		return nil, wrap(err, "сводной статистики", nil)
	}
	return st, nil
}
