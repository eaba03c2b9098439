// Package ledger — memory.go реализует хранилище в памяти.
//
// Все атомарные блоки выполняются строго по очереди под одним мьютексом.
// В начале блока состояние копируется, при успехе копия подменяет
// исходное, при ошибке копия выбрасывается. Используется в тестах и при
// локальной разработке без PostgreSQL.
package ledger

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"serotonyl.ru/flip-bot/internal/common"
)

// MemoryStore — Store в памяти процесса.
type MemoryStore struct {
	mu          sync.Mutex
	st          *memState
	unavailable atomic.Bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: newMemState()}
}

// SetUnavailable имитирует недоступность хранилища: все методы возвращают
// common.ErrStoreUnavailable, состояние не меняется.
func (m *MemoryStore) SetUnavailable(v bool) {
	m.unavailable.Store(v)
}

// Даты в ключах хранятся как Unix-секунды: time.Time сравнивается
// через == только при совпадении локации.
type counterKey struct {
	account int64
	kind    GameKind
	date    int64
}

type completionKey struct {
	account int64
	task    int64
	period  int64
}

type referralKey struct {
	referrer int64
	referred int64
}

type memState struct {
	seq         map[string]int64
	accounts    map[int64]Account
	counters    map[counterKey]int
	plays       []PlayRecord
	tasks       map[int64]Task
	completions map[completionKey]TaskCompletion
	rewards     map[int64]Reward
	redemptions []Redemption
	payments    map[int64]Payment
	referrals   map[referralKey]Referral
}

func newMemState() *memState {
	return &memState{
		seq:         map[string]int64{},
		accounts:    map[int64]Account{},
		counters:    map[counterKey]int{},
		tasks:       map[int64]Task{},
		completions: map[completionKey]TaskCompletion{},
		rewards:     map[int64]Reward{},
		payments:    map[int64]Payment{},
		referrals:   map[referralKey]Referral{},
	}
}

// clone копирует состояние. Записи хранятся по значению, а указатели внутри
// записей никогда не меняются на месте, поэтому поверхностной копии
// контейнеров достаточно.
func (s *memState) clone() *memState {
	return &memState{
		seq:         cloneMap(s.seq),
		accounts:    cloneMap(s.accounts),
		counters:    cloneMap(s.counters),
		plays:       slices.Clone(s.plays),
		tasks:       cloneMap(s.tasks),
		completions: cloneMap(s.completions),
		rewards:     cloneMap(s.rewards),
		redemptions: slices.Clone(s.redemptions),
		payments:    cloneMap(s.payments),
		referrals:   cloneMap(s.referrals),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memState) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (m *MemoryStore) check() error {
	if m.unavailable.Load() {
		return fmt.Errorf("память: %w", common.ErrStoreUnavailable)
	}
	return nil
}

// Atomic выполняет fn над копией состояния и фиксирует её при успехе.
func (m *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := m.check(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{store: m, st: m.st.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	// Хранилище могло «упасть» посреди блока: тогда ничего не фиксируем
	if err := m.check(); err != nil {
		return err
	}
	m.st = tx.st
	return nil
}

// read выполняет fn над текущим состоянием под мьютексом.
func (m *MemoryStore) read(fn func(s *memState) error) error {
	if err := m.check(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.st)
}

// ============================================================================
// Tx
// ============================================================================

type memTx struct {
	store *MemoryStore
	st    *memState
}

func (t *memTx) LockAccount(ctx context.Context, accountID int64) (*Account, error) {
	if err := t.store.check(); err != nil {
		return nil, err
	}
	a, ok := t.st.accounts[accountID]
	if !ok {
		return nil, common.ErrAccountNotFound
	}
	return &a, nil
}

func (t *memTx) LockAccountByTelegramID(ctx context.Context, telegramID int64) (*Account, error) {
	if err := t.store.check(); err != nil {
		return nil, err
	}
	for _, a := range t.st.accounts {
		if a.TelegramID == telegramID {
			return &a, nil
		}
	}
	return nil, common.ErrAccountNotFound
}

func (t *memTx) FindAccountByCode(ctx context.Context, code string) (*Account, error) {
	if err := t.store.check(); err != nil {
		return nil, err
	}
	tgID, parseErr := strconv.ParseInt(code, 10, 64)
	for _, a := range sortedAccounts(t.st.accounts) {
		if (parseErr == nil && a.TelegramID == tgID) || (a.Nickname != "" && a.Nickname == code) {
			return &a, nil
		}
	}
	return nil, common.ErrAccountNotFound
}

func (t *memTx) InsertAccount(ctx context.Context, a *Account) error {
	if err := t.store.check(); err != nil {
		return err
	}
	for _, existing := range t.st.accounts {
		if existing.TelegramID == a.TelegramID {
			return common.InvalidInput("пользователь с telegram_id %d уже существует", a.TelegramID)
		}
	}
	if a.Balance < 0 {
		return common.InvalidInput("баланс не может быть отрицательным")
	}
	a.ID = t.st.next("accounts")
	t.st.accounts[a.ID] = *a
	return nil
}

func (t *memTx) UpdateAccount(ctx context.Context, a *Account) error {
	if err := t.store.check(); err != nil {
		return err
	}
	cur, ok := t.st.accounts[a.ID]
	if !ok {
		return common.ErrAccountNotFound
	}
	upd := *a
	upd.Balance = cur.Balance
	upd.TelegramID = cur.TelegramID
	upd.CreatedAt = cur.CreatedAt
	t.st.accounts[a.ID] = upd
	return nil
}

func (t *memTx) AdjustBalance(ctx context.Context, accountID int64, delta int64) (int64, error) {
	if err := t.store.check(); err != nil {
		return 0, err
	}
	a, ok := t.st.accounts[accountID]
	if !ok {
		return 0, common.ErrAccountNotFound
	}
	if a.Balance+delta < 0 {
		return a.Balance, &common.InsufficientTokensError{Required: -delta, Balance: a.Balance}
	}
	a.Balance += delta
	t.st.accounts[accountID] = a
	return a.Balance, nil
}

func (t *memTx) LockDailyCounter(ctx context.Context, accountID int64, kind GameKind, date time.Time) (*DailyPlayCounter, error) {
	if err := t.store.check(); err != nil {
		return nil, err
	}
	date = common.UTCDate(date)
	key := counterKey{accountID, kind, date.Unix()}
	count, ok := t.st.counters[key]
	if !ok {
		t.st.counters[key] = 0
	}
	return &DailyPlayCounter{AccountID: accountID, Kind: kind, Date: date, Count: count}, nil
}

func (t *memTx) SetDailyCount(ctx context.Context, accountID int64, kind GameKind, date time.Time, count int) error {
	if err := t.store.check(); err != nil {
		return err
	}
	t.st.counters[counterKey{accountID, kind, common.UTCDate(date).Unix()}] = count
	return nil
}

func (t *memTx) InsertPlay(ctx context.Context, p *PlayRecord) error {
	if err := t.store.check(); err != nil {
		return err
	}
	p.ID = t.st.next("plays")
	t.st.plays = append(t.st.plays, *p)
	return nil
}

func (t *memTx) CountPlays(ctx context.Context, accountID int64, kind *GameKind, since time.Time) (int, error) {
	if err := t.store.check(); err != nil {
		return 0, err
	}
	n := 0
	for _, p := range t.st.plays {
		if p.AccountID != accountID || p.PlayedAt.Before(since) {
			continue
		}
		if kind != nil && p.Kind != *kind {
			continue
		}
		n++
	}
	return n, nil
}

// Atomic уже держит мьютекс хранилища, отдельная блокировка не нужна.
func (t *memTx) LockCatalog(ctx context.Context) (int64, error) {
	if err := t.store.check(); err != nil {
		return 0, err
	}
	return int64(len(t.st.tasks)), nil
}

func (t *memTx) InsertTask(ctx context.Context, task *Task) error {
	if err := t.store.check(); err != nil {
		return err
	}
	task.ID = t.st.next("tasks")
	t.st.tasks[task.ID] = *task
	return nil
}

func (t *memTx) InsertReward(ctx context.Context, r *Reward) error {
	if err := t.store.check(); err != nil {
		return err
	}
	r.ID = t.st.next("rewards")
	t.st.rewards[r.ID] = *r
	return nil
}

func (t *memTx) GetTask(ctx context.Context, taskID int64) (*Task, error) {
	if err := t.store.check(); err != nil {
		return nil, err
	}
	task, ok := t.st.tasks[taskID]
	if !ok {
		return nil, common.ErrTaskNotFound
	}
	return &task, nil
}

func (t *memTx) HasCompletion(ctx context.Context, accountID, taskID int64, period time.Time) (bool, error) {
	if err := t.store.check(); err != nil {
		return false, err
	}
	_, ok := t.st.completions[completionKey{accountID, taskID, period.Unix()}]
	return ok, nil
}

func (t *memTx) InsertCompletion(ctx context.Context, c *TaskCompletion) error {
	if err := t.store.check(); err != nil {
		return err
	}
	key := completionKey{c.AccountID, c.TaskID, c.Period.Unix()}
	if _, ok := t.st.completions[key]; ok {
		return common.ErrAlreadyCompleted
	}
	c.ID = t.st.next("completions")
	t.st.completions[key] = *c
	return nil
}

func (t *memTx) LockReward(ctx context.Context, rewardID int64) (*Reward, error) {
	if err := t.store.check(); err != nil {
		return nil, err
	}
	r, ok := t.st.rewards[rewardID]
	if !ok {
		return nil, common.ErrRewardNotFound
	}
	return &r, nil
}

func (t *memTx) SetRewardStock(ctx context.Context, rewardID int64, stock int) error {
	if err := t.store.check(); err != nil {
		return err
	}
	r, ok := t.st.rewards[rewardID]
	if !ok {
		return common.ErrRewardNotFound
	}
	if stock < 0 {
		return common.ErrOutOfStock
	}
	r.Stock = &stock
	t.st.rewards[rewardID] = r
	return nil
}

func (t *memTx) InsertRedemption(ctx context.Context, r *Redemption) error {
	if err := t.store.check(); err != nil {
		return err
	}
	r.ID = t.st.next("redemptions")
	t.st.redemptions = append(t.st.redemptions, *r)
	return nil
}

func (t *memTx) InsertPayment(ctx context.Context, p *Payment) error {
	if err := t.store.check(); err != nil {
		return err
	}
	p.ID = t.st.next("payments")
	t.st.payments[p.ID] = *p
	return nil
}

func (t *memTx) LockPayment(ctx context.Context, paymentID int64) (*Payment, error) {
	if err := t.store.check(); err != nil {
		return nil, err
	}
	p, ok := t.st.payments[paymentID]
	if !ok {
		return nil, common.ErrPaymentNotFound
	}
	return &p, nil
}

func (t *memTx) UpdatePayment(ctx context.Context, p *Payment) error {
	if err := t.store.check(); err != nil {
		return err
	}
	if _, ok := t.st.payments[p.ID]; !ok {
		return common.ErrPaymentNotFound
	}
	t.st.payments[p.ID] = *p
	return nil
}

func (t *memTx) ReferralExists(ctx context.Context, referrerID, referredID int64) (bool, error) {
	if err := t.store.check(); err != nil {
		return false, err
	}
	_, ok := t.st.referrals[referralKey{referrerID, referredID}]
	return ok, nil
}

func (t *memTx) IsReferred(ctx context.Context, accountID int64) (bool, error) {
	if err := t.store.check(); err != nil {
		return false, err
	}
	return t.st.referred(accountID), nil
}

func (s *memState) referred(accountID int64) bool {
	for key := range s.referrals {
		if key.referred == accountID {
			return true
		}
	}
	return false
}

func (t *memTx) InsertReferral(ctx context.Context, r *Referral) error {
	if err := t.store.check(); err != nil {
		return err
	}
	// Аккаунт приглашается не больше одного раза
	key := referralKey{r.ReferrerID, r.ReferredID}
	if t.st.referred(r.ReferredID) {
		return common.ErrAlreadyReferred
	}
	r.ID = t.st.next("referrals")
	t.st.referrals[key] = *r
	return nil
}

// ============================================================================
// Queries
// ============================================================================

func sortedAccounts(m map[int64]Account) []Account {
	out := make([]Account, 0, len(m))
	for _, a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func limitSlice[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}

func (m *MemoryStore) GetAccount(ctx context.Context, accountID int64) (*Account, error) {
	var out *Account
	err := m.read(func(s *memState) error {
		a, ok := s.accounts[accountID]
		if !ok {
			return common.ErrAccountNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (m *MemoryStore) ListAccounts(ctx context.Context, f AccountFilter) ([]Account, error) {
	var out []Account
	err := m.read(func(s *memState) error {
		all := sortedAccounts(s.accounts)
		slices.Reverse(all)
		for _, a := range all {
			if f.Role != nil && a.Role != *f.Role {
				continue
			}
			out = append(out, a)
		}
		out = limitSlice(out, f.Limit)
		return nil
	})
	return out, err
}

func (m *MemoryStore) ListPlays(ctx context.Context, accountID int64, kind *GameKind, limit int) ([]PlayRecord, error) {
	var out []PlayRecord
	err := m.read(func(s *memState) error {
		for i := len(s.plays) - 1; i >= 0; i-- {
			p := s.plays[i]
			if p.AccountID != accountID || (kind != nil && p.Kind != *kind) {
				continue
			}
			out = append(out, p)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (m *MemoryStore) DailyCounts(ctx context.Context, accountID int64, date time.Time) (map[GameKind]int, error) {
	out := map[GameKind]int{}
	err := m.read(func(s *memState) error {
		day := common.UTCDate(date).Unix()
		for k, v := range s.counters {
			if k.account == accountID && k.date == day {
				out[k.kind] = v
			}
		}
		return nil
	})
	return out, err
}

func (m *MemoryStore) PruneDailyCounters(ctx context.Context, before time.Time) (int64, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	cutoff := common.UTCDate(before).Unix()
	for k := range m.st.counters {
		if k.date < cutoff {
			delete(m.st.counters, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListTasks(ctx context.Context, activeOnly bool) ([]Task, error) {
	var out []Task
	err := m.read(func(s *memState) error {
		for _, t := range s.tasks {
			if activeOnly && !t.Active {
				continue
			}
			out = append(out, t)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (m *MemoryStore) ListCompletions(ctx context.Context, accountID int64, limit int) ([]TaskCompletion, error) {
	var out []TaskCompletion
	err := m.read(func(s *memState) error {
		for _, c := range s.completions {
			if c.AccountID == accountID {
				out = append(out, c)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
		out = limitSlice(out, limit)
		return nil
	})
	return out, err
}

func (m *MemoryStore) Nicknames(ctx context.Context, accountIDs []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(accountIDs))
	err := m.read(func(s *memState) error {
		for _, id := range accountIDs {
			if a, ok := s.accounts[id]; ok {
				out[id] = a.Nickname
			}
		}
		return nil
	})
	return out, err
}

func (m *MemoryStore) CreateTask(ctx context.Context, t *Task) error {
	if err := m.check(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.st.next("tasks")
	m.st.tasks[t.ID] = *t
	return nil
}

func (m *MemoryStore) UpdateTask(ctx context.Context, t *Task) error {
	return m.read(func(s *memState) error {
		cur, ok := s.tasks[t.ID]
		if !ok {
			return common.ErrTaskNotFound
		}
		upd := *t
		upd.CreatedAt = cur.CreatedAt
		s.tasks[t.ID] = upd
		return nil
	})
}

func (m *MemoryStore) DeleteTask(ctx context.Context, taskID int64) error {
	return m.read(func(s *memState) error {
		if _, ok := s.tasks[taskID]; !ok {
			return common.ErrTaskNotFound
		}
		delete(s.tasks, taskID)
		for k := range s.completions {
			if k.task == taskID {
				delete(s.completions, k)
			}
		}
		return nil
	})
}

func (m *MemoryStore) CountTasks(ctx context.Context) (int64, error) {
	var n int64
	err := m.read(func(s *memState) error {
		n = int64(len(s.tasks))
		return nil
	})
	return n, err
}

func (m *MemoryStore) ListRewards(ctx context.Context, activeOnly bool) ([]Reward, error) {
	var out []Reward
	err := m.read(func(s *memState) error {
		for _, r := range s.rewards {
			if activeOnly && !r.Active {
				continue
			}
			out = append(out, r)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (m *MemoryStore) GetReward(ctx context.Context, rewardID int64) (*Reward, error) {
	var out *Reward
	err := m.read(func(s *memState) error {
		r, ok := s.rewards[rewardID]
		if !ok {
			return common.ErrRewardNotFound
		}
		out = &r
		return nil
	})
	return out, err
}

func (m *MemoryStore) ListRedemptions(ctx context.Context, accountID int64, limit int) ([]Redemption, error) {
	var out []Redemption
	err := m.read(func(s *memState) error {
		for i := len(s.redemptions) - 1; i >= 0; i-- {
			if s.redemptions[i].AccountID == accountID {
				out = append(out, s.redemptions[i])
			}
		}
		out = limitSlice(out, limit)
		return nil
	})
	return out, err
}

func (m *MemoryStore) CreateReward(ctx context.Context, r *Reward) error {
	return m.read(func(s *memState) error {
		r.ID = s.next("rewards")
		s.rewards[r.ID] = *r
		return nil
	})
}

func (m *MemoryStore) UpdateReward(ctx context.Context, r *Reward) error {
	return m.read(func(s *memState) error {
		cur, ok := s.rewards[r.ID]
		if !ok {
			return common.ErrRewardNotFound
		}
		upd := *r
		upd.CreatedAt = cur.CreatedAt
		s.rewards[r.ID] = upd
		return nil
	})
}

func (m *MemoryStore) DeleteReward(ctx context.Context, rewardID int64) error {
	return m.read(func(s *memState) error {
		if _, ok := s.rewards[rewardID]; !ok {
			return common.ErrRewardNotFound
		}
		delete(s.rewards, rewardID)
		s.redemptions = slices.DeleteFunc(s.redemptions, func(r Redemption) bool {
			return r.RewardID == rewardID
		})
		return nil
	})
}

func (m *MemoryStore) GetPayment(ctx context.Context, paymentID int64) (*Payment, error) {
	var out *Payment
	err := m.read(func(s *memState) error {
		p, ok := s.payments[paymentID]
		if !ok {
			return common.ErrPaymentNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (m *MemoryStore) ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, error) {
	var out []Payment
	err := m.read(func(s *memState) error {
		for _, p := range s.payments {
			if f.AccountID != nil && p.AccountID != *f.AccountID {
				continue
			}
			if f.Status != nil && p.Status != *f.Status {
				continue
			}
			out = append(out, p)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
		out = limitSlice(out, f.Limit)
		return nil
	})
	return out, err
}

func (m *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	st.Users.ByRole = map[Role]int64{}
	st.Games.ByKind = map[GameKind]int64{}
	err := m.read(func(s *memState) error {
		for _, a := range s.accounts {
			st.Users.Total++
			st.Users.ByRole[a.Role]++
			st.Tokens.TotalInSystem += a.Balance
		}
		for _, p := range s.plays {
			st.Games.Total++
			st.Games.ByKind[p.Kind]++
		}
		st.Tasks.Total = int64(len(s.tasks))
		st.Tasks.Completed = int64(len(s.completions))
		st.Rewards.Total = int64(len(s.rewards))
		st.Rewards.Redeemed = int64(len(s.redemptions))
		for _, p := range s.payments {
			st.Payments.Total++
			if p.Status == PaymentCompleted {
				st.Payments.Completed++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}
