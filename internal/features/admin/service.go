// Package admin — service.go: статистика, каталог, пользователи и платежи.
// Права проверяются в обработчиках через Allowed, сервис их не знает.
package admin

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/features/payments"
	"serotonyl.ru/flip-bot/internal/ledger"
)

const (
	defaultUsersLimit    = 50
	maxUsersLimit        = 500
	defaultPaymentsLimit = 100
	maxNicknameLen       = 64
)

// ErrAlreadySeeded — в каталоге уже есть задания.
var ErrAlreadySeeded = fmt.Errorf("%w: каталог уже заполнен", common.ErrInvalidInput)

// StatsCache — кэш сводной статистики.
type StatsCache interface {
	Get(ctx context.Context) (*ledger.Stats, bool)
	Set(ctx context.Context, st *ledger.Stats)
	Invalidate(ctx context.Context)
}

// Service — операции админки.
type Service struct {
	store    ledger.Store
	payments *payments.Service
	cache    StatsCache
	clock    common.Clock
}

// NewService создаёт сервис админки. cache может быть nil.
func NewService(store ledger.Store, paymentsSvc *payments.Service, cache StatsCache, clock common.Clock) *Service {
	if clock == nil {
		clock = common.SystemClock
	}
	return &Service{store: store, payments: paymentsSvc, cache: cache, clock: clock}
}

// Role возвращает текущую роль пользователя из хранилища.
func (s *Service) Role(ctx context.Context, accountID int64) (ledger.Role, error) {
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	return acc.Role, nil
}

// Stats возвращает сводную статистику, по возможности из кэша.
func (s *Service) Stats(ctx context.Context) (*ledger.Stats, error) {
	if s.cache != nil {
		if st, ok := s.cache.Get(ctx); ok {
			return st, nil
		}
	}
	st, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта статистики: %w", err)
	}
	if s.cache != nil {
		s.cache.Set(ctx, st)
	}
	return st, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

// --- Пользователи ---

// ListUsers возвращает пользователей (новые первыми), опционально по роли.
func (s *Service) ListUsers(ctx context.Context, role string, limit int) ([]ledger.Account, error) {
	f := ledger.AccountFilter{Limit: limit}
	if f.Limit <= 0 {
		f.Limit = defaultUsersLimit
	}
	if f.Limit > maxUsersLimit {
		f.Limit = maxUsersLimit
	}
	if role != "" {
		r, err := ledger.ParseRole(role)
		if err != nil {
			return nil, err
		}
		f.Role = &r
	}
	list, err := s.store.ListAccounts(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пользователей: %w", err)
	}
	return list, nil
}

// UpdateUser правит пользователя. Установка баланса требует CapSetBalance.
func (s *Service) UpdateUser(ctx context.Context, actor ledger.Role, userID int64, upd UserUpdate) (*ledger.Account, error) {
	if upd.Balance != nil {
		if !Allowed(actor, CapSetBalance) {
			return nil, common.ErrUnauthorized
		}
		if *upd.Balance < 0 {
			return nil, common.InvalidInput("баланс не может быть отрицательным")
		}
	}
	var role ledger.Role
	if upd.Role != nil {
		r, err := ledger.ParseRole(*upd.Role)
		if err != nil {
			return nil, err
		}
		role = r
	}
	var nickname string
	if upd.Nickname != nil {
		nickname = strings.TrimSpace(*upd.Nickname)
		if nickname == "" || utf8.RuneCountInString(nickname) > maxNicknameLen {
			return nil, common.InvalidInput("некорректный никнейм")
		}
	}
	if upd.Language != nil && *upd.Language != ledger.LocaleEN && *upd.Language != ledger.LocaleRU {
		return nil, common.InvalidInput("неподдерживаемый язык %q", *upd.Language)
	}

	var out *ledger.Account
	var delta int64
	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		acc, err := tx.LockAccount(ctx, userID)
		if err != nil {
			return err
		}
		if upd.Nickname != nil {
			acc.Nickname = nickname
		}
		if upd.Language != nil {
			acc.Locale = *upd.Language
		}
		if upd.SoundEnabled != nil {
			acc.SoundEnabled = *upd.SoundEnabled
		}
		if upd.Role != nil {
			acc.Role = role
		}
		if err := tx.UpdateAccount(ctx, acc); err != nil {
			return fmt.Errorf("ошибка обновления пользователя: %w", err)
		}

		if upd.Balance != nil {
			delta = *upd.Balance - acc.Balance
			balance, err := tx.AdjustBalance(ctx, userID, delta)
			if err != nil {
				return err
			}
			acc.Balance = balance
		}
		out = acc
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := log.Fields{"account_id": userID, "role": out.Role}
	if upd.Balance != nil {
		fields["balance"] = out.Balance
		fields["delta"] = delta
	}
	log.WithFields(fields).Warn("Пользователь изменён админом")
	s.invalidate(ctx)
	return out, nil
}

// --- Задания ---

func (s *Service) ListTasks(ctx context.Context) ([]ledger.Task, error) {
	return s.store.ListTasks(ctx, false)
}

func (s *Service) CreateTask(ctx context.Context, in TaskInput) (*ledger.Task, error) {
	t, err := in.Task()
	if err != nil {
		return nil, err
	}
	t.CreatedAt = s.clock()
	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("ошибка создания задания: %w", err)
	}
	log.WithFields(log.Fields{"task_id": t.ID, "kind": t.Kind}).Info("Задание создано")
	s.invalidate(ctx)
	return t, nil
}

func (s *Service) UpdateTask(ctx context.Context, taskID int64, in TaskInput) (*ledger.Task, error) {
	t, err := in.Task()
	if err != nil {
		return nil, err
	}
	t.ID = taskID
	if err := s.store.UpdateTask(ctx, t); err != nil {
		return nil, err
	}
	log.WithField("task_id", taskID).Info("Задание изменено")
	return t, nil
}

// DeleteTask удаляет задание вместе с его выполнениями.
func (s *Service) DeleteTask(ctx context.Context, taskID int64) error {
	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	log.WithField("task_id", taskID).Warn("Задание удалено")
	s.invalidate(ctx)
	return nil
}

// --- Награды ---

func (s *Service) ListRewards(ctx context.Context) ([]ledger.Reward, error) {
	return s.store.ListRewards(ctx, false)
}

func (s *Service) CreateReward(ctx context.Context, in RewardInput) (*ledger.Reward, error) {
	r, err := in.Reward()
	if err != nil {
		return nil, err
	}
	r.CreatedAt = s.clock()
	if err := s.store.CreateReward(ctx, r); err != nil {
		return nil, fmt.Errorf("ошибка создания награды: %w", err)
	}
	log.WithFields(log.Fields{"reward_id": r.ID, "cost": r.Cost}).Info("Награда создана")
	s.invalidate(ctx)
	return r, nil
}

func (s *Service) UpdateReward(ctx context.Context, rewardID int64, in RewardInput) (*ledger.Reward, error) {
	r, err := in.Reward()
	if err != nil {
		return nil, err
	}
	r.ID = rewardID
	if err := s.store.UpdateReward(ctx, r); err != nil {
		return nil, err
	}
	log.WithField("reward_id", rewardID).Info("Награда изменена")
	return r, nil
}

// DeleteReward удаляет награду вместе с историей её обменов.
func (s *Service) DeleteReward(ctx context.Context, rewardID int64) error {
	if err := s.store.DeleteReward(ctx, rewardID); err != nil {
		return err
	}
	log.WithField("reward_id", rewardID).Warn("Награда удалена")
	s.invalidate(ctx)
	return nil
}

// Seed заполняет пустой каталог начальными заданиями и наградами.
func (s *Service) Seed(ctx context.Context) (*SeedResult, error) {
	now := s.clock()
	var res *SeedResult

	// Проверка и заполнение в одной транзакции под блокировкой каталога,
	// поэтому два экземпляра сервиса не заполнят его дважды
	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		n, err := tx.LockCatalog(ctx)
		if err != nil {
			return fmt.Errorf("ошибка подсчёта заданий: %w", err)
		}
		if n > 0 {
			return ErrAlreadySeeded
		}

		res = &SeedResult{}
		for _, tpl := range seedTasks {
			t := tpl
			t.Active = true
			t.CreatedAt = now
			if err := tx.InsertTask(ctx, &t); err != nil {
				return fmt.Errorf("ошибка создания задания: %w", err)
			}
			res.TasksCreated++
		}
		for _, tpl := range seedRewards {
			r := tpl
			if tpl.Stock != nil {
				stock := *tpl.Stock
				r.Stock = &stock
			}
			r.Active = true
			r.CreatedAt = now
			if err := tx.InsertReward(ctx, &r); err != nil {
				return fmt.Errorf("ошибка создания награды: %w", err)
			}
			res.RewardsCreated++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"tasks":   res.TasksCreated,
		"rewards": res.RewardsCreated,
	}).Info("Каталог заполнен")
	s.invalidate(ctx)
	return res, nil
}

// --- Платежи ---

// ListPayments возвращает платежи с никнеймами пользователей.
func (s *Service) ListPayments(ctx context.Context, status string, limit int) ([]PaymentView, error) {
	var st *ledger.PaymentStatus
	if status != "" {
		parsed, err := ledger.ParsePaymentStatus(status)
		if err != nil {
			return nil, err
		}
		st = &parsed
	}
	if limit <= 0 {
		limit = defaultPaymentsLimit
	}
	list, err := s.payments.ListAll(ctx, st, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(list))
	seen := make(map[int64]bool, len(list))
	for _, p := range list {
		if !seen[p.AccountID] {
			seen[p.AccountID] = true
			ids = append(ids, p.AccountID)
		}
	}
	nicknames, err := s.store.Nicknames(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения никнеймов: %w", err)
	}

	out := make([]PaymentView, 0, len(list))
	for _, p := range list {
		out = append(out, PaymentView{Payment: p, UserNickname: nicknames[p.AccountID]})
	}
	return out, nil
}

// SetPaymentStatus — ручная смена статуса платежа.
func (s *Service) SetPaymentStatus(ctx context.Context, paymentID int64, status string) (*payments.SettleResult, error) {
	next, err := ledger.ParsePaymentStatus(status)
	if err != nil {
		return nil, err
	}
	res, err := s.payments.SetStatus(ctx, paymentID, next)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return res, nil
}
