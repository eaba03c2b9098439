// Package tasks — service.go проверяет и засчитывает задания.
//
// Ежедневное задание засчитывается один раз за UTC-сутки, остальные —
// один раз навсегда. Выполнение — один атомарный блок под блокировкой
// строки пользователя, поэтому параллельные запросы не засчитают задание
// дважды.
package tasks

import (
	"context"
	"fmt"
	"iter"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/ledger"
)

const (
	defaultCompletedLimit = 10
	maxCompletedLimit     = 100
	weekWindow            = 7 * 24 * time.Hour
)

// Service управляет заданиями пользователя.
type Service struct {
	store ledger.Store
}

// NewService создаёт сервис заданий.
func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

// window возвращает начало окна, в котором считаются игры для задания.
//   - daily: начало текущих UTC-суток
//   - weekly: ровно 7 суток назад от now
//   - achievement, special: за всё время
func window(kind ledger.TaskKind, now time.Time) time.Time {
	switch kind {
	case ledger.TaskDaily:
		return common.DayStart(now)
	case ledger.TaskWeekly:
		return now.Add(-weekWindow)
	}
	return time.Time{}
}

// requirement возвращает, сколько игр нужно сыграть и есть ли требование вообще.
// Без вида игры требование действует, только если нужно больше одной игры:
// тогда считаются игры всех видов.
func requirement(t *ledger.Task) (int, bool) {
	need := t.RequiredCount
	if need < 1 {
		need = 1
	}
	if t.RequiredGame == nil && need <= 1 {
		return 0, false
	}
	return need, true
}

// ListAvailable возвращает задания, доступные пользователю в момент now.
//
// Последовательность читается из снимка, сделанного при вызове: она конечна,
// упорядочена по ID задания и может обходиться повторно с тем же результатом.
func (s *Service) ListAvailable(ctx context.Context, accountID int64, now time.Time) (iter.Seq[AvailableTask], error) {
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	catalog, err := s.store.ListTasks(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения заданий: %w", err)
	}
	done, err := s.store.ListCompletions(ctx, accountID, 0)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения выполненных заданий: %w", err)
	}

	type key struct {
		task   int64
		period int64
	}
	completed := make(map[key]struct{}, len(done))
	for _, c := range done {
		completed[key{c.TaskID, c.Period.Unix()}] = struct{}{}
	}
	locale := acc.Locale

	return func(yield func(AvailableTask) bool) {
		for i := range catalog {
			t := &catalog[i]
			if !t.Active || t.Expired(now) {
				continue
			}
			if _, ok := completed[key{t.ID, t.CompletionPeriod(now).Unix()}]; ok {
				continue
			}
			item := AvailableTask{
				ID:            t.ID,
				Kind:          t.Kind,
				Title:         t.Title.For(locale),
				Description:   t.Description.For(locale),
				RewardTokens:  t.RewardTokens,
				RequiredGame:  t.RequiredGame,
				RequiredCount: t.RequiredCount,
				ExpiresAt:     t.ExpiresAt,
			}
			if !yield(item) {
				return
			}
		}
	}, nil
}

// Complete засчитывает задание и начисляет награду.
func (s *Service) Complete(ctx context.Context, accountID, taskID int64, now time.Time) (*CompleteResult, error) {
	res := &CompleteResult{TaskID: taskID}

	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.LockAccount(ctx, accountID); err != nil {
			return err
		}

		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if !task.Active {
			return common.ErrTaskInactive
		}
		if task.Expired(now) {
			return common.ErrTaskExpired
		}

		period := task.CompletionPeriod(now)
		done, err := tx.HasCompletion(ctx, accountID, taskID, period)
		if err != nil {
			return fmt.Errorf("ошибка проверки выполнения: %w", err)
		}
		if done {
			return common.ErrAlreadyCompleted
		}

		if need, ok := requirement(task); ok {
			played, err := tx.CountPlays(ctx, accountID, task.RequiredGame, window(task.Kind, now))
			if err != nil {
				return fmt.Errorf("ошибка подсчёта игр: %w", err)
			}
			if played < need {
				return &common.RequirementsNotMetError{Required: need, Current: played}
			}
		}

		completion := &ledger.TaskCompletion{
			AccountID:     accountID,
			TaskID:        taskID,
			Period:        period,
			TokensAwarded: task.RewardTokens,
			CompletedAt:   now,
		}
		if err := tx.InsertCompletion(ctx, completion); err != nil {
			return err
		}

		balance, err := tx.AdjustBalance(ctx, accountID, task.RewardTokens)
		if err != nil {
			return fmt.Errorf("ошибка начисления: %w", err)
		}
		res.TokensAwarded = task.RewardTokens
		res.Balance = balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"task_id":    taskID,
		"tokens":     res.TokensAwarded,
		"balance":    res.Balance,
	}).Info("Задание выполнено")

	return res, nil
}

// Completed возвращает историю выполненных заданий (новые первыми).
func (s *Service) Completed(ctx context.Context, accountID int64, limit int) ([]CompletedTask, error) {
	if limit <= 0 {
		limit = defaultCompletedLimit
	}
	if limit > maxCompletedLimit {
		limit = maxCompletedLimit
	}

	done, err := s.store.ListCompletions(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения выполненных заданий: %w", err)
	}
	catalog, err := s.store.ListTasks(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения заданий: %w", err)
	}
	byID := make(map[int64]*ledger.Task, len(catalog))
	for i := range catalog {
		byID[catalog[i].ID] = &catalog[i]
	}

	out := make([]CompletedTask, 0, len(done))
	for _, c := range done {
		t, ok := byID[c.TaskID]
		if !ok {
			continue
		}
		out = append(out, CompletedTask{
			ID:            c.ID,
			TaskID:        c.TaskID,
			Title:         t.Title,
			Kind:          t.Kind,
			TokensAwarded: c.TokensAwarded,
			CompletedAt:   c.CompletedAt,
		})
	}
	return out, nil
}
