// Package rewards — service.go обменивает токены на награды.
//
// Порядок блокировок: сначала пользователь, потом награда. Баланс и запас
// проверяются и меняются в одном атомарном блоке, поэтому параллельные
// обмены не уводят баланс в минус и не выдают больше, чем есть на складе.
package rewards

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/ledger"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// Service управляет обменом наград.
type Service struct {
	store ledger.Store
	clock common.Clock
}

// NewService создаёт сервис наград.
func NewService(store ledger.Store, clock common.Clock) *Service {
	if clock == nil {
		clock = common.SystemClock
	}
	return &Service{store: store, clock: clock}
}

// List возвращает активные награды в наличии, переведённые на язык пользователя.
func (s *Service) List(ctx context.Context, accountID int64) (*Catalog, error) {
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	all, err := s.store.ListRewards(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения наград: %w", err)
	}

	out := &Catalog{Rewards: make([]CatalogItem, 0, len(all)), Balance: acc.Balance}
	for _, r := range all {
		if !r.InStock() {
			continue
		}
		out.Rewards = append(out.Rewards, CatalogItem{
			ID:          r.ID,
			Name:        r.Name.For(acc.Locale),
			Description: r.Description.For(acc.Locale),
			Image:       r.Image,
			Cost:        r.Cost,
			Stock:       r.Stock,
			CanAfford:   acc.Balance >= r.Cost,
		})
	}
	return out, nil
}

// Redeem списывает стоимость награды и уменьшает запас.
func (s *Service) Redeem(ctx context.Context, accountID, rewardID int64) (*RedeemResult, error) {
	now := s.clock()
	res := &RedeemResult{RewardID: rewardID}

	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		acc, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		reward, err := tx.LockReward(ctx, rewardID)
		if err != nil {
			return err
		}

		if !reward.Active {
			return common.ErrRewardInactive
		}
		if !reward.InStock() {
			return common.ErrOutOfStock
		}
		if acc.Balance < reward.Cost {
			return &common.InsufficientTokensError{Required: reward.Cost, Balance: acc.Balance}
		}

		red := &ledger.Redemption{
			AccountID:   accountID,
			RewardID:    rewardID,
			TokensSpent: reward.Cost,
			RedeemedAt:  now,
		}
		if err := tx.InsertRedemption(ctx, red); err != nil {
			return fmt.Errorf("ошибка записи обмена: %w", err)
		}

		balance, err := tx.AdjustBalance(ctx, accountID, -reward.Cost)
		if err != nil {
			return err
		}

		if reward.Stock != nil {
			left := *reward.Stock - 1
			if err := tx.SetRewardStock(ctx, rewardID, left); err != nil {
				return fmt.Errorf("ошибка обновления запаса: %w", err)
			}
			res.StockLeft = &left
		}

		res.RedemptionID = red.ID
		res.TokensSpent = reward.Cost
		res.Balance = balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"reward_id":  rewardID,
		"tokens":     res.TokensSpent,
		"balance":    res.Balance,
	}).Info("Награда получена")

	return res, nil
}

// History возвращает историю обменов пользователя (новые первыми).
func (s *Service) History(ctx context.Context, accountID int64, limit int) ([]HistoryItem, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	reds, err := s.store.ListRedemptions(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории обменов: %w", err)
	}
	all, err := s.store.ListRewards(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения наград: %w", err)
	}
	names := make(map[int64]ledger.LocalizedText, len(all))
	for _, r := range all {
		names[r.ID] = r.Name
	}

	out := make([]HistoryItem, 0, len(reds))
	for _, r := range reds {
		out = append(out, HistoryItem{
			ID:          r.ID,
			RewardID:    r.RewardID,
			Name:        names[r.RewardID],
			TokensSpent: r.TokensSpent,
			RedeemedAt:  r.RedeemedAt,
		})
	}
	return out, nil
}
