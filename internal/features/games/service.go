// Package games — service.go проводит игру от начала до конца.
//
// Одна игра — один атомарный блок: блокировка пользователя, резерв попытки,
// розыгрыш, запись в историю и начисление токенов.
package games

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/ledger"
)

// Picker возвращает равномерно распределённое число из [0, n).
type Picker func(n int) (int, error)

// CryptoPicker берёт случайность из crypto/rand.
func CryptoPicker(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("ошибка генерации случайного числа: %w", err)
	}
	return int(v.Int64()), nil
}

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// Service управляет играми.
type Service struct {
	store   ledger.Store
	limiter *Limiter
	clock   common.Clock
	pick    Picker
}

// NewService создаёт сервис игр. pick == nil — CryptoPicker.
func NewService(store ledger.Store, limiter *Limiter, clock common.Clock, pick Picker) *Service {
	if pick == nil {
		pick = CryptoPicker
	}
	if clock == nil {
		clock = common.SystemClock
	}
	return &Service{store: store, limiter: limiter, clock: clock, pick: pick}
}

// Play проводит одну игру.
func (s *Service) Play(ctx context.Context, accountID int64, kind ledger.GameKind, params Params) (*PlayResult, error) {
	question := strings.TrimSpace(params.Question)
	if kind == ledger.GameBall && question == "" {
		return nil, common.InvalidInput("нужен вопрос для магического шара")
	}
	reward, ok := Rewards[kind]
	if !ok {
		return nil, common.InvalidInput("неизвестный вид игры %q", kind)
	}

	now := s.clock()
	res := &PlayResult{Kind: kind, Question: question, MaxPlays: s.limiter.Cap(kind)}

	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		acc, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}

		plays, err := s.limiter.CheckAndReserve(ctx, tx, accountID, kind, now)
		if err != nil {
			return err
		}

		out, err := s.draw(kind, acc.Locale)
		if err != nil {
			return err
		}

		rec := &ledger.PlayRecord{
			AccountID:    accountID,
			Kind:         kind,
			Result:       out.Result,
			TokensEarned: reward,
			PlayedAt:     now,
		}
		if err := tx.InsertPlay(ctx, rec); err != nil {
			return fmt.Errorf("ошибка записи игры: %w", err)
		}

		balance, err := tx.AdjustBalance(ctx, accountID, reward)
		if err != nil {
			return fmt.Errorf("ошибка начисления: %w", err)
		}

		res.Result = out.Result
		res.Card = out.Card
		res.TokensEarned = reward
		res.Balance = balance
		res.PlaysToday = plays
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"game":       kind,
		"tokens":     reward,
		"balance":    res.Balance,
		"plays":      res.PlaysToday,
	}).Info("Игра сыграна")

	return res, nil
}

// draw разыгрывает исход игры на языке пользователя.
func (s *Service) draw(kind ledger.GameKind, locale string) (*Outcome, error) {
	switch kind {
	case ledger.GameCoin:
		i, err := s.pick(2)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			return &Outcome{Result: Heads}, nil
		}
		return &Outcome{Result: Tails}, nil

	case ledger.GameBall:
		i, err := s.pick(len(BallAnswers))
		if err != nil {
			return nil, err
		}
		return &Outcome{Result: BallAnswers[i].For(locale)}, nil

	case ledger.GameTarot:
		i, err := s.pick(len(TarotDeck))
		if err != nil {
			return nil, err
		}
		card := TarotDeck[i]
		view := &CardView{ID: card.ID, Name: card.Name.For(locale), Meaning: card.Meaning.For(locale)}
		return &Outcome{Result: view.Name + ": " + view.Meaning, Card: view}, nil
	}
	return nil, common.InvalidInput("неизвестный вид игры %q", kind)
}

// History возвращает последние игры пользователя. kind == nil — все игры.
func (s *Service) History(ctx context.Context, accountID int64, kind *ledger.GameKind, limit int) ([]ledger.PlayRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	plays, err := s.store.ListPlays(ctx, accountID, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории игр: %w", err)
	}
	return plays, nil
}

// Limits возвращает использованные и доступные попытки на сегодня.
func (s *Service) Limits(ctx context.Context, accountID int64) ([]Limit, error) {
	counts, err := s.store.DailyCounts(ctx, accountID, s.clock())
	if err != nil {
		return nil, fmt.Errorf("ошибка получения лимитов: %w", err)
	}
	out := make([]Limit, 0, len(ledger.GameKinds))
	for _, k := range ledger.GameKinds {
		out = append(out, Limit{Kind: k, Current: counts[k], Max: s.limiter.Cap(k)})
	}
	return out, nil
}
