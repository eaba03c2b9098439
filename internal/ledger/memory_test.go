package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/flip-bot/internal/common"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func seedAccount(t *testing.T, s *MemoryStore, tgID, balance int64) int64 {
	t.Helper()
	var id int64
	err := s.Atomic(context.Background(), func(ctx context.Context, tx Tx) error {
		a := &Account{TelegramID: tgID, Balance: balance, Role: RoleUser, Locale: LocaleEN, CreatedAt: testNow}
		if err := tx.InsertAccount(ctx, a); err != nil {
			return err
		}
		id = a.ID
		return nil
	})
	require.NoError(t, err)
	return id
}

func TestAtomic_RollbackOnError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id := seedAccount(t, s, 1, 100)

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.AdjustBalance(ctx, id, 50); err != nil {
			return err
		}
		if err := tx.InsertPlay(ctx, &PlayRecord{AccountID: id, Kind: GameCoin, PlayedAt: testNow}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	a, err := s.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(100), a.Balance)

	plays, err := s.ListPlays(ctx, id, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, plays)
}

func TestAdjustBalance_NeverNegative(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id := seedAccount(t, s, 1, 30)

	err := s.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.AdjustBalance(ctx, id, -31)
		return err
	})
	require.ErrorIs(t, err, common.ErrInsufficientTokens)

	a, err := s.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(30), a.Balance)
}

func TestAtomic_Serializes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id := seedAccount(t, s, 1, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Atomic(ctx, func(ctx context.Context, tx Tx) error {
				// чтение-изменение-запись
				c, err := tx.LockDailyCounter(ctx, id, GameBall, testNow)
				if err != nil {
					return err
				}
				return tx.SetDailyCount(ctx, id, GameBall, testNow, c.Count+1)
			})
		}()
	}
	wg.Wait()

	counts, err := s.DailyCounts(ctx, id, testNow)
	require.NoError(t, err)
	assert.Equal(t, 50, counts[GameBall])
}

func TestUnavailable(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id := seedAccount(t, s, 1, 10)

	s.SetUnavailable(true)
	err := s.Atomic(ctx, func(ctx context.Context, tx Tx) error { return nil })
	require.ErrorIs(t, err, common.ErrStoreUnavailable)
	_, err = s.GetAccount(ctx, id)
	require.ErrorIs(t, err, common.ErrStoreUnavailable)

	s.SetUnavailable(false)
	_, err = s.GetAccount(ctx, id)
	require.NoError(t, err)
}

func TestUnavailableMidBlockDiscards(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id := seedAccount(t, s, 1, 10)

	err := s.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.AdjustBalance(ctx, id, 5); err != nil {
			return err
		}
		s.SetUnavailable(true)
		return nil
	})
	require.ErrorIs(t, err, common.ErrStoreUnavailable)

	s.SetUnavailable(false)
	a, err := s.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(10), a.Balance)
}

func TestDailyCounter_DateIsPartOfKey(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id := seedAccount(t, s, 1, 0)

	err := s.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		c, err := tx.LockDailyCounter(ctx, id, GameCoin, testNow)
		require.NoError(t, err)
		assert.Equal(t, 0, c.Count)
		return tx.SetDailyCount(ctx, id, GameCoin, testNow, 7)
	})
	require.NoError(t, err)

	today, err := s.DailyCounts(ctx, id, testNow)
	require.NoError(t, err)
	assert.Equal(t, 7, today[GameCoin])

	tomorrow, err := s.DailyCounts(ctx, id, testNow.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, tomorrow[GameCoin])

	n, err := s.PruneDailyCounters(ctx, common.DayStart(testNow).Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInsertCompletion_UniquePerPeriod(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id := seedAccount(t, s, 1, 0)

	insert := func(period time.Time) error {
		return s.Atomic(ctx, func(ctx context.Context, tx Tx) error {
			return tx.InsertCompletion(ctx, &TaskCompletion{AccountID: id, TaskID: 1, Period: period, CompletedAt: testNow})
		})
	}
	require.NoError(t, insert(common.UTCDate(testNow)))
	require.ErrorIs(t, insert(common.UTCDate(testNow)), common.ErrAlreadyCompleted)
	require.NoError(t, insert(common.UTCDate(testNow.Add(24*time.Hour))))
}

func TestQueriesReturnCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id := seedAccount(t, s, 1, 10)

	a, err := s.GetAccount(ctx, id)
	require.NoError(t, err)
	a.Balance = 9999

	again, err := s.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(10), again.Balance)
}

func TestFindAccountByCode(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id := seedAccount(t, s, 42, 0)

	err := s.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.LockAccount(ctx, id)
		require.NoError(t, err)
		a.Nickname = "lucky"
		return tx.UpdateAccount(ctx, a)
	})
	require.NoError(t, err)

	_ = s.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		byTg, err := tx.FindAccountByCode(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, id, byTg.ID)

		byNick, err := tx.FindAccountByCode(ctx, "lucky")
		require.NoError(t, err)
		assert.Equal(t, id, byNick.ID)

		_, err = tx.FindAccountByCode(ctx, "nobody")
		assert.ErrorIs(t, err, common.ErrNotFound)
		return nil
	})
}
