package games

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/ledger"
)

var fixedNow = time.Date(2026, 5, 20, 23, 30, 0, 0, time.UTC)

func newAccount(t *testing.T, store *ledger.MemoryStore, locale string) int64 {
	t.Helper()
	var id int64
	err := store.Atomic(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		a := &ledger.Account{TelegramID: 1000, Balance: ledger.StartingBalance, Locale: locale, Role: ledger.RoleUser}
		if err := tx.InsertAccount(ctx, a); err != nil {
			return err
		}
		id = a.ID
		return nil
	})
	require.NoError(t, err)
	return id
}

func fixedPicker(i int) Picker {
	return func(n int) (int, error) { return i % n, nil }
}

func newService(store ledger.Store, now *time.Time, pick Picker) *Service {
	return NewService(store, NewLimiter(nil), func() time.Time { return *now }, pick)
}

func TestPlay_CoinCreditsAndRecords(t *testing.T) {
	store := ledger.NewMemoryStore()
	id := newAccount(t, store, ledger.LocaleEN)
	now := fixedNow
	svc := newService(store, &now, fixedPicker(0))

	res, err := svc.Play(context.Background(), id, ledger.GameCoin, Params{})
	require.NoError(t, err)
	assert.Equal(t, Heads, res.Result)
	assert.Equal(t, int64(1), res.TokensEarned)
	assert.Equal(t, int64(101), res.Balance)
	assert.Equal(t, 1, res.PlaysToday)
	assert.Equal(t, 50, res.MaxPlays)

	plays, err := svc.History(context.Background(), id, nil, 0)
	require.NoError(t, err)
	require.Len(t, plays, 1)
	assert.Equal(t, ledger.GameCoin, plays[0].Kind)
	assert.Equal(t, Heads, plays[0].Result)
}

func TestPlay_CoinIsFair(t *testing.T) {
	store := ledger.NewMemoryStore()
	id := newAccount(t, store, ledger.LocaleEN)
	now := fixedNow
	svc := newService(store, &now, nil)

	seen := map[string]int{}
	for i := 0; i < 50; i++ {
		res, err := svc.Play(context.Background(), id, ledger.GameCoin, Params{})
		require.NoError(t, err)
		seen[res.Result]++
	}
	assert.Len(t, seen, 2)
	assert.Equal(t, 50, seen[Heads]+seen[Tails])
}

func TestPlay_BallRequiresQuestionBeforeStore(t *testing.T) {
	store := ledger.NewMemoryStore()
	id := newAccount(t, store, ledger.LocaleEN)
	now := fixedNow
	svc := newService(store, &now, fixedPicker(0))

	// Хранилище недоступно, но проверка вопроса срабатывает раньше
	store.SetUnavailable(true)
	_, err := svc.Play(context.Background(), id, ledger.GameBall, Params{Question: "   "})
	require.ErrorIs(t, err, common.ErrInvalidInput)
	store.SetUnavailable(false)

	counts, err := store.DailyCounts(context.Background(), id, now)
	require.NoError(t, err)
	assert.Zero(t, counts[ledger.GameBall])
}

func TestPlay_BallLocalized(t *testing.T) {
	store := ledger.NewMemoryStore()
	id := newAccount(t, store, ledger.LocaleRU)
	now := fixedNow
	svc := newService(store, &now, fixedPicker(0))

	res, err := svc.Play(context.Background(), id, ledger.GameBall, Params{Question: "Повезёт?"})
	require.NoError(t, err)
	assert.Equal(t, "Определенно да", res.Result)
	assert.Equal(t, "Повезёт?", res.Question)
	assert.Equal(t, int64(2), res.TokensEarned)
}

func TestPlay_TarotResultFormat(t *testing.T) {
	store := ledger.NewMemoryStore()
	id := newAccount(t, store, ledger.LocaleEN)
	now := fixedNow
	svc := newService(store, &now, fixedPicker(7))

	res, err := svc.Play(context.Background(), id, ledger.GameTarot, Params{})
	require.NoError(t, err)
	require.NotNil(t, res.Card)
	assert.Equal(t, 8, res.Card.ID)
	assert.Equal(t, "The Chariot: Control, willpower, victory, assertion, determination", res.Result)
	assert.True(t, strings.HasPrefix(res.Result, res.Card.Name+": "))
	assert.Equal(t, int64(103), res.Balance)
}

func TestPlay_DailyCapThenNextDay(t *testing.T) {
	store := ledger.NewMemoryStore()
	id := newAccount(t, store, ledger.LocaleEN)
	now := fixedNow
	svc := newService(store, &now, fixedPicker(1))
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := svc.Play(ctx, id, ledger.GameTarot, Params{})
		require.NoError(t, err)
	}

	_, err := svc.Play(ctx, id, ledger.GameTarot, Params{})
	require.ErrorIs(t, err, common.ErrDailyLimitExceeded)
	var limitErr *common.DailyLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 20, limitErr.Cap)
	assert.Equal(t, 20, limitErr.Current)

	// Отказ ничего не записал
	acc, err := store.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(100+20*3), acc.Balance)
	plays, err := store.ListPlays(ctx, id, nil, 0)
	require.NoError(t, err)
	assert.Len(t, plays, 20)

	// Через 30 минут начинаются новые UTC-сутки
	now = fixedNow.Add(30 * time.Minute)
	res, err := svc.Play(ctx, id, ledger.GameTarot, Params{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.PlaysToday)
}

func TestPlay_ConcurrentNeverExceedsCap(t *testing.T) {
	store := ledger.NewMemoryStore()
	id := newAccount(t, store, ledger.LocaleEN)
	now := fixedNow
	svc := newService(store, &now, fixedPicker(0))
	ctx := context.Background()

	const attempts = 80
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		limited int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Play(ctx, id, ledger.GameCoin, Params{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case common.KindOf(err) == common.KindDailyLimitExceeded:
				limited++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, ok)
	assert.Equal(t, attempts-50, limited)

	acc, err := store.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(150), acc.Balance)

	counts, err := store.DailyCounts(ctx, id, now)
	require.NoError(t, err)
	assert.Equal(t, 50, counts[ledger.GameCoin])
}

func TestPlay_StoreUnavailable(t *testing.T) {
	store := ledger.NewMemoryStore()
	id := newAccount(t, store, ledger.LocaleEN)
	now := fixedNow
	svc := newService(store, &now, fixedPicker(0))

	store.SetUnavailable(true)
	_, err := svc.Play(context.Background(), id, ledger.GameCoin, Params{})
	require.ErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestPlay_UnknownAccount(t *testing.T) {
	store := ledger.NewMemoryStore()
	now := fixedNow
	svc := newService(store, &now, fixedPicker(0))

	_, err := svc.Play(context.Background(), 999, ledger.GameCoin, Params{})
	require.ErrorIs(t, err, common.ErrAccountNotFound)
}

func TestLimits(t *testing.T) {
	store := ledger.NewMemoryStore()
	id := newAccount(t, store, ledger.LocaleEN)
	now := fixedNow
	svc := newService(store, &now, fixedPicker(0))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Play(ctx, id, ledger.GameBall, Params{Question: "?"})
		require.NoError(t, err)
	}

	limits, err := svc.Limits(ctx, id)
	require.NoError(t, err)
	require.Len(t, limits, 3)
	assert.Equal(t, Limit{Kind: ledger.GameCoin, Current: 0, Max: 50}, limits[0])
	assert.Equal(t, Limit{Kind: ledger.GameBall, Current: 3, Max: 30}, limits[1])
	assert.Equal(t, Limit{Kind: ledger.GameTarot, Current: 0, Max: 20}, limits[2])
}

func TestLimiter_RejectsWithoutMutation(t *testing.T) {
	store := ledger.NewMemoryStore()
	id := newAccount(t, store, ledger.LocaleEN)
	lim := NewLimiter(map[ledger.GameKind]int{ledger.GameCoin: 1})
	ctx := context.Background()

	reserve := func() (int, error) {
		var n int
		err := store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
			var err error
			n, err = lim.CheckAndReserve(ctx, tx, id, ledger.GameCoin, fixedNow)
			return err
		})
		return n, err
	}

	n, err := reserve()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = reserve()
	require.ErrorIs(t, err, common.ErrDailyLimitExceeded)

	counts, err := store.DailyCounts(ctx, id, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[ledger.GameCoin])
}
