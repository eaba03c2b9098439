package payments

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/flip-bot/internal/auth"
	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/ledger"
)

var now = time.Date(2026, 4, 2, 18, 30, 0, 0, time.UTC)

func setup(t *testing.T) (*ledger.MemoryStore, *Service, int64) {
	t.Helper()
	store := ledger.NewMemoryStore()
	var id int64
	err := store.Atomic(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		a := &ledger.Account{TelegramID: 777, Balance: ledger.StartingBalance, Locale: ledger.LocaleEN, Role: ledger.RoleUser}
		if err := tx.InsertAccount(ctx, a); err != nil {
			return err
		}
		id = a.ID
		return nil
	})
	require.NoError(t, err)
	return store, NewService(store, func() time.Time { return now }, "flipcoin_bot"), id
}

func balance(t *testing.T, store *ledger.MemoryStore, id int64) int64 {
	t.Helper()
	a, err := store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a.Balance
}

func TestCreate_PendingWithoutCredit(t *testing.T) {
	store, svc, acc := setup(t)

	res, err := svc.Create(context.Background(), acc, "medium")
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentPending, res.Payment.Status)
	assert.Equal(t, int64(300), res.Payment.TokensAmount)
	assert.True(t, decimal.RequireFromString("4.99").Equal(res.Payment.Amount))
	assert.Equal(t, "USD", res.Payment.Currency)
	assert.Equal(t, "https://t.me/flipcoin_bot?start=payment_"+strconv.FormatInt(res.Payment.ID, 10), res.PaymentLink)
	assert.Equal(t, int64(100), balance(t, store, acc))

	_, err = svc.Create(context.Background(), acc, "huge")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestSettle_SuccessIsIdempotent(t *testing.T) {
	store, svc, acc := setup(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, acc, "small")
	require.NoError(t, err)
	id := created.Payment.ID

	first, err := svc.Settle(ctx, id, ProviderSuccessful, "tg-1")
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.Equal(t, ledger.PaymentCompleted, first.Payment.Status)
	require.NotNil(t, first.Payment.ProviderRef)
	assert.Equal(t, "tg-1", *first.Payment.ProviderRef)
	require.NotNil(t, first.Payment.CompletedAt)
	assert.Equal(t, now, *first.Payment.CompletedAt)
	require.NotNil(t, first.Balance)
	assert.Equal(t, int64(200), *first.Balance)

	again, err := svc.Settle(ctx, id, ProviderSuccessful, "tg-2")
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.Equal(t, "tg-1", *again.Payment.ProviderRef)

	// завершённый платёж не откатывается уведомлением о неудаче
	late, err := svc.Settle(ctx, id, ProviderFailed, "")
	require.NoError(t, err)
	assert.False(t, late.Applied)
	assert.Equal(t, ledger.PaymentCompleted, late.Payment.Status)

	assert.Equal(t, int64(200), balance(t, store, acc))
}

func TestSettle_ParallelDuplicatesCreditOnce(t *testing.T) {
	store, svc, acc := setup(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, acc, "premium")
	require.NoError(t, err)

	var wg sync.WaitGroup
	applied := make([]bool, 10)
	for i := range applied {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Settle(ctx, created.Payment.ID, ProviderPaid, "tg")
			if assert.NoError(t, err) {
				applied[i] = res.Applied
			}
		}(i)
	}
	wg.Wait()

	n := 0
	for _, a := range applied {
		if a {
			n++
		}
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(1100), balance(t, store, acc))
}

func TestSettle_FailedAndUnknownStatus(t *testing.T) {
	store, svc, acc := setup(t)
	ctx := context.Background()
	a, err := svc.Create(ctx, acc, "small")
	require.NoError(t, err)
	b, err := svc.Create(ctx, acc, "large")
	require.NoError(t, err)

	res, err := svc.Settle(ctx, a.Payment.ID, ProviderFailed, "")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, ledger.PaymentFailed, res.Payment.Status)
	assert.Nil(t, res.Payment.CompletedAt)

	_, err = svc.Settle(ctx, b.Payment.ID, "maybe", "")
	assert.ErrorIs(t, err, common.ErrInvalidPaymentStatus)
	p, err := store.GetPayment(ctx, b.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentPending, p.Status)

	_, err = svc.Settle(ctx, 999, ProviderSuccessful, "")
	assert.ErrorIs(t, err, common.ErrPaymentNotFound)

	assert.Equal(t, int64(100), balance(t, store, acc))
}

func TestWebhook_RejectsForgedWithoutMutation(t *testing.T) {
	store, svc, acc := setup(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, acc, "small")
	require.NoError(t, err)

	verifier := auth.NewVerifier("123:secret", 24*time.Hour, func() time.Time { return now })
	hook := NewWebhook(svc, verifier)

	fields := map[string]string{
		FieldPaymentID:   strconv.FormatInt(created.Payment.ID, 10),
		FieldStatus:      ProviderSuccessful,
		FieldProviderRef: "tg-9",
	}
	forged := map[string]string{auth.HashField: "00ff"}
	for k, v := range fields {
		forged[k] = v
	}
	_, err = hook.Handle(ctx, forged)
	assert.ErrorIs(t, err, common.ErrAuthenticationFailed)
	p, err := store.GetPayment(ctx, created.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentPending, p.Status)
	assert.Equal(t, int64(100), balance(t, store, acc))

	fields[auth.HashField] = verifier.Sign(fields)
	res, err := hook.Handle(ctx, fields)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(200), balance(t, store, acc))
}

func TestSetStatus_Transitions(t *testing.T) {
	store, svc, acc := setup(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, acc, "small")
	require.NoError(t, err)
	id := created.Payment.ID

	_, err = svc.SetStatus(ctx, id, ledger.PaymentRefunded)
	assert.ErrorIs(t, err, common.ErrInvalidPaymentStatus)

	res, err := svc.SetStatus(ctx, id, ledger.PaymentCompleted)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(200), balance(t, store, acc))

	res, err = svc.SetStatus(ctx, id, ledger.PaymentCompleted)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	res, err = svc.SetStatus(ctx, id, ledger.PaymentRefunded)
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentRefunded, res.Payment.Status)
	assert.Equal(t, int64(200), balance(t, store, acc))

	_, err = svc.SetStatus(ctx, id, ledger.PaymentPending)
	assert.ErrorIs(t, err, common.ErrInvalidPaymentStatus)
}

func TestHistoryAndListAll(t *testing.T) {
	_, svc, acc := setup(t)
	ctx := context.Background()
	a, err := svc.Create(ctx, acc, "small")
	require.NoError(t, err)
	b, err := svc.Create(ctx, acc, "medium")
	require.NoError(t, err)
	_, err = svc.Settle(ctx, a.Payment.ID, ProviderSuccessful, "x")
	require.NoError(t, err)

	hist, err := svc.History(ctx, acc, 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, b.Payment.ID, hist[0].ID)

	pending := ledger.PaymentPending
	list, err := svc.ListAll(ctx, &pending, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.Payment.ID, list[0].ID)
}

func TestPackages_Localized(t *testing.T) {
	_, svc, _ := setup(t)
	views := svc.Packages(ledger.LocaleRU)
	require.Len(t, views, 4)
	assert.Equal(t, "small", views[0].ID)
	assert.Equal(t, "Малый пакет", views[0].Description)
}
