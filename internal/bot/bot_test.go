package bot

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/flip-bot/internal/config"
	"serotonyl.ru/flip-bot/internal/features/accounts"
	"serotonyl.ru/flip-bot/internal/features/games"
	"serotonyl.ru/flip-bot/internal/features/payments"
	"serotonyl.ru/flip-bot/internal/ledger"
	"serotonyl.ru/flip-bot/internal/ratelimit"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) last(t *testing.T) tgbotapi.Chattable {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) lastText(t *testing.T) string {
	t.Helper()
	msg, ok := f.last(t).(tgbotapi.MessageConfig)
	require.True(t, ok, "ожидалось текстовое сообщение")
	return msg.Text
}

type fixture struct {
	bot      *Bot
	sender   *fakeSender
	store    *ledger.MemoryStore
	accounts *accounts.Service
	games    *games.Service
	payments *payments.Service
}

func setup(t *testing.T, cfg *config.Config, limiter *ratelimit.Limiter) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	store := ledger.NewMemoryStore()
	f := &fixture{
		sender:   &fakeSender{},
		store:    store,
		accounts: accounts.NewService(store, nil, nil, clock),
		games:    games.NewService(store, games.NewLimiter(games.DailyCaps), clock, games.CryptoPicker),
		payments: payments.NewService(store, clock, "flipcoin_bot"),
	}
	f.bot = newBot(f.sender, cfg, f.accounts, f.games, f.payments, limiter)
	f.bot.clock = clock
	return f
}

func privateMessage(userID int64, body string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: body,
		From: &tgbotapi.User{ID: userID, UserName: "neo", LanguageCode: "en"},
		Chat: &tgbotapi.Chat{ID: userID, Type: "private"},
	}}
}

func (f *fixture) start(t *testing.T, userID int64) *ledger.Account {
	t.Helper()
	f.bot.handleUpdate(context.Background(), privateMessage(userID, "/start"))
	acc, err := f.accounts.ByTelegramID(context.Background(), userID)
	require.NoError(t, err)
	return acc
}

func TestParseCommand(t *testing.T) {
	p := NewCommandParser()

	cmd, args, ok := p.ParseCommand("/start@flipcoin_bot payment_5")
	require.True(t, ok)
	assert.Equal(t, "start", cmd)
	assert.Equal(t, []string{"payment_5"}, args)

	cmd, args, ok = p.ParseCommand("  !Balance ")
	require.True(t, ok)
	assert.Equal(t, "balance", cmd)
	assert.Nil(t, args)

	for _, s := range []string{"hello", "/", "/ ", "/@bot"} {
		_, _, ok = p.ParseCommand(s)
		assert.False(t, ok, s)
	}
}

func TestParsePaymentPayload(t *testing.T) {
	id, ok := parsePaymentPayload("payment_17")
	assert.True(t, ok)
	assert.Equal(t, int64(17), id)

	for _, s := range []string{"payment_", "payment_x", "payment_-1", "pay_17", "17"} {
		_, ok = parsePaymentPayload(s)
		assert.False(t, ok, s)
	}
}

func TestStart_RegistersAndShowsAppButton(t *testing.T) {
	f := setup(t, &config.Config{MiniAppURL: "https://app.example"}, nil)

	acc := f.start(t, 42)
	assert.Equal(t, ledger.StartingBalance, acc.Balance)
	assert.Equal(t, "neo", acc.Nickname)

	msg, ok := f.sender.last(t).(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Contains(t, msg.Text, "Welcome to Flip Coin")
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 1)
	require.NotNil(t, markup.InlineKeyboard[0][0].URL)
	assert.Equal(t, "https://app.example", *markup.InlineKeyboard[0][0].URL)

	// повторный /start не создаёт второго пользователя
	f.bot.handleUpdate(context.Background(), privateMessage(42, "/start"))
	assert.Contains(t, f.sender.lastText(t), "Welcome back")
	list, err := f.store.ListAccounts(context.Background(), ledger.AccountFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBalance(t *testing.T) {
	f := setup(t, nil, nil)
	ctx := context.Background()

	f.bot.handleUpdate(ctx, privateMessage(7, "/balance"))
	assert.Contains(t, f.sender.lastText(t), "not registered")

	f.start(t, 7)
	f.bot.handleUpdate(ctx, privateMessage(7, "/balance"))
	assert.Equal(t, "Your balance: 100 tokens.", f.sender.lastText(t))
}

func TestLimits(t *testing.T) {
	f := setup(t, nil, nil)
	ctx := context.Background()
	acc := f.start(t, 7)

	_, err := f.games.Play(ctx, acc.ID, ledger.GameCoin, games.Params{})
	require.NoError(t, err)

	f.bot.handleUpdate(ctx, privateMessage(7, "/limits"))
	body := f.sender.lastText(t)
	assert.Contains(t, body, "flip_coin: 1/50")
	assert.Contains(t, body, "magic_ball: 0/30")
	assert.Contains(t, body, "tarot_card: 0/20")
}

func TestGroupMessagesIgnored(t *testing.T) {
	f := setup(t, nil, nil)
	upd := privateMessage(7, "/start")
	upd.Message.Chat = &tgbotapi.Chat{ID: -100, Type: "supergroup"}

	f.bot.handleUpdate(context.Background(), upd)
	assert.Zero(t, f.sender.count())
}

func TestRateLimited(t *testing.T) {
	limiter := ratelimit.New(2, time.Minute, clock)
	defer limiter.Close()
	f := setup(t, nil, limiter)
	ctx := context.Background()

	f.bot.handleUpdate(ctx, privateMessage(7, "/help"))
	f.bot.handleUpdate(ctx, privateMessage(7, "/help"))
	f.bot.handleUpdate(ctx, privateMessage(7, "/help"))
	assert.Equal(t, 2, f.sender.count())
}

func TestPaymentLink(t *testing.T) {
	f := setup(t, nil, nil)
	ctx := context.Background()
	acc := f.start(t, 7)
	other := f.start(t, 8)

	created, err := f.payments.Create(ctx, acc.ID, "small")
	require.NoError(t, err)
	payload := "/start payment_" + strconv.FormatInt(created.Payment.ID, 10)

	f.bot.handleUpdate(ctx, privateMessage(7, payload))
	assert.Contains(t, f.sender.lastText(t), "100 tokens for 1.99 USD")

	// чужой платёж не раскрывается
	f.bot.handleUpdate(ctx, privateMessage(other.TelegramID, payload))
	assert.Equal(t, "Payment not found.", f.sender.lastText(t))

	f.bot.handleUpdate(ctx, privateMessage(7, "/start payment_999"))
	assert.Equal(t, "Payment not found.", f.sender.lastText(t))
}

func TestPaymentLink_SendsInvoice(t *testing.T) {
	f := setup(t, &config.Config{PaymentProviderToken: "provider"}, nil)
	ctx := context.Background()
	acc := f.start(t, 7)

	created, err := f.payments.Create(ctx, acc.ID, "medium")
	require.NoError(t, err)

	f.bot.handleUpdate(ctx, privateMessage(7, "/start payment_"+strconv.FormatInt(created.Payment.ID, 10)))
	invoice, ok := f.sender.last(t).(tgbotapi.InvoiceConfig)
	require.True(t, ok)
	assert.Equal(t, "USD", invoice.Currency)
	assert.Equal(t, "provider", invoice.ProviderToken)
	assert.Equal(t, paymentPayload(created.Payment.ID), invoice.Payload)
	require.Len(t, invoice.Prices, 1)
	assert.Equal(t, 499, invoice.Prices[0].Amount)
}

func TestPreCheckout(t *testing.T) {
	f := setup(t, nil, nil)
	ctx := context.Background()
	acc := f.start(t, 7)

	created, err := f.payments.Create(ctx, acc.ID, "small")
	require.NoError(t, err)

	query := func(from int64, amount int) tgbotapi.PreCheckoutConfig {
		f.bot.handleUpdate(ctx, tgbotapi.Update{PreCheckoutQuery: &tgbotapi.PreCheckoutQuery{
			ID:             "q1",
			From:           &tgbotapi.User{ID: from, LanguageCode: "en"},
			Currency:       "USD",
			TotalAmount:    amount,
			InvoicePayload: paymentPayload(created.Payment.ID),
		}})
		answer, ok := f.sender.last(t).(tgbotapi.PreCheckoutConfig)
		require.True(t, ok)
		return answer
	}

	assert.True(t, query(7, 199).OK)

	wrong := query(7, 100)
	assert.False(t, wrong.OK)
	assert.NotEmpty(t, wrong.ErrorMessage)

	f.start(t, 8)
	assert.False(t, query(8, 199).OK)
}

func TestSuccessfulPayment_CreditsOnce(t *testing.T) {
	f := setup(t, nil, nil)
	ctx := context.Background()
	acc := f.start(t, 7)

	created, err := f.payments.Create(ctx, acc.ID, "small")
	require.NoError(t, err)

	paid := privateMessage(7, "")
	paid.Message.SuccessfulPayment = &tgbotapi.SuccessfulPayment{
		Currency:                "USD",
		TotalAmount:             199,
		InvoicePayload:          paymentPayload(created.Payment.ID),
		TelegramPaymentChargeID: "tg-charge-1",
	}

	f.bot.handleUpdate(ctx, paid)
	assert.Equal(t, "Payment received! +100 tokens. Balance: 200 tokens.", f.sender.lastText(t))

	f.bot.handleUpdate(ctx, paid)
	assert.Contains(t, f.sender.lastText(t), "already completed")

	got, err := f.store.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.Balance)

	p, err := f.payments.Get(ctx, created.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentCompleted, p.Status)
	require.NotNil(t, p.ProviderRef)
	assert.Equal(t, "tg-charge-1", *p.ProviderRef)
}

func TestHandleUpdate_RecoversFromPanic(t *testing.T) {
	f := setup(t, nil, nil)
	f.bot.accounts = nil // /start обратится к nil-интерфейсу

	assert.NotPanics(t, func() {
		f.bot.handleUpdate(context.Background(), privateMessage(7, "/start"))
	})
}
