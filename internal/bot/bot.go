// Package bot — Telegram-бот мини-приложения.
// bot.go принимает апдейты (long polling), ограничивает параллелизм
// и маршрутизирует команды: /start, /balance, /limits, /help.
package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/flip-bot/internal/auth"
	"serotonyl.ru/flip-bot/internal/bot/filters"
	"serotonyl.ru/flip-bot/internal/bot/middleware"
	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/config"
	"serotonyl.ru/flip-bot/internal/features/games"
	"serotonyl.ru/flip-bot/internal/features/payments"
	"serotonyl.ru/flip-bot/internal/ledger"
	"serotonyl.ru/flip-bot/internal/ratelimit"
)

// Sender — часть BotAPI, через которую бот отвечает.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// AccountService — пользователи.
type AccountService interface {
	Ensure(ctx context.Context, data *auth.LoginData) (*ledger.Account, bool, error)
	ByTelegramID(ctx context.Context, telegramID int64) (*ledger.Account, error)
}

// GameService — дневные лимиты игр.
type GameService interface {
	Limits(ctx context.Context, accountID int64) ([]games.Limit, error)
}

// PaymentService — платежи.
type PaymentService interface {
	Get(ctx context.Context, paymentID int64) (*ledger.Payment, error)
	Settle(ctx context.Context, paymentID int64, providerStatus, providerRef string) (*payments.SettleResult, error)
}

// Bot — основная структура бота.
type Bot struct {
	api  *tgbotapi.BotAPI
	send Sender
	cfg  *config.Config

	accounts AccountService
	games    GameService
	payments PaymentService

	rateLimiter *ratelimit.Limiter
	parser      *CommandParser
	clock       common.Clock

	inflight chan struct{}
	wg       sync.WaitGroup
}

// New создаёт бота. rateLimiter может быть nil.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	accounts AccountService,
	gameSvc GameService,
	paymentSvc PaymentService,
	rateLimiter *ratelimit.Limiter,
) *Bot {
	b := newBot(api, cfg, accounts, gameSvc, paymentSvc, rateLimiter)
	b.api = api
	return b
}

func newBot(send Sender, cfg *config.Config, accounts AccountService, gameSvc GameService, paymentSvc PaymentService, rateLimiter *ratelimit.Limiter) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}
	return &Bot{
		send:        send,
		cfg:         cfg,
		accounts:    accounts,
		games:       gameSvc,
		payments:    paymentSvc,
		rateLimiter: rateLimiter,
		parser:      NewCommandParser(),
		clock:       common.SystemClock,
		inflight:    make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling обновлений от Telegram и блокируется до отмены ctx.
// Перед возвратом дожидается обработки уже принятых апдейтов.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			b.wg.Add(1)
			go func(upd tgbotapi.Update) {
				defer func() {
					<-b.inflight
					b.wg.Done()
				}()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic(update.UpdateID)

	// Подтверждение оплаты приходит отдельным апдейтом
	if update.PreCheckoutQuery != nil {
		b.handlePreCheckout(ctx, update.PreCheckoutQuery)
		return
	}

	message := update.Message
	if message == nil || message.From == nil || message.Chat == nil {
		return
	}
	if message.SuccessfulPayment != nil {
		b.handleSuccessfulPayment(ctx, message)
		return
	}
	if message.Text == "" {
		return
	}

	middleware.LogMessage(message)

	// Баланс и платежи личные: в группах бот молчит
	if !filters.PrivateOnly(message) {
		return
	}

	if b.rateLimiter != nil {
		if ok, _ := b.rateLimiter.Allow("tg:" + strconv.FormatInt(message.From.ID, 10)); !ok {
			log.WithField("user_id", message.From.ID).Debug("rate limited")
			return
		}
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if !isCommand {
		return
	}
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("routing command")
	b.routeCommand(ctx, message, cmd, args)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, message *tgbotapi.Message, cmd string, args []string) {
	switch cmd {
	case "start":
		b.handleStart(ctx, message, args)
	case "balance", "баланс":
		b.handleBalance(ctx, message)
	case "limits", "лимиты":
		b.handleLimits(ctx, message)
	case "help", "помощь":
		b.sendMessage(message.Chat.ID, text(ledger.NormalizeLocale(message.From.LanguageCode), msgHelp))
	}
}

func loginDataFrom(u *tgbotapi.User, now time.Time) *auth.LoginData {
	return &auth.LoginData{
		TelegramID:   u.ID,
		Username:     u.UserName,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		LanguageCode: u.LanguageCode,
		AuthDate:     now,
	}
}

// handleStart регистрирует пользователя и показывает кнопку мини-приложения.
// /start payment_<id> открывает платёж из ссылки на оплату.
func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message, args []string) {
	chatID := message.Chat.ID
	acc, created, err := b.accounts.Ensure(ctx, loginDataFrom(message.From, b.clock()))
	if err != nil {
		log.WithError(err).WithField("user_id", message.From.ID).Warn("Ensure account failed")
		b.sendMessage(chatID, text(ledger.NormalizeLocale(message.From.LanguageCode), msgInternalError))
		return
	}

	if len(args) > 0 {
		if paymentID, ok := parsePaymentPayload(args[0]); ok {
			b.handlePaymentLink(ctx, chatID, acc, paymentID)
			return
		}
	}

	var body string
	if created {
		body = text(acc.Locale, msgWelcomeNew, common.FormatTokens(acc.Balance, acc.Locale))
	} else {
		body = text(acc.Locale, msgWelcomeBack, common.FormatTokens(acc.Balance, acc.Locale))
	}

	msg := tgbotapi.NewMessage(chatID, body)
	if b.cfg.MiniAppURL != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL(text(acc.Locale, msgOpenApp), b.cfg.MiniAppURL),
			),
		)
	}
	b.sendChattable(chatID, msg)
}

// account ищет пользователя отправителя. Незарегистрированному отвечает подсказкой.
func (b *Bot) account(ctx context.Context, message *tgbotapi.Message) (*ledger.Account, bool) {
	locale := ledger.NormalizeLocale(message.From.LanguageCode)
	acc, err := b.accounts.ByTelegramID(ctx, message.From.ID)
	switch {
	case errors.Is(err, common.ErrAccountNotFound):
		b.sendMessage(message.Chat.ID, text(locale, msgNotRegistered))
		return nil, false
	case err != nil:
		log.WithError(err).WithField("user_id", message.From.ID).Warn("Не удалось получить пользователя")
		b.sendMessage(message.Chat.ID, text(locale, msgInternalError))
		return nil, false
	}
	return acc, true
}

// handleBalance показывает баланс.
func (b *Bot) handleBalance(ctx context.Context, message *tgbotapi.Message) {
	acc, ok := b.account(ctx, message)
	if !ok {
		return
	}
	b.sendMessage(message.Chat.ID, text(acc.Locale, msgBalance, common.FormatTokens(acc.Balance, acc.Locale)))
}

// handleLimits показывает, сколько игр сыграно сегодня.
func (b *Bot) handleLimits(ctx context.Context, message *tgbotapi.Message) {
	acc, ok := b.account(ctx, message)
	if !ok {
		return
	}
	limits, err := b.games.Limits(ctx, acc.ID)
	if err != nil {
		log.WithError(err).WithField("account_id", acc.ID).Warn("Не удалось получить лимиты")
		b.sendMessage(message.Chat.ID, text(acc.Locale, msgInternalError))
		return
	}

	var sb strings.Builder
	sb.WriteString(text(acc.Locale, msgLimitsHeader))
	for _, l := range limits {
		sb.WriteByte('\n')
		sb.WriteString(text(acc.Locale, msgLimitLine, l.Kind.APIName(), l.Current, l.Max))
	}
	b.sendMessage(message.Chat.ID, sb.String())
}

// sendMessage — утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, body string) {
	b.sendChattable(chatID, tgbotapi.NewMessage(chatID, body))
}

func (b *Bot) sendChattable(chatID int64, c tgbotapi.Chattable) {
	if _, err := b.send.Send(c); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// CommandParser парсит команды с префиксами / и !
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"/", "!"},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
// Суффикс @имя_бота у команды отбрасывается.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}

	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command, _, _ := strings.Cut(parts[0], "@")
	command = strings.ToLower(command)
	if command == "" {
		return "", nil, false
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return command, args, true
}
