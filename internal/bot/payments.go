package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/features/payments"
	"serotonyl.ru/flip-bot/internal/ledger"
)

// paymentPayloadPrefix — префикс параметра /start и payload счёта.
const paymentPayloadPrefix = "payment_"

func parsePaymentPayload(s string) (int64, bool) {
	raw, ok := strings.CutPrefix(s, paymentPayloadPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func paymentPayload(id int64) string {
	return paymentPayloadPrefix + strconv.FormatInt(id, 10)
}

// handlePaymentLink показывает платёж из ссылки на оплату. Если настроен
// платёжный провайдер, по ожидающему платежу выставляется счёт.
func (b *Bot) handlePaymentLink(ctx context.Context, chatID int64, acc *ledger.Account, paymentID int64) {
	p, err := b.payments.Get(ctx, paymentID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		b.sendMessage(chatID, text(acc.Locale, msgPaymentNotFound))
		return
	case err != nil:
		log.WithError(err).WithField("payment_id", paymentID).Warn("Не удалось получить платёж")
		b.sendMessage(chatID, text(acc.Locale, msgInternalError))
		return
	}
	// Чужой платёж выглядит так же, как несуществующий
	if p.AccountID != acc.ID {
		b.sendMessage(chatID, text(acc.Locale, msgPaymentNotFound))
		return
	}

	switch p.Status {
	case ledger.PaymentPending:
	case ledger.PaymentCompleted:
		b.sendMessage(chatID, text(acc.Locale, msgPaymentDone, p.ID))
		return
	default:
		b.sendMessage(chatID, text(acc.Locale, msgPaymentClosed, p.ID, p.Status))
		return
	}

	if b.cfg.PaymentProviderToken == "" {
		b.sendMessage(chatID, text(acc.Locale, msgPaymentPending, p.ID, common.FormatTokens(p.TokensAmount, acc.Locale), p.Amount.StringFixed(2), p.Currency))
		return
	}

	description := text(acc.Locale, msgInvoiceTitle, p.TokensAmount)
	if pkg, err := payments.FindPackage(p.PackageID); err == nil {
		description = pkg.Description.For(acc.Locale)
	}
	invoice := tgbotapi.NewInvoice(
		chatID,
		text(acc.Locale, msgInvoiceTitle, p.TokensAmount),
		description,
		paymentPayload(p.ID),
		b.cfg.PaymentProviderToken,
		paymentPayload(p.ID),
		p.Currency,
		[]tgbotapi.LabeledPrice{{Label: text(acc.Locale, msgInvoiceLabel), Amount: payments.PriceMinor(p)}},
	)
	// Telegram отклоняет счёт с suggested_tip_amounts = null
	invoice.SuggestedTipAmounts = []int{}
	b.sendChattable(chatID, invoice)
}

// handlePreCheckout подтверждает оплату, только если счёт совпадает
// с ожидающим платежом этого пользователя.
func (b *Bot) handlePreCheckout(ctx context.Context, q *tgbotapi.PreCheckoutQuery) {
	locale := ledger.LocaleEN
	if q.From != nil {
		locale = ledger.NormalizeLocale(q.From.LanguageCode)
	}
	answer := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: q.ID, OK: true}

	if reason := b.checkInvoice(ctx, q); reason != "" {
		log.WithFields(log.Fields{
			"payload": q.InvoicePayload,
			"reason":  reason,
		}).Warn("Оплата отклонена")
		answer.OK = false
		answer.ErrorMessage = text(locale, msgPaymentRejected)
	}

	if _, err := b.send.Request(answer); err != nil {
		log.WithError(err).WithField("query_id", q.ID).Error("Ошибка ответа на pre_checkout_query")
	}
}

// checkInvoice возвращает причину отказа либо пустую строку.
func (b *Bot) checkInvoice(ctx context.Context, q *tgbotapi.PreCheckoutQuery) string {
	id, ok := parsePaymentPayload(q.InvoicePayload)
	if !ok {
		return "bad payload"
	}
	if q.From == nil {
		return "no sender"
	}
	p, err := b.payments.Get(ctx, id)
	if err != nil {
		return err.Error()
	}
	acc, err := b.accounts.ByTelegramID(ctx, q.From.ID)
	if err != nil {
		return err.Error()
	}
	switch {
	case p.AccountID != acc.ID:
		return "foreign payment"
	case p.Status != ledger.PaymentPending:
		return "payment is " + string(p.Status)
	case q.Currency != p.Currency || q.TotalAmount != payments.PriceMinor(p):
		return "amount mismatch"
	}
	return ""
}

// handleSuccessfulPayment зачисляет токены по подтверждённой Telegram оплате.
// Повторное сообщение по тому же платежу ничего не начисляет.
func (b *Bot) handleSuccessfulPayment(ctx context.Context, message *tgbotapi.Message) {
	sp := message.SuccessfulPayment
	locale := ledger.NormalizeLocale(message.From.LanguageCode)
	logger := log.WithFields(log.Fields{
		"user_id": message.From.ID,
		"payload": sp.InvoicePayload,
		"charge":  sp.TelegramPaymentChargeID,
	})

	id, ok := parsePaymentPayload(sp.InvoicePayload)
	if !ok {
		logger.Error("Оплата с неизвестным payload")
		return
	}

	res, err := b.payments.Settle(ctx, id, payments.ProviderPaid, sp.TelegramPaymentChargeID)
	if err != nil {
		logger.WithError(err).Error("Не удалось провести оплату")
		b.sendMessage(message.Chat.ID, text(locale, msgInternalError))
		return
	}
	if !res.Applied || res.Balance == nil {
		b.sendMessage(message.Chat.ID, text(locale, msgPaymentDone, res.Payment.ID))
		return
	}
	logger.WithField("tokens", res.Payment.TokensAmount).Info("Оплата через бота проведена")
	b.sendMessage(message.Chat.ID, text(locale, msgPaymentCredited,
		common.FormatTokensDelta(res.Payment.TokensAmount, locale), common.FormatTokens(*res.Balance, locale)))
}
