package bot

import (
	"fmt"

	"serotonyl.ru/flip-bot/internal/ledger"
)

// Ключи сообщений бота
const (
	msgWelcomeNew      = "welcome_new"
	msgWelcomeBack     = "welcome_back"
	msgOpenApp         = "open_app"
	msgHelp            = "help"
	msgBalance         = "balance"
	msgNotRegistered   = "not_registered"
	msgLimitsHeader    = "limits_header"
	msgLimitLine       = "limit_line"
	msgPaymentNotFound = "payment_not_found"
	msgPaymentPending  = "payment_pending"
	msgPaymentDone     = "payment_done"
	msgPaymentClosed   = "payment_closed"
	msgPaymentCredited = "payment_credited"
	msgPaymentRejected = "payment_rejected"
	msgInvoiceTitle    = "invoice_title"
	msgInvoiceLabel    = "invoice_label"
	msgInternalError   = "internal_error"
)

var texts = map[string]ledger.LocalizedText{
	msgWelcomeNew: {
		EN: "Welcome to Flip Coin! You get %s to start. Play, complete tasks and exchange tokens for rewards.",
		RU: "Добро пожаловать во Flip Coin! На старт у вас %s. Играйте, выполняйте задания и меняйте токены на награды.",
	},
	msgWelcomeBack: {
		EN: "Welcome back! Your balance: %s.",
		RU: "С возвращением! Ваш баланс: %s.",
	},
	msgOpenApp: {EN: "Open Flip Coin", RU: "Открыть Flip Coin"},
	msgHelp: {
		EN: "Commands:\n/start - open the app\n/balance - your token balance\n/limits - games left today",
		RU: "Команды:\n/start - открыть приложение\n/balance - баланс токенов\n/limits - сколько игр осталось сегодня",
	},
	msgBalance:       {EN: "Your balance: %s.", RU: "Ваш баланс: %s."},
	msgNotRegistered: {EN: "You are not registered yet. Send /start.", RU: "Вы ещё не зарегистрированы. Отправьте /start."},
	msgLimitsHeader:  {EN: "Games today:", RU: "Игры сегодня:"},
	msgLimitLine:     {EN: "%s: %d/%d", RU: "%s: %d/%d"},
	msgPaymentNotFound: {
		EN: "Payment not found.",
		RU: "Платёж не найден.",
	},
	msgPaymentPending: {
		EN: "Payment #%d: %s for %s %s. Waiting for confirmation from the payment provider.",
		RU: "Платёж #%d: %s за %s %s. Ожидаем подтверждения от платёжного провайдера.",
	},
	msgPaymentDone: {
		EN: "Payment #%d is already completed.",
		RU: "Платёж #%d уже выполнен.",
	},
	msgPaymentClosed: {
		EN: "Payment #%d is %s.",
		RU: "Платёж #%d: статус %s.",
	},
	msgPaymentCredited: {
		EN: "Payment received! %s. Balance: %s.",
		RU: "Оплата получена! %s. Баланс: %s.",
	},
	msgPaymentRejected: {
		EN: "This payment can no longer be paid.",
		RU: "Этот платёж больше нельзя оплатить.",
	},
	msgInvoiceTitle:  {EN: "%d FLIP tokens", RU: "%d FLIP-токенов"},
	msgInvoiceLabel:  {EN: "FLIP tokens", RU: "FLIP-токены"},
	msgInternalError: {EN: "Something went wrong, try again later.", RU: "Что-то пошло не так, попробуйте позже."},
}

// text возвращает сообщение на языке пользователя.
func text(locale, key string, args ...any) string {
	t, ok := texts[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return t.For(locale)
	}
	return fmt.Sprintf(t.For(locale), args...)
}
