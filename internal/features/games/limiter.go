// Package games — limiter.go ограничивает число игр за UTC-сутки.
//
// Счётчик хранится в ledger под ключом (пользователь, игра, дата), поэтому
// сброс в полночь не нужен: новая дата — новая строка. Проверка и увеличение
// выполняются внутри атомарного блока вызывающей стороны под блокировкой
// строки счётчика.
package games

import (
	"context"
	"fmt"
	"time"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/ledger"
)

// Limiter проверяет и резервирует дневные попытки.
type Limiter struct {
	caps map[ledger.GameKind]int
}

// NewLimiter создаёт ограничитель с заданными лимитами.
// nil — стандартные лимиты DailyCaps.
func NewLimiter(caps map[ledger.GameKind]int) *Limiter {
	if caps == nil {
		caps = DailyCaps
	}
	return &Limiter{caps: caps}
}

// Cap возвращает дневной лимит для игры.
func (l *Limiter) Cap(kind ledger.GameKind) int {
	return l.caps[kind]
}

// CheckAndReserve резервирует одну попытку на дату today.
// Если лимит исчерпан — *common.DailyLimitError, счётчик не меняется.
// Иначе счётчик увеличивается, возвращается новое значение.
func (l *Limiter) CheckAndReserve(ctx context.Context, tx ledger.Tx, accountID int64, kind ledger.GameKind, today time.Time) (int, error) {
	limit, ok := l.caps[kind]
	if !ok {
		return 0, common.InvalidInput("неизвестный вид игры %q", kind)
	}

	counter, err := tx.LockDailyCounter(ctx, accountID, kind, today)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения счётчика: %w", err)
	}
	if counter.Count >= limit {
		return counter.Count, &common.DailyLimitError{Cap: limit, Current: counter.Count}
	}

	next := counter.Count + 1
	if err := tx.SetDailyCount(ctx, accountID, kind, counter.Date, next); err != nil {
		return 0, fmt.Errorf("ошибка обновления счётчика: %w", err)
	}
	return next, nil
}
