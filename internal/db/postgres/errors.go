// Package postgres — errors.go переводит ошибки драйвера в ошибки домена.
package postgres

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"serotonyl.ru/flip-bot/internal/common"
)

// Коды SQLSTATE, которые важны для экономики
const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeAdminShutdown        = "57P01"
	codeCannotConnectNow     = "57P03"
	codeTooManyConnections   = "53300"
)

// isUnavailable сообщает, что ошибка вызвана недоступностью базы
// и операцию можно безопасно повторить.
func isUnavailable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeAdminShutdown, codeCannotConnectNow, codeTooManyConnections,
			codeSerializationFailure, codeDeadlockDetected:
			return true
		}
		// Класс 08 — ошибки соединения
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == "08"
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.Timeout(err) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// isUniqueViolation сообщает о нарушении уникального ключа.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// isCheckViolation сообщает о нарушении CHECK-ограничения.
func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeCheckViolation
}

// wrap оборачивает ошибку драйвера контекстом.
// pgx.ErrNoRows превращается в notFound, обрывы связи — в ErrStoreUnavailable.
func wrap(err error, what string, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) && notFound != nil {
		return notFound
	}
	if isUnavailable(err) {
		return fmt.Errorf("ошибка %s: %w: %v", what, common.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("ошибка %s: %w", what, err)
}
