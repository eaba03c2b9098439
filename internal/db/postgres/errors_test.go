package postgres

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"serotonyl.ru/flip-bot/internal/common"
)

func TestWrap_NoRowsBecomesNotFound(t *testing.T) {
	err := wrap(pgx.ErrNoRows, "получения платежа", common.ErrPaymentNotFound)
	assert.ErrorIs(t, err, common.ErrPaymentNotFound)
	assert.ErrorIs(t, err, common.ErrNotFound)

	// без notFound ошибка просто оборачивается
	err = wrap(pgx.ErrNoRows, "подсчёта", nil)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
	assert.NotErrorIs(t, err, common.ErrNotFound)

	assert.NoError(t, wrap(nil, "чего угодно", common.ErrNotFound))
}

func TestWrap_UnavailableClassification(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"admin shutdown", &pgconn.PgError{Code: codeAdminShutdown}, true},
		{"cannot connect now", &pgconn.PgError{Code: codeCannotConnectNow}, true},
		{"too many connections", &pgconn.PgError{Code: codeTooManyConnections}, true},
		{"serialization failure", &pgconn.PgError{Code: codeSerializationFailure}, true},
		{"deadlock", &pgconn.PgError{Code: codeDeadlockDetected}, true},
		{"connection class 08", &pgconn.PgError{Code: "08006"}, true},
		{"unexpected eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), true},
		{"unique violation", &pgconn.PgError{Code: codeUniqueViolation}, false},
		{"syntax error", &pgconn.PgError{Code: "42601"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := wrap(tc.err, "запроса", nil)
			assert.Equal(t, tc.unavailable, errors.Is(err, common.ErrStoreUnavailable))
			assert.Equal(t, tc.unavailable, common.KindOf(err) == common.KindStoreUnavailable)
		})
	}
}

func TestConstraintViolations(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: codeUniqueViolation})
	check := &pgconn.PgError{Code: codeCheckViolation}

	assert.True(t, isUniqueViolation(unique))
	assert.False(t, isUniqueViolation(check))
	assert.True(t, isCheckViolation(check))
	assert.False(t, isCheckViolation(unique))
	assert.False(t, isUniqueViolation(nil))
}
