// Package httpx — общие помощники HTTP-обработчиков на gin:
// личность запроса, разбор параметров и единый формат ошибок.
package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/ledger"
)

// Ключи gin.Context
const (
	KeyAccountID = "account_id"
	KeyRole      = "role"
	KeyRequestID = "request_id"
)

// SetIdentity сохраняет личность, извлечённую из токена.
func SetIdentity(c *gin.Context, accountID int64, role ledger.Role) {
	c.Set(KeyAccountID, accountID)
	c.Set(KeyRole, role)
}

// AccountID возвращает ID пользователя запроса (0, если не аутентифицирован).
func AccountID(c *gin.Context) int64 {
	return c.GetInt64(KeyAccountID)
}

// Role возвращает роль пользователя запроса.
func Role(c *gin.Context) ledger.Role {
	if v, ok := c.Get(KeyRole); ok {
		if r, ok := v.(ledger.Role); ok {
			return r
		}
	}
	return ledger.RoleUser
}

// Status сопоставляет ошибку домена HTTP-статусу.
func Status(err error) int {
	switch common.KindOf(err) {
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindUnauthorized:
		return http.StatusForbidden
	case common.KindAuthenticationFailed:
		return http.StatusUnauthorized
	case common.KindInvalidInput, common.KindInvalidPaymentStatus:
		return http.StatusBadRequest
	case common.KindDailyLimitExceeded:
		return http.StatusTooManyRequests
	case common.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case common.KindInternal:
		return http.StatusInternalServerError
	}
	// Остальные — нарушения бизнес-правил
	return http.StatusConflict
}

// Error отвечает клиенту стабильным кодом ошибки и деталями.
func Error(c *gin.Context, err error) {
	status := Status(err)
	kind := common.KindOf(err)
	body := gin.H{"error": string(kind), "message": err.Error()}

	var limitErr *common.DailyLimitError
	var reqErr *common.RequirementsNotMetError
	var fundsErr *common.InsufficientTokensError
	switch {
	case errors.As(err, &limitErr):
		body["max_plays"] = limitErr.Cap
		body["plays_today"] = limitErr.Current
	case errors.As(err, &reqErr):
		body["required"] = reqErr.Required
		body["current"] = reqErr.Current
	case errors.As(err, &fundsErr):
		body["required"] = fundsErr.Required
		body["balance"] = fundsErr.Balance
	}

	if status >= http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"request_id": c.GetString(KeyRequestID),
			"path":       c.FullPath(),
			"kind":       kind,
		}).WithError(err).Error("Ошибка обработки запроса")
		if kind == common.KindInternal {
			body["message"] = "внутренняя ошибка"
		}
	}
	c.AbortWithStatusJSON(status, body)
}

// Bind разбирает JSON-тело; ошибка разбора — ErrInvalidInput.
func Bind(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return common.InvalidInput("некорректное тело запроса: %v", err)
	}
	return nil
}

// ParamID читает числовой параметр пути.
func ParamID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.InvalidInput("некорректный %s", name)
	}
	return id, nil
}

// QueryInt читает необязательный числовой параметр запроса.
func QueryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, common.InvalidInput("некорректный параметр %s", name)
	}
	return v, nil
}
