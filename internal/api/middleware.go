// Package api собирает HTTP-сервер мини-приложения на gin:
// промежуточные обработчики и таблицу маршрутов.
package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/flip-bot/internal/httpx"
	"serotonyl.ru/flip-bot/internal/ratelimit"
)

const headerRequestID = "X-Request-ID"

// RequestID берёт X-Request-ID клиента или выдаёт новый UUID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(httpx.KeyRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// AccessLog пишет строку лога на каждый запрос.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"request_id": c.GetString(httpx.KeyRequestID),
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
			"account_id": httpx.AccountID(c),
		})
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Warn("HTTP-запрос")
		default:
			entry.Debug("HTTP-запрос")
		}
	}
}

// Recovery перехватывает панику в обработчике и отвечает 500.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(log.Fields{
					"component":  "panic_recovery",
					"request_id": c.GetString(httpx.KeyRequestID),
					"panic":      fmt.Sprintf("%v", r),
					"stack":      string(debug.Stack()),
				}).Error("ПАНИКА в обработчике — восстановлено")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   "internal",
					"message": "внутренняя ошибка",
				})
			}
		}()
		c.Next()
	}
}

// CORS разрешает запросы мини-приложения. origins — список через запятую или "*".
func CORS(origins string) gin.HandlerFunc {
	allowAll := strings.TrimSpace(origins) == "*"
	allowed := make(map[string]bool)
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			if allowAll {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, "+headerRequestID)
			c.Header("Access-Control-Max-Age", "600")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RateLimit ограничивает частоту запросов: по пользователю, если он
// аутентифицирован, иначе по IP.
func RateLimit(l *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if id := httpx.AccountID(c); id != 0 {
			key = "acc:" + strconv.FormatInt(id, 10)
		}
		ok, wait := l.Allow(key)
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "слишком много запросов",
			})
			return
		}
		c.Next()
	}
}
