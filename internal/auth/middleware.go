package auth

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/httpx"
)

// Required пропускает только запросы с действительным Bearer-токеном
// и кладёт личность пользователя в контекст gin.
func Required(issuer *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			httpx.Error(c, fmt.Errorf("%w: нет токена доступа", common.ErrAuthenticationFailed))
			return
		}

		claims, err := issuer.Parse(strings.TrimSpace(raw))
		if err != nil {
			httpx.Error(c, err)
			return
		}

		httpx.SetIdentity(c, claims.AccountID, claims.Role)
		c.Next()
	}
}
