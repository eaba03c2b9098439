package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"serotonyl.ru/flip-bot/internal/auth"
	"serotonyl.ru/flip-bot/internal/features/accounts"
	"serotonyl.ru/flip-bot/internal/features/admin"
	"serotonyl.ru/flip-bot/internal/features/games"
	"serotonyl.ru/flip-bot/internal/features/payments"
	"serotonyl.ru/flip-bot/internal/features/rewards"
	"serotonyl.ru/flip-bot/internal/features/tasks"
	"serotonyl.ru/flip-bot/internal/ratelimit"
)

// Handlers — обработчики всех разделов API.
type Handlers struct {
	Accounts *accounts.Handler
	Games    *games.Handler
	Tasks    *tasks.Handler
	Rewards  *rewards.Handler
	Payments *payments.Handler
	Admin    *admin.Handler
}

// Options — параметры сборки роутера.
type Options struct {
	Issuer      *auth.Issuer
	Limiter     *ratelimit.Limiter
	CORSOrigins string
	// Health проверяет хранилище для /health. nil — всегда ok.
	Health func(ctx context.Context) error
}

// NewRouter собирает gin.Engine со всеми маршрутами.
//
//	/health                    без токена
//	/api/auth/login            без токена
//	/api/payments/webhook      без токена, подпись проверяется
//	/api/...                   Bearer-токен + лимит запросов
func NewRouter(h Handlers, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Recovery(), AccessLog(), CORS(opts.CORSOrigins))

	r.GET("/health", health(opts.Health))

	root := r.Group("/api")
	public := root.Group("")
	if opts.Limiter != nil {
		public.Use(RateLimit(opts.Limiter))
	}
	h.Accounts.RegisterPublic(public.Group("/auth"))
	h.Payments.RegisterWebhook(public.Group("/payments"))

	private := root.Group("", auth.Required(opts.Issuer))
	if opts.Limiter != nil {
		private.Use(RateLimit(opts.Limiter))
	}
	h.Accounts.Register(private.Group("/auth"))
	h.Games.Register(private.Group("/games"))
	h.Tasks.Register(private.Group("/tasks"))
	h.Rewards.Register(private.Group("/rewards"))
	h.Payments.Register(private.Group("/payments"))
	h.Admin.Register(private.Group("/admin"))

	return r
}

func health(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
