// Package games — handlers.go: HTTP-обработчики игр.
package games

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/httpx"
	"serotonyl.ru/flip-bot/internal/ledger"
)

// Handler обрабатывает запросы /api/games.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик игр.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register подключает маршруты к группе с уже проверенным токеном.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/flip-coin", h.play(ledger.GameCoin))
	rg.POST("/magic-ball", h.play(ledger.GameBall))
	rg.POST("/tarot-card", h.play(ledger.GameTarot))
	rg.GET("/history", h.HandleHistory)
	rg.GET("/limits", h.HandleLimits)
}

func (h *Handler) play(kind ledger.GameKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params Params
		// Пустое тело допустимо: монете и таро параметры не нужны
		if err := c.ShouldBindJSON(&params); err != nil && !errors.Is(err, io.EOF) {
			httpx.Error(c, common.InvalidInput("некорректное тело запроса: %v", err))
			return
		}

		res, err := h.service.Play(c.Request.Context(), httpx.AccountID(c), kind, params)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// HandleHistory — GET /api/games/history?game_type=&limit=
func (h *Handler) HandleHistory(c *gin.Context) {
	var kind *ledger.GameKind
	if raw := c.Query("game_type"); raw != "" {
		k, err := ledger.ParseGameKind(raw)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		kind = &k
	}
	limit, err := httpx.QueryInt(c, "limit", defaultHistoryLimit)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	plays, err := h.service.History(c.Request.Context(), httpx.AccountID(c), kind, limit)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	history := make([]gin.H, 0, len(plays))
	for _, p := range plays {
		history = append(history, gin.H{
			"id":            p.ID,
			"game_type":     p.Kind.APIName(),
			"result":        p.Result,
			"tokens_earned": p.TokensEarned,
			"played_at":     p.PlayedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// HandleLimits — GET /api/games/limits
func (h *Handler) HandleLimits(c *gin.Context) {
	limits, err := h.service.Limits(c.Request.Context(), httpx.AccountID(c))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	out := make(gin.H, len(limits))
	for _, l := range limits {
		out[l.Kind.APIName()] = l
	}
	c.JSON(http.StatusOK, gin.H{"limits": out})
}
