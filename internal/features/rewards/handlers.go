// Package rewards — handlers.go: HTTP-обработчики наград.
package rewards

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"serotonyl.ru/flip-bot/internal/httpx"
)

// Handler обрабатывает запросы /api/rewards.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик наград.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register подключает маршруты к группе с уже проверенным токеном.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("", h.HandleList)
	rg.GET("/history", h.HandleHistory)
	rg.POST("/:id/redeem", h.HandleRedeem)
}

// HandleList — GET /api/rewards
func (h *Handler) HandleList(c *gin.Context) {
	catalog, err := h.service.List(c.Request.Context(), httpx.AccountID(c))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, catalog)
}

// HandleRedeem — POST /api/rewards/:id/redeem
func (h *Handler) HandleRedeem(c *gin.Context) {
	rewardID, err := httpx.ParamID(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}
	res, err := h.service.Redeem(c.Request.Context(), httpx.AccountID(c), rewardID)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleHistory — GET /api/rewards/history?limit=
func (h *Handler) HandleHistory(c *gin.Context) {
	limit, err := httpx.QueryInt(c, "limit", defaultHistoryLimit)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	items, err := h.service.History(c.Request.Context(), httpx.AccountID(c), limit)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redeemed_rewards": items})
}
