// Package payments — handlers.go: HTTP-обработчики платежей.
package payments

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"serotonyl.ru/flip-bot/internal/auth"
	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/httpx"
	"serotonyl.ru/flip-bot/internal/ledger"
)

// LocaleFunc возвращает язык пользователя запроса.
type LocaleFunc func(c *gin.Context) string

// Handler обрабатывает запросы /api/payments.
type Handler struct {
	service *Service
	webhook *Webhook
	locale  LocaleFunc
}

// NewHandler создаёт обработчик платежей.
func NewHandler(service *Service, webhook *Webhook, locale LocaleFunc) *Handler {
	if locale == nil {
		locale = func(*gin.Context) string { return ledger.LocaleEN }
	}
	return &Handler{service: service, webhook: webhook, locale: locale}
}

// Register подключает маршруты пользователя к группе с уже проверенным токеном.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/packages", h.HandlePackages)
	rg.POST("/create", h.HandleCreate)
	rg.GET("/history", h.HandleHistory)
}

// RegisterWebhook подключает вебхук провайдера. Токен доступа не нужен:
// подлинность проверяется по подписи.
func (h *Handler) RegisterWebhook(rg *gin.RouterGroup) {
	rg.POST("/webhook", h.HandleWebhook)
}

// HandlePackages — GET /api/payments/packages
func (h *Handler) HandlePackages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"packages": h.service.Packages(h.locale(c))})
}

type createRequest struct {
	PackageID string `json:"package_id" binding:"required"`
}

// HandleCreate — POST /api/payments/create {package_id}
func (h *Handler) HandleCreate(c *gin.Context) {
	var req createRequest
	if err := httpx.Bind(c, &req); err != nil {
		httpx.Error(c, err)
		return
	}
	res, err := h.service.Create(c.Request.Context(), httpx.AccountID(c), req.PackageID)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// HandleHistory — GET /api/payments/history?limit=
func (h *Handler) HandleHistory(c *gin.Context) {
	limit, err := httpx.QueryInt(c, "limit", defaultHistoryLimit)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	list, err := h.service.History(c.Request.Context(), httpx.AccountID(c), limit)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": list})
}

// HandleWebhook — POST /api/payments/webhook
func (h *Handler) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		httpx.Error(c, common.InvalidInput("не удалось прочитать тело"))
		return
	}
	fields, err := auth.DecodeFields(body)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	res, err := h.webhook.Handle(c.Request.Context(), fields)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "applied": res.Applied, "status": res.Payment.Status})
}
