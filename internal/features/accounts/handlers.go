// Package accounts — handlers.go: HTTP-обработчики /api/auth.
package accounts

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"serotonyl.ru/flip-bot/internal/auth"
	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/httpx"
)

// LoginVerifier проверяет подписанные данные входа Telegram.
type LoginVerifier interface {
	VerifyLogin(fields map[string]string) (*auth.LoginData, error)
}

// Handler обрабатывает запросы /api/auth.
type Handler struct {
	service  *Service
	verifier LoginVerifier
}

// NewHandler создаёт обработчик входа и профиля.
func NewHandler(service *Service, verifier LoginVerifier) *Handler {
	return &Handler{service: service, verifier: verifier}
}

// RegisterPublic подключает вход (без токена).
func (h *Handler) RegisterPublic(rg *gin.RouterGroup) {
	rg.POST("/login", h.HandleLogin)
}

// Register подключает маршруты к группе с уже проверенным токеном.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/profile", h.HandleProfile)
	rg.PATCH("/profile", h.HandleUpdateProfile)
	rg.POST("/referral", h.HandleReferral)
}

// HandleLogin — POST /api/auth/login с данными входа Telegram
func (h *Handler) HandleLogin(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 16<<10))
	if err != nil {
		httpx.Error(c, common.InvalidInput("не удалось прочитать тело"))
		return
	}
	fields, err := auth.DecodeFields(body)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	data, err := h.verifier.VerifyLogin(fields)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	res, err := h.service.Login(c.Request.Context(), data)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleProfile — GET /api/auth/profile
func (h *Handler) HandleProfile(c *gin.Context) {
	p, err := h.service.Profile(c.Request.Context(), httpx.AccountID(c))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": p})
}

// HandleUpdateProfile — PATCH /api/auth/profile
func (h *Handler) HandleUpdateProfile(c *gin.Context) {
	var upd ProfileUpdate
	if err := httpx.Bind(c, &upd); err != nil {
		httpx.Error(c, err)
		return
	}
	p, err := h.service.UpdateProfile(c.Request.Context(), httpx.AccountID(c), upd)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": p})
}

type referralRequest struct {
	Code string `json:"referral_code" binding:"required"`
}

// HandleReferral — POST /api/auth/referral {referral_code}
func (h *Handler) HandleReferral(c *gin.Context) {
	var req referralRequest
	if err := httpx.Bind(c, &req); err != nil {
		httpx.Error(c, err)
		return
	}
	res, err := h.service.Referral(c.Request.Context(), httpx.AccountID(c), req.Code)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Locale — язык пользователя запроса для каталогов.
func (h *Handler) Locale(c *gin.Context) string {
	return h.service.Locale(c.Request.Context(), httpx.AccountID(c))
}
