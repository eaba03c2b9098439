// Package admin — handlers.go: HTTP-обработчики /api/admin.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/httpx"
)

// Handler обрабатывает запросы админки.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик админки.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register подключает маршруты к группе с уже проверенным токеном.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/stats", h.require(CapViewStats), h.HandleStats)
	rg.POST("/seed", h.require(CapSeed), h.HandleSeed)

	rg.GET("/users", h.require(CapManageUsers), h.HandleListUsers)
	rg.PUT("/users/:id", h.require(CapManageUsers), h.HandleUpdateUser)

	catalog := h.require(CapManageCatalog)
	rg.GET("/tasks", catalog, h.HandleListTasks)
	rg.POST("/tasks", catalog, h.HandleCreateTask)
	rg.PUT("/tasks/:id", catalog, h.HandleUpdateTask)
	rg.DELETE("/tasks/:id", catalog, h.HandleDeleteTask)
	rg.GET("/rewards", catalog, h.HandleListRewards)
	rg.POST("/rewards", catalog, h.HandleCreateReward)
	rg.PUT("/rewards/:id", catalog, h.HandleUpdateReward)
	rg.DELETE("/rewards/:id", catalog, h.HandleDeleteReward)

	rg.GET("/payments", h.require(CapManagePayments), h.HandleListPayments)
	rg.PUT("/payments/:id/status", h.require(CapManagePayments), h.HandleSetPaymentStatus)
}

// require сверяет текущую роль из хранилища, а не из токена:
// понижение роли действует сразу.
func (h *Handler) require(c Capability) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		role, err := h.service.Role(ctx.Request.Context(), httpx.AccountID(ctx))
		if err != nil {
			httpx.Error(ctx, err)
			return
		}
		if !Allowed(role, c) {
			log.WithFields(log.Fields{
				"account_id": httpx.AccountID(ctx),
				"role":       role,
				"capability": c,
			}).Warn("Отказано в доступе к админке")
			httpx.Error(ctx, common.ErrUnauthorized)
			return
		}
		httpx.SetIdentity(ctx, httpx.AccountID(ctx), role)
		ctx.Next()
	}
}

// HandleStats — GET /api/admin/stats
func (h *Handler) HandleStats(c *gin.Context) {
	st, err := h.service.Stats(c.Request.Context())
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// HandleSeed — POST /api/admin/seed
func (h *Handler) HandleSeed(c *gin.Context) {
	res, err := h.service.Seed(c.Request.Context())
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// HandleListUsers — GET /api/admin/users?role=&limit=
func (h *Handler) HandleListUsers(c *gin.Context) {
	limit, err := httpx.QueryInt(c, "limit", defaultUsersLimit)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	users, err := h.service.ListUsers(c.Request.Context(), c.Query("role"), limit)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// HandleUpdateUser — PUT /api/admin/users/:id
func (h *Handler) HandleUpdateUser(c *gin.Context) {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}
	var upd UserUpdate
	if err := httpx.Bind(c, &upd); err != nil {
		httpx.Error(c, err)
		return
	}
	acc, err := h.service.UpdateUser(c.Request.Context(), httpx.Role(c), id, upd)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": acc})
}

// HandleListTasks — GET /api/admin/tasks
func (h *Handler) HandleListTasks(c *gin.Context) {
	list, err := h.service.ListTasks(c.Request.Context())
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": list})
}

// HandleCreateTask — POST /api/admin/tasks
func (h *Handler) HandleCreateTask(c *gin.Context) {
	var in TaskInput
	if err := httpx.Bind(c, &in); err != nil {
		httpx.Error(c, err)
		return
	}
	t, err := h.service.CreateTask(c.Request.Context(), in)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": t})
}

// HandleUpdateTask — PUT /api/admin/tasks/:id
func (h *Handler) HandleUpdateTask(c *gin.Context) {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}
	var in TaskInput
	if err := httpx.Bind(c, &in); err != nil {
		httpx.Error(c, err)
		return
	}
	t, err := h.service.UpdateTask(c.Request.Context(), id, in)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": t})
}

// HandleDeleteTask — DELETE /api/admin/tasks/:id
func (h *Handler) HandleDeleteTask(c *gin.Context) {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}
	if err := h.service.DeleteTask(c.Request.Context(), id); err != nil {
		httpx.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleListRewards — GET /api/admin/rewards
func (h *Handler) HandleListRewards(c *gin.Context) {
	list, err := h.service.ListRewards(c.Request.Context())
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rewards": list})
}

// HandleCreateReward — POST /api/admin/rewards
func (h *Handler) HandleCreateReward(c *gin.Context) {
	var in RewardInput
	if err := httpx.Bind(c, &in); err != nil {
		httpx.Error(c, err)
		return
	}
	r, err := h.service.CreateReward(c.Request.Context(), in)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"reward": r})
}

// HandleUpdateReward — PUT /api/admin/rewards/:id
func (h *Handler) HandleUpdateReward(c *gin.Context) {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}
	var in RewardInput
	if err := httpx.Bind(c, &in); err != nil {
		httpx.Error(c, err)
		return
	}
	r, err := h.service.UpdateReward(c.Request.Context(), id, in)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reward": r})
}

// HandleDeleteReward — DELETE /api/admin/rewards/:id
func (h *Handler) HandleDeleteReward(c *gin.Context) {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}
	if err := h.service.DeleteReward(c.Request.Context(), id); err != nil {
		httpx.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleListPayments — GET /api/admin/payments?status=&limit=
func (h *Handler) HandleListPayments(c *gin.Context) {
	limit, err := httpx.QueryInt(c, "limit", defaultPaymentsLimit)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	list, err := h.service.ListPayments(c.Request.Context(), c.Query("status"), limit)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": list})
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// HandleSetPaymentStatus — PUT /api/admin/payments/:id/status {status}
func (h *Handler) HandleSetPaymentStatus(c *gin.Context) {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}
	var req statusRequest
	if err := httpx.Bind(c, &req); err != nil {
		httpx.Error(c, err)
		return
	}
	res, err := h.service.SetPaymentStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
