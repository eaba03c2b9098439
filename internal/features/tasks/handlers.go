// Package tasks — handlers.go: HTTP-обработчики заданий.
package tasks

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/httpx"
)

// Handler обрабатывает запросы /api/tasks.
type Handler struct {
	service *Service
	clock   common.Clock
}

// NewHandler создаёт обработчик заданий.
func NewHandler(service *Service, clock common.Clock) *Handler {
	if clock == nil {
		clock = common.SystemClock
	}
	return &Handler{service: service, clock: clock}
}

// Register подключает маршруты к группе с уже проверенным токеном.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("", h.HandleList)
	rg.GET("/completed", h.HandleCompleted)
	rg.POST("/:id/complete", h.HandleComplete)
}

// HandleList — GET /api/tasks
func (h *Handler) HandleList(c *gin.Context) {
	seq, err := h.service.ListAvailable(c.Request.Context(), httpx.AccountID(c), h.clock())
	if err != nil {
		httpx.Error(c, err)
		return
	}
	tasks := []AvailableTask{}
	for t := range seq {
		tasks = append(tasks, t)
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// HandleComplete — POST /api/tasks/:id/complete
func (h *Handler) HandleComplete(c *gin.Context) {
	taskID, err := httpx.ParamID(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}
	res, err := h.service.Complete(c.Request.Context(), httpx.AccountID(c), taskID, h.clock())
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleCompleted — GET /api/tasks/completed?limit=
func (h *Handler) HandleCompleted(c *gin.Context) {
	limit, err := httpx.QueryInt(c, "limit", defaultCompletedLimit)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	done, err := h.service.Completed(c.Request.Context(), httpx.AccountID(c), limit)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed_tasks": done})
}
