package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"termpool/internal/model"
	"termpool/internal/pool"
	"termpool/pkg/audit"
	"termpool/pkg/constants"
	"termpool/pkg/logger"
)

// TaskHandler handles task operations
type TaskHandler struct {
	pool *pool.Manager
}

// NewTaskHandler creates task handler
func NewTaskHandler(p *pool.Manager) *TaskHandler {
	return &TaskHandler{pool: p}
}

// Submit queues a task
// @Summary Submit task
// @Tags tasks
// @Accept json
// @Produce json
// @Param request body model.SubmitRequest true "Task request"
// @Success 200 {object} model.SubmitResponse
// @Failure 429 {object} map[string]interface{} "queue full"
// @Router /api/v1/tasks [post]
func (h *TaskHandler) Submit(c *gin.Context) {
	var req model.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnCtx(c.Request.Context(), "invalid submit request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	task, err := h.pool.Submit(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SubmitResponse{ID: task.ID, Status: task.Status})
}

// Get returns a task with its attempt history
// @Summary Get task
// @Tags tasks
// @Produce json
// @Param task_id path string true "Task ID"
// @Success 200 {object} model.Task
// @Router /api/v1/tasks/{task_id} [get]
func (h *TaskHandler) Get(c *gin.Context) {
	task, err := h.pool.Task(c.Param("task_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// List returns tasks, optionally filtered by status
// @Summary List tasks
// @Tags tasks
// @Produce json
// @Param status query string false "QUEUED, RUNNING, ..."
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	status := constants.TaskStatus(strings.ToUpper(c.Query("status")))
	tasks := h.pool.Tasks(status)
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "total": len(tasks)})
}

// Cancel cancels a task
// @Summary Cancel task
// @Tags tasks
// @Produce json
// @Param task_id path string true "Task ID"
// @Success 200 {object} model.Task
// @Failure 409 {object} map[string]string "already finished"
// @Router /api/v1/tasks/{task_id}/cancel [post]
func (h *TaskHandler) Cancel(c *gin.Context) {
	task, err := h.pool.Cancel(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// Events returns the audit trail of one task
// @Summary Task audit events
// @Tags tasks
// @Produce json
// @Param task_id path string true "Task ID"
// @Router /api/v1/tasks/{task_id}/events [get]
func (h *TaskHandler) Events(c *gin.Context) {
	taskID := c.Param("task_id")
	if _, err := h.pool.Task(taskID); err != nil {
		respondError(c, err)
		return
	}
	events := h.pool.Audit().Events(audit.Filter{TaskID: taskID})
	c.JSON(http.StatusOK, gin.H{"events": events, "total": len(events)})
}
