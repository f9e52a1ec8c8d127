package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"termpool/internal/pool"
)

// PoolHandler pool-wide metrics and sizing
type PoolHandler struct {
	pool *pool.Manager
}

// NewPoolHandler creates pool handler
func NewPoolHandler(p *pool.Manager) *PoolHandler {
	return &PoolHandler{pool: p}
}

// ResizeRequest operator resize; size 0 recomputes from host resources
type ResizeRequest struct {
	Size int `json:"size"`
}

// Metrics returns pool metrics derived on demand
// @Summary Pool metrics
// @Tags pool
// @Produce json
// @Success 200 {object} model.PoolMetrics
// @Router /api/v1/metrics [get]
func (h *PoolHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.pool.Metrics())
}

// Resize changes the target terminal count
// @Summary Resize pool
// @Tags pool
// @Accept json
// @Produce json
// @Param request body ResizeRequest false "target size"
// @Router /api/v1/pool/resize [post]
func (h *PoolHandler) Resize(c *gin.Context) {
	var req ResizeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
	}
	if req.Size < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "size must not be negative"})
		return
	}

	from := h.pool.TargetSize()
	size, err := h.pool.Resize(c.Request.Context(), req.Size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": size, "terminals": len(h.pool.Terminals())})
}
