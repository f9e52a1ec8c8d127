package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"termpool/internal/pool"
)

// TerminalHandler exposes the terminal registry
type TerminalHandler struct {
	pool *pool.Manager
}

// NewTerminalHandler creates terminal handler
func NewTerminalHandler(p *pool.Manager) *TerminalHandler {
	return &TerminalHandler{pool: p}
}

// List returns active terminals; ?retired=true appends retired ones
// @Summary List terminals
// @Tags terminals
// @Produce json
// @Router /api/v1/terminals [get]
func (h *TerminalHandler) List(c *gin.Context) {
	terminals := h.pool.Terminals()
	if c.Query("retired") == "true" {
		terminals = append(terminals, h.pool.RetiredTerminals()...)
	}
	c.JSON(http.StatusOK, gin.H{"terminals": terminals, "total": len(terminals)})
}

// Get returns one terminal, active or retired
// @Summary Get terminal
// @Tags terminals
// @Produce json
// @Param id path string true "Terminal ID"
// @Router /api/v1/terminals/{id} [get]
func (h *TerminalHandler) Get(c *gin.Context) {
	t, err := h.pool.Terminal(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Repair runs the repair ladder on a terminal now
// @Summary Repair terminal
// @Tags terminals
// @Produce json
// @Param id path string true "Terminal ID"
// @Failure 409 {object} map[string]string "terminal busy"
// @Router /api/v1/terminals/{id}/repair [post]
func (h *TerminalHandler) Repair(c *gin.Context) {
	t, err := h.pool.RepairTerminal(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
