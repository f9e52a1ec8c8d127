package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"termpool/internal/model"
	"termpool/pkg/audit"
	"termpool/pkg/logger"
)

const (
	streamBuffer    = 256
	streamWriteWait = 10 * time.Second
	streamPingEvery = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // operator tooling connects from anywhere the API key is valid
	},
}

// EventHandler audit log queries and the live stream
type EventHandler struct {
	log *audit.Log
}

// NewEventHandler creates event handler
func NewEventHandler(log *audit.Log) *EventHandler {
	return &EventHandler{log: log}
}

// filterFromQuery reads task_id, terminal_id, type (comma separated), since (RFC3339) and limit
func filterFromQuery(c *gin.Context) (audit.Filter, error) {
	f := audit.Filter{
		TaskID:     c.Query("task_id"),
		TerminalID: c.Query("terminal_id"),
	}
	if types := c.Query("type"); types != "" {
		for _, t := range strings.Split(types, ",") {
			f.Types = append(f.Types, model.EventType(strings.TrimSpace(t)))
		}
	}
	if since := c.Query("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return f, err
		}
		f.Since = ts
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return f, err
		}
		f.Limit = n
	}
	return f, nil
}

// List returns retained audit events
// @Summary Query audit events
// @Tags events
// @Produce json
// @Param task_id query string false "Task ID"
// @Param terminal_id query string false "Terminal ID"
// @Param type query string false "comma separated event types"
// @Param limit query int false "most recent N"
// @Router /api/v1/events [get]
func (h *EventHandler) List(c *gin.Context) {
	f, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter: " + err.Error()})
		return
	}
	events := h.log.Events(f)
	c.JSON(http.StatusOK, gin.H{"events": events, "total": len(events)})
}

// Stream pushes audit events over a websocket as they are recorded. The same
// query filters as List apply; limit and since are ignored.
// @Summary Live audit stream
// @Tags events
// @Router /api/v1/events/stream [get]
func (h *EventHandler) Stream(c *gin.Context) {
	f, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter: " + err.Error()})
		return
	}
	f.Limit = 0
	f.Since = time.Time{}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to upgrade to websocket: %v", err)
		return
	}
	defer ws.Close()

	events, cancel := h.log.Subscribe(streamBuffer)
	defer cancel()

	// reader detects the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingEvery)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			if !f.Match(&e) {
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := ws.WriteJSON(e); err != nil {
				logger.DebugCtx(c.Request.Context(), "event stream closed: %v", err)
				return
			}
		}
	}
}
