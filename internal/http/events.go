package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"magnet-playlets/internal/events"
)

type EventResponse struct {
	Type      events.Type  `json:"type"`
	Timestamp string       `json:"timestamp"`
	Task      TaskResponse `json:"task"`
}

// streamEvents pushes task changes as server-sent events until the client
// goes away. Events are dropped for clients that cannot keep up.
func (h *Handler) streamEvents(c *gin.Context) {
	ch := make(chan events.Event, 64)
	unsubscribe := h.engine.Subscribe(func(ev events.Event) {
		select {
		case ch <- ev:
		default:
		}
	})
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			c.SSEvent(string(ev.Type), EventResponse{
				Type:      ev.Type,
				Timestamp: ev.Timestamp.Format(time.RFC3339Nano),
				Task:      taskToResponse(ev.Task),
			})
		case now := <-heartbeat.C:
			c.SSEvent("ping", gin.H{"time": now.UTC().Format(time.RFC3339)})
		}
		c.Writer.Flush()
	}
}
