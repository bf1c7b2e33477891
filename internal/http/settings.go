package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"magnet-playlets/internal/domain"
)

func (h *Handler) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Settings())
}

// updateSettings replaces the whole snapshot. A raised concurrency limit
// starts queued tasks immediately.
func (h *Handler) updateSettings(c *gin.Context) {
	var req domain.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.MaxConcurrentTasks < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_concurrent_tasks must not be negative"})
		return
	}

	h.engine.ApplySettings(req)
	h.logger.WithField("max_concurrent_tasks", req.MaxConcurrentTasks).Info("Settings updated")
	c.JSON(http.StatusOK, h.engine.Settings())
}

func (h *Handler) listDevices(c *gin.Context) {
	c.JSON(http.StatusOK, h.devices.List())
}

func (h *Handler) replaceDevices(c *gin.Context) {
	var req []domain.Device
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.devices.Replace(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.devices.List())
}
