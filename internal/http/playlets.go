package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"magnet-playlets/internal/domain"
)

func (h *Handler) listPlaylets(c *gin.Context) {
	playlets, err := h.playlets.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if playlets == nil {
		playlets = []domain.Playlet{}
	}
	c.JSON(http.StatusOK, playlets)
}

func (h *Handler) getPlaylet(c *gin.Context) {
	p, err := h.playlets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) createPlaylet(c *gin.Context) {
	var req domain.Playlet
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.playlets.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) updatePlaylet(c *gin.Context) {
	var req domain.Playlet
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.ID = c.Param("id")

	p, err := h.playlets.Update(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) deletePlaylet(c *gin.Context) {
	id := c.Param("id")
	if err := h.playlets.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *Handler) duplicatePlaylet(c *gin.Context) {
	p, err := h.playlets.Duplicate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

type enabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handler) setPlayletEnabled(c *gin.Context) {
	var req enabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.playlets.SetEnabled(c.Request.Context(), c.Param("id"), *req.Enabled)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
