package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"magnet-playlets/internal/domain"
)

type createTaskRequest struct {
	TorrentID   string  `json:"torrent_id" binding:"required"`
	TorrentName string  `json:"torrent_name"`
	PlayletID   *string `json:"playlet_id"`
}

type assignTaskRequest struct {
	PlayletID *string `json:"playlet_id"`
}

func (h *Handler) listTasks(c *gin.Context) {
	tasks := h.engine.Tasks()
	resp := make([]TaskResponse, len(tasks))
	for i := range tasks {
		resp[i] = taskToResponse(tasks[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getTask(c *gin.Context) {
	task, err := h.engine.Task(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, taskToResponse(task))
}

func (h *Handler) createTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := strings.TrimSpace(req.TorrentName)
	if name == "" {
		name = h.torrentName(req.TorrentID)
	}
	task, err := h.engine.CreateTask(c.Request.Context(), req.TorrentID, name, blankToNil(req.PlayletID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, taskToResponse(task))
}

func (h *Handler) deleteTask(c *gin.Context) {
	id := c.Param("id")
	if err := h.engine.Remove(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *Handler) retryTask(c *gin.Context) {
	task, err := h.engine.Retry(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, taskToResponse(task))
}

func (h *Handler) assignTask(c *gin.Context) {
	var req assignTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.engine.Reassign(c.Request.Context(), c.Param("id"), blankToNil(req.PlayletID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, taskToResponse(task))
}

func (h *Handler) clearCompleted(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"removed": h.engine.ClearCompleted()})
}

func (h *Handler) torrentName(id string) string {
	if h.torrents == nil {
		return id
	}
	for _, t := range h.torrents.List() {
		if t.ID == id && t.Name != "" {
			return t.Name
		}
	}
	return id
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

type TaskResponse struct {
	ID          string                 `json:"id"`
	TorrentID   string                 `json:"torrent_id"`
	TorrentName string                 `json:"torrent_name"`
	PlayletID   *string                `json:"playlet_id"`
	Status      domain.TaskStatus      `json:"status"`
	Results     []ActionResultResponse `json:"results"`
	CreatedAt   string                 `json:"created_at"`
	CompletedAt *string                `json:"completed_at,omitempty"`
}

type ActionResultResponse struct {
	ActionID    string              `json:"action_id"`
	ActionType  domain.ActionType   `json:"action_type"`
	Status      domain.ActionStatus `json:"status"`
	StartedAt   *string             `json:"started_at,omitempty"`
	CompletedAt *string             `json:"completed_at,omitempty"`
	Error       *string             `json:"error,omitempty"`
	SkipReason  *string             `json:"skip_reason,omitempty"`
}

func taskToResponse(task domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:          task.ID,
		TorrentID:   task.TorrentID,
		TorrentName: task.TorrentName,
		PlayletID:   task.PlayletID,
		Status:      task.Status,
		Results:     make([]ActionResultResponse, len(task.Results)),
		CreatedAt:   task.CreatedAt.Format(time.RFC3339),
		CompletedAt: formatTime(task.CompletedAt),
	}
	for i, r := range task.Results {
		resp.Results[i] = ActionResultResponse{
			ActionID:    r.ActionID,
			ActionType:  r.ActionType,
			Status:      r.Status,
			StartedAt:   formatTime(r.StartedAt),
			CompletedAt: formatTime(r.CompletedAt),
			Error:       r.Error,
			SkipReason:  r.SkipReason,
		}
	}
	return resp
}

func formatTime(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Format(time.RFC3339)
	return &v
}
