package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"magnet-playlets/internal/domain"
	"magnet-playlets/internal/downloader"
	"magnet-playlets/internal/engine"
	"magnet-playlets/internal/events"
	"magnet-playlets/internal/service"
	"magnet-playlets/internal/storage"
)

// TaskEngine is the part of the playlet engine driven by the API.
type TaskEngine interface {
	CreateTask(ctx context.Context, torrentID, torrentName string, playletID *string) (domain.Task, error)
	Retry(id string) (domain.Task, error)
	Reassign(ctx context.Context, id string, playletID *string) (domain.Task, error)
	Remove(id string) error
	ClearCompleted() int
	Tasks() []domain.Task
	Task(id string) (domain.Task, error)
	ApplySettings(s domain.Settings)
	Settings() domain.Settings
	Subscribe(fn events.Subscriber, types ...events.Type) func()
}

// Torrents is the part of the torrent manager exposed over HTTP.
type Torrents interface {
	AddMagnet(ctx context.Context, uri string) (domain.TorrentSummary, error)
	List() []domain.TorrentSummary
	ListFiles(ctx context.Context, torrentID string) ([]domain.FileInfo, error)
	OpenFile(torrentID string, index int) (io.ReadSeekCloser, domain.FileInfo, error)
}

// Devices is the cast device registry fed by the discovery agent.
type Devices interface {
	List() []domain.Device
	Replace(devices []domain.Device) error
}

// Options wires the handler. Storage and Metrics may be nil.
type Options struct {
	Engine   TaskEngine
	Playlets service.PlayletService
	Torrents Torrents
	Storage  storage.Service
	Devices  Devices
	Auth     service.AuthService
	Metrics  http.Handler
	Logger   *logrus.Logger
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	engine    TaskEngine
	playlets  service.PlayletService
	torrents  Torrents
	storage   storage.Service
	devices   Devices
	auth      service.AuthService
	metrics   http.Handler
	logger    *logrus.Logger
	heartbeat time.Duration
}

func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		engine:    opts.Engine,
		playlets:  opts.Playlets,
		torrents:  opts.Torrents,
		storage:   opts.Storage,
		devices:   opts.Devices,
		auth:      opts.Auth,
		metrics:   opts.Metrics,
		logger:    logger,
		heartbeat: 15 * time.Second,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.GET("/health", h.health)
		api.POST("/auth/login", h.login)
	}

	secured := api.Group("", authMiddleware(h.auth))
	{
		secured.GET("/playlets", h.listPlaylets)
		secured.POST("/playlets", h.createPlaylet)
		secured.GET("/playlets/:id", h.getPlaylet)
		secured.PUT("/playlets/:id", h.updatePlaylet)
		secured.DELETE("/playlets/:id", h.deletePlaylet)
		secured.POST("/playlets/:id/duplicate", h.duplicatePlaylet)
		secured.PUT("/playlets/:id/enabled", h.setPlayletEnabled)

		secured.GET("/tasks", h.listTasks)
		secured.POST("/tasks", h.createTask)
		secured.DELETE("/tasks/completed", h.clearCompleted)
		secured.GET("/tasks/:id", h.getTask)
		secured.DELETE("/tasks/:id", h.deleteTask)
		secured.POST("/tasks/:id/retry", h.retryTask)
		secured.PUT("/tasks/:id/assign", h.assignTask)

		secured.GET("/torrents", h.listTorrents)
		secured.POST("/torrents", h.addTorrent)
		secured.GET("/torrents/:id/files", h.listTorrentFiles)

		secured.GET("/storage/objects", h.listObjects)
		secured.DELETE("/storage/objects", h.deleteObjects)
		secured.GET("/storage/uploads", h.listUploads)

		secured.GET("/settings", h.getSettings)
		secured.PUT("/settings", h.updateSettings)
		secured.GET("/devices", h.listDevices)
		secured.PUT("/devices", h.replaceDevices)

		secured.GET("/events", h.streamEvents)
	}

	// Media players and cast devices fetch these without credentials.
	media := router.Group("/torrent")
	{
		media.GET("/:id/playlist.m3u8", h.playlist)
		media.GET("/:id/stream/:index", h.stream)
	}

	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, Range")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, Content-Range, Accept-Ranges")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":            "ok",
		"auth_required": h.auth != nil && h.auth.Enabled(),
	})
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	if h.auth == nil || !h.auth.Enabled() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authentication is disabled"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, expires, err := h.auth.Login(req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expires.UTC().Format(time.RFC3339),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrTaskNotFound),
		errors.Is(err, engine.ErrPlayletNotFound),
		errors.Is(err, downloader.ErrTorrentNotFound),
		errors.Is(err, downloader.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrTaskNotWaiting),
		errors.Is(err, engine.ErrTaskExecuting),
		errors.Is(err, engine.ErrTaskUnassigned),
		errors.Is(err, downloader.ErrNoMetadata):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidPlaylet):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
