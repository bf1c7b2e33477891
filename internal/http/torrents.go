package http

import (
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"magnet-playlets/internal/domain"
	"magnet-playlets/internal/executor"
	"magnet-playlets/internal/storage"
)

type addTorrentRequest struct {
	Magnet string `json:"magnet" binding:"required"`
}

func (h *Handler) addTorrent(c *gin.Context) {
	var req addTorrentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !strings.HasPrefix(strings.TrimSpace(req.Magnet), "magnet:") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid magnet URI"})
		return
	}

	summary, err := h.torrents.AddMagnet(c.Request.Context(), strings.TrimSpace(req.Magnet))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, torrentToResponse(summary))
}

func (h *Handler) listTorrents(c *gin.Context) {
	torrents := h.torrents.List()
	resp := make([]TorrentResponse, len(torrents))
	for i := range torrents {
		resp[i] = torrentToResponse(torrents[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) listTorrentFiles(c *gin.Context) {
	id := c.Param("id")
	files, err := h.torrents.ListFiles(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	base := h.mediaBase(c)
	resp := make([]TorrentFileResponse, len(files))
	for i, f := range files {
		resp[i] = TorrentFileResponse{
			Index:      f.Index,
			Name:       f.Name,
			Path:       f.Path,
			Length:     f.Length,
			IsPlayable: f.IsPlayable,
			MimeType:   f.MimeType,
		}
		if f.IsPlayable {
			resp[i].StreamURL = executor.StreamURL(base, id, f.Index)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// listObjects shows what move actions uploaded below an s3:// location.
func (h *Handler) listObjects(c *gin.Context) {
	bucket, prefix, ok := h.objectLocation(c)
	if !ok {
		return
	}

	objects, err := h.storage.ListObjects(c.Request.Context(), bucket, prefix)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]StorageObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) deleteObjects(c *gin.Context) {
	bucket, prefix, ok := h.objectLocation(c)
	if !ok {
		return
	}
	if prefix == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "s3 prefix missing"})
		return
	}

	n, err := h.storage.DeletePrefix(c.Request.Context(), bucket, prefix)
	if err != nil {
		h.logger.WithField("location", "s3://"+bucket+"/"+prefix).Warnf("deleted %d objects before error: %v", n, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "objects": n})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": "s3://" + bucket + "/" + prefix, "objects": n})
}

// listUploads totals the stored objects per torrent below a move
// destination.
func (h *Handler) listUploads(c *gin.Context) {
	bucket, prefix, ok := h.objectLocation(c)
	if !ok {
		return
	}

	objects, err := h.storage.ListObjects(c.Request.Context(), bucket, prefix)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	summaries := storage.SummarizeUploads(objects)
	resp := make([]UploadSummaryResponse, len(summaries))
	for i, sum := range summaries {
		resp[i] = UploadSummaryResponse{
			Name:         sum.Name,
			Location:     "s3://" + path.Join(bucket, prefix, sum.Name),
			Objects:      sum.Objects,
			Size:         sum.Size,
			LastModified: formatObjectTime(sum.LastModified),
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) objectLocation(c *gin.Context) (string, string, bool) {
	if h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage service not configured"})
		return "", "", false
	}
	location := c.Query("location")
	if location == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location is required"})
		return "", "", false
	}
	bucket, prefix, err := executor.ParseS3Location(location)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", false
	}
	return bucket, prefix, true
}

type TorrentResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	TotalBytes     int64  `json:"total_bytes"`
	CompletedBytes int64  `json:"completed_bytes"`
	UploadedBytes  int64  `json:"uploaded_bytes"`
	Progress       int    `json:"progress"`
	FileCount      int    `json:"file_count"`
	HasInfo        bool   `json:"has_info"`
}

type TorrentFileResponse struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	Length     int64  `json:"length"`
	IsPlayable bool   `json:"is_playable"`
	MimeType   string `json:"mime_type"`
	StreamURL  string `json:"stream_url,omitempty"`
}

type StorageObjectResponse struct {
	Key          string  `json:"key"`
	Upload       string  `json:"upload"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

type UploadSummaryResponse struct {
	Name         string  `json:"name"`
	Location     string  `json:"location"`
	Objects      int     `json:"objects"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func torrentToResponse(t domain.TorrentSummary) TorrentResponse {
	resp := TorrentResponse{
		ID:             t.ID,
		Name:           t.Name,
		TotalBytes:     t.TotalBytes,
		CompletedBytes: t.CompletedBytes,
		UploadedBytes:  t.UploadedBytes,
		FileCount:      t.FileCount,
		HasInfo:        t.HasInfo,
	}
	if t.TotalBytes > 0 {
		resp.Progress = int(t.CompletedBytes * 100 / t.TotalBytes)
	}
	return resp
}

func objectToResponse(obj storage.ObjectInfo) StorageObjectResponse {
	return StorageObjectResponse{
		Key:          obj.Key,
		Upload:       obj.Upload,
		Size:         obj.Size,
		LastModified: formatObjectTime(obj.LastModified),
	}
}

func formatObjectTime(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Format(time.RFC3339)
	return &v
}
