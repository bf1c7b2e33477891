package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"magnet-playlets/internal/executor"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// playlist serves an extended M3U listing every playable file of a torrent
// in torrent order.
func (h *Handler) playlist(c *gin.Context) {
	id := c.Param("id")
	files, err := h.torrents.ListFiles(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	base := h.mediaBase(c)
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	entries := 0
	for _, f := range files {
		if !f.IsPlayable {
			continue
		}
		title := strings.NewReplacer("\r", " ", "\n", " ").Replace(f.Name)
		b.WriteString("#EXTINF:-1," + title + "\n")
		b.WriteString(executor.StreamURL(base, id, f.Index) + "\n")
		entries++
	}
	if entries == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no playable files"})
		return
	}

	c.Data(http.StatusOK, playlistContentType, []byte(b.String()))
}

// stream serves one torrent file with range support.
func (h *Handler) stream(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file index"})
		return
	}

	id := c.Param("id")
	r, file, err := h.torrents.OpenFile(id, index)
	if err != nil {
		respondError(c, err)
		return
	}
	defer r.Close()

	h.logger.WithField("torrent_id", id).Debugf("Streaming %s", file.Path)
	c.Header("Content-Type", file.MimeType)
	c.Header("Accept-Ranges", "bytes")
	http.ServeContent(c.Writer, c.Request, file.Name, time.Time{}, r)
}

// mediaBase is the configured public URL, or the address the request came
// in on.
func (h *Handler) mediaBase(c *gin.Context) string {
	if base := strings.TrimSpace(h.engine.Settings().MediaBaseURL); base != "" {
		return strings.TrimRight(base, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host
}
