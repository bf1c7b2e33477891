package downloader

import (
	"mime"
	"path"
	"strings"

	"magnet-playlets/internal/domain"
)

var mediaTypes = map[string]string{
	".mkv":  "video/x-matroska",
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".ts":   "video/mp2t",
	".mpg":  "video/mpeg",
	".mpeg": "video/mpeg",
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".wav":  "audio/wav",
	".srt":  "application/x-subrip",
	".vtt":  "text/vtt",
	".ass":  "text/x-ssa",
}

// MimeType guesses the content type from the file extension.
func MimeType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if base, _, err := mime.ParseMediaType(t); err == nil {
			return base
		}
		return t
	}
	return "application/octet-stream"
}

// newFileInfo builds a file entry. rel is slash-separated and relative to the
// torrent's base directory.
func newFileInfo(index int, rel string, length int64) domain.FileInfo {
	mt := MimeType(rel)
	return domain.FileInfo{
		Index:      index,
		Name:       path.Base(rel),
		Path:       rel,
		Length:     length,
		IsPlayable: strings.HasPrefix(mt, "video/") || strings.HasPrefix(mt, "audio/"),
		MimeType:   mt,
	}
}
