package matcher

import (
	"path/filepath"
	"strings"

	"magnet-playlets/internal/domain"
)

var subtitleExtensions = map[string]struct{}{
	"srt": {},
	"ass": {},
	"sub": {},
	"vtt": {},
}

// Filter narrows files according to the playlet's file filter. The steps run
// in a fixed order: category, minimum size, name pattern, largest only. The
// input slice is never modified; the result may be empty.
func Filter(p *domain.Playlet, files []domain.FileInfo) []domain.FileInfo {
	out := append([]domain.FileInfo(nil), files...)
	f := p.FileFilter
	if f == nil {
		return out
	}

	out = keep(out, categoryPredicate(f))

	if f.MinSizeMB > 0 {
		minBytes := int64(f.MinSizeMB * bytesPerMB)
		out = keep(out, func(fi domain.FileInfo) bool { return fi.Length >= minBytes })
	}

	if pattern := strings.ToLower(f.NamePattern); pattern != "" {
		out = keep(out, func(fi domain.FileInfo) bool {
			return strings.Contains(strings.ToLower(fi.Name), pattern)
		})
	}

	if f.SelectLargest && len(out) > 0 {
		largest := out[0]
		for _, fi := range out[1:] {
			if fi.Length > largest.Length {
				largest = fi
			}
		}
		out = []domain.FileInfo{largest}
	}

	return out
}

func categoryPredicate(f *domain.FileFilter) func(domain.FileInfo) bool {
	switch f.Category {
	case domain.CategoryVideo:
		return func(fi domain.FileInfo) bool { return strings.HasPrefix(fi.MimeType, "video/") }
	case domain.CategoryAudio:
		return func(fi domain.FileInfo) bool { return strings.HasPrefix(fi.MimeType, "audio/") }
	case domain.CategorySubtitle:
		return func(fi domain.FileInfo) bool {
			_, ok := subtitleExtensions[extension(fi.Name)]
			return ok
		}
	case domain.CategoryCustom:
		allowed := make(map[string]struct{}, len(f.Extensions))
		for _, ext := range f.Extensions {
			ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
			if ext != "" {
				allowed[ext] = struct{}{}
			}
		}
		return func(fi domain.FileInfo) bool {
			_, ok := allowed[extension(fi.Name)]
			return ok
		}
	default:
		return func(domain.FileInfo) bool { return true }
	}
}

func keep(files []domain.FileInfo, pred func(domain.FileInfo) bool) []domain.FileInfo {
	out := files[:0]
	for _, fi := range files {
		if pred(fi) {
			out = append(out, fi)
		}
	}
	return out
}

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// IsVideo reports whether the file's MIME type is video/*.
func IsVideo(fi domain.FileInfo) bool {
	return strings.HasPrefix(fi.MimeType, "video/")
}
