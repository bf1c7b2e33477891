// Package executor holds the side-effecting implementations of playlet
// actions and the registry the engine dispatches through.
package executor

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"magnet-playlets/internal/domain"
)

// Input is what every executor receives besides its action definition.
type Input struct {
	TorrentID   string
	TorrentName string
	Files       []domain.FileInfo
	Settings    domain.Settings
}

// Executor runs one action type. A returned *SkipError is a skip, any other
// non-nil error is a failure.
type Executor interface {
	Execute(ctx context.Context, action domain.Action, in Input) error
}

// Func adapts a plain function to Executor.
type Func func(ctx context.Context, action domain.Action, in Input) error

func (f Func) Execute(ctx context.Context, action domain.Action, in Input) error {
	return f(ctx, action, in)
}

// Torrents is the slice of the torrent engine executors act on.
type Torrents interface {
	LocalPath(torrentID string) (string, error)
	FilePath(torrentID string, file domain.FileInfo) (string, error)
	Relocate(ctx context.Context, torrentID, destination string) (string, error)
	Remove(ctx context.Context, torrentID string, deleteFiles bool) error
}

// CastMedia describes what a device is asked to load.
type CastMedia struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
}

// Caster resolves and drives cast devices.
type Caster interface {
	Lookup(id string) (domain.Device, bool)
	Connected() []domain.Device
	Cast(ctx context.Context, device domain.Device, media CastMedia) error
}

// Notifier shows a user-facing notification.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// SubtitleFetcher downloads subtitles for one video in one language.
type SubtitleFetcher interface {
	Fetch(ctx context.Context, videoPath, language string) error
}

func firstPlayable(files []domain.FileInfo) (domain.FileInfo, bool) {
	for _, f := range files {
		if f.IsPlayable {
			return f, true
		}
	}
	return domain.FileInfo{}, false
}

// PlaylistURL is the M3U8 playlist the media routes serve for a torrent.
func PlaylistURL(base, torrentID string) string {
	return strings.TrimRight(base, "/") + "/torrent/" + url.PathEscape(torrentID) + "/playlist.m3u8"
}

// StreamURL is the HTTP stream of a single torrent file.
func StreamURL(base, torrentID string, index int) string {
	return strings.TrimRight(base, "/") + "/torrent/" + url.PathEscape(torrentID) + "/stream/" + strconv.Itoa(index)
}
