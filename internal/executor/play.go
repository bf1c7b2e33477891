package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"magnet-playlets/internal/domain"
)

// Player opens a local file or URL in a media application.
type Player interface {
	Open(ctx context.Context, app, target string) error
}

// CommandPlayer launches the application through the OS. On darwin it uses
// `open -a`, elsewhere the app is executed directly with the target.
type CommandPlayer struct {
	Runner Runner
	GOOS   string
}

func (p CommandPlayer) Open(ctx context.Context, app, target string) error {
	goos := p.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	cmd := Command{Name: app, Args: []string{target}}
	if goos == "darwin" {
		cmd = Command{Name: "open", Args: []string{"-a", app, target}}
	}
	_, err := p.Runner.Run(ctx, cmd)
	return err
}

type playExecutor struct {
	torrents Torrents
	player   Player
}

func (e *playExecutor) Execute(ctx context.Context, a domain.Action, in Input) error {
	var opts domain.PlayAction
	if a.Play != nil {
		opts = *a.Play
	}
	app := opts.App
	if app == "" {
		app = in.Settings.DefaultMediaPlayer
	}
	if app == "" {
		return Skipf("no media player configured")
	}

	var target string
	if opts.UsePlaylist {
		if in.Settings.MediaBaseURL == "" {
			return errors.New("media server address is not configured")
		}
		target = PlaylistURL(in.Settings.MediaBaseURL, in.TorrentID)
	} else {
		file, ok := firstPlayable(in.Files)
		if !ok {
			return errors.New("no playable file found")
		}
		path, err := e.torrents.FilePath(in.TorrentID, file)
		if err != nil {
			return fmt.Errorf("resolve file path: %w", err)
		}
		target = path
	}

	if err := e.player.Open(ctx, app, target); err != nil {
		return fmt.Errorf("open %s: %w", app, err)
	}
	return nil
}
