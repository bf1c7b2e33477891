package executor

import (
	"context"
	"fmt"

	"magnet-playlets/internal/domain"
)

type notifyExecutor struct {
	notifier Notifier
}

func (e *notifyExecutor) Execute(ctx context.Context, _ domain.Action, in Input) error {
	message := in.TorrentName
	if n := len(in.Files); n > 0 {
		message = fmt.Sprintf("%s (%d files)", in.TorrentName, n)
	}
	if err := e.notifier.Notify(ctx, "Torrent ready", message); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}
