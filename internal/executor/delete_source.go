package executor

import (
	"context"
	"fmt"

	"magnet-playlets/internal/domain"
)

type deleteSourceExecutor struct {
	torrents Torrents
}

func (e *deleteSourceExecutor) Execute(ctx context.Context, a domain.Action, in Input) error {
	deleteFiles := a.DeleteSource != nil && a.DeleteSource.DeleteFiles
	if err := e.torrents.Remove(ctx, in.TorrentID, deleteFiles); err != nil {
		return fmt.Errorf("delete torrent: %w", err)
	}
	return nil
}
