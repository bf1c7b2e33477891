package executor

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"magnet-playlets/internal/domain"
	"magnet-playlets/internal/storage"
)

const s3Scheme = "s3://"

type moveExecutor struct {
	torrents Torrents
	storage  storage.Service
	logger   *logrus.Logger
}

func (e *moveExecutor) Execute(ctx context.Context, a domain.Action, in Input) error {
	dest := ""
	if a.Move != nil {
		dest = strings.TrimSpace(a.Move.Destination)
	}
	if dest == "" {
		dest = strings.TrimSpace(in.Settings.DefaultMoveDestination)
	}
	if dest == "" {
		return Skipf("no move destination configured")
	}

	if strings.HasPrefix(dest, s3Scheme) {
		return e.upload(ctx, dest, in)
	}

	if _, err := e.torrents.Relocate(ctx, in.TorrentID, dest); err != nil {
		return fmt.Errorf("move torrent files: %w", err)
	}
	return nil
}

func (e *moveExecutor) upload(ctx context.Context, dest string, in Input) error {
	if e.storage == nil {
		return errors.New("object storage is not configured")
	}
	bucket, prefix, err := ParseS3Location(dest)
	if err != nil {
		return err
	}
	src, err := e.torrents.LocalPath(in.TorrentID)
	if err != nil {
		return fmt.Errorf("resolve torrent data: %w", err)
	}
	opts := storage.UploadOptions{
		Bucket:    bucket,
		KeyPrefix: path.Join(prefix, in.TorrentName),
	}
	if e.logger != nil {
		opts.ProgressCallback = uploadProgressLogger(e.logger.WithField("torrent_id", in.TorrentID))
	}
	location, err := e.storage.UploadDirectory(ctx, src, opts)
	if err != nil {
		return fmt.Errorf("upload torrent files: %w", err)
	}
	if e.logger != nil {
		e.logger.WithField("torrent_id", in.TorrentID).Infof("uploaded to %s", location)
	}
	return nil
}

func uploadProgressLogger(logger *logrus.Entry) func(done, total int64) {
	var lastLog time.Time
	return func(done, total int64) {
		now := time.Now()
		if now.Sub(lastLog) < 5*time.Second && done != total {
			return
		}
		lastLog = now
		if total == 0 {
			logger.Infof("upload progress: %s uploaded", formatBytes(done))
			return
		}
		percent := float64(done) / float64(total) * 100
		logger.Infof("upload progress: %.1f%% (%s/%s)", percent, formatBytes(done), formatBytes(total))
	}
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// ParseS3Location splits s3://bucket/prefix.
func ParseS3Location(location string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(location, s3Scheme) {
		return "", "", fmt.Errorf("invalid s3 location %q", location)
	}
	rest := strings.TrimPrefix(location, s3Scheme)
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid s3 location %q: bucket missing", location)
	}
	if len(parts) == 2 {
		prefix = strings.Trim(parts[1], "/")
	}
	return parts[0], prefix, nil
}
