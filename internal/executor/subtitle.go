package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"magnet-playlets/internal/domain"
	"magnet-playlets/internal/matcher"
)

// CommandSubtitles fetches subtitles through a user supplied command line.
// {file} and {lang} in Template are replaced with shell-quoted values.
type CommandSubtitles struct {
	Template string
	Runner   Runner
}

func (s CommandSubtitles) Fetch(ctx context.Context, videoPath, language string) error {
	line := strings.NewReplacer(
		"{file}", shellQuote(videoPath),
		"{lang}", shellQuote(language),
	).Replace(s.Template)
	_, err := s.Runner.Run(ctx, Command{Name: "sh", Args: []string{"-c", line}})
	return err
}

type subtitleExecutor struct {
	torrents Torrents
	fetcher  SubtitleFetcher
}

func (e *subtitleExecutor) Execute(ctx context.Context, a domain.Action, in Input) error {
	var languages []string
	if a.Subtitle != nil {
		languages = a.Subtitle.Languages
	}
	if len(languages) == 0 {
		languages = in.Settings.SubtitleLanguages
	}
	if len(languages) == 0 {
		return Skipf("no subtitle languages configured")
	}
	if e.fetcher == nil {
		return Skipf("no subtitle provider configured")
	}

	var videos []domain.FileInfo
	for _, f := range in.Files {
		if matcher.IsVideo(f) {
			videos = append(videos, f)
		}
	}
	if len(videos) == 0 {
		return errors.New("no video files to fetch subtitles for")
	}

	// one request at a time; subtitle providers rate limit aggressively
	for _, v := range videos {
		path, err := e.torrents.FilePath(in.TorrentID, v)
		if err != nil {
			return fmt.Errorf("resolve file path: %w", err)
		}
		for _, lang := range languages {
			if err := e.fetcher.Fetch(ctx, path, lang); err != nil {
				return fmt.Errorf("fetch %s subtitles for %s: %w", lang, v.Name, err)
			}
		}
	}
	return nil
}
