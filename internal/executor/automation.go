package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"magnet-playlets/internal/domain"
)

type automationExecutor struct {
	runner Runner
	logger *logrus.Logger
}

type shortcutPayload struct {
	TorrentID   string   `json:"torrent_id"`
	TorrentName string   `json:"torrent_name"`
	Files       []string `json:"files"`
}

func (e *automationExecutor) Execute(ctx context.Context, a domain.Action, in Input) error {
	opts := a.Automation
	if opts == nil {
		return missingOptions(a.Type)
	}

	var cmd Command
	switch opts.Method {
	case domain.AutomationShell:
		if strings.TrimSpace(opts.Script) == "" {
			return errors.New("shell script is empty")
		}
		cmd = Command{
			Name: "sh",
			Args: []string{"-c", opts.Script},
			Env: []string{
				"TORRENT_ID=" + in.TorrentID,
				"TORRENT_NAME=" + in.TorrentName,
			},
		}
	case domain.AutomationAppleScript:
		if strings.TrimSpace(opts.Script) == "" {
			return errors.New("applescript is empty")
		}
		cmd = Command{Name: "osascript", Args: []string{"-e", opts.Script}}
	case domain.AutomationShortcut:
		name := strings.TrimSpace(opts.ShortcutName)
		if name == "" {
			return errors.New("shortcut name is empty")
		}
		payload := shortcutPayload{TorrentID: in.TorrentID, TorrentName: in.TorrentName, Files: make([]string, len(in.Files))}
		for i, f := range in.Files {
			payload.Files[i] = f.Path
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode shortcut input: %w", err)
		}
		cmd = Command{Name: "shortcuts", Args: []string{"run", name, "-i", "-"}, Stdin: body}
	default:
		return fmt.Errorf("unknown automation method: %q", opts.Method)
	}

	out, err := e.runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("automation %s: %w", opts.Method, err)
	}
	if output := strings.TrimSpace(string(out)); output != "" {
		e.logger.WithField("torrent_id", in.TorrentID).Debugf("automation output: %s", output)
	}
	return nil
}
