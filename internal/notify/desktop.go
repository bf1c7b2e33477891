// Package notify provides desktop notification support.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"

	"magnet-playlets/internal/executor"
)

// Desktop shows notifications with osascript on macOS and notify-send
// elsewhere. Without either tool the notification is only logged.
type Desktop struct {
	Runner   executor.Runner
	Logger   *logrus.Logger
	GOOS     string
	LookPath func(file string) (string, error)
}

func NewDesktop(runner executor.Runner, logger *logrus.Logger) *Desktop {
	return &Desktop{Runner: runner, Logger: logger}
}

func (d *Desktop) Notify(ctx context.Context, title, message string) error {
	cmd := d.command(title, message)
	lookPath := d.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath(cmd.Name); err != nil {
		if d.Logger != nil {
			d.Logger.Infof("notification: %s: %s", title, message)
		}
		return nil
	}
	if _, err := d.Runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return nil
}

func (d *Desktop) command(title, message string) executor.Command {
	goos := d.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	if goos == "darwin" {
		script := fmt.Sprintf(
			`display notification "%s" with title "%s" sound name "default"`,
			escapeAppleScript(message), escapeAppleScript(title),
		)
		return executor.Command{Name: "osascript", Args: []string{"-e", script}}
	}
	return executor.Command{Name: "notify-send", Args: []string{"--app-name=magnet-playlets", title, message}}
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

var _ executor.Notifier = (*Desktop)(nil)
