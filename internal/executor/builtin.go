package executor

import (
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"magnet-playlets/internal/domain"
	"magnet-playlets/internal/storage"
)

// Deps are the collaborators of the built-in executors. Storage and
// Subtitles may be nil; the actions that need them then fail or skip.
type Deps struct {
	Torrents      Torrents
	Caster        Caster
	Notifier      Notifier
	Player        Player
	Subtitles     SubtitleFetcher
	Storage       storage.Service
	Runner        Runner
	HTTPClient    *http.Client
	WebhookSecret string
	Logger        *logrus.Logger
}

// NewDefaultRegistry registers an executor for every action type.
func NewDefaultRegistry(deps Deps) (*Registry, error) {
	if deps.Torrents == nil {
		return nil, errors.New("torrent engine is required")
	}
	if deps.Caster == nil || deps.Notifier == nil {
		return nil, errors.New("caster and notifier are required")
	}
	if deps.Runner == nil {
		deps.Runner = ExecRunner{}
	}
	if deps.Player == nil {
		deps.Player = CommandPlayer{Runner: deps.Runner}
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}

	r := NewRegistry()
	r.Register(domain.ActionCast, &castExecutor{caster: deps.Caster})
	r.Register(domain.ActionMove, &moveExecutor{torrents: deps.Torrents, storage: deps.Storage, logger: deps.Logger})
	r.Register(domain.ActionNotify, &notifyExecutor{notifier: deps.Notifier})
	r.Register(domain.ActionPlay, &playExecutor{torrents: deps.Torrents, player: deps.Player})
	r.Register(domain.ActionSubtitle, &subtitleExecutor{torrents: deps.Torrents, fetcher: deps.Subtitles})
	r.Register(domain.ActionAutomation, &automationExecutor{runner: deps.Runner, logger: deps.Logger})
	r.Register(domain.ActionDelay, delayExecutor{})
	r.Register(domain.ActionWebhook, &webhookExecutor{client: deps.HTTPClient, secret: []byte(deps.WebhookSecret)})
	r.Register(domain.ActionDeleteSource, &deleteSourceExecutor{torrents: deps.Torrents})

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
