// Package engine turns torrent events into tasks and runs their actions
// through the executor registry under a concurrency limit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"magnet-playlets/internal/domain"
	"magnet-playlets/internal/events"
	"magnet-playlets/internal/executor"
	"magnet-playlets/internal/matcher"
	"magnet-playlets/internal/metrics"
	"magnet-playlets/internal/repository"
)

// Playlets resolves playlet definitions. Get must return an error matching
// ErrPlayletNotFound or repository.ErrNotFound for unknown ids.
type Playlets interface {
	Get(ctx context.Context, id string) (*domain.Playlet, error)
	List(ctx context.Context) ([]domain.Playlet, error)
}

// FileLister reads the current file list of a torrent.
type FileLister interface {
	ListFiles(ctx context.Context, torrentID string) ([]domain.FileInfo, error)
}

// Executor runs one action. *executor.Registry implements it.
type Executor interface {
	Execute(ctx context.Context, action domain.Action, in executor.Input) error
}

type Options struct {
	Tasks     repository.TaskRepository
	Playlets  Playlets
	Files     FileLister
	Executors Executor
	Bus       *events.Bus
	Settings  domain.Settings
	Logger    *logrus.Logger
}

type Engine struct {
	machine   *Machine
	scheduler *Scheduler
	playlets  Playlets
	files     FileLister
	executors Executor
	bus       *events.Bus
	logger    *logrus.Logger

	settingsMu sync.RWMutex
	settings   domain.Settings

	firedMu sync.Mutex
	fired   map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds an engine from its collaborators. Call Load before handling
// events.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		machine:   NewMachine(opts.Tasks, opts.Bus, logger),
		playlets:  opts.Playlets,
		files:     opts.Files,
		executors: opts.Executors,
		bus:       opts.Bus,
		logger:    logger,
		settings:  cloneSettings(opts.Settings),
		fired:     make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	e.scheduler = NewScheduler(ctx, opts.Settings.MaxConcurrentTasks, e.runTask)
	return e
}

// Load restores persisted tasks, recovering interrupted ones, and queues
// every waiting task that has a playlet.
func (e *Engine) Load(ctx context.Context) error {
	waiting, err := e.machine.Load(ctx)
	if err != nil {
		return err
	}
	for _, id := range waiting {
		e.scheduler.Enqueue(id)
	}
	e.logger.Infof("Loaded tasks, %d queued", len(waiting))
	return nil
}

// Shutdown cancels running executors and waits for their goroutines. Tasks
// interrupted this way stay executing in storage and are recovered by the
// next Load.
func (e *Engine) Shutdown() {
	e.cancel()
	e.scheduler.Stop()
}

// HandleEvent creates and queues a task for every enabled playlet whose
// trigger and conditions match the event.
func (e *Engine) HandleEvent(ctx context.Context, ev domain.TorrentEvent) ([]domain.Task, error) {
	playlets, err := e.playlets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list playlets: %w", err)
	}

	log := e.logger.WithFields(logrus.Fields{"torrent_id": ev.TorrentID, "event": ev.Kind})
	var created []domain.Task
	for i := range playlets {
		p := &playlets[i]
		if !p.Enabled || p.Trigger.Kind != ev.Kind {
			continue
		}
		if !e.triggerFires(p, ev) {
			continue
		}
		if !matcher.Matches(p, ev.TorrentName, ev.TotalBytes, ev.FileCount) {
			continue
		}
		task := e.machine.Create(ev.TorrentID, ev.TorrentName, p)
		log.WithField("task_id", task.ID).Infof("Playlet %q triggered", p.Name)
		e.scheduler.Enqueue(task.ID)
		created = append(created, task)
	}
	return created, nil
}

func (e *Engine) triggerFires(p *domain.Playlet, ev domain.TorrentEvent) bool {
	switch p.Trigger.Kind {
	case domain.TriggerSeedingRatio:
		if ev.Ratio < p.Trigger.Ratio {
			return false
		}
		key := ev.TorrentID + "/" + p.ID
		e.firedMu.Lock()
		defer e.firedMu.Unlock()
		if _, ok := e.fired[key]; ok {
			return false
		}
		e.fired[key] = struct{}{}
		return true
	case domain.TriggerFolderWatch:
		return withinDir(p.Trigger.Path, ev.Path)
	default:
		return true
	}
}

func withinDir(dir, path string) bool {
	if dir == "" || path == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// CreateTask creates a task by hand. With a playlet it is queued right away;
// without one it waits until Reassign gives it a playlet.
func (e *Engine) CreateTask(ctx context.Context, torrentID, torrentName string, playletID *string) (domain.Task, error) {
	var playlet *domain.Playlet
	if playletID != nil {
		p, err := e.resolvePlaylet(ctx, *playletID)
		if err != nil {
			return domain.Task{}, err
		}
		playlet = p
	}
	task := e.machine.Create(torrentID, torrentName, playlet)
	if playlet != nil {
		e.scheduler.Enqueue(task.ID)
	}
	return task, nil
}

// Enqueue queues a waiting, assigned task for execution.
func (e *Engine) Enqueue(id string) error {
	task, err := e.machine.Get(id)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskStatusWaiting {
		return ErrTaskNotWaiting
	}
	if task.PlayletID == nil {
		return ErrTaskUnassigned
	}
	e.scheduler.Enqueue(id)
	return nil
}

// Retry resets failed and skipped actions and queues the task again.
func (e *Engine) Retry(id string) (domain.Task, error) {
	task, changed, err := e.machine.Retry(id)
	if err != nil {
		return domain.Task{}, err
	}
	if changed && task.PlayletID != nil {
		e.scheduler.Enqueue(id)
	}
	return task, nil
}

// Reassign binds a waiting task to another playlet. A nil id unassigns it.
func (e *Engine) Reassign(ctx context.Context, id string, playletID *string) (domain.Task, error) {
	var playlet *domain.Playlet
	if playletID != nil {
		p, err := e.resolvePlaylet(ctx, *playletID)
		if err != nil {
			return domain.Task{}, err
		}
		playlet = p
	}
	task, err := e.machine.Reassign(id, playlet)
	if err != nil {
		return domain.Task{}, err
	}
	if playlet != nil {
		e.scheduler.Enqueue(id)
	} else {
		e.scheduler.Forget(id)
	}
	return task, nil
}

func (e *Engine) Remove(id string) error {
	if err := e.machine.Remove(id); err != nil {
		return err
	}
	e.scheduler.Forget(id)
	return nil
}

// ClearCompleted removes completed tasks. Failed tasks are kept for retry.
func (e *Engine) ClearCompleted() int {
	return e.machine.ClearCompleted()
}

func (e *Engine) Tasks() []domain.Task {
	return e.machine.List()
}

func (e *Engine) Task(id string) (domain.Task, error) {
	return e.machine.Get(id)
}

// ApplySettings replaces the settings snapshot. A changed concurrency limit
// takes effect immediately for queued tasks.
func (e *Engine) ApplySettings(s domain.Settings) {
	e.settingsMu.Lock()
	e.settings = cloneSettings(s)
	e.settingsMu.Unlock()
	e.scheduler.SetLimit(s.MaxConcurrentTasks)
}

func (e *Engine) Settings() domain.Settings {
	e.settingsMu.RLock()
	defer e.settingsMu.RUnlock()
	return cloneSettings(e.settings)
}

// Subscribe registers fn for task events. The returned func unsubscribes.
func (e *Engine) Subscribe(fn events.Subscriber, types ...events.Type) func() {
	if e.bus == nil {
		return func() {}
	}
	return e.bus.Subscribe(fn, types...)
}

func (e *Engine) resolvePlaylet(ctx context.Context, id string) (*domain.Playlet, error) {
	p, err := e.playlets.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPlayletNotFound) || errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlayletNotFound
		}
		return nil, fmt.Errorf("get playlet: %w", err)
	}
	return p, nil
}

func (e *Engine) runTask(ctx context.Context, id string) {
	task, err := e.machine.Dispatch(id)
	if err != nil {
		e.logger.WithField("task_id", id).Debugf("not dispatched: %v", err)
		return
	}
	metrics.TasksExecuting.Inc()
	defer metrics.TasksExecuting.Dec()

	log := e.logger.WithFields(logrus.Fields{"task_id": id, "torrent_id": task.TorrentID})
	playletID := *task.PlayletID

	files, err := e.files.ListFiles(ctx, task.TorrentID)
	if err != nil {
		log.Warnf("list files, continuing without files: %v", err)
		files = nil
	}
	if p, err := e.resolvePlaylet(ctx, playletID); err == nil {
		files = matcher.Filter(p, files)
	}
	in := executor.Input{
		TorrentID:   task.TorrentID,
		TorrentName: task.TorrentName,
		Files:       files,
		Settings:    e.Settings(),
	}

	for i, result := range task.Results {
		if result.Status == domain.ActionStatusDone {
			continue
		}
		if ctx.Err() != nil {
			log.Info("Engine stopping, leaving task for recovery")
			return
		}
		alog := log.WithField("action", result.ActionType)

		action, status, msg := e.resolveAction(ctx, playletID, result.ActionID)
		if status != "" {
			alog.Infof("Action not run: %s", msg)
			if !e.complete(alog, id, i, status, msg) {
				return
			}
			continue
		}

		if err := e.machine.BeginAction(id, i); err != nil {
			alog.Infof("Task removed, stopping: %v", err)
			return
		}
		start := time.Now()
		err := e.executors.Execute(ctx, action, in)
		metrics.ActionDuration.WithLabelValues(string(action.Type)).Observe(time.Since(start).Seconds())
		if ctx.Err() != nil {
			alog.Info("Engine stopping, action interrupted")
			return
		}

		status, msg = classify(err)
		metrics.ActionsTotal.WithLabelValues(string(action.Type), string(status)).Inc()
		switch status {
		case domain.ActionStatusFailed:
			alog.Warnf("Action failed: %s", msg)
		case domain.ActionStatusSkipped:
			alog.Infof("Action skipped: %s", msg)
		default:
			alog.Info("Action done")
		}
		if !e.complete(alog, id, i, status, msg) {
			return
		}
	}

	final, err := e.machine.Finalize(id)
	if err != nil {
		log.Infof("Task removed before finalizing: %v", err)
		return
	}
	metrics.TasksFinished.WithLabelValues(string(final.Status)).Inc()
	log.Infof("Task %s", final.Status)
}

// resolveAction looks up the live action definition. A non-empty status
// means the action must not run and is recorded with msg instead.
func (e *Engine) resolveAction(ctx context.Context, playletID, actionID string) (domain.Action, domain.ActionStatus, string) {
	p, err := e.resolvePlaylet(ctx, playletID)
	if errors.Is(err, ErrPlayletNotFound) {
		return domain.Action{}, domain.ActionStatusSkipped, "playlet no longer exists"
	}
	if err != nil {
		return domain.Action{}, domain.ActionStatusFailed, err.Error()
	}
	action, ok := p.Action(actionID)
	if !ok {
		return domain.Action{}, domain.ActionStatusSkipped, "action no longer exists in playlet"
	}
	return action, "", ""
}

// complete records an outcome. It returns false when the task was removed
// in the meantime and the run should stop.
func (e *Engine) complete(log *logrus.Entry, id string, index int, status domain.ActionStatus, msg string) bool {
	if err := e.machine.CompleteAction(id, index, status, msg); err != nil {
		log.Infof("Discarding action result: %v", err)
		return false
	}
	return true
}

func classify(err error) (domain.ActionStatus, string) {
	if err == nil {
		return domain.ActionStatusDone, ""
	}
	if reason, ok := executor.SkipReason(err); ok {
		return domain.ActionStatusSkipped, reason
	}
	return domain.ActionStatusFailed, err.Error()
}

func cloneSettings(s domain.Settings) domain.Settings {
	s.SubtitleLanguages = append([]string(nil), s.SubtitleLanguages...)
	return s
}
