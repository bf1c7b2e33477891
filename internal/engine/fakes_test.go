package engine

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"magnet-playlets/internal/domain"
	"magnet-playlets/internal/executor"
	"magnet-playlets/internal/repository"
)

// -- Fakes -------------------------------------------------------------------

type memTasks struct {
	mu    sync.Mutex
	tasks map[string]domain.Task
	order []string
}

func newMemTasks(seed ...domain.Task) *memTasks {
	m := &memTasks{tasks: make(map[string]domain.Task)}
	for _, t := range seed {
		m.tasks[t.ID] = t.Clone()
		m.order = append(m.order, t.ID)
	}
	return m
}

func (m *memTasks) Init(context.Context) error { return nil }

func (m *memTasks) Save(_ context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; !ok {
		m.order = append(m.order, task.ID)
	}
	m.tasks[task.ID] = task.Clone()
	return nil
}

func (m *memTasks) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.tasks, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memTasks) List(context.Context) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Task, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.tasks[id].Clone())
	}
	return out, nil
}

func (m *memTasks) get(id string) (domain.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	return t.Clone(), ok
}

type fakePlaylets struct {
	mu       sync.Mutex
	playlets []domain.Playlet
}

func (f *fakePlaylets) Get(_ context.Context, id string) (*domain.Playlet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.playlets {
		if p.ID == id {
			cp := p
			cp.Actions = append([]domain.Action(nil), p.Actions...)
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakePlaylets) List(context.Context) ([]domain.Playlet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Playlet(nil), f.playlets...), nil
}

func (f *fakePlaylets) dropAction(playletID, actionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.playlets {
		if f.playlets[i].ID != playletID {
			continue
		}
		var kept []domain.Action
		for _, a := range f.playlets[i].Actions {
			if a.ID != actionID {
				kept = append(kept, a)
			}
		}
		f.playlets[i].Actions = kept
	}
}

type fakeFiles struct {
	files []domain.FileInfo
	err   error
}

func (f *fakeFiles) ListFiles(context.Context, string) ([]domain.FileInfo, error) {
	return f.files, f.err
}

type fakeTorrents struct {
	mu        sync.Mutex
	relocated []string
}

func (f *fakeTorrents) LocalPath(id string) (string, error) { return "/data/" + id, nil }

func (f *fakeTorrents) FilePath(_ string, file domain.FileInfo) (string, error) {
	return "/data/" + file.Path, nil
}

func (f *fakeTorrents) Relocate(_ context.Context, _ string, dest string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relocated = append(f.relocated, dest)
	return dest, nil
}

func (f *fakeTorrents) Remove(context.Context, string, bool) error { return nil }

type noDevices struct{}

func (noDevices) Lookup(string) (domain.Device, bool) { return domain.Device{}, false }
func (noDevices) Connected() []domain.Device           { return nil }
func (noDevices) Cast(context.Context, domain.Device, executor.CastMedia) error {
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Notify(_ context.Context, _, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

// countingExecutor records every execution and delegates to fn when set.
type countingExecutor struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(ctx context.Context, a domain.Action, in executor.Input) error
}

func (c *countingExecutor) Execute(ctx context.Context, a domain.Action, in executor.Input) error {
	c.mu.Lock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[a.ID]++
	c.mu.Unlock()
	if c.fn != nil {
		return c.fn(ctx, a, in)
	}
	return nil
}

func (c *countingExecutor) count(actionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[actionID]
}

// -- Helpers -----------------------------------------------------------------

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestEngine(t *testing.T, repo *memTasks, playlets *fakePlaylets, files *fakeFiles, exec Executor, settings domain.Settings) *Engine {
	t.Helper()
	e := New(Options{
		Tasks:     repo,
		Playlets:  playlets,
		Files:     files,
		Executors: exec,
		Settings:  settings,
		Logger:    quietLogger(),
	})
	t.Cleanup(e.Shutdown)
	return e
}

func waitForStatus(t *testing.T, e *Engine, id string, want domain.TaskStatus) domain.Task {
	t.Helper()
	require.Eventually(t, func() bool {
		task, err := e.Task(id)
		return err == nil && task.Status == want
	}, 2*time.Second, 5*time.Millisecond, "task %s never reached %s", id, want)
	task, err := e.Task(id)
	require.NoError(t, err)
	return task
}

func playlet(id string, kind domain.TriggerKind, actions ...domain.Action) domain.Playlet {
	return domain.Playlet{
		ID:      id,
		Name:    id,
		Enabled: true,
		Trigger: domain.Trigger{Kind: kind},
		Actions: actions,
	}
}

func statuses(task domain.Task) []domain.ActionStatus {
	out := make([]domain.ActionStatus, len(task.Results))
	for i, r := range task.Results {
		out[i] = r.Status
	}
	return out
}
