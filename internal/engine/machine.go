package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"magnet-playlets/internal/domain"
	"magnet-playlets/internal/events"
	"magnet-playlets/internal/repository"
)

// Machine owns every task and is the only place task state changes. Each
// mutation is persisted and published before the method returns.
type Machine struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
	order []string

	repo   repository.TaskRepository
	bus    *events.Bus
	logger *logrus.Logger
	now    func() time.Time
}

func NewMachine(repo repository.TaskRepository, bus *events.Bus, logger *logrus.Logger) *Machine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Machine{
		tasks:  make(map[string]*domain.Task),
		repo:   repo,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// Load replaces the in-memory state with the persisted tasks. Tasks that were
// executing when the process stopped go back to waiting, and their running
// actions back to pending. It returns the ids of waiting tasks that have a
// playlet, in creation order.
func (m *Machine) Load(ctx context.Context) ([]string, error) {
	stored, err := m.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks = make(map[string]*domain.Task, len(stored))
	m.order = m.order[:0]
	var waiting []string
	for i := range stored {
		task := stored[i]
		if task.Status == domain.TaskStatusExecuting {
			task.Status = domain.TaskStatusWaiting
			for j := range task.Results {
				if task.Results[j].Status == domain.ActionStatusRunning {
					task.Results[j].Status = domain.ActionStatusPending
					task.Results[j].StartedAt = nil
				}
			}
			m.logger.WithField("task_id", task.ID).Info("recovered interrupted task")
			m.persist(&task)
		}
		m.tasks[task.ID] = &task
		m.order = append(m.order, task.ID)
		if task.Status == domain.TaskStatusWaiting && task.PlayletID != nil {
			waiting = append(waiting, task.ID)
		}
	}
	return waiting, nil
}

// Create adds a waiting task with one pending result per playlet action. A
// nil playlet creates an unassigned task.
func (m *Machine) Create(torrentID, torrentName string, playlet *domain.Playlet) domain.Task {
	task := &domain.Task{
		ID:          uuid.NewString(),
		TorrentID:   torrentID,
		TorrentName: torrentName,
		Status:      domain.TaskStatusWaiting,
		CreatedAt:   m.now(),
	}
	assign(task, playlet)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
	m.order = append(m.order, task.ID)
	m.commit(events.TaskCreated, task)
	return task.Clone()
}

// Dispatch moves a waiting task to executing.
func (m *Machine) Dispatch(id string) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, ErrTaskNotFound
	}
	if task.Status != domain.TaskStatusWaiting {
		return domain.Task{}, ErrTaskNotWaiting
	}
	if task.PlayletID == nil {
		return domain.Task{}, ErrTaskUnassigned
	}
	task.Status = domain.TaskStatusExecuting
	task.CompletedAt = nil
	m.commit(events.TaskUpdated, task)
	return task.Clone(), nil
}

// BeginAction marks the result at index as running.
func (m *Machine) BeginAction(id string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, task, err := m.result(id, index)
	if err != nil {
		return err
	}
	now := m.now()
	res.Status = domain.ActionStatusRunning
	res.StartedAt = &now
	res.CompletedAt = nil
	res.Error = nil
	res.SkipReason = nil
	m.commit(events.TaskUpdated, task)
	return nil
}

// CompleteAction records the terminal outcome of the result at index. The
// message is stored as the error for failures and as the reason for skips.
func (m *Machine) CompleteAction(id string, index int, status domain.ActionStatus, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, task, err := m.result(id, index)
	if err != nil {
		return err
	}
	now := m.now()
	res.Status = status
	res.CompletedAt = &now
	res.Error = nil
	res.SkipReason = nil
	switch status {
	case domain.ActionStatusFailed:
		res.Error = &message
	case domain.ActionStatusSkipped:
		res.SkipReason = &message
	}
	m.commit(events.TaskUpdated, task)
	return nil
}

// Finalize derives the terminal task status from its results: failed when
// any result failed, completed otherwise.
func (m *Machine) Finalize(id string) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, ErrTaskNotFound
	}
	task.Status = domain.TaskStatusCompleted
	for _, r := range task.Results {
		if r.Status == domain.ActionStatusFailed {
			task.Status = domain.TaskStatusFailed
			break
		}
	}
	now := m.now()
	task.CompletedAt = &now
	m.commit(events.TaskUpdated, task)
	return task.Clone(), nil
}

// Retry resets failed and skipped results to pending and returns the task to
// waiting. Done results are kept. A completed task with nothing to retry is
// left untouched; the returned bool reports whether the task changed.
func (m *Machine) Retry(id string) (domain.Task, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, false, ErrTaskNotFound
	}
	if task.Status == domain.TaskStatusExecuting {
		return domain.Task{}, false, ErrTaskExecuting
	}

	reset := 0
	for i := range task.Results {
		r := &task.Results[i]
		if r.Status == domain.ActionStatusFailed || r.Status == domain.ActionStatusSkipped {
			*r = domain.ActionResult{ActionID: r.ActionID, ActionType: r.ActionType, Status: domain.ActionStatusPending}
			reset++
		}
	}
	if reset == 0 && task.Status != domain.TaskStatusFailed {
		return task.Clone(), false, nil
	}

	task.Status = domain.TaskStatusWaiting
	task.CompletedAt = nil
	m.commit(events.TaskUpdated, task)
	return task.Clone(), true, nil
}

// Reassign binds a waiting task to another playlet, rebuilding its results.
func (m *Machine) Reassign(id string, playlet *domain.Playlet) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, ErrTaskNotFound
	}
	if task.Status != domain.TaskStatusWaiting {
		return domain.Task{}, ErrTaskNotWaiting
	}
	assign(task, playlet)
	m.commit(events.TaskUpdated, task)
	return task.Clone(), nil
}

// Remove deletes a task in any state. A running executor for it finishes but
// its outcome is discarded.
func (m *Machine) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	m.drop(task)
	return nil
}

// ClearCompleted removes every completed task and returns how many went.
func (m *Machine) ClearCompleted() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var doomed []*domain.Task
	for _, id := range m.order {
		if t := m.tasks[id]; t.Status == domain.TaskStatusCompleted {
			doomed = append(doomed, t)
		}
	}
	for _, t := range doomed {
		m.drop(t)
	}
	return len(doomed)
}

// List returns copies of all tasks in creation order.
func (m *Machine) List() []domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Task, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.tasks[id].Clone())
	}
	return out
}

// Get returns a copy of the task with the given id.
func (m *Machine) Get(id string) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, ErrTaskNotFound
	}
	return task.Clone(), nil
}

// CountExecuting returns the number of tasks in the executing state.
func (m *Machine) CountExecuting() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.tasks {
		if t.Status == domain.TaskStatusExecuting {
			n++
		}
	}
	return n
}

func (m *Machine) result(id string, index int) (*domain.ActionResult, *domain.Task, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, nil, ErrTaskNotFound
	}
	if index < 0 || index >= len(task.Results) {
		return nil, nil, fmt.Errorf("action result %d out of range", index)
	}
	return &task.Results[index], task, nil
}

func (m *Machine) drop(task *domain.Task) {
	delete(m.tasks, task.ID)
	for i, id := range m.order {
		if id == task.ID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if err := m.repo.Delete(context.Background(), task.ID); err != nil {
		m.logger.WithField("task_id", task.ID).Errorf("delete task: %v", err)
	}
	if m.bus != nil {
		m.bus.Publish(events.TaskRemoved, domain.Task{ID: task.ID})
	}
}

// commit must be called with mu held.
func (m *Machine) commit(t events.Type, task *domain.Task) {
	m.persist(task)
	if m.bus != nil {
		m.bus.Publish(t, task.Clone())
	}
}

func (m *Machine) persist(task *domain.Task) {
	if err := m.repo.Save(context.Background(), task); err != nil {
		m.logger.WithField("task_id", task.ID).Errorf("persist task: %v", err)
	}
}

func assign(task *domain.Task, playlet *domain.Playlet) {
	task.PlayletID = nil
	task.Results = []domain.ActionResult{}
	if playlet == nil {
		return
	}
	id := playlet.ID
	task.PlayletID = &id
	for _, a := range playlet.Actions {
		task.Results = append(task.Results, domain.ActionResult{
			ActionID:   a.ID,
			ActionType: a.Type,
			Status:     domain.ActionStatusPending,
		})
	}
}
