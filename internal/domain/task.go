package domain

import "time"

type TaskStatus string

const (
	TaskStatusWaiting   TaskStatus = "waiting"
	TaskStatusExecuting TaskStatus = "executing"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether the status ends a run.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

type ActionStatus string

const (
	ActionStatusPending ActionStatus = "pending"
	ActionStatusRunning ActionStatus = "running"
	ActionStatusDone    ActionStatus = "done"
	ActionStatusFailed  ActionStatus = "failed"
	ActionStatusSkipped ActionStatus = "skipped"
)

// Task is one runtime instance of a playlet's actions bound to a torrent.
type Task struct {
	ID          string
	TorrentID   string
	TorrentName string
	PlayletID   *string
	Status      TaskStatus
	Results     []ActionResult
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// ActionResult records the outcome of one action within a task run.
type ActionResult struct {
	ActionID    string
	ActionType  ActionType
	Status      ActionStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       *string
	SkipReason  *string
}

// Clone returns a deep copy safe to hand out of the engine.
func (t Task) Clone() Task {
	out := t
	if t.PlayletID != nil {
		id := *t.PlayletID
		out.PlayletID = &id
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		out.CompletedAt = &ts
	}
	out.Results = make([]ActionResult, len(t.Results))
	for i, r := range t.Results {
		out.Results[i] = r.clone()
	}
	return out
}

func (r ActionResult) clone() ActionResult {
	out := r
	if r.StartedAt != nil {
		ts := *r.StartedAt
		out.StartedAt = &ts
	}
	if r.CompletedAt != nil {
		ts := *r.CompletedAt
		out.CompletedAt = &ts
	}
	if r.Error != nil {
		msg := *r.Error
		out.Error = &msg
	}
	if r.SkipReason != nil {
		msg := *r.SkipReason
		out.SkipReason = &msg
	}
	return out
}
