package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"magnet-playlets/internal/domain"
	"magnet-playlets/internal/repository"
)

type taskRecord struct {
	ID          string         `json:"id"`
	TorrentID   string         `json:"torrent_id"`
	TorrentName string         `json:"torrent_name"`
	PlayletID   *string        `json:"playlet_id,omitempty"`
	Status      string         `json:"status"`
	Results     []resultRecord `json:"results"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

type resultRecord struct {
	ActionID    string     `json:"action_id"`
	ActionType  string     `json:"action_type"`
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	SkipReason  *string    `json:"skip_reason,omitempty"`
}

type TaskRepository struct {
	db *bolt.DB
}

func NewTaskRepository(db *bolt.DB) repository.TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Init(_ context.Context) error {
	if err := ensureBucket(r.db, tasksBucket); err != nil {
		return fmt.Errorf("create tasks bucket: %w", err)
	}
	return nil
}

func (r *TaskRepository) Save(_ context.Context, task *domain.Task) error {
	rec := toTaskRecord(task)
	return r.db.Update(func(tx *bolt.Tx) error {
		if err := putJSON(tx.Bucket(tasksBucket), []byte(task.ID), rec); err != nil {
			return fmt.Errorf("put task: %w", err)
		}
		return nil
	})
}

func (r *TaskRepository) Delete(_ context.Context, id string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(tasksBucket)
		if b.Get([]byte(id)) == nil {
			return repository.ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

func (r *TaskRepository) List(_ context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(tasksBucket).ForEach(func(_, v []byte) error {
			var rec taskRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode task: %w", err)
			}
			tasks = append(tasks, rec.toDomain())
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func toTaskRecord(t *domain.Task) taskRecord {
	rec := taskRecord{
		ID:          t.ID,
		TorrentID:   t.TorrentID,
		TorrentName: t.TorrentName,
		PlayletID:   t.PlayletID,
		Status:      string(t.Status),
		Results:     make([]resultRecord, len(t.Results)),
		CreatedAt:   t.CreatedAt.UTC(),
		CompletedAt: t.CompletedAt,
	}
	for i, res := range t.Results {
		rec.Results[i] = resultRecord{
			ActionID:    res.ActionID,
			ActionType:  string(res.ActionType),
			Status:      string(res.Status),
			StartedAt:   res.StartedAt,
			CompletedAt: res.CompletedAt,
			Error:       res.Error,
			SkipReason:  res.SkipReason,
		}
	}
	return rec
}

func (rec taskRecord) toDomain() domain.Task {
	t := domain.Task{
		ID:          rec.ID,
		TorrentID:   rec.TorrentID,
		TorrentName: rec.TorrentName,
		PlayletID:   rec.PlayletID,
		Status:      domain.TaskStatus(rec.Status),
		Results:     make([]domain.ActionResult, len(rec.Results)),
		CreatedAt:   rec.CreatedAt.Local(),
		CompletedAt: rec.CompletedAt,
	}
	for i, res := range rec.Results {
		t.Results[i] = domain.ActionResult{
			ActionID:    res.ActionID,
			ActionType:  domain.ActionType(res.ActionType),
			Status:      domain.ActionStatus(res.Status),
			StartedAt:   res.StartedAt,
			CompletedAt: res.CompletedAt,
			Error:       res.Error,
			SkipReason:  res.SkipReason,
		}
	}
	return t
}
