package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"magnet-playlets/internal/domain"
	"magnet-playlets/internal/repository"
)

const (
	createTasksTable = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	torrent_id TEXT NOT NULL,
	torrent_name TEXT NOT NULL DEFAULT '',
	playlet_id TEXT NULL,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	completed_at DATETIME NULL
);
`
	createActionResultsTable = `
CREATE TABLE IF NOT EXISTS action_results (
	task_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	action_id TEXT NOT NULL,
	action_type TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at DATETIME NULL,
	completed_at DATETIME NULL,
	error TEXT NULL,
	skip_reason TEXT NULL,
	PRIMARY KEY (task_id, position),
	FOREIGN KEY(task_id) REFERENCES tasks(id) ON DELETE CASCADE
);
`
)

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) repository.TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTasksTable); err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, createActionResultsTable); err != nil {
		return fmt.Errorf("create action_results table: %w", err)
	}
	return nil
}

func (r *TaskRepository) Save(ctx context.Context, task *domain.Task) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // safe no-op on commit

	_, err = tx.ExecContext(ctx, `
INSERT INTO tasks (id, torrent_id, torrent_name, playlet_id, status, created_at, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	torrent_id=excluded.torrent_id,
	torrent_name=excluded.torrent_name,
	playlet_id=excluded.playlet_id,
	status=excluded.status,
	created_at=excluded.created_at,
	completed_at=excluded.completed_at`,
		task.ID,
		task.TorrentID,
		task.TorrentName,
		nullString(task.PlayletID),
		string(task.Status),
		task.CreatedAt.UTC(),
		nullTime(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM action_results WHERE task_id=?`, task.ID); err != nil {
		return fmt.Errorf("delete action results: %w", err)
	}

	for i, res := range task.Results {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO action_results (task_id, position, action_id, action_type, status, started_at, completed_at, error, skip_reason)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID,
			i,
			res.ActionID,
			string(res.ActionType),
			string(res.Status),
			nullTime(res.StartedAt),
			nullTime(res.CompletedAt),
			nullString(res.Error),
			nullString(res.SkipReason),
		); err != nil {
			return fmt.Errorf("insert action result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit task save: %w", err)
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *TaskRepository) List(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, torrent_id, torrent_name, playlet_id, status, created_at, completed_at
FROM tasks
ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	index := make(map[string]int)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		index[task.ID] = len(tasks)
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results, err := r.db.QueryContext(ctx, `
SELECT task_id, action_id, action_type, status, started_at, completed_at, error, skip_reason
FROM action_results
ORDER BY task_id, position`)
	if err != nil {
		return nil, fmt.Errorf("query action results: %w", err)
	}
	defer results.Close()

	for results.Next() {
		taskID, res, err := scanActionResult(results)
		if err != nil {
			return nil, err
		}
		if i, ok := index[taskID]; ok {
			tasks[i].Results = append(tasks[i].Results, res)
		}
	}
	return tasks, results.Err()
}

func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*domain.Task, error) {
	var (
		task        domain.Task
		playletID   sql.NullString
		status      string
		createdAt   time.Time
		completedAt sql.NullTime
	)

	if err := scanner.Scan(
		&task.ID,
		&task.TorrentID,
		&task.TorrentName,
		&playletID,
		&status,
		&createdAt,
		&completedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	task.Status = domain.TaskStatus(status)
	task.CreatedAt = createdAt.Local()
	task.PlayletID = stringPtr(playletID)
	task.CompletedAt = timePtr(completedAt)
	task.Results = []domain.ActionResult{}
	return &task, nil
}

func scanActionResult(scanner interface {
	Scan(dest ...any) error
}) (string, domain.ActionResult, error) {
	var (
		taskID      string
		res         domain.ActionResult
		actionType  string
		status      string
		startedAt   sql.NullTime
		completedAt sql.NullTime
		errMsg      sql.NullString
		skipReason  sql.NullString
	)
	if err := scanner.Scan(
		&taskID,
		&res.ActionID,
		&actionType,
		&status,
		&startedAt,
		&completedAt,
		&errMsg,
		&skipReason,
	); err != nil {
		return "", res, fmt.Errorf("scan action result: %w", err)
	}
	res.ActionType = domain.ActionType(actionType)
	res.Status = domain.ActionStatus(status)
	res.StartedAt = timePtr(startedAt)
	res.CompletedAt = timePtr(completedAt)
	res.Error = stringPtr(errMsg)
	res.SkipReason = stringPtr(skipReason)
	return taskID, res, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.Local()
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
