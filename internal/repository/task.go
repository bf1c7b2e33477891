package repository

import (
	"context"
	"errors"

	"magnet-playlets/internal/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// TaskRepository persists tasks together with their action results.
type TaskRepository interface {
	Init(ctx context.Context) error
	// Save inserts or fully replaces the task and its results.
	Save(ctx context.Context, task *domain.Task) error
	Delete(ctx context.Context, id string) error
	// List returns every task, oldest first.
	List(ctx context.Context) ([]domain.Task, error)
}
