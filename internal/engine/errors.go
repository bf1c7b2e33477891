package engine

import "errors"

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrTaskNotWaiting  = errors.New("task is not waiting")
	ErrTaskExecuting   = errors.New("task is executing")
	ErrTaskUnassigned  = errors.New("task has no playlet")
	ErrPlayletNotFound = errors.New("playlet not found")
)
