package executor

import (
	"errors"
	"fmt"

	"magnet-playlets/internal/domain"
)

// SkipError marks an action that is well formed but cannot run because
// configuration is missing. It never fails a task.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return e.Reason
}

// Skipf builds a SkipError with a formatted reason.
func Skipf(format string, args ...any) error {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

// SkipReason reports whether err (or anything it wraps) is a skip.
func SkipReason(err error) (string, bool) {
	var skip *SkipError
	if errors.As(err, &skip) {
		return skip.Reason, true
	}
	return "", false
}

func missingOptions(t domain.ActionType) error {
	return fmt.Errorf("%s action missing options", t)
}
