package exam

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations. The session controller
// logs which kind occurred but speaks a single generic failure message for
// all of them — the student never hears the difference between a bad id and
// an unreachable backend.
var (
	// ErrInvalidID means the exam id does not satisfy [ValidID].
	// Implementations must check the id format before touching the backend.
	ErrInvalidID = errors.New("exam: invalid exam id")

	// ErrNotFound means the backend was reachable but holds no exam with
	// the requested id.
	ErrNotFound = errors.New("exam: not found")

	// ErrUnavailable means the backend could not be queried (connectivity
	// fault, timeout, protocol error).
	ErrUnavailable = errors.New("exam: storage unavailable")
)

// Store is the read-only exam lookup abstraction.
//
// Implementations must be safe for concurrent use: one store is opened per
// worker process and shared by all room sessions.
type Store interface {
	// GetExamByID returns the exam with the given id, or one of
	// [ErrInvalidID], [ErrNotFound], [ErrUnavailable] (possibly wrapped).
	// No write operations exist; exams are authored elsewhere.
	GetExamByID(ctx context.Context, id string) (*Exam, error)
}
