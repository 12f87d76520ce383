// Package mock provides an in-memory exam.Store for tests.
package mock

import (
	"context"
	"sync"

	"github.com/coral-ai/proctor/pkg/exam"
)

// Compile-time check that *Store satisfies exam.Store.
var _ exam.Store = (*Store)(nil)

// Store is an in-memory exam.Store. Exams are keyed by id. Set Err to force
// every lookup to fail with that error regardless of contents.
type Store struct {
	mu    sync.Mutex
	exams map[string]*exam.Exam

	// Err, when non-nil, is returned by every GetExamByID call.
	Err error

	// Lookups counts GetExamByID invocations.
	Lookups int
}

// New returns an empty Store.
func New() *Store {
	return &Store{exams: make(map[string]*exam.Exam)}
}

// Put stores e under its ID.
func (s *Store) Put(e *exam.Exam) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exams[e.ID] = e
}

// GetExamByID implements exam.Store.
func (s *Store) GetExamByID(_ context.Context, id string) (*exam.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lookups++

	if s.Err != nil {
		return nil, s.Err
	}
	if !exam.ValidID(id) {
		return nil, exam.ErrInvalidID
	}
	e, ok := s.exams[id]
	if !ok {
		return nil, exam.ErrNotFound
	}
	return e, nil
}
