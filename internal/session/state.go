// Package session implements the exam session controller: the state machine
// that receives exam data over the room's data channel, loads the exam, and
// walks the student through the questions one committed answer at a time.
package session

import "github.com/coral-ai/proctor/pkg/exam"

// State is the per-session exam progress. It is owned by the controller's
// consumer goroutine; nothing else reads or writes it.
//
// Invariants: questionsAsked ≤ currentQuestionIndex ≤ len(exam.Questions);
// examCompleted is set at most once and is terminal; no question is asked
// before dataReceived is set and exam is non-nil.
type State struct {
	exam                 *exam.Exam
	currentQuestionIndex int
	questionsAsked       int
	dataReceived         bool
	examCompleted        bool
}

// Snapshot is a read-only copy of the session state for logging and tests.
type Snapshot struct {
	ExamID               string
	CurrentQuestionIndex int
	QuestionsAsked       int
	DataReceived         bool
	ExamCompleted        bool
}

func (s *State) snapshot() Snapshot {
	snap := Snapshot{
		CurrentQuestionIndex: s.currentQuestionIndex,
		QuestionsAsked:       s.questionsAsked,
		DataReceived:         s.dataReceived,
		ExamCompleted:        s.examCompleted,
	}
	if s.exam != nil {
		snap.ExamID = s.exam.ID
	}
	return snap
}
