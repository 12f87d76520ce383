// Package exam defines the exam data model and the Store abstraction used to
// fetch exams from persistent storage.
//
// An Exam is immutable once loaded: the session controller takes ownership of
// the value for the lifetime of one proctoring session and never mutates it.
package exam

// Defaults applied when a stored exam record omits a field. Only the id is
// mandatory in storage.
const (
	DefaultName       = "Unnamed Exam"
	DefaultDifficulty = "Medium"
)

// Question is a single exam question presented verbatim to the student.
type Question struct {
	// Text is the question as it should be spoken, exactly as authored.
	Text string `json:"text"`
}

// Exam is an ordered set of questions plus presentation metadata.
// Questions order is exam order and must be preserved.
type Exam struct {
	// ID is the 24-character hexadecimal exam identifier.
	ID string `json:"id"`

	// Name is the exam's display name, spoken in the welcome message.
	Name string `json:"name"`

	// Questions in presentation order.
	Questions []Question `json:"questions"`

	// Duration is the allotted exam time in minutes.
	Duration int `json:"duration"`

	// Difficulty is a free-form difficulty label (e.g. "Medium", "Hard").
	Difficulty string `json:"difficulty"`
}

// ValidID reports whether id has the canonical exam identifier format:
// exactly 24 lowercase-or-uppercase hexadecimal characters.
func ValidID(id string) bool {
	if len(id) != 24 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
