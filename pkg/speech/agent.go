// Package speech implements the spoken channel of an exam session: it turns
// provider primitives (VAD, STT, TTS, optionally an LLM) into a single Agent
// that can speak to the room and report committed student utterances.
package speech

import "context"

// Utterance is one committed student answer: the final transcript text after
// endpointing decided the student stopped talking.
type Utterance struct {
	// Text is the full transcript of the utterance.
	Text string

	// Confidence is the transcript confidence reported by the STT provider,
	// averaged across the merged finals. Zero when unreported.
	Confidence float64
}

// Agent is the spoken interface the session controller drives.
//
// Implementations must be safe for concurrent use: Say may be called from the
// controller goroutine while the utterance pipeline runs in the background.
type Agent interface {
	// Say synthesizes text and plays it into the room, returning when
	// playback has finished or ctx is cancelled. When allowInterruptions is
	// true, playback stops early if the student starts speaking.
	Say(ctx context.Context, text string, allowInterruptions bool) error

	// Utterances returns the channel of committed student utterances. The
	// channel is closed when the agent shuts down.
	Utterances() <-chan Utterance

	// Close stops the pipeline and releases provider sessions. Calling Close
	// more than once is safe.
	Close() error
}

// Acknowledger is an optional extension of Agent: agents that carry an LLM
// can phrase a short spoken remark on the conversation so far. The controller
// type-asserts for it and skips acknowledgements when absent.
type Acknowledger interface {
	// Remark returns a one-sentence reaction to the most recent student
	// answer, suitable for speaking before the next question.
	Remark(ctx context.Context) (string, error)
}
