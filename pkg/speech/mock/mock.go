// Package mock provides a test double for the speech.Agent interface.
//
// Use Agent in session controller tests to record what the agent was asked to
// speak and to feed scripted student utterances without running the audio
// pipeline.
package mock

import (
	"context"
	"sync"

	"github.com/coral-ai/proctor/pkg/speech"
)

// SayCall records a single invocation of Say.
type SayCall struct {
	// Text is the text passed to Say.
	Text string
	// AllowInterruptions is the flag passed to Say.
	AllowInterruptions bool
}

// Agent is a mock implementation of speech.Agent.
//
// Feed student answers through UtterancesCh; the controller under test
// receives them from Utterances(). Every Say call is recorded and can be
// inspected with SayCalls or SpokenTexts.
type Agent struct {
	mu sync.Mutex

	// UtterancesCh is the channel returned by Utterances. The test owns the
	// channel: send scripted utterances on it and close it to simulate
	// pipeline shutdown.
	UtterancesCh chan speech.Utterance

	// SayErr, if non-nil, is returned by every Say call.
	SayErr error

	// RemarkText and RemarkErr are returned by Remark.
	RemarkText string
	RemarkErr  error

	// CloseErr is returned by Close.
	CloseErr error

	sayCalls       []SayCall
	remarkCalls    int
	closeCallCount int
}

// NewAgent returns a mock agent with a buffered utterance channel.
func NewAgent() *Agent {
	return &Agent{UtterancesCh: make(chan speech.Utterance, 16)}
}

// Say records the call and returns SayErr.
func (a *Agent) Say(_ context.Context, text string, allowInterruptions bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sayCalls = append(a.sayCalls, SayCall{Text: text, AllowInterruptions: allowInterruptions})
	return a.SayErr
}

// Utterances returns UtterancesCh.
func (a *Agent) Utterances() <-chan speech.Utterance {
	return a.UtterancesCh
}

// Remark records the call and returns RemarkText, RemarkErr.
func (a *Agent) Remark(context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.remarkCalls++
	return a.RemarkText, a.RemarkErr
}

// Close records the call and returns CloseErr. The utterance channel is left
// open; tests that need it closed do so themselves.
func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeCallCount++
	return a.CloseErr
}

// SayCalls returns a copy of all recorded Say invocations.
func (a *Agent) SayCalls() []SayCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]SayCall, len(a.sayCalls))
	copy(out, a.sayCalls)
	return out
}

// SpokenTexts returns just the texts of all recorded Say invocations.
func (a *Agent) SpokenTexts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.sayCalls))
	for i, c := range a.sayCalls {
		out[i] = c.Text
	}
	return out
}

// RemarkCallCount returns how many times Remark was invoked.
func (a *Agent) RemarkCallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remarkCalls
}

// CloseCallCount returns how many times Close was invoked.
func (a *Agent) CloseCallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeCallCount
}

// Ensure Agent implements the interfaces at compile time.
var (
	_ speech.Agent        = (*Agent)(nil)
	_ speech.Acknowledger = (*Agent)(nil)
)
