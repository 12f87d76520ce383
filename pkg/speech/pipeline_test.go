package speech_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coral-ai/proctor/pkg/provider/llm"
	llmmock "github.com/coral-ai/proctor/pkg/provider/llm/mock"
	"github.com/coral-ai/proctor/pkg/provider/stt"
	sttmock "github.com/coral-ai/proctor/pkg/provider/stt/mock"
	ttsmock "github.com/coral-ai/proctor/pkg/provider/tts/mock"
	"github.com/coral-ai/proctor/pkg/provider/vad"
	vadmock "github.com/coral-ai/proctor/pkg/provider/vad/mock"
	"github.com/coral-ai/proctor/pkg/room"
	"github.com/coral-ai/proctor/pkg/speech"
)

// harness bundles the mocks behind a running PipelineAgent.
type harness struct {
	agent  *speech.PipelineAgent
	stt    *sttmock.Session
	tts    *ttsmock.Provider
	vadSes *vadmock.Session
	input  chan room.AudioFrame
	output chan room.AudioFrame
}

func newHarness(t *testing.T, mutate func(*speech.Config)) *harness {
	t.Helper()

	h := &harness{
		stt: &sttmock.Session{
			PartialsCh: make(chan stt.Transcript, 16),
			FinalsCh:   make(chan stt.Transcript, 16),
		},
		tts:    &ttsmock.Provider{},
		vadSes: &vadmock.Session{},
		input:  make(chan room.AudioFrame, 16),
		output: make(chan room.AudioFrame, 64),
	}

	cfg := speech.Config{
		STT:    &sttmock.Provider{Session: h.stt},
		TTS:    h.tts,
		VAD:    &vadmock.Engine{Session: h.vadSes},
		Input:  h.input,
		Output: h.output,

		// Tiny audio format keeps Say tests fast: 4-byte frames at 20 ms.
		SampleRate:      100,
		FrameDurationMs: 20,

		MinEndpointingDelay: 30 * time.Millisecond,
		MaxEndpointingDelay: 500 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	agent, err := speech.NewPipelineAgent(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewPipelineAgent: %v", err)
	}
	t.Cleanup(func() { agent.Close() })
	h.agent = agent
	return h
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewPipelineAgentValidation(t *testing.T) {
	input := make(chan room.AudioFrame)
	output := make(chan room.AudioFrame)
	base := speech.Config{
		STT:    &sttmock.Provider{},
		TTS:    &ttsmock.Provider{},
		VAD:    &vadmock.Engine{},
		Input:  input,
		Output: output,
	}

	tests := []struct {
		name   string
		mutate func(*speech.Config)
	}{
		{"missing stt", func(c *speech.Config) { c.STT = nil }},
		{"missing tts", func(c *speech.Config) { c.TTS = nil }},
		{"missing vad", func(c *speech.Config) { c.VAD = nil }},
		{"missing input", func(c *speech.Config) { c.Input = nil }},
		{"missing output", func(c *speech.Config) { c.Output = nil }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if _, err := speech.NewPipelineAgent(context.Background(), cfg); err == nil {
				t.Error("expected configuration error")
			}
		})
	}
}

func TestVADGateForwardsOnlySpeech(t *testing.T) {
	h := newHarness(t, func(c *speech.Config) {
		c.VAD = &vadmock.Engine{Session: &vadmock.Session{
			Script: []vad.VADEvent{
				{Type: vad.VADSilence},
				{Type: vad.VADSpeechStart, Probability: 0.9},
				{Type: vad.VADSpeechContinue, Probability: 0.8},
				{Type: vad.VADSpeechEnd, Probability: 0.4},
				{Type: vad.VADSilence},
			},
		}}
	})

	frame := room.AudioFrame{Data: []byte{1, 2, 3, 4}, SampleRate: 100, Channels: 1}
	for i := 0; i < 5; i++ {
		h.input <- frame
	}

	// Silence frames must not reach the STT session.
	waitFor(t, time.Second, "speech frames to be forwarded", func() bool {
		return h.stt.SendAudioCallCount() == 3
	})
	time.Sleep(20 * time.Millisecond)
	if got := h.stt.SendAudioCallCount(); got != 3 {
		t.Errorf("SendAudio calls = %d, want 3", got)
	}
}

func TestUtteranceCommitsAfterQuietPeriod(t *testing.T) {
	h := newHarness(t, nil)

	h.stt.FinalsCh <- stt.Transcript{Text: "Photosynthesis converts", IsFinal: true, Confidence: 0.9}
	h.stt.FinalsCh <- stt.Transcript{Text: "light into chemical energy.", IsFinal: true, Confidence: 0.7}

	select {
	case u := <-h.agent.Utterances():
		if u.Text != "Photosynthesis converts light into chemical energy." {
			t.Errorf("utterance text = %q", u.Text)
		}
		if u.Confidence < 0.79 || u.Confidence > 0.81 {
			t.Errorf("confidence = %v, want ~0.8", u.Confidence)
		}
	case <-time.After(time.Second):
		t.Fatal("no utterance committed")
	}

	// A quiet channel must not produce further commits.
	select {
	case u := <-h.agent.Utterances():
		t.Fatalf("unexpected second utterance %q", u.Text)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUtteranceCommitsAtMaxDelay(t *testing.T) {
	h := newHarness(t, func(c *speech.Config) {
		c.MinEndpointingDelay = time.Hour
		c.MaxEndpointingDelay = 50 * time.Millisecond
	})

	h.stt.FinalsCh <- stt.Transcript{Text: "An unusually long pause follows.", IsFinal: true, Confidence: 1}

	select {
	case u := <-h.agent.Utterances():
		if u.Text != "An unusually long pause follows." {
			t.Errorf("utterance text = %q", u.Text)
		}
	case <-time.After(time.Second):
		t.Fatal("max endpointing delay did not force a commit")
	}
}

func TestEmptyFinalsAreIgnored(t *testing.T) {
	h := newHarness(t, nil)

	h.stt.FinalsCh <- stt.Transcript{Text: "   ", IsFinal: true}
	h.stt.FinalsCh <- stt.Transcript{Text: "", IsFinal: true}

	select {
	case u := <-h.agent.Utterances():
		t.Fatalf("unexpected utterance %q from blank finals", u.Text)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSaySynthesizesAndPacesFrames(t *testing.T) {
	h := newHarness(t, nil)

	// The mock echoes drained text as audio: 8 bytes at 4 bytes per frame.
	if err := h.agent.Say(context.Background(), "abcdefgh", false); err != nil {
		t.Fatalf("Say: %v", err)
	}

	spoken := h.tts.SpokenTexts()
	if len(spoken) != 1 || spoken[0] != "abcdefgh" {
		t.Fatalf("spoken texts = %v", spoken)
	}

	var frames []room.AudioFrame
	for len(h.output) > 0 {
		frames = append(frames, <-h.output)
	}
	if len(frames) != 2 {
		t.Fatalf("emitted %d frames, want 2", len(frames))
	}
	for i, f := range frames {
		if len(f.Data) != 4 {
			t.Errorf("frame %d size = %d, want 4", i, len(f.Data))
		}
		if f.SampleRate != 100 || f.Channels != 1 {
			t.Errorf("frame %d format = %d Hz / %d ch", i, f.SampleRate, f.Channels)
		}
	}
	if string(frames[0].Data)+string(frames[1].Data) != "abcdefgh" {
		t.Error("frame payload does not round-trip the synthesized audio")
	}
}

func TestSayPadsFinalPartialFrame(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.agent.Say(context.Background(), "abcdef", false); err != nil {
		t.Fatalf("Say: %v", err)
	}

	var frames [][]byte
	for len(h.output) > 0 {
		frames = append(frames, (<-h.output).Data)
	}
	if len(frames) != 2 {
		t.Fatalf("emitted %d frames, want 2", len(frames))
	}
	want := []byte{'e', 'f', 0, 0}
	if string(frames[1]) != string(want) {
		t.Errorf("padded frame = %v, want %v", frames[1], want)
	}
}

func TestSayPropagatesSynthesisError(t *testing.T) {
	synthErr := errors.New("voice unavailable")
	h := newHarness(t, func(c *speech.Config) {
		c.TTS = &ttsmock.Provider{SynthesizeErr: synthErr}
	})

	if err := h.agent.Say(context.Background(), "hello", false); !errors.Is(err, synthErr) {
		t.Errorf("Say error = %v, want wrapped %v", err, synthErr)
	}
}

func TestSayAfterCloseFails(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.agent.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.agent.Say(context.Background(), "too late", false); err == nil {
		t.Error("expected error from Say after Close")
	}
}

func TestCloseIsIdempotentAndReleasesSessions(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.agent.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.agent.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if h.stt.CloseCallCount != 1 {
		t.Errorf("stt Close calls = %d, want 1", h.stt.CloseCallCount)
	}
	if h.vadSes.CloseCallCount != 1 {
		t.Errorf("vad Close calls = %d, want 1", h.vadSes.CloseCallCount)
	}

	if _, open := <-h.agent.Utterances(); open {
		t.Error("utterance channel still open after Close")
	}
}

func TestRemarkUsesConversationHistory(t *testing.T) {
	mockLLM := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "  Good answer, let's continue.  "},
	}
	h := newHarness(t, func(c *speech.Config) {
		c.LLM = mockLLM
		c.Instructions = "You are an oral examiner."
	})

	if err := h.agent.Say(context.Background(), "Question 1: Define osmosis.", false); err != nil {
		t.Fatalf("Say: %v", err)
	}
	for len(h.output) > 0 {
		<-h.output
	}

	remark, err := h.agent.Remark(context.Background())
	if err != nil {
		t.Fatalf("Remark: %v", err)
	}
	if remark != "Good answer, let's continue." {
		t.Errorf("remark = %q", remark)
	}

	if len(mockLLM.CompleteCalls) != 1 {
		t.Fatalf("Complete calls = %d, want 1", len(mockLLM.CompleteCalls))
	}
	req := mockLLM.CompleteCalls[0].Req
	if req.SystemPrompt != "You are an oral examiner." {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "assistant" {
		t.Fatalf("history = %+v, want one assistant message", req.Messages)
	}
	if req.Messages[0].Content != "Question 1: Define osmosis." {
		t.Errorf("history content = %q", req.Messages[0].Content)
	}
}

func TestRemarkWithoutLLMIsEmpty(t *testing.T) {
	h := newHarness(t, nil)

	remark, err := h.agent.Remark(context.Background())
	if err != nil {
		t.Fatalf("Remark: %v", err)
	}
	if remark != "" {
		t.Errorf("remark = %q, want empty without an LLM", remark)
	}
}
