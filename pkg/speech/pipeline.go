package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coral-ai/proctor/pkg/provider/llm"
	"github.com/coral-ai/proctor/pkg/provider/stt"
	"github.com/coral-ai/proctor/pkg/provider/tts"
	"github.com/coral-ai/proctor/pkg/provider/vad"
	"github.com/coral-ai/proctor/pkg/room"
)

const (
	defaultSampleRate      = 48000
	defaultFrameDurationMs = 20

	// Endpointing bounds: an utterance commits after the student has been
	// quiet for at least minEndpointingDelay following a final transcript,
	// and no later than maxEndpointingDelay after the first final arrived.
	defaultMinEndpointingDelay = 500 * time.Millisecond
	defaultMaxEndpointingDelay = 5 * time.Second

	defaultSpeechThreshold  = 0.5
	defaultSilenceThreshold = 0.35

	utteranceBuffer = 16
)

// Config assembles the providers and streams a PipelineAgent runs on.
type Config struct {
	// STT, TTS, and VAD are required.
	STT stt.Provider
	TTS tts.Provider
	VAD vad.Engine

	// LLM, when set, enables conversational remarks via Remark.
	LLM llm.Provider

	// Voice is the TTS voice profile used for all Say calls.
	Voice tts.VoiceProfile

	// Input carries the student's decoded PCM frames from the room.
	Input <-chan room.AudioFrame

	// Output receives the agent's synthesized PCM frames for playback.
	Output chan<- room.AudioFrame

	// Language is the BCP-47 recognition language. Empty means auto-detect.
	Language string

	// Instructions is the system prompt given to the LLM for remarks.
	Instructions string

	// SampleRate and FrameDurationMs describe the room audio format.
	// Defaults: 48000 Hz, 20 ms.
	SampleRate      int
	FrameDurationMs int

	// MinEndpointingDelay and MaxEndpointingDelay bound how long the agent
	// waits after a final transcript before committing the utterance.
	// Defaults: 500 ms and 5 s.
	MinEndpointingDelay time.Duration
	MaxEndpointingDelay time.Duration

	// SpeechThreshold and SilenceThreshold tune the VAD gate.
	SpeechThreshold  float64
	SilenceThreshold float64

	Logger *slog.Logger
}

// PipelineAgent implements Agent by chaining VAD gating, streaming STT,
// endpointing, and streaming TTS over a room's audio channels.
type PipelineAgent struct {
	cfg Config
	log *slog.Logger

	sttSession stt.SessionHandle
	vadSession vad.SessionHandle

	utterances chan Utterance

	// bargeGen increments on every detected speech start. Say snapshots it
	// and stops playback when it moves while interruptions are allowed.
	bargeGen atomic.Int64

	sayMu sync.Mutex

	histMu  sync.Mutex
	history []llm.Message

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var (
	_ Agent        = (*PipelineAgent)(nil)
	_ Acknowledger = (*PipelineAgent)(nil)
)

// NewPipelineAgent opens provider sessions and starts the utterance pipeline.
// The ctx governs session establishment only; the agent runs until Close.
func NewPipelineAgent(ctx context.Context, cfg Config) (*PipelineAgent, error) {
	if cfg.STT == nil || cfg.TTS == nil || cfg.VAD == nil {
		return nil, fmt.Errorf("speech: STT, TTS, and VAD providers are required")
	}
	if cfg.Input == nil {
		return nil, fmt.Errorf("speech: input stream is required")
	}
	if cfg.Output == nil {
		return nil, fmt.Errorf("speech: output stream is required")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.FrameDurationMs <= 0 {
		cfg.FrameDurationMs = defaultFrameDurationMs
	}
	if cfg.MinEndpointingDelay <= 0 {
		cfg.MinEndpointingDelay = defaultMinEndpointingDelay
	}
	if cfg.MaxEndpointingDelay <= 0 {
		cfg.MaxEndpointingDelay = defaultMaxEndpointingDelay
	}
	if cfg.SpeechThreshold <= 0 {
		cfg.SpeechThreshold = defaultSpeechThreshold
	}
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = defaultSilenceThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	vadSession, err := cfg.VAD.NewSession(vad.Config{
		SampleRate:       cfg.SampleRate,
		FrameSizeMs:      cfg.FrameDurationMs,
		SpeechThreshold:  cfg.SpeechThreshold,
		SilenceThreshold: cfg.SilenceThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("speech: open VAD session: %w", err)
	}

	sttSession, err := cfg.STT.StartStream(ctx, stt.StreamConfig{
		SampleRate: cfg.SampleRate,
		Channels:   1,
		Language:   cfg.Language,
	})
	if err != nil {
		vadSession.Close()
		return nil, fmt.Errorf("speech: open STT session: %w", err)
	}

	a := &PipelineAgent{
		cfg:        cfg,
		log:        cfg.Logger.With("component", "speech"),
		sttSession: sttSession,
		vadSession: vadSession,
		utterances: make(chan Utterance, utteranceBuffer),
		done:       make(chan struct{}),
	}

	a.wg.Add(3)
	go a.captureLoop()
	go a.commitLoop()
	go a.drainPartials()

	return a, nil
}

// Utterances implements Agent.
func (a *PipelineAgent) Utterances() <-chan Utterance {
	return a.utterances
}

// Say implements Agent. It synthesizes text with the configured voice and
// paces the audio into the room output at real-time frame rate. Calls are
// serialized; a second Say blocks until the first finishes.
func (a *PipelineAgent) Say(ctx context.Context, text string, allowInterruptions bool) error {
	a.sayMu.Lock()
	defer a.sayMu.Unlock()

	select {
	case <-a.done:
		return fmt.Errorf("speech: say: agent closed")
	default:
	}

	sayCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	audio, err := a.cfg.TTS.SynthesizeStream(sayCtx, textCh, a.cfg.Voice)
	if err != nil {
		return fmt.Errorf("speech: synthesize: %w", err)
	}

	gen := a.bargeGen.Load()
	frameBytes := a.cfg.SampleRate * a.cfg.FrameDurationMs / 1000 * 2
	frameDur := time.Duration(a.cfg.FrameDurationMs) * time.Millisecond

	ticker := time.NewTicker(frameDur)
	defer ticker.Stop()

	var (
		pending     []byte
		elapsed     time.Duration
		interrupted bool
	)

	emit := func(frame []byte) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.done:
			return fmt.Errorf("speech: say: agent closed")
		case <-ticker.C:
		}
		if allowInterruptions && a.bargeGen.Load() != gen {
			interrupted = true
			return nil
		}
		out := room.AudioFrame{
			Data:       frame,
			SampleRate: a.cfg.SampleRate,
			Channels:   1,
			Timestamp:  elapsed,
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.done:
			return fmt.Errorf("speech: say: agent closed")
		case a.cfg.Output <- out:
		}
		elapsed += frameDur
		return nil
	}

	for chunk := range audio {
		pending = append(pending, chunk...)
		for len(pending) >= frameBytes && !interrupted {
			frame := make([]byte, frameBytes)
			copy(frame, pending[:frameBytes])
			pending = pending[frameBytes:]
			if err := emit(frame); err != nil {
				cancel()
				for range audio {
				}
				return err
			}
		}
		if interrupted {
			break
		}
	}
	if interrupted {
		cancel()
		for range audio {
		}
		a.log.Debug("playback interrupted by speech", "text_len", len(text))
	} else if len(pending) > 0 {
		// Pad the tail to a full frame so the transport keeps its cadence.
		frame := make([]byte, frameBytes)
		copy(frame, pending)
		if err := emit(frame); err != nil {
			return err
		}
	}

	a.appendHistory(llm.Message{Role: "assistant", Content: text})
	return nil
}

// Remark implements Acknowledger. It asks the LLM for a one-sentence spoken
// reaction to the conversation so far. Returns an empty string when no LLM is
// configured.
func (a *PipelineAgent) Remark(ctx context.Context) (string, error) {
	if a.cfg.LLM == nil {
		return "", nil
	}

	a.histMu.Lock()
	msgs := make([]llm.Message, len(a.history))
	copy(msgs, a.history)
	a.histMu.Unlock()

	resp, err := a.cfg.LLM.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: a.cfg.Instructions,
		Messages:     msgs,
		Temperature:  0.7,
		MaxTokens:    60,
	})
	if err != nil {
		return "", fmt.Errorf("speech: remark: %w", err)
	}
	if resp == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Content), nil
}

// Close implements Agent.
func (a *PipelineAgent) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
		err = errors.Join(a.sttSession.Close(), a.vadSession.Close())
		close(a.utterances)
	})
	return err
}

// captureLoop gates room input frames through VAD and forwards speech frames
// to the STT session.
func (a *PipelineAgent) captureLoop() {
	defer a.wg.Done()

	for {
		select {
		case <-a.done:
			return
		case frame, ok := <-a.cfg.Input:
			if !ok {
				return
			}
			ev, err := a.vadSession.ProcessFrame(frame.Data)
			if err != nil {
				a.log.Warn("vad frame rejected", "error", err)
				continue
			}
			if ev.Type == vad.VADSpeechStart {
				a.bargeGen.Add(1)
			}
			if !ev.Type.IsSpeech() {
				continue
			}
			if err := a.sttSession.SendAudio(frame.Data); err != nil {
				a.log.Warn("stt send failed", "error", err)
			}
		}
	}
}

// commitLoop merges final transcripts into utterances using endpointing: a
// commit fires once the student has been quiet for MinEndpointingDelay after
// the latest final, or MaxEndpointingDelay after the first final of the turn.
func (a *PipelineAgent) commitLoop() {
	defer a.wg.Done()

	finals := a.sttSession.Finals()

	var (
		parts   []string
		confSum float64
		minT    *time.Timer
		maxT    *time.Timer
	)

	stopTimers := func() {
		if minT != nil {
			minT.Stop()
			minT = nil
		}
		if maxT != nil {
			maxT.Stop()
			maxT = nil
		}
	}

	commit := func() {
		stopTimers()
		if len(parts) == 0 {
			return
		}
		u := Utterance{
			Text:       strings.Join(parts, " "),
			Confidence: confSum / float64(len(parts)),
		}
		parts = nil
		confSum = 0

		a.appendHistory(llm.Message{Role: "user", Content: u.Text})
		select {
		case a.utterances <- u:
		default:
			a.log.Warn("utterance dropped, consumer backlogged", "text_len", len(u.Text))
		}
	}

	for {
		var minC, maxC <-chan time.Time
		if minT != nil {
			minC = minT.C
		}
		if maxT != nil {
			maxC = maxT.C
		}

		select {
		case <-a.done:
			return
		case tr, ok := <-finals:
			if !ok {
				commit()
				return
			}
			text := strings.TrimSpace(tr.Text)
			if text == "" {
				continue
			}
			parts = append(parts, text)
			confSum += tr.Confidence
			if minT != nil {
				minT.Stop()
			}
			minT = time.NewTimer(a.cfg.MinEndpointingDelay)
			if maxT == nil {
				maxT = time.NewTimer(a.cfg.MaxEndpointingDelay)
			}
		case <-minC:
			commit()
		case <-maxC:
			commit()
		}
	}
}

// drainPartials keeps the partial transcript channel flowing so the STT
// session never blocks. Partials are only logged.
func (a *PipelineAgent) drainPartials() {
	defer a.wg.Done()

	partials := a.sttSession.Partials()
	for {
		select {
		case <-a.done:
			return
		case tr, ok := <-partials:
			if !ok {
				return
			}
			a.log.Debug("partial transcript", "text", tr.Text, "confidence", tr.Confidence)
		}
	}
}

func (a *PipelineAgent) appendHistory(m llm.Message) {
	a.histMu.Lock()
	a.history = append(a.history, m)
	a.histMu.Unlock()
}
