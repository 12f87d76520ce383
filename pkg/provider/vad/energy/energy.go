// Package energy implements a short-term-energy VAD engine.
//
// The detector classifies each frame by its RMS energy mapped onto a [0, 1]
// probability, with hysteresis between the speech and silence thresholds and
// a short hangover so brief pauses inside a word do not end the segment. It
// has no model weights to download, which makes it the engine the worker
// loads at prewarm when no external detector is configured.
package energy

import (
	"errors"
	"fmt"
	"math"

	"github.com/coral-ai/proctor/pkg/provider/vad"
)

// Compile-time check that *Engine satisfies vad.Engine.
var _ vad.Engine = (*Engine)(nil)

const (
	// referenceRMS is the RMS amplitude mapped to probability 1.0, roughly
	// -16 dBFS for int16 samples. Louder audio clips to 1.0.
	referenceRMS = 5000.0

	// defaultHangoverFrames is how many sub-threshold frames are tolerated
	// before a speech segment is considered ended (8 × 20 ms = 160 ms).
	defaultHangoverFrames = 8
)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithHangoverFrames sets the number of consecutive sub-threshold frames
// tolerated before a segment ends. Default 8.
func WithHangoverFrames(n int) Option {
	return func(e *Engine) { e.hangoverFrames = n }
}

// Engine is the short-term-energy VAD factory. Load it once per worker
// process; sessions are cheap.
type Engine struct {
	hangoverFrames int
}

// Load creates the engine. The name mirrors model-backed engines where this
// step reads weights from disk; here it only fixes the detector parameters.
func Load(opts ...Option) *Engine {
	e := &Engine{hangoverFrames: defaultHangoverFrames}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.New("energy: SampleRate must be positive")
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, errors.New("energy: FrameSizeMs must be positive")
	}
	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("energy: SpeechThreshold %.2f out of range [0,1]", cfg.SpeechThreshold)
	}
	if cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy: SilenceThreshold %.2f exceeds SpeechThreshold %.2f",
			cfg.SilenceThreshold, cfg.SpeechThreshold)
	}

	return &session{
		cfg:            cfg,
		frameBytes:     cfg.SampleRate * cfg.FrameSizeMs / 1000 * 2, // mono int16
		hangoverFrames: e.hangoverFrames,
	}, nil
}

// session holds the per-stream detection state. Not safe for concurrent use;
// the audio pipeline owns it exclusively.
type session struct {
	cfg            vad.Config
	frameBytes     int
	hangoverFrames int

	inSpeech bool
	hangover int
	closed   bool
}

// ProcessFrame implements vad.SessionHandle.
func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	if s.closed {
		return vad.VADEvent{}, errors.New("energy: session is closed")
	}
	if len(frame) != s.frameBytes {
		return vad.VADEvent{}, fmt.Errorf("energy: frame size %d bytes, want %d", len(frame), s.frameBytes)
	}

	p := probability(frame)
	ev := vad.VADEvent{Probability: p}

	switch {
	case !s.inSpeech && p >= s.cfg.SpeechThreshold:
		s.inSpeech = true
		s.hangover = 0
		ev.Type = vad.VADSpeechStart
	case s.inSpeech && p > s.cfg.SilenceThreshold:
		s.hangover = 0
		ev.Type = vad.VADSpeechContinue
	case s.inSpeech:
		s.hangover++
		if s.hangover >= s.hangoverFrames {
			s.inSpeech = false
			s.hangover = 0
			ev.Type = vad.VADSpeechEnd
		} else {
			ev.Type = vad.VADSpeechContinue
		}
	default:
		ev.Type = vad.VADSilence
	}
	return ev, nil
}

// Reset implements vad.SessionHandle.
func (s *session) Reset() {
	s.inSpeech = false
	s.hangover = 0
}

// Close implements vad.SessionHandle.
func (s *session) Close() error {
	s.closed = true
	return nil
}

// probability maps the frame's RMS amplitude onto [0, 1].
func probability(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := float64(int16(frame[i*2]) | int16(frame[i*2+1])<<8)
		sum += sample * sample
	}
	rms := math.Sqrt(sum / float64(n))
	if rms >= referenceRMS {
		return 1
	}
	return rms / referenceRMS
}
