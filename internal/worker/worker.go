// Package worker runs exam sessions: it accepts room jobs from the gateway,
// connects to each room, waits for the student, and drives one session
// controller per room until the exam closes or the room empties.
//
// Providers and the exam store are expensive to construct, so they are built
// once per process ([Prewarm]) and shared by every session.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coral-ai/proctor/internal/observe"
	"github.com/coral-ai/proctor/pkg/exam"
	"github.com/coral-ai/proctor/pkg/provider/llm"
	"github.com/coral-ai/proctor/pkg/provider/stt"
	"github.com/coral-ai/proctor/pkg/provider/tts"
	"github.com/coral-ai/proctor/pkg/provider/vad"
	"github.com/coral-ai/proctor/pkg/room"
)

const (
	defaultSessionLimit       = 8
	defaultParticipantTimeout = 5 * time.Minute
)

// Config assembles a Worker's shared collaborators.
type Config struct {
	// Platform connects to rooms. Required.
	Platform room.Platform

	// Store resolves exam ids. Required.
	Store exam.Store

	// STT, TTS, and VAD are the speech providers shared by all sessions.
	// Required.
	STT stt.Provider
	TTS tts.Provider
	VAD vad.Engine

	// LLM enables spoken acknowledgements when Acknowledgements is set.
	LLM llm.Provider

	// Voice is the TTS voice profile for all sessions.
	Voice tts.VoiceProfile

	// Language is the BCP-47 recognition language.
	Language string

	// Acknowledgements enables LLM remarks between answers.
	Acknowledgements bool

	// SessionLimit caps concurrently running sessions. Default 8.
	SessionLimit int

	// ParticipantTimeout bounds how long a session waits for the first
	// student to join. Default 5 minutes.
	ParticipantTimeout time.Duration

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	Logger *slog.Logger

	closers []func()
}

// Worker accepts room jobs and runs exam sessions.
type Worker struct {
	cfg Config
	log *slog.Logger
	met *observe.Metrics
}

// New validates cfg and returns a Worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Platform == nil {
		return nil, errors.New("worker: room platform is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("worker: exam store is required")
	}
	if cfg.STT == nil || cfg.TTS == nil || cfg.VAD == nil {
		return nil, errors.New("worker: STT, TTS, and VAD providers are required")
	}
	if cfg.SessionLimit <= 0 {
		cfg.SessionLimit = defaultSessionLimit
	}
	if cfg.ParticipantTimeout <= 0 {
		cfg.ParticipantTimeout = defaultParticipantTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Worker{
		cfg: cfg,
		log: cfg.Logger.With("component", "worker"),
		met: cfg.Metrics,
	}, nil
}

// Run consumes room jobs until ctx is cancelled or jobs closes, then waits
// for all running sessions to finish. A failed session is logged, never
// fatal.
func (w *Worker) Run(ctx context.Context, jobs <-chan string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.SessionLimit)

	w.log.Info("accepting room jobs", "session_limit", w.cfg.SessionLimit)

	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case roomName, ok := <-jobs:
			if !ok {
				return g.Wait()
			}
			g.Go(func() error {
				if err := w.runSession(gctx, roomName); err != nil && !errors.Is(err, context.Canceled) {
					w.log.Error("session failed", "room", roomName, "error", err)
				}
				return nil
			})
		}
	}
}

// Ping reports whether the worker's backing store is reachable. Stores
// without connectivity (mocks) always report healthy.
func (w *Worker) Ping(ctx context.Context) error {
	if p, ok := w.cfg.Store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases prewarmed resources. Only meaningful for workers built with
// [Prewarm]; a worker assembled from caller-owned collaborators closes
// nothing.
func (w *Worker) Close() {
	for _, fn := range w.cfg.closers {
		fn()
	}
}

// waitForParticipant blocks until a remote participant's audio stream is
// available, the timeout elapses, or ctx is cancelled.
func (w *Worker) waitForParticipant(ctx context.Context, rm room.Room, log *slog.Logger) (string, <-chan room.AudioFrame, error) {
	joined := make(chan room.Event, 8)
	rm.OnParticipantChange(func(ev room.Event) {
		log.Info("participant change", "event", ev.Type.String(), "identity", ev.Identity, "name", ev.Name)
		select {
		case joined <- ev:
		default:
		}
	})

	// Someone may already be in the room.
	for identity, ch := range rm.InputStreams() {
		return identity, ch, nil
	}

	timer := time.NewTimer(w.cfg.ParticipantTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-timer.C:
			return "", nil, fmt.Errorf("worker: no participant joined within %s", w.cfg.ParticipantTimeout)
		case ev := <-joined:
			if ev.Type != room.EventJoin {
				continue
			}
			if ch, ok := rm.InputStreams()[ev.Identity]; ok {
				return ev.Identity, ch, nil
			}
		}
	}
}
