package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/coral-ai/proctor/internal/prompts"
	"github.com/coral-ai/proctor/internal/session"
	"github.com/coral-ai/proctor/pkg/speech"
)

// runSession proctors one exam in one room: connect, wait for the student,
// start the speech pipeline, and drive the session controller until the exam
// closes, the room empties, or ctx is cancelled.
func (w *Worker) runSession(ctx context.Context, roomName string) error {
	sessionID := uuid.NewString()
	log := w.log.With("session_id", sessionID, "room", roomName)

	log.Info("connecting to room")
	rm, err := w.cfg.Platform.Connect(ctx, roomName)
	if err != nil {
		return fmt.Errorf("worker: connect %q: %w", roomName, err)
	}
	defer rm.Disconnect()

	w.met.ActiveSessions.Add(ctx, 1)
	defer w.met.ActiveSessions.Add(ctx, -1)

	identity, input, err := w.waitForParticipant(ctx, rm, log)
	if err != nil {
		return fmt.Errorf("worker: wait for participant: %w", err)
	}
	log.Info("starting session for participant", "identity", identity)

	agent, err := speech.NewPipelineAgent(ctx, speech.Config{
		STT:          w.cfg.STT,
		TTS:          w.cfg.TTS,
		VAD:          w.cfg.VAD,
		LLM:          w.cfg.LLM,
		Voice:        w.cfg.Voice,
		Input:        input,
		Output:       rm.OutputStream(),
		Language:     w.cfg.Language,
		Instructions: prompts.Persona,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("worker: start speech pipeline: %w", err)
	}
	defer agent.Close()

	ctrl, err := session.New(session.Config{
		Agent:            agent,
		Store:            w.cfg.Store,
		Acknowledgements: w.cfg.Acknowledgements,
		Metrics:          w.met,
		Logger:           log,
	})
	if err != nil {
		return fmt.Errorf("worker: build controller: %w", err)
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Inbound triggers fan into the controller's event queue. The room's
	// channels close on disconnect, ending the session.
	roomClosed := make(chan struct{})
	go func() {
		defer close(roomClosed)
		for pkt := range rm.Data() {
			ctrl.HandleData(pkt)
		}
	}()
	go func() {
		for u := range agent.Utterances() {
			ctrl.HandleUtteranceCommitted(u)
		}
	}()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		ctrl.Run(sctx)
	}()

	select {
	case <-ctrl.Done():
		log.Info("exam completed, leaving room")
	case <-roomClosed:
		log.Info("room closed before exam completion")
	case <-sctx.Done():
	}

	cancel()
	<-runDone
	return nil
}
