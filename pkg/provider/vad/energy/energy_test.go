package energy

import (
	"testing"

	"github.com/coral-ai/proctor/pkg/provider/vad"
)

func newTestSession(t *testing.T, opts ...Option) vad.SessionHandle {
	t.Helper()
	sess, err := Load(opts...).NewSession(vad.Config{
		SampleRate:       16000,
		FrameSizeMs:      20,
		SpeechThreshold:  0.5,
		SilenceThreshold: 0.35,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

// frame builds a 20 ms 16 kHz mono frame of a constant amplitude square wave.
func frame(amplitude int16) []byte {
	const samples = 16000 * 20 / 1000
	b := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		s := amplitude
		if i%2 == 1 {
			s = -amplitude
		}
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

func TestSessionValidation(t *testing.T) {
	t.Parallel()

	eng := Load()
	cases := []struct {
		name string
		cfg  vad.Config
	}{
		{"zero sample rate", vad.Config{FrameSizeMs: 20, SpeechThreshold: 0.5}},
		{"zero frame size", vad.Config{SampleRate: 16000, SpeechThreshold: 0.5}},
		{"threshold above one", vad.Config{SampleRate: 16000, FrameSizeMs: 20, SpeechThreshold: 1.5}},
		{"inverted thresholds", vad.Config{SampleRate: 16000, FrameSizeMs: 20, SpeechThreshold: 0.3, SilenceThreshold: 0.6}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := eng.NewSession(tc.cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}

func TestSpeechSegmentLifecycle(t *testing.T) {
	t.Parallel()

	sess := newTestSession(t, WithHangoverFrames(2))

	ev, err := sess.ProcessFrame(frame(0))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != vad.VADSilence {
		t.Fatalf("quiet frame: got %v", ev.Type)
	}

	ev, _ = sess.ProcessFrame(frame(8000))
	if ev.Type != vad.VADSpeechStart {
		t.Fatalf("loud frame: got %v, want SPEECH_START", ev.Type)
	}

	ev, _ = sess.ProcessFrame(frame(8000))
	if ev.Type != vad.VADSpeechContinue {
		t.Fatalf("sustained frame: got %v, want SPEECH_CONTINUE", ev.Type)
	}

	// First quiet frame is inside the hangover window.
	ev, _ = sess.ProcessFrame(frame(0))
	if ev.Type != vad.VADSpeechContinue {
		t.Fatalf("hangover frame: got %v, want SPEECH_CONTINUE", ev.Type)
	}

	ev, _ = sess.ProcessFrame(frame(0))
	if ev.Type != vad.VADSpeechEnd {
		t.Fatalf("post-hangover frame: got %v, want SPEECH_END", ev.Type)
	}

	ev, _ = sess.ProcessFrame(frame(0))
	if ev.Type != vad.VADSilence {
		t.Fatalf("after segment end: got %v, want SILENCE", ev.Type)
	}
}

func TestResetClearsSegment(t *testing.T) {
	t.Parallel()

	sess := newTestSession(t)
	if _, err := sess.ProcessFrame(frame(8000)); err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	sess.Reset()

	ev, _ := sess.ProcessFrame(frame(8000))
	if ev.Type != vad.VADSpeechStart {
		t.Fatalf("after reset: got %v, want SPEECH_START", ev.Type)
	}
}

func TestFrameSizeMismatch(t *testing.T) {
	t.Parallel()

	sess := newTestSession(t)
	if _, err := sess.ProcessFrame(make([]byte, 10)); err == nil {
		t.Fatal("expected frame size error")
	}
}

func TestClosedSession(t *testing.T) {
	t.Parallel()

	sess := newTestSession(t)
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := sess.ProcessFrame(frame(0)); err == nil {
		t.Fatal("expected error after Close")
	}
}
