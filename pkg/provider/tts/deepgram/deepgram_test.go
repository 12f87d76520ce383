package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coral-ai/proctor/pkg/provider/tts"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("expected model %q, got %q", defaultModel, p.model)
	}
	if p.sampleRate != defaultSampleRate {
		t.Errorf("expected sampleRate %d, got %d", defaultSampleRate, p.sampleRate)
	}
}

func TestBuildURL(t *testing.T) {
	p, err := New("key", WithSampleRate(48000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	u, err := url.Parse(p.buildURL("aura-2-orion-en"))
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()
	if q.Get("model") != "aura-2-orion-en" {
		t.Errorf("model = %q", q.Get("model"))
	}
	if q.Get("encoding") != "linear16" {
		t.Errorf("encoding = %q", q.Get("encoding"))
	}
	if q.Get("sample_rate") != "48000" {
		t.Errorf("sample_rate = %q", q.Get("sample_rate"))
	}
	if q.Get("container") != "none" {
		t.Errorf("container = %q", q.Get("container"))
	}
}

func TestSplitSentence(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		sentence string
		rest     string
		found    bool
	}{
		{"no boundary", "What is photosynthesis", "", "What is photosynthesis", false},
		{"period at end", "First question.", "First question.", "", true},
		{"period mid-string", "One done. Two pending", "One done.", "Two pending", true},
		{"question mark", "Ready? Go", "Ready?", "Go", true},
		{"decimal not split", "Score is 3.5 points", "", "Score is 3.5 points", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, r, found := splitSentence(tt.in)
			if found != tt.found || s != tt.sentence || r != tt.rest {
				t.Errorf("splitSentence(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.in, s, r, found, tt.sentence, tt.rest, tt.found)
			}
		})
	}
}

func TestSynthesizeStream(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.Write([]byte("pcm-audio-bytes"))
	}))
	defer srv.Close()

	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Point the provider at the test server by replacing its transport.
	p.httpClient = srv.Client()
	p.httpClient.Transport = rewriteHost(srv.URL)

	textCh := make(chan string, 2)
	textCh <- "Name the powerhouse of the cell."
	close(textCh)

	audioCh, err := p.SynthesizeStream(context.Background(), textCh, tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	var total []byte
	for chunk := range audioCh {
		total = append(total, chunk...)
	}
	if string(total) != "pcm-audio-bytes" {
		t.Errorf("audio = %q", total)
	}
	if gotAuth != "Token test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if !strings.Contains(gotBody, "powerhouse") {
		t.Errorf("body = %q", gotBody)
	}
}

func TestSynthesizeStreamCancelled(t *testing.T) {
	p, err := New("key", WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	textCh := make(chan string)
	audioCh, err := p.SynthesizeStream(ctx, textCh, tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	select {
	case _, ok := <-audioCh:
		if ok {
			t.Error("expected closed channel, got audio")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("audio channel not closed after cancellation")
	}
}

func TestListVoices(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) == 0 {
		t.Fatal("expected at least one voice")
	}
	for _, v := range voices {
		if v.Provider != "deepgram" {
			t.Errorf("voice %q provider = %q", v.ID, v.Provider)
		}
	}
}

// rewriteHost redirects every request to the test server regardless of the
// original URL.
type rewriteHost string

func (h rewriteHost) RoundTrip(req *http.Request) (*http.Response, error) {
	target, err := url.Parse(string(h))
	if err != nil {
		return nil, err
	}
	req.URL.Scheme = target.Scheme
	req.URL.Host = target.Host
	return http.DefaultTransport.RoundTrip(req)
}
