// Package deepgram provides a Deepgram Aura-backed TTS provider using the
// Deepgram /v1/speak REST API. It implements the tts.Provider interface.
//
// The speak endpoint operates per request rather than over a persistent
// socket, so SynthesizeStream accumulates incoming text fragments into
// complete sentences and dispatches one HTTP request per sentence, streaming
// each response body onto the audio channel as it downloads.
package deepgram

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/coral-ai/proctor/pkg/provider/tts"
)

const (
	speakEndpoint = "https://api.deepgram.com/v1/speak"

	defaultModel      = "aura-2-thalia-en"
	defaultSampleRate = 16000
	defaultEncoding   = "linear16"

	// audioChunkSize is how many bytes of each response body are forwarded
	// per channel send: 4 KiB ≈ 128 ms of 16 kHz mono PCM.
	audioChunkSize = 4096

	audioChanBuf = 256
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Aura voice model (e.g., "aura-2-thalia-en").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithSampleRate sets the output PCM sample rate in Hz. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements tts.Provider backed by the Deepgram speak API.
type Provider struct {
	apiKey     string
	model      string
	sampleRate int
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		sampleRate: defaultSampleRate,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// SynthesizeStream reads text fragments, assembles them into sentences, and
// synthesises each sentence with one speak request. The returned channel is
// closed when the text channel closes and all pending audio has been emitted,
// or when ctx is cancelled.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	model := p.model
	if voice.ID != "" {
		model = voice.ID
	}

	audioCh := make(chan []byte, audioChanBuf)

	go func() {
		defer close(audioCh)

		var pending strings.Builder
		flush := func() bool {
			sentence := strings.TrimSpace(pending.String())
			pending.Reset()
			if sentence == "" {
				return true
			}
			return p.speak(ctx, model, sentence, audioCh)
		}

		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					flush()
					return
				}
				pending.WriteString(fragment)
				for {
					sentence, rest, found := splitSentence(pending.String())
					if !found {
						break
					}
					pending.Reset()
					pending.WriteString(rest)
					if !p.speak(ctx, model, sentence, audioCh) {
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, nil
}

// speak performs one synthesis request and streams the PCM response body onto
// audioCh. Returns false when the caller should stop (cancellation or a
// request failure).
func (p *Provider) speak(ctx context.Context, model, sentence string, audioCh chan<- []byte) bool {
	body, err := json.Marshal(map[string]string{"text": sentence})
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.buildURL(model), bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return false
	}

	r := bufio.NewReader(resp.Body)
	for {
		chunk := make([]byte, audioChunkSize)
		n, err := io.ReadFull(r, chunk)
		if n > 0 {
			select {
			case audioCh <- chunk[:n]:
			case <-ctx.Done():
				return false
			}
		}
		if err != nil {
			return true
		}
	}
}

// buildURL constructs the speak endpoint URL for the given voice model.
func (p *Provider) buildURL(model string) string {
	q := url.Values{}
	q.Set("model", model)
	q.Set("encoding", defaultEncoding)
	q.Set("sample_rate", strconv.Itoa(p.sampleRate))
	q.Set("container", "none")
	return speakEndpoint + "?" + q.Encode()
}

// ListVoices returns the Aura voice catalogue. Deepgram does not expose a
// voice listing API, so the catalogue is static.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	models := []struct{ id, name, gender string }{
		{"aura-2-thalia-en", "Thalia", "female"},
		{"aura-2-orion-en", "Orion", "male"},
		{"aura-2-luna-en", "Luna", "female"},
		{"aura-2-arcas-en", "Arcas", "male"},
		{"aura-2-asteria-en", "Asteria", "female"},
	}
	profiles := make([]tts.VoiceProfile, 0, len(models))
	for _, m := range models {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       m.id,
			Name:     m.name,
			Provider: "deepgram",
			Metadata: map[string]string{"gender": m.gender, "language": "en"},
		})
	}
	return profiles, nil
}

// splitSentence splits s at the first sentence boundary (., !, ? followed by
// whitespace or end of string). Returns the sentence, the remainder, and
// whether a boundary was found.
func splitSentence(s string) (sentence, rest string, found bool) {
	for i, r := range s {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i + 1
		if end == len(s) {
			return strings.TrimSpace(s[:end]), "", true
		}
		next := rune(s[end])
		if unicode.IsSpace(next) {
			return strings.TrimSpace(s[:end]), strings.TrimLeft(s[end:], " \t\n"), true
		}
	}
	return "", s, false
}
