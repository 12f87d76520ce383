package anyllm

import (
	"testing"

	"github.com/coral-ai/proctor/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty provider name")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestNew_UnsupportedProvider(t *testing.T) {
	if _, err := New("skynet", "t-800"); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestCreateBackend_KnownProviders(t *testing.T) {
	names := []string{
		"openai", "anthropic", "gemini", "ollama", "deepseek",
		"mistral", "groq", "llamacpp", "llamafile",
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			backend, err := createBackend(name)
			if err != nil {
				t.Fatalf("createBackend(%q): %v", name, err)
			}
			if backend == nil {
				t.Fatalf("createBackend(%q) returned nil backend", name)
			}
		})
	}
}

func TestCreateBackend_CaseInsensitive(t *testing.T) {
	if _, err := createBackend("OpenAI"); err != nil {
		t.Errorf("expected case-insensitive provider match, got %v", err)
	}
}

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "claude-3-5-sonnet-latest"}

	req := llm.CompletionRequest{
		SystemPrompt: "Keep replies short.",
		Messages: []llm.Message{
			{Role: "user", Content: "Define entropy."},
			{Role: "assistant", Content: "Noted."},
		},
		Temperature: 0.2,
		MaxTokens:   48,
	}

	params := p.buildParams(req)
	if params.Model != "claude-3-5-sonnet-latest" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("expected 3 messages (system + 2), got %d", len(params.Messages))
	}
	if params.Messages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", params.Messages[0].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.2 {
		t.Errorf("temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 48 {
		t.Errorf("max tokens = %v", params.MaxTokens)
	}
}

func TestBuildParams_NoSystemPrompt(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if len(params.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(params.Messages))
	}
	if params.Temperature != nil {
		t.Error("expected nil temperature for zero value")
	}
}
