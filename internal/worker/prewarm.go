package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coral-ai/proctor/internal/config"
	"github.com/coral-ai/proctor/internal/resilience"
	"github.com/coral-ai/proctor/pkg/exam/postgres"
	"github.com/coral-ai/proctor/pkg/provider/llm"
	"github.com/coral-ai/proctor/pkg/provider/tts"
)

// Prewarm builds a Worker from the application configuration: providers come
// from the registry and the exam store opens its Postgres pool, all exactly
// once. Every session served by the returned worker reuses these.
func Prewarm(ctx context.Context, appCfg *config.Config, reg *config.Registry, log *slog.Logger) (*Worker, error) {
	if log == nil {
		log = slog.Default()
	}

	sttProvider, err := reg.CreateSTT(appCfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("worker: prewarm stt: %w", err)
	}
	if fb := appCfg.Providers.STT.Fallbacks; len(fb) > 0 {
		group := resilience.NewSTTFallback(sttProvider, appCfg.Providers.STT.Name, resilience.FallbackConfig{})
		for _, entry := range fb {
			p, err := reg.CreateSTT(entry)
			if err != nil {
				return nil, fmt.Errorf("worker: prewarm stt fallback %q: %w", entry.Name, err)
			}
			group.AddFallback(entry.Name, p)
		}
		sttProvider = group
	}

	ttsProvider, err := reg.CreateTTS(appCfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("worker: prewarm tts: %w", err)
	}
	if fb := appCfg.Providers.TTS.Fallbacks; len(fb) > 0 {
		group := resilience.NewTTSFallback(ttsProvider, appCfg.Providers.TTS.Name, resilience.FallbackConfig{})
		for _, entry := range fb {
			p, err := reg.CreateTTS(entry)
			if err != nil {
				return nil, fmt.Errorf("worker: prewarm tts fallback %q: %w", entry.Name, err)
			}
			group.AddFallback(entry.Name, p)
		}
		ttsProvider = group
	}

	vadEntry := appCfg.Providers.VAD
	if vadEntry.Name == "" {
		vadEntry.Name = "energy"
	}
	vadEngine, err := reg.CreateVAD(vadEntry)
	if err != nil {
		return nil, fmt.Errorf("worker: prewarm vad: %w", err)
	}

	var llmProvider llm.Provider
	if appCfg.Providers.LLM.Name != "" {
		if llmProvider, err = reg.CreateLLM(appCfg.Providers.LLM); err != nil {
			return nil, fmt.Errorf("worker: prewarm llm: %w", err)
		}
		if fb := appCfg.Providers.LLM.Fallbacks; len(fb) > 0 {
			group := resilience.NewLLMFallback(llmProvider, appCfg.Providers.LLM.Name, resilience.FallbackConfig{})
			for _, entry := range fb {
				p, err := reg.CreateLLM(entry)
				if err != nil {
					return nil, fmt.Errorf("worker: prewarm llm fallback %q: %w", entry.Name, err)
				}
				group.AddFallback(entry.Name, p)
			}
			llmProvider = group
		}
	}

	if appCfg.Storage.DatabaseURL == "" {
		return nil, errors.New("worker: storage.database_url or DATABASE_URL must be set")
	}
	store, err := postgres.NewStore(ctx, appCfg.Storage.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("worker: open exam store: %w", err)
	}

	platform, err := reg.CreatePlatform("gateway", appCfg.Gateway)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("worker: create room platform: %w", err)
	}

	log.Info("worker prewarmed",
		"stt", appCfg.Providers.STT.Name,
		"tts", appCfg.Providers.TTS.Name,
		"vad", vadEntry.Name,
		"llm", appCfg.Providers.LLM.Name,
	)

	return New(Config{
		Platform:         platform,
		Store:            store,
		STT:              sttProvider,
		TTS:              ttsProvider,
		VAD:              vadEngine,
		LLM:              llmProvider,
		Voice:            tts.VoiceProfile{ID: appCfg.Session.VoiceID},
		Language:         appCfg.Session.Language,
		Acknowledgements: appCfg.Session.Acknowledgements,
		Logger:           log,
		closers:          []func(){store.Close},
	})
}
