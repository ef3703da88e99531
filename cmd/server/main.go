// Command server runs the wire-protocol session engine: the solo and room
// WebSocket endpoints, backed by whichever ASR/MT/TTS capability adapters
// are selected through the environment.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lokutor-ai/babelroom/internal/server"
	"github.com/lokutor-ai/babelroom/pkg/config"
	"github.com/lokutor-ai/babelroom/pkg/logging"
	"github.com/lokutor-ai/babelroom/pkg/pipeline"
	"github.com/lokutor-ai/babelroom/pkg/providers/asr"
	"github.com/lokutor-ai/babelroom/pkg/providers/mt"
	"github.com/lokutor-ai/babelroom/pkg/providers/tts"
	"github.com/lokutor-ai/babelroom/pkg/registry"
	"github.com/lokutor-ai/babelroom/pkg/session"
	"github.com/lokutor-ai/babelroom/pkg/vad"
)

func main() {
	cfg := config.Load()
	logger := logging.NewStdLogger()

	asrP := buildASR(cfg)
	mtP := buildMT(cfg)

	if cfg.LokutorAPIKey == "" {
		log.Fatal("capability_unavailable: LOKUTOR_API_KEY must be set")
	}
	ttsP := tts.NewLokutorTTS(cfg.LokutorAPIKey)
	defer ttsP.Close()

	if cfg.DumpAudioDir != "" {
		if err := os.MkdirAll(cfg.DumpAudioDir, 0o755); err != nil {
			logger.Warn("audio dump directory unavailable, dumps will be skipped", "dir", cfg.DumpAudioDir, "error", err)
			cfg.DumpAudioDir = ""
		}
	}

	vadFactory := session.VADFactory(func() (vad.Capability, error) {
		return vad.NewEnergyVAD(0.02), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := pipeline.NewWorkerPool(cfg.WorkerConcurrency)
	reg := registry.New(ctx, cfg.RoomCodeLength, pool, cfg, asrP, mtP, ttsP, vadFactory, logger)
	go reg.RunSweeper(ctx, cfg.RoomSweepInterval, cfg.RoomIdleTTL)

	mux := server.NewMux(server.Deps{
		ASR:        asrP,
		MT:         mtP,
		TTS:        ttsP,
		VADFactory: vadFactory,
		Pool:       pool,
		Config:     cfg,
		Registry:   reg,
		Logger:     logger,
	})

	httpServer := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		fmt.Printf("babelroom listening on %s (asr=%s mt=%s)\n", cfg.Addr, cfg.ASRProvider, cfg.MTProvider)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	fmt.Println("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.RoomSweepInterval)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}

func buildASR(cfg config.Config) asr.Provider {
	switch cfg.ASRProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatal("capability_unavailable: OPENAI_API_KEY must be set for openai ASR")
		}
		return asr.NewOpenAIASR(cfg.OpenAIAPIKey, "whisper-1")
	case "deepgram":
		if cfg.DeepgramAPIKey == "" {
			log.Fatal("capability_unavailable: DEEPGRAM_API_KEY must be set for deepgram ASR")
		}
		return asr.NewDeepgramASR(cfg.DeepgramAPIKey)
	case "assemblyai":
		if cfg.AssemblyAIAPIKey == "" {
			log.Fatal("capability_unavailable: ASSEMBLYAI_API_KEY must be set for assemblyai ASR")
		}
		return asr.NewAssemblyAIASR(cfg.AssemblyAIAPIKey)
	case "groq":
		fallthrough
	default:
		if cfg.GroqAPIKey == "" {
			log.Fatal("capability_unavailable: GROQ_API_KEY must be set for groq ASR")
		}
		return asr.NewGroqASR(cfg.GroqAPIKey, "whisper-large-v3-turbo")
	}
}

func buildMT(cfg config.Config) mt.Provider {
	switch cfg.MTProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatal("capability_unavailable: ANTHROPIC_API_KEY must be set for anthropic MT")
		}
		return mt.NewAnthropicMT(cfg.AnthropicAPIKey, "claude-3-5-sonnet-20241022")
	case "google":
		if cfg.GoogleAPIKey == "" {
			log.Fatal("capability_unavailable: GOOGLE_API_KEY must be set for google MT")
		}
		return mt.NewGoogleMT(cfg.GoogleAPIKey, "gemini-1.5-flash")
	case "openai-stream":
		if cfg.OpenAIAPIKey == "" {
			log.Fatal("capability_unavailable: OPENAI_API_KEY must be set for openai-stream MT")
		}
		return mt.NewOpenAIStreamingMT(cfg.OpenAIAPIKey, "gpt-4o-mini")
	case "openai":
		fallthrough
	default:
		if cfg.OpenAIAPIKey == "" {
			log.Fatal("capability_unavailable: OPENAI_API_KEY must be set for openai MT")
		}
		return mt.NewOpenAIMT(cfg.OpenAIAPIKey, "gpt-4o-mini")
	}
}
