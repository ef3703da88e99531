// Package config loads the environment knobs the session engine exposes,
// following the same .env-plus-process-environment convention as the
// original CLI entrypoint this module descends from.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment knob named in the wire/interface contract:
// ASR model size, silence window, partial minimum duration, room code
// length, idle TTL, and worker concurrency.
type Config struct {
	// Addr is the HTTP listen address for the wire endpoint.
	Addr string

	// SilenceWindow is the VoiceSegmenter hangover before speech_end fires.
	SilenceWindow time.Duration

	// PartialMinDuration is how long a participant must be speaking before
	// the pipeline submits a partial-ASR job.
	PartialMinDuration time.Duration

	// RoomCodeLength is the number of characters in an allocated room code.
	RoomCodeLength int

	// RoomIdleTTL is how long an idle room survives before the sweeper
	// expires it.
	RoomIdleTTL time.Duration

	// RoomSweepInterval is how often the registry sweeper runs.
	RoomSweepInterval time.Duration

	// WorkerConcurrency sizes the shared capability worker pool.
	WorkerConcurrency int

	// OutboundQueueSize bounds the per-connection outbound frame queue
	// before a connection is considered slow and closed.
	OutboundQueueSize int

	// ASRTimeout, MTTimeout, TTSTimeout are the per-stage budgets from the
	// concurrency model: ASR final 15s, MT 5s, TTS 10s by default.
	ASRTimeout time.Duration
	MTTimeout  time.Duration
	TTSTimeout time.Duration

	// ASRModelSize is read from the environment; no ASR adapter consumes
	// it, and cmd/server chooses the model names itself.
	ASRModelSize string

	// PartialTranslation gates whether MT runs synchronously alongside every
	// partial transcript (open question #3 in the design notes — default
	// off, cheaper and lower partial latency).
	PartialTranslation bool

	// MicLockMargin and MicLockMin/Max bound the computed mic-lock duration
	// hint: audio length + margin, clamped to [Min, Max].
	MicLockMargin time.Duration
	MicLockMin    time.Duration
	MicLockMax    time.Duration

	// DumpAudioDir, when non-empty, enables the optional on-close container
	// dump, named <room code>-host.webm / <room code>-guest.webm, or
	// solo.webm for a solo session.
	DumpAudioDir string

	// Provider selection and credentials.
	ASRProvider string
	MTProvider  string

	DeepgramAPIKey   string
	GroqAPIKey       string
	OpenAIAPIKey     string
	AssemblyAIAPIKey string
	AnthropicAPIKey  string
	GoogleAPIKey     string
	LokutorAPIKey    string
}

// DefaultConfig returns the baseline configuration matching the budgets and
// windows named in the concurrency and external-interface sections.
func DefaultConfig() Config {
	return Config{
		Addr:               ":8080",
		SilenceWindow:      500 * time.Millisecond,
		PartialMinDuration: 1 * time.Second,
		RoomCodeLength:     6,
		RoomIdleTTL:        10 * time.Minute,
		RoomSweepInterval:  60 * time.Second,
		WorkerConcurrency:  8,
		OutboundQueueSize:  64,
		ASRTimeout:         15 * time.Second,
		MTTimeout:          5 * time.Second,
		TTSTimeout:         10 * time.Second,
		ASRModelSize:       "small",
		PartialTranslation: false,
		MicLockMargin:      300 * time.Millisecond,
		MicLockMin:         1 * time.Second,
		MicLockMax:         4 * time.Second,
		ASRProvider:        "groq",
		MTProvider:         "openai",
	}
}

// Load reads a .env file if present (missing file is not fatal, matching
// the CLI entrypoint's own tolerance) and overlays process environment
// variables onto DefaultConfig().
func Load() Config {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if v := os.Getenv("BABELROOM_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("BABELROOM_SILENCE_WINDOW_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SilenceWindow = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("BABELROOM_PARTIAL_MIN_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PartialMinDuration = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("BABELROOM_ROOM_CODE_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RoomCodeLength = n
		}
	}
	if v := os.Getenv("BABELROOM_ROOM_IDLE_TTL_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RoomIdleTTL = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("BABELROOM_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerConcurrency = n
		}
	}
	if v := os.Getenv("BABELROOM_ASR_MODEL_SIZE"); v != "" {
		cfg.ASRModelSize = v
	}
	if v := os.Getenv("BABELROOM_PARTIAL_TRANSLATION"); v != "" {
		cfg.PartialTranslation = v == "true" || v == "1"
	}
	if v := os.Getenv("BABELROOM_DUMP_AUDIO_DIR"); v != "" {
		cfg.DumpAudioDir = v
	}
	if v := os.Getenv("ASR_PROVIDER"); v != "" {
		cfg.ASRProvider = v
	}
	if v := os.Getenv("MT_PROVIDER"); v != "" {
		cfg.MTProvider = v
	}

	cfg.DeepgramAPIKey = os.Getenv("DEEPGRAM_API_KEY")
	cfg.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.AssemblyAIAPIKey = os.Getenv("ASSEMBLYAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	cfg.LokutorAPIKey = os.Getenv("LOKUTOR_API_KEY")

	return cfg
}
