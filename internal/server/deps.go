package server

import (
	"net/http"

	"github.com/lokutor-ai/babelroom/pkg/config"
	"github.com/lokutor-ai/babelroom/pkg/logging"
	"github.com/lokutor-ai/babelroom/pkg/pipeline"
	"github.com/lokutor-ai/babelroom/pkg/providers/asr"
	"github.com/lokutor-ai/babelroom/pkg/providers/mt"
	"github.com/lokutor-ai/babelroom/pkg/providers/tts"
	"github.com/lokutor-ai/babelroom/pkg/registry"
	"github.com/lokutor-ai/babelroom/pkg/session"
)

// Deps are the capability adapters and shared infrastructure every
// connection handler needs. cmd/server builds one Deps at startup and wires
// it into NewMux; nothing here is connection-specific.
type Deps struct {
	ASR        asr.Provider
	MT         mt.Provider
	TTS        tts.Provider
	VADFactory session.VADFactory
	Pool       *pipeline.WorkerPool
	Config     config.Config
	Registry   *registry.RoomRegistry
	Logger     logging.Logger
}

// NewMux builds the HTTP mux exposing the solo and room wire endpoints.
func NewMux(deps Deps) *http.ServeMux {
	h := &handler{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/audio", h.handleAudio)
	mux.HandleFunc("/ws/session", h.handleSession)
	return mux
}

type handler struct {
	deps Deps
}

var validLanguages = map[string]bool{"en": true, "es": true, "pt": true}
