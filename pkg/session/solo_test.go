package session

import (
	"context"
	"testing"
	"time"

	"github.com/lokutor-ai/babelroom/pkg/config"
	"github.com/lokutor-ai/babelroom/pkg/pipeline"
	"github.com/lokutor-ai/babelroom/pkg/providers/mt"
	"github.com/lokutor-ai/babelroom/pkg/vad"
	"github.com/lokutor-ai/babelroom/pkg/wire"
)

type stubMT struct{ translated string }

func (m *stubMT) Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error) {
	return m.translated, nil
}
func (m *stubMT) Name() string { return "stub-mt" }

func TestSoloSession_FinalDeliversSpeakerSelf(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SilenceWindow = 50 * time.Millisecond
	pool := pipeline.NewWorkerPool(2)

	sender := &recordingSender{}
	solo, err := NewSoloSession(context.Background(), sender, "es", "en", false, "",
		&stubASR{}, &stubMT{translated: "hello"}, nil, vad.NewEnergyVAD(0.5), pool, cfg)
	if err != nil {
		t.Fatalf("unexpected error building solo session: %v", err)
	}
	defer solo.Close()

	// Drive the pipeline directly (bypassing decode) since handleFinal's
	// wiring is what's under test here, not AudioDecoder framing (covered
	// in pkg/audio).
	solo.handleFinal(pipeline.Result{
		Utterance: pipeline.Utterance{
			FinalText:        "hola",
			DetectedLanguage: "es",
			Translation:      "hello",
			TargetLanguage:   "en",
			DurationMS:       500,
		},
	})

	msg, ok := sender.last()
	if !ok {
		t.Fatal("expected a message to have been sent")
	}
	if msg.Type != wire.TypeTranscript || msg.Speaker != wire.SpeakerSelf {
		t.Fatalf("expected a self transcript, got %+v", msg)
	}
	if msg.Text != "hola" || msg.Translation != "hello" {
		t.Fatalf("unexpected transcript contents: %+v", msg)
	}
}

func TestSoloSession_ErrorDeliversErrorMessage(t *testing.T) {
	cfg := config.DefaultConfig()
	pool := pipeline.NewWorkerPool(2)
	sender := &recordingSender{}

	solo, err := NewSoloSession(context.Background(), sender, "en", "", false, "",
		&stubASR{}, nil, nil, vad.NewEnergyVAD(0.5), pool, cfg)
	if err != nil {
		t.Fatalf("unexpected error building solo session: %v", err)
	}
	defer solo.Close()

	solo.handleError(pipeline.ErrKindCapabilityTimeout, errTest)

	msg, ok := sender.last()
	if !ok || msg.Type != wire.TypeError || msg.ErrorKind != pipeline.ErrKindCapabilityTimeout {
		t.Fatalf("expected an error message, got %+v (ok=%v)", msg, ok)
	}
}

var errTest = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
