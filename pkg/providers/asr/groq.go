package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/lokutor-ai/babelroom/pkg/audio"
)

// GroqASR calls Groq's Whisper-compatible transcription endpoint.
type GroqASR struct {
	apiKey string
	url    string
	model  string
}

// NewGroqASR builds a Groq ASR adapter; model defaults to
// whisper-large-v3-turbo when empty.
func NewGroqASR(apiKey string, model string) *GroqASR {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &GroqASR{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/audio/transcriptions",
		model:  model,
	}
}

func (p *GroqASR) Name() string { return "groq-asr" }

func (p *GroqASR) Transcribe(ctx context.Context, pcm16 []byte, sampleRate int, hintLanguage string) (Result, error) {
	wavData := audio.NewWavBuffer(pcm16, sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", p.model); err != nil {
		return Result{}, err
	}
	if hintLanguage != "" {
		if err := writer.WriteField("language", hintLanguage); err != nil {
			return Result{}, err
		}
	}

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Result{}, err
	}
	if _, err := io.Copy(part, bytes.NewReader(wavData)); err != nil {
		return Result{}, err
	}
	if err := writer.Close(); err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.url, body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return Result{}, fmt.Errorf("groq asr error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, err
	}

	lang := result.Language
	if lang == "" {
		lang = hintLanguage
	}
	return Result{Text: result.Text, Language: lang}, nil
}
