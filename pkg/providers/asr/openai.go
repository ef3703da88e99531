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

// OpenAIASR calls OpenAI's Whisper transcription endpoint.
type OpenAIASR struct {
	apiKey string
	url    string
	model  string
}

// NewOpenAIASR builds an OpenAI ASR adapter; model defaults to whisper-1.
func NewOpenAIASR(apiKey string, model string) *OpenAIASR {
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAIASR{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/audio/transcriptions",
		model:  model,
	}
}

func (p *OpenAIASR) Name() string { return "openai-asr" }

func (p *OpenAIASR) Transcribe(ctx context.Context, pcm16 []byte, sampleRate int, hintLanguage string) (Result, error) {
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
	if _, err := part.Write(wavData); err != nil {
		return Result{}, err
	}
	writer.Close()

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
		respBody, _ := io.ReadAll(resp.Body)
		return Result{}, fmt.Errorf("openai asr error: %s (status %d)", string(respBody), resp.StatusCode)
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
