package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AssemblyAIASR uploads PCM, submits a transcription job, and polls until
// it completes.
type AssemblyAIASR struct {
	apiKey string
}

func NewAssemblyAIASR(apiKey string) *AssemblyAIASR {
	return &AssemblyAIASR{apiKey: apiKey}
}

func (p *AssemblyAIASR) Name() string { return "assemblyai-asr" }

func (p *AssemblyAIASR) Transcribe(ctx context.Context, pcm16 []byte, sampleRate int, hintLanguage string) (Result, error) {
	uploadURL, err := p.upload(ctx, pcm16)
	if err != nil {
		return Result{}, err
	}

	transcriptID, err := p.submit(ctx, uploadURL, hintLanguage)
	if err != nil {
		return Result{}, err
	}

	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(500 * time.Millisecond):
			text, lang, status, err := p.getTranscript(ctx, transcriptID)
			if err != nil {
				return Result{}, err
			}
			if status == "completed" {
				if lang == "" {
					lang = hintLanguage
				}
				return Result{Text: text, Language: lang}, nil
			}
			if status == "error" {
				return Result{}, fmt.Errorf("assemblyai asr: transcription failed")
			}
		}
	}
}

func (p *AssemblyAIASR) upload(ctx context.Context, pcm16 []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.assemblyai.com/v2/upload", bytes.NewReader(pcm16))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		UploadURL string `json:"upload_url"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	return result.UploadURL, nil
}

func (p *AssemblyAIASR) submit(ctx context.Context, uploadURL string, hintLanguage string) (string, error) {
	payload := map[string]interface{}{
		"audio_url":       uploadURL,
		"language_detection": hintLanguage == "",
	}
	if hintLanguage != "" {
		payload["language_code"] = hintLanguage
	}

	body, _ := json.Marshal(payload)
	req, _ := http.NewRequestWithContext(ctx, "POST", "https://api.assemblyai.com/v2/transcript", bytes.NewReader(body))
	req.Header.Set("Authorization", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		ID string `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	return result.ID, nil
}

func (p *AssemblyAIASR) getTranscript(ctx context.Context, id string) (text, lang, status string, err error) {
	req, _ := http.NewRequestWithContext(ctx, "GET", "https://api.assemblyai.com/v2/transcript/"+id, nil)
	req.Header.Set("Authorization", p.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", "", err
	}
	defer resp.Body.Close()

	var result struct {
		Status       string `json:"status"`
		Text         string `json:"text"`
		LanguageCode string `json:"language_code"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	return result.Text, result.LanguageCode, result.Status, nil
}
