package mt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// GoogleMT translates via Gemini's generateContent endpoint.
type GoogleMT struct {
	apiKey string
	url    string
	model  string
}

func NewGoogleMT(apiKey string, model string) *GoogleMT {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GoogleMT{
		apiKey: apiKey,
		url:    "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":generateContent",
		model:  model,
	}
}

func (p *GoogleMT) Name() string { return "google-mt" }

func (p *GoogleMT) Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error) {
	prompt := buildPrompt(text, sourceLanguage, targetLanguage)

	type part struct {
		Text string `json:"text"`
	}
	type geminiMessage struct {
		Role  string `json:"role"`
		Parts []part `json:"parts"`
	}

	var contents []geminiMessage
	for _, m := range prompt {
		role := m.Role
		if role == "system" || role == "assistant" {
			role = "user"
		}
		contents = append(contents, geminiMessage{Role: role, Parts: []part{{Text: m.Content}}})
	}

	payload := map[string]interface{}{"contents": contents}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.url+"?key="+p.apiKey, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("google mt error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from google mt")
	}

	return result.Candidates[0].Content.Parts[0].Text, nil
}
