package mt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// AnthropicMT translates via Claude's messages endpoint.
type AnthropicMT struct {
	apiKey string
	url    string
	model  string
}

func NewAnthropicMT(apiKey string, model string) *AnthropicMT {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &AnthropicMT{
		apiKey: apiKey,
		url:    "https://api.anthropic.com/v1/messages",
		model:  model,
	}
}

func (p *AnthropicMT) Name() string { return "anthropic-mt" }

func (p *AnthropicMT) Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error) {
	prompt := buildPrompt(text, sourceLanguage, targetLanguage)

	var system string
	var anthropicMessages []map[string]string
	for _, m := range prompt {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		anthropicMessages = append(anthropicMessages, map[string]string{
			"role":    m.Role,
			"content": m.Content,
		})
	}

	payload := map[string]interface{}{
		"model":      p.model,
		"messages":   anthropicMessages,
		"max_tokens": 1024,
		"system":     system,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("anthropic mt error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("no content returned from anthropic")
	}

	return result.Content[0].Text, nil
}
