package mt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// OpenAIMT translates via OpenAI's chat-completions endpoint, raw HTTP in
// the same style the teacher's LLM adapters use.
type OpenAIMT struct {
	apiKey string
	url    string
	model  string
}

func NewOpenAIMT(apiKey string, model string) *OpenAIMT {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIMT{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/chat/completions",
		model:  model,
	}
}

func (p *OpenAIMT) Name() string { return "openai-mt" }

func (p *OpenAIMT) Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error) {
	messages := buildPrompt(text, sourceLanguage, targetLanguage)

	payload := map[string]interface{}{
		"model":    p.model,
		"messages": messages,
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
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("openai mt error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from openai")
	}

	return result.Choices[0].Message.Content, nil
}
