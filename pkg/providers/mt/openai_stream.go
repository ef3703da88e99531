package mt

import (
	"context"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIStreamingMT is an SDK-based alternative to OpenAIMT: it drives the
// chat-completions streaming API and assembles the delta text into the
// final translation, rather than issuing a raw HTTP POST and waiting for
// one JSON body. Translate buffers the whole stream; the pipeline calls only
// Translate, for partial and final translations alike.
type OpenAIStreamingMT struct {
	client oai.Client
	model  string
}

// NewOpenAIStreamingMT builds an SDK-backed OpenAI translator.
func NewOpenAIStreamingMT(apiKey, model string) *OpenAIStreamingMT {
	if model == "" {
		model = "gpt-4o-mini"
	}
	client := oai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIStreamingMT{client: client, model: model}
}

func (p *OpenAIStreamingMT) Name() string { return "openai-stream-mt" }

func (p *OpenAIStreamingMT) Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error) {
	chunks, err := p.Stream(ctx, text, sourceLanguage, targetLanguage)
	if err != nil {
		return "", err
	}

	var out string
	for chunk := range chunks {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		out += chunk.Text
	}
	return out, nil
}

// StreamChunk is one incremental delta of a streaming translation.
type StreamChunk struct {
	Text string
	Err  error
}

// Stream starts a streaming chat completion and returns delta chunks as
// they arrive. Within this module only Translate calls it; no setting
// routes the deltas to a client.
func (p *OpenAIStreamingMT) Stream(ctx context.Context, text, sourceLanguage, targetLanguage string) (<-chan StreamChunk, error) {
	prompt := buildPrompt(text, sourceLanguage, targetLanguage)

	var messages []oai.ChatCompletionMessageParamUnion
	for _, m := range prompt {
		switch m.Role {
		case "system":
			messages = append(messages, oai.SystemMessage(m.Content))
		case "user":
			messages = append(messages, oai.UserMessage(m.Content))
		}
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai-stream-mt: start stream: %w", err)
	}

	ch := make(chan StreamChunk, 16)
	go func() {
		defer close(ch)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			if delta.Content == "" {
				continue
			}
			select {
			case ch <- StreamChunk{Text: delta.Content}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case ch <- StreamChunk{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}
