// Package mt defines the translation capability contract and its
// prompt-based adapters over chat-completion APIs.
package mt

import (
	"context"
	"fmt"
)

// Message mirrors the teacher's chat-message shape (role/content), reused
// here to build translation prompts against the same provider APIs.
type Message struct {
	Role    string
	Content string
}

// Provider translates text from one language to another. Both languages are
// short BCP-47-ish codes ("en", "es", "pt").
type Provider interface {
	Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error)
	Name() string
}

// buildPrompt renders the fixed system/user message pair every adapter
// sends: a system instruction constraining the model to emit only the
// translation, and a user turn carrying the source text.
func buildPrompt(text, sourceLanguage, targetLanguage string) []Message {
	return []Message{
		{
			Role: "system",
			Content: fmt.Sprintf(
				"You are a real-time speech translator. Translate the user's message from %s to %s. "+
					"Reply with only the translation, no quotes, no commentary, no explanations.",
				sourceLanguage, targetLanguage,
			),
		},
		{Role: "user", Content: text},
	}
}
