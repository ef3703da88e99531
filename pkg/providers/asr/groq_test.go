package asr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGroqASR(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		resp := struct {
			Text     string `json:"text"`
			Language string `json:"language"`
		}{Text: "hola", Language: "es"}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := &GroqASR{apiKey: "test-key", url: server.URL, model: "whisper-large-v3"}

	result, err := p.Transcribe(context.Background(), []byte{0, 1, 2, 3}, 16000, "es")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "hola" {
		t.Errorf("expected 'hola', got %q", result.Text)
	}
	if result.Language != "es" {
		t.Errorf("expected language es, got %q", result.Language)
	}
	if p.Name() != "groq-asr" {
		t.Errorf("expected groq-asr, got %s", p.Name())
	}
}

func TestGroqASR_FallsBackToHintLanguage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(struct {
			Text string `json:"text"`
		}{Text: "hi"})
	}))
	defer server.Close()

	p := &GroqASR{apiKey: "test-key", url: server.URL, model: "whisper-large-v3"}
	result, err := p.Transcribe(context.Background(), []byte{0}, 16000, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Language != "en" {
		t.Errorf("expected fallback to hint language en, got %q", result.Language)
	}
}
