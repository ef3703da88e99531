package asr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDeepgramASR(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		type alt struct {
			Transcript string `json:"transcript"`
		}
		type channel struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []alt  `json:"alternatives"`
		}
		resp := struct {
			Results struct {
				Channels []channel `json:"channels"`
			} `json:"results"`
		}{}
		resp.Results.Channels = []channel{{DetectedLanguage: "pt", Alternatives: []alt{{Transcript: "ola"}}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := &DeepgramASR{apiKey: "test-key", url: server.URL}
	result, err := p.Transcribe(context.Background(), []byte{0, 1}, 16000, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "ola" || result.Language != "pt" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestDeepgramASR_NoChannels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"results": map[string]interface{}{"channels": []interface{}{}}})
	}))
	defer server.Close()

	p := &DeepgramASR{apiKey: "test-key", url: server.URL}
	result, err := p.Transcribe(context.Background(), []byte{0}, 16000, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "" || result.Language != "en" {
		t.Errorf("expected empty text and hint-language fallback, got %+v", result)
	}
}
