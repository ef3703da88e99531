package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DeepgramASR calls Deepgram's raw-PCM listen endpoint.
type DeepgramASR struct {
	apiKey string
	url    string
}

func NewDeepgramASR(apiKey string) *DeepgramASR {
	return &DeepgramASR{
		apiKey: apiKey,
		url:    "https://api.deepgram.com/v1/listen",
	}
}

func (p *DeepgramASR) Name() string { return "deepgram-asr" }

func (p *DeepgramASR) Transcribe(ctx context.Context, pcm16 []byte, sampleRate int, hintLanguage string) (Result, error) {
	u, err := url.Parse(p.url)
	if err != nil {
		return Result{}, err
	}

	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	params.Set("detect_language", "true")
	if hintLanguage != "" {
		params.Set("language", hintLanguage)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(pcm16))
	if err != nil {
		return Result{}, err
	}

	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", fmt.Sprintf("audio/l16; rate=%d; channels=1", sampleRate))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Result{}, fmt.Errorf("deepgram asr error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Results struct {
			Channels []struct {
				DetectedLanguage string `json:"detected_language"`
				Alternatives     []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, err
	}

	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return Result{Language: hintLanguage}, nil
	}

	channel := result.Results.Channels[0]
	lang := channel.DetectedLanguage
	if lang == "" {
		lang = hintLanguage
	}
	return Result{Text: channel.Alternatives[0].Transcript, Language: lang}, nil
}
