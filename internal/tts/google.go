// Package tts synthesizes Arabic speech through the Google Cloud
// Text-to-Speech REST API.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultEndpoint = "https://texttospeech.googleapis.com/v1/text:synthesize"

// Output format is fixed by the product contract: LINEAR16 at 24kHz, served
// as audio/wav. Google returns LINEAR16 with a WAV header already attached.
const (
	audioEncoding = "LINEAR16"
	sampleRate    = 24000
	languageCode  = "ar-XA"
)

// UtteranceType tags what a clip confirms; the voice is shared but the tag is
// part of the request contract and validated at the HTTP boundary.
type UtteranceType string

const (
	UtteranceName    UtteranceType = "name"
	UtterancePIN     UtteranceType = "pin"
	UtteranceGeneral UtteranceType = "general"
)

// ValidUtteranceType reports whether s is one of the accepted type tags.
func ValidUtteranceType(s string) bool {
	switch UtteranceType(s) {
	case UtteranceName, UtterancePIN, UtteranceGeneral:
		return true
	}
	return false
}

// GoogleClient calls the text:synthesize endpoint with an API key.
type GoogleClient struct {
	HTTPClient *http.Client
	APIKey     string
	Voice      string
	Endpoint   string
}

func NewGoogleClient(apiKey, voice string) *GoogleClient {
	if voice == "" {
		voice = "ar-XA-Chirp3-HD-Algenib"
	}
	return &GoogleClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIKey:     apiKey,
		Voice:      voice,
		Endpoint:   defaultEndpoint,
	}
}

type synthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding   string `json:"audioEncoding"`
		SampleRateHertz int    `json:"sampleRateHertz"`
	} `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize returns WAV bytes for the given Arabic text.
func (g *GoogleClient) Synthesize(ctx context.Context, text string, _ UtteranceType) ([]byte, error) {
	if g.APIKey == "" {
		return nil, fmt.Errorf("google tts api key missing")
	}
	if text == "" {
		return nil, fmt.Errorf("google tts: empty text")
	}

	var body synthesizeRequest
	body.Input.Text = text
	body.Voice.LanguageCode = languageCode
	body.Voice.Name = g.Voice
	body.AudioConfig.AudioEncoding = audioEncoding
	body.AudioConfig.SampleRateHertz = sampleRate

	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint+"?key="+g.APIKey, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google tts request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("google tts error: status=%d body=%s", resp.StatusCode, string(b))
	}

	var sr synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("google tts decode: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(sr.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("google tts audio decode: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("google tts: empty audio content")
	}
	return audio, nil
}
