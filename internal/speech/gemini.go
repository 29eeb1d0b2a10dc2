package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// letterLabels is the closed label set the handwriting detector may return.
var letterLabels = []string{"alef", "beh", "teh", "theh", "jeem"}

// Client calls the Gemini generateContent endpoint for multimodal prompts.
type Client struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	BaseURL    string
}

type generatePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *generateInline `json:"inline_data,omitempty"`
}

type generateInline struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generateRequest struct {
	Contents []generateContent `json:"contents"`
}

type generateCandidate struct {
	Content      generateContent `json:"content"`
	FinishReason string          `json:"finishReason"`
}

type generateResponse struct {
	Candidates []generateCandidate `json:"candidates"`
}

// UpstreamError is a non-2xx reply from the provider; Status is the upstream
// HTTP status and Body the raw reply text, surfaced to callers best-effort.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("gemini error: status=%d body=%s", e.Status, e.Body)
}

// NewClient constructs a Client with the shared defaults.
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    defaultBaseURL,
	}
}

// Result carries both the post-processed value and the raw model output.
type Result struct {
	Text       string
	Transcript string
}

// Transcribe uploads one finished audio clip and returns the raw transcript
// plus the action-normalized value. Validation failures (bad PIN length,
// out-of-range id) come back as the speech.Err* sentinels with the raw
// transcript still populated so callers can echo it to the user.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string, action Action) (Result, error) {
	if len(audio) == 0 {
		return Result{}, fmt.Errorf("empty audio")
	}
	raw, err := c.generate(ctx, []generatePart{
		{Text: promptFor(action)},
		{InlineData: &generateInline{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(audio)}},
	})
	if err != nil {
		return Result{}, err
	}
	text, err := Normalize(action, raw)
	if err != nil {
		return Result{Transcript: raw}, err
	}
	return Result{Text: text, Transcript: raw}, nil
}

// DetectLetter identifies which Arabic letter is handwritten in the image.
// Any answer outside the known label set maps to "unknown".
func (c *Client) DetectLetter(ctx context.Context, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("empty image")
	}
	prompt := fmt.Sprintf(`You are an Arabic handwriting recognition expert.
Look at this image and identify which Arabic letter is written.
The possible letters are: أ (alef), ب (beh), ت (teh), ث (theh), ج (jeem).
Return ONLY the romanized name (%s) without any additional text.
If you can't identify the letter or if it's not one of these letters, return "unknown".`, strings.Join(letterLabels, ", "))

	raw, err := c.generate(ctx, []generatePart{
		{Text: prompt},
		{InlineData: &generateInline{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(image)}},
	})
	if err != nil {
		return "", err
	}
	answer := strings.ToLower(strings.TrimSpace(raw))
	for _, label := range letterLabels {
		if answer == label {
			return label, nil
		}
	}
	return "unknown", nil
}

func (c *Client) generate(ctx context.Context, parts []generatePart) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("gemini api key missing")
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.BaseURL, c.Model, c.APIKey)

	reqBody, _ := json.Marshal(generateRequest{Contents: []generateContent{{Parts: parts}}})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", &UpstreamError{Status: resp.StatusCode, Body: string(b)}
	}
	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", err
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty candidates")
	}
	return strings.TrimSpace(gr.Candidates[0].Content.Parts[0].Text), nil
}
