// Package apiclient talks to the account and speech HTTP endpoints on behalf
// of the capture sessions and the enrollment/login flows.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/Abdo12KM/nour-alma3refa/internal/flow"
	"github.com/Abdo12KM/nour-alma3refa/internal/speech"
	"github.com/Abdo12KM/nour-alma3refa/internal/tts"
)

// Client calls the app server's JSON API. BaseURL carries no trailing slash.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
}

func New(baseURL string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    baseURL,
	}
}

type registerRequest struct {
	Name string `json:"name"`
	PIN  string `json:"pin"`
}

type loginRequest struct {
	UserID int    `json:"userId"`
	PIN    string `json:"pin"`
}

type authResponse struct {
	Success bool   `json:"success"`
	UserID  int    `json:"userId"`
	Name    string `json:"name"`
	Error   string `json:"error"`
}

// Register creates an account and returns the server-assigned user id.
func (c *Client) Register(ctx context.Context, name, pin string) (int, error) {
	var out authResponse
	if err := c.postJSON(ctx, "/api/auth/register", registerRequest{Name: name, PIN: pin}, &out); err != nil {
		return 0, err
	}
	if !out.Success {
		if out.Error != "" {
			return 0, fmt.Errorf("register: %s", out.Error)
		}
		return 0, fmt.Errorf("register: rejected")
	}
	return out.UserID, nil
}

// Login verifies the id/pin pair. A 401 maps to flow.ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, userID int, pin string) (string, error) {
	body, _ := json.Marshal(loginRequest{UserID: userID, PIN: pin})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", flow.ErrInvalidCredentials
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login: status=%d body=%s", resp.StatusCode, string(b))
	}
	var out authResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if !out.Success {
		return "", flow.ErrInvalidCredentials
	}
	return out.Name, nil
}

type transcribeResponse struct {
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
	Error      string `json:"error"`
}

// Transcribe uploads field audio and returns the validated value plus the
// raw transcript. Validation rejections come back as the speech sentinels so
// capture sessions classify them the same way a local transcriber would.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string, action speech.Action) (speech.Result, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", "recording")
	if err != nil {
		return speech.Result{}, err
	}
	if _, err := part.Write(audio); err != nil {
		return speech.Result{}, err
	}
	if err := w.WriteField("action", string(action)); err != nil {
		return speech.Result{}, err
	}
	if err := w.Close(); err != nil {
		return speech.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/speech-to-text", &buf)
	if err != nil {
		return speech.Result{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return speech.Result{}, err
	}
	defer resp.Body.Close()

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return speech.Result{}, err
	}
	if resp.StatusCode == http.StatusBadRequest {
		return speech.Result{Transcript: out.Transcript}, sentinelFor(action, out.Error)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return speech.Result{}, fmt.Errorf("speech-to-text: status=%d error=%s", resp.StatusCode, out.Error)
	}
	return speech.Result{Text: out.Text, Transcript: out.Transcript}, nil
}

// sentinelFor maps a 400 rejection back to the validation sentinel for the
// field the caller asked about.
func sentinelFor(action speech.Action, msg string) error {
	switch action {
	case speech.ActionPIN:
		return speech.ErrInvalidPINFormat
	case speech.ActionUserID:
		return speech.ErrOutOfRange
	default:
		if msg != "" {
			return fmt.Errorf("speech-to-text: %s: %w", msg, speech.ErrEmptyTranscript)
		}
		return speech.ErrEmptyTranscript
	}
}

type synthesizeRequest struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// Synthesize fetches WAV audio for an Arabic line.
func (c *Client) Synthesize(ctx context.Context, text string, kind tts.UtteranceType) ([]byte, error) {
	body, _ := json.Marshal(synthesizeRequest{Text: text, Type: string(kind)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/text-to-speech", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("text-to-speech: status=%d body=%s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, _ := json.Marshal(in)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: status=%d body=%s", path, resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
