package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const transcriptionModel = "whisper-1"

// Transcriber converts voice notes to text via the OpenAI transcription API.
// The zero-value (no API key) transcriber reports itself as disabled.
type Transcriber struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewTranscriber creates a Whisper transcription client.
func NewTranscriber(apiKey, baseURL string, logger *slog.Logger) *Transcriber {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &Transcriber{
		apiKey:  apiKey,
		baseURL: baseURL,
		client: &http.Client{
			Transport: NewPooledTransport(10*time.Second, 60*time.Second),
			Timeout:   90 * time.Second,
		},
		logger: logger,
	}
}

// Enabled reports whether transcription is configured.
func (t *Transcriber) Enabled() bool { return t.apiKey != "" }

// Transcribe uploads audio and returns the recognized text.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := mw.WriteField("model", transcriptionModel); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", mapHTTPError(resp.StatusCode, body)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	t.logger.Debug("voice transcribed", "chars", len(out.Text))
	return out.Text, nil
}
