// Package telegram is a raw Telegram Bot API client covering the small
// surface the relay needs: webhook registration, HTML message delivery
// with length-aware splitting, chat actions, and voice file download.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// MessageLimit is the Telegram Bot API per-message text limit.
const MessageLimit = 4096

const maxDownloadSize = 20 * 1024 * 1024 // Bot API file download cap

// Client talks to the Telegram Bot API. The bot token can be replaced at
// runtime through SetWebhook (the register flow), so access is guarded.
type Client struct {
	mu      sync.RWMutex
	token   string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a Telegram client. token may be empty until a bot is
// registered.
func NewClient(token string, logger *slog.Logger) *Client {
	return &Client{
		token:   token,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

// SetBaseURL points the client at a self-hosted Bot API server. Call
// before the client is shared between goroutines.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// Configured reports whether a bot token is present.
func (c *Client) Configured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetWebhook registers webhookURL with the Bot API using botToken and
// stores the token for subsequent sends. secret becomes the value Telegram
// echoes back in X-Telegram-Bot-Api-Secret-Token.
func (c *Client) SetWebhook(ctx context.Context, botToken, webhookURL, secret string) error {
	payload := map[string]string{"url": webhookURL}
	if secret != "" {
		payload["secret_token"] = secret
	}

	if _, err := c.call(ctx, botToken, "setWebhook", payload); err != nil {
		return err
	}

	c.mu.Lock()
	c.token = botToken
	c.mu.Unlock()

	c.logger.Info("telegram webhook registered", "url", webhookURL)
	return nil
}

// SendMessage delivers text to a chat, splitting into sequential chunks
// when it exceeds the API limit. Messages are sent in HTML parse mode;
// untrusted content must be passed through EscapeHTML before composing.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	for _, chunk := range SmartSplit(text, MessageLimit) {
		if err := c.sendChunk(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) sendChunk(ctx context.Context, chatID, text string) error {
	req := sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}
	_, err := c.call(ctx, c.currentToken(), "sendMessage", req)
	return err
}

// SendChatAction sends a chat action such as "typing".
func (c *Client) SendChatAction(ctx context.Context, chatID, action string) error {
	_, err := c.call(ctx, c.currentToken(), "sendChatAction",
		map[string]string{"chat_id": chatID, "action": action})
	return err
}

// DownloadFile fetches the raw bytes of a file (e.g. a voice note) by its
// file id, returning the content and the file path reported by the API.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	token := c.currentToken()

	raw, err := c.call(ctx, token, "getFile", map[string]string{"file_id": fileID})
	if err != nil {
		return nil, "", err
	}
	var fileResp getFileResponse
	if err := json.Unmarshal(raw, &fileResp); err != nil || fileResp.Result.FilePath == "" {
		return nil, "", fmt.Errorf("getFile: missing file_path")
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, token, fileResp.Result.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	return data, fileResp.Result.FilePath, nil
}

// call performs a Bot API method call, checks the response envelope, and
// returns the raw body for callers that need the result payload.
func (c *Client) call(ctx context.Context, token, method string, payload any) ([]byte, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram %s: no bot token configured", method)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if !envelope.OK {
		c.logger.Warn("telegram api error",
			"method", method,
			"status", resp.StatusCode,
			"description", envelope.Description,
		)
		return nil, fmt.Errorf("telegram %s: %s", method, envelope.Description)
	}
	return respBody, nil
}

// --- Telegram Bot API wire types ---

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type getFileResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		FileID   string `json:"file_id"`
		FilePath string `json:"file_path"`
	} `json:"result"`
}

// Update is an inbound webhook update.
type Update struct {
	UpdateID      int64    `json:"update_id"`
	Message       *Message `json:"message"`
	EditedMessage *Message `json:"edited_message"`
}

// Message is an inbound Telegram message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
	Caption   string `json:"caption"`
	Voice     *Voice `json:"voice,omitempty"`
}

// User identifies a Telegram sender.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// Chat identifies the conversation an update belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Voice is an attached voice note.
type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
	MIMEType string `json:"mime_type"`
}
