package telegram

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c := NewClient("test-token", discardLogger())
	c.baseURL = server.URL
	return c, server
}

func TestSendMessageSingleChunk(t *testing.T) {
	var got sendMessageRequest
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottest-token/sendMessage") {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(apiResponse{OK: true})
	}))

	if err := c.SendMessage(context.Background(), "42", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got.ChatID != "42" || got.Text != "hello" || got.ParseMode != "HTML" {
		t.Errorf("request: %+v", got)
	}
}

func TestSendMessageSplitsLongText(t *testing.T) {
	var count atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Text) > MessageLimit {
			t.Errorf("chunk exceeds limit: %d", len(req.Text))
		}
		count.Add(1)
		json.NewEncoder(w).Encode(apiResponse{OK: true})
	}))

	long := strings.Repeat("a", 3000) + "\n\n" + strings.Repeat("b", 3000)
	if err := c.SendMessage(context.Background(), "42", long); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if count.Load() != 2 {
		t.Errorf("sends = %d, want 2", count.Load())
	}
}

func TestSendMessageAPIError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiResponse{OK: false, Description: "chat not found"})
	}))
	err := c.SendMessage(context.Background(), "42", "hi")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("err = %v", err)
	}
}

func TestSendMessageNoToken(t *testing.T) {
	c := NewClient("", discardLogger())
	if c.Configured() {
		t.Error("empty token should report unconfigured")
	}
	if err := c.SendMessage(context.Background(), "42", "hi"); err == nil {
		t.Error("expected error without token")
	}
}

func TestSetWebhookStoresToken(t *testing.T) {
	var gotPath string
	var payload map[string]string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&payload)
		json.NewEncoder(w).Encode(apiResponse{OK: true})
	}))

	err := c.SetWebhook(context.Background(), "new-token", "https://relay.example/telegram/webhook", "s3cret")
	if err != nil {
		t.Fatalf("SetWebhook: %v", err)
	}
	if gotPath != "/botnew-token/setWebhook" {
		t.Errorf("path = %s", gotPath)
	}
	if payload["secret_token"] != "s3cret" {
		t.Errorf("payload: %v", payload)
	}
	if c.currentToken() != "new-token" {
		t.Error("token should be replaced after register")
	}
}

func TestDownloadFile(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getFile"):
			w.Write([]byte(`{"ok":true,"result":{"file_id":"f1","file_path":"voice/file_1.oga"}}`))
		case r.URL.Path == "/file/bottest-token/voice/file_1.oga":
			w.Write([]byte("audio-bytes"))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	data, path, err := c.DownloadFile(context.Background(), "f1")
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	if string(data) != "audio-bytes" || path != "voice/file_1.oga" {
		t.Errorf("got %q, %q", data, path)
	}
}

func TestTypingIndicatorStopCancelsResend(t *testing.T) {
	var actions atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/sendChatAction") {
			actions.Add(1)
		}
		json.NewEncoder(w).Encode(apiResponse{OK: true})
	}))

	ti := NewTypingIndicator(c, "42", discardLogger())
	ti.Start(context.Background())

	deadline := time.Now().Add(time.Second)
	for actions.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if actions.Load() == 0 {
		t.Fatal("no typing action sent")
	}

	ti.Stop()
	after := actions.Load()
	time.Sleep(150 * time.Millisecond)
	if actions.Load() != after {
		t.Error("typing actions continued after Stop")
	}

	// Stop is idempotent.
	ti.Stop()
}
