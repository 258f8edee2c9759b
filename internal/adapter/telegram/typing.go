package telegram

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Telegram shows the typing indicator for about 5 seconds per
// sendChatAction. Resends are jittered but always land before expiry.
const (
	typingBaseInterval = 4 * time.Second
	typingJitter       = 800 * time.Millisecond
)

// TypingIndicator keeps a chat's "typing" presence alive until stopped.
type TypingIndicator struct {
	client *Client
	chatID string
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTypingIndicator creates an indicator for one chat.
func NewTypingIndicator(client *Client, chatID string, logger *slog.Logger) *TypingIndicator {
	return &TypingIndicator{client: client, chatID: chatID, logger: logger}
}

// Start sends the typing action immediately and re-sends on a jittered
// interval strictly below the platform's presence expiry. Calling Start
// on a running indicator is a no-op.
func (t *TypingIndicator) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		for {
			if err := t.client.SendChatAction(ctx, t.chatID, "typing"); err != nil {
				if ctx.Err() != nil {
					return
				}
				t.logger.Debug("typing action failed", "chat_id", t.chatID, "error", err)
			}
			timer := time.NewTimer(typingBaseInterval + time.Duration(rand.Int63n(int64(typingJitter))))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}(t.done)
}

// Stop cancels the pending resend and waits for the loop to exit.
// Stopping a never-started or already-stopped indicator is a no-op.
func (t *TypingIndicator) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
