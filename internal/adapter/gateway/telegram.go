package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"relaybot/internal/adapter/telegram"
)

const (
	secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

	voiceUnsupportedReply = "I can't listen to voice messages yet. Could you type that out?"
	apologyReply          = "Sorry, something went wrong on my end. Please try again."
)

// handleTelegramWebhook processes bot updates. It answers 200 on every
// path, including rejected ones; a non-200 would make Telegram retry
// the same update indefinitely.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	ok := func() { writeJSON(w, http.StatusOK, map[string]bool{"ok": true}) }

	if s.cfg.Telegram.WebhookSecret != "" &&
		r.Header.Get(secretTokenHeader) != s.cfg.Telegram.WebhookSecret {
		s.logger.Warn("telegram update with bad secret token")
		ok()
		return
	}

	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		ok()
		return
	}
	// An edit to a recent message counts as a fresh message.
	msg := update.Message
	if msg == nil {
		msg = update.EditedMessage
	}
	if msg == nil {
		ok()
		return
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	// The verification phrase works before the chat is allow-listed;
	// it is how the owner discovers their chat id in the first place.
	if s.cfg.Telegram.Verification != "" && msg.Text == s.cfg.Telegram.Verification {
		reply := fmt.Sprintf("Your chat ID:\n<code>%s</code>", chatID)
		if err := s.telegram.SendMessage(r.Context(), chatID, reply); err != nil {
			s.logger.Error("verification reply failed", "chat_id", chatID, "error", err)
		}
		ok()
		return
	}

	if s.cfg.Telegram.ChatID == "" || chatID != s.cfg.Telegram.ChatID {
		s.logger.Warn("telegram update from unconfigured chat", "chat_id", chatID)
		ok()
		return
	}

	text := msg.Text
	if msg.Voice != nil {
		transcribed, handled := s.transcribeVoice(w, r, chatID, msg)
		if handled {
			return
		}
		text = transcribed
	}
	if text == "" {
		ok()
		return
	}

	typing := telegram.NewTypingIndicator(s.telegram, chatID, s.logger)
	typing.Start(r.Context())
	reply, err := s.replier.Reply(r.Context(), chatID, text)
	typing.Stop()
	if err != nil {
		s.logger.Error("chat reply failed", "chat_id", chatID, "error", err)
		reply = apologyReply
	}

	if err := s.telegram.SendMessage(r.Context(), chatID, reply); err != nil {
		s.logger.Error("telegram send failed", "chat_id", chatID, "error", err)
	}
	ok()
}

// transcribeVoice resolves a voice note to text. When it already
// answered the request (transcription unavailable or failed) it reports
// handled=true.
func (s *Server) transcribeVoice(w http.ResponseWriter, r *http.Request, chatID string, msg *telegram.Message) (string, bool) {
	ok := func() { writeJSON(w, http.StatusOK, map[string]bool{"ok": true}) }

	if s.transcriber == nil || !s.transcriber.Enabled() {
		if err := s.telegram.SendMessage(r.Context(), chatID, voiceUnsupportedReply); err != nil {
			s.logger.Error("telegram send failed", "chat_id", chatID, "error", err)
		}
		ok()
		return "", true
	}

	audio, path, err := s.telegram.DownloadFile(r.Context(), msg.Voice.FileID)
	if err == nil {
		var text string
		text, err = s.transcriber.Transcribe(r.Context(), audio, fileName(path))
		if err == nil {
			return text, false
		}
	}

	s.logger.Error("voice transcription failed", "chat_id", chatID, "error", err)
	if err := s.telegram.SendMessage(r.Context(), chatID, apologyReply); err != nil {
		s.logger.Error("telegram send failed", "chat_id", chatID, "error", err)
	}
	ok()
	return "", true
}

func fileName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	if path == "" {
		return "voice.oga"
	}
	return path
}
