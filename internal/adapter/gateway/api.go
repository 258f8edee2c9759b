package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"relaybot/internal/domain"
)

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Pong!"})
}

// handleCreateJob launches a job from an explicit API call.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Job string `json:"job"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Job) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job description required"})
		return
	}

	j, err := s.jobs.Create(r.Context(), req.Job)
	if err != nil {
		s.logger.Error("job creation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "job creation failed"})
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := s.jobs.Status(r.Context(), r.URL.Query().Get("job_id"))
	if err != nil {
		s.logger.Error("job status failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleTelegramRegister points the bot's webhook at this deployment
// and swaps the active token.
func (s *Server) handleTelegramRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BotToken   string `json:"bot_token"`
		WebhookURL string `json:"webhook_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BotToken == "" || req.WebhookURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bot_token and webhook_url required"})
		return
	}

	if err := s.telegram.SetWebhook(r.Context(), req.BotToken, req.WebhookURL, s.cfg.Telegram.WebhookSecret); err != nil {
		s.logger.Error("telegram webhook registration failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "webhook registration failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleTrigger is the catch-all: unknown paths are matched against the
// configured triggers. Matched requests answer immediately; the actions
// run detached from the request lifecycle.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if s.dispatcher == nil || !s.dispatcher.Match(path) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	rc := captureRequest(r)
	s.dispatcher.Dispatch(context.WithoutCancel(r.Context()), path, rc)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// captureRequest snapshots the parts of a request that trigger
// templates can reference.
func captureRequest(r *http.Request) domain.RequestContext {
	rc := domain.RequestContext{
		Query:   map[string]string{},
		Headers: map[string]string{},
	}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			rc.Query[k] = vs[0]
		}
	}
	for k, vs := range r.Header {
		if len(vs) > 0 {
			rc.Headers[k] = vs[0]
		}
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil || len(raw) == 0 {
		return rc
	}
	var decoded any
	if json.Unmarshal(raw, &decoded) == nil {
		rc.Body = decoded
	} else {
		rc.Body = string(raw)
	}
	return rc
}
