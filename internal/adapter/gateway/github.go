package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"relaybot/internal/domain"
	"relaybot/internal/usecase/notify"
)

const webhookTokenHeader = "x-webhook-token"

type pullRequestEvent struct {
	Action      string `json:"action"`
	PullRequest *struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
		Head    struct {
			Ref string `json:"ref"`
		} `json:"head"`
	} `json:"pull_request"`
}

// handleGitHubWebhook turns pull_request opened events on job branches
// into completion notifications. Unlike the Telegram webhook this one
// authenticates hard: GitHub retries on failure and a 401 surfaces a
// misconfigured token in the delivery log.
func (s *Server) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(webhookTokenHeader)
	if s.cfg.GitHub.WebhookToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.GitHub.WebhookToken)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	skipped := func() {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "skipped": true})
	}

	if r.Header.Get("X-GitHub-Event") != "pull_request" {
		skipped()
		return
	}

	var event pullRequestEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed payload"})
		return
	}
	if event.Action != "opened" || event.PullRequest == nil {
		skipped()
		return
	}

	branch := event.PullRequest.Head.Ref
	if _, isJob := domain.ExtractJobID(branch); !isJob {
		skipped()
		return
	}
	if !s.notifier.Configured() {
		s.logger.Warn("job finished but no notification chat configured", "branch", branch)
		skipped()
		return
	}

	pr := notify.PullRequest{
		Number: event.PullRequest.Number,
		Branch: branch,
		URL:    event.PullRequest.HTMLURL,
	}
	if err := s.notifier.JobCompleted(r.Context(), pr); err != nil {
		s.logger.Error("job notification failed", "branch", branch, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "notification failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "notified": true})
}
