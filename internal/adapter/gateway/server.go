// Package gateway exposes the HTTP surface: the Telegram and GitHub
// webhooks, the authenticated management API, and the trigger catch-all.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"relaybot/internal/adapter/telegram"
	"relaybot/internal/domain"
	"relaybot/internal/infra/config"
	"relaybot/internal/infra/middleware"
	"relaybot/internal/usecase/notify"
)

const maxBodyBytes = 1 << 20

// Replier produces the assistant reply for an inbound chat message.
type Replier interface {
	Reply(ctx context.Context, chatID, text string) (string, error)
}

// Transcriber converts a voice note to text.
type Transcriber interface {
	Enabled() bool
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// JobService creates jobs and reports their status.
type JobService interface {
	Create(ctx context.Context, description string) (domain.Job, error)
	Status(ctx context.Context, jobID string) (domain.StatusSummary, error)
}

// Notifier delivers job completion notifications.
type Notifier interface {
	Configured() bool
	JobCompleted(ctx context.Context, pr notify.PullRequest) error
}

// Dispatcher matches and runs webhook triggers.
type Dispatcher interface {
	Match(path string) bool
	Dispatch(ctx context.Context, path string, rc domain.RequestContext)
}

// Server is the HTTP gateway.
type Server struct {
	cfg         config.Config
	telegram    *telegram.Client
	transcriber Transcriber
	replier     Replier
	jobs        JobService
	notifier    Notifier
	dispatcher  Dispatcher
	logger      *slog.Logger

	httpSrv   *http.Server
	boundAddr string
}

// NewServer creates a gateway server wired to its collaborators.
func NewServer(cfg config.Config, tg *telegram.Client, transcriber Transcriber, replier Replier, jobs JobService, notifier Notifier, dispatcher Dispatcher, logger *slog.Logger) *Server {
	return &Server{
		cfg:         cfg,
		telegram:    tg,
		transcriber: transcriber,
		replier:     replier,
		jobs:        jobs,
		notifier:    notifier,
		dispatcher:  dispatcher,
		logger:      logger,
	}
}

// Router builds the full route tree.
func (s *Server) Router(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RateLimit(ctx, s.cfg.Server.RequestsPerMin, s.cfg.Server.Burst))
	r.Use(limitBody)

	r.Post("/telegram/webhook", s.handleTelegramWebhook)
	r.Post("/github/webhook", s.handleGitHubWebhook)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/ping", s.handlePing)
		r.Post("/webhook", s.handleCreateJob)
		r.Get("/jobs/status", s.handleJobStatus)
		r.Post("/telegram/register", s.handleTelegramRegister)
	})

	// Trigger paths are management surface too; only the two provider
	// webhooks above are public.
	r.NotFound(s.requireAPIKey(http.HandlerFunc(s.handleTrigger)).ServeHTTP)
	return r
}

// Start begins serving. Blocks until the context is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()
	s.httpSrv = &http.Server{
		Handler:           s.Router(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// BoundAddr returns the actual listen address. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

// requireAPIKey guards the management API with a constant-time key
// check.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("x-api-key")
		if s.cfg.Server.APIKey == "" ||
			subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Server.APIKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
