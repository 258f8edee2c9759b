// Package notify delivers job completion notifications to the
// configured Telegram chat.
package notify

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"relaybot/internal/adapter/telegram"
	"relaybot/internal/domain"
	"relaybot/internal/usecase/job"
)

// Sender is the Telegram surface the notifier needs.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Analyzer is the job-manager surface the notifier needs.
type Analyzer interface {
	AnalyzeLog(ctx context.Context, jobID, branch string, lctx job.LogContext) domain.JobSummary
	CommitMessage(ctx context.Context, prNumber int) (string, error)
	JobDescription(ctx context.Context, jobID, branch string) (string, error)
}

// PullRequest is the slice of a pull-request event the notifier acts on.
type PullRequest struct {
	Number int
	Branch string
	URL    string
}

// Notifier reports finished jobs to the owner's chat.
type Notifier struct {
	sender Sender
	jobs   Analyzer
	chatID string
	logger *slog.Logger
}

// NewNotifier creates a Notifier. chatID may be empty; JobCompleted
// then reports not-configured without side effects.
func NewNotifier(sender Sender, jobs Analyzer, chatID string, logger *slog.Logger) *Notifier {
	return &Notifier{sender: sender, jobs: jobs, chatID: chatID, logger: logger}
}

// Configured reports whether a destination chat is set.
func (n *Notifier) Configured() bool {
	return n.chatID != ""
}

// JobCompleted analyzes the finished job behind pr and sends the
// notification. Context gathering is best-effort; only the final send
// can fail the operation.
func (n *Notifier) JobCompleted(ctx context.Context, pr PullRequest) error {
	jobID, ok := domain.ExtractJobID(pr.Branch)
	if !ok {
		return domain.NewDomainError("notify.JobCompleted", domain.ErrInvalidInput, "branch %q is not a job branch", pr.Branch)
	}

	var lctx job.LogContext
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		msg, err := n.jobs.CommitMessage(gctx, pr.Number)
		if err != nil {
			n.logger.Debug("commit message unavailable", "job_id", jobID, "error", err)
			return nil
		}
		lctx.CommitMessage = msg
		return nil
	})
	g.Go(func() error {
		desc, err := n.jobs.JobDescription(gctx, jobID, pr.Branch)
		if err != nil {
			n.logger.Debug("job description unavailable", "job_id", jobID, "error", err)
			return nil
		}
		lctx.JobDescription = desc
		return nil
	})
	g.Wait()

	summary := n.jobs.AnalyzeLog(ctx, jobID, pr.Branch, lctx)
	text := telegram.FormatJobNotification(jobID, summary.Success, summary.Summary, pr.URL)

	if err := n.sender.SendMessage(ctx, n.chatID, text); err != nil {
		return err
	}
	n.logger.Info("job notification sent", "job_id", jobID, "success", summary.Success)
	return nil
}
