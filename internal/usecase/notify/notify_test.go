package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"relaybot/internal/domain"
	"relaybot/internal/usecase/job"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSender struct {
	mu      sync.Mutex
	chatIDs []string
	texts   []string
	err     error
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatIDs = append(f.chatIDs, chatID)
	f.texts = append(f.texts, text)
	return f.err
}

type fakeAnalyzer struct {
	summary   domain.JobSummary
	commit    string
	commitErr error
	desc      string
	descErr   error

	mu   sync.Mutex
	lctx job.LogContext
}

func (f *fakeAnalyzer) AnalyzeLog(ctx context.Context, jobID, branch string, lctx job.LogContext) domain.JobSummary {
	f.mu.Lock()
	f.lctx = lctx
	f.mu.Unlock()
	return f.summary
}

func (f *fakeAnalyzer) CommitMessage(ctx context.Context, prNumber int) (string, error) {
	return f.commit, f.commitErr
}

func (f *fakeAnalyzer) JobDescription(ctx context.Context, jobID, branch string) (string, error) {
	return f.desc, f.descErr
}

func TestJobCompleted(t *testing.T) {
	sender := &fakeSender{}
	analyzer := &fakeAnalyzer{
		summary: domain.JobSummary{Success: true, Summary: "Shipped the fix."},
		commit:  "fix: resolve panic",
		desc:    "resolve the panic in startup",
	}
	n := NewNotifier(sender, analyzer, "42", discard())

	pr := PullRequest{Number: 7, Branch: "job/abcd1234-rest", URL: "https://example.com/pr/7"}
	if err := n.JobCompleted(context.Background(), pr); err != nil {
		t.Fatalf("JobCompleted: %v", err)
	}

	if len(sender.texts) != 1 || sender.chatIDs[0] != "42" {
		t.Fatalf("sends: %v", sender.chatIDs)
	}
	text := sender.texts[0]
	if !strings.HasPrefix(text, "✅") || !strings.Contains(text, "abcd1234") {
		t.Errorf("text = %q", text)
	}
	if !strings.Contains(text, "Shipped the fix.") || !strings.Contains(text, pr.URL) {
		t.Errorf("text = %q", text)
	}

	if analyzer.lctx.CommitMessage != "fix: resolve panic" || analyzer.lctx.JobDescription != "resolve the panic in startup" {
		t.Errorf("log context: %+v", analyzer.lctx)
	}
}

func TestJobCompletedFailureVerdict(t *testing.T) {
	sender := &fakeSender{}
	analyzer := &fakeAnalyzer{summary: domain.JobSummary{Success: false, Summary: "Tests failed."}}
	n := NewNotifier(sender, analyzer, "42", discard())

	if err := n.JobCompleted(context.Background(), PullRequest{Number: 7, Branch: "job/x", URL: "u"}); err != nil {
		t.Fatalf("JobCompleted: %v", err)
	}
	if !strings.HasPrefix(sender.texts[0], "❌") || !strings.Contains(sender.texts[0], "failed") {
		t.Errorf("text = %q", sender.texts[0])
	}
}

func TestJobCompletedContextBestEffort(t *testing.T) {
	sender := &fakeSender{}
	analyzer := &fakeAnalyzer{
		summary:   domain.JobSummary{Success: true, Summary: "Done."},
		commitErr: domain.ErrUpstream,
		descErr:   domain.ErrNotFound,
	}
	n := NewNotifier(sender, analyzer, "42", discard())

	if err := n.JobCompleted(context.Background(), PullRequest{Number: 7, Branch: "job/x", URL: "u"}); err != nil {
		t.Fatalf("context failures must not block the notification: %v", err)
	}
	if analyzer.lctx != (job.LogContext{}) {
		t.Errorf("log context should be empty: %+v", analyzer.lctx)
	}
}

func TestJobCompletedNonJobBranch(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, &fakeAnalyzer{}, "42", discard())

	err := n.JobCompleted(context.Background(), PullRequest{Number: 7, Branch: "main", URL: "u"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("want ErrInvalidInput, got %v", err)
	}
	if len(sender.texts) != 0 {
		t.Error("nothing should be sent for a non-job branch")
	}
}

func TestJobCompletedSendFailure(t *testing.T) {
	sender := &fakeSender{err: domain.ErrUpstream}
	analyzer := &fakeAnalyzer{summary: domain.JobSummary{Success: true, Summary: "Done."}}
	n := NewNotifier(sender, analyzer, "42", discard())

	if err := n.JobCompleted(context.Background(), PullRequest{Number: 7, Branch: "job/x", URL: "u"}); !errors.Is(err, domain.ErrUpstream) {
		t.Errorf("want ErrUpstream, got %v", err)
	}
}

func TestConfigured(t *testing.T) {
	if NewNotifier(&fakeSender{}, &fakeAnalyzer{}, "", discard()).Configured() {
		t.Error("empty chat id should not be configured")
	}
	if !NewNotifier(&fakeSender{}, &fakeAnalyzer{}, "42", discard()).Configured() {
		t.Error("chat id set should be configured")
	}
}
