// Package job manages the lifecycle of agent jobs: branch-backed
// creation, CI-derived status queries, and completion log analysis.
package job

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"relaybot/internal/adapter/github"
	"relaybot/internal/domain"
	"relaybot/internal/infra/tracer"
)

// GitHubAPI is the slice of the GitHub client the manager needs.
type GitHubAPI interface {
	GetRef(ctx context.Context, ref string) (string, error)
	CreateRef(ctx context.Context, ref, sha string) error
	PutContents(ctx context.Context, path, branch, message string, content []byte) error
	GetContents(ctx context.Context, path, branch string) ([]byte, error)
	ListDir(ctx context.Context, path, branch string) ([]github.DirEntry, error)
	ListWorkflowRuns(ctx context.Context, status string) ([]github.WorkflowRun, error)
	GetWorkflowRunJobs(ctx context.Context, runID int64) ([]github.WorkflowJob, error)
	ListPRCommits(ctx context.Context, prNumber int) ([]github.Commit, error)
}

// Manager creates jobs and reconstructs their state from the repository
// and CI records. Jobs have no local persistence.
type Manager struct {
	gh            GitHubAPI
	defaultBranch string
	summarizer    *Summarizer
	logger        *slog.Logger
	now           func() time.Time
}

// NewManager creates a Manager. summarizer may be nil, in which case log
// analysis always degrades to the generic summary.
func NewManager(gh GitHubAPI, defaultBranch string, summarizer *Summarizer, logger *slog.Logger) *Manager {
	if defaultBranch == "" {
		defaultBranch = "main"
	}
	return &Manager{
		gh:            gh,
		defaultBranch: defaultBranch,
		summarizer:    summarizer,
		logger:        logger,
		now:           time.Now,
	}
}

// Create allocates a job id, branches off the default branch head, and
// commits the job document. Failures surface as ErrUpstream with no
// partial-state cleanup; CI never picks up a branch without a document.
func (m *Manager) Create(ctx context.Context, description string) (domain.Job, error) {
	ctx, span := tracer.StartSpan(ctx, "job.create")
	defer span.End()

	id := uuid.NewString()
	branch := domain.BranchForJob(id)
	span.SetAttributes(tracer.StringAttr("job.id", id))

	sha, err := m.gh.GetRef(ctx, "heads/"+m.defaultBranch)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.Job{}, err
	}
	if err := m.gh.CreateRef(ctx, "refs/heads/"+branch, sha); err != nil {
		tracer.RecordError(span, err)
		return domain.Job{}, err
	}
	docPath := "logs/" + id + "/job.md"
	if err := m.gh.PutContents(ctx, docPath, branch, "job: "+id, []byte(description)); err != nil {
		tracer.RecordError(span, err)
		return domain.Job{}, err
	}

	m.logger.Info("job created", "job_id", id, "branch", branch)
	tracer.SetOK(span)
	return domain.Job{ID: id, Branch: branch}, nil
}

// Status reconstructs the active job set from in-progress and queued CI
// runs. jobID, when non-empty, narrows the result to one job. Step
// enrichment is best-effort per run.
func (m *Manager) Status(ctx context.Context, jobID string) (domain.StatusSummary, error) {
	var inProgress, queued []github.WorkflowRun

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		inProgress, err = m.gh.ListWorkflowRuns(gctx, "in_progress")
		return err
	})
	g.Go(func() error {
		var err error
		queued, err = m.gh.ListWorkflowRuns(gctx, "queued")
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.StatusSummary{}, err
	}

	var selected []github.WorkflowRun
	for _, run := range append(inProgress, queued...) {
		id, ok := domain.ExtractJobID(run.HeadBranch)
		if !ok {
			continue
		}
		if jobID != "" && id != jobID {
			continue
		}
		selected = append(selected, run)
	}

	jobs := make([]domain.JobRun, len(selected))
	var wg sync.WaitGroup
	for i, run := range selected {
		wg.Add(1)
		go func(i int, run github.WorkflowRun) {
			defer wg.Done()
			jobs[i] = m.describeRun(ctx, run)
		}(i, run)
	}
	wg.Wait()

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.Before(jobs[j].StartedAt) })

	summary := domain.StatusSummary{Jobs: jobs}
	for _, j := range jobs {
		switch j.Status {
		case "in_progress":
			summary.Running++
		case "queued":
			summary.Queued++
		}
	}
	return summary, nil
}

// describeRun builds a JobRun, enriching it with step progress. The jobs
// endpoint can fail for runs that have not started; progress stays zero.
func (m *Manager) describeRun(ctx context.Context, run github.WorkflowRun) domain.JobRun {
	id, _ := domain.ExtractJobID(run.HeadBranch)
	jr := domain.JobRun{
		JobID:           id,
		Branch:          run.HeadBranch,
		Status:          run.Status,
		StartedAt:       run.CreatedAt,
		DurationMinutes: int(m.now().Sub(run.CreatedAt).Round(time.Minute) / time.Minute),
		RunID:           run.ID,
	}

	ciJobs, err := m.gh.GetWorkflowRunJobs(ctx, run.ID)
	if err != nil || len(ciJobs) == 0 {
		if err != nil {
			m.logger.Debug("run step enrichment failed", "run_id", run.ID, "error", err)
		}
		return jr
	}

	steps := ciJobs[0].Steps
	jr.StepsTotal = len(steps)
	for _, s := range steps {
		switch s.Status {
		case "completed":
			jr.StepsCompleted++
		case "in_progress":
			if jr.CurrentStep == "" {
				jr.CurrentStep = s.Name
			}
		}
	}
	return jr
}

// LogContext carries optional context for log analysis.
type LogContext struct {
	JobDescription string
	CommitMessage  string
}

// AnalyzeLog inspects the job's log directory on branch and summarizes
// the structured log via the LLM. Every failure path degrades to a
// generic success summary; completion notification is never blocked.
func (m *Manager) AnalyzeLog(ctx context.Context, jobID, branch string, lctx LogContext) domain.JobSummary {
	generic := domain.JobSummary{Success: true, Summary: "Job completed."}

	if m.summarizer == nil {
		return generic
	}

	entries, err := m.gh.ListDir(ctx, "logs/"+jobID, branch)
	if err != nil {
		m.logger.Debug("log directory unavailable", "job_id", jobID, "error", err)
		return generic
	}

	var logPath string
	for _, e := range entries {
		if e.Type != "dir" && strings.HasSuffix(e.Name, ".jsonl") {
			logPath = e.Path
			break
		}
	}
	if logPath == "" {
		return generic
	}

	content, err := m.gh.GetContents(ctx, logPath, branch)
	if err != nil {
		m.logger.Debug("log fetch failed", "job_id", jobID, "path", logPath, "error", err)
		return generic
	}

	summary, err := m.summarizer.Summarize(ctx, string(content), lctx)
	if err != nil {
		m.logger.Warn("log summarization failed", "job_id", jobID, "error", err)
		return generic
	}
	return summary
}

// CommitMessage returns the last commit message of a pull request.
func (m *Manager) CommitMessage(ctx context.Context, prNumber int) (string, error) {
	commits, err := m.gh.ListPRCommits(ctx, prNumber)
	if err != nil {
		return "", err
	}
	if len(commits) == 0 {
		return "", nil
	}
	return commits[len(commits)-1].Message, nil
}

// JobDescription returns the job document committed at creation time.
func (m *Manager) JobDescription(ctx context.Context, jobID, branch string) (string, error) {
	data, err := m.gh.GetContents(ctx, "logs/"+jobID+"/job.md", branch)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
