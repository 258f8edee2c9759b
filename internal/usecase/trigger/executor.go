package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"relaybot/internal/domain"
)

const (
	defaultCommandTimeout = 2 * time.Minute
	defaultHTTPTimeout    = 30 * time.Second
	maxLoggedOutput       = 2048
)

// JobCreator launches an agent job from an action.
type JobCreator interface {
	Create(ctx context.Context, description string) (domain.Job, error)
}

// Executor runs a single resolved action.
type Executor struct {
	jobs           JobCreator
	client         *http.Client
	workdir        string
	commandTimeout time.Duration
	logger         *slog.Logger
}

// NewExecutor creates an Executor. workdir is the fixed directory all
// command actions run in; action templates never choose it.
func NewExecutor(jobs JobCreator, workdir string, logger *slog.Logger) *Executor {
	return &Executor{
		jobs:           jobs,
		client:         &http.Client{Timeout: defaultHTTPTimeout},
		workdir:        workdir,
		commandTimeout: defaultCommandTimeout,
		logger:         logger,
	}
}

// Execute runs one action with the request context applied to its
// templates.
func (e *Executor) Execute(ctx context.Context, action domain.Action, rc domain.RequestContext) error {
	switch action.Kind {
	case domain.ActionCommand:
		return e.runCommand(ctx, action, rc)
	case domain.ActionHTTP:
		return e.runHTTP(ctx, action, rc)
	case domain.ActionAgent:
		return e.runAgent(ctx, action, rc)
	default:
		return domain.NewDomainError("trigger.Execute", domain.ErrInvalidInput, "unknown action type %q", action.Kind)
	}
}

func (e *Executor) runCommand(ctx context.Context, action domain.Action, rc domain.RequestContext) error {
	ctx, cancel := context.WithTimeout(ctx, e.commandTimeout)
	defer cancel()

	command := Expand(action.Command, rc)
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = e.workdir
	// Run in its own process group so a timeout kills the whole tree,
	// not just the shell.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	out, err := cmd.CombinedOutput()
	if len(out) > maxLoggedOutput {
		out = out[:maxLoggedOutput]
	}
	if err != nil {
		e.logger.Error("command action failed", "command", command, "output", string(out), "error", err)
		return fmt.Errorf("command action: %w", err)
	}
	e.logger.Info("command action completed", "command", command, "output", string(out))
	return nil
}

func (e *Executor) runHTTP(ctx context.Context, action domain.Action, rc domain.RequestContext) error {
	method := strings.ToUpper(action.Method)
	if method == "" {
		method = http.MethodPost
	}
	url := Expand(action.URL, rc)

	// GET carries no body; everything else posts the expanded vars plus
	// the originating request body under "data".
	var reader io.Reader
	if method != http.MethodGet {
		payload := map[string]any{}
		for k, v := range ExpandVars(action.Vars, rc) {
			payload[k] = v
		}
		if rc.Body != nil {
			payload["data"] = rc.Body
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("http action payload: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("http action request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Configured headers win over the JSON default.
	for k, v := range action.Headers {
		req.Header.Set(k, Expand(v, rc))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return domain.NewDomainError("trigger.runHTTP", domain.ErrUpstream, "%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	e.logger.Info("http action completed", "method", method, "url", url, "status", resp.StatusCode)
	if resp.StatusCode >= 400 {
		return domain.NewDomainError("trigger.runHTTP", domain.ErrUpstream, "%s %s returned %d", method, url, resp.StatusCode)
	}
	return nil
}

func (e *Executor) runAgent(ctx context.Context, action domain.Action, rc domain.RequestContext) error {
	if e.jobs == nil {
		return domain.NewDomainError("trigger.runAgent", domain.ErrInvalidInput, "no job backend configured")
	}
	description := Expand(action.Job, rc)
	j, err := e.jobs.Create(ctx, description)
	if err != nil {
		return fmt.Errorf("agent action: %w", err)
	}
	e.logger.Info("agent action launched job", "job_id", j.ID, "branch", j.Branch)
	return nil
}
