// Package github is a minimal GitHub REST v3 client for the repository
// operations the relay performs: refs and contents on job branches, CI
// workflow run inspection, and pull request commits.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"relaybot/internal/domain"
	"relaybot/internal/infra/config"
)

const apiVersion = "2022-11-28"

// Client talks to the GitHub REST API for a single owner/repo.
type Client struct {
	baseURL string
	token   string
	owner   string
	repo    string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a GitHub client from configuration.
func NewClient(cfg config.GitHubConfig, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &Client{
		baseURL: baseURL,
		token:   cfg.Token,
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// do performs an authenticated API request. path is relative to the API
// root. A non-2xx status maps to ErrUpstream with the body in the logged
// detail, never in the returned message shown to clients.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.NewDomainError("github."+method, domain.ErrUpstream, "%s: %v", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return domain.NewDomainError("github."+method, domain.ErrUpstream, "read %s: %v", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("github api error",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body", truncate(string(respBody), 512),
		)
		if resp.StatusCode == http.StatusNotFound {
			return domain.NewDomainError("github."+method, domain.ErrNotFound, "%s: status 404", path)
		}
		return domain.NewDomainError("github."+method, domain.ErrUpstream, "%s: status %d", path, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) repoPath(format string, args ...any) string {
	return fmt.Sprintf("/repos/%s/%s", c.owner, c.repo) + fmt.Sprintf(format, args...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// GetRef returns the commit SHA a ref points at. ref is the short form,
// e.g. "heads/main".
func (c *Client) GetRef(ctx context.Context, ref string) (string, error) {
	var out struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if err := c.do(ctx, http.MethodGet, c.repoPath("/git/ref/%s", ref), nil, &out); err != nil {
		return "", err
	}
	return out.Object.SHA, nil
}

// CreateRef creates a fully qualified ref ("refs/heads/...") at sha.
func (c *Client) CreateRef(ctx context.Context, ref, sha string) error {
	body := map[string]string{"ref": ref, "sha": sha}
	return c.do(ctx, http.MethodPost, c.repoPath("/git/refs"), body, nil)
}

// PutContents creates or updates a file on branch with a commit message.
func (c *Client) PutContents(ctx context.Context, path, branch, message string, content []byte) error {
	body := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  branch,
	}
	return c.do(ctx, http.MethodPut, c.repoPath("/contents/%s", path), body, nil)
}

// GetContents fetches a file's decoded content from a branch.
func (c *Client) GetContents(ctx context.Context, path, branch string) ([]byte, error) {
	var out struct {
		Type     string `json:"type"`
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	p := c.repoPath("/contents/%s", path)
	if branch != "" {
		p += "?ref=" + url.QueryEscape(branch)
	}
	if err := c.do(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, err
	}
	if out.Type != "" && out.Type != "file" {
		return nil, domain.NewDomainError("github.GetContents", domain.ErrInvalidInput, "%s is a %s", path, out.Type)
	}
	// The API wraps base64 content across lines.
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' {
			return -1
		}
		return r
	}, out.Content)
	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return data, nil
}

// DirEntry is one item of a directory listing.
type DirEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// ListDir lists a directory on a branch.
func (c *Client) ListDir(ctx context.Context, path, branch string) ([]DirEntry, error) {
	p := c.repoPath("/contents/%s", path)
	if branch != "" {
		p += "?ref=" + url.QueryEscape(branch)
	}
	var out []DirEntry
	if err := c.do(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// WorkflowRun is one CI run record.
type WorkflowRun struct {
	ID         int64     `json:"id"`
	HeadBranch string    `json:"head_branch"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListWorkflowRuns returns recent workflow runs, optionally filtered by
// status (in_progress, queued, completed).
func (c *Client) ListWorkflowRuns(ctx context.Context, status string) ([]WorkflowRun, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	q.Set("per_page", "20")

	var out struct {
		WorkflowRuns []WorkflowRun `json:"workflow_runs"`
	}
	if err := c.do(ctx, http.MethodGet, c.repoPath("/actions/runs?%s", q.Encode()), nil, &out); err != nil {
		return nil, err
	}
	return out.WorkflowRuns, nil
}

// WorkflowStep is one step of a workflow job.
type WorkflowStep struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// WorkflowJob is one job of a workflow run, with its steps.
type WorkflowJob struct {
	Name  string         `json:"name"`
	Steps []WorkflowStep `json:"steps"`
}

// GetWorkflowRunJobs returns the jobs (with steps) of a workflow run.
func (c *Client) GetWorkflowRunJobs(ctx context.Context, runID int64) ([]WorkflowJob, error) {
	var out struct {
		Jobs []WorkflowJob `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, c.repoPath("/actions/runs/%d/jobs", runID), nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Commit is a pull request commit (message only).
type Commit struct {
	Message string
}

// ListPRCommits returns the commits of a pull request in order.
func (c *Client) ListPRCommits(ctx context.Context, prNumber int) ([]Commit, error) {
	var out []struct {
		Commit struct {
			Message string `json:"message"`
		} `json:"commit"`
	}
	if err := c.do(ctx, http.MethodGet, c.repoPath("/pulls/%d/commits", prNumber), nil, &out); err != nil {
		return nil, err
	}
	commits := make([]Commit, 0, len(out))
	for _, c := range out {
		commits = append(commits, Commit{Message: c.Commit.Message})
	}
	return commits, nil
}
