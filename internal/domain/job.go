package domain

import (
	"strings"
	"time"
)

// JobBranchPrefix namespaces every job branch in the repository.
const JobBranchPrefix = "job/"

// Job is an asynchronous unit of work backed by a git branch.
type Job struct {
	ID     string `json:"job_id"`
	Branch string `json:"branch"`
}

// BranchForJob returns the branch name for a job id.
func BranchForJob(id string) string {
	return JobBranchPrefix + id
}

// ExtractJobID returns the job id encoded in a branch name, or false when
// the branch is not a job branch.
func ExtractJobID(branch string) (string, bool) {
	id, ok := strings.CutPrefix(branch, JobBranchPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// JobRun describes one workflow run observed for a job branch.
type JobRun struct {
	JobID           string    `json:"job_id"`
	Branch          string    `json:"branch"`
	Status          string    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	DurationMinutes int       `json:"duration_minutes"`
	CurrentStep     string    `json:"current_step,omitempty"`
	StepsCompleted  int       `json:"steps_completed"`
	StepsTotal      int       `json:"steps_total"`
	RunID           int64     `json:"run_id"`
}

// StatusSummary aggregates the active job runs.
type StatusSummary struct {
	Jobs    []JobRun `json:"jobs"`
	Queued  int      `json:"queued"`
	Running int      `json:"running"`
}

// JobSummary is the analyzed outcome of a finished job.
type JobSummary struct {
	Success bool   `json:"success"`
	Summary string `json:"summary"`
}
