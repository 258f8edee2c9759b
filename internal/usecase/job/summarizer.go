package job

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"relaybot/internal/domain"
	"relaybot/internal/infra/render"
)

const (
	// maxLogChars bounds what we feed the model; only the tail of a long
	// log carries the outcome.
	maxLogChars = 50000
	// maxDescriptionChars bounds the job description in the prompt.
	maxDescriptionChars = 2000

	defaultSummaryTokens = 256
)

var (
	successPattern = regexp.MustCompile(`(?i)SUCCESS:\s*(true|false)`)
	summaryPattern = regexp.MustCompile(`(?i)SUMMARY:\s*(.+)`)
)

// Summarizer turns a raw job log into a short verdict via the LLM. The
// prompt template is rendered through the includer so shared fragments
// resolve before substitution.
type Summarizer struct {
	provider   domain.LLMProvider
	includer   *render.Includer
	promptPath string
	model      string
	maxTokens  int
}

// NewSummarizer creates a Summarizer. maxTokens <= 0 falls back to the
// default budget.
func NewSummarizer(provider domain.LLMProvider, includer *render.Includer, promptPath, model string, maxTokens int) *Summarizer {
	if maxTokens <= 0 {
		maxTokens = defaultSummaryTokens
	}
	return &Summarizer{
		provider:   provider,
		includer:   includer,
		promptPath: promptPath,
		model:      model,
		maxTokens:  maxTokens,
	}
}

// Summarize asks the model for a SUCCESS/SUMMARY verdict over the log
// tail. Callers treat any error as "degrade to the generic summary".
func (s *Summarizer) Summarize(ctx context.Context, logContent string, lctx LogContext) (domain.JobSummary, error) {
	tpl := s.includer.Render(s.promptPath)
	if tpl == "" {
		return domain.JobSummary{}, fmt.Errorf("prompt template %s: %w", s.promptPath, domain.ErrConfigLoad)
	}

	if len(logContent) > maxLogChars {
		logContent = logContent[len(logContent)-maxLogChars:]
	}

	prompt := strings.Replace(tpl, "{{CONTEXT}}", s.contextSection(lctx), 1)
	prompt = strings.Replace(prompt, "{{LOG_CONTENT}}", logContent, 1)

	resp, err := s.provider.Chat(ctx, domain.ChatRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return domain.JobSummary{}, err
	}
	return parseSummary(resp.Message.Content)
}

func (s *Summarizer) contextSection(lctx LogContext) string {
	var b strings.Builder
	if desc := lctx.JobDescription; desc != "" {
		if len(desc) > maxDescriptionChars {
			desc = desc[:maxDescriptionChars]
		}
		b.WriteString("Job description:\n")
		b.WriteString(desc)
		b.WriteString("\n\n")
	}
	if lctx.CommitMessage != "" {
		b.WriteString("Final commit message:\n")
		b.WriteString(lctx.CommitMessage)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// parseSummary reads the SUCCESS and SUMMARY markers from the model
// output. A missing marker falls back to its default on its own, so a
// false verdict survives even when the summary line is absent.
func parseSummary(text string) (domain.JobSummary, error) {
	m := successPattern.FindStringSubmatch(text)
	sm := summaryPattern.FindStringSubmatch(text)
	if m == nil && sm == nil {
		return domain.JobSummary{}, fmt.Errorf("no SUCCESS or SUMMARY marker in model output")
	}

	out := domain.JobSummary{Success: true, Summary: "Job completed."}
	if m != nil {
		out.Success = strings.EqualFold(m[1], "true")
	}
	if sm != nil {
		out.Summary = strings.TrimSpace(sm[1])
	}
	return out, nil
}
