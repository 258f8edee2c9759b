package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"relaybot/internal/domain"
	"relaybot/internal/usecase/session"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scriptedProvider struct {
	mu        sync.Mutex
	requests  []domain.ChatRequest
	responses []*domain.ChatResponse
	err       error
}

func (p *scriptedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	resp := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return resp, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

type fakeJobs struct {
	mu           sync.Mutex
	descriptions []string
	err          error
}

func (f *fakeJobs) Create(ctx context.Context, description string) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descriptions = append(f.descriptions, description)
	if f.err != nil {
		return domain.Job{}, f.err
	}
	return domain.Job{ID: "j1", Branch: "job/j1"}, nil
}

func newResponder(provider domain.LLMProvider, jobs JobCreator) (*Responder, *session.Store) {
	store := session.NewStore(30*time.Minute, 5*time.Minute, 20, discard())
	return NewResponder(provider, store, session.NewKeyedLock(), jobs, "claude-sonnet-4-20250514", 1024, discard()), store
}

func textResponse(content string) *domain.ChatResponse {
	return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: content}}
}

func TestReplyPlainText(t *testing.T) {
	provider := &scriptedProvider{responses: []*domain.ChatResponse{textResponse("hello there")}}
	r, store := newResponder(provider, &fakeJobs{})

	reply, err := r.Reply(context.Background(), "42", "hi")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply != "hello there" {
		t.Errorf("reply = %q", reply)
	}

	req := provider.requests[0]
	if req.System == "" || len(req.Tools) != 1 || req.Tools[0].Name != "create_job" {
		t.Errorf("request: system=%q tools=%+v", req.System, req.Tools)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "hi" {
		t.Errorf("messages: %+v", req.Messages)
	}

	history := store.Get("42")
	if len(history) != 2 || history[1].Content != "hello there" {
		t.Errorf("history: %+v", history)
	}
}

func TestReplyCarriesHistory(t *testing.T) {
	provider := &scriptedProvider{responses: []*domain.ChatResponse{textResponse("ack")}}
	r, store := newResponder(provider, &fakeJobs{})
	store.Put("42", []domain.Message{
		{Role: domain.RoleUser, Content: "earlier question"},
		{Role: domain.RoleAssistant, Content: "earlier answer"},
	})

	if _, err := r.Reply(context.Background(), "42", "follow-up"); err != nil {
		t.Fatalf("Reply: %v", err)
	}

	req := provider.requests[0]
	if len(req.Messages) != 3 || req.Messages[0].Content != "earlier question" {
		t.Errorf("messages: %+v", req.Messages)
	}
}

func TestReplyExecutesToolCall(t *testing.T) {
	toolCall := &domain.ChatResponse{Message: domain.Message{
		Role: domain.RoleAssistant,
		ToolCalls: []domain.ToolCall{{
			ID:        "tc1",
			Name:      "create_job",
			Arguments: json.RawMessage(`{"job_description":"fix the flaky test"}`),
		}},
	}}
	provider := &scriptedProvider{responses: []*domain.ChatResponse{toolCall, textResponse("Started job j1.")}}
	jobs := &fakeJobs{}
	r, _ := newResponder(provider, jobs)

	reply, err := r.Reply(context.Background(), "42", "the CI test is flaky, fix it")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply != "Started job j1." {
		t.Errorf("reply = %q", reply)
	}
	if len(jobs.descriptions) != 1 || jobs.descriptions[0] != "fix the flaky test" {
		t.Errorf("jobs: %v", jobs.descriptions)
	}

	// Second round trip carries the assistant tool call and its result.
	second := provider.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if len(last.ToolResults) != 1 || last.ToolResults[0].ToolCallID != "tc1" || last.ToolResults[0].IsError {
		t.Errorf("tool results: %+v", last.ToolResults)
	}
	if !strings.Contains(last.ToolResults[0].Content, `"job_id":"j1"`) {
		t.Errorf("result content: %q", last.ToolResults[0].Content)
	}
}

func TestReplyToolFailureReportedToModel(t *testing.T) {
	toolCall := &domain.ChatResponse{Message: domain.Message{
		Role: domain.RoleAssistant,
		ToolCalls: []domain.ToolCall{{
			ID:        "tc1",
			Name:      "create_job",
			Arguments: json.RawMessage(`{"job_description":"x"}`),
		}},
	}}
	provider := &scriptedProvider{responses: []*domain.ChatResponse{toolCall, textResponse("Sorry, that failed.")}}
	r, _ := newResponder(provider, &fakeJobs{err: errors.New("github down")})

	reply, err := r.Reply(context.Background(), "42", "do it")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply != "Sorry, that failed." {
		t.Errorf("reply = %q", reply)
	}

	last := provider.requests[1].Messages[len(provider.requests[1].Messages)-1]
	if len(last.ToolResults) != 1 || !last.ToolResults[0].IsError {
		t.Errorf("tool results: %+v", last.ToolResults)
	}
}

func TestReplyToolLoopBounded(t *testing.T) {
	toolCall := &domain.ChatResponse{Message: domain.Message{
		Role: domain.RoleAssistant,
		ToolCalls: []domain.ToolCall{{
			ID:        "tc",
			Name:      "create_job",
			Arguments: json.RawMessage(`{"job_description":"again"}`),
		}},
	}}
	provider := &scriptedProvider{responses: []*domain.ChatResponse{toolCall}}
	r, _ := newResponder(provider, &fakeJobs{})

	reply, err := r.Reply(context.Background(), "42", "loop forever")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply == "" {
		t.Error("bounded loop should still produce a fallback reply")
	}
	if len(provider.requests) != maxToolIterations {
		t.Errorf("rounds = %d, want %d", len(provider.requests), maxToolIterations)
	}
}

func TestReplyProviderError(t *testing.T) {
	provider := &scriptedProvider{err: domain.ErrUpstream}
	r, store := newResponder(provider, &fakeJobs{})

	if _, err := r.Reply(context.Background(), "42", "hi"); !errors.Is(err, domain.ErrUpstream) {
		t.Errorf("want ErrUpstream, got %v", err)
	}
	if store.Get("42") != nil {
		t.Error("failed turn should not be persisted")
	}
}

func TestReplyUnknownToolRejected(t *testing.T) {
	toolCall := &domain.ChatResponse{Message: domain.Message{
		Role: domain.RoleAssistant,
		ToolCalls: []domain.ToolCall{{
			ID:        "tc1",
			Name:      "delete_everything",
			Arguments: json.RawMessage(`{}`),
		}},
	}}
	provider := &scriptedProvider{responses: []*domain.ChatResponse{toolCall, textResponse("ok")}}
	r, _ := newResponder(provider, &fakeJobs{})

	if _, err := r.Reply(context.Background(), "42", "hi"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	last := provider.requests[1].Messages[len(provider.requests[1].Messages)-1]
	if len(last.ToolResults) != 1 || !last.ToolResults[0].IsError {
		t.Errorf("unknown tool should produce an error result: %+v", last.ToolResults)
	}
}
