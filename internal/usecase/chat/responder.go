// Package chat turns inbound conversation messages into LLM-backed
// replies, with the create_job tool bridged to the job manager.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"relaybot/internal/domain"
	"relaybot/internal/usecase/session"
)

// maxToolIterations bounds the tool-use loop per inbound message.
const maxToolIterations = 5

const systemPrompt = `You are a personal assistant reachable over Telegram. Keep replies
short and conversational. When the user asks for work to be done on
their repository, launch it with the create_job tool and tell them the
job id. Never invent job results; completed jobs notify the user on
their own.`

var createJobSchema = domain.ToolSchema{
	Name:        "create_job",
	Description: "Launch a background agent job that works on the repository. Returns the job id and branch.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"job_description": {
				"type": "string",
				"description": "Full instructions for the agent, including all context from the conversation it needs."
			}
		},
		"required": ["job_description"]
	}`),
}

// JobCreator launches a job on behalf of the conversation.
type JobCreator interface {
	Create(ctx context.Context, description string) (domain.Job, error)
}

// Responder handles one conversation turn end to end: history lookup,
// the model round trips, tool execution, and history update.
type Responder struct {
	provider  domain.LLMProvider
	sessions  *session.Store
	locks     *session.KeyedLock
	jobs      JobCreator
	model     string
	maxTokens int
	logger    *slog.Logger
}

// NewResponder creates a Responder.
func NewResponder(provider domain.LLMProvider, sessions *session.Store, locks *session.KeyedLock, jobs JobCreator, model string, maxTokens int, logger *slog.Logger) *Responder {
	return &Responder{
		provider:  provider,
		sessions:  sessions,
		locks:     locks,
		jobs:      jobs,
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Reply produces the assistant's reply to text in the chat's
// conversation. The whole turn holds the chat's lock so concurrent
// messages from the same chat serialize.
func (r *Responder) Reply(ctx context.Context, chatID, text string) (string, error) {
	unlock, err := r.locks.Lock(ctx, chatID)
	if err != nil {
		return "", err
	}
	defer unlock()

	messages := append(r.sessions.Get(chatID), domain.Message{
		Role:      domain.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	})

	var reply string
	for i := 0; i < maxToolIterations; i++ {
		resp, err := r.provider.Chat(ctx, domain.ChatRequest{
			Model:     r.model,
			System:    systemPrompt,
			Messages:  messages,
			Tools:     []domain.ToolSchema{createJobSchema},
			MaxTokens: r.maxTokens,
		})
		if err != nil {
			return "", err
		}

		assistant := resp.Message
		assistant.Timestamp = time.Now()
		messages = append(messages, assistant)

		if len(assistant.ToolCalls) == 0 {
			reply = assistant.Content
			break
		}

		results := make([]domain.ToolResult, 0, len(assistant.ToolCalls))
		for _, call := range assistant.ToolCalls {
			results = append(results, r.executeTool(ctx, chatID, call))
		}
		messages = append(messages, domain.Message{
			Role:        domain.RoleUser,
			ToolResults: results,
			Timestamp:   time.Now(),
		})
	}

	if reply == "" {
		reply = "I started the work but ran out of steps composing a reply. Check the job status in a bit."
	}
	r.sessions.Put(chatID, messages)
	return reply, nil
}

func (r *Responder) executeTool(ctx context.Context, chatID string, call domain.ToolCall) domain.ToolResult {
	if call.Name != "create_job" {
		return domain.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("unknown tool %q", call.Name),
			IsError:    true,
		}
	}

	var args struct {
		JobDescription string `json:"job_description"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil || args.JobDescription == "" {
		return domain.ToolResult{
			ToolCallID: call.ID,
			Content:    "create_job requires a job_description string",
			IsError:    true,
		}
	}

	j, err := r.jobs.Create(ctx, args.JobDescription)
	if err != nil {
		r.logger.Error("create_job tool failed", "chat_id", chatID, "error", err)
		return domain.ToolResult{
			ToolCallID: call.ID,
			Content:    "job creation failed: " + err.Error(),
			IsError:    true,
		}
	}

	r.logger.Info("job created from conversation", "chat_id", chatID, "job_id", j.ID)
	payload, _ := json.Marshal(j)
	return domain.ToolResult{ToolCallID: call.ID, Content: string(payload)}
}
