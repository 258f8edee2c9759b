package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"relaybot/internal/adapter/gateway"
	"relaybot/internal/adapter/github"
	"relaybot/internal/adapter/llm"
	"relaybot/internal/adapter/telegram"
	"relaybot/internal/domain"
	"relaybot/internal/infra/config"
	"relaybot/internal/infra/logger"
	"relaybot/internal/infra/render"
	"relaybot/internal/infra/tracer"
	"relaybot/internal/usecase/chat"
	"relaybot/internal/usecase/cronjob"
	"relaybot/internal/usecase/job"
	"relaybot/internal/usecase/notify"
	"relaybot/internal/usecase/scheduling"
	"relaybot/internal/usecase/session"
	"relaybot/internal/usecase/trigger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Optional; a missing .env just means the environment is already set.
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log, closeLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracer.Enabled {
		shutdown, err := tracer.Setup(ctx, cfg.Tracer)
		if err != nil {
			return err
		}
		defer shutdown(context.Background())
	}

	// Adapters.
	tg := telegram.NewClient(cfg.Telegram.BotToken, log)
	gh := github.NewClient(cfg.GitHub, log)
	includer := render.NewIncluder(cfg.Paths.DocsRoot, log)

	var provider domain.LLMProvider = llm.NewAnthropicProvider(cfg.LLM, log)
	provider = llm.NewCircuitBreakerProvider(provider, llm.CircuitBreakerConfig{}, log)

	var transcriber gateway.Transcriber
	if t := llm.NewTranscriber(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, log); t.Enabled() {
		transcriber = t
	}

	// Job pipeline.
	summarizer := job.NewSummarizer(provider, includer, cfg.Paths.PromptTemplate, cfg.LLM.Model, 0)
	jobs := job.NewManager(gh, cfg.GitHub.DefaultBranch, summarizer, log)

	// Conversation.
	sessions := session.NewStore(cfg.Session.TTL, cfg.Session.SweepInterval, cfg.Session.MaxTurns, log)
	sessions.Start(ctx)
	defer sessions.Stop()
	responder := chat.NewResponder(provider, sessions, session.NewKeyedLock(), jobs, cfg.LLM.Model, cfg.LLM.MaxTokens, log)

	// Triggers and cron tasks.
	executor := trigger.NewExecutor(jobs, cfg.Paths.TriggerWorkdir, log)
	triggers, err := config.LoadTriggers(cfg.Paths.TriggersFile)
	if err != nil {
		return err
	}
	dispatcher := trigger.NewDispatcher(triggers, executor, log)

	tasks, err := config.LoadCronTasks(cfg.Paths.CronsFile)
	if err != nil {
		return err
	}
	scheduler := scheduling.NewScheduler(log)
	if n := cronjob.Register(tasks, scheduler, executor, log); n > 0 {
		log.Info("cron tasks registered", "count", n)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	notifier := notify.NewNotifier(tg, jobs, cfg.Telegram.ChatID, log)

	server := gateway.NewServer(*cfg, tg, transcriber, responder, jobs, notifier, dispatcher, log)
	return server.Start(ctx)
}
