package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eichelb4rt/ArXiv-Notifications/internal/arxiv"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/config"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/cursor"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/download"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/logging"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/notify"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/pipeline"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/summarizer"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run the pipeline once and exit")
	flag.Parse()

	if err := run(*configPath, *once); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, once bool) error {
	cfg, creds, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := buildBackend(ctx, cfg, creds)
	if err != nil {
		return err
	}

	channels, err := buildChannels(cfg, creds)
	if err != nil {
		return err
	}

	expr := cfg.Expression()
	if err := expr.Validate(); err != nil {
		return fmt.Errorf("invalid keywords: %w", err)
	}
	initial, err := cfg.InitialDate()
	if err != nil {
		return fmt.Errorf("invalid last_date: %w", err)
	}

	p := pipeline.New(pipeline.Deps{
		Keywords:    expr,
		Categories:  cfg.Categories,
		MaxResults:  cfg.MaxResults,
		InitialDate: initial,
		Searcher:    arxiv.NewClient(),
		Fetcher:     download.New(time.Duration(cfg.DownloadDelaySeconds)*time.Second, logger),
		Summarizer:  summarizer.New(backend, cfg.Preferences, cfg.MaxPages, cfg.SummarizeWorkers, logger),
		Channels:    channels,
		Cursor:      cursor.NewStore(cfg.StateFile),
		Logger:      logger,
	})

	runOnce := func(ctx context.Context) error {
		report, err := p.Run(ctx)
		if err != nil {
			return err
		}
		for _, drop := range report.Drops {
			logger.Warn("article lost", "id", drop.ID, "stage", drop.Stage, "reason", drop.Reason)
		}
		logger.Info("run finished",
			"found", report.Found,
			"summarized", report.Summarized,
			"notified", report.Notified,
			"dropped", len(report.Drops))
		return nil
	}

	if once {
		return runOnce(ctx)
	}

	if cfg.RunOnStart {
		if err := runOnce(ctx); err != nil {
			logger.Error("initial run failed", "error", err)
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule, func() {
		if err := runOnce(ctx); err != nil {
			logger.Error("scheduled run failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}
	c.Start()
	logger.Info("scheduler started", "schedule", cfg.Schedule)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	cancel()
	stopped := c.Stop()
	<-stopped.Done()
	return nil
}

func buildBackend(ctx context.Context, cfg *config.Config, creds *config.Credentials) (summarizer.Backend, error) {
	switch cfg.Summarizer.Backend {
	case "openai":
		return summarizer.NewOpenAIBackend(creds.LLMAPIKey, cfg.Summarizer.Model, cfg.Summarizer.BaseURL)
	case "gemini":
		return summarizer.NewGeminiBackend(ctx, creds.LLMAPIKey, cfg.Summarizer.Model)
	default:
		return nil, fmt.Errorf("unknown summarizer backend: %s", cfg.Summarizer.Backend)
	}
}

func buildChannels(cfg *config.Config, creds *config.Credentials) ([]notify.Channel, error) {
	var channels []notify.Channel
	for _, name := range cfg.Channels {
		switch name {
		case "stdout":
			channels = append(channels, notify.NewStdoutChannel())
		case "email":
			channels = append(channels, notify.NewEmailChannel(
				cfg.Email.SMTPHost,
				cfg.Email.SMTPPort,
				cfg.Email.Username,
				creds.SMTPPassword,
				cfg.Email.From,
				cfg.Email.To,
			))
		case "telegram":
			channels = append(channels, notify.NewTelegramChannel(creds.TelegramBotToken, cfg.Telegram.ChatID))
		default:
			return nil, fmt.Errorf("unknown channel: %s", name)
		}
	}
	if len(channels) == 0 {
		return nil, errors.New("no notification channels configured")
	}
	return channels, nil
}
