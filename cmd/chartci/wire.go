package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"chartci/internal/badge"
	"chartci/internal/bot"
	"chartci/internal/config"
	"chartci/internal/core"
	"chartci/internal/ledger"
	"chartci/internal/security"
	"chartci/internal/storage"
)

type app struct {
	cfg      *config.Config
	pipeline *core.Pipeline
	logger   *slog.Logger
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadApp reads the configuration and the pipeline definition.
func loadApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.pipelinePath != "" {
		cfg.Pipeline = opts.pipelinePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := core.DefaultPipeline()
	if cfg.Pipeline != "" {
		if p, err = core.LoadPipeline(cfg.Pipeline); err != nil {
			return nil, err
		}
	}
	return &app{cfg: cfg, pipeline: p, logger: newLogger(os.Stderr, opts.verbose)}, nil
}

// newRunner assembles the runner with its built-in actions, step logs and
// (when configured) the signed run ledger.
func (a *app) newRunner() (*core.Runner, error) {
	cfg := a.cfg
	exec := core.NewExecutor(bot.TokenEnv)

	r := core.NewRunner(exec, storage.NewArtifactStore(), a.logger)
	r.Workdir = cfg.Workdir
	r.ArtifactDir = cfg.ArtifactDir
	r.StepTimeout = time.Duration(cfg.StepTimeout)
	r.MaxParallel = cfg.MaxParallel
	r.Logs = storage.NewLogStorage(cfg.LogDir)

	r.Register("bot", &bot.Invoker{
		Program:    cfg.Bot.Program,
		Exec:       exec,
		Target:     cfg.Bot.Target,
		Labels:     cfg.Bot.Labels,
		Credential: cfg.Bot.Token,
		Logger:     a.logger,
	})
	r.Register("badge", &badge.Action{
		Label: cfg.Badge.Label,
		Publisher: &badge.GitPublisher{
			RepoPath: cfg.Badge.RepoPath,
			File:     cfg.Badge.File,
			Author:   cfg.Badge.Author,
			Remote:   cfg.Badge.Remote,
			Token:    cfg.Bot.Token,
		},
	})

	if cfg.LedgerPath != "" {
		_, priv, created, err := security.EnsureKeyPair(cfg.KeyDir)
		if err != nil {
			return nil, fmt.Errorf("ledger keys: %w", err)
		}
		if created {
			a.logger.Info("generated ledger signing keys", "dir", cfg.KeyDir)
		}
		l, err := ledger.Open(cfg.LedgerPath, priv)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		r.Recorder = l
	}
	return r, nil
}

// eventFlags are shared by the commands that build an event.
type eventFlags struct {
	eventType   string
	branch      string
	pullRequest bool
}

func (f *eventFlags) payload() core.EventPayload {
	return core.EventPayload{Type: f.eventType, Branch: f.branch, PullRequest: f.pullRequest}
}
