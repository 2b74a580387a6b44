// Package app wires configuration into a ready-to-use engine shared by the
// CLI, the HTTP API and the MCP server.
package app

import (
	"context"
	"fmt"
	"log"

	"devassist/internal/commands"
	"devassist/internal/config"
	"devassist/internal/llmclient"
	"devassist/internal/llmtool"
	"devassist/internal/mcp"
	"devassist/internal/safeio"
	"devassist/internal/scan"
	"devassist/internal/search"
	"devassist/internal/signals"
	"devassist/internal/trace"
)

const (
	Name    = "devassist"
	Version = "0.1.0"
)

type Engine struct {
	Config    config.Config
	FS        *safeio.SafeFS
	Searcher  *search.Searcher
	Collector *signals.Collector
	Registry  *mcp.Registry
	LLM       llmclient.LLMClient
	Trace     trace.Sink
	Logger    *log.Logger
}

// Option adjusts an Engine before its registry is built.
type Option func(*Engine)

// WithLLM replaces the configured reasoning client.
func WithLLM(c llmclient.LLMClient) Option {
	return func(e *Engine) { e.LLM = c }
}

// WithTrace replaces the configured trace sinks.
func WithTrace(s trace.Sink) Option {
	return func(e *Engine) { e.Trace = s }
}

// New builds an engine from a finalized configuration.
func New(ctx context.Context, cfg config.Config, logger *log.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = log.Default()
	}
	fsys, err := safeio.NewSafeFS(cfg.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	e := &Engine{Config: cfg, FS: fsys, Logger: logger}
	for _, o := range opts {
		o(e)
	}

	host := mcp.Host{
		FS:     fsys,
		Logger: logger,
		Limits: mcp.Limits{
			MaxFileSize:     cfg.MaxFileSize,
			MaxFilesScanned: cfg.MaxFilesScanned,
			MaxLinesRead:    cfg.MaxLinesRead,
		},
	}
	if cfg.RespectGitignore {
		host.Ignore = scan.LoadGitignore(fsys.Root())
	}
	e.Searcher, err = search.New(fsys, search.Options{
		MaxFilesScanned: cfg.MaxFilesScanned,
		MaxFileSize:     cfg.MaxFileSize,
		Ignore:          host.Ignore,
	})
	if err != nil {
		return nil, err
	}
	e.Collector = signals.New(e.Searcher, fsys, signals.Options{MaxFileSize: cfg.MaxFileSize})
	host.Searcher = e.Searcher
	host.Signals = e.Collector

	if e.LLM == nil {
		e.LLM = llmclient.Lazy(llmclient.Settings{
			Provider:      cfg.Provider,
			APIKey:        cfg.APIKey,
			Model:         cfg.Model,
			BaseURL:       cfg.BaseURL,
			RetryAttempts: cfg.RetryAttempts,
			RPS:           cfg.RPS,
			Logger:        logger,
		})
	}
	if e.Trace == nil {
		e.Trace, err = trace.Open(ctx, cfg.Trace)
		if err != nil {
			return nil, err
		}
	}

	e.Registry, err = mcp.NewRegistry()
	if err != nil {
		return nil, err
	}
	if err := mcp.RegisterDefaultTools(e.Registry, host); err != nil {
		return nil, err
	}
	if err := e.Registry.Register(&llmtool.QueryTool{Loop: e.loop(llmtool.LogObserver(logger))}); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) loop(obs llmtool.Observer) llmtool.Loop {
	return llmtool.Loop{
		LLM:      e.LLM,
		Tools:    e.Registry,
		SelfName: llmtool.DefaultSelfName,
		MaxSteps: e.Config.MaxSteps,
		Parallel: e.Config.ParallelTools,
		Logger:   e.Logger,
		Observer: obs,
	}
}

// Run is the outcome of one traced query.
type Run struct {
	ID     string
	Result *llmtool.Result
}

// Query runs the loop for task under a fresh run id. source names the
// caller in the trace.
func (e *Engine) Query(ctx context.Context, task, source string, obs llmtool.Observer) (Run, error) {
	return e.QueryWithID(ctx, trace.NewRunID(), task, source, obs)
}

// QueryWithID is Query with a caller-chosen run id.
func (e *Engine) QueryWithID(ctx context.Context, runID, task, source string, obs llmtool.Observer) (Run, error) {
	run := Run{ID: runID}
	observers := llmtool.Observers{obs}
	if e.Trace != nil {
		observers = append(observers, trace.NewObserver(e.Trace, run.ID, source, e.Logger))
	}
	loop := e.loop(observers)
	res, err := loop.Run(ctx, task)
	run.Result = res
	return run, err
}

// RunCommand builds the command's task, seeds it with signals when the
// command needs them, and queries.
func (e *Engine) RunCommand(ctx context.Context, cmd commands.Command, args commands.Args, source string, obs llmtool.Observer) (Run, error) {
	task, err := commands.Build(cmd, args)
	if err != nil {
		return Run{}, err
	}
	prompt := task.Prompt
	if task.NeedsSignals {
		report, err := e.Signals(ctx, task.SignalPath)
		if err != nil {
			return Run{}, err
		}
		if prompt, err = commands.WithSignals(prompt, report); err != nil {
			return Run{}, err
		}
	}
	return e.Query(ctx, prompt, source, obs)
}

// Signals collects a report for a workspace-relative path.
func (e *Engine) Signals(ctx context.Context, path string) (signals.Report, error) {
	if path == "" {
		path = "."
	}
	if _, err := e.FS.Resolve(path); err != nil {
		return signals.Report{}, err
	}
	return e.Collector.Collect(ctx, path), nil
}

func (e *Engine) Close() error {
	var firstErr error
	if e.Trace != nil {
		firstErr = e.Trace.Close()
	}
	if e.LLM != nil {
		if err := e.LLM.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
