package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/agent"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/agent/terminal"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/config"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/llm"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/logger"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/persona"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/pipeline"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/session"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/tools"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

type options struct {
	mode          string
	toolset       string
	toolVerbosity string
	persona       string
	configDir     string
	logLevel      string
	maxHistory    int
	initialInput  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "%s: %s\n", errors.CategoryOf(err), errors.MessageOf(err))
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	flags := pflag.NewFlagSet("keystone", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: keystone [flags] [message...]\n\nFlags:\n%s", flags.FlagUsages())
	}
	flags.StringVarP(&opts.mode, "mode", "m", "", "Tool execution mode: auto or prompt")
	flags.StringVarP(&opts.toolset, "toolset", "t", "default", "Toolset to offer to the model")
	flags.StringVar(&opts.toolVerbosity, "tool-verbosity", "", "Tool output verbosity: none, info or all")
	flags.StringVar(&opts.persona, "persona", "", "Persona to activate at startup")
	flags.StringVar(&opts.configDir, "config-dir", "", "Project directory holding the .keystone directory")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.IntVar(&opts.maxHistory, "max-history", 0, "Maximum number of history entries")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, errors.Categorize(errors.CategoryConfig, err, "invalid arguments")
	}
	opts.initialInput = strings.Join(flags.Args(), " ")
	return opts, nil
}

// applyFlags overrides configuration values with the flags that were set.
func applyFlags(cfg *config.Config, opts *options) {
	if opts.mode != "" {
		cfg.Orchestrator.Mode = opts.mode
	}
	if opts.toolVerbosity != "" {
		cfg.Orchestrator.ToolVerbosity = opts.toolVerbosity
	}
	if opts.persona != "" {
		cfg.Persona.Default = opts.persona
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.maxHistory != 0 {
		cfg.History.MaxLength = opts.maxHistory
	}
	if opts.configDir != "" {
		cfg.Persona.ContextDir = resolve(opts.configDir, cfg.Persona.ContextDir)
		if cfg.Logging.File != "" {
			cfg.Logging.File = resolve(opts.configDir, cfg.Logging.File)
		}
	}
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(opts.configDir)
	if err != nil {
		return errors.Categorize(errors.CategoryConfig, err, "could not load configuration")
	}
	applyFlags(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logs, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  isTerminal(stderr),
	})
	if err != nil {
		return errors.Categorize(errors.CategoryConfig, err, "could not open log")
	}
	defer logs.Close()
	log := logs.Zerolog()

	verbosity, err := terminal.ParseVerbosity(cfg.Orchestrator.ToolVerbosity)
	if err != nil {
		return err
	}
	console := terminal.New(stdin, stdout, verbosity)

	if isTerminal(stdin) {
		interrupts := make(chan os.Signal, 1)
		signal.Notify(interrupts, os.Interrupt)
		defer signal.Stop(interrupts)
		go func() {
			for range interrupts {
				console.Interrupt()
			}
		}()
	} else {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
	}

	registry := tools.NewToolRegistry(ctx, cfg, log)
	toolset, err := cfg.GetToolset(opts.toolset)
	if err != nil {
		registry.Close()
		return errors.Categorize(errors.CategoryConfig, err, "toolset %q is not configured", opts.toolset)
	}
	active, err := registry.GetActiveTools(toolset)
	if err != nil {
		registry.Close()
		return errors.Categorize(errors.CategoryConfig, err, "could not activate toolset %q", opts.toolset)
	}
	executor := tools.NewExecutor(active, tools.Mode(cfg.Orchestrator.Mode), console, log)

	client, err := llm.New(ctx, cfg.LLMClient, cfg.Model, log)
	if err != nil {
		registry.Close()
		return err
	}

	conv := &agent.Conversation{
		History: session.NewStore(session.Options{
			MaxLength:        cfg.History.MaxLength,
			PrioritizeSystem: cfg.History.PrioritizeSystem,
			Logger:           log,
		}),
		Persona: &persona.State{},
	}
	personas := persona.NewFileContext(cfg.Persona.ContextDir)
	selector := persona.NewSelector(conv.Persona, personas, log)
	if cfg.Persona.Default != "" {
		if _, err := selector.Switch(cfg.Persona.Default); err != nil {
			registry.Close()
			return errors.Categorize(errors.CategoryPersona, err, "could not activate persona %q", cfg.Persona.Default)
		}
	}

	a := agent.New(conv, agent.Deps{
		Client:   client,
		Pipeline: pipeline.New(executor, log),
		Selector: selector,
		Context:  personas,
		UI:       console,
	}, agent.Options{
		CommandPrefix:       cfg.Orchestrator.CommandPrefix,
		MaxChainedToolCalls: cfg.Orchestrator.MaxChainedToolCalls,
		PreserveSystem:      cfg.History.PreserveSystem,
		Tools:               active,
		OnDebug:             logs.SetDebug,
		Logger:              log,
	})
	a.OnShutdown(registry.Close)

	log.Info().
		Str("llm", cfg.LLMClient).
		Str("mode", cfg.Orchestrator.Mode).
		Str("toolset", toolset.Name).
		Int("tools", len(active)).
		Msg("Starting keystone")
	console.Info(fmt.Sprintf("Keystone is ready. Type %shelp for commands.", cfg.Orchestrator.CommandPrefix))

	if err := a.Run(ctx, opts.initialInput); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return nil
}
