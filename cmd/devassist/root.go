package main

import (
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"devassist/internal/app"
	"devassist/internal/config"
)

var (
	configPath    string
	workspaceFlag string
	providerFlag  string
	modelFlag     string
	maxStepsFlag  int
	quietFlag     bool
)

var rootCmd = &cobra.Command{
	Use:   "devassist",
	Short: "devassist - codebase understanding assistant",
	Long: `devassist answers questions about a local codebase. A reasoning service
decides, step by step, which workspace tools to call (read files, search,
list entry points, collect heuristic signals) and then answers.

The workspace is read-only. Every question runs under a step budget.`,
	Version:       app.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("devassist version {{.Version}}\n")
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "TOML config file (default: ./"+config.DefaultFile+" if present)")
	pf.StringVarP(&workspaceFlag, "workspace", "w", "", "Workspace root (default: current directory)")
	pf.StringVar(&providerFlag, "provider", "", "Reasoning service: openai, groq, gemini or fake")
	pf.StringVar(&modelFlag, "model", "", "Model name (default depends on provider)")
	pf.IntVar(&maxStepsFlag, "max-steps", 0, "Reasoning step budget")
	pf.BoolVarP(&quietFlag, "quiet", "q", false, "Hide progress and logs")
}

// loadConfig applies flags on top of file and environment settings.
// Precedence: flag > environment > config file > defaults.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("workspace") {
		cfg.WorkspaceRoot = workspaceFlag
	}
	if flags.Changed("provider") {
		cfg.Provider = providerFlag
	}
	if flags.Changed("model") {
		cfg.Model = modelFlag
	}
	if flags.Changed("max-steps") {
		cfg.MaxSteps = maxStepsFlag
	}
	if err := cfg.Finalize(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newLogger writes to stderr; stdout carries answers and protocol data.
func newLogger() *log.Logger {
	if quietFlag {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "[devassist] ", log.LstdFlags)
}

func openEngine(cmd *cobra.Command, logger *log.Logger) (*app.Engine, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, logger)
}
