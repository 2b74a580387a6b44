package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"devassist/internal/commands"
	"devassist/internal/llmtool"
)

var (
	treeDepth     int
	allowRefactor bool
)

func init() {
	rootCmd.AddCommand(
		askCommand(commands.Explain, "explain", "Explain the project", cobra.NoArgs, nil),
		askCommand(commands.Entry, "entry", "Show project entry points", cobra.NoArgs, nil),
		askCommand(commands.Find, "find <symbol...>", "Find where a symbol or concept is defined and used", cobra.MinimumNArgs(1),
			func(args []string, a *commands.Args) { a.Symbols = args }),
		askCommand(commands.ExplainFile, "explain-file <path>", "Explain a specific file", cobra.ExactArgs(1),
			func(args []string, a *commands.Args) { a.Path = args[0] }),
		askCommand(commands.ExplainFlow, "explain-flow <path>", "Trace the execution flow starting at a file", cobra.ExactArgs(1),
			func(args []string, a *commands.Args) { a.Path = args[0] }),
	)

	tree := askCommand(commands.Tree, "tree", "Describe the project layout", cobra.NoArgs,
		func(_ []string, a *commands.Args) { a.Depth = treeDepth })
	tree.Flags().IntVar(&treeDepth, "depth", 4, "Maximum directory depth")

	lint := askCommand(commands.Lint, "lint [path]", "Report likely defects using heuristic signals", cobra.MaximumNArgs(1), optionalPath)
	optimize := askCommand(commands.Optimize, "optimize [path]", "Suggest fixes for expensive operations", cobra.MaximumNArgs(1), optionalPath)
	fix := askCommand(commands.Fix, "fix [path]", "Propose fixes for problems found by heuristic signals", cobra.MaximumNArgs(1),
		func(args []string, a *commands.Args) {
			optionalPath(args, a)
			a.AllowRefactor = allowRefactor
		})
	fix.Flags().BoolVar(&allowRefactor, "allow-refactor", false, "Allow fixes that refactor beyond the offending lines")

	rootCmd.AddCommand(tree, lint, optimize, fix)
}

func optionalPath(args []string, a *commands.Args) {
	if len(args) > 0 {
		a.Path = args[0]
	}
}

// askCommand builds a command that sends a templated task to the loop and
// prints the answer on stdout.
func askCommand(name commands.Command, use, short string, argsCheck cobra.PositionalArgs, fill func([]string, *commands.Args)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  argsCheck,
		RunE: func(cmd *cobra.Command, args []string) error {
			var a commands.Args
			if fill != nil {
				fill(args, &a)
			}
			logger := newLogger()
			engine, err := openEngine(cmd, logger)
			if err != nil {
				return err
			}
			defer engine.Close()

			var obs llmtool.Observer
			if !quietFlag {
				obs = progress(os.Stderr)
			}
			run, err := engine.RunCommand(cmd.Context(), name, a, "cli", obs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), run.Result.Answer)
			return nil
		},
	}
}
