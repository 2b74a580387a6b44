package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var signalsCmd = &cobra.Command{
	Use:   "signals [path]",
	Short: "Print the heuristic signal report as JSON",
	Long: `Collect definitions, usages, unused symbols, external-effect sites,
exception handling sites and expensive operations for a subtree, without
calling the reasoning service.

The analysis is textual and heuristic. Homonymous definitions keep the last
one found, and a usage on the same line number as the definition (in any
file) is not counted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSignals,
}

func init() {
	rootCmd.AddCommand(signalsCmd)
}

func runSignals(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	engine, err := openEngine(cmd, newLogger())
	if err != nil {
		return err
	}
	defer engine.Close()

	report, err := engine.Signals(cmd.Context(), path)
	if err != nil {
		return err
	}
	out, err := report.JSON()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
