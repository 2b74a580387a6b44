package main

import (
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"devassist/internal/app"
	"devassist/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout.

Every workspace tool is exposed, plus "query", which answers a question by
running the orchestration loop. Logs go to stderr since stdout carries the
protocol.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	var logger *log.Logger
	if quietFlag {
		logger = log.New(io.Discard, "", 0)
	} else {
		logger = log.New(os.Stderr, "[devassist-mcp] ", log.LstdFlags)
	}
	engine, err := openEngine(cmd, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	logger.Printf("serving %d tools for %s", len(engine.Registry.Specs()), engine.FS.Root())
	return mcp.ServeStdio(cmd.Context(), engine.Registry, app.Name, app.Version)
}
