package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"devassist/internal/server"
)

var listenFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serve the tool registry and the orchestration loop over HTTP
(HTTP/1.1 and cleartext HTTP/2).

Endpoints:
  GET  /healthz
  GET  /v1/tools
  POST /v1/tools/{name}
  POST /v1/query          {"question": "..."}
  POST /v1/signals        {"path": "."}
  GET  /v1/query/stream   WebSocket, streams loop events
  GET  /debug/run-logs?run_id=...`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenFlag, "listen", "", "Listen address (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	engine, err := openEngine(cmd, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	addr := engine.Config.Listen
	if listenFlag != "" {
		addr = listenFlag
	}
	srv := server.New(addr, server.NewMux(server.NewHandler(engine)), logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-cmd.Context().Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
