package server

import "net/http"

func NewMux(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.HandleFunc("GET /v1/tools", h.HandleListTools)
	mux.HandleFunc("POST /v1/tools/{name}", h.HandleCallTool)
	mux.HandleFunc("POST /v1/query", h.HandleQuery)
	mux.HandleFunc("POST /v1/signals", h.HandleSignals)
	mux.HandleFunc("GET /v1/query/stream", h.HandleQueryStream)

	// Debug
	mux.HandleFunc("GET /debug/run-logs", h.HandleRunLogs)

	return cors(h.origins, mux)
}
