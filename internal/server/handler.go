// Package server exposes the engine over HTTP and WebSocket.
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"devassist/internal/app"
	"devassist/internal/apperr"
	"devassist/internal/trace"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type Handler struct {
	engine   *app.Engine
	origins  originPolicy
	upgrader websocket.Upgrader
}

func NewHandler(e *app.Engine) *Handler {
	h := &Handler{engine: e, origins: newOriginPolicy(e.Config.CORSOrigins)}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.origins.checkOrigin,
	}
	return h
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	if code == "" {
		code = "INTERNAL"
	}
	writeJSON(w, statusOf(code), errorBody{Code: string(code), Error: err.Error()})
}

func statusOf(code apperr.Code) int {
	switch code {
	case apperr.AccessDenied:
		return http.StatusForbidden
	case apperr.NotFound, apperr.ToolNotFound:
		return http.StatusNotFound
	case apperr.UnsupportedType:
		return http.StatusUnsupportedMediaType
	case apperr.MalformedArguments:
		return http.StatusBadRequest
	case apperr.ToolInvocation:
		return http.StatusUnprocessableEntity
	case apperr.ReasoningService:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// readBody decodes a JSON request body into v; an empty body leaves v as is.
func readBody(r *http.Request, v any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperr.Wrap(apperr.MalformedArguments, err, "cannot read body")
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Wrap(apperr.MalformedArguments, err, "invalid json body")
	}
	return nil
}

func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"workspace": h.engine.FS.Name(),
		"version":   app.Version,
	})
}

func (h *Handler) HandleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": h.engine.Registry.Specs()})
}

func (h *Handler) HandleCallTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, apperr.Wrap(apperr.MalformedArguments, err, "cannot read body"))
		return
	}
	out, err := h.engine.Registry.Call(r.Context(), name, raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tool": name, "result": json.RawMessage(out)})
}

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	RunID  string `json:"run_id"`
	Answer string `json:"answer"`
	State  string `json:"state"`
	Steps  int    `json:"steps"`
}

func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var in queryRequest
	if err := readBody(r, &in); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(in.Question) == "" {
		writeError(w, apperr.New(apperr.MalformedArguments, "question is required"))
		return
	}
	run, err := h.engine.Query(r.Context(), in.Question, "api", nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{
		RunID:  run.ID,
		Answer: run.Result.Answer,
		State:  string(run.Result.State),
		Steps:  run.Result.Steps,
	})
}

func (h *Handler) HandleSignals(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Path string `json:"path"`
	}
	if err := readBody(r, &in); err != nil {
		writeError(w, err)
		return
	}
	report, err := h.engine.Signals(r.Context(), in.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// traceReader is implemented by sinks that can replay a run.
type traceReader interface {
	Read(runID string) ([]trace.Event, error)
}

func (h *Handler) HandleRunLogs(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.URL.Query().Get("run_id"))
	if runID == "" {
		http.Error(w, "run_id is required", http.StatusBadRequest)
		return
	}
	reader, ok := h.engine.Trace.(traceReader)
	if !ok {
		http.Error(w, "run logs are not readable from the configured trace sink", http.StatusNotImplemented)
		return
	}
	events, err := reader.Read(runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": runID,
		"events": events,
	})
}
