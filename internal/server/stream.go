package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"devassist/internal/apperr"
	"devassist/internal/llmtool"
	"devassist/internal/trace"
)

const (
	streamWriteWait = 10 * time.Second
	streamPongWait  = 60 * time.Second
	streamPingEvery = (streamPongWait * 9) / 10
)

type streamFrame struct {
	Type    string         `json:"type"`
	RunID   string         `json:"run_id,omitempty"`
	Event   *llmtool.Event `json:"event,omitempty"`
	Answer  string         `json:"answer,omitempty"`
	State   string         `json:"state,omitempty"`
	Steps   int            `json:"steps,omitempty"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
}

// HandleQueryStream answers one question per connection. The client sends
// {"question": ...}; the server replies with a "started" frame, one
// "event" frame per loop event and a final "answer" or "error" frame, then
// closes.
func (h *Handler) HandleQueryStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(streamPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	writeCh := make(chan streamFrame, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(streamPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case out, ok := <-writeCh:
				if !ok {
					_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
					_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
				if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
	finish := func() {
		close(writeCh)
		<-writerDone
	}

	var in queryRequest
	if err := conn.ReadJSON(&in); err != nil {
		cancel()
		<-writerDone
		return
	}
	if strings.TrimSpace(in.Question) == "" {
		pushStream(writeCh, streamFrame{Type: "error", Code: string(apperr.MalformedArguments), Message: "question is required"})
		finish()
		return
	}

	// Drain control frames; a disconnect cancels the query.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	runID := trace.NewRunID()
	pushStream(writeCh, streamFrame{Type: "started", RunID: runID})
	obs := llmtool.ObserverFunc(func(_ context.Context, ev llmtool.Event) {
		pushStream(writeCh, streamFrame{Type: "event", RunID: runID, Event: &ev})
	})
	run, err := h.engine.QueryWithID(ctx, runID, in.Question, "ws", obs)
	if err != nil {
		pushStream(writeCh, streamFrame{Type: "error", RunID: runID, Code: string(apperr.CodeOf(err)), Message: err.Error()})
		finish()
		return
	}
	pushStream(writeCh, streamFrame{
		Type:   "answer",
		RunID:  runID,
		Answer: run.Result.Answer,
		State:  string(run.Result.State),
		Steps:  run.Result.Steps,
	})
	finish()
}

// pushStream never blocks; when the buffer is full the oldest frame is
// dropped.
func pushStream(writeCh chan streamFrame, out streamFrame) {
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
