package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Aman-CERP/noterag/internal/search"
)

// Server-sent event payloads. The stream for one chat request is a
// fixed sequence: tool_call frames for each retrieval step, text
// fragments, one citations frame, then done.
type toolCallEvent struct {
	Type   string `json:"type"`
	Tool   string `json:"tool"`
	Status string `json:"status"`
	Count  *int   `json:"count,omitempty"`
}

type textEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type citationsEvent struct {
	Type string            `json:"type"`
	Data []search.Citation `json:"data"`
}

type doneEvent struct {
	Type string `json:"type"`
}

func toolRunning(tool string) toolCallEvent {
	return toolCallEvent{Type: "tool_call", Tool: tool, Status: "running"}
}

func toolCompleted(tool string, count int) toolCallEvent {
	return toolCallEvent{Type: "tool_call", Tool: tool, Status: "completed", Count: &count}
}

// sseWriter frames JSON events for an EventSource client, flushing
// after each event so fragments arrive as they are produced.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) send(event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}

	sw, ok := newSSEWriter(w)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming not supported"})
		return
	}

	ctx := r.Context()
	localK, webK := s.searcher.Budget(req.ratio())
	s.logger.Info("chat_started",
		slog.String("query", req.Query),
		slog.Int("local_k", localK),
		slog.Int("web_k", webK))

	// Retrieval failures degrade to an empty result set so the stream
	// always reaches the answer and citations frames.
	var local []search.Result
	if localK > 0 {
		if err := sw.send(toolRunning("local_search")); err != nil {
			return
		}
		results, err := s.searcher.LocalSearch(ctx, req.Query, localK)
		if err != nil {
			s.logger.Error("chat_local_search_failed", slog.String("error", err.Error()))
		}
		local = results
		if err := sw.send(toolCompleted("local_search", len(local))); err != nil {
			return
		}
	}

	var web []search.Result
	if webK > 0 {
		if err := sw.send(toolRunning("web_search")); err != nil {
			return
		}
		web = s.searcher.WebSearch(ctx, req.Query, webK)
		if err := sw.send(toolCompleted("web_search", len(web))); err != nil {
			return
		}
	}

	all := append(local, web...)

	err := s.answerer.Stream(ctx, req.Query, all, func(fragment string) error {
		return sw.send(textEvent{Type: "text", Content: fragment})
	})
	if err != nil {
		s.logger.Warn("chat_stream_interrupted", slog.String("error", err.Error()))
		return
	}

	if err := sw.send(citationsEvent{Type: "citations", Data: search.FormatCitations(all)}); err != nil {
		return
	}
	_ = sw.send(doneEvent{Type: "done"})

	s.logger.Info("chat_completed",
		slog.Int("local", len(local)),
		slog.Int("web", len(web)))
}
