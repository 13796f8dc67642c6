// Package completiontest provides a scripted chat-completions server so
// tests can wire a real completion client without a live model. The server
// tells classification calls from generation calls by the structured
// response format marker the client sends, and answers each from its own
// script.
package completiontest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Ops a recorded request can carry.
const (
	OpClassify = "classify"
	OpGenerate = "generate"
)

// Request is one recorded chat-completions call.
type Request struct {
	Op     string
	Model  string
	System string
	User   string
}

// Reply scripts one response. A zero Status answers 200 with Content as
// the assistant message; a nonzero Status answers an API error envelope
// with ErrorMessage. Delay is applied before writing either.
type Reply struct {
	Content      string
	Status       int
	ErrorMessage string
	Delay        time.Duration
}

// Server emulates the chat-completions endpoint. Queued replies are
// consumed in order per op; once a queue drains, the stubbed defaults
// answer, so tests only script the calls they assert on.
type Server struct {
	srv *httptest.Server

	mu             sync.Mutex
	classification string
	generation     string
	classifyQueue  []Reply
	generateQueue  []Reply
	requests       []Request
}

// New starts a mock server with neutral defaults: a low-confidence
// "unknown" classification and a generic receptionist line.
func New() *Server {
	s := &Server{
		classification: ClassificationJSON("unknown", 0.3),
		generation:     "Thanks for calling. How can I help you today?",
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handler))
	return s
}

// URL returns the base URL to use as the completion client's BaseURL.
func (s *Server) URL() string {
	return s.srv.URL
}

// Close shuts the server down.
func (s *Server) Close() {
	s.srv.Close()
}

// StubClassification replaces the default classification content. The
// string is returned verbatim, so tests can also stub malformed JSON.
func (s *Server) StubClassification(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classification = content
}

// StubGeneration replaces the default generated reply text.
func (s *Server) StubGeneration(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation = text
}

// Queue appends a one-shot reply for the given op, consumed before the
// stubbed default.
func (s *Server) Queue(op string, rep Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch op {
	case OpClassify:
		s.classifyQueue = append(s.classifyQueue, rep)
	default:
		s.generateQueue = append(s.generateQueue, rep)
	}
}

// Requests returns a copy of every recorded call, in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestCount returns the number of calls received.
func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// ClassificationJSON renders the message content for a classification
// with the given intent, confidence, and matcher keywords.
func ClassificationJSON(intent string, confidence float64, keywords ...string) string {
	payload := map[string]any{
		"intent":     intent,
		"confidence": confidence,
	}
	if len(keywords) > 0 {
		payload["keywords"] = keywords
	}
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("completiontest: marshal classification: %v", err))
	}
	return string(data)
}

func (s *Server) handler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req wireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	op := OpGenerate
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
		op = OpClassify
	}

	rec := Request{Op: op, Model: req.Model}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			rec.System = m.Content
		case "user":
			rec.User = m.Content
		}
	}

	s.mu.Lock()
	s.requests = append(s.requests, rec)
	var rep Reply
	switch op {
	case OpClassify:
		if len(s.classifyQueue) > 0 {
			rep, s.classifyQueue = s.classifyQueue[0], s.classifyQueue[1:]
		} else {
			rep = Reply{Content: s.classification}
		}
	default:
		if len(s.generateQueue) > 0 {
			rep, s.generateQueue = s.generateQueue[0], s.generateQueue[1:]
		} else {
			rep = Reply{Content: s.generation}
		}
	}
	s.mu.Unlock()

	if rep.Delay > 0 {
		time.Sleep(rep.Delay)
	}
	if rep.Status != 0 {
		writeError(w, rep.Status, rep.ErrorMessage)
		return
	}

	resp := wireResponse{
		ID:    "cmpl-test",
		Model: req.Model,
		Choices: []wireChoice{{
			Message:      wireMessage{Role: "assistant", Content: rep.Content},
			FinishReason: "stop",
		}},
	}
	resp.Usage.PromptTokens = 12
	resp.Usage.CompletionTokens = 8
	resp.Usage.TotalTokens = 20

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "invalid_request_error",
		},
	})
}

// Wire mirror of the chat-completions format the client speaks.

type wireRequest struct {
	Model          string        `json:"model"`
	Messages       []wireMessage `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}
