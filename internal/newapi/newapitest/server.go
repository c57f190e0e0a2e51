// Package newapitest provides a scripted upstream gateway for tests.
package newapitest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Request is a recorded upstream call.
type Request struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   map[string]any
}

// Reply is the envelope returned for a route.
type Reply struct {
	Status  int
	Success bool
	Message string
	Data    any
}

// OK is a successful reply carrying data.
func OK(data any) Reply { return Reply{Success: true, Data: data} }

// Fail is a success=false reply with message.
func Fail(message string) Reply { return Reply{Success: false, Message: message} }

// Server is a fake gateway. Routes are keyed by "METHOD /path".
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	routes   map[string]func(Request) Reply
	requests []Request
}

// New starts a fake gateway; close it with Close.
func New() *Server {
	s := &Server{routes: make(map[string]func(Request) Reply)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Handle registers a dynamic reply.
func (s *Server) Handle(method, path string, fn func(Request) Reply) {
	s.mu.Lock()
	s.routes[method+" "+path] = fn
	s.mu.Unlock()
}

// Reply registers a fixed reply.
func (s *Server) Reply(method, path string, reply Reply) {
	s.Handle(method, path, func(Request) Reply { return reply })
}

// Requests returns the recorded calls in order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns how many calls hit method and path.
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	req := Request{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Header: r.Header.Clone()}
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		_ = json.Unmarshal(raw, &req.Body)
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	fn := s.routes[r.Method+" "+r.URL.Path]
	s.mu.Unlock()

	if fn == nil {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "not found"})
		return
	}
	reply := fn(req)
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": reply.Success,
		"message": reply.Message,
		"data":    reply.Data,
	})
}
