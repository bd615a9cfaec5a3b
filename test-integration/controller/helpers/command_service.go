// Package helpers provides fakes shared by the controller integration tests.
package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/toolhive-sync-controller/internal/connectors"
)

// ReplicationResult is what the fake service reports for one replication.
type ReplicationResult struct {
	Status connectors.CommandStatus
	Output connectors.ReplicationOutput
}

// CommandService is an in-process connector command service. Checks always
// succeed unless FailChecks is set; replications consume Results in order and
// succeed once the queue is empty.
type CommandService struct {
	server *httptest.Server

	mu           sync.Mutex
	checks       []connectors.CheckRequest
	replications []connectors.ReplicationRequest
	results      []ReplicationResult
	outcomes     map[string]ReplicationResult
	failChecks   bool
}

// NewCommandService starts the fake service. Close it when done.
func NewCommandService() *CommandService {
	s := &CommandService{outcomes: map[string]ReplicationResult{}}

	r := chi.NewRouter()
	r.Get("/api/v1/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"version": "1.4.0"})
	})
	r.Post("/api/v1/commands/check", s.startCheck)
	r.Post("/api/v1/commands/replicate", s.startReplication)
	r.Get("/api/v1/commands/{id}/status", s.status)
	r.Get("/api/v1/commands/{id}/output", s.output)
	r.Post("/api/v1/commands/{id}/cancel", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/api/v1/connections/{id}/refresh", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	s.server = httptest.NewServer(r)
	return s
}

// URL is the base URL of the service
func (s *CommandService) URL() string {
	return s.server.URL
}

// Close stops the service
func (s *CommandService) Close() {
	s.server.Close()
}

// QueueReplications sets the results of the next replications
func (s *CommandService) QueueReplications(results ...ReplicationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, results...)
}

// FailChecks makes every following check report a failure
func (s *CommandService) FailChecks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failChecks = true
}

// Checks returns the check requests received so far
func (s *CommandService) Checks() []connectors.CheckRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]connectors.CheckRequest(nil), s.checks...)
}

// Replications returns the replication requests received so far
func (s *CommandService) Replications() []connectors.ReplicationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]connectors.ReplicationRequest(nil), s.replications...)
}

func (s *CommandService) startCheck(w http.ResponseWriter, r *http.Request) {
	var req connectors.CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.checks = append(s.checks, req)
	s.mu.Unlock()
	writeJSON(w, map[string]string{"id": req.CommandID})
}

func (s *CommandService) startReplication(w http.ResponseWriter, r *http.Request) {
	var req connectors.ReplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.replications = append(s.replications, req)
	result := ReplicationResult{
		Status: connectors.CommandStatusCompleted,
		Output: connectors.ReplicationOutput{RecordsCommitted: 100, BytesCommitted: 2048},
	}
	if len(s.results) > 0 {
		result, s.results = s.results[0], s.results[1:]
	}
	s.outcomes[req.CommandID] = result
	s.mu.Unlock()

	writeJSON(w, map[string]string{"id": req.CommandID})
}

func (s *CommandService) status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.HasPrefix(id, "check_") {
		writeJSON(w, map[string]connectors.CommandStatus{"status": connectors.CommandStatusCompleted})
		return
	}
	result, ok := s.outcomes[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]connectors.CommandStatus{"status": result.Status})
}

func (s *CommandService) output(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.HasPrefix(id, "check_") {
		if s.failChecks {
			writeJSON(w, connectors.CheckOutput{Succeeded: false, Message: "invalid credentials"})
			return
		}
		writeJSON(w, connectors.CheckOutput{Succeeded: true})
		return
	}
	result, ok := s.outcomes[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, result.Output)
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
