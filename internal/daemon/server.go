package daemon

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Defaults fill trigger requests that omit a field.
type Defaults struct {
	ReceiverDB string
	CatalogDB  string
	ParserName string
	BatchSize  int
	MaxBatches int
}

// Server exposes the queue over HTTP: GET /health and POST /trigger.
type Server struct {
	queue     *Queue
	authToken string
	defaults  Defaults
}

func NewServer(queue *Queue, authToken string, defaults Defaults) *Server {
	return &Server{queue: queue, authToken: strings.TrimSpace(authToken), defaults: defaults}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/trigger", s.handleTrigger)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	snapshot := s.queue.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"worker":      snapshot.Worker,
		"queue_depth": snapshot.QueueDepth,
		"counters":    snapshot.Counters,
		"last_result": snapshot.LastResult,
	})
}

type triggerRequest struct {
	ReceiverDB string `json:"receiver_db"`
	CatalogDB  string `json:"catalog_db"`
	ParserName string `json:"parser_name"`
	BatchSize  int    `json:"batch_size"`
	MaxBatches int    `json:"max_batches"`
	RunID      string `json:"run_id"`
	Source     string `json:"source"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}

	var req triggerRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unreadable body"})
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
			return
		}
	}

	task := Task{
		ID:         uuid.NewString(),
		ReceiverDB: firstNonEmpty(req.ReceiverDB, s.defaults.ReceiverDB),
		CatalogDB:  firstNonEmpty(req.CatalogDB, s.defaults.CatalogDB),
		ParserName: firstNonEmpty(req.ParserName, s.defaults.ParserName),
		BatchSize:  req.BatchSize,
		MaxBatches: req.MaxBatches,
		RunID:      strings.TrimSpace(req.RunID),
		Source:     strings.TrimSpace(req.Source),
		EnqueuedAt: time.Now().UTC(),
	}
	if task.BatchSize <= 0 {
		task.BatchSize = s.defaults.BatchSize
	}
	if task.MaxBatches <= 0 {
		task.MaxBatches = s.defaults.MaxBatches
	}

	if task.ReceiverDB == "" || task.CatalogDB == "" || task.ParserName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "receiver_db, catalog_db and parser_name are required",
		})
		return
	}

	switch err := s.queue.Enqueue(task); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "task_id": task.ID})
	case errors.Is(err, ErrDuplicateTask):
		writeJSON(w, http.StatusConflict, map[string]any{"status": "duplicate"})
	case errors.Is(err, ErrQueueFull):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "queue_full"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}

// authorized checks the bearer token when one is configured. The token
// rides in Authorization or X-Converter-Token.
func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(header, "Bearer ") && strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")) == s.authToken {
		return true
	}
	return strings.TrimSpace(r.Header.Get("X-Converter-Token")) == s.authToken
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
