// Package server exposes the pipeline over HTTP: GitHub webhooks and plain
// JSON events start runs, and run status can be queried.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chartci/internal/core"
	"chartci/internal/security"
)

const maxBodySize = 25 << 20

// Server handles incoming triggers.
type Server struct {
	dispatcher *Dispatcher
	secret     []byte
	mainBranch string
	logger     *slog.Logger
}

func New(d *Dispatcher, secret []byte, mainBranch string, logger *slog.Logger) *Server {
	return &Server{dispatcher: d, secret: secret, mainBranch: mainBranch, logger: logger}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/webhook", s.handleWebhook)
	r.Post("/events", s.handleEvent)
	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{id}", s.handleGetRun)
	return r
}

// readSigned reads the body and checks its HMAC signature.
func (s *Server) readSigned(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return nil, false
	}
	if err := security.VerifyWebhook(s.secret, body, r.Header.Get("X-Hub-Signature-256")); err != nil {
		s.logger.Warn("rejected unsigned trigger", "error", err, "remote_addr", r.RemoteAddr)
		http.Error(w, "", http.StatusUnauthorized)
		return nil, false
	}
	return body, true
}

// POST /webhook -> GitHub push / pull_request deliveries
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readSigned(w, r)
	if !ok {
		return
	}
	eventType := r.Header.Get("X-GitHub-Event")
	if eventType == "ping" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
		return
	}

	ev, start, err := translateGitHub(eventType, body, s.mainBranch)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !start {
		s.logger.Debug("webhook ignored", "event_type", eventType, "delivery", r.Header.Get("X-GitHub-Delivery"))
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}
	s.submit(w, ev)
}

// POST /events -> {"type": "...", "branch": "...", "pull_request": false}
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readSigned(w, r)
	if !ok {
		return
	}
	var payload core.EventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}
	ev, err := payload.ToEvent(s.mainBranch)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.submit(w, ev)
}

func (s *Server) submit(w http.ResponseWriter, ev core.Event) {
	run, err := s.dispatcher.Submit(ev)
	if err != nil {
		status := http.StatusInternalServerError
		var unsupported *core.UnsupportedTriggerError
		var graphErr *core.GraphError
		if errors.As(err, &unsupported) || errors.As(err, &graphErr) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	s.logger.Info("run submitted", "run_id", run.ID, "event", string(ev.Type), "branch", ev.Branch)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":     run.ID,
		"status": run.Status(),
		"plan":   run.Plan(),
	})
}

// GET /runs
func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	runs := s.dispatcher.List()
	out := make([]core.Summary, 0, len(runs))
	for _, run := range runs {
		out = append(out, run.Summary())
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.dispatcher.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run.Summary())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
