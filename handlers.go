package qdash

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pitabwire/qdash/queues"
	"github.com/pitabwire/qdash/reset"
)

// QueueSummary is one row of the queue listing.
type QueueSummary struct {
	Name        string        `json:"name"`
	Engine      string        `json:"engine"`
	Counts      queues.Counts `json:"counts"`
	CountsError string        `json:"countsError,omitempty"`
}

func (s *Service) buildHandler() http.Handler {
	mux := http.NewServeMux()
	base := s.cfg.ControlBasePath()

	gate := s.authGate
	if gate == nil {
		gate = func(next http.Handler) http.Handler { return next }
	}

	mux.Handle("GET "+base+"/api/queues", gate(http.HandlerFunc(s.handleQueueList)))
	mux.Handle("POST "+base+"/api/queues/obliterate", gate(http.HandlerFunc(s.handleObliterateAll)))

	healthPath := s.healthCheckPath
	if healthPath == "" {
		healthPath = "/healthz"
	}
	mux.HandleFunc("GET "+healthPath, s.handleHealth)

	facade := s.facade
	if facade == nil {
		facade = defaultFacade(s.name)
	}
	rootPattern := "GET " + base + "/{$}"
	if base == "" {
		rootPattern = "GET /{$}"
	}
	mux.Handle(rootPattern, gate(s.rootDocumentTransform(facade)))

	var handler http.Handler = mux
	if s.telemetryEnabled() {
		handler = otelhttp.NewHandler(handler, s.name)
	}

	return handler
}

// handleQueueList reports every registered queue with its per-state job
// counts. An unpopulated registry renders as an empty list: an empty
// dashboard, never an error page.
func (s *Service) handleQueueList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	adapters := s.registry.Current()
	summaries := make([]QueueSummary, 0, len(adapters))
	for _, adapter := range adapters {
		summary := QueueSummary{
			Name:   adapter.Name(),
			Engine: adapter.Engine().String(),
		}

		counts, err := adapter.Counts(ctx)
		if err != nil {
			s.Log(ctx).WithError(err).WithField("queue", adapter.Name()).
				Warn("could not read queue counts")
			summary.CountsError = err.Error()
		} else {
			summary.Counts = counts
		}

		summaries = append(summaries, summary)
	}

	s.writeJSON(ctx, w, http.StatusOK, summaries)
}

// handleObliterateAll clears every registered queue. Force defaults on so
// active jobs do not stall the fleet-wide reset; pass force=false to make
// each adapter refuse queues with jobs in flight.
func (s *Service) handleObliterateAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	force := true
	if raw := r.URL.Query().Get("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "invalid force parameter", http.StatusBadRequest)
			return
		}
		force = parsed
	}

	executor := &reset.Executor{
		Registry:    s.registry,
		Pool:        s.pool,
		Concurrency: s.cfg.GetResetConcurrency(),
	}

	result := executor.ResetAll(ctx, force)

	status := http.StatusOK
	if !result.Attempted {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(ctx, w, status, result)
}

func (s *Service) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.Log(ctx).WithError(err).Error("encoding response payload")
	}
}
