// Package health serves the liveness and readiness endpoints of the
// subtitle pipeline.
//
//   - /healthz — liveness; a process that can answer HTTPS is alive,
//     so this always returns 200.
//   - /readyz  — readiness; 200 only while every registered [Checker]
//     passes. The app registers one checker per remote backend, fed by
//     that backend's circuit breaker, so an open breaker flips the
//     process to 503 until the backend recovers.
//
// Both endpoints answer JSON: a top-level "status" of "ok" or "fail",
// and for readiness a "checks" map with one entry per backend.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds a single readiness check.
const probeTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil while the backend
// is usable and a descriptive error otherwise.
type Checker struct {
	// Name keys the check in the readiness response ("asr", "translate").
	Name string

	// Check probes the backend. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// report is the response body shape for both endpoints.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers the health endpoints. Safe for concurrent use; the
// checker set is fixed at construction.
type Handler struct {
	checkers []Checker
}

// New creates a Handler evaluating the given checkers, in order, on every
// readiness request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always reports ok.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every checker and reports 200 only when all pass. Each check
// gets a probeTimeout deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := report{
		Status: "ok",
		Checks: make(map[string]string, len(h.checkers)),
	}
	status := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		} else {
			res.Checks[c.Name] = "ok"
		}
	}

	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
