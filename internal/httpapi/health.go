package httpapi

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports liveness of one dependency.
type Pinger func(ctx context.Context) error

// HealthHandler answers readiness probes by pinging the wired dependencies.
type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{checks: make(map[string]Pinger)}
}

// AddCheck registers one named dependency probe.
func (h *HealthHandler) AddCheck(name string, p Pinger) {
	h.checks[name] = p
}

// RegisterRoutes registers /healthz on the provided mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.handle)
}

func (h *HealthHandler) handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
		} else {
			status[name] = "ok"
		}
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
