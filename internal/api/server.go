// Package api exposes the call engine's admin/health surface: ambient
// bootstrap plumbing, not core call-control logic. A chi-based router
// assembly, trimmed from a full PBX admin CRUD surface to health,
// readiness, and a metrics endpoint.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowpbx/callengine/internal/api/middleware"
)

// SessionCounter reports how many calls are currently active, for the
// readiness/health payload.
type SessionCounter interface {
	ActiveSessionCount() int
}

// NewRouter assembles the chi router: structured logging, panic recovery,
// security headers, CORS, and a per-IP rate limiter on every route,
// wired through the shared middleware stack.
func NewRouter(corsOrigins []string, sessions SessionCounter, startTime time.Time) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders(false))
	r.Use(middleware.CORS(corsOrigins))

	limiter := middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig())
	r.Use(middleware.RateLimit(limiter))

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(sessions))
	r.Get("/status", handleStatus(sessions, startTime))
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleReadyz(sessions SessionCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}
}

func handleStatus(sessions SessionCounter, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active := 0
		if sessions != nil {
			active = sessions.ActiveSessionCount()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"active_sessions": active,
			"uptime_seconds":  time.Since(startTime).Seconds(),
		})
	}
}
