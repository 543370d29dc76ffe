// Package api provides the HTTP server for the progression engine.
// It exposes a JSON API under /api/progression plus a websocket feed of
// level-up, badge and quest signals.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/dadbase/dadbase/internal/app/progression"
	"github.com/dadbase/dadbase/internal/domain"
	"github.com/dadbase/dadbase/internal/health"
	"github.com/dadbase/dadbase/internal/infra/metrics"
)

// Version is reported by /api/version.
const Version = "0.1.0"

// Server is the progression HTTP API server.
type Server struct {
	engine         *progression.Engine
	notifications  *progression.NotificationService
	hub            *Hub
	health         *health.Checker
	metricsEnabled bool
	corsOrigins    []string
	timeout        time.Duration
}

// NewServer creates a new API server.
func NewServer(engine *progression.Engine, notifications *progression.NotificationService) *Server {
	return &Server{
		engine:        engine,
		notifications: notifications,
		timeout:       30 * time.Second,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHub mounts the websocket feed on /ws.
func (s *Server) SetHub(h *Hub) { s.hub = h }

// SetHealth makes /health report the checker's results.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// SetCORSOrigins restricts Access-Control-Allow-Origin. Empty allows any.
func (s *Server) SetCORSOrigins(origins []string) { s.corsOrigins = origins }

// SetTimeout sets the per-request deadline.
func (s *Server) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(corsMiddleware(s.corsOrigins))

	r.Get("/health", s.handleHealth)

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": Version,
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// The websocket route must not run under the request timeout.
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWebSocket)
	}

	r.Route("/api/progression", func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))

		r.Get("/leaderboard", s.handleLeaderboard)

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/levels", s.handleCatalogLevels)
			r.Get("/badges", s.handleCatalogBadges)
			r.Get("/titles", s.handleCatalogTitles)
			r.Get("/quests", s.handleCatalogQuests)
		})

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/", s.handleEnsureUser)
			r.Get("/", s.handleSummary)
			r.Get("/history", s.handleHistory)

			r.Post("/xp", s.handleGrantXP)
			r.Post("/actions", s.handleTrack)
			r.Post("/badges/scan", s.handleScanBadges)

			r.Post("/checkin", s.handleCheckIn)
			r.Get("/streak", s.handleStreak)
			r.Post("/streak/freeze", s.handleUseFreeze)
			r.Post("/streak/freezes", s.handleAddFreezes)

			r.Get("/titles", s.handleTitles)
			r.Put("/title", s.handleSetTitle)
			r.Post("/titles/special", s.handleGrantSpecialTitle)

			r.Get("/quests", s.handleQuests)
			r.Post("/quests", s.handleRollQuests)
			r.Post("/quests/{questID}/progress", s.handleQuestProgress)
			r.Post("/quests/{questID}/claim", s.handleClaimQuest)

			r.Get("/notifications", s.handleNotifications)
			r.Post("/notifications/{notificationID}/shown", s.handleNotificationShown)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    errorType(status),
		},
	})
}

// writeEngineError maps engine sentinels onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		log.WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
		}).WithError(err).Error("request failed")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrQuestNotFound),
		errors.Is(err, domain.ErrUnknownTitle):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownReason),
		errors.Is(err, domain.ErrInvalidMultiplier),
		errors.Is(err, domain.ErrUnknownLeaderboardType),
		errors.Is(err, domain.ErrInvalidProgress),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrReservedReason),
		errors.Is(err, domain.ErrUnknownDimension):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientFreezes),
		errors.Is(err, domain.ErrTitleNotUnlocked),
		errors.Is(err, domain.ErrQuestNotCompleted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	return "error"
}

// decodeJSON reads an optional JSON body. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// instrument records request latency by chi route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

// corsMiddleware adds CORS headers. No origins means any origin.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch origin := r.Header.Get("Origin"); {
			case len(allowed) == 0 || allowed["*"]:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
