// Package server implements the public beacon/callback surface and the
// authenticated operator API.
package server

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blindspot-sh/blindspot/internal/beacon"
	"github.com/blindspot-sh/blindspot/internal/logging"
	"github.com/blindspot-sh/blindspot/internal/notify"
	"github.com/blindspot-sh/blindspot/internal/ratelimit"
)

// PublicServer serves the beacon script on every unmatched path and
// receives fingerprint callbacks on /cb. It is intentionally
// unauthenticated: victim browsers on arbitrary origins must be able to
// reach it.
type PublicServer struct {
	DB         *sql.DB
	Logger     *zap.Logger
	Dispatcher *notify.Dispatcher
	Limiter    *ratelimit.Limiter
}

// Handler returns the HTTP handler for the public surface.
func (s *PublicServer) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestContext)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Post("/cb", s.rateLimited(s.handleCallback))
	r.Get("/*", s.handleBeacon)
	r.Get("/", s.handleBeacon)

	return r
}

// requestContext resolves the source address once per request and tags
// the request with a correlation ID for logging.
func (s *PublicServer) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = withRequestID(r, uuid.NewString())
		r = withSourceIP(r, ResolveSourceIP(s.DB, r))
		next.ServeHTTP(w, r)
	})
}

// rateLimited rejects requests over the per-address window before any
// database write happens.
func (s *PublicServer) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := sourceIPFrom(r)
		if !s.Limiter.Allow(ip) {
			s.Logger.Warn("callback rate limit exceeded",
				logging.SourceIP(ip),
				logging.RequestID(requestIDFrom(r)))
			http.Error(w, "rate limit exceeded, try again later", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// handleBeacon serves the generated beacon script. A final path segment
// matching the tracking identifier pattern is embedded into the script;
// any other path serves an untagged beacon.
func (s *PublicServer) handleBeacon(w http.ResponseWriter, r *http.Request) {
	identifier := beacon.ExtractIdentifier(r.URL.Path)

	script, err := beacon.Render(r.Host, identifier)
	if err != nil {
		s.Logger.Error("render beacon failed",
			logging.Path(r.URL.Path),
			logging.RequestID(requestIDFrom(r)),
			zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.Logger.Debug("beacon served",
		logging.Host(r.Host),
		logging.Path(r.URL.Path),
		logging.TrackingID(identifier),
		logging.SourceIP(sourceIPFrom(r)))

	w.Header().Set("Content-Type", "application/javascript")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(script))
}
