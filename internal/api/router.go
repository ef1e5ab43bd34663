package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lattice/internal/config"
	"lattice/internal/gateway"
	"lattice/internal/store"
)

// Server wraps the chi router exposing health and WebSocket-upgrade
// endpoints in front of a running Gateway.
type Server struct {
	router *chi.Mux
	gw     *gateway.Gateway
}

func NewServer(cfg *config.Config, db *store.DB, gw *gateway.Gateway, log *slog.Logger) (*Server, error) {
	ipResolver, err := NewClientIPResolver(cfg.Server.TrustedProxyCIDRs)
	if err != nil {
		return nil, err
	}

	healthHandler := NewHealthHandler(db)
	wsHandler := NewWebSocketHandler(gw, cfg.Server.WebSocket, ipResolver, log)
	wsUpgradeLimiter := NewRateLimiter(30, time.Minute)

	r := chi.NewRouter()
	r.Use(slogRequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.Server.WebSocket.AllowedOrigins))
	r.Use(securityHeadersMiddleware)

	r.Get("/health", healthHandler.Check)
	r.With(RateLimitMiddleware(wsUpgradeLimiter, ipResolver)).Get("/ws", wsHandler.ServeWS)

	return &Server{router: r, gw: gw}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowedForCORS(origin, allowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowedForCORS(origin string, allowedOrigins []string) bool {
	if isLoopbackOrigin(origin) {
		return true
	}
	for _, allowed := range allowedOrigins {
		if originMatchesAllowed(origin, allowed) {
			return true
		}
	}
	return false
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func slogRequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/ws" {
				// The upgrade hijacks the connection; logging happens from
				// the transport layer instead, per-frame logging here would
				// just describe the 101 response.
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
				"remote", r.RemoteAddr,
			)
		})
	}
}
