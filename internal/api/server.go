// Package api serves the node's local HTTP API.
package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/agsys/lowapp/internal/auth"
	"github.com/agsys/lowapp/internal/engine"
	"github.com/agsys/lowapp/internal/peer"
	"github.com/agsys/lowapp/internal/queue"
	"github.com/agsys/lowapp/internal/telemetry"
)

// ResponseLogSize is the number of responses kept for /responses
const ResponseLogSize = 64

// Core is the part of the protocol core the API reads and drives
type Core interface {
	Snapshot() engine.Status
	Peers() map[uint8]peer.Record
	Who() []queue.Sighting
	SubmitAT(line string) error
}

// Response is a core response with the time it was emitted
type Response struct {
	Time    time.Time `json:"time"`
	Payload string    `json:"payload"`
}

// Server is the REST API server
type Server struct {
	core   Core
	auth   *auth.Manager
	log    zerolog.Logger
	router chi.Router
	server *http.Server

	mu        sync.Mutex
	responses []Response
}

// NewServer creates the API server. Record must be subscribed to the
// core's responses for /responses to return anything.
func NewServer(core Core, authMgr *auth.Manager, log zerolog.Logger) *Server {
	s := &Server{
		core:   core,
		auth:   authMgr,
		log:    log.With().Str("component", "api").Logger(),
		router: chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", telemetry.Instrument("health", http.HandlerFunc(s.HandleHealth)))
		r.Method(http.MethodGet, "/status", telemetry.Instrument("status", http.HandlerFunc(s.HandleStatus)))
		r.Method(http.MethodGet, "/peers", telemetry.Instrument("peers", http.HandlerFunc(s.HandlePeers)))
		r.Method(http.MethodGet, "/who", telemetry.Instrument("who", http.HandlerFunc(s.HandleWho)))
		r.Method(http.MethodGet, "/responses", telemetry.Instrument("responses", http.HandlerFunc(s.HandleResponses)))

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Method(http.MethodPost, "/at", telemetry.Instrument("at", http.HandlerFunc(s.HandleAT)))
		})
	})

	s.router.Handle("/metrics", telemetry.MetricsHandler())
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Record keeps resp in the response log
func (s *Server) Record(resp string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.responses = append(s.responses, Response{Time: time.Now().UTC(), Payload: resp})
	if n := len(s.responses); n > ResponseLogSize {
		s.responses = append([]Response(nil), s.responses[n-ResponseLogSize:]...)
	}
}

// ListenAndServe starts the server
func (s *Server) ListenAndServe(addr string) error {
	s.server.Addr = addr
	s.log.Info().Str("addr", addr).Msg("Starting API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.respondError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.respondError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		claims, err := s.auth.ValidateToken(parts[1])
		if err != nil {
			s.log.Debug().Err(err).Msg("Token rejected")
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		s.log.Debug().Str("subject", claims.Subject).Str("request_id", middleware.GetReqID(r.Context())).Msg("Authorised")
		next.ServeHTTP(w, r)
	})
}
