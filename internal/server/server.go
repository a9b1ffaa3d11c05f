package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardcast/internal/api/ws"
	"github.com/gosuda/boardcast/internal/auth"
	"github.com/gosuda/boardcast/internal/collab"
	"github.com/gosuda/boardcast/internal/config"
	"github.com/gosuda/boardcast/internal/server/middleware"
	"github.com/gosuda/boardcast/internal/store/postgres"
	redisstore "github.com/gosuda/boardcast/internal/store/redis"
)

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	store      *postgres.Store
	presence   *redisstore.Presence
	engine     *collab.Engine
	wsHub      *ws.Hub
	cfg        *config.Config
}

// New creates a Server with all routes wired.
func New(cfg *config.Config, store *postgres.Store, presence *redisstore.Presence, authSvc *auth.Service, engine *collab.Engine) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Logger)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	hub := ws.NewHub(engine, ws.Options{
		WriteTimeout:    cfg.WebSocket.WriteTimeout,
		EventsPerSecond: cfg.WebSocket.EventsPerSecond,
		EventBurst:      cfg.WebSocket.EventBurst,
		OriginPatterns:  originPatterns(cfg.Server.CORSOrigins),
	})

	s := &Server{
		router:   router,
		store:    store,
		presence: presence,
		engine:   engine,
		wsHub:    hub,
		cfg:      cfg,
		httpServer: &http.Server{
			Addr:        cfg.Server.Addr,
			Handler:     router,
			ReadTimeout: cfg.Server.ReadTimeout,
			// WriteTimeout is left unset: it would cut long-lived sockets.
			// REST handlers are bounded by chi's Timeout instead.
		},
	}

	authMW := middleware.Auth(authSvc)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.Server.WriteTimeout))
		r.Use(authMW)
		r.Use(middleware.RateLimit(100, 200))

		apiConfig := huma.DefaultConfig("Boardcast API", "1.0.0")
		apiConfig.Servers = []*huma.Server{
			{URL: "/api/v1"},
		}
		api := humachi.New(r, apiConfig)
		registerAPIRoutes(api, engine, store, presence)
	})

	// WebSocket routes. Handshakes are throttled per IP before the
	// credential is checked.
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(5, 20))
		r.Use(authMW)
		registerWSRoutes(r, hub)
	})

	// Health check (unauthenticated).
	router.Get("/healthz", s.healthz)

	return s
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	if err := s.store.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("healthz: postgres")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable","component":"postgres"}`))
		return
	}
	if err := s.presence.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("healthz: redis")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable","component":"redis"}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// originPatterns turns CORS origins into the host patterns the WebSocket
// handshake checks against.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			patterns = append(patterns, "*")
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			patterns = append(patterns, o)
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server. Hijacked WebSocket connections
// are not tracked by http.Server; they close when the engine stops.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
