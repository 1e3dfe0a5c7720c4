// Package gateway exposes the HTTP surface of the Sentir server: the REST
// API the browser client calls, the live-session WebSocket, and the
// operational endpoints (health, readiness, Prometheus metrics).
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentirlabs/sentir/internal/companion"
	"github.com/sentirlabs/sentir/internal/journal"
	"github.com/sentirlabs/sentir/internal/observe"
	"github.com/sentirlabs/sentir/pkg/audio"
	"github.com/sentirlabs/sentir/pkg/provider/live"
	"github.com/sentirlabs/sentir/pkg/provider/media"
)

// Companion is the conversation surface the gateway drives. Implemented by
// *companion.Engine; narrowed to an interface so handler tests can fake it.
type Companion interface {
	Respond(ctx context.Context, message string) (companion.Turn, error)
	Revoice(ctx context.Context, entryID string) (audio.Frame, error)
}

// Config bundles the gateway's collaborators.
type Config struct {
	Companion Companion
	Media     media.Provider
	Live      live.Provider
	Store     journal.Store

	// Instructions is the system prompt for live sessions. Defaults to the
	// companion persona.
	Instructions string

	// LiveQueueLimit bounds the pre-active capture queue per session.
	LiveQueueLimit int

	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Server is the HTTP layer. Create with New, serve via Handler.
type Server struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics
	router  chi.Router
}

// New validates the config and builds the route table.
func New(cfg Config) (*Server, error) {
	switch {
	case cfg.Companion == nil:
		return nil, fmt.Errorf("gateway: config: Companion must not be nil")
	case cfg.Store == nil:
		return nil, fmt.Errorf("gateway: config: Store must not be nil")
	}
	if cfg.Instructions == "" {
		cfg.Instructions = companion.SystemInstruction()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(observe.Middleware(s.metrics))

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/tts", s.handleTTS)
		r.Post("/art/image", s.handleImage)
		r.Post("/art/video", s.handleVideo)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Get("/journal", s.handleJournal)
		r.Delete("/journal", s.handleClearJournal)
		r.Get("/journal/related", s.handleRelated)
		r.Get("/live", s.handleLive)
	})

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	// Readiness means the journal store answers.
	if _, err := s.cfg.Store.LoadSettings(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "journal store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
