package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"itincal/internal/candidates"
	"itincal/internal/config"
	appLog "itincal/internal/log"
	"itincal/internal/model"
	"itincal/internal/planner"
	"itincal/internal/session"
)

// SessionHeader selects the traveler session; requests without it use
// session.DefaultID.
const SessionHeader = "X-Session-ID"

// Importer pulls the external calendar items of one day.
type Importer interface {
	Import(ctx context.Context, day time.Time) ([]model.TimelineItem, error)
}

// Deps are the collaborators the HTTP layer drives.
type Deps struct {
	Sessions *session.Manager
	Planner  *planner.Planner
	Pool     candidates.Source
	// Importer is optional; without it POST /api/import answers 501.
	Importer Importer
	// Location cuts calendar days; time.Local when nil.
	Location *time.Location
	// Now is the clock, time.Now when nil.
	Now func() time.Time
}

// Server provides the itinerary HTTP API.
type Server struct {
	cfg    *config.Config
	deps   Deps
	router *chi.Mux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if deps.Location == nil {
		deps.Location = resolveLocationOrLocal(cfg.Timezone)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Pool == nil {
		deps.Pool = candidates.Static(nil)
	}
	s := &Server{cfg: cfg, deps: deps}
	s.setupRouter()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password means disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="itincal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves the API on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", SessionHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/days/{date}/items", s.handleDayItems)
		r.Get("/days/{date}/gaps", s.handleDayGaps)
		r.Get("/days/{date}/suggestions", s.handleDaySuggestions)

		r.Post("/items", s.handleCreateItem)
		r.Delete("/items", s.handleClearItems)
		r.Delete("/items/{id}", s.handleDeleteItem)

		r.Post("/suggestions/accept", s.handleAcceptSuggestion)
		r.Post("/import", s.handleImport)

		r.Get("/activities", s.handleActivities)
	})

	s.router = r
}

// requestLogger logs one line per request through the application logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// session resolves the request's session from the X-Session-ID header.
func (s *Server) session(r *http.Request) (*session.Session, error) {
	return s.deps.Sessions.Get(r.Context(), r.Header.Get(SessionHeader))
}

// parseDay reads a YYYY-MM-DD (or "today") date in the server location.
func (s *Server) parseDay(v string) (time.Time, error) {
	if v == "" || v == "today" {
		now := s.deps.Now().In(s.deps.Location)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.deps.Location), nil
	}
	return time.ParseInLocation(time.DateOnly, v, s.deps.Location)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

type errResp struct {
	Error     string   `json:"error"`
	Reason    string   `json:"reason,omitempty"`
	Conflicts []string `json:"conflicts,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResp{Error: msg})
}
