package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/isdmx/builderbot/config"
	"github.com/isdmx/builderbot/session"
)

// DefaultSessionID addresses the default session in URLs.
const DefaultSessionID = "default"

// Server exposes session and preview state over HTTP
type Server struct {
	logger   *zap.Logger
	sessions *session.Manager
	gatherer prometheus.Gatherer
	port     int
	http     *http.Server
}

// New creates a Server listening on server.status_port.
func New(logger *zap.Logger, cfg *config.Config, sessions *session.Manager, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		logger:   logger.Named("httpapi"),
		sessions: sessions,
		gatherer: gatherer,
		port:     cfg.Server.StatusPort,
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", s.closeSession)
			r.Get("/preview", s.previewStatus)
			r.Post("/preview/stop", s.stopPreview)
			r.Get("/logs", s.logs)
			r.Delete("/logs", s.clearLogs)
		})
	})

	return r
}

// Start listens in the background. Listen errors are returned immediately.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on status port %d: %w", s.port, err)
	}
	s.logger.Info("starting status API", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status API stopped", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		began := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(began)))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// session looks up the addressed session. The default session is never
// created here, so status polls do not take a port slot.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	if id == DefaultSessionID {
		id = ""
	}
	sess, err := s.sessions.Lookup(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.sessions.List()
	out := make([]session.Summary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Summary())
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) createSession(w http.ResponseWriter, _ *http.Request) {
	sess, err := s.sessions.Create()
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sess.Summary())
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := s.sessions.Close(sess.ID); err != nil {
		// Closed concurrently.
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) previewStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Summary())
}

func (s *Server) stopPreview(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Preview().Stop()
	s.writeJSON(w, http.StatusOK, sess.Summary())
}

func (s *Server) logs(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	lines := sess.Preview().Logs()
	if lines == nil {
		lines = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"lines": lines})
}

func (s *Server) clearLogs(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Preview().ClearLogs()
	w.WriteHeader(http.StatusNoContent)
}
