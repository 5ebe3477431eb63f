package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/scraperhub/internal/history"
	"github.com/JakeFAU/scraperhub/internal/metrics"
	"github.com/JakeFAU/scraperhub/internal/session"
	"github.com/JakeFAU/scraperhub/internal/users"
)

const defaultRequestTimeout = 60 * time.Second

// UserService authenticates users and resolves session tokens.
type UserService interface {
	Login(token, email, password string) (users.User, string, error)
	Logout(token string)
	Current(token string) (users.User, *session.Session, bool)
	Register(username, email, password string) (users.User, error)
}

// ScraperCatalog lists the registered scrapers.
type ScraperCatalog interface {
	ScraperNames() []string
}

// OutputStore opens finished artifacts by download name.
type OutputStore interface {
	Open(filename string) (*os.File, error)
}

// Config tunes the HTTP surface.
type Config struct {
	CookieName     string
	HashKey        []byte
	BlockKey       []byte
	SecureCookie   bool
	RequestTimeout time.Duration
	// Ready reports whether downstream dependencies can serve traffic.
	Ready func(ctx context.Context) error
}

// Deps are the services the handlers delegate to. History may be nil.
type Deps struct {
	Users    UserService
	Scrapers ScraperCatalog
	Outputs  OutputStore
	History  history.Store
	Logger   *zap.Logger
}

// Server wires HTTP handlers to the user, session and output services.
type Server struct {
	router chi.Router
	cfg    Config
	deps   Deps
	jar    *cookieJar
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Users == nil || deps.Scrapers == nil || deps.Outputs == nil {
		return nil, errors.New("users, scrapers and outputs are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	jar, err := newCookieJar(cfg.CookieName, cfg.HashKey, cfg.BlockKey, cfg.SecureCookie)
	if err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, deps: deps, jar: jar, logger: deps.Logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/ws", s.socket)

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(cfg.RequestTimeout))

		r.Get("/healthz", s.healthz)
		r.Get("/readyz", s.readyz)
		r.Method(http.MethodGet, "/metrics", metrics.Handler())

		r.Route("/user", func(r chi.Router) {
			r.Get("/", s.currentUser)
			r.Post("/login", s.login)
			r.Get("/logout", s.logout)
			r.Post("/logout", s.logout)
			r.Post("/register", s.register)
		})

		r.Route("/scrapers", func(r chi.Router) {
			r.Get("/list", s.listScrapers)
			r.Post("/start", s.startScraper)
			r.Get("/history", s.scraperHistory)
		})

		r.Get("/output/{filename}", s.download)
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ready != nil {
		if err := s.cfg.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// current resolves the caller's session from the cookie.
func (s *Server) current(r *http.Request) (users.User, *session.Session, bool) {
	return s.deps.Users.Current(s.jar.token(r))
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", reqID),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, CodeInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// timeoutMiddleware bounds the request context. Unlike http.TimeoutHandler
// it leaves the ResponseWriter untouched.
func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		rw.status = http.StatusSwitchingProtocols
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err), zap.Int("status", status))
	}
}
