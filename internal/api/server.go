// Package api serves the HTTP surface: photo upload, invoice records and generated files.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/IamSmokeY/SnapBooks/internal/gst"
	"github.com/IamSmokeY/SnapBooks/internal/invoice"
	"github.com/IamSmokeY/SnapBooks/internal/pipeline"
)

// Runner executes conversion runs
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) *pipeline.Result
}

// Records reads stored invoices and their files
type Records interface {
	Get(id string) (*invoice.Record, error)
	List() ([]*invoice.Record, error)
	File(path string) ([]byte, error)
	Delete(id string) error
}

// Previewer renders an invoice as HTML
type Previewer interface {
	HTML(inv *gst.Invoice) (string, error)
}

// Observer records served requests
type Observer interface {
	HTTPRequest(method, route string, status int, d time.Duration)
}

// BasicAuth holds basic authentication credentials. Empty credentials disable auth.
type BasicAuth struct {
	Username string
	Password string
}

// Server handles HTTP requests
type Server struct {
	runner    Runner
	records   Records
	previewer Previewer
	basicAuth BasicAuth
	mux       *http.ServeMux
	metrics   http.Handler
	observer  Observer
	maxUpload int64
	handler   http.Handler
}

// Option configures optional server features
type Option func(*Server)

// WithPreviewer enables GET /api/invoices/{id}/html
func WithPreviewer(p Previewer) Option {
	return func(s *Server) {
		s.previewer = p
	}
}

// WithMetrics serves handler on /metrics and reports requests to observer
func WithMetrics(handler http.Handler, observer Observer) Option {
	return func(s *Server) {
		s.metrics = handler
		s.observer = observer
	}
}

// NewServer creates a new Server with default mux
func NewServer(runner Runner, records Records, basicAuth BasicAuth, opts ...Option) *Server {
	return NewServerWithMux(runner, records, basicAuth, http.NewServeMux(), opts...)
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(runner Runner, records Records, basicAuth BasicAuth, mux *http.ServeMux, opts ...Option) *Server {
	s := &Server{
		runner:    runner,
		records:   records,
		basicAuth: basicAuth,
		mux:       mux,
		maxUpload: 20 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	s.handler = s.corsMiddleware(s.mux)
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// corsMiddleware adds CORS headers and answers preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="SnapBooks"`)
			writeError(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
			return
		}
		next(w, r)
	}
}

// statusRecorder captures the status code for request metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// handle registers a route, recording its metrics under the route pattern
func (s *Server) handle(pattern string, h http.HandlerFunc) {
	if s.observer == nil {
		s.mux.HandleFunc(pattern, h)
		return
	}
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.observer.HTTPRequest(r.Method, pattern, rec.status, time.Since(start))
	})
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.handle("GET /api/invoices/{id}/pdf", s.requireAuth(s.handleGetFile("pdf")))
	s.handle("GET /api/invoices/{id}/xml", s.requireAuth(s.handleGetFile("xml")))
	s.handle("GET /api/invoices/{id}/html", s.requireAuth(s.handlePreview))
	s.handle("GET /api/invoices/{id}", s.requireAuth(s.handleGetInvoice))
	s.handle("DELETE /api/invoices/{id}", s.requireAuth(s.handleDeleteInvoice))
	s.handle("GET /api/invoices", s.requireAuth(s.handleListInvoices))
	s.handle("POST /api/invoices", s.requireAuth(s.handleCreateInvoice))

	// public links handed out in run results
	s.handle("GET /files/{path...}", s.handlePublicFile)

	s.handle("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 35*time.Second)
		defer cancel()
		slog.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
