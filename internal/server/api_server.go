// Package server exposes every configured service over HTTP. Each service
// is one Controller mounted below its name, e.g. /localhost/apps.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soofff/boofi/internal/controller"
	"github.com/soofff/boofi/internal/journal"
	"github.com/soofff/boofi/internal/observability"
	"github.com/soofff/boofi/internal/version"
)

const (
	maxBodyBytes      = 8 << 20
	readHeaderTimeout = 10 * time.Second
)

// Service is one endpoint served by the API.
type Service struct {
	Controller *controller.Controller
	Journal    *journal.Journal // optional, enables /{service}/journal
}

// Options configures the listener. TLS is enabled when both paths are set.
type Options struct {
	Listen   string
	CertPath string
	KeyPath  string
}

// APIServer routes requests to the service named by the first path segment.
type APIServer struct {
	opts     Options
	services map[string]Service
	requests *observability.RequestCounter
	metrics  *observability.PrometheusExporter

	mu         sync.Mutex
	httpServer *http.Server
}

func NewAPIServer(opts Options, services map[string]Service) (*APIServer, error) {
	if len(services) == 0 {
		return nil, errors.New("server: at least one service is required")
	}
	if (opts.CertPath == "") != (opts.KeyPath == "") {
		return nil, errors.New("server: TLS configuration requires both certificate and key paths")
	}
	for name, svc := range services {
		if svc.Controller == nil {
			return nil, fmt.Errorf("server: service %s has no controller", name)
		}
	}
	s := &APIServer{
		opts:     opts,
		services: services,
		requests: observability.NewRequestCounter(),
	}
	s.metrics = observability.NewPrometheusExporter(version.FormatVersion(version.String()), s.requests)
	s.metrics.WithTasks(s.taskCounts)
	return s, nil
}

// ServiceNames lists the mounted services in lexical order.
func (s *APIServer) ServiceNames() []string {
	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *APIServer) service(name string) (Service, error) {
	svc, ok := s.services[name]
	if !ok {
		return Service{}, fmt.Errorf("%w: %s", errUnknownService, name)
	}
	return svc, nil
}

// Handler returns the routed and wrapped handler serving every service.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.Handle("GET /{service}/token", s.authenticated(s.handleTokenIssue, false))
	mux.Handle("DELETE /{service}/token", s.authenticated(s.handleTokenRevoke, false))
	mux.Handle("GET /{service}/tasks", s.authenticated(s.handleTasks, true))
	mux.Handle("GET /{service}/tasks/{id}", s.authenticated(s.handleTask, true))
	mux.Handle("GET /{service}/apps", s.authenticated(s.handleAppsHelp, true))
	mux.Handle("POST /{service}/apps", s.authenticated(s.handleAppsRun, true))
	mux.Handle("POST /{service}/apps/{name}", s.authenticated(s.handleAppRun, true))
	mux.Handle("GET /{service}/files", s.authenticated(s.handleFilesHelp, true))
	mux.Handle("GET /{service}/files/{path...}", s.authenticated(s.handleFileGet, true))
	mux.Handle("POST /{service}/files/{path...}", s.authenticated(s.handleFileWrite, true))
	mux.Handle("DELETE /{service}/files/{path...}", s.authenticated(s.handleFileDelete, true))
	mux.Handle("GET /{service}/journal", s.authenticated(s.handleJournal, true))
	return s.wrapWithLogging(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// wrapWithLogging tags every request with an id and logs its outcome.
func (s *APIServer) wrapWithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		w.Header().Set("Server", version.ServerHeader())

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.requests.Observe(s.serviceLabel(r.URL.Path), rec.status)
		log.Printf("[APIServer] %s %s %s -> %d (%s)", id, r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

// serviceLabel is the mounted service a path belongs to, or "".
func (s *APIServer) serviceLabel(p string) string {
	name, _, _ := strings.Cut(strings.TrimPrefix(p, "/"), "/")
	if _, ok := s.services[name]; ok {
		return name
	}
	return ""
}

func (s *APIServer) taskCounts() observability.TaskCounts {
	counts := make(observability.TaskCounts, len(s.services))
	for name, svc := range s.services {
		byStatus := map[string]int{}
		for _, t := range svc.Controller.Tasks() {
			byStatus[string(t.Status)]++
		}
		counts[name] = byStatus
	}
	return counts
}

func (s *APIServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.metrics.Export())
}

// PreparedHTTPServer holds metadata about a prepared HTTP server instance.
type PreparedHTTPServer struct {
	Server   *http.Server
	UseTLS   bool
	CertPath string
	KeyPath  string
	Scheme   string
}

// Prepare initialises the HTTP server without starting to serve, allowing the caller to manage the listener lifecycle.
func (s *APIServer) Prepare() (*PreparedHTTPServer, error) {
	if _, _, err := net.SplitHostPort(s.opts.Listen); err != nil {
		return nil, fmt.Errorf("server: invalid listen address %q: %w", s.opts.Listen, err)
	}

	prepared := &PreparedHTTPServer{Scheme: "http"}
	server := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	if s.opts.CertPath != "" {
		pair, err := tls.LoadX509KeyPair(s.opts.CertPath, s.opts.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("server: failed to load TLS certificate/key pair: %w", err)
		}
		server.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{pair},
		}
		prepared.UseTLS = true
		prepared.CertPath = s.opts.CertPath
		prepared.KeyPath = s.opts.KeyPath
		prepared.Scheme = "https"
	}
	prepared.Server = server

	s.mu.Lock()
	s.httpServer = server
	s.mu.Unlock()
	return prepared, nil
}

// Serve prepares the server and blocks serving on ln. It returns
// http.ErrServerClosed after Shutdown.
func (s *APIServer) Serve(ln net.Listener) error {
	prepared, err := s.Prepare()
	if err != nil {
		return err
	}
	log.Printf("[APIServer] serving %s on %s://%s", strings.Join(s.ServiceNames(), ", "), prepared.Scheme, ln.Addr())
	if prepared.UseTLS {
		return prepared.Server.ServeTLS(ln, "", "")
	}
	return prepared.Server.Serve(ln)
}

// Start listens on the configured address and serves until Shutdown.
func (s *APIServer) Start() error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.opts.Listen, err)
	}
	return s.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.httpServer
	s.mu.Unlock()
	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}
