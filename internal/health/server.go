// Package health serves liveness, readiness and metrics endpoints over HTTP
// and the standard gRPC health service.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/yourusername/furlong/internal/models"
	"github.com/yourusername/furlong/internal/registry"
)

// DatabasePinger defines the interface for checking database connectivity.
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

// ChampionSource reports the active artifact of a segment
type ChampionSource interface {
	Active(segment models.Segment) (*registry.Champion, error)
}

// HealthResponse represents the JSON response for health check endpoints.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp,omitempty"`
	Version   string `json:"version,omitempty"`
}

// ReadyResponse represents the JSON response for readiness check endpoints.
type ReadyResponse struct {
	Status   string            `json:"status"`
	Service  string            `json:"service"`
	Checks   map[string]string `json:"checks,omitempty"`
	Duration string            `json:"duration,omitempty"`
}

// ChampionStatus is one row of the /champions endpoint
type ChampionStatus struct {
	Segment    models.Segment `json:"segment"`
	ArtifactID string         `json:"artifact_id,omitempty"`
	Version    int64          `json:"version"`
	PromotedAt *time.Time     `json:"promoted_at,omitempty"`
}

// Config holds the configuration for the health server.
type Config struct {
	ServiceName    string
	Version        string
	Port           int
	GRPCPort       int
	Segments       []models.Segment
	Champions      ChampionSource
	DB             DatabasePinger
	MetricsPath    string
	MetricsHandler http.Handler
	Logger         *logrus.Logger
}

// Server serves health endpoints. It is ready once SetReady(true) was
// called and every configured segment has a champion.
type Server struct {
	cfg    Config
	server *http.Server
	grpc   *grpc.Server
	health *grpchealth.Server
	logger *logrus.Entry
	mu     sync.RWMutex
	ready  bool
}

// NewServer creates a new health check server.
func NewServer(cfg Config) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	return &Server{
		cfg:    cfg,
		health: grpchealth.NewServer(),
		logger: cfg.Logger.WithField("component", "health"),
	}
}

// SetReady marks the server as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
	s.refreshGRPC()
}

// IsReady returns whether the server was marked ready.
func (s *Server) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Get("/health", s.handleHealth)
	r.Get("/live", s.handleLive)
	r.Get("/ready", s.handleReady)
	r.Get("/champions", s.handleChampions)
	if s.cfg.MetricsHandler != nil {
		r.Handle(s.cfg.MetricsPath, s.cfg.MetricsHandler)
	}
	return r
}

// Start starts the HTTP and gRPC servers in the background. Both shut down
// when ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		s.logger.WithFields(logrus.Fields{"port": s.cfg.Port, "service": s.cfg.ServiceName}).Info("Health check server starting")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Health check server error")
		}
	}()

	if s.cfg.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.GRPCPort))
		if err != nil {
			_ = s.Shutdown()
			return fmt.Errorf("failed to listen for grpc health: %w", err)
		}
		s.grpc = grpc.NewServer()
		healthpb.RegisterHealthServer(s.grpc, s.health)
		s.refreshGRPC()
		go func() {
			if err := s.grpc.Serve(lis); err != nil {
				s.logger.WithError(err).Error("gRPC health server error")
			}
		}()
	}

	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()
	return nil
}

// Shutdown gracefully shuts down both servers.
func (s *Server) Shutdown() error {
	if s.grpc != nil {
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}
	if s.server == nil {
		return nil
	}
	s.logger.Info("Health check server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// RefreshChampions updates the per-segment gRPC serving status. Call it
// after every champion swap.
func (s *Server) RefreshChampions() {
	s.refreshGRPC()
}

func (s *Server) refreshGRPC() {
	ready := s.IsReady()
	all := healthpb.HealthCheckResponse_SERVING
	for _, segment := range s.cfg.Segments {
		status := healthpb.HealthCheckResponse_SERVING
		if !ready || !s.hasChampion(segment) {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			all = status
		}
		s.health.SetServingStatus(string(segment), status)
	}
	if !ready {
		all = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", all)
}

func (s *Server) hasChampion(segment models.Segment) bool {
	if s.cfg.Champions == nil {
		return false
	}
	_, err := s.cfg.Champions.Active(segment)
	return err == nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   s.cfg.ServiceName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   s.cfg.Version,
	})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Service: s.cfg.ServiceName})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	checks := make(map[string]string)
	allHealthy := true

	if s.IsReady() {
		checks["service"] = "ok"
	} else {
		allHealthy = false
		checks["service"] = "not_ready"
	}

	if s.cfg.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.cfg.DB.Ping(ctx); err != nil {
			allHealthy = false
			checks["database"] = fmt.Sprintf("error: %v", err)
		} else {
			checks["database"] = "ok"
		}
	}

	for _, segment := range s.cfg.Segments {
		key := "champion:" + string(segment)
		if s.hasChampion(segment) {
			checks[key] = "ok"
		} else {
			allHealthy = false
			checks[key] = "missing"
		}
	}

	response := ReadyResponse{Service: s.cfg.ServiceName, Checks: checks, Duration: time.Since(start).String()}
	if allHealthy {
		response.Status = "ok"
		writeJSON(w, http.StatusOK, response)
		return
	}
	response.Status = "not_ready"
	writeJSON(w, http.StatusServiceUnavailable, response)
}

func (s *Server) handleChampions(w http.ResponseWriter, r *http.Request) {
	out := make([]ChampionStatus, 0, len(s.cfg.Segments))
	for _, segment := range s.cfg.Segments {
		row := ChampionStatus{Segment: segment}
		if s.cfg.Champions != nil {
			if c, err := s.cfg.Champions.Active(segment); err == nil {
				promoted := c.PromotedAt
				row.ArtifactID = c.Artifact.ID.String()
				row.Version = c.Version
				row.PromotedAt = &promoted
			}
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, out)
}
