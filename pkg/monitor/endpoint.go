package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthEndpoint provides HTTP health check endpoints
type HealthEndpoint struct {
	monitor  *HealthMonitor
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// NewHealthEndpoint creates health check HTTP handlers. Metrics are served
// from gatherer, or the default gatherer when nil.
func NewHealthEndpoint(monitor *HealthMonitor, gatherer prometheus.Gatherer, logger *zap.Logger) *HealthEndpoint {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &HealthEndpoint{
		monitor:  monitor,
		gatherer: gatherer,
		logger:   logger,
	}
}

// RegisterHandlers registers HTTP handlers
func (he *HealthEndpoint) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/health", he.handleHealth)
	mux.HandleFunc("/health/live", he.handleLiveness)
	mux.HandleFunc("/health/ready", he.handleReadiness)
	mux.Handle("/metrics", promhttp.HandlerFor(he.gatherer, promhttp.HandlerOpts{}))
}

type healthResponse struct {
	Status      string         `json:"status"`
	LinkStatus  Status         `json:"link_status"`
	HealthScore float64        `json:"health_score"`
	LastCheck   string         `json:"last_check,omitempty"`
	Timestamp   string         `json:"timestamp"`
	Limiter     *limiterStatus `json:"limiter,omitempty"`
	Users       int            `json:"tracked_users"`
	AuthWarning string         `json:"last_auth_warning,omitempty"`
}

type limiterStatus struct {
	Allowed    bool    `json:"allowed"`
	LastBurst  int     `json:"last_burst"`
	LastMinute int     `json:"last_minute"`
	LastHour   int     `json:"last_hour"`
	Constraint string  `json:"constraint,omitempty"`
	RetryAfter float64 `json:"retry_after_seconds,omitempty"`
}

// handleHealth provides detailed health information
func (he *HealthEndpoint) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := he.monitor.Snapshot()

	status := "healthy"
	statusCode := http.StatusOK

	if snap.Score < 50 {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	} else if snap.Score < 80 {
		status = "degraded"
	}

	resp := healthResponse{
		Status:      status,
		LinkStatus:  snap.Status,
		HealthScore: snap.Score,
		Timestamp:   he.monitor.clock.Now().Format(time.RFC3339),
		Users:       snap.Users,
	}
	if !snap.LastCheck.IsZero() {
		resp.LastCheck = snap.LastCheck.Format(time.RFC3339)
	}
	if st := snap.Limiter; st != nil {
		resp.Limiter = &limiterStatus{
			Allowed:    st.Allowed,
			LastBurst:  st.LastBurst,
			LastMinute: st.LastMinute,
			LastHour:   st.LastHour,
			Constraint: st.Constraint,
			RetryAfter: st.RetryAfter.Seconds(),
		}
	}
	if snap.AuthWarning != nil {
		resp.AuthWarning = snap.AuthWarning.Value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		he.logger.Debug("Failed to write health response", zap.Error(err))
	}
}

// handleLiveness checks if the service is alive
func (he *HealthEndpoint) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleReadiness checks if the hub link can take requests
func (he *HealthEndpoint) handleReadiness(w http.ResponseWriter, r *http.Request) {
	snap := he.monitor.Snapshot()

	if snap.Score > 30 {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NOT READY"))
	}
}

// Server exposes the HTTP endpoints and the gRPC health service.
type Server struct {
	httpServer   *http.Server
	grpcServer   *grpc.Server
	httpListener net.Listener
	grpcListener net.Listener
	logger       *zap.Logger
}

// StartServer listens on httpAddr and grpcAddr and serves in the background.
// An empty address skips that listener.
func StartServer(httpAddr, grpcAddr string, monitor *HealthMonitor, gatherer prometheus.Gatherer, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{logger: logger}

	if httpAddr != "" {
		ln, err := net.Listen("tcp", httpAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", httpAddr, err)
		}
		mux := http.NewServeMux()
		NewHealthEndpoint(monitor, gatherer, logger).RegisterHandlers(mux)
		s.httpListener = ln
		s.httpServer = &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			logger.Info("Starting metrics server", zap.String("address", ln.Addr().String()))
			if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	if grpcAddr != "" {
		ln, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			if s.httpServer != nil {
				s.httpServer.Close()
			}
			return nil, fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
		}
		s.grpcListener = ln
		s.grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(s.grpcServer, monitor.HealthServer())

		go func() {
			logger.Info("Starting gRPC health server", zap.String("address", ln.Addr().String()))
			if err := s.grpcServer.Serve(ln); err != nil {
				logger.Error("gRPC health server failed", zap.Error(err))
			}
		}()
	}

	return s, nil
}

// HTTPAddr returns the bound HTTP address, or "" if HTTP is disabled.
func (s *Server) HTTPAddr() string {
	if s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" if gRPC is disabled.
func (s *Server) GRPCAddr() string {
	if s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// Shutdown stops both servers, waiting for in-flight requests until ctx is
// done.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs error
	if s.httpServer != nil {
		errs = multierr.Append(errs, s.httpServer.Shutdown(ctx))
	}
	if s.grpcServer != nil {
		done := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.grpcServer.Stop()
			errs = multierr.Append(errs, ctx.Err())
		}
	}
	return errs
}
