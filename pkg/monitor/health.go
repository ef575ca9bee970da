package monitor

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"hublink/pkg/hub"
	"hublink/pkg/ratelimit"
)

// ServiceName is the gRPC health service name for the hub link.
const ServiceName = "hublink.HubLink"

// Status is the derived state of the hub link.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusServing Status = "serving"
	// StatusThrottled means the global limiter is currently refusing calls.
	StatusThrottled Status = "throttled"
	// StatusAuthDegraded means the hub reported silent authentication
	// failures since the previous check.
	StatusAuthDegraded Status = "auth-degraded"
)

var statusScores = map[Status]float64{
	StatusUnknown:      0,
	StatusServing:      100,
	StatusThrottled:    60,
	StatusAuthDegraded: 40,
}

// AuthWarningSource reports silent authentication failures. *hub.Client
// implements it.
type AuthWarningSource interface {
	AuthWarnings() uint64
	LastAuthWarning() (hub.AuthWarning, bool)
}

// Options wires the components a HealthMonitor samples. Any of them may be
// nil.
type Options struct {
	Metrics       *Metrics
	Warnings      AuthWarningSource
	Global        *ratelimit.GlobalLimiter
	Users         *ratelimit.UserLimiter
	Clock         clock.Clock
	Logger        *zap.Logger
	CheckInterval time.Duration
}

// Snapshot is the result of the latest health check.
type Snapshot struct {
	Status      Status
	Score       float64
	LastCheck   time.Time
	Limiter     *ratelimit.GlobalStatus
	Users       int
	AuthWarning *hub.AuthWarning
}

// HealthMonitor periodically samples the hub link and publishes its state as
// metrics and on the gRPC health service.
type HealthMonitor struct {
	metrics  *Metrics
	warnings AuthWarningSource
	global   *ratelimit.GlobalLimiter
	users    *ratelimit.UserLimiter
	clock    clock.Clock
	logger   *zap.Logger
	health   *health.Server

	checkInterval time.Duration
	mu            sync.RWMutex
	snapshot      Snapshot
	seenWarnings  uint64
	stopOnce      sync.Once
	stopChan      chan struct{}
}

// NewHealthMonitor creates a new health monitor.
func NewHealthMonitor(opts Options) *HealthMonitor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 15 * time.Second
	}

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &HealthMonitor{
		metrics:       opts.Metrics,
		warnings:      opts.Warnings,
		global:        opts.Global,
		users:         opts.Users,
		clock:         opts.Clock,
		logger:        opts.Logger,
		health:        hs,
		checkInterval: opts.CheckInterval,
		snapshot:      Snapshot{Status: StatusUnknown},
		stopChan:      make(chan struct{}),
	}
}

// HealthServer returns the gRPC health service kept in sync with the monitor.
func (hm *HealthMonitor) HealthServer() *health.Server {
	return hm.health
}

// Start begins periodic health monitoring.
func (hm *HealthMonitor) Start() {
	go hm.monitorLoop()
}

// Stop stops the health monitor and marks the gRPC service as not serving.
func (hm *HealthMonitor) Stop() {
	hm.stopOnce.Do(func() {
		close(hm.stopChan)
		hm.health.Shutdown()
	})
}

func (hm *HealthMonitor) monitorLoop() {
	ticker := hm.clock.Ticker(hm.checkInterval)
	defer ticker.Stop()

	hm.Check()

	for {
		select {
		case <-ticker.C:
			hm.Check()
		case <-hm.stopChan:
			return
		}
	}
}

// Check samples every component once and returns the new snapshot.
func (hm *HealthMonitor) Check() Snapshot {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	now := hm.clock.Now()
	snap := Snapshot{Status: StatusServing, LastCheck: now}

	if hm.global != nil {
		st := hm.global.Status()
		snap.Limiter = &st
		if !st.Allowed {
			snap.Status = StatusThrottled
		}
		if hm.metrics != nil {
			hm.metrics.WindowCalls.WithLabelValues(ratelimit.WindowBurst).Set(float64(st.LastBurst))
			hm.metrics.WindowCalls.WithLabelValues(ratelimit.WindowMinute).Set(float64(st.LastMinute))
			hm.metrics.WindowCalls.WithLabelValues(ratelimit.WindowHour).Set(float64(st.LastHour))
		}
	}

	if hm.users != nil {
		hm.users.Sweep()
		snap.Users = hm.users.Users()
		if hm.metrics != nil {
			hm.metrics.TrackedUsers.Set(float64(snap.Users))
		}
	}

	if hm.warnings != nil {
		count := hm.warnings.AuthWarnings()
		if w, ok := hm.warnings.LastAuthWarning(); ok {
			snap.AuthWarning = &w
		}
		// Warnings outrank throttling: the hub is dropping our identity.
		if count > hm.seenWarnings {
			snap.Status = StatusAuthDegraded
		}
		hm.seenWarnings = count
	}

	snap.Score = statusScores[snap.Status]
	if hm.metrics != nil {
		hm.metrics.LinkHealth.Set(snap.Score)
		hm.metrics.LastHealthCheck.Set(float64(now.Unix()))
	}

	serving := healthpb.HealthCheckResponse_SERVING
	if snap.Status == StatusAuthDegraded {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hm.health.SetServingStatus(ServiceName, serving)

	if snap.Status != hm.snapshot.Status {
		hm.logger.Info("Hub link status changed",
			zap.String("from", string(hm.snapshot.Status)),
			zap.String("to", string(snap.Status)))
	}
	hm.snapshot = snap

	hm.logger.Debug("Health check completed",
		zap.String("status", string(snap.Status)),
		zap.Float64("score", snap.Score),
		zap.Time("timestamp", now))

	return snap
}

// Snapshot returns the latest health check result.
func (hm *HealthMonitor) Snapshot() Snapshot {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	return hm.snapshot
}
