package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"hublink/pkg/hub"
	"hublink/pkg/ratelimit"
)

type fakeWarnings struct {
	mu    sync.Mutex
	count uint64
	last  *hub.AuthWarning
}

func (f *fakeWarnings) add(value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	f.last = &hub.AuthWarning{Value: value}
}

func (f *fakeWarnings) AuthWarnings() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func (f *fakeWarnings) LastAuthWarning() (hub.AuthWarning, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return hub.AuthWarning{}, false
	}
	return *f.last, true
}

type fixture struct {
	clock    *clock.Mock
	metrics  *Metrics
	registry *prometheus.Registry
	global   *ratelimit.GlobalLimiter
	users    *ratelimit.UserLimiter
	warnings *fakeWarnings
	monitor  *HealthMonitor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mock := clock.NewMock()
	registry := prometheus.NewRegistry()
	users, err := ratelimit.NewUserLimiter(ratelimit.DefaultRules(), mock, nil)
	require.NoError(t, err)

	f := &fixture{
		clock:    mock,
		registry: registry,
		metrics:  NewMetrics(registry),
		global:   ratelimit.NewGlobalLimiter(ratelimit.GlobalLimits{PerMinute: 2, PerHour: 100, Burst: 10}, mock),
		users:    users,
		warnings: &fakeWarnings{},
	}
	f.monitor = NewHealthMonitor(Options{
		Metrics:       f.metrics,
		Warnings:      f.warnings,
		Global:        f.global,
		Users:         f.users,
		Clock:         mock,
		CheckInterval: time.Second,
	})
	t.Cleanup(f.monitor.Stop)
	return f
}

func (f *fixture) grpcStatus(t *testing.T) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := f.monitor.HealthServer().Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	return resp.Status
}

func TestHealthMonitor_StatusTransitions(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, StatusUnknown, f.monitor.Snapshot().Status)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, f.grpcStatus(t))

	snap := f.monitor.Check()
	assert.Equal(t, StatusServing, snap.Status)
	assert.Equal(t, 100.0, snap.Score)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, f.grpcStatus(t))

	f.global.Record()
	f.global.Record()
	snap = f.monitor.Check()
	assert.Equal(t, StatusThrottled, snap.Status)
	require.NotNil(t, snap.Limiter)
	assert.Equal(t, ratelimit.WindowMinute, snap.Limiter.Constraint)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, f.grpcStatus(t))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.WindowCalls.WithLabelValues(ratelimit.WindowMinute)))

	f.warnings.add("signature-invalid")
	snap = f.monitor.Check()
	assert.Equal(t, StatusAuthDegraded, snap.Status)
	assert.Equal(t, "signature-invalid", snap.AuthWarning.Value)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, f.grpcStatus(t))
	assert.Equal(t, 40.0, testutil.ToFloat64(f.metrics.LinkHealth))

	// No new warnings and the minute window has passed.
	f.clock.Add(time.Minute)
	snap = f.monitor.Check()
	assert.Equal(t, StatusServing, snap.Status)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, f.grpcStatus(t))
}

func TestHealthMonitor_SweepsUsers(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.users.Record("alice", ratelimit.CategoryPost))

	snap := f.monitor.Check()
	assert.Equal(t, 1, snap.Users)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TrackedUsers))

	f.clock.Add(2 * time.Minute)
	snap = f.monitor.Check()
	assert.Equal(t, 0, snap.Users)
}

func TestHealthMonitor_Loop(t *testing.T) {
	f := newFixture(t)
	f.monitor.Start()

	assert.Eventually(t, func() bool {
		return f.monitor.Snapshot().Status == StatusServing
	}, time.Second, 10*time.Millisecond)

	f.warnings.add("expired-key")
	assert.Eventually(t, func() bool {
		f.clock.Add(time.Second)
		return f.monitor.Snapshot().Status == StatusAuthDegraded
	}, time.Second, 10*time.Millisecond)

	f.monitor.Stop()
	f.monitor.Stop()
}

func TestHealthMonitor_NoComponents(t *testing.T) {
	hm := NewHealthMonitor(Options{Clock: clock.NewMock()})
	defer hm.Stop()

	snap := hm.Check()
	assert.Equal(t, StatusServing, snap.Status)
	assert.Nil(t, snap.Limiter)
}

func TestHealthEndpoint_Handlers(t *testing.T) {
	f := newFixture(t)
	f.monitor.Check()
	endpoint := NewHealthEndpoint(f.monitor, f.registry, nil)
	mux := http.NewServeMux()
	endpoint.RegisterHandlers(mux)

	t.Run("Health", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var body healthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, StatusServing, body.LinkStatus)
		require.NotNil(t, body.Limiter)
		assert.True(t, body.Limiter.Allowed)
	})

	t.Run("Liveness", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "OK", w.Body.String())
	})

	t.Run("Ready", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "READY", w.Body.String())
	})

	t.Run("Metrics", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "hublink_link_health_score 100")
	})

	t.Run("Degraded", func(t *testing.T) {
		f.warnings.add("signature-invalid")
		f.monitor.Check()

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"link_status":"auth-degraded"`)
		assert.Contains(t, w.Body.String(), "signature-invalid")
	})

	t.Run("NotReady", func(t *testing.T) {
		hm := NewHealthMonitor(Options{Clock: clock.NewMock()})
		defer hm.Stop()

		w := httptest.NewRecorder()
		NewHealthEndpoint(hm, f.registry, nil).handleReadiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "NOT READY", w.Body.String())
	})
}

func TestServer_ServesHTTPAndGRPC(t *testing.T) {
	f := newFixture(t)
	f.monitor.Check()

	srv, err := StartServer("127.0.0.1:0", "127.0.0.1:0", f.monitor, f.registry, nil)
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
	}()

	resp, err := http.Get("http://" + srv.HTTPAddr() + "/health/live")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", strings.TrimSpace(string(body)))

	conn, err := grpc.NewClient(srv.GRPCAddr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, hc.Status)
}

func TestServer_SkipsEmptyAddresses(t *testing.T) {
	f := newFixture(t)
	srv, err := StartServer("", "", f.monitor, f.registry, nil)
	require.NoError(t, err)
	assert.Empty(t, srv.HTTPAddr())
	assert.Empty(t, srv.GRPCAddr())
	assert.NoError(t, srv.Shutdown(context.Background()))
}
