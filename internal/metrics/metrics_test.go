package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSampler struct {
	stats SystemStats
	err   error
}

func (f *fakeSampler) Sample(context.Context) (SystemStats, error) {
	return f.stats, f.err
}

func TestIncRequest_PerClientIP(t *testing.T) {
	r := NewRecorder(nil)

	r.IncRequest("10.0.0.1")
	r.IncRequest("10.0.0.1")
	r.IncRequest("10.0.0.2")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.requests.WithLabelValues("10.0.0.1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.requests.WithLabelValues("10.0.0.2")))
}

func TestObserveInference(t *testing.T) {
	r := NewRecorder(nil)

	r.ObserveInference(250*time.Millisecond, 1000)
	assert.InDelta(t, 0.25, testutil.ToFloat64(r.inferenceTime), 1e-9)
	// 0.25s * 1e6 / 1000 bytes
	assert.InDelta(t, 250.0, testutil.ToFloat64(r.timePerChar), 1e-9)

	// zero-length input leaves the per-char gauge untouched
	r.ObserveInference(time.Second, 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(r.inferenceTime), 1e-9)
	assert.InDelta(t, 250.0, testutil.ToFloat64(r.timePerChar), 1e-9)
}

func TestSampleSystem(t *testing.T) {
	sampler := &fakeSampler{stats: SystemStats{
		CPUPercent:    12.5,
		MemoryPercent: 40,
		BytesRecv:     1024,
		BytesSent:     2048,
	}}
	r := NewRecorder(sampler)

	require.NoError(t, r.SampleSystem(context.Background()))
	assert.Equal(t, 12.5, testutil.ToFloat64(r.cpuPercent))
	assert.Equal(t, 40.0, testutil.ToFloat64(r.memoryPercent))
	assert.Equal(t, 1024.0, testutil.ToFloat64(r.networkReceive))
	assert.Equal(t, 2048.0, testutil.ToFloat64(r.networkTransmit))

	sampler.err = errors.New("procfs unavailable")
	sampler.stats = SystemStats{CPUPercent: 99}
	assert.Error(t, r.SampleSystem(context.Background()))
	assert.Equal(t, 12.5, testutil.ToFloat64(r.cpuPercent))
}

func TestSampleSystem_NilSampler(t *testing.T) {
	r := NewRecorder(nil)
	assert.NoError(t, r.SampleSystem(context.Background()))
}

func TestHandler_ExposesServiceMetrics(t *testing.T) {
	r := NewRecorder(nil)
	r.IncRequest("127.0.0.1")
	r.ObserveInference(time.Millisecond, 10)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	for _, name := range []string{
		`api_requests_total{client_ip="127.0.0.1"} 1`,
		"api_inference_time_seconds",
		"api_processing_time_per_char_microseconds",
		"api_network_receive_bytes",
		"api_network_transmit_bytes",
		"api_memory_utilization_percent",
		"api_cpu_utilization_percent",
		"go_goroutines",
	} {
		assert.Contains(t, string(body), name)
	}
}

func TestMiddleware_CountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRecorder(nil)

	engine := gin.New()
	engine.Use(r.Middleware())
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	}
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 3.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("/health", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("unmatched", "GET", "404")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.httpDuration))
}
