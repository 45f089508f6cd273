// Package metrics owns the Prometheus registry of the digit service. A
// Recorder is created once and handed to the HTTP layer; nothing here is a
// package-level singleton, so every test can build its own.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Recorder struct {
	registry *prometheus.Registry
	sampler  SystemSampler

	requests        *prometheus.CounterVec
	inferenceTime   prometheus.Gauge
	timePerChar     prometheus.Gauge
	networkReceive  prometheus.Gauge
	networkTransmit prometheus.Gauge
	memoryPercent   prometheus.Gauge
	cpuPercent      prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// NewRecorder registers all service metrics on a fresh registry. sampler may
// be nil, in which case SampleSystem is a no-op.
func NewRecorder(sampler SystemSampler) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		sampler:  sampler,

		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total No. of API requests",
		}, []string{"client_ip"}),
		inferenceTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "api_inference_time_seconds",
			Help: "Time taken for Inference in seconds",
		}),
		timePerChar: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "api_processing_time_per_char_microseconds",
			Help: "Processing time per character in microseconds",
		}),
		networkReceive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "api_network_receive_bytes",
			Help: "Total Network receive bytes",
		}),
		networkTransmit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "api_network_transmit_bytes",
			Help: "Total Network transmit bytes",
		}),
		memoryPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "api_memory_utilization_percent",
			Help: "API Memory Utilization in percent",
		}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "api_cpu_utilization_percent",
			Help: "API CPU Utilization in percent",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"handler", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"handler", "method"}),
	}

	r.registry.MustRegister(
		r.requests,
		r.inferenceTime,
		r.timePerChar,
		r.networkReceive,
		r.networkTransmit,
		r.memoryPercent,
		r.cpuPercent,
		r.httpRequests,
		r.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) IncRequest(clientIP string) {
	r.requests.WithLabelValues(clientIP).Inc()
}

// ObserveInference records the normalize+predict wall time and, for a
// non-empty upload, the time spent per input byte in microseconds.
func (r *Recorder) ObserveInference(elapsed time.Duration, inputLen int) {
	seconds := elapsed.Seconds()
	r.inferenceTime.Set(seconds)
	if inputLen > 0 {
		r.timePerChar.Set(seconds * 1e6 / float64(inputLen))
	}
}

// SampleSystem overwrites the host utilisation gauges with a fresh reading.
// On error the previous values are kept.
func (r *Recorder) SampleSystem(ctx context.Context) error {
	if r.sampler == nil {
		return nil
	}
	stats, err := r.sampler.Sample(ctx)
	if err != nil {
		return err
	}
	r.memoryPercent.Set(stats.MemoryPercent)
	r.cpuPercent.Set(stats.CPUPercent)
	r.networkReceive.Set(float64(stats.BytesRecv))
	r.networkTransmit.Set(float64(stats.BytesSent))
	return nil
}

// Middleware instruments every request with a counter and a latency
// histogram labelled by the matched route.
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		r.httpRequests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		r.httpDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}
