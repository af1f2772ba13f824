// internal/utils/metrics/collector.go
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricType names a collector held by Collector.
type MetricType string

const (
	RPCLatencyType     MetricType = "rpc_latency"
	RPCErrorsType      MetricType = "rpc_errors"
	EndpointHealthType MetricType = "endpoint_health"
)

// Collector records provider-side metrics: JSON-RPC latency and failures per
// endpoint. A nil *Collector records nothing.
type Collector struct {
	metrics sync.Map
}

// NewCollector registers the collectors on reg. A nil reg keeps them
// unregistered.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{}
	c.initializeMetrics(reg)
	return c
}

func (c *Collector) initializeMetrics(reg prometheus.Registerer) {
	metricsMap := map[MetricType]prometheus.Collector{
		RPCLatencyType: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "willwe",
				Name:      "rpc_latency_seconds",
				Help:      "JSON-RPC request latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"method", "endpoint"},
		),
		RPCErrorsType: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "willwe",
				Name:      "rpc_errors_total",
				Help:      "JSON-RPC requests that failed",
			},
			[]string{"method", "endpoint"},
		),
		EndpointHealthType: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "willwe",
				Name:      "rpc_endpoint_up",
				Help:      "1 when the endpoint is in rotation, 0 while it cools down",
			},
			[]string{"endpoint"},
		),
	}

	for metricType, metric := range metricsMap {
		c.metrics.Store(metricType, metric)
		if reg != nil {
			reg.MustRegister(metric)
		}
	}
}

// Reset clears all series.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.metrics.Range(func(_, value interface{}) bool {
		switch m := value.(type) {
		case *prometheus.CounterVec:
			m.Reset()
		case *prometheus.GaugeVec:
			m.Reset()
		case *prometheus.HistogramVec:
			m.Reset()
		}
		return true
	})
}

// ObserveRPC records one request against endpoint.
func (c *Collector) ObserveRPC(method, endpoint string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	if m, ok := c.metrics.Load(RPCLatencyType); ok {
		if hist, ok := m.(*prometheus.HistogramVec); ok {
			hist.WithLabelValues(method, endpoint).Observe(duration.Seconds())
		}
	}
	if err == nil {
		return
	}
	if m, ok := c.metrics.Load(RPCErrorsType); ok {
		if counter, ok := m.(*prometheus.CounterVec); ok {
			counter.WithLabelValues(method, endpoint).Inc()
		}
	}
}

// SetEndpointHealth flags endpoint as in rotation or cooling down.
func (c *Collector) SetEndpointHealth(endpoint string, up bool) {
	if c == nil {
		return
	}
	m, ok := c.metrics.Load(EndpointHealthType)
	if !ok {
		return
	}
	if gauge, ok := m.(*prometheus.GaugeVec); ok {
		v := 0.0
		if up {
			v = 1
		}
		gauge.WithLabelValues(endpoint).Set(v)
	}
}

// Get returns the collector stored under t.
func (c *Collector) Get(t MetricType) (prometheus.Collector, bool) {
	if c == nil {
		return nil, false
	}
	m, ok := c.metrics.Load(t)
	if !ok {
		return nil, false
	}
	return m.(prometheus.Collector), true
}
