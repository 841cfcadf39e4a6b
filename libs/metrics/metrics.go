package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/httpx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns a private prometheus registry plus the HTTP metrics every service exposes.
// Service-specific collectors are created through Factory so they land in the same registry.
type Registry struct {
	reg       *prometheus.Registry
	Factory   promauto.Factory
	Namespace string

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

func New(namespace string) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Registry{
		reg:       reg,
		Factory:   factory,
		Namespace: namespace,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
	}
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Middleware records request count and latency. Paths are used verbatim, so it must only
// wrap routers whose paths carry no identifiers.
func (r *Registry) Middleware() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Path == "/metrics" {
				next.ServeHTTP(w, req)
				return
			}
			start := time.Now()
			r.inFlight.Inc()
			defer r.inFlight.Dec()

			sw := httpx.NewStatusRecorder(w)
			next.ServeHTTP(sw, req)

			r.requestsTotal.WithLabelValues(req.Method, req.URL.Path, strconv.Itoa(sw.StatusCode())).Inc()
			r.requestDuration.WithLabelValues(req.Method, req.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}
