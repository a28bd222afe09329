package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics — коллекторы приложения на собственном реестре.
// Методы допускают nil-получатель: без метрик просто ничего не пишем.
type Metrics struct {
	Registry *prometheus.Registry

	peerOps  *prometheus.CounterVec
	peers    prometheus.Gauge
	drift    *prometheus.GaugeVec
	requests *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		peerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wg_webui_peer_operations_total",
			Help: "Peer operations by kind and result (ok or error kind).",
		}, []string{"op", "result"}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wg_webui_registered_peers",
			Help: "Peers currently present in the registry.",
		}),
		drift: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wg_webui_registry_drift",
			Help: "Registry vs interface mismatches found by the last reconciliation.",
		}, []string{"kind"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wg_webui_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "code"}),
	}
	reg.MustRegister(
		m.peerOps, m.peers, m.drift, m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) PeerOp(op, result string) {
	if m == nil {
		return
	}
	m.peerOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) SetPeers(n int) {
	if m == nil {
		return
	}
	m.peers.Set(float64(n))
}

func (m *Metrics) SetDrift(kind string, n int) {
	if m == nil {
		return
	}
	m.drift.WithLabelValues(kind).Set(float64(n))
}

func (m *Metrics) ObserveRequest(method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Observe(d.Seconds())
}
