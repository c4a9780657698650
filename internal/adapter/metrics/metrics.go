// Package metrics defines the Prometheus instruments of the service. Every
// instrument is registered on an explicit registry so tests can build isolated sets.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pollpulse"

// Set bundles all instruments registered on one registry.
type Set struct {
	Registry  *prometheus.Registry
	HTTP      *HTTPMetrics
	Votes     *VoteMetrics
	WebSocket *WebSocketMetrics
}

// NewSet creates a registry with runtime collectors and all service metrics.
func NewSet() *Set {
	reg := NewRegistry()
	return &Set{
		Registry:  reg,
		HTTP:      NewHTTPMetrics(reg),
		Votes:     NewVoteMetrics(reg),
		WebSocket: NewWebSocketMetrics(reg),
	}
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves the registry's metrics.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{Registry: s.Registry})
}
