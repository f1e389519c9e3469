/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	sessions prometheus.Gauge
	clients  prometheus.Gauge
	actions  *prometheus.CounterVec
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "connections_sessions_active",
			Help: "Number of live connection sessions",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "connections_clients_connected",
			Help: "Number of websocket clients attached to a session",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connections_actions_total",
			Help: "Total number of session actions applied, by action",
		}, []string{"action"}),
	}

	m.registry.MustRegister(
		m.sessions,
		m.clients,
		m.actions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func registerMetrics(cfg *Config, m *Metrics, mux *httprouter.Router) {
	mux.Handler("GET", cfg.prefix+"/metrics", m.handler())
}

func (m *Metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

func (m *Metrics) clientConnected() {
	if m == nil {
		return
	}
	m.clients.Inc()
}

func (m *Metrics) clientDisconnected() {
	if m == nil {
		return
	}
	m.clients.Dec()
}

func (m *Metrics) actionApplied(action string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action).Inc()
}
