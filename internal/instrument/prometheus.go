// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package instrument provides the prometheus metrics of the registry,
// relays and users.
package instrument

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registration results.
const (
	RegistrationNew      = "new"
	RegistrationExisting = "existing"
	RegistrationInvalid  = "invalid"
)

var (
	registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onionsim_registry_registrations_total",
			Help: "Number of node registrations by result",
		},
		[]string{"result"},
	)
	registeredNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "onionsim_registry_nodes",
			Help: "Number of nodes in the registry",
		},
	)
	registryResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "onionsim_registry_resets_total",
			Help: "Number of registry resets",
		},
	)
	packetsForwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "onionsim_relay_forwarded_total",
			Help: "Number of packets forwarded to the next relay",
		},
	)
	packetsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "onionsim_relay_delivered_total",
			Help: "Number of messages delivered to a user",
		},
	)
	packetsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onionsim_relay_rejected_total",
			Help: "Number of inbound packets rejected by error kind",
		},
		[]string{"kind"},
	)
	hopLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "onionsim_relay_hop_seconds",
			Help:    "Time spent handing a packet to the next hop",
			Buckets: prometheus.DefBuckets,
		},
	)
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onionsim_user_sent_total",
			Help: "Number of send attempts by result",
		},
		[]string{"result"},
	)
	messagesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "onionsim_user_received_total",
			Help: "Number of messages delivered to users",
		},
	)

	initOnce sync.Once
)

// Init registers the metrics with the default registry.  Every process
// may call it, and several services sharing a process may each call it.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			registrations,
			registeredNodes,
			registryResets,
			packetsForwarded,
			packetsDelivered,
			packetsRejected,
			hopLatency,
			messagesSent,
			messagesReceived,
		)
	})
}

// Listen exposes the registered metrics on address at /metrics.  The caller
// owns the returned server.
func Listen(address string) (*http.Server, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return Serve(l), nil
}

// Serve exposes the registered metrics on l at /metrics.
func Serve(l net.Listener) *http.Server {
	Init()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go srv.Serve(l)
	return srv
}

// Registration counts a registration attempt.
func Registration(result string) {
	registrations.WithLabelValues(result).Inc()
}

// RegisteredNodes sets the registry size.
func RegisteredNodes(n int) {
	registeredNodes.Set(float64(n))
}

// RegistryReset counts a registry reset.
func RegistryReset() {
	registryResets.Inc()
}

// Forwarded counts a packet handed to the next relay.
func Forwarded() {
	packetsForwarded.Inc()
}

// Delivered counts a message handed to its destination user.
func Delivered() {
	packetsDelivered.Inc()
}

// Rejected counts an inbound packet a relay refused.
func Rejected(kind string) {
	packetsRejected.WithLabelValues(kind).Inc()
}

// HopLatency observes the duration of an outbound hop.
func HopLatency(d time.Duration) {
	hopLatency.Observe(d.Seconds())
}

// Sent counts a send attempt.
func Sent(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	messagesSent.WithLabelValues(result).Inc()
}

// Received counts a delivered message.
func Received() {
	messagesReceived.Inc()
}
