// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus collectors for the bridge.
//
// A nil *Bridge is valid and records nothing, so components take an
// optional *Bridge without guarding every call site.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "privbridge"

// Bridge holds the collectors for one bridge process.
type Bridge struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool

	framesSent       *prometheus.CounterVec
	framesReceived   *prometheus.CounterVec
	sendFailures     *prometheus.CounterVec
	decodeFailures   prometheus.Counter
	unroutable       *prometheus.CounterVec
	callbackFailures *prometheus.CounterVec
	callbackDuration *prometheus.HistogramVec
	pending          *prometheus.GaugeVec
	connected        prometheus.Gauge
	redialAttempts   prometheus.Counter
}

func newCounterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

// New creates the collectors. A nil registerer selects
// prometheus.DefaultRegisterer. Nothing is registered until Register.
func New(registerer prometheus.Registerer) *Bridge {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Bridge{
		registerer:       registerer,
		framesSent:       newCounterVec("transport", "frames_sent_total", "Frames written to the peer, by payload kind.", "kind"),
		framesReceived:   newCounterVec("transport", "frames_received_total", "Frames decoded from the peer, by payload kind.", "kind"),
		sendFailures:     newCounterVec("transport", "send_failures_total", "Envelopes that could not be sent, by payload kind.", "kind"),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "decode_failures_total",
			Help:      "Inbound frames that failed to decode and were skipped.",
		}),
		unroutable:       newCounterVec("dispatch", "unroutable_frames_total", "Inbound frames whose origin id had no registration, by family.", "family"),
		callbackFailures: newCounterVec("dispatch", "callback_failures_total", "Callback invocations that failed, by family and reason.", "family", "reason"),
		callbackDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "callback_duration_seconds",
			Help:      "Time spent inside caller callbacks, by family.",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
		}, []string{"family"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "pending_operations",
			Help:      "Registered operations awaiting a terminal event, by family.",
		}, []string{"family"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connected",
			Help:      "1 while the connection to the peer is up.",
		}),
		redialAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "redial_attempts_total",
			Help:      "Reconnection attempts after the connection was lost.",
		}),
	}
}

// Register registers every collector. Calling it more than once, or
// against a registry that already holds the same collectors, is not an
// error.
func (m *Bridge) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.framesSent, m.framesReceived, m.sendFailures, m.decodeFailures,
		m.unroutable, m.callbackFailures, m.callbackDuration, m.pending,
		m.connected, m.redialAttempts,
	}
	for _, collector := range collectors {
		if err := m.registerer.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	m.registered = true
	return nil
}

func (m *Bridge) FrameSent(kind string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(kind).Inc()
}

func (m *Bridge) FrameReceived(kind string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind).Inc()
}

func (m *Bridge) SendFailed(kind string) {
	if m == nil {
		return
	}
	m.sendFailures.WithLabelValues(kind).Inc()
}

func (m *Bridge) DecodeFailed() {
	if m == nil {
		return
	}
	m.decodeFailures.Inc()
}

func (m *Bridge) Unroutable(family string) {
	if m == nil {
		return
	}
	m.unroutable.WithLabelValues(family).Inc()
}

// CallbackFailed counts a failed callback. Reason is one of "error",
// "dead_reference", or "panic".
func (m *Bridge) CallbackFailed(family, reason string) {
	if m == nil {
		return
	}
	m.callbackFailures.WithLabelValues(family, reason).Inc()
}

func (m *Bridge) ObserveCallback(family string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.callbackDuration.WithLabelValues(family).Observe(elapsed.Seconds())
}

// SetPending records the current registry size for a family.
func (m *Bridge) SetPending(family string, count int) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(family).Set(float64(count))
}

func (m *Bridge) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Bridge) RedialAttempt() {
	if m == nil {
		return
	}
	m.redialAttempts.Inc()
}
