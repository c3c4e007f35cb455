package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GateDecisions counts authorization outcomes by deny reason
	// ("allow" outcome carries an empty reason).
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusd_gate_decisions_total",
		Help: "Authorization gate decisions by outcome and reason.",
	}, []string{"outcome", "reason"})

	// KioskContacts counts heartbeat and sync contacts.
	KioskContacts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusd_kiosk_contacts_total",
		Help: "Kiosk contacts by kind.",
	}, []string{"kind"})

	// DispatchResults counts per-endpoint fan-out outcomes.
	DispatchResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusd_device_dispatch_total",
		Help: "Device dispatch outcomes per endpoint.",
	}, []string{"outcome"})
)

// ObserveGate records one gate decision.
func ObserveGate(allowed bool, reason string) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
		reason = ""
	}
	GateDecisions.WithLabelValues(outcome, reason).Inc()
}
