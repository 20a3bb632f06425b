package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	accessDecisions   *prometheus.CounterVec
	complianceScore   prometheus.Histogram
	complianceFailed  prometheus.Counter
	activeSessions    prometheus.Gauge
	sessionsCreated   prometheus.Counter
	auditEventsLogged *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		accessDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinical_access",
			Name:      "access_decisions_total",
			Help:      "Access control decisions by outcome.",
		}, []string{"outcome"}),
		complianceScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinical_access",
			Name:      "compliance_score",
			Help:      "Overall compliance score of validation runs.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		complianceFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "clinical_access",
			Name:      "compliance_critical_failures_total",
			Help:      "Critical rule failures observed across validation runs.",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinical_access",
			Name:      "active_sessions",
			Help:      "Currently active sessions.",
		}),
		sessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "clinical_access",
			Name:      "sessions_created_total",
			Help:      "Sessions created since start.",
		}),
		auditEventsLogged: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinical_access",
			Name:      "audit_events_total",
			Help:      "Audit events recorded by outcome.",
		}, []string{"outcome"}),
	}
}
