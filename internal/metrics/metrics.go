// Package metrics registers the Prometheus instrumentation bundle shared by
// the observers, pipeline, correlator and sweeps.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LogsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridgescope_logs_decoded_total",
		Help: "Contract logs decoded into transfer records, per observer.",
	}, []string{"protocol", "chain"})

	LogsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridgescope_logs_dropped_total",
		Help: "Contract logs dropped as unrecognized or malformed, per observer.",
	}, []string{"protocol", "chain"})

	ObserverErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridgescope_observer_errors_total",
		Help: "Observer loop errors, per observer.",
	}, []string{"protocol", "chain"})

	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridgescope_observer_reconnects_total",
		Help: "Observer reconnect attempts, per observer.",
	}, []string{"protocol", "chain"})

	RPCRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridgescope_rpc_rotations_total",
		Help: "Endpoint rotations to a fallback RPC, per chain.",
	}, []string{"chain"})

	RecordsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridgescope_records_persisted_total",
		Help: "Transfer records upserted into the relational store.",
	}, []string{"protocol"})

	DeadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridgescope_dead_letters_total",
		Help: "Transfer records parked after exhausting persistence retries.",
	}, []string{"protocol"})

	GraphWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridgescope_graph_write_failures_total",
		Help: "Best-effort graph writes that failed.",
	})

	RiskFlagsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridgescope_risk_flags_total",
		Help: "Risk flags raised during scoring, per flag type.",
	}, []string{"flag"})

	CorrelationsLinked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridgescope_correlations_linked_total",
		Help: "Transfer pairs linked by the correlator.",
	}, []string{"protocol"})

	CorrelationTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridgescope_correlation_timeouts_total",
		Help: "Transfers flagged after exceeding the correlation window.",
	})

	PipelineQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bridgescope_pipeline_queue_depth",
		Help: "Records waiting per pipeline worker queue.",
	}, []string{"worker"})

	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bridgescope_sweep_duration_seconds",
		Help:    "Wall time of maintenance sweeps.",
		Buckets: prometheus.DefBuckets,
	}, []string{"sweep"})
)
