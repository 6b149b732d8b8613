package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Business metrics
	ActiveChargingSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chargeflow_active_charging_sessions",
		Help: "Number of sessions currently in a non-terminal state",
	})

	SagaOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chargeflow_saga_outcomes_total",
		Help: "Terminal saga outcomes by workflow and result",
	}, []string{"saga", "outcome"})

	SagaDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chargeflow_saga_duration_seconds",
		Help:    "Wall-clock duration of saga executions",
		Buckets: prometheus.DefBuckets,
	}, []string{"saga"})

	SlotReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chargeflow_slot_reservations_total",
		Help: "Slot reserve attempts by result",
	}, []string{"result"})

	// Infrastructure metrics
	EventPublishRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chargeflow_event_publish_retries_total",
		Help: "Event publish attempts that had to be retried",
	})

	EventsDeadLetteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chargeflow_events_dead_lettered_total",
		Help: "Events moved to a dead-letter queue after exhausted retries",
	}, []string{"type"})

	CompensationAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chargeflow_compensation_alerts_total",
		Help: "Manual-intervention alerts raised for failed compensations",
	})
)
