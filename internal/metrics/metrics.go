package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Recording = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "captions_recording",
		Help: "1 while a session is being recorded",
	})

	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "captions_sessions_started_total",
		Help: "Recording sessions started",
	})

	RecordsCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "captions_records_captured_total",
		Help: "Caption turns seen for the first time",
	})

	RecordsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "captions_records_updated_total",
		Help: "Text revisions applied to existing caption turns",
	})

	ReconcilePasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "captions_reconcile_passes_total",
		Help: "Reconciliation passes run against the caption region",
	})

	LiveNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "captions_live_nodes",
		Help: "Caption elements currently tracked",
	})

	Snapshots = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "captions_snapshots_total",
		Help: "Session snapshots written, by trigger and result",
	}, []string{"trigger", "result"})

	PagesConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "captions_pages_connected",
		Help: "Meeting tabs with a live observer connection",
	})
)
