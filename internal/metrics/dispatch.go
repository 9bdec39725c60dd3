package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatcher metrics. Job outcomes are labelled by result: claimed,
// conflict, completed, failed, reaped.
var (
	DispatchTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_dispatch_ticks_total",
		Help: "Total dispatch invocations",
	}, []string{"source"})

	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "outreach_dispatch_duration_seconds",
		Help:    "Duration of each dispatch invocation",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	})

	DispatchJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_dispatch_jobs_total",
		Help: "Scheduled jobs handled by the dispatcher, by result",
	}, []string{"result"})

	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_messages_total",
		Help: "Personalized messages handed to the send API, by result",
	}, []string{"result"})

	VariableFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outreach_variable_fallbacks_total",
		Help: "Template variables rendered with their default value",
	})
)
