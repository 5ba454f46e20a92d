package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// FetchTotal counts backend fetches by endpoint and result.
	FetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reliefdesk",
		Subsystem: "backend",
		Name:      "fetch_total",
		Help:      "Total number of backend list/stats fetches, labeled by endpoint and result.",
	}, []string{"endpoint", "result"})

	// StaleResponsesTotal counts fetch responses discarded because a newer fetch was issued.
	StaleResponsesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reliefdesk",
		Subsystem: "backend",
		Name:      "stale_responses_total",
		Help:      "Fetch responses dropped because a newer fetch of the same kind was issued.",
	}, []string{"endpoint"})

	// SubmissionsTotal counts submissions by outcome.
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reliefdesk",
		Subsystem: "submission",
		Name:      "total",
		Help:      "Total number of help request submissions, labeled by result.",
	}, []string{"result"})

	// ValidationFailuresTotal counts drafts rejected locally, by kind and field.
	ValidationFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reliefdesk",
		Subsystem: "submission",
		Name:      "validation_failures_total",
		Help:      "Drafts rejected before transport, labeled by kind and field.",
	}, []string{"kind", "field"})

	// GeolocationFailuresTotal counts failed location lookups by reason.
	GeolocationFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reliefdesk",
		Subsystem: "geolocation",
		Name:      "failures_total",
		Help:      "Failed location lookups, labeled by reason.",
	}, []string{"reason"})

	// VisibleRequests is the number of verified requests currently shown.
	VisibleRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reliefdesk",
		Subsystem: "display",
		Name:      "visible_requests",
		Help:      "Number of verified help requests in the current list.",
	})

	// Generation is the current data generation counter.
	Generation = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reliefdesk",
		Subsystem: "display",
		Name:      "generation",
		Help:      "Monotonic counter bumped whenever the request list must be re-fetched.",
	})

	// WebsocketClients is the number of connected listeners.
	WebsocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reliefdesk",
		Subsystem: "websocket",
		Name:      "connected_clients",
		Help:      "Number of connected websocket listeners.",
	})
)

// Register registers relief desk metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			FetchTotal,
			StaleResponsesTotal,
			SubmissionsTotal,
			ValidationFailuresTotal,
			GeolocationFailuresTotal,
			VisibleRequests,
			Generation,
			WebsocketClients,
		)
	})
}
