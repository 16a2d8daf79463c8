package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks check-in outcomes, lockouts and notification delivery.
type Metrics struct {
	CheckIns         *prometheus.CounterVec
	CheckInDuration  prometheus.Histogram
	Lockouts         prometheus.Counter
	NotifyFailures   prometheus.Counter
	EventsForwarded  prometheus.Counter
	GalleryRefreshes prometheus.Counter
	GalleryTemplates prometheus.Gauge
}

// New registers the metrics with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CheckIns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "venueattend_checkins_total",
			Help: "Check-in attempts by outcome code and method",
		}, []string{"outcome", "method"}),
		CheckInDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "venueattend_checkin_duration_seconds",
			Help:    "Duration of check-in evaluation including storage calls",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		Lockouts: f.NewCounter(prometheus.CounterOpts{
			Name: "venueattend_account_lockouts_total",
			Help: "Accounts locked after repeated PIN failures",
		}),
		NotifyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "venueattend_notify_failures_total",
			Help: "Attendance notifications that could not be handed off",
		}),
		EventsForwarded: f.NewCounter(prometheus.CounterOpts{
			Name: "venueattend_events_forwarded_total",
			Help: "Attendance events forwarded to the message broker by the worker",
		}),
		GalleryRefreshes: f.NewCounter(prometheus.CounterOpts{
			Name: "venueattend_gallery_refreshes_total",
			Help: "Face gallery reloads from the member store",
		}),
		GalleryTemplates: f.NewGauge(prometheus.GaugeOpts{
			Name: "venueattend_gallery_templates",
			Help: "Enrolled face templates held by the gallery",
		}),
	}
}

// ObserveCheckIn records one evaluated check-in.
// Call with time.Now() at the start of the evaluation.
func (m *Metrics) ObserveCheckIn(outcome, method string, start time.Time) {
	if m == nil {
		return
	}
	m.CheckIns.WithLabelValues(outcome, method).Inc()
	m.CheckInDuration.Observe(time.Since(start).Seconds())
}

// AccountLocked satisfies identity.LockoutRecorder.
func (m *Metrics) AccountLocked() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.NotifyFailures.Inc()
}

func (m *Metrics) EventForwarded() {
	if m == nil {
		return
	}
	m.EventsForwarded.Inc()
}

// GalleryRefreshed records a reload that left n templates in memory.
func (m *Metrics) GalleryRefreshed(n int) {
	if m == nil {
		return
	}
	m.GalleryRefreshes.Inc()
	m.GalleryTemplates.Set(float64(n))
}
