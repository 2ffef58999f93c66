package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions         = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "rigshare_active_sessions", Help: "Authenticated sessions by role"}, []string{"role"})
	AdmissionsTotal        = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rigshare_admissions_total", Help: "Accepted admissions by role"}, []string{"role"})
	AdmissionRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rigshare_admission_rejected_total", Help: "Rejected admissions by role and reason"}, []string{"role", "reason"})
	AuthFailuresTotal      = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rigshare_auth_failures_total", Help: "Credential mismatches on the first frame"}, []string{"role"})
	FramesRelayedTotal     = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rigshare_frames_relayed_total", Help: "Batches relayed by role and direction"}, []string{"role", "direction"})
	BatchesDroppedTotal    = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rigshare_batches_dropped_total", Help: "Batches dropped by role and reason"}, []string{"role", "reason"})
	EventsPublishedTotal   = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rigshare_events_published_total", Help: "Lifecycle events published on the hub"}, []string{"event"})
	EventDeliveryFailures  = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rigshare_event_delivery_failures_total", Help: "Subscriber handlers that returned an error"}, []string{"event"})
	CascadeReleasesTotal   = promauto.NewCounter(prometheus.CounterOpts{Name: "rigshare_cascade_releases_total", Help: "Dependent slots force-released by a sharer departure"})
	SessionDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "rigshare_session_duration_seconds", Help: "Authenticated session lifetime seconds", Buckets: prometheus.ExponentialBuckets(0.1, 2, 16)}, []string{"role"})
	StatusFramesSentTotal  = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rigshare_status_frames_sent_total", Help: "Status notification frames sent"}, []string{"type"})
	ErrorsTotal            = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rigshare_errors_total", Help: "Errors by type"}, []string{"type"})
)
