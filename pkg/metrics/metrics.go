package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection metrics
	WorkersConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rdctrack_workers_connected",
			Help: "Number of worker-ids that have entered the start rendezvous",
		},
	)

	WorkersDeadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rdctrack_workers_dead_total",
			Help: "Total number of workers detected dead by heartbeat timeout",
		},
	)

	// Command dispatch metrics
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdctrack_commands_total",
			Help: "Total number of wire commands processed by name",
		},
		[]string{"command"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rdctrack_command_duration_seconds",
			Help:    "Time taken to handle a wire command in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	// Rendezvous metrics
	RendezvousEpochsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rdctrack_rendezvous_epochs_total",
			Help: "Total number of rendezvous epochs completed (initial start plus restarts)",
		},
	)

	RendezvousWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rdctrack_rendezvous_wait_duration_seconds",
			Help:    "Time a worker spends in the start/restart rendezvous, rank assignment and address exchange included",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Barrier and mutex metrics
	BarrierWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rdctrack_barrier_wait_duration_seconds",
			Help:    "Time a worker waits at a named barrier before release",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"barrier"},
	)

	ExcludeWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rdctrack_exclude_wait_duration_seconds",
			Help:    "Time a worker waits in the unexclude rendezvous that releases a named exclusive section",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"name"},
	)

	ExcludeHeld = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rdctrack_exclude_held",
			Help: "Whether a named exclusive section is currently held (1) or free (0)",
		},
		[]string{"name"},
	)

	// Checkpoint store metrics
	CheckpointsSavedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rdctrack_checkpoints_saved_total",
			Help: "Total number of checkpoint blobs saved",
		},
	)

	CheckpointBlobBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rdctrack_checkpoint_blob_bytes",
			Help:    "Size in bytes of saved checkpoint blobs",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(WorkersConnected)
	prometheus.MustRegister(WorkersDeadTotal)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(RendezvousEpochsTotal)
	prometheus.MustRegister(RendezvousWaitDuration)
	prometheus.MustRegister(BarrierWaitDuration)
	prometheus.MustRegister(ExcludeWaitDuration)
	prometheus.MustRegister(ExcludeHeld)
	prometheus.MustRegister(CheckpointsSavedTotal)
	prometheus.MustRegister(CheckpointBlobBytes)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
