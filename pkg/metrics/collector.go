package metrics

import "time"

// JobStats is a point-in-time snapshot of a rendezvous job, populated by
// whatever owns the job (pkg/server) and handed to the collector on each
// poll. Keeping this as a plain struct, rather than importing the tracker
// package directly, avoids a metrics<->tracker import cycle.
type JobStats struct {
	WorkersConnected int
	WorkersDead      int
	ExcludeHeld      map[string]bool
}

// StatsProvider returns the current JobStats for the running job.
type StatsProvider func() JobStats

// Collector periodically pulls JobStats from a provider and republishes
// WorkersConnected and ExcludeHeld as gauges. WorkersDead is not
// republished; the dead-worker counter is incremented by the watchdog.
type Collector struct {
	provide StatsProvider
	stopCh  chan struct{}
}

// NewCollector creates a metrics collector bound to the given stats provider.
func NewCollector(provide StatsProvider) *Collector {
	return &Collector{
		provide: provide,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics on a fixed interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.provide == nil {
		return
	}

	stats := c.provide()

	WorkersConnected.Set(float64(stats.WorkersConnected))

	for name, held := range stats.ExcludeHeld {
		if held {
			ExcludeHeld.WithLabelValues(name).Set(1)
		} else {
			ExcludeHeld.WithLabelValues(name).Set(0)
		}
	}
}
