package tracker

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/rdctrack/pkg/events"
	"github.com/cuemby/rdctrack/pkg/log"
	"github.com/cuemby/rdctrack/pkg/metrics"
)

// HeartbeatInterval is the default spacing between a worker's
// heartbeat commands and between watchdog sweeps, matching
// RDC_HEARTBEAT_INTERVAL (spec.md §6).
const HeartbeatInterval = 5 * time.Second

// Heartbeat records that workerID is alive and returns the current
// dead-rank set and pending-node count (spec.md 4.F).
func (j *Job) Heartbeat(workerID int) (deadRanks []int, pendingNodes int) {
	j.lastHeartbeatMu.Lock()
	j.lastHeartbeat[workerID] = time.Now().UnixNano()
	j.lastHeartbeatMu.Unlock()

	j.nodeMu.Lock()
	deadRanks = j.sortedDeadRanksLocked()
	pendingNodes = j.pendingNodes
	j.nodeMu.Unlock()

	return deadRanks, pendingNodes
}

// Watchdog is a per-connection goroutine that marks a worker's rank
// dead once its heartbeat goes stale, so a slow watchdog for one
// worker cannot delay detection for any other (spec.md 4.F, §5).
type Watchdog struct {
	job      *Job
	workerID int
	stopCh   chan struct{}
	once     sync.Once
}

// NewWatchdog creates (but does not start) a watchdog for workerID.
func NewWatchdog(job *Job, workerID int) *Watchdog {
	job.lastHeartbeatMu.Lock()
	job.lastHeartbeat[workerID] = time.Now().UnixNano()
	job.lastHeartbeatMu.Unlock()

	return &Watchdog{
		job:      job,
		workerID: workerID,
		stopCh:   make(chan struct{}),
	}
}

// Run starts the watchdog's sweep loop; call in its own goroutine. It
// returns when Stop is called.
func (w *Watchdog) Run() {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-w.stopCh:
			return
		}
	}
}

// Stop ends the watchdog's sweep loop. Safe to call more than once.
func (w *Watchdog) Stop() {
	w.once.Do(func() { close(w.stopCh) })
}

func (w *Watchdog) sweep() {
	w.job.lastHeartbeatMu.Lock()
	last := w.job.lastHeartbeat[w.workerID]
	w.job.lastHeartbeatMu.Unlock()

	if time.Since(time.Unix(0, last)) <= 2*HeartbeatInterval {
		return
	}

	w.job.trackerMu.Lock()
	rank, ok := w.job.workerIDToRank[w.workerID]
	w.job.trackerMu.Unlock()
	if !ok || rank == -1 {
		return
	}

	w.job.nodeMu.Lock()
	alreadyDead := w.job.deadNodes[rank]
	w.job.deadNodes[rank] = true
	w.job.nodeMu.Unlock()

	if !alreadyDead {
		metrics.WorkersDeadTotal.Inc()
		log.WithWorker(w.workerID, rank).Warn().Msg("worker missed heartbeat deadline, marked dead")
		w.job.publish(events.EventWorkerDead, "worker missed heartbeat deadline", map[string]string{"rank": fmt.Sprintf("%d", rank)})
	}
}
