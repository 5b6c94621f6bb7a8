package tracker

import (
	"github.com/cuemby/rdctrack/pkg/events"
	"github.com/cuemby/rdctrack/pkg/metrics"
)

// Exclude implements the exclude half of the distributed fair mutex
// over named groups (spec.md 4.E.4). It returns "exclude_done" when the
// caller's name now holds (or already held) the lock, or
// "exclude_undone" when another name holds it and the caller's name has
// been queued; the client is expected to retry exclude in that case.
func (j *Job) Exclude(name string) string {
	j.commMu.Lock()
	defer j.commMu.Unlock()

	if j.hasLastComm && j.lastComm == name {
		return "exclude_done"
	}
	if !j.hasLastComm {
		j.hasLastComm = true
		j.lastComm = name
		j.publish(events.EventExcludeGranted, "exclude granted", map[string]string{"name": name})
		return "exclude_done"
	}
	if !j.commAdded[name] {
		j.pendingComms = append(j.pendingComms, name)
		j.commAdded[name] = true
	}
	return "exclude_undone"
}

// Unexclude runs the N-party unexclude rendezvous (spec.md 4.E.4): the
// last of nworker arrivals pops the next pending name (FIFO) into the
// held position, or clears it if no name is pending, then releases
// every waiter.
func (j *Job) Unexclude(name string) string {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ExcludeWaitDuration, name)

	nworker := j.NWorker()

	j.commMu.Lock()
	j.lockCounter++
	if j.lockCounter != nworker {
		j.commCond.Wait()
	} else {
		j.lockCounter = 0
		if len(j.pendingComms) > 0 {
			next := j.pendingComms[0]
			j.pendingComms = j.pendingComms[1:]
			delete(j.commAdded, next)
			j.lastComm = next
			j.hasLastComm = true
		} else {
			j.lastComm = ""
			j.hasLastComm = false
		}
		j.commCond.Broadcast()
	}
	j.commMu.Unlock()

	j.publish(events.EventUnexcludeDone, "unexclude completed", map[string]string{"name": name})
	return "unexclude_done"
}
