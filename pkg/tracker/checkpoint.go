package tracker

import "github.com/cuemby/rdctrack/pkg/metrics"

// Checkpoint overwrites the stored blob for rank (spec.md 4.G). There
// is no persistence across tracker restarts: the map lives only as
// long as the Job does.
func (j *Job) Checkpoint(rank int, blob []byte) {
	j.checkpointMu.Lock()
	j.checkpoints[rank] = blob
	j.checkpointMu.Unlock()

	metrics.CheckpointsSavedTotal.Inc()
	metrics.CheckpointBlobBytes.Observe(float64(len(blob)))
}

// LoadCheckpoint returns the stored blob for rank and whether one was
// present. Callers that get ok == false must not reply on the wire
// (spec.md §7 resource-missing): the worker is expected to track its
// own checkpoint sequence rather than rely on a reply here.
func (j *Job) LoadCheckpoint(rank int) (blob []byte, ok bool) {
	j.checkpointMu.Lock()
	defer j.checkpointMu.Unlock()

	blob, ok = j.checkpoints[rank]
	return blob, ok
}
