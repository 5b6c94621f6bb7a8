package tracker

import (
	"sync"

	"github.com/google/uuid"

	"github.com/cuemby/rdctrack/pkg/events"
	"github.com/cuemby/rdctrack/pkg/topology"
)

// Job holds the full state of one coordinated run. It is never a
// package-level global: the server constructs one per run and passes a
// pointer to every connection handler, so locks stay scoped to the job
// they protect rather than to the process.
type Job struct {
	ID string

	// trackerMu guards workerIDToRank, nworker, and the per-nworker
	// topology snapshot.
	trackerMu      sync.Mutex
	nworker        int
	workerIDToRank map[int]int // worker-id -> rank; rank == -1 means unassigned
	topo           topology.Topology

	// rankMu/rankCond guard rankCounter, addrCounter, and the
	// addrs/addrToRanks rendezvous (both phases of start/restart wait
	// on the same condvar, mirroring the source tracker's rank_cond).
	rankMu      sync.Mutex
	rankCond    *sync.Cond
	rankCounter int
	addrCounter int
	addrs       map[int]string
	addrToRanks map[string][]int

	// restartMu/restartCond guard newNodeCounter during an elastic
	// restart's join rendezvous.
	restartMu      sync.Mutex
	restartCond    *sync.Cond
	newNodeCounter int

	// nodeMu guards deadNodes and pendingNodes.
	nodeMu       sync.Mutex
	deadNodes    map[int]bool
	pendingNodes int

	// registerMu guards names, nameToRanks, nameToBarrierMu, and
	// nameToBarrierCond (register lazily seeds all of them).
	registerMu        sync.Mutex
	names             map[string]bool
	nameToRanks       map[string]map[int]bool
	nameToBarrierMu   map[string]*sync.Mutex
	nameToBarrierCond map[string]*sync.Cond

	// barrierCtrMu guards nameToBarrierCtr on its own, separate from the
	// per-name nameToBarrierMu: the counter map is shared across every
	// barrier name, while nameToBarrierMu hands out a different mutex per
	// name, so per-name locking alone lets two different names race on
	// the same underlying map and crash the process.
	barrierCtrMu     sync.Mutex
	nameToBarrierCtr map[string]int

	// commMu/commCond guard the exclude/unexclude distributed mutex.
	commMu       sync.Mutex
	commCond     *sync.Cond
	lastComm     string
	hasLastComm  bool
	pendingComms []string // FIFO queue; see Open Question O2 in SPEC_FULL.md
	commAdded    map[string]bool
	lockCounter  int

	// checkpointMu guards checkpoints.
	checkpointMu sync.Mutex
	checkpoints  map[int][]byte

	// lastHeartbeatMu guards lastHeartbeat, read by the watchdog
	// goroutines spawned in failure.go.
	lastHeartbeatMu sync.Mutex
	lastHeartbeat   map[int]int64 // unix nanos

	// broker is optional: set by the server to fan job lifecycle
	// transitions out to metrics/audit subscribers. Nil-safe.
	broker *events.Broker
}

// SetBroker attaches an event broker that job lifecycle transitions are
// published to. Safe to leave unset; publish becomes a no-op.
func (j *Job) SetBroker(b *events.Broker) {
	j.broker = b
}

func (j *Job) publish(typ events.EventType, msg string, meta map[string]string) {
	if j.broker == nil {
		return
	}
	j.broker.Publish(&events.Event{
		ID:       j.ID,
		Type:     typ,
		Message:  msg,
		Metadata: meta,
	})
}

// NewJob creates a job for an initial rendezvous of nworker participants.
func NewJob(nworker int) *Job {
	j := &Job{
		ID:                uuid.NewString(),
		nworker:           nworker,
		workerIDToRank:    make(map[int]int),
		addrs:             make(map[int]string),
		addrToRanks:       make(map[string][]int),
		topo:              topology.Build(nworker),
		deadNodes:         make(map[int]bool),
		names:             make(map[string]bool),
		nameToRanks:       make(map[string]map[int]bool),
		nameToBarrierMu:   make(map[string]*sync.Mutex),
		nameToBarrierCond: make(map[string]*sync.Cond),
		nameToBarrierCtr:  make(map[string]int),
		commAdded:         make(map[string]bool),
		checkpoints:       make(map[int][]byte),
		lastHeartbeat:     make(map[int]int64),
	}
	j.rankCond = sync.NewCond(&j.rankMu)
	j.restartCond = sync.NewCond(&j.restartMu)
	j.commCond = sync.NewCond(&j.commMu)
	return j
}

// NWorker returns the current target world size.
func (j *Job) NWorker() int {
	j.trackerMu.Lock()
	defer j.trackerMu.Unlock()
	return j.nworker
}

// Topology returns the tree/parent/ring maps for the job's current
// world size.
func (j *Job) Topology() topology.Topology {
	j.trackerMu.Lock()
	defer j.trackerMu.Unlock()
	return j.topo
}

// WorkersConnected reports how many worker-ids have registered a rank
// so far, for metrics.JobStats.
func (j *Job) WorkersConnected() int {
	j.trackerMu.Lock()
	defer j.trackerMu.Unlock()
	return len(j.workerIDToRank)
}

// DeadCount reports the current size of the dead-node set, for
// metrics.JobStats.
func (j *Job) DeadCount() int {
	j.nodeMu.Lock()
	defer j.nodeMu.Unlock()
	return len(j.deadNodes)
}

// ExcludeSnapshot reports the name currently holding the exclusive
// section (true) and each pending name (false), for metrics.JobStats.
// Registered names that are neither held nor pending are not listed.
func (j *Job) ExcludeSnapshot() map[string]bool {
	j.commMu.Lock()
	defer j.commMu.Unlock()

	snap := make(map[string]bool)
	if j.hasLastComm {
		snap[j.lastComm] = true
	}
	for _, name := range j.pendingComms {
		if _, ok := snap[name]; !ok {
			snap[name] = false
		}
	}
	return snap
}

// realloc assigns the smallest unused non-negative rank to every
// worker-id still carrying the sentinel rank -1. Callers must hold
// trackerMu.
func (j *Job) realloc() {
	existing := make(map[int]bool, len(j.workerIDToRank))
	for _, rank := range j.workerIDToRank {
		if rank != -1 {
			existing[rank] = true
		}
	}
	next := 0
	for workerID, rank := range j.workerIDToRank {
		if rank != -1 {
			continue
		}
		for existing[next] {
			next++
		}
		j.workerIDToRank[workerID] = next
		existing[next] = true
		next++
	}
}

// barrierCond lazily creates the condvar for a barrier/register name.
// Callers must hold registerMu.
func (j *Job) barrierCond(name string) *sync.Cond {
	if cond, ok := j.nameToBarrierCond[name]; ok {
		return cond
	}
	mu := &sync.Mutex{}
	cond := sync.NewCond(mu)
	j.nameToBarrierMu[name] = mu
	j.nameToBarrierCond[name] = cond
	j.barrierCtrMu.Lock()
	j.nameToBarrierCtr[name] = 0
	j.barrierCtrMu.Unlock()
	j.names[name] = true
	j.nameToRanks[name] = make(map[int]bool)
	return cond
}
