package tracker

import (
	"fmt"
	"sort"

	"github.com/cuemby/rdctrack/pkg/events"
	"github.com/cuemby/rdctrack/pkg/log"
	"github.com/cuemby/rdctrack/pkg/metrics"
	"github.com/cuemby/rdctrack/pkg/topology"
	"github.com/cuemby/rdctrack/pkg/wire"
)

// StartReply is the ordered payload a worker receives after start or
// restart completes, per spec.md 4.E.1 step 5.
type StartReply struct {
	DeadRanks    []int
	PendingNodes int
	PeerRanks    []int // ranks sharing this worker's address, its own included
	NWorld       int
	Rank         int
	NumConn      int // ranks < self
	NumAccept    int // ranks > self
	ConnectTo    []rankAddr // for rank < self: addr + rank, ascending
	AcceptFrom   []int      // for rank > self: rank, ascending
}

type rankAddr struct {
	Addr string
	Rank int
}

// HandleStart runs the full start/restart rendezvous for one worker
// connection and returns the reply to send back. workerID is the
// connection's ordinal; requestedRank is -1 to ask the tracker to
// allocate one. nNewWorker is 0 for a plain start, >0 for a restart
// joining nNewWorker peers.
func (j *Job) HandleStart(workerID, requestedRank int, addr string, nNewWorker int) StartReply {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RendezvousWaitDuration)

	if nNewWorker > 0 {
		j.joinRestart(nNewWorker)
	}

	j.trackerMu.Lock()
	j.workerIDToRank[workerID] = requestedRank
	j.trackerMu.Unlock()

	// nworker is stable for the rest of this rendezvous: joinRestart
	// (above) already completed any bump before we get here.
	nworker := j.NWorker()

	j.rankMu.Lock()
	j.rankCounter++
	if j.rankCounter != nworker {
		j.rankCond.Wait()
	} else {
		j.rankCounter = 0
		j.trackerMu.Lock()
		j.realloc()
		j.trackerMu.Unlock()
		j.nodeMu.Lock()
		j.pendingNodes = 0
		j.nodeMu.Unlock()
		metrics.RendezvousEpochsTotal.Inc()
		j.rankCond.Broadcast()
	}
	j.rankMu.Unlock()

	j.trackerMu.Lock()
	rank := j.workerIDToRank[workerID]
	j.trackerMu.Unlock()

	j.nodeMu.Lock()
	deadRanks := j.sortedDeadRanksLocked()
	pending := j.pendingNodes
	j.nodeMu.Unlock()

	j.rankMu.Lock()
	j.addrs[rank] = addr
	j.addrCounter++
	if j.addrCounter != nworker {
		j.rankCond.Wait()
	} else {
		j.addrCounter = 0
		j.addrToRanks = invertAddrs(j.addrs)
		j.rankCond.Broadcast()
	}
	peers := append([]int(nil), j.addrToRanks[addr]...)
	j.rankMu.Unlock()

	reply := StartReply{
		DeadRanks:    deadRanks,
		PendingNodes: pending,
		PeerRanks:    peers,
		NWorld:       nworker,
		Rank:         rank,
	}

	j.rankMu.Lock()
	addrsSnapshot := make(map[int]string, len(j.addrs))
	for r, a := range j.addrs {
		addrsSnapshot[r] = a
	}
	j.rankMu.Unlock()

	reply.ConnectTo, reply.AcceptFrom = partitionAddrs(addrsSnapshot, rank)
	reply.NumConn = len(reply.ConnectTo)
	reply.NumAccept = len(reply.AcceptFrom)

	log.WithWorker(workerID, rank).Info().Msg("rendezvous complete")
	j.publish(events.EventWorkerStarted, "rendezvous complete", map[string]string{"rank": fmt.Sprintf("%d", rank)})
	return reply
}

// joinRestart waits until nNewWorker restart-joiners have all arrived,
// then bumps nworker and sets pendingNodes, matching spec.md 4.E.1
// step 2. Exactly one caller performs the bump; the rest simply wait.
func (j *Job) joinRestart(nNewWorker int) {
	j.publish(events.EventRestartBegin, "restart join rendezvous entered", map[string]string{"n_new_worker": fmt.Sprintf("%d", nNewWorker)})

	j.restartMu.Lock()
	j.newNodeCounter++
	if j.newNodeCounter != nNewWorker {
		j.restartCond.Wait()
	} else {
		j.newNodeCounter = 0
		j.trackerMu.Lock()
		j.nworker += nNewWorker
		j.topo = topology.Build(j.nworker)
		j.trackerMu.Unlock()
		j.nodeMu.Lock()
		j.pendingNodes = nNewWorker
		j.nodeMu.Unlock()
		j.restartCond.Broadcast()
		j.publish(events.EventRestartDone, "restart join rendezvous completed", map[string]string{"n_new_worker": fmt.Sprintf("%d", nNewWorker)})
	}
	j.restartMu.Unlock()
}

// sortedDeadRanksLocked returns the dead-rank set as a stable slice.
// Callers must hold nodeMu.
func (j *Job) sortedDeadRanksLocked() []int {
	ranks := make([]int, 0, len(j.deadNodes))
	for r := range j.deadNodes {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	return ranks
}

func invertAddrs(addrs map[int]string) map[string][]int {
	inv := make(map[string][]int)
	ranks := make([]int, 0, len(addrs))
	for r := range addrs {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	for _, r := range ranks {
		inv[addrs[r]] = append(inv[addrs[r]], r)
	}
	return inv
}

// Register idempotently creates a named group and adds rank to it,
// lazily initializing that name's barrier state (spec.md 4.E.2).
func (j *Job) Register(name string, rank int) {
	j.registerMu.Lock()
	defer j.registerMu.Unlock()

	j.barrierCond(name)
	j.nameToRanks[name][rank] = true
}

// Barrier runs a per-name N-party rendezvous and returns once every
// current participant has called it for this epoch (spec.md 4.E.3).
func (j *Job) Barrier(name string) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.BarrierWaitDuration, name)

	j.registerMu.Lock()
	cond := j.barrierCond(name)
	mu := j.nameToBarrierMu[name]
	j.registerMu.Unlock()

	n := j.NWorker()

	mu.Lock()
	j.barrierCtrMu.Lock()
	j.nameToBarrierCtr[name]++
	ctr := j.nameToBarrierCtr[name]
	j.barrierCtrMu.Unlock()
	if ctr != n {
		cond.Wait()
	} else {
		j.barrierCtrMu.Lock()
		j.nameToBarrierCtr[name] = 0
		j.barrierCtrMu.Unlock()
		cond.Broadcast()
	}
	mu.Unlock()
}

// WriteStartReply serializes a StartReply onto the wire in the exact
// order spec.md 4.E.1 step 5 specifies.
func WriteStartReply(c *wire.Conn, reply StartReply) error {
	if err := c.WriteInt(int32(len(reply.DeadRanks))); err != nil {
		return err
	}
	for _, d := range reply.DeadRanks {
		if err := c.WriteInt(int32(d)); err != nil {
			return err
		}
	}
	if err := c.WriteInt(int32(reply.PendingNodes)); err != nil {
		return err
	}
	if err := c.WriteInt(int32(len(reply.PeerRanks))); err != nil {
		return err
	}
	for _, p := range reply.PeerRanks {
		if err := c.WriteInt(int32(p)); err != nil {
			return err
		}
	}
	if err := c.WriteInt(int32(reply.NWorld)); err != nil {
		return err
	}
	if err := c.WriteInt(int32(reply.Rank)); err != nil {
		return err
	}
	if err := c.WriteInt(int32(reply.NumConn)); err != nil {
		return err
	}
	if err := c.WriteInt(int32(reply.NumAccept)); err != nil {
		return err
	}
	for _, ca := range reply.ConnectTo {
		if err := c.WriteString(ca.Addr); err != nil {
			return err
		}
		if err := c.WriteInt(int32(ca.Rank)); err != nil {
			return err
		}
	}
	for _, r := range reply.AcceptFrom {
		if err := c.WriteInt(int32(r)); err != nil {
			return err
		}
	}
	return nil
}
