package tracker

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleStart_AssignsDistinctRanksAndWorldSize(t *testing.T) {
	const n = 4
	job := NewJob(n)

	var wg sync.WaitGroup
	replies := make([]StartReply, n)
	for workerID := 0; workerID < n; workerID++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			addr := "10.0.0.1:700" + string(rune('0'+workerID))
			replies[workerID] = job.HandleStart(workerID, -1, addr, 0)
		}(workerID)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for _, r := range replies {
		require.Equal(t, n, r.NWorld)
		assert.GreaterOrEqual(t, r.Rank, 0)
		assert.Less(t, r.Rank, n)
		assert.False(t, seen[r.Rank], "rank %d assigned twice", r.Rank)
		seen[r.Rank] = true
		assert.Equal(t, r.NumConn, len(r.ConnectTo))
		assert.Equal(t, r.NumAccept, len(r.AcceptFrom))
		assert.Equal(t, r.NumConn+r.NumAccept, n-1)
	}
	assert.Len(t, seen, n)
}

func TestHandleStart_RequestedRankHonored(t *testing.T) {
	const n = 2
	job := NewJob(n)

	var wg sync.WaitGroup
	replies := make([]StartReply, n)
	wg.Add(2)
	go func() {
		defer wg.Done()
		replies[0] = job.HandleStart(0, 1, "host-a:7000", 0)
	}()
	go func() {
		defer wg.Done()
		replies[1] = job.HandleStart(1, 0, "host-b:7000", 0)
	}()
	wg.Wait()

	assert.Equal(t, 1, replies[0].Rank)
	assert.Equal(t, 0, replies[1].Rank)
}

func TestHandleStart_ConnectAcceptPartitionIsAscending(t *testing.T) {
	const n = 3
	job := NewJob(n)

	var wg sync.WaitGroup
	replies := make([]StartReply, n)
	for workerID := 0; workerID < n; workerID++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			replies[workerID] = job.HandleStart(workerID, workerID, "hostN:700", 0)
		}(workerID)
	}
	wg.Wait()

	for _, r := range replies {
		ranks := make([]int, len(r.ConnectTo))
		for i, ca := range r.ConnectTo {
			ranks[i] = ca.Rank
		}
		assert.True(t, sort.IntsAreSorted(ranks))
		assert.True(t, sort.IntsAreSorted(r.AcceptFrom))
		for _, ca := range r.ConnectTo {
			assert.Less(t, ca.Rank, r.Rank)
		}
		for _, rk := range r.AcceptFrom {
			assert.Greater(t, rk, r.Rank)
		}
	}
}

func TestRegisterAndBarrier_ReleasesAllParticipants(t *testing.T) {
	const n = 3
	job := NewJob(n)

	for rank := 0; rank < n; rank++ {
		job.Register("phase1", rank)
	}

	var wg sync.WaitGroup
	done := make(chan int, n)
	for rank := 0; rank < n; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			job.Barrier("phase1")
			done <- rank
		}(rank)
	}
	wg.Wait()
	close(done)

	count := 0
	for range done {
		count++
	}
	assert.Equal(t, n, count)
}

func TestHandleStart_ElasticRestartGrowsWorldAndClearsPending(t *testing.T) {
	const initial = 2
	job := NewJob(initial)

	// Bring the initial two workers up under the original world size.
	var wg sync.WaitGroup
	wg.Add(initial)
	for workerID := 0; workerID < initial; workerID++ {
		go func(workerID int) {
			defer wg.Done()
			job.HandleStart(workerID, workerID, "10.0.0.1:700"+string(rune('0'+workerID)), 0)
		}(workerID)
	}
	wg.Wait()
	require.Equal(t, initial, job.NWorker())

	// A third worker joins via restart with n_new_worker=1: the bump is
	// unblocked immediately since it is the only restart-joiner, but its
	// own rendezvous still waits for all three "start" callers.
	joinerDone := make(chan StartReply, 1)
	go func() {
		joinerDone <- job.HandleStart(initial, -1, "10.0.0.3:7002", 1)
	}()

	require.Eventually(t, func() bool { return job.NWorker() == initial+1 }, time.Second, time.Millisecond)

	job.nodeMu.Lock()
	pendingAfterBump := job.pendingNodes
	job.nodeMu.Unlock()
	assert.Equal(t, 1, pendingAfterBump)

	// The two existing workers re-issue start against the grown world.
	existingDone := make(chan StartReply, initial)
	for workerID := 0; workerID < initial; workerID++ {
		go func(workerID int) {
			existingDone <- job.HandleStart(workerID, workerID, "10.0.0.1:700"+string(rune('0'+workerID)), 0)
		}(workerID)
	}

	seen := make(map[int]bool, initial+1)
	joiner := <-joinerDone
	seen[joiner.Rank] = true
	for i := 0; i < initial; i++ {
		r := <-existingDone
		seen[r.Rank] = true
		assert.Equal(t, initial+1, r.NWorld)
	}
	assert.Equal(t, initial+1, joiner.NWorld)
	assert.Len(t, seen, initial+1)

	job.nodeMu.Lock()
	pendingAfterRendezvous := job.pendingNodes
	job.nodeMu.Unlock()
	assert.Equal(t, 0, pendingAfterRendezvous)
}

func TestBarrier_IndependentAcrossEpochs(t *testing.T) {
	const n = 2
	job := NewJob(n)

	for epoch := 0; epoch < 3; epoch++ {
		var wg sync.WaitGroup
		for rank := 0; rank < n; rank++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				job.Barrier("loop")
			}()
		}
		wg.Wait()
	}

	job.barrierCtrMu.Lock()
	ctr := job.nameToBarrierCtr["loop"]
	job.barrierCtrMu.Unlock()
	assert.Equal(t, 0, ctr)
}
