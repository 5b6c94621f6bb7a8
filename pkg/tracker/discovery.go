package tracker

import "sort"

// partitionAddrs splits the complete rank->address table around rank
// into the ascending-order connect/accept partition of spec.md 4.E.1
// step 5: ranks below self actively dial out, ranks above self are
// expected to accept, which avoids a simultaneous-open storm during
// full-mesh bring-up.
func partitionAddrs(addrs map[int]string, rank int) (connectTo []rankAddr, acceptFrom []int) {
	for r, a := range addrs {
		switch {
		case r < rank:
			connectTo = append(connectTo, rankAddr{Addr: a, Rank: r})
		case r > rank:
			acceptFrom = append(acceptFrom, r)
		}
	}
	sort.Slice(connectTo, func(i, k int) bool { return connectTo[i].Rank < connectTo[k].Rank })
	sort.Ints(acceptFrom)
	return connectTo, acceptFrom
}

// PeersAtAddr returns the ranks (ascending) registered at addr, i.e. all
// workers colocated on that host/port endpoint, the caller's own rank
// included.
func (j *Job) PeersAtAddr(addr string) []int {
	j.rankMu.Lock()
	defer j.rankMu.Unlock()

	peers := append([]int(nil), j.addrToRanks[addr]...)
	sort.Ints(peers)
	return peers
}
