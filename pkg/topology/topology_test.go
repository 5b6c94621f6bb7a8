package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_SingleWorker(t *testing.T) {
	topo := Build(1)
	assert.Equal(t, -1, topo.ParentMap[0])
	assert.Equal(t, [2]int{0, 0}, topo.RingMap[0])
}

func TestBuild_RootHasNoParent(t *testing.T) {
	for _, n := range []int{2, 3, 5, 8, 16, 33} {
		topo := Build(n)
		require.Equal(t, -1, topo.ParentMap[0], "n=%d", n)
	}
}

func TestBuild_RingIsHamiltonianCycle(t *testing.T) {
	for _, n := range []int{2, 3, 4, 5, 7, 8, 9, 16, 17, 32, 50} {
		topo := Build(n)
		require.Len(t, topo.RingMap, n, "n=%d", n)

		// Walk the ring starting at 0 and verify it visits every rank
		// exactly once before returning to 0.
		visited := make(map[int]bool, n)
		cur := 0
		for i := 0; i < n; i++ {
			require.False(t, visited[cur], "n=%d: ring revisited rank %d at step %d", n, cur, i)
			visited[cur] = true
			cur = topo.RingMap[cur][1]
		}
		assert.Equal(t, 0, cur, "n=%d: ring did not return to start", n)
		assert.Len(t, visited, n, "n=%d", n)

		// prev/next must be mutually consistent.
		for r, pn := range topo.RingMap {
			prev, next := pn[0], pn[1]
			assert.Equal(t, r, topo.RingMap[next][0], "n=%d rank=%d", n, r)
			assert.Equal(t, r, topo.RingMap[prev][1], "n=%d rank=%d", n, r)
		}
	}
}

func TestBuild_TreeIsRootedAndConnected(t *testing.T) {
	for _, n := range []int{2, 3, 4, 5, 8, 15, 16, 31} {
		topo := Build(n)

		rootCount := 0
		for r := 0; r < n; r++ {
			if topo.ParentMap[r] == -1 {
				rootCount++
			}
		}
		require.Equal(t, 1, rootCount, "n=%d: expected exactly one root", n)

		// Every non-root rank's parent must be a neighbor in TreeMap.
		for r := 0; r < n; r++ {
			parent := topo.ParentMap[r]
			if parent == -1 {
				continue
			}
			assert.Contains(t, topo.TreeMap[r], parent, "n=%d rank=%d", n, r)
			assert.Contains(t, topo.TreeMap[parent], r, "n=%d rank=%d", n, r)
		}
	}
}

func TestBuild_Deterministic(t *testing.T) {
	for _, n := range []int{1, 2, 7, 24} {
		a := Build(n)
		b := Build(n)
		assert.Equal(t, a, b, "n=%d", n)
	}
}

func TestBuild_ZeroWorkers(t *testing.T) {
	topo := Build(0)
	assert.Empty(t, topo.TreeMap)
	assert.Empty(t, topo.ParentMap)
	assert.Empty(t, topo.RingMap)
}
