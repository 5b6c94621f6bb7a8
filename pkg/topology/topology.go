package topology

// Topology holds the three rank->neighbor maps produced by Build.
type Topology struct {
	// TreeMap gives each rank's tree neighbors: parent (if any) followed
	// by children. Children keep their pre-relabel heap order, so after
	// relabeling they are not necessarily in ascending rank order.
	TreeMap map[int][]int
	// ParentMap gives each rank's parent, or -1 for the root.
	ParentMap map[int]int
	// RingMap gives each rank's (prev, next) neighbors on the ring.
	RingMap map[int][2]int
}

// Build constructs the tree/parent/ring maps for n workers: a
// binary-heap tree, a DFS share-ring over it, then a relabeling that
// walks the ring from rank 0 and reassigns ranks in ring order so that
// ring-adjacent ranks land at nearby tree positions.
func Build(n int) Topology {
	if n <= 0 {
		return Topology{TreeMap: map[int][]int{}, ParentMap: map[int]int{}, RingMap: map[int][2]int{}}
	}

	treeMap, parentMap := buildTree(n)
	ringMap := buildRing(treeMap, parentMap, n)
	return relabel(treeMap, parentMap, ringMap, n)
}

func buildTree(n int) (map[int][]int, map[int]int) {
	treeMap := make(map[int][]int, n)
	parentMap := make(map[int]int, n)

	for r := 0; r < n; r++ {
		var neighbors []int
		parent := (r+1)/2 - 1
		if parent >= 0 {
			neighbors = append(neighbors, parent)
		}
		if left := 2*r + 1; left < n {
			neighbors = append(neighbors, left)
		}
		if right := 2*r + 2; right < n {
			neighbors = append(neighbors, right)
		}
		treeMap[r] = neighbors
		parentMap[r] = parent
	}
	return treeMap, parentMap
}

// findShareRing returns a DFS ordering of the subtree rooted at r,
// visiting non-parent children in ascending order and reversing the
// last child's sublist so that the traversal folds back into a ring
// that shares edges with the tree.
func findShareRing(treeMap map[int][]int, parentMap map[int]int, r int) []int {
	var children []int
	parent := parentMap[r]
	for _, v := range treeMap[r] {
		if v != parent {
			children = append(children, v)
		}
	}
	if len(children) == 0 {
		return []int{r}
	}

	result := []int{r}
	for i, v := range children {
		sub := findShareRing(treeMap, parentMap, v)
		if i == len(children)-1 {
			reverseInPlace(sub)
		}
		result = append(result, sub...)
	}
	return result
}

func reverseInPlace(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func buildRing(treeMap map[int][]int, parentMap map[int]int, n int) map[int][2]int {
	order := findShareRing(treeMap, parentMap, 0)

	ringMap := make(map[int][2]int, n)
	for i := 0; i < n; i++ {
		prev := order[(i-1+n)%n]
		next := order[(i+1)%n]
		ringMap[order[i]] = [2]int{prev, next}
	}
	return ringMap
}

// relabel walks the ring starting at rank 0 and assigns new ranks
// 0..n-1 in ring-traversal order, rewriting all three maps under the
// new labels.
func relabel(treeMap map[int][]int, parentMap map[int]int, ringMap map[int][2]int, n int) Topology {
	newRank := map[int]int{0: 0}
	k := 0
	for i := 0; i < n-1; i++ {
		k = ringMap[k][1]
		newRank[k] = i + 1
	}

	newRing := make(map[int][2]int, n)
	for oldRank, neighbors := range ringMap {
		newRing[newRank[oldRank]] = [2]int{newRank[neighbors[0]], newRank[neighbors[1]]}
	}

	newTree := make(map[int][]int, n)
	for oldRank, neighbors := range treeMap {
		relabeled := make([]int, len(neighbors))
		for i, v := range neighbors {
			relabeled[i] = newRank[v]
		}
		newTree[newRank[oldRank]] = relabeled
	}

	newParent := make(map[int]int, n)
	for oldRank, parent := range parentMap {
		r := newRank[oldRank]
		if oldRank == 0 {
			newParent[r] = -1
			continue
		}
		newParent[r] = newRank[parent]
	}

	return Topology{TreeMap: newTree, ParentMap: newParent, RingMap: newRing}
}
