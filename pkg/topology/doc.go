// Package topology builds the tree, parent, and ring connection maps
// used to place workers for collective communication: a binary-heap
// tree for broadcast/reduce, relabeled so that ring-adjacent ranks sit
// at nearby tree positions, letting ring-allreduce and tree-broadcast
// share connections.
package topology
