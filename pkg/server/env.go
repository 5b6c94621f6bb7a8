package server

import "strconv"

// Default values for the worker environment dictionary, spec.md §6.
const (
	DefaultHeartbeatIntervalMillis = 5000
	DefaultShmemSize               = 1024
	DefaultRDMABufSize             = 33554432
	DefaultBackend                 = "TCP"
)

// WorkerEnv is the environment dictionary a job launcher hands to each
// worker process, matching basic_tracker_config's return value.
type WorkerEnv struct {
	TrackerURI        string
	TrackerPort       int
	NumWorkers        int
	HeartbeatInterval int
	ShmemSize         int
	RDMABufSize       int
	Backend           string

	// Restart is set once a worker is joining a job that is already
	// running rather than starting it from scratch.
	Restart      bool
	PendingNodes int
}

// BuildEnv assembles the worker environment dictionary for a fresh job
// start. Use WithRestart to add the restart-only keys when a worker is
// joining an in-progress job.
func BuildEnv(hostIP string, port, numWorkers int) WorkerEnv {
	return WorkerEnv{
		TrackerURI:        hostIP,
		TrackerPort:       port,
		NumWorkers:        numWorkers,
		HeartbeatInterval: DefaultHeartbeatIntervalMillis,
		ShmemSize:         DefaultShmemSize,
		RDMABufSize:       DefaultRDMABufSize,
		Backend:           DefaultBackend,
	}
}

// WithRestart returns a copy of env with the restart-only keys set.
func (env WorkerEnv) WithRestart(pendingNodes int) WorkerEnv {
	env.Restart = true
	env.PendingNodes = pendingNodes
	return env
}

// ToMap renders the environment as the string-keyed, string-valued map
// a launcher passes through to a worker's process environment.
func (env WorkerEnv) ToMap() map[string]string {
	m := map[string]string{
		"RDC_TRACKER_URI":        env.TrackerURI,
		"RDC_TRACKER_PORT":       strconv.Itoa(env.TrackerPort),
		"RDC_NUM_WORKERS":        strconv.Itoa(env.NumWorkers),
		"RDC_HEARTBEAT_INTERVAL": strconv.Itoa(env.HeartbeatInterval),
		"RDC_SHMEM_SIZE":         strconv.Itoa(env.ShmemSize),
		"RDC_RDMA_BUFSIZE":       strconv.Itoa(env.RDMABufSize),
		"RDC_BACKEND":            env.Backend,
	}
	if env.Restart {
		m["RDC_RESTART"] = "1"
		m["RDC_PENDING_NODES"] = strconv.Itoa(env.PendingNodes)
	}
	return m
}
