// Package tracker implements the rendezvous control plane for a single
// collective-communication job: rank assignment, named barriers, a
// distributed mutex over named groups, heartbeat-based failure
// detection, and an in-memory checkpoint store. A Job is created once
// per run and shared by every connection handler for that run; state
// mutation always happens under the lock that scopes it (see job.go),
// never across a socket read or write.
package tracker
