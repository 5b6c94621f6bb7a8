// Package server binds the tracker's TCP listener, resolves the host
// IP and port the worker launcher will be told to use, assigns
// monotonic worker-ids to accepted connections, and exposes the debug
// HTTP endpoint for Prometheus scraping.
package server
