// Package metrics provides Prometheus instrumentation and health/readiness
// endpoints for the tracker. Collectors are registered at package init and
// exposed via Handler(); a Collector periodically pulls a JobStats snapshot
// from the running server to keep gauges current between events.
package metrics
