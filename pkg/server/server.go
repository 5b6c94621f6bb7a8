package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuemby/rdctrack/pkg/events"
	"github.com/cuemby/rdctrack/pkg/log"
	"github.com/cuemby/rdctrack/pkg/metrics"
	"github.com/cuemby/rdctrack/pkg/tracker"
	"github.com/cuemby/rdctrack/pkg/wire"
)

// Config controls one tracker run.
type Config struct {
	// ListenAddr is the TCP address the tracker binds, e.g. ":9091".
	ListenAddr string
	// MetricsAddr, if non-empty, starts a debug HTTP listener exposing
	// /metrics. Leave empty to disable the endpoint entirely.
	MetricsAddr string
	// NWorker is the job's initial world size.
	NWorker int
}

// Server owns the TCP listener and the single Job it coordinates for
// the lifetime of one run. A tracker process hosts exactly one job at a
// time, matching the source tracker's single-job-per-process model.
type Server struct {
	cfg    Config
	job    *tracker.Job
	broker *events.Broker

	nextWorkerID int64
}

// New creates a server for cfg, wiring a fresh Job and event broker.
func New(cfg Config) *Server {
	job := tracker.NewJob(cfg.NWorker)
	broker := events.NewBroker()
	job.SetBroker(broker)

	return &Server{
		cfg:    cfg,
		job:    job,
		broker: broker,
	}
}

// Job returns the server's running job, for callers that need to read
// its state directly (e.g. CLI status reporting).
func (s *Server) Job() *tracker.Job {
	return s.job
}

// ListenAndServe binds the TCP listener, optionally starts the debug
// HTTP metrics endpoint, and accepts worker connections until ctx is
// cancelled. Each connection is handled on its own goroutine so one
// slow or stuck worker never blocks rendezvous progress for another
// (spec.md §5, §4.F).
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.broker.Start()
	defer s.broker.Stop()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	defer ln.Close()

	log.WithJob(s.job.ID).Info().Str("addr", ln.Addr().String()).Int("nworker", s.cfg.NWorker).Msg("tracker listening")

	collector := metrics.NewCollector(s.statsProvider)
	collector.Start()
	defer collector.Stop()

	metrics.RegisterComponent("listener", true, "bound")
	metrics.RegisterComponent("dispatcher", true, "accepting connections")

	var metricsSrv *http.Server
	if s.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		mux.HandleFunc("/events", s.eventsHandler)
		metricsSrv = &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithComponent("server").Warn().Err(err).Msg("metrics listener stopped")
			}
		}()
		defer metricsSrv.Close()
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		workerID := int(atomic.AddInt64(&s.nextWorkerID, 1) - 1)
		go tracker.HandleConnection(s.job, wire.NewConn(conn), workerID)
	}
}

// eventsHandler streams job lifecycle events (worker connects, rendezvous
// completion, restarts, dead-worker detection, checkpoints) as
// server-sent events, for operators watching a run without polling
// /metrics. Never consumed by the worker-facing wire protocol.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, ev.Message)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// statsProvider snapshots the running job for metrics.Collector.
func (s *Server) statsProvider() metrics.JobStats {
	return metrics.JobStats{
		WorkersConnected: s.job.WorkersConnected(),
		WorkersDead:      s.job.DeadCount(),
		ExcludeHeld:      s.job.ExcludeSnapshot(),
	}
}
