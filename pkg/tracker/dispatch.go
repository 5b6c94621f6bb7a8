package tracker

import (
	"errors"
	"fmt"
	"io"

	"github.com/cuemby/rdctrack/pkg/events"
	"github.com/cuemby/rdctrack/pkg/log"
	"github.com/cuemby/rdctrack/pkg/metrics"
	"github.com/cuemby/rdctrack/pkg/wire"
	"github.com/rs/zerolog"
)

// connState is the per-connection state a handler accumulates across
// commands: worker-id is fixed at accept time, rank is filled in by
// the first start/restart.
type connState struct {
	workerID int
	rank     int // -1 until the first start/restart completes
}

// HandleConnection reads and dispatches commands from one worker
// connection until it disconnects or sends shutdown. It is a plain
// read-dispatch loop: the CMD/FIN two-state machine of the source
// tracker added nothing a direct loop doesn't already give, so there is
// a single terminal action ("close the connection") rather than a
// separate UNKNOWN state to track.
func HandleConnection(job *Job, conn *wire.Conn, workerID int) {
	defer conn.Close()

	state := &connState{workerID: workerID, rank: -1}
	defer func() {
		if r := recover(); r != nil {
			log.WithWorker(workerID, state.rank).Error().Interface("panic", r).Msg("connection handler panicked, closing connection")
		}
	}()
	watchdog := NewWatchdog(job, workerID)
	go watchdog.Run()
	defer watchdog.Stop()

	logger := log.WithWorker(workerID, -1)
	logger.Info().Str("remote_addr", conn.RemoteAddr()).Msg("worker connected")
	job.publish(events.EventWorkerConnected, "worker connected", map[string]string{"remote_addr": conn.RemoteAddr()})

	for {
		cmd, err := conn.ReadCommand()
		if err != nil {
			logDisconnect(logger, err)
			return
		}

		timer := metrics.NewTimer()
		metrics.CommandsTotal.WithLabelValues(cmd).Inc()

		cont, err := dispatch(job, conn, state, cmd)
		timer.ObserveDurationVec(metrics.CommandDuration, cmd)

		if err != nil {
			var fe *wire.FramingError
			if errors.As(err, &fe) {
				logger.Warn().Err(err).Str("cmd", cmd).Msg("framing fault, closing connection")
			} else {
				logDisconnect(logger, err)
			}
			return
		}
		if !cont {
			return
		}
	}
}

// logDisconnect distinguishes an ordinary EOF (worker closed its
// socket) from anything else worth a warning.
func logDisconnect(logger zerolog.Logger, err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		logger.Debug().Msg("worker disconnected")
		return
	}
	logger.Warn().Err(err).Msg("connection read failed")
}

// dispatch handles a single command. It returns cont == false when the
// connection should be closed (shutdown, or an unrecognized command:
// spec.md §4.C/§7 treat both as the single terminal action).
func dispatch(job *Job, conn *wire.Conn, state *connState, cmd string) (cont bool, err error) {
	switch cmd {
	case "start", "restart":
		return true, handleStart(job, conn, state, cmd == "restart")
	case "register":
		return true, handleRegister(job, conn, state)
	case "barrier":
		return true, handleBarrier(job, conn, state)
	case "exclude":
		return true, handleExclude(job, conn, state)
	case "unexclude":
		return true, handleUnexclude(job, conn, state)
	case "heartbeat":
		return true, handleHeartbeat(job, conn, state)
	case "print":
		return true, handlePrint(job, conn, state)
	case "checkpoint":
		return true, handleCheckpoint(job, conn, state)
	case "load_checkpoint":
		return true, handleLoadCheckpoint(job, conn, state)
	case "shutdown":
		return false, nil
	default:
		log.WithWorker(state.workerID, state.rank).Warn().Str("cmd", cmd).Msg("unknown command, closing connection")
		return false, nil
	}
}

func handleStart(job *Job, conn *wire.Conn, state *connState, restart bool) error {
	rank, err := conn.ReadInt()
	if err != nil {
		return err
	}

	nNewWorker := 0
	if restart {
		n, err := conn.ReadInt()
		if err != nil {
			return err
		}
		nNewWorker = int(n)
	}

	addr, err := conn.ReadString()
	if err != nil {
		return err
	}

	reply := job.HandleStart(state.workerID, int(rank), addr, nNewWorker)
	state.rank = reply.Rank
	return WriteStartReply(conn, reply)
}

func handleRegister(job *Job, conn *wire.Conn, state *connState) error {
	name, err := conn.ReadString()
	if err != nil {
		return err
	}
	job.Register(name, state.rank)
	return nil
}

func handleBarrier(job *Job, conn *wire.Conn, state *connState) error {
	name, err := conn.ReadString()
	if err != nil {
		return err
	}
	job.Barrier(name)
	job.publish(events.EventBarrierDone, "barrier released", map[string]string{"name": name})
	return conn.WriteReply("barrier_done")
}

func handleExclude(job *Job, conn *wire.Conn, state *connState) error {
	name, err := conn.ReadString()
	if err != nil {
		return err
	}
	return conn.WriteReply(job.Exclude(name))
}

func handleUnexclude(job *Job, conn *wire.Conn, state *connState) error {
	name, err := conn.ReadString()
	if err != nil {
		return err
	}
	return conn.WriteReply(job.Unexclude(name))
}

func handleHeartbeat(job *Job, conn *wire.Conn, state *connState) error {
	deadRanks, pendingNodes := job.Heartbeat(state.workerID)

	if err := conn.WriteReply("heartbeat_done"); err != nil {
		return err
	}
	if err := conn.WriteInt(int32(len(deadRanks))); err != nil {
		return err
	}
	for _, d := range deadRanks {
		if err := conn.WriteInt(int32(d)); err != nil {
			return err
		}
	}
	return conn.WriteInt(int32(pendingNodes))
}

func handlePrint(job *Job, conn *wire.Conn, state *connState) error {
	msg, err := conn.ReadString()
	if err != nil {
		return err
	}
	logger := log.WithWorker(state.workerID, state.rank)
	if state.rank != -1 {
		logger.Info().Msgf("rank %d: %s", state.rank, msg)
	} else {
		logger.Info().Msg(msg)
	}
	return nil
}

func handleCheckpoint(job *Job, conn *wire.Conn, state *connState) error {
	blob, err := conn.ReadBytes()
	if err != nil {
		return err
	}
	job.Checkpoint(state.rank, blob)
	job.publish(events.EventCheckpointSaved, "checkpoint saved", map[string]string{"rank": fmt.Sprintf("%d", state.rank)})
	return nil
}

func handleLoadCheckpoint(job *Job, conn *wire.Conn, state *connState) error {
	blob, ok := job.LoadCheckpoint(state.rank)
	if !ok {
		log.WithWorker(state.workerID, state.rank).Warn().Msg("load_checkpoint requested but no checkpoint was ever saved for this rank")
		return nil
	}
	return conn.WriteBytes(blob)
}
