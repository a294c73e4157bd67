package orchestrator

import (
	"errors"
	"os"
	"syscall"
	"time"

	"coordplane/internal/fsjson"
	"coordplane/internal/logger"
)

// Status describes whether an external orchestrator process appears to be
// alive: lease held, recorded PID responding to a signal probe, and how
// stale its last heartbeat is.
type Status struct {
	LockHeld     bool          `json:"lock_held"`
	PID          int           `json:"pid"`
	PIDAlive     bool          `json:"pid_alive"`
	HeartbeatAt  time.Time     `json:"heartbeat_at"`
	HeartbeatAge time.Duration `json:"heartbeat_age"`
}

// orchState is the orchestrator's self-recorded identity file.
type orchState struct {
	SchemaVersion int       `json:"schema_version"`
	PID           int       `json:"pid"`
	StartedAt     time.Time `json:"started_at"`
}

// heartbeat is the orchestrator's periodic liveness record.
type heartbeat struct {
	SchemaVersion int       `json:"schema_version"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Status probes the external orchestrator. Probe failures degrade to
// "unknown" fields with a warning; they never fail the query.
func (c *Channel) Status() Status {
	var st Status

	held, err := fsjson.ProbeLock(c.cfg.OrchLeasePath())
	if err != nil {
		logger.Soft(c.log, "probe orchestrator lease", err)
	} else {
		st.LockHeld = held
	}

	var state orchState
	if err := fsjson.Read(c.cfg.OrchStatePath(), &state); err != nil {
		if !fsjson.IsAbsent(err) {
			logger.Soft(c.log, "read orchestrator state", err)
		}
	} else {
		st.PID = state.PID
		st.PIDAlive = pidAlive(state.PID)
	}

	var hb heartbeat
	if err := fsjson.Read(c.cfg.OrchHeartbeatPath(), &hb); err == nil {
		st.HeartbeatAt = hb.UpdatedAt
	} else if fsjson.IsAbsent(err) {
		// Fall back to the file's mtime when the record is unreadable.
		if info, statErr := os.Stat(c.cfg.OrchHeartbeatPath()); statErr == nil {
			st.HeartbeatAt = info.ModTime()
		}
	} else {
		logger.Soft(c.log, "read orchestrator heartbeat", err)
	}
	if !st.HeartbeatAt.IsZero() {
		st.HeartbeatAge = c.now().Sub(st.HeartbeatAt)
	}

	return st
}

// RecordHeartbeat is called by the orchestrator process itself.
func (c *Channel) RecordHeartbeat() error {
	return fsjson.WriteAtomic(c.cfg.OrchHeartbeatPath(), heartbeat{
		SchemaVersion: SchemaVersion,
		UpdatedAt:     c.now().UTC(),
	})
}

// RecordState writes the orchestrator's identity file with the given pid.
func (c *Channel) RecordState(pid int) error {
	return fsjson.WriteAtomic(c.cfg.OrchStatePath(), orchState{
		SchemaVersion: SchemaVersion,
		PID:           pid,
		StartedAt:     c.now().UTC(),
	})
}

// pidAlive signal-probes a pid. A permission error means the process
// exists but belongs to someone else, which still counts as alive.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM) || errors.Is(err, os.ErrPermission)
}
