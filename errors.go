package zab

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the phase machine and its processors.
var (
	// ErrTimeout is raised by getMessage when no message arrives before
	// config.Timeout elapses.
	ErrTimeout = errors.New("zab: timed out waiting for a message")

	// ErrBackToElection unwinds the phase machine to ELECTING. It is raised
	// by a GO_BACK sentinel, a disconnect from the peer-of-interest, or a
	// recovered ProtocolViolation/Timeout.
	ErrBackToElection = errors.New("zab: returning to election")

	// ErrLeftCluster is fatal to the participant task (not the process).
	ErrLeftCluster = errors.New("zab: left the cluster")

	// ErrJoinFailure is returned by the ELECTING step when no cluster
	// configuration has been recorded on disk; Serve logs it and starts
	// another election round.
	ErrJoinFailure = errors.New("zab: failed to join the ensemble")

	// ErrPersistenceCorruption is fatal to the process.
	ErrPersistenceCorruption = errors.New("zab: on-disk state is corrupt")

	// ErrCancelled unwinds cleanly in response to an operator cancel.
	ErrCancelled = errors.New("zab: cancelled")

	// ErrNonLeader is returned when a client request arrives at a
	// participant that is not currently LEADING.
	ErrNonLeader = errors.New("zab: not the leader")

	// ErrShuttingDown is returned by Send once teardown has begun.
	ErrShuttingDown = errors.New("zab: participant is shutting down")
)

// ProtocolViolationError carries the detail behind a protocol violation:
// a message arrived that could not have been produced by a correct peer
// given the participant's current phase/epoch. It unwraps to
// ErrBackToElection.
type ProtocolViolationError struct {
	Phase  Phase
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("zab: protocol violation in %s: %s", e.Phase, e.Reason)
}

func (e *ProtocolViolationError) Unwrap() error { return ErrBackToElection }

// CorruptionError wraps the underlying I/O or decode error that made
// Persistence declare the log directory corrupt.
type CorruptionError struct {
	Path string
	Err  error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("zab: persistence corruption at %s: %v", e.Path, e.Err)
}

// Unwrap exposes both the fatal sentinel (so errors.Is(err,
// ErrPersistenceCorruption) matches) and the underlying I/O error (so
// callers can still inspect it, e.g. with errors.Is against os.ErrNotExist).
func (e *CorruptionError) Unwrap() []error { return []error{ErrPersistenceCorruption, e.Err} }

func protocolViolation(phase Phase, format string, args ...any) error {
	return &ProtocolViolationError{Phase: phase, Reason: fmt.Sprintf(format, args...)}
}
