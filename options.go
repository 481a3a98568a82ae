package zab

import (
	"math/rand"
	"time"
)

// Default tuning constants.
const (
	DefaultTimeout          = 5000 * time.Millisecond
	DefaultSyncMaxBatchSize = 1000
	defaultHeartbeatDivisor = 3
)

// Config is the external, enumerated configuration.
type Config struct {
	// ServerId uniquely identifies this replica within the ensemble.
	ServerId string
	// Peers lists every known server id/address pair at boot, this server
	// included; it seeds LastSeenConfig when the log directory has none on
	// disk yet.
	Peers []Peer
	// LogDir is the directory Persistence and Log own exclusively.
	LogDir string
	// Timeout drives heartbeat cadence (Timeout/3) and election/getMessage
	// deadlines.
	Timeout time.Duration
	// SyncMaxBatchSize bounds how many proposals SyncProposalProcessor
	// appends before forcing a log sync.
	SyncMaxBatchSize int
	// LogRetentionEntries bounds how many committed transactions the leader
	// keeps on disk before compacting older ones away. Zero disables
	// compaction: the log retains its full history from genesis.
	LogRetentionEntries int
	// LogLevel controls the verbosity of the zap logger.
	LogLevel LogLevel
}

// participantOptions holds the resolved, defaulted configuration plus the
// collaborators injected via Option.
type participantOptions struct {
	config           Config
	transport        Transport
	electionOracle   ElectionOracle
	stateMachine     StateMachine
	maxTimerOffset   float64
	heartbeatDivisor time.Duration
}

// Option customizes a Participant at construction time.
type Option func(*participantOptions)

func applyOptions(cfg Config, trans Transport, oracle ElectionOracle, sm StateMachine, opts ...Option) *participantOptions {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SyncMaxBatchSize <= 0 {
		cfg.SyncMaxBatchSize = DefaultSyncMaxBatchSize
	}
	o := &participantOptions{
		config:           cfg,
		transport:        trans,
		electionOracle:   oracle,
		stateMachine:     sm,
		maxTimerOffset:   0.2,
		heartbeatDivisor: defaultHeartbeatDivisor,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithMaxTimerRandomOffsetRatio widens the random jitter added to election
// and follower timers, spreading out peers whose timeouts would otherwise
// expire in lockstep.
func WithMaxTimerRandomOffsetRatio(ratio float64) Option {
	return func(o *participantOptions) { o.maxTimerOffset = ratio }
}

func (o *participantOptions) heartbeatInterval() time.Duration {
	return o.config.Timeout / o.heartbeatDivisor
}

// jitteredTimeout returns the configured Timeout widened by a random
// +/- maxTimerOffset fraction.
func (o *participantOptions) jitteredTimeout() time.Duration {
	if o.maxTimerOffset <= 0 {
		return o.config.Timeout
	}
	offset := (rand.Float64()*2 - 1) * o.maxTimerOffset
	return time.Duration(float64(o.config.Timeout) * (1 + offset))
}
