package zab

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"

	"github.com/ugorji/go/codec"
)

const (
	proposedEpochFile = "ProposedEpoch"
	ackEpochFile      = "AckEpoch"
	clusterConfigFile = "ClusterConfig"
)

// Persistence wraps the Log and the two epoch counters that together make
// up a replica's durable state. It owns the log directory exclusively (the
// participant owns Persistence exclusively in turn) and serializes every
// writer behind one mutex.
type Persistence struct {
	mu            sync.Mutex
	dir           string
	log           Log
	proposedEpoch uint32
	ackEpoch      uint32
	config        ClusterConfig
	hasConfig     bool
}

// OpenPersistence opens (or initializes) the persisted state rooted at dir.
// Cold start (no files present) yields epoch (0,0) and no cluster config.
func OpenPersistence(dir string) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	log, err := newFileLog(dir)
	if err != nil {
		return nil, err
	}
	p := &Persistence{dir: dir, log: log}
	if v, ok, err := readEpochFile(filepath.Join(dir, proposedEpochFile)); err != nil {
		return nil, &CorruptionError{Path: dir, Err: err}
	} else if ok {
		p.proposedEpoch = v
	}
	if v, ok, err := readEpochFile(filepath.Join(dir, ackEpochFile)); err != nil {
		return nil, &CorruptionError{Path: dir, Err: err}
	} else if ok {
		p.ackEpoch = v
	}
	if cfg, ok, err := readClusterConfig(filepath.Join(dir, clusterConfigFile)); err != nil {
		return nil, &CorruptionError{Path: dir, Err: err}
	} else if ok {
		p.config, p.hasConfig = cfg, true
	}
	if p.ackEpoch > p.proposedEpoch {
		return nil, &CorruptionError{Path: dir, Err: errAckAboveProposed}
	}
	return p, nil
}

var errAckAboveProposed = &persistenceInvariantError{"ackEpoch exceeds proposedEpoch on disk"}

type persistenceInvariantError struct{ msg string }

func (e *persistenceInvariantError) Error() string { return e.msg }

// Log exposes the Persistence-owned Log to the participant and its
// processors.
func (p *Persistence) Log() Log { return p.log }

func (p *Persistence) ProposedEpoch() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proposedEpoch
}

func (p *Persistence) AckEpoch() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ackEpoch
}

// SetProposedEpoch persists e as f.p. Epochs are monotonically
// non-decreasing; callers are expected to have already checked e >= current
// before calling, but SetProposedEpoch enforces it regardless.
func (p *Persistence) SetProposedEpoch(e uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e < p.proposedEpoch {
		return protocolViolation(PhaseDiscovering, "proposedEpoch would decrease from %d to %d", p.proposedEpoch, e)
	}
	if err := writeEpochFile(p.dir, proposedEpochFile, e); err != nil {
		return &CorruptionError{Path: p.dir, Err: err}
	}
	p.proposedEpoch = e
	return nil
}

// SetAckEpoch persists e as f.a. Invariant: ackEpoch <= proposedEpoch.
func (p *Persistence) SetAckEpoch(e uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e < p.ackEpoch {
		return protocolViolation(PhaseSynchronizing, "ackEpoch would decrease from %d to %d", p.ackEpoch, e)
	}
	if e > p.proposedEpoch {
		return protocolViolation(PhaseSynchronizing, "ackEpoch %d would exceed proposedEpoch %d", e, p.proposedEpoch)
	}
	if err := writeEpochFile(p.dir, ackEpochFile, e); err != nil {
		return &CorruptionError{Path: p.dir, Err: err}
	}
	p.ackEpoch = e
	return nil
}

// GetLastSeenConfig returns the most recently observed membership and
// whether one has ever been recorded (an absent config means the replica
// has never joined a cluster).
func (p *Persistence) GetLastSeenConfig() (ClusterConfig, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config, p.hasConfig
}

// SetLastSeenConfig durably records a new membership view.
func (p *Persistence) SetLastSeenConfig(c ClusterConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := writeClusterConfig(p.dir, c); err != nil {
		return &CorruptionError{Path: p.dir, Err: err}
	}
	p.config, p.hasConfig = c, true
	return nil
}

func (p *Persistence) Close() error {
	return p.log.Close()
}

func readEpochFile(path string) (uint32, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(data) != 4 {
		return 0, false, os.ErrInvalid
	}
	return binary.BigEndian.Uint32(data), true, nil
}

// writeEpochFile performs the write-tmp + rename + directory fsync sequence
// needed so a crash mid-write never leaves a torn or missing epoch file.
func writeEpochFile(dir, name string, value uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, value)
	return atomicWriteFile(dir, name, buf)
}

func atomicWriteFile(dir, name string, data []byte) error {
	final := filepath.Join(dir, name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	f, err := os.OpenFile(tmp, os.O_RDWR, 0o644)
	if err == nil {
		f.Sync()
		f.Close()
	}
	if err := os.Rename(tmp, final); err != nil {
		return err
	}
	return fsyncDir(dir)
}

var msgpackHandle codec.MsgpackHandle

type clusterConfigOnWire struct {
	VersionEpoch   uint32
	VersionCounter uint64
	Peers          []Peer
}

func writeClusterConfig(dir string, c ClusterConfig) error {
	wire := clusterConfigOnWire{VersionEpoch: c.Version.Epoch, VersionCounter: c.Version.Counter, Peers: c.Peers}
	var buf []byte
	if err := codec.NewEncoderBytes(&buf, &msgpackHandle).Encode(wire); err != nil {
		return err
	}
	return atomicWriteFile(dir, clusterConfigFile, buf)
}

func readClusterConfig(path string) (ClusterConfig, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ClusterConfig{}, false, nil
	}
	if err != nil {
		return ClusterConfig{}, false, err
	}
	var wire clusterConfigOnWire
	if err := codec.NewDecoderBytes(data, &msgpackHandle).Decode(&wire); err != nil {
		return ClusterConfig{}, false, err
	}
	return ClusterConfig{Version: Zxid{Epoch: wire.VersionEpoch, Counter: wire.VersionCounter}, Peers: wire.Peers}, true, nil
}
