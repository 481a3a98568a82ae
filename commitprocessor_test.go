package zab

import (
	"sync"
	"testing"
	"time"
)

type recordingStateMachine struct {
	mu        sync.Mutex
	delivered []*Transaction
}

func (m *recordingStateMachine) Deliver(txn *Transaction) {
	m.mu.Lock()
	m.delivered = append(m.delivered, txn)
	m.mu.Unlock()
}
func (m *recordingStateMachine) Leading([]Peer)           {}
func (m *recordingStateMachine) Following(Peer)           {}
func (m *recordingStateMachine) ClusterChange([]Peer)     {}
func (m *recordingStateMachine) StateChanged(Phase)       {}
func (m *recordingStateMachine) Save() ([]byte, error)    { return nil, nil }
func (m *recordingStateMachine) Restore([]byte) error     { return nil }

func (m *recordingStateMachine) snapshot() []*Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Transaction(nil), m.delivered...)
}

func waitForDelivered(t *testing.T, cp *commitProcessor, want Zxid) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cp.LastDeliveredZxid() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("LastDeliveredZxid never reached %s, stuck at %s", want, cp.LastDeliveredZxid())
}

func TestCommitProcessorDeliversOnlyAfterCommit(t *testing.T) {
	sm := &recordingStateMachine{}
	cp := newCommitProcessor(participantLogger(LogLevelError), sm, ZxidNull)
	z := Zxid{Epoch: 1, Counter: 1}
	cp.Propose(&Transaction{Zxid: z, Body: []byte("x")})
	time.Sleep(10 * time.Millisecond)
	if len(sm.snapshot()) != 0 {
		t.Fatalf("proposal without a commit must not be delivered")
	}
	cp.Commit(z)
	waitForDelivered(t, cp, z)
	if got := sm.snapshot(); len(got) != 1 || got[0].Zxid != z {
		t.Fatalf("delivered = %v, want exactly [%s]", got, z)
	}
}

func TestCommitProcessorDeliversInZxidOrder(t *testing.T) {
	sm := &recordingStateMachine{}
	cp := newCommitProcessor(participantLogger(LogLevelError), sm, ZxidNull)
	zxids := []Zxid{{Epoch: 1, Counter: 1}, {Epoch: 1, Counter: 2}, {Epoch: 1, Counter: 3}}
	for _, z := range zxids {
		cp.Propose(&Transaction{Zxid: z, Body: []byte("x")})
	}
	cp.Commit(zxids[2])
	waitForDelivered(t, cp, zxids[2])

	got := sm.snapshot()
	if len(got) != len(zxids) {
		t.Fatalf("delivered %d transactions, want %d", len(got), len(zxids))
	}
	for i, z := range zxids {
		if got[i].Zxid != z {
			t.Fatalf("delivered[%d] = %s, want %s (order violated)", i, got[i].Zxid, z)
		}
	}
}

func TestCommitProcessorNoRedelivery(t *testing.T) {
	sm := &recordingStateMachine{}
	cp := newCommitProcessor(participantLogger(LogLevelError), sm, ZxidNull)
	z := Zxid{Epoch: 1, Counter: 1}
	cp.Propose(&Transaction{Zxid: z, Body: []byte("x")})
	cp.Commit(z)
	waitForDelivered(t, cp, z)
	cp.Commit(z) // stale/duplicate commit
	time.Sleep(10 * time.Millisecond)
	if got := sm.snapshot(); len(got) != 1 {
		t.Fatalf("zxid %s was redelivered: %v", z, got)
	}
}

func TestCommitProcessorShutdownPublishesLastDelivered(t *testing.T) {
	sm := &recordingStateMachine{}
	cp := newCommitProcessor(participantLogger(LogLevelError), sm, ZxidNull)
	z := Zxid{Epoch: 2, Counter: 7}
	cp.Propose(&Transaction{Zxid: z, Body: []byte("x")})
	cp.Commit(z)
	waitForDelivered(t, cp, z)
	final := cp.Shutdown()
	if final != z {
		t.Fatalf("Shutdown() returned %s, want %s", final, z)
	}
}
