package zab

import (
	"sync"
	"testing"
	"time"
)

func newTestAckProcessor(t *testing.T, quorum int) (*ackProcessor, func() []Zxid) {
	t.Helper()
	var mu sync.Mutex
	var committed []Zxid
	ap := newAckProcessor(participantLogger(LogLevelError), func() int { return quorum }, func(z Zxid) {
		mu.Lock()
		committed = append(committed, z)
		mu.Unlock()
	})
	return ap, func() []Zxid {
		mu.Lock()
		defer mu.Unlock()
		return append([]Zxid(nil), committed...)
	}
}

func TestAckProcessorCommitsAtQuorum(t *testing.T) {
	ap, committed := newTestAckProcessor(t, 2)
	z := Zxid{Epoch: 1, Counter: 1}
	ap.Propose(z)
	ap.Ack("a", z)
	if len(committed()) != 0 {
		t.Fatalf("expected no commit below quorum, got %v", committed())
	}
	ap.Ack("b", z)
	got := committed()
	if len(got) != 1 || got[0] != z {
		t.Fatalf("committed = %v, want [%s]", got, z)
	}
}

func TestAckProcessorDuplicateAckFromSamePeerDoesNotDoubleCount(t *testing.T) {
	ap, committed := newTestAckProcessor(t, 2)
	z := Zxid{Epoch: 1, Counter: 1}
	ap.Propose(z)
	ap.Ack("a", z)
	ap.Ack("a", z)
	if len(committed()) != 0 {
		t.Fatalf("duplicate acks from the same peer should not reach quorum: %v", committed())
	}
}

func TestAckProcessorCommitsInZxidOrderDespiteOutOfOrderAcks(t *testing.T) {
	ap, committed := newTestAckProcessor(t, 2)
	z1 := Zxid{Epoch: 1, Counter: 1}
	z2 := Zxid{Epoch: 1, Counter: 2}
	z3 := Zxid{Epoch: 1, Counter: 3}
	ap.Propose(z1)
	ap.Propose(z2)
	ap.Propose(z3)

	// z3 reaches quorum first, but must not commit until z1 and z2 have.
	ap.Ack("a", z3)
	ap.Ack("b", z3)
	if len(committed()) != 0 {
		t.Fatalf("z3 must wait for z1, z2 to commit first, got %v", committed())
	}

	ap.Ack("a", z1)
	ap.Ack("b", z1)
	ap.Ack("a", z2)
	ap.Ack("b", z2)

	got := committed()
	want := []Zxid{z1, z2, z3}
	if len(got) != len(want) {
		t.Fatalf("committed = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("committed = %v, want %v", got, want)
		}
	}
}

func TestAckProcessorClosedIgnoresFurtherActivity(t *testing.T) {
	ap, committed := newTestAckProcessor(t, 1)
	z := Zxid{Epoch: 1, Counter: 1}
	ap.Propose(z)
	ap.Close()
	ap.Ack("a", z)
	time.Sleep(time.Millisecond)
	if len(committed()) != 0 {
		t.Fatalf("a closed ackProcessor must not emit commits, got %v", committed())
	}
}
