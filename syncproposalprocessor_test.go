package zab

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSyncProposalProcessorAppendsAndAcksLastOfBatch(t *testing.T) {
	l := mustOpenLog(t)
	var mu sync.Mutex
	var acked []Zxid
	spp := newSyncProposalProcessor(participantLogger(LogLevelError), l, 10, func(z Zxid) {
		mu.Lock()
		acked = append(acked, z)
		mu.Unlock()
	})

	ctx := context.Background()
	zxids := []Zxid{{Epoch: 1, Counter: 1}, {Epoch: 1, Counter: 2}, {Epoch: 1, Counter: 3}}
	for _, z := range zxids {
		spp.Propose(ctx, &Transaction{Zxid: z, Body: []byte("x")})
	}
	spp.Shutdown()

	for _, z := range zxids {
		if l.Entry(z) == nil {
			t.Fatalf("entry %s was not appended to the log", z)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(acked) == 0 {
		t.Fatalf("expected at least one ack")
	}
	if last := acked[len(acked)-1]; last != zxids[len(zxids)-1] {
		t.Fatalf("final ack = %s, want %s (the last proposed zxid)", last, zxids[len(zxids)-1])
	}
}

func TestSyncProposalProcessorNeverReordersAcks(t *testing.T) {
	l := mustOpenLog(t)
	var mu sync.Mutex
	var acked []Zxid
	spp := newSyncProposalProcessor(participantLogger(LogLevelError), l, 1, func(z Zxid) {
		mu.Lock()
		acked = append(acked, z)
		mu.Unlock()
	})

	ctx := context.Background()
	for i := uint64(1); i <= 5; i++ {
		spp.Propose(ctx, &Transaction{Zxid: Zxid{Epoch: 1, Counter: i}, Body: []byte("x")})
	}
	spp.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	var prev Zxid
	for i, z := range acked {
		if i > 0 && !z.Greater(prev) {
			t.Fatalf("acks out of order at index %d: %v", i, acked)
		}
		prev = z
	}
}

func TestSyncProposalProcessorShutdownFlushesPending(t *testing.T) {
	l := mustOpenLog(t)
	done := make(chan struct{})
	spp := newSyncProposalProcessor(participantLogger(LogLevelError), l, 1000, func(Zxid) {
		close(done)
	})
	spp.Propose(context.Background(), &Transaction{Zxid: Zxid{Epoch: 1, Counter: 1}, Body: []byte("x")})
	spp.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Shutdown did not flush the pending batch before returning")
	}
	if l.Entry(Zxid{Epoch: 1, Counter: 1}) == nil {
		t.Fatalf("pending proposal was not appended by shutdown flush")
	}
}
