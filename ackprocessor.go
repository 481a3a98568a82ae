package zab

import (
	"sync"

	"go.uber.org/zap"
)

// ackProcessor is the leader-side quorum tracker: it tracks a per-zxid count
// of acking followers against the quorum size derived from LastSeenConfig,
// and emits COMMIT once a zxid reaches quorum. ACKs are applied in order of
// arrival, but commits are only ever emitted in increasing zxid order — an
// ack that reaches quorum out of turn is buffered until its predecessors
// have committed.
type ackProcessor struct {
	noCopy

	logger  *zap.SugaredLogger
	quorum  func() int
	onQuorum func(z Zxid)

	mu      sync.Mutex
	order   []Zxid              // proposal order, oldest first
	ackedBy map[Zxid]map[string]struct{}
	closed  bool
}

func newAckProcessor(logger *zap.SugaredLogger, quorum func() int, onQuorum func(z Zxid)) *ackProcessor {
	return &ackProcessor{
		logger:   logger,
		quorum:   quorum,
		onQuorum: onQuorum,
		ackedBy:  map[Zxid]map[string]struct{}{},
	}
}

// Propose registers a new outstanding proposal so later Acks have a slot to
// land in. The leader should call this at the same moment it hands the
// proposal to SyncProposalProcessor, before any ACK for it can arrive.
func (a *ackProcessor) Propose(z Zxid) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if _, ok := a.ackedBy[z]; ok {
		return
	}
	a.order = append(a.order, z)
	a.ackedBy[z] = map[string]struct{}{}
}

// Ack records serverId's acknowledgement of z and, if this completes a
// quorum, commits z and every already-quorate predecessor still pending, in
// order.
func (a *ackProcessor) Ack(serverId string, z Zxid) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	set, ok := a.ackedBy[z]
	if !ok {
		// An ack for a zxid we never registered (e.g. a late-joiner replay
		// or a stale retransmission); ignore rather than fabricate state.
		a.logger.Debugw("ignoring ack for unregistered zxid", "zxid", z.String(), "server", serverId)
		return
	}
	set[serverId] = struct{}{}

	need := a.quorum()
	for len(a.order) > 0 {
		front := a.order[0]
		frontSet, ok := a.ackedBy[front]
		if !ok || len(frontSet) < need {
			break
		}
		a.order = a.order[1:]
		delete(a.ackedBy, front)
		a.onQuorum(front)
	}
}

// Close marks the processor closed; further Propose/Ack calls are no-ops.
// Used during teardown so in-flight transport callbacks don't race a
// restarted round's fresh ackProcessor.
func (a *ackProcessor) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}
