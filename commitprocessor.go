package zab

import (
	"sync"

	"go.uber.org/zap"
)

// commitProcessorOp is the tagged union fed into the bounded input queue.
type commitProcessorOp struct {
	propose *Transaction
	commit  *Zxid
	flush   *futureTask[Zxid] // shutdown: drain, then report lastDelivered
}

// commitProcessor buffers PROPOSALs by zxid and delivers to the state
// machine only once a matching COMMIT arrives, strictly in increasing zxid
// order. Both followers and the leader run one of these.
type commitProcessor struct {
	noCopy

	logger *zap.SugaredLogger
	sm     StateMachine

	opsCh chan commitProcessorOp

	mu            sync.Mutex
	pending       []*Transaction // FIFO, strictly increasing zxid
	lastDelivered Zxid

	doneCh chan struct{}
}

func newCommitProcessor(logger *zap.SugaredLogger, sm StateMachine, startAt Zxid) *commitProcessor {
	cp := &commitProcessor{
		logger:        logger,
		sm:            sm,
		opsCh:         make(chan commitProcessorOp, 256),
		lastDelivered: startAt,
		doneCh:        make(chan struct{}),
	}
	go cp.run()
	return cp
}

func (cp *commitProcessor) run() {
	defer close(cp.doneCh)
	for op := range cp.opsCh {
		switch {
		case op.propose != nil:
			cp.mu.Lock()
			cp.pending = append(cp.pending, op.propose)
			cp.mu.Unlock()
		case op.commit != nil:
			cp.applyCommit(*op.commit)
		case op.flush != nil:
			op.flush.setResult(cp.LastDeliveredZxid(), nil)
			return
		}
	}
}

func (cp *commitProcessor) applyCommit(z Zxid) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if z.LessOrEqual(cp.lastDelivered) {
		// Duplicate or stale COMMIT (e.g. retransmitted by the leader);
		// no re-delivery (spec invariant 5).
		return
	}

	i := 0
	for i < len(cp.pending) && cp.pending[i].Zxid.LessOrEqual(z) {
		txn := cp.pending[i]
		cp.sm.Deliver(txn)
		cp.lastDelivered = txn.Zxid
		i++
	}
	cp.pending = cp.pending[i:]

	if cp.lastDelivered.Less(z) {
		cp.logger.Warnw("commit target has no matching buffered proposal",
			"wanted", z.String(), "delivered_through", cp.lastDelivered.String())
	}
}

// Propose enqueues txn for eventual delivery once its COMMIT arrives.
func (cp *commitProcessor) Propose(txn *Transaction) {
	cp.opsCh <- commitProcessorOp{propose: txn}
}

// Commit requests delivery of every buffered proposal up to and including z.
func (cp *commitProcessor) Commit(z Zxid) {
	cp.opsCh <- commitProcessorOp{commit: &z}
}

// LastDeliveredZxid returns the highest zxid handed to the state machine so
// far.
func (cp *commitProcessor) LastDeliveredZxid() Zxid {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.lastDelivered
}

// Shutdown drains in-flight work and publishes the final lastDelivered zxid
// to the participant.
func (cp *commitProcessor) Shutdown() Zxid {
	t := newFutureTask[Zxid]()
	cp.opsCh <- commitProcessorOp{flush: t}
	z, _ := t.Result()
	<-cp.doneCh
	return z
}
