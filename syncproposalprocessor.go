package zab

import (
	"context"

	"go.uber.org/zap"
)

type syncProposalOp struct {
	txn   *Transaction
	flush *futureTask[struct{}]
}

// syncProposalProcessor batches proposal appends to the log, fsyncs once per
// batch, then ACKs the last zxid of the batch to the peer-of-record: the
// leader, for a follower, or the leader's own AckProcessor, for the leader
// itself.
type syncProposalProcessor struct {
	noCopy

	logger       *zap.SugaredLogger
	log          Log
	maxBatch     int
	opsCh        chan syncProposalOp
	ackTo        func(z Zxid)
	doneCh       chan struct{}
}

func newSyncProposalProcessor(logger *zap.SugaredLogger, log Log, maxBatch int, ackTo func(z Zxid)) *syncProposalProcessor {
	if maxBatch <= 0 {
		maxBatch = DefaultSyncMaxBatchSize
	}
	s := &syncProposalProcessor{
		logger:   logger,
		log:      log,
		maxBatch: maxBatch,
		opsCh:    make(chan syncProposalOp, maxBatch*2),
		ackTo:    ackTo,
		doneCh:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *syncProposalProcessor) run() {
	defer close(s.doneCh)
	for {
		op, ok := <-s.opsCh
		if !ok {
			return
		}
		if op.flush != nil {
			op.flush.setResult(struct{}{}, nil)
			continue
		}
		batch := []*Transaction{op.txn}
	drain:
		for len(batch) < s.maxBatch {
			select {
			case next, ok := <-s.opsCh:
				if !ok {
					break drain
				}
				if next.flush != nil {
					s.commitBatch(batch)
					next.flush.setResult(struct{}{}, nil)
					batch = nil
					break drain
				}
				batch = append(batch, next.txn)
			default:
				break drain
			}
		}
		if len(batch) > 0 {
			s.commitBatch(batch)
		}
	}
}

func (s *syncProposalProcessor) commitBatch(batch []*Transaction) {
	for _, txn := range batch {
		if err := s.log.Append(txn); err != nil {
			s.logger.Errorw("failed to append proposal to the log", "zxid", txn.Zxid.String(), "error", err)
			return
		}
	}
	if err := s.log.Sync(); err != nil {
		s.logger.Errorw("failed to sync the log after a batch append", "error", err)
		return
	}
	last := batch[len(batch)-1].Zxid
	s.ackTo(last)
}

// Propose hands txn to the processor; never reorders relative to prior
// calls (FIFO).
func (s *syncProposalProcessor) Propose(_ context.Context, txn *Transaction) {
	s.opsCh <- syncProposalOp{txn: txn}
}

// Shutdown flushes any pending batch before returning.
func (s *syncProposalProcessor) Shutdown() {
	t := newFutureTask[struct{}]()
	s.opsCh <- syncProposalOp{flush: t}
	t.Result()
	close(s.opsCh)
	<-s.doneCh
}
