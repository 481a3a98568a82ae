package zab

import "sync/atomic"

// preProcessor is the leader-side zxid assigner: it assigns the next zxid to
// each accepted client request, wraps it in a PROPOSAL, and fans it out to
// the broadcast path and to the leader's own SyncProposalProcessor.
type preProcessor struct {
	epoch   uint32
	counter uint64 // accessed via atomic.AddUint64

	broadcast func(txn *Transaction)
	localSync func(txn *Transaction)
	onPropose func(z Zxid)
}

func newPreProcessor(epoch uint32, lastCounter uint64, broadcast, localSync func(*Transaction), onPropose func(Zxid)) *preProcessor {
	return &preProcessor{epoch: epoch, counter: lastCounter, broadcast: broadcast, localSync: localSync, onPropose: onPropose}
}

// Accept assigns the next zxid to body, builds the PROPOSAL, and fans it out
// in a fixed order: register the proposal with the AckProcessor so every
// forthcoming ACK has somewhere to land, broadcast to followers, then hand
// it to the leader's own SyncProposalProcessor.
func (pp *preProcessor) Accept(body []byte, typ uint32) *Transaction {
	counter := atomic.AddUint64(&pp.counter, 1)
	txn := &Transaction{Zxid: Zxid{Epoch: pp.epoch, Counter: counter}, Type: typ, Body: body}
	pp.onPropose(txn.Zxid)
	pp.broadcast(txn)
	pp.localSync(txn)
	return txn
}
