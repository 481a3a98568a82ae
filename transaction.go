package zab

import "go.uber.org/zap/zapcore"

// Transaction is the atomic unit of replication: an immutable zxid-tagged
// opaque body. Once created by the leader's PreProcessor a Transaction is
// never mutated, only copied or discarded by log truncation/compaction.
type Transaction struct {
	Zxid Zxid
	Type uint32
	Body []byte
}

// Copy returns a deep copy of t, safe to retain past the lifetime of the
// buffer t.Body was decoded into.
func (t *Transaction) Copy() *Transaction {
	if t == nil {
		return nil
	}
	body := append([]byte(nil), t.Body...)
	return &Transaction{Zxid: t.Zxid, Type: t.Type, Body: body}
}

// MarshalLogObject lets a Transaction be attached directly to a zap field
// instead of being formatted as an opaque struct.
func (t *Transaction) MarshalLogObject(e zapcore.ObjectEncoder) error {
	if t == nil {
		return nil
	}
	e.AddUint32("epoch", t.Zxid.Epoch)
	e.AddUint64("counter", t.Zxid.Counter)
	e.AddUint32("type", t.Type)
	e.AddInt("body_len", len(t.Body))
	return nil
}

// TransactionType enumerates the opaque body's interpretation. The core
// treats bodies as opaque; this enum exists so a state machine or the
// configuration-change path can tag what it stored.
type TransactionType uint32

const (
	TxnCommand       TransactionType = 0
	TxnConfiguration TransactionType = 1
)
