package main

import (
	"sync"

	"github.com/kzab/zab"
	"github.com/ugorji/go/codec"
	"go.uber.org/zap"
)

// StateMachine is a demo zab.StateMachine: an in-memory key-value store
// whose mutations arrive as committed Commands and which snapshots through
// zab.StateMachine.Save/Restore.
type StateMachine struct {
	logger *zap.SugaredLogger

	mu     sync.RWMutex
	states map[string][]byte
}

func NewStateMachine(logger *zap.SugaredLogger) *StateMachine {
	return &StateMachine{logger: logger, states: map[string][]byte{}}
}

func (m *StateMachine) Deliver(txn *zab.Transaction) {
	if txn.Type != uint32(zab.TxnCommand) {
		return
	}
	cmd := DecodeCommand(txn.Body)
	m.mu.Lock()
	defer m.mu.Unlock()
	switch cmd.Type {
	case CommandSet:
		m.states[cmd.Key] = cmd.Value
	case CommandUnset:
		delete(m.states, cmd.Key)
	}
}

func (m *StateMachine) Keys() (keys []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for key := range m.states {
		keys = append(keys, key)
	}
	return
}

func (m *StateMachine) Value(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.states[key]
	return v, ok
}

func (m *StateMachine) Leading(peers []zab.Peer) {
	m.logger.Infow("now leading", "peers", len(peers))
}

func (m *StateMachine) Following(leader zab.Peer) {
	m.logger.Infow("now following", "leader", leader.Id)
}

func (m *StateMachine) ClusterChange(peers []zab.Peer) {
	m.logger.Infow("cluster membership changed", "peers", len(peers))
}

func (m *StateMachine) StateChanged(phase zab.Phase) {
	m.logger.Infow("phase changed", "phase", phase.String())
}

func (m *StateMachine) Save() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keyValues := map[string][]byte{}
	for key, value := range m.states {
		keyValues[key] = append([]byte(nil), value...)
	}
	var buf []byte
	if err := codec.NewEncoderBytes(&buf, &codec.MsgpackHandle{}).Encode(keyValues); err != nil {
		return nil, err
	}
	return buf, nil
}

func (m *StateMachine) Restore(snapshot []byte) error {
	keyValues := map[string][]byte{}
	if err := codec.NewDecoderBytes(snapshot, &codec.MsgpackHandle{}).Decode(&keyValues); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = keyValues
	return nil
}
