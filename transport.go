package zab

import "context"

// Transport is the external collaborator: a named, best-effort duplex
// channel to each peer. The core only relies on the contract documented
// here; grpctransport provides one concrete implementation over gRPC.
type Transport interface {
	// Send delivers msg to peer. Messages to a given peer are delivered in
	// send order or not at all; duplicates are never produced.
	Send(ctx context.Context, peer Peer, msg *Message) error

	// Inbox returns the channel of messages addressed to this participant,
	// tagged with their source peer id. A disconnect from peer surfaces as
	// a MessageTuple with Disconnected == peer.Id.
	Inbox() <-chan MessageTuple

	// Clear forces a connection teardown to peer and permits a subsequent
	// reconnect; it is the only externally permitted mutation of a live
	// connection.
	Clear(peer Peer)

	// Connect establishes (or confirms) connectivity to peer; transports
	// that dial lazily may treat this as a no-op hint.
	Connect(peer Peer) error

	// Serve runs the transport's accept loop until Close is called.
	Serve() error

	// Close releases every resource the transport owns.
	Close() error
}

// ElectionOracle is the external collaborator that produces one leader id
// per round on demand.
type ElectionOracle interface {
	// Elect blocks until the oracle has an opinion or ctx is cancelled,
	// returning the id of the server it believes should lead this round.
	Elect(ctx context.Context, cfg ClusterConfig) (string, error)

	// Changes returns a channel that receives a value whenever the oracle
	// wants the current round abandoned and re-elected, e.g. because the
	// lease backing its last answer expired or it lost contact with the
	// coordination service it defers to. A nil channel means the oracle
	// never asks for an early restart.
	Changes() <-chan struct{}
}

// StateMachine is the application-facing collaborator the replicated log
// drives.
type StateMachine interface {
	// Deliver hands a committed transaction to the application in strictly
	// increasing zxid order. The externally visible commit point.
	Deliver(txn *Transaction)

	// Leading is called once this replica becomes leader, with the peers
	// of the configuration it leads.
	Leading(peers []Peer)

	// Following is called once this replica becomes a follower of leader.
	Following(leader Peer)

	// ClusterChange notifies the state machine of a new LastSeenConfig.
	ClusterChange(peers []Peer)

	// StateChanged reports phase transitions for observability.
	StateChanged(phase Phase)

	// Save is invoked to capture a snapshot for transfer to a lagging
	// follower that needs a SyncSnapshot catch-up.
	Save() ([]byte, error)

	// Restore installs a snapshot received from the leader.
	Restore(snapshot []byte) error
}
