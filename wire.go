package zab

import "go.uber.org/zap/zapcore"

// Peer identifies one ensemble member. It travels over the gRPC transport
// via the msgpack codec in grpctransport rather than a generated protobuf
// message (see DESIGN.md).
type Peer struct {
	Id       string
	Endpoint string
}

// Copy returns a defensive copy of p, mirroring pb.Peer.Copy.
func (p Peer) Copy() Peer { return Peer{Id: p.Id, Endpoint: p.Endpoint} }

// MarshalLogObject lets a Peer be attached directly to a zap field.
func (p Peer) MarshalLogObject(e zapcore.ObjectEncoder) error {
	e.AddString("id", p.Id)
	e.AddString("endpoint", p.Endpoint)
	return nil
}

type peerArray []Peer

func (a peerArray) MarshalLogArray(e zapcore.ArrayEncoder) error {
	for _, p := range a {
		if err := e.AppendObject(p); err != nil {
			return err
		}
	}
	return nil
}

// ClusterConfig is the most recently observed membership, versioned by the
// zxid of the configuration change that produced it.
type ClusterConfig struct {
	Version Zxid
	Peers   []Peer
}

// Quorum returns the strict-majority size for this configuration.
func (c ClusterConfig) Quorum() int {
	return len(c.Peers)/2 + 1
}

// Contains reports whether serverId is a member of this configuration.
func (c ClusterConfig) Contains(serverId string) bool {
	for _, p := range c.Peers {
		if p.Id == serverId {
			return true
		}
	}
	return false
}

// Peer looks up a member by id, returning the zero Peer if absent.
func (c ClusterConfig) Peer(serverId string) Peer {
	for _, p := range c.Peers {
		if p.Id == serverId {
			return p
		}
	}
	return Peer{}
}

// MessageType tags the logical wire messages exchanged between replicas.
// The wire encoding (msgpack, via grpctransport) is a transport detail; the
// core only ever switches on these tags.
type MessageType uint8

const (
	MsgProposedEpoch MessageType = iota + 1
	MsgNewEpoch
	MsgAckEpoch
	MsgNewLeader
	MsgAck
	MsgCommit
	MsgProposal
	MsgHeartbeat
	MsgQueryLeader
	MsgQueryLeaderReply
	MsgJoin
	MsgShutDown
	MsgRequest
)

func (t MessageType) String() string {
	switch t {
	case MsgProposedEpoch:
		return "PROPOSED_EPOCH"
	case MsgNewEpoch:
		return "NEW_EPOCH"
	case MsgAckEpoch:
		return "ACK_EPOCH"
	case MsgNewLeader:
		return "NEW_LEADER"
	case MsgAck:
		return "ACK"
	case MsgCommit:
		return "COMMIT"
	case MsgProposal:
		return "PROPOSAL"
	case MsgHeartbeat:
		return "HEARTBEAT"
	case MsgQueryLeader:
		return "QUERY_LEADER"
	case MsgQueryLeaderReply:
		return "QUERY_LEADER_REPLY"
	case MsgJoin:
		return "JOIN"
	case MsgShutDown:
		return "SHUT_DOWN"
	case MsgRequest:
		return "REQUEST"
	default:
		return "UNKNOWN"
	}
}

// SyncMode tags which of the three strategies a NEW_LEADER payload uses to
// bring a follower's log in line with the leader's history.
type SyncMode uint8

const (
	SyncDiff SyncMode = iota
	SyncTruncate
	SyncSnapshot
)

// Message is the envelope carried inside every MessageTuple. Body holds one
// of the *Payload types below, selected by Type.
type Message struct {
	Type MessageType
	Body any
}

type ProposedEpochPayload struct {
	ProposedEpoch uint32
	AckEpoch      uint32
	Config        ClusterConfig
}

type NewEpochPayload struct {
	Epoch uint32
}

type AckEpochPayload struct {
	AckEpoch uint32
	LastZxid Zxid
}

// NewLeaderPayload carries the per-follower synchronization directive. Mode
// selects how the follower applies it: SyncDiff appends Proposals,
// SyncTruncate first truncates to From and then appends Proposals,
// SyncSnapshot empties the log, restores Snapshot and appends Proposals.
// To records the leader's initial-history tail; followers do not read it.
type NewLeaderPayload struct {
	Epoch      uint32
	Mode       SyncMode
	From       Zxid
	To         Zxid
	Proposals  []*Transaction
	Snapshot   []byte
}

type AckPayload struct {
	Zxid Zxid
}

type CommitPayload struct {
	Zxid Zxid
}

type ProposalPayload struct {
	Txn *Transaction
}

type QueryLeaderReplyPayload struct {
	Leader Peer
}

type RequestPayload struct {
	Body []byte
}

// MessageTuple is the (sourceId, message) unit fed into the MessageQueue,
// plus fields for the two distinguished sentinels (disconnect and go-back).
type MessageTuple struct {
	SourceId string
	Message  *Message

	// GoBack marks a GO_BACK sentinel tuple (see goBackTuple). The message
	// queue does not read this field: an oracle restart reaches it through
	// messageQueue.signalGoBack instead.
	GoBack bool

	// Disconnected carries the peer id when this tuple is the synthetic
	// DISCONNECTED(peerId) notification from the Transport.
	Disconnected string
}

func goBackTuple() MessageTuple {
	return MessageTuple{GoBack: true}
}

func disconnectedTuple(peerId string) MessageTuple {
	return MessageTuple{Disconnected: peerId}
}

func (t MessageTuple) isDisconnect() bool { return t.Disconnected != "" }
