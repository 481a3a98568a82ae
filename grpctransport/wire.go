package grpctransport

import (
	"fmt"

	"github.com/kzab/zab"
)

// wireEnvelope is the msgpack-encoded unit exchanged by the Deliver RPC.
// Body carries the type-specific payload, itself msgpack-encoded, so a
// single RPC method can carry every MessageType without a generated stub
// per message.
type wireEnvelope struct {
	SourceId string
	Type     uint8
	Body     []byte
}

func encodeMessage(sourceId string, msg *zab.Message) (*wireEnvelope, error) {
	body, err := msgpackCodec{}.Marshal(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("grpctransport: encode %s payload: %w", msg.Type, err)
	}
	return &wireEnvelope{SourceId: sourceId, Type: uint8(msg.Type), Body: body}, nil
}

func decodeMessage(env *wireEnvelope) (*zab.Message, error) {
	typ := zab.MessageType(env.Type)
	body, err := newPayload(typ)
	if err != nil {
		return nil, err
	}
	if body != nil {
		if err := msgpackCodec{}.Unmarshal(env.Body, body); err != nil {
			return nil, fmt.Errorf("grpctransport: decode %s payload: %w", typ, err)
		}
	}
	return &zab.Message{Type: typ, Body: body}, nil
}

// newPayload allocates the concrete *Payload struct a MessageType decodes
// into; nil means the message carries no body (e.g. HEARTBEAT).
func newPayload(t zab.MessageType) (any, error) {
	switch t {
	case zab.MsgProposedEpoch:
		return &zab.ProposedEpochPayload{}, nil
	case zab.MsgNewEpoch:
		return &zab.NewEpochPayload{}, nil
	case zab.MsgAckEpoch:
		return &zab.AckEpochPayload{}, nil
	case zab.MsgNewLeader:
		return &zab.NewLeaderPayload{}, nil
	case zab.MsgAck:
		return &zab.AckPayload{}, nil
	case zab.MsgCommit:
		return &zab.CommitPayload{}, nil
	case zab.MsgProposal:
		return &zab.ProposalPayload{}, nil
	case zab.MsgHeartbeat:
		return nil, nil
	case zab.MsgQueryLeader:
		return nil, nil
	case zab.MsgQueryLeaderReply:
		return &zab.QueryLeaderReplyPayload{}, nil
	case zab.MsgRequest:
		return &zab.RequestPayload{}, nil
	case zab.MsgShutDown, zab.MsgJoin:
		return nil, nil
	default:
		return nil, fmt.Errorf("grpctransport: unknown message type %d", t)
	}
}
