package zab

import (
	"context"
	"testing"
	"time"
)

// fakeTransport is a minimal in-memory zab.Transport for driving the
// message queue and participant tests without any network I/O.
type fakeTransport struct {
	inbox   chan MessageTuple
	cleared []Peer
	sent    []*Message
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbox: make(chan MessageTuple, 64)}
}

func (f *fakeTransport) Send(ctx context.Context, peer Peer, msg *Message) error {
	f.sent = append(f.sent, msg)
	return nil
}
func (f *fakeTransport) Inbox() <-chan MessageTuple { return f.inbox }
func (f *fakeTransport) Clear(peer Peer)            { f.cleared = append(f.cleared, peer) }
func (f *fakeTransport) Connect(peer Peer) error    { return nil }
func (f *fakeTransport) Serve() error               { <-context.Background().Done(); return nil }
func (f *fakeTransport) Close() error               { return nil }

type noopStateMachine struct{}

func (noopStateMachine) Deliver(*Transaction)        {}
func (noopStateMachine) Leading([]Peer)              {}
func (noopStateMachine) Following(Peer)              {}
func (noopStateMachine) ClusterChange([]Peer)        {}
func (noopStateMachine) StateChanged(Phase)          {}
func (noopStateMachine) Save() ([]byte, error)       { return nil, nil }
func (noopStateMachine) Restore([]byte) error        { return nil }

type noopOracle struct{}

func (noopOracle) Elect(ctx context.Context, cfg ClusterConfig) (string, error) { return "", nil }
func (noopOracle) Changes() <-chan struct{}                                     { return nil }

func newTestParticipant(t *testing.T) (*Participant, *fakeTransport) {
	t.Helper()
	trans := newFakeTransport()
	p, err := NewParticipant(Config{ServerId: "self", LogDir: t.TempDir(), LogLevel: LogLevelError}, trans, noopOracle{}, noopStateMachine{})
	if err != nil {
		t.Fatalf("NewParticipant: %v", err)
	}
	return p, trans
}

func TestGetMessageTimesOut(t *testing.T) {
	p, _ := newTestParticipant(t)
	_, err := p.mq.getMessage(5*time.Millisecond, followerInterest("leader"))
	if err != ErrTimeout {
		t.Fatalf("getMessage() error = %v, want ErrTimeout", err)
	}
}

func TestGetMessageGoBackRaisesBackToElection(t *testing.T) {
	p, _ := newTestParticipant(t)
	p.mq.signalGoBack()
	_, err := p.mq.getMessage(time.Second, followerInterest("leader"))
	if err != ErrBackToElection {
		t.Fatalf("getMessage() error = %v, want ErrBackToElection", err)
	}
}

func TestGetMessageDisconnectFromDependedPeerRaisesBackToElection(t *testing.T) {
	p, trans := newTestParticipant(t)
	trans.inbox <- disconnectedTuple("leader")
	_, err := p.mq.getMessage(time.Second, followerInterest("leader"))
	if err != ErrBackToElection {
		t.Fatalf("getMessage() error = %v, want ErrBackToElection", err)
	}
}

func TestGetMessageDisconnectFromUninterestingPeerClearsAndContinues(t *testing.T) {
	p, trans := newTestParticipant(t)
	trans.inbox <- disconnectedTuple("stranger")
	trans.inbox <- MessageTuple{SourceId: "leader", Message: &Message{Type: MsgHeartbeat}}
	tuple, err := p.mq.getMessage(time.Second, followerInterest("leader"))
	if err != nil {
		t.Fatalf("getMessage() error = %v", err)
	}
	if tuple.Message.Type != MsgHeartbeat {
		t.Fatalf("expected the heartbeat to survive the unrelated disconnect, got %+v", tuple)
	}
	found := false
	for _, p := range trans.cleared {
		if p.Id == "stranger" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected transport.Clear(stranger), cleared = %v", trans.cleared)
	}
}

func TestGetMessageFollowerDropsProposedEpoch(t *testing.T) {
	p, trans := newTestParticipant(t)
	p.setRole(RoleFollowing)
	trans.inbox <- MessageTuple{SourceId: "latecomer", Message: &Message{Type: MsgProposedEpoch}}
	trans.inbox <- MessageTuple{SourceId: "leader", Message: &Message{Type: MsgHeartbeat}}
	tuple, err := p.mq.getMessage(time.Second, followerInterest("leader"))
	if err != nil {
		t.Fatalf("getMessage() error = %v", err)
	}
	if tuple.Message.Type != MsgHeartbeat {
		t.Fatalf("expected PROPOSED_EPOCH to be dropped while following, got %+v", tuple)
	}
}

func TestGetExpectedMessageDiscardsUntilMatch(t *testing.T) {
	p, trans := newTestParticipant(t)
	trans.inbox <- MessageTuple{SourceId: "leader", Message: &Message{Type: MsgHeartbeat}}
	trans.inbox <- MessageTuple{SourceId: "other", Message: &Message{Type: MsgAck, Body: &AckPayload{}}}
	trans.inbox <- MessageTuple{SourceId: "leader", Message: &Message{Type: MsgAck, Body: &AckPayload{Zxid: Zxid{1, 1}}}}

	tuple, err := p.mq.getExpectedMessage(time.Second, followerInterest("leader"), MsgAck, "leader")
	if err != nil {
		t.Fatalf("getExpectedMessage() error = %v", err)
	}
	got := tuple.Message.Body.(*AckPayload).Zxid
	if got != (Zxid{1, 1}) {
		t.Fatalf("got ack zxid %s, want (1,1)", got)
	}
}
