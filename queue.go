package zab

import "time"

// messageQueue is the single bounded multi-producer/single-consumer queue
// feeding the participant driver. Producers are the Transport's Inbox and
// the election-oracle watcher (which injects GO_BACK); the sole consumer is
// the participant's own goroutine via getMessage.
type messageQueue struct {
	noCopy

	p       *Participant
	inbox   <-chan MessageTuple
	goBackC chan struct{}
}

func newMessageQueue(p *Participant, inbox <-chan MessageTuple) *messageQueue {
	return &messageQueue{p: p, inbox: inbox, goBackC: make(chan struct{}, 1)}
}

// signalGoBack injects the GO_BACK sentinel; non-blocking because at most
// one pending GO_BACK is ever meaningful.
func (q *messageQueue) signalGoBack() {
	select {
	case q.goBackC <- struct{}{}:
	default:
	}
}

// getMessage waits for the next message of interest, applying: timeout,
// GO_BACK, disconnect handling relative to the peer(s)-of-interest, and
// then role-specific filtering of pre-election/leader-only traffic.
func (q *messageQueue) getMessage(timeout time.Duration, interest peerInterest) (MessageTuple, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-deadline.C:
			return MessageTuple{}, ErrTimeout

		case <-q.goBackC:
			return MessageTuple{}, ErrBackToElection

		case tuple, ok := <-q.inbox:
			if !ok {
				return MessageTuple{}, ErrBackToElection
			}

			if tuple.isDisconnect() {
				if interest.dependsOn(tuple.Disconnected) {
					return MessageTuple{}, ErrBackToElection
				}
				q.p.trans.Clear(Peer{Id: tuple.Disconnected})
				continue
			}

			if q.dropsByRolePolicy(tuple) {
				continue
			}

			return tuple, nil
		}
	}
}

// peerInterest names the peer(s) whose disconnection must unwind the
// participant to ELECTING: the elected leader for a follower, or any
// quorum member for a leader.
type peerInterest struct {
	leader    string // non-empty when following
	quorum    map[string]struct{}
	isLeading bool
}

func followerInterest(leader string) peerInterest {
	return peerInterest{leader: leader}
}

func leaderInterest(quorum []string) peerInterest {
	m := make(map[string]struct{}, len(quorum))
	for _, id := range quorum {
		m[id] = struct{}{}
	}
	return peerInterest{quorum: m, isLeading: true}
}

func (pi peerInterest) dependsOn(peerId string) bool {
	if pi.isLeading {
		_, ok := pi.quorum[peerId]
		return ok
	}
	return pi.leader == peerId
}

// dropsByRolePolicy drops and clears traffic that doesn't belong to the
// current role: a FOLLOWING participant that receives a PROPOSED_EPOCH
// calls transport.Clear(source) and drops the message; a LEADING
// participant that receives an unexpected leader-role message likewise
// clears the source.
func (q *messageQueue) dropsByRolePolicy(tuple MessageTuple) bool {
	role := q.p.role()
	switch role {
	case RoleFollowing:
		if tuple.Message.Type == MsgProposedEpoch {
			q.p.logger.Debugw("dropping pre-election message while following",
				logFields(q.p, "source", tuple.SourceId, "type", tuple.Message.Type.String())...)
			q.p.trans.Clear(Peer{Id: tuple.SourceId})
			return true
		}
	case RoleLeading:
		switch tuple.Message.Type {
		case MsgNewEpoch, MsgNewLeader, MsgCommit:
			q.p.logger.Debugw("dropping leader-role message while leading",
				logFields(q.p, "source", tuple.SourceId, "type", tuple.Message.Type.String())...)
			q.p.trans.Clear(Peer{Id: tuple.SourceId})
			return true
		}
	}
	return false
}

// getExpectedMessage loops getMessage until a tuple matching want arrives
// from fromPeer (if non-empty), discarding everything else.
func (q *messageQueue) getExpectedMessage(timeout time.Duration, interest peerInterest, want MessageType, fromPeer string) (MessageTuple, error) {
	deadlineAt := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadlineAt)
		if remaining <= 0 {
			return MessageTuple{}, ErrTimeout
		}
		tuple, err := q.getMessage(remaining, interest)
		if err != nil {
			return MessageTuple{}, err
		}
		if tuple.Message == nil || tuple.Message.Type != want {
			q.p.logger.Debugw("discarding unexpected message while waiting",
				append(logFields(q.p), "wanted", want.String(), "got", tuple.Message)...)
			continue
		}
		if fromPeer != "" && tuple.SourceId != fromPeer {
			continue
		}
		return tuple, nil
	}
}
