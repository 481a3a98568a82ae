package zab

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Role is the participant's current role in the ensemble.
type Role uint8

const (
	RoleElecting Role = iota
	RoleLeading
	RoleFollowing
)

func (r Role) String() string {
	switch r {
	case RoleLeading:
		return "LEADING"
	case RoleFollowing:
		return "FOLLOWING"
	default:
		return "ELECTING"
	}
}

// Phase is the participant's position within the per-round state machine.
type Phase uint8

const (
	PhaseElecting Phase = iota
	PhaseDiscovering
	PhaseSynchronizing
	PhaseBroadcasting
)

func (ph Phase) String() string {
	switch ph {
	case PhaseDiscovering:
		return "DISCOVERING"
	case PhaseSynchronizing:
		return "SYNCHRONIZING"
	case PhaseBroadcasting:
		return "BROADCASTING"
	default:
		return "ELECTING"
	}
}

// clientRequest is the internal unit the API-facing Send hands to the
// leader's PreProcessor.
type clientRequest struct {
	requestId string
	body      []byte
	typ       uint32
	result    *futureTask[*Transaction]
}

// Participant drives one ensemble replica through the ELECTING →
// DISCOVERING → SYNCHRONIZING → BROADCASTING phases, in either the leader or
// follower role. It owns its Persistence exclusively and shares its
// Transport with the processors it spawns each round.
type Participant struct {
	id          string
	logger      *zap.SugaredLogger
	opts        *participantOptions
	persistence *Persistence
	trans       Transport
	oracle      ElectionOracle
	sm          StateMachine
	mq          *messageQueue

	stateMu    sync.RWMutex
	stateRole  Role
	statePhase Phase
	leader     Peer

	deliveredMu sync.Mutex
	delivered   Zxid

	compactMu     sync.Mutex
	recentCommits []Zxid

	requestCh    chan *clientRequest
	shutdownCh   chan error
	shutdownOnce sync.Once
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewParticipant builds a Participant from its external collaborators.
func NewParticipant(cfg Config, trans Transport, oracle ElectionOracle, sm StateMachine, opts ...Option) (*Participant, error) {
	persistence, err := OpenPersistence(cfg.LogDir)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Participant{
		id:          cfg.ServerId,
		opts:        applyOptions(cfg, trans, oracle, sm, opts...),
		persistence: persistence,
		trans:       trans,
		oracle:      oracle,
		sm:          sm,
		requestCh:   make(chan *clientRequest, 64),
		shutdownCh:  make(chan error, 1),
		ctx:         ctx,
		cancel:      cancel,
		delivered:   persistence.Log().LatestZxid(),
	}
	p.logger = participantLogger(p.opts.config.LogLevel)
	p.mq = newMessageQueue(p, trans.Inbox())

	if _, ok := persistence.GetLastSeenConfig(); !ok && len(cfg.Peers) > 0 {
		if err := persistence.SetLastSeenConfig(ClusterConfig{Peers: cfg.Peers}); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Participant) role() Role {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.stateRole
}

func (p *Participant) setRole(r Role) {
	p.stateMu.Lock()
	p.stateRole = r
	p.stateMu.Unlock()
}

func (p *Participant) phase() Phase {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.statePhase
}

func (p *Participant) setPhase(ph Phase) {
	p.stateMu.Lock()
	p.statePhase = ph
	p.stateMu.Unlock()
	p.sm.StateChanged(ph)
}

func (p *Participant) setLeader(peer Peer) {
	p.stateMu.Lock()
	p.leader = peer
	p.stateMu.Unlock()
}

// Leader returns the currently elected leader, or the zero Peer if unknown.
func (p *Participant) Leader() Peer {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.leader
}

func (p *Participant) Id() string { return p.id }

func (p *Participant) Role() Role   { return p.role() }
func (p *Participant) Phase() Phase { return p.phase() }

func (p *Participant) lastDeliveredZxid() Zxid {
	p.deliveredMu.Lock()
	defer p.deliveredMu.Unlock()
	return p.delivered
}

func (p *Participant) setLastDeliveredZxid(z Zxid) {
	p.deliveredMu.Lock()
	if z.Greater(p.delivered) {
		p.delivered = z
	}
	p.deliveredMu.Unlock()
}

// LastDeliveredZxid is the externally visible commit watermark.
func (p *Participant) LastDeliveredZxid() Zxid { return p.lastDeliveredZxid() }

// Send enqueues a client request. It returns the transaction once the leader
// has assigned it a zxid and handed the PROPOSAL to its followers and to its
// own log; it does not wait for a quorum to commit it. It returns
// ErrNonLeader when this participant is not leading, and ctx's error if ctx
// ends first.
func (p *Participant) Send(ctx context.Context, body []byte) (*Transaction, error) {
	if p.role() != RoleLeading {
		return nil, ErrNonLeader
	}
	req := &clientRequest{requestId: uuid.NewString(), body: body, typ: uint32(TxnCommand), result: newFutureTask[*Transaction]()}
	select {
	case p.requestCh <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, ErrShuttingDown
	}
	select {
	case <-req.result.Done():
		return req.result.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown requests an orderly stop; err becomes the cause reported by
// Serve's caller once teardown completes.
func (p *Participant) Shutdown(err error) {
	p.shutdownOnce.Do(func() {
		p.cancel()
		p.shutdownCh <- err
	})
}

// Serve runs the phase machine until a terminal condition (LeftCluster,
// Cancelled, or persistence corruption) is reached.
func (p *Participant) Serve() error {
	go func() {
		if err := p.trans.Serve(); err != nil {
			p.logger.Warnw("transport serve loop exited", logFields(p, zap.Error(err))...)
		}
	}()

	for {
		select {
		case err := <-p.shutdownCh:
			return p.finalShutdown(err)
		default:
		}

		cfg, leaderId, err := p.electLeader()
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				return p.finalShutdown(err)
			}
			p.logger.Warnw("election round failed, retrying", logFields(p, zap.Error(err))...)
			continue
		}

		roundDone := make(chan struct{})
		go p.watchOracleChanges(roundDone)

		if leaderId == p.id {
			err = p.runLeader(cfg)
		} else {
			err = p.runFollower(cfg, leaderId)
		}
		close(roundDone)

		switch {
		case errors.Is(err, ErrLeftCluster), errors.Is(err, ErrCancelled):
			return p.finalShutdown(err)
		case errors.Is(err, ErrPersistenceCorruption):
			p.logger.Panicw("persistence corruption, stopping the process", logFields(p, zap.Error(err))...)
			return err
		default:
			p.logger.Infow("round ended, returning to ELECTING", logFields(p, zap.Error(err))...)
		}
	}
}

func (p *Participant) finalShutdown(err error) error {
	p.cancel()
	p.trans.Close()
	p.persistence.Close()
	p.logger.Sync()
	return err
}

// broadcast fans msg out to every follower in acked concurrently: one slow
// peer's send never delays the others.
func (p *Participant) broadcast(acked map[string]*discoveredFollower, msg *Message) {
	var g errgroup.Group
	for id, f := range acked {
		if id == p.id {
			continue
		}
		g.Go(func() error {
			p.send(f.peer, msg)
			return nil
		})
	}
	g.Wait()
}

// maybeCompactLog tracks the last LogRetentionEntries committed zxids and,
// on every commit once more than that many have been seen, discards
// everything older than the oldest one still being retained. A follower
// that later claims a lastZxid at or before the discarded prefix can no
// longer be caught up with DIFF or TRUNCATE and falls back to SNAPSHOT.
func (p *Participant) maybeCompactLog(committed Zxid) {
	n := p.opts.config.LogRetentionEntries
	if n <= 0 {
		return
	}
	p.compactMu.Lock()
	p.recentCommits = append(p.recentCommits, committed)
	if len(p.recentCommits) <= n {
		p.compactMu.Unlock()
		return
	}
	cutoff := p.recentCommits[len(p.recentCommits)-n-1]
	p.recentCommits = p.recentCommits[len(p.recentCommits)-n:]
	p.compactMu.Unlock()

	if err := p.persistence.Log().Compact(cutoff); err != nil {
		p.logger.Warnw("log compaction failed", logFields(p, "error", err, "through", cutoff.String())...)
	}
}

// shutdownProcessors tears down the per-round SyncProposalProcessor and
// CommitProcessor concurrently, draining in-flight I/O and fsyncing before
// either returns, and reports the final lastDelivered zxid.
func shutdownProcessors(spp *syncProposalProcessor, cp *commitProcessor) Zxid {
	var final Zxid
	g := new(errgroup.Group)
	g.Go(func() error { spp.Shutdown(); return nil })
	g.Go(func() error { final = cp.Shutdown(); return nil })
	g.Wait()
	return final
}

// electLeader implements the ELECTING phase: ask the oracle for a leader id
// given the last-seen configuration, connect to every peer, and record the
// answer.
func (p *Participant) electLeader() (ClusterConfig, string, error) {
	p.setPhase(PhaseElecting)
	p.setRole(RoleElecting)

	cfg, ok := p.persistence.GetLastSeenConfig()
	if !ok {
		return ClusterConfig{}, "", ErrJoinFailure
	}
	for _, peer := range cfg.Peers {
		if peer.Id == p.id {
			continue
		}
		if err := p.trans.Connect(peer); err != nil {
			p.logger.Debugw("could not eagerly connect to peer", logFields(p, "peer", peer.Id, "error", err)...)
		}
	}

	leaderId, err := p.oracle.Elect(p.ctx, cfg)
	if err != nil {
		if p.ctx.Err() != nil {
			return cfg, "", ErrCancelled
		}
		return cfg, "", err
	}
	p.setLeader(cfg.Peer(leaderId))
	return cfg, leaderId, nil
}

// watchOracleChanges forwards the oracle's GO_BACK requests into the
// message queue for the duration of one round. It returns once done is
// closed (the round ended on its own) or the participant is shutting down.
func (p *Participant) watchOracleChanges(done <-chan struct{}) {
	changes := p.oracle.Changes()
	if changes == nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-p.ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			p.logger.Infow("election oracle requested a restart", logFields(p)...)
			p.mq.signalGoBack()
		}
	}
}

func (p *Participant) send(peer Peer, msg *Message) {
	ctx, cancel := context.WithTimeout(p.ctx, p.opts.config.Timeout)
	defer cancel()
	if err := p.trans.Send(ctx, peer, msg); err != nil {
		p.logger.Debugw("send failed", logFields(p, "peer", peer.Id, "type", msg.Type.String(), "error", err)...)
	}
}

// === Follower path ===

func (p *Participant) runFollower(cfg ClusterConfig, leaderId string) error {
	p.setRole(RoleFollowing)
	leader := cfg.Peer(leaderId)
	interest := followerInterest(leaderId)
	timeout := p.opts.jitteredTimeout()

	// --- DISCOVERING ---
	p.setPhase(PhaseDiscovering)
	proposedEpoch := p.persistence.ProposedEpoch()
	ackEpoch := p.persistence.AckEpoch()
	lastConfig, _ := p.persistence.GetLastSeenConfig()
	p.send(leader, &Message{Type: MsgProposedEpoch, Body: &ProposedEpochPayload{
		ProposedEpoch: proposedEpoch, AckEpoch: ackEpoch, Config: lastConfig,
	}})

	tuple, err := p.mq.getExpectedMessage(timeout, interest, MsgNewEpoch, leaderId)
	if err != nil {
		return err
	}
	newEpoch := tuple.Message.Body.(*NewEpochPayload).Epoch
	if newEpoch < proposedEpoch {
		return protocolViolation(PhaseDiscovering, "leader offered epoch %d below our proposedEpoch %d", newEpoch, proposedEpoch)
	}
	if err := p.persistence.SetProposedEpoch(newEpoch); err != nil {
		return err
	}
	p.send(leader, &Message{Type: MsgAckEpoch, Body: &AckEpochPayload{
		AckEpoch: p.persistence.AckEpoch(), LastZxid: p.persistence.Log().LatestZxid(),
	}})

	// --- SYNCHRONIZING ---
	p.setPhase(PhaseSynchronizing)
	tuple, err = p.mq.getExpectedMessage(timeout, interest, MsgNewLeader, leaderId)
	if err != nil {
		return err
	}
	nl := tuple.Message.Body.(*NewLeaderPayload)
	if err := p.applySyncDirective(nl); err != nil {
		return err
	}
	if err := p.persistence.Log().Sync(); err != nil {
		return err
	}
	if err := p.persistence.SetAckEpoch(nl.Epoch); err != nil {
		return err
	}
	p.send(leader, &Message{Type: MsgAck, Body: &AckPayload{Zxid: p.persistence.Log().LatestZxid()}})

	tuple, err = p.mq.getExpectedMessage(timeout, interest, MsgCommit, leaderId)
	if err != nil {
		return err
	}
	commitZxid := tuple.Message.Body.(*CommitPayload).Zxid
	if commitZxid != p.persistence.Log().LatestZxid() {
		return protocolViolation(PhaseSynchronizing, "NEW_LEADER commit zxid %s does not match log tail %s",
			commitZxid, p.persistence.Log().LatestZxid())
	}
	if err := p.persistence.SetProposedEpoch(p.persistence.AckEpoch()); err != nil {
		return err
	}
	p.deliverBacklog()

	// --- BROADCASTING ---
	p.setPhase(PhaseBroadcasting)
	ackEpochNow := p.persistence.AckEpoch()
	cp := newCommitProcessor(p.logger, p.sm, p.lastDeliveredZxid())
	spp := newSyncProposalProcessor(p.logger, p.persistence.Log(), p.opts.config.SyncMaxBatchSize, func(z Zxid) {
		p.send(leader, &Message{Type: MsgAck, Body: &AckPayload{Zxid: z}})
	})
	p.sm.Following(leader)

	err = p.followerAcceptingLoop(cfg, interest, leaderId, ackEpochNow, spp, cp)

	final := shutdownProcessors(spp, cp)
	p.setLastDeliveredZxid(final)
	p.trans.Clear(leader)
	return err
}

func (p *Participant) deliverBacklog() {
	it := p.persistence.Log().Iterate(p.lastDeliveredZxid().Next())
	for it.Next() {
		txn := it.Transaction()
		p.sm.Deliver(txn)
		p.setLastDeliveredZxid(txn.Zxid)
	}
}

// applySyncDirective applies the leader's chosen sync strategy before the
// follower acks NEW_LEADER.
func (p *Participant) applySyncDirective(nl *NewLeaderPayload) error {
	switch nl.Mode {
	case SyncTruncate:
		if err := p.persistence.Log().Truncate(nl.From); err != nil {
			return err
		}
		fallthrough
	case SyncDiff:
		for _, txn := range nl.Proposals {
			if err := p.persistence.Log().Append(txn); err != nil {
				return err
			}
		}
	case SyncSnapshot:
		if err := p.persistence.Log().Truncate(ZxidNull); err != nil {
			return err
		}
		if err := p.sm.Restore(nl.Snapshot); err != nil {
			return err
		}
		for _, txn := range nl.Proposals {
			if err := p.persistence.Log().Append(txn); err != nil {
				return err
			}
		}
	default:
		return protocolViolation(PhaseSynchronizing, "unknown sync mode %d", nl.Mode)
	}
	return nil
}

func (p *Participant) followerAcceptingLoop(cfg ClusterConfig, interest peerInterest, leaderId string, ackEpoch uint32, spp *syncProposalProcessor, cp *commitProcessor) error {
	timeout := p.opts.jitteredTimeout()
	lastHeartbeat := time.Now()

	for {
		remaining := timeout - time.Since(lastHeartbeat)
		if remaining <= 0 {
			return ErrTimeout
		}
		select {
		case req := <-p.requestCh:
			req.result.setResult(nil, ErrNonLeader)
			continue
		default:
		}
		tuple, err := p.mq.getMessage(remaining, interest)
		if err != nil {
			return err
		}
		if tuple.Message == nil {
			continue
		}
		lastHeartbeat = time.Now()

		switch tuple.Message.Type {
		case MsgProposal:
			txn := tuple.Message.Body.(*ProposalPayload).Txn
			if txn.Zxid.Epoch != ackEpoch {
				return protocolViolation(PhaseBroadcasting, "proposal epoch %d does not match ackEpoch %d", txn.Zxid.Epoch, ackEpoch)
			}
			spp.Propose(p.ctx, txn)
			cp.Propose(txn)
		case MsgCommit:
			cp.Commit(tuple.Message.Body.(*CommitPayload).Zxid)
		case MsgHeartbeat:
			p.send(Peer{Id: leaderId}, &Message{Type: MsgHeartbeat})
		case MsgQueryLeader:
			p.send(cfg.Peer(tuple.SourceId), &Message{Type: MsgQueryLeaderReply, Body: &QueryLeaderReplyPayload{Leader: p.Leader()}})
		case MsgShutDown:
			return ErrLeftCluster
		default:
			p.logger.Warnw("dropping unexpected message in follower accepting loop",
				logFields(p, "source", tuple.SourceId, "type", tuple.Message.Type.String())...)
		}
	}
}

// === Leader path ===

type discoveredFollower struct {
	peer          Peer
	proposedEpoch uint32
	ackEpoch      uint32
	lastZxid      Zxid
}

func (p *Participant) runLeader(cfg ClusterConfig) error {
	p.setRole(RoleLeading)
	interest := leaderInterest(peerIds(cfg.Peers))
	timeout := p.opts.jitteredTimeout()

	// --- DISCOVERING ---
	p.setPhase(PhaseDiscovering)
	responders := map[string]*discoveredFollower{
		p.id: {peer: cfg.Peer(p.id), proposedEpoch: p.persistence.ProposedEpoch(), ackEpoch: p.persistence.AckEpoch(),
			lastZxid: p.persistence.Log().LatestZxid()},
	}
	for len(responders) < cfg.Quorum() {
		tuple, err := p.mq.getExpectedMessage(timeout, interest, MsgProposedEpoch, "")
		if err != nil {
			return err
		}
		pe := tuple.Message.Body.(*ProposedEpochPayload)
		responders[tuple.SourceId] = &discoveredFollower{
			peer: cfg.Peer(tuple.SourceId), proposedEpoch: pe.ProposedEpoch, ackEpoch: pe.AckEpoch,
		}
	}

	newEpoch := uint32(0)
	for _, f := range responders {
		if f.proposedEpoch+1 > newEpoch {
			newEpoch = f.proposedEpoch + 1
		}
	}
	if err := p.persistence.SetProposedEpoch(newEpoch); err != nil {
		return err
	}
	for id, f := range responders {
		if id == p.id {
			continue
		}
		p.send(f.peer, &Message{Type: MsgNewEpoch, Body: &NewEpochPayload{Epoch: newEpoch}})
	}

	acked := map[string]*discoveredFollower{}
	if f, ok := responders[p.id]; ok {
		f.lastZxid = p.persistence.Log().LatestZxid()
		acked[p.id] = f
	}
	for len(acked) < cfg.Quorum() {
		tuple, err := p.mq.getExpectedMessage(timeout, interest, MsgAckEpoch, "")
		if err != nil {
			return err
		}
		f, known := responders[tuple.SourceId]
		if !known {
			continue
		}
		ae := tuple.Message.Body.(*AckEpochPayload)
		f.ackEpoch = ae.AckEpoch
		f.lastZxid = ae.LastZxid
		acked[tuple.SourceId] = f
	}

	// --- SYNCHRONIZING ---
	p.setPhase(PhaseSynchronizing)
	p.sm.Leading(cfg.Peers)

	initialOwner := selectInitialHistoryOwner(acked)
	if initialOwner.peer.Id != p.id {
		p.logger.Infow("initial history owner is a remote follower",
			logFields(p, "owner", initialOwner.peer.Id, "last_zxid", initialOwner.lastZxid.String())...)
	}
	initialLastZxid := initialOwner.lastZxid

	if err := p.persistence.SetAckEpoch(newEpoch); err != nil {
		return err
	}
	if err := p.persistence.Log().Sync(); err != nil {
		return err
	}

	newLeaderAcked := map[string]struct{}{}
	var newLeaderMu sync.Mutex
	newLeaderQuorum := make(chan struct{})
	var quorumOnce sync.Once
	newLeaderAp := newAckProcessor(p.logger, func() int { return cfg.Quorum() }, func(Zxid) {
		quorumOnce.Do(func() { close(newLeaderQuorum) })
	})
	newLeaderAp.Propose(initialLastZxid)

	for id, f := range acked {
		mode, from := selectSyncStrategy(p.persistence.Log(), initialLastZxid, f.lastZxid)
		payload := buildSyncPayload(p, newEpoch, mode, from, initialLastZxid)
		if id == p.id {
			newLeaderAp.Ack(p.id, initialLastZxid)
			newLeaderMu.Lock()
			newLeaderAcked[p.id] = struct{}{}
			newLeaderMu.Unlock()
			continue
		}
		p.send(f.peer, &Message{Type: MsgNewLeader, Body: payload})
	}

	for {
		select {
		case <-newLeaderQuorum:
		default:
			tuple, err := p.mq.getExpectedMessage(timeout, interest, MsgAck, "")
			if err != nil {
				return err
			}
			if _, known := acked[tuple.SourceId]; !known {
				continue
			}
			newLeaderAp.Ack(tuple.SourceId, initialLastZxid)
			newLeaderMu.Lock()
			newLeaderAcked[tuple.SourceId] = struct{}{}
			newLeaderMu.Unlock()
			continue
		}
		break
	}

	newLeaderMu.Lock()
	for id, f := range acked {
		if id == p.id {
			continue
		}
		if _, ok := newLeaderAcked[id]; ok {
			p.send(f.peer, &Message{Type: MsgCommit, Body: &CommitPayload{Zxid: initialLastZxid}})
		}
	}
	newLeaderMu.Unlock()
	p.deliverBacklog()

	// --- BROADCASTING ---
	p.setPhase(PhaseBroadcasting)
	cp := newCommitProcessor(p.logger, p.sm, p.lastDeliveredZxid())
	ap := newAckProcessor(p.logger, func() int { return cfg.Quorum() }, func(z Zxid) {
		cp.Commit(z)
		p.broadcast(acked, &Message{Type: MsgCommit, Body: &CommitPayload{Zxid: z}})
		p.maybeCompactLog(z)
	})
	spp := newSyncProposalProcessor(p.logger, p.persistence.Log(), p.opts.config.SyncMaxBatchSize, func(z Zxid) {
		ap.Ack(p.id, z)
	})
	pre := newPreProcessor(newEpoch, initialLastZxid.Counter,
		func(txn *Transaction) {
			p.broadcast(acked, &Message{Type: MsgProposal, Body: &ProposalPayload{Txn: txn}})
			cp.Propose(txn)
		},
		func(txn *Transaction) { spp.Propose(p.ctx, txn) },
		func(z Zxid) { ap.Propose(z) },
	)

	err := p.leaderAcceptingLoop(cfg, interest, acked, pre, ap)

	ap.Close()
	final := shutdownProcessors(spp, cp)
	p.setLastDeliveredZxid(final)
	return err
}

func buildSyncPayload(p *Participant, epoch uint32, mode SyncMode, from, to Zxid) *NewLeaderPayload {
	payload := &NewLeaderPayload{Epoch: epoch, Mode: mode, From: from, To: to}
	switch mode {
	case SyncSnapshot:
		snap, err := p.sm.Save()
		if err == nil {
			payload.Snapshot = snap
		}
		it := p.persistence.Log().Iterate(ZxidNull)
		for it.Next() {
			payload.Proposals = append(payload.Proposals, it.Transaction())
		}
	default:
		it := p.persistence.Log().Iterate(from.Next())
		for it.Next() {
			payload.Proposals = append(payload.Proposals, it.Transaction())
		}
	}
	return payload
}

func peerIds(peers []Peer) []string {
	ids := make([]string, len(peers))
	for i, p := range peers {
		ids[i] = p.Id
	}
	return ids
}

// selectInitialHistoryOwner picks the follower with the greatest
// (ackEpoch, lastZxid), tie-broken by server id ascending.
func selectInitialHistoryOwner(acked map[string]*discoveredFollower) *discoveredFollower {
	ids := make([]string, 0, len(acked))
	for id := range acked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var best *discoveredFollower
	for _, id := range ids {
		f := acked[id]
		if best == nil || f.ackEpoch > best.ackEpoch ||
			(f.ackEpoch == best.ackEpoch && f.lastZxid.Greater(best.lastZxid)) {
			best = f
		}
	}
	return best
}

func (p *Participant) leaderAcceptingLoop(cfg ClusterConfig, interest peerInterest, acked map[string]*discoveredFollower, pre *preProcessor, ap *ackProcessor) error {
	timeout := p.opts.jitteredTimeout()
	heartbeatEvery := p.opts.heartbeatInterval()
	lastHeartbeatFrom := map[string]time.Time{}
	now := time.Now()
	for id := range acked {
		if id == p.id {
			continue
		}
		lastHeartbeatFrom[id] = now
	}

	hbTicker := time.NewTicker(heartbeatEvery)
	defer hbTicker.Stop()

	for {
		select {
		case <-hbTicker.C:
			for id, f := range acked {
				if id == p.id {
					continue
				}
				p.send(f.peer, &Message{Type: MsgHeartbeat})
			}
		case req := <-p.requestCh:
			txn := pre.Accept(req.body, req.typ)
			p.logger.Debugw("accepted client request", logFields(p, "request_id", req.requestId, "zxid", txn.Zxid.String())...)
			req.result.setResult(txn, nil)
		default:
		}

		remaining := timeout
		if len(lastHeartbeatFrom) > 0 {
			remaining = timeout - time.Since(earliestHeartbeat(lastHeartbeatFrom))
		}
		if remaining <= 0 {
			return ErrTimeout
		}

		tuple, err := p.mq.getMessage(minDuration(remaining, heartbeatEvery), interest)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			return err
		}
		if tuple.Message == nil {
			continue
		}
		lastHeartbeatFrom[tuple.SourceId] = time.Now()

		switch tuple.Message.Type {
		case MsgHeartbeat:
			// liveness only, handled by the timestamp update above.
		case MsgAck:
			ap.Ack(tuple.SourceId, tuple.Message.Body.(*AckPayload).Zxid)
		case MsgRequest:
			req := tuple.Message.Body.(*RequestPayload)
			pre.Accept(req.Body, uint32(TxnCommand))
		case MsgQueryLeader:
			p.send(cfg.Peer(tuple.SourceId), &Message{Type: MsgQueryLeaderReply, Body: &QueryLeaderReplyPayload{Leader: p.Leader()}})
		case MsgShutDown:
			return ErrLeftCluster
		case MsgProposedEpoch:
			p.logger.Infow("late-joiner discovered during broadcasting; falling back to election to re-run discovery",
				logFields(p, "source", tuple.SourceId)...)
			return ErrBackToElection
		default:
			p.logger.Warnw("dropping unexpected message in leader accepting loop",
				logFields(p, "source", tuple.SourceId, "type", tuple.Message.Type.String())...)
		}
	}
}

func earliestHeartbeat(m map[string]time.Time) time.Time {
	var earliest time.Time
	for _, t := range m {
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}
	return earliest
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
