package grpctransport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/kzab/zab"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// client wraps one outbound connection. There is no generated stub; calls
// go through conn.Invoke directly with the msgpack codec forced by call
// option.
type client struct {
	conn *grpc.ClientConn
}

// Transport implements zab.Transport over gRPC: lazy-connect, one Deliver
// RPC carrying a msgpack wireEnvelope in place of a generated protobuf
// message per message type.
type Transport struct {
	selfId string
	logger *zap.SugaredLogger

	listener net.Listener
	server   *grpc.Server
	serveFlag uint32

	inbox chan zab.MessageTuple

	mu      sync.RWMutex
	clients map[string]*client
	cleared map[string]struct{}
}

// New binds listenAddr and returns a Transport ready to Serve. selfId is
// stamped into every outgoing envelope so the receiver's Inbox can tag the
// source, matching the SourceId field zab.MessageTuple requires.
func New(selfId, listenAddr string, logger *zap.SugaredLogger) (*Transport, error) {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}
	return &Transport{
		selfId:   selfId,
		logger:   logger,
		listener: listener,
		inbox:    make(chan zab.MessageTuple, 256),
		clients:  map[string]*client{},
		cleared:  map[string]struct{}{},
	}, nil
}

// Endpoint returns the address this transport actually bound, useful when
// listenAddr was "host:0".
func (t *Transport) Endpoint() string { return t.listener.Addr().String() }

func (t *Transport) Deliver(ctx context.Context, req *wireEnvelope) (*wireEnvelope, error) {
	msg, err := decodeMessage(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	select {
	case t.inbox <- zab.MessageTuple{SourceId: req.SourceId, Message: msg}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &wireEnvelope{SourceId: t.selfId}, nil
}

func (t *Transport) Inbox() <-chan zab.MessageTuple { return t.inbox }

func (t *Transport) connectLocked(peer zab.Peer) (*client, error) {
	if c, ok := t.clients[peer.Id]; ok {
		return c, nil
	}
	conn, err := grpc.NewClient(peer.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	c := &client{conn: conn}
	t.clients[peer.Id] = c
	delete(t.cleared, peer.Id)
	go t.watchDisconnect(peer.Id, conn)
	return c, nil
}

// watchDisconnect watches the connection's state proactively: rather than
// discovering the break on the next call, it injects the synthetic
// DISCONNECTED(peerId) tuple as soon as the channel enters
// TRANSIENT_FAILURE or SHUTDOWN.
func (t *Transport) watchDisconnect(peerId string, conn *grpc.ClientConn) {
	state := conn.GetState()
	for state != connectivity.Shutdown {
		if !conn.WaitForStateChange(context.Background(), state) {
			return
		}
		state = conn.GetState()
		if state == connectivity.TransientFailure || state == connectivity.Shutdown {
			t.mu.RLock()
			_, stillOurs := t.clients[peerId]
			_, wasCleared := t.cleared[peerId]
			t.mu.RUnlock()
			if stillOurs && !wasCleared {
				select {
				case t.inbox <- zab.MessageTuple{Disconnected: peerId}:
				default:
				}
			}
			return
		}
	}
}

func (t *Transport) Connect(peer zab.Peer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.connectLocked(peer)
	return err
}

// Clear tears down peer's connection and marks it as an operator-requested
// disconnect, so watchDisconnect's own notification doesn't fire a second
// time for the same event.
func (t *Transport) Clear(peer zab.Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleared[peer.Id] = struct{}{}
	if c, ok := t.clients[peer.Id]; ok {
		delete(t.clients, peer.Id)
		c.conn.Close()
	}
}

func (t *Transport) Send(ctx context.Context, peer zab.Peer, msg *zab.Message) error {
	t.mu.Lock()
	c, err := t.connectLocked(peer)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	env, err := encodeMessage(t.selfId, msg)
	if err != nil {
		return err
	}
	requestId := uuid.NewString()
	ctx = metadata.AppendToOutgoingContext(ctx, "request-id", requestId)
	out := new(wireEnvelope)
	if err := c.conn.Invoke(ctx, "/zab.Transport/Deliver", env, out, grpc.CallContentSubtype(codecName)); err != nil {
		if st, ok := status.FromError(err); ok && (st.Code() == codes.Unavailable || st.Code() == codes.Canceled) {
			t.Clear(peer)
		}
		t.logger.Debugw("send failed", "peer", peer.Id, "type", msg.Type.String(), "request_id", requestId, "error", err)
		return fmt.Errorf("grpctransport: send to %s: %w", peer.Id, err)
	}
	return nil
}

func (t *Transport) Serve() error {
	if !atomic.CompareAndSwapUint32(&t.serveFlag, 0, 1) {
		panic("grpctransport: Serve() should be only called once")
	}
	t.server = grpc.NewServer()
	registerTransportServer(t.server, t)
	t.logger.Infow("transport listening", "addr", t.listener.Addr().String())
	return t.server.Serve(t.listener)
}

func (t *Transport) Close() error {
	t.mu.Lock()
	for id, c := range t.clients {
		c.conn.Close()
		delete(t.clients, id)
	}
	t.mu.Unlock()
	if t.server != nil {
		t.server.GracefulStop()
	}
	return nil
}
