package grpctransport

import (
	"context"

	"google.golang.org/grpc"
)

// transportServer is the hand-written equivalent of a protoc-generated
// XxxServer interface: one method, because the envelope model here carries
// every MessageType through a single RPC instead of one RPC per message
// type.
type transportServer interface {
	Deliver(ctx context.Context, req *wireEnvelope) (*wireEnvelope, error)
}

func registerTransportServer(s *grpc.Server, srv transportServer) {
	s.RegisterService(&transportServiceDesc, srv)
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wireEnvelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(transportServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/zab.Transport/Deliver"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(transportServer).Deliver(ctx, req.(*wireEnvelope))
	}
	return interceptor(ctx, in, info, handler)
}

// transportServiceDesc is a hand-assembled grpc.ServiceDesc standing in for
// the output of protoc-gen-go-grpc: no .proto file is compiled, but the
// runtime shape (ServiceName, HandlerType, Methods) is exactly what codegen
// would have produced for a one-RPC service.
var transportServiceDesc = grpc.ServiceDesc{
	ServiceName: "zab.Transport",
	HandlerType: (*transportServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: deliverHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "grpctransport/transport.proto",
}
