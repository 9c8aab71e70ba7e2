// Package observer serves the replication and history RPCs spectators and
// tooling use to follow a game.
//
// Requests are google.protobuf.Struct messages and responses wrap the JSON
// packet and history encodings in google.protobuf.BytesValue.
package observer

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "rulecore.engine.v1.ObserverService"

const (
	SnapshotMethod = "/" + ServiceName + "/Snapshot"
	VerifyMethod   = "/" + ServiceName + "/Verify"
	WatchMethod    = "/" + ServiceName + "/Watch"
	HistoryMethod  = "/" + ServiceName + "/History"
)

// ObserverServer is the server API for the observer service.
type ObserverServer interface {
	// Snapshot returns the bootstrap packet an observer would receive on
	// joining.
	Snapshot(context.Context, *structpb.Struct) (*wrapperspb.BytesValue, error)
	// Verify checks the stored history chain of a game.
	Verify(context.Context, *structpb.Struct) (*wrapperspb.BytesValue, error)
	// Watch streams the bootstrap packet and every later packet.
	Watch(*structpb.Struct, grpc.ServerStream) error
	// History streams stored history entries after a sequence number.
	History(*structpb.Struct, grpc.ServerStream) error
}

// ServiceDesc describes the observer service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ObserverServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Snapshot", Handler: unaryHandler(SnapshotMethod, ObserverServer.Snapshot)},
		{MethodName: "Verify", Handler: unaryHandler(VerifyMethod, ObserverServer.Verify)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: streamHandler(ObserverServer.Watch), ServerStreams: true},
		{StreamName: "History", Handler: streamHandler(ObserverServer.History), ServerStreams: true},
	},
	Metadata: "rulecore/engine/v1/observer.proto",
}

// Register installs srv on s.
func Register(s grpc.ServiceRegistrar, srv ObserverServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryMethod func(ObserverServer, context.Context, *structpb.Struct) (*wrapperspb.BytesValue, error)

func unaryHandler(fullMethod string, method unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(ObserverServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(srv.(ObserverServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type streamMethod func(ObserverServer, *structpb.Struct, grpc.ServerStream) error

func streamHandler(method streamMethod) grpc.StreamHandler {
	return func(srv any, stream grpc.ServerStream) error {
		in := new(structpb.Struct)
		if err := stream.RecvMsg(in); err != nil {
			return err
		}
		return method(srv.(ObserverServer), in, stream)
	}
}
