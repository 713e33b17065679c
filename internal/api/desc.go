package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "imcoach.v1.CoachService"

const (
	methodGetStatus        = "/" + ServiceName + "/GetStatus"
	methodListSessions     = "/" + ServiceName + "/ListSessions"
	methodActivateSession  = "/" + ServiceName + "/ActivateSession"
	methodEndSession       = "/" + ServiceName + "/EndSession"
	methodSendMessage      = "/" + ServiceName + "/SendMessage"
	methodRecentDeliveries = "/" + ServiceName + "/RecentDeliveries"
	methodWatch            = "/" + ServiceName + "/Watch"
)

// CoachServiceServer is the server API for the coach control service.
type CoachServiceServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListSessions(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ActivateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EndSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecentDeliveries(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Watch(*structpb.Struct, CoachService_WatchServer) error
}

// CoachService_WatchServer is the server side of the Watch stream.
type CoachService_WatchServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchServer struct {
	grpc.ServerStream
}

func (x *watchServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

// RegisterCoachServiceServer registers srv on s.
func RegisterCoachServiceServer(s grpc.ServiceRegistrar, srv CoachServiceServer) {
	s.RegisterService(&coachServiceDesc, srv)
}

var coachServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CoachServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: unary(methodGetStatus, newEmpty, CoachServiceServer.GetStatus)},
		{MethodName: "ListSessions", Handler: unary(methodListSessions, newEmpty, CoachServiceServer.ListSessions)},
		{MethodName: "ActivateSession", Handler: unary(methodActivateSession, newStruct, CoachServiceServer.ActivateSession)},
		{MethodName: "EndSession", Handler: unary(methodEndSession, newStruct, CoachServiceServer.EndSession)},
		{MethodName: "SendMessage", Handler: unary(methodSendMessage, newStruct, CoachServiceServer.SendMessage)},
		{MethodName: "RecentDeliveries", Handler: unary(methodRecentDeliveries, newStruct, CoachServiceServer.RecentDeliveries)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "imcoach/v1/coach.proto",
}

func newEmpty() *emptypb.Empty    { return new(emptypb.Empty) }
func newStruct() *structpb.Struct { return new(structpb.Struct) }

// unary builds a grpc.MethodDesc handler for a method taking Req.
func unary[Req any](fullMethod string, newReq func() Req, call func(CoachServiceServer, context.Context, Req) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CoachServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CoachServiceServer), ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CoachServiceServer).Watch(in, &watchServer{stream})
}
