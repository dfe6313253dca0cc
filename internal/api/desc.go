package api

import (
	"context"

	"google.golang.org/grpc"
)

// Service names on the wire.
const (
	SessionServiceName  = "roomchat.v1.Session"
	ChatsServiceName    = "roomchat.v1.Chats"
	MessagesServiceName = "roomchat.v1.Messages"
)

func fullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// unary builds a method descriptor that decodes Req, calls fn on the
// registered service and maps its error.
func unary[S, Req, Resp any](service, method string, fn func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, req any) (any, error) {
				out, err := fn(srv.(S), ctx, req.(*Req))
				if err != nil {
					return nil, toStatus(err)
				}
				return out, nil
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(service, method)}
			return interceptor(ctx, in, info, call)
		},
	}
}

// serverStream builds a server-streaming descriptor: one Req in, Resp
// values out until fn returns.
func serverStream[S, Req, Resp any](name string, fn func(S, *Req, grpc.ServerStreamingServer[Resp]) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(Req)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return toStatus(fn(srv.(S), in, &grpc.GenericServerStream[Req, Resp]{ServerStream: stream}))
		},
	}
}
