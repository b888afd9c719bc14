// Package blobrpc is the wire contract of the relay blob store. Messages are
// protobuf well-known types, so the service descriptor is declared here
// directly instead of being generated from a .proto file.
//
//	service BlobStore {
//	  rpc Register(google.protobuf.Struct)      returns (google.protobuf.Empty);
//	  rpc Login(google.protobuf.Struct)         returns (google.protobuf.StringValue);
//	  rpc Ping(google.protobuf.Empty)           returns (google.protobuf.StringValue);
//	  rpc Stat(google.protobuf.StringValue)     returns (google.protobuf.Struct);
//	  rpc Get(google.protobuf.StringValue)      returns (google.protobuf.BytesValue);
//	  rpc Put(google.protobuf.BytesValue)       returns (google.protobuf.Empty);
//	  rpc Delete(google.protobuf.StringValue)   returns (google.protobuf.Empty);
//	  rpc List(google.protobuf.StringValue)     returns (google.protobuf.ListValue);
//	}
//
// Put carries the object key in the blob_key request header and user
// metadata in blob_meta_* headers; Get returns metadata the same way in the
// response header.
package blobrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "notesync.relay.BlobStore"

const (
	MethodRegister = "/" + ServiceName + "/Register"
	MethodLogin    = "/" + ServiceName + "/Login"
	MethodPing     = "/" + ServiceName + "/Ping"
	MethodStat     = "/" + ServiceName + "/Stat"
	MethodGet      = "/" + ServiceName + "/Get"
	MethodPut      = "/" + ServiceName + "/Put"
	MethodDelete   = "/" + ServiceName + "/Delete"
	MethodList     = "/" + ServiceName + "/List"
)

// PublicMethods do not require an access token.
var PublicMethods = map[string]bool{
	MethodRegister: true,
	MethodLogin:    true,
	MethodPing:     true,
}

// BlobStoreServer is implemented by the relay.
type BlobStoreServer interface {
	Register(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Login(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
	Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	Stat(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Put(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
	Delete(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	List(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
}

func unary[Req, Resp any](method string, call func(BlobStoreServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BlobStoreServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(BlobStoreServer), ctx, req.(*Req))
		})
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BlobStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unary(MethodRegister, BlobStoreServer.Register)},
		{MethodName: "Login", Handler: unary(MethodLogin, BlobStoreServer.Login)},
		{MethodName: "Ping", Handler: unary(MethodPing, BlobStoreServer.Ping)},
		{MethodName: "Stat", Handler: unary(MethodStat, BlobStoreServer.Stat)},
		{MethodName: "Get", Handler: unary(MethodGet, BlobStoreServer.Get)},
		{MethodName: "Put", Handler: unary(MethodPut, BlobStoreServer.Put)},
		{MethodName: "Delete", Handler: unary(MethodDelete, BlobStoreServer.Delete)},
		{MethodName: "List", Handler: unary(MethodList, BlobStoreServer.List)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "notesync/relay/blobstore.proto",
}

func RegisterBlobStoreServer(s grpc.ServiceRegistrar, srv BlobStoreServer) {
	s.RegisterService(&ServiceDesc, srv)
}
