// Package saverpc exposes the map-save trigger over gRPC. The service is a
// single unary method on empty messages; its definition lives in
// proto/mapsaver.proto and the bindings here are written to match the
// protoc-gen-go-grpc calling convention.
package saverpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

// SaveMapFullMethod is the wire name of the SaveMap method.
const SaveMapFullMethod = "/vionav.MapSaver/SaveMap"

// MapSaverServer is the server API for the MapSaver service.
type MapSaverServer interface {
	SaveMap(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

// MapSaverClient is the client API for the MapSaver service.
type MapSaverClient interface {
	SaveMap(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type mapSaverClient struct {
	cc grpc.ClientConnInterface
}

// NewMapSaverClient returns a client bound to the given connection.
func NewMapSaverClient(cc grpc.ClientConnInterface) MapSaverClient {
	return &mapSaverClient{cc: cc}
}

func (c *mapSaverClient) SaveMap(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, SaveMapFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterMapSaverServer registers the service implementation.
func RegisterMapSaverServer(s grpc.ServiceRegistrar, srv MapSaverServer) {
	s.RegisterService(&mapSaverServiceDesc, srv)
}

func saveMapHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MapSaverServer).SaveMap(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: SaveMapFullMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MapSaverServer).SaveMap(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var mapSaverServiceDesc = grpc.ServiceDesc{
	ServiceName: "vionav.MapSaver",
	HandlerType: (*MapSaverServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SaveMap",
			Handler:    saveMapHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "proto/mapsaver.proto",
}
