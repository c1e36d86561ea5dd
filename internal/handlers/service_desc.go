package handlers

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// AccessServiceName is the fully qualified gRPC service name
const AccessServiceName = "epiguard.v1.AccessService"

// AccessServiceServer is the server API for the access service.
// Requests and responses are google.protobuf.Struct messages.
type AccessServiceServer interface {
	Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CheckMultiple(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Explain(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetEffectivePermissions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ValidateExpression(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SetRolePermissions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AssignRole(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv AccessServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + AccessServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AccessServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(AccessServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// AccessServiceDesc describes the access service for grpc.Server registration
var AccessServiceDesc = grpc.ServiceDesc{
	ServiceName: AccessServiceName,
	HandlerType: (*AccessServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Check", AccessServiceServer.Check),
		unaryHandler("CheckMultiple", AccessServiceServer.CheckMultiple),
		unaryHandler("Explain", AccessServiceServer.Explain),
		unaryHandler("GetEffectivePermissions", AccessServiceServer.GetEffectivePermissions),
		unaryHandler("ValidateExpression", AccessServiceServer.ValidateExpression),
		unaryHandler("SetRolePermissions", AccessServiceServer.SetRolePermissions),
		unaryHandler("AssignRole", AccessServiceServer.AssignRole),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "epiguard/v1/access.proto",
}

// RegisterAccessServiceServer registers the access service on s
func RegisterAccessServiceServer(s grpc.ServiceRegistrar, srv AccessServiceServer) {
	s.RegisterService(&AccessServiceDesc, srv)
}
