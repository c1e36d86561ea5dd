package handlers

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/epiguard/internal/services/authorization"
)

func startTestServer(t *testing.T, srv AccessServiceServer, opts ...grpc.ServerOption) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer(opts...)
	RegisterAccessServiceServer(server, srv)

	go func() {
		_ = server.Serve(lis)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func TestAccessServiceDesc_CheckOverGRPC(t *testing.T) {
	checker := &mockChecker{
		checkFunc: func(ctx context.Context, req *authorization.CheckRequest) (*authorization.CheckResponse, error) {
			return &authorization.CheckResponse{Allowed: req.Expression == "case_view"}, nil
		},
	}

	var intercepted string
	interceptor := func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		intercepted = info.FullMethod
		return handler(ctx, req)
	}

	conn := startTestServer(t, NewAccessHandler(checker, &mockRoleService{}, nil), grpc.UnaryInterceptor(interceptor))

	req := mustStruct(t, map[string]interface{}{
		"user_id":    testUserID,
		"expression": "case_view",
	})
	resp := new(structpb.Struct)
	if err := conn.Invoke(context.Background(), "/epiguard.v1.AccessService/Check", req, resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !resp.Fields["allowed"].GetBoolValue() {
		t.Error("expected allowed to be true")
	}
	if intercepted != "/epiguard.v1.AccessService/Check" {
		t.Errorf("expected interceptor to see Check, got %q", intercepted)
	}
}

func TestAccessServiceDesc_Methods(t *testing.T) {
	want := map[string]bool{
		"Check":                   true,
		"CheckMultiple":           true,
		"Explain":                 true,
		"GetEffectivePermissions": true,
		"ValidateExpression":      true,
		"SetRolePermissions":      true,
		"AssignRole":              true,
	}

	if len(AccessServiceDesc.Methods) != len(want) {
		t.Fatalf("expected %d methods, got %d", len(want), len(AccessServiceDesc.Methods))
	}
	for _, m := range AccessServiceDesc.Methods {
		if !want[m.MethodName] {
			t.Errorf("unexpected method %s", m.MethodName)
		}
	}
}
