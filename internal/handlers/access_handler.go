package handlers

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/epiguard/internal/entities"
	"github.com/asakaida/epiguard/internal/services"
	"github.com/asakaida/epiguard/internal/services/authorization"
	"github.com/asakaida/epiguard/internal/services/parser"
)

// AccessHandler handles AccessService gRPC requests
type AccessHandler struct {
	checker   authorization.CheckerInterface
	roles     services.RoleServiceInterface
	generator *parser.Generator
	logger    *slog.Logger
}

var _ AccessServiceServer = (*AccessHandler)(nil)

// NewAccessHandler creates a new AccessHandler
func NewAccessHandler(
	checker authorization.CheckerInterface,
	roles services.RoleServiceInterface,
	logger *slog.Logger,
) *AccessHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessHandler{
		checker:   checker,
		roles:     roles,
		generator: parser.NewGenerator(),
		logger:    logger,
	}
}

// Check handles the Check RPC.
// Request: {"user_id": "<uuid>", "expression": "case_view and bed_view"}
// Response: {"allowed": bool, "fingerprint": "<hex>"}
func (h *AccessHandler) Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := requireUserID(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	expression, err := requireString(req, "expression")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	resp, err := h.checker.Check(ctx, &authorization.CheckRequest{
		UserID:     userID,
		Expression: expression,
	})
	if err != nil {
		return nil, toStatusError("check failed", err)
	}

	return newResponse(map[string]interface{}{
		"allowed":     resp.Allowed,
		"fingerprint": resp.Fingerprint.String(),
	})
}

// CheckMultiple handles the CheckMultiple RPC.
// Request: {"user_id": "<uuid>", "checks": {"name": "expression", ...}}
// Response: {"results": {"name": bool, ...}}
func (h *AccessHandler) CheckMultiple(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := requireUserID(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	checks, err := stringMap(req, "checks")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	results, err := h.checker.CheckMultiple(ctx, userID, checks)
	if err != nil {
		return nil, toStatusError("check multiple failed", err)
	}

	out := make(map[string]interface{}, len(results))
	for name, allowed := range results {
		out[name] = allowed
	}

	return newResponse(map[string]interface{}{
		"results": out,
	})
}

// Explain handles the Explain RPC.
// Response: {"allowed": bool, "trace": {...}}
func (h *AccessHandler) Explain(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := requireUserID(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	expression, err := requireString(req, "expression")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	trace, err := h.checker.Explain(ctx, &authorization.CheckRequest{
		UserID:     userID,
		Expression: expression,
	})
	if err != nil {
		return nil, toStatusError("explain failed", err)
	}

	return newResponse(map[string]interface{}{
		"allowed": trace.Result,
		"trace":   traceToMap(trace),
	})
}

// GetEffectivePermissions handles the GetEffectivePermissions RPC.
// Response: {"permissions": [...], "fingerprint": "<hex>"}
func (h *AccessHandler) GetEffectivePermissions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := requireUserID(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	set, err := h.checker.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, toStatusError("failed to get effective permissions", err)
	}

	return newResponse(map[string]interface{}{
		"permissions": permissionList(set),
		"fingerprint": set.Fingerprint().String(),
	})
}

// ValidateExpression handles the ValidateExpression RPC.
// Invalid expressions are reported in the response, not as an RPC error.
// Response: {"valid": bool, "error": "...", "normalized": "..."}
func (h *AccessHandler) ValidateExpression(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	expression, err := requireString(req, "expression")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	ast, err := parser.NewParser(parser.NewLexer(expression)).Parse()
	if err == nil {
		err = parser.NewValidator(ast).Validate()
	}
	if err == nil {
		_, err = h.checker.Compile(expression)
	}
	if err != nil {
		return newResponse(map[string]interface{}{
			"valid": false,
			"error": err.Error(),
		})
	}

	return newResponse(map[string]interface{}{
		"valid":      true,
		"normalized": h.generator.Generate(ast),
	})
}

// SetRolePermissions handles the SetRolePermissions RPC.
// Request: {"role_id": 1, "permissions": ["case_all", ...]}
// Response: {"permissions": [...effective...], "fingerprint": "<hex>"}
func (h *AccessHandler) SetRolePermissions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	roleID, err := optionalRoleID(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if roleID == 0 {
		return nil, status.Error(codes.InvalidArgument, "role_id is required")
	}
	raw, err := stringList(req, "permissions")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	set, err := h.roles.SetRolePermissions(ctx, roleID, entities.PermissionIDs(raw...))
	if err != nil {
		return nil, toStatusError("failed to set role permissions", err)
	}

	return newResponse(map[string]interface{}{
		"permissions": permissionList(set),
		"fingerprint": set.Fingerprint().String(),
	})
}

// AssignRole handles the AssignRole RPC.
// Request: {"user_id": "<uuid>", "role_id": 1}. A missing or zero role_id removes the role.
func (h *AccessHandler) AssignRole(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := requireUserID(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	roleID, err := optionalRoleID(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err := h.roles.AssignRole(ctx, userID, roleID); err != nil {
		return nil, toStatusError("failed to assign role", err)
	}

	h.logger.Debug("role assignment handled", "user_id", userID, "role_id", roleID)
	return newResponse(map[string]interface{}{})
}
