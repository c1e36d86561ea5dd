package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/asakaida/epiguard/internal/entities"
	"github.com/asakaida/epiguard/internal/services/authorization"
	"github.com/asakaida/epiguard/internal/services/parser"
)

// Mock Checker
type mockChecker struct {
	checkFunc         func(ctx context.Context, req *authorization.CheckRequest) (*authorization.CheckResponse, error)
	checkMultipleFunc func(ctx context.Context, userID uuid.UUID, checks map[string]string) (map[string]bool, error)
	explainFunc       func(ctx context.Context, req *authorization.CheckRequest) (*authorization.TraceNode, error)
	effectiveFunc     func(ctx context.Context, userID uuid.UUID) (*entities.PermissionSet, error)
}

func (m *mockChecker) Check(ctx context.Context, req *authorization.CheckRequest) (*authorization.CheckResponse, error) {
	if m.checkFunc != nil {
		return m.checkFunc(ctx, req)
	}
	return &authorization.CheckResponse{}, nil
}

func (m *mockChecker) CheckMultiple(ctx context.Context, userID uuid.UUID, checks map[string]string) (map[string]bool, error) {
	if m.checkMultipleFunc != nil {
		return m.checkMultipleFunc(ctx, userID, checks)
	}
	return map[string]bool{}, nil
}

func (m *mockChecker) Explain(ctx context.Context, req *authorization.CheckRequest) (*authorization.TraceNode, error) {
	if m.explainFunc != nil {
		return m.explainFunc(ctx, req)
	}
	return &authorization.TraceNode{Kind: authorization.NodeInvalid}, nil
}

func (m *mockChecker) EffectivePermissions(ctx context.Context, userID uuid.UUID) (*entities.PermissionSet, error) {
	if m.effectiveFunc != nil {
		return m.effectiveFunc(ctx, userID)
	}
	return entities.NewPermissionSet(), nil
}

func (m *mockChecker) Compile(expression string) (entities.Expression, error) {
	return parser.Compile(expression, nil)
}

// Mock RoleService
type mockRoleService struct {
	setFunc    func(ctx context.Context, roleID int64, ids []entities.PermissionID) (*entities.PermissionSet, error)
	assignFunc func(ctx context.Context, userID uuid.UUID, roleID int64) error
}

func (m *mockRoleService) SetRolePermissions(ctx context.Context, roleID int64, ids []entities.PermissionID) (*entities.PermissionSet, error) {
	if m.setFunc != nil {
		return m.setFunc(ctx, roleID, ids)
	}
	return entities.NewPermissionSet(ids...), nil
}

func (m *mockRoleService) AssignRole(ctx context.Context, userID uuid.UUID, roleID int64) error {
	if m.assignFunc != nil {
		return m.assignFunc(ctx, userID, roleID)
	}
	return nil
}

func (m *mockRoleService) RoleChanged(ctx context.Context, roleID int64) error {
	return nil
}
