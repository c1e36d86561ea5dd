package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/epiguard/internal/entities"
	"github.com/asakaida/epiguard/internal/repositories"
	"github.com/asakaida/epiguard/internal/services/authorization"
)

// === Shared Helper Functions for all handlers ===

func requireString(req *structpb.Struct, field string) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is required")
	}
	v, ok := req.GetFields()[field]
	if !ok {
		return "", fmt.Errorf("%s is required", field)
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%s must be a string", field)
	}
	if strings.TrimSpace(s.StringValue) == "" {
		return "", fmt.Errorf("%s is required", field)
	}
	return s.StringValue, nil
}

func requireUserID(req *structpb.Struct) (uuid.UUID, error) {
	raw, err := requireString(req, "user_id")
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user_id is invalid: %v", err)
	}
	return id, nil
}

// optionalRoleID reads role_id as a number or a decimal string. Missing means 0.
func optionalRoleID(req *structpb.Struct) (int64, error) {
	v, ok := req.GetFields()["role_id"]
	if !ok {
		return 0, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n < 0 || n != float64(int64(n)) {
			return 0, fmt.Errorf("role_id is invalid: %v", n)
		}
		return int64(n), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(kind.StringValue, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("role_id is invalid: %q", kind.StringValue)
		}
		return n, nil
	case *structpb.Value_NullValue:
		return 0, nil
	default:
		return 0, fmt.Errorf("role_id must be a number")
	}
}

func stringList(req *structpb.Struct, field string) ([]string, error) {
	v, ok := req.GetFields()[field]
	if !ok {
		return nil, nil
	}
	list, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, fmt.Errorf("%s must be a list", field)
	}
	values := list.ListValue.GetValues()
	result := make([]string, 0, len(values))
	for i, item := range values {
		s, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string", field, i)
		}
		result = append(result, s.StringValue)
	}
	return result, nil
}

func stringMap(req *structpb.Struct, field string) (map[string]string, error) {
	v, ok := req.GetFields()[field]
	if !ok {
		return nil, fmt.Errorf("%s is required", field)
	}
	s, ok := v.GetKind().(*structpb.Value_StructValue)
	if !ok {
		return nil, fmt.Errorf("%s must be an object", field)
	}
	result := make(map[string]string, len(s.StructValue.GetFields()))
	for name, item := range s.StructValue.GetFields() {
		expr, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%s.%s must be a string", field, name)
		}
		result[name] = expr.StringValue
	}
	return result, nil
}

func permissionList(set *entities.PermissionSet) []interface{} {
	members := set.Strings()
	list := make([]interface{}, len(members))
	for i, m := range members {
		list[i] = m
	}
	return list
}

func traceToMap(node *authorization.TraceNode) map[string]interface{} {
	if node == nil {
		return nil
	}

	result := map[string]interface{}{
		"kind":    node.Kind,
		"result":  node.Result,
		"skipped": node.Skipped,
	}
	if node.Permission != "" {
		result["permission"] = string(node.Permission)
	}
	if node.Name != "" {
		result["name"] = node.Name
	}
	if len(node.Children) > 0 {
		children := make([]interface{}, len(node.Children))
		for i, child := range node.Children {
			children[i] = traceToMap(child)
		}
		result["children"] = children
	}
	return result
}

func newResponse(fields map[string]interface{}) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to build response: %v", err)
	}
	return resp, nil
}

// toStatusError maps service errors onto gRPC status codes
func toStatusError(op string, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return status.Errorf(codes.NotFound, "%s: %v", op, err)
	}

	if containsAny(err.Error(), "is required", "is invalid", "invalid expression", "must be") {
		return status.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	}

	return status.Errorf(codes.Internal, "%s: %v", op, err)
}

func containsAny(str string, substrs ...string) bool {
	for _, substr := range substrs {
		if strings.Contains(str, substr) {
			return true
		}
	}
	return false
}
