package authorization

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/asakaida/epiguard/internal/entities"
)

// CELEngine compiles CEL expressions into permission predicates.
// Expressions see a single variable "user" with the keys
// id, email, name, region, role_id, permissions and attributes.
type CELEngine struct {
	env *cel.Env
}

// NewCELEngine creates a new CEL engine with the user declaration
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("user", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CELEngine{
		env: env,
	}, nil
}

// Compile compiles expression into a named predicate.
// The expression must produce a boolean. Runtime evaluation errors make the
// predicate return false.
func (e *CELEngine) Compile(expression string) (entities.Predicate, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return entities.Predicate{}, fmt.Errorf("CEL expression is required")
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return entities.Predicate{}, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return entities.Predicate{}, fmt.Errorf("CEL expression must return boolean, got: %s", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return entities.Predicate{}, fmt.Errorf("failed to create CEL program: %w", err)
	}

	fn := func(user *entities.User) bool {
		if user == nil {
			return false
		}
		out, _, err := program.Eval(map[string]interface{}{
			"user": userActivation(user),
		})
		if err != nil {
			return false
		}
		allowed, ok := out.Value().(bool)
		return ok && allowed
	}

	return entities.When("rule("+expression+")", fn), nil
}

// ValidateExpression validates a CEL expression without building a predicate
func (e *CELEngine) ValidateExpression(expression string) error {
	_, err := e.Compile(expression)
	return err
}

// userActivation exposes the user's fields to CEL
func userActivation(user *entities.User) map[string]interface{} {
	attrs := user.Attributes
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	return map[string]interface{}{
		"id":          user.ID.String(),
		"email":       user.Email,
		"name":        user.Name,
		"region":      user.RegionCode,
		"role_id":     user.RoleID,
		"permissions": user.Permissions().Strings(),
		"attributes":  attrs,
	}
}
