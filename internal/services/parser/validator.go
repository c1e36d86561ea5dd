package parser

import (
	"fmt"
	"strings"

	"github.com/asakaida/epiguard/internal/entities"
)

// Validator validates a parsed guard expression against the permission vocabulary
type Validator struct {
	expr   ExpressionAST
	known  func(entities.PermissionID) bool
	errors []string
}

// NewValidator creates a new Validator using the built-in vocabulary
func NewValidator(expr ExpressionAST) *Validator {
	return &Validator{
		expr:   expr,
		known:  entities.PermissionID.Known,
		errors: []string{},
	}
}

// Validate walks the expression and returns an error listing every problem found
func (v *Validator) Validate() error {
	if v.expr == nil {
		return fmt.Errorf("validation errors:\nexpression is empty")
	}

	v.validateNode(v.expr)

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors:\n%s", strings.Join(v.errors, "\n"))
	}
	return nil
}

func (v *Validator) validateNode(node ExpressionAST) {
	switch n := node.(type) {
	case *IdentifierAST:
		if !v.known(entities.PermissionID(n.Name)) {
			v.errors = append(v.errors, fmt.Sprintf("unknown permission %q at %d:%d", n.Name, n.Line, n.Column))
		}
	case *LogicalAST:
		if n.Operator != "and" && n.Operator != "or" {
			v.errors = append(v.errors, fmt.Sprintf("unknown logical operator: %s", n.Operator))
		}
		for _, operand := range n.Operands {
			v.validateNode(operand)
		}
	case *RuleAST:
		if strings.TrimSpace(n.Expression) == "" {
			v.errors = append(v.errors, "rule expression is empty")
		}
	default:
		v.errors = append(v.errors, fmt.Sprintf("unknown expression node: %T", node))
	}
}
