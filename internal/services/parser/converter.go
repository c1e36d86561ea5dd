package parser

import (
	"fmt"

	"github.com/asakaida/epiguard/internal/entities"
)

// RuleCompiler turns the body of a rule(...) into a predicate
type RuleCompiler interface {
	Compile(expression string) (entities.Predicate, error)
}

// ASTToExpression converts a validated AST into an evaluable expression.
// rules may be nil when the expression contains no rule(...) nodes.
func ASTToExpression(ast ExpressionAST, rules RuleCompiler) (entities.Expression, error) {
	switch n := ast.(type) {
	case *IdentifierAST:
		return entities.PermissionID(n.Name), nil

	case *LogicalAST:
		children := make([]entities.Expression, 0, len(n.Operands))
		for i, operand := range n.Operands {
			child, err := ASTToExpression(operand, rules)
			if err != nil {
				return nil, fmt.Errorf("failed to convert operand %d of %s: %w", i, n.Operator, err)
			}
			children = append(children, child)
		}
		switch n.Operator {
		case "and":
			return entities.And{Children: children}, nil
		case "or":
			return entities.Or{Children: children}, nil
		default:
			return nil, fmt.Errorf("unknown logical operator: %s", n.Operator)
		}

	case *RuleAST:
		if rules == nil {
			return nil, fmt.Errorf("rule(%s) requires a rule compiler", n.Expression)
		}
		predicate, err := rules.Compile(n.Expression)
		if err != nil {
			return nil, err
		}
		return predicate, nil

	default:
		return nil, fmt.Errorf("unknown expression node: %T", ast)
	}
}

// Compile parses, validates and converts a guard expression in one step
func Compile(source string, rules RuleCompiler) (entities.Expression, error) {
	ast, err := NewParser(NewLexer(source)).Parse()
	if err != nil {
		return nil, fmt.Errorf("failed to parse expression: %w", err)
	}

	if err := NewValidator(ast).Validate(); err != nil {
		return nil, fmt.Errorf("expression validation failed: %w", err)
	}

	expr, err := ASTToExpression(ast, rules)
	if err != nil {
		return nil, fmt.Errorf("failed to convert expression: %w", err)
	}

	return expr, nil
}
