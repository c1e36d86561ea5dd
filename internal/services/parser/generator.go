package parser

import (
	"strings"

	"github.com/asakaida/epiguard/internal/entities"
)

// Generator renders expressions back to guard DSL text
type Generator struct{}

// NewGenerator creates a new Generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders an AST as DSL text
func (g *Generator) Generate(ast ExpressionAST) string {
	switch n := ast.(type) {
	case *IdentifierAST:
		return n.Name
	case *RuleAST:
		return "rule(" + n.Expression + ")"
	case *LogicalAST:
		parts := make([]string, 0, len(n.Operands))
		for _, operand := range n.Operands {
			wrap := len(n.Operands) > 1 && isOr(operand)
			parts = append(parts, g.generateOperand(n.Operator, g.Generate(operand), wrap))
		}
		return g.join(n.Operator, parts)
	default:
		return ""
	}
}

// Format renders an evaluable expression as DSL text.
// Named predicates render as their name; unnamed ones as "<predicate>".
func (g *Generator) Format(expr entities.Expression) string {
	switch e := expr.(type) {
	case entities.PermissionID:
		return string(e)
	case entities.Identifier:
		return string(e.ID)
	case *entities.Identifier:
		if e == nil {
			return "<invalid>"
		}
		return string(e.ID)
	case entities.PredicateFunc:
		return "<predicate>"
	case entities.Predicate:
		return predicateName(e)
	case *entities.Predicate:
		if e == nil {
			return "<invalid>"
		}
		return predicateName(*e)
	case entities.And:
		return g.formatList("and", e.Children)
	case *entities.And:
		if e == nil {
			return "<invalid>"
		}
		return g.formatList("and", e.Children)
	case entities.Or:
		return g.formatList("or", e.Children)
	case *entities.Or:
		if e == nil {
			return "<invalid>"
		}
		return g.formatList("or", e.Children)
	default:
		return "<invalid>"
	}
}

func (g *Generator) formatList(operator string, children []entities.Expression) string {
	parts := make([]string, 0, len(children))
	for _, child := range children {
		_, childIsOr := child.(entities.Or)
		wrap := len(children) > 1 && childIsOr
		parts = append(parts, g.generateOperand(operator, g.Format(child), wrap))
	}
	return g.join(operator, parts)
}

// generateOperand parenthesizes an or-operand inside an and
func (g *Generator) generateOperand(operator, text string, operandIsOr bool) string {
	if operator == "and" && operandIsOr && !strings.HasPrefix(text, "any(") {
		return "(" + text + ")"
	}
	return text
}

func (g *Generator) join(operator string, parts []string) string {
	switch len(parts) {
	case 0:
		if operator == "and" {
			return "all()"
		}
		return "any()"
	case 1:
		if operator == "and" {
			return "all(" + parts[0] + ")"
		}
		return "any(" + parts[0] + ")"
	default:
		return strings.Join(parts, " "+operator+" ")
	}
}

func isOr(ast ExpressionAST) bool {
	n, ok := ast.(*LogicalAST)
	return ok && n.Operator == "or"
}

func predicateName(p entities.Predicate) string {
	if p.Name == "" {
		return "<predicate>"
	}
	return p.Name
}
