package parser

// ExpressionAST is the interface for all guard expression nodes
type ExpressionAST interface {
	isExpression()
}

// IdentifierAST is a permission identifier leaf
// Example: "case_view"
type IdentifierAST struct {
	Name   string
	Line   int
	Column int
}

func (a *IdentifierAST) isExpression() {}

// LogicalAST is an n-ary and/or over its operands
// Example: "case_view and bed_view and report_view", "any(case_view, bed_view)"
type LogicalAST struct {
	Operator string // "and" or "or"
	Operands []ExpressionAST
}

func (a *LogicalAST) isExpression() {}

// RuleAST is a CEL predicate over the user
// Example: `rule(user.region == "north")`
type RuleAST struct {
	Expression string
}

func (a *RuleAST) isExpression() {}
