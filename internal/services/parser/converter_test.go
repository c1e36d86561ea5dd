package parser

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/asakaida/epiguard/internal/entities"
)

// mockRuleCompiler records compiled rule bodies and returns fixed predicates
type mockRuleCompiler struct {
	compiled []string
	result   bool
	err      error
}

func (m *mockRuleCompiler) Compile(expression string) (entities.Predicate, error) {
	m.compiled = append(m.compiled, expression)
	if m.err != nil {
		return entities.Predicate{}, m.err
	}
	result := m.result
	return entities.Predicate{
		Name: "rule(" + expression + ")",
		Fn:   func(*entities.User) bool { return result },
	}, nil
}

func TestASTToExpression_Identifier(t *testing.T) {
	expr, err := ASTToExpression(&IdentifierAST{Name: "case_view"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expr != entities.CaseView {
		t.Errorf("expected CaseView, got %#v", expr)
	}
}

func TestASTToExpression_Logical(t *testing.T) {
	ast := &LogicalAST{
		Operator: "or",
		Operands: []ExpressionAST{
			&IdentifierAST{Name: "case_view"},
			&LogicalAST{
				Operator: "and",
				Operands: []ExpressionAST{
					&IdentifierAST{Name: "bed_view"},
					&IdentifierAST{Name: "map_view"},
				},
			},
		},
	}

	expr, err := ASTToExpression(ast, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := entities.Or{Children: []entities.Expression{
		entities.CaseView,
		entities.And{Children: []entities.Expression{
			entities.BedView,
			entities.MapView,
		}},
	}}
	if !reflect.DeepEqual(expr, expected) {
		t.Errorf("expected %#v, got %#v", expected, expr)
	}
}

func TestASTToExpression_EmptyLists(t *testing.T) {
	expr, err := ASTToExpression(&LogicalAST{Operator: "and", Operands: []ExpressionAST{}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	and, ok := expr.(entities.And)
	if !ok || len(and.Children) != 0 {
		t.Errorf("expected empty And, got %#v", expr)
	}
}

func TestASTToExpression_Rule(t *testing.T) {
	rules := &mockRuleCompiler{result: true}

	expr, err := ASTToExpression(&RuleAST{Expression: `user.region == "north"`}, rules)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	predicate, ok := expr.(entities.Predicate)
	if !ok {
		t.Fatalf("expected entities.Predicate, got %T", expr)
	}
	if predicate.Name != `rule(user.region == "north")` {
		t.Errorf("unexpected predicate name: %s", predicate.Name)
	}
	if len(rules.compiled) != 1 || rules.compiled[0] != `user.region == "north"` {
		t.Errorf("unexpected compiled rules: %v", rules.compiled)
	}
}

func TestASTToExpression_RuleWithoutCompiler(t *testing.T) {
	_, err := ASTToExpression(&RuleAST{Expression: "true"}, nil)
	if err == nil {
		t.Fatal("expected error when no rule compiler is given")
	}
}

func TestASTToExpression_RuleCompileError(t *testing.T) {
	compileErr := errors.New("undeclared reference")
	rules := &mockRuleCompiler{err: compileErr}

	ast := &LogicalAST{Operator: "and", Operands: []ExpressionAST{
		&IdentifierAST{Name: "case_view"},
		&RuleAST{Expression: "nope"},
	}}

	_, err := ASTToExpression(ast, rules)
	if !errors.Is(err, compileErr) {
		t.Errorf("expected wrapped compile error, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "operand 1 of and") {
		t.Errorf("expected operand position in error, got %v", err)
	}
}

func TestASTToExpression_UnknownNode(t *testing.T) {
	if _, err := ASTToExpression(nil, nil); err == nil {
		t.Fatal("expected error for nil node")
	}
	if _, err := ASTToExpression(&LogicalAST{Operator: "xor"}, nil); err == nil {
		t.Fatal("expected error for unknown operator")
	}
}

func TestCompile(t *testing.T) {
	rules := &mockRuleCompiler{result: true}

	expr, err := Compile(`case_view and (bed_view or rule(user.region == "north"))`, rules)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	and, ok := expr.(entities.And)
	if !ok || len(and.Children) != 2 {
		t.Fatalf("expected binary And, got %#v", expr)
	}
	or, ok := and.Children[1].(entities.Or)
	if !ok || len(or.Children) != 2 {
		t.Fatalf("expected binary Or, got %#v", and.Children[1])
	}
	if _, ok := or.Children[1].(entities.Predicate); !ok {
		t.Errorf("expected predicate, got %T", or.Children[1])
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"parse error", "case_view and", "failed to parse expression"},
		{"unknown permission", "case_view and case_fly", "expression validation failed"},
		{"rule without compiler", "rule(true)", "failed to convert expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.input, nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
