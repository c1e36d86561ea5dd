package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser parses guard expressions into an AST.
//
// Grammar:
//
//	expr    = and { "or" and }
//	and     = primary { "and" primary }
//	primary = "(" expr ")" | "rule" "(" cel ")" | list | IDENTIFIER
//	list    = ("all" | "any") "(" [ expr { "," expr } ] ")"
type Parser struct {
	lexer   *Lexer
	current *Token
	peek    *Token
	errors  []string
	depth   int
}

// MaxNestingDepth bounds parenthesized and all()/any() nesting. It matches
// the depth the evaluator is willing to walk.
const MaxNestingDepth = 100

// enter records one more level of nesting and reports whether the limit
// still holds. Every successful enter must be paired with leave.
func (p *Parser) enter() bool {
	if p.depth >= MaxNestingDepth {
		p.errors = append(p.errors, fmt.Sprintf("expression nested deeper than %d levels at %d:%d",
			MaxNestingDepth, p.current.Line, p.current.Column))
		return false
	}
	p.depth++
	return true
}

func (p *Parser) leave() { p.depth-- }

// NewParser creates a new Parser
func NewParser(lexer *Lexer) *Parser {
	p := &Parser{
		lexer:  lexer,
		errors: []string{},
	}

	// Read two tokens to initialize current and peek
	p.nextToken()
	p.nextToken()

	return p
}

// nextToken advances to the next token
func (p *Parser) nextToken() {
	p.current = p.peek
	tok, err := p.lexer.NextToken()
	if err != nil {
		p.errors = append(p.errors, err.Error())
		p.peek = &Token{Type: TOKEN_EOF}
	} else {
		p.peek = tok
	}
}

func (p *Parser) currentTokenIs(t TokenType) bool {
	return p.current != nil && p.current.Type == t
}

func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peek != nil && p.peek.Type == t
}

// expectPeek checks if the next token is of the expected type and advances
func (p *Parser) expectPeek(t TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) peekError(t TokenType) {
	msg := fmt.Sprintf("expected next token to be %s, got %s instead at %d:%d",
		tokenNames[t], tokenNames[p.peek.Type], p.peek.Line, p.peek.Column)
	p.errors = append(p.errors, msg)
}

// Parse parses a complete guard expression
func (p *Parser) Parse() (ExpressionAST, error) {
	if p.currentTokenIs(TOKEN_EOF) && len(p.errors) == 0 {
		return nil, fmt.Errorf("parse errors:\nexpression is empty")
	}

	expr := p.parseOrExpression()
	if expr != nil && !p.currentTokenIs(TOKEN_EOF) {
		p.errors = append(p.errors, fmt.Sprintf("unexpected token %s at %d:%d, expected end of expression",
			tokenNames[p.current.Type], p.current.Line, p.current.Column))
	}

	if len(p.errors) > 0 {
		return nil, fmt.Errorf("parse errors:\n%s", strings.Join(p.errors, "\n"))
	}

	return expr, nil
}

// parseOrExpression parses OR expressions into one n-ary node
func (p *Parser) parseOrExpression() ExpressionAST {
	first := p.parseAndExpression()
	if first == nil {
		return nil
	}
	if !p.currentTokenIs(TOKEN_OR) {
		return first
	}

	node := &LogicalAST{Operator: "or", Operands: []ExpressionAST{first}}
	for p.currentTokenIs(TOKEN_OR) {
		p.nextToken()
		next := p.parseAndExpression()
		if next == nil {
			return nil
		}
		node.Operands = append(node.Operands, next)
	}

	return node
}

// parseAndExpression parses AND expressions into one n-ary node
func (p *Parser) parseAndExpression() ExpressionAST {
	first := p.parsePrimaryExpression()
	if first == nil {
		return nil
	}
	if !p.currentTokenIs(TOKEN_AND) {
		return first
	}

	node := &LogicalAST{Operator: "and", Operands: []ExpressionAST{first}}
	for p.currentTokenIs(TOKEN_AND) {
		p.nextToken()
		next := p.parsePrimaryExpression()
		if next == nil {
			return nil
		}
		node.Operands = append(node.Operands, next)
	}

	return node
}

// parsePrimaryExpression parses primary expressions
func (p *Parser) parsePrimaryExpression() ExpressionAST {
	switch {
	case p.currentTokenIs(TOKEN_LPAREN):
		// Grouped expression
		if !p.enter() {
			return nil
		}
		defer p.leave()
		p.nextToken()
		expr := p.parseOrExpression()
		if expr == nil {
			return nil
		}
		if !p.currentTokenIs(TOKEN_RPAREN) {
			p.errors = append(p.errors, fmt.Sprintf("expected ')' at %d:%d", p.current.Line, p.current.Column))
			return nil
		}
		p.nextToken()
		return expr

	case p.currentTokenIs(TOKEN_RULE):
		return p.parseRuleExpression()

	case p.currentTokenIs(TOKEN_IDENTIFIER):
		name := p.current.Value
		if (name == "all" || name == "any") && p.peekTokenIs(TOKEN_LPAREN) {
			return p.parseListExpression(name)
		}

		ident := &IdentifierAST{Name: name, Line: p.current.Line, Column: p.current.Column}
		p.nextToken()
		return ident

	default:
		p.errors = append(p.errors, fmt.Sprintf("unexpected token %s in expression at %d:%d",
			tokenNames[p.current.Type], p.current.Line, p.current.Column))
		return nil
	}
}

// parseListExpression parses all(...) and any(...)
func (p *Parser) parseListExpression(name string) ExpressionAST {
	operator := "and"
	if name == "any" {
		operator = "or"
	}
	node := &LogicalAST{Operator: operator, Operands: []ExpressionAST{}}
	if !p.enter() {
		return nil
	}
	defer p.leave()

	p.nextToken() // consume name, current is (
	p.nextToken() // consume (

	if p.currentTokenIs(TOKEN_RPAREN) {
		p.nextToken()
		return node
	}

	for {
		operand := p.parseOrExpression()
		if operand == nil {
			return nil
		}
		node.Operands = append(node.Operands, operand)

		if p.currentTokenIs(TOKEN_COMMA) {
			p.nextToken()
			continue
		}
		if p.currentTokenIs(TOKEN_RPAREN) {
			p.nextToken()
			return node
		}
		p.errors = append(p.errors, fmt.Sprintf("expected ',' or ')' in %s() at %d:%d",
			name, p.current.Line, p.current.Column))
		return nil
	}
}

// parseRuleExpression parses a rule() expression
func (p *Parser) parseRuleExpression() ExpressionAST {
	// Expect (
	if !p.expectPeek(TOKEN_LPAREN) {
		return nil
	}

	// Read the CEL expression until the matching )
	p.nextToken()
	var expressionParts []string
	parenCount := 1
	prevToken := &Token{Type: TOKEN_LPAREN}

	for parenCount > 0 && !p.currentTokenIs(TOKEN_EOF) {
		if p.currentTokenIs(TOKEN_LPAREN) {
			parenCount++
		} else if p.currentTokenIs(TOKEN_RPAREN) {
			parenCount--
			if parenCount == 0 {
				break
			}
		}

		tokenValue := p.current.Value
		if p.current.Type == TOKEN_STRING {
			tokenValue = celStringLiteral(p.current)
		}

		if len(expressionParts) > 0 && needsSpaceBefore(prevToken, p.current) {
			expressionParts = append(expressionParts, " ")
		}

		expressionParts = append(expressionParts, tokenValue)
		prevToken = p.current
		p.nextToken()
	}

	if !p.currentTokenIs(TOKEN_RPAREN) {
		p.errors = append(p.errors, "expected ')' at end of rule expression")
		return nil
	}
	if len(expressionParts) == 0 {
		p.errors = append(p.errors, fmt.Sprintf("empty rule expression at %d:%d", p.current.Line, p.current.Column))
		return nil
	}

	p.nextToken()
	return &RuleAST{
		Expression: strings.Join(expressionParts, ""),
	}
}

// celStringLiteral renders a string token for CEL. Plain literals are
// normalized to double quotes; literals carrying escapes are passed through
// as written so CEL decodes them itself.
func celStringLiteral(tok *Token) string {
	if tok.Raw == "" || !strings.Contains(tok.Raw, `\`) {
		return strconv.Quote(tok.Value)
	}
	return tok.Raw
}

// needsSpaceBefore determines if a space is needed between two tokens
func needsSpaceBefore(prev, current *Token) bool {
	// No space after opening paren or before closing paren
	if prev.Type == TOKEN_LPAREN || current.Type == TOKEN_RPAREN {
		return false
	}
	// No space before/after dot
	if prev.Type == TOKEN_DOT || current.Type == TOKEN_DOT {
		return false
	}
	// No space before comma
	if current.Type == TOKEN_COMMA {
		return false
	}
	// No space after unary not
	if prev.Type == TOKEN_EXCLAMATION {
		return false
	}
	// Function calls and indexing: "size(" and "x[", but not "in ["
	if (current.Type == TOKEN_LPAREN || current.Type == TOKEN_LBRACKET) && prev.Type == TOKEN_IDENTIFIER && prev.Value != "in" {
		return false
	}
	if current.Type == TOKEN_RBRACKET || prev.Type == TOKEN_LBRACKET {
		return false
	}
	return true
}
