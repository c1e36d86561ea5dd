package parser

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a token
type TokenType int

const (
	TOKEN_ILLEGAL TokenType = iota
	TOKEN_EOF

	// Identifiers and literals
	TOKEN_IDENTIFIER
	TOKEN_STRING // String literals (quoted)

	// Keywords
	TOKEN_RULE
	TOKEN_OR
	TOKEN_AND

	// Operators only meaningful inside rule(...)
	TOKEN_EQ          // ==
	TOKEN_NEQ         // !=
	TOKEN_LT          // <
	TOKEN_LTE         // <=
	TOKEN_GT          // >
	TOKEN_GTE         // >=
	TOKEN_LOGICAL_AND // &&
	TOKEN_LOGICAL_OR  // ||
	TOKEN_EXCLAMATION // !
	TOKEN_QUESTION    // ?
	TOKEN_COLON       // :
	TOKEN_PLUS        // +
	TOKEN_MINUS       // -

	// Delimiters
	TOKEN_LPAREN
	TOKEN_RPAREN
	TOKEN_LBRACKET
	TOKEN_RBRACKET
	TOKEN_DOT
	TOKEN_COMMA
)

var tokenNames = map[TokenType]string{
	TOKEN_ILLEGAL:     "ILLEGAL",
	TOKEN_EOF:         "EOF",
	TOKEN_IDENTIFIER:  "IDENTIFIER",
	TOKEN_STRING:      "STRING",
	TOKEN_RULE:        "rule",
	TOKEN_OR:          "or",
	TOKEN_AND:         "and",
	TOKEN_EQ:          "==",
	TOKEN_NEQ:         "!=",
	TOKEN_LT:          "<",
	TOKEN_LTE:         "<=",
	TOKEN_GT:          ">",
	TOKEN_GTE:         ">=",
	TOKEN_LOGICAL_AND: "&&",
	TOKEN_LOGICAL_OR:  "||",
	TOKEN_EXCLAMATION: "!",
	TOKEN_QUESTION:    "?",
	TOKEN_COLON:       ":",
	TOKEN_PLUS:        "+",
	TOKEN_MINUS:       "-",
	TOKEN_LPAREN:      "(",
	TOKEN_RPAREN:      ")",
	TOKEN_LBRACKET:    "[",
	TOKEN_RBRACKET:    "]",
	TOKEN_DOT:         ".",
	TOKEN_COMMA:       ",",
}

var keywords = map[string]TokenType{
	"rule": TOKEN_RULE,
	"or":   TOKEN_OR,
	"and":  TOKEN_AND,
}

// Token represents a lexical token
type Token struct {
	Type   TokenType
	Value  string
	Raw    string // source text of a string literal, quotes included
	Line   int
	Column int
}

// String returns a string representation of the token
func (t *Token) String() string {
	typeName := tokenNames[t.Type]
	if typeName == "" {
		typeName = fmt.Sprintf("UNKNOWN(%d)", t.Type)
	}
	return fmt.Sprintf("%s(%s) at %d:%d", typeName, t.Value, t.Line, t.Column)
}

// Lexer performs lexical analysis of guard expressions
type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
	line         int
	column       int
}

// NewLexer creates a new Lexer
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input:  input,
		line:   1,
		column: 0,
	}
	l.readChar()
	return l
}

// readChar reads the next character and advances position
func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++

	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
}

// peekChar returns the next character without advancing position
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// skipComment skips single-line comments starting with //
func (l *Lexer) skipComment() {
	for l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
}

// readIdentifier reads an identifier or keyword
func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	return l.input[position:l.position]
}

// readNumber reads a number literal
func (l *Lexer) readNumber() string {
	position := l.position
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar() // consume '.'
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return l.input[position:l.position]
}

// readString reads a string literal enclosed in quote
func (l *Lexer) readString(quote byte) (value, raw string, closed bool) {
	start := l.position
	var b strings.Builder
	for {
		l.readChar()
		switch l.ch {
		case quote:
			return b.String(), l.input[start : l.position+1], true
		case 0:
			return b.String(), "", false
		case '\\':
			l.readChar()
			if l.ch == 0 {
				return b.String(), "", false
			}
			if r, ok := simpleEscapes[l.ch]; ok {
				b.WriteByte(r)
			} else {
				b.WriteByte('\\')
				b.WriteByte(l.ch)
			}
		default:
			b.WriteByte(l.ch)
		}
	}
}

var simpleEscapes = map[byte]byte{
	'n':  '\n',
	't':  '\t',
	'r':  '\r',
	'\\': '\\',
	'\'': '\'',
	'"':  '"',
}

// twoCharTokens maps a leading character and its follower to a token
var twoCharTokens = map[[2]byte]TokenType{
	{'=', '='}: TOKEN_EQ,
	{'!', '='}: TOKEN_NEQ,
	{'<', '='}: TOKEN_LTE,
	{'>', '='}: TOKEN_GTE,
	{'&', '&'}: TOKEN_LOGICAL_AND,
	{'|', '|'}: TOKEN_LOGICAL_OR,
}

var oneCharTokens = map[byte]TokenType{
	'<': TOKEN_LT,
	'>': TOKEN_GT,
	'!': TOKEN_EXCLAMATION,
	'?': TOKEN_QUESTION,
	':': TOKEN_COLON,
	'+': TOKEN_PLUS,
	'-': TOKEN_MINUS,
	'(': TOKEN_LPAREN,
	')': TOKEN_RPAREN,
	'[': TOKEN_LBRACKET,
	']': TOKEN_RBRACKET,
	'.': TOKEN_DOT,
	',': TOKEN_COMMA,
}

// NextToken returns the next token
func (l *Lexer) NextToken() (*Token, error) {
	for {
		l.skipWhitespace()
		if l.ch == '/' && l.peekChar() == '/' {
			l.skipComment()
		} else {
			break
		}
	}

	line := l.line
	column := l.column

	if tt, ok := twoCharTokens[[2]byte{l.ch, l.peekChar()}]; ok {
		value := l.input[l.position : l.position+2]
		l.readChar()
		l.readChar()
		return &Token{Type: tt, Value: value, Line: line, Column: column}, nil
	}
	if tt, ok := oneCharTokens[l.ch]; ok {
		value := string(l.ch)
		l.readChar()
		return &Token{Type: tt, Value: value, Line: line, Column: column}, nil
	}

	switch {
	case l.ch == 0:
		return &Token{Type: TOKEN_EOF, Value: "", Line: line, Column: column}, nil
	case l.ch == '"' || l.ch == '\'':
		value, raw, closed := l.readString(l.ch)
		if !closed {
			return nil, fmt.Errorf("unterminated string at %d:%d", line, column)
		}
		l.readChar() // Skip closing quote
		return &Token{Type: TOKEN_STRING, Value: value, Raw: raw, Line: line, Column: column}, nil
	case isLetter(l.ch) || l.ch == '_':
		value := l.readIdentifier()
		tokenType := TOKEN_IDENTIFIER
		if kw, ok := keywords[value]; ok {
			tokenType = kw
		}
		return &Token{Type: tokenType, Value: value, Line: line, Column: column}, nil
	case isDigit(l.ch):
		value := l.readNumber()
		return &Token{Type: TOKEN_IDENTIFIER, Value: value, Line: line, Column: column}, nil
	default:
		return nil, fmt.Errorf("illegal character '%c' at %d:%d", l.ch, line, column)
	}
}

// isLetter checks if a character is a letter
func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch))
}

// isDigit checks if a character is a digit
func isDigit(ch byte) bool {
	return unicode.IsDigit(rune(ch))
}
