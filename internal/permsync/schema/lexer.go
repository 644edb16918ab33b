package schema

import (
	"unicode"
)

// Lexer tokenizes schema source
type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           rune // current char under examination
	line         int
	column       int
}

func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = rune(l.input[l.readPosition])
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++

	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
}

func (l *Lexer) peekChar() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return rune(l.input[l.readPosition])
}

// NextToken returns the next token, skipping whitespace and // comments.
func (l *Lexer) NextToken() Token {
	for unicode.IsSpace(l.ch) || (l.ch == '/' && l.peekChar() == '/') {
		if l.ch == '/' {
			l.skipComment()
		} else {
			l.readChar()
		}
	}

	var tok Token
	switch l.ch {
	case '{':
		tok = l.single(TokenLBrace)
	case '}':
		tok = l.single(TokenRBrace)
	case '@':
		tok = l.single(TokenAt)
	case '=':
		tok = l.single(TokenEquals)
	case '(':
		tok = l.single(TokenLParen)
	case ')':
		tok = l.single(TokenRParen)
	case '.':
		tok = l.single(TokenDot)
	case 0:
		tok = Token{Type: TokenEOF, Line: l.line, Column: l.column}
	default:
		if isLetter(l.ch) {
			line, col := l.line, l.column
			lit := l.readIdentifier()
			return Token{Type: lookupIdent(lit), Literal: lit, Line: line, Column: col}
		}
		tok = l.single(TokenIllegal)
	}

	l.readChar()
	return tok
}

func (l *Lexer) single(t TokenType) Token {
	return Token{Type: t, Literal: string(l.ch), Line: l.line, Column: l.column}
}

func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	return l.input[position:l.position]
}

func (l *Lexer) skipComment() {
	for l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
}

func isLetter(ch rune) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z'
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}

func lookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return TokenIdent
}
