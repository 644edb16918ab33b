package schema

import (
	"errors"
	"fmt"
)

// Parser parses schema source into a Schema
type Parser struct {
	l         *Lexer
	curToken  Token
	peekToken Token
	errors    []error
}

func NewParser(l *Lexer) *Parser {
	p := &Parser{l: l}

	// Read two tokens, so curToken and peekToken are both set
	p.nextToken()
	p.nextToken()

	return p
}

// Parse parses and validates schema source.
func Parse(src string) (*Schema, error) {
	p := NewParser(NewLexer(src))
	s := p.ParseSchema()
	if err := p.Err(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

// Err joins every syntax error seen so far.
func (p *Parser) Err() error {
	return errors.Join(p.errors...)
}

// ParseSchema parses a complete schema. Syntax errors are collected and
// reported by Err.
func (p *Parser) ParseSchema() *Schema {
	s := newSchema()

	for !p.curTokenIs(TokenEOF) {
		if !p.curTokenIs(TokenEntity) {
			p.addError(p.curToken, fmt.Sprintf("unexpected %s %q at top level", p.curToken.Type, p.curToken.Literal))
			p.nextToken()
			continue
		}
		entity := p.parseEntity()
		if entity == nil {
			continue
		}
		if err := s.addEntity(entity); err != nil {
			p.errors = append(p.errors, err)
		}
	}

	return s
}

func (p *Parser) parseEntity() *Entity {
	line := p.curToken.Line
	if !p.expectPeek(TokenIdent) {
		p.skipTo(TokenEntity)
		return nil
	}

	entity := &Entity{Name: p.curToken.Literal, Line: line}

	if !p.expectPeek(TokenLBrace) {
		p.skipTo(TokenEntity)
		return nil
	}
	p.nextToken()

	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		switch p.curToken.Type {
		case TokenRelation:
			if r := p.parseRelation(); r != nil {
				entity.Relations = append(entity.Relations, *r)
			}
		case TokenPermission:
			if perm := p.parsePermission(); perm != nil {
				entity.Permissions = append(entity.Permissions, *perm)
			}
		default:
			p.addError(p.curToken, fmt.Sprintf("unexpected %s %q in entity %s", p.curToken.Type, p.curToken.Literal, entity.Name))
			p.nextToken()
		}
	}

	if !p.curTokenIs(TokenRBrace) {
		p.addError(p.curToken, fmt.Sprintf("entity %s is missing a closing brace", entity.Name))
		return entity
	}
	p.nextToken()

	return entity
}

// parseRelation parses "relation name @target" and leaves curToken on the
// next statement.
func (p *Parser) parseRelation() *Relation {
	line := p.curToken.Line

	if !p.expectPeek(TokenIdent) {
		p.skipStatement()
		return nil
	}
	relation := &Relation{Name: p.curToken.Literal, Line: line}

	if !p.expectPeek(TokenAt) || !p.expectPeek(TokenIdent) {
		p.skipStatement()
		return nil
	}
	relation.Target = p.curToken.Literal

	p.nextToken()
	return relation
}

// parsePermission parses "permission name = expr" and leaves curToken on the
// next statement.
func (p *Parser) parsePermission() *Permission {
	line := p.curToken.Line

	if !p.expectPeek(TokenIdent) {
		p.skipStatement()
		return nil
	}
	permission := &Permission{Name: p.curToken.Literal, Line: line}

	if !p.expectPeek(TokenEquals) {
		p.skipStatement()
		return nil
	}
	p.nextToken()

	expr := p.parseExpression(LOWEST)
	if expr == nil {
		p.skipStatement()
		return nil
	}
	permission.Expression = expr

	p.nextToken()
	return permission
}

// Precedence levels
const (
	LOWEST = 1
	OR     = 2
	AND    = 3
)

// parseExpression leaves curToken on the last token of the expression.
func (p *Parser) parseExpression(precedence int) Expression {
	var left Expression

	switch p.curToken.Type {
	case TokenIdent:
		ref := &RelationRef{Name: p.curToken.Literal, Line: p.curToken.Line}
		if p.peekTokenIs(TokenDot) {
			p.nextToken()
			if !p.expectPeek(TokenIdent) {
				return nil
			}
			ref.Via = ref.Name
			ref.Name = p.curToken.Literal
		}
		left = ref
	case TokenLParen:
		p.nextToken()
		left = p.parseExpression(LOWEST)
		if left == nil {
			return nil
		}
		if !p.expectPeek(TokenRParen) {
			return nil
		}
	default:
		p.addError(p.curToken, fmt.Sprintf("unexpected %s %q in expression", p.curToken.Type, p.curToken.Literal))
		return nil
	}

	for precedence < p.peekPrecedence() {
		p.nextToken()
		op := p.curToken.Type
		opPrecedence := p.curPrecedence()
		p.nextToken()

		right := p.parseExpression(opPrecedence)
		if right == nil {
			return nil
		}

		if op == TokenAnd {
			left = &And{Left: left, Right: right}
		} else {
			left = &Or{Left: left, Right: right}
		}
	}

	return left
}

func precedenceOf(t TokenType) int {
	switch t {
	case TokenOr:
		return OR
	case TokenAnd:
		return AND
	default:
		return LOWEST
	}
}

func (p *Parser) peekPrecedence() int {
	return precedenceOf(p.peekToken.Type)
}

func (p *Parser) curPrecedence() int {
	return precedenceOf(p.curToken.Type)
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expectPeek checks if the next token is of the expected type and advances if so
func (p *Parser) expectPeek(t TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.addError(p.peekToken, fmt.Sprintf("expected %s, got %s %q", t, p.peekToken.Type, p.peekToken.Literal))
	return false
}

// skipStatement advances past the current token to the next relation,
// permission or closing brace.
func (p *Parser) skipStatement() {
	p.nextToken()
	for !p.curTokenIs(TokenRelation) &&
		!p.curTokenIs(TokenPermission) &&
		!p.curTokenIs(TokenRBrace) &&
		!p.curTokenIs(TokenEOF) {
		p.nextToken()
	}
}

func (p *Parser) skipTo(t TokenType) {
	p.nextToken()
	for !p.curTokenIs(t) && !p.curTokenIs(TokenEOF) {
		p.nextToken()
	}
}

func (p *Parser) addError(at Token, msg string) {
	p.errors = append(p.errors, fmt.Errorf("%s (line %d, column %d)", msg, at.Line, at.Column))
}
