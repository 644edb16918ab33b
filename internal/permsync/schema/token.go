package schema

// Token represents a lexical token
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

// TokenType represents the type of a token
type TokenType int

const (
	TokenIllegal TokenType = iota
	TokenEOF

	TokenIdent

	// Keywords
	TokenEntity
	TokenRelation
	TokenPermission
	TokenOr
	TokenAnd

	TokenLBrace // {
	TokenRBrace // }
	TokenAt     // @
	TokenEquals // =
	TokenLParen // (
	TokenRParen // )
	TokenDot    // .
)

var tokenNames = map[TokenType]string{
	TokenIllegal:    "ILLEGAL",
	TokenEOF:        "EOF",
	TokenIdent:      "identifier",
	TokenEntity:     "entity",
	TokenRelation:   "relation",
	TokenPermission: "permission",
	TokenOr:         "or",
	TokenAnd:        "and",
	TokenLBrace:     "{",
	TokenRBrace:     "}",
	TokenAt:         "@",
	TokenEquals:     "=",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenDot:        ".",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// keywords maps keyword strings to token types
var keywords = map[string]TokenType{
	"entity":     TokenEntity,
	"relation":   TokenRelation,
	"permission": TokenPermission,
	"or":         TokenOr,
	"and":        TokenAnd,
}
