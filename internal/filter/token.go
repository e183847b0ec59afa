package filter

import "fmt"

// tokenType identifies a lexical token in the filter language.
type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIdent
	tokenString
	tokenNumber
	tokenRegex
	tokenDot
	tokenComma
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenAnd        // &&
	tokenOr         // ||
	tokenNot        // !
	tokenEq         // ==
	tokenNeq        // !=
	tokenGt         // >
	tokenLt         // <
	tokenGte        // >=
	tokenLte        // <=
	tokenIn         // in
	tokenStartsWith // starts_with
	tokenMatches    // matches
)

func (t tokenType) String() string {
	switch t {
	case tokenEOF:
		return "end of expression"
	case tokenIdent:
		return "identifier"
	case tokenString:
		return "string"
	case tokenNumber:
		return "number"
	case tokenRegex:
		return "regex"
	case tokenDot:
		return "'.'"
	case tokenComma:
		return "','"
	case tokenLParen:
		return "'('"
	case tokenRParen:
		return "')'"
	case tokenLBracket:
		return "'['"
	case tokenRBracket:
		return "']'"
	case tokenAnd:
		return "'&&'"
	case tokenOr:
		return "'||'"
	case tokenNot:
		return "'!'"
	case tokenEq:
		return "'=='"
	case tokenNeq:
		return "'!='"
	case tokenGt:
		return "'>'"
	case tokenLt:
		return "'<'"
	case tokenGte:
		return "'>='"
	case tokenLte:
		return "'<='"
	case tokenIn:
		return "'in'"
	case tokenStartsWith:
		return "'starts_with'"
	case tokenMatches:
		return "'matches'"
	default:
		return fmt.Sprintf("token(%d)", int(t))
	}
}

// token is a lexed token with its source position.
type token struct {
	typ tokenType
	// text is the decoded value for strings/regexes and the raw lexeme
	// otherwise.
	text string
	pos  int
}
