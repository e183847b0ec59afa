package filter

import (
	"strings"
	"unicode"
)

// lexer turns a filter expression into a token stream. It reports
// malformed input (unterminated strings, stray operators) as CompileErrors
// so compilation never panics on bad input.
type lexer struct {
	input string
	pos   int
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

// lexAll tokenizes the whole input.
func (l *lexer) lexAll() ([]token, error) {
	var tokens []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.typ == tokenEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	start := l.pos
	if l.pos >= len(l.input) {
		return token{typ: tokenEOF, pos: start}, nil
	}

	c := l.input[l.pos]
	switch c {
	case '(':
		l.pos++
		return token{typ: tokenLParen, text: "(", pos: start}, nil
	case ')':
		l.pos++
		return token{typ: tokenRParen, text: ")", pos: start}, nil
	case '[':
		l.pos++
		return token{typ: tokenLBracket, text: "[", pos: start}, nil
	case ']':
		l.pos++
		return token{typ: tokenRBracket, text: "]", pos: start}, nil
	case ',':
		l.pos++
		return token{typ: tokenComma, text: ",", pos: start}, nil
	case '.':
		l.pos++
		return token{typ: tokenDot, text: ".", pos: start}, nil
	case '&':
		if l.peekAt(l.pos+1) == '&' {
			l.pos += 2
			return token{typ: tokenAnd, text: "&&", pos: start}, nil
		}
		return token{}, newCompileError(l.input, start, "invalid operator '&', expected '&&'")
	case '|':
		if l.peekAt(l.pos+1) == '|' {
			l.pos += 2
			return token{typ: tokenOr, text: "||", pos: start}, nil
		}
		return token{}, newCompileError(l.input, start, "invalid operator '|', expected '||'")
	case '!':
		if l.peekAt(l.pos+1) == '=' {
			l.pos += 2
			return token{typ: tokenNeq, text: "!=", pos: start}, nil
		}
		l.pos++
		return token{typ: tokenNot, text: "!", pos: start}, nil
	case '=':
		if l.peekAt(l.pos+1) == '=' {
			l.pos += 2
			return token{typ: tokenEq, text: "==", pos: start}, nil
		}
		return token{}, newCompileError(l.input, start, "invalid operator '=', expected '=='")
	case '>':
		if l.peekAt(l.pos+1) == '=' {
			l.pos += 2
			return token{typ: tokenGte, text: ">=", pos: start}, nil
		}
		l.pos++
		return token{typ: tokenGt, text: ">", pos: start}, nil
	case '<':
		if l.peekAt(l.pos+1) == '=' {
			l.pos += 2
			return token{typ: tokenLte, text: "<=", pos: start}, nil
		}
		l.pos++
		return token{typ: tokenLt, text: "<", pos: start}, nil
	case '\'', '"':
		return l.lexString(c)
	}

	if c == 'r' && (l.peekAt(l.pos+1) == '\'' || l.peekAt(l.pos+1) == '"') {
		return l.lexRegex()
	}
	if isDigit(c) || (c == '-' && isDigit(l.peekAt(l.pos+1))) {
		return l.lexNumber()
	}
	if isIdentStart(c) {
		return l.lexIdent()
	}

	return token{}, newCompileError(l.input, start, "unexpected character %q", string(c))
}

// lexString lexes a single- or double-quoted string with backslash escapes.
func (l *lexer) lexString(quote byte) (token, error) {
	start := l.pos
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch c {
		case '\\':
			if l.pos+1 >= len(l.input) {
				return token{}, newCompileError(l.input, start, "unterminated string literal")
			}
			next := l.input[l.pos+1]
			switch next {
			case '\\', '\'', '"':
				sb.WriteByte(next)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				return token{}, newCompileError(l.input, l.pos, "invalid escape sequence '\\%s'", string(next))
			}
			l.pos += 2
		case quote:
			l.pos++
			return token{typ: tokenString, text: sb.String(), pos: start}, nil
		default:
			sb.WriteByte(c)
			l.pos++
		}
	}
	return token{}, newCompileError(l.input, start, "unterminated string literal")
}

// lexRegex lexes a regex literal of the form r'...' or r"...".
// The pattern body is taken verbatim; only the closing quote terminates it.
func (l *lexer) lexRegex() (token, error) {
	start := l.pos
	quote := l.input[l.pos+1]
	l.pos += 2 // r and opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '\\' && l.pos+1 < len(l.input) && l.input[l.pos+1] == quote {
			sb.WriteByte(quote)
			l.pos += 2
			continue
		}
		if c == quote {
			l.pos++
			return token{typ: tokenRegex, text: sb.String(), pos: start}, nil
		}
		sb.WriteByte(c)
		l.pos++
	}
	return token{}, newCompileError(l.input, start, "unterminated regex literal")
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	if l.input[l.pos] == '-' {
		l.pos++
	}
	sawDot := false
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '.' {
			if sawDot || !isDigit(l.peekAt(l.pos+1)) {
				break
			}
			sawDot = true
			l.pos++
			continue
		}
		if !isDigit(c) {
			break
		}
		l.pos++
	}
	return token{typ: tokenNumber, text: l.input[start:l.pos], pos: start}, nil
}

func (l *lexer) lexIdent() (token, error) {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	text := l.input[start:l.pos]
	switch text {
	case "in":
		return token{typ: tokenIn, text: text, pos: start}, nil
	case "starts_with":
		return token{typ: tokenStartsWith, text: text, pos: start}, nil
	case "matches":
		return token{typ: tokenMatches, text: text, pos: start}, nil
	}
	return token{typ: tokenIdent, text: text, pos: start}, nil
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

func (l *lexer) peekAt(i int) byte {
	if i >= len(l.input) {
		return 0
	}
	return l.input[i]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '-'
}
