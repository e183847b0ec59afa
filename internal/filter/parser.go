package filter

import (
	"regexp"
	"strconv"
	"strings"
)

// parser is a recursive-descent parser for the filter language:
//
//	expr       := orExpr
//	orExpr     := andExpr ('||' andExpr)*
//	andExpr    := unaryExpr ('&&' unaryExpr)*
//	unaryExpr  := '!' unaryExpr | '(' expr ')' | comparison
//	comparison := field cmpOp literal
//	            | field 'in' '[' literal (',' literal)* ']'
//	            | field 'starts_with' string
//	            | field 'matches' regex
//	field      := ident ('.' ident)*
//
// Alongside the predicate tree the parser produces the normalized source
// text used as the compilation cache key, so equivalent spellings of the
// same expression (whitespace, quote style) share one cache entry.
type parser struct {
	src    string
	tokens []token
	pos    int
	norm   strings.Builder
}

// parse compiles an expression into a predicate tree and its normalized
// text.
func parse(src string) (expr, string, error) {
	tokens, err := newLexer(src).lexAll()
	if err != nil {
		return nil, "", err
	}
	p := &parser{src: src, tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, "", err
	}
	if tok := p.peek(); tok.typ != tokenEOF {
		return nil, "", newCompileError(src, tok.pos, "unexpected %s after expression", tok.typ)
	}
	return root, p.norm.String(), nil
}

func (p *parser) parseOr() (expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().typ == tokenOr {
		p.advance()
		p.emit("||")
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().typ == tokenAnd {
		p.advance()
		p.emit("&&")
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &andExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (expr, error) {
	switch tok := p.peek(); tok.typ {
	case tokenNot:
		p.advance()
		p.emit("!")
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notExpr{inner: inner}, nil
	case tokenLParen:
		p.advance()
		p.emit("(")
		if p.peek().typ == tokenRParen {
			return nil, newCompileError(p.src, p.peek().pos, "empty parenthesized group")
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokenRParen); err != nil {
			return nil, err
		}
		p.emit(")")
		return inner, nil
	default:
		return p.parseComparison()
	}
}

func (p *parser) parseComparison() (expr, error) {
	field, err := p.parseField()
	if err != nil {
		return nil, err
	}

	switch tok := p.peek(); tok.typ {
	case tokenEq, tokenNeq, tokenGt, tokenLt, tokenGte, tokenLte:
		p.advance()
		p.emit(tok.text)
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &compareExpr{field: field, op: cmpOpFor(tok.typ), lit: lit}, nil

	case tokenIn:
		p.advance()
		p.emit("in")
		return p.parseInList(field)

	case tokenStartsWith:
		p.advance()
		p.emit("starts_with")
		str := p.peek()
		if str.typ != tokenString {
			return nil, newCompileError(p.src, str.pos, "starts_with requires a string literal, got %s", str.typ)
		}
		p.advance()
		p.emit(quoteString(str.text))
		return &startsWithExpr{field: field, prefix: str.text}, nil

	case tokenMatches:
		p.advance()
		p.emit("matches")
		pat := p.peek()
		if pat.typ != tokenRegex {
			return nil, newCompileError(p.src, pat.pos, "matches requires a regex literal r'...', got %s", pat.typ)
		}
		p.advance()
		re, err := regexp.Compile(pat.text)
		if err != nil {
			return nil, newCompileError(p.src, pat.pos, "invalid regex: %v", err)
		}
		p.emit("r" + quoteString(pat.text))
		return &matchesExpr{field: field, pattern: re}, nil

	default:
		return nil, newCompileError(p.src, tok.pos, "expected comparison operator, got %s", tok.typ)
	}
}

func (p *parser) parseInList(field fieldPath) (expr, error) {
	if err := p.expect(tokenLBracket); err != nil {
		return nil, err
	}
	p.emit("[")
	if p.peek().typ == tokenRBracket {
		return nil, newCompileError(p.src, p.peek().pos, "empty list in 'in' expression")
	}
	var list []literal
	for {
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		list = append(list, lit)
		if p.peek().typ == tokenComma {
			p.advance()
			p.emit(",")
			continue
		}
		break
	}
	if err := p.expect(tokenRBracket); err != nil {
		return nil, err
	}
	p.emit("]")
	return &inExpr{field: field, list: list}, nil
}

func (p *parser) parseField() (fieldPath, error) {
	tok := p.peek()
	if tok.typ != tokenIdent {
		return nil, newCompileError(p.src, tok.pos, "expected field reference, got %s", tok.typ)
	}
	p.advance()
	path := fieldPath{tok.text}
	for p.peek().typ == tokenDot {
		p.advance()
		part := p.peek()
		if part.typ != tokenIdent && part.typ != tokenIn && part.typ != tokenMatches && part.typ != tokenStartsWith {
			return nil, newCompileError(p.src, part.pos, "expected field name after '.', got %s", part.typ)
		}
		p.advance()
		path = append(path, part.text)
	}
	if p.peek().typ == tokenLParen {
		return nil, newCompileError(p.src, p.peek().pos, "function calls are not allowed: %s(...)", path)
	}
	if path[0] != "event" {
		return nil, newCompileError(p.src, tok.pos, "unknown field root %q, field references start with 'event.'", path[0])
	}
	p.emitPath(path)
	return path, nil
}

func (p *parser) parseLiteral() (literal, error) {
	switch tok := p.peek(); tok.typ {
	case tokenString:
		p.advance()
		p.emit(quoteString(tok.text))
		return literal{kind: litString, str: tok.text}, nil
	case tokenNumber:
		p.advance()
		n, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return literal{}, newCompileError(p.src, tok.pos, "invalid number %q", tok.text)
		}
		p.emit(strconv.FormatFloat(n, 'f', -1, 64))
		return literal{kind: litNumber, num: n}, nil
	default:
		return literal{}, newCompileError(p.src, tok.pos, "expected literal, got %s", tok.typ)
	}
}

func cmpOpFor(t tokenType) cmpOp {
	switch t {
	case tokenEq:
		return cmpEq
	case tokenNeq:
		return cmpNeq
	case tokenGt:
		return cmpGt
	case tokenLt:
		return cmpLt
	case tokenGte:
		return cmpGte
	default:
		return cmpLte
	}
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) advance() {
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
}

func (p *parser) expect(t tokenType) error {
	tok := p.peek()
	if tok.typ != t {
		return newCompileError(p.src, tok.pos, "expected %s, got %s", t, tok.typ)
	}
	p.advance()
	return nil
}

// emit appends one normalized token, space-separated.
func (p *parser) emit(s string) {
	if p.norm.Len() > 0 {
		p.norm.WriteByte(' ')
	}
	p.norm.WriteString(s)
}

// emitPath appends a field path without internal spaces.
func (p *parser) emitPath(path fieldPath) {
	p.emit(path.String())
}

// quoteString renders a string literal in canonical single-quoted form.
func quoteString(s string) string {
	var sb strings.Builder
	sb.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\'', '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\n':
			sb.WriteString("\\n")
		case '\t':
			sb.WriteString("\\t")
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}
