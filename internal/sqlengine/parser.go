package sqlengine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tracewell/collector/internal/store"
)

// ParseError is returned for any statement outside the read-only grammar,
// matching spec.md §4.2's "rejected with a parse error; the statement is
// rejected atomically" policy — there is no partial parse result.
type ParseError struct {
	Message string
	Pos     int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sql: %s (at position %d)", e.Message, e.Pos)
}

type parser struct {
	lex     *lexer
	cur     token
	lastPos int
}

// Parse compiles a SQL string into a SelectStmt. Only the grammar in
// spec.md §4.2 is accepted; anything else (INSERT, multiple statements,
// an unknown table) is a *ParseError. Column names are checked for syntax
// only; Engine.Eval checks the select list and ORDER BY against the
// schema.
func Parse(sql string) (*SelectStmt, error) {
	p := &parser{lex: newLexer(sql)}
	if err := p.advance(); err != nil {
		return nil, err
	}

	stmt, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, &ParseError{Message: fmt.Sprintf("unexpected trailing token %q", p.cur.text), Pos: p.cur.pos}
	}
	return stmt, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return &ParseError{Message: err.Error(), Pos: p.lex.pos}
	}
	p.lastPos = p.cur.pos
	p.cur = tok
	return nil
}

func (p *parser) kw(word string) bool {
	return p.cur.kind == tokIdent && strings.EqualFold(p.cur.text, word)
}

func (p *parser) expectKw(word string) error {
	if !p.kw(word) {
		return &ParseError{Message: fmt.Sprintf("expected %q, got %q", word, p.cur.text), Pos: p.cur.pos}
	}
	return p.advance()
}

func (p *parser) parseSelect() (*SelectStmt, error) {
	if err := p.expectKw("select"); err != nil {
		return nil, err
	}

	stmt := &SelectStmt{}

	if p.cur.kind == tokStar {
		if err := p.advance(); err != nil {
			return nil, err
		}
	} else {
		for {
			if p.cur.kind != tokIdent {
				return nil, &ParseError{Message: "expected column name", Pos: p.cur.pos}
			}
			stmt.Columns = append(stmt.Columns, p.cur.text)
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.cur.kind == tokComma {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}

	if err := p.expectKw("from"); err != nil {
		return nil, err
	}
	if p.cur.kind != tokIdent {
		return nil, &ParseError{Message: "expected table name", Pos: p.cur.pos}
	}
	switch strings.ToLower(p.cur.text) {
	case string(TableTraces):
		stmt.Table = TableTraces
	case string(TableLogs):
		stmt.Table = TableLogs
	case string(TableMetrics):
		stmt.Table = TableMetrics
	default:
		return nil, &ParseError{Message: fmt.Sprintf("unknown table %q", p.cur.text), Pos: p.cur.pos}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	if p.kw("where") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		stmt.Where = expr
	}

	if p.kw("order") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKw("by"); err != nil {
			return nil, err
		}
		for {
			if p.cur.kind != tokIdent {
				return nil, &ParseError{Message: "expected column name in ORDER BY", Pos: p.cur.pos}
			}
			key := OrderKey{Column: p.cur.text}
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.kw("asc") {
				if err := p.advance(); err != nil {
					return nil, err
				}
			} else if p.kw("desc") {
				key.Desc = true
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
			stmt.OrderBy = append(stmt.OrderBy, key)
			if p.cur.kind == tokComma {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}

	if p.kw("limit") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind != tokNumber {
			return nil, &ParseError{Message: "expected integer after LIMIT", Pos: p.cur.pos}
		}
		n, err := strconv.Atoi(p.cur.text)
		if err != nil || n < 0 {
			return nil, &ParseError{Message: fmt.Sprintf("invalid LIMIT value %q", p.cur.text), Pos: p.cur.pos}
		}
		stmt.Limit = n
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	return stmt, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.kw("or") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.kw("and") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.kw("not") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return UnaryNot{Expr: inner}, nil
	}
	return p.parsePredicate()
}

func (p *parser) parsePredicate() (Expr, error) {
	if p.cur.kind == tokLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, &ParseError{Message: "expected closing ')'", Pos: p.cur.pos}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	}

	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	switch {
	case p.cur.kind == tokOp:
		op := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if op == "~" || op == "!~" {
			pattern, err := p.parseStringLiteral()
			if err != nil {
				return nil, err
			}
			return RegexExpr{Left: left, Pattern: pattern, Negate: op == "!~"}, nil
		}
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return BinaryExpr{Op: op, Left: left, Right: right}, nil

	case p.kw("like"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		pattern, err := p.parseStringLiteral()
		if err != nil {
			return nil, err
		}
		return LikeExpr{Left: left, Pattern: pattern}, nil

	case p.kw("not"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch {
		case p.kw("like"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			pattern, err := p.parseStringLiteral()
			if err != nil {
				return nil, err
			}
			return LikeExpr{Left: left, Pattern: pattern, Negate: true}, nil
		case p.kw("in"):
			return p.parseIn(left, true)
		default:
			return nil, &ParseError{Message: "expected LIKE or IN after NOT", Pos: p.cur.pos}
		}

	case p.kw("in"):
		return p.parseIn(left, false)

	case p.kw("is"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		negate := false
		if p.kw("not") {
			negate = true
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if err := p.expectKw("null"); err != nil {
			return nil, err
		}
		return IsNullExpr{Left: left, Negate: negate}, nil

	default:
		return nil, &ParseError{Message: fmt.Sprintf("expected an operator, got %q", p.cur.text), Pos: p.cur.pos}
	}
}

func (p *parser) parseIn(left Expr, negate bool) (Expr, error) {
	if err := p.advance(); err != nil { // consume "in"
		return nil, err
	}
	if p.cur.kind != tokLParen {
		return nil, &ParseError{Message: "expected '(' after IN", Pos: p.cur.pos}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	var values []Expr
	for {
		v, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if p.cur.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if p.cur.kind != tokRParen {
		return nil, &ParseError{Message: "expected closing ')' after IN list", Pos: p.cur.pos}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return InExpr{Left: left, Values: values, Negate: negate}, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	switch p.cur.kind {
	case tokString:
		v := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return Literal{Value: store.StringAttr(v)}, nil

	case tokNumber:
		v := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if strings.ContainsAny(v, ".") {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, &ParseError{Message: fmt.Sprintf("invalid number %q", v), Pos: p.lastPos}
			}
			return Literal{Value: store.FloatAttr(f)}, nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, &ParseError{Message: fmt.Sprintf("invalid number %q", v), Pos: p.lastPos}
		}
		return Literal{Value: store.IntAttr(n)}, nil

	case tokIdent:
		if strings.EqualFold(p.cur.text, "true") || strings.EqualFold(p.cur.text, "false") {
			v := strings.EqualFold(p.cur.text, "true")
			if err := p.advance(); err != nil {
				return nil, err
			}
			return Literal{Value: store.BoolAttr(v)}, nil
		}
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind == tokLBracket {
			if (name != "attributes" && name != "resource") {
				return nil, &ParseError{Message: fmt.Sprintf("bracket access not supported on column %q", name), Pos: p.lastPos}
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			key, err := p.parseStringLiteral()
			if err != nil {
				return nil, err
			}
			if p.cur.kind != tokRBracket {
				return nil, &ParseError{Message: "expected closing ']'", Pos: p.cur.pos}
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			return BracketRef{Base: name, Key: key}, nil
		}
		return ColumnRef{Name: name}, nil

	default:
		return nil, &ParseError{Message: fmt.Sprintf("unexpected token %q", p.cur.text), Pos: p.cur.pos}
	}
}

func (p *parser) parseStringLiteral() (string, error) {
	if p.cur.kind != tokString {
		return "", &ParseError{Message: "expected a string literal", Pos: p.cur.pos}
	}
	v := p.cur.text
	return v, p.advance()
}
