package expr

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// ParseError reports a syntax error at a byte offset of the source.
type ParseError struct {
	Source string
	Pos    int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("expr: %s at offset %d in %q", e.Msg, e.Pos, e.Source)
}

// Parse parses the textual form of an expression, as written in model
// files:
//
//	name                                  attribute of self
//	self.customer.name                    attribute through a to-one reference
//	orders->size() > 0
//	orders->sum(o | o.total) >= 100.00
//	orders->select(o | o.status == #OPEN)->exists()
//	orders->head(o | o.placedAt desc).number
//	lower(name) like 'a%' and not deleted
//	dueDate - @2024-01-01 > 30
//	Product.all()->size()
//
// The parser cannot tell attributes from references: the last step of a
// path is returned as Attr and the compiler treats it as a navigation when
// the name denotes a reference.
func Parse(src string) (Expr, error) {
	p := &parser{src: src}
	p.next()
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %q", p.tok.text)
	}
	return e, nil
}

// MustParse is like Parse but panics on error. It is intended for tests and
// package-level model definitions.
func MustParse(src string) Expr {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokString
	tokTemporal // @2024-01-01, @2024-01-01T10:00:00Z, @10:30:00
	tokPunct
)

type token struct {
	kind tokKind
	text string
	pos  int
}

type parser struct {
	src  string
	pos  int
	tok  token
	vars []string // bound variables, innermost last
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Source: p.src, Pos: p.tok.pos, Msg: fmt.Sprintf(format, args...)}
}

var puncts = []string{"->", "==", "!=", "<=", ">=", "<", ">", "+", "-", "*", "/", "(", ")", ",", ".", "|", "#"}

func (p *parser) next() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
	start := p.pos
	if p.pos >= len(p.src) {
		p.tok = token{kind: tokEOF, pos: start}
		return
	}
	r, size := utf8.DecodeRuneInString(p.src[p.pos:])
	switch {
	case r == '_' || unicode.IsLetter(r):
		for p.pos < len(p.src) {
			r, size = utf8.DecodeRuneInString(p.src[p.pos:])
			if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				break
			}
			p.pos += size
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.pos], pos: start}
	case unicode.IsDigit(r):
		for p.pos < len(p.src) && (isDigit(p.src[p.pos]) || p.src[p.pos] == '.' && p.pos+1 < len(p.src) && isDigit(p.src[p.pos+1])) {
			p.pos++
		}
		p.tok = token{kind: tokNumber, text: p.src[start:p.pos], pos: start}
	case r == '\'' || r == '"':
		p.pos++
		var b strings.Builder
		for p.pos < len(p.src) && rune(p.src[p.pos]) != r {
			if p.src[p.pos] == '\\' && p.pos+1 < len(p.src) {
				p.pos++
			}
			b.WriteByte(p.src[p.pos])
			p.pos++
		}
		p.pos++ // closing quote
		p.tok = token{kind: tokString, text: b.String(), pos: start}
	case r == '@':
		p.pos++
		for p.pos < len(p.src) && strings.IndexByte("0123456789-:.TZ+", p.src[p.pos]) >= 0 {
			p.pos++
		}
		p.tok = token{kind: tokTemporal, text: p.src[start+1 : p.pos], pos: start}
	default:
		for _, s := range puncts {
			if strings.HasPrefix(p.src[p.pos:], s) {
				p.pos += len(s)
				p.tok = token{kind: tokPunct, text: s, pos: start}
				return
			}
		}
		p.pos += size
		p.tok = token{kind: tokPunct, text: string(r), pos: start}
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (p *parser) is(text string) bool {
	return (p.tok.kind == tokPunct || p.tok.kind == tokIdent) && p.tok.text == text
}

func (p *parser) expect(text string) error {
	if !p.is(text) {
		return p.errorf("expected %q, got %q", text, p.tok.text)
	}
	p.next()
	return nil
}

func (p *parser) ident() (string, error) {
	if p.tok.kind != tokIdent {
		return "", p.errorf("expected identifier, got %q", p.tok.text)
	}
	name := p.tok.text
	p.next()
	return name, nil
}

func (p *parser) parseExpr() (Expr, error) {
	return p.parseBinary(0)
}

// precedence levels, loosest first.
var levels = [][]struct {
	text string
	op   BinaryOp
}{
	{{"implies", OpImplies}},
	{{"or", OpOr}},
	{{"xor", OpXor}},
	{{"and", OpAnd}},
}

func (p *parser) parseBinary(level int) (Expr, error) {
	if level == len(levels) {
		return p.parseNot()
	}
	l, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		matched := false
		for _, o := range levels[level] {
			if p.is(o.text) {
				p.next()
				r, err := p.parseBinary(level + 1)
				if err != nil {
					return nil, err
				}
				l, matched = Binary{Op: o.op, L: l, R: r}, true
				break
			}
		}
		if !matched {
			return l, nil
		}
	}
}

func (p *parser) parseNot() (Expr, error) {
	if p.is("not") {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not(x), nil
	}
	return p.parseComparison()
}

var comparisons = map[string]BinaryOp{
	"==": OpEq, "!=": OpNeq, "<": OpLt, "<=": OpLte, ">": OpGt, ">=": OpGte,
}

func (p *parser) parseComparison() (Expr, error) {
	l, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	text := p.tok.text
	if op, ok := comparisons[text]; ok && p.tok.kind == tokPunct {
		p.next()
		r, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return Binary{Op: op, L: l, R: r}, nil
	}
	if p.tok.kind == tokIdent && (text == "like" || text == "ilike" || text == "matches") {
		p.next()
		r, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		if text == "matches" {
			return Matches{X: l, Pattern: r}, nil
		}
		return Like{X: l, Pattern: r, CaseInsensitive: text == "ilike"}, nil
	}
	return l, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	l, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.is("+") || p.is("-") {
		op := OpAdd
		if p.tok.text == "-" {
			op = OpSub
		}
		p.next()
		r, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		if op == OpAdd && (isStringLit(l) || isStringLit(r)) {
			op = OpConcat
		}
		l = Binary{Op: op, L: l, R: r}
	}
	return l, nil
}

func isStringLit(e Expr) bool {
	l, ok := e.(Lit)
	return ok && l.Kind == LitString
}

func (p *parser) parseMultiplicative() (Expr, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.is("*") || p.is("/") || p.is("mod") {
		op := map[string]BinaryOp{"*": OpMul, "/": OpDiv, "mod": OpMod}[p.tok.text]
		p.next()
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = Binary{Op: op, L: l, R: r}
	}
	return l, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.is("-") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Neg(x), nil
	}
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return p.parsePostfix(x)
}

func (p *parser) parsePostfix(x Expr) (Expr, error) {
	for {
		switch {
		case p.is("."):
			p.next()
			name, err := p.ident()
			if err != nil {
				return nil, err
			}
			if p.is("(") {
				if name != "isUndefined" {
					return nil, p.errorf("unknown method %q", name)
				}
				p.next()
				if err := p.expect(")"); err != nil {
					return nil, err
				}
				x = Undefined(x)
				continue
			}
			x = Attr{From: stepSource(x), Name: name}
		case p.is("->"):
			p.next()
			var err error
			if x, err = p.parseCollectionOp(stepSource(x)); err != nil {
				return nil, err
			}
		default:
			return x, nil
		}
	}
}

// stepSource turns a trailing Attr into a navigation, since it is followed
// by a further step.
func stepSource(x Expr) Expr {
	if a, ok := x.(Attr); ok {
		return Nav{From: a.From, Reference: a.Name}
	}
	return x
}

func (p *parser) parseCollectionOp(coll Expr) (Expr, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var v string
	if p.tok.kind == tokIdent && !p.is(")") {
		save := *p
		if id, _ := p.ident(); p.is("|") {
			v = id
			p.next()
		} else {
			*p = save
		}
	}
	if v != "" {
		p.vars = append(p.vars, v)
		defer func() { p.vars = p.vars[:len(p.vars)-1] }()
	}
	switch name {
	case "size", "exists", "any":
		var cond Expr
		if !p.is(")") {
			if cond, err = p.parseExpr(); err != nil {
				return nil, err
			}
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		switch {
		case name == "any":
			return Any(coll), nil
		case name == "exists":
			return Exists{Collection: coll, Var: v, Cond: cond}, nil
		case cond != nil:
			return Count(Where(coll, v, cond)), nil
		}
		return Count(coll), nil
	case "sum", "min", "max", "avg":
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		op := map[string]AggregateOp{"sum": AggSum, "min": AggMin, "max": AggMax, "avg": AggAvg}[name]
		return Aggregate{Op: op, Collection: coll, Var: v, Value: value}, nil
	case "select":
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return Filter{Collection: coll, Var: v, Cond: cond}, nil
	case "head", "tail":
		var orders []Order
		for !p.is(")") {
			by, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			o := Order{By: by}
			if p.is("desc") || p.is("asc") {
				o.Descending = p.tok.text == "desc"
				p.next()
			}
			orders = append(orders, o)
			if !p.is(",") {
				break
			}
			p.next()
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		op := SelectHead
		if name == "tail" {
			op = SelectTail
		}
		return Selector{Op: op, Collection: coll, Var: v, Orders: orders}, nil
	}
	return nil, p.errorf("unknown collection operation %q", name)
}

func (p *parser) bound(name string) bool {
	for i := len(p.vars) - 1; i >= 0; i-- {
		if p.vars[i] == name {
			return true
		}
	}
	return false
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.tok
	switch tok.kind {
	case tokNumber:
		p.next()
		return numberLit(tok.text)
	case tokString:
		p.next()
		return String(tok.text), nil
	case tokTemporal:
		p.next()
		return temporalLit(tok.text)
	case tokPunct:
		switch tok.text {
		case "(":
			p.next()
			x, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return x, p.expect(")")
		case "#":
			p.next()
			name, err := p.ident()
			if err != nil {
				return nil, err
			}
			return Enum(name), nil
		}
		return nil, p.errorf("unexpected %q", tok.text)
	case tokIdent:
		p.next()
		switch tok.text {
		case "self":
			return Self(), nil
		case "true", "false":
			return Bool(tok.text == "true"), nil
		}
		if p.is("(") {
			return p.parseCall(Func(tok.text))
		}
		if p.bound(tok.text) {
			return Variable(tok.text), nil
		}
		if first, _ := utf8.DecodeRuneInString(tok.text); unicode.IsUpper(first) && p.is(".") {
			// Entity.all()
			save := *p
			p.next()
			if p.is("all") {
				p.next()
				if p.is("(") {
					p.next()
					if err := p.expect(")"); err != nil {
						return nil, err
					}
					return Extent(tok.text), nil
				}
			}
			*p = save
		}
		return Attr{From: Self(), Name: tok.text}, nil
	}
	return nil, p.errorf("unexpected end of expression")
}

var knownFuncs = map[Func]bool{
	FuncLength: true, FuncLower: true, FuncUpper: true, FuncTrim: true, FuncSubstring: true,
	FuncPosition: true, FuncReplace: true, FuncRound: true, FuncFloor: true, FuncCeil: true,
	FuncAbs: true, FuncYear: true, FuncMonth: true, FuncDay: true, FuncHour: true,
	FuncMinute: true, FuncSecond: true, FuncMillisecond: true, FuncToString: true,
	FuncNow: true, FuncToday: true, FuncAddDays: true,
}

func (p *parser) parseCall(fn Func) (Expr, error) {
	if !knownFuncs[fn] {
		return nil, p.errorf("unknown function %q", fn)
	}
	p.next() // (
	var args []Expr
	for !p.is(")") {
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if !p.is(",") {
			break
		}
		p.next()
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return Call{Func: fn, Args: args}, nil
}

func numberLit(text string) (Expr, error) {
	if strings.Contains(text, ".") {
		d, err := decimal.NewFromString(text)
		if err != nil {
			return nil, err
		}
		return Decimal(d), nil
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Int(i), nil
	}
	b, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return nil, fmt.Errorf("expr: invalid number %q", text)
	}
	return BigInt(b), nil
}

func temporalLit(text string) (Expr, error) {
	if t, err := time.Parse(time.DateOnly, text); err == nil {
		return Date(t), nil
	}
	if t, err := time.Parse(time.TimeOnly, text); err == nil {
		return TimeOfDay(t), nil
	}
	t, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return nil, fmt.Errorf("expr: invalid temporal literal %q", text)
	}
	return Timestamp(t), nil
}
