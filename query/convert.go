package query

import (
	"github.com/syssam/strata"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/metamodel"
)

// converter turns one kind of expression into a feature. The registry is
// ordered: the first converter matching an expression wins, so specific
// converters precede generic ones.
type converter struct {
	name    string
	match   func(c *compilation, sc *scope, e expr.Expr) bool
	convert func(c *compilation, sc *scope, e expr.Expr) (FeatureID, error)
}

func registry() []converter {
	return []converter{
		{"enum-comparison", matchEnumComparison, convertEnumComparison},
		{"temporal-difference", matchTemporalDifference, convertTemporalDifference},
		{"decimal-arithmetic", matchDecimalArithmetic, convertArithmetic},
		{"concatenation", matchConcatenation, convertConcatenation},
		{"arithmetic", matchArithmetic, convertArithmetic},
		{"comparison", matchComparison, convertComparison},
		{"logical", matchLogical, convertLogical},
		{"function", matchCall, convertCall},
		{"like", matchLike, convertLike},
		{"matches", matchMatches, convertMatches},
		{"undefined", matchUndefined, convertUndefined},
		{"aggregate", matchAggregate, convertAggregate},
		{"exists", matchExists, convertExists},
		{"attribute", matchAttribute, convertAttribute},
		{"instance", matchInstance, convertInstance},
		{"literal", matchLiteral, convertLiteral},
	}
}

// convert compiles an expression with the first matching converter.
func (c *compilation) convert(sc *scope, e expr.Expr) (FeatureID, error) {
	for _, cv := range c.converters {
		if cv.match(c, sc, e) {
			return cv.convert(c, sc, e)
		}
	}
	// Surface typing errors before reporting the missing converter.
	if _, err := c.infer(sc, e); err != nil {
		return 0, err
	}
	return 0, strata.NewConfigError(e.String(), "no converter for expression")
}

// operand converts e, typing literals after the attribute they meet.
func (c *compilation) operand(sc *scope, e expr.Expr, hint *metamodel.Attribute) (FeatureID, error) {
	if lit, ok := e.(expr.Lit); ok {
		return c.literal(lit, hint), nil
	}
	return c.convert(sc, e)
}

func (c *compilation) literal(lit expr.Lit, hint *metamodel.Attribute) FeatureID {
	t := litTypes[lit.Kind]
	if hint != nil && hint.Type != metamodel.TypeEnum {
		t = hint.Type
	}
	return c.constant(lit.Value, t, hint)
}

func (c *compilation) typeOf(sc *scope, e expr.Expr) metamodel.Type {
	i, err := c.infer(sc, e)
	if err != nil || i.shape != shapeValue {
		return 0
	}
	return i.typ
}

func (c *compilation) attrOf(sc *scope, e expr.Expr) *metamodel.Attribute {
	i, err := c.infer(sc, e)
	if err != nil {
		return nil
	}
	return i.attr
}

var comparisons = map[expr.BinaryOp]Signature{
	expr.OpEq:  SigEquals,
	expr.OpNeq: SigNotEquals,
	expr.OpLt:  SigLessThan,
	expr.OpLte: SigLessOrEqual,
	expr.OpGt:  SigGreaterThan,
	expr.OpGte: SigGreaterOrEqual,
}

func matchEnumComparison(_ *compilation, _ *scope, e expr.Expr) bool {
	b, ok := e.(expr.Binary)
	if !ok || !b.Op.Comparison() {
		return false
	}
	_, l := b.L.(expr.EnumLit)
	_, r := b.R.(expr.EnumLit)
	return l != r
}

// Enum values are stored as literal ordinals.
func convertEnumComparison(c *compilation, sc *scope, e expr.Expr) (FeatureID, error) {
	b := e.(expr.Binary)
	other, lit, left := b.L, b.R, true
	if l, ok := b.L.(expr.EnumLit); ok {
		other, lit, left = b.R, l, false
	}
	a := c.attrOf(sc, other)
	if a == nil || a.Type != metamodel.TypeEnum {
		return 0, strata.NewConfigError(e.String(), "enum literal %s compared with a non-enum value", lit)
	}
	ord, ok := a.Ordinal(lit.(expr.EnumLit).Value)
	if !ok {
		return 0, strata.NewConfigError(a.Owner.Name+"."+a.Name, "unknown enum literal %s", lit)
	}
	f, err := c.convert(sc, other)
	if err != nil {
		return 0, err
	}
	k := c.constant(int64(ord), metamodel.TypeEnum, a)
	if left {
		return c.function(comparisons[b.Op], metamodel.TypeBoolean, f, k), nil
	}
	return c.function(comparisons[b.Op], metamodel.TypeBoolean, k, f), nil
}

func matchTemporalDifference(c *compilation, sc *scope, e expr.Expr) bool {
	b, ok := e.(expr.Binary)
	if !ok || b.Op != expr.OpSub {
		return false
	}
	l, r := c.typeOf(sc, b.L), c.typeOf(sc, b.R)
	return l == r && (l == metamodel.TypeDate || l == metamodel.TypeTimestamp)
}

// convertTemporalDifference yields whole days between dates and
// milliseconds between timestamps.
func convertTemporalDifference(c *compilation, sc *scope, e expr.Expr) (FeatureID, error) {
	b := e.(expr.Binary)
	sig := SigDateDifference
	if c.typeOf(sc, b.L) == metamodel.TypeTimestamp {
		sig = SigTimestampDifference
	}
	return c.binary(sc, b, sig, metamodel.TypeInteger)
}

func matchDecimalArithmetic(c *compilation, sc *scope, e expr.Expr) bool {
	b, ok := e.(expr.Binary)
	if !ok || !b.Op.Arithmetic() {
		return false
	}
	l, r := c.typeOf(sc, b.L), c.typeOf(sc, b.R)
	return l.Numeric() && r.Numeric() && (l == metamodel.TypeDecimal || r == metamodel.TypeDecimal)
}

func matchConcatenation(c *compilation, sc *scope, e expr.Expr) bool {
	b, ok := e.(expr.Binary)
	if !ok {
		return false
	}
	if b.Op == expr.OpConcat {
		return true
	}
	return b.Op == expr.OpAdd && (c.typeOf(sc, b.L).Textual() || c.typeOf(sc, b.R).Textual())
}

func convertConcatenation(c *compilation, sc *scope, e expr.Expr) (FeatureID, error) {
	return c.binary(sc, e.(expr.Binary), SigConcatenate, metamodel.TypeString)
}

func matchArithmetic(_ *compilation, _ *scope, e expr.Expr) bool {
	switch e := e.(type) {
	case expr.Binary:
		return e.Op.Arithmetic()
	case expr.Unary:
		return e.Op == expr.OpNeg
	}
	return false
}

func convertArithmetic(c *compilation, sc *scope, e expr.Expr) (FeatureID, error) {
	i, err := c.infer(sc, e)
	if err != nil {
		return 0, err
	}
	if u, ok := e.(expr.Unary); ok {
		x, err := c.convert(sc, u.X)
		if err != nil {
			return 0, err
		}
		return c.function(SigNegate, i.typ, x), nil
	}
	b := e.(expr.Binary)
	decimal := i.typ == metamodel.TypeDecimal
	var sig Signature
	switch b.Op {
	case expr.OpAdd:
		sig = pick(decimal, SigAddDecimal, SigAdd)
	case expr.OpSub:
		sig = pick(decimal, SigSubtractDecimal, SigSubtract)
	case expr.OpMul:
		sig = pick(decimal, SigMultiplyDecimal, SigMultiply)
	case expr.OpDiv:
		sig = SigDivide
		switch {
		case c.typeOf(sc, b.L) == metamodel.TypeDecimal || c.typeOf(sc, b.R) == metamodel.TypeDecimal:
			sig = SigDivideDecimal
		case i.typ == metamodel.TypeDecimal:
			sig = SigDivideInteger
		}
	case expr.OpMod:
		sig = SigModulo
	}
	return c.binary(sc, b, sig, i.typ)
}

func pick(cond bool, a, b Signature) Signature {
	if cond {
		return a
	}
	return b
}

func (c *compilation) binary(sc *scope, b expr.Binary, sig Signature, typ metamodel.Type) (FeatureID, error) {
	l, err := c.operand(sc, b.L, c.attrOf(sc, b.R))
	if err != nil {
		return 0, err
	}
	r, err := c.operand(sc, b.R, c.attrOf(sc, b.L))
	if err != nil {
		return 0, err
	}
	return c.function(sig, typ, l, r), nil
}

func matchComparison(_ *compilation, _ *scope, e expr.Expr) bool {
	b, ok := e.(expr.Binary)
	return ok && b.Op.Comparison()
}

func convertComparison(c *compilation, sc *scope, e expr.Expr) (FeatureID, error) {
	b := e.(expr.Binary)
	return c.binary(sc, b, comparisons[b.Op], metamodel.TypeBoolean)
}

var logicals = map[expr.BinaryOp]Signature{
	expr.OpAnd:     SigAnd,
	expr.OpOr:      SigOr,
	expr.OpXor:     SigXor,
	expr.OpImplies: SigImplies,
}

func matchLogical(_ *compilation, _ *scope, e expr.Expr) bool {
	switch e := e.(type) {
	case expr.Binary:
		return e.Op.Logical()
	case expr.Unary:
		return e.Op == expr.OpNot
	}
	return false
}

func convertLogical(c *compilation, sc *scope, e expr.Expr) (FeatureID, error) {
	if u, ok := e.(expr.Unary); ok {
		x, err := c.condition(sc, u.X)
		if err != nil {
			return 0, err
		}
		return c.function(SigNot, metamodel.TypeBoolean, x), nil
	}
	b := e.(expr.Binary)
	l, err := c.condition(sc, b.L)
	if err != nil {
		return 0, err
	}
	r, err := c.condition(sc, b.R)
	if err != nil {
		return 0, err
	}
	return c.function(logicals[b.Op], metamodel.TypeBoolean, l, r), nil
}

var calls = map[expr.Func]struct {
	sig   Signature
	arity int
}{
	expr.FuncLength:      {SigLength, 1},
	expr.FuncLower:       {SigLower, 1},
	expr.FuncUpper:       {SigUpper, 1},
	expr.FuncTrim:        {SigTrim, 1},
	expr.FuncSubstring:   {SigSubstring, 3},
	expr.FuncPosition:    {SigPosition, 2},
	expr.FuncReplace:     {SigReplace, 3},
	expr.FuncRound:       {SigRound, 1},
	expr.FuncFloor:       {SigFloor, 1},
	expr.FuncCeil:        {SigCeil, 1},
	expr.FuncAbs:         {SigAbs, 1},
	expr.FuncYear:        {SigYear, 1},
	expr.FuncMonth:       {SigMonth, 1},
	expr.FuncDay:         {SigDay, 1},
	expr.FuncHour:        {SigHour, 1},
	expr.FuncMinute:      {SigMinute, 1},
	expr.FuncSecond:      {SigSecond, 1},
	expr.FuncMillisecond: {SigMillisecond, 1},
	expr.FuncToString:    {SigToString, 1},
	expr.FuncNow:         {SigNow, 0},
	expr.FuncToday:       {SigToday, 0},
	expr.FuncAddDays:     {SigAddDays, 2},
}

func matchCall(_ *compilation, _ *scope, e expr.Expr) bool {
	call, ok := e.(expr.Call)
	if !ok {
		return false
	}
	_, ok = calls[call.Func]
	return ok
}

func convertCall(c *compilation, sc *scope, e expr.Expr) (FeatureID, error) {
	call := e.(expr.Call)
	fn := calls[call.Func]
	if len(call.Args) != fn.arity {
		return 0, strata.NewConfigError(string(call.Func), "takes %d arguments, got %d", fn.arity, len(call.Args))
	}
	i, err := c.infer(sc, e)
	if err != nil {
		return 0, err
	}
	params := make([]FeatureID, len(call.Args))
	for n, arg := range call.Args {
		if params[n], err = c.convert(sc, arg); err != nil {
			return 0, err
		}
	}
	return c.function(fn.sig, i.typ, params...), nil
}

func matchLike(_ *compilation, _ *scope, e expr.Expr) bool {
	_, ok := e.(expr.Like)
	return ok
}

func convertLike(c *compilation, sc *scope, e expr.Expr) (FeatureID, error) {
	l := e.(expr.Like)
	x, err := c.convert(sc, l.X)
	if err != nil {
		return 0, err
	}
	p, err := c.convert(sc, l.Pattern)
	if err != nil {
		return 0, err
	}
	return c.function(pick(l.CaseInsensitive, SigILike, SigLike), metamodel.TypeBoolean, x, p), nil
}

func matchMatches(_ *compilation, _ *scope, e expr.Expr) bool {
	_, ok := e.(expr.Matches)
	return ok
}

func convertMatches(c *compilation, sc *scope, e expr.Expr) (FeatureID, error) {
	m := e.(expr.Matches)
	x, err := c.convert(sc, m.X)
	if err != nil {
		return 0, err
	}
	p, err := c.convert(sc, m.Pattern)
	if err != nil {
		return 0, err
	}
	return c.function(SigMatches, metamodel.TypeBoolean, x, p), nil
}

func matchUndefined(_ *compilation, _ *scope, e expr.Expr) bool {
	_, ok := e.(expr.IsUndefined)
	return ok
}

// convertUndefined tests attributes for NULL and instances for a missing row.
func convertUndefined(c *compilation, sc *scope, e expr.Expr) (FeatureID, error) {
	x := e.(expr.IsUndefined).X
	i, err := c.infer(sc, x)
	if err != nil {
		return 0, err
	}
	var f FeatureID
	switch i.shape {
	case shapeInstance:
		in, err := c.instanceOf(sc, x)
		if err != nil {
			return 0, err
		}
		f = c.identifier(in)
	case shapeValue:
		if f, err = c.convert(sc, x); err != nil {
			return 0, err
		}
	default:
		return 0, strata.NewConfigError(x.String(), "collections are never undefined, use exists")
	}
	return c.function(SigIsNull, metamodel.TypeBoolean, f), nil
}

func matchAggregate(_ *compilation, _ *scope, e expr.Expr) bool {
	_, ok := e.(expr.Aggregate)
	return ok
}

func convertAggregate(c *compilation, sc *scope, e expr.Expr) (FeatureID, error) {
	a := e.(expr.Aggregate)
	i, err := c.infer(sc, a)
	if err != nil {
		return 0, err
	}
	p, err := c.collectionOf(sc, a.Collection)
	if err != nil {
		return 0, err
	}
	sub, isc, elem, err := c.correlate(sc, p, SubSelectAggregate)
	if err != nil {
		return 0, err
	}
	var arg FeatureID
	if a.Op == expr.AggCount {
		arg = c.identifier(elem)
	} else if arg, err = c.convert(isc.bind(a.Var, elem), a.Value); err != nil {
		return 0, err
	}
	inner := c.m.Select(sub.Select)
	c.project(inner, c.function(AggregateSignature(a.Op, i.typ), i.typ, arg))
	return c.m.addFeature(&Feature{Kind: FeatureSubSelect, Type: i.typ, SubSelect: sub.id}), nil
}

func matchExists(_ *compilation, _ *scope, e expr.Expr) bool {
	_, ok := e.(expr.Exists)
	return ok
}

func convertExists(c *compilation, sc *scope, e expr.Expr) (FeatureID, error) {
	x := e.(expr.Exists)
	p, err := c.collectionOf(sc, x.Collection)
	if err != nil {
		return 0, err
	}
	sub, isc, elem, err := c.correlate(sc, p, SubSelectExists)
	if err != nil {
		return 0, err
	}
	if x.Cond != nil {
		if err := c.applyFilters(isc, elem, []filter{{v: x.Var, cond: x.Cond}}); err != nil {
			return 0, err
		}
	}
	return c.m.addFeature(&Feature{Kind: FeatureSubSelect, Type: metamodel.TypeBoolean, SubSelect: sub.id}), nil
}

func matchAttribute(c *compilation, sc *scope, e expr.Expr) bool {
	_, ok := e.(expr.Attr)
	return ok && c.attrOf(sc, e) != nil
}

func convertAttribute(c *compilation, sc *scope, e expr.Expr) (FeatureID, error) {
	a := e.(expr.Attr)
	in, err := c.instanceOf(sc, a.From)
	if err != nil {
		return 0, err
	}
	return c.attribute(sc, in, c.attrOf(sc, e)), nil
}

func matchInstance(c *compilation, sc *scope, e expr.Expr) bool {
	i, err := c.infer(sc, e)
	return err == nil && i.shape == shapeInstance
}

// convertInstance compares instances by identifier.
func convertInstance(c *compilation, sc *scope, e expr.Expr) (FeatureID, error) {
	in, err := c.instanceOf(sc, e)
	if err != nil {
		return 0, err
	}
	return c.identifier(in), nil
}

func matchLiteral(_ *compilation, _ *scope, e expr.Expr) bool {
	_, ok := e.(expr.Lit)
	return ok
}

func convertLiteral(c *compilation, _ *scope, e expr.Expr) (FeatureID, error) {
	return c.literal(e.(expr.Lit), nil), nil
}
