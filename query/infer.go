package query

import (
	"github.com/syssam/strata"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/metamodel"
)

type shape int

const (
	shapeValue shape = iota + 1
	shapeInstance
	shapeCollection
)

// info is the static type of an expression.
type info struct {
	shape  shape
	typ    metamodel.Type        // values
	entity *metamodel.EntityType // instances and collections
	attr   *metamodel.Attribute  // values read from an attribute
}

func value(t metamodel.Type) info { return info{shape: shapeValue, typ: t} }

var litTypes = map[expr.LitKind]metamodel.Type{
	expr.LitString:     metamodel.TypeString,
	expr.LitInteger:    metamodel.TypeInteger,
	expr.LitBigInteger: metamodel.TypeBigInteger,
	expr.LitDecimal:    metamodel.TypeDecimal,
	expr.LitFloat:      metamodel.TypeFloat,
	expr.LitBoolean:    metamodel.TypeBoolean,
	expr.LitDate:       metamodel.TypeDate,
	expr.LitTime:       metamodel.TypeTime,
	expr.LitTimestamp:  metamodel.TypeTimestamp,
	expr.LitUUID:       metamodel.TypeUUID,
}

var funcTypes = map[expr.Func]metamodel.Type{
	expr.FuncLength:      metamodel.TypeInteger,
	expr.FuncPosition:    metamodel.TypeInteger,
	expr.FuncLower:       metamodel.TypeString,
	expr.FuncUpper:       metamodel.TypeString,
	expr.FuncTrim:        metamodel.TypeString,
	expr.FuncSubstring:   metamodel.TypeString,
	expr.FuncReplace:     metamodel.TypeString,
	expr.FuncToString:    metamodel.TypeString,
	expr.FuncRound:       metamodel.TypeInteger,
	expr.FuncFloor:       metamodel.TypeInteger,
	expr.FuncCeil:        metamodel.TypeInteger,
	expr.FuncYear:        metamodel.TypeInteger,
	expr.FuncMonth:       metamodel.TypeInteger,
	expr.FuncDay:         metamodel.TypeInteger,
	expr.FuncHour:        metamodel.TypeInteger,
	expr.FuncMinute:      metamodel.TypeInteger,
	expr.FuncSecond:      metamodel.TypeInteger,
	expr.FuncMillisecond: metamodel.TypeInteger,
	expr.FuncNow:         metamodel.TypeTimestamp,
	expr.FuncToday:       metamodel.TypeDate,
	expr.FuncAddDays:     metamodel.TypeDate,
}

// infer computes the static type of e without touching the model.
func (c *compilation) infer(sc *scope, e expr.Expr) (info, error) {
	switch e := e.(type) {
	case expr.SelfExpr:
		if sc.self.entity == nil {
			return info{}, strata.NewConfigError("self", "self is not available in this context")
		}
		return info{shape: shapeInstance, entity: sc.self.entity}, nil
	case expr.Var:
		in, err := sc.lookup(e.Name)
		if err != nil {
			return info{}, err
		}
		return info{shape: shapeInstance, entity: in.entity}, nil
	case expr.All:
		ent, err := c.entity(e.Entity)
		if err != nil {
			return info{}, err
		}
		return info{shape: shapeCollection, entity: ent}, nil
	case expr.Nav:
		return c.inferMember(sc, e.From, e.Reference, false)
	case expr.Attr:
		return c.inferMember(sc, e.From, e.Name, true)
	case expr.Filter:
		return c.inferCollection(sc, e.Collection)
	case expr.Selector:
		ci, err := c.inferCollection(sc, e.Collection)
		if err != nil {
			return info{}, err
		}
		return info{shape: shapeInstance, entity: ci.entity}, nil
	case expr.Aggregate:
		return c.inferAggregate(sc, e)
	case expr.Exists, expr.Like, expr.Matches, expr.IsUndefined:
		return value(metamodel.TypeBoolean), nil
	case expr.Lit:
		t, ok := litTypes[e.Kind]
		if !ok {
			return info{}, strata.NewConfigError(e.String(), "unknown literal kind")
		}
		return value(t), nil
	case expr.EnumLit:
		return value(metamodel.TypeEnum), nil
	case expr.Unary:
		if e.Op == expr.OpNot {
			return value(metamodel.TypeBoolean), nil
		}
		x, err := c.inferValue(sc, e.X)
		if err != nil {
			return info{}, err
		}
		return value(x.typ), nil
	case expr.Binary:
		return c.inferBinary(sc, e)
	case expr.Call:
		t, ok := funcTypes[e.Func]
		if !ok {
			if e.Func != expr.FuncAbs || len(e.Args) != 1 {
				return info{}, strata.NewConfigError(string(e.Func), "unknown function")
			}
			x, err := c.inferValue(sc, e.Args[0])
			if err != nil {
				return info{}, err
			}
			t = x.typ
		}
		return value(t), nil
	}
	return info{}, strata.NewConfigError(e.String(), "unsupported expression")
}

func (c *compilation) inferMember(sc *scope, from expr.Expr, name string, attr bool) (info, error) {
	fi, err := c.infer(sc, from)
	if err != nil {
		return info{}, err
	}
	if fi.shape == shapeValue {
		return info{}, strata.NewConfigError(from.String()+"."+name, "member of a primitive value")
	}
	if attr {
		if a := fi.entity.Attribute(name); a != nil {
			if fi.shape == shapeCollection {
				return info{}, strata.NewConfigError(fi.entity.Name+"."+name, "attribute of a collection")
			}
			return info{shape: shapeValue, typ: a.Type, attr: a}, nil
		}
	}
	r := fi.entity.Reference(name)
	if r == nil {
		return info{}, strata.NewConfigError(fi.entity.Name+"."+name, "unknown member")
	}
	if fi.shape == shapeCollection || r.IsMany() {
		return info{shape: shapeCollection, entity: r.Target}, nil
	}
	return info{shape: shapeInstance, entity: r.Target}, nil
}

func (c *compilation) inferCollection(sc *scope, e expr.Expr) (info, error) {
	ci, err := c.infer(sc, e)
	if err != nil {
		return info{}, err
	}
	if ci.shape != shapeCollection {
		return info{}, strata.NewConfigError(e.String(), "expression is not a collection")
	}
	return ci, nil
}

func (c *compilation) inferValue(sc *scope, e expr.Expr) (info, error) {
	vi, err := c.infer(sc, e)
	if err != nil {
		return info{}, err
	}
	if vi.shape != shapeValue {
		return info{}, strata.NewConfigError(e.String(), "expression is not a primitive value")
	}
	return vi, nil
}

func (c *compilation) inferAggregate(sc *scope, a expr.Aggregate) (info, error) {
	ci, err := c.inferCollection(sc, a.Collection)
	if err != nil {
		return info{}, err
	}
	if a.Op == expr.AggCount {
		return value(metamodel.TypeInteger), nil
	}
	if a.Value == nil {
		return info{}, strata.NewConfigError(a.String(), "%s needs a value expression", a.Op)
	}
	vi, err := c.inferValue(sc.bind(a.Var, instance{entity: ci.entity, table: ci.entity}), a.Value)
	if err != nil {
		return info{}, err
	}
	switch a.Op {
	case expr.AggSum:
		if !vi.typ.Numeric() {
			return info{}, strata.NewConfigError(a.String(), "sum of %s values", vi.typ)
		}
	case expr.AggAvg:
		if !vi.typ.Numeric() {
			return info{}, strata.NewConfigError(a.String(), "average of %s values", vi.typ)
		}
		if vi.typ == metamodel.TypeFloat {
			return value(metamodel.TypeFloat), nil
		}
		return value(metamodel.TypeDecimal), nil
	}
	return value(vi.typ), nil
}

func (c *compilation) inferBinary(sc *scope, b expr.Binary) (info, error) {
	if b.Op.Comparison() || b.Op.Logical() {
		return value(metamodel.TypeBoolean), nil
	}
	if b.Op == expr.OpConcat {
		return value(metamodel.TypeString), nil
	}
	l, err := c.inferValue(sc, b.L)
	if err != nil {
		return info{}, err
	}
	r, err := c.inferValue(sc, b.R)
	if err != nil {
		return info{}, err
	}
	switch {
	case b.Op == expr.OpAdd && (l.typ.Textual() || r.typ.Textual()):
		return value(metamodel.TypeString), nil
	case b.Op == expr.OpSub && l.typ == r.typ && (l.typ == metamodel.TypeDate || l.typ == metamodel.TypeTimestamp):
		return value(metamodel.TypeInteger), nil
	case !l.typ.Numeric() || !r.typ.Numeric():
		return info{}, strata.NewConfigError(b.String(), "arithmetic on %s and %s", l.typ, r.typ)
	}
	t := promote(l.typ, r.typ)
	if b.Op == expr.OpDiv && t != metamodel.TypeFloat {
		t = metamodel.TypeDecimal
	}
	return value(t), nil
}

// promote returns the wider of two numeric types.
func promote(l, r metamodel.Type) metamodel.Type {
	for _, t := range []metamodel.Type{metamodel.TypeDecimal, metamodel.TypeFloat, metamodel.TypeBigInteger} {
		if l == t || r == t {
			return t
		}
	}
	return metamodel.TypeInteger
}
