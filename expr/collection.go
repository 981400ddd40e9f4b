package expr

import "strings"

// Filter restricts a collection to the elements for which Cond holds. Var
// names the element inside Cond.
type Filter struct {
	Collection Expr
	Var        string
	Cond       Expr
}

func (Filter) exprNode() {}
func (f Filter) String() string {
	return f.Collection.String() + "->select(" + f.Var + " | " + f.Cond.String() + ")"
}

// AggregateOp is the operator of an Aggregate node.
type AggregateOp int

// Aggregate operators.
const (
	AggCount AggregateOp = iota + 1
	AggSum
	AggMin
	AggMax
	AggAvg
)

// String returns the operator name.
func (o AggregateOp) String() string {
	switch o {
	case AggCount:
		return "size"
	case AggSum:
		return "sum"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggAvg:
		return "avg"
	}
	return "aggregate"
}

// Aggregate folds a collection into a scalar. Value is evaluated per
// element (bound to Var) and is nil for counting.
type Aggregate struct {
	Op         AggregateOp
	Collection Expr
	Var        string
	Value      Expr
}

func (Aggregate) exprNode() {}
func (a Aggregate) String() string {
	if a.Value == nil {
		return a.Collection.String() + "->" + a.Op.String() + "()"
	}
	return a.Collection.String() + "->" + a.Op.String() + "(" + a.Var + " | " + a.Value.String() + ")"
}

// SelectorOp is the operator of a Selector node.
type SelectorOp int

// Selector operators.
const (
	SelectHead SelectorOp = iota + 1
	SelectTail
	SelectAny
)

// String returns the operator name.
func (o SelectorOp) String() string {
	switch o {
	case SelectHead:
		return "head"
	case SelectTail:
		return "tail"
	}
	return "any"
}

// Order is one ordering criterion of a Selector, evaluated per element.
type Order struct {
	By         Expr
	Descending bool
}

// Selector reduces a collection to a single instance: the first (head) or
// last (tail) element by Orders, or an arbitrary one (any).
type Selector struct {
	Op         SelectorOp
	Collection Expr
	Var        string
	Orders     []Order
}

func (Selector) exprNode() {}
func (s Selector) String() string {
	var b strings.Builder
	b.WriteString(s.Collection.String())
	b.WriteString("->")
	b.WriteString(s.Op.String())
	b.WriteByte('(')
	for i, o := range s.Orders {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.Var)
		b.WriteString(" | ")
		b.WriteString(o.By.String())
		if o.Descending {
			b.WriteString(" desc")
		}
	}
	b.WriteByte(')')
	return b.String()
}

// Exists holds if any element of the collection satisfies Cond (or if the
// collection is not empty when Cond is nil).
type Exists struct {
	Collection Expr
	Var        string
	Cond       Expr
}

func (Exists) exprNode() {}
func (e Exists) String() string {
	if e.Cond == nil {
		return e.Collection.String() + "->exists()"
	}
	return e.Collection.String() + "->exists(" + e.Var + " | " + e.Cond.String() + ")"
}
