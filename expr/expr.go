// Package expr defines the typed object-graph expressions bound to transfer
// attributes and relations.
//
// Expr is a sealed interface: only the node types of this package implement
// it, so compilers can switch exhaustively over the node kinds. Nodes refer
// to attributes and references by name; resolving names against the entity
// metamodel is the job of the query compiler.
//
// Expressions are evaluated relative to an instance ("self"). Navigation
// through a to-one reference yields an instance, navigation through a
// to-many reference yields a collection that can be filtered, aggregated,
// tested for existence or reduced to one element by a selector:
//
//	// self.orders->select(o | o.total > 100)->size()
//	expr.Count(expr.Where(expr.Navigate(expr.Self(), "orders"), "o",
//	    expr.Gt(expr.Attribute(expr.Variable("o"), "total"), expr.Int(100))))
package expr

import (
	"strconv"
	"strings"
)

// Expr is a node of an expression tree.
type Expr interface {
	exprNode() // seals the interface to this package
	String() string
}

// SelfExpr is the instance the expression is evaluated on.
type SelfExpr struct{}

func (SelfExpr) exprNode() {}
func (SelfExpr) String() string { return "self" }

// Var is a variable bound by an enclosing Filter, Exists, Aggregate or Selector.
type Var struct {
	Name string
}

func (Var) exprNode() {}
func (v Var) String() string { return v.Name }

// Nav navigates a reference of the instance (or of every element of the
// collection) denoted by From.
type Nav struct {
	From      Expr
	Reference string
}

func (Nav) exprNode() {}
func (n Nav) String() string { return n.From.String() + "." + n.Reference }

// Attr reads an attribute of the instance denoted by From.
type Attr struct {
	From Expr
	Name string
}

func (Attr) exprNode() {}
func (a Attr) String() string { return a.From.String() + "." + a.Name }

// All is the extent of an entity type: every stored instance of it or of
// one of its subtypes.
type All struct {
	Entity string
}

func (All) exprNode() {}
func (a All) String() string { return a.Entity + ".all()" }

// UnaryOp is the operator of a Unary node.
type UnaryOp int

// Unary operators.
const (
	OpNot UnaryOp = iota + 1
	OpNeg
)

// Unary applies a logical or arithmetic prefix operator.
type Unary struct {
	Op UnaryOp
	X  Expr
}

func (Unary) exprNode() {}
func (u Unary) String() string {
	if u.Op == OpNot {
		return "not " + u.X.String()
	}
	return "-" + u.X.String()
}

// BinaryOp is the operator of a Binary node.
type BinaryOp int

// Binary operators.
const (
	OpEq BinaryOp = iota + 1
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAnd
	OpOr
	OpXor
	OpImplies
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpConcat
)

var binaryOps = [...]string{
	OpEq:      "==",
	OpNeq:     "!=",
	OpLt:      "<",
	OpLte:     "<=",
	OpGt:      ">",
	OpGte:     ">=",
	OpAnd:     "and",
	OpOr:      "or",
	OpXor:     "xor",
	OpImplies: "implies",
	OpAdd:     "+",
	OpSub:     "-",
	OpMul:     "*",
	OpDiv:     "/",
	OpMod:     "mod",
	OpConcat:  "+",
}

// String returns the operator symbol.
func (o BinaryOp) String() string {
	if int(o) < len(binaryOps) && binaryOps[o] != "" {
		return binaryOps[o]
	}
	return "op(" + strconv.Itoa(int(o)) + ")"
}

// Comparison reports whether the operator compares its operands.
func (o BinaryOp) Comparison() bool { return o >= OpEq && o <= OpGte }

// Logical reports whether the operator combines boolean operands.
func (o BinaryOp) Logical() bool { return o >= OpAnd && o <= OpImplies }

// Arithmetic reports whether the operator is numeric (or temporal) arithmetic.
func (o BinaryOp) Arithmetic() bool { return o >= OpAdd && o <= OpMod }

// Binary applies an infix operator.
type Binary struct {
	Op   BinaryOp
	L, R Expr
}

func (Binary) exprNode() {}
func (b Binary) String() string {
	return "(" + b.L.String() + " " + b.Op.String() + " " + b.R.String() + ")"
}

// Func names a built-in scalar function.
type Func string

// Built-in functions.
const (
	FuncLength      Func = "length"
	FuncLower       Func = "lower"
	FuncUpper       Func = "upper"
	FuncTrim        Func = "trim"
	FuncSubstring   Func = "substring" // (string, start, length), 1-based
	FuncPosition    Func = "position"  // (string, search), 1-based, 0 if absent
	FuncReplace     Func = "replace"
	FuncRound       Func = "round"
	FuncFloor       Func = "floor"
	FuncCeil        Func = "ceil"
	FuncAbs         Func = "abs"
	FuncYear        Func = "year"
	FuncMonth       Func = "month"
	FuncDay         Func = "day"
	FuncHour        Func = "hour"
	FuncMinute      Func = "minute"
	FuncSecond      Func = "second"
	FuncMillisecond Func = "millisecond"
	FuncToString    Func = "toString"
	FuncNow         Func = "now"
	FuncToday       Func = "today"
	FuncAddDays     Func = "addDays" // (date, days)
)

// Call applies a built-in function.
type Call struct {
	Func Func
	Args []Expr
}

func (Call) exprNode() {}
func (c Call) String() string {
	var b strings.Builder
	b.WriteString(string(c.Func))
	b.WriteByte('(')
	for i, a := range c.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Like matches X against a SQL-style pattern (% and _ wildcards).
type Like struct {
	X               Expr
	Pattern         Expr
	CaseInsensitive bool
}

func (Like) exprNode() {}
func (l Like) String() string {
	op := " like "
	if l.CaseInsensitive {
		op = " ilike "
	}
	return l.X.String() + op + l.Pattern.String()
}

// Matches tests X against a regular expression.
type Matches struct {
	X       Expr
	Pattern Expr
}

func (Matches) exprNode() {}
func (m Matches) String() string { return m.X.String() + " matches " + m.Pattern.String() }

// IsUndefined tests whether an attribute value or a to-one navigation is absent.
type IsUndefined struct {
	X Expr
}

func (IsUndefined) exprNode() {}
func (u IsUndefined) String() string { return u.X.String() + ".isUndefined()" }
