package expr

// Self returns the expression denoting the evaluated instance.
func Self() Expr { return SelfExpr{} }

// Variable returns a reference to a bound variable.
func Variable(name string) Expr { return Var{Name: name} }

// Navigate returns the navigation of reference from the instance or
// collection denoted by from.
func Navigate(from Expr, reference string) Expr { return Nav{From: from, Reference: reference} }

// Attribute returns the attribute name of the instance denoted by from.
func Attribute(from Expr, name string) Expr { return Attr{From: from, Name: name} }

// Extent returns every instance of the entity type.
func Extent(entity string) Expr { return All{Entity: entity} }

// Eq returns l == r.
func Eq(l, r Expr) Expr { return Binary{Op: OpEq, L: l, R: r} }

// Neq returns l != r.
func Neq(l, r Expr) Expr { return Binary{Op: OpNeq, L: l, R: r} }

// Lt returns l < r.
func Lt(l, r Expr) Expr { return Binary{Op: OpLt, L: l, R: r} }

// Lte returns l <= r.
func Lte(l, r Expr) Expr { return Binary{Op: OpLte, L: l, R: r} }

// Gt returns l > r.
func Gt(l, r Expr) Expr { return Binary{Op: OpGt, L: l, R: r} }

// Gte returns l >= r.
func Gte(l, r Expr) Expr { return Binary{Op: OpGte, L: l, R: r} }

// And folds the operands with a logical and. It returns nil without operands.
func And(xs ...Expr) Expr { return fold(OpAnd, xs) }

// Or folds the operands with a logical or. It returns nil without operands.
func Or(xs ...Expr) Expr { return fold(OpOr, xs) }

// Not returns the logical negation of x.
func Not(x Expr) Expr { return Unary{Op: OpNot, X: x} }

// Neg returns the arithmetic negation of x.
func Neg(x Expr) Expr { return Unary{Op: OpNeg, X: x} }

// Add returns l + r.
func Add(l, r Expr) Expr { return Binary{Op: OpAdd, L: l, R: r} }

// Sub returns l - r. Between dates it is the difference in days, between
// timestamps the difference in milliseconds.
func Sub(l, r Expr) Expr { return Binary{Op: OpSub, L: l, R: r} }

// Mul returns l * r.
func Mul(l, r Expr) Expr { return Binary{Op: OpMul, L: l, R: r} }

// Div returns l / r.
func Div(l, r Expr) Expr { return Binary{Op: OpDiv, L: l, R: r} }

// Mod returns the remainder of l / r.
func Mod(l, r Expr) Expr { return Binary{Op: OpMod, L: l, R: r} }

// Concat returns the concatenation of two strings.
func Concat(l, r Expr) Expr { return Binary{Op: OpConcat, L: l, R: r} }

// Apply returns a call of a built-in function.
func Apply(fn Func, args ...Expr) Expr { return Call{Func: fn, Args: args} }

// LikeOf returns x like pattern.
func LikeOf(x, pattern Expr) Expr { return Like{X: x, Pattern: pattern} }

// ILikeOf returns the case-insensitive x like pattern.
func ILikeOf(x, pattern Expr) Expr { return Like{X: x, Pattern: pattern, CaseInsensitive: true} }

// MatchesOf returns x matches pattern.
func MatchesOf(x, pattern Expr) Expr { return Matches{X: x, Pattern: pattern} }

// Undefined returns x.isUndefined().
func Undefined(x Expr) Expr { return IsUndefined{X: x} }

// Where returns the elements of collection satisfying cond.
func Where(collection Expr, v string, cond Expr) Expr {
	return Filter{Collection: collection, Var: v, Cond: cond}
}

// Count returns the number of elements of collection.
func Count(collection Expr) Expr { return Aggregate{Op: AggCount, Collection: collection} }

// Sum returns the sum of value over the elements of collection.
func Sum(collection Expr, v string, value Expr) Expr {
	return Aggregate{Op: AggSum, Collection: collection, Var: v, Value: value}
}

// Min returns the minimum of value over the elements of collection.
func Min(collection Expr, v string, value Expr) Expr {
	return Aggregate{Op: AggMin, Collection: collection, Var: v, Value: value}
}

// Max returns the maximum of value over the elements of collection.
func Max(collection Expr, v string, value Expr) Expr {
	return Aggregate{Op: AggMax, Collection: collection, Var: v, Value: value}
}

// Avg returns the average of value over the elements of collection.
func Avg(collection Expr, v string, value Expr) Expr {
	return Aggregate{Op: AggAvg, Collection: collection, Var: v, Value: value}
}

// Head returns the first element of collection by the given orders.
func Head(collection Expr, v string, orders ...Order) Expr {
	return Selector{Op: SelectHead, Collection: collection, Var: v, Orders: orders}
}

// Tail returns the last element of collection by the given orders.
func Tail(collection Expr, v string, orders ...Order) Expr {
	return Selector{Op: SelectTail, Collection: collection, Var: v, Orders: orders}
}

// Any returns an arbitrary element of collection.
func Any(collection Expr) Expr { return Selector{Op: SelectAny, Collection: collection} }

// Some holds if an element of collection satisfies cond.
func Some(collection Expr, v string, cond Expr) Expr {
	return Exists{Collection: collection, Var: v, Cond: cond}
}

// Asc orders by by.
func Asc(by Expr) Order { return Order{By: by} }

// Desc orders by by, descending.
func Desc(by Expr) Order { return Order{By: by, Descending: true} }

func fold(op BinaryOp, xs []Expr) Expr {
	var acc Expr
	for _, x := range xs {
		if x == nil {
			continue
		}
		if acc == nil {
			acc = x
			continue
		}
		acc = Binary{Op: op, L: acc, R: x}
	}
	return acc
}
