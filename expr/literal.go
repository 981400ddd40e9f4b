package expr

import (
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LitKind is the kind of a literal value.
type LitKind int

// Literal kinds.
const (
	LitString LitKind = iota + 1
	LitInteger
	LitBigInteger
	LitDecimal
	LitFloat
	LitBoolean
	LitDate
	LitTime
	LitTimestamp
	LitUUID
)

// Lit is a typed constant. Value holds string, int64, *big.Int,
// decimal.Decimal, float64, bool, time.Time or uuid.UUID according to Kind.
type Lit struct {
	Kind  LitKind
	Value any
}

func (Lit) exprNode() {}
func (l Lit) String() string {
	switch v := l.Value.(type) {
	case string:
		return strconv.Quote(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case *big.Int:
		return v.String()
	case decimal.Decimal:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		switch l.Kind {
		case LitDate:
			return v.Format(time.DateOnly)
		case LitTime:
			return v.Format(time.TimeOnly)
		}
		return v.Format(time.RFC3339Nano)
	case uuid.UUID:
		return v.String()
	}
	return "null"
}

// EnumLit is an enumeration literal. It is compared by ordinal against an
// enum attribute, so its position is only known once the attribute is.
type EnumLit struct {
	Value string
}

func (EnumLit) exprNode() {}
func (e EnumLit) String() string { return "#" + e.Value }

// String returns a string literal.
func String(s string) Lit { return Lit{Kind: LitString, Value: s} }

// Int returns an integer literal.
func Int(i int64) Lit { return Lit{Kind: LitInteger, Value: i} }

// BigInt returns an arbitrary precision integer literal.
func BigInt(i *big.Int) Lit { return Lit{Kind: LitBigInteger, Value: i} }

// Decimal returns a decimal literal.
func Decimal(d decimal.Decimal) Lit { return Lit{Kind: LitDecimal, Value: d} }

// Float returns a floating point literal.
func Float(f float64) Lit { return Lit{Kind: LitFloat, Value: f} }

// Bool returns a boolean literal.
func Bool(b bool) Lit { return Lit{Kind: LitBoolean, Value: b} }

// Date returns a calendar date literal; the time of day is dropped.
func Date(t time.Time) Lit {
	y, m, d := t.Date()
	return Lit{Kind: LitDate, Value: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// TimeOfDay returns a time-of-day literal.
func TimeOfDay(t time.Time) Lit { return Lit{Kind: LitTime, Value: t} }

// Timestamp returns an instant literal.
func Timestamp(t time.Time) Lit { return Lit{Kind: LitTimestamp, Value: t} }

// UUID returns an identifier literal.
func UUID(u uuid.UUID) Lit { return Lit{Kind: LitUUID, Value: u} }

// Enum returns an enumeration literal.
func Enum(value string) EnumLit { return EnumLit{Value: value} }
