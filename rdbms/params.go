package rdbms

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/metamodel"
)

// Parameter is a value bound to a placeholder.
type Parameter struct {
	// Value is the value handed to the driver.
	Value any
	// SQLType is the database type of the value, e.g. NUMERIC(10,2).
	SQLType string
	// TypeName is the metamodel type of the value.
	TypeName string
	// Cast marks values whose placeholder needs an explicit type.
	Cast bool
}

// Textual representations of temporal values.
const (
	dateLayout      = time.DateOnly
	timeLayout      = "15:04:05.000"
	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// Param maps a value to its parameter. The type is taken from t, then
// from the attribute a, then from the Go type of v.
func (d *Dialect) Param(v any, t metamodel.Type, a *metamodel.Attribute) (Parameter, error) {
	if t == 0 && a != nil {
		t = a.Type
	}
	if t == 0 {
		t = typeOf(v)
	}
	p := Parameter{SQLType: d.TypeName(t), TypeName: t.String()}
	if v == nil {
		return p, nil
	}
	var err error
	switch t {
	case metamodel.TypeString, metamodel.TypeText:
		p.Value, err = asString(v)
		if a != nil && a.MaxLength > 0 && d.Name != dialect.SQLite && t == metamodel.TypeString {
			p.SQLType = fmt.Sprintf("%s(%d)", p.SQLType, a.MaxLength)
		}
	case metamodel.TypeInteger:
		p.Value, err = asInt(v)
	case metamodel.TypeEnum:
		p.Value, err = asOrdinal(v, a)
	case metamodel.TypeBigInteger:
		var n *big.Int
		if n, err = asBigInt(v); err == nil {
			p.Value = n.String()
			digits := len(new(big.Int).Abs(n).String())
			if a != nil && a.Precision > digits {
				digits = a.Precision
			}
			p.SQLType = d.numeric(digits, 0)
			p.Cast = true
		}
	case metamodel.TypeDecimal:
		var dec decimal.Decimal
		if dec, err = asDecimal(v); err == nil {
			p.Value = dec.String()
			prec, scale := decimalShape(a, dec)
			p.SQLType = d.numeric(prec, scale)
			p.Cast = true
		}
	case metamodel.TypeFloat:
		p.Value, err = asFloat(v)
	case metamodel.TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			err = fmt.Errorf("rdbms: %T is not a boolean", v)
		}
		p.Value = b
	case metamodel.TypeDate:
		var ts time.Time
		if ts, err = asTime(v, dateLayout); err == nil {
			p.Value = ts.Format(dateLayout)
			p.Cast = true
		}
	case metamodel.TypeTime:
		var ts time.Time
		if ts, err = asTime(v, timeLayout); err == nil {
			p.Value = ts.Format(timeLayout)
			p.Cast = true
		}
	case metamodel.TypeTimestamp:
		var ts time.Time
		if ts, err = asTime(v, time.RFC3339Nano); err == nil {
			ts = ts.UTC()
			switch d.Name {
			case dialect.SQLite:
				p.Value = ts.Format(timestampLayout)
			default:
				p.Value = ts
				p.Cast = d.Name == dialect.Postgres
			}
		}
	case metamodel.TypeUUID:
		var id uuid.UUID
		if id, err = asUUID(v); err == nil {
			p.Value = id.String()
			p.Cast = d.Name == dialect.Postgres
		}
	default:
		err = fmt.Errorf("rdbms: no parameter mapping for %T", v)
	}
	if err != nil {
		return Parameter{}, err
	}
	return p, nil
}

func (d *Dialect) numeric(precision, scale int) string {
	if d.Name == dialect.SQLite {
		return d.TypeName(metamodel.TypeDecimal)
	}
	return fmt.Sprintf("%s(%d,%d)", d.TypeName(metamodel.TypeDecimal), precision, scale)
}

// decimalShape returns the precision and scale of a decimal parameter:
// those of the attribute, or the smallest ones holding dec.
func decimalShape(a *metamodel.Attribute, dec decimal.Decimal) (int, int) {
	if a != nil && a.Precision > 0 {
		return a.Precision, a.Scale
	}
	scale := max(0, -int(dec.Exponent()))
	prec := len(new(big.Int).Abs(dec.Coefficient()).String())
	if prec <= scale {
		prec = scale + 1
	}
	return prec, scale
}

// typeOf infers the metamodel type of a Go value.
func typeOf(v any) metamodel.Type {
	switch v.(type) {
	case string:
		return metamodel.TypeString
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return metamodel.TypeInteger
	case *big.Int:
		return metamodel.TypeBigInteger
	case decimal.Decimal:
		return metamodel.TypeDecimal
	case float32, float64:
		return metamodel.TypeFloat
	case bool:
		return metamodel.TypeBoolean
	case time.Time:
		return metamodel.TypeTimestamp
	case uuid.UUID:
		return metamodel.TypeUUID
	}
	return 0
}

func asString(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", fmt.Errorf("rdbms: %T is not a string", v)
}

func asInt(v any) (int64, error) {
	switch v := v.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int64(v), nil
		}
	case decimal.Decimal:
		if v.IsInteger() {
			return v.IntPart(), nil
		}
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, fmt.Errorf("rdbms: %v (%T) is not an integer", v, v)
}

// asOrdinal maps enum literals to the stored ordinal.
func asOrdinal(v any, a *metamodel.Attribute) (int64, error) {
	if s, ok := v.(string); ok {
		if a == nil {
			return 0, fmt.Errorf("rdbms: enum literal %q without attribute", s)
		}
		ord, ok := a.Ordinal(s)
		if !ok {
			return 0, fmt.Errorf("rdbms: %q is not a literal of %s.%s", s, a.Owner.Name, a.Name)
		}
		return int64(ord), nil
	}
	return asInt(v)
}

func asBigInt(v any) (*big.Int, error) {
	switch v := v.(type) {
	case *big.Int:
		if v != nil {
			return v, nil
		}
	case string:
		if n, ok := new(big.Int).SetString(v, 10); ok {
			return n, nil
		}
	case decimal.Decimal:
		if v.IsInteger() {
			return v.BigInt(), nil
		}
	default:
		n, err := asInt(v)
		if err == nil {
			return big.NewInt(n), nil
		}
	}
	return nil, fmt.Errorf("rdbms: %v (%T) is not a big integer", v, v)
}

func asDecimal(v any) (decimal.Decimal, error) {
	switch v := v.(type) {
	case decimal.Decimal:
		return v, nil
	case *big.Int:
		return decimal.NewFromBigInt(v, 0), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		return decimal.NewFromString(v)
	}
	n, err := asInt(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("rdbms: %v (%T) is not a decimal", v, v)
	}
	return decimal.NewFromInt(n), nil
}

func asFloat(v any) (float64, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case decimal.Decimal:
		return v.InexactFloat64(), nil
	}
	n, err := asInt(v)
	if err != nil {
		return 0, fmt.Errorf("rdbms: %v (%T) is not a float", v, v)
	}
	return float64(n), nil
}

func asTime(v any, layout string) (time.Time, error) {
	switch v := v.(type) {
	case time.Time:
		return v, nil
	case string:
		return time.Parse(layout, v)
	}
	return time.Time{}, fmt.Errorf("rdbms: %T is not a temporal value", v)
}

func asUUID(v any) (uuid.UUID, error) {
	switch v := v.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		return uuid.Parse(v)
	case []byte:
		return uuid.FromBytes(v)
	}
	return uuid.Nil, fmt.Errorf("rdbms: %T is not an identifier", v)
}
