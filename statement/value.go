package statement

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/syssam/strata/metamodel"
)

// Layouts of the textual date and time values in payloads.
const (
	DateLayout = time.DateOnly
	TimeLayout = "15:04:05.000"
)

// Conform returns v in the payload representation of the attribute type:
// string, int64, *big.Int, decimal.Decimal, float64, bool, the enum
// literal, a DateLayout or TimeLayout string, a UTC time.Time timestamp or
// a uuid.UUID. Values read from the database are already conformed.
func Conform(a *metamodel.Attribute, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch a.Type {
	case metamodel.TypeString, metamodel.TypeText:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case metamodel.TypeInteger:
		if n, ok := conformInt(v); ok {
			return n, nil
		}
	case metamodel.TypeBigInteger:
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
			if n, ok := conformInt(v); ok {
				return big.NewInt(n), nil
			}
		}
	case metamodel.TypeDecimal:
		switch v := v.(type) {
		case decimal.Decimal:
			return v, nil
		case *big.Int:
			return decimal.NewFromBigInt(v, 0), nil
		case float64:
			return decimal.NewFromFloat(v), nil
		case string:
			if d, err := decimal.NewFromString(v); err == nil {
				return d, nil
			}
		default:
			if n, ok := conformInt(v); ok {
				return decimal.NewFromInt(n), nil
			}
		}
	case metamodel.TypeFloat:
		switch v := v.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case decimal.Decimal:
			return v.InexactFloat64(), nil
		default:
			if n, ok := conformInt(v); ok {
				return float64(n), nil
			}
		}
	case metamodel.TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case metamodel.TypeEnum:
		if s, ok := v.(string); ok {
			if _, ok := a.Ordinal(s); ok {
				return s, nil
			}
		} else if n, ok := conformInt(v); ok && n >= 0 && int(n) < len(a.Enum) {
			return a.Enum[n], nil
		}
	case metamodel.TypeDate:
		if t, ok := conformTime(v, DateLayout, time.RFC3339Nano); ok {
			return t.Format(DateLayout), nil
		}
	case metamodel.TypeTime:
		// Parsing accepts fractional seconds the layout does not name.
		if t, ok := conformTime(v, "15:04:05", "15:04"); ok {
			return t.Format(TimeLayout), nil
		}
	case metamodel.TypeTimestamp:
		if t, ok := conformTime(v, time.RFC3339Nano, "2006-01-02 15:04:05.999999999"); ok {
			return t.UTC(), nil
		}
	case metamodel.TypeUUID:
		if id, err := AsIdentifier(v); err == nil {
			return id, nil
		}
	}
	return nil, fmt.Errorf("%v (%T) is not a %s value", v, v, a.Type)
}

func conformInt(v any) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int64(v), true
		}
	case decimal.Decimal:
		if v.IsInteger() {
			return v.IntPart(), true
		}
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func conformTime(v any, layouts ...string) (time.Time, bool) {
	switch v := v.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range layouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
