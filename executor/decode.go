package executor

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/syssam/strata/metamodel"
	"github.com/syssam/strata/statement"
)

// decode converts a raw column value into its payload representation:
// uuid.UUID identifiers, int64 integers, enum literals, *big.Int,
// decimal.Decimal, float64, bool, date and time strings, UTC timestamps.
func decode(v any, t metamodel.Type, a *metamodel.Attribute) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case metamodel.TypeUUID:
		return statement.AsIdentifier(v)
	case metamodel.TypeString, metamodel.TypeText:
		return text(v), nil
	case metamodel.TypeInteger:
		return integer(v)
	case metamodel.TypeEnum:
		n, err := integer(v)
		if err != nil || a == nil || len(a.Enum) == 0 {
			return n, err
		}
		if n < 0 || int(n) >= len(a.Enum) {
			return nil, fmt.Errorf("ordinal %d out of the literals of %s", n, a.Name)
		}
		return a.Enum[n], nil
	case metamodel.TypeBigInteger:
		n, ok := new(big.Int).SetString(text(v), 10)
		if !ok {
			d, err := decimal.NewFromString(text(v))
			if err != nil {
				return nil, fmt.Errorf("%v is not an integer", v)
			}
			n = d.BigInt()
		}
		return n, nil
	case metamodel.TypeDecimal:
		switch v := v.(type) {
		case float64:
			return decimal.NewFromFloat(v), nil
		case int64:
			return decimal.NewFromInt(v), nil
		}
		return decimal.NewFromString(text(v))
	case metamodel.TypeFloat:
		switch v := v.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
		return strconv.ParseFloat(text(v), 64)
	case metamodel.TypeBoolean:
		switch v := v.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		}
		return strconv.ParseBool(text(v))
	case metamodel.TypeDate:
		if tm, ok := v.(time.Time); ok {
			return tm.Format(statement.DateLayout), nil
		}
		s := text(v)
		if len(s) > len(statement.DateLayout) {
			s = s[:len(statement.DateLayout)]
		}
		return s, nil
	case metamodel.TypeTime:
		if tm, ok := v.(time.Time); ok {
			return tm.Format(statement.TimeLayout), nil
		}
		if tm, err := time.Parse("15:04:05", text(v)); err == nil {
			return tm.Format(statement.TimeLayout), nil
		}
		return text(v), nil
	case metamodel.TypeTimestamp:
		if tm, ok := v.(time.Time); ok {
			return tm.UTC(), nil
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999Z07:00", "2006-01-02 15:04:05.999999999"} {
			if tm, err := time.Parse(layout, text(v)); err == nil {
				return tm.UTC(), nil
			}
		}
		return nil, fmt.Errorf("%v is not a timestamp", v)
	}
	return v, nil
}

func text(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return fmt.Sprint(v)
}

func integer(v any) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	return strconv.ParseInt(text(v), 10, 64)
}
