package query

import (
	"strings"

	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/metamodel"
)

// Signature names a function feature. Every dialect maps each signature to
// an SQL template; an unmapped signature is a configuration error at
// render time.
type Signature string

// Function signatures.
const (
	SigEquals         Signature = "EQUALS"
	SigNotEquals      Signature = "NOT_EQUALS"
	SigLessThan       Signature = "LESS_THAN"
	SigLessOrEqual    Signature = "LESS_OR_EQUAL"
	SigGreaterThan    Signature = "GREATER_THAN"
	SigGreaterOrEqual Signature = "GREATER_OR_EQUAL"

	SigAnd     Signature = "AND"
	SigOr      Signature = "OR"
	SigXor     Signature = "XOR"
	SigImplies Signature = "IMPLIES"
	SigNot     Signature = "NOT"

	SigAdd             Signature = "ADD"
	SigSubtract        Signature = "SUBTRACT"
	SigMultiply        Signature = "MULTIPLY"
	SigDivideInteger   Signature = "DIVIDE_INTEGER"
	SigDivide          Signature = "DIVIDE"
	SigModulo          Signature = "MODULO"
	SigNegate          Signature = "NEGATE"
	SigAddDecimal      Signature = "ADD_DECIMAL"
	SigSubtractDecimal Signature = "SUBTRACT_DECIMAL"
	SigMultiplyDecimal Signature = "MULTIPLY_DECIMAL"
	SigDivideDecimal   Signature = "DIVIDE_DECIMAL"

	SigDateDifference      Signature = "DATE_DIFFERENCE"
	SigTimestampDifference Signature = "TIMESTAMP_DIFFERENCE"
	SigAddDays             Signature = "ADD_DAYS"
	SigNow                 Signature = "NOW"
	SigToday               Signature = "TODAY"
	SigYear                Signature = "YEAR"
	SigMonth               Signature = "MONTH"
	SigDay                 Signature = "DAY"
	SigHour                Signature = "HOUR"
	SigMinute              Signature = "MINUTE"
	SigSecond              Signature = "SECOND"
	SigMillisecond         Signature = "MILLISECOND"

	SigConcatenate Signature = "CONCATENATE"
	SigLength      Signature = "LENGTH"
	SigLower       Signature = "LOWER"
	SigUpper       Signature = "UPPER"
	SigTrim        Signature = "TRIM"
	SigSubstring   Signature = "SUBSTRING"
	SigPosition    Signature = "POSITION"
	SigReplace     Signature = "REPLACE"
	SigLike        Signature = "LIKE"
	SigILike       Signature = "ILIKE"
	SigMatches     Signature = "MATCHES"
	SigToString    Signature = "TO_STRING"

	SigRound Signature = "ROUND"
	SigFloor Signature = "FLOOR"
	SigCeil  Signature = "CEIL"
	SigAbs   Signature = "ABS"

	SigIsNull Signature = "IS_NULL"

	SigCount Signature = "COUNT"
)

// Value types accepted by the typed aggregates.
var (
	summable = []metamodel.Type{metamodel.TypeInteger, metamodel.TypeBigInteger, metamodel.TypeDecimal, metamodel.TypeFloat}
	averages = []metamodel.Type{metamodel.TypeDecimal, metamodel.TypeFloat}
	ordered  = []metamodel.Type{
		metamodel.TypeString, metamodel.TypeInteger, metamodel.TypeBigInteger, metamodel.TypeDecimal,
		metamodel.TypeFloat, metamodel.TypeDate, metamodel.TypeTime, metamodel.TypeTimestamp, metamodel.TypeEnum,
	}
)

// AggregateSignature returns the signature of an aggregate over values of
// type t, e.g. SUM_DECIMAL or MIN_TIMESTAMP. Counting is untyped; averages
// are typed by their result.
func AggregateSignature(op expr.AggregateOp, t metamodel.Type) Signature {
	var prefix string
	switch op {
	case expr.AggCount:
		return SigCount
	case expr.AggSum:
		prefix = "SUM"
	case expr.AggMin:
		prefix = "MIN"
	case expr.AggMax:
		prefix = "MAX"
	case expr.AggAvg:
		prefix = "AVG"
	}
	return Signature(prefix + "_" + strings.ToUpper(t.String()))
}

// Op returns the aggregate operator of a typed aggregate signature, or
// false for other signatures.
func (s Signature) Op() (expr.AggregateOp, bool) {
	prefix, _, _ := strings.Cut(string(s), "_")
	switch {
	case s == SigCount:
		return expr.AggCount, true
	case prefix == "SUM":
		return expr.AggSum, true
	case prefix == "MIN":
		return expr.AggMin, true
	case prefix == "MAX":
		return expr.AggMax, true
	case prefix == "AVG":
		return expr.AggAvg, true
	}
	return 0, false
}

// Signatures returns every signature the compiler emits.
func Signatures() []Signature {
	out := []Signature{
		SigEquals, SigNotEquals, SigLessThan, SigLessOrEqual, SigGreaterThan, SigGreaterOrEqual,
		SigAnd, SigOr, SigXor, SigImplies, SigNot,
		SigAdd, SigSubtract, SigMultiply, SigDivideInteger, SigDivide, SigModulo, SigNegate,
		SigAddDecimal, SigSubtractDecimal, SigMultiplyDecimal, SigDivideDecimal,
		SigDateDifference, SigTimestampDifference, SigAddDays, SigNow, SigToday,
		SigYear, SigMonth, SigDay, SigHour, SigMinute, SigSecond, SigMillisecond,
		SigConcatenate, SigLength, SigLower, SigUpper, SigTrim, SigSubstring, SigPosition,
		SigReplace, SigLike, SigILike, SigMatches, SigToString,
		SigRound, SigFloor, SigCeil, SigAbs,
		SigIsNull, SigCount,
	}
	for _, t := range summable {
		out = append(out, AggregateSignature(expr.AggSum, t))
	}
	for _, t := range ordered {
		out = append(out, AggregateSignature(expr.AggMin, t), AggregateSignature(expr.AggMax, t))
	}
	for _, t := range averages {
		out = append(out, AggregateSignature(expr.AggAvg, t))
	}
	return out
}
