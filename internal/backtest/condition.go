package backtest

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Operator compares the two indicator values of a row
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// ParseOperator maps a comparator symbol to an Operator
func ParseOperator(token string) (Operator, error) {
	op := Operator(strings.TrimSpace(token))
	switch op {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual:
		return op, nil
	default:
		return "", newError(KindUnsupportedOperator, "operator", "unsupported operator %q", token)
	}
}

// Evaluate applies op to v1 and v2
func Evaluate(v1, v2 decimal.Decimal, op Operator) (bool, error) {
	c := v1.Cmp(v2)
	switch op {
	case OpGreater:
		return c > 0, nil
	case OpLess:
		return c < 0, nil
	case OpGreaterEqual:
		return c >= 0, nil
	case OpLessEqual:
		return c <= 0, nil
	case OpEqual:
		return c == 0, nil
	case OpNotEqual:
		return c != 0, nil
	default:
		return false, newError(KindUnsupportedOperator, "operator", "unsupported operator %q", string(op))
	}
}
