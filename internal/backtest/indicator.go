package backtest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wonny/signal-backtest/internal/contracts"
)

// Indicator is "price of PriceType, Lag trading days before the row date"
type Indicator struct {
	PriceType contracts.PriceType
	Lag       int
}

// ParseIndicator parses a token such as "C10" (Close, 10 trading days prior).
// The letter is one of O, H, L, C (case-insensitive); the lag is a
// non-negative decimal integer without sign.
func ParseIndicator(token string) (Indicator, error) {
	token = strings.TrimSpace(token)
	if len(token) < 2 {
		return Indicator{}, fmt.Errorf("indicator %q must be a price letter followed by a lag", token)
	}

	pt, err := contracts.ParsePriceType(token[:1])
	if err != nil {
		return Indicator{}, fmt.Errorf("indicator %q: %w", token, err)
	}

	digits := token[1:]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return Indicator{}, fmt.Errorf("indicator %q: lag must be a non-negative integer", token)
		}
	}

	lag, err := strconv.Atoi(digits)
	if err != nil {
		return Indicator{}, fmt.Errorf("indicator %q: %w", token, err)
	}

	return Indicator{PriceType: pt, Lag: lag}, nil
}

func (i Indicator) String() string {
	return fmt.Sprintf("%s%d", i.PriceType.Letter(), i.Lag)
}
