package backtest

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PurchaseConvention decides which prices of the signal row form the return
type PurchaseConvention string

const (
	// BuyOpenSellClose buys at the open and sells at the close: close - open
	BuyOpenSellClose PurchaseConvention = "buy_open_sell_close"
	// SellOpenBuyClose shorts at the open and covers at the close: open - close
	SellOpenBuyClose PurchaseConvention = "sell_open_buy_close"
)

// DefaultConvention is used when the request leaves the convention empty
const DefaultConvention = BuyOpenSellClose

// ParsePurchaseConvention accepts the canonical names plus long/short aliases
func ParsePurchaseConvention(token string) (PurchaseConvention, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "", string(BuyOpenSellClose), "long":
		return BuyOpenSellClose, nil
	case string(SellOpenBuyClose), "short":
		return SellOpenBuyClose, nil
	default:
		return "", newError(KindUnsupportedConvention, "purchase_convention", "unsupported purchase convention %q", token)
	}
}

// DailyReturn is the absolute single-day return of one observation.
// No rounding happens here.
func DailyReturn(open, close decimal.Decimal, convention PurchaseConvention) (decimal.Decimal, error) {
	switch convention {
	case BuyOpenSellClose:
		return close.Sub(open), nil
	case SellOpenBuyClose:
		return open.Sub(close), nil
	default:
		return decimal.Zero, newError(KindUnsupportedConvention, "purchase_convention", "unsupported purchase convention %q", string(convention))
	}
}
