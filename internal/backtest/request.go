package backtest

import (
	"time"

	"github.com/wonny/signal-backtest/internal/contracts"
)

// Request is the boundary form of a back-test: every field is text as it
// arrives from HTTP, the CLI or a preset file.
type Request struct {
	StartDate          string
	EndDate            string
	Indicator1         string
	Indicator2         string
	Operator           string
	PurchaseConvention string
}

// Params is a validated Request
type Params struct {
	Start      time.Time
	End        time.Time
	Indicator1 Indicator
	Indicator2 Indicator
	Operator   Operator
	Convention PurchaseConvention
}

// Validate parses every field. The first offending field is reported as an
// ErrInvalidRequest naming it.
func (r Request) Validate() (*Params, error) {
	start, err := contracts.ParseDate(r.StartDate)
	if err != nil {
		return nil, newError(KindInvalidRequest, "start_date", "expected YYYY-MM-DD, got %q", r.StartDate)
	}

	end, err := contracts.ParseDate(r.EndDate)
	if err != nil {
		return nil, newError(KindInvalidRequest, "end_date", "expected YYYY-MM-DD, got %q", r.EndDate)
	}

	if start.After(end) {
		return nil, newError(KindInvalidRequest, "start_date", "start date %s is after end date %s",
			start.Format(contracts.DateLayout), end.Format(contracts.DateLayout))
	}

	ind1, err := ParseIndicator(r.Indicator1)
	if err != nil {
		return nil, newError(KindInvalidRequest, "indicator_1", "%v", err)
	}

	ind2, err := ParseIndicator(r.Indicator2)
	if err != nil {
		return nil, newError(KindInvalidRequest, "indicator_2", "%v", err)
	}

	op, err := ParseOperator(r.Operator)
	if err != nil {
		return nil, newError(KindInvalidRequest, "operator", "unsupported operator %q", r.Operator)
	}

	conv, err := ParsePurchaseConvention(r.PurchaseConvention)
	if err != nil {
		return nil, newError(KindInvalidRequest, "purchase_convention", "unsupported purchase convention %q", r.PurchaseConvention)
	}

	return &Params{
		Start:      start,
		End:        end,
		Indicator1: ind1,
		Indicator2: ind2,
		Operator:   op,
		Convention: conv,
	}, nil
}
