package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wonny/signal-backtest/internal/backtest"
	"github.com/wonny/signal-backtest/pkg/logger"
)

// Runner executes one back-test request
type Runner interface {
	Run(ctx context.Context, req backtest.Request) (*backtest.Result, error)
}

// BacktestRequest is the POST body of /api/v4/back_test
type BacktestRequest struct {
	StartDate    string `json:"start_date" validate:"required"`
	EndDate      string `json:"end_date" validate:"required"`
	Value1       string `json:"value_1" validate:"required"`
	Value2       string `json:"value_2" validate:"required"`
	Operator     string `json:"operator" validate:"required"`
	PurchaseType string `json:"purchase_type"`
}

// BacktestResponse carries the rounded total as a JSON number
type BacktestResponse struct {
	Return          json.Number `json:"return"`
	NumObservations int         `json:"num_observations"`
	SkippedRows     int         `json:"skipped_rows"`
}

// StatusClientClosedRequest is logged when the caller disconnects mid-run
const StatusClientClosedRequest = 499

// request field names as the engine reports them, mapped to wire names
var wireFields = map[string]string{
	"indicator_1":         "value_1",
	"indicator_2":         "value_2",
	"purchase_convention": "purchase_type",
}

// BacktestHandler serves back-test runs
// ⭐ SSOT: back-test HTTP mapping lives here only
type BacktestHandler struct {
	engine   Runner
	validate *validator.Validate
	timeout  time.Duration
	logger   *logger.Logger
}

// NewBacktestHandler creates a new back-test handler. A zero timeout means
// the run is bounded only by the request context.
func NewBacktestHandler(engine Runner, timeout time.Duration, log *logger.Logger) *BacktestHandler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &BacktestHandler{
		engine:   engine,
		validate: v,
		timeout:  timeout,
		logger:   log,
	}
}

// Run executes a back-test
// POST /api/v4/back_test
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0].Field()
			respondFieldError(w, http.StatusBadRequest, f, fmt.Sprintf("Missing required field: %s", f))
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.engine.Run(ctx, backtest.Request{
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
		Indicator1:         req.Value1,
		Indicator2:         req.Value2,
		Operator:           req.Operator,
		PurchaseConvention: req.PurchaseType,
	})
	if err != nil {
		h.respondRunError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, BacktestResponse{
		Return:          json.Number(result.TotalReturn.StringFixed(2)),
		NumObservations: result.NumObservations,
		SkippedRows:     result.SkippedRows,
	})
}

func (h *BacktestHandler) respondRunError(w http.ResponseWriter, err error) {
	if backtest.IsClientError(err) {
		var bErr *backtest.Error
		field := ""
		if errors.As(err, &bErr) {
			field = bErr.Field
			if wire, ok := wireFields[field]; ok {
				field = wire
			}
		}
		respondFieldError(w, http.StatusBadRequest, field, clientMessage(err))
		return
	}

	if errors.Is(err, context.Canceled) {
		// the client is gone; nobody reads the body
		h.logger.WithError(err).Warn("Backtest cancelled by client")
		w.WriteHeader(StatusClientClosedRequest)
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		h.logger.WithError(err).Warn("Backtest timed out")
		respondError(w, http.StatusGatewayTimeout, "Backtest timed out")
		return
	}

	h.logger.WithError(err).Error("Backtest failed")
	respondError(w, http.StatusInternalServerError, "Failed to run backtest")
}

// clientMessage returns the engine message without its kind prefix
func clientMessage(err error) string {
	var bErr *backtest.Error
	if !errors.As(err, &bErr) {
		return err.Error()
	}
	return bErr.Message
}
