package pricestore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wonny/signal-backtest/internal/contracts"
)

var csvColumns = []string{"date", "symbol", "open", "high", "low", "close"}

// LoadCSV reads daily records from CSV with a header row naming at least
// date, symbol, open, high, low and close (any order, case-insensitive).
// An optional market column is kept; other columns such as volume are ignored.
func LoadCSV(r io.Reader) ([]contracts.PriceRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range csvColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("csv header is missing column %q", col)
		}
	}
	reader.FieldsPerRecord = len(header)

	var records []contracts.PriceRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		rec, err := parseCSVRow(row, idx)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

func parseCSVRow(row []string, idx map[string]int) (contracts.PriceRecord, error) {
	date, err := contracts.ParseDate(row[idx["date"]])
	if err != nil {
		return contracts.PriceRecord{}, fmt.Errorf("date: %w", err)
	}

	symbol := strings.TrimSpace(row[idx["symbol"]])
	if symbol == "" {
		return contracts.PriceRecord{}, fmt.Errorf("symbol is empty")
	}

	prices := make([]decimal.Decimal, 4)
	for i, col := range csvColumns[2:] {
		v, err := decimal.NewFromString(strings.TrimSpace(row[idx[col]]))
		if err != nil {
			return contracts.PriceRecord{}, fmt.Errorf("%s: %w", col, err)
		}
		prices[i] = v
	}

	rec := contracts.PriceRecord{
		Date:   date,
		Symbol: symbol,
		Open:   prices[0],
		High:   prices[1],
		Low:    prices[2],
		Close:  prices[3],
	}
	if i, ok := idx["market"]; ok {
		rec.Market = strings.ToUpper(strings.TrimSpace(row[i]))
	}
	return rec, nil
}
