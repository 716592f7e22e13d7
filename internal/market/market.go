// Package market loads commodity price tables from CSV files.
package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/agri-assist/internal/apperr"
)

// Record is one price observation. Prices the file does not carry, or that
// are not numeric, are nil.
type Record struct {
	Date       time.Time
	Commodity  string
	Market     string
	MinPrice   *float64
	MaxPrice   *float64
	ModalPrice *float64
}

// Dataset is a parsed price table sorted by date.
type Dataset struct {
	Source  string
	Records []Record
	// Skipped counts rows dropped for lacking a commodity or a parseable date.
	Skipped int
}

type column int

const (
	colDate column = iota
	colCommodity
	colMarket
	colMin
	colMax
	colModal
	numColumns
)

// headerAliases maps normalized header names to columns.
var headerAliases = map[string]column{
	"date":         colDate,
	"arrival_date": colDate,
	"price_date":   colDate,
	"commodity":    colCommodity,
	"item":         colCommodity,
	"crop":         colCommodity,
	"market":       colMarket,
	"market_name":  colMarket,
	"mandi":        colMarket,
	"min_price":    colMin,
	"max_price":    colMax,
	"modal_price":  colModal,
	"price":        colModal,
}

var dateLayouts = []string{
	time.DateOnly,
	"02/01/2006",
	"02-01-2006",
	"2006/01/02",
	time.RFC3339,
	time.DateTime,
	"02 Jan 2006",
	"Jan 2, 2006",
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, "_x0020_", "_")
	return strings.Join(strings.Fields(h), "_")
}

// Parse reads a CSV price table. The header must name a date column, a
// commodity column and at least one price column.
func Parse(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var idx [numColumns]int
	for i := range idx {
		idx[i] = -1
	}
	for i, h := range header {
		if c, ok := headerAliases[normalizeHeader(h)]; ok && idx[c] < 0 {
			idx[c] = i
		}
	}
	if idx[colDate] < 0 {
		return nil, errors.New("csv has no date column")
	}
	if idx[colCommodity] < 0 {
		return nil, errors.New("csv has no commodity column")
	}
	if idx[colModal] < 0 && idx[colMin] < 0 && idx[colMax] < 0 {
		return nil, errors.New("csv has no price column")
	}

	ds := &Dataset{}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		cell := func(c column) string {
			if idx[c] < 0 || idx[c] >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx[c]])
		}

		date, ok := parseDate(cell(colDate))
		commodity := cell(colCommodity)
		if !ok || commodity == "" {
			ds.Skipped++
			continue
		}
		ds.Records = append(ds.Records, Record{
			Date:       date,
			Commodity:  commodity,
			Market:     cell(colMarket),
			MinPrice:   parsePrice(cell(colMin)),
			MaxPrice:   parsePrice(cell(colMax)),
			ModalPrice: parsePrice(cell(colModal)),
		})
	}

	sort.SliceStable(ds.Records, func(i, j int) bool {
		return ds.Records[i].Date.Before(ds.Records[j].Date)
	})
	return ds, nil
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parsePrice(s string) *float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Commodities returns the distinct commodity names, sorted.
func (d *Dataset) Commodities() []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, r := range d.Records {
		if _, ok := seen[r.Commodity]; ok {
			continue
		}
		seen[r.Commodity] = struct{}{}
		out = append(out, r.Commodity)
	}
	sort.Strings(out)
	return out
}

// Series returns the records for commodity in date order. Matching ignores
// case and surrounding space.
func (d *Dataset) Series(commodity string) ([]Record, error) {
	want := strings.TrimSpace(commodity)
	if want == "" {
		return nil, apperr.Input("commodity is required")
	}
	var out []Record
	for _, r := range d.Records {
		if strings.EqualFold(r.Commodity, want) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, apperr.Inputf("unknown commodity %q", commodity)
	}
	return out, nil
}
