package core

import (
	"strconv"
	"time"
)

// DateLayout is the calendar date format used in tables and flags.
const DateLayout = "2006-01-02"

// Day truncates t to its UTC calendar date. Any zone information is dropped.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string as a UTC date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// NullFloat64 is a float64 that may be undefined.
// An undefined value is never treated as zero.
type NullFloat64 struct {
	Float64 float64
	Valid   bool
}

// Float returns a defined NullFloat64.
func Float(v float64) NullFloat64 {
	return NullFloat64{Float64: v, Valid: true}
}

// String formats the value for tables; undefined values are empty.
func (n NullFloat64) String() string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatFloat(n.Float64, 'g', -1, 64)
}

// ParseNullFloat64 is the inverse of NullFloat64.String.
func ParseNullFloat64(s string) (NullFloat64, error) {
	if s == "" {
		return NullFloat64{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return NullFloat64{}, err
	}
	return Float(v), nil
}

// Record is one (date, symbol) row of the unified daily table.
// Market fields come from the price provider, chain fields from the
// on-chain provider; either side may be partially undefined.
type Record struct {
	Date   time.Time
	Symbol string

	// Market series
	Price     NullFloat64
	MarketCap NullFloat64
	Volume    NullFloat64

	// Chain series
	Time             int64 // upstream epoch seconds
	TransactionCount int64
	CurrentSupply    NullFloat64
	NewAddresses     int64
	ActiveAddresses  int64

	// Derived
	NVT NullFloat64
}

// Tradable reports whether the row can be ranked and bought.
func (r Record) Tradable() bool {
	return r.NVT.Valid && r.Price.Valid && r.Price.Float64 > 0
}
